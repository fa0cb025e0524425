// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package lfreclaim provides epoch-based safe memory reclamation for
// lock-free data structures.
//
// This is the main public API of the library. Nodes removed from a lock-free
// structure are retired rather than dropped, and only reclaimed once no
// participant that could have observed them is still running. Reclaimed
// nodes are either released to the Go collector or recycled by a Freelist.
//
// # Quick Start
//
//	import "github.com/kianostad/lfreclaim"
//
//	opts := &lfreclaim.Options{Capacity: 64}
//	sys, err := lfreclaim.NewSystem(opts)
//	if err != nil {
//	    return err
//	}
//
//	// Each goroutine takes one index for its lifetime.
//	idx, err := sys.AssignIndex()
//	if err != nil {
//	    return err
//	}
//	defer sys.FreeIndex(&idx)
//
//	// One table per lock-free structure.
//	table := lfreclaim.NewTable(sys, opts)
//	defer table.Close()
//
//	d := table.Descriptor(idx)
//	d.StartRead()
//	// ... traverse the structure ...
//	d.End()
//
//	// After unlinking a node:
//	d.Retire(&lfreclaim.Node{OnReclaim: func() { /* unobserved now */ }})
//
// # Key Features
//
//   - Lock-free index assignment for up to Capacity participants
//   - Per-structure tables with a cached, conservative minimum active id
//   - Retired lists reclaimed in id order, without locks
//   - Freelists that recycle reclaimed nodes with double-buffered growth
//   - Background collector bounding how stale the minimum gets
//   - Prometheus and JSON metrics
//
// # Freelists
//
//	type entry struct{ key, val uint64 }
//
//	func (e *entry) Reset() { *e = entry{} }
//
//	fl, err := lfreclaim.NewFreelist[entry](sys, opts)
//	if err != nil {
//	    return err
//	}
//	defer fl.Close()
//
//	n := fl.Claim(idx)
//	n.Value.key = 1
//	// ... publish, later unlink ...
//	fl.Retire(idx, n)
//
// # Best Practices
//
//   - Size Capacity for the peak number of goroutines holding an index
//   - Keep participation windows short; an open window holds back
//     reclamation on its table
//   - Run a Collector when id allocation is slow, so nodes retired near the
//     end of a burst are still reclaimed
//   - Build with -tags invariants in tests to turn misuse into panics
//
// # See Also
//
// The epoch package documents the participation state machine; the freelist
// package documents node accounting.
package lfreclaim

import (
	"github.com/kianostad/lfreclaim/internal/base"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
)

type (
	// ID is a transaction id.
	ID = epoch.ID

	// Index identifies a participant within a System.
	Index = epoch.Index

	// System assigns transaction indexes.
	System = epoch.System

	// Table tracks participation in one lock-free structure.
	Table = epoch.Table

	// Descriptor is a participant's record within a Table.
	Descriptor = epoch.Descriptor

	// Mode selects how a participation window is joined.
	Mode = epoch.Mode

	// Reclaimable is implemented by nodes that can be retired.
	Reclaimable = epoch.Reclaimable

	// Link is embedded by reclaimable nodes.
	Link = epoch.Link

	// Node is the default reclaimable node.
	Node = epoch.Node

	// Collector refreshes table minimums in the background.
	Collector = epoch.Collector

	// Logger is the logging interface used throughout the library.
	Logger = base.Logger

	// Freelist is a pool of recyclable nodes.
	Freelist[T any, PT freelist.Payload[T]] = freelist.Freelist[T, PT]

	// FreelistNode is a node handed out by a Freelist.
	FreelistNode[T any] = freelist.Node[T]

	// Payload is the constraint on freelist values.
	Payload[T any] = freelist.Payload[T]
)

const (
	// InvalidID marks the absence of a transaction id.
	InvalidID = epoch.InvalidID
	// InvalidIndex marks the absence of a transaction index.
	InvalidIndex = epoch.InvalidIndex

	// ReadJoin joins at the current global id.
	ReadJoin = epoch.ReadJoin
	// WriteJoin joins with a new global id.
	WriteJoin = epoch.WriteJoin
)

// Errors returned by the library. Use errors.Is to test for them.
var (
	ErrCapacityExhausted = base.ErrCapacityExhausted
	ErrInvalidOptions    = base.ErrInvalidOptions
)

// NewSystem creates a transaction index system sized by opts.
func NewSystem(opts *Options) (*System, error) {
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return epoch.NewSystem(opts.Capacity), nil
}

// NewTable creates a transaction table on sys configured by opts.
func NewTable(sys *System, opts *Options) *Table {
	opts = opts.EnsureDefaults()
	return epoch.NewTable(sys,
		epoch.WithRefreshInterval(opts.RefreshInterval),
		epoch.WithLogger(opts.Logger))
}

// NewFreelist creates a freelist on sys configured by opts.
func NewFreelist[T any, PT Payload[T]](sys *System, opts *Options) (*Freelist[T, PT], error) {
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return freelist.New[T, PT](sys, opts.BlockSize, opts.InitialBlocks,
		freelist.WithRefreshInterval(opts.RefreshInterval),
		freelist.WithLogger(opts.Logger)), nil
}

// NewCollector creates a background collector over tables configured by
// opts. It is not started.
func NewCollector(opts *Options, tables ...*Table) *Collector {
	opts = opts.EnsureDefaults()
	c := epoch.NewCollector(opts.CollectInterval, tables...)
	c.SetLogger(opts.Logger)
	return c
}
