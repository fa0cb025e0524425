// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package freelist provides a lock-free pool of reusable nodes whose
// recycling is gated by epoch-based reclamation.
//
// A Freelist hands out nodes wrapping a payload value. Callers retire nodes
// they no longer reference instead of returning them directly; the node is
// reset and pushed back onto the available list only once no participant of
// the freelist's private transaction table can still be reading it.
//
// # Key Features
//
//   - Lock-free claim and retire paths using CAS on tagged list heads
//   - Double buffering: a staged backbuffer block hides allocation latency
//   - Forced direct allocation when the backbuffer cannot keep up
//   - Arena storage addressed by 32-bit handles; the pool only grows
//   - Quiescent counter identity checked by CheckInvariants
//
// # Usage Examples
//
//	type item struct{ key, val uint64 }
//
//	func (it *item) Reset() { *it = item{} }
//
//	sys := epoch.NewSystem(64)
//	idx, err := sys.AssignIndex()
//	if err != nil {
//	    return err
//	}
//	defer sys.FreeIndex(&idx)
//
//	fl := freelist.New[item](sys, 256, 4)
//	defer fl.Close()
//
//	n := fl.Claim(idx)
//	n.Value.key = 42
//	// ... publish n, later unlink it ...
//	fl.Retire(idx, n)
//
// # Dangers and Warnings
//
//   - **Index Ownership**: An index must be used by one goroutine at a time.
//   - **Retired Nodes**: Never touch a node after retiring it; it may be
//     recycled and claimed by another goroutine.
//   - **Memory Growth**: Nodes are never released before Close. A burst of
//     claims leaves the pool at its peak size.
//   - **Close**: Close requires that no goroutine is using the freelist.
package freelist

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/base"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/invariants"
	"golang.org/x/sys/cpu"
)

// maxSwapAttempts bounds how often Claim swaps in the backbuffer before
// falling back to a forced allocation.
const maxSwapAttempts = 100

// Option configures a Freelist.
type Option func(*options)

type options struct {
	logger    base.Logger
	tableOpts []epoch.TableOption
}

// WithLogger sets the logger used to report forced allocations.
func WithLogger(l base.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
			o.tableOpts = append(o.tableOpts, epoch.WithLogger(l))
		}
	}
}

// WithRefreshInterval sets the refresh interval of the private table.
func WithRefreshInterval(n uint64) Option {
	return func(o *options) {
		o.tableOpts = append(o.tableOpts, epoch.WithRefreshInterval(n))
	}
}

// Freelist is a pool of nodes of type T.
type Freelist[T any, PT Payload[T]] struct {
	table     *epoch.Table
	arena     arena[T]
	logger    base.Logger
	blockSize int

	_          cpu.CacheLinePad
	available  list
	_          cpu.CacheLinePad
	backbuffer list
	_          cpu.CacheLinePad

	allocated       atomic.Int64
	availableCount  atomic.Int64
	backbufferCount atomic.Int64
	claimed         atomic.Int64
	forced          atomic.Int64
	closed          atomic.Bool
}

// New creates a freelist with its own transaction table on sys. blockSize
// must be greater than one. An initialBlocks of one or less would leave the
// pool refilling on nearly every claim, so it is raised to two and the
// block size halved instead.
func New[T any, PT Payload[T]](sys *epoch.System, blockSize, initialBlocks int, opts ...Option) *Freelist[T, PT] {
	if blockSize <= 1 {
		panic(errors.AssertionFailedf("freelist: block size must be greater than 1, got %d", blockSize))
	}
	if initialBlocks <= 1 {
		blockSize /= 2
		initialBlocks = 2
	}

	o := options{logger: base.NoopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}

	f := &Freelist[T, PT]{
		table:     epoch.NewTable(sys, o.tableOpts...),
		logger:    o.logger,
		blockSize: blockSize,
	}
	f.arena.init(blockSize, f)

	f.allocBackbuffer()
	for i := 0; i < initialBlocks; i++ {
		f.swapBackbuffer()
	}
	return f
}

// Table returns the freelist's private transaction table.
func (f *Freelist[T, PT]) Table() *epoch.Table { return f.table }

// BlockSize returns the number of nodes allocated per block.
func (f *Freelist[T, PT]) BlockSize() int { return f.blockSize }

// Claim returns a node for the goroutine holding idx. It never fails: when
// the available list stays empty it swaps in the backbuffer, and when that
// is starved too it allocates a block directly.
//
// If idx has no open window on the freelist's table, one is opened for the
// duration of the call.
func (f *Freelist[T, PT]) Claim(idx epoch.Index) *Node[T] {
	d := f.table.Descriptor(idx)
	local := !d.IsParticipating()
	d.StartRead()
	d.ReclaimEligible()

	n := f.popFromAvailable()
	for attempt := 0; n == nil && attempt < maxSwapAttempts; attempt++ {
		f.swapBackbuffer()
		n = f.popFromAvailable()
	}
	if n == nil {
		n = f.forceAlloc()
	}

	if local {
		d.End()
	}
	f.claimed.Add(1)
	if in, ok := any(PT(&n.Value)).(Initializer); ok {
		in.Init()
	}
	return n
}

// Retire hands a claimed node back for recycling once no participant can
// still observe it.
func (f *Freelist[T, PT]) Retire(idx epoch.Index, n *Node[T]) {
	invariants.Assertf(n != nil, "freelist: retiring a nil node")
	if n == nil {
		return
	}
	invariants.Assertf(n.owner == recycler[T](f), "freelist: retiring node %d owned by another freelist", n.id)
	f.claimed.Add(-1)
	f.table.Descriptor(idx).Retire(n)
}

// recycle resets a reclaimed node and makes it available again.
func (f *Freelist[T, PT]) recycle(n *Node[T]) {
	PT(&n.Value).Reset()
	n.next.Store(0)
	f.pushToList(n, n, &f.available)
	f.availableCount.Add(1)
}

// popFromAvailable pops the top of the available list, or returns nil.
func (f *Freelist[T, PT]) popFromAvailable() *Node[T] {
	h := f.available.pop(f.nextOf)
	if h == 0 {
		return nil
	}
	f.availableCount.Add(-1)
	n := f.arena.node(h)
	n.next.Store(0)
	return n
}

// pushToList prepends the chain head..tail onto dst. A single node is
// pushed with head == tail.
func (f *Freelist[T, PT]) pushToList(head, tail *Node[T], dst *list) {
	dst.push(head.id, tail.id, f.setNext)
}

func (f *Freelist[T, PT]) nextOf(h handle) handle {
	return handle(f.arena.node(h).next.Load())
}

func (f *Freelist[T, PT]) setNext(h, next handle) {
	f.arena.node(h).next.Store(uint32(next))
}

// allocBackbuffer allocates a block and stages it on the backbuffer.
func (f *Freelist[T, PT]) allocBackbuffer() {
	head, tail := f.arena.grow()
	f.allocated.Add(int64(f.blockSize))
	f.pushToList(head, tail, &f.backbuffer)
	f.backbufferCount.Add(int64(f.blockSize))
}

// swapBackbuffer moves everything staged on the backbuffer onto the
// available list and stages a fresh block. It reports false if the
// backbuffer was empty, which happens while a concurrent swapper has taken
// it and not yet staged the replacement.
func (f *Freelist[T, PT]) swapBackbuffer() bool {
	h := f.backbuffer.takeAll()
	if h == 0 {
		return false
	}
	// The detached chain is private until it is pushed.
	head := f.arena.node(h)
	tail := head
	count := int64(1)
	for next := f.nextOf(tail.id); next != 0; next = f.nextOf(tail.id) {
		tail = f.arena.node(next)
		count++
	}
	f.backbufferCount.Add(-count)
	f.pushToList(head, tail, &f.available)
	f.availableCount.Add(count)
	f.allocBackbuffer()
	return true
}

// forceAlloc allocates a block directly, keeps its first node for the
// caller and makes the rest available.
func (f *Freelist[T, PT]) forceAlloc() *Node[T] {
	head, tail := f.arena.grow()
	f.allocated.Add(int64(f.blockSize))
	forced := f.forced.Add(1)
	f.logger.Infof("freelist: backbuffer starved, forced allocation #%d of %d nodes", forced, f.blockSize)

	if head != tail {
		rest := f.arena.node(handle(head.next.Load()))
		f.pushToList(rest, tail, &f.available)
		f.availableCount.Add(int64(f.blockSize - 1))
	}
	head.next.Store(0)
	return head
}

// CheckInvariants verifies that every allocated node is accounted for. It
// is only meaningful while no operation is in flight.
func (f *Freelist[T, PT]) CheckInvariants() error {
	s := f.Stats()
	if got := s.Available + s.Backbuffer + s.Claimed + s.Retired; got != s.Allocated {
		return errors.AssertionFailedf("freelist: %d nodes allocated but %d accounted for (%s)",
			s.Allocated, got, s)
	}
	return nil
}

// Close recycles every saved and retired node and closes the private
// table. No goroutine may be using the freelist. Close is idempotent.
func (f *Freelist[T, PT]) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	// A saved node is still counted as claimed.
	for i := 0; i < f.table.System().Capacity(); i++ {
		saved := f.table.Descriptor(epoch.Index(i)).TakeSaved()
		if saved == nil {
			continue
		}
		if n, ok := saved.(*Node[T]); ok && n.owner == recycler[T](f) {
			f.claimed.Add(-1)
		}
		saved.Reclaim()
	}
	f.table.Close()
}
