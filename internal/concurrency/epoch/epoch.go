// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package epoch provides epoch-based memory reclamation for lock-free data
// structures.
//
// Nodes removed from a lock-free structure cannot be dropped or recycled
// right away: another goroutine may still be reading them. This package
// defers that decision. Every participant holds a transaction index from a
// System; each structure owns a Table with one Descriptor per index. A
// participant opens a window on its descriptor before touching the
// structure, retires the nodes it unlinks, and closes the window when done.
// A retired node is reclaimed only once the table's minimum active id has
// moved past the id it was retired under, which means every window that
// could have seen it is closed.
//
// # Key Features
//
//   - Lock-free index assignment backed by an atomic bitmap
//   - Monotonic per-table global id with a cached minimum active id
//   - Explicit Idle / ReadJoined / WriteJoined window state machine
//   - Per-descriptor retired lists kept in ascending retirement order
//   - Opportunistic reclamation on retire plus a background Collector
//
// # Usage Examples
//
// Assigning an index and retiring a node:
//
//	sys := epoch.NewSystem(64)
//	table := epoch.NewTable(sys)
//
//	idx, err := sys.AssignIndex()
//	if err != nil {
//	    return err
//	}
//	defer sys.FreeIndex(&idx)
//
//	d := table.Descriptor(idx)
//	d.StartRead()
//	// ... read the structure, unlink node ...
//	d.Retire(node)
//	d.End()
//
// Recomputing the minimum in the background:
//
//	c := epoch.NewCollector(10*time.Millisecond, table)
//	c.Start()
//	defer c.Stop()
//
// # Dangers and Warnings
//
//   - **One Goroutine Per Index**: A descriptor's retired list has a single
//     writer. Two goroutines sharing an index corrupt it.
//   - **Long Windows**: A window that is never closed pins the minimum
//     active id, and no node retired after it opened is ever reclaimed.
//   - **Teardown**: Table.Close reclaims everything unconditionally. Only
//     call it when no goroutine can still read the structure.
//
// # Thread Safety
//
// Index assignment, id allocation, the minimum scan and window start/end
// only use atomics. Retire, ReclaimEligible, Save and TakeSaved touch state
// owned by the goroutine holding the index.
//
// # Memory Reclamation Strategy
//
// The minimum active id is a conservative snapshot: it never exceeds the id
// of any window that is open. A node retired under id G is reclaimed when
// the cached minimum is strictly greater than G.
package epoch

import (
	"math"
	"strconv"

	"github.com/cockroachdb/redact"
)

// ID is a transaction id drawn from a table's global counter.
type ID uint64

// InvalidID marks a descriptor that is not participating. It compares
// greater than every valid id.
const InvalidID ID = math.MaxUint64

// SafeValue implements redact.SafeValue.
func (ID) SafeValue() {}

var _ redact.SafeValue = ID(0)

func (id ID) String() string {
	if id == InvalidID {
		return "invalid"
	}
	return strconv.FormatUint(uint64(id), 10)
}

// Index is a participant's transaction index. It is valid for every table
// created against the System that assigned it.
type Index int

// InvalidIndex is the index of a participant that holds none.
const InvalidIndex Index = -1

// SafeValue implements redact.SafeValue.
func (Index) SafeValue() {}

// DefaultRefreshInterval is the number of new global ids between two
// recomputations of the minimum active id.
const DefaultRefreshInterval = 100
