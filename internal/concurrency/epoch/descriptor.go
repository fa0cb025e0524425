// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync/atomic"

	"github.com/kianostad/lfreclaim/internal/invariants"
	"golang.org/x/sys/cpu"
)

// Descriptor is the per-(table, index) participation record. Only the
// goroutine holding the index may call its methods; other goroutines only
// read the published id and the counters.
type Descriptor struct {
	table *Table
	index Index

	// id is the published protection id read by minimum scans. It is
	// InvalidID exactly when the descriptor is Idle.
	id atomic.Uint64

	retired   atomic.Uint64
	reclaimed atomic.Uint64

	state State
	// tranID tags retired nodes. It equals the published id except after a
	// ReadJoined -> WriteJoined upgrade, where the published id keeps
	// protecting what was read before the upgrade.
	tranID  ID
	lastMin ID

	retiredHead Reclaimable
	retiredTail Reclaimable
	saved       Reclaimable

	_ cpu.CacheLinePad
}

// Index returns the transaction index the descriptor is bound to.
func (d *Descriptor) Index() Index { return d.index }

// Table returns the owning table.
func (d *Descriptor) Table() *Table { return d.table }

// State returns the participation state.
func (d *Descriptor) State() State { return d.state }

// ID returns the descriptor's transaction id, or InvalidID when Idle.
func (d *Descriptor) ID() ID { return d.tranID }

// IsParticipating reports whether a window is open.
func (d *Descriptor) IsParticipating() bool { return d.state != Idle }

// StartRead opens a read-joined window. It is a no-op when a window is
// already open.
func (d *Descriptor) StartRead() { d.Start(ReadJoin) }

// StartWrite opens a write-joined window, or upgrades a read-joined one. A
// window that is already write-joined keeps its id.
func (d *Descriptor) StartWrite() { d.Start(WriteJoin) }

// Start opens a window in the given mode.
func (d *Descriptor) Start(mode Mode) {
	to, act := d.state.next(int(mode))
	switch act {
	case actPublishCurrent:
		d.tranID = d.publishCurrent()
	case actPublishNew:
		d.publishCurrent()
		d.tranID = d.table.NewGlobalID()
		d.id.Store(uint64(d.tranID))
	case actAllocate:
		d.tranID = d.table.NewGlobalID()
	}
	d.state = to
}

// publishCurrent publishes the current global id and re-reads the counter
// to validate it. If the counter moved, a concurrent minimum scan may have
// missed the store with a bound above the published id, so publish again.
func (d *Descriptor) publishCurrent() ID {
	for {
		g := d.table.globalID.Load()
		d.id.Store(g)
		if d.table.globalID.Load() == g {
			return ID(g)
		}
	}
}

// End closes the window.
func (d *Descriptor) End() {
	to, act := d.state.next(endEvent)
	if act == actIllegal {
		invariants.Assertf(false, "epoch: descriptor %d ended while idle", d.index)
		return
	}
	d.id.Store(uint64(InvalidID))
	d.tranID = InvalidID
	d.state = to
}

// Retire hands node to the reclamation machinery. If no window is open, one
// is opened for the duration of the call. The node must already be
// unreachable from the structure.
//
// The node is tagged with the global id observed after it was unlinked. In a
// local window that is the descriptor's own write id; in a window opened
// earlier it may be larger, since readers may have joined after the window
// opened and still loaded the node before it was unlinked. The node is
// appended at the tail, which keeps the list in ascending id order because
// the global id never decreases.
func (d *Descriptor) Retire(node Reclaimable) {
	invariants.Assertf(node != nil, "epoch: retiring a nil node")
	if node == nil {
		return
	}

	local := d.state == Idle
	d.StartWrite()
	d.ReclaimEligible()

	l := node.retiredLink()
	l.retireID = d.table.CurrentGlobalID()
	l.next = nil
	if d.retiredTail == nil {
		d.retiredHead = node
	} else {
		d.retiredTail.retiredLink().next = node
	}
	d.retiredTail = node
	d.retired.Add(1)

	if local {
		d.End()
	}
}

// ReclaimEligible reclaims retired nodes whose retirement id is below the
// table's cached minimum active id and returns how many were reclaimed. It
// does nothing if the minimum has not changed since the last call.
func (d *Descriptor) ReclaimEligible() int {
	minID := d.table.MinActiveID()
	if minID == d.lastMin {
		return 0
	}
	n := 0
	for d.retiredHead != nil {
		node := d.retiredHead
		l := node.retiredLink()
		if l.retireID >= minID {
			break
		}
		d.unlinkHead(l)
		d.reclaimed.Add(1)
		node.Reclaim()
		n++
	}
	d.lastMin = minID
	return n
}

func (d *Descriptor) unlinkHead(l *Link) {
	d.retiredHead = l.next
	if d.retiredHead == nil {
		d.retiredTail = nil
	}
	l.next = nil
}

// Save stashes one node that is on no list so the caller can pick it up in
// a later call. The slot must be empty.
func (d *Descriptor) Save(node Reclaimable) {
	invariants.Assertf(d.saved == nil, "epoch: descriptor %d already holds a saved node", d.index)
	d.saved = node
}

// TakeSaved returns and clears the saved node, or nil.
func (d *Descriptor) TakeSaved() Reclaimable {
	n := d.saved
	d.saved = nil
	return n
}

// RetiredCount returns the number of nodes retired through this descriptor.
func (d *Descriptor) RetiredCount() uint64 { return d.retired.Load() }

// ReclaimedCount returns the number of nodes this descriptor reclaimed.
func (d *Descriptor) ReclaimedCount() uint64 { return d.reclaimed.Load() }

// Outstanding returns the number of retired nodes waiting for reclamation.
func (d *Descriptor) Outstanding() uint64 {
	// Load reclaimed first: both only grow, so this can't underflow.
	rc := d.reclaimed.Load()
	return d.retired.Load() - rc
}

// destroy reclaims every remaining retired node and the saved node, if any,
// and returns how many retired nodes were drained.
func (d *Descriptor) destroy() uint64 {
	invariants.Assertf(d.state == Idle, "epoch: descriptor %d destroyed while %s", d.index, d.state)
	var n uint64
	for d.retiredHead != nil {
		node := d.retiredHead
		d.unlinkHead(node.retiredLink())
		d.reclaimed.Add(1)
		node.Reclaim()
		n++
	}
	if s := d.TakeSaved(); s != nil {
		s.Reclaim()
	}
	return n
}
