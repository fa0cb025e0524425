// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/base"
	"golang.org/x/sys/cpu"
)

// TableOption configures a Table.
type TableOption func(*Table)

// WithRefreshInterval sets how many new global ids are handed out between
// two recomputations of the minimum active id.
func WithRefreshInterval(n uint64) TableOption {
	return func(t *Table) {
		if n > 0 {
			t.refreshInterval = n
		}
	}
}

// WithLogger sets the table's logger.
func WithLogger(l base.Logger) TableOption {
	return func(t *Table) {
		if l != nil {
			t.logger = l
		}
	}
}

// Table tracks participation in one lock-free structure. It holds one
// Descriptor per index of its System, a global id counter and the cached
// minimum active id.
type Table struct {
	sys             *System
	descriptors     []Descriptor
	refreshInterval uint64
	logger          base.Logger

	_            cpu.CacheLinePad
	globalID     atomic.Uint64
	_            cpu.CacheLinePad
	sinceRefresh atomic.Uint64
	_            cpu.CacheLinePad
	minActiveID  atomic.Uint64
	_            cpu.CacheLinePad
	closed       atomic.Bool
}

// NewTable creates a table with one descriptor per index of sys.
func NewTable(sys *System, opts ...TableOption) *Table {
	t := &Table{
		sys:             sys,
		descriptors:     make([]Descriptor, sys.Capacity()),
		refreshInterval: DefaultRefreshInterval,
		logger:          base.NoopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	for i := range t.descriptors {
		d := &t.descriptors[i]
		d.table = t
		d.index = Index(i)
		d.id.Store(uint64(InvalidID))
		d.tranID = InvalidID
	}
	return t
}

// System returns the system the table was created against.
func (t *Table) System() *System { return t.sys }

// Descriptor returns the descriptor bound to idx.
func (t *Table) Descriptor(idx Index) *Descriptor {
	if idx < 0 || int(idx) >= len(t.descriptors) {
		panic(errors.AssertionFailedf("epoch: index %d out of range [0, %d)", idx, len(t.descriptors)))
	}
	return &t.descriptors[idx]
}

// NewGlobalID advances the global counter and returns the advanced value,
// so the first id handed out is 1 and ids never repeat. Publishing the
// advanced value is as conservative as publishing the previous one: any
// node retired earlier carries a tag below it. Every refresh interval it
// also recomputes the minimum active id.
func (t *Table) NewGlobalID() ID {
	id := ID(t.globalID.Add(1))
	if t.sinceRefresh.Add(1)%t.refreshInterval == 0 {
		t.ComputeMinActiveID()
	}
	return id
}

// CurrentGlobalID returns the global id without advancing it.
func (t *Table) CurrentGlobalID() ID {
	return ID(t.globalID.Load())
}

// ComputeMinActiveID scans every descriptor and caches the smallest
// published id, treating idle descriptors as +inf. It returns the value it
// stored.
//
// The scan starts from a freshly advanced global id rather than +inf. A
// descriptor that joins while the scan runs publishes an id no smaller than
// that bound even if the scan misses its store, so the cached minimum never
// exceeds the id of an open window.
func (t *Table) ComputeMinActiveID() ID {
	minID := ID(t.globalID.Add(1))
	for i := range t.descriptors {
		if id := ID(t.descriptors[i].id.Load()); id < minID {
			minID = id
		}
	}
	// A slower concurrent scan may overwrite a newer result with a smaller
	// one. Any completed scan is still a valid lower bound.
	t.minActiveID.Store(uint64(minID))
	return minID
}

// MinActiveID returns the cached minimum active id.
func (t *Table) MinActiveID() ID {
	return ID(t.minActiveID.Load())
}

// ActiveCount returns the number of descriptors currently participating.
func (t *Table) ActiveCount() int {
	n := 0
	for i := range t.descriptors {
		if ID(t.descriptors[i].id.Load()) != InvalidID {
			n++
		}
	}
	return n
}

// TotalRetired returns the number of nodes retired through this table.
func (t *Table) TotalRetired() uint64 {
	var n uint64
	for i := range t.descriptors {
		n += t.descriptors[i].retired.Load()
	}
	return n
}

// TotalReclaimed returns the number of nodes reclaimed through this table.
func (t *Table) TotalReclaimed() uint64 {
	var n uint64
	for i := range t.descriptors {
		n += t.descriptors[i].reclaimed.Load()
	}
	return n
}

// Outstanding returns the number of retired nodes not yet reclaimed.
func (t *Table) Outstanding() uint64 {
	var n uint64
	for i := range t.descriptors {
		n += t.descriptors[i].Outstanding()
	}
	return n
}

// Stats returns a diagnostic snapshot of the table. The counters are summed
// without synchronization and may be mutually inconsistent under load.
func (t *Table) Stats() Stats {
	s := Stats{
		Capacity:    len(t.descriptors),
		Active:      t.ActiveCount(),
		GlobalID:    t.CurrentGlobalID(),
		MinActiveID: t.MinActiveID(),
	}
	for i := range t.descriptors {
		d := &t.descriptors[i]
		rc := d.reclaimed.Load()
		s.Retired += d.retired.Load()
		s.Reclaimed += rc
	}
	s.Outstanding = s.Retired - s.Reclaimed
	return s
}

// Close tears the table down and reclaims every retired node. No goroutine
// may be reading the structure and every descriptor must be Idle. Close is
// idempotent.
func (t *Table) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	var drained uint64
	for i := range t.descriptors {
		drained += t.descriptors[i].destroy()
	}
	if drained > 0 {
		t.logger.Infof("epoch: table teardown reclaimed %d retired nodes", drained)
	}
}
