// Licensed under the MIT License. See LICENSE file in the project root for details.

package freelist

import "github.com/cockroachdb/redact"

// Stats is a snapshot of a freelist's node accounting. Fields are read
// independently, so only a snapshot taken while no operation is in flight
// is guaranteed to balance.
type Stats struct {
	Blocks     int
	Allocated  int64
	Available  int64
	Backbuffer int64
	Claimed    int64
	Retired    int64
	Forced     int64
}

// Stats returns the current counters.
func (f *Freelist[T, PT]) Stats() Stats {
	return Stats{
		Blocks:     f.arena.blocks(),
		Allocated:  f.allocated.Load(),
		Available:  f.availableCount.Load(),
		Backbuffer: f.backbufferCount.Load(),
		Claimed:    f.claimed.Load(),
		Retired:    int64(f.table.Outstanding()),
		Forced:     f.forced.Load(),
	}
}

// SafeFormat implements redact.SafeFormatter.
func (s Stats) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("blocks %d, allocated %d, available %d, backbuffer %d, claimed %d, retired %d, forced %d",
		redact.Safe(s.Blocks), redact.Safe(s.Allocated), redact.Safe(s.Available),
		redact.Safe(s.Backbuffer), redact.Safe(s.Claimed), redact.Safe(s.Retired),
		redact.Safe(s.Forced))
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return redact.StringWithoutMarkers(s)
}
