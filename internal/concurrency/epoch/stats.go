// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import "github.com/cockroachdb/redact"

// Stats is a diagnostic snapshot of a Table.
type Stats struct {
	// Capacity is the number of descriptors, one per system index.
	Capacity int
	// Active is the number of descriptors with an open window.
	Active int
	// GlobalID is the current value of the global id counter.
	GlobalID ID
	// MinActiveID is the cached minimum active id.
	MinActiveID ID
	// Retired is the total number of nodes retired through the table.
	Retired uint64
	// Reclaimed is the total number of nodes reclaimed through the table.
	Reclaimed uint64
	// Outstanding is Retired - Reclaimed.
	Outstanding uint64
}

// SafeFormat implements redact.SafeFormatter.
func (s Stats) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("active %d/%d, global id %s, min active %s, retired %d, reclaimed %d, outstanding %d",
		redact.Safe(s.Active), redact.Safe(s.Capacity), s.GlobalID, s.MinActiveID,
		redact.Safe(s.Retired), redact.Safe(s.Reclaimed), redact.Safe(s.Outstanding))
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return redact.StringWithoutMarkers(s)
}
