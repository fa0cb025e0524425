// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/base"
	"github.com/kianostad/lfreclaim/internal/concurrency/bitmap"
)

// System assigns transaction indexes. It does not own tables; any number of
// tables may be created against one system and an index is valid in all of
// them.
type System struct {
	indexes *bitmap.Bitmap
}

// NewSystem creates a system able to serve capacity concurrent
// participants.
func NewSystem(capacity int) *System {
	return &System{
		indexes: bitmap.New(bitmap.SingleRegion, capacity, bitmap.FullUsage),
	}
}

// AssignIndex hands out a free index. When every index is taken it returns
// InvalidIndex and an error wrapping base.ErrCapacityExhausted; the system
// was sized too small for the number of participants.
func (s *System) AssignIndex() (Index, error) {
	e := s.indexes.GetEntry()
	if e == bitmap.NoEntry {
		return InvalidIndex, errors.Wrapf(base.ErrCapacityExhausted,
			"epoch: all %d transaction indexes are assigned", s.indexes.Capacity())
	}
	return Index(e), nil
}

// FreeIndex returns the index to the system and resets it to InvalidIndex.
func (s *System) FreeIndex(idx *Index) {
	if *idx == InvalidIndex {
		return
	}
	s.indexes.FreeEntry(int(*idx))
	*idx = InvalidIndex
}

// Capacity returns the maximum number of concurrent participants.
func (s *System) Capacity() int {
	return s.indexes.Capacity()
}

// InUse returns the number of assigned indexes.
func (s *System) InUse() int {
	return s.indexes.InUse()
}
