// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package bitmap provides a lock-free, fixed-capacity slot allocator.
//
// A Bitmap hands out small integer slots in [0, capacity). Each slot is one
// bit in an array of atomic 32-bit words: 0 means free, 1 means taken. Bits
// past the capacity in the last word are set to 1 at construction, so scans
// always work on whole words and never special-case the boundary.
//
// # Usage Examples
//
//	bm := bitmap.New(bitmap.SingleRegion, 64, bitmap.FullUsage)
//
//	slot := bm.GetEntry()
//	if slot == bitmap.NoEntry {
//	    // every slot is taken
//	}
//	defer bm.FreeEntry(slot)
//
// # Dangers and Warnings
//
//   - **Double Free**: Freeing a slot that is not taken corrupts the in-use
//     count. Invariant builds panic on it.
//   - **Sizing**: A failed GetEntry on a SingleRegion bitmap means the
//     capacity is too small for the workload; it is not a transient state.
//
// # Thread Safety
//
// GetEntry and FreeEntry only use atomic loads and compare-and-swap. No
// goroutine ever blocks on another one; a lost race restarts the scan.
package bitmap

import (
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/kianostad/lfreclaim/internal/invariants"
	"golang.org/x/sys/cpu"
)

// Style selects how the bitmap accounts usage and picks the scan start.
type Style int

const (
	// SingleRegion bitmaps must be fully usable (threshold 1.0). Scans start
	// at the word that was last allocated from or freed into.
	SingleRegion Style = iota
	// MultiRegion bitmaps accept any usage threshold in (0, 1] and spread
	// scans round-robin across words.
	MultiRegion
)

func (s Style) String() string {
	switch s {
	case SingleRegion:
		return "single-region"
	case MultiRegion:
		return "multi-region"
	default:
		return "unknown"
	}
}

const (
	// WordSize is the number of slots per word.
	WordSize = 32
	// FullUsage is the usage threshold that allows every slot to be taken.
	FullUsage = 1.0
	// NoEntry is returned by GetEntry when no slot could be taken.
	NoEntry = -1

	fullWord = ^uint32(0)
)

// Bitmap is a lock-free slot allocator.
type Bitmap struct {
	words     []atomic.Uint32
	capacity  int
	style     Style
	threshold float64
	maxInUse  int32

	_     cpu.CacheLinePad
	inUse atomic.Int32
	_     cpu.CacheLinePad
	hint  atomic.Uint32
	_     cpu.CacheLinePad
}

// New creates a bitmap with room for capacity slots. A SingleRegion bitmap
// requires threshold == FullUsage; a MultiRegion bitmap accepts any
// threshold in (0, 1]. Invalid arguments panic since they are programming
// errors.
func New(style Style, capacity int, threshold float64) *Bitmap {
	if capacity <= 0 {
		panic(errors.AssertionFailedf("bitmap: capacity must be positive, got %d", capacity))
	}
	if int64(capacity) > math.MaxInt32 {
		panic(errors.AssertionFailedf("bitmap: capacity %d exceeds the in-use counter range", capacity))
	}
	switch style {
	case SingleRegion:
		if threshold != FullUsage {
			panic(errors.AssertionFailedf("bitmap: single-region style requires full usage threshold, got %v", threshold))
		}
	case MultiRegion:
		if threshold <= 0 || threshold > FullUsage {
			panic(errors.AssertionFailedf("bitmap: usage threshold must be in (0, 1], got %v", threshold))
		}
	default:
		panic(errors.AssertionFailedf("bitmap: unknown style %d", style))
	}

	nwords := (capacity + WordSize - 1) / WordSize
	b := &Bitmap{
		words:     make([]atomic.Uint32, nwords),
		capacity:  capacity,
		style:     style,
		threshold: threshold,
		maxInUse:  int32(threshold * float64(capacity)),
	}
	if b.maxInUse == 0 {
		b.maxInUse = 1
	}

	// Pre-set the bits past capacity so they look taken.
	if tail := capacity % WordSize; tail != 0 {
		b.words[nwords-1].Store(fullWord << tail)
	}
	return b
}

// GetEntry takes a free slot and returns its index, or NoEntry when the
// usage threshold is reached or no word had a free bit.
func (b *Bitmap) GetEntry() int {
	// Reserve usage first so concurrent callers can never push the in-use
	// count past the threshold.
	if b.inUse.Add(1) > b.maxInUse {
		b.inUse.Add(-1)
		return NoEntry
	}

	nwords := uint32(len(b.words))
	var start uint32
	if b.style == MultiRegion {
		start = (b.hint.Add(1) - 1) % nwords
	} else {
		start = b.hint.Load() % nwords
	}

	for i := uint32(0); i < nwords; i++ {
		w := (start + i) % nwords
		for {
			word := b.words[w].Load()
			if word == fullWord {
				break
			}
			bit := uint32(bits.TrailingZeros32(^word))
			if !b.words[w].CompareAndSwap(word, word|uint32(1)<<bit) {
				// Lost the race for this word; rescan it.
				continue
			}
			if b.style == SingleRegion {
				b.hint.Store(w)
			}
			return int(w)*WordSize + int(bit)
		}
	}

	b.inUse.Add(-1)
	return NoEntry
}

// FreeEntry releases a slot previously returned by GetEntry.
func (b *Bitmap) FreeEntry(index int) {
	invariants.Assertf(index >= 0 && index < b.capacity, "bitmap: index %d out of range [0, %d)", index, b.capacity)
	if index < 0 || index >= b.capacity {
		return
	}

	w := index / WordSize
	mask := uint32(1) << uint(index%WordSize)
	for {
		word := b.words[w].Load()
		if word&mask == 0 {
			invariants.Assertf(false, "bitmap: double free of index %d", index)
			return
		}
		if b.words[w].CompareAndSwap(word, word&^mask) {
			break
		}
	}

	b.inUse.Add(-1)
	b.hint.Store(uint32(w))
}

// IsTaken reports whether the slot is currently handed out.
func (b *Bitmap) IsTaken(index int) bool {
	if index < 0 || index >= b.capacity {
		return false
	}
	return b.words[index/WordSize].Load()&(uint32(1)<<uint(index%WordSize)) != 0
}

// IsFull reports whether the usage threshold has been reached.
func (b *Bitmap) IsFull() bool {
	return b.inUse.Load() >= b.maxInUse
}

// Capacity returns the number of slots.
func (b *Bitmap) Capacity() int { return b.capacity }

// InUse returns the number of slots currently handed out. Under concurrency
// it may briefly include callers that reserved usage but have not finished
// their scan.
func (b *Bitmap) InUse() int { return int(b.inUse.Load()) }

// Style returns the bitmap style.
func (b *Bitmap) Style() Style { return b.style }
