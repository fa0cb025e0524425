// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package index provides a lock-free hash index whose buckets are recycled
// through an epoch-protected freelist.
//
// Each bucket slot holds a pointer to an immutable snapshot of the bucket's
// entries. Writers copy the current snapshot into a node claimed from the
// freelist, apply their change and publish it with a single CAS. The
// replaced snapshot is retired and returns to the freelist once no reader
// can still be scanning it.
//
// # Key Features
//
//   - Lock-free reads and writes using atomic operations only
//   - Fixed bucket count (power of 2), xxhash for keys longer than 8 bytes
//   - Snapshot buckets, so readers never observe a half-applied write
//   - Bucket storage reused through the freelist instead of reallocated
//
// # Usage Examples
//
//	sys := epoch.NewSystem(64)
//	idx, _ := sys.AssignIndex()
//	defer sys.FreeIndex(&idx)
//
//	h := index.NewHashIndex[string](sys, 1024)
//	defer h.Close()
//
//	h.Put(idx, []byte("my_key"), "my_value")
//	if v, ok := h.Get(idx, []byte("my_key")); ok {
//	    fmt.Println(v)
//	}
//	h.Delete(idx, []byte("my_key"))
//
// # Dangers and Warnings
//
//   - **Bucket Size**: The number of buckets must be a power of 2. Invalid sizes will panic.
//   - **Transaction Index**: Every call takes the caller's transaction index. Two
//     goroutines must never use the same index at the same time.
//   - **Write Cost**: A write copies the whole bucket. Keep the bucket count
//     close to the expected key count.
//   - **Values**: Values are copied in and out. Pointer values are shared, and
//     whatever they point to is not protected by the index.
package index

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
	"github.com/kianostad/lfreclaim/internal/storage/freelist"
)

type entry[V any] struct {
	key   []byte
	value V
}

// bucket is an immutable snapshot once published.
type bucket[V any] struct {
	entries []entry[V]
}

// Reset drops the entries but keeps the backing array for the next writer.
func (b *bucket[V]) Reset() {
	clear(b.entries)
	b.entries = b.entries[:0]
}

func (b *bucket[V]) find(key []byte) int {
	for i := range b.entries {
		if bytesEqual(b.entries[i].key, key) {
			return i
		}
	}
	return -1
}

type snapshot[V any] = freelist.Node[bucket[V]]

// HashIndex is a lock-free hash table with fixed-size buckets.
type HashIndex[V any] struct {
	pool    *freelist.Freelist[bucket[V], *bucket[V]]
	buckets []atomic.Pointer[snapshot[V]]
	size    uint64
	mask    uint64
	count   atomic.Int64
}

// NewHashIndex creates a new hash index with the given size (must be power
// of 2). Bucket snapshots come from a freelist registered on sys.
func NewHashIndex[V any](sys *epoch.System, size uint64, opts ...freelist.Option) *HashIndex[V] {
	if size == 0 || (size&(size-1)) != 0 {
		panic("size must be a power of 2")
	}

	blockSize := int(size / 4)
	if blockSize < 16 {
		blockSize = 16
	}
	return &HashIndex[V]{
		pool:    freelist.New[bucket[V]](sys, blockSize, 4, opts...),
		buckets: make([]atomic.Pointer[snapshot[V]], size),
		size:    size,
		mask:    size - 1,
	}
}

// hash computes the hash of the key and returns the bucket index.
func (h *HashIndex[V]) hash(key []byte) uint64 {
	if len(key) <= 8 {
		var hash uint64
		for i, b := range key {
			hash = hash*31 + uint64(b) + uint64(i)
		}
		return hash & h.mask
	}

	return xxhash.Sum64(key) & h.mask
}

// enter opens a read window unless the caller already has one open.
func (h *HashIndex[V]) enter(idx epoch.Index) (*epoch.Descriptor, bool) {
	d := h.pool.Table().Descriptor(idx)
	if d.IsParticipating() {
		return d, false
	}
	d.StartRead()
	return d, true
}

// Get returns the value stored under key.
func (h *HashIndex[V]) Get(idx epoch.Index, key []byte) (V, bool) {
	d, local := h.enter(idx)
	defer func() {
		if local {
			d.End()
		}
	}()

	var zero V
	s := h.buckets[h.hash(key)].Load()
	if s == nil {
		return zero, false
	}
	if i := s.Value.find(key); i >= 0 {
		return s.Value.entries[i].value, true
	}
	return zero, false
}

// Put stores value under key and reports whether an existing value was
// replaced.
func (h *HashIndex[V]) Put(idx epoch.Index, key []byte, value V) bool {
	owned := append([]byte(nil), key...)
	var replaced bool
	h.update(idx, key, func(dst *bucket[V], pos int) bool {
		if pos >= 0 {
			dst.entries[pos].value = value
			replaced = true
			return true
		}
		dst.entries = append(dst.entries, entry[V]{key: owned, value: value})
		replaced = false
		return true
	})
	if !replaced {
		h.count.Add(1)
	}
	return replaced
}

// Delete removes key and reports whether it was present.
func (h *HashIndex[V]) Delete(idx epoch.Index, key []byte) bool {
	var removed bool
	h.update(idx, key, func(dst *bucket[V], pos int) bool {
		removed = pos >= 0
		if !removed {
			return false
		}
		last := len(dst.entries) - 1
		dst.entries[pos] = dst.entries[last]
		dst.entries[last] = entry[V]{}
		dst.entries = dst.entries[:last]
		return true
	})
	if removed {
		h.count.Add(-1)
	}
	return removed
}

// update copies the key's bucket into a snapshot, applies fn to the copy
// and publishes it. The snapshot is the one left in the descriptor's saved
// slot by an earlier no-op, or a freshly claimed one. fn returns false to
// leave the bucket unchanged. A lost CAS reapplies fn to a fresh copy.
func (h *HashIndex[V]) update(idx epoch.Index, key []byte, fn func(dst *bucket[V], pos int) bool) {
	d, local := h.enter(idx)
	defer func() {
		if local {
			d.End()
		}
	}()

	slot := &h.buckets[h.hash(key)]
	n, _ := d.TakeSaved().(*snapshot[V])
	if n == nil {
		n = h.pool.Claim(idx)
	}
	for {
		old := slot.Load()
		n.Value.entries = n.Value.entries[:0]
		if old != nil {
			n.Value.entries = append(n.Value.entries, old.Value.entries...)
		}
		if !fn(&n.Value, n.Value.find(key)) {
			// Never published, so it can serve this descriptor's next write.
			n.Value.Reset()
			d.Save(n)
			return
		}
		if slot.CompareAndSwap(old, n) {
			if old != nil {
				h.pool.Retire(idx, old)
			}
			return
		}
	}
}

// bytesEqual compares two byte slices for equality.
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Size returns the number of buckets in the index.
func (h *HashIndex[V]) Size() uint64 {
	return h.size
}

// Len returns the number of keys in the index.
func (h *HashIndex[V]) Len() int {
	return int(h.count.Load())
}

// BucketCount returns the number of entries in a specific bucket (for debugging).
func (h *HashIndex[V]) BucketCount(idx epoch.Index, bucketIdx uint64) int {
	if bucketIdx >= h.size {
		return 0
	}

	d, local := h.enter(idx)
	defer func() {
		if local {
			d.End()
		}
	}()
	if s := h.buckets[bucketIdx].Load(); s != nil {
		return len(s.Value.entries)
	}
	return 0
}

// Table returns the transaction table guarding the bucket snapshots.
func (h *HashIndex[V]) Table() *epoch.Table {
	return h.pool.Table()
}

// Stats returns the counters of the freelist backing the bucket snapshots.
func (h *HashIndex[V]) Stats() freelist.Stats {
	return h.pool.Stats()
}

// CheckInvariants verifies the snapshot freelist's bookkeeping.
func (h *HashIndex[V]) CheckInvariants() error {
	return h.pool.CheckInvariants()
}

// Close releases the index. No participant may use it afterwards.
func (h *HashIndex[V]) Close() {
	for i := range h.buckets {
		h.buckets[i].Store(nil)
	}
	h.pool.Close()
}
