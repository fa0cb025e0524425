// Licensed under the MIT License. See LICENSE file in the project root for details.

package freelist

import (
	"math"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// arena owns every node of a freelist. Nodes are allocated a block at a
// time and never freed, so a handle read from a list head stays
// dereferenceable even if the node was popped and recycled in between.
//
// Blocks are addressed through a copy-on-write directory. A block's slot is
// reserved up front, so concurrent growers install their blocks into
// distinct slots of whatever directory is current.
type arena[T any] struct {
	blockSize uint32
	owner     recycler[T]
	dir       atomic.Pointer[[]*[]Node[T]]
	reserved  atomic.Uint32
}

func (a *arena[T]) init(blockSize int, owner recycler[T]) {
	a.blockSize = uint32(blockSize)
	a.owner = owner
	empty := make([]*[]Node[T], 0)
	a.dir.Store(&empty)
}

// node returns the node addressed by h, which must not be the nil handle.
func (a *arena[T]) node(h handle) *Node[T] {
	i := uint32(h) - 1
	blk := (*a.dir.Load())[i/a.blockSize]
	return &(*blk)[i%a.blockSize]
}

// grow allocates a block, links its nodes in order and returns the chain's
// first and last node.
func (a *arena[T]) grow() (head, tail *Node[T]) {
	b := a.reserved.Add(1) - 1
	if uint64(b+1)*uint64(a.blockSize) > math.MaxUint32 {
		panic(errors.AssertionFailedf("freelist: arena exhausted after %d blocks of %d nodes", b, a.blockSize))
	}

	nodes := make([]Node[T], a.blockSize)
	base := b * a.blockSize
	for i := range nodes {
		n := &nodes[i]
		n.owner = a.owner
		n.id = handle(base + uint32(i) + 1)
		if i+1 < len(nodes) {
			n.next.Store(uint32(n.id) + 1)
		}
	}

	for {
		old := a.dir.Load()
		size := len(*old)
		if int(b) >= size {
			size = int(b) + 1
		}
		dir := make([]*[]Node[T], size)
		copy(dir, *old)
		dir[b] = &nodes
		if a.dir.CompareAndSwap(old, &dir) {
			break
		}
	}
	return &nodes[0], &nodes[len(nodes)-1]
}

// blocks returns the number of blocks reserved so far.
func (a *arena[T]) blocks() int {
	return int(a.reserved.Load())
}
