// Licensed under the MIT License. See LICENSE file in the project root for details.

package freelist

import (
	"sync/atomic"

	"github.com/kianostad/lfreclaim/internal/concurrency/epoch"
)

// Payload is the contract for values stored in a freelist: a pointer type
// whose Reset returns the value to its zero-equivalent state. Reset runs
// exactly once per recycle and must neither fail nor block.
type Payload[T any] interface {
	*T
	Reset()
}

// Initializer is implemented by payloads that need work done each time
// their node is claimed.
type Initializer interface {
	Init()
}

// recycler is the owner a reclaimed node returns itself to.
type recycler[T any] interface {
	recycle(n *Node[T])
}

// handle addresses a node in the arena. Zero is the nil handle.
type handle uint32

// Node wraps a payload value. Nodes live in the freelist's arena for the
// lifetime of the freelist and move between the available list, a caller
// and a descriptor's retired list.
type Node[T any] struct {
	epoch.Link
	owner recycler[T]
	id    handle
	// next links the node on the available or backbuffer list.
	next atomic.Uint32

	Value T
}

var _ epoch.Reclaimable = (*Node[int])(nil)

// Reclaim implements epoch.Reclaimable by recycling the node into its
// freelist.
func (n *Node[T]) Reclaim() {
	n.owner.recycle(n)
}
