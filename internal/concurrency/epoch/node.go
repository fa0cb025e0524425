// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

// Reclaimable is implemented by every node that can be retired to a
// Descriptor. The link accessor is unexported, so the only way to satisfy
// the interface is to embed Link; Reclaim is the hook run once the node is
// provably unobserved.
//
// Two implementations exist: Node, whose reclamation drops the last
// reference and lets the Go collector free it, and freelist.Node, which
// recycles itself into its pool.
type Reclaimable interface {
	retiredLink() *Link
	Reclaim()
}

// Link is the retirement bookkeeping embedded in reclaimable nodes. The
// retirement id is written once, by the descriptor, when the node is
// retired. The next pointer is owned by the retired list while the node
// sits on it.
type Link struct {
	retireID ID
	next     Reclaimable
}

func (l *Link) retiredLink() *Link { return l }

// RetireID returns the id the node was retired under, or 0 if it was never
// retired.
func (l *Link) RetireID() ID { return l.retireID }

// Node is the default reclaimable node. Reclaiming it runs OnReclaim, if
// set, and releases the descriptor's reference.
type Node struct {
	Link
	OnReclaim func()
}

var _ Reclaimable = (*Node)(nil)

// Reclaim implements Reclaimable.
func (n *Node) Reclaim() {
	if n.OnReclaim != nil {
		n.OnReclaim()
	}
}
