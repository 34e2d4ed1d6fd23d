package cspace

import "github.com/ricoqos/chick/internal/capobj"

// InsertAfter splices child into the derivation chain immediately after
// parent. child must be isolated (both links nil); minting always targets
// a fresh Null slot, so this is never asked to re-parent an
// already-linked node.
func InsertAfter(parent, child *capobj.CapRaw) {
	next := parent.Next
	parent.Next = child
	child.Prev = parent
	child.Next = next
	if next != nil {
		next.Prev = child
	}
}

// Remove unlinks node from whatever chain it sits in, leaving it
// isolated.
func Remove(node *capobj.CapRaw) {
	if node.Prev != nil {
		node.Prev.Next = node.Next
	}
	if node.Next != nil {
		node.Next.Prev = node.Prev
	}
	node.Prev = nil
	node.Next = nil
}

// Revoke nullifies every strict descendant of node and unlinks it from
// the chain in one forward pass. node itself is left untouched.
// Idempotent: a second call sees node.Next already nil and does nothing.
func Revoke(node *capobj.CapRaw) {
	child := node.Next
	for child != nil {
		next := child.Next
		child.Zero()
		child = next
	}
	node.Next = nil
}
