// Package cspace implements the guarded-radix capability lookup tree, the
// derivation/revocation graph threaded through CapRaw's prev/next links,
// and the Untyped.Retype operation that carves typed objects out of raw
// memory.
package cspace

import (
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/kernelerr"
)

// SlotBitWidth is log2 of one capability slot's size (32 bytes, rounded
// up to the next power of two stays 32 = 2^5).
const SlotBitWidth = 5

// CNode is the backing object a CNode capability's Paddr resolves to via
// the object table: a flat slot array plus the radix/guard shape also
// mirrored in the capability's arg1/arg2 words (capobj.CNodeArgs). Lookup
// resolves each CNode capability to this object through the object table
// and reads the radix/guard shape from the object.
type CNode struct {
	Paddr     uint64
	Slots     []capobj.CapRaw
	RadixBits uint8
	GuardBits uint8
	Guard     uint64
}

// NewCNode allocates a zeroed CNode object with 2^radixBits slots.
func NewCNode(paddr uint64, radixBits, guardBits uint8, guard uint64) *CNode {
	return &CNode{
		Paddr:     paddr,
		Slots:     make([]capobj.CapRaw, 1<<radixBits),
		RadixBits: radixBits,
		GuardBits: guardBits,
		Guard:     guard,
	}
}

// Cap builds the CapRaw that refers to n, for minting into a destination
// slot during retype.
func (n *CNode) Cap() capobj.CapRaw {
	args := capobj.CNodeArgs{RadixBits: n.RadixBits, GuardBits: n.GuardBits}
	return capobj.CapRaw{
		Type:   capobj.TypeCNode,
		Rights: capobj.AllRights,
		Paddr:  n.Paddr,
		Arg1:   n.Guard,
		Arg2:   args.Pack(),
	}
}

// Slot returns a pointer to entry index i. The slot's memory address is
// its identity in the derivation chain, so the MDB links are threaded
// through these pointers.
func (n *CNode) Slot(i uint64) *capobj.CapRaw {
	return &n.Slots[i]
}

// Lookup is the outcome of walking a capability pointer through one or
// more CNodes, distinguishing a final slot (remaining == 0) from a
// partial resolution that bottomed out on a non-CNode slot with bits
// still unconsumed. Callers doing a specific-depth lookup accept the
// latter; full-depth callers treat it as a failed lookup.
type Lookup struct {
	Slot      *capobj.CapRaw
	Remaining uint8 // bits of the pointer not yet consumed
}

// Final reports whether the lookup bottomed out with no bits left over.
func (l Lookup) Final() bool { return l.Remaining == 0 }

// ResolvePointer walks cptr (MSB-first, depth bits significant) starting
// at root: match each CNode's guard, consume its radix bits as a slot
// index, and descend until the depth is exhausted.
func ResolvePointer(root *CNode, cptr uint32, depth uint8) (Lookup, kernelerr.SysError) {
	if depth < 1 || depth > 32 {
		return Lookup{}, kernelerr.InvalidValue
	}

	node := root
	remaining := depth
	bitsConsumed := uint8(0)

	for {
		if node.GuardBits > 0 {
			if node.GuardBits > remaining {
				return Lookup{}, kernelerr.LookupError
			}
			got := extractTop(cptr, bitsConsumed, node.GuardBits)
			want := node.Guard & ((uint64(1) << node.GuardBits) - 1)
			if got != want {
				return Lookup{}, kernelerr.LookupError
			}
		}

		if uint16(node.GuardBits)+uint16(node.RadixBits) > uint16(remaining) {
			return Lookup{}, kernelerr.LookupError
		}

		var index uint64
		if node.RadixBits > 0 {
			index = extractTop(cptr, bitsConsumed+node.GuardBits, node.RadixBits)
		}
		// Zero-radix CNodes resolve index 0.

		consumed := node.GuardBits + node.RadixBits
		bitsConsumed += consumed
		remaining -= consumed

		slot := node.Slot(index)
		if remaining == 0 {
			return Lookup{Slot: slot, Remaining: 0}, kernelerr.None
		}
		if slot.Type == capobj.TypeCNode {
			child, ok := resolveChild(slot)
			if !ok {
				return Lookup{}, kernelerr.CSpaceNotFound
			}
			node = child
			continue
		}
		return Lookup{Slot: slot, Remaining: remaining}, kernelerr.None
	}
}

// extractTop pulls a w-bit window out of a 32-bit, MSB-first address
// space: the window starting skip bits from the top.
func extractTop(cptr uint32, skip, w uint8) uint64 {
	shift := 32 - int(skip) - int(w)
	mask := uint64(1)<<w - 1
	return (uint64(cptr) >> uint(shift)) & mask
}

// MintCNode derives a CNode capability from srcSlot into dstSlot with an
// explicit guard_bits/guard, narrowing the depth the backing CNode
// consumes on its own. Retype's own CNode mint always hands out a cap
// that consumes the entire remaining 32-bit logical depth by itself
// (guard_bits = 32 - radix_bits); this is the operation that lets a
// thread compose those CNodes into a multi-level tree. Mirrors
// grantMemory's narrowing-derivation pattern for Frames: dstSlot must be
// Null, srcSlot must already name a CNode, and guard_bits plus the
// backing CNode's own radix_bits must not exceed the 32-bit logical
// depth. The minted cap is spliced into the MDB immediately after
// srcSlot.
//
// The narrowed guard is written onto the shared backing CNode object
// (lookup reads guard/radix off the object a CNode capability's Paddr
// resolves to, not off the capability bits themselves — see
// ResolvePointer), so it takes effect for every capability pointing at
// that object, not only the freshly minted one. That is consistent with
// the single-writer kernel-entry discipline: only one mint can be in
// flight for a given CNode at a time, and the common case is minting a
// single narrower-guard capability once, immediately after retype,
// before any other capability to the same CNode is used.
func MintCNode(srcSlot, dstSlot *capobj.CapRaw, guardBits uint8, guard uint64, reg registry) kernelerr.SysError {
	if srcSlot.Type != capobj.TypeCNode {
		return kernelerr.CapabilityTypeError
	}
	if !dstSlot.Null() {
		return kernelerr.SlotNotEmpty
	}
	obj, ok := reg.Lookup(srcSlot.Paddr)
	if !ok {
		return kernelerr.CSpaceNotFound
	}
	cn, ok := obj.(*CNode)
	if !ok {
		return kernelerr.CapabilityTypeError
	}
	if uint16(guardBits)+uint16(cn.RadixBits) > 32 {
		return kernelerr.InvalidValue
	}

	cn.GuardBits = guardBits
	if guardBits == 0 {
		cn.Guard = 0
	} else {
		cn.Guard = guard & ((uint64(1) << guardBits) - 1)
	}

	*dstSlot = cn.Cap()
	InsertAfter(srcSlot, dstSlot)
	return kernelerr.None
}

// resolveChild turns a CNode capability into its backing *CNode through
// the registry installed with SetRegistry (the object table, in kernel
// wiring and in tests alike).
var resolveChild = func(slot *capobj.CapRaw) (*CNode, bool) {
	return defaultRegistry.lookupCNode(slot.Paddr)
}

// registry is the narrow seam cspace needs into the object table: just
// enough to turn a CNode capability's Paddr back into the *CNode the
// earlier retype registered there, without importing objtable's full
// surface or forcing a dependency the other direction.
type registry interface {
	Lookup(paddr uint64) (any, bool)
}

type resolverBox struct{ r registry }

func (b *resolverBox) lookupCNode(paddr uint64) (*CNode, bool) {
	if b.r == nil {
		return nil, false
	}
	obj, ok := b.r.Lookup(paddr)
	if !ok {
		return nil, false
	}
	cn, ok := obj.(*CNode)
	return cn, ok
}

var defaultRegistry = &resolverBox{}

// SetRegistry wires the object table cspace resolves CNode capabilities
// through. Called once during kernel boot wiring.
func SetRegistry(r registry) {
	defaultRegistry.r = r
}
