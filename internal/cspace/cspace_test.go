package cspace

import (
	"testing"

	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/objtable"
	"github.com/ricoqos/chick/internal/vspace"
)

// TestGuardedLookup: root CNode radix=4, guard_bits=0; slot 5 holds a
// child CNode radix=8, guard_bits=4, guard=0b1010.
func TestGuardedLookup(t *testing.T) {
	reg := objtable.New()
	SetRegistry(reg)
	defer SetRegistry(nil)

	root := NewCNode(0x1000, 4, 0, 0)
	child := NewCNode(0x2000, 8, 4, 0b1010)
	reg.Register(child.Paddr, child)
	*root.Slot(0x5) = child.Cap()

	// Root consumes 4 bits (index 0x5), child consumes 4 guard bits
	// (0xA) + 8 radix bits (0x17) = 12 more: 16 of the requested 32 bits
	// are consumed in all, so this resolution is never Final() — the
	// remaining 16 bits are what a specific-depth caller would accept.
	// Only slot identity is asserted here.
	cptr := uint32(0x5)<<28 | uint32(0xA)<<24 | uint32(0x17)<<16
	res, err := ResolvePointer(root, cptr, 32)
	if err != kernelerr.None {
		t.Fatalf("ResolvePointer: %s", err)
	}
	if res.Slot != child.Slot(0x17) {
		t.Fatalf("resolved slot = %p, want child.Slot(0x17) = %p", res.Slot, child.Slot(0x17))
	}

	badCptr := uint32(0x5)<<28 | uint32(0xB)<<24 | uint32(0x17)<<16
	if _, err := ResolvePointer(root, badCptr, 32); err != kernelerr.LookupError {
		t.Fatalf("bad guard lookup = %s, want LookupError", err)
	}

	// Deterministic: the same pointer resolves to the same slot identity
	// every time.
	for i := 0; i < 3; i++ {
		again, err := ResolvePointer(root, cptr, 32)
		if err != kernelerr.None || again.Slot != res.Slot {
			t.Fatalf("repeat lookup %d = (%p, %s), want (%p, None)", i, again.Slot, err, res.Slot)
		}
	}
}

// TestMintCNode derives a narrower-guard CNode capability and checks
// both that the derivation itself is correct (MDB splice, guard/radix on
// the shared backing object) and that the result actually composes into
// a working multi-level lookup.
func TestMintCNode(t *testing.T) {
	reg := objtable.New()
	SetRegistry(reg)
	defer SetRegistry(nil)

	root := NewCNode(0x1000, 4, 0, 0)
	child := NewCNode(0x2000, 8, 24, 0) // as Retype alone would shape it: consumes the rest by itself
	reg.Register(child.Paddr, child)

	srcSlot := root.Slot(0x5)
	*srcSlot = child.Cap()
	dstSlot := root.Slot(0x6)

	if err := MintCNode(srcSlot, dstSlot, 4, 0b1010, reg); err != kernelerr.None {
		t.Fatalf("MintCNode: %s", err)
	}
	if dstSlot.Type != capobj.TypeCNode {
		t.Fatalf("dstSlot.Type = %s, want CNode", dstSlot.Type)
	}
	if dstSlot.Prev != srcSlot {
		t.Fatal("minted cap not spliced into the MDB after the source")
	}
	if child.GuardBits != 4 || child.Guard != 0b1010 {
		t.Fatalf("child guard = (%d, %#b), want (4, 0b1010)", child.GuardBits, child.Guard)
	}

	cptr := uint32(0x5)<<28 | uint32(0xA)<<24 | uint32(0x17)<<16
	res, err := ResolvePointer(root, cptr, 32)
	if err != kernelerr.None {
		t.Fatalf("ResolvePointer through minted child: %s", err)
	}
	if res.Slot != child.Slot(0x17) {
		t.Fatalf("resolved slot = %p, want child.Slot(0x17) = %p", res.Slot, child.Slot(0x17))
	}

	if err := MintCNode(srcSlot, dstSlot, 4, 0, reg); err != kernelerr.SlotNotEmpty {
		t.Fatalf("Mint into occupied slot = %s, want SlotNotEmpty", err)
	}
}

func TestMintCNodeRejectsNonCNodeSource(t *testing.T) {
	reg := objtable.New()
	srcSlot := &capobj.CapRaw{Type: capobj.TypeFrame, Paddr: 0x9000}
	dstSlot := &capobj.CapRaw{}
	if err := MintCNode(srcSlot, dstSlot, 4, 0, reg); err != kernelerr.CapabilityTypeError {
		t.Fatalf("Mint from Frame = %s, want CapabilityTypeError", err)
	}
}

func TestMintCNodeRejectsOverflowingGuard(t *testing.T) {
	reg := objtable.New()
	child := NewCNode(0x2000, 8, 24, 0)
	reg.Register(child.Paddr, child)
	srcSlot := &capobj.CapRaw{}
	*srcSlot = child.Cap()
	dstSlot := &capobj.CapRaw{}
	if err := MintCNode(srcSlot, dstSlot, 25, 0, reg); err != kernelerr.InvalidValue {
		t.Fatalf("guard_bits+radix_bits=33 = %s, want InvalidValue", err)
	}
}

func TestLookupInvalidDepth(t *testing.T) {
	root := NewCNode(0x1000, 4, 0, 0)
	if _, err := ResolvePointer(root, 0, 0); err != kernelerr.InvalidValue {
		t.Fatalf("depth=0 = %s, want InvalidValue", err)
	}
	if _, err := ResolvePointer(root, 0, 33); err != kernelerr.InvalidValue {
		t.Fatalf("depth=33 = %s, want InvalidValue", err)
	}
}

func TestLookupZeroRadixResolvesIndexZero(t *testing.T) {
	root := NewCNode(0x1000, 0, 0, 0)
	res, err := ResolvePointer(root, 0, 32)
	if err != kernelerr.None {
		t.Fatalf("ResolvePointer: %s", err)
	}
	if res.Slot != root.Slot(0) {
		t.Fatal("zero-radix CNode did not resolve to slot 0")
	}
}

func TestLookupPartialDepthReturnsNonFinal(t *testing.T) {
	root := NewCNode(0x1000, 4, 0, 0)
	*root.Slot(0x5) = capobj.CapRaw{Type: capobj.TypeTcb, Paddr: 0x9000}
	res, err := ResolvePointer(root, uint32(0x5)<<28, 8)
	if err != kernelerr.None {
		t.Fatalf("ResolvePointer: %s", err)
	}
	if res.Final() {
		t.Fatal("want a non-final resolution (depth 8 > root's 4 consumed bits)")
	}
	if res.Remaining != 4 {
		t.Fatalf("Remaining = %d, want 4", res.Remaining)
	}
}

// TestRetypeBounds: a 2^16 untyped holds exactly sixteen 4 KiB frames.
func TestRetypeBounds(t *testing.T) {
	reg := objtable.New()
	backing := make([]byte, 1<<16)
	u := NewUntyped(0x1_0000, 16, false, backing)
	untypedSlot := &capobj.CapRaw{Type: capobj.TypeUntyped, Paddr: u.Paddr}

	slots := make([]*capobj.CapRaw, 16)
	for i := range slots {
		slots[i] = &capobj.CapRaw{}
	}
	if err := Retype(untypedSlot, u, capobj.TypeFrame, 12, slots, reg, nil); err != kernelerr.None {
		t.Fatalf("Retype 16 frames: %s", err)
	}
	if u.FreeOffset != 16*4096 {
		t.Fatalf("FreeOffset = %d, want %d", u.FreeOffset, 16*4096)
	}
	for i, s := range slots {
		if s.Type != capobj.TypeFrame {
			t.Fatalf("slot %d type = %s, want Frame", i, s.Type)
		}
		// Each slot is spliced directly after untypedSlot in turn, so the
		// last one follows untypedSlot and every earlier one follows its
		// successor in slots.
		want := untypedSlot
		if i+1 < len(slots) {
			want = slots[i+1]
		}
		if s.Prev != want {
			t.Fatalf("slot %d not spliced at its place in the MDB chain after untypedSlot", i)
		}
	}

	one := []*capobj.CapRaw{{}}
	if err := Retype(untypedSlot, u, capobj.TypeFrame, 12, one, reg, nil); err != kernelerr.OutOfMemory {
		t.Fatalf("Retype past capacity = %s, want OutOfMemory", err)
	}
	if one[0].Type != capobj.TypeNull {
		t.Fatal("failed retype must not touch destination slot")
	}
}

func TestRetypeSlotNotEmpty(t *testing.T) {
	backing := make([]byte, 1<<16)
	u := NewUntyped(0x1_0000, 16, false, backing)
	untypedSlot := &capobj.CapRaw{Type: capobj.TypeUntyped, Paddr: u.Paddr}
	occupied := []*capobj.CapRaw{{Type: capobj.TypeTcb}}
	if err := Retype(untypedSlot, u, capobj.TypeFrame, 12, occupied, objtable.New(), nil); err != kernelerr.SlotNotEmpty {
		t.Fatalf("Retype into occupied slot = %s, want SlotNotEmpty", err)
	}
}

func TestRetypeDeviceUntypedRejectsTcb(t *testing.T) {
	backing := make([]byte, 1<<16)
	u := NewUntyped(0x1_0000, 16, true, backing)
	untypedSlot := &capobj.CapRaw{Type: capobj.TypeUntyped, Paddr: u.Paddr}
	dest := []*capobj.CapRaw{{}}
	if err := Retype(untypedSlot, u, capobj.TypeTcb, 0, dest, objtable.New(), nil); err != kernelerr.InvalidValue {
		t.Fatalf("device untyped -> Tcb = %s, want InvalidValue", err)
	}
}

type fakeASIDs struct{ n uint16 }

func (f *fakeASIDs) Alloc() (uint16, kernelerr.SysError) {
	f.n++
	return f.n, kernelerr.None
}

func TestRetypeVSpaceMintsASIDAndRegisters(t *testing.T) {
	reg := objtable.New()
	backing := make([]byte, 1<<16)
	u := NewUntyped(0x1_0000, 16, false, backing)
	untypedSlot := &capobj.CapRaw{Type: capobj.TypeUntyped, Paddr: u.Paddr}
	dest := []*capobj.CapRaw{{}}
	asids := &fakeASIDs{}

	if err := Retype(untypedSlot, u, capobj.TypeVSpace, 0, dest, reg, asids); err != kernelerr.None {
		t.Fatalf("Retype VSpace: %s", err)
	}
	if dest[0].Arg2 != 1 {
		t.Fatalf("minted VSpace ASID = %d, want 1", dest[0].Arg2)
	}
	obj, ok := reg.Lookup(dest[0].Paddr)
	if !ok {
		t.Fatal("minted VSpace not registered in object table")
	}
	if _, ok := obj.(*vspace.VSpace); !ok {
		t.Fatalf("registered object has type %T, want *vspace.VSpace", obj)
	}
}

func TestRevokeNullifiesDescendantsOnce(t *testing.T) {
	parent := &capobj.CapRaw{Type: capobj.TypeFrame, Paddr: 0x1000}
	child1 := &capobj.CapRaw{Type: capobj.TypeFrame, Paddr: 0x1000}
	child2 := &capobj.CapRaw{Type: capobj.TypeFrame, Paddr: 0x1000}
	InsertAfter(parent, child1)
	InsertAfter(parent, child2)

	Revoke(parent)

	if !child1.Null() || !child2.Null() {
		t.Fatal("Revoke did not nullify all descendants")
	}
	if parent.Null() {
		t.Fatal("Revoke must not nullify the node itself")
	}
	if parent.Next != nil {
		t.Fatal("Revoke must clear the node's forward link")
	}

	// Idempotent: second call is a no-op.
	Revoke(parent)
	if parent.Next != nil {
		t.Fatal("second Revoke mutated an already-revoked chain")
	}
}

// TestMDBChainAcyclic: following Next from any node terminates within the
// number of nodes ever spliced in.
func TestMDBChainAcyclic(t *testing.T) {
	nodes := make([]*capobj.CapRaw, 8)
	for i := range nodes {
		nodes[i] = &capobj.CapRaw{Type: capobj.TypeFrame, Paddr: uint64(i)}
	}
	for _, n := range nodes[1:] {
		InsertAfter(nodes[0], n)
	}
	Remove(nodes[3])
	Remove(nodes[5])

	for start, n := range nodes {
		if n.Next == nil && n.Prev == nil && start != 0 {
			continue // removed, isolated
		}
		steps := 0
		for c := n; c != nil; c = c.Next {
			steps++
			if steps > len(nodes) {
				t.Fatalf("walk from node %d exceeded %d steps: cycle", start, len(nodes))
			}
		}
	}
}

func TestMDBInsertAndRemove(t *testing.T) {
	a := &capobj.CapRaw{Type: capobj.TypeFrame}
	b := &capobj.CapRaw{Type: capobj.TypeFrame}
	c := &capobj.CapRaw{Type: capobj.TypeFrame}
	InsertAfter(a, b)
	InsertAfter(a, c)
	if a.Next != c || c.Prev != a || c.Next != b || b.Prev != c {
		t.Fatal("InsertAfter did not splice in the expected order")
	}
	Remove(c)
	if a.Next != b || b.Prev != a {
		t.Fatal("Remove did not re-link around the removed node")
	}
	if c.Next != nil || c.Prev != nil {
		t.Fatal("Remove did not isolate the removed node")
	}
}
