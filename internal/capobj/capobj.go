// Package capobj defines the capability encoding shared by every kernel
// object: the 32-byte CapRaw record, its type tags, its rights bitset, and
// the per-type arg1/arg2 payload layouts.
package capobj

import "fmt"

// ObjType discriminates the tagged union a CapRaw carries. Per-type
// operations dispatch on this field with explicit switches, never by
// vtable.
type ObjType uint8

const (
	TypeNull ObjType = iota
	TypeUntyped
	TypeCNode
	TypeTcb
	TypeFrame
	TypeEndpoint
	TypeReply
	TypeVSpace
	TypeInterrupt
)

func (t ObjType) String() string {
	switch t {
	case TypeNull:
		return "Null"
	case TypeUntyped:
		return "Untyped"
	case TypeCNode:
		return "CNode"
	case TypeTcb:
		return "Tcb"
	case TypeFrame:
		return "Frame"
	case TypeEndpoint:
		return "Endpoint"
	case TypeReply:
		return "Reply"
	case TypeVSpace:
		return "VSpace"
	case TypeInterrupt:
		return "Interrupt"
	default:
		return "Unknown"
	}
}

// Rights is a bitset over the seven capability rights.
type Rights uint8

const (
	Read Rights = 1 << iota
	Write
	Execute
	Grant
	Control
	Send
	Receive
)

func (r Rights) Has(want Rights) bool { return r&want == want }

func (r Rights) String() string {
	letters := []struct {
		bit Rights
		ch  byte
	}{
		{Read, 'r'}, {Write, 'w'}, {Execute, 'x'}, {Grant, 'g'},
		{Control, 'c'}, {Send, 's'}, {Receive, 'v'},
	}
	out := make([]byte, 0, len(letters))
	for _, l := range letters {
		if r.Has(l.bit) {
			out = append(out, l.ch)
		} else {
			out = append(out, '-')
		}
	}
	return string(out)
}

// AllRights is every right set, the rights a freshly retyped capability
// carries before any mint narrows them.
const AllRights = Read | Write | Execute | Grant | Control | Send | Receive

// CapRaw is the 32-byte capability record. Its address-of-record identity
// (the address of the CNode slot holding it, not the struct's own field
// values) is what the MDB prev/next pointers link — see cspace.CNode.Slot.
type CapRaw struct {
	Type   ObjType
	Rights Rights
	_      [6]byte // padding to keep Paddr 8-byte aligned; part of the fixed layout
	Paddr  uint64
	Arg1   uint64
	Arg2   uint64
	Prev   *CapRaw // MDB: the derivation this cap was minted/copied/badged from
	Next   *CapRaw // MDB: the next derivation spliced after this one
}

// Null reports whether the slot this CapRaw sits in is empty.
func (c *CapRaw) Null() bool { return c.Type == TypeNull }

// Zero resets a CapRaw to the Null capability in place, used by revoke.
func (c *CapRaw) Zero() {
	c.Type = TypeNull
	c.Rights = 0
	c.Paddr = 0
	c.Arg1 = 0
	c.Arg2 = 0
	c.Prev = nil
	c.Next = nil
}

func (c *CapRaw) String() string {
	return fmt.Sprintf("%s{paddr=%#x rights=%s arg1=%#x arg2=%#x}",
		c.Type, c.Paddr, c.Rights, c.Arg1, c.Arg2)
}

// CapRef is a phantom-typed thin wrapper asserting T's ObjType matches the
// raw capability's type at construction: a compile-time-flavored
// assertion enforced once, at the boundary.
type CapRef[T interface{ ObjType() ObjType }] struct {
	Raw *CapRaw
}

// NewCapRef asserts raw.Type matches T's declared object type. This is the
// one place in the kernel allowed to panic: a mismatch here is a
// programmer error in kernel code, never a condition reachable from
// untrusted user input (those paths return CapabilityTypeError instead).
func NewCapRef[T interface{ ObjType() ObjType }](raw *CapRaw, zero T) CapRef[T] {
	if raw.Type != zero.ObjType() {
		panic(fmt.Sprintf("capobj: CapRef[%T] constructed over %s capability", zero, raw.Type))
	}
	return CapRef[T]{Raw: raw}
}
