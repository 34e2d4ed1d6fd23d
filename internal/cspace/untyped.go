package cspace

import (
	"github.com/ricoqos/chick/internal/bits"
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/ipc"
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/tcb"
	"github.com/ricoqos/chick/internal/vspace"
)

// tcbBitWidth, vspaceBitWidth, endpointBitWidth are the fixed object
// sizes: Tcb is 1024 bytes, 10-bit aligned; VSpace is one 4 KiB page,
// 12-bit aligned. Endpoint is a fixed-size structural object like Tcb
// and VSpace, not a variable-sized one like CNode; it gets a 32-byte,
// 5-bit-aligned footprint, the smallest unit the kernel already
// allocates in powers of two.
const (
	tcbBitWidth      = 10
	vspaceBitWidth   = 12
	endpointBitWidth = 5
)

// ASIDAllocator is the narrow seam Retype needs to mint a fresh ASID for
// a new VSpace, wired to a single shared vspace.ASIDPool at boot.
type ASIDAllocator interface {
	Alloc() (uint16, kernelerr.SysError)
}

// objRegistry is the seam Retype needs to publish newly minted objects so
// later capability operations can resolve Paddr back to the live Go
// value, mirrored by the registry interface in cnode.go for lookup.
type objRegistry interface {
	Register(paddr uint64, obj any)
}

// Untyped is the backing object an Untyped capability's Paddr resolves
// to: a contiguous span of real bytes plus the monotonic free offset
// retype bumps and never rewinds.
type Untyped struct {
	Paddr      uint64
	BitSize    uint8
	Device     bool
	FreeOffset uint64
	Backing    []byte // length 2^BitSize; frames are carved out of this
}

// NewUntyped wraps a freshly-backed region. backing must be exactly
// 1<<bitSize bytes.
func NewUntyped(paddr uint64, bitSize uint8, device bool, backing []byte) *Untyped {
	return &Untyped{Paddr: paddr, BitSize: bitSize, Device: device, Backing: backing}
}

// Cap builds the CapRaw referring to u.
func (u *Untyped) Cap() capobj.CapRaw {
	args := capobj.UntypedArgs{BitSize: u.BitSize, Device: u.Device}
	return capobj.CapRaw{
		Type:   capobj.TypeUntyped,
		Rights: capobj.AllRights,
		Paddr:  u.Paddr,
		Arg2:   args.Pack(),
	}
}

// objectShape is what retype resolves per target type: the object's byte
// size and its required alignment, expressed as a bit shift
// (size = 1<<sizeBits, alignment = 1<<alignBits).
type objectShape struct {
	sizeBits  uint
	alignBits uint
	radix     uint8 // CNode only
}

func resolveShape(targetType capobj.ObjType, userBits uint) (objectShape, kernelerr.SysError) {
	switch targetType {
	case capobj.TypeFrame:
		if _, ok := capobj.FrameSizeFromUserBits(userBits); !ok {
			return objectShape{}, kernelerr.InvalidValue
		}
		return objectShape{sizeBits: userBits, alignBits: userBits}, kernelerr.None

	case capobj.TypeCNode:
		if userBits < SlotBitWidth || userBits > 48 {
			return objectShape{}, kernelerr.InvalidValue
		}
		radix := uint8(userBits) - SlotBitWidth
		if radix > 32 {
			// A CNode cannot consume more of the 32-bit logical depth
			// than exists, so guard length (32 - radix) would go
			// negative; reject before it does.
			return objectShape{}, kernelerr.InvalidValue
		}
		return objectShape{
			sizeBits:  userBits,
			alignBits: userBits,
			radix:     radix,
		}, kernelerr.None

	case capobj.TypeTcb:
		return objectShape{sizeBits: tcbBitWidth, alignBits: tcbBitWidth}, kernelerr.None

	case capobj.TypeVSpace:
		return objectShape{sizeBits: vspaceBitWidth, alignBits: vspaceBitWidth}, kernelerr.None

	case capobj.TypeEndpoint:
		return objectShape{sizeBits: endpointBitWidth, alignBits: endpointBitWidth}, kernelerr.None

	case capobj.TypeUntyped:
		if userBits < 4 || userBits > 48 {
			return objectShape{}, kernelerr.InvalidValue
		}
		return objectShape{sizeBits: userBits, alignBits: userBits}, kernelerr.None

	default:
		// Reply and Interrupt capabilities are never retyped: Reply is
		// materialized by the kernel on Call, and Interrupt is owned by
		// the interrupt-controller collaborator outside this kernel
		// core.
		return objectShape{}, kernelerr.InvalidValue
	}
}

// Retype carves count objects of targetType out of u: check every
// destination slot is Null, resolve the per-type shape, align the free
// offset up, verify the span fits, mint each capability, and advance the
// offset. untypedSlot is the CNode slot currently holding u's own
// capability; new capabilities are spliced into the MDB immediately
// after it. A failure found before minting (a non-Null slot, a bad
// shape, too little space) touches no destination slot; an ASID
// allocation failure part way through a VSpace retype leaves the slots
// already minted in place and does not advance the offset.
// reg is the object table newly minted objects are published into;
// asids mints VSpace ASIDs.
func Retype(untypedSlot *capobj.CapRaw, u *Untyped, targetType capobj.ObjType, userBits uint, destSlots []*capobj.CapRaw, reg objRegistry, asids ASIDAllocator) kernelerr.SysError {
	for _, slot := range destSlots {
		if !slot.Null() {
			return kernelerr.SlotNotEmpty
		}
	}

	if u.Device && targetType != capobj.TypeFrame && targetType != capobj.TypeUntyped {
		return kernelerr.InvalidValue
	}

	shape, err := resolveShape(targetType, userBits)
	if err != kernelerr.None {
		return err
	}

	aligned := bits.AlignUp(u.FreeOffset, shape.alignBits)
	objSize := uint64(1) << shape.sizeBits
	count := uint64(len(destSlots))
	if bits.MulOverflows(count, objSize) {
		return kernelerr.OutOfMemory
	}
	span := count * objSize
	if bits.AddOverflows(aligned, span) {
		return kernelerr.OutOfMemory
	}
	required := aligned + span
	if required > (uint64(1) << u.BitSize) {
		return kernelerr.OutOfMemory
	}

	offset := aligned
	for _, slot := range destSlots {
		objPaddr := u.Paddr + offset
		cap, obj, err := mint(u, objPaddr, offset, objSize, targetType, shape, asids)
		if err != kernelerr.None {
			return err
		}
		*slot = cap
		InsertAfter(untypedSlot, slot)
		if obj != nil {
			reg.Register(objPaddr, obj)
		}
		offset += objSize
	}

	u.FreeOffset = required
	return kernelerr.None
}

func mint(u *Untyped, objPaddr, offset, objSize uint64, targetType capobj.ObjType, shape objectShape, asids ASIDAllocator) (capobj.CapRaw, any, kernelerr.SysError) {
	backing := u.Backing[offset : offset+objSize]

	switch targetType {
	case capobj.TypeFrame:
		size, _ := capobj.FrameSizeFromUserBits(uint(shape.sizeBits))
		f := vspace.NewFrame(objPaddr, size, capobj.WriteBack, u.Device, backing)
		args := capobj.FrameArgs{Size: size, Cache: capobj.WriteBack, Device: u.Device}
		return capobj.CapRaw{Type: capobj.TypeFrame, Rights: capobj.AllRights, Paddr: objPaddr, Arg2: args.Pack()}, f, kernelerr.None

	case capobj.TypeCNode:
		zero(backing)
		guardBits := uint8(32) - shape.radix
		cn := NewCNode(objPaddr, shape.radix, guardBits, 0)
		return cn.Cap(), cn, kernelerr.None

	case capobj.TypeTcb:
		t := tcb.New("")
		return capobj.CapRaw{Type: capobj.TypeTcb, Rights: capobj.AllRights, Paddr: objPaddr}, t, kernelerr.None

	case capobj.TypeVSpace:
		zero(backing)
		asid, err := asids.Alloc()
		if err != kernelerr.None {
			return capobj.CapRaw{}, nil, err
		}
		vs := vspace.NewVSpace(asid)
		return capobj.CapRaw{Type: capobj.TypeVSpace, Rights: capobj.AllRights, Paddr: objPaddr, Arg2: uint64(asid)}, vs, kernelerr.None

	case capobj.TypeEndpoint:
		ep := ipc.NewEndpoint(objPaddr)
		return capobj.CapRaw{Type: capobj.TypeEndpoint, Rights: capobj.AllRights, Paddr: objPaddr}, ep, kernelerr.None

	case capobj.TypeUntyped:
		child := NewUntyped(objPaddr, uint8(shape.sizeBits), u.Device, backing)
		return child.Cap(), child, kernelerr.None

	default:
		return capobj.CapRaw{}, nil, kernelerr.InvalidValue
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
