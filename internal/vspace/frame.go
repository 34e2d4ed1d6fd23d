package vspace

import (
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/kernelerr"
)

// Frame is the physical-page object a Frame capability's Paddr resolves
// to through the kernel object table. Mapping state lives here, not on
// the capability — every copy of a Frame cap shares the same mapping
// state, and the at-most-one-mapping invariant is enforced
// on this struct.
type Frame struct {
	Paddr  uint64
	Size   capobj.FrameSize
	Cache  capobj.CachePolicy
	Device bool

	// Bytes is the slice of the untyped's backing arena this frame
	// covers — real memory, not a kernel bookkeeping fiction, so a
	// mapped user thread actually reads and writes data through it.
	Bytes []byte

	mappedASID  uint16
	mappedVAddr uint64
}

// NewFrame wraps a backing byte slice as a Frame object. backing must be
// exactly size.Bytes() long.
func NewFrame(paddr uint64, size capobj.FrameSize, cache capobj.CachePolicy, device bool, backing []byte) *Frame {
	return &Frame{Paddr: paddr, Size: size, Cache: cache, Device: device, Bytes: backing}
}

// IsMapped reports whether this frame currently has a mapping.
func (f *Frame) IsMapped() bool {
	return f.mappedASID != 0
}

// MappedAt returns the (asid, vaddr) this frame is mapped at, valid only
// when IsMapped().
func (f *Frame) MappedAt() (uint16, uint64) {
	return f.mappedASID, f.mappedVAddr
}

// SetMapped records a new mapping, failing with FrameAlreadyMapped if one
// already exists — the enforcement point for the rule that a frame has
// at most one mapping at any time.
func (f *Frame) SetMapped(asid uint16, vaddr uint64) kernelerr.SysError {
	if f.IsMapped() {
		return kernelerr.FrameAlreadyMapped
	}
	f.mappedASID = asid
	f.mappedVAddr = vaddr
	return kernelerr.None
}

// ClearMapped clears the mapping recorded for (asid, vaddr). It is a
// caller error to call this for any other (asid, vaddr) pair than the one
// SetMapped recorded; callers only do so after a successful Unmap of the
// same vaddr.
func (f *Frame) ClearMapped(asid uint16, vaddr uint64) kernelerr.SysError {
	if !f.IsMapped() {
		return kernelerr.FrameNotMapped
	}
	if f.mappedASID != asid || f.mappedVAddr != vaddr {
		return kernelerr.InvalidOperation
	}
	f.mappedASID = 0
	f.mappedVAddr = 0
	return kernelerr.None
}
