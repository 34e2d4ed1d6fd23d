package vspace

import "github.com/ricoqos/chick/internal/kernelerr"

// ASIDPool is a real allocator over the 16-bit ASID space, ASID 0
// reserved.
type ASIDPool struct {
	used [1 << 16]bool
	next uint32
}

// NewASIDPool returns a pool with ASID 0 pre-marked used (reserved).
func NewASIDPool() *ASIDPool {
	p := &ASIDPool{next: 1}
	p.used[0] = true
	return p
}

// Alloc returns the next free ASID, scanning forward from the last
// allocation and wrapping at 1<<16.
func (p *ASIDPool) Alloc() (uint16, kernelerr.SysError) {
	for i := 0; i < 1<<16; i++ {
		candidate := (p.next + uint32(i)) % (1 << 16)
		if !p.used[candidate] {
			p.used[candidate] = true
			p.next = (candidate + 1) % (1 << 16)
			return uint16(candidate), kernelerr.None
		}
	}
	return 0, kernelerr.OutOfMemory
}

// Free releases asid back to the pool. Freeing ASID 0 or an already-free
// ASID is a no-op.
func (p *ASIDPool) Free(asid uint16) {
	if asid == 0 {
		return
	}
	p.used[asid] = false
}
