// Package harness stands in for the hardware collaborators outside the
// kernel core: the boot stub, console, interrupt controller and timer,
// and panic handler. Where a bare-metal kernel reaches an x86_64
// register or a real DRAM offset, this package reaches a host-process
// primitive instead.
package harness

import (
	"fmt"

	"github.com/ricoqos/chick/internal/kernelerr"
	"golang.org/x/sys/unix"
)

// Arena is the host-process stand-in for physical RAM: one anonymous mmap
// region that internal/cspace's Untyped objects carve their Backing byte
// slices out of.
type Arena struct {
	mem []byte
}

// NewArena mmaps size bytes of anonymous, zero-filled memory to serve as
// the kernel's physical address space. size must be page-aligned; no
// rounding is performed since retype's own alignment checks already
// require power-of-two regions.
func NewArena(size int) (*Arena, error) {
	if size <= 0 {
		return nil, fmt.Errorf("harness: arena size must be positive, got %d", size)
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("harness: mmap arena: %w", err)
	}
	return &Arena{mem: mem}, nil
}

// Close unmaps the arena. Calling any other method afterward is undefined,
// same as dereferencing a freed Untyped region would be.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Size reports the arena's total byte length.
func (a *Arena) Size() int { return len(a.mem) }

// Slice carves out the byte range [paddr, paddr+length) as the Backing
// slice for an Untyped region. Bounds are checked here rather than
// trusted from the caller, since a bad boot-time region table must not
// panic the harness.
func (a *Arena) Slice(paddr uint64, length uint64) ([]byte, kernelerr.SysError) {
	end := paddr + length
	if end < paddr || end > uint64(len(a.mem)) {
		return nil, kernelerr.RangeError
	}
	return a.mem[paddr:end], kernelerr.None
}

// Protect toggles write access on the given byte range via mprotect,
// simulating the device-memory vs normal-memory retype restriction
// (a device untyped only yields Frame/Untyped) at the host
// level: a device region backing a mapped Frame is left read-write (a
// stand-in for MMIO), while marking a region read-only models the
// immutable-after-retype boot image pages the bootimage loader installs.
func (a *Arena) Protect(paddr, length uint64, writable bool) error {
	end := paddr + length
	if end < paddr || end > uint64(len(a.mem)) {
		return fmt.Errorf("harness: protect range [%d,%d) out of bounds", paddr, end)
	}
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mprotect(a.mem[paddr:end], prot)
}
