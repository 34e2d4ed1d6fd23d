package vspace

import (
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/kernelerr"
)

// VMAttr carries the rights and cache policy a map operation derives PTE
// flags from.
type VMAttr struct {
	Rights capobj.Rights
	User   bool
	Cache  capobj.CachePolicy
}

func (a VMAttr) flags() (writable, user, noExecute bool) {
	return a.Rights.Has(capobj.Write), a.User, !a.Rights.Has(capobj.Execute)
}

// mapLeaf installs a leaf entry of the given size at vaddr->paddr. The
// intermediate levels strictly above the leaf must already be present
// (VSpaceTableMiss otherwise); the leaf slot itself must be absent
// (VSpaceSlotOccupied otherwise).
func (v *VSpace) mapLeaf(vaddr, paddr uint64, size capobj.FrameSize, attr VMAttr) kernelerr.SysError {
	if err := CheckCanonical(vaddr); err != kernelerr.None {
		return err
	}

	shift := size.UserBits()
	if vaddr&((1<<shift)-1) != 0 || paddr&((1<<shift)-1) != 0 {
		return kernelerr.AlignmentError
	}

	var leafLevel Level
	switch size {
	case capobj.Frame4K:
		leafLevel = PT
	case capobj.Frame2M:
		leafLevel = PD
	case capobj.Frame1G:
		leafLevel = PDPT
	default:
		return kernelerr.InvalidValue
	}

	table, err := v.tableAtLevel(vaddr, leafLevel)
	if err != kernelerr.None {
		return kernelerr.VSpaceTableMiss
	}

	idx := index(vaddr, leafLevel)
	e := &table.Entries[idx]
	if e.Present {
		return kernelerr.VSpaceSlotOccupied
	}

	writable, user, noExecute := attr.flags()
	e.Present = true
	e.Huge = leafLevel != PT
	e.Next = nil
	e.FramePaddr = paddr
	e.Writable = writable
	e.User = user
	e.NoExecute = noExecute
	e.Cache = attr.Cache

	v.invalidate(vaddr)
	return kernelerr.None
}

// Map4K maps a 4 KiB frame.
func (v *VSpace) Map4K(vaddr, paddr uint64, attr VMAttr) kernelerr.SysError {
	return v.mapLeaf(vaddr, paddr, capobj.Frame4K, attr)
}

// Map2M maps a 2 MiB frame.
func (v *VSpace) Map2M(vaddr, paddr uint64, attr VMAttr) kernelerr.SysError {
	return v.mapLeaf(vaddr, paddr, capobj.Frame2M, attr)
}

// Map1G maps a 1 GiB frame.
func (v *VSpace) Map1G(vaddr, paddr uint64, attr VMAttr) kernelerr.SysError {
	return v.mapLeaf(vaddr, paddr, capobj.Frame1G, attr)
}

// Unmap traverses to the leaf at vaddr and clears it, returning the freed
// (paddr, size). Intermediate tables are never freed — reclaiming them is
// left to revoking the owning VSpace.
func (v *VSpace) Unmap(vaddr uint64) (paddr uint64, size capobj.FrameSize, sysErr kernelerr.SysError) {
	res, err := v.Walk(vaddr)
	if err != kernelerr.None {
		return 0, 0, err
	}
	if res.Outcome != OutcomeMapped {
		return 0, 0, kernelerr.VSpaceCapNotMapped
	}

	var leafLevel Level
	switch res.Size {
	case capobj.Frame4K:
		leafLevel = PT
	case capobj.Frame2M:
		leafLevel = PD
	case capobj.Frame1G:
		leafLevel = PDPT
	}

	table, err := v.tableAtLevel(vaddr, leafLevel)
	if err != kernelerr.None {
		return 0, 0, kernelerr.VSpaceTableMiss
	}
	e := &table.Entries[index(vaddr, leafLevel)]
	freedPaddr := e.FramePaddr
	*e = PTE{}

	v.invalidate(vaddr)
	return freedPaddr, res.Size, kernelerr.None
}
