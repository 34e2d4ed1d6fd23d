package vspace

import (
	"testing"

	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/kernelerr"
)

func installChain(t *testing.T, v *VSpace, vaddr uint64) {
	t.Helper()
	if err := v.InstallTable(vaddr, PDPT, &Table{}); err != kernelerr.None {
		t.Fatalf("install PDPT: %s", err)
	}
	if err := v.InstallTable(vaddr, PD, &Table{}); err != kernelerr.None {
		t.Fatalf("install PD: %s", err)
	}
	if err := v.InstallTable(vaddr, PT, &Table{}); err != kernelerr.None {
		t.Fatalf("install PT: %s", err)
	}
}

// TestMapWalkUnmap4K drives the 4 KiB map/walk/unmap round trip.
func TestMapWalkUnmap4K(t *testing.T) {
	v := NewVSpace(1)
	const vaddr = 0x0000_0000_0040_0000
	const paddr = 0x20_0000

	installChain(t, v, vaddr)

	attr := VMAttr{Rights: capobj.Read | capobj.Write, User: true}
	if err := v.Map4K(vaddr, paddr, attr); err != kernelerr.None {
		t.Fatalf("Map4K: %s", err)
	}

	res, err := v.Walk(vaddr)
	if err != kernelerr.None {
		t.Fatalf("Walk: %s", err)
	}
	if res.Outcome != OutcomeMapped || res.Paddr != paddr || res.Size != capobj.Frame4K || res.Level != PT {
		t.Fatalf("Walk result = %+v, want Mapped{%#x, Small, PT}", res, paddr)
	}

	freedPaddr, size, err := v.Unmap(vaddr)
	if err != kernelerr.None {
		t.Fatalf("Unmap: %s", err)
	}
	if freedPaddr != paddr || size != capobj.Frame4K {
		t.Fatalf("Unmap = (%#x, %v), want (%#x, Frame4K)", freedPaddr, size, paddr)
	}

	if _, _, err := v.Unmap(vaddr); err != kernelerr.VSpaceCapNotMapped {
		t.Fatalf("second Unmap = %s, want VSpaceCapNotMapped", err)
	}
}

func TestMapMissingTable(t *testing.T) {
	v := NewVSpace(1)
	err := v.Map4K(0x40_0000, 0x1000, VMAttr{Rights: capobj.Read})
	if err != kernelerr.VSpaceTableMiss {
		t.Fatalf("Map4K without installed tables = %s, want VSpaceTableMiss", err)
	}
}

func TestMapAlreadyMapped(t *testing.T) {
	v := NewVSpace(1)
	const vaddr = 0x40_0000
	installChain(t, v, vaddr)
	attr := VMAttr{Rights: capobj.Read}
	if err := v.Map4K(vaddr, 0x1000, attr); err != kernelerr.None {
		t.Fatalf("first map: %s", err)
	}
	if err := v.Map4K(vaddr, 0x2000, attr); err != kernelerr.VSpaceSlotOccupied {
		t.Fatalf("second map = %s, want VSpaceSlotOccupied", err)
	}
}

func TestNonCanonicalAddress(t *testing.T) {
	v := NewVSpace(1)
	if err := CheckCanonical(uint64(1) << 48); err != kernelerr.InvalidValue {
		t.Fatalf("CheckCanonical = %s, want InvalidValue", err)
	}
	if _, err := v.Walk(uint64(1) << 48); err != kernelerr.InvalidValue {
		t.Fatalf("Walk on non-canonical = %s, want InvalidValue", err)
	}
}

func TestFrameAtMostOneMapping(t *testing.T) {
	f := NewFrame(0x1000, capobj.Frame4K, capobj.WriteBack, false, make([]byte, capobj.Frame4K.Bytes()))
	if err := f.SetMapped(1, 0x40_0000); err != kernelerr.None {
		t.Fatalf("SetMapped: %s", err)
	}
	if err := f.SetMapped(2, 0x50_0000); err != kernelerr.FrameAlreadyMapped {
		t.Fatalf("second SetMapped = %s, want FrameAlreadyMapped", err)
	}
	if err := f.ClearMapped(1, 0x40_0000); err != kernelerr.None {
		t.Fatalf("ClearMapped: %s", err)
	}
	if f.IsMapped() {
		t.Fatal("frame still reports mapped after ClearMapped")
	}
}

func TestASIDPoolReservesZero(t *testing.T) {
	p := NewASIDPool()
	asid, err := p.Alloc()
	if err != kernelerr.None {
		t.Fatalf("Alloc: %s", err)
	}
	if asid == 0 {
		t.Fatal("Alloc returned reserved ASID 0")
	}
	p.Free(asid)
	asid2, _ := p.Alloc()
	if asid2 != asid+1 {
		t.Errorf("Alloc after Free = %d, want %d (the scan continues forward past the freed ASID)", asid2, asid+1)
	}
}

func TestShootdownCounted(t *testing.T) {
	v := NewVSpace(1)
	const vaddr = 0x40_0000
	installChain(t, v, vaddr)
	_ = v.Map4K(vaddr, 0x1000, VMAttr{Rights: capobj.Read})
	if got := v.ShootdownCount(vaddr); got != 1 {
		t.Errorf("ShootdownCount after map = %d, want 1", got)
	}
	_, _, _ = v.Unmap(vaddr)
	if got := v.ShootdownCount(vaddr); got != 2 {
		t.Errorf("ShootdownCount after unmap = %d, want 2", got)
	}
}
