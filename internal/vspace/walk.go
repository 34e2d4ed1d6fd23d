package vspace

import (
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/kernelerr"
)

// WalkOutcome distinguishes the two terminal shapes a walk can end in.
type WalkOutcome uint8

const (
	OutcomeNotMapped WalkOutcome = iota
	OutcomeMapped
)

// WalkResult is the outcome of walking a virtual address through the
// 4-level tree.
type WalkResult struct {
	Outcome WalkOutcome
	Level   Level // NotMapped: the level the walk stopped at. Mapped: the leaf's level.
	Paddr   uint64
	Size    capobj.FrameSize
}

// Walk follows PML4->PDPT->PD->PT for vaddr until it hits a not-present
// entry, a huge-page leaf, or a present PTE.
func (v *VSpace) Walk(vaddr uint64) (WalkResult, kernelerr.SysError) {
	if err := CheckCanonical(vaddr); err != kernelerr.None {
		return WalkResult{}, err
	}

	table := v.PML4
	for level := PML4; level >= PT; level-- {
		idx := index(vaddr, level)
		e := &table.Entries[idx]

		if !e.Present {
			return WalkResult{Outcome: OutcomeNotMapped, Level: level}, kernelerr.None
		}

		if level == PT {
			return WalkResult{Outcome: OutcomeMapped, Level: PT, Paddr: e.FramePaddr, Size: capobj.Frame4K}, kernelerr.None
		}

		if e.Huge {
			switch level {
			case PDPT:
				return WalkResult{Outcome: OutcomeMapped, Level: PDPT, Paddr: e.FramePaddr, Size: capobj.Frame1G}, kernelerr.None
			case PD:
				return WalkResult{Outcome: OutcomeMapped, Level: PD, Paddr: e.FramePaddr, Size: capobj.Frame2M}, kernelerr.None
			}
		}

		table = e.Next
	}

	// unreachable: the loop always returns by the time level == PT
	return WalkResult{}, kernelerr.InvalidOperation
}

// InstallTable places a new interior table entry at the requested level.
// The parent level must already be present; the target slot must be
// absent.
func (v *VSpace) InstallTable(vaddr uint64, level Level, table *Table) kernelerr.SysError {
	if err := CheckCanonical(vaddr); err != kernelerr.None {
		return err
	}
	if level < PT || level >= PML4 {
		return kernelerr.InvalidValue
	}

	parentLevel := level + 1
	parent, err := v.tableAtLevel(vaddr, parentLevel)
	if err != kernelerr.None {
		return err
	}

	idx := index(vaddr, parentLevel)
	e := &parent.Entries[idx]
	if e.Present {
		return kernelerr.VSpaceSlotOccupied
	}

	e.Present = true
	e.Huge = false
	e.Next = table
	return kernelerr.None
}

// tableAtLevel returns the table object that owns entries at the given
// level for vaddr, i.e. PML4 itself when level==PML4, or the table a
// present PML4/PDPT/PD entry points to otherwise.
func (v *VSpace) tableAtLevel(vaddr uint64, level Level) (*Table, kernelerr.SysError) {
	if level == PML4 {
		return v.PML4, kernelerr.None
	}

	parent, err := v.tableAtLevel(vaddr, level+1)
	if err != kernelerr.None {
		return nil, err
	}
	e := &parent.Entries[index(vaddr, level+1)]
	if !e.Present || e.Huge {
		return nil, kernelerr.VSpaceTableMiss
	}
	return e.Next, kernelerr.None
}
