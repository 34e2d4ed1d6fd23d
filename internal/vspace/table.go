package vspace

import (
	"github.com/ricoqos/chick/internal/capobj"
)

// PTE is one page-table entry. This models the architectural fields x86-64
// defines — it is not a literal byte-for-byte encoding, since nothing in
// this hosted simulator ever reads the bits with a real MMU.
type PTE struct {
	Present    bool
	Huge       bool // meaningful only at PDPT (1 GiB) and PD (2 MiB) levels
	Next       *Table
	FramePaddr uint64 // valid when this entry is a leaf (Huge, or level PT)
	Writable   bool
	User       bool
	NoExecute  bool
	Cache      capobj.CachePolicy
}

// Table is one level of 512 entries.
type Table struct {
	Entries [512]PTE
}

// VSpace is a 4-level page-table root plus its ASID.
type VSpace struct {
	ASID   uint16
	Active bool
	PML4   *Table

	shootdowns map[uint64]int // per-vaddr invlpg count, test/debug only
	reloads    int            // full CR3-reload shootdown count
}

// NewVSpace returns a VSpace with an empty PML4 and the given ASID. ASID 0
// is reserved and must never be passed here — see asid.go.
func NewVSpace(asid uint16) *VSpace {
	return &VSpace{
		ASID:       asid,
		PML4:       &Table{},
		shootdowns: make(map[uint64]int),
	}
}
