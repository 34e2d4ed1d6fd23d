package vspace

// This repo runs hosted, with no real CPU TLB to shoot down — page-table
// walks always consult the live tables directly (see Walk). The counters
// below exist purely so tests can observe that a shootdown was actually
// issued after a mutation; they give map/unmap round-trip tests an
// observable signal without backing a real cache.

// invalidate records a selective invlpg-style shootdown for vaddr.
func (v *VSpace) invalidate(vaddr uint64) {
	if v.shootdowns == nil {
		v.shootdowns = make(map[uint64]int)
	}
	v.shootdowns[vaddr]++
}

// ReloadCR3 records a full TLB flush, the CR3-reload path used on context
// switch to a different VSpace.
func (v *VSpace) ReloadCR3() {
	v.reloads++
}

// ShootdownCount reports how many selective invlpg operations vaddr has
// received, for tests.
func (v *VSpace) ShootdownCount(vaddr uint64) int {
	return v.shootdowns[vaddr]
}

// ReloadCount reports how many full CR3 reloads this VSpace has received.
func (v *VSpace) ReloadCount() int {
	return v.reloads
}

// SetActive flips whether this VSpace's root currently matches CR3.
func (v *VSpace) SetActive(active bool) {
	v.Active = active
	if active {
		v.ReloadCR3()
	}
}
