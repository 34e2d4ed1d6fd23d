// Package objtable is the kernel's physical-address-to-object registry: the
// mapping every capability's Paddr field is resolved through to reach the
// live Go value describing that object (its CNode slots, its Frame bytes,
// its TCB state, ...). A real kernel reaches the same data by treating
// Paddr as a pointer into kernel-mapped physical memory; here the registry
// plays that role explicitly.
//
// The kernel runs single-threaded per core: there is never a second
// writer racing a registration or lookup, so this type carries no lock.
package objtable

// Registry maps a physical address to the kernel object living there.
type Registry struct {
	entries map[uint64]any
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[uint64]any)}
}

// Register records obj as living at paddr, overwriting any previous
// occupant (retype only ever calls this for addresses it has just proven,
// via free_offset bookkeeping, were unused).
func (r *Registry) Register(paddr uint64, obj any) {
	r.entries[paddr] = obj
}

// Unregister removes the object at paddr, called when revoke tears down
// the last reference to it.
func (r *Registry) Unregister(paddr uint64) {
	delete(r.entries, paddr)
}

// Lookup returns the object registered at paddr, if any.
func (r *Registry) Lookup(paddr uint64) (any, bool) {
	obj, ok := r.entries[paddr]
	return obj, ok
}

// Len reports how many live objects the registry holds, used by tests and
// by diagnostics to report kernel memory pressure.
func (r *Registry) Len() int {
	return len(r.entries)
}
