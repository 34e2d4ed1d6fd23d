// Package trap is the syscall entry stub's Go analogue: it receives a
// trap frame already populated with a syscall number and six argument
// words, looks up whatever capabilities the call names in the caller's
// CSpace, and dispatches to the named handler.
//
// There is no real ring transition in this hosted simulator:
// internal/harness's user-thread goroutine marshals a syscall number and
// arguments into a tcb.Frame and calls Dispatch, standing in for the
// hardware syscall entry path.
package trap

import (
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/cspace"
	"github.com/ricoqos/chick/internal/ipc"
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/objtable"
	"github.com/ricoqos/chick/internal/sched"
	"github.com/ricoqos/chick/internal/tcb"
	"github.com/ricoqos/chick/internal/vspace"
)

// Syscall numbers.
const (
	AttachIrq   = 0
	CreateTask  = 1
	RemoveTask  = 2
	TaskSleep   = 3
	MapMemory   = 10
	UnmapMemory = 11
	GrantMemory = 12
	Send        = 20
	Receive     = 21
	IpcCall     = 22
)

// Kernel bundles the shared state a syscall handler needs to reach
// beyond the calling thread itself: the object table every capability's
// Paddr resolves through, the ASID pool VSpace retype draws from, the
// per-core executor threads block on and wake through, and the
// attach_irq binding table (a bookkeeping map only; the PIC/APIC that
// would actually route a hardware vector to this binding is the host
// harness's external collaborator).
type Kernel struct {
	Objects *objtable.Registry
	ASIDs   *vspace.ASIDPool
	Exec    *sched.Executor
	Irqs    map[uint32]uint64
}

// NewKernel wires a Kernel dispatch context around the given shared
// state, all constructed once at boot.
func NewKernel(objects *objtable.Registry, asids *vspace.ASIDPool, exec *sched.Executor) *Kernel {
	return &Kernel{Objects: objects, ASIDs: asids, Exec: exec, Irqs: make(map[uint32]uint64)}
}

// Dispatch executes the syscall named in current.Regs.RAX using the
// argument registers RDI, RSI, RDX, R10, R8, R9, and writes the
// resulting SysError code back into RAX, 0 on success.
func Dispatch(k *Kernel, current *tcb.TCB) kernelerr.SysError {
	num := current.Regs.RAX
	var err kernelerr.SysError
	switch num {
	case AttachIrq:
		err = k.attachIrq(current)
	case CreateTask:
		err = k.createTask(current)
	case RemoveTask:
		err = k.removeTask(current)
	case TaskSleep:
		err = k.taskSleep(current)
	case MapMemory:
		err = k.mapMemory(current)
	case UnmapMemory:
		err = k.unmapMemory(current)
	case GrantMemory:
		err = k.grantMemory(current)
	case Send:
		err = k.send(current)
	case Receive:
		err = k.receive(current)
	case IpcCall:
		err = k.ipcCall(current)
	default:
		// Unknown syscalls are reflected to the thread as a fault,
		// recorded on the TCB for its fault handler to collect,
		// alongside the numeric error in RAX.
		current.Fault = tcb.Fault{Kind: tcb.FaultUnknownSyscall, Code: num, Present: true}
		err = kernelerr.UnsupportedSyscallOp
	}
	current.Regs.RAX = uint64(err.Code())
	return err
}

// rootCNode resolves t's own CSpace root capability to the live CNode
// object it names.
func (k *Kernel) rootCNode(t *tcb.TCB) (*cspace.CNode, kernelerr.SysError) {
	if t.CSpaceRoot == nil || t.CSpaceRoot.Type != capobj.TypeCNode {
		return nil, kernelerr.CapabilityTypeError
	}
	obj, ok := k.Objects.Lookup(t.CSpaceRoot.Paddr)
	if !ok {
		return nil, kernelerr.CSpaceNotFound
	}
	cn, ok := obj.(*cspace.CNode)
	if !ok {
		return nil, kernelerr.CapabilityTypeError
	}
	return cn, kernelerr.None
}

// lookupSlot resolves a 32-bit capability pointer at full (32-bit) depth
// in t's own CSpace.
func (k *Kernel) lookupSlot(t *tcb.TCB, cptr uint32) (*capobj.CapRaw, kernelerr.SysError) {
	root, err := k.rootCNode(t)
	if err != kernelerr.None {
		return nil, err
	}
	res, err := cspace.ResolvePointer(root, cptr, 32)
	if err != kernelerr.None {
		return nil, err
	}
	if !res.Final() {
		return nil, kernelerr.LookupError
	}
	return res.Slot, kernelerr.None
}

func (k *Kernel) ownVSpace(t *tcb.TCB) (*vspace.VSpace, kernelerr.SysError) {
	if t.VSpaceRoot == nil || t.VSpaceRoot.Type != capobj.TypeVSpace {
		return nil, kernelerr.CapabilityTypeError
	}
	obj, ok := k.Objects.Lookup(t.VSpaceRoot.Paddr)
	if !ok {
		return nil, kernelerr.CSpaceNotFound
	}
	vs, ok := obj.(*vspace.VSpace)
	if !ok {
		return nil, kernelerr.CapabilityTypeError
	}
	return vs, kernelerr.None
}

func (k *Kernel) lookupEndpoint(t *tcb.TCB, cptr uint32) (*ipc.Endpoint, kernelerr.SysError) {
	slot, err := k.lookupSlot(t, cptr)
	if err != kernelerr.None {
		return nil, err
	}
	return k.endpointFromSlot(slot)
}

func (k *Kernel) endpointFromSlot(slot *capobj.CapRaw) (*ipc.Endpoint, kernelerr.SysError) {
	if slot.Type != capobj.TypeEndpoint {
		return nil, kernelerr.CapabilityTypeError
	}
	obj, ok := k.Objects.Lookup(slot.Paddr)
	if !ok {
		return nil, kernelerr.CSpaceNotFound
	}
	ep, ok := obj.(*ipc.Endpoint)
	if !ok {
		return nil, kernelerr.CapabilityTypeError
	}
	return ep, kernelerr.None
}

func (k *Kernel) lookupTCB(t *tcb.TCB, cptr uint32) (*tcb.TCB, kernelerr.SysError) {
	slot, err := k.lookupSlot(t, cptr)
	if err != kernelerr.None {
		return nil, err
	}
	if slot.Type != capobj.TypeTcb {
		return nil, kernelerr.CapabilityTypeError
	}
	obj, ok := k.Objects.Lookup(slot.Paddr)
	if !ok {
		return nil, kernelerr.CSpaceNotFound
	}
	target, ok := obj.(*tcb.TCB)
	if !ok {
		return nil, kernelerr.CapabilityTypeError
	}
	return target, kernelerr.None
}

func (k *Kernel) lookupFrame(t *tcb.TCB, cptr uint32) (*capobj.CapRaw, *vspace.Frame, kernelerr.SysError) {
	slot, err := k.lookupSlot(t, cptr)
	if err != kernelerr.None {
		return nil, nil, err
	}
	if slot.Type != capobj.TypeFrame {
		return nil, nil, kernelerr.CapabilityTypeError
	}
	obj, ok := k.Objects.Lookup(slot.Paddr)
	if !ok {
		return nil, nil, kernelerr.CSpaceNotFound
	}
	f, ok := obj.(*vspace.Frame)
	if !ok {
		return nil, nil, kernelerr.CapabilityTypeError
	}
	return slot, f, kernelerr.None
}
