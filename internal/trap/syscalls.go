package trap

import (
	"github.com/ricoqos/chick/internal/capobj"
	"github.com/ricoqos/chick/internal/cspace"
	"github.com/ricoqos/chick/internal/ipc"
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/tcb"
	"github.com/ricoqos/chick/internal/vspace"
)

// Register-argument convention: every argument is read in the ABI order
// RDI, RSI, RDX, R10, R8, R9, assigned per syscall in each handler's doc
// comment.

// attachIrq binds an IRQ vector (RDI) to an endpoint capability (RSI).
// The binding is pure bookkeeping; routing a real hardware vector into it
// is the interrupt controller's job, outside the kernel core.
func (k *Kernel) attachIrq(t *tcb.TCB) kernelerr.SysError {
	vector := uint32(t.Regs.RDI)
	epCptr := uint32(t.Regs.RSI)
	ep, err := k.lookupEndpoint(t, epCptr)
	if err != kernelerr.None {
		return err
	}
	k.Irqs[vector] = ep.Paddr
	return kernelerr.None
}

// createTask binds a TCB capability (RDI) to a scheduling context
// (deadline RSI, period RDX) and enqueues it Ready.
func (k *Kernel) createTask(t *tcb.TCB) kernelerr.SysError {
	target, err := k.lookupTCB(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	target.Sched.Deadline = t.Regs.RSI
	target.Sched.Period = t.Regs.RDX
	target.State = tcb.Ready
	return k.Exec.Queue().Enqueue(target)
}

// removeTask revokes a TCB capability (RDI): cancels any IPC the thread
// is blocked on first, then nullifies every capability derived from the
// slot (Revoke), unlinks the slot from the derivation chain, and empties
// it.
func (k *Kernel) removeTask(t *tcb.TCB) kernelerr.SysError {
	slot, err := k.lookupSlot(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	if slot.Type != capobj.TypeTcb {
		return kernelerr.CapabilityTypeError
	}
	obj, ok := k.Objects.Lookup(slot.Paddr)
	if !ok {
		return kernelerr.CSpaceNotFound
	}
	target, ok := obj.(*tcb.TCB)
	if !ok {
		return kernelerr.CapabilityTypeError
	}
	ipc.CancelIPC(target)
	target.State = tcb.Inactive

	for c := slot.Next; c != nil; c = c.Next {
		k.cancelForRevoke(c)
	}
	cspace.Revoke(slot)
	cspace.Remove(slot)
	k.Objects.Unregister(slot.Paddr)
	slot.Zero()
	return kernelerr.None
}

// cancelForRevoke applies the cancellation obligations to one
// capability about to be nullified by a revoke pass: an endpoint drains
// its queue (cancel_all_ipc before the slot is nullified), a TCB is
// pulled off whatever it blocks on and deactivated.
func (k *Kernel) cancelForRevoke(c *capobj.CapRaw) {
	obj, ok := k.Objects.Lookup(c.Paddr)
	if !ok {
		return
	}
	switch o := obj.(type) {
	case *ipc.Endpoint:
		ipc.CancelAllIPC(k.Exec, o)
	case *tcb.TCB:
		ipc.CancelIPC(o)
		o.State = tcb.Inactive
	}
}

// taskSleep blocks the caller until its next periodic deadline: block
// the current thread, then immediately re-enqueue it at the bumped
// deadline. There is no separate wake source for a sleeping
// thread (no asynchronous notifications), so the next deadline is where
// it becomes Ready again.
func (k *Kernel) taskSleep(t *tcb.TCB) kernelerr.SysError {
	t.Sched.Deadline += t.Sched.Period
	q := k.Exec.Queue()
	q.BlockCurrent(tcb.Ready) // demotes t off `current`; Ready lets Enqueue accept it below
	return q.Enqueue(t)
}

// mapMemory maps a frame capability (RDI) at vaddr (RSI) into the
// caller's own VSpace, with rights (RDX, a capobj.Rights bitset) and a
// user-accessible flag (R10, nonzero = user page).
func (k *Kernel) mapMemory(t *tcb.TCB) kernelerr.SysError {
	_, f, err := k.lookupFrame(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	vs, err := k.ownVSpace(t)
	if err != kernelerr.None {
		return err
	}
	vaddr := t.Regs.RSI
	rights := capobj.Rights(t.Regs.RDX)
	user := t.Regs.R10 != 0
	attr := vspace.VMAttr{Rights: rights, User: user, Cache: f.Cache}

	var mapErr kernelerr.SysError
	switch f.Size {
	case capobj.Frame4K:
		mapErr = vs.Map4K(vaddr, f.Paddr, attr)
	case capobj.Frame2M:
		mapErr = vs.Map2M(vaddr, f.Paddr, attr)
	case capobj.Frame1G:
		mapErr = vs.Map1G(vaddr, f.Paddr, attr)
	}
	if mapErr != kernelerr.None {
		return mapErr
	}
	if mapErr := f.SetMapped(vs.ASID, vaddr); mapErr != kernelerr.None {
		_, _, _ = vs.Unmap(vaddr)
		return mapErr
	}
	return kernelerr.None
}

// unmapMemory unmaps whatever frame is resident at vaddr (RDI) in the
// caller's own VSpace.
func (k *Kernel) unmapMemory(t *tcb.TCB) kernelerr.SysError {
	vs, err := k.ownVSpace(t)
	if err != kernelerr.None {
		return err
	}
	vaddr := t.Regs.RDI
	paddr, _, unmapErr := vs.Unmap(vaddr)
	if unmapErr != kernelerr.None {
		return unmapErr
	}
	if obj, ok := k.Objects.Lookup(paddr); ok {
		if f, ok := obj.(*vspace.Frame); ok {
			_ = f.ClearMapped(vs.ASID, vaddr)
		}
	}
	return kernelerr.None
}

// grantMemory derives a capability (RDI) into the destination slot
// named by RSI, spliced into the MDB immediately after the source. A
// mint, not a fresh retype. Two source types are supported, dispatched
// on the source slot's own type:
//   - Frame: rights narrowed to the subset given in RDX.
//   - CNode: guard narrowed to guard_bits (RDX) and guard (R10), the
//     operation that composes CNodes into a multi-level CSpace
//     (cspace.MintCNode); folding it into GrantMemory keeps it reachable
//     from the syscall ABI without a dedicated syscall number.
func (k *Kernel) grantMemory(t *tcb.TCB) kernelerr.SysError {
	srcSlot, err := k.lookupSlot(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	dstSlot, err := k.lookupSlot(t, uint32(t.Regs.RSI))
	if err != kernelerr.None {
		return err
	}
	if !dstSlot.Null() {
		return kernelerr.SlotNotEmpty
	}

	switch srcSlot.Type {
	case capobj.TypeCNode:
		guardBits := uint8(t.Regs.RDX)
		guard := t.Regs.R10
		return cspace.MintCNode(srcSlot, dstSlot, guardBits, guard, k.Objects)

	case capobj.TypeFrame:
		narrowed := capobj.Rights(t.Regs.RDX) & srcSlot.Rights
		derived := *srcSlot
		derived.Rights = narrowed
		derived.Prev = nil
		derived.Next = nil
		*dstSlot = derived
		cspace.InsertAfter(srcSlot, dstSlot)
		return kernelerr.None

	default:
		return kernelerr.CapabilityTypeError
	}
}

// send performs a blocking or non-blocking send on an endpoint (RDI)
// with badge (RSI) and a flags word (RDX: bit0 = blocking, bit1 =
// can_grant). R10 names the slot, in the caller's own CSpace, offered
// for granting when can_grant is set.
//
// When RDI resolves to a Reply capability instead, the send is the
// one-shot reply: it wakes the caller recorded in this thread's reply
// relationship, clears both links, and consumes the capability.
func (k *Kernel) send(t *tcb.TCB) kernelerr.SysError {
	slot, err := k.lookupSlot(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	if slot.Type == capobj.TypeReply {
		if t.Caller == nil {
			return kernelerr.InvalidOperation
		}
		ipc.Reply(k.Exec, t)
		slot.Zero()
		return kernelerr.None
	}

	ep, err := k.endpointFromSlot(slot)
	if err != kernelerr.None {
		return err
	}
	badge := t.Regs.RSI
	flags := t.Regs.RDX
	blocking := flags&0x1 != 0
	canGrant := flags&0x2 != 0
	grantCptr := uint32(t.Regs.R10)
	receiver := ipc.Send(k.Exec, t, ep, blocking, false, badge, canGrant, false, grantCptr)
	if receiver != nil {
		return k.maybeTransferGrant(t, receiver)
	}
	return kernelerr.None
}

// receive performs a blocking or non-blocking receive on an endpoint
// (RDI) with a blocking flag (RSI). RDX names the slot,
// in the caller's own CSpace, a granted capability should land in
// (ignored unless the matched sender actually granted one); R10 names
// the Null slot a one-shot Reply capability is deposited into when the
// matched sender turns out to be calling (0 declines the deposit).
func (k *Kernel) receive(t *tcb.TCB) kernelerr.SysError {
	ep, err := k.lookupEndpoint(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	blocking := t.Regs.RSI != 0
	grantDstCptr := uint32(t.Regs.RDX)
	t.ReplySlotCptr = uint32(t.Regs.R10)
	sender := ipc.Receive(k.Exec, t, ep, blocking, grantDstCptr)
	if sender != nil {
		if err := k.maybeInstallReplyCap(sender, t); err != kernelerr.None {
			return err
		}
		return k.maybeTransferGrant(sender, t)
	}
	return kernelerr.None
}

// ipcCall is Send with do_call set, always blocking.
// Endpoint (RDI), badge (RSI), flags (RDX: bit0 = can_grant, bit1 =
// can_grant_reply), grant slot (R10).
func (k *Kernel) ipcCall(t *tcb.TCB) kernelerr.SysError {
	ep, err := k.lookupEndpoint(t, uint32(t.Regs.RDI))
	if err != kernelerr.None {
		return err
	}
	badge := t.Regs.RSI
	flags := t.Regs.RDX
	canGrant := flags&0x1 != 0
	canGrantReply := flags&0x2 != 0
	grantCptr := uint32(t.Regs.R10)
	receiver := ipc.Send(k.Exec, t, ep, true, true, badge, canGrant, canGrantReply, grantCptr)
	if receiver != nil {
		if err := k.maybeInstallReplyCap(t, receiver); err != kernelerr.None {
			return err
		}
		return k.maybeTransferGrant(t, receiver)
	}
	return kernelerr.None
}

// maybeInstallReplyCap deposits the one-shot Reply capability a completed
// call rendezvous promises the callee: when the
// reply relationship caller -> callee was just installed and the callee
// named a deposit slot at Receive time, a Reply capability lands there.
// The capability is a pure invocation token — the edge it invokes lives
// in the callee TCB's Caller field — so it carries the Send
// right and no object address.
func (k *Kernel) maybeInstallReplyCap(caller, callee *tcb.TCB) kernelerr.SysError {
	if callee.Caller != caller || callee.ReplySlotCptr == 0 {
		return kernelerr.None
	}
	slot, err := k.lookupSlot(callee, callee.ReplySlotCptr)
	if err != kernelerr.None {
		return err
	}
	if !slot.Null() {
		return kernelerr.SlotNotEmpty
	}
	*slot = capobj.CapRaw{Type: capobj.TypeReply, Rights: capobj.Send}
	return kernelerr.None
}

// maybeTransferGrant carries out the capability-slot copy
// ipc.TransferGrant gates: sender.GrantCptr (sender's own CSpace) into
// receiver.GrantDstCptr (receiver's own CSpace), spliced into the MDB
// immediately after the source exactly like grantMemory's Frame-narrowing
// path. Called right after Send or Receive reports the
// rendezvous completed immediately, which is the only point either TCB's
// CSpace is guaranteed live and addressable from a syscall handler.
func (k *Kernel) maybeTransferGrant(sender, receiver *tcb.TCB) kernelerr.SysError {
	if !ipc.TransferGrant(sender) {
		return kernelerr.None
	}
	srcSlot, err := k.lookupSlot(sender, sender.GrantCptr)
	if err != kernelerr.None {
		return err
	}
	dstSlot, err := k.lookupSlot(receiver, receiver.GrantDstCptr)
	if err != kernelerr.None {
		return err
	}
	if !dstSlot.Null() {
		return kernelerr.SlotNotEmpty
	}

	derived := *srcSlot
	derived.Prev = nil
	derived.Next = nil
	*dstSlot = derived
	cspace.InsertAfter(srcSlot, dstSlot)
	return kernelerr.None
}
