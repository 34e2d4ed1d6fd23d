package ipc

import "github.com/ricoqos/chick/internal/tcb"

// Waker is the scheduler hook a rendezvous calls into once a blocked
// thread becomes runnable again, kept as a narrow interface rather than
// an import of internal/sched so ipc stays independently testable and the
// two packages never need to know about each other's internals.
type Waker interface {
	Wake(t *tcb.TCB)
}

// Send performs a blocking or non-blocking send on ep, optionally as a
// call. grantCptr names the capability slot (in
// sender's own CSpace) offered for granting when canGrant is set; it is
// staged onto sender the same way badge/canGrant/canGrantReply/doCall
// are, so it survives a blocking wait and is still known once the
// rendezvous actually completes (TransferGrant).
//
// Returns the receiver the rendezvous matched with immediately, or nil
// if sender instead queued up to wait (or the send was a non-blocking
// no-op). A non-nil return is the caller's cue that any requested grant
// can be carried out right now, against both TCBs' live CSpaces.
func Send(sched Waker, sender *tcb.TCB, ep *Endpoint, blocking, doCall bool, badge uint64, canGrant, canGrantReply bool, grantCptr uint32) *tcb.TCB {
	if ep.state == Idle || ep.state == StateSend {
		if !blocking {
			return nil
		}
		sender.Badge = badge
		sender.CanGrant = canGrant
		sender.CanGrantReply = canGrantReply
		sender.IsCall = doCall
		sender.GrantCptr = grantCptr
		sender.State = tcb.BlockedOnSend
		ep.state = StateSend
		ep.enqueue(sender)
		return nil
	}

	// ep.state == Recv
	receiver := ep.dequeueHead()
	if ep.length == 0 {
		ep.state = Idle
	}

	sender.CanGrant = canGrant
	sender.GrantCptr = grantCptr
	transfer(sender, receiver, badge)

	// A plain send completes with the sender still running. A call either
	// installs the reply relationship or, when the caller withheld reply
	// rights, leaves it Inactive: with no reply capability there is
	// nothing that could ever wake it.
	if doCall {
		if canGrantReply {
			sender.State = tcb.BlockedOnReply
			sender.ReplyTo = receiver
			receiver.Caller = sender
		} else {
			sender.State = tcb.Inactive
		}
	}

	sched.Wake(receiver)
	return receiver
}

// Receive performs a blocking or non-blocking receive on ep.
// grantDstCptr names the slot (in receiver's own CSpace) a granted
// capability should land in; staged onto receiver for the same reason
// Send stages grantCptr onto sender.
//
// Returns the sender the rendezvous matched with immediately, or nil if
// receiver instead queued up to wait (or the receive was a
// non-blocking no-op on an idle endpoint).
func Receive(sched Waker, receiver *tcb.TCB, ep *Endpoint, blocking bool, grantDstCptr uint32) *tcb.TCB {
	receiver.GrantDstCptr = grantDstCptr
	if ep.state == Idle || ep.state == StateSend {
		if ep.state == StateSend {
			sender := ep.dequeueHead()
			if ep.length == 0 {
				ep.state = Idle
			}
			transfer(sender, receiver, sender.Badge)
			if sender.IsCall {
				if sender.CanGrantReply {
					sender.State = tcb.BlockedOnReply
					sender.ReplyTo = receiver
					receiver.Caller = sender
				} else {
					sender.State = tcb.Inactive
				}
			} else {
				// Still BlockedOnSend here; its send has completed, so it
				// goes back to the scheduler.
				sched.Wake(sender)
			}
			return sender
		}

		// Idle, no sender queued.
		if !blocking {
			receiver.Regs.SetMR(tcb.MR1, 0)
			return nil
		}
		receiver.State = tcb.BlockedOnReceive
		ep.state = Recv
		ep.enqueue(receiver)
		return nil
	}

	// ep.state == Recv: another receiver is already queued ahead of this
	// one. There is no sender to match with, so a non-blocking caller
	// observes badge 0 exactly as on an idle endpoint; a blocking caller
	// queues behind the earlier receivers per FIFO discipline.
	if !blocking {
		receiver.Regs.SetMR(tcb.MR1, 0)
		return nil
	}
	receiver.State = tcb.BlockedOnReceive
	ep.enqueue(receiver)
	return nil
}

// Reply sends on the one-shot reply capability installed during a call:
// it wakes the caller and clears both reply links.
func Reply(sched Waker, callee *tcb.TCB) {
	caller := callee.Caller
	if caller == nil {
		return
	}
	callee.Caller = nil
	caller.ReplyTo = nil
	sched.Wake(caller)
}

// transfer writes the badge into the receiver's MR1 and copies the next
// four message registers across. The sender's own MR1 (superseded by the
// badge) is not itself copied.
func transfer(sender, receiver *tcb.TCB, badge uint64) {
	receiver.Regs.SetMR(tcb.MR1, badge)
	for i := tcb.MR2; i <= tcb.MR5; i++ {
		receiver.Regs.SetMR(i, sender.Regs.MR(i))
	}
}

// TransferGrant reports whether a just-completed rendezvous owes a
// capability-slot copy: the sender's designated grant slot
// (IPC-buffer-referenced capability, sender.GrantCptr) into the
// receiver's designated grant slot (receiver.GrantDstCptr). ipc itself has no
// CSpace access to perform the copy (kept that way so this package
// stays independently testable without cspace/objtable), so it only
// gates whether one is owed; the trap package, which already resolves
// both TCBs' capability slots for every other syscall, carries it out
// (trap.maybeTransferGrant).
func TransferGrant(sender *tcb.TCB) bool {
	return sender.CanGrant
}
