package ipc

import "github.com/ricoqos/chick/internal/tcb"

// CancelIPC removes t from whatever it is blocked on and clears its reply
// links. Used on TCB destroy, and as the first step of
// revoking an endpoint or TCB capability.
func CancelIPC(t *tcb.TCB) {
	if ep, ok := t.BlockingObject.(*Endpoint); ok && ep != nil {
		ep.remove(t)
	}
	if t.Caller != nil {
		t.Caller.ReplyTo = nil
		t.Caller = nil
	}
	if t.ReplyTo != nil {
		t.ReplyTo.Caller = nil
		t.ReplyTo = nil
	}
	t.BlockingObject = nil
}

// CancelAllIPC restarts every TCB queued on ep: state <- Restart,
// BlockingObject <- nil, and hands each to the scheduler to re-enqueue.
// Called before nullifying an endpoint capability's last reference.
func CancelAllIPC(sched Waker, ep *Endpoint) {
	for {
		t := ep.dequeueHead()
		if t == nil {
			break
		}
		t.State = tcb.Restart
		sched.Wake(t)
	}
	ep.state = Idle
}

// CancelBadgedSends is CancelAllIPC restricted to senders whose staged
// badge equals badge.
func CancelBadgedSends(sched Waker, ep *Endpoint, badge uint64) {
	if ep.state != StateSend {
		return
	}

	var keep []*tcb.TCB
	for {
		t := ep.dequeueHead()
		if t == nil {
			break
		}
		if t.Badge == badge {
			t.State = tcb.Restart
			t.BlockingObject = nil
			sched.Wake(t)
		} else {
			keep = append(keep, t)
		}
	}
	for _, t := range keep {
		ep.enqueue(t)
	}
	if ep.length == 0 {
		ep.state = Idle
	} else {
		ep.state = StateSend
	}
}
