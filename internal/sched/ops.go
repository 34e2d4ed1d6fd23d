package sched

import (
	"container/heap"

	"github.com/ricoqos/chick/internal/tcb"
)

// pushReady re-enqueues a TCB directly, bypassing Enqueue's capacity
// check: it was already accounted for against the bound before being
// promoted to current, so demoting it back never grows the queue past
// its steady-state size.
func pushReady(h *readyHeap, t *tcb.TCB) {
	heap.Push(h, t)
}

func popReady(h *readyHeap) *tcb.TCB {
	return heap.Pop(h).(*tcb.TCB)
}

// switchTo performs the context-switch bookkeeping: the
// outgoing current, if still Running, is demoted to Ready and
// re-enqueued (the idle TCB is never put in the heap); the incoming TCB
// is marked Running and becomes current.
// Restoring its actual trap frame (popping registers, iretq) is the
// harness's job once this returns the new current. There is no real
// ring transition in a hosted process, only the accounting that decides
// which TCB's frame to restore.
func (q *Queue) switchTo(next *tcb.TCB) {
	if q.current != nil && q.current.State == tcb.Running {
		q.current.State = tcb.Ready
		if q.current != q.idle {
			pushReady(&q.h, q.current)
		}
	}
	next.State = tcb.Running
	q.current = next
}

// Preempt is the tick-path decision: if the heap-min's
// deadline is earlier than current's, context-switch to it. Returns true
// if a switch occurred.
func (q *Queue) Preempt() bool {
	min := q.peekMin()
	if min == nil {
		return false
	}
	if q.current != nil && !(min.Sched.Deadline < q.current.Sched.Deadline) {
		return false
	}
	popReady(&q.h)
	q.switchTo(min)
	return true
}

// YieldCurrent pushes current back into the heap as Ready (unless it is
// the idle TCB) and picks the new heap-min (or idle if the heap is empty).
func (q *Queue) YieldCurrent() *tcb.TCB {
	if q.current != nil {
		q.current.State = tcb.Ready
		if q.current != q.idle {
			pushReady(&q.h, q.current)
		}
		q.current = nil
	}
	return q.Run()
}

// BlockCurrent sets current's state to the given blocked (or otherwise
// non-runnable) state and schedules the next runnable TCB.
func (q *Queue) BlockCurrent(state tcb.State) *tcb.TCB {
	if q.current != nil {
		q.current.State = state
		q.current = nil
	}
	return q.Run()
}

// Run picks the next TCB to run: heap-min if non-empty, else idle, else
// nil (caller halt-loops).
func (q *Queue) Run() *tcb.TCB {
	if q.current != nil {
		return q.current
	}
	if q.peekMin() != nil {
		next := popReady(&q.h)
		q.switchTo(next)
		return q.current
	}
	if q.idle != nil {
		q.switchTo(q.idle)
		return q.current
	}
	return nil
}
