// Package sched implements the per-core EDF ready queue: a bounded
// min-heap keyed on absolute deadline, the enqueue/wake/preempt/yield/
// block/run operations over it, and the Executor wrapper that tracks
// per-core scheduling statistics.
package sched

import (
	"container/heap"

	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/tcb"
)

// DefaultCapacity is the per-core ready-queue bound.
const DefaultCapacity = 64

// readyHeap is a container/heap.Interface over pointers to Ready TCBs,
// ordered by SchedContext.Deadline.
type readyHeap []*tcb.TCB

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	return h[i].Sched.Deadline < h[j].Sched.Deadline
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *readyHeap) Push(x any) {
	*h = append(*h, x.(*tcb.TCB))
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the bounded EDF min-heap, plus the current-running entry and
// a designated idle TCB.
type Queue struct {
	capacity int
	h        readyHeap
	current  *tcb.TCB
	idle     *tcb.TCB
}

// NewQueue returns an empty queue bounded at capacity entries.
func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity}
}

// SetIdle installs the designated idle TCB, run() falls back to when the
// heap is empty. Its deadline is left at whatever the caller set
// (conventionally ^uint64(0), "infinity").
func (q *Queue) SetIdle(idle *tcb.TCB) {
	q.idle = idle
}

// Current returns the currently Running TCB, or nil if none.
func (q *Queue) Current() *tcb.TCB {
	return q.current
}

// Len reports the number of Ready entries waiting in the heap (excludes
// current and idle).
func (q *Queue) Len() int { return len(q.h) }

// Enqueue requires t to be runnable — Ready, or Restart for a thread
// cancel_all_ipc kicked off an endpoint — and inserts it into the heap.
func (q *Queue) Enqueue(t *tcb.TCB) kernelerr.SysError {
	if t.State != tcb.Ready && t.State != tcb.Restart {
		return kernelerr.InvalidOperation
	}
	if len(q.h) >= q.capacity {
		return kernelerr.OutOfMemory
	}
	heap.Push(&q.h, t)
	return kernelerr.None
}

// Wake transitions a Blocked thread to Ready and enqueues it. A Restart
// thread (already kicked off its endpoint by an IPC cancellation) is
// enqueued as-is, keeping the marker visible until the scheduler next
// runs it.
func (q *Queue) Wake(t *tcb.TCB) kernelerr.SysError {
	switch {
	case t.State.Blocked():
		t.State = tcb.Ready
	case t.State == tcb.Restart:
	default:
		return kernelerr.InvalidOperation
	}
	return q.Enqueue(t)
}

// peekMin returns the heap-min entry without removing it.
func (q *Queue) peekMin() *tcb.TCB {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}
