// Package ipc implements the synchronous rendezvous endpoint:
// send/receive/call, message-register transfer, reply capabilities, and
// cancellation.
package ipc

import "github.com/ricoqos/chick/internal/tcb"

// State is the endpoint's own state.
type State uint8

const (
	Idle State = iota
	StateSend
	Recv
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case StateSend:
		return "Send"
	case Recv:
		return "Recv"
	default:
		return "Unknown"
	}
}

// Endpoint is a rendezvous point: a state plus a FIFO queue of TCBs.
// The queue is non-empty iff the state is Send or Recv, and every queued
// TCB's BlockingObject points back to this endpoint — the coherence
// invariant the tests assert.
type Endpoint struct {
	Paddr  uint64
	state  State
	head   *tcb.TCB
	tail   *tcb.TCB
	length int
}

// NewEndpoint returns an empty (Idle) endpoint.
func NewEndpoint(paddr uint64) *Endpoint {
	return &Endpoint{Paddr: paddr, state: Idle}
}

// State reports the endpoint's current state.
func (e *Endpoint) State() State { return e.state }

// Len reports how many TCBs are queued.
func (e *Endpoint) Len() int { return e.length }

// Coherent checks the endpoint-coherence invariant for tests: state ==
// Idle iff the queue is empty, and every queued TCB's BlockingObject is e.
func (e *Endpoint) Coherent() bool {
	if (e.state == Idle) != (e.length == 0) {
		return false
	}
	for t := e.head; t != nil; t = t.QNext {
		if t.BlockingObject != e {
			return false
		}
	}
	return true
}

func (e *Endpoint) enqueue(t *tcb.TCB) {
	t.QNext = nil
	t.QPrev = e.tail
	if e.tail != nil {
		e.tail.QNext = t
	} else {
		e.head = t
	}
	e.tail = t
	e.length++
	t.BlockingObject = e
}

func (e *Endpoint) dequeueHead() *tcb.TCB {
	t := e.head
	if t == nil {
		return nil
	}
	e.head = t.QNext
	if e.head != nil {
		e.head.QPrev = nil
	} else {
		e.tail = nil
	}
	t.QNext, t.QPrev = nil, nil
	t.BlockingObject = nil
	e.length--
	return t
}

// remove splices an arbitrary queued TCB out of the list (used by
// cancel_ipc), leaving the list's remaining order intact.
func (e *Endpoint) remove(t *tcb.TCB) {
	if t.QPrev != nil {
		t.QPrev.QNext = t.QNext
	} else if e.head == t {
		e.head = t.QNext
	}
	if t.QNext != nil {
		t.QNext.QPrev = t.QPrev
	} else if e.tail == t {
		e.tail = t.QPrev
	}
	t.QNext, t.QPrev = nil, nil
	t.BlockingObject = nil
	e.length--
	if e.length == 0 {
		e.state = Idle
	}
}
