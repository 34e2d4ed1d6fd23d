package sched

import "github.com/ricoqos/chick/internal/tcb"

// Stats reports per-core scheduling counters for diagnostics and the
// host harness's console output.
type Stats struct {
	TickCount      uint64
	ContextSwitches uint64
	IdleTicks      uint64
	ReadyDepth     int
}

// Executor wraps one core's Queue with the tick-driven bookkeeping a real
// per-core scheduler instance carries: how many ticks have elapsed, how
// many context switches have happened, and how much of that time was
// spent running the idle TCB.
type Executor struct {
	q         *Queue
	tickCount uint64
	switches  uint64
	idleTicks uint64
}

// NewExecutor wraps a fresh bounded Queue.
func NewExecutor(capacity int) *Executor {
	return &Executor{q: NewQueue(capacity)}
}

// Queue exposes the underlying ready queue for enqueue/wake/current calls
// that don't need tick accounting.
func (e *Executor) Queue() *Queue { return e.q }

// Tick advances the core's tick count by one and runs the tick-path
// preempt decision, counting a context switch when one occurs, and
// counting an idle tick whenever the resulting current is the idle TCB.
func (e *Executor) Tick() {
	e.tickCount++
	if e.q.Preempt() {
		e.switches++
	}
	if cur := e.q.Current(); cur != nil && cur == e.q.idle {
		e.idleTicks++
	}
}

// Wake hands t to Queue.Wake (a Blocked thread becomes Ready, a Restart
// thread keeps its state) and enqueues it, satisfying ipc.Waker so
// the IPC rendezvous can hand blocked threads back to this executor
// without internal/ipc importing internal/sched.
func (e *Executor) Wake(t *tcb.TCB) {
	_ = e.q.Wake(t)
}

// Stats snapshots the executor's diagnostic counters.
func (e *Executor) Stats() Stats {
	return Stats{
		TickCount:       e.tickCount,
		ContextSwitches: e.switches,
		IdleTicks:       e.idleTicks,
		ReadyDepth:      e.q.Len(),
	}
}
