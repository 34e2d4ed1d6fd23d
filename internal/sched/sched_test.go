package sched

import (
	"testing"

	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/tcb"
)

func readyAt(name string, deadline uint64) *tcb.TCB {
	t := tcb.New(name)
	t.State = tcb.Ready
	t.Sched.Deadline = deadline
	return t
}

func TestHeapPopsNonDecreasingDeadlines(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	deadlines := []uint64{50, 10, 30, 20, 40}
	for i, d := range deadlines {
		if err := q.Enqueue(readyAt("t", d)); err != kernelerr.None {
			t.Fatalf("Enqueue %d: %s", i, err)
		}
	}
	var got []uint64
	for range deadlines {
		next := q.Run()
		got = append(got, next.Sched.Deadline)
		q.BlockCurrent(tcb.Inactive)
	}
	want := []uint64{10, 20, 30, 40, 50}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pop order = %v, want %v", got, want)
		}
	}
}

func TestEnqueueRequiresReady(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	notReady := tcb.New("x")
	if err := q.Enqueue(notReady); err != kernelerr.InvalidOperation {
		t.Fatalf("Enqueue non-Ready = %s, want InvalidOperation", err)
	}
}

func TestEnqueueCapacity(t *testing.T) {
	q := NewQueue(1)
	if err := q.Enqueue(readyAt("a", 1)); err != kernelerr.None {
		t.Fatalf("first Enqueue: %s", err)
	}
	if err := q.Enqueue(readyAt("b", 2)); err != kernelerr.OutOfMemory {
		t.Fatalf("Enqueue past capacity = %s, want OutOfMemory", err)
	}
}

func TestWakeRequiresBlocked(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	notBlocked := tcb.New("x")
	if err := q.Wake(notBlocked); err != kernelerr.InvalidOperation {
		t.Fatalf("Wake non-Blocked = %s, want InvalidOperation", err)
	}
	blocked := tcb.New("y")
	blocked.State = tcb.BlockedOnSend
	if err := q.Wake(blocked); err != kernelerr.None {
		t.Fatalf("Wake: %s", err)
	}
	if blocked.State != tcb.Ready {
		t.Fatalf("State = %s, want Ready", blocked.State)
	}
}

// TestEDFPreemption: a woken thread with an earlier deadline preempts
// the running one.
func TestEDFPreemption(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	t1 := readyAt("T1", 100)
	q.Run() // nothing queued yet; establishes idle-less empty state
	_ = q.Enqueue(t1)
	cur := q.Run()
	if cur != t1 {
		t.Fatalf("initial current = %v, want T1", cur)
	}

	t2 := readyAt("T2", 50)
	t2.State = tcb.BlockedOnSend
	_ = q.Wake(t2)

	switched := q.Preempt()
	if !switched {
		t.Fatal("Preempt() = false, want true (T2 deadline 50 < T1 deadline 100)")
	}
	if q.Current() != t2 {
		t.Fatalf("current after preempt = %v, want T2", q.Current())
	}
	if t1.State != tcb.Ready {
		t.Fatalf("T1.State = %s, want Ready (re-enqueued)", t1.State)
	}

	// T1's deadline is unchanged (100) and T2 (now current) has deadline
	// 50, so a second preempt must not switch back.
	if q.Preempt() {
		t.Fatal("Preempt() switched back despite current having the earlier deadline")
	}
}

func TestRunFallsBackToIdleWhenHeapEmpty(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	idle := tcb.New("idle")
	idle.State = tcb.Ready
	idle.Sched.Deadline = ^uint64(0)
	q.SetIdle(idle)

	next := q.Run()
	if next != idle {
		t.Fatalf("Run() on empty heap = %v, want idle", next)
	}
}

func TestYieldCurrentReselectsSoleReadyThread(t *testing.T) {
	q := NewQueue(DefaultCapacity)
	t1 := readyAt("T1", 10)
	_ = q.Enqueue(t1)
	q.Run()

	next := q.YieldCurrent()
	if next != t1 {
		t.Fatalf("YieldCurrent with no other ready thread = %v, want T1 again", next)
	}
}

func TestExecutorStatsCountSwitchesAndIdle(t *testing.T) {
	e := NewExecutor(DefaultCapacity)
	idle := tcb.New("idle")
	idle.State = tcb.Ready
	idle.Sched.Deadline = ^uint64(0)
	e.Queue().SetIdle(idle)
	e.Queue().Run() // promotes idle to current

	e.Tick()
	stats := e.Stats()
	if stats.TickCount != 1 {
		t.Fatalf("TickCount = %d, want 1", stats.TickCount)
	}
	if stats.ReadyDepth != 0 {
		t.Fatalf("ReadyDepth = %d, want 0", stats.ReadyDepth)
	}
	if stats.ContextSwitches != 0 {
		t.Fatalf("ContextSwitches = %d, want 0 (nothing to preempt idle)", stats.ContextSwitches)
	}
	if stats.IdleTicks != 1 {
		t.Fatalf("IdleTicks = %d, want 1", stats.IdleTicks)
	}
}
