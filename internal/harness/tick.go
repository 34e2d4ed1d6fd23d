package harness

import (
	"time"

	"github.com/ricoqos/chick/internal/sched"
	"github.com/sirupsen/logrus"
)

// DefaultTickHz is the fallback tick frequency when BootConfig doesn't
// override it.
const DefaultTickHz = 100

// TickSource stands in for the PIT one-shot -> LAPIC periodic-counter
// calibration sequence of a real timer subsystem: a goroutine ticking on
// time.Ticker, delivering the scheduler's timer interrupt.
type TickSource struct {
	exec   *sched.Executor
	hz     int
	log    *logrus.Entry
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewTickSource wires a tick source around exec. hz <= 0 falls back to
// DefaultTickHz, mirroring BootConfig's zero-value fallback rule.
func NewTickSource(exec *sched.Executor, hz int, log *logrus.Logger) *TickSource {
	if hz <= 0 {
		hz = DefaultTickHz
	}
	return &TickSource{
		exec:   exec,
		hz:     hz,
		log:    log.WithField("subsystem", "tick"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run calibrates a periodic ticker at hz and calls exec.Tick() on every
// tick until Stop is called, the host analogue of the LAPIC periodic
// counter firing the scheduler's timer interrupt. Intended to run in its
// own goroutine.
func (ts *TickSource) Run() {
	defer close(ts.doneCh)
	period := time.Second / time.Duration(ts.hz)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	ts.log.WithField("hz", ts.hz).Info("tick source calibrated")
	for {
		select {
		case <-ticker.C:
			ts.exec.Tick()
		case <-ts.stopCh:
			return
		}
	}
}

// Stop signals Run to return and blocks until it has, the harness's halt
// primitive mirroring internal/mips's CPU.Stop().
func (ts *TickSource) Stop() {
	close(ts.stopCh)
	<-ts.doneCh
}
