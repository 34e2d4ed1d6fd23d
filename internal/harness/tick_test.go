package harness

import (
	"testing"
	"time"

	"github.com/ricoqos/chick/internal/sched"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestTickSourceAdvancesExecutorStats(t *testing.T) {
	exec := sched.NewExecutor(sched.DefaultCapacity)
	log := logrus.New()
	log.SetOutput(testWriter{t})

	ts := NewTickSource(exec, 1000, log) // 1kHz so the test doesn't stall
	go ts.Run()

	require.Eventually(t, func() bool {
		return exec.Stats().TickCount > 0
	}, time.Second, time.Millisecond)

	ts.Stop()
}

// testWriter discards logrus output into testing.T's log instead of
// stdout, quieting the test run without losing diagnostic value.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}
