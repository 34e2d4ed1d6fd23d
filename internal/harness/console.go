package harness

import (
	"fmt"
	"os"

	"github.com/eiannone/keyboard"
	"github.com/ricoqos/chick/internal/ipc"
	"github.com/ricoqos/chick/internal/sched"
	"github.com/ricoqos/chick/internal/tcb"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Console is the host stand-in for the character-console collaborator.
// It puts the controlling terminal into raw mode and reads one keystroke
// at a time, feeding each byte into a kernel IPC endpoint as a blocking
// Send the way a real interrupt handler would post to a driver's
// notification endpoint.
type Console struct {
	ep     *ipc.Endpoint
	driver *tcb.TCB
	exec   *sched.Executor
	log    *logrus.Entry
	state  *term.State
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewConsole wires a console driver thread around ep: every keystroke
// read from stdin is Send'd to ep with the byte value as the message's
// first register, waking whatever kernel thread is blocked in Receive on
// it.
func NewConsole(ep *ipc.Endpoint, exec *sched.Executor, log *logrus.Logger) *Console {
	return &Console{
		ep:     ep,
		driver: tcb.New("console-driver"),
		exec:   exec,
		log:    log.WithField("subsystem", "console"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Run puts stdin into raw mode and reads keystrokes until Stop is called
// or Ctrl+C is read, posting each one to the console endpoint. Intended
// to run in its own goroutine.
func (c *Console) Run() error {
	defer close(c.doneCh)

	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("harness: console raw mode: %w", err)
	}
	c.state = state
	defer term.Restore(fd, c.state)

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("harness: console keyboard open: %w", err)
	}
	defer keyboard.Close()

	for {
		select {
		case <-c.stopCh:
			return nil
		default:
		}

		ch, key, err := keyboard.GetSingleKey()
		if err != nil {
			c.log.WithError(err).Warn("console read failed")
			return err
		}
		if key == keyboard.KeyCtrlC {
			c.log.Info("console interrupt, stopping")
			return nil
		}

		if c.driver.State == tcb.BlockedOnSend {
			// Still queued from the previous keystroke; re-enqueueing the
			// same TCB would corrupt the endpoint's FIFO links. Dropping
			// the keystroke is what a saturated hardware FIFO does too.
			c.log.WithField("key", ch).Debug("console consumer busy, keystroke dropped")
			continue
		}
		c.driver.Regs.SetMR(tcb.MR1, uint64(ch))
		ipc.Send(c.exec, c.driver, c.ep, true, false, uint64(ch), false, false, 0)
	}
}

// Stop signals Run to return. Since keyboard.GetSingleKey blocks on a
// real read, Stop only guarantees termination once the next keystroke (or
// Ctrl+C) arrives; callers that need an immediate stop should close stdin
// instead.
func (c *Console) Stop() {
	close(c.stopCh)
	<-c.doneCh
}
