package kernel

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Halter is the harness's halt primitive: stop everything and never
// return. Behind an interface so Panic's fatal paths are exercisable in
// tests without actually exiting the process.
type Halter interface {
	Halt()
}

// osExitHalter is the production Halter, used wherever no test substitute
// is wired in.
type osExitHalter struct{}

func (osExitHalter) Halt() { osExit(1) }

// osExit is a package-level var so tests can intercept the terminal exit
// path without actually killing the test binary.
var osExit = os.Exit

// Panic logs a fatal diagnostic and halts, the only response to the
// fatal-in-kernel class (double fault, machine check, NMI, page fault
// inside kernel text): conditions with no recoverable continuation,
// because they indicate a broken kernel invariant rather than a
// user-triggerable error. None of the four literal hardware fault types
// have a real analogue in this hosted process; Panic exists for the one
// that does, a kernel-internal invariant violation (e.g. boot-time
// untyped region overlap).
func Panic(log *logrus.Logger, halt Halter, msg string, fields logrus.Fields) {
	if halt == nil {
		halt = osExitHalter{}
	}
	log.WithFields(fields).Error(msg)
	halt.Halt()
}
