package harness

import (
	"github.com/ricoqos/chick/internal/kernelerr"
	"github.com/ricoqos/chick/internal/tcb"
	"github.com/ricoqos/chick/internal/trap"
)

// Syscall is one system call a UserThread issues: a number plus up to six
// argument words, matching the six-register ABI (RDI, RSI, RDX, R10, R8,
// R9).
type Syscall struct {
	Number uint64
	Args   [6]uint64
}

// UserThread plays the role the hardware syscall entry stub plays on a
// real machine: there is no ring-3 transition in a hosted Go process, so
// a UserThread marshals a Syscall into the backing TCB's register frame
// and calls trap.Dispatch directly.
type UserThread struct {
	TCB *tcb.TCB
	k   *trap.Kernel
}

// NewUserThread wires a UserThread around an already-constructed TCB
// (with its CSpace/VSpace roots installed) and the shared kernel
// dispatch context.
func NewUserThread(t *tcb.TCB, k *trap.Kernel) *UserThread {
	return &UserThread{TCB: t, k: k}
}

// Issue marshals call into the thread's register frame and dispatches it
// synchronously, returning the SysError code Dispatch would have written
// to RAX. The caller observes any MRs the syscall wrote back (e.g.
// Receive's badge/message transfer) directly on ut.TCB.Regs afterward.
func (ut *UserThread) Issue(call Syscall) kernelerr.SysError {
	ut.TCB.Regs.RAX = call.Number
	ut.TCB.Regs.RDI = call.Args[0]
	ut.TCB.Regs.RSI = call.Args[1]
	ut.TCB.Regs.RDX = call.Args[2]
	ut.TCB.Regs.R10 = call.Args[3]
	ut.TCB.Regs.R8 = call.Args[4]
	ut.TCB.Regs.R9 = call.Args[5]
	return trap.Dispatch(ut.k, ut.TCB)
}
