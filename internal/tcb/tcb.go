// Package tcb defines the thread control block: the one object every other
// core subsystem reaches into — CSpace via its root slot, VSpace via its
// root slot, IPC via its blocking/queue links, the scheduler via its
// state and deadline. It is kept as a leaf package (depending only on
// capobj) so cspace, vspace, ipc, and sched can all depend on it without
// creating an import cycle.
package tcb

import "github.com/ricoqos/chick/internal/capobj"

// State is the thread's run state.
type State uint8

const (
	Inactive State = iota
	Ready
	Running
	Restart
	BlockedOnSend
	BlockedOnReceive
	BlockedOnReply
	BlockedOnNotification
	Idle
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Restart:
		return "Restart"
	case BlockedOnSend:
		return "BlockedOnSend"
	case BlockedOnReceive:
		return "BlockedOnReceive"
	case BlockedOnReply:
		return "BlockedOnReply"
	case BlockedOnNotification:
		return "BlockedOnNotification"
	case Idle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// Blocked reports whether s is one of the four Blocked* states.
func (s State) Blocked() bool {
	switch s {
	case BlockedOnSend, BlockedOnReceive, BlockedOnReply, BlockedOnNotification:
		return true
	default:
		return false
	}
}

// Frame is the saved user register image: 15 general-purpose registers
// plus the five words the CPU itself pushes on a trap (RIP, CS, RFLAGS,
// RSP, SS) and the error code word beneath them. Restoring it is the only
// suspension point the kernel has.
type Frame struct {
	R15, R14, R13, R12 uint64
	R11, R10, R9, R8   uint64
	RBP, RDI, RSI      uint64
	RDX, RCX, RBX, RAX uint64

	ErrorCode uint64

	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Message register indices. (MR1..MR6) = (RDI, RSI, R10, R8, R9, R15);
// this table is the only place that mapping may appear.
const (
	MR1 = iota // RDI
	MR2        // RSI
	MR3        // R10
	MR4        // R8
	MR5        // R9
	MR6        // R15
	NumMR
)

// MR reads message register n (one of the MR1..MR6 constants above,
// which number from 0).
func (f *Frame) MR(n int) uint64 {
	switch n {
	case MR1:
		return f.RDI
	case MR2:
		return f.RSI
	case MR3:
		return f.R10
	case MR4:
		return f.R8
	case MR5:
		return f.R9
	case MR6:
		return f.R15
	default:
		return 0
	}
}

// SetMR writes message register n.
func (f *Frame) SetMR(n int, v uint64) {
	switch n {
	case MR1:
		f.RDI = v
	case MR2:
		f.RSI = v
	case MR3:
		f.R10 = v
	case MR4:
		f.R8 = v
	case MR5:
		f.R9 = v
	case MR6:
		f.R15 = v
	}
}

// SchedContext is the scheduling-relevant half of a TCB: its absolute
// deadline and budget accounting.
type SchedContext struct {
	Deadline uint64 // absolute tick at which this thread must have run
	Period   uint64 // ticks between successive deadlines, for periodic tasks
	Consumed uint64 // ticks consumed since the last deadline
}

// Fault describes a fault reflected to the faulting thread rather than
// handled in the kernel.
type Fault struct {
	Kind    FaultKind
	Addr    uint64
	Code    uint64
	Present bool
}

type FaultKind uint8

const (
	NoFault FaultKind = iota
	FaultPageFault
	FaultUnknownSyscall
	FaultUserException
	FaultDebugException
)

// TCB is the thread control block (1024-byte-aligned conceptually — this
// is a Go heap object, not a literal byte layout).
type TCB struct {
	Name string // debug label only, never consulted by kernel logic

	Regs  Frame
	State State
	Sched SchedContext

	CSpaceRoot *capobj.CapRaw // this thread's root CNode capability
	VSpaceRoot *capobj.CapRaw // this thread's root VSpace capability
	IPCBuffer  *capobj.CapRaw // frame capability backing the IPC buffer

	Fault Fault

	// Endpoint queue links; valid only while State.Blocked().
	QNext, QPrev *TCB
	// BlockingObject is an opaque back-pointer to the endpoint this TCB
	// is queued on, compared by identity only.
	BlockingObject any

	// IPC staging fields, latched by Send before a thread actually
	// blocks, and read back out once a rendezvous completes.
	Badge         uint64
	CanGrant      bool
	CanGrantReply bool
	IsCall        bool

	// GrantCptr names, in this thread's own CSpace, the capability slot
	// offered for granting (sender side, valid when CanGrant) or the
	// destination slot a granted capability should land in (receiver
	// side, latched by Receive). Staged the same way Badge is, so the
	// slot is still known once a blocked rendezvous finally completes.
	GrantCptr    uint32
	GrantDstCptr uint32

	// ReplySlotCptr names, in this thread's own CSpace, the Null slot a
	// one-shot Reply capability should be deposited into when a matched
	// sender turns out to be calling. 0 declines the deposit; the reply
	// relationship itself (Caller/ReplyTo below) is installed either way.
	ReplySlotCptr uint32

	// Reply relationship: at most one of these is meaningful at a time,
	// depending on whether this TCB is the callee (Caller != nil) or the
	// caller (ReplyTo != nil).
	Caller  *TCB
	ReplyTo *TCB
}

// New returns a freshly constructed, Inactive TCB.
func New(name string) *TCB {
	return &TCB{Name: name, State: Inactive}
}

// Runnable reports whether t is in the Ready state. (sched.Queue.Enqueue
// also accepts a Restart thread.)
func (t *TCB) Runnable() bool {
	return t.State == Ready
}
