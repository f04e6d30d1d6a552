package kernel

import "nanokernel/queue"

// State is a process's position in its lifecycle, numbered to match
// spec.md §6's process state codes.
type State int32

const (
	StateFree      State = 0
	StateCurrent   State = 1
	StateReady     State = 2
	StateReceiving State = 3
	StateSleeping  State = 4
	StateSuspended State = 5
	StateWaiting   State = 6
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateCurrent:
		return "CURR"
	case StateReady:
		return "READY"
	case StateReceiving:
		return "RECV"
	case StateSleeping:
		return "SLEEP"
	case StateSuspended:
		return "SUSP"
	case StateWaiting:
		return "WAIT"
	default:
		return "???"
	}
}

// Body is a process's entry point: k is the kernel it runs on and self is
// its own pid. When the body returns, the kernel runs Kill's bookkeeping
// for it.
type Body func(k *Kernel, self int32)

// pcb is one process control block. All fields are guarded by the
// kernel's critical section except turn and done, which are channels used
// precisely because they must be touched without holding it.
type pcb struct {
	pid   int32
	state State
	prio  int32
	name  string

	// wait holds the id the process is blocked on: a semaphore id while
	// StateWaiting, or queue.Empty otherwise. It is distinct from the
	// process's position in the ready/sleep lists, which the queue pool
	// tracks itself.
	wait int32

	// ticket is non-nil while the process is inside a bounded wait
	// (timedwait/recvtime) that races a semaphore or message against a
	// timer; see waitTicket.
	ticket *waitTicket

	hasMsg bool
	msg    uint32

	stackWords int // simulated stack size, in words; no real memory backs it

	turn chan struct{} // closed/sent-to by the scheduler to dispatch this pcb
	done chan struct{} // closed once the body has returned and cleanup ran
}

func newPCB(pid int32) *pcb {
	return &pcb{
		pid:  pid,
		wait: int32(queue.Empty),
		turn: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Snapshot is a point-in-time, race-free copy of a pcb's externally
// relevant fields, returned by Kernel.Info.
type Snapshot struct {
	Pid   int32
	State State
	Prio  int32
	Name  string
}
