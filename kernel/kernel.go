// Package kernel implements the scheduler, semaphore, clock/sleep, timer,
// and IPC rendezvous subsystems as one cohesive state machine, mirroring
// how tightly those pieces are coupled in the source kernel: the
// scheduler's resched() is called from inside semaphore wait/signal, the
// clock tick wakes sleepers by readying them onto the very list the
// scheduler dequeues from, and a killed process must be unlinked from
// whichever of those lists currently holds it.
package kernel

import (
	"log/slog"
	"sync"

	"nanokernel/isr"
	"nanokernel/kerrors"
	"nanokernel/logging"
	"nanokernel/queue"
)

// Event identifies a lifecycle transition a hook registry can subscribe
// to. See the hooks package.
type Event string

const (
	EventProcessCreated   Event = "process-created"
	EventProcessReady     Event = "process-ready"
	EventProcessKilled    Event = "process-killed"
	EventSemaphoreDeleted Event = "semaphore-deleted"
	EventTimerExpired     Event = "timer-expired"
)

// HookRunner is satisfied by hooks.Registry; kept as an interface here so
// this package does not import hooks (hooks is ambient observability, the
// core must not depend on it to function).
type HookRunner interface {
	Fire(event string, payload map[string]any)
}

// StackAllocator is satisfied by driver.StackAllocator; kept as an
// interface here so this package does not import driver (driver imports
// kernel, not the other way around). When attached, Create reserves
// stackWords before committing a new pcb and killLocked returns them,
// exercising the source kernel's getstk/freestk exhaustion path.
type StackAllocator interface {
	Alloc(words int) error
	Free(words int)
}

// Kernel owns every table the scheduler, semaphore, clock, and IPC
// subsystems operate on, and the single critical section serializing
// access to them.
type Kernel struct {
	cfg Config
	cs  isr.CriticalSection
	log *slog.Logger
	hr  HookRunner

	stackAlloc StackAllocator

	qp     *queue.Pool
	readyQ queue.ID
	sleepQ queue.ID

	procs   []*pcb
	currPid int32
	numProc int32

	sems        []semaphore
	semFreeHead int32

	timers []timer

	ticks        uint64
	secTicks     uint32
	clockSeconds uint32
	uptimeDays   uint32
	uptimeH      uint8
	uptimeM      uint8
	uptimeS      uint8
	clkdefer     int32
	preemptLeft  uint32
	needResched  bool

	wg sync.WaitGroup
}

// Option configures a Kernel at construction time.
type Option func(*Kernel)

// WithLogger overrides the default (package-level) logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.log = l }
}

// WithHooks attaches a lifecycle hook registry. The core never requires
// one; operations that omit it simply skip firing events.
func WithHooks(hr HookRunner) Option {
	return func(k *Kernel) { k.hr = hr }
}

// WithStackAllocator attaches a stack allocator. When unset, Create never
// simulates stack exhaustion (stackWords is accounting-only, as before).
func WithStackAllocator(a StackAllocator) Option {
	return func(k *Kernel) { k.stackAlloc = a }
}

// New allocates every kernel table per cfg and boots the null process.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg:         cfg,
		log:         logging.Default(),
		procs:       make([]*pcb, cfg.NPROC),
		sems:        make([]semaphore, cfg.NSEM),
		timers:      make([]timer, cfg.NTIMERS),
		semFreeHead: -1,
		preemptLeft: cfg.Quantum,
	}
	for _, opt := range opts {
		opt(k)
	}

	qp := queue.NewPool(cfg.NPROC, cfg.NQENT)
	k.qp = qp

	readyQ, err := qp.NewList()
	if err != nil {
		return nil, err
	}
	sleepQ, err := qp.NewList()
	if err != nil {
		return nil, err
	}
	k.readyQ = readyQ
	k.sleepQ = sleepQ

	for i := cfg.NSEM - 1; i >= 0; i-- {
		waitQ, err := qp.NewList()
		if err != nil {
			return nil, err
		}
		k.sems[i] = semaphore{state: semFree, nextFree: k.semFreeHead, waitQ: waitQ}
		k.semFreeHead = int32(i)
	}

	null := newPCB(0)
	null.state = StateCurrent
	null.prio = cfg.PriorityMin
	null.name = "null"
	k.procs[0] = null
	k.currPid = 0
	k.numProc = 1

	for i := int32(1); i < cfg.NPROC; i++ {
		k.procs[i] = newPCB(i)
		k.procs[i].state = StateFree
	}

	k.log.Info("kernel booted", "nproc", cfg.NPROC, "nsem", cfg.NSEM, "quantum", cfg.Quantum)
	return k, nil
}

// Config returns the configuration the kernel was constructed with.
func (k *Kernel) Config() Config { return k.cfg }

func (k *Kernel) fire(event Event, payload map[string]any) {
	if k.hr == nil {
		return
	}
	k.hr.Fire(string(event), payload)
}

func (k *Kernel) validPid(pid int32) bool {
	return pid >= 0 && pid < k.cfg.NPROC
}

// pcbLocked returns the pcb for pid. Caller must hold the critical section.
func (k *Kernel) pcbLocked(pid int32) (*pcb, error) {
	if !k.validPid(pid) {
		return nil, kerrors.ErrBadPid
	}
	p := k.procs[pid]
	if p.state == StateFree {
		return nil, kerrors.ErrProcFree
	}
	return p, nil
}

// ProcCount returns the number of non-FREE process table entries,
// mirroring the source kernel's nprocs()/get_proc_count(-1).
func (k *Kernel) ProcCount() int32 {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return k.numProc
}

// Info returns a race-free snapshot of every live process, ordered by pid.
func (k *Kernel) Info() []Snapshot {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	out := make([]Snapshot, 0, k.numProc)
	for _, p := range k.procs {
		if p.state == StateFree {
			continue
		}
		out = append(out, Snapshot{Pid: p.pid, State: p.state, Prio: p.prio, Name: p.name})
	}
	return out
}

// WaitIdle blocks until every process body goroutine has returned. Intended
// for orderly shutdown in tests and the CLI's demo runner, not for use by
// process bodies themselves.
func (k *Kernel) WaitIdle() {
	k.wg.Wait()
}
