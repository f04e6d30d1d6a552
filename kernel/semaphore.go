package kernel

import (
	"nanokernel/kerrors"
	"nanokernel/queue"
)

type semState int32

const (
	semFree semState = iota
	semInUse
)

// semaphore is one counting semaphore. nextFree threads the free list
// explicitly rather than overloading count (the source kernel's
// init_semaphores chains count=i+1 through unused slots, which makes the
// free list unreadable from a live semaphore's count and was flagged as
// worth correcting).
type semaphore struct {
	state    semState
	count    int32
	waitQ    queue.ID
	nextFree int32
}

// waitTicket is the unified wait object backing timedwait/recvtime: a
// bounded wait is resolved by exactly one of two independent paths (the
// condition being signaled, or the timer expiring), and each path must be
// able to see whether the other has already won before acting. Without
// this, a timeout firing after a signal already dequeued the process (or
// vice versa) would double-ready it or leave the semaphore's count
// permanently off by one — the failure mode spec.md's open question about
// timedwait/recvtime names.
type waitTicket struct {
	resolved bool
	timedOut bool
	timerID  int32
}

func (t *waitTicket) cancel() {
	t.resolved = true
}

func (k *Kernel) semLocked(sid int32) (*semaphore, error) {
	if sid < 0 || sid >= k.cfg.NSEM {
		return nil, kerrors.ErrBadSid
	}
	s := &k.sems[sid]
	if s.state != semInUse {
		return nil, kerrors.ErrSemFree
	}
	return s, nil
}

// SemCreate allocates a semaphore initialized to count and returns its id.
func (k *Kernel) SemCreate(count int32) (int32, error) {
	if count < 0 {
		return -1, kerrors.New(kerrors.Invalid, "semcreate", "initial count must be >= 0")
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	if k.semFreeHead < 0 {
		return -1, kerrors.ErrSemTableFull
	}
	sid := k.semFreeHead
	s := &k.sems[sid]
	k.semFreeHead = s.nextFree
	s.state = semInUse
	s.count = count
	s.nextFree = -1
	return sid, nil
}

// Wait decrements sid's count, blocking the caller if it goes negative.
func (k *Kernel) Wait(sid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	s, err := k.semLocked(sid)
	if err != nil {
		return err
	}
	s.count--
	if s.count >= 0 {
		return nil
	}

	pid := k.currPid
	p := k.procs[pid]
	p.state = StateWaiting
	p.wait = sid
	_ = k.qp.Enqueue(queue.ID(pid), s.waitQ)

	k.reschedLocked()

	if p.state == StateFree {
		return kerrors.ErrSemDeleted
	}
	return nil
}

// TryWait decrements sid's count only if it would remain >= 0, otherwise
// reports ErrWouldBlock without blocking.
func (k *Kernel) TryWait(sid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	s, err := k.semLocked(sid)
	if err != nil {
		return err
	}
	if s.count <= 0 {
		return kerrors.ErrWouldBlock
	}
	s.count--
	return nil
}

// TimedWait behaves like Wait but abandons the wait, restoring sid's
// count, if no Signal arrives within maxTicks ticks.
func (k *Kernel) TimedWait(sid int32, maxTicks uint32) error {
	if maxTicks == 0 {
		return kerrors.New(kerrors.Invalid, "timedwait", "maxTicks must be > 0")
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	s, err := k.semLocked(sid)
	if err != nil {
		return err
	}
	s.count--
	if s.count >= 0 {
		return nil
	}

	pid := k.currPid
	p := k.procs[pid]
	p.state = StateWaiting
	p.wait = sid
	_ = k.qp.Enqueue(queue.ID(pid), s.waitQ)

	ticket := &waitTicket{}
	p.ticket = ticket
	tid, terr := k.timerCreateLocked(maxTicks, 0, func(k *Kernel) {
		k.timedWaitExpire(pid, sid, ticket)
	})
	if terr != nil {
		// No timer slot available: the wait proceeds with no timeout and
		// ends only on Signal, SemDelete or Kill.
		ticket.timerID = -1
	} else {
		ticket.timerID = tid
	}

	k.reschedLocked()

	if p.state == StateFree {
		return kerrors.ErrSemDeleted
	}
	if ticket.timedOut {
		return kerrors.ErrWaitTimedOut
	}
	return nil
}

// timedWaitExpire is the timer callback backing TimedWait. Caller
// (process_timers, via Tick) holds the critical section.
func (k *Kernel) timedWaitExpire(pid, sid int32, ticket *waitTicket) {
	if ticket.resolved {
		return
	}
	ticket.resolved = true
	ticket.timedOut = true

	s := &k.sems[sid]
	p := k.procs[pid]
	if p.state != StateWaiting || p.wait != sid {
		return
	}
	_ = k.qp.Remove(queue.ID(pid))
	s.count++
	p.state = StateReady
	p.wait = int32(queue.Empty)
	p.ticket = nil
	_ = k.qp.Insert(queue.ID(pid), k.readyQ, p.prio)
}

// Signal increments sid's count, waking the longest-waiting blocked
// process if any.
func (k *Kernel) Signal(sid int32) error {
	return k.signalN(sid, 1)
}

// SignalN increments sid's count by n, waking up to n waiting processes.
func (k *Kernel) SignalN(sid int32, n int32) error {
	if n <= 0 {
		return kerrors.New(kerrors.Invalid, "signaln", "n must be > 0")
	}
	return k.signalN(sid, n)
}

func (k *Kernel) signalN(sid int32, n int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	s, err := k.semLocked(sid)
	if err != nil {
		return err
	}
	for i := int32(0); i < n; i++ {
		s.count++
		if s.count > 0 {
			continue
		}
		wid := k.qp.Dequeue(s.waitQ)
		if wid == queue.Empty {
			continue
		}
		p := k.procs[wid]
		if p.ticket != nil {
			p.ticket.cancel()
			if p.ticket.timerID >= 0 {
				_ = k.timerDeleteLocked(p.ticket.timerID)
			}
			p.ticket = nil
		}
		p.state = StateReady
		p.wait = int32(queue.Empty)
		_ = k.qp.Insert(queue.ID(wid), k.readyQ, p.prio)
	}
	k.reschedLocked()
	return nil
}

// SemDelete frees sid, waking every waiter with ErrSemDeleted.
func (k *Kernel) SemDelete(sid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	s, err := k.semLocked(sid)
	if err != nil {
		return err
	}
	for {
		wid := k.qp.Dequeue(s.waitQ)
		if wid == queue.Empty {
			break
		}
		p := k.procs[wid]
		if p.ticket != nil {
			if p.ticket.timerID >= 0 {
				_ = k.timerDeleteLocked(p.ticket.timerID)
			}
			p.ticket.cancel()
			p.ticket = nil
		}
		// Cancelled, not readied: the semaphore they were waiting on no
		// longer exists, so there is nothing sensible to resume them
		// into beyond reporting the cancellation.
		k.killLocked(p)
	}
	s.state = semFree
	s.count = 0
	s.nextFree = k.semFreeHead
	k.semFreeHead = sid

	k.fire(EventSemaphoreDeleted, map[string]any{"sid": sid})
	return nil
}

// SemReset is a semdelete that reinstalls a fresh count without
// releasing the slot: every current waiter is drained from the wait
// list and readied — not just enough to absorb the new count — before
// count is installed, so the semaphore never ends up with count >= 0
// and a non-empty wait list (invariant 2).
func (k *Kernel) SemReset(sid int32, count int32) error {
	if count < 0 {
		return kerrors.New(kerrors.Invalid, "semreset", "count must be >= 0")
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	s, err := k.semLocked(sid)
	if err != nil {
		return err
	}
	for {
		wid := k.qp.Dequeue(s.waitQ)
		if wid == queue.Empty {
			break
		}
		p := k.procs[wid]
		if p.ticket != nil {
			if p.ticket.timerID >= 0 {
				_ = k.timerDeleteLocked(p.ticket.timerID)
			}
			p.ticket.cancel()
			p.ticket = nil
		}
		p.state = StateReady
		p.wait = int32(queue.Empty)
		_ = k.qp.Insert(queue.ID(wid), k.readyQ, p.prio)
	}
	s.count = count
	k.reschedLocked()
	return nil
}

// SemCount returns sid's current count.
func (k *Kernel) SemCount(sid int32) (int32, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	s, err := k.semLocked(sid)
	if err != nil {
		return 0, err
	}
	return s.count, nil
}

// SemInfo describes a semaphore's externally visible state.
type SemInfo struct {
	SID      int32
	Count    int32
	NWaiting int32
}

// SemaphoreInfo returns sid's count and current waiter count.
func (k *Kernel) SemaphoreInfo(sid int32) (SemInfo, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	s, err := k.semLocked(sid)
	if err != nil {
		return SemInfo{}, err
	}
	return SemInfo{SID: sid, Count: s.count, NWaiting: k.qp.Len(s.waitQ)}, nil
}

func (s semState) String() string {
	if s == semInUse {
		return "in-use"
	}
	return "free"
}
