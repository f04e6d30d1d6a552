package kernel

import (
	"fmt"

	"nanokernel/kerrors"
	"nanokernel/queue"
)

// reschedLocked implements resched()'s three-step algorithm: preempt the
// running process only for a strictly higher priority arrival, otherwise
// keep it running (ties favor the incumbent). Caller must hold the
// critical section; it may be released and reacquired before this
// returns.
func (k *Kernel) reschedLocked() {
	old := k.procs[k.currPid]

	if old.state == StateCurrent {
		headPid := k.qp.FirstID(k.readyQ)
		if headPid == queue.Empty || k.procs[headPid].prio <= old.prio {
			return
		}
		old.state = StateReady
		_ = k.qp.Insert(queue.ID(old.pid), k.readyQ, old.prio)
	}

	newpid := k.qp.Dequeue(k.readyQ)
	if newpid == queue.Empty {
		newpid = queue.ID(0)
	}
	newp := k.procs[newpid]
	newp.state = StateCurrent
	k.currPid = int32(newpid)
	k.preemptLeft = k.cfg.Quantum
	k.needResched = false

	if int32(newpid) != old.pid {
		k.switchContext(old, newp)
	}
}

// switchContext hands control to newp and, unless old is the null process
// or is terminating, parks old's goroutine until it is redispatched. See
// package isr's doc comment for why this dip out of the critical section
// is safe.
func (k *Kernel) switchContext(old, newp *pcb) {
	terminating := old.state == StateFree
	oldIsNull := old.pid == 0
	newIsNull := newp.pid == 0

	k.cs.ExitForSwitch()
	if !newIsNull {
		newp.turn <- struct{}{}
	}
	if !oldIsNull && !terminating {
		<-old.turn
	}
	k.cs.EnterAfterSwitch()
}

// waitForFirstDispatch blocks a freshly created process's goroutine until
// Resume schedules it for the first time. It reports whether the process
// was killed before ever running.
func (k *Kernel) waitForFirstDispatch(p *pcb) (killed bool) {
	<-p.turn
	k.cs.EnterAfterSwitch()
	killed = p.state == StateFree
	k.cs.ExitForSwitch()
	return killed
}

// Checkpoint is the cooperative preemption point described in
// SPEC_FULL.md: a process body that does not otherwise call a blocking
// kernel primitive should call this periodically so quantum expiry
// (raised by Tick, observed here) actually takes effect. It is a no-op if
// no reschedule is due. When one is due, the caller is placed behind any
// ready process of equal or higher priority before resched() runs, so
// equal-priority processes take turns.
func (k *Kernel) Checkpoint(pid int32) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	if pid != k.currPid || !k.needResched {
		return
	}
	k.needResched = false
	p := k.procs[pid]
	if head := k.qp.FirstID(k.readyQ); head != queue.Empty && k.procs[head].prio >= p.prio {
		p.state = StateReady
		_ = k.qp.Insert(queue.ID(pid), k.readyQ, p.prio)
	}
	k.reschedLocked()
}

// Create allocates a process table entry in the suspended state and
// starts its body on its own goroutine, parked until Resume. Returns the
// new pid. An out-of-range priority is clamped into
// [PriorityMin, PriorityMax] rather than rejected (range-rejection is
// Chprio's job); if a stack allocator is attached, a stack that cannot be
// reserved releases the pid and fails the call.
func (k *Kernel) Create(name string, prio int32, stackWords int, body Body) (int32, error) {
	if prio < k.cfg.PriorityMin {
		prio = k.cfg.PriorityMin
	} else if prio > k.cfg.PriorityMax {
		prio = k.cfg.PriorityMax
	}
	if len(name) >= k.cfg.NAMELEN {
		name = name[:k.cfg.NAMELEN-1]
	}

	tok := k.cs.Disable()
	var pid int32 = -1
	for i := int32(1); i < k.cfg.NPROC; i++ {
		if k.procs[i].state == StateFree {
			pid = i
			break
		}
	}
	if pid == -1 {
		k.cs.Restore(tok)
		return -1, kerrors.ErrProcTableFull
	}

	if k.stackAlloc != nil {
		if err := k.stackAlloc.Alloc(stackWords); err != nil {
			k.cs.Restore(tok)
			return -1, kerrors.WithDetail(err, kerrors.Exhausted, "create", "stack allocation failed")
		}
	}

	p := k.procs[pid]
	*p = *newPCB(pid)
	p.state = StateSuspended
	p.prio = prio
	p.name = name
	p.stackWords = stackWords
	k.numProc++
	k.cs.Restore(tok)

	k.log.Info("process created", "pid", pid, "name", name, "prio", prio)
	k.fire(EventProcessCreated, map[string]any{"pid": pid, "name": name})

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		killed := k.waitForFirstDispatch(p)
		if !killed {
			body(k, pid)
		}
		k.selfExit(pid)
	}()

	return pid, nil
}

// selfExit runs the tail of a process body: if it was killed before or
// during its run the bookkeeping already happened elsewhere, so this only
// needs to close done; otherwise it performs the same cleanup Kill would.
func (k *Kernel) selfExit(pid int32) {
	tok := k.cs.Disable()
	p := k.procs[pid]
	if p.state == StateFree {
		k.cs.Restore(tok)
		close(p.done)
		return
	}
	k.killLocked(p)
	k.cs.Restore(tok)
	close(p.done)
}

// Resume moves pid from suspended to ready and reschedules.
func (k *Kernel) Resume(pid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	p, err := k.pcbLocked(pid)
	if err != nil {
		return err
	}
	if p.state != StateSuspended {
		return kerrors.New(kerrors.InvalidState, "resume", fmt.Sprintf("pid %d is not suspended", pid))
	}
	p.state = StateReady
	_ = k.qp.Insert(queue.ID(pid), k.readyQ, p.prio)
	k.fire(EventProcessReady, map[string]any{"pid": pid})
	k.reschedLocked()
	return nil
}

// Suspend moves pid out of the ready list (or out of current) into the
// suspended state.
func (k *Kernel) Suspend(pid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	p, err := k.pcbLocked(pid)
	if err != nil {
		return err
	}
	switch p.state {
	case StateReady:
		_ = k.qp.Remove(queue.ID(pid))
		p.state = StateSuspended
	case StateCurrent:
		if k.numProc <= 1 {
			return kerrors.ErrSuspendCurrent
		}
		p.state = StateSuspended
		k.reschedLocked()
	default:
		return kerrors.New(kerrors.InvalidState, "suspend", fmt.Sprintf("pid %d is not ready or current", pid))
	}
	return nil
}

// Kill frees pid's process table entry, detaching it from whichever list
// currently holds it, and reschedules if pid was current. Killing the
// null process is rejected.
func (k *Kernel) Kill(pid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	if pid == 0 {
		return kerrors.ErrKillNull
	}
	p, err := k.pcbLocked(pid)
	if err != nil {
		return err
	}
	k.killLocked(p)
	return nil
}

// killLocked performs the state transition and detachment shared by Kill
// and selfExit. Caller holds the critical section.
func (k *Kernel) killLocked(p *pcb) {
	pid := p.pid
	switch p.state {
	case StateReady:
		_ = k.qp.Remove(queue.ID(pid))
	case StateSleeping:
		_ = k.qp.GetItem(queue.ID(pid), k.sleepQ)
	case StateWaiting:
		// Fix for the source kernel's kill(): detach pid from the
		// semaphore's wait queue before touching count, so a killed
		// waiter never leaves the semaphore's invariant (count equals
		// -1 times the number of actually still-waiting processes)
		// broken by an unconditional increment.
		sid := p.wait
		if sid >= 0 && int32(sid) < k.cfg.NSEM && k.sems[sid].state == semInUse {
			_ = k.qp.Remove(queue.ID(pid))
			k.sems[sid].count++
		}
	case StateReceiving:
		// no queue membership to detach from
	case StateSuspended, StateCurrent:
		// no queue membership to detach from
	}
	if p.ticket != nil {
		p.ticket.cancel()
		p.ticket = nil
	}
	if k.stackAlloc != nil {
		k.stackAlloc.Free(p.stackWords)
	}

	p.state = StateFree
	p.wait = int32(queue.Empty)
	k.numProc--

	k.log.Info("process killed", "pid", pid)
	k.fire(EventProcessKilled, map[string]any{"pid": pid})

	if pid == k.currPid {
		k.reschedLocked()
		return
	}
	// pid is not current, so its goroutine is parked on turn (either in
	// waitForFirstDispatch, waiting for its first Resume, or in
	// switchContext's <-old.turn after being switched away from). Wake it
	// so it can observe state == Free and unwind instead of leaking
	// forever. The send only needs its matching receive to execute, which
	// happens immediately since that goroutine is already blocked there;
	// it does not need this call's lock released first.
	p.turn <- struct{}{}
}

// GetPid returns the currently running process's pid.
func (k *Kernel) GetPid() int32 {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return k.currPid
}

// GetPrio returns pid's priority.
func (k *Kernel) GetPrio(pid int32) (int32, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	p, err := k.pcbLocked(pid)
	if err != nil {
		return 0, err
	}
	return p.prio, nil
}

// GetState returns pid's current lifecycle state.
func (k *Kernel) GetState(pid int32) (State, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	p, err := k.pcbLocked(pid)
	if err != nil {
		return 0, err
	}
	return p.state, nil
}

// GetName returns pid's name.
func (k *Kernel) GetName(pid int32) (string, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	p, err := k.pcbLocked(pid)
	if err != nil {
		return "", err
	}
	return p.name, nil
}

// Chprio changes pid's priority, reinserting it into the ready list in
// its new priority position if it was ready, and returns its previous
// priority.
func (k *Kernel) Chprio(pid int32, newPrio int32) (int32, error) {
	if newPrio < k.cfg.PriorityMin || newPrio > k.cfg.PriorityMax {
		return 0, kerrors.ErrBadPriority
	}

	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	p, err := k.pcbLocked(pid)
	if err != nil {
		return 0, err
	}
	old := p.prio
	p.prio = newPrio

	if p.state == StateReady {
		_ = k.qp.Remove(queue.ID(pid))
		_ = k.qp.Insert(queue.ID(pid), k.readyQ, newPrio)
	}
	if pid == k.currPid || p.state == StateReady {
		k.reschedLocked()
	}
	return old, nil
}

// Yield gives up the remainder of the current process's quantum
// unconditionally, mirroring the source kernel's yield_quantum().
func (k *Kernel) Yield() {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	k.preemptLeft = 0
	k.needResched = false
	k.reschedLocked()
}
