package kernel

import (
	"nanokernel/kerrors"
	"nanokernel/queue"
)

type timerState int32

const (
	timerFree timerState = iota
	timerActive
	timerExpired
	timerStopped
)

type timer struct {
	state    timerState
	expires  uint64
	period   uint64
	callback func(k *Kernel)
}

// Uptime is a human-readable breakdown of ticks-since-boot, grounded on
// the source kernel's uptime struct.
type Uptime struct {
	Days    uint32
	Hours   uint8
	Minutes uint8
	Seconds uint8
	Ticks   uint64
}

// Tick advances the clock by one tick: it runs due timers, wakes expired
// sleepers, and accounts the current process's remaining quantum. It
// never performs a context switch itself (see SPEC_FULL.md's
// cooperative-preemption design decision) except in the one case where
// that is provably safe: nothing is currently running (the null process
// is current), so there is no running goroutine a direct switch could
// strand.
func (k *Kernel) Tick() {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	k.tickLocked()
}

func (k *Kernel) tickLocked() {
	k.ticks++
	k.advanceUptimeLocked()

	if k.clkdefer > 0 {
		k.clkdefer++
		return
	}

	woke := k.processTimersLocked()
	if k.wakeupLocked() {
		woke = true
	}

	needPreempt := false
	if k.preemptLeft > 0 {
		k.preemptLeft--
	}
	if k.preemptLeft == 0 {
		k.preemptLeft = k.cfg.Quantum
		needPreempt = true
	}

	if !woke && !needPreempt {
		return
	}
	if k.currPid == 0 {
		k.reschedLocked()
	} else {
		k.needResched = true
	}
}

func (k *Kernel) advanceUptimeLocked() {
	k.secTicks++
	if k.secTicks < k.cfg.CLKFREQ {
		return
	}
	k.secTicks = 0
	k.clockSeconds++
	k.uptimeS++
	if k.uptimeS < 60 {
		return
	}
	k.uptimeS = 0
	k.uptimeM++
	if k.uptimeM < 60 {
		return
	}
	k.uptimeM = 0
	k.uptimeH++
	if k.uptimeH < 24 {
		return
	}
	k.uptimeH = 0
	k.uptimeDays++
}

// wakeupLocked decrements the sleep queue head's delta by one tick and
// readies every process whose delta has reached zero. Returns whether
// anything was woken.
func (k *Kernel) wakeupLocked() bool {
	_, newKey, ok := k.qp.DecrementFirstKey(k.sleepQ)
	if !ok || newKey > 0 {
		return false
	}
	woke := false
	for k.qp.NonEmpty(k.sleepQ) {
		head := k.qp.FirstID(k.sleepQ)
		if k.qp.Key(head) > 0 {
			break
		}
		pid := k.qp.Dequeue(k.sleepQ)
		p := k.procs[pid]
		if p.state == StateSleeping {
			p.state = StateReady
			_ = k.qp.Insert(queue.ID(pid), k.readyQ, p.prio)
			woke = true
		}
	}
	return woke
}

// processTimersLocked fires every timer whose deadline has passed.
func (k *Kernel) processTimersLocked() bool {
	fired := false
	for i := range k.timers {
		t := &k.timers[i]
		if t.state != timerActive || k.ticks < t.expires {
			continue
		}
		cb := t.callback
		if t.period > 0 {
			t.expires = k.ticks + t.period
		} else {
			t.state = timerExpired
			k.fire(EventTimerExpired, map[string]any{"tid": i})
		}
		if cb != nil {
			cb(k)
			fired = true
		}
	}
	return fired
}

// DeferClock suppresses the side effects of Tick (timer processing,
// sleeper wakeup, quantum accounting) until UndeferClock, while still
// counting elapsed ticks. Used to bracket a section that must not be
// preempted or see sleepers wake mid-way.
func (k *Kernel) DeferClock() {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	k.clkdefer = 1
}

// UndeferClock resumes normal Tick processing, catching up on every tick
// that elapsed while deferred.
func (k *Kernel) UndeferClock() {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	if k.clkdefer <= 1 {
		k.clkdefer = 0
		return
	}
	deferred := k.clkdefer - 1
	k.clkdefer = 0

	woke := false
	for ; deferred > 0; deferred-- {
		if k.processTimersLocked() {
			woke = true
		}
		if k.wakeupLocked() {
			woke = true
		}
	}
	if woke {
		if k.currPid == 0 {
			k.reschedLocked()
		} else {
			k.needResched = true
		}
	}
}

// Sleep blocks the current process for delay ticks. sleep(0) behaves as
// yield rather than a no-op.
func (k *Kernel) Sleep(delay uint32) error {
	if delay == 0 {
		k.Yield()
		return nil
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	pid := k.currPid
	p := k.procs[pid]
	p.state = StateSleeping
	_ = k.qp.InsertDelta(queue.ID(pid), k.sleepQ, int32(delay))

	k.reschedLocked()

	if p.state == StateFree {
		return kerrors.ErrSemDeleted
	}
	return nil
}

// SleepMs blocks the current process for approximately ms milliseconds,
// rounding up to at least one tick.
func (k *Kernel) SleepMs(ms uint32) error {
	ticks := ms * k.cfg.CLKFREQ / 1000
	if ticks == 0 && ms > 0 {
		ticks = 1
	}
	return k.Sleep(ticks)
}

// Unsleep forcibly removes pid from the sleep queue, moving it to
// suspended (mirroring the source kernel, the caller must Resume it
// explicitly — unsleep does not make it ready on its own).
func (k *Kernel) Unsleep(pid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	p, err := k.pcbLocked(pid)
	if err != nil {
		return err
	}
	if p.state != StateSleeping {
		return kerrors.ErrNotSleeping
	}
	_ = k.qp.GetItem(queue.ID(pid), k.sleepQ)
	p.state = StateSuspended
	return nil
}

// GetTicks returns the number of ticks elapsed since boot.
func (k *Kernel) GetTicks() uint64 {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return k.ticks
}

// GetTime returns the number of whole seconds elapsed since boot.
func (k *Kernel) GetTime() uint32 {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return k.clockSeconds
}

// GetUptime returns a structured days/hours/minutes/seconds/ticks
// breakdown, supplementing the distilled spec with the source kernel's
// uptime struct.
func (k *Kernel) GetUptime() Uptime {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return Uptime{
		Days:    k.uptimeDays,
		Hours:   k.uptimeH,
		Minutes: k.uptimeM,
		Seconds: k.uptimeS,
		Ticks:   k.ticks,
	}
}

// timerCreateLocked allocates a timer firing delayTicks from now, or
// every periodTicks if periodTicks > 0. Caller holds the critical
// section.
func (k *Kernel) timerCreateLocked(delayTicks, periodTicks uint32, cb func(*Kernel)) (int32, error) {
	for i := range k.timers {
		if k.timers[i].state == timerFree {
			k.timers[i] = timer{
				state:    timerActive,
				expires:  k.ticks + uint64(delayTicks),
				period:   uint64(periodTicks),
				callback: cb,
			}
			return int32(i), nil
		}
	}
	return -1, kerrors.ErrTimerTableFull
}

func (k *Kernel) timerDeleteLocked(tid int32) error {
	if tid < 0 || int(tid) >= len(k.timers) {
		return kerrors.ErrBadTimer
	}
	k.timers[tid] = timer{}
	return nil
}

// TimerCreate allocates a software timer invoking cb delayTicks from now
// (and every periodTicks thereafter if periodTicks > 0).
func (k *Kernel) TimerCreate(delayTicks, periodTicks uint32, cb func(k *Kernel)) (int32, error) {
	if cb == nil || delayTicks == 0 {
		return -1, kerrors.New(kerrors.Invalid, "timer_create", "callback and delay are required")
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return k.timerCreateLocked(delayTicks, periodTicks, cb)
}

// TimerDelete frees tid.
func (k *Kernel) TimerDelete(tid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	if tid < 0 || int(tid) >= len(k.timers) || k.timers[tid].state == timerFree {
		return kerrors.ErrBadTimer
	}
	return k.timerDeleteLocked(tid)
}

// TimerStop pauses an active timer without freeing its slot.
func (k *Kernel) TimerStop(tid int32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	if tid < 0 || int(tid) >= len(k.timers) || k.timers[tid].state != timerActive {
		return kerrors.ErrBadTimer
	}
	k.timers[tid].state = timerStopped
	return nil
}

// TimerStart (re)arms tid, optionally with a new delay from now.
func (k *Kernel) TimerStart(tid int32, delayTicks uint32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	if tid < 0 || int(tid) >= len(k.timers) || k.timers[tid].state == timerFree {
		return kerrors.ErrBadTimer
	}
	if delayTicks > 0 {
		k.timers[tid].expires = k.ticks + uint64(delayTicks)
	}
	k.timers[tid].state = timerActive
	return nil
}

// SetQuantum changes the preemption quantum, returning the previous
// value.
func (k *Kernel) SetQuantum(ticks uint32) uint32 {
	if ticks == 0 {
		ticks = 1
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	old := k.cfg.Quantum
	k.cfg.Quantum = ticks
	return old
}

// GetQuantum returns the current preemption quantum.
func (k *Kernel) GetQuantum() uint32 {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	return k.cfg.Quantum
}
