package kernel

import (
	"nanokernel/kerrors"
	"nanokernel/queue"
)

// Send delivers msg to pid's single message slot, readying it and
// rescheduling if it is currently blocked in Receive. Only one message may be outstanding per
// recipient at a time (mirroring the source kernel's single pmsg slot);
// sending to a recipient that already has an undelivered message fails
// rather than overwriting it silently.
func (k *Kernel) Send(pid int32, msg uint32) error {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	p, err := k.pcbLocked(pid)
	if err != nil {
		return err
	}
	if p.hasMsg {
		return kerrors.ErrMessageDiscarded
	}
	p.msg = msg
	p.hasMsg = true

	if p.state == StateReceiving {
		k.wakeReceiverLocked(p)
		k.reschedLocked()
	}
	return nil
}

// wakeReceiverLocked moves a process out of StateReceiving once a message
// has arrived, cancelling any RecvTime deadline racing it. Caller holds
// the critical section.
func (k *Kernel) wakeReceiverLocked(p *pcb) {
	if p.ticket != nil {
		p.ticket.cancel()
		if p.ticket.timerID >= 0 {
			_ = k.timerDeleteLocked(p.ticket.timerID)
		}
		p.ticket = nil
	}
	p.state = StateReady
	_ = k.qp.Insert(queue.ID(p.pid), k.readyQ, p.prio)
}

// Receive blocks the current process until a message arrives, then
// returns it, clearing the slot.
func (k *Kernel) Receive() (uint32, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	pid := k.currPid
	p := k.procs[pid]
	if p.hasMsg {
		p.hasMsg = false
		return p.msg, nil
	}

	p.state = StateReceiving
	k.reschedLocked()

	if p.state == StateFree {
		return 0, kerrors.ErrSemDeleted
	}
	// A Send that arrived while parked already cleared hasMsg's counterpart
	// by readying us with the message left in place; consume it now.
	p.hasMsg = false
	return p.msg, nil
}

// RecvClr returns the current process's pending message without
// blocking. ok is false if no message was pending.
func (k *Kernel) RecvClr() (msg uint32, ok bool) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	p := k.procs[k.currPid]
	if !p.hasMsg {
		return 0, false
	}
	p.hasMsg = false
	return p.msg, true
}

// RecvTime behaves like Receive but gives up, reporting ErrWaitTimedOut,
// if no message arrives within maxTicks ticks.
func (k *Kernel) RecvTime(maxTicks uint32) (uint32, error) {
	if maxTicks == 0 {
		return 0, kerrors.New(kerrors.Invalid, "recvtime", "maxTicks must be > 0")
	}
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)

	pid := k.currPid
	p := k.procs[pid]
	if p.hasMsg {
		p.hasMsg = false
		return p.msg, nil
	}

	p.state = StateReceiving
	ticket := &waitTicket{}
	p.ticket = ticket
	tid, terr := k.timerCreateLocked(maxTicks, 0, func(k *Kernel) {
		k.recvTimeExpire(pid, ticket)
	})
	if terr != nil {
		ticket.timerID = -1
	} else {
		ticket.timerID = tid
	}

	k.reschedLocked()

	if p.state == StateFree {
		return 0, kerrors.ErrSemDeleted
	}
	if ticket.timedOut {
		return 0, kerrors.ErrWaitTimedOut
	}
	p.hasMsg = false
	return p.msg, nil
}

// recvTimeExpire is the timer callback backing RecvTime. Caller holds the
// critical section.
func (k *Kernel) recvTimeExpire(pid int32, ticket *waitTicket) {
	if ticket.resolved {
		return
	}
	ticket.resolved = true
	ticket.timedOut = true

	p := k.procs[pid]
	if p.state != StateReceiving {
		return
	}
	p.state = StateReady
	p.ticket = nil
	_ = k.qp.Insert(queue.ID(pid), k.readyQ, p.prio)
}

// HasMessage reports whether pid currently has an undelivered message
// waiting, without consuming it.
func (k *Kernel) HasMessage(pid int32) (bool, error) {
	tok := k.cs.Disable()
	defer k.cs.Restore(tok)
	p, err := k.pcbLocked(pid)
	if err != nil {
		return false, err
	}
	return p.hasMsg, nil
}
