// Package isr provides the kernel's sole concurrency primitive: a
// critical section standing in for the source kernel's disable()/restore()
// interrupt mask.
//
// The original kernel ran on a single CPU with no real concurrency, so
// disable()/restore() only ever needed to block hardware interrupts out of
// one code path at a time. This kernel runs each process as a goroutine, so
// the same guarantee — at most one logical flow observes or mutates kernel
// state at a time — is provided by a mutex instead. Every exported kernel
// operation calls Disable exactly once on entry and Restore exactly once on
// exit (typically via defer); internal helpers assume the section is
// already held and never call Disable themselves. That convention, not a
// recursion counter, is what lets resched()'s context switch dip out of
// and back into the critical section mid-call without deadlocking itself.
package isr

import "sync"

// Mask is the token returned by Disable and required by Restore. It carries
// no information — unlike a real interrupt mask there is nothing to save —
// it exists only so call sites keep the disable/restore pairing visible,
// mirroring the source kernel's intmask idiom.
type Mask struct{}

// CriticalSection serializes access to kernel state.
type CriticalSection struct {
	mu sync.Mutex
}

// Disable enters the critical section, blocking until no other flow holds
// it.
func (c *CriticalSection) Disable() Mask {
	c.mu.Lock()
	return Mask{}
}

// Restore leaves the critical section entered by the matching Disable.
func (c *CriticalSection) Restore(Mask) {
	c.mu.Unlock()
}

// ExitForSwitch releases the section around a context switch: the
// goroutine being dispatched runs user code outside the section, and the
// goroutine being suspended parks on its own channel rather than holding
// the lock while idle. Must be paired with EnterAfterSwitch once this flow
// is redispatched.
func (c *CriticalSection) ExitForSwitch() {
	c.mu.Unlock()
}

// EnterAfterSwitch reacquires the section after a context switch parked
// this flow. Pairs with ExitForSwitch.
func (c *CriticalSection) EnterAfterSwitch() {
	c.mu.Lock()
}
