// Package driver wires the kernel to the outside world: a real clock
// source for Kernel.Tick, and an interactive console for driving a
// running kernel by hand.
package driver

import (
	"time"

	"nanokernel/kernel"
)

// TickSource periodically calls a kernel's Tick until stopped.
type TickSource interface {
	// Run calls tick once per period until Stop is called or the
	// underlying timer fails. It blocks the calling goroutine.
	Run(tick func())
	Stop()
}

// NewTickSource returns the best available TickSource for period,
// expressed in kernel ticks per second (the configured CLKFREQ).
func NewTickSource(hz uint32) TickSource {
	return newTickSource(hz)
}

// Drive runs k's clock off src until src is stopped, intended to be
// launched on its own goroutine (e.g. via go driver.Drive(k, src)).
func Drive(k *kernel.Kernel, src TickSource) {
	src.Run(k.Tick)
}

// tickerSource is the portable fallback driven by time.Ticker, used on
// non-Linux platforms and whenever the Linux timerfd path fails to set
// up.
type tickerSource struct {
	period time.Duration
	stop   chan struct{}
}

func (s *tickerSource) Run(tick func()) {
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			tick()
		}
	}
}

func (s *tickerSource) Stop() {
	close(s.stop)
}
