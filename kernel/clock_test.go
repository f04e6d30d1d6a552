package kernel

import (
	"sync"
	"testing"
)

// TestSleepDeltaPreservation is scenario S3: unsleeping a process whose
// delay is encoded relative to its predecessors must not disturb the
// absolute wake time of processes still behind it in the list — the
// removed node's remaining delta must be folded into its successor.
func TestSleepDeltaPreservation(t *testing.T) {
	k := newTestKernel(t)

	wakeAt := make(map[string]uint64)
	spawn := func(name string, delay uint32) int32 {
		pid, err := k.Create(name, 20, 64, func(k *Kernel, self int32) {
			if err := k.Sleep(delay); err != nil {
				return
			}
			wakeAt[name] = k.GetTicks()
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if err := k.Resume(pid); err != nil {
			t.Fatalf("resume %s: %v", name, err)
		}
		waitForState(t, k, pid, StateSleeping)
		return pid
	}

	px := spawn("P_X", 50)
	py := spawn("P_Y", 30)
	spawn("P_Z", 70)

	for i := 0; i < 30; i++ {
		k.Tick()
	}
	// A freed pid reports StateFree: wait for P_Y's body to finish.
	waitForState(t, k, py, StateFree)
	if _, ok := wakeAt["P_Y"]; !ok {
		t.Fatalf("P_Y should have woken by tick 30")
	}
	if wakeAt["P_Y"] != 30 {
		t.Errorf("P_Y woke at %d, want 30", wakeAt["P_Y"])
	}

	if err := k.Unsleep(px); err != nil {
		t.Fatalf("unsleep P_X: %v", err)
	}

	// Tick up to P_Z's wake time (tick 70) and no further, so the tick it
	// records is the one that woke it.
	for i := 0; i < 40; i++ {
		k.Tick()
	}
	// P_X is suspended after Unsleep; kill it so WaitIdle can return.
	if err := k.Kill(px); err != nil {
		t.Fatalf("kill P_X: %v", err)
	}
	k.WaitIdle()

	if _, woke := wakeAt["P_X"]; woke {
		t.Error("P_X was unslept and should never have recorded a wake time")
	}
	if wakeAt["P_Z"] != 70 {
		t.Errorf("P_Z woke at tick %d, want 70 (delta from the unslept P_X must still count)", wakeAt["P_Z"])
	}
}

// TestSleepZeroYieldsWithoutBlocking is the §8 boundary case: sleep(0)
// behaves as yield rather than a bare no-op. With nothing else ready to
// switch to, yield's resched() call declines to switch and control
// returns immediately — this test pins that it returns at all (a naive
// "block until woken" sleep(0) would hang forever with no sleep-queue
// entry to wake it).
func TestSleepZeroYieldsWithoutBlocking(t *testing.T) {
	k := newTestKernel(t)
	ran := make(chan struct{})
	pid, _ := k.Create("p", 20, 64, func(k *Kernel, self int32) {
		if err := k.Sleep(0); err != nil {
			t.Errorf("sleep(0): %v", err)
		}
		close(ran)
	})
	_ = k.Resume(pid)
	<-ran
	k.WaitIdle()
}

func TestUnsleepRequiresSleepingState(t *testing.T) {
	k := newTestKernel(t)
	pid, _ := k.Create("p", 20, 64, func(*Kernel, int32) {})
	if err := k.Unsleep(pid); err == nil {
		t.Error("expected error unsleeping a suspended (non-sleeping) process")
	}
}

// TestQuantumExpiryRequestsReschedule is a whitebox check that Tick
// only raises needResched (rather than switching directly) once the
// running process's quantum is exhausted, per the cooperative-preemption
// design: Tick never owns the current process's goroutine, so it cannot
// switch away from it directly.
func TestQuantumExpiryRequestsReschedule(t *testing.T) {
	k := newTestKernel(t)
	ready := make(chan struct{})
	proceed := make(chan struct{})
	pid, _ := k.Create("p", 30, 64, func(k *Kernel, self int32) {
		close(ready)
		<-proceed
	})
	if err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}
	<-ready

	quantum := k.Config().Quantum
	for i := uint32(0); i < quantum; i++ {
		k.Tick()
	}

	tok := k.cs.Disable()
	needResched := k.needResched
	currPid := k.currPid
	k.cs.Restore(tok)

	if currPid != pid {
		t.Fatalf("currPid = %d, want %d (Tick must not switch away on its own)", currPid, pid)
	}
	if !needResched {
		t.Error("needResched should be set once the quantum is exhausted")
	}

	close(proceed)
	k.WaitIdle()
}

// TestPreemptionQuantumAlternates is scenario S5: two equal-priority
// CPU-bound processes must not let either monopolize the CPU — each
// checkpoint after its quantum expires must hand off to the other.
func TestPreemptionQuantumAlternates(t *testing.T) {
	k := newTestKernel(t)
	quantum := k.Config().Quantum

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	// Both bodies wait on start until both are on the scheduler, and each
	// drives the clock itself one tick per checkpoint, so quantum expiry
	// lands inside a running body rather than racing it.
	start := make(chan struct{})
	step := func(name string) Body {
		return func(k *Kernel, self int32) {
			<-start
			for i := 0; i < 3; i++ {
				record(name)
				for j := uint32(0); j < quantum; j++ {
					k.Tick()
					k.Checkpoint(self)
				}
			}
		}
	}
	p1, _ := k.Create("P1", 30, 64, step("P1"))
	p2, _ := k.Create("P2", 30, 64, step("P2"))
	_ = k.Resume(p1)
	_ = k.Resume(p2)
	close(start)
	k.WaitIdle()

	mu.Lock()
	defer mu.Unlock()
	if len(order) == 0 {
		t.Fatal("neither process ran")
	}
	maxRun, run := 1, 1
	for i := 1; i < len(order); i++ {
		if order[i] == order[i-1] {
			run++
		} else {
			run = 1
		}
		if run > maxRun {
			maxRun = run
		}
	}
	if maxRun > 2 {
		t.Errorf("longest unbroken run by one process = %d, want <= 2 (neither should monopolize): %v", maxRun, order)
	}
}

func TestTimerCreateAndFire(t *testing.T) {
	k := newTestKernel(t)
	fired := make(chan struct{})
	tid, err := k.TimerCreate(5, 0, func(k *Kernel) {
		close(fired)
	})
	if err != nil {
		t.Fatalf("timercreate: %v", err)
	}
	for i := 0; i < 5; i++ {
		k.Tick()
	}
	select {
	case <-fired:
	default:
		t.Error("timer did not fire within its delay")
	}
	if err := k.TimerDelete(tid); err != nil {
		t.Errorf("timerdelete: %v", err)
	}
}

func TestTimerDeleteUnknownID(t *testing.T) {
	k := newTestKernel(t)
	if err := k.TimerDelete(999); err == nil {
		t.Error("expected error deleting an out-of-range timer id")
	}
}

func TestUptimeAdvancesWithTicks(t *testing.T) {
	k := newTestKernel(t)
	for i := uint32(0); i < k.Config().CLKFREQ; i++ {
		k.Tick()
	}
	u := k.GetUptime()
	if u.Seconds != 1 {
		t.Errorf("uptime seconds = %d, want 1 after CLKFREQ ticks", u.Seconds)
	}
	if u.Ticks != uint64(k.Config().CLKFREQ) {
		t.Errorf("uptime ticks = %d, want %d", u.Ticks, k.Config().CLKFREQ)
	}
}

func TestDeferClockSuppressesWakeupUntilUndefer(t *testing.T) {
	k := newTestKernel(t)
	wokeAt := make(chan uint64, 1)
	pid, _ := k.Create("p", 20, 64, func(k *Kernel, self int32) {
		_ = k.Sleep(3)
		wokeAt <- k.GetTicks()
	})
	_ = k.Resume(pid)

	k.DeferClock()
	for i := 0; i < 10; i++ {
		k.Tick()
	}
	select {
	case <-wokeAt:
		t.Fatal("sleeper woke while clock was deferred")
	default:
	}
	k.UndeferClock()
	k.WaitIdle()

	select {
	case <-wokeAt:
	default:
		t.Error("sleeper never woke after UndeferClock replayed the deferred ticks")
	}
}
