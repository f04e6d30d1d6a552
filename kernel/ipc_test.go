package kernel

import (
	"errors"
	"testing"
	"time"

	"nanokernel/kerrors"
)

// TestMessageRendezvous is scenario S6: a receiver blocks, a sender
// delivers, and a second send before the message is consumed fails.
func TestMessageRendezvous(t *testing.T) {
	k := newTestKernel(t)
	var received uint32
	var recvErr error
	done := make(chan struct{})
	precv, err := k.Create("P_recv", 20, 64, func(k *Kernel, self int32) {
		received, recvErr = k.Receive()
		close(done)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Resume(precv); err != nil {
		t.Fatalf("resume: %v", err)
	}

	waitForState(t, k, precv, StateReceiving)

	if err := k.Send(precv, 0xDEADBEEF); err != nil {
		t.Fatalf("send: %v", err)
	}
	<-done
	k.WaitIdle()

	if recvErr != nil {
		t.Fatalf("receive returned error: %v", recvErr)
	}
	if received != 0xDEADBEEF {
		t.Errorf("received = %#x, want %#x", received, 0xDEADBEEF)
	}
}

func TestSecondSendBeforeReceiveFails(t *testing.T) {
	k := newTestKernel(t)
	recvCh := make(chan struct{})
	pid, err := k.Create("p", 20, 64, func(k *Kernel, self int32) {
		<-recvCh
		_, _ = k.Receive()
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}

	if err := k.Send(pid, 1); err != nil {
		t.Fatalf("first send: %v", err)
	}
	err = k.Send(pid, 2)
	if !errors.Is(err, kerrors.ErrMessageDiscarded) {
		t.Errorf("second send = %v, want ErrMessageDiscarded", err)
	}
	close(recvCh)
	k.WaitIdle()
}

func TestRecvClrNonBlocking(t *testing.T) {
	k := newTestKernel(t)
	pid, err := k.Create("p", 20, 64, func(*Kernel, int32) {})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}
	k.WaitIdle()

	if _, ok := k.RecvClr(); ok {
		t.Error("recvclr on empty slot should report ok=false")
	}
}

func TestRecvTimeExpires(t *testing.T) {
	k := newTestKernel(t)
	resultCh := make(chan error, 1)
	pid, err := k.Create("p", 20, 64, func(k *Kernel, self int32) {
		_, err := k.RecvTime(5)
		resultCh <- err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}

	for i := 0; i < 10; i++ {
		k.Tick()
	}
	k.WaitIdle()

	err = <-resultCh
	if !errors.Is(err, kerrors.ErrWaitTimedOut) {
		t.Fatalf("recvtime result = %v, want ErrWaitTimedOut", err)
	}
}

func TestRecvTimeWinsOverSendCancelsTimer(t *testing.T) {
	k := newTestKernel(t)
	resultCh := make(chan error, 1)
	pid, err := k.Create("p", 20, 64, func(k *Kernel, self int32) {
		_, err := k.RecvTime(1000)
		resultCh <- err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := k.Resume(pid); err != nil {
		t.Fatalf("resume: %v", err)
	}

	waitForState(t, k, pid, StateReceiving)
	if err := k.Send(pid, 42); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := <-resultCh; err != nil {
		t.Fatalf("recvtime result = %v, want nil (won by send)", err)
	}
	for i := 0; i < 1005; i++ {
		k.Tick()
	}
	k.WaitIdle()
}

func waitForState(t *testing.T, k *Kernel, pid int32, want State) {
	t.Helper()
	for i := 0; i < 2000; i++ {
		if st, _ := k.GetState(pid); st == want {
			return
		}
		time.Sleep(100 * time.Microsecond)
	}
	t.Fatalf("pid %d never reached state %v", pid, want)
}
