package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nanokernel/driver"
	"nanokernel/kernel"
)

var demoCmd = &cobra.Command{
	Use:       "demo <scenario>",
	Short:     "run a built-in scenario against a fresh kernel",
	ValidArgs: []string{"s1", "s2", "s3", "s4", "s5", "s6"},
	Args:      cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scenario, ok := scenarios[args[0]]
		if !ok {
			return fmt.Errorf("unknown scenario %q", args[0])
		}
		cfg := kernel.DefaultConfig()
		stacks := driver.NewStackAllocator(int(cfg.NPROC) * 4096)
		k, err := kernel.New(cfg, kernel.WithStackAllocator(stacks))
		if err != nil {
			return err
		}
		return scenario(k)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

var scenarios = map[string]func(*kernel.Kernel) error{
	"s1": demoS1,
	"s2": demoS2,
	"s3": demoS3,
	"s4": demoS4,
	"s5": demoS5,
	"s6": demoS6,
}

// demoS1 is the priority preemption scenario: a low-priority process
// resumes a higher-priority one and is immediately preempted.
func demoS1(k *kernel.Kernel) error {
	var order []string
	pa, _ := k.Create("P_A", 20, 4096, func(k *kernel.Kernel, self int32) {
		order = append(order, "A-start")
		pb, _ := k.Create("P_B", 50, 4096, func(k *kernel.Kernel, self int32) {
			order = append(order, "B-run")
		})
		_ = k.Resume(pb)
		order = append(order, "A-resume")
	})
	if err := k.Resume(pa); err != nil {
		return err
	}
	k.WaitIdle()
	fmt.Println(order)
	return nil
}

// demoS2 is the FIFO-on-semaphore scenario.
func demoS2(k *kernel.Kernel) error {
	sid, err := k.SemCreate(0)
	if err != nil {
		return err
	}
	var order []string
	names := []string{"P1", "P2", "P3"}
	for _, name := range names {
		name := name
		pid, err := k.Create(name, 40, 4096, func(k *kernel.Kernel, self int32) {
			if err := k.Wait(sid); err == nil {
				order = append(order, name)
			}
		})
		if err != nil {
			return err
		}
		if err := k.Resume(pid); err != nil {
			return err
		}
	}
	for i := 0; i < 3; i++ {
		if err := k.Signal(sid); err != nil {
			return err
		}
	}
	k.WaitIdle()
	fmt.Println(order)
	return nil
}

// demoS3 is the sleep delta preservation scenario.
func demoS3(k *kernel.Kernel) error {
	wake := make(map[string]uint64)
	spawn := func(name string, delay uint32) int32 {
		pid, _ := k.Create(name, 20, 4096, func(k *kernel.Kernel, self int32) {
			_ = k.Sleep(delay)
			wake[name] = k.GetTicks()
		})
		_ = k.Resume(pid)
		return pid
	}
	px := spawn("P_X", 50)
	spawn("P_Y", 30)
	spawn("P_Z", 70)

	for i := 0; i < 30; i++ {
		k.Tick()
	}
	_ = k.Unsleep(px)
	for i := 0; i < 140; i++ {
		k.Tick()
	}
	// P_X is suspended after Unsleep; kill it so WaitIdle can return.
	_ = k.Kill(px)
	k.WaitIdle()
	fmt.Printf("Y=%d Z=%d (X unslept, never fired)\n", wake["P_Y"], wake["P_Z"])
	return nil
}

// demoS4 is the semaphore-deletion-wakes-waiters scenario.
func demoS4(k *kernel.Kernel) error {
	sid, err := k.SemCreate(0)
	if err != nil {
		return err
	}
	var result error
	pid, err := k.Create("P1", 20, 4096, func(k *kernel.Kernel, self int32) {
		result = k.Wait(sid)
	})
	if err != nil {
		return err
	}
	if err := k.Resume(pid); err != nil {
		return err
	}
	if err := k.SemDelete(sid); err != nil {
		return err
	}
	k.WaitIdle()
	fmt.Printf("P1's wait returned: %v\n", result)
	return nil
}

// demoS5 is the preemption quantum scenario: two equal-priority
// CPU-bound processes alternate roughly every quantum.
func demoS5(k *kernel.Kernel) error {
	var switches []string
	spin := func(name string) kernel.Body {
		return func(k *kernel.Kernel, self int32) {
			for i := 0; i < 5; i++ {
				switches = append(switches, name)
				k.Checkpoint(self)
			}
		}
	}
	p1, _ := k.Create("P1", 30, 4096, spin("P1"))
	p2, _ := k.Create("P2", 30, 4096, spin("P2"))
	_ = k.Resume(p1)
	_ = k.Resume(p2)

	quantum := k.Config().Quantum
	for i := uint32(0); i < quantum*20; i++ {
		k.Tick()
	}
	k.WaitIdle()
	fmt.Println(switches)
	return nil
}

// demoS6 is the message rendezvous scenario.
func demoS6(k *kernel.Kernel) error {
	var received uint32
	var recvErr error
	precv, err := k.Create("P_recv", 20, 4096, func(k *kernel.Kernel, self int32) {
		received, recvErr = k.Receive()
	})
	if err != nil {
		return err
	}
	if err := k.Resume(precv); err != nil {
		return err
	}

	// Wait for the receiver to actually park in Receive before sending,
	// rather than racing it.
	for i := 0; i < 1000; i++ {
		if st, _ := k.GetState(precv); st == kernel.StateReceiving {
			break
		}
		time.Sleep(100 * time.Microsecond)
	}

	if err := k.Send(precv, 0xDEADBEEF); err != nil {
		return err
	}
	second := k.Send(precv, 0x11111111)
	k.WaitIdle()
	fmt.Printf("received=%#x err=%v second-send=%v\n", received, recvErr, second)
	return nil
}
