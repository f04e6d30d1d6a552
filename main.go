// kctl drives an in-process simulation of a small preemptive
// microkernel: process creation and scheduling, counting semaphores, a
// delta-encoded sleep queue, and software timers.
//
// Commands:
//
//	demo <scenario>  - run a built-in scenario (s1-s6) to completion
//	monitor          - boot a kernel and drive it interactively
package main

import (
	"fmt"
	"os"

	"nanokernel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
