package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"nanokernel/driver"
	"nanokernel/kernel"
)

var monitorHz uint32

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "boot a kernel and drive it interactively",
	Long: `monitor boots a fresh kernel, starts its clock on a real
timer (a Linux timerfd where available, a time.Ticker otherwise), and
drops into an interactive REPL for inspecting and controlling it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := kernel.DefaultConfig()
		cfg.CLKFREQ = monitorHz
		stacks := driver.NewStackAllocator(int(cfg.NPROC) * 4096)
		k, err := kernel.New(cfg, kernel.WithStackAllocator(stacks))
		if err != nil {
			return err
		}

		src := driver.NewTickSource(monitorHz)
		go driver.Drive(k, src)
		defer src.Stop()

		con := driver.NewConsole(k, os.Stdin, os.Stdout, int(os.Stdin.Fd()))
		if err := con.Start(); err != nil {
			return err
		}
		defer con.Stop()

		return con.Run()
	},
}

func init() {
	monitorCmd.Flags().Uint32Var(&monitorHz, "hz", 100, "clock ticks per second")
	rootCmd.AddCommand(monitorCmd)
}
