package driver

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/term"

	"nanokernel/kernel"
)

// Console is an interactive line-oriented REPL for driving a running
// kernel by hand: ps, kill, resume, sem-create, ticks, and so on. Raw-mode terminal
// handling is grounded on the teacher's PTY exec path, which put stdin
// into raw mode with golang.org/x/term for the duration of an
// interactive session and restored it on exit.
type Console struct {
	k       *kernel.Kernel
	in      io.Reader
	out     io.Writer
	fd      int
	rawFD   bool
	oldTerm *term.State
}

// NewConsole builds a console reading from in and writing to out. If fd
// names a real terminal file descriptor (e.g. int(os.Stdin.Fd())),
// Start puts it into raw mode for the session's duration.
func NewConsole(k *kernel.Kernel, in io.Reader, out io.Writer, fd int) *Console {
	return &Console{k: k, in: in, out: out, fd: fd}
}

// Start enters raw mode if fd is a terminal. Callers that used a real
// terminal fd must call Stop before the process exits.
func (c *Console) Start() error {
	if !term.IsTerminal(c.fd) {
		return nil
	}
	old, err := term.MakeRaw(c.fd)
	if err != nil {
		return fmt.Errorf("make terminal raw: %w", err)
	}
	c.oldTerm = old
	c.rawFD = true
	return nil
}

// Stop restores the terminal to its prior mode, if Start put it into
// raw mode.
func (c *Console) Stop() {
	if c.rawFD && c.oldTerm != nil {
		_ = term.Restore(c.fd, c.oldTerm)
	}
}

// Run reads commands line by line until EOF or a "quit" command.
func (c *Console) Run() error {
	scanner := bufio.NewScanner(c.in)
	fmt.Fprint(c.out, "nanokernel monitor — type help for commands\r\n> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(c.out, "> ")
			continue
		}
		if line == "quit" || line == "exit" {
			return nil
		}
		c.dispatch(line)
		fmt.Fprint(c.out, "> ")
	}
	return scanner.Err()
}

func (c *Console) dispatch(line string) {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "help":
		fmt.Fprint(c.out, "commands: ps, kill <pid>, resume <pid>, suspend <pid>, "+
			"sem-create <n>, sem-signal <sid>, sem-count <sid>, ticks, uptime, quit\r\n")
	case "ps":
		for _, snap := range c.k.Info() {
			fmt.Fprintf(c.out, "%4d %-7s prio=%-3d %s\r\n", snap.Pid, snap.State, snap.Prio, snap.Name)
		}
	case "kill":
		c.withPid(args, func(pid int32) error { return c.k.Kill(pid) })
	case "resume":
		c.withPid(args, func(pid int32) error { return c.k.Resume(pid) })
	case "suspend":
		c.withPid(args, func(pid int32) error { return c.k.Suspend(pid) })
	case "sem-create":
		n := int32(0)
		if len(args) > 0 {
			v, _ := strconv.Atoi(args[0])
			n = int32(v)
		}
		sid, err := c.k.SemCreate(n)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\r\n", err)
			return
		}
		fmt.Fprintf(c.out, "sid=%d\r\n", sid)
	case "sem-signal":
		c.withPid(args, func(sid int32) error { return c.k.Signal(sid) })
	case "sem-count":
		if len(args) == 0 {
			fmt.Fprint(c.out, "usage: sem-count <sid>\r\n")
			return
		}
		sid, _ := strconv.Atoi(args[0])
		n, err := c.k.SemCount(int32(sid))
		if err != nil {
			fmt.Fprintf(c.out, "error: %v\r\n", err)
			return
		}
		fmt.Fprintf(c.out, "count=%d\r\n", n)
	case "ticks":
		fmt.Fprintf(c.out, "%d\r\n", c.k.GetTicks())
	case "uptime":
		u := c.k.GetUptime()
		fmt.Fprintf(c.out, "%dd %02d:%02d:%02d (%d ticks)\r\n", u.Days, u.Hours, u.Minutes, u.Seconds, u.Ticks)
	default:
		fmt.Fprintf(c.out, "unknown command %q\r\n", cmd)
	}
}

func (c *Console) withPid(args []string, fn func(int32) error) {
	if len(args) == 0 {
		fmt.Fprint(c.out, "usage: <cmd> <pid>\r\n")
		return
	}
	v, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "bad pid %q\r\n", args[0])
		return
	}
	if err := fn(int32(v)); err != nil {
		fmt.Fprintf(c.out, "error: %v\r\n", err)
	}
}
