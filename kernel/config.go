package kernel

import "nanokernel/kerrors"

// Config bounds every table the kernel allocates. The zero value is not
// valid; use DefaultConfig or validate a custom Config with Validate.
type Config struct {
	// NPROC is the size of the process table.
	NPROC int32
	// NSEM is the size of the semaphore table.
	NSEM int32
	// NQENT is the number of auxiliary queue-entry pairs available beyond
	// the NPROC process entries (one pair per semaphore wait list plus
	// the ready list and the sleep list).
	NQENT int32
	// NTIMERS is the size of the software timer table.
	NTIMERS int32
	// NAMELEN bounds process name length, including the trailing NUL.
	NAMELEN int
	// PriorityMin/PriorityMax/PriorityDefault bound process priorities.
	PriorityMin     int32
	PriorityMax     int32
	PriorityDefault int32
	// CLKFREQ is the number of ticks per simulated second.
	CLKFREQ uint32
	// Quantum is the number of ticks a process may run before an
	// involuntary reschedule is requested.
	Quantum uint32
}

// DefaultConfig returns the reference configuration used throughout
// spec.md §8's seed scenarios.
func DefaultConfig() Config {
	return Config{
		NPROC:           8,
		NSEM:            8,
		NQENT:           24,
		NTIMERS:         32,
		NAMELEN:         16,
		PriorityMin:     1,
		PriorityMax:     99,
		PriorityDefault: 20,
		CLKFREQ:         1000,
		Quantum:         10,
	}
}

// Validate reports whether cfg describes usable table sizes.
func (cfg Config) Validate() error {
	switch {
	case cfg.NPROC <= 1:
		return kerrors.New(kerrors.Invalid, "config", "NPROC must be at least 2 (null process plus one more)")
	case cfg.NSEM <= 0:
		return kerrors.New(kerrors.Invalid, "config", "NSEM must be positive")
	case cfg.NQENT < cfg.NSEM+2:
		return kerrors.New(kerrors.Invalid, "config", "NQENT must cover the ready list, the sleep list, and one list per semaphore")
	case cfg.NTIMERS <= 0:
		return kerrors.New(kerrors.Invalid, "config", "NTIMERS must be positive")
	case cfg.NAMELEN <= 1:
		return kerrors.New(kerrors.Invalid, "config", "NAMELEN must be at least 2")
	case cfg.PriorityMin <= 0 || cfg.PriorityMax <= cfg.PriorityMin:
		return kerrors.New(kerrors.Invalid, "config", "PriorityMin/PriorityMax out of order")
	case cfg.PriorityDefault < cfg.PriorityMin || cfg.PriorityDefault > cfg.PriorityMax:
		return kerrors.New(kerrors.Invalid, "config", "PriorityDefault out of [PriorityMin, PriorityMax]")
	case cfg.CLKFREQ == 0:
		return kerrors.New(kerrors.Invalid, "config", "CLKFREQ must be positive")
	case cfg.Quantum == 0:
		return kerrors.New(kerrors.Invalid, "config", "Quantum must be positive")
	}
	return nil
}
