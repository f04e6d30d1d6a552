package kerrors

// Process table errors.
var (
	ErrBadPid = &KernelError{
		Kind:   Invalid,
		Detail: "pid out of range",
	}
	ErrProcFree = &KernelError{
		Kind:   InvalidState,
		Detail: "process does not exist",
	}
	ErrProcTableFull = &KernelError{
		Kind:   Exhausted,
		Detail: "process table full",
	}
	ErrBadPriority = &KernelError{
		Kind:   Invalid,
		Detail: "priority out of range",
	}
	ErrSuspendCurrent = &KernelError{
		Kind:   InvalidState,
		Detail: "cannot suspend the only runnable process",
	}
	ErrKillNull = &KernelError{
		Kind:   Invalid,
		Detail: "the null process cannot be killed",
	}
)

// Semaphore errors.
var (
	ErrBadSid = &KernelError{
		Kind:   Invalid,
		Detail: "semaphore id out of range",
	}
	ErrSemFree = &KernelError{
		Kind:   InvalidState,
		Detail: "semaphore does not exist",
	}
	ErrSemTableFull = &KernelError{
		Kind:   Exhausted,
		Detail: "semaphore table full",
	}
	ErrSemDeleted = &KernelError{
		Kind:   Cancelled,
		Detail: "semaphore deleted while waiting",
	}
	ErrWouldBlock = &KernelError{
		Kind:   InvalidState,
		Detail: "trywait would block",
	}
)

// Clock/sleep/timer errors.
var (
	ErrNotSleeping = &KernelError{
		Kind:   InvalidState,
		Detail: "process is not sleeping",
	}
	ErrTimerTableFull = &KernelError{
		Kind:   Exhausted,
		Detail: "timer table full",
	}
	ErrBadTimer = &KernelError{
		Kind:   Invalid,
		Detail: "timer id out of range or free",
	}
	ErrWaitTimedOut = &KernelError{
		Kind:   Timeout,
		Detail: "bounded wait expired",
	}
)

// Queue substrate errors.
var (
	ErrQueuePoolFull = &KernelError{
		Kind:   Exhausted,
		Detail: "queue entry pool full",
	}
	ErrBadQid = &KernelError{
		Kind:   Invalid,
		Detail: "queue id out of range",
	}
	ErrQueueEmpty = &KernelError{
		Kind:   InvalidState,
		Detail: "queue is empty",
	}
)

// IPC rendezvous errors.
var (
	ErrNoMessage = &KernelError{
		Kind:   InvalidState,
		Detail: "no message pending",
	}
	ErrMessageDiscarded = &KernelError{
		Kind:   InvalidState,
		Detail: "recipient has a message already pending",
	}
)

// Invariant violations.
var (
	ErrInvariantViolated = &KernelError{
		Kind:   Fatal,
		Detail: "kernel invariant violated",
	}
)
