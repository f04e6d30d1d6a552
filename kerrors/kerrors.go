// Package kerrors provides typed error handling for the kernel.
//
// It defines the error taxonomy a caller needs to distinguish programmer
// mistakes from resource exhaustion from genuine kernel faults, and
// supports the standard errors.Is()/errors.As() for error inspection.
package kerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a KernelError.
type Kind int

const (
	// Invalid indicates a bad argument (out-of-range pid/sid/priority, nil
	// callback, zero delay where one is required, and similar).
	Invalid Kind = iota
	// InvalidState indicates the target is not in a state that admits the
	// requested operation (e.g. suspending a FREE pcb, signaling a deleted
	// semaphore).
	InvalidState
	// Exhausted indicates a table (process, semaphore, queue entry, timer)
	// has no free slot.
	Exhausted
	// Cancelled indicates a blocking operation was abandoned because its
	// wait object was torn down out from under it (semdelete, kill).
	Cancelled
	// Timeout indicates a bounded wait expired before its condition.
	Timeout
	// Fatal indicates a kernel invariant was violated; the caller should
	// treat the kernel as unusable.
	Fatal
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid argument"
	case InvalidState:
		return "invalid state"
	case Exhausted:
		return "resource exhausted"
	case Cancelled:
		return "cancelled"
	case Timeout:
		return "timeout"
	case Fatal:
		return "fatal"
	default:
		return "unknown error"
	}
}

// KernelError is the error type returned by every kernel operation that can
// fail.
type KernelError struct {
	// Op is the operation that failed (e.g. "resume", "semcreate").
	Op string
	// Kind is the error classification.
	Kind Kind
	// Detail provides additional human-readable context.
	Detail string
	// Err is the underlying error, if any.
	Err error
}

// Error implements error.
func (e *KernelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := ""
	if e.Op != "" {
		msg = e.Op + ": "
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a *KernelError of the same Kind.
func (e *KernelError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*KernelError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New creates a KernelError with the given kind.
func New(kind Kind, op, detail string) *KernelError {
	return &KernelError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps err with kernel context.
func Wrap(err error, kind Kind, op string) *KernelError {
	return &KernelError{Op: op, Kind: kind, Err: err}
}

// WithDetail wraps err with additional detail.
func WithDetail(err error, kind Kind, op, detail string) *KernelError {
	return &KernelError{Op: op, Kind: kind, Detail: detail, Err: err}
}

// IsKind reports whether err is a *KernelError of the given kind.
func IsKind(err error, kind Kind) bool {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind == kind
	}
	return false
}

// GetKind returns the Kind of err if it is a *KernelError.
func GetKind(err error) (Kind, bool) {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind, true
	}
	return 0, false
}

// Re-exported for callers that don't want to import errors separately.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
