package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking. Script failures are reported as
// data on the Outcome; Classify maps an outcome back to one of these.
var (
	ErrUnsafeScript   = errors.New("unsafe script")
	ErrExecutionFault = errors.New("script raised an exception")
	ErrSilentStderr   = errors.New("script wrote to stderr")
	ErrLimitExceeded  = errors.New("resource limit exceeded")
	ErrCancelled      = errors.New("execution cancelled")
	ErrInvalidRequest = errors.New("invalid execution request")
)

// ExecutionError wraps errors with execution context.
type ExecutionError struct {
	ExecID string
	Op     string // The operation that failed
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.ExecID != "" {
		return fmt.Sprintf("execution %s: %s: %s", e.ExecID, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Classify returns nil for a successful outcome and otherwise an
// ExecutionError wrapping the sentinel that describes the failure.
func Classify(o *Outcome) error {
	if o == nil || o.Success {
		return nil
	}
	var kind error
	switch o.Kind {
	case KindLimitExceeded:
		kind = ErrLimitExceeded
	case KindCancelled:
		kind = ErrCancelled
	case KindStderr:
		kind = ErrSilentStderr
	default:
		kind = ErrExecutionFault
	}
	return &ExecutionError{ExecID: o.ID, Op: "execute", Err: kind}
}

// IsLimitExceeded returns true if the error is a timeout or other limit breach.
func IsLimitExceeded(err error) bool {
	return errors.Is(err, ErrLimitExceeded)
}

// IsFault returns true if the script itself failed.
func IsFault(err error) bool {
	return errors.Is(err, ErrExecutionFault) || errors.Is(err, ErrSilentStderr)
}
