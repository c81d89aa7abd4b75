package sandbox

import (
	"fmt"
	"time"
)

// Limits bounds one script execution.
type Limits struct {
	Timeout        time.Duration `json:"timeout"`
	MaxCallStack   int           `json:"max_call_stack"`   // Nested JS calls before a RangeError
	MaxOutputBytes int           `json:"max_output_bytes"` // Per stream; the rest is dropped
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Timeout:        10 * time.Second,
		MaxCallStack:   1000,
		MaxOutputBytes: 1 << 20,
	}
}

// maxTimeout caps per-request timeouts regardless of configuration.
const maxTimeout = 5 * time.Minute

func (l Limits) Validate() error {
	if l.Timeout <= 0 || l.Timeout > maxTimeout {
		return fmt.Errorf("%w: timeout must be in (0, %s], got %s", ErrInvalidRequest, maxTimeout, l.Timeout)
	}
	if l.MaxCallStack < 50 || l.MaxCallStack > 100000 {
		return fmt.Errorf("%w: max_call_stack must be 50-100000, got %d", ErrInvalidRequest, l.MaxCallStack)
	}
	if l.MaxOutputBytes < 1024 || l.MaxOutputBytes > 64<<20 {
		return fmt.Errorf("%w: max_output_bytes must be 1KB-64MB, got %d", ErrInvalidRequest, l.MaxOutputBytes)
	}
	return nil
}

// WithTimeout returns a copy of l using timeout when it is set and no
// larger than ceiling.
func (l Limits) WithTimeout(timeout, ceiling time.Duration) (Limits, error) {
	if timeout == 0 {
		return l, nil
	}
	if timeout < 0 || (ceiling > 0 && timeout > ceiling) {
		return l, fmt.Errorf("%w: timeout %s exceeds %s maximum", ErrInvalidRequest, timeout, ceiling)
	}
	l.Timeout = timeout
	return l, nil
}

// orDefaults fills zero fields of l from def.
func (l Limits) orDefaults(def Limits) Limits {
	if l.Timeout <= 0 {
		l.Timeout = def.Timeout
	}
	if l.MaxCallStack <= 0 {
		l.MaxCallStack = def.MaxCallStack
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = def.MaxOutputBytes
	}
	return l
}
