package sandbox

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.Timeout != 10*time.Second {
		t.Errorf("Timeout = %s, want 10s", l.Timeout)
	}
	if l.MaxCallStack != 1000 {
		t.Errorf("MaxCallStack = %d, want 1000", l.MaxCallStack)
	}
	if l.MaxOutputBytes != 1<<20 {
		t.Errorf("MaxOutputBytes = %d, want %d", l.MaxOutputBytes, 1<<20)
	}
	if err := l.Validate(); err != nil {
		t.Errorf("DefaultLimits().Validate() = %v, want nil", err)
	}
}

func TestLimits_Validate(t *testing.T) {
	tests := []struct {
		name   string
		limits Limits
	}{
		{"zero timeout", Limits{Timeout: 0, MaxCallStack: 1000, MaxOutputBytes: 4096}},
		{"timeout over ceiling", Limits{Timeout: time.Hour, MaxCallStack: 1000, MaxOutputBytes: 4096}},
		{"call stack too small", Limits{Timeout: time.Second, MaxCallStack: 10, MaxOutputBytes: 4096}},
		{"output cap too small", Limits{Timeout: time.Second, MaxCallStack: 1000, MaxOutputBytes: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.limits.Validate()
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestLimits_WithTimeout(t *testing.T) {
	base := DefaultLimits()

	got, err := base.WithTimeout(0, time.Minute)
	if err != nil || got.Timeout != base.Timeout {
		t.Errorf("WithTimeout(0) = %s, %v; want unchanged", got.Timeout, err)
	}

	got, err = base.WithTimeout(3*time.Second, time.Minute)
	if err != nil || got.Timeout != 3*time.Second {
		t.Errorf("WithTimeout(3s) = %s, %v; want 3s", got.Timeout, err)
	}

	if _, err := base.WithTimeout(2*time.Minute, time.Minute); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("WithTimeout over ceiling = %v, want ErrInvalidRequest", err)
	}
}
