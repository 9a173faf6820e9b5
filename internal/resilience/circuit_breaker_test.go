package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bridgelab/reportpipeline/pkg/logger"
)

func TestCircuitBreakerClosedState(t *testing.T) {
	cb := New(DefaultConfig())

	err := cb.Execute(context.Background(), func() error {
		return nil
	})

	if err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("expected closed, got %v", cb.State())
	}
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := New(Config{MaxFailures: 3, Timeout: time.Second})
	testErr := errors.New("test error")

	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() error {
			return testErr
		})
	}

	if cb.State() != StateOpen {
		t.Errorf("expected open, got %v", cb.State())
	}
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: time.Minute})
	cb.Execute(context.Background(), func() error { return errors.New("fail") })

	err := cb.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreakerHalfOpenAfterTimeout(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})

	cb.Execute(context.Background(), func() error {
		return errors.New("fail")
	})

	time.Sleep(20 * time.Millisecond)

	for i := 0; i < 2; i++ {
		cb.Execute(context.Background(), func() error {
			return nil
		})
	}

	if cb.State() != StateClosed {
		t.Errorf("expected closed after successes, got %v", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{MaxFailures: 1, Timeout: 10 * time.Millisecond, HalfOpenMax: 2})
	cb.Execute(context.Background(), func() error { return errors.New("fail") })
	time.Sleep(20 * time.Millisecond)

	cb.Execute(context.Background(), func() error { return errors.New("still failing") })
	if cb.State() != StateOpen {
		t.Errorf("expected open after half-open probe failure, got %v", cb.State())
	}
}

func TestNewNamedLogsStateTransitionsAndPreservesCallerHook(t *testing.T) {
	var callerSawFrom, callerSawTo State
	callerHookCalls := 0
	cfg := Config{MaxFailures: 1, Timeout: time.Minute, OnStateChange: func(from, to State) {
		callerHookCalls++
		callerSawFrom, callerSawTo = from, to
	}}

	cb := NewNamed("test-breaker", cfg, logger.NewDefault("test"))
	cb.Execute(context.Background(), func() error { return errors.New("fail") })

	// OnStateChange fires on its own goroutine; give it a moment to land.
	deadline := time.Now().Add(time.Second)
	for callerHookCalls == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if callerHookCalls != 1 {
		t.Fatalf("expected caller's OnStateChange to still fire once, got %d calls", callerHookCalls)
	}
	if callerSawFrom != StateClosed || callerSawTo != StateOpen {
		t.Errorf("expected closed->open, got %v->%v", callerSawFrom, callerSawTo)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected open, got %v", cb.State())
	}
}
