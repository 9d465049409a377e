package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func failN(cb *CircuitBreaker, t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := cb.Execute(context.Background(), func() error { return errUpstream }); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i+1, err)
		}
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("judgment", Config{FailureThreshold: 3, Timeout: time.Minute})

	failN(cb, t, 3)
	if cb.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", cb.State())
	}

	err := cb.Execute(context.Background(), func() error {
		t.Fatal("open circuit must not invoke the call")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker("judgment", Config{FailureThreshold: 3, Timeout: time.Minute})

	failN(cb, t, 2)
	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	failN(cb, t, 2)

	if cb.State() != StateClosed {
		t.Fatalf("streak must reset on success, got %s", cb.State())
	}
}

func TestRecoversThroughHalfOpenProbes(t *testing.T) {
	cb := NewCircuitBreaker("judgment", Config{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		MaxRequests:      2,
		Timeout:          10 * time.Millisecond,
	})

	failN(cb, t, 2)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i+1, err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after clean probes, got %s", cb.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("graph", Config{
		FailureThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	failN(cb, t, 2)
	time.Sleep(20 * time.Millisecond)

	failN(cb, t, 1)
	if cb.State() != StateOpen {
		t.Fatalf("failed probe must reopen the circuit, got %s", cb.State())
	}
}

func TestContextErrorShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker("judgment", Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func() error {
		t.Fatal("cancelled context must not invoke the call")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if window := cb.Snapshot(); window.Requests != 0 {
		t.Fatalf("cancelled call must not count against the window: %+v", window)
	}
}
