package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

func testBreaker(threshold int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{FailureThreshold: threshold, Cooldown: cooldown})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail(ctx context.Context) error    { return errUpstream }
func succeed(ctx context.Context) error { return nil }

func execute(cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := ExecuteWithResult(cb, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb, _ := testBreaker(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := execute(cb, ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit, got %s", cb.State())
	}

	calls := 0
	err := execute(cb, ctx, func(ctx context.Context) error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) || calls != 0 {
		t.Errorf("expected rejection without calling through, got %v (%d calls)", err, calls)
	}
	if stats := cb.Stats(); stats.TotalRejected != 1 || stats.TotalFailures != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb, _ := testBreaker(2, time.Minute)
	ctx := context.Background()

	execute(cb, ctx, fail)
	execute(cb, ctx, succeed)
	execute(cb, ctx, fail)
	if cb.State() != CircuitClosed {
		t.Errorf("non-consecutive failures must not open the circuit")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, now := testBreaker(1, time.Minute)
	ctx := context.Background()

	execute(cb, ctx, fail)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open circuit")
	}

	*now = now.Add(2 * time.Minute)
	if err := execute(cb, ctx, fail); !errors.Is(err, errUpstream) {
		t.Fatalf("expected the trial request to run, got %v", err)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("failed trial request must reopen the circuit, got %s", cb.State())
	}

	*now = now.Add(2 * time.Minute)
	if err := execute(cb, ctx, succeed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("successful trial request must close the circuit, got %s", cb.State())
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb, _ := testBreaker(1, time.Minute)

	err := execute(cb, context.Background(), func(ctx context.Context) error { return context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to pass through, got %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Error("caller cancellation must not open the circuit")
	}
}

func TestExecuteWithResult(t *testing.T) {
	cb, _ := testBreaker(1, time.Minute)

	v, err := ExecuteWithResult(cb, context.Background(), func(ctx context.Context) (int, error) { return 42, nil })
	if err != nil || v != 42 {
		t.Errorf("expected 42, got %d %v", v, err)
	}
}

func TestHealthCheckerWorstStatusWins(t *testing.T) {
	hc := NewHealthChecker(time.Second)
	hc.Register("market", StaticHealthCheck(HealthStatusHealthy, ""))
	hc.Register("cache", DatabaseHealthCheck(func(ctx context.Context) error { return errors.New("disk I/O error") }))

	health := hc.Check(context.Background())
	if health.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", health.Status)
	}
	if len(health.Components) != 2 || health.Components[0].Name != "market" || health.Components[1].Name != "cache" {
		t.Errorf("unexpected components %+v", health.Components)
	}

	hc.Register("broken", StaticHealthCheck(HealthStatusUnhealthy, "down"))
	if got := hc.Check(context.Background()).Status; got != HealthStatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
}

func TestCircuitBreakerHealthCheck(t *testing.T) {
	cb, _ := testBreaker(1, time.Minute)
	check := CircuitBreakerHealthCheck(cb)

	if h := check(context.Background()); h.Status != HealthStatusHealthy {
		t.Errorf("expected healthy closed circuit, got %+v", h)
	}
	execute(cb, context.Background(), fail)
	if h := check(context.Background()); h.Status != HealthStatusDegraded {
		t.Errorf("expected degraded open circuit, got %+v", h)
	}
}
