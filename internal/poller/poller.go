package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaty/devstack/internal/metrics"
)

// Probe is a strategy that checks whether a service is ready to accept work.
// Implementations must be safe for repeated calls and side-effect free beyond
// the check itself.
type Probe interface {
	// Check returns nil when the service is ready.
	Check(ctx context.Context) error
	// Describe returns a human-readable description of the probe.
	Describe() string
}

// Target identifies one dependency to wait on.
type Target struct {
	Name  string
	Probe Probe
}

// RetryPolicy bounds a readiness wait. MaxAttempts*Interval is the hard
// ceiling; exhausting it is a terminal failure.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// TimeoutError is returned when a target never became ready within the policy.
type TimeoutError struct {
	Target   string
	Attempts int
	LastErr  error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s not ready after %d attempts: %v", e.Target, e.Attempts, e.LastErr)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// WaitReady probes the target until it reports ready, at most
// policy.MaxAttempts times with policy.Interval sleeps between failures.
// A probe error and a not-ready result are treated identically for retry
// purposes. Returns *TimeoutError when attempts are exhausted, or ctx.Err()
// if the wait is interrupted.
func WaitReady(ctx context.Context, log *slog.Logger, t Target, policy RetryPolicy) error {
	if policy.MaxAttempts < 1 {
		return fmt.Errorf("retry policy for %s: max attempts must be >= 1", t.Name)
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.Probe.Check(ctx)
		metrics.IncProbeAttempt(t.Name, err == nil)
		if err == nil {
			log.Info("service ready", "service", t.Name, "attempt", attempt)
			return nil
		}
		lastErr = err
		log.Info("waiting for service",
			"service", t.Name,
			"probe", t.Probe.Describe(),
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"err", err)

		// No trailing sleep after the final attempt.
		if attempt == policy.MaxAttempts {
			break
		}
		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &TimeoutError{Target: t.Name, Attempts: policy.MaxAttempts, LastErr: lastErr}
}
