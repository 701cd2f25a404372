package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWaitReadySucceedsOnLaterAttempt(t *testing.T) {
	calls := 0
	target := Target{
		Name: "svc",
		Probe: FuncProbe{Name: "fake", Fn: func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("not yet")
			}
			return nil
		}},
	}

	err := WaitReady(context.Background(), discardLogger(), target, RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 probe calls, got %d", calls)
	}
}

func TestWaitReadyExhaustsExactlyMaxAttempts(t *testing.T) {
	calls := 0
	probeErr := errors.New("connection refused")
	target := Target{
		Name: "svc",
		Probe: FuncProbe{Name: "fake", Fn: func(ctx context.Context) error {
			calls++
			return probeErr
		}},
	}

	start := time.Now()
	err := WaitReady(context.Background(), discardLogger(), target, RetryPolicy{MaxAttempts: 4, Interval: 10 * time.Millisecond})
	elapsed := time.Since(start)

	if calls != 4 {
		t.Fatalf("expected exactly 4 probe calls, got %d", calls)
	}
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Target != "svc" || te.Attempts != 4 {
		t.Fatalf("unexpected timeout error fields: %+v", te)
	}
	if !errors.Is(err, probeErr) {
		t.Fatalf("expected wrapped probe error, got %v", err)
	}
	// 3 sleeps between 4 attempts; a 4th sleep would push this past 40ms.
	if elapsed >= 40*time.Millisecond {
		t.Fatalf("wait slept after the final attempt: %s", elapsed)
	}
}

func TestWaitReadyRejectsZeroAttempts(t *testing.T) {
	target := Target{Name: "svc", Probe: FuncProbe{Fn: func(ctx context.Context) error { return nil }}}
	if err := WaitReady(context.Background(), discardLogger(), target, RetryPolicy{MaxAttempts: 0, Interval: time.Second}); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
}

func TestWaitReadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	target := Target{
		Name: "svc",
		Probe: FuncProbe{Name: "fake", Fn: func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("not yet")
		}},
	}

	err := WaitReady(ctx, discardLogger(), target, RetryPolicy{MaxAttempts: 10, Interval: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the wait to stop after cancellation, got %d calls", calls)
	}
}

func TestBuildShellAwareCommand(t *testing.T) {
	cmd := buildShellAwareCommand(context.Background(), "curl -fsS http://localhost:4445/health/ready")
	if len(cmd.Args) != 3 || cmd.Args[0] != "curl" {
		t.Fatalf("unexpected args for plain command: %v", cmd.Args)
	}

	cmd = buildShellAwareCommand(context.Background(), "nc -z localhost 9042 && echo ok")
	if len(cmd.Args) != 3 || cmd.Args[0] != "/bin/sh" || cmd.Args[1] != "-c" {
		t.Fatalf("expected shell invocation for metacharacters, got %v", cmd.Args)
	}
}
