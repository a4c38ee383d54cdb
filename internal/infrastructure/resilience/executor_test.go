package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:         attempts,
		InitialBackoff:      time.Millisecond,
		MaxBackoff:          2 * time.Millisecond,
		Multiplier:          2.0,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  50 * time.Millisecond,
		BreakerHalfOpenMax:  1,
	}
}

func transientClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesUnavailableSource(t *testing.T) {
	exec := NewExecutor(Options{
		Overrides:       map[string]Policy{"recorder.denver": fastPolicy(3)},
		DisableBreakers: true,
	})

	attempts := 0
	err := exec.Execute(context.Background(), "recorder.denver", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("status 502")
		}
		return nil
	}, transientClassifier)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestExecuteStopsOnTerminalClassification(t *testing.T) {
	exec := NewExecutor(Options{
		Overrides:       map[string]Policy{"recorder.denver": fastPolicy(3)},
		DisableBreakers: true,
	})

	errThrottled := errors.New("status 429")
	attempts := 0
	err := exec.Execute(context.Background(), "recorder.denver", func(context.Context) error {
		attempts++
		return errThrottled
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	})
	if !errors.Is(err, errThrottled) {
		t.Fatalf("err = %v, want the throttle error", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, a throttled source must not be hammered", attempts)
	}
}

func TestExecuteOpensBreakerForFailingSource(t *testing.T) {
	exec := NewExecutor(Options{
		Overrides: map[string]Policy{"recorder.boulder": fastPolicy(1)},
	})

	errDown := errors.New("connection refused")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "recorder.boulder", func(context.Context) error {
			return errDown
		}, classifier)
		if !errors.Is(err, errDown) {
			t.Fatalf("call %d err = %v, want source failure", i, err)
		}
	}

	err := exec.Execute(context.Background(), "recorder.boulder", func(context.Context) error {
		t.Fatal("open breaker must not reach the source")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
}

func TestBreakerIsolatesOperations(t *testing.T) {
	exec := NewExecutor(Options{
		Overrides: map[string]Policy{
			"recorder.boulder": fastPolicy(1),
			"recorder.denver":  fastPolicy(1),
		},
	})
	classifier := func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: true}
	}

	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "recorder.boulder", func(context.Context) error {
			return errors.New("down")
		}, classifier)
	}

	// Boulder's open breaker must not block Denver.
	err := exec.Execute(context.Background(), "recorder.denver", func(context.Context) error {
		return nil
	}, classifier)
	if err != nil {
		t.Fatalf("healthy county blocked by another county's breaker: %v", err)
	}
}

func TestPolicyForSelectsByOperationClass(t *testing.T) {
	slow := policyFor("recorder.arapahoe")
	fast := policyFor("queue.publish")
	if slow.BreakerOpenTimeout <= fast.BreakerOpenTimeout {
		t.Errorf("recorder breaker timeout %v must exceed queue %v",
			slow.BreakerOpenTimeout, fast.BreakerOpenTimeout)
	}
	if slow.InitialBackoff <= fast.InitialBackoff {
		t.Errorf("recorder backoff %v must exceed queue %v",
			slow.InitialBackoff, fast.InitialBackoff)
	}
	if policyFor("court.co").MaxAttempts != slow.MaxAttempts {
		t.Error("court portals must share the recorder budget")
	}
}

func TestExecuteAbortsOnCancelledContext(t *testing.T) {
	exec := NewExecutor(Options{DisableBreakers: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := exec.Execute(ctx, "recorder.denver", func(context.Context) error {
		attempts++
		return nil
	}, transientClassifier)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, cancelled context must not call the source", attempts)
	}
}
