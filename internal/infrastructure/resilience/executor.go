// Package resilience wraps outbound calls to flaky record sources with
// bounded retries and a per-operation circuit breaker. Jurisdiction
// scrapers, the commercial fallback API, and queue publishes all go
// through the same executor; each operation class carries its own
// policy because a county portal and a local JetStream fail on very
// different timescales.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

type Options struct {
	// Overrides replaces the class policy for exact operation names.
	Overrides map[string]Policy
	// DisableBreakers turns the circuit layer off; retries still apply.
	DisableBreakers bool
}

type Executor struct {
	opts Options

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(opts Options) *Executor {
	return &Executor{
		opts:     opts,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) policy(operation string) Policy {
	if p, ok := e.opts.Overrides[operation]; ok {
		return p.normalize()
	}
	return policyFor(operation)
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = ErrorClassifier(func(error) ErrorClassification {
			return ErrorClassification{RecordFailure: true}
		})
	}
	pol := e.policy(op)

	if e.opts.DisableBreakers {
		return retryLoop(ctx, op, pol, fn, classifier)
	}

	breaker := e.circuitBreaker(op, pol, classifier)
	_, err := breaker.Execute(func() (any, error) {
		return nil, retryLoop(ctx, op, pol, fn, classifier)
	})
	return err
}

func retryLoop(
	ctx context.Context,
	operation string,
	pol Policy,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	backoff := pol.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= pol.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !classifier(lastErr).Retryable || attempt == pol.MaxAttempts {
			return lastErr
		}

		slog.Warn("source_retry",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", pol.MaxAttempts,
			"backoff", backoff,
			"error", lastErr,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * pol.Multiplier)
		if backoff > pol.MaxBackoff {
			backoff = pol.MaxBackoff
		}
	}
	return lastErr
}

func (e *Executor) circuitBreaker(operation string, pol Policy, classifier ErrorClassifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        operation,
		MaxRequests: pol.BreakerHalfOpenMax,
		Timeout:     pol.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < pol.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= pol.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("source_breaker_state", "operation", name, "from", from.String(), "to", to.String())
		},
	})
	e.breakers[operation] = breaker
	return breaker
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
