package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapErrorPreservesKind(t *testing.T) {
	inner := fmt.Errorf("connection refused")
	err := WrapError(ErrSourceUnavailable, "scrape recorder", inner)

	if !IsKind(err, ErrSourceUnavailable) {
		t.Error("wrapped error lost its kind")
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error lost the cause")
	}
	if got := err.Error(); got != "scrape recorder: source unavailable: connection refused" {
		t.Errorf("message = %q", got)
	}
}

func TestWrapErrorNilPassthrough(t *testing.T) {
	if err := WrapError(ErrValidation, "noop", nil); err != nil {
		t.Errorf("WrapError(nil) = %v, want nil", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{WrapError(ErrSourceUnavailable, "op", fmt.Errorf("x")), true},
		{WrapError(ErrRateLimited, "op", fmt.Errorf("x")), true},
		{WrapError(ErrTimeout, "op", fmt.Errorf("x")), true},
		{WrapError(ErrValidation, "op", fmt.Errorf("x")), false},
		{WrapError(ErrJurisdictionUnsupported, "op", fmt.Errorf("x")), false},
		// Exhaustion wraps a transient kind but must still pin the task.
		{WrapError(ErrSourceExhausted, "op", WrapError(ErrSourceUnavailable, "api", fmt.Errorf("x"))), false},
		{fmt.Errorf("untyped"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Errorf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestFoldBatchStatus(t *testing.T) {
	cases := []struct {
		total, successful, failed int
		want                      BatchStatus
	}{
		{0, 0, 0, BatchPending},
		{5, 2, 1, BatchProcessing},
		{5, 5, 0, BatchCompleted},
		{5, 0, 5, BatchFailed},
		{5, 3, 2, BatchPartial},
	}
	for _, tc := range cases {
		if got := FoldBatchStatus(tc.total, tc.successful, tc.failed); got != tc.want {
			t.Errorf("FoldBatchStatus(%d, %d, %d) = %s, want %s",
				tc.total, tc.successful, tc.failed, got, tc.want)
		}
	}
}
