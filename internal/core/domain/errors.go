package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSearchNotFound   = errors.New("search not found")
	ErrPropertyNotFound = errors.New("property not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrBatchNotFound    = errors.New("batch not found")

	ErrValidation              = errors.New("validation failed")
	ErrSourceUnavailable       = errors.New("source unavailable")
	ErrSourceExhausted         = errors.New("record sources exhausted")
	ErrJurisdictionUnsupported = errors.New("jurisdiction unsupported")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrTimeout                 = errors.New("time limit exceeded")
	ErrExtractionPartial       = errors.New("partial extraction failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// Retryable reports whether an error is transient. Terminal kinds
// (unsupported jurisdiction, bad input, exhausted sources) must never
// be re-queued. ErrSourceExhausted is checked before the transient
// kinds because it usually wraps one of them.
func Retryable(err error) bool {
	switch {
	case IsKind(err, ErrSourceExhausted):
		return false
	case IsKind(err, ErrJurisdictionUnsupported), IsKind(err, ErrValidation):
		return false
	case IsKind(err, ErrSourceUnavailable), IsKind(err, ErrRateLimited), IsKind(err, ErrTimeout):
		return true
	}
	return false
}
