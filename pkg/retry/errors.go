package retry

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type RetryErrorCause string

const (
	ErrZeroAttempt       RetryErrorCause = "zero attempt"
	ErrExhaustedAttempts RetryErrorCause = "exhausted attempt"
	ErrCancelled         RetryErrorCause = "cancelled"
)

// RetryError ends a Retry that did not succeed. Last is the error of the
// final attempt, nil when fn never ran.
type RetryError struct {
	Message   string
	Retryable bool
	Cause     RetryErrorCause
	Attempts  int
	Last      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry error: %s after %d attempts, %s", e.Cause, e.Attempts, e.Message)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

func (e *RetryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RetryError) IsRetryable() bool {
	return e.Retryable
}

func (e *RetryError) Is(target error) bool {
	_, ok := target.(*RetryError)
	return ok
}
