package jobstore

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type StoreErrorCause string

const (
	ErrCauseOpenFailed  StoreErrorCause = "open failed"
	ErrCauseReadFailed  StoreErrorCause = "read failed"
	ErrCauseWriteFailed StoreErrorCause = "write failed"
)

type StoreError struct {
	Message   string
	Retryable bool
	Cause     StoreErrorCause
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("job store error: %s, %s", e.Cause, e.Message)
}

// Severity: a job directory that cannot be opened stops the crawl at startup;
// later read/write failures are reported and the crawl continues.
func (e *StoreError) Severity() failure.Severity {
	if e.Cause == ErrCauseOpenFailed {
		return failure.SeverityFatal
	}
	return failure.SeverityRecoverable
}

func (e *StoreError) IsRetryable() bool {
	return e.Retryable
}

// Is allows errors.Is to match StoreError types
func (e *StoreError) Is(target error) bool {
	_, ok := target.(*StoreError)
	return ok
}

func MapStoreErrorToMetadataCause(err *StoreError) metadata.ErrorCause {
	return metadata.CauseStorageFailure
}
