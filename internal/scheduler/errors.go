package scheduler

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type SchedulerErrorCause string

const (
	ErrCauseOpenFailed        SchedulerErrorCause = "open failed"
	ErrCauseFingerprintFailed SchedulerErrorCause = "fingerprint failed"
	ErrCauseStoreFailed       SchedulerErrorCause = "store failed"
)

type SchedulerError struct {
	Message   string
	Retryable bool
	Cause     SchedulerErrorCause
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler error: %s, %s", e.Cause, e.Message)
}

// Severity: failing to restore a job directory is fatal at startup; per-request
// failures are recoverable.
func (e *SchedulerError) Severity() failure.Severity {
	if e.Cause == ErrCauseOpenFailed {
		return failure.SeverityFatal
	}
	return failure.SeverityRecoverable
}

// Is allows errors.Is to match SchedulerError types
func (e *SchedulerError) Is(target error) bool {
	_, ok := target.(*SchedulerError)
	return ok
}

func mapSchedulerErrorToMetadataCause(err error) metadata.ErrorCause {
	var serr *crawl.SerializationError
	if errors.As(err, &serr) {
		return metadata.CauseStorageFailure
	}
	var schedErr *SchedulerError
	if errors.As(err, &schedErr) && schedErr.Cause == ErrCauseStoreFailed {
		return metadata.CauseStorageFailure
	}
	return metadata.CauseUnknown
}
