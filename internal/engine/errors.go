package engine

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/scheduler"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type EngineErrorCause string

const (
	ErrCauseAlreadyStarted EngineErrorCause = "already started"
	ErrCauseNotRunning     EngineErrorCause = "not running"
	ErrCauseStartFailed    EngineErrorCause = "start failed"
	ErrCauseSetupFailed    EngineErrorCause = "setup failed"
	ErrCauseFlushFailed    EngineErrorCause = "flush failed"
	ErrCauseInvalidOrigin  EngineErrorCause = "invalid origin"
)

type EngineError struct {
	Message   string
	Retryable bool
	Cause     EngineErrorCause
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error: %s, %s", e.Cause, e.Message)
}

// Severity: an engine that cannot be built or started is fatal. Everything
// else is reported and the crawl carries on.
func (e *EngineError) Severity() failure.Severity {
	switch e.Cause {
	case ErrCauseSetupFailed, ErrCauseStartFailed:
		return failure.SeverityFatal
	default:
		return failure.SeverityRecoverable
	}
}

// Is allows errors.Is to match EngineError types
func (e *EngineError) Is(target error) bool {
	_, ok := target.(*EngineError)
	return ok
}

func mapEngineErrorToMetadataCause(err error) metadata.ErrorCause {
	var schedErr *scheduler.SchedulerError
	if errors.As(err, &schedErr) {
		return metadata.CauseStorageFailure
	}
	var engErr *EngineError
	if errors.As(err, &engErr) {
		switch engErr.Cause {
		case ErrCauseFlushFailed:
			return metadata.CauseStorageFailure
		case ErrCauseInvalidOrigin:
			return metadata.CauseContentInvalid
		case ErrCauseAlreadyStarted, ErrCauseNotRunning:
			return metadata.CauseInvariantViolation
		}
	}
	return metadata.CauseUnknown
}
