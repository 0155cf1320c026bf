package pipeline

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type StageErrorCause string

const (
	ErrCauseConversionFailure StageErrorCause = "conversion failed"
	ErrCauseHashFailure       StageErrorCause = "hash failed"
)

type StageError struct {
	Message   string
	Retryable bool
	Cause     StageErrorCause
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage error: %s, %s", e.Cause, e.Message)
}

func (e *StageError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *StageError) Is(target error) bool {
	_, ok := target.(*StageError)
	return ok
}

func mapStageErrorToMetadataCause(err *StageError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseConversionFailure:
		return metadata.CauseContentInvalid
	case ErrCauseHashFailure:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
