package robots

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type RobotsErrorCause string

const (
	ErrCauseFetchFailed RobotsErrorCause = "robots.txt fetch failed"
	ErrCauseServerError RobotsErrorCause = "robots.txt server error"
)

// RobotsError never stops a crawl: an unreachable robots.txt allows everything.
type RobotsError struct {
	Message   string
	Retryable bool
	Cause     RobotsErrorCause
}

func (e *RobotsError) Error() string {
	return fmt.Sprintf("robots error: %s, %s", e.Cause, e.Message)
}

func (e *RobotsError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *RobotsError) IsRetryable() bool {
	return e.Retryable
}

// Is allows errors.Is to match RobotsError types
func (e *RobotsError) Is(target error) bool {
	_, ok := target.(*RobotsError)
	return ok
}

// mapRobotsErrorToMetadataCause maps robots-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapRobotsErrorToMetadataCause(err *RobotsError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseFetchFailed, ErrCauseServerError:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}
