package fetcher

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type FetchErrorCause string

const (
	ErrCauseBuildRequestFailed FetchErrorCause = "failed to build request"
	ErrCauseRequestFailed      FetchErrorCause = "request failed"
	ErrCauseDecodeFailed       FetchErrorCause = "failed to decode response body"
	ErrCauseReadBodyFailed     FetchErrorCause = "failed to read response body"
	ErrCauseBodyTooLarge       FetchErrorCause = "response body too large"
)

// FetchError wraps the underlying net/http error so callers can still
// classify it with errors.As / errors.Is.
type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// Is allows errors.Is to match FetchError types
func (e *FetchError) Is(target error) bool {
	_, ok := target.(*FetchError)
	return ok
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseRequestFailed, ErrCauseReadBodyFailed:
		return metadata.CauseNetworkFailure
	case ErrCauseDecodeFailed, ErrCauseBodyTooLarge:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
