package extractor

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

type ParseErrorCause string

const (
	ErrCauseNotHTML   ParseErrorCause = "not html"
	ErrCauseNoContent ParseErrorCause = "no content"
)

// ParseError is returned by the built-in extractors when a response body
// cannot be turned into a document.
type ParseError struct {
	Message   string
	Retryable bool
	Cause     ParseErrorCause
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s, %s", e.Cause, e.Message)
}

func (e *ParseError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok
}

// mapParseErrorToMetadataCause maps extractor-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapParseErrorToMetadataCause(err *ParseError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML, ErrCauseNoContent:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
