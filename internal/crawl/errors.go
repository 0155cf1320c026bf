package crawl

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

// ErrorKind classifies why a fetch produced no response.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindDNSFailure        ErrorKind = "dns_failure"
	KindConnectionRefused ErrorKind = "connection_refused"
	KindTLSError          ErrorKind = "tls_error"
	KindCancelled         ErrorKind = "cancelled"
	KindIgnored           ErrorKind = "ignored"
	KindOther             ErrorKind = "other"
)

type TransportError struct {
	Message   string
	Retryable bool
	Kind      ErrorKind
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s, %s", e.Kind, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *TransportError) IsRetryable() bool {
	return e.Retryable
}

// Is allows errors.Is to match TransportError types
func (e *TransportError) Is(target error) bool {
	_, ok := target.(*TransportError)
	return ok
}

// NewTransportError builds an error of the given kind. Timeouts, refused
// connections and DNS failures are worth another attempt.
func NewTransportError(kind ErrorKind, err error) *TransportError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &TransportError{
		Message:   msg,
		Retryable: kind == KindTimeout || kind == KindConnectionRefused || kind == KindDNSFailure,
		Kind:      kind,
		Err:       err,
	}
}

// IgnoreRequest is returned by a Transport to refuse a request without fetching it.
func IgnoreRequest(reason string) *TransportError {
	return &TransportError{
		Message: reason,
		Kind:    KindIgnored,
	}
}

func MapTransportErrorToMetadataCause(err *TransportError) metadata.ErrorCause {
	switch err.Kind {
	case KindTimeout, KindDNSFailure, KindConnectionRefused, KindTLSError:
		return metadata.CauseNetworkFailure
	case KindIgnored:
		return metadata.CausePolicyDisallow
	default:
		return metadata.CauseUnknown
	}
}

type ExtractionErrorCause string

const (
	ErrCauseExtractorFailed  ExtractionErrorCause = "extractor failed"
	ErrCauseExtractorPanic   ExtractionErrorCause = "extractor panicked"
	ErrCauseUnknownExtractor ExtractionErrorCause = "unknown extractor"
)

type ExtractionError struct {
	Message   string
	Retryable bool
	Cause     ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s, %s", e.Cause, e.Message)
}

func (e *ExtractionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ExtractionError) Is(target error) bool {
	_, ok := target.(*ExtractionError)
	return ok
}

type PipelineErrorCause string

const (
	ErrCauseStageFailed PipelineErrorCause = "stage failed"
	ErrCauseStagePanic  PipelineErrorCause = "stage panicked"
	ErrCauseCloseFailed PipelineErrorCause = "close failed"
)

type PipelineError struct {
	Message   string
	Retryable bool
	Cause     PipelineErrorCause
	Stage     string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error: %s in %s, %s", e.Cause, e.Stage, e.Message)
}

func (e *PipelineError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *PipelineError) Is(target error) bool {
	_, ok := target.(*PipelineError)
	return ok
}

// DropError is the drop signal of an item pipeline stage.
type DropError struct {
	Reason string
}

func Drop(reason string) *DropError {
	return &DropError{Reason: reason}
}

func (e *DropError) Error() string {
	return fmt.Sprintf("item dropped: %s", e.Reason)
}

func (e *DropError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

// IsDrop reports whether err carries the drop signal, returning it.
func IsDrop(err error) (*DropError, bool) {
	var drop *DropError
	if errors.As(err, &drop) {
		return drop, true
	}
	return nil, false
}

type SerializationErrorCause string

const (
	ErrCauseEncodeFailed SerializationErrorCause = "encode failed"
	ErrCauseDecodeFailed SerializationErrorCause = "decode failed"
)

// SerializationError is returned when a persistent store cannot encode or
// decode a request. The store is left untouched.
type SerializationError struct {
	Message   string
	Retryable bool
	Cause     SerializationErrorCause
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: %s, %s", e.Cause, e.Message)
}

func (e *SerializationError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *SerializationError) Is(target error) bool {
	_, ok := target.(*SerializationError)
	return ok
}
