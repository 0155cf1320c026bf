package config

import (
	"errors"
	"fmt"

	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

var ErrFileDoesNotExist = errors.New("config file does not exist")
var ErrReadConfigFail = errors.New("failed to read config file")
var ErrConfigParsingFail = errors.New("failed to parse config file")
var ErrInvalidConfig = errors.New("invalid config")

type ConfigurationErrorCause string

const (
	ErrCauseFileMissing  ConfigurationErrorCause = "file missing"
	ErrCauseReadFailed   ConfigurationErrorCause = "read failed"
	ErrCauseParseFailed  ConfigurationErrorCause = "parse failed"
	ErrCauseInvalidValue ConfigurationErrorCause = "invalid value"
)

// ConfigurationError is surfaced at startup only and is always fatal.
type ConfigurationError struct {
	Message string
	Field   string
	Cause   ConfigurationErrorCause
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s: %s", e.Cause, e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Cause, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func (e *ConfigurationError) Severity() failure.Severity {
	return failure.SeverityFatal
}

func invalid(field string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Message: fmt.Sprintf(format, args...),
		Field:   field,
		Cause:   ErrCauseInvalidValue,
		Err:     ErrInvalidConfig,
	}
}
