package fileutil

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rohmanhakim/crawl-engine/pkg/failure"
)

// GetFileExtension extracts the lowercased file extension from a path, or empty string if none
func GetFileExtension(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// EnsureDir creates dir joined with path unless it exists, and returns the joined path.
func EnsureDir(dir string, path ...string) (string, failure.ClassifiedError) {
	targetPath := append([]string{dir}, path...)

	joined := filepath.Join(targetPath...)
	if err := os.MkdirAll(joined, 0755); err != nil {
		return "", &FileError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCausePathError,
			Path:      joined,
			Err:       err,
		}
	}
	return joined, nil
}
