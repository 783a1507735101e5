package storage

import (
	"fmt"
	"time"
)

// FileError provides rich context for particle file operations.
type FileError struct {
	Op        string    // Operation: "create", "open", "read", "write"
	Path      string    // File path
	Cause     error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("particle file %s failed for %s: %v", e.Op, e.Path, e.Cause)
	}
	return fmt.Sprintf("particle file %s failed for %s", e.Op, e.Path)
}

func (e *FileError) Unwrap() error {
	return e.Cause
}

// NewFileError creates a file error with timestamp.
func NewFileError(op, path string, cause error) error {
	return &FileError{
		Op:        op,
		Path:      path,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}
