package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy for the pipeline. Per-document failures wrap one of these so
// the batch loop can classify them; run-level failures abort the process.
var (
	ErrConfiguration       = errors.New("configuration error")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrResponseFormat      = errors.New("malformed LLM response")
	ErrMalformedMapping    = errors.New("malformed mapping response")
	ErrSchemaCoverage      = errors.New("schema coverage incomplete")
	ErrTransientAPI        = errors.New("transient API failure")
	ErrFileLocked          = errors.New("output file locked")
	ErrInvalidInput        = errors.New("invalid input")
)

// NewAppError creates an AppError with a stable code.
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError annotates err with a message, preserving the chain.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
