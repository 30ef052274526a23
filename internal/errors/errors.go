package errors

import (
	"errors"
	"fmt"
)

// IndexError is the structured error type for feedindex.
// It carries enough context for classification in the recovery path
// and for structured logging.
type IndexError struct {
	// Code is the unique error code (e.g., "ERR_301_INDEX_CLOSED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Index, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with IndexError.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a new IndexError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an IndexError from an existing error.
// The error's message becomes the IndexError message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IndexClosed creates the contract error raised when mutating a closed index.
func IndexClosed() *IndexError {
	return New(ErrCodeIndexClosed, "index is closed", nil)
}

// IndexLocked creates the error raised when the index directory is held
// by another process.
func IndexLocked(path string, cause error) *IndexError {
	return New(ErrCodeIndexLocked, fmt.Sprintf("index directory locked: %s", path), cause)
}

// CorruptIndex creates the error raised when the on-disk index is unreadable.
func CorruptIndex(message string, cause error) *IndexError {
	return New(ErrCodeCorruptIndex, message, cause)
}

// UnknownOperation creates the assertion error for a malformed operation record.
func UnknownOperation(kind int) *IndexError {
	return New(ErrCodeUnknownOperation, fmt.Sprintf("unknown index operation kind %d", kind), nil)
}

// HasCode reports whether err or any error in its chain carries the code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &IndexError{Code: code})
}

// GetCode extracts the error code from an IndexError in the chain.
// Returns empty string if none is found.
func GetCode(err error) string {
	var ie *IndexError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}
