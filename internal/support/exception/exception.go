// Package exception provides custom error types and error handling utilities for Powercast.
// It standardizes errors that occur during pipeline processing, allowing them to be categorized
// based on retry and skip policies.
package exception

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Sentinel errors for the pipeline error taxonomy. Callers detect them with errors.Is.
var (
	// ErrNoData indicates a query or build step found no rows in the requested date range.
	ErrNoData = errors.New("No data in date range")
	// ErrNotEnoughSequences indicates the windower produced fewer samples than the training minimum.
	ErrNotEnoughSequences = errors.New("Not enough sequences")
	// ErrIncompleteWindow indicates the inference history window has missing hours.
	ErrIncompleteWindow = errors.New("incomplete history window")
	// ErrModelNotFound indicates no model record matched the requested id or region.
	ErrModelNotFound = errors.New("model not found")
	// ErrInvalidInput indicates malformed caller input (dates, region, file contents).
	ErrInvalidInput = errors.New("invalid input")
)

// PipelineError is a custom error type that occurs during pipeline processing.
// It holds the module where the error occurred, a message, the wrapped original error,
// and flags indicating whether it is retryable or skippable.
type PipelineError struct {
	// Module indicates the module where the error occurred (e.g., "ingest", "train", "forecast").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// isSkippable indicates whether this error is skippable.
	isSkippable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewPipelineError creates a new PipelineError instance.
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
// isSkippable: Whether this error is skippable.
// isRetryable: Whether this error is retryable.
func NewPipelineError(module, message string, originalErr error, isSkippable, isRetryable bool) *PipelineError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// NewPipelineErrorf creates a new PipelineError instance using a format string.
// Optional flags and an error are extracted from the end of the variadic arguments 'a'
// in the order (from the end): [originalErr error], [isRetryable bool], [isSkippable bool].
// The remaining arguments are used for fmt.Sprintf.
//
// Examples:
// NewPipelineErrorf("ingest", "Failed to parse row %d", 42, true, false, err)
// -> message: "Failed to parse row 42", isSkippable: true, isRetryable: false, originalErr: err
func NewPipelineErrorf(module, format string, a ...interface{}) *PipelineError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	message := fmt.Sprintf(format, args...)

	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// Error implements the error interface.
// It returns the error's module, message, and the string representation of the original error.
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *PipelineError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *PipelineError) IsSkippable() bool {
	return e.isSkippable
}

// IsPipelineError determines if the given error is of type PipelineError.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	return errors.As(err, &pe)
}

// IsTemporary determines if an error is temporary (e.g., network error, temporary DB connection issue).
// If it's a PipelineError, its IsRetryable flag takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}

// IsFatal determines if an error is fatal (cannot be retried or skipped).
// If it's a PipelineError, its flags take precedence.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return !pe.IsRetryable() && !pe.IsSkippable()
	}
	return false
}

// ExtractErrorMessage extracts the error message string from an error.
// For PipelineError, it returns the cleaner Message field.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}
