// Package errors provides structured error handling for the job service,
// the HTTP API and the command line. It defines error types, sentinel
// errors and helpers for consistent classification across packages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an error.
type ErrorType string

const (
	// ErrorTypeValidation indicates invalid input or configuration
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound indicates a missing job or file
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeStorage indicates database errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeResource indicates capacity limits
	ErrorTypeResource ErrorType = "resource"
	// ErrorTypeTranscode indicates export failures
	ErrorTypeTranscode ErrorType = "transcode"
	// ErrorTypeInternal indicates everything else
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for common scenarios
var (
	// ErrJobNotFound indicates a job ID doesn't exist
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidInput indicates invalid request parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition indicates a job status change that is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrQueueFull indicates the job queue cannot accept more work
	ErrQueueFull = errors.New("job queue full")

	// ErrShuttingDown indicates the service no longer accepts work
	ErrShuttingDown = errors.New("service shutting down")
)

// Error provides structured error information with context.
type Error struct {
	Type    ErrorType
	Op      string
	JobID   string
	Err     error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("%s error in %s for job %s: %v", e.Type, e.Op, e.JobID, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new Error
func New(errType ErrorType, op string, err error) *Error {
	return &Error{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithJob adds job context to the error
func (e *Error) WithJob(jobID string) *Error {
	e.JobID = jobID
	return e
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(op string, err error) *Error {
	return New(ErrorTypeValidation, op, err)
}

// NotFoundError creates a not-found error
func NotFoundError(op string, err error) *Error {
	return New(ErrorTypeNotFound, op, err)
}

// StorageError creates a storage error
func StorageError(op string, err error) *Error {
	return New(ErrorTypeStorage, op, err)
}

// ResourceError creates a capacity error
func ResourceError(op string, err error) *Error {
	return New(ErrorTypeResource, op, err)
}

// TranscodeError creates an export error
func TranscodeError(op string, err error) *Error {
	return New(ErrorTypeTranscode, op, err)
}

// InternalError creates an internal error
func InternalError(op string, err error) *Error {
	return New(ErrorTypeInternal, op, err)
}

// Wrap wraps an error with operation context if it's not already an *Error
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return New(errType, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	}

	switch GetType(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeResource:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Re-exports so callers need a single errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
