// Package apperror defines the error kinds shared by every layer of the service.
//
// Each AppError carries a sentinel (Err) that callers match with errors.Is,
// and optionally the underlying cause (usually an AWS SDK error) so that
// errors.As can still reach it:
//
//	errors.Is(err, apperror.ErrProvisioning)  // which kind of failure
//	errors.As(err, &apiErr)                   // the raw smithy.APIError
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")

	// ErrProvisioning marks a failure to create the IAM role or ECS cluster.
	ErrProvisioning = errors.New("provisioning failed")
	// ErrRemoteExecution marks a task that could not be registered, launched or described.
	ErrRemoteExecution = errors.New("remote execution failed")
	// ErrTimeout marks a task that did not stop before the configured deadline.
	ErrTimeout = errors.New("timed out")
)

type AppError struct {
	Err     error  // sentinel kind
	Cause   error  // optional underlying error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Provisioning reports that creating a role or cluster failed.
func Provisioning(resource string, cause error) *AppError {
	return &AppError{
		Err:     ErrProvisioning,
		Cause:   cause,
		Message: fmt.Sprintf("provisioning %s", resource),
	}
}

// RemoteExecution reports a task that failed to register, launch or be described.
func RemoteExecution(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrRemoteExecution,
		Cause:   cause,
		Message: message,
	}
}

// Timeout reports a wait that hit its deadline.
func Timeout(message string) *AppError {
	return &AppError{
		Err:     ErrTimeout,
		Message: message,
	}
}
