package common

import (
	"errors"
	"fmt"
)

// Error codes forming the failure taxonomy surfaced on jobs and results.
const (
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeLockContention         = "LOCK_CONTENTION"
	CodeCollaboratorFailure    = "COLLABORATOR_FAILURE"
	CodeCollaboratorClientErr  = "COLLABORATOR_CLIENT_ERROR"
	CodeValidationFailure      = "VALIDATION_FAILURE"
	CodeLoaderFailure          = "LOADER_FAILURE"
	CodeFatal                  = "FATAL"
	CodeConfigError            = "CONFIG_ERROR"
)

// AppError represents application-specific errors. Retriable marks whether
// the task runner may reschedule the failed stage.
type AppError struct {
	Code      string
	Message   string
	Retriable bool
	Cause     error
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

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrLockHeld     = errors.New("stage already in progress")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewRetriable builds an AppError the task runner is allowed to reschedule.
func NewRetriable(code, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retriable: true,
		Cause:     cause,
	}
}

// CollaboratorError classifies a collaborator HTTP status: 5xx and
// transport failures are retriable, 4xx are not.
func CollaboratorError(status int, cause error) *AppError {
	if status >= 400 && status < 500 {
		return NewAppError(CodeCollaboratorClientErr, fmt.Sprintf("collaborator rejected request: %d", status), cause)
	}
	return NewRetriable(CodeCollaboratorFailure, fmt.Sprintf("collaborator call failed: %d", status), cause)
}

// IsRetriable reports whether err (or anything it wraps) is a retriable AppError.
func IsRetriable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retriable
	}
	return false
}

// ErrorCode extracts the taxonomy code from err, defaulting to FATAL for
// unclassified errors.
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeFatal
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
