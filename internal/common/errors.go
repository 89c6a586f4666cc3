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

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// ErrPrerequisite marks a missing external capability (poppler,
	// tesseract, vision credentials). Fatal for the run, never retried.
	ErrPrerequisite = errors.New("prerequisite missing")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// PrerequisiteError builds a prerequisite failure naming the missing piece,
// so the job's error field stays actionable without log access.
func PrerequisiteError(what string) error {
	return NewAppError("PREREQUISITE", what, ErrPrerequisite)
}

// IsPrerequisite reports whether err is a missing-prerequisite failure.
func IsPrerequisite(err error) bool {
	return errors.Is(err, ErrPrerequisite)
}
