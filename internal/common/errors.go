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
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("configuration error")
	ErrPersist      = errors.New("persistence failed")
)

// Error codes used with NewAppError.
const (
	CodeConfig  = "CONFIG_ERROR"
	CodeInput   = "INPUT_ERROR"
	CodePersist = "PERSIST_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// PersistError marks a failure that breaks checkpoint integrity; callers stop the run.
func PersistError(message string, cause error) error {
	return NewAppError(CodePersist, message, errors.Join(ErrPersist, cause))
}

// IsFatal reports whether err must abort a batch instead of being recorded per item.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPersist) || errors.Is(err, ErrConfig)
}
