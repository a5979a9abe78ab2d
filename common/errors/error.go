package errors

import (
	"errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or
// CodeInternalServer when there is none.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalServer
}

func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether the failure is a transient write conflict.
func IsRetryable(err error) bool {
	return HasCode(err, CodeConflict)
}

// IsValidation reports whether the failure is a caller mistake that must not be retried.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeInvalidInput, CodeNotFound, CodeForbidden, CodeSlotTaken, CodeSlotOutOfRange, CodeNotSlotOwner,
		CodeDuplicateTeam, CodeRegistrationClosed, CodeReminderExists, CodeNoSlotAvailable:
		return true
	default:
		return false
	}
}
