package auth

import (
	"errors"
	"fmt"
)

// Failure taxonomy of the credential core. Callers match with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrThrottled        = errors.New("please wait before requesting a new OTP")
	ErrAttemptsExceeded = errors.New("maximum attempts exceeded")
	ErrInvalidCode      = errors.New("invalid OTP")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidAssertion = errors.New("invalid identity assertion")
	ErrSigning          = errors.New("signing key unusable")
	ErrUnexpected       = errors.New("unexpected error")
	ErrAlreadyExists    = errors.New("account already exists")
	ErrInvalidInput     = errors.New("invalid input")
)

// unexpected wraps an infrastructure failure so that both ErrUnexpected and the cause match errors.Is
func unexpected(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnexpected, err)
}
