// Package apperr defines the failure kinds surfaced by the service layer.
//
// Kinds are sentinel errors checked with errors.Is. Token failures are
// specialisations of ErrUnauthorized, so a caller that only cares about
// "not authenticated" can test for that alone.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")

	ErrTokenInvalid = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrTokenExpired = fmt.Errorf("token expired: %w", ErrTokenInvalid)
	ErrTokenReused  = fmt.Errorf("refresh token is expired or used: %w", ErrUnauthorized)
)

// Error is a failure of a given kind with a message that is safe to show to the caller.
type Error struct {
	kind    error
	message string
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Unwrap() error {
	return e.kind
}

// Message returns the caller-facing text.
func (e *Error) Message() string {
	return e.message
}

func Validation(msg string) error {
	return &Error{kind: ErrValidation, message: msg}
}

func Conflict(msg string) error {
	return &Error{kind: ErrConflict, message: msg}
}

func NotFound(msg string) error {
	return &Error{kind: ErrNotFound, message: msg}
}

func Unauthorized(msg string) error {
	return &Error{kind: ErrUnauthorized, message: msg}
}
