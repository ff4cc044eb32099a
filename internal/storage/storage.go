package storage

import "errors"

var (
	ErrUserExists           = errors.New("user already exists")
	ErrUserNotFound         = errors.New("user not found")
	ErrVideoNotFound        = errors.New("video not found")
	ErrSubscriptionExists   = errors.New("subscription already exists")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrRefreshTokenMismatch is returned when a conditional refresh token swap
	// finds a different value in the user's slot.
	ErrRefreshTokenMismatch = errors.New("refresh token mismatch")
)
