package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors.
	ErrorForbidden = errors.New("forbidden")

	// Possession-proof errors.
	ErrNoCredentials         = errors.New("no registered credentials")
	ErrInvalidAuthentication = errors.New("invalid authentication")
	ErrReplayDetected        = errors.New("replay detected")
	ErrChallengeExpired      = errors.New("challenge expired")

	// Request lifecycle errors.
	ErrRequestClosed = errors.New("request is closed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
