// Package common defines shared constants and sentinel errors used across
// the share coordinator and the reference API server. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Session registry errors.
	ErrDuplicateSession = errors.New("duplicate session")
	ErrSessionNotFound  = errors.New("session not found")

	// Transfer errors. A malformed response is also a transfer failure.
	ErrCredentialUnavailable = errors.New("credential unavailable")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrMalformedResponse     = malformedResponse{}

	// Request validation and rehydration errors.
	ErrInvalidRequest      = errors.New("invalid request")
	ErrMissingPreference   = errors.New("missing preference")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInsufficientContext = errors.New("insufficient context to resume request")
	ErrRequestAbandoned    = errors.New("request abandoned")

	// Completion gate errors.
	ErrCallbackPending = errors.New("completion callback already registered")
)

type malformedResponse struct{}

func (malformedResponse) Error() string { return "malformed response" }

func (malformedResponse) Is(target error) bool { return target == ErrTransferFailed }
