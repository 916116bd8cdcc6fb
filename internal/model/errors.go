package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned across a component boundary wraps one of
// these so the HTTP layer can choose a status with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("invalid state for operation")
	ErrDuplicate     = errors.New("duplicate")
	ErrUpstream      = errors.New("upstream failure")
)

var (
	// Lookup errors
	ErrPlayerNotFound   = fmt.Errorf("player %w", ErrNotFound)
	ErrAuthCodeNotFound = fmt.Errorf("auth code %w", ErrNotFound)
	ErrGuildNotFound    = fmt.Errorf("guild %w", ErrNotFound)
	ErrMemberNotFound   = fmt.Errorf("chat member %w", ErrNotFound)

	// Auth code lifecycle errors
	ErrCodeExpired          = fmt.Errorf("%w: auth code has expired", ErrStateConflict)
	ErrCodeAlreadyConfirmed = fmt.Errorf("%w: auth code already confirmed", ErrStateConflict)
	ErrCodeNotShown         = fmt.Errorf("%w: auth code has not been shown in game", ErrStateConflict)
	ErrCodeSaturated        = fmt.Errorf("%w: could not allocate a unique auth code", ErrUpstream)

	// Approval lifecycle errors
	ErrNotConfirmed    = fmt.Errorf("%w: auth code has not been confirmed", ErrStateConflict)
	ErrAlreadyResolved = fmt.Errorf("%w: player has already been approved or rejected", ErrStateConflict)
	ErrAlreadyLinked   = fmt.Errorf("%w: player is already linked", ErrStateConflict)
	ErrPlayerRevoked   = fmt.Errorf("%w: player whitelist has been revoked", ErrStateConflict)
	ErrAwaitingReview  = fmt.Errorf("%w: player is awaiting staff review", ErrStateConflict)

	// Uniqueness errors
	ErrDuplicateUsername = fmt.Errorf("%w: game username already registered in guild", ErrDuplicate)
	ErrDuplicateUUID     = fmt.Errorf("%w: game uuid already registered in guild", ErrDuplicate)
	ErrDuplicateAuthCode = fmt.Errorf("%w: auth code already in use", ErrDuplicate)
)

// Validationf returns an ErrValidation carrying a caller-safe message
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Upstream wraps a backend failure (storage, chat platform) as ErrUpstream
func Upstream(source string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUpstream, source, err)
}
