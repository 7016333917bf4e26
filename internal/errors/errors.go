package errors

import (
	"errors"
	"fmt"
)

// Common error types for the credential-flow orchestrator
var (
	// Flow errors
	ErrProviderNotConfigured = errors.New("provider not configured")
	ErrInvalidState          = errors.New("invalid state")
	ErrExchangeFailed        = errors.New("exchange failed")
	ErrUpstreamTimeout       = errors.New("upstream timeout")

	// Vault session errors
	ErrVaultLocked    = errors.New("vault locked")
	ErrSessionExpired = errors.New("session expired")

	// Store errors
	ErrNotFound           = errors.New("not found")
	ErrBackendUnavailable = errors.New("backend unavailable")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
