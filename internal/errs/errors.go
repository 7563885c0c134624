package errs

import (
	"errors"
	"fmt"
)

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound  = errors.New("not_found")
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	// ErrUnauthorized signals missing or bad credentials (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable is returned when a third-party collaborator (AI, rates,
	// quotes, bank) fails and no fallback exists.
	ErrUnavailable = errors.New("unavailable")
)

// Invalidf wraps ErrInvalid with a message naming the violated constraint.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Forbiddenf wraps ErrForbidden with a short reason.
func Forbiddenf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a short reason.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unavailable wraps an upstream failure so callers can map it to 502.
func Unavailable(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, what, err)
}
