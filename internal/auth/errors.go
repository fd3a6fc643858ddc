package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigImmutable is returned when a mutation targets an
	// environment-managed password config.
	ErrConfigImmutable = errors.New("password is managed via environment variable")
	// ErrNotConfigured is returned when no password has been set.
	ErrNotConfigured = errors.New("password protection not configured")
	// ErrNotEnabled is returned by lock when the gate is disabled.
	ErrNotEnabled = errors.New("password protection not enabled")
	// ErrAlreadySet is returned when setpass finds an existing password.
	ErrAlreadySet = errors.New("password already set")
	// ErrTooShort is returned for candidate passwords under the minimum length.
	ErrTooShort = errors.New("password too short")
	// ErrIncorrectCurrent is returned when the current password does not verify.
	ErrIncorrectCurrent = errors.New("current password is incorrect")
	// ErrInvalidCode is returned for unknown, consumed, or expired emergency codes.
	ErrInvalidCode = errors.New("invalid or expired emergency code")
)

// LockedOutError rejects a login attempt during an active lockout.
type LockedOutError struct {
	RemainingSeconds int
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %ds", e.RemainingSeconds)
}

// InvalidPasswordError rejects a login attempt with a wrong password.
type InvalidPasswordError struct {
	RemainingAttempts int
}

func (e *InvalidPasswordError) Error() string {
	return fmt.Sprintf("invalid password (%d attempts remaining)", e.RemainingAttempts)
}
