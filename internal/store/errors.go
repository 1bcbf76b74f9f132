package store

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every service. Callers classify with errors.Is;
// anything else coming out of an atomic unit is a persistence failure.
var (
	ErrValidation        = errors.New("validation error")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrExternalService   = errors.New("external service error")
)

// Sentinel errors raised by storage backends.
var (
	ErrDuplicateTransaction   = fmt.Errorf("%w: duplicate transaction", ErrConflict)
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrUserNotFound           = fmt.Errorf("user %w", ErrNotFound)
	ErrWalletNotFound         = fmt.Errorf("wallet %w", ErrNotFound)
)

// IsBusinessError reports whether err belongs to a category that is surfaced
// to the caller as-is rather than treated as an internal failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}
