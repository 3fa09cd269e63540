package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors. Validation failures are typed results so callers can
// branch on them; anything else from the backing store surfaces as
// ErrStorageUnavailable.
var (
	ErrInvalidAmount        = errors.New("ledger: amount must be positive")
	ErrInvalidUpgradePath   = errors.New("ledger: target tier is not above current tier")
	ErrInvalidDowngradePath = errors.New("ledger: target tier is not below current tier")
	ErrUnknownTier          = errors.New("ledger: unknown tier")
	ErrStorageUnavailable   = errors.New("ledger: storage unavailable")
)

// InsufficientBalanceError reports a consume that would overdraw the
// account, carrying required vs. available for the caller's response.
type InsufficientBalanceError struct {
	AccountID string
	Required  int64
	Available int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("ledger: insufficient balance for %s: required %d, available %d",
		e.AccountID, e.Required, e.Available)
}

// IsInsufficientBalance reports whether err is an insufficient-balance failure.
func IsInsufficientBalance(err error) bool {
	var ib *InsufficientBalanceError
	return errors.As(err, &ib)
}

// validationError reports whether err is one of the ledger's typed
// results rather than a storage fault.
func validationError(err error) bool {
	return IsInsufficientBalance(err) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidUpgradePath) ||
		errors.Is(err, ErrInvalidDowngradePath) ||
		errors.Is(err, ErrUnknownTier)
}

// storageFault hides backing-store failure detail behind the generic
// sentinel while keeping the cause in the message.
func storageFault(err error) error {
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
