package accounts

import (
	"errors"
	"fmt"

	"github.com/transfer-api/transfer_api/internal/money"
)

var (
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("account not found")
	// ErrAlreadyExists occurs when the username is already registered.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrInsufficientFunds is matched by every *InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrSameAccount rejects an order whose source and destination coincide.
	ErrSameAccount = errors.New("source and destination are the same account")
	// ErrNonPositiveAmount rejects orders and credits that are zero or negative.
	ErrNonPositiveAmount = errors.New("amount must be positive")

	// ErrDuplicateTransfer is returned together with the original receipt when an
	// order repeats a request id that already committed.
	ErrDuplicateTransfer = errors.New("duplicate transfer")
	// ErrRequestConflict indicates a request id reused for a different order.
	ErrRequestConflict = errors.New("request id already used for a different transfer")
	// ErrTransferInProgress indicates another order holding the same request id has
	// not finished yet.
	ErrTransferInProgress = errors.New("transfer with this request id is in progress")

	// ErrStoreUnavailable marks transient infrastructure failures. Safe to retry.
	ErrStoreUnavailable = errors.New("account store unavailable")
)

// NotFoundError names the account that could not be resolved.
type NotFoundError struct {
	Username string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("account %q not found", e.Username)
}

// Is makes errors.Is(err, ErrNotFound) hold.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientFundsError reports the balance that was available and the amount needed.
type InsufficientFundsError struct {
	Username string
	Have     money.Amount
	Need     money.Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %q: have %s, need %s", e.Username, e.Have, e.Need)
}

// Is makes errors.Is(err, ErrInsufficientFunds) hold.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

func notFound(username string) error {
	return &NotFoundError{Username: username}
}
