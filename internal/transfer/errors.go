package transfer

import (
	"errors"

	"github.com/transfer-api/transfer_api/internal/accounts"
)

var (
	// ErrInvalidAmount rejects zero, negative or over-precise amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrForbidden indicates the caller does not own the source account.
	ErrForbidden = errors.New("caller does not own the source account")
	// ErrInvalidTransfer rejects transfers from an account to itself.
	ErrInvalidTransfer = errors.New("source and destination must differ")
	// ErrRecipientNotAllowed indicates the recipient is not among the sender's favorites.
	ErrRecipientNotAllowed = errors.New("recipient not in favored list")
	// ErrNonFavoredLimitExceeded indicates a transfer above the cap to a non-favored recipient.
	ErrNonFavoredLimitExceeded = errors.New("amount exceeds the limit for non-favored recipients")
)

// outcome labels err for metrics and logs.
func outcome(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidTransfer):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, accounts.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRecipientNotAllowed), errors.Is(err, ErrNonFavoredLimitExceeded):
		return "not_allowed"
	case errors.Is(err, accounts.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, accounts.ErrRequestConflict), errors.Is(err, accounts.ErrTransferInProgress):
		return "conflict"
	case errors.Is(err, accounts.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
