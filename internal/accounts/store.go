package accounts

import (
	"context"

	"github.com/transfer-api/transfer_api/internal/money"
)

// Store holds accounts and owns every balance mutation.
//
// AtomicTransfer is the only way balances move between accounts. Implementations
// serialize orders that share an account and let orders on disjoint accounts run in
// parallel; either both sides of an order are applied or neither is.
type Store interface {
	Get(ctx context.Context, username string) (Account, error)
	Create(ctx context.Context, account NewAccount) (Account, error)
	SetFavorites(ctx context.Context, username string, favorites []string) (Account, error)
	// Credit adds funds to a single account outside of a transfer (seeding, top-ups).
	Credit(ctx context.Context, username string, amount money.Amount) (money.Amount, error)
	// AtomicTransfer moves order.Amount from order.From to order.To. When order.RequestID
	// is set and already committed with the same arguments, it returns the original
	// receipt together with ErrDuplicateTransfer and changes nothing.
	AtomicTransfer(ctx context.Context, order Order) (Receipt, error)
	// FindReceipt returns the committed receipt for requestID sent by from, if one is
	// still remembered. Request ids are scoped to the sending account.
	FindReceipt(ctx context.Context, from, requestID string) (Receipt, bool, error)
	// TotalBalance sums every balance as of a single consistent point.
	TotalBalance(ctx context.Context) (money.Amount, error)
}
