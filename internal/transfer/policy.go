package transfer

import (
	"fmt"
	"strings"

	"github.com/transfer-api/transfer_api/internal/accounts"
	"github.com/transfer-api/transfer_api/internal/money"
)

// Policy selects how a sender's favored-recipient list restricts transfers.
type Policy string

const (
	// PolicyOpen allows anyone when the list is empty and only listed recipients otherwise.
	PolicyOpen Policy = "open"
	// PolicyStrict allows only listed recipients; an empty list denies every transfer.
	PolicyStrict Policy = "strict"
	// PolicyCapped allows anyone but caps transfers to recipients outside the list.
	PolicyCapped Policy = "capped"
)

// DefaultNonFavoredLimit caps transfers to non-favored recipients under PolicyCapped.
var DefaultNonFavoredLimit = money.MustParse("5000.00")

// ParsePolicy reads a policy name; the empty string selects PolicyCapped.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyCapped, nil
	case PolicyOpen, PolicyStrict, PolicyCapped:
		return p, nil
	default:
		return "", fmt.Errorf("unknown favored-recipient policy %q", s)
	}
}

// Rules holds the service-wide transfer restrictions.
type Rules struct {
	Policy          Policy
	NonFavoredLimit money.Amount
}

// DefaultRules returns the capped policy with DefaultNonFavoredLimit.
func DefaultRules() Rules {
	return Rules{Policy: PolicyCapped, NonFavoredLimit: DefaultNonFavoredLimit}
}

// Check decides whether sender may send amount to recipient. The zero Rules behave as
// DefaultRules.
func (r Rules) Check(sender accounts.Account, recipient string, amount money.Amount) error {
	if r.Policy == "" {
		r = DefaultRules()
	}
	favored := sender.IsFavorite(recipient)
	switch r.Policy {
	case PolicyOpen:
		if len(sender.Favorites) == 0 || favored {
			return nil
		}
		return ErrRecipientNotAllowed
	case PolicyStrict:
		if favored {
			return nil
		}
		return ErrRecipientNotAllowed
	default:
		if favored || amount <= r.NonFavoredLimit {
			return nil
		}
		return ErrNonFavoredLimitExceeded
	}
}
