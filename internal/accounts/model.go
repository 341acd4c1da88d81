package accounts

import (
	"strings"
	"time"

	"github.com/transfer-api/transfer_api/internal/money"
)

// Account is a registered user together with their balance.
type Account struct {
	Username     string
	PasswordHash []byte
	Balance      money.Amount
	Favorites    []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFavorite reports whether username is in the account's favored list.
func (a Account) IsFavorite(username string) bool {
	for _, f := range a.Favorites {
		if f == username {
			return true
		}
	}
	return false
}

func (a Account) clone() Account {
	out := a
	out.Favorites = append([]string(nil), a.Favorites...)
	out.PasswordHash = append([]byte(nil), a.PasswordHash...)
	return out
}

// NewAccount carries the data required to open an account.
type NewAccount struct {
	Username       string
	PasswordHash   []byte
	Favorites      []string
	OpeningBalance money.Amount
}

// Order is a request to move Amount from one account to another.
type Order struct {
	From      string
	To        string
	Amount    money.Amount
	RequestID string
}

// Receipt describes a committed transfer.
type Receipt struct {
	ID          string
	RequestID   string
	From        string
	To          string
	Amount      money.Amount
	FromBalance money.Amount
	ToBalance   money.Amount
	CommittedAt time.Time
}

// Matches reports whether o carries the same sender, recipient and amount as r.
func (r Receipt) Matches(o Order) bool {
	return r.From == o.From && r.To == o.To && r.Amount == o.Amount
}

// NormalizeFavorites trims names, drops blanks and duplicates, and keeps first-seen order.
func NormalizeFavorites(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
