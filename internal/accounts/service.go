package accounts

import (
	"context"
	"log/slog"
)

// Service exposes profile operations on top of a Store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService builds an account service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Profile returns the account of username.
func (s *Service) Profile(ctx context.Context, username string) (Account, error) {
	return s.store.Get(ctx, username)
}

// UpdateFavorites replaces the favored-recipient list of username.
func (s *Service) UpdateFavorites(ctx context.Context, username string, favorites []string) (Account, error) {
	acct, err := s.store.SetFavorites(ctx, username, favorites)
	if err != nil {
		return Account{}, err
	}
	if s.logger != nil {
		s.logger.Info("favorites updated", slog.String("username", username), slog.Int("count", len(acct.Favorites)))
	}
	return acct, nil
}
