package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/transfer-api/transfer_api/internal/accounts"
	"github.com/transfer-api/transfer_api/internal/money"
)

var (
	// ErrInvalidRegistration rejects an empty username or password.
	ErrInvalidRegistration = errors.New("username and password are required")
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrUserNotFound indicates no account exists for the username.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates the password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Service registers accounts, checks credentials and issues sessions.
type Service struct {
	store          accounts.Store
	hasher         Hasher
	sessions       *SessionManager
	openingBalance money.Amount
	logger         *slog.Logger

	dummyOnce sync.Once
	dummyHash []byte
}

// Option customizes a Service.
type Option func(*Service)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithOpeningBalance credits new accounts with amount at registration.
func WithOpeningBalance(amount money.Amount) Option {
	return func(s *Service) { s.openingBalance = amount }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// NewService constructs the credential service.
func NewService(store accounts.Store, sessions *SessionManager, opts ...Option) *Service {
	s := &Service{
		store:    store,
		hasher:   BcryptHasher{Cost: bcrypt.DefaultCost},
		sessions: sessions,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string, favorites []string) (accounts.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return accounts.Account{}, ErrInvalidRegistration
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return accounts.Account{}, fmt.Errorf("%w: password too long", ErrInvalidRegistration)
		}
		return accounts.Account{}, fmt.Errorf("hash password: %w", err)
	}

	acct, err := s.store.Create(ctx, accounts.NewAccount{
		Username:       username,
		PasswordHash:   hash,
		Favorites:      favorites,
		OpeningBalance: s.openingBalance,
	})
	if err != nil {
		if errors.Is(err, accounts.ErrAlreadyExists) {
			return accounts.Account{}, ErrUsernameTaken
		}
		return accounts.Account{}, err
	}

	s.logger.Info("account registered", slog.String("username", acct.Username), slog.Int("favorites", len(acct.Favorites)))
	return acct, nil
}

// Authenticate checks password against the stored hash. Unknown users still pay for one
// bcrypt comparison so both failures take comparable time.
func (s *Service) Authenticate(ctx context.Context, username, password string) (accounts.Account, error) {
	acct, err := s.store.Get(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			_ = s.hasher.Compare(s.dummy(), password)
			return accounts.Account{}, ErrUserNotFound
		}
		return accounts.Account{}, err
	}
	if err := s.hasher.Compare(acct.PasswordHash, password); err != nil {
		return accounts.Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// LoginResult is the account together with a fresh session.
type LoginResult struct {
	Account accounts.Account
	Session Session
}

// Login authenticates and issues a session in one step.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	acct, err := s.Authenticate(ctx, username, password)
	if err != nil {
		s.logger.Warn("login rejected", slog.String("username", username), slog.Any("error", err))
		return LoginResult{}, err
	}
	session, err := s.IssueSession(acct.Username)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger.Info("login succeeded", slog.String("username", acct.Username))
	return LoginResult{Account: acct, Session: session}, nil
}

// IssueSession signs a session token for username.
func (s *Service) IssueSession(username string) (Session, error) {
	return s.sessions.Issue(username)
}

// ValidateSession returns the username a token was issued to.
func (s *Service) ValidateSession(token string) (string, error) {
	return s.sessions.Validate(token)
}

func (s *Service) dummy() []byte {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("transfer-api-dummy-password")
		if err != nil {
			hash = []byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
