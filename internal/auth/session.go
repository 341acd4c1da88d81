package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSessionExpired indicates a well-formed token past its expiry.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionInvalid covers malformed tokens, bad signatures and unexpected algorithms.
	ErrSessionInvalid = errors.New("session invalid")
)

// Session is a signed bearer token bound to a username.
type Session struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}

// SessionManager issues and validates HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager builds a manager signing with secret; tokens live for ttl.
func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a new session for username.
func (m *SessionManager) Issue(username string) (Session, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign session: %w", err)
	}
	return Session{Token: signed, Username: username, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Validate verifies token and returns the username it was issued to.
func (m *SessionManager) Validate(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrSessionExpired
		}
		return "", fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if claims.Subject == "" {
		return "", ErrSessionInvalid
	}
	return claims.Subject, nil
}
