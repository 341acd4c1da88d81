package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionRoundTrip(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)
	s, err := m.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := m.Validate(s.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}
}

func TestSessionExpired(t *testing.T) {
	m := NewSessionManager("secret", time.Minute)
	issuedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issuedAt }
	s, err := m.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	m.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := m.Validate(s.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestSessionInvalid(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)
	other := NewSessionManager("another-secret", time.Hour)
	foreign, err := other.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Validate(foreign.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for wrong key, got %v", err)
	}
	if _, err := m.Validate("not-a-token"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for garbage, got %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := m.Validate(none); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for alg none, got %v", err)
	}
}
