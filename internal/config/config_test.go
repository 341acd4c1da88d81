package config

import (
	"testing"
	"time"

	"github.com/transfer-api/transfer_api/internal/money"
	"github.com/transfer-api/transfer_api/internal/transfer"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":3000" {
		t.Fatalf("expected :3000, got %s", cfg.Address())
	}
	if cfg.SessionTTL != time.Hour || cfg.IdempotencyTTL != 24*time.Hour || cfg.ShutdownPeriod != 10*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
	if cfg.FavoredPolicy != transfer.PolicyCapped || cfg.NonFavoredLimit != money.MustParse("5000") {
		t.Fatalf("unexpected transfer rules: %+v", cfg.TransferRules())
	}
	if cfg.OpeningBalance != 0 || cfg.LoginAttempts != 5 || cfg.JWTSecret != "dev-secret" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("PORT", ":9000")
	t.Setenv("SESSION_TTL_SECONDS", "90")
	t.Setenv("IDEMPOTENCY_TTL", "15m")
	t.Setenv("OPENING_BALANCE", "10000.00")
	t.Setenv("FAVORED_POLICY", "strict")
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Address() != ":9000" {
		t.Fatalf("expected :9000, got %s", cfg.Address())
	}
	if cfg.SessionTTL != 90*time.Second || cfg.IdempotencyTTL != 15*time.Minute {
		t.Fatalf("unexpected durations: %v %v", cfg.SessionTTL, cfg.IdempotencyTTL)
	}
	if cfg.OpeningBalance != 1_000_000 || cfg.FavoredPolicy != transfer.PolicyStrict || cfg.BcryptCost != 4 {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"SHUTDOWN_TIMEOUT_SECONDS": "soon",
		"OPENING_BALANCE":          "1.234",
		"FAVORED_POLICY":           "lenient",
		"BCRYPT_COST":              "99",
		"NON_FAVORED_LIMIT":        "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv(key, value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestFromEnvProductionRequirements(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/transfers")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected fallback JWT secret to be rejected outside development")
	}

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("production must not be development")
	}

	t.Setenv("DATABASE_URL", "")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected missing DATABASE_URL to fail")
	}
}
