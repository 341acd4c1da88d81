package routes

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/transfer-api/transfer_api/internal/accounts"
	"github.com/transfer-api/transfer_api/internal/auth"
	"github.com/transfer-api/transfer_api/internal/config"
	"github.com/transfer-api/transfer_api/internal/middleware"
	"github.com/transfer-api/transfer_api/internal/notification"
	"github.com/transfer-api/transfer_api/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Registry)

	var store accounts.Store
	if d.DB != nil {
		store = accounts.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory account store")
		store = accounts.NewMemoryStore(accounts.WithRequestTTL(d.Cfg.IdempotencyTTL))
	}

	sessions := auth.NewSessionManager(d.Cfg.JWTSecret, d.Cfg.SessionTTL)
	authSvc := auth.NewService(store, sessions,
		auth.WithHasher(auth.BcryptHasher{Cost: d.Cfg.BcryptCost}),
		auth.WithOpeningBalance(d.Cfg.OpeningBalance),
		auth.WithLogger(d.Logger),
	)
	accountSvc := accounts.NewService(store, d.Logger)
	engine := transfer.NewEngine(store, d.Cfg.TransferRules(),
		transfer.WithNotifier(notification.NewLoggerNotifier(d.Logger)),
		transfer.WithMetrics(transfer.NewMetrics(d.Registry)),
		transfer.WithLogger(d.Logger),
	)

	// Public routes
	RegisterAuthRoutes(app, auth.NewHandler(authSvc), middleware.LoginRateLimit(d.Cache, d.Cfg.LoginAttempts))

	// Protected routes
	session := middleware.RequireSession(authSvc)
	RegisterUserRoutes(app, accounts.NewHandler(accountSvc), session)
	RegisterTransferRoutes(app, transfer.NewHandler(engine), session,
		middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))

	return nil
}
