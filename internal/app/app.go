// Package app assembles the long-lived dependencies shared by the HTTP
// server and the CLI.
package app

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"asset-tracker/internal/asset"
	"asset-tracker/internal/auth"
	"asset-tracker/internal/config"
	"asset-tracker/internal/metrics"
	"asset-tracker/internal/user"
)

// App is built once at startup and passed to whatever needs it.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *gorm.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Hasher user.Hasher
	Policy user.PasswordPolicy
	Users  user.Store
	Assets asset.Repository
	Auth   *auth.Manager
	Gate   *auth.Gate
}

// New wires the stores, the session manager and the gate. rdb may be nil,
// in which case logins are not throttled.
func New(cfg *config.Config, logger *slog.Logger, db *gorm.DB, rdb *redis.Client) (*App, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	hasher := user.NewPBKDF2Hasher(cfg.Auth.HashIterations)
	policy := user.PolicyFromConfig(cfg.Auth.PasswordPolicy)
	users := user.NewGormStore(db, cfg.CaseSensitiveUsernames())

	var limiter auth.LoginLimiter = auth.NoopLimiter{}
	if rdb != nil {
		limiter = auth.NewRedisLimiter(rdb, cfg.CaseSensitiveUsernames(), cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow.Duration)
	}

	manager, err := auth.NewManager(users, auth.NewGormSessionStore(db), hasher, limiter, auth.Options{
		Secret:      cfg.Server.SessionSecret,
		TTL:         cfg.Session.TTL.Duration,
		IdleTimeout: cfg.Session.IdleTimeout.Duration,
		Policy:      policy,
	}, logger, m)
	if err != nil {
		return nil, err
	}

	gate := auth.NewGate(manager, auth.GateOptions{
		CookieName:   cfg.Session.CookieName,
		CookiePath:   cfg.Server.Subpath + "/",
		SecureCookie: cfg.Session.SecureCookie,
		LoginPath:    cfg.Server.Subpath + "/auth/login",
	}, logger, m)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Redis:    rdb,
		Registry: registry,
		Metrics:  m,
		Hasher:   hasher,
		Policy:   policy,
		Users:    users,
		Assets:   asset.NewGormRepository(db),
		Auth:     manager,
		Gate:     gate,
	}, nil
}
