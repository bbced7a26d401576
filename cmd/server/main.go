package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"asset-tracker/internal/api"
	"asset-tracker/internal/app"
	"asset-tracker/internal/config"
	"asset-tracker/internal/db"
	"asset-tracker/internal/logging"
	redisdb "asset-tracker/internal/redis"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	gdb, err := db.Open(cfg)
	if err != nil {
		logging.LogError(logger, "failed to open database", err)
		os.Exit(1)
	}
	defer db.Close(gdb)
	if err := db.Migrate(gdb, cfg.CaseSensitiveUsernames()); err != nil {
		logging.LogError(logger, "failed to migrate database", err)
		os.Exit(1)
	}

	rdb := redisdb.NewClient(cfg)
	if rdb != nil {
		defer rdb.Close()
		if err := redisdb.Ping(ctx, rdb); err != nil {
			logging.LogError(logger, "redis unreachable, login throttling will fail open", err)
		}
	} else {
		logger.Info("redis not configured, login throttling disabled")
	}

	a, err := app.New(cfg, logger, gdb, rdb)
	if err != nil {
		logging.LogError(logger, "failed to build application", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(a),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.Addr(), "subpath", cfg.Server.Subpath, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErrors:
		logger.Error("http server stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("http server stopped")
}
