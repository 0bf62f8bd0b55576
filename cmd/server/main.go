package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tablestore/internal/auth"
	"github.com/JonMunkholm/tablestore/internal/config"
	"github.com/JonMunkholm/tablestore/internal/core"
	"github.com/JonMunkholm/tablestore/internal/database"
	"github.com/JonMunkholm/tablestore/internal/logging"
	"github.com/JonMunkholm/tablestore/internal/repository"
	"github.com/JonMunkholm/tablestore/internal/storage"
	"github.com/JonMunkholm/tablestore/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logCloser := logging.Setup(cfg.Logging)
	defer logCloser.Close()

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"storage", cfg.Storage.Backend,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	artifacts, artifactCloser, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open artifact storage", "error", err)
		os.Exit(1)
	}
	defer artifactCloser.Close()

	revoker, revokerCloser, err := auth.NewRevoker(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer revokerCloser()

	store := repository.New(pool)
	service, err := core.NewService(core.Deps{
		Files:     store.Files,
		Users:     store.Users,
		Audits:    store.Audits,
		Artifacts: artifacts,
		Hasher:    auth.BcryptHasher{Cost: cfg.Auth.BcryptCost},
	}, cfg)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(web.Deps{
		Service: service,
		Tokens:  auth.NewTokens(cfg.Auth),
		Revoker: revoker,
		Ready: func(ctx context.Context) error {
			return database.Ping(ctx, pool)
		},
	}, cfg)

	// Background reconciliation, sweeper and audit archival
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	service.StartBackground(jobCtx, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.UploadLimiter().Status(); status.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", status.Active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("background work did not finish in time", "error", err)
		}
		cancelJobs()
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
