package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/caremesh/caremesh/internal/app"
	"github.com/caremesh/caremesh/internal/audit"
	"github.com/caremesh/caremesh/internal/auth"
	"github.com/caremesh/caremesh/internal/docstore"
	"github.com/caremesh/caremesh/internal/identity"
	"github.com/caremesh/caremesh/internal/observability"
	"github.com/caremesh/caremesh/internal/platform/cache"
	"github.com/caremesh/caremesh/internal/platform/db"
	"github.com/caremesh/caremesh/internal/profile"
	"github.com/caremesh/caremesh/internal/provision"
	"github.com/caremesh/caremesh/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	store := docstore.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("ensure document schema", slog.Any("error", err))
		os.Exit(1)
	}

	directory := identity.NewDirectory(pool)
	if err := directory.EnsureSchema(ctx); err != nil {
		logger.Error("ensure identity schema", slog.Any("error", err))
		os.Exit(1)
	}

	// Registration keeps working without redis; the email lease degrades
	// to a no-op and the unique index backstops duplicates.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, registration lease disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	recorder := audit.NewRecorder(store, logger, audit.RecorderConfig{
		Enabled:     cfg.AuditEnabled,
		Environment: cfg.AppEnv,
	})
	recorder.OnWriteFailure(metrics.RecordAuditWriteFailure)

	profiles := profile.NewRepository(store)

	gateway := auth.NewGateway(directory, profiles, recorder, logger, auth.Config{
		RequireEmailVerification: cfg.RequireEmailVerification,
	})
	authHandler := auth.NewHandler(logger, gateway)

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	provisioner := provision.NewProvisioner(
		directory,
		profiles,
		recorder,
		provision.NewEmailLease(redisClient),
		mailClient,
		provision.NewValidator(cfg.AllowedEmailTLDs),
		logger,
		provision.Config{RequireEmailVerification: cfg.RequireEmailVerification},
	)
	provisionHandler := provision.NewHandler(logger, provisioner)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		AuthHandler:      authHandler,
		ProvisionHandler: provisionHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
