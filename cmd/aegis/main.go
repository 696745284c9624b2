package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-grc/aegis/internal/app"
	"github.com/aegis-grc/aegis/internal/assets"
	"github.com/aegis-grc/aegis/internal/assets/dependencies"
	"github.com/aegis-grc/aegis/internal/authz"
	"github.com/aegis-grc/aegis/internal/busunits"
	"github.com/aegis-grc/aegis/internal/influencers"
	"github.com/aegis-grc/aegis/internal/observability"
	"github.com/aegis-grc/aegis/internal/platform/cache"
	"github.com/aegis-grc/aegis/internal/platform/db"
	"github.com/aegis-grc/aegis/internal/shared"
	"github.com/aegis-grc/aegis/internal/users"
	"github.com/aegis-grc/aegis/internal/webhooks"
	"github.com/aegis-grc/aegis/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	tokens := shared.NewTokenStore(redisClient, "aegis:token", cfg.TokenTTL)
	auditLog := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	webhookRepo := webhooks.NewRepository(pool)
	webhookService := webhooks.NewService(webhookRepo, jobs.NewDispatcher(jobClient), auditLog, logger)

	userRepo := users.NewRepository(pool)
	userService := users.NewService(userRepo, auditLog, logger)

	authzRepo := authz.NewRepository(pool)
	authzService := authz.NewService(authzRepo, userService, auditLog, webhookService, logger)
	guard := authz.Middleware{Evaluator: authzService, Logger: logger, Observer: metrics}

	assetRepo := assets.NewRepository(pool)
	assetService := assets.NewService(assetRepo, auditLog, logger)

	dependencyRepo := dependencies.NewRepository(pool)
	dependencyService := dependencies.NewService(dependencyRepo, assetRepo, auditLog, webhookService, logger)

	buService := busunits.NewService(busunits.NewRepository(pool), auditLog, logger)
	influencerService := influencers.NewService(influencers.NewRepository(pool), auditLog, logger)

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Config: cfg,
		Tokens: tokens,

		AuthzHandler:  authz.NewHandler(logger, authzService, guard),
		AssetsHandler: assets.NewHandler(logger, assetService, guard),
		DependenciesHandler: dependencies.NewHandler(logger, dependencyService, guard).
			WithChainObserver(metrics.ObserveChainDepth),
		UsersHandler:        users.NewHandler(logger, userService, tokens, guard),
		BusinessUnitHandler: busunits.NewHandler(logger, buService, guard),
		InfluencersHandler:  influencers.NewHandler(logger, influencerService, guard),
		WebhooksHandler:     webhooks.NewHandler(logger, webhookService, guard),
		JobHandler:          jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger),

		Metrics: metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
