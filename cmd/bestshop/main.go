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
	"golang.org/x/sync/errgroup"

	"github.com/bestshop/bestshop/internal/accounts"
	"github.com/bestshop/bestshop/internal/app"
	"github.com/bestshop/bestshop/internal/observability"
	"github.com/bestshop/bestshop/internal/password"
	"github.com/bestshop/bestshop/internal/platform/cache"
	"github.com/bestshop/bestshop/internal/platform/db"
	"github.com/bestshop/bestshop/internal/shared"
	"github.com/bestshop/bestshop/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "bestshop_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	mailClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init mail queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := mailClient.Close(); err != nil {
			logger.Warn("mail queue close", slog.Any("error", err))
		}
	}()

	accountsRepo := accounts.NewRepository(dbpool)
	hasher := password.NewHasher(cfg.AllowLegacyDigests)
	notifier := jobs.NewQueueNotifier(mailClient)
	accountsService := accounts.NewService(logger, accountsRepo, hasher, notifier, accounts.ServiceConfig{
		BaseURL:              cfg.AppBaseURL,
		ResetTokenTTL:        cfg.ResetTokenTTL,
		VerificationTokenTTL: cfg.VerificationTokenTTL,
	})
	accountsHandler := accounts.NewHandler(logger, accountsService, sessionManager, csrfManager, metrics)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AccountsHandler: accountsHandler,
		JobHandler:      jobHandler,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
