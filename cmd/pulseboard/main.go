package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/pulseboard/internal/app"
	"github.com/pulseboard/pulseboard/internal/auth"
	"github.com/pulseboard/pulseboard/internal/authz"
	"github.com/pulseboard/pulseboard/internal/media"
	"github.com/pulseboard/pulseboard/internal/observability"
	"github.com/pulseboard/pulseboard/internal/platform/db"
	"github.com/pulseboard/pulseboard/internal/posts"
	"github.com/pulseboard/pulseboard/internal/shared"
	"github.com/pulseboard/pulseboard/internal/users"
	"github.com/pulseboard/pulseboard/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "pulseboard_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	metrics := observability.NewMetrics()

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	mailer := jobs.NewAccountMailer(jobClient, cfg.AppBaseURL)

	blobStore, err := media.NewDiskStore(cfg.UploadDir)
	if err != nil {
		logger.Error("upload dir", slog.Any("error", err))
		os.Exit(1)
	}
	sanitizer := media.NewSanitizer(cfg.ImageMaxPixels, cfg.ImageMaxDimension)
	pipeline := media.NewPipeline(blobStore, sanitizer, logger)

	authzRepo := authz.NewSQLRepository(dbpool)
	directory := authz.NewDirectory(authzRepo)
	guard := authz.NewGuard(directory)
	authzMiddleware := authz.Middleware{Directory: directory, Guard: guard, Logger: logger}
	authzService := authz.NewService(authzRepo, guard, auditLogger, logger)
	authzHandler := authz.NewHandler(logger, authzService, authzMiddleware)

	authRepo := auth.NewSQLRepository(dbpool)
	authService := auth.NewService(authRepo, mailer, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	postsRepo := posts.NewSQLRepository(dbpool)
	postsService := posts.NewService(postsRepo, guard, pipeline, blobStore, auditLogger, metrics, logger)
	postsHandler := posts.NewHandler(logger, postsService, blobStore, authzMiddleware, cfg.UploadMaxBytes)

	usersRepo := users.NewSQLRepository(dbpool)
	usersService := users.NewService(usersRepo, guard, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, authzMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		SessionManager:  sessionManager,
		CSRFManager:     csrfManager,
		AuthzMiddleware: authzMiddleware,
		AuthHandler:     authHandler,
		AuthzHandler:    authzHandler,
		PostsHandler:    postsHandler,
		UsersHandler:    usersHandler,
		Metrics:         metrics,
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
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.AppRequestTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
