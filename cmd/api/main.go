package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/installhub/api/internal/handlers"
	"github.com/installhub/api/internal/platform/bootstrap"
	"github.com/installhub/api/internal/platform/config"
	"github.com/installhub/api/internal/platform/idempotency"
	"github.com/installhub/api/internal/platform/observability"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, logger.Named("api"))
	stop()
	if err != nil {
		logger.Error("api exited", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, logger *zap.Logger) error {
	startedAt := time.Now().UTC()
	ctx = observability.WithLogger(ctx, logger)

	rt, err := bootstrap.New(ctx, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rt.Close(closeCtx)
	}()
	cfg := rt.Config

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(rt, logger, startedAt),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go sweepIdempotencyKeys(ctx, rt.Idempotency, cfg.Idempotency, logger.Named("idempotency"))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down; draining requests")
	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(drainCtx)
}

func newRouter(rt *bootstrap.Runtime, logger *zap.Logger, startedAt time.Time) http.Handler {
	cfg, svc := rt.Config, rt.Container.Services
	httpLogger := logger.Named("http")

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthRepository(rt.Container.Repositories.Health()),
			handlers.WithHealthBuildInfo(buildInfo(cfg, startedAt)),
		)),
		handlers.WithQuoteRoutes(handlers.NewQuoteHandlers(svc.Quotes).Routes),
		handlers.WithQuoteMiddlewares(idempotency.Middleware(rt.Idempotency,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
		)),
		handlers.WithShipmentRoutes(handlers.NewShipmentHandlers(svc.Shipments).Routes),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Backfill).Routes),
	)
}

// sweepIdempotencyKeys deletes expired idempotency records every CleanupInterval until ctx ends.
func sweepIdempotencyKeys(ctx context.Context, store idempotency.Store, cfg config.IdempotencyConfig, logger *zap.Logger) {
	if store == nil || cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := store.CleanupExpired(ctx, now.UTC(), cfg.CleanupBatchSize)
			switch {
			case errors.Is(err, context.Canceled):
				return
			case err != nil:
				logger.Warn("idempotency sweep failed", zap.Error(err))
			case removed > 0:
				logger.Debug("expired idempotency keys removed", zap.Int("count", removed))
			}
		}
	}
}

func buildInfo(cfg config.Config, started time.Time) handlers.BuildInfo {
	lookup := func(key, fallback string) string {
		if v, _ := config.EnvironmentValue(key); v != "" {
			return v
		}
		return fallback
	}
	return handlers.BuildInfo{
		Version:     lookup("APP_BUILD_VERSION", "dev"),
		CommitSHA:   lookup("APP_BUILD_COMMIT_SHA", "unknown"),
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}
