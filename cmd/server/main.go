// Package main is the entrypoint for the inference API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgevision/inference-api/internal/api"
	"github.com/edgevision/inference-api/internal/api/handler"
	mw "github.com/edgevision/inference-api/internal/api/middleware"
	"github.com/edgevision/inference-api/internal/api/response"
	"github.com/edgevision/inference-api/internal/bus"
	"github.com/edgevision/inference-api/internal/config"
	"github.com/edgevision/inference-api/internal/inference"
	"github.com/edgevision/inference-api/internal/scheduler"
	"github.com/edgevision/inference-api/internal/store"
)

const (
	shutdownTimeout = 30 * time.Second
	backendTimeout  = 10 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect the message bus
	redisBus, err := bus.NewRedisBus(cfg.Redis.URL, cfg.Redis.ConsumerGroup)
	if err != nil {
		return fmt.Errorf("create message bus: %w", err)
	}
	defer redisBus.Close()

	if err := redisBus.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the lifecycle service and result consumer
	pgStore := store.NewPostgresStore(pool)
	svc := inference.NewService(pgStore, redisBus, backendTimeout)

	go func() {
		if err := redisBus.Run(ctx, svc); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("bus consumer stopped", "error", err)
		}
	}()

	// 6. Start the cleanup scheduler on its default expression
	cleaner := scheduler.NewCleaner(svc, cfg.Cleanup.PurgeTimeout)
	if err := cleaner.Start(); err != nil {
		return fmt.Errorf("start cleanup scheduler: %w", err)
	}
	defer cleaner.Stop()

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisBus.Client(), cfg.Server.RateLimit),

		HealthHandler:   healthHandler(pgStore, redisBus),
		SubmitHandler:   handler.NewSubmitHandler(svc, cfg.Server.MaxUploadSize),
		ResultHandler:   handler.NewResultHandler(svc),
		DeleteHandler:   handler.NewDeleteHandler(svc),
		HistoryHandler:  handler.NewHistoryHandler(svc),
		ScheduleHandler: handler.NewScheduleHandler(cleaner),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and bus connectivity.
func healthHandler(s store.Store, b *bus.RedisBus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"bus":      "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := b.Ping(r.Context()); err != nil {
			checks["bus"] = "degraded"
		}

		if checks["database"] != "ok" || checks["bus"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
