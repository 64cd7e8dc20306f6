package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/harmony-core/internal/core/config"
	"github.com/mohammed-shakir/harmony-core/internal/core/health"
	middleware "github.com/mohammed-shakir/harmony-core/internal/core/middleware"
	"github.com/mohammed-shakir/harmony-core/internal/core/router"
)

// Handler builds the full route tree.
func Handler(logger *slog.Logger, deps router.Deps, metrics http.Handler, ready *health.Readiness) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if ready == nil {
		ready = health.NewReadiness(0)
	}
	r.Get("/readyz", ready.Handler())
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	router.Mount(r, deps)
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
