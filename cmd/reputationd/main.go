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
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := BuildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := app.Config
	log := app.Logger

	log.Info().
		Str("profile", cfg.Profile).
		Str("address", cfg.Server.Address).
		Str("storage_adapter", cfg.Storage.Adapter).
		Msg("starting reputation server")

	go app.Analytics.Start(ctx)
	go runSweeps(ctx, app)

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	if app.MetricsSrv != nil {
		go func() {
			log.Info().Str("address", cfg.Metrics.Address).Str("path", cfg.Metrics.Path).Msg("metrics listening")
			if err := app.MetricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if app.MetricsSrv != nil {
		_ = app.MetricsSrv.Shutdown(shutdownCtx)
	}
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
		cleanup()
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// runSweeps re-evaluates badges and levels for every user on the configured
// interval, picking up catalog or curve changes made since users last acted.
func runSweeps(ctx context.Context, app *App) {
	interval := app.Config.Engine.SweepInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := app.Service.ReevaluateAll(ctx, app.Config.Engine.SweepParallelism); err != nil && ctx.Err() == nil {
				app.Logger.Error().Err(err).Msg("badge sweep failed")
			}
		}
	}
}
