package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/carpool-client/internal/bootstrap"
	"github.com/example/carpool-client/internal/config"
	httpapi "github.com/example/carpool-client/internal/http"
	"github.com/example/carpool-client/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	logger := logging.NewLogger(cfg.LogLevel).With("app", "carpool-gateway")
	if err != nil {
		logger.Error("invalid_config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("bootstrap_close_failed", "error", err)
		}
	}()

	// restores a persisted session; failing here only means logged out
	if err := app.Session.CheckAuth(ctx); err != nil {
		logger.Info("session_not_restored", "reason", err.Error())
	}

	gw := httpapi.NewServer(app.Client, app.Session, app.Fanout, logger, httpapi.Options{
		Intervals:         app.Intervals(),
		DefaultGroupSeats: cfg.DefaultGroupSeats,
	})
	srv := &http.Server{
		Addr:         cfg.GatewayAddr,
		Handler:      gw,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway_listening", "addr", cfg.GatewayAddr, "api_base_url", cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("gateway_failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	gw.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway_shutdown_failed", "error", err)
	}
	logger.Info("gateway_stopped")
}
