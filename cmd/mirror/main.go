package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-client/internal/config"
	"github.com/example/carpool-client/internal/events"
	"github.com/example/carpool-client/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	logger := logging.NewLogger(cfg.LogLevel).With("app", "carpool-mirror")
	if err = errors.Join(err, errors.Join(cfg.ValidateMirror()...)); err != nil {
		logger.Error("invalid_config", "error", err)
		os.Exit(1)
	}

	store := events.NewRedisMirrorStore(cfg.RedisAddr, cfg.RedisPassword)
	mirror := events.NewKafkaMirror(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, store, logger)
	defer func() {
		_ = mirror.Close()
		_ = store.Close()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	metrics := &http.Server{Addr: cfg.MirrorMetricsAddr, Handler: mux, ReadTimeout: cfg.ReadTimeout}
	go func() {
		logger.Info("mirror_metrics_listening", "addr", cfg.MirrorMetricsAddr)
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("mirror_metrics_stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("mirror_consuming", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)
	if err := mirror.Run(ctx); err != nil {
		logger.Error("mirror_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metrics.Shutdown(shutdownCtx)
	logger.Info("mirror_stopped")
}
