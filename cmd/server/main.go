package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/rudipoppes/GenHook/internal/adapter/api"
	"github.com/rudipoppes/GenHook/internal/configstore"
	"github.com/rudipoppes/GenHook/internal/payloadlog"
	"github.com/rudipoppes/GenHook/internal/pkg/config"
	"github.com/rudipoppes/GenHook/internal/pkg/logger"
	"github.com/rudipoppes/GenHook/internal/pkg/metrics"
	"github.com/rudipoppes/GenHook/internal/sink"
	"github.com/rudipoppes/GenHook/internal/usecase"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level)
	slog.SetDefault(log)

	m := metrics.New()

	// --- Metrics server, bound to a different address than the public
	// router that serves the webhook and admin API endpoints. ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: adminMux,
	}

	go func() {
		log.Info("starting metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("could not reach redis, circuit breaker state will stay local", "error", err)
		}
	}

	store := configstore.New(cfg.Store.ConfigPath, log)
	payloadLog := payloadlog.New(payloadlog.Config{
		Disabled:      !cfg.WebhookLogging.Enabled,
		BaseDirectory: cfg.WebhookLogging.BaseDirectory,
		MaxBytes:      cfg.WebhookLogging.MaxBytes,
		BackupCount:   cfg.WebhookLogging.BackupCount,
	}, log, m)

	sinkClient := sink.New(sink.Config{
		URL:             cfg.Sink.URL,
		Username:        cfg.Sink.Username,
		Password:        cfg.Sink.Password,
		Timeout:         cfg.Sink.Timeout(),
		RetryAttempts:   cfg.Sink.RetryAttempts,
		BreakerCoolDown: cfg.Sink.BreakerCoolDown(),
		RateLimit:       cfg.Sink.RateLimit,
	}, redisClient, m, log)

	ingestUseCase := usecase.NewIngestUseCase(store, payloadLog, sinkClient, log, m)
	adminUseCase := usecase.NewAdminUseCase(store, payloadLog)

	router := api.NewRouter(log, m, ingestUseCase, adminUseCase, cfg.Server.RequestTimeout())
	ingestServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting webhook gateway", "addr", ingestServer.Addr)
		if err := ingestServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("webhook gateway failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := ingestServer.Shutdown(shutdownCtx); err != nil {
		log.Error("webhook gateway shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown failed", "error", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Info("shut down gracefully")
}
