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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/api"
	"github.com/dunamismax/tryonflow/internal/bootstrap"
	"github.com/dunamismax/tryonflow/internal/codec"
	"github.com/dunamismax/tryonflow/internal/config"
	"github.com/dunamismax/tryonflow/internal/logging"
	"github.com/dunamismax/tryonflow/internal/queue"
	"github.com/dunamismax/tryonflow/internal/ratelimit"
	"github.com/dunamismax/tryonflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "tryonflow-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		OTLPInsecure: cfg.Tracing.Insecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	if err := codec.Startup(); err != nil {
		return fmt.Errorf("start codec runtime: %w", err)
	}
	defer codec.Shutdown()

	artifacts, err := bootstrap.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	jobs, closeJobs, err := bootstrap.OpenJobStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer closeJobs()

	rdb := redis.NewClient(cfg.Queue.RedisOptions())
	defer rdb.Close()

	pipelines, err := bootstrap.NewPipelines(cfg.Providers, logger)
	if err != nil {
		return err
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close failed", zap.Error(err))
		}
	}()

	deps := api.Dependencies{
		Garments: pipelines.Garment,
		Persons:  pipelines.Person,
		Storage:  artifacts,
		Cache:    bootstrap.OpenCache(ctx, cfg.Cache, rdb, logger),
		Jobs:     jobs,
		Queue:    queueClient,
		Checks: map[string]api.HealthCheck{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"storage": func(ctx context.Context) error {
				_, err := artifacts.Exists(ctx, "healthz")
				return err
			},
		},
	}
	if cfg.API.RateLimit.Enabled {
		limiter, err := ratelimit.NewRedisWindow(rdb, cfg.API.RateLimit.Requests, cfg.API.RateLimit.Window, "")
		if err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		deps.RateLimiter = limiter
	}

	app := api.NewServer(logger, deps, api.Options{
		Mode:           cfg.API.Mode,
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		AllowedTypes:   cfg.API.AllowedTypes,
		UserIDHeader:   cfg.API.RateLimit.UserIDHeader,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.API.Addr), zap.String("storage", cfg.Storage.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
