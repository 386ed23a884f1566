// Command server runs the admission front-end for the coalescing
// completion proxy.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/caarlos0/env/v10"
	"github.com/redis/go-redis/v9"

	"github.com/FergusFettes/openai-cd2-proxy/internal/config"
	"github.com/FergusFettes/openai-cd2-proxy/internal/gateway"
	"github.com/FergusFettes/openai-cd2-proxy/internal/identity"
	"github.com/FergusFettes/openai-cd2-proxy/internal/observability"
	"github.com/FergusFettes/openai-cd2-proxy/internal/scheduler"
	"github.com/FergusFettes/openai-cd2-proxy/internal/tokencount"
	"github.com/FergusFettes/openai-cd2-proxy/internal/upstream"
	"github.com/FergusFettes/openai-cd2-proxy/internal/usage"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("starting completion proxy",
		"log_level", cfg.LogLevel,
		"http_addr", cfg.Gateway.Addr,
		"model", cfg.Model,
		"upstream", cfg.Upstream.BaseURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// --- Observability ---
	obs, err := observability.New("openai-cd2-proxy")
	if err != nil {
		return fmt.Errorf("failed to create observability module: %w", err)
	}
	metrics, err := observability.NewMetrics(obs.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	// --- Identity module (auth) ---
	// A nil *redis.Client passed as an interface argument is not a nil
	// interface, so the two cases are kept as separate call sites rather
	// than assigning a possibly-nil pointer to a variable first.
	var identityModule *identity.Module
	if cfg.Identity.RedisAddr == "" {
		identityModule, err = identity.New(ctx, cfg.Identity, nil, logger)
	} else {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Identity.RedisAddr})
		identityModule, err = identity.New(ctx, cfg.Identity, redisClient, logger)
	}
	if err != nil {
		return fmt.Errorf("failed to create identity module: %w", err)
	}
	if err := identityModule.Start(ctx); err != nil {
		return fmt.Errorf("failed to start identity module: %w", err)
	}

	// --- Usage ledger ---
	usageDriverName := "sqlite"
	if cfg.Identity.Driver == "postgres" {
		usageDriverName = "postgres"
	}
	usageDB, err := sql.Open(usageDriverName, cfg.Identity.DSN)
	if err != nil {
		return fmt.Errorf("failed to open usage database: %w", err)
	}
	defer usageDB.Close()

	var s3Client *s3.Client
	if cfg.Archiver.Enabled {
		awsConf, err := awscfg.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("failed to load AWS config for archiver: %w", err)
		}
		s3Client = s3.NewFromConfig(awsConf)
	}

	usageModule, err := usage.New(ctx, cfg.Usage, usageDB, usage.DriverFromName(cfg.Identity.Driver), cfg.NATS, cfg.Archiver, s3Client, logger)
	if err != nil {
		return fmt.Errorf("failed to create usage module: %w", err)
	}
	usageModule.Start(ctx)

	// --- Upstream client ---
	upstreamClient := upstream.NewClient(cfg.Upstream, nil, logger)

	// --- Scheduler ---
	flushInterval := time.Duration(cfg.FlushIntervalMS) * time.Millisecond
	sched := scheduler.New(scheduler.Config{Model: cfg.Model, FlushInterval: flushInterval}, upstreamClient, schedulerMetrics{metrics}, logger)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	// --- HTTP gateway ---
	counter := tokencount.NewApproximateCounter()
	handler := gateway.NewHandler(sched, counter, usageModule.Ledger(), logger)

	serverOpts := &gateway.ServerOpts{
		AuthMiddleware:      identityModule.AuthMiddleware(),
		MetricsMiddleware:   observability.HTTPMetrics(metrics),
		MetricsHandler:      obs.MetricsHandler(),
		AdminRouteRegistrar: identityModule.RegisterAdminRoutes,
	}
	server := gateway.NewServer(cfg.Gateway, handler, logger, serverOpts)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("completion proxy started", "addr", cfg.Gateway.Addr)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	<-schedDone
	logger.Info("scheduler stopped")

	usageModule.Stop(shutdownCtx)
	logger.Info("usage module stopped")

	identityModule.Stop()
	logger.Info("identity module stopped")

	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown error", "error", err)
	}
	logger.Info("observability module stopped")

	logger.Info("server stopped")
	return nil
}

// schedulerMetrics adapts observability.Metrics to scheduler.Metrics.
type schedulerMetrics struct {
	m *observability.Metrics
}

func (s schedulerMetrics) ObserveBatchSize(n int) {
	s.m.SchedulerBatchSize.Record(context.Background(), int64(n))
}

func (s schedulerMetrics) ObserveFlushLatency(d time.Duration) {
	s.m.SchedulerFlushLatency.Record(context.Background(), float64(d.Milliseconds()))
}

func (s schedulerMetrics) IncUpstreamError() {
	s.m.SchedulerUpstreamError.Add(context.Background(), 1)
}

// setupLogger creates a logger based on configuration.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
