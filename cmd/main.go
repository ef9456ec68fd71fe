package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/scorenft/internal/adapters/auth"
	"github.com/okian/scorenft/internal/adapters/http/api"
	"github.com/okian/scorenft/internal/adapters/http/swagger"
	workerpool "github.com/okian/scorenft/internal/adapters/mq/worker"
	"github.com/okian/scorenft/internal/adapters/repository"
	"github.com/okian/scorenft/internal/adapters/repository/postgres"
	"github.com/okian/scorenft/internal/adapters/repository/redis"
	"github.com/okian/scorenft/internal/adapters/repository/sqlite"
	app "github.com/okian/scorenft/internal/app"
	"github.com/okian/scorenft/internal/config"
	"github.com/okian/scorenft/internal/platform/otel"
	"github.com/okian/scorenft/pkg/logger"
	"github.com/okian/scorenft/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
	serviceName               = "scorenft"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWith(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	shutdownTracing, err := otel.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn(ctx, "tracer shutdown failed", logger.Error(err))
		}
	}()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	sinks, closeSinks, err := buildSinks(ctx, cfg, log)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to build event sinks: %w", err)
	}
	defer closeSinks()

	svc := app.New(
		app.WithLogger(log),
		app.WithStore(store),
		app.WithSinks(sinks...),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", store.Driver()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// openStore selects the contract store backend named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return repository.NewMemoryStore(), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.DriverRedis:
		return redis.Open(ctx, cfg.RedisURL, redis.WithKeyPrefix(cfg.RedisPrefix))
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// buildSinks returns the event sinks for cfg. The log sink is always on;
// Kafka joins when brokers are configured.
func buildSinks(ctx context.Context, cfg *config.Config, log logger.Logger) ([]workerpool.Sink, func(), error) {
	sinks := []workerpool.Sink{workerpool.NewLogSink(log.Named("events"))}
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return sinks, func() {}, nil
	}
	kafka, err := workerpool.NewKafkaSink(ctx, brokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	log.Info(ctx, "kafka event sink enabled", logger.String("topic", cfg.KafkaTopic))
	return append(sinks, kafka), kafka.Close, nil
}

// newHandler mounts the API and docs routes.
func newHandler(ctx context.Context, cfg *config.Config, svc *app.Service) http.Handler {
	verifier := auth.NewVerifier(
		auth.WithAudience(cfg.AuthAudience),
		auth.WithMaxTTL(cfg.AuthMaxTokenTTL()),
		auth.WithReplayCacheSize(cfg.ReplayCacheSize),
	)
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, verifier).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes process gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
