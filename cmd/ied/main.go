// Command ied runs the Interchain Event Distributor: a middleware broker
// that keeps a logical event stream consistent across independently
// operated distributed-ledger adapters while exposing a single
// publish/subscribe API to the consumer.
//
// Startup sequence:
//  1. Load configuration from the process environment.
//  2. Initialize structured logging with zap.
//  3. Connect to the cache (Redis-backed set store).
//  4. Build the adapter registry from configuration.
//  5. Wire the publisher, replicator, and subscription registry.
//  6. Bootstrap: health-check adapters and install internal wildcard
//     subscriptions so replication begins receiving notifications.
//  7. Start the HTTP server with graceful shutdown support.
//
// Graceful shutdown is triggered by SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ied/internal/adapterclient"
	"ied/internal/bootstrap"
	"ied/internal/cache"
	"ied/internal/config"
	"ied/internal/metrics"
	"ied/internal/observability"
	"ied/internal/publisher"
	"ied/internal/registry"
	"ied/internal/replicator"
	"ied/internal/server"
	"ied/internal/subscription"
)

// ServiceName identifies this process in logs and metrics.
const ServiceName = "ied"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("ied starting",
		zap.String("service", ServiceName),
		zap.String("environment", cfg.Environment),
		zap.Int("adapters", len(cfg.Adapters)),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return err
	}
	defer components.Close(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := bootstrap.Run(ctx, cfg, components.cache, components.registry, components.subscribers, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	logger.Info("bootstrap complete",
		zap.Int("healthyAdapters", result.HealthyAdapters),
		zap.Int("totalAdapters", result.TotalAdapters),
	)
	components.metrics.SetAdaptersHealthy(result.HealthyAdapters)

	return runServerWithShutdown(cfg, logger, components)
}

// buildLogger constructs a zap logger whose encoding and verbosity follow
// cfg.Environment: plain console output in development, JSON in production
// and test, both leveled from cfg.LogLevel.
func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	jsonEnv := cfg.IsProduction() || cfg.Environment == "test"

	var zcfg zap.Config
	if jsonEnv {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogFormat == "console" {
		zcfg.Encoding = "console"
	} else if jsonEnv {
		zcfg.Encoding = "json"
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("building zap logger: %w", err)
	}
	return logger, nil
}

// components bundles every process-wide handle the composition root wires
// together explicitly, per the engine's "avoid ambient globals" design
// note: every handler reaches these through the server, not a package
// singleton.
type components struct {
	cache       cache.Cache
	registry    *registry.Registry
	publisher   *publisher.Publisher
	replicator  *replicator.Replicator
	subscribers *subscription.Manager
	metrics     *metrics.Metrics
	health      *observability.HealthChecker
	server      *server.Server
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*components, error) {
	redisCfg := &cache.RedisConfig{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	m := metrics.New(ServiceName)

	c := cache.NewRedisCache(redisCfg)
	c.SetMetrics(m)

	adapterCfg := adapterclient.Config{
		AdapterTimeout: cfg.Timeouts.AdapterTimeout,
		MaxAttempts:    cfg.Timeouts.MaxRetryAttempts,
		RetryDelay:     cfg.Timeouts.RetryDelay,
		Metrics:        m,
	}

	reg, err := registry.New(cfg.Adapters, adapterCfg, logger)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("building adapter registry: %w", err)
	}

	pub := publisher.New(reg, c, m, logger.Named("publisher"))
	repl := replicator.New(reg, c, m, cfg.Timeouts.ReplicationDelay, logger.Named("replicator"))
	subs := subscription.New(reg, c, m, cfg.Timeouts.NotificationTimeout, logger.Named("subscription"))
	health := observability.NewHealthChecker(ServiceName)

	srv := server.New(cfg, logger.Named("server"), server.Deps{
		Cache:       c,
		Registry:    reg,
		Publisher:   pub,
		Replicator:  repl,
		Subscribers: subs,
		Metrics:     m,
		Health:      health,
	})

	return &components{
		cache:       c,
		registry:    reg,
		publisher:   pub,
		replicator:  repl,
		subscribers: subs,
		metrics:     m,
		health:      health,
		server:      srv,
	}, nil
}

// Close releases the cache connection. Called once on shutdown; the adapter
// clients' HTTP transports are pooled internally and need no explicit close.
func (c *components) Close(logger *zap.Logger) {
	if c == nil || c.cache == nil {
		return
	}
	if err := c.cache.Close(); err != nil {
		logger.Warn("failed to close cache connection", zap.Error(err))
	}
}

func runServerWithShutdown(cfg *config.Config, logger *zap.Logger, comp *components) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		if err := comp.server.Start(); err != nil {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := comp.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	}
}
