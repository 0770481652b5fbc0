// Package bootstrap sequences engine startup: connect the cache, register
// and health-check adapters, then install the wildcard internal
// subscription on every healthy adapter.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ied/internal/cache"
	"ied/internal/config"
	"ied/internal/registry"
	"ied/internal/subscription"
)

// Result reports the outcome of a bootstrap run.
type Result struct {
	HealthyAdapters int
	TotalAdapters   int
}

// Run connects to the cache, health-checks every registered adapter, and
// installs the engine's own wildcard subscription on every healthy one. In
// production, zero healthy adapters is a fatal error; in development it is
// logged and bootstrap continues so local iteration is not blocked on a
// fully-up adapter fleet.
func Run(ctx context.Context, cfg *config.Config, c cache.Cache, reg *registry.Registry, subMgr *subscription.Manager, logger *zap.Logger) (Result, error) {
	if err := c.Ping(ctx); err != nil {
		if cfg.IsProduction() {
			return Result{}, fmt.Errorf("bootstrap: cache unavailable: %w", err)
		}
		logger.Warn("bootstrap: cache unavailable, continuing in development mode", zap.Error(err))
	}

	healthResults := reg.HealthCheck(ctx)
	healthyCount := 0
	for name, healthy := range healthResults {
		if healthy {
			healthyCount++
		} else {
			logger.Warn("bootstrap: adapter failed health check", zap.String("adapter", name))
		}
	}

	if healthyCount == 0 {
		msg := "bootstrap: zero healthy adapters"
		if cfg.IsProduction() {
			return Result{}, fmt.Errorf("%s", msg)
		}
		logger.Warn(msg + ", continuing in development mode")
	}

	for _, client := range reg.All() {
		if healthy, ok := healthResults[client.Name()]; !ok || !healthy {
			continue
		}
		callbackURL := fmt.Sprintf("%s/internal/eventNotification/%s", cfg.IEDBaseURL, client.Name())
		result := subMgr.InstallOn(ctx, client, cfg.InternalSubscription.EventTypes, callbackURL)
		if !result.Success {
			logger.Warn("bootstrap: failed to install internal subscription",
				zap.String("adapter", client.Name()), zap.String("error", result.Error))
		}
	}

	return Result{HealthyAdapters: healthyCount, TotalAdapters: len(reg.All())}, nil
}
