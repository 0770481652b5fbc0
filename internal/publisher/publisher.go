// Package publisher fans an inbound publish request out to every
// registered adapter concurrently and aggregates the per-adapter results.
package publisher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ied/internal/adapterclient"
	"ied/internal/apperrors"
	"ied/internal/cache"
	"ied/internal/metrics"
	"ied/internal/models"
)

// Registry is the subset of *registry.Registry the publisher needs.
type Registry interface {
	All() []*adapterclient.Client
}

// Publisher fans a publish request out to every configured adapter.
type Publisher struct {
	registry Registry
	cache    cache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New builds a Publisher.
func New(reg Registry, c cache.Cache, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{registry: reg, cache: c, metrics: m, logger: logger}
}

// PublishToAll sends req to every registered adapter concurrently, marks the
// cache for every adapter that accepted the event, and returns an aggregate
// response. Overall success means at least one adapter accepted the event.
// A request whose dataLocation carries no global id is rejected outright
// rather than fanned out to adapters.
func (p *Publisher) PublishToAll(ctx context.Context, req models.PublishRequest) (models.PublishResponse, *apperrors.Error) {
	globalID, err := models.ExtractGlobalID(req.DataLocation)
	if err != nil {
		return models.PublishResponse{}, apperrors.Wrap(apperrors.KindMissingGlobalID, "dataLocation is missing the hl query parameter", err)
	}

	clients := p.registry.All()
	results := make([]models.AdapterResult, len(clients))

	var wg sync.WaitGroup
	for i, client := range clients {
		wg.Add(1)
		go func(i int, c *adapterclient.Client) {
			defer wg.Done()
			start := time.Now()
			result := c.Publish(ctx, req)
			elapsed := time.Since(start).Seconds()

			status := "success"
			if !result.Success {
				status = "failure"
			}
			if p.metrics != nil {
				p.metrics.RecordAdapterPublish(c.Name(), status, elapsed)
			}

			results[i] = models.AdapterResult{
				Name:      c.Name(),
				Success:   result.Success,
				Timestamp: result.Timestamp,
				Error:     result.Error,
			}

			if result.Success {
				if err := p.cache.MarkPublished(ctx, c.ChainID(), globalID); err != nil {
					p.logger.Error("marking published in cache failed",
						zap.String("adapter", c.Name()), zap.String("globalId", globalID), zap.Error(err))
				}
			}
		}(i, client)
	}
	wg.Wait()

	overallSuccess := false
	for _, r := range results {
		if r.Success {
			overallSuccess = true
			break
		}
	}

	if p.metrics != nil {
		status := "failure"
		if overallSuccess {
			status = "success"
		}
		p.metrics.RecordPublish(status)
	}

	return models.PublishResponse{
		Timestamp: time.Now().Unix(),
		Adapters:  results,
	}, nil
}
