// Package replicator reacts to an adapter's inbound event notification by
// waiting out a propagation delay and then pushing the event to any ledger
// that does not yet have it. The flow mirrors five states: Observed,
// Waiting, Checking, Dispatching, Complete. None of it is persisted; it
// lives only for the duration of one notification's handling.
package replicator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ied/internal/adapterclient"
	"ied/internal/cache"
	"ied/internal/metrics"
	"ied/internal/models"
)

// Registry is the subset of *registry.Registry the replicator needs.
type Registry interface {
	All() []*adapterclient.Client
	ChainIDs() []string
	ByChainID(chainID string) (*adapterclient.Client, bool)
}

// Replicator propagates an event observed on one chain to every other
// configured chain once the propagation delay has elapsed.
type Replicator struct {
	registry Registry
	cache    cache.Cache
	metrics  *metrics.Metrics
	delay    time.Duration
	logger   *zap.Logger
}

// New builds a Replicator. delay is the propagation window the engine waits
// before checking which chains are missing the event; it may be zero.
func New(reg Registry, c cache.Cache, m *metrics.Metrics, delay time.Duration, logger *zap.Logger) *Replicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Replicator{registry: reg, cache: c, metrics: m, delay: delay, logger: logger}
}

// HandleIncoming processes one event notification received from sourceChain.
// It blocks for the propagation delay, then resolves and dispatches to
// whichever chains are still missing the event. Callers that want
// fire-and-forget semantics should invoke this in a goroutine.
func (r *Replicator) HandleIncoming(ctx context.Context, event models.Event, sourceChain string) {
	log := r.logger.With(zap.String("sourceChain", sourceChain), zap.String("eventType", event.EventType))

	globalID, err := models.ExtractGlobalID(event.DataLocation)
	if err != nil {
		log.Warn("replication: event missing global id, dropping", zap.Error(err))
		return
	}
	log = log.With(zap.String("globalId", globalID))

	// Observed
	if err := r.cache.MarkPublished(ctx, sourceChain, globalID); err != nil {
		log.Error("replication: marking source chain published failed", zap.Error(err))
	}

	// Waiting
	r.wait(ctx)

	// Checking
	candidates := r.otherChains(sourceChain)
	missing, err := r.cache.MissingChains(ctx, globalID, candidates)
	if err != nil {
		log.Error("replication: checking missing chains failed", zap.Error(err))
		if r.metrics != nil {
			r.metrics.RecordReplication("error", 0)
		}
		return
	}
	if len(missing) == 0 {
		log.Debug("replication: no chains missing event, complete")
		if r.metrics != nil {
			r.metrics.RecordReplication("complete", 0)
		}
		return
	}

	// Dispatching
	strippedEvent := models.StripNetwork(event)
	req := models.ToPublishRequest(strippedEvent)

	var wg sync.WaitGroup
	for _, chainID := range missing {
		client, ok := r.registry.ByChainID(chainID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(c *adapterclient.Client) {
			defer wg.Done()
			result := c.Publish(ctx, req)
			if !result.Success {
				log.Warn("replication: dispatch to chain failed",
					zap.String("chain", c.ChainID()), zap.String("error", result.Error))
				return
			}
			if err := r.cache.MarkPublished(ctx, c.ChainID(), globalID); err != nil {
				log.Error("replication: marking dispatched chain published failed",
					zap.String("chain", c.ChainID()), zap.Error(err))
			}
		}(client)
	}
	wg.Wait()

	// Complete
	if r.metrics != nil {
		r.metrics.RecordReplication("complete", len(missing))
	}
}

func (r *Replicator) wait(ctx context.Context) {
	if r.delay <= 0 {
		return
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (r *Replicator) otherChains(sourceChain string) []string {
	all := r.registry.ChainIDs()
	out := make([]string, 0, len(all))
	for _, id := range all {
		if id != sourceChain {
			out = append(out, id)
		}
	}
	return out
}
