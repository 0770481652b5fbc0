// Package registry holds the set of ledger adapters the engine was
// configured with. It is immutable after construction: adapters are
// enumerated once at startup from configuration and never added to or
// removed from at runtime.
package registry

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ied/internal/adapterclient"
	"ied/internal/models"
)

// Registry provides name and chain-id lookup plus ordered iteration over
// every configured adapter client.
type Registry struct {
	clients []*adapterclient.Client
	byName  map[string]*adapterclient.Client
	byChain map[string]*adapterclient.Client

	mu      sync.RWMutex
	healthy map[string]bool
}

// New builds a Registry from descriptors. Construction fails if descriptors
// is empty: the engine has nothing to fan out to.
func New(descriptors []models.AdapterDescriptor, cfg adapterclient.Config, logger *zap.Logger) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("adapter registry: zero adapters configured")
	}

	r := &Registry{
		clients: make([]*adapterclient.Client, 0, len(descriptors)),
		byName:  make(map[string]*adapterclient.Client, len(descriptors)),
		byChain: make(map[string]*adapterclient.Client, len(descriptors)),
		healthy: make(map[string]bool, len(descriptors)),
	}

	for _, d := range descriptors {
		client := adapterclient.New(d, cfg, logger.With(zap.String("adapter", d.Name)))
		r.clients = append(r.clients, client)
		r.byName[d.Name] = client
		r.byChain[d.ChainID] = client
	}

	return r, nil
}

// All returns every registered client in configuration order.
func (r *Registry) All() []*adapterclient.Client {
	out := make([]*adapterclient.Client, len(r.clients))
	copy(out, r.clients)
	return out
}

// ByName looks up a client by adapter name.
func (r *Registry) ByName(name string) (*adapterclient.Client, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// ByChainID looks up a client by chain id.
func (r *Registry) ByChainID(chainID string) (*adapterclient.Client, bool) {
	c, ok := r.byChain[chainID]
	return c, ok
}

// ChainIDs returns every registered chain id in configuration order.
func (r *Registry) ChainIDs() []string {
	out := make([]string, len(r.clients))
	for i, c := range r.clients {
		out[i] = c.ChainID()
	}
	return out
}

// Names returns every registered adapter name in configuration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.clients))
	for i, c := range r.clients {
		out[i] = c.Name()
	}
	return out
}

// HealthCheck concurrently health-checks every adapter and returns a
// name-to-healthy map, updating the registry's cached health snapshot.
func (r *Registry) HealthCheck(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(r.clients))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, client := range r.clients {
		wg.Add(1)
		go func(c *adapterclient.Client) {
			defer wg.Done()
			healthy := c.HealthCheck(ctx)
			resultsMu.Lock()
			results[c.Name()] = healthy
			resultsMu.Unlock()
		}(client)
	}

	wg.Wait()

	r.mu.Lock()
	for name, healthy := range results {
		r.healthy[name] = healthy
	}
	r.mu.Unlock()

	return results
}

// HealthyCount returns the number of adapters marked healthy as of the last
// HealthCheck call.
func (r *Registry) HealthyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, healthy := range r.healthy {
		if healthy {
			count++
		}
	}
	return count
}

// Snapshot returns the last observed health state per adapter name.
func (r *Registry) Snapshot() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.healthy))
	for name, healthy := range r.healthy {
		out[name] = healthy
	}
	return out
}
