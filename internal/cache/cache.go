// Package cache defines the set-membership contract the engine uses to
// track which global ids are known on which ledgers, and which global ids
// have already been delivered to the consumer.
package cache

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the cache backend cannot service a
// request (connection failure, timeout). Callers decide per-operation
// whether that failure should abort the protected operation.
var ErrUnavailable = errors.New("cache backend unavailable")

// Stats reports per-chain cardinalities and the size of the notified-events
// set, surfaced at GET /stats.
type Stats struct {
	PublishedByChain map[string]int64
	NotifiedCount    int64
}

// Cache is the contract every cache backend implements. All operations map
// directly onto set membership primitives; MissingChains may be implemented
// as N independent membership checks and must tolerate concurrent writers.
type Cache interface {
	// MarkPublished idempotently records that globalID is known to exist on
	// chainID. Re-marking an existing id is a no-op, not an error.
	MarkPublished(ctx context.Context, chainID, globalID string) error

	// IsOnChain reports whether globalID has been marked published on chainID.
	IsOnChain(ctx context.Context, chainID, globalID string) (bool, error)

	// MissingChains returns every chain id in allChainIDs for which
	// IsOnChain(chainID, globalID) is false.
	MissingChains(ctx context.Context, globalID string, allChainIDs []string) ([]string, error)

	// MarkNotified idempotently records that the consumer has been invoked
	// for globalID at least once.
	MarkNotified(ctx context.Context, globalID string) error

	// IsNotified reports whether the consumer has already been notified for
	// globalID.
	IsNotified(ctx context.Context, globalID string) (bool, error)

	// Stats returns current cardinalities for diagnostics.
	Stats(ctx context.Context) (Stats, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
