package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ied/internal/metrics"
)

const (
	publishedKeyPrefix = "publishedEvents:"
	notifiedKey        = "notifiedEvents"
)

// RedisConfig holds connection settings for the Redis-backed cache.
type RedisConfig struct {
	// Addr is the Redis server address (host:port) for standalone mode.
	// Ignored if UseSentinel is true.
	Addr string

	Password string

	// SentinelPassword authenticates with the Sentinel servers themselves,
	// independent of the Redis master's Password.
	SentinelPassword string

	DB int

	// UseSentinel enables Redis Sentinel mode for high availability.
	UseSentinel bool

	SentinelAddrs []string
	MasterName    string

	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		UseSentinel:  false,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// RedisCache implements Cache on top of Redis sets, addressed via SADD /
// SISMEMBER / SCARD, optionally against a Sentinel-managed master.
type RedisCache struct {
	client  redis.UniversalClient
	metrics *metrics.Metrics
}

// SetMetrics attaches a metrics sink recording every cache operation's
// outcome. Safe to leave unset; operations simply go unrecorded.
func (c *RedisCache) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

func (c *RedisCache) recordOp(operation string, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	c.metrics.RecordCacheOp(operation, status)
}

// NewRedisCache builds a RedisCache from cfg, selecting a standalone or
// Sentinel-backed client as configured.
func NewRedisCache(cfg *RedisConfig) *RedisCache {
	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	var client redis.UniversalClient
	if cfg.UseSentinel {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.MasterName,
			SentinelAddrs:    cfg.SentinelAddrs,
			SentinelPassword: cfg.SentinelPassword,
			Password:         cfg.Password,
			DB:               cfg.DB,
			MaxRetries:       cfg.MaxRetries,
			DialTimeout:      cfg.DialTimeout,
			ReadTimeout:      cfg.ReadTimeout,
			WriteTimeout:     cfg.WriteTimeout,
			PoolSize:         cfg.PoolSize,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			PoolSize:     cfg.PoolSize,
		})
	}

	return &RedisCache{client: client}
}

// NewRedisCacheFromClient wraps an already-constructed client, used by
// tests against miniredis.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func publishedKey(chainID string) string {
	return publishedKeyPrefix + chainID
}

// MarkPublished issues SADD; Redis set-add is naturally idempotent.
func (c *RedisCache) MarkPublished(ctx context.Context, chainID, globalID string) error {
	err := c.client.SAdd(ctx, publishedKey(chainID), globalID).Err()
	c.recordOp("mark_published", err)
	if err != nil {
		return fmt.Errorf("%w: sadd %s: %v", ErrUnavailable, publishedKey(chainID), err)
	}
	return nil
}

// IsOnChain issues SISMEMBER against the chain's published-events set.
func (c *RedisCache) IsOnChain(ctx context.Context, chainID, globalID string) (bool, error) {
	ok, err := c.client.SIsMember(ctx, publishedKey(chainID), globalID).Result()
	c.recordOp("is_on_chain", err)
	if err != nil {
		return false, fmt.Errorf("%w: sismember %s: %v", ErrUnavailable, publishedKey(chainID), err)
	}
	return ok, nil
}

// MissingChains pipelines one SISMEMBER per candidate chain and returns
// those reporting false.
func (c *RedisCache) MissingChains(ctx context.Context, globalID string, allChainIDs []string) ([]string, error) {
	if len(allChainIDs) == 0 {
		return nil, nil
	}

	pipe := c.client.Pipeline()
	cmds := make(map[string]*redis.BoolCmd, len(allChainIDs))
	for _, chainID := range allChainIDs {
		cmds[chainID] = pipe.SIsMember(ctx, publishedKey(chainID), globalID)
	}

	_, pipeErr := pipe.Exec(ctx)
	c.recordOp("missing_chains", pipeErr)
	if pipeErr != nil {
		return nil, fmt.Errorf("%w: missing-chains pipeline: %v", ErrUnavailable, pipeErr)
	}

	var missing []string
	for _, chainID := range allChainIDs {
		present, err := cmds[chainID].Result()
		if err != nil {
			return nil, fmt.Errorf("%w: sismember %s: %v", ErrUnavailable, chainID, err)
		}
		if !present {
			missing = append(missing, chainID)
		}
	}
	return missing, nil
}

// MarkNotified issues SADD against the notified-events set.
func (c *RedisCache) MarkNotified(ctx context.Context, globalID string) error {
	err := c.client.SAdd(ctx, notifiedKey, globalID).Err()
	c.recordOp("mark_notified", err)
	if err != nil {
		return fmt.Errorf("%w: sadd %s: %v", ErrUnavailable, notifiedKey, err)
	}
	return nil
}

// IsNotified issues SISMEMBER against the notified-events set.
func (c *RedisCache) IsNotified(ctx context.Context, globalID string) (bool, error) {
	ok, err := c.client.SIsMember(ctx, notifiedKey, globalID).Result()
	c.recordOp("is_notified", err)
	if err != nil {
		return false, fmt.Errorf("%w: sismember %s: %v", ErrUnavailable, notifiedKey, err)
	}
	return ok, nil
}

// Stats scans known publishedEvents:* keys and returns their cardinalities
// alongside the notifiedEvents set size.
func (c *RedisCache) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{PublishedByChain: make(map[string]int64)}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, publishedKeyPrefix+"*", 100).Result()
		if err != nil {
			c.recordOp("stats", err)
			return Stats{}, fmt.Errorf("%w: scan %s*: %v", ErrUnavailable, publishedKeyPrefix, err)
		}
		for _, key := range keys {
			count, err := c.client.SCard(ctx, key).Result()
			if err != nil {
				c.recordOp("stats", err)
				return Stats{}, fmt.Errorf("%w: scard %s: %v", ErrUnavailable, key, err)
			}
			stats.PublishedByChain[key[len(publishedKeyPrefix):]] = count
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	notified, err := c.client.SCard(ctx, notifiedKey).Result()
	c.recordOp("stats", err)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: scard %s: %v", ErrUnavailable, notifiedKey, err)
	}
	stats.NotifiedCount = notified

	return stats, nil
}

// Ping verifies connectivity to the backend.
func (c *RedisCache) Ping(ctx context.Context) error {
	err := c.client.Ping(ctx).Err()
	c.recordOp("ping", err)
	if err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the underlying client's connection pool.
func (c *RedisCache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing redis client: %w", err)
	}
	return nil
}
