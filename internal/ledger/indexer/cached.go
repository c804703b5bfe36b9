package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"certledger/internal/ledger/indexer/metrics"
	"certledger/internal/ledger/tx"
)

const (
	redisAssetKeyPrefix = "indexer:asset:"
	redisTxKeyPrefix    = "indexer:tx:"
)

// ErrCacheMiss is returned by a CacheStore when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheStore is the byte cache behind Cached.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisStore adapts a go-redis client to CacheStore.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore constructs a Redis-backed cache store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Get loads a cached value. Returns ErrCacheMiss on redis.Nil.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Set writes a value with TTL eviction.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Cached serves asset and confirmed-transaction lookups from a cache.
// Only positive answers are cached: a missing asset may be minted at any
// moment, and an unconfirmed transaction may be included at any moment.
// Cache failures degrade to the upstream call.
type Cached struct {
	Client
	store   CacheStore
	ttl     time.Duration
	txTTL   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCached wraps next. Confirmed transactions are kept ten times longer than assets.
func NewCached(next Client, store CacheStore, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{Client: next, store: store, ttl: ttl, txTTL: 10 * ttl, logger: logger, metrics: m}
}

// Asset returns a cached asset or fetches and caches it.
func (c *Cached) Asset(ctx context.Context, assetID string) (*Asset, error) {
	key := redisAssetKeyPrefix + assetID
	var cached Asset
	if c.load(ctx, "asset", key, &cached) {
		return &cached, nil
	}
	a, err := c.Client.Asset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if a.Exists() {
		c.save(ctx, key, a, c.ttl)
	}
	return a, nil
}

type cachedTx struct {
	Transaction
	BlockTimeUnix int64 `json:"block_time"`
}

// Transaction returns a cached confirmed transaction or fetches and caches it.
func (c *Cached) Transaction(ctx context.Context, txHash string) (*Transaction, error) {
	key := redisTxKeyPrefix + txHash
	var cached cachedTx
	if c.load(ctx, "tx", key, &cached) {
		t := cached.Transaction
		t.BlockTime = time.Unix(cached.BlockTimeUnix, 0).UTC()
		return &t, nil
	}
	t, err := c.Client.Transaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, cachedTx{Transaction: *t, BlockTimeUnix: t.BlockTime.Unix()}, c.txTTL)
	return t, nil
}

// UTXOs bypasses the cache: spendable outputs change with every mint.
func (c *Cached) UTXOs(ctx context.Context, address string) ([]tx.UTXO, error) {
	return c.Client.UTXOs(ctx, address)
}

func (c *Cached) load(ctx context.Context, lookupType, key string, dst any) bool {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.WarnContext(ctx, "indexer cache read failed", "key", key, "error", err)
		}
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(lookupType)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.WarnContext(ctx, "indexer cache entry undecodable", "key", key, "error", err)
		return false
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(lookupType)
	}
	return true
}

func (c *Cached) save(ctx context.Context, key string, v any, ttl time.Duration) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, payload, ttl); err != nil {
		c.logger.WarnContext(ctx, "indexer cache write failed", "key", key, "error", err)
	}
}
