// Package redis connects the indexer lookup cache to Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"certledger/internal/platform/config"
)

var (
	poolEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "certledger_redis_pool_events_total",
		Help: "Connection pool events by kind (hit, miss, timeout, stale)",
	}, []string{"kind"})
	poolConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "certledger_redis_pool_conns",
		Help: "Connections currently in the pool by state (total, idle)",
	}, []string{"state"})
)

// Client wraps the go-redis client with health checks and pool metrics.
type Client struct {
	*redis.Client
	last redis.PoolStats
}

// New connects to cfg.URL. It returns nil, nil when Redis is not configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.ClientName = "certledger"

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return &Client{Client: client}, nil
}

// Health pings Redis.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats publishes the pool gauges and the counter deltas since the
// previous call. Not safe for concurrent use; ReportPoolStats is the only caller.
func (c *Client) RecordPoolStats() {
	stats := c.PoolStats()
	poolConns.WithLabelValues("total").Set(float64(stats.TotalConns))
	poolConns.WithLabelValues("idle").Set(float64(stats.IdleConns))

	addDelta("hit", stats.Hits, c.last.Hits)
	addDelta("miss", stats.Misses, c.last.Misses)
	addDelta("timeout", stats.Timeouts, c.last.Timeouts)
	addDelta("stale", stats.StaleConns, c.last.StaleConns)
	c.last = *stats
}

// ReportPoolStats records pool statistics every interval until ctx ends.
func (c *Client) ReportPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}

func addDelta(kind string, now, prev uint32) {
	if now > prev {
		poolEvents.WithLabelValues(kind).Add(float64(now - prev))
	}
}
