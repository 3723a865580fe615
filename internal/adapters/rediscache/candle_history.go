// Package rediscache decorates the candle history collaborator with Redis caching.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/devrajweb/delta-bot/internal/domain"
	"github.com/devrajweb/delta-bot/internal/ports"
)

// ClientConfig holds Redis connection settings.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg ClientConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s failed: %w: %w", cfg.Addr, ports.ErrConnectionFailed, err)
	}
	return rdb, nil
}

// CandleHistory wraps a ports.CandleHistory and caches its results.
// A nil Redis client bypasses the cache entirely.
type CandleHistory struct {
	inner     ports.CandleHistory
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	logger    ports.Logger
}

// NewCandleHistory decorates inner with Redis caching.
// If ttl is 0, it defaults to 5 minutes. If namespace is empty, it uses "candles".
func NewCandleHistory(rdb *redis.Client, ttl time.Duration, inner ports.CandleHistory, namespace string, logger ports.Logger) *CandleHistory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &CandleHistory{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
		logger:    logger,
	}
}

// GetCandles returns cached candles when present, otherwise asks the inner source
// and stores the result.
func (c *CandleHistory) GetCandles(ctx context.Context, symbol string, limit int) ([]domain.Candle, error) {
	if c.rdb == nil {
		return c.inner.GetCandles(ctx, symbol, limit)
	}

	key := c.cacheKey(symbol, limit)

	cached, err := c.lookup(ctx, key)
	if err == nil {
		c.debug(ctx, "GetCandles: cache hit", map[string]interface{}{"key": key, "count": len(cached)})
		return cached, nil
	}
	c.debug(ctx, "GetCandles: falling back to source", map[string]interface{}{"key": key, "reason": err.Error()})

	out, err := c.inner.GetCandles(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.debug(ctx, "GetCandles: cache store failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	return out, nil
}

// lookup reads key. Absent, empty and undecodable entries report ports.ErrCacheMiss;
// an undecodable entry is also deleted.
func (c *CandleHistory) lookup(ctx context.Context, key string) ([]domain.Candle, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) || (err == nil && len(b) == 0) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w: %w", key, ports.ErrCacheMiss, err)
	}
	var out []domain.Candle
	if err := json.Unmarshal(b, &out); err != nil {
		_ = c.rdb.Del(ctx, key).Err()
		return nil, fmt.Errorf("decode %s: %w: %w", key, ports.ErrCacheMiss, err)
	}
	return out, nil
}

func (c *CandleHistory) debug(ctx context.Context, msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Debug(ctx, msg, fields)
	}
}

func (c *CandleHistory) cacheKey(symbol string, limit int) string {
	return fmt.Sprintf("%s:%s:1m:%d", c.namespace, safe(symbol), limit)
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
