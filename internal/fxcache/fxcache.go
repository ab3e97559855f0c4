// Package fxcache is the ledger's cross-currency rate cache: a Redis-backed
// lookaside cache in front of a broker's rate quote, so a run asking the
// same currency pair thousands of times in a backtest doesn't pay a round
// trip for each one.
package fxcache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventkernel/tradeengine/internal/enginerr"
)

// Cache is a Redis-backed FX rate cache.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// Config configures the cache connection.
type Config struct {
	Addr string
	DB   int
	TTL  time.Duration
}

// New connects to Redis and verifies connectivity before returning.
func New(config Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: config.Addr, DB: config.DB})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("fxcache: connect: %w: %v", enginerr.ErrStorageError, err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}, nil
}

func key(from, to string) string { return fmt.Sprintf("fxrate:%s:%s", from, to) }

// Get returns a cached rate, or (0, false, nil) on a cache miss.
func (c *Cache) Get(ctx context.Context, from, to string) (float64, bool, error) {
	if from == to {
		return 1, true, nil
	}
	s, err := c.client.Get(ctx, key(from, to)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("fxcache: get: %w: %v", enginerr.ErrStorageError, err)
	}
	rate, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("fxcache: parse cached rate: %w: %v", enginerr.ErrStorageError, err)
	}
	return rate, true, nil
}

// Set caches rate for the from/to pair.
func (c *Cache) Set(ctx context.Context, from, to string, rate float64) error {
	if err := c.client.Set(ctx, key(from, to), strconv.FormatFloat(rate, 'f', -1, 64), c.ttl).Err(); err != nil {
		return fmt.Errorf("fxcache: set: %w: %v", enginerr.ErrStorageError, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (c *Cache) Close() error { return c.client.Close() }
