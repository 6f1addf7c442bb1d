// Package redis holds the Redis-backed pieces: a short-lived live price cache
// shared by the matcher and the API, guarded by a circuit breaker so that a
// Redis outage degrades to direct exchange calls instead of failing.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptopulse/internal/model"
)

const keyPrefix = "cryptopulse:price:"

// Config configures the Redis connection.
type Config struct {
	Addr     string // "localhost:6379"
	Password string
	DB       int
}

// Connect creates a client and pings it.
func Connect(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
		ReadTimeout: time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	log.Printf("[redis] connected to %s", cfg.Addr)
	return client, nil
}

// PriceCache is a model.PriceSource that serves recent prices from Redis and
// falls through to the wrapped source on a miss.
type PriceCache struct {
	src model.PriceSource
	rdb goredis.Cmdable
	cb  *CircuitBreaker
	ttl time.Duration

	// OnHit and OnMiss, if set, are called per lookup.
	OnHit  func(asset string)
	OnMiss func(asset string)
}

// NewPriceCache wraps src. A nil cb gets a breaker that opens after 5 errors for 10s.
func NewPriceCache(src model.PriceSource, rdb goredis.Cmdable, cb *CircuitBreaker, ttl time.Duration) *PriceCache {
	if cb == nil {
		cb = NewCircuitBreaker(5, 10*time.Second)
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &PriceCache{src: src, rdb: rdb, cb: cb, ttl: ttl}
}

// Breaker exposes the breaker for metrics and health.
func (c *PriceCache) Breaker() *CircuitBreaker { return c.cb }

// FetchPrice implements model.PriceSource.
func (c *PriceCache) FetchPrice(ctx context.Context, asset string) (float64, error) {
	key := keyPrefix + strings.ToUpper(asset)

	if p, ok := c.get(ctx, key); ok {
		if c.OnHit != nil {
			c.OnHit(asset)
		}
		return p, nil
	}
	if c.OnMiss != nil {
		c.OnMiss(asset)
	}

	p, err := c.src.FetchPrice(ctx, asset)
	if err != nil {
		return 0, err
	}
	c.set(ctx, key, p)
	return p, nil
}

func (c *PriceCache) get(ctx context.Context, key string) (float64, bool) {
	var raw string
	err := c.cb.Execute(func() error {
		v, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		raw = v
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrCircuitOpen) {
			log.Printf("[redis] price get %s: %v", key, err)
		}
		return 0, false
	}
	if raw == "" {
		return 0, false
	}
	p, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("[redis] bad cached price %s=%q: %v", key, raw, err)
		return 0, false
	}
	return p, true
}

func (c *PriceCache) set(ctx context.Context, key string, p float64) {
	err := c.cb.Execute(func() error {
		return c.rdb.Set(ctx, key, strconv.FormatFloat(p, 'f', -1, 64), c.ttl).Err()
	})
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		log.Printf("[redis] price set %s: %v", key, err)
	}
}
