// Package cache is the two-tier query result cache: an in-process
// ristretto cache in front of a shared store such as Redis. Keys include
// the generation id, so a switch invalidates every entry implicitly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/spec"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/resilience"
)

// Tiers, as reported in hit metrics.
const (
	TierLocal  = "local"
	TierShared = "shared"
)

// ErrMiss is returned by a Store that does not hold a key.
var ErrMiss = errors.New("cache miss")

// Store is the shared tier.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Purger is implemented by stores that can drop every key under prefix
// except those under keep.
type Purger interface {
	PurgeExcept(ctx context.Context, prefix, keep string) (int, error)
}

// QueryCache caches complete query responses.
type QueryCache struct {
	cfg     config.CacheConfig
	local   *ristretto.Cache
	shared  Store
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a cache. shared and m may be nil.
func New(cfg config.CacheConfig, shared Store, m *metrics.Metrics) (*QueryCache, error) {
	if cfg.LocalEntries <= 0 {
		cfg.LocalEntries = 10000
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 10 * time.Second
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "search:"
	}
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.LocalEntries * 10,
		MaxCost:     cfg.LocalEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	c := &QueryCache{
		cfg:     cfg,
		local:   local,
		shared:  shared,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("result-cache", resilience.CircuitBreakerConfig{
		IsFailure: func(err error) bool { return !errors.Is(err, ErrMiss) },
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c, nil
}

// Key is the cache key of s evaluated against generation:
// prefix, generation, a colon, then a digest of s.Key().
func (c *QueryCache) Key(generation string, s spec.Spec) string {
	sum := sha256.Sum256([]byte(s.Key()))
	return c.generationPrefix(generation) + hex.EncodeToString(sum[:16])
}

func (c *QueryCache) generationPrefix(generation string) string {
	return c.cfg.KeyPrefix + generation + ":"
}

// GetOrCompute returns the cached response for s, or runs compute once
// for all concurrent callers with the same key. Only complete responses
// computed against generation are stored. The boolean reports a hit.
//
// A caller that joined another caller's run gets its result only when it
// is complete. A partial, rejected or failed run reflects the runner's
// own deadline and context, so the joiner computes for itself.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation string,
	s spec.Spec,
	compute func() (*executor.Response, error),
) (*executor.Response, bool, error) {
	if !c.cfg.Enabled || generation == "" {
		resp, err := compute()
		return resp, false, err
	}
	key := c.Key(generation, s)
	if resp, ok := c.getLocal(key); ok {
		c.hit(TierLocal)
		return resp, true, nil
	}

	type result struct {
		resp *executor.Response
		hit  bool
	}
	ran := false
	v, err, _ := c.group.Do(key, func() (any, error) {
		ran = true
		if resp, ok := c.getShared(ctx, key); ok {
			c.local.SetWithTTL(key, resp, 1, c.cfg.LocalTTL)
			return result{resp: resp, hit: true}, nil
		}
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		if cacheable(resp, generation) {
			c.local.SetWithTTL(key, resp, 1, c.cfg.LocalTTL)
			c.setShared(ctx, key, resp)
		}
		return result{resp: resp}, nil
	})
	if !ran && (err != nil || !complete(v.(result).resp)) {
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		resp, err := compute()
		return resp, false, err
	}
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	if r.hit {
		c.hit(TierShared)
	} else if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return r.resp, r.hit, nil
}

func complete(resp *executor.Response) bool {
	if resp == nil || resp.Partial {
		return false
	}
	return resp.Outcome == executor.OutcomeOK || resp.Outcome == executor.OutcomeZeroResult
}

func cacheable(resp *executor.Response, generation string) bool {
	return complete(resp) && resp.Generation == generation
}

func (c *QueryCache) getLocal(key string) (*executor.Response, bool) {
	v, ok := c.local.Get(key)
	if !ok {
		return nil, false
	}
	resp, ok := v.(*executor.Response)
	return resp, ok
}

func (c *QueryCache) getShared(ctx context.Context, key string) (*executor.Response, bool) {
	if c.shared == nil {
		return nil, false
	}
	var data []byte
	err := c.breaker.Execute(func() error {
		var err error
		data, err = c.shared.Get(ctx, key)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrMiss) && !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("shared cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	if data == nil {
		return nil, false
	}
	resp, err := decode(data)
	if err != nil {
		c.logger.Warn("shared cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return resp, true
}

func (c *QueryCache) setShared(ctx context.Context, key string, resp *executor.Response) {
	if c.shared == nil {
		return
	}
	data, err := encode(resp)
	if err != nil {
		c.logger.Error("encoding cache entry failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.shared.Set(ctx, key, data, c.cfg.RedisTTL)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("shared cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit(tier string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// Purge drops every local entry. Entries of older generations can never
// be hit again, so it is called after a switch to free their memory.
func (c *QueryCache) Purge() {
	c.local.Clear()
}

// PurgeShared removes shared entries of every generation but current,
// when the store supports it. Other instances may still be serving an
// older generation for a moment; they recompute on a miss.
func (c *QueryCache) PurgeShared(ctx context.Context, current string) (int, error) {
	p, ok := c.shared.(Purger)
	if !ok || current == "" {
		return 0, nil
	}
	var removed int
	err := c.breaker.Execute(func() error {
		var err error
		removed, err = p.PurgeExcept(ctx, c.cfg.KeyPrefix, c.generationPrefix(current))
		return err
	})
	if err != nil {
		return removed, fmt.Errorf("purging shared cache: %w", err)
	}
	c.logger.Info("shared cache purged", "generation", current, "removed", removed)
	return removed, nil
}

// Close releases the local cache.
func (c *QueryCache) Close() {
	c.local.Close()
}
