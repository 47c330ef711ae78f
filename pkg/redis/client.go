// Package redis is the shared tier of the result cache, backed by
// go-redis/v9. Keys carry the generation they were computed against, so
// a retired generation's entries can be swept in one pass.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/config"
)

const pingTimeout = 5 * time.Second

// Client talks to one Redis server.
type Client struct {
	rdb   *redis.Client
	batch int64
}

// NewClient connects to cfg.Addr and fails unless the server answers a
// PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
		opts.ContextTimeoutEnabled = true
	}
	c := newClient(redis.NewClient(opts), cfg.PurgeBatch)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}

func newClient(rdb *redis.Client, batch int64) *Client {
	if batch <= 0 {
		batch = 500
	}
	return &Client{rdb: rdb, batch: batch}
}

// Get returns the value at key. found is false, with a nil error, when
// the key does not exist.
func (c *Client) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	value, err = c.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return value, true, nil
}

// Set stores value at key for ttl.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// PurgeExcept unlinks every key under prefix that does not start with
// keep. It walks the keyspace with SCAN, so it never blocks the server,
// and returns how many keys it removed.
func (c *Client) PurgeExcept(ctx context.Context, prefix, keep string) (int, error) {
	removed := 0
	iter := c.rdb.Scan(ctx, 0, prefix+"*", c.batch).Iterator()
	stale := make([]string, 0, c.batch)
	flush := func() error {
		if len(stale) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, stale...).Result()
		removed += int(n)
		stale = stale[:0]
		return err
	}
	for iter.Next(ctx) {
		key := iter.Val()
		if keep != "" && strings.HasPrefix(key, keep) {
			continue
		}
		stale = append(stale, key)
		if int64(len(stale)) >= c.batch {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, flush()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
