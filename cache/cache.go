// Package cache is the JSON memoizing layer in front of a storage.Store.
//
// A Cache built without a store is a transparent no-op: Get always misses
// and Set succeeds without touching the network. Callers must not assume
// persistence, and must build fully qualified keys that carry a schema
// version and every parameter affecting the cached value, e.g.
// "entity:v2:123456789:subunits=true".
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/registry-mcp/storage"
)

// Cache memoizes JSON values. The zero value and a nil *Cache are disabled.
type Cache struct {
	store  storage.Store
	prefix string
	log    *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) { c.prefix = prefix }
}

// WithLogger sets the logger used for debug hit/miss events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

// New wraps store. A nil store yields a disabled cache.
func New(store storage.Store, opts ...Option) *Cache {
	c := &Cache{store: store, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a backing store is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// Get decodes the value stored under key into dst. It reports false on a
// miss and always misses when the cache is disabled.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	item, err := c.store.Get(ctx, c.prefix+key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if item == nil {
		c.log.DebugContext(ctx, "cache.get.miss", slog.String("key", key))
		return false, nil
	}
	if err := json.Unmarshal(item.Data, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	c.log.DebugContext(ctx, "cache.get.hit", slog.String("key", key))
	return true, nil
}

// Set stores v as JSON under key. A non-positive ttl stores without expiry.
// Last write wins.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, c.prefix+key, data, storage.WithTTL(ttl)); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Close releases the backing store.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Close()
}

// Fetch returns the cached value for key, or computes it with fn and stores
// the result with ttl. Errors from fn are returned as-is and nothing is
// cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	hit, err := c.Get(ctx, key, &cached)
	if err != nil {
		var zero T
		return zero, err
	}
	if hit {
		return cached, nil
	}

	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
