// Package storage defines the key/value contract behind the cache layer.
// Backends live in subpackages: redis (go-redis), rest (REST command
// endpoint) and memory (in-process LRU).
package storage

import (
	"context"
	"time"
)

// Store is a flat key/value store with optional per-key expiry.
type Store interface {
	// Get retrieves data for key.
	// Returns a nil Item if the key doesn't exist or has expired.
	// Returns error only for legitimate storage system failures.
	Get(ctx context.Context, key string) (*Item, error)

	// Set stores data under key, replacing any previous value.
	Set(ctx context.Context, key string, data []byte, opts ...Option) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Item is a stored value.
type Item struct {
	Data      []byte
	ExpiresAt *time.Time // nil = no expiration (or unknown to the backend)
}

// IsExpired reports whether the item has expired as of now.
func (it *Item) IsExpired(now time.Time) bool {
	return it.ExpiresAt != nil && now.After(*it.ExpiresAt)
}

// Option configures a Set.
type Option func(*Options)

// Options contains configuration for storage operations.
type Options struct {
	TTL time.Duration // <= 0 means no expiry
}

// WithTTL sets a time-to-live for the stored data. A non-positive ttl stores
// the value without expiry.
func WithTTL(ttl time.Duration) Option {
	return func(opts *Options) {
		opts.TTL = ttl
	}
}

// ApplyOptions folds opts into an Options value. Backends call it from Set.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
