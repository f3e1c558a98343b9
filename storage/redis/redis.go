// Package redis provides a Redis-based implementation of storage.Store.
// Values are stored as raw bytes and expiry is delegated to Redis.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/registry-mcp/storage"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis store.
type Config struct {
	// Client is the Redis client instance
	Client redis.UniversalClient

	// KeyPrefix is prepended to every key.
	KeyPrefix string
}

// Store implements storage.Store using Redis.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ storage.Store = (*Store)(nil)

// New creates a new Redis-based store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

// Open parses a redis:// or rediss:// URL, connects and verifies the
// connection with PING.
func Open(ctx context.Context, rawURL, keyPrefix string) (*Store, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(Config{Client: client, KeyPrefix: keyPrefix})
}

// Get retrieves data for key.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	redisKey := s.keyPrefix + key

	data, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Key doesn't exist
		}
		return nil, fmt.Errorf("failed to get key %s: %w", redisKey, err)
	}
	return &storage.Item{Data: data}, nil
}

// Set stores data for key. Redis enforces the TTL.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := storage.ApplyOptions(opts...)
	redisKey := s.keyPrefix + key

	ttl := options.TTL
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, redisKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", redisKey, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	redisKey := s.keyPrefix + key
	if err := s.client.Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", redisKey, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
