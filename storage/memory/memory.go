// Package memory provides an in-memory implementation of storage.Store
// using github.com/hashicorp/golang-lru/v2 with per-item TTL support.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ggoodman/registry-mcp/storage"
	lru "github.com/hashicorp/golang-lru/v2"
)

const cleanupInterval = 5 * time.Minute

// Store implements storage.Store in process memory. Contents do not survive
// a restart.
type Store struct {
	cache *lru.Cache[string, *storage.Item]
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a new in-memory store holding at most maxItems entries.
func New(maxItems int, opts ...Option) (*Store, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	s := &Store{
		cache: cache,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Start background cleanup of expired items
	go s.cleanupExpired()

	return s, nil
}

// Get retrieves data for key.
func (s *Store) Get(ctx context.Context, key string) (*storage.Item, error) {
	item, exists := s.cache.Get(key)
	if !exists {
		return nil, nil
	}
	if item.IsExpired(s.now()) {
		s.cache.Remove(key)
		return nil, nil
	}
	return item, nil
}

// Set stores a copy of data under key.
func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := storage.ApplyOptions(opts...)

	item := &storage.Item{Data: make([]byte, len(data))}
	copy(item.Data, data)

	if options.TTL > 0 {
		expiresAt := s.now().Add(options.TTL)
		item.ExpiresAt = &expiresAt
	}

	s.cache.Add(key, item)
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// Close stops the cleanup goroutine and drops all entries.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.cache.Purge()
	return nil
}

// cleanupExpired periodically evicts expired items until Close.
func (s *Store) cleanupExpired() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *Store) evictExpired() {
	now := s.now()
	for _, key := range s.cache.Keys() {
		if item, ok := s.cache.Peek(key); ok && item.IsExpired(now) {
			s.cache.Remove(key)
		}
	}
}
