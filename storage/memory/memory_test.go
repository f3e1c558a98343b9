package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/registry-mcp/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestSetAndGet(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	data := []byte("test-data")
	if err := s.Set(ctx, "test-key", data); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	data[0] = 'X' // the store must keep its own copy

	item, err := s.Get(ctx, "test-key")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if item == nil {
		t.Fatal("Get() returned nil item")
	}
	if string(item.Data) != "test-data" {
		t.Fatalf("Get() returned wrong data: got %s", string(item.Data))
	}
	if item.ExpiresAt != nil {
		t.Fatalf("expected no expiry without TTL")
	}

	if item, _ := s.Get(ctx, "missing"); item != nil {
		t.Fatalf("expected miss for unknown key")
	}
}

func TestTTL(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s, err := New(100, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Set(ctx, "k", []byte("v"), storage.WithTTL(time.Minute)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Set(ctx, "forever", []byte("v"), storage.WithTTL(0)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	clock.Advance(59 * time.Second)
	if item, _ := s.Get(ctx, "k"); item == nil {
		t.Fatalf("expected item before expiry")
	}

	clock.Advance(2 * time.Second)
	if item, _ := s.Get(ctx, "k"); item != nil {
		t.Fatalf("expected item to expire")
	}
	if item, _ := s.Get(ctx, "forever"); item == nil {
		t.Fatalf("non-positive TTL must not expire")
	}
}

func TestEvictExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s, err := New(100, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"), storage.WithTTL(time.Second))
	_ = s.Set(ctx, "b", []byte("2"))

	clock.Advance(time.Hour)
	s.evictExpired()

	if s.cache.Len() != 1 {
		t.Fatalf("expected only the non-expiring key to remain, have %d", s.cache.Len())
	}
}

func TestDeleteAndClose(t *testing.T) {
	s, err := New(10)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"))
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if item, _ := s.Get(ctx, "a"); item != nil {
		t.Fatalf("expected deleted key to miss")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}
