package infra

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
)

var quietLogger = &log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// brokenStore fails every operation.
type brokenStore struct{}

var errStoreDown = errors.New("store down")

func (brokenStore) Get(context.Context, string) (CacheEntry, error) {
	return CacheEntry{}, errStoreDown
}

func (brokenStore) Put(context.Context, CacheEntry) error {
	return errStoreDown
}

func (brokenStore) Delete(context.Context, string) error {
	return errStoreDown
}

func TestCacheSetGet(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil, time.Hour, WithCacheLogger(quietLogger))

	c.Set(ctx, "key1", []byte("value1"), 0)
	v, ok := c.Get(ctx, "key1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(v) != "value1" {
		t.Fatalf("got %q, want value1", v)
	}
}

func TestCacheMiss(t *testing.T) {
	c := NewCache(nil, time.Hour, WithCacheLogger(quietLogger))
	if _, ok := c.Get(context.Background(), "nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCacheExpiryDeletesEntry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	c := NewCache(store, time.Minute, WithCacheClock(clock.Now), WithCacheLogger(quietLogger))

	c.Set(ctx, "key", []byte("val"), 0)
	clock.Advance(59 * time.Second)
	if _, ok := c.Get(ctx, "key"); !ok {
		t.Fatal("expected hit before expiry")
	}

	clock.Advance(2 * time.Second)
	if _, ok := c.Get(ctx, "key"); ok {
		t.Fatal("expected miss after TTL expiry")
	}
	if store.Len() != 0 {
		t.Fatalf("expired entry should be deleted on read, store has %d", store.Len())
	}
}

func TestCacheCustomTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c := NewCache(nil, time.Hour, WithCacheClock(clock.Now), WithCacheLogger(quietLogger))

	c.Set(ctx, "quick", []byte("val"), time.Second)
	clock.Advance(2 * time.Second)
	if _, ok := c.Get(ctx, "quick"); ok {
		t.Fatal("expected cache miss after custom TTL expiry")
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	c := NewCache(nil, 0)
	if c.TTL() != DefaultCacheTTL {
		t.Fatalf("TTL = %s, want %s", c.TTL(), DefaultCacheTTL)
	}
}

func TestCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil, time.Hour, WithCacheLogger(quietLogger))
	c.Set(ctx, "key", []byte("val"), 0)
	c.Delete(ctx, "key")
	if _, ok := c.Get(ctx, "key"); ok {
		t.Fatal("expected cache miss after delete")
	}
}

func TestCacheBrokenStoreIsSilent(t *testing.T) {
	ctx := context.Background()
	c := NewCache(brokenStore{}, time.Hour, WithCacheLogger(quietLogger))

	c.Set(ctx, "key", []byte("val"), 0)
	if _, ok := c.Get(ctx, "key"); ok {
		t.Fatal("broken store must read as a miss")
	}
	c.Delete(ctx, "key")
}

func TestCacheJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil, time.Hour, WithCacheLogger(quietLogger))

	type payload struct {
		Name  string
		Value float64
	}
	SetJSON(ctx, c, "p", payload{Name: "Apple", Value: 3.5}, 0)

	got, ok := GetJSON[payload](ctx, c, "p")
	if !ok {
		t.Fatal("expected JSON cache hit")
	}
	if got.Name != "Apple" || got.Value != 3.5 {
		t.Fatalf("got %+v", got)
	}

	c.Set(ctx, "bad", []byte("{not json"), 0)
	if _, ok := GetJSON[payload](ctx, c, "bad"); ok {
		t.Fatal("undecodable entry should be a miss")
	}
}

func TestMemoryStoreCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore()
	_ = s.Put(ctx, CacheEntry{Key: "old", ExpiresAt: now.Add(-time.Second)})
	_ = s.Put(ctx, CacheEntry{Key: "new", ExpiresAt: now.Add(time.Hour)})

	if n := s.Cleanup(now); n != 1 {
		t.Fatalf("Cleanup removed %d, want 1", n)
	}
	if _, err := s.Get(ctx, "new"); err != nil {
		t.Fatalf("live entry removed: %v", err)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c := NewCache(nil, time.Hour, WithCacheLogger(quietLogger))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%10))
			c.Set(ctx, key, []byte(key), 0)
			c.Get(ctx, key)
		}(i)
	}
	wg.Wait()
}
