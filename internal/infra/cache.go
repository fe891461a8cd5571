package infra

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/phuslu/log"
)

// DefaultCacheTTL is the lifetime of cached provider responses.
const DefaultCacheTTL = time.Hour

// ErrCacheMiss is returned by a Store when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// CacheEntry holds a cached value with expiration.
type CacheEntry struct {
	Key       string    `json:"key" badgerhold:"key"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" badgerhold:"index"`
}

// Expired reports whether the entry is past its expiry at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store is a raw key/value backend for cache entries. Implementations may
// fail; Cache absorbs those failures.
type Store interface {
	Get(ctx context.Context, key string) (CacheEntry, error)
	Put(ctx context.Context, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// --- In-memory store ---

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]CacheEntry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (CacheEntry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return CacheEntry{}, ErrCacheMiss
	}
	return entry, nil
}

func (m *MemoryStore) Put(_ context.Context, entry CacheEntry) error {
	m.mu.Lock()
	m.entries[entry.Key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Cleanup removes expired entries. Can be called periodically.
func (m *MemoryStore) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, v := range m.entries {
		if v.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// --- Resilient cache ---

// Cache wraps a Store with TTL semantics. A backend failure on Get is a
// miss and a failure on Set or Delete is logged and dropped, so callers
// never see store errors.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger used for swallowed backend failures.
func WithCacheLogger(l *log.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCacheClock overrides the clock, for tests.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a cache over store with the given default TTL.
// A nil store means an in-memory store; ttl <= 0 means DefaultCacheTTL.
func NewCache(store Store, ttl time.Duration, opts ...CacheOption) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &Cache{
		store:  store,
		ttl:    ttl,
		logger: &log.DefaultLogger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the default entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the raw bytes for key. Expired entries are deleted and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		}
		return nil, false
	}
	if entry.Expired(c.now()) {
		c.Delete(ctx, key)
		return nil, false
	}
	return entry.Data, true
}

// Set stores data under key. ttl <= 0 uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	entry := CacheEntry{
		Key:       key,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

// Delete removes key.
func (c *Cache) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, ErrCacheMiss) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// GetJSON decodes a cached value into T. An undecodable entry is a miss.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var v T
	data, ok := c.Get(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry undecodable, treating as miss")
		c.Delete(ctx, key)
		return v, false
	}
	return v, true
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](ctx context.Context, c *Cache, key string, v T, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache value not encodable")
		return
	}
	c.Set(ctx, key, data, ttl)
}
