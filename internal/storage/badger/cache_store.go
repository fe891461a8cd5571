package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/seenimoa/diligence/internal/infra"
)

// CacheStore is an infra.Store backed by badgerhold. Entries survive
// restarts; expiry is enforced by infra.Cache on read and by PurgeExpired.
type CacheStore struct {
	db *DB
}

// NewCacheStore wraps db as a cache backend.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) Get(_ context.Context, key string) (infra.CacheEntry, error) {
	var entry infra.CacheEntry
	err := s.db.Store().Get(key, &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return infra.CacheEntry{}, infra.ErrCacheMiss
	}
	if err != nil {
		return infra.CacheEntry{}, fmt.Errorf("failed to get cache entry: %w", err)
	}
	entry.Key = key
	return entry, nil
}

func (s *CacheStore) Put(_ context.Context, entry infra.CacheEntry) error {
	if err := s.db.Store().Upsert(entry.Key, &entry); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) Delete(_ context.Context, key string) error {
	err := s.db.Store().Delete(key, &infra.CacheEntry{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// PurgeExpired removes every entry that expired before now and returns
// how many were removed.
func (s *CacheStore) PurgeExpired(now time.Time) (int, error) {
	var expired []infra.CacheEntry
	if err := s.db.Store().Find(&expired, badgerhold.Where("ExpiresAt").Lt(now)); err != nil {
		return 0, fmt.Errorf("failed to find expired entries: %w", err)
	}
	for _, e := range expired {
		if err := s.db.Store().Delete(e.Key, &infra.CacheEntry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			return 0, fmt.Errorf("failed to delete expired entry: %w", err)
		}
	}
	if len(expired) > 0 {
		s.db.logger.Debug().Int("removed", len(expired)).Msg("purged expired cache entries")
	}
	return len(expired), nil
}
