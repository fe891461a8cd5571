// Package storage opens the configured cache and report backends.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/phuslu/log"

	"github.com/seenimoa/diligence/internal/config"
	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/report"
	"github.com/seenimoa/diligence/internal/storage/badger"
	"github.com/seenimoa/diligence/internal/storage/postgres"
	"github.com/seenimoa/diligence/internal/storage/sqlite"
)

// Stores bundles the opened backends.
type Stores struct {
	Cache   infra.Store
	Reports report.Store

	dbs []*badger.DB
}

// Open builds the cache store and the report store. Badger databases are
// shared when both point at the same directory.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Stores, error) {
	s := &Stores{}
	dbs := map[string]*badger.DB{}
	openBadger := func(dir string) (*badger.DB, error) {
		dir = filepath.Clean(dir)
		if db, ok := dbs[dir]; ok {
			return db, nil
		}
		db, err := badger.Open(dir, logger)
		if err != nil {
			return nil, err
		}
		dbs[dir] = db
		s.dbs = append(s.dbs, db)
		return db, nil
	}

	switch cfg.Cache.Backend {
	case "", "memory":
		s.Cache = infra.NewMemoryStore()
	case "badger":
		db, err := openBadger(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		s.Cache = badger.NewCacheStore(db)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	switch cfg.Storage.Driver {
	case "", "memory":
		s.Reports = report.NewMemoryStore()
	case "badger":
		db, err := openBadger(cfg.Storage.Dir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open report store: %w", err)
		}
		s.Reports = badger.NewReportStore(db)
	case "sqlite":
		st, err := sqlite.NewReportStore(cfg.Storage.Dir)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open report store: %w", err)
		}
		s.Reports = st
	case "postgres":
		st, err := postgres.Connect(ctx, cfg.Storage.DSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open report store: %w", err)
		}
		s.Reports = st
	default:
		s.Close()
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if logger != nil {
		logger.Info().Str("cache", nonEmpty(cfg.Cache.Backend)).Str("reports", nonEmpty(cfg.Storage.Driver)).Msg("storage opened")
	}
	return s, nil
}

// Close releases every backend.
func (s *Stores) Close() error {
	var errs []error
	if s.Reports != nil {
		errs = append(errs, s.Reports.Close())
	}
	for _, db := range s.dbs {
		errs = append(errs, db.Close())
	}
	s.dbs = nil
	return errors.Join(errs...)
}

func nonEmpty(s string) string {
	if s == "" {
		return "memory"
	}
	return s
}
