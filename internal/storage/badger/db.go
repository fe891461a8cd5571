// Package badger persists cache entries and reports in an embedded
// badgerhold store.
package badger

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/timshannon/badgerhold/v4"
)

// DB manages one badgerhold store.
type DB struct {
	store  *badgerhold.Store
	logger *log.Logger
	dir    string
}

// Open opens or creates a store in dir.
func Open(dir string, logger *log.Logger) (*DB, error) {
	if logger == nil {
		logger = &log.DefaultLogger
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug().Str("path", dir).Msg("badger database opened")

	return &DB{store: store, logger: logger, dir: dir}, nil
}

// Store returns the underlying badgerhold store.
func (d *DB) Store() *badgerhold.Store { return d.store }

// Close closes the database.
func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
