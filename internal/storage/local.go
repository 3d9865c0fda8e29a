package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// BadgerConfig controls how the local badger database is opened.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerLocal is a Local store backed by an embedded badger database.
type BadgerLocal struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the local database described by cfg.
func OpenBadger(cfg BadgerConfig, logger zerolog.Logger) (*BadgerLocal, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("local store path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create local store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(badgerLogger{logger: logger.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return &BadgerLocal{db: db}, nil
}

// Get implements Local.
func (b *BadgerLocal) Get(ctx context.Context, key string) (value []byte, err error) {
	defer func(start time.Time) { observe("badger", "get", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Set implements Local.
func (b *BadgerLocal) Set(ctx context.Context, key string, value []byte) (err error) {
	defer func(start time.Time) { observe("badger", "set", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Ping verifies the database is still open.
func (b *BadgerLocal) Ping() error {
	if b.db.IsClosed() {
		return errors.New("local store is closed")
	}
	return nil
}

// Close flushes and closes the database.
func (b *BadgerLocal) Close() error {
	return b.db.Close()
}

type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}
