// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "baseline/"

// BadgerConfig holds configuration for a badger-backed store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultBadgerConfig returns the on-disk defaults for path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// BadgerStore stores baselines in an embedded BadgerDB.
//
// Keys are "baseline/" + Key.ID(), values are the JSON record. A Save is a
// single transaction, so readers never observe a partial record.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	gc     *gcRunner
	locks  keyedMutex
	now    func() time.Time
	logger *slog.Logger
}

// OpenBadgerStore opens (or creates) a badger-backed store.
//
// Inputs:
//   - cfg: Database configuration. Path is required unless InMemory is set.
//
// Outputs:
//   - *BadgerStore: The store. Call Close when done.
//   - error: Non-nil if the database cannot be opened.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &BadgerStore{db: db, now: time.Now, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		s.gc.start()
	}
	return s, nil
}

// withTxn executes fn within a read-write transaction and commits if fn
// returns nil.
func (s *BadgerStore) withTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

func (s *BadgerStore) withReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := s.db.NewTransaction(false)
	defer txn.Discard()
	return fn(txn)
}

func getRecord(txn *badger.Txn, k Key) (*Record, error) {
	item, err := txn.Get([]byte(badgerKeyPrefix + k.ID()))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrBaselineNotFound
	}
	if err != nil {
		return nil, err
	}
	var r *Record
	err = item.Value(func(val []byte) error {
		var derr error
		r, derr = decodeRecord(val)
		return derr
	})
	return r, err
}

// Load implements Store.
func (s *BadgerStore) Load(ctx context.Context, k Key) (*Record, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	var r *Record
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		var err error
		r, err = getRecord(txn, k)
		return err
	})
	return r, err
}

// Save implements Store.
func (s *BadgerStore) Save(ctx context.Context, k Key, r *Record) error {
	out, err := stamp(k, r, s.now())
	if err != nil {
		return err
	}
	unlock := s.locks.lock(k.ID())
	defer unlock()

	return s.withTxn(ctx, func(txn *badger.Txn) error {
		if prev, err := getRecord(txn, k); err == nil {
			out.CreatedAt = prev.CreatedAt
		}
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		return txn.Set([]byte(badgerKeyPrefix+k.ID()), data)
	})
}

// List implements Store.
func (s *BadgerStore) List(ctx context.Context) ([]Key, error) {
	var keys []Key
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), badgerKeyPrefix)
			k, err := ParseID(id)
			if err != nil {
				s.logger.Warn("skipping malformed baseline key", slog.String("key", id))
				continue
			}
			keys = append(keys, k)
		}
		return nil
	})
	return keys, err
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, k Key) error {
	unlock := s.locks.lock(k.ID())
	defer unlock()

	return s.withTxn(ctx, func(txn *badger.Txn) error {
		key := []byte(badgerKeyPrefix + k.ID())
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrBaselineNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

// Close stops garbage collection and closes the database.
func (s *BadgerStore) Close() error {
	if s.gc != nil {
		s.gc.stop()
	}
	return s.db.Close()
}

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() {
	go r.run()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing was worth collecting.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}
