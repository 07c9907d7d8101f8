// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package store persists the little state Examwatch keeps across restarts
// in BadgerDB: the hourly call counter, the recent-session history and the
// encrypted access tokens of signed-in proctors.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
)

// Key layout.
const (
	keyCallsCount    = "budget:calls_count"
	keyLastHour      = "budget:last_hour"
	historyKeyPrefix = "history:"
	tokenKeyPrefix   = "token:"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Options configures Open.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// GCDiscardRatio is passed to RunValueLogGC. Defaults to 0.5.
	GCDiscardRatio float64
}

// Store wraps a BadgerDB handle.
type Store struct {
	db           *badger.DB
	discardRatio float64
	inMemory     bool
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("store path is required unless in_memory is set")
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}

	ratio := opts.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	logging.Info().Str("path", opts.Path).Bool("in_memory", opts.InMemory).Msg("Store opened")
	return &Store{db: db, discardRatio: ratio, inMemory: opts.InMemory}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Ping reports whether the database answers a read transaction.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyLastHour))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// RunGC reclaims value log space until nothing is left to rewrite. It
// reports whether at least one file was rewritten. In-memory stores have
// no value log and return false.
func (s *Store) RunGC() (bool, error) {
	if s.inMemory {
		metrics.StoreGCRuns.WithLabelValues("nothing").Inc()
		return false, nil
	}

	rewritten := false
	for {
		err := s.db.RunValueLogGC(s.discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			break
		}
		if err != nil {
			metrics.StoreGCRuns.WithLabelValues("error").Inc()
			return rewritten, fmt.Errorf("run GC: %w", err)
		}
		rewritten = true
	}

	if rewritten {
		metrics.StoreGCRuns.WithLabelValues("rewritten").Inc()
	} else {
		metrics.StoreGCRuns.WithLabelValues("nothing").Inc()
	}
	return rewritten, nil
}

func (s *Store) get(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return item.ValueCopy(nil)
}
