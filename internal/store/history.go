// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/examwatch/internal/history"
)

func historyKey(owner string) string {
	return historyKeyPrefix + owner
}

// LoadHistory implements history.Store.
func (s *Store) LoadHistory(_ context.Context, owner string) ([]history.RecentSession, error) {
	var entries []history.RecentSession

	err := s.db.View(func(txn *badger.Txn) error {
		raw, err := s.get(txn, historyKey(owner))
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return entries, nil
}

// SaveHistory implements history.Store.
func (s *Store) SaveHistory(_ context.Context, owner string, entries []history.RecentSession) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(historyKey(owner)), data)
	})
}
