// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/examwatch/internal/budget"
)

// LoadCounter implements budget.CounterStore. The counter is only found
// when the hour marker exists; a missing count reads as zero.
func (s *Store) LoadCounter(_ context.Context) (budget.Counter, bool, error) {
	var counter budget.Counter
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		hour, err := s.getInt(txn, keyLastHour)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		count, err := s.getInt(txn, keyCallsCount)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		counter = budget.Counter{Count: count, Hour: hour}
		found = true
		return nil
	})
	if err != nil {
		return budget.Counter{}, false, err
	}
	return counter, found, nil
}

// SaveCounter implements budget.CounterStore. Both keys are written in one
// transaction.
func (s *Store) SaveCounter(_ context.Context, counter budget.Counter) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyCallsCount), []byte(strconv.Itoa(counter.Count))); err != nil {
			return fmt.Errorf("set %s: %w", keyCallsCount, err)
		}
		if err := txn.Set([]byte(keyLastHour), []byte(strconv.Itoa(counter.Hour))); err != nil {
			return fmt.Errorf("set %s: %w", keyLastHour, err)
		}
		return nil
	})
}

func (s *Store) getInt(txn *badger.Txn, key string) (int, error) {
	raw, err := s.get(txn, key)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
