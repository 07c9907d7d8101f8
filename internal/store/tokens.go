// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// TokenRecord is the stored form of a proctor's upstream token. The token
// itself is encrypted by the caller before it reaches the store.
type TokenRecord struct {
	SessionID        string    `json:"session_id"`
	EncryptedToken   string    `json:"encrypted_token"`
	EncryptedRefresh string    `json:"encrypted_refresh,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// SaveToken stores rec under its session id. The entry expires with the
// session in badger itself, so no cleanup routine is needed.
func (s *Store) SaveToken(_ context.Context, rec TokenRecord, ttl time.Duration) error {
	if rec.SessionID == "" {
		return errors.New("token record without session id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(tokenKeyPrefix+rec.SessionID), data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

// LoadToken returns the record of a session, or ErrNotFound.
func (s *Store) LoadToken(_ context.Context, sessionID string) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.db.View(func(txn *badger.Txn) error {
		raw, err := s.get(txn, tokenKeyPrefix+sessionID)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteToken removes the record of a session. Deleting a missing record
// is not an error.
func (s *Store) DeleteToken(_ context.Context, sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(tokenKeyPrefix + sessionID))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete token: %w", err)
		}
		return nil
	})
}

// CountTokens returns the number of stored token records.
func (s *Store) CountTokens(_ context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(tokenKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
