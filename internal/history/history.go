// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package history keeps, per sign-in, the list of recently started tracking
// sessions. Each proctor only ever sees the sessions they started.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// MaxEntries caps the history of one owner.
const MaxEntries = 10

// ErrNoOwner is returned when a history call names no owner.
var ErrNoOwner = errors.New("history owner required")

// RecentSession is one remembered session.
type RecentSession struct {
	Logins         []string   `json:"logins"`
	StartedAt      time.Time  `json:"started_at"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
}

// Add puts entry first and drops any older entry with the same ordered
// login list. The result holds at most MaxEntries sessions. entries is not
// modified.
func Add(entries []RecentSession, entry RecentSession) []RecentSession {
	out := make([]RecentSession, 0, min(len(entries)+1, MaxEntries))
	out = append(out, entry)
	for _, e := range entries {
		if len(out) == MaxEntries {
			break
		}
		if slices.Equal(e.Logins, entry.Logins) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Store persists the history of each owner. The owner is the sign-in
// session ID of the proctor.
type Store interface {
	LoadHistory(ctx context.Context, owner string) ([]RecentSession, error)
	SaveHistory(ctx context.Context, owner string, entries []RecentSession) error
}

// Recorder serializes read-modify-write cycles on a Store.
type Recorder struct {
	mu    sync.Mutex
	store Store
}

// NewRecorder returns a recorder over store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// Record adds entry to the history of owner.
func (r *Recorder) Record(ctx context.Context, owner string, entry RecentSession) error {
	if owner == "" {
		return ErrNoOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.store.LoadHistory(ctx, owner)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if err := r.store.SaveHistory(ctx, owner, Add(entries, entry)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// List returns the history of owner, most recent first.
func (r *Recorder) List(ctx context.Context, owner string) ([]RecentSession, error) {
	if owner == "" {
		return nil, ErrNoOwner
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.store.LoadHistory(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if entries == nil {
		entries = []RecentSession{}
	}
	return entries, nil
}
