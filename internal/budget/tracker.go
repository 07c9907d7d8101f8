// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
)

// Counter is the persisted state of the hourly call counter.
type Counter struct {
	Count int `json:"count"`
	// Hour is the hour of day (0-23) the count belongs to.
	Hour int `json:"hour"`
}

// CounterStore persists the hourly call counter.
type CounterStore interface {
	// LoadCounter returns the stored counter; found is false when nothing
	// has been stored yet.
	LoadCounter(ctx context.Context) (counter Counter, found bool, err error)
	SaveCounter(ctx context.Context, counter Counter) error
}

// Tracker counts upstream requests made during the current wall-clock hour.
// It is shared by every session and safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	store   CounterStore
	now     func() time.Time
	count   int
	hour    int
	hasHour bool
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker loads the persisted counter and applies an hour change that
// happened while the process was down.
func NewTracker(ctx context.Context, store CounterStore, opts ...TrackerOption) (*Tracker, error) {
	t := &Tracker{store: store, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}

	counter, found, err := store.LoadCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("load call counter: %w", err)
	}
	if found {
		t.count = counter.Count
		t.hour = counter.Hour
		t.hasHour = true
	}

	if _, err := t.ResetIfHourChanged(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordCall counts one upstream request.
func (t *Tracker) RecordCall(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetLocked()
	t.count++
	metrics.UpstreamCallsThisHour.Set(float64(t.count))
	return t.persistLocked(ctx)
}

// CurrentCount returns the number of requests recorded this hour.
func (t *Tracker) CurrentCount(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resetLocked() {
		if err := t.persistLocked(ctx); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist call counter reset")
		}
	}
	return t.count
}

// ResetIfHourChanged zeroes the counter when the hour of day differs from
// the stored one. Hours are compared as integers, so 23 -> 0 is a change.
// It is idempotent and cheap enough to call every second.
func (t *Tracker) ResetIfHourChanged(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.resetLocked()
	if !changed {
		return false, nil
	}
	return true, t.persistLocked(ctx)
}

// resetLocked applies the hour check. The first call with no stored hour
// only records the current hour. Returns true when the state changed.
func (t *Tracker) resetLocked() bool {
	current := t.now().Hour()

	if !t.hasHour {
		t.hour = current
		t.hasHour = true
		return true
	}
	if current == t.hour {
		return false
	}

	logging.Info().
		Int("previous_hour", t.hour).
		Int("hour", current).
		Int("calls", t.count).
		Msg("New hour detected, resetting upstream call counter")

	t.count = 0
	t.hour = current
	metrics.UpstreamCallsThisHour.Set(0)
	return true
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	if err := t.store.SaveCounter(ctx, Counter{Count: t.count, Hour: t.hour}); err != nil {
		return fmt.Errorf("save call counter: %w", err)
	}
	return nil
}

// MemoryStore is an in-process CounterStore.
type MemoryStore struct {
	mu      sync.Mutex
	counter Counter
	found   bool
	saves   int
}

// LoadCounter implements CounterStore.
func (m *MemoryStore) LoadCounter(_ context.Context) (Counter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter, m.found, nil
}

// SaveCounter implements CounterStore.
func (m *MemoryStore) SaveCounter(_ context.Context, counter Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter = counter
	m.found = true
	m.saves++
	return nil
}

// Saves returns how many times the counter was persisted.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
