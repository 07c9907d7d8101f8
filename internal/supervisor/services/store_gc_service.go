// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package services

import (
	"context"
	"time"

	"github.com/tomtom215/examwatch/internal/logging"
)

// GCRunner is satisfied by *store.Store.
type GCRunner interface {
	RunGC() (bool, error)
}

// StoreGCService periodically reclaims badger value log space. Tokens and
// budget counters are written with TTLs, so expired entries pile up in the
// value log until GC rewrites it.
type StoreGCService struct {
	store    GCRunner
	interval time.Duration
	name     string
}

// NewStoreGCService creates the service. A non-positive interval means 10m.
func NewStoreGCService(store GCRunner, interval time.Duration) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &StoreGCService{
		store:    store,
		interval: interval,
		name:     "store-gc",
	}
}

// Serve implements suture.Service. GC errors are logged, not returned: a
// failed pass is retried on the next tick without restarting the service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rewritten, err := s.store.RunGC()
			if err != nil {
				logging.Warn().Err(err).Msg("Store GC failed")
				continue
			}
			logging.Debug().Bool("rewritten", rewritten).Msg("Store GC finished")
		}
	}
}

// String names the service in suture events.
func (s *StoreGCService) String() string {
	return s.name
}
