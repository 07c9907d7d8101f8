// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLogin(t *testing.T) {
	before := testutil.ToFloat64(LoginAttempts.WithLabelValues("invalid_state"))
	RecordLogin("invalid_state")
	if got := testutil.ToFloat64(LoginAttempts.WithLabelValues("invalid_state")); got != before+1 {
		t.Errorf("invalid_state count = %v, want %v", got, before+1)
	}
}

func TestRecordLogout(t *testing.T) {
	before := testutil.ToFloat64(LogoutTotal)
	RecordLogout()
	if got := testutil.ToFloat64(LogoutTotal); got != before+1 {
		t.Errorf("logouts = %v, want %v", got, before+1)
	}
}

func TestRecordTokenExchange(t *testing.T) {
	// Histograms are not readable through ToFloat64; make sure the call is safe.
	RecordTokenExchange(150 * time.Millisecond)
	if n := testutil.CollectAndCount(TokenExchangeDuration); n != 1 {
		t.Errorf("collected %d metrics, want 1", n)
	}
}
