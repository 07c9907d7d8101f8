// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OAuth sign-in metrics.
var (
	// LoginAttempts counts callback outcomes.
	// Labels:
	//   - outcome: "success", "invalid_state", "exchange_failed", "store_failed"
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_auth_login_attempts_total",
			Help: "Total number of OAuth sign-in attempts by outcome",
		},
		[]string{"outcome"},
	)

	// TokenExchangeDuration measures the code-for-token exchange with the intra.
	TokenExchangeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examwatch_auth_token_exchange_duration_seconds",
			Help:    "Duration of OAuth authorization-code exchanges",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// LogoutTotal counts explicit sign-outs.
	LogoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examwatch_auth_logouts_total",
			Help: "Total number of sign-outs",
		},
	)
)

// RecordLogin records the outcome of a sign-in attempt.
func RecordLogin(outcome string) {
	LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordTokenExchange records the latency of a code exchange.
func RecordTokenExchange(duration time.Duration) {
	TokenExchangeDuration.Observe(duration.Seconds())
}

// RecordLogout records a sign-out.
func RecordLogout() {
	LogoutTotal.Inc()
}
