// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package metrics declares the Prometheus instruments of Examwatch and the
// helpers used to record them. Everything is registered on the default
// registry through promauto and exposed at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dashboard API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_api_requests_total",
			Help: "Total number of dashboard API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "examwatch_api_request_duration_seconds",
			Help:    "Dashboard API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examwatch_api_active_requests",
			Help: "Number of dashboard API requests currently being served",
		},
	)

	// Upstream (intra API) Metrics
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_upstream_requests_total",
			Help: "Total number of upstream request attempts, retries included",
		},
		[]string{"status"},
	)

	UpstreamRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examwatch_upstream_request_duration_seconds",
			Help:    "Upstream request attempt latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	UpstreamRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examwatch_upstream_retries_total",
			Help: "Total number of retries after an HTTP 429",
		},
	)

	UpstreamRateLimitExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examwatch_upstream_rate_limit_exhausted_total",
			Help: "Requests that stayed rate limited after every retry",
		},
	)

	UpstreamCallsThisHour = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examwatch_upstream_calls_this_hour",
			Help: "Upstream requests recorded during the current wall-clock hour",
		},
	)

	// Tracking Metrics
	PollingInterval = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "examwatch_polling_interval_seconds",
			Help: "Interval currently used between two student refreshes",
		},
		[]string{"session"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "examwatch_cycle_duration_seconds",
			Help:    "Duration of a full refresh cycle, waits included",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_cycles_total",
			Help: "Total number of refresh cycles by outcome",
		},
		[]string{"outcome"}, // "completed", "aborted"
	)

	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_fetch_errors_total",
			Help: "Student fetch failures by error kind",
		},
		[]string{"kind"},
	)

	TransitionEffects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_transition_effects_total",
			Help: "One-shot effects fired by the transition detector",
		},
		[]string{"kind"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examwatch_active_sessions",
			Help: "Number of running tracking sessions",
		},
	)

	TrackedStudents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examwatch_tracked_students",
			Help: "Number of students tracked across all sessions",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "examwatch_websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent by type",
		},
		[]string{"type"},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "examwatch_websocket_messages_dropped_total",
			Help: "Messages dropped because the broadcast queue was full",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "examwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "examwatch_circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	// Store Metrics
	StoreGCRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "examwatch_store_gc_runs_total",
			Help: "Badger value log GC runs by result",
		},
		[]string{"result"}, // "rewritten", "nothing", "error"
	)
)

// RecordAPIRequest records a dashboard API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight dashboard API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordUpstreamAttempt records one upstream request attempt. A status of 0
// means the request failed before a response was received.
func RecordUpstreamAttempt(status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestsTotal.WithLabelValues(label).Inc()
	UpstreamRequestDuration.Observe(duration.Seconds())
}

// RecordCycle records the outcome and duration of a refresh cycle.
func RecordCycle(duration time.Duration, aborted bool) {
	outcome := "completed"
	if aborted {
		outcome = "aborted"
	}
	CyclesTotal.WithLabelValues(outcome).Inc()
	CycleDuration.Observe(duration.Seconds())
}

// RecordFetchError counts a failed student fetch.
func RecordFetchError(kind string) {
	FetchErrors.WithLabelValues(kind).Inc()
}

// RecordEffect counts a fired transition effect.
func RecordEffect(kind string) {
	TransitionEffects.WithLabelValues(kind).Inc()
}

// SetPollingInterval publishes the interval a session currently waits.
func SetPollingInterval(session string, interval time.Duration) {
	PollingInterval.WithLabelValues(session).Set(interval.Seconds())
}

// ForgetSession removes the per-session series of a stopped session.
func ForgetSession(session string) {
	PollingInterval.DeleteLabelValues(session)
}
