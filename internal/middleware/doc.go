// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package middleware provides HTTP middleware shared by the dashboard API.

Key Components:

  - RequestID: reuses or generates X-Request-ID and seeds the logging context
  - PrometheusMetrics: request count, latency and in-flight gauge, labelled
    by chi route pattern
  - Compression: gzip for clients that accept it, skipping websocket upgrades

All three take and return http.Handler so they plug into chi's Use:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Route("/api/v1", func(r chi.Router) {
	    r.Use(middleware.PrometheusMetrics)
	    r.Use(middleware.Compression)
	})

The metrics wrapper implements http.Hijacker so websocket upgrades work
behind it.

See Also:

  - internal/auth: session middleware
  - internal/api: the router that assembles the stack
  - internal/metrics: Prometheus metric definitions
*/
package middleware
