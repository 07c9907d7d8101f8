// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package api provides the HTTP layer of Examwatch: sign-in, the raw intra
proxy, exam lookups, tracking session management and the per-session
websocket stream.

Key Components:

  - Router: chi route tree and middleware stack
  - Handler: request handlers, split by concern across handlers_*.go
  - ChiMiddleware: go-chi/cors and go-chi/httprate factories
  - Response helpers: the models.APIResponse envelope for /api/v1

Routes:

 1. Authentication (/api/auth/), bare JSON bodies:
    - GET login, GET callback, POST token, POST logout, GET me

 2. Proxy (/api/proxy/*):
    - forwards GET requests to the intra API with the proctor's token and
    passes status and body through verbatim

 3. Dashboard API (/api/v1/), session cookie or bearer token required:
    - users/search, exams, exams/{projectID}/logins
    - sessions, sessions/{id}, students, refresh, interval
    - sessions/{id}/ws
    - budget, history

 4. Operations:
    - /health, /metrics

Middleware Stack:

Every request gets a request id, the real client IP, panic recovery, CORS
and Prometheus instrumentation. Route groups add per-IP rate limits,
security headers, session resolution and gzip.

Usage Example:

	handler := api.NewHandler(cfg, api.HandlerDeps{
	    Upstream: intraClient,
	    OAuth:    oauthClient,
	    JWT:      jwtManager,
	    Sessions: sessionMiddleware,
	    Vault:    vault,
	    Tracking: manager,
	    Hub:      hub,
	    Tracker:  tracker,
	    History:  recorder,
	})
	mw := api.NewChiMiddlewareFromSecurity(cfg.Security.CORSOrigins,
	    cfg.Security.RateLimitReqs, cfg.Security.RateLimitWindow,
	    cfg.Security.RateLimitDisabled)
	server := &http.Server{Handler: api.NewRouter(handler, mw).SetupChi()}

See Also:

  - internal/auth: session tokens, OAuth client and token vault
  - internal/tracking: the sessions behind /api/v1/sessions
  - internal/websocket: the hub that fans session events out
*/
package api
