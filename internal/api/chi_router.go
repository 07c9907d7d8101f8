// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/examwatch/internal/middleware"
)

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for handler.
func NewRouter(handler *Handler, chiMiddleware *ChiMiddleware) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: chiMiddleware}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	h := router.handler
	sessions := h.sessions

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)         // X-Request-ID with logging context
	r.Use(chimiddleware.RealIP)         // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)      // Recover from panics
	r.Use(router.chiMiddleware.CORS())  // CORS must be global to handle OPTIONS preflight
	r.Use(middleware.PrometheusMetrics) // Reads the route pattern after routing

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	// ========================
	// Health and Metrics
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/health", h.Health)
		r.Handle("/metrics", promhttp.Handler())
	})

	// ========================
	// Authentication Endpoints
	// ========================
	r.Route("/api/auth", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitAuth())
		r.Use(APISecurityHeaders())
		r.Use(sessions.Authenticate)

		r.Get("/login", h.AuthLogin)
		r.Get("/callback", h.AuthCallback)
		r.Post("/token", h.AuthToken)
		r.Post("/logout", h.AuthLogout)
		r.Get("/me", h.AuthMe)
	})

	// ========================
	// Raw intra API proxy
	// ========================
	r.Route("/api/proxy", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitProxy())
		r.Use(APISecurityHeaders())
		r.Use(sessions.Authenticate)

		r.Get("/*", h.Proxy)
	})

	// ========================
	// Dashboard API
	// ========================
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(sessions.RequireSession)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compression)

			r.Get("/users/search", h.SearchUsers)
			r.Get("/exams", h.ListExams)
			r.Get("/exams/{projectID}/logins", h.ListExamLogins)

			r.Get("/budget", h.Budget)
			r.Get("/history", h.History)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(middleware.Compression).Post("/", h.CreateSession)
			r.With(middleware.Compression).Get("/", h.ListSessions)

			r.Route("/{id}", func(r chi.Router) {
				// The event stream has its own limiter and is never compressed.
				r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws", h.SessionWebSocket)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Compression)

					r.Get("/", h.GetSession)
					r.Delete("/", h.StopSession)

					r.Post("/students", h.AddStudent)
					r.Delete("/students/{login}", h.RemoveStudent)
					r.Post("/students/{login}/refresh", h.RefreshStudent)

					r.Put("/interval", h.SetInterval)
					r.Delete("/interval", h.ClearInterval)
				})
			})
		})
	})

	return r
}
