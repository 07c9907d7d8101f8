// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/budget"
	"github.com/tomtom215/examwatch/internal/cache"
	"github.com/tomtom215/examwatch/internal/config"
	"github.com/tomtom215/examwatch/internal/history"
	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/models"
	"github.com/tomtom215/examwatch/internal/tracking"
	ws "github.com/tomtom215/examwatch/internal/websocket"
)

// examCacheTTL is how long the exam list of a proctor is reused.
const examCacheTTL = 5 * time.Minute

// Upstream is the part of the intra client the handlers use.
// *intra.Client implements it.
type Upstream interface {
	SearchUsers(ctx context.Context, token, query string) ([]models.UserSummary, error)
	ListExamProjects(ctx context.Context, token string, cursusID int) ([]models.IntraProject, error)
	ListInProgressTeams(ctx context.Context, token string, projectID, campusID int) ([]models.IntraTeam, error)
	Forward(ctx context.Context, token, path, rawQuery string) (*intra.ForwardResponse, error)
	BreakerState() string
}

// HandlerDeps are the collaborators of the handlers.
type HandlerDeps struct {
	Upstream Upstream
	OAuth    *auth.OAuthClient
	JWT      *auth.JWTManager
	Sessions *auth.SessionMiddleware
	Vault    *auth.TokenVault
	Tracking *tracking.Manager
	Hub      *ws.Hub
	Tracker  *budget.Tracker
	History  *history.Recorder
	// StoreCheck reports whether the store answers, for /health.
	StoreCheck func(ctx context.Context) error
}

// Handler contains dependencies for API handlers
//
// Handler methods are split across multiple files:
//   - handlers.go: Handler struct, constructor, websocket upgrader
//   - handlers_helpers.go: response and request helpers
//   - handlers_auth.go: sign-in, sign-out and session introspection
//   - handlers_proxy.go: raw intra API proxy
//   - handlers_lookup.go: user search and exam lookups
//   - handlers_sessions.go: tracking session management
//   - handlers_websocket.go: the session event stream
//   - handlers_health.go: health, budget and history
type Handler struct {
	config     *config.Config
	upstream   Upstream
	oauth      *auth.OAuthClient
	jwt        *auth.JWTManager
	sessions   *auth.SessionMiddleware
	vault      *auth.TokenVault
	tracking   *tracking.Manager
	wsHub      *ws.Hub
	tracker    *budget.Tracker
	history    *history.Recorder
	storeCheck func(ctx context.Context) error
	examCache  *cache.Cache[[]ExamProject]
	startTime  time.Time
}

// NewHandler creates a new API handler with all required dependencies.
//
// Example:
//
//	handler := api.NewHandler(cfg, api.HandlerDeps{...})
//	router := api.NewRouter(handler, chiMiddleware)
//	server := &http.Server{Handler: router.SetupChi()}
func NewHandler(cfg *config.Config, deps HandlerDeps) *Handler {
	return &Handler{
		config:     cfg,
		upstream:   deps.Upstream,
		oauth:      deps.OAuth,
		jwt:        deps.JWT,
		sessions:   deps.Sessions,
		vault:      deps.Vault,
		tracking:   deps.Tracking,
		wsHub:      deps.Hub,
		tracker:    deps.Tracker,
		history:    deps.History,
		storeCheck: deps.StoreCheck,
		examCache:  cache.New[[]ExamProject](examCacheTTL),
		startTime:  time.Now(),
	}
}

// ClearExamCache drops every cached exam list.
func (h *Handler) ClearExamCache() {
	h.examCache.Clear()
	logging.Debug().Msg("Exam cache cleared")
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin on websocket handshakes. Scripted clients
	// authenticate with a bearer token instead of the cookie, so a missing
	// Origin is only accepted together with an Authorization header.
	if origin == "" {
		if r.Header.Get("Authorization") != "" {
			return true
		}
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Security.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}
	if origin == h.config.Server.PublicURL {
		return true
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
