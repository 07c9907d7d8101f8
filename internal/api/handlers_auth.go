// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/logging"
)

// Reasons passed to /auth-error when the callback fails.
const (
	authErrorDenied   = "access_denied"
	authErrorState    = "invalid_state"
	authErrorCode     = "missing_code"
	authErrorExchange = "exchange_failed"
	authErrorSession  = "session_failed"
)

// tokenRequest is the body of POST /api/auth/token.
type tokenRequest struct {
	Code string `json:"code" validate:"required,max=512"`
}

// tokenResponse is returned by POST /api/auth/token.
type tokenResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// meResponse is returned by GET /api/auth/me.
type meResponse struct {
	Authenticated bool   `json:"authenticated"`
	SessionID     string `json:"session_id,omitempty"`
}

// AuthLogin returns the intra authorize URL with a signed anti-CSRF state.
//
// Method: GET
// Path: /api/auth/login
//
// Response: {"auth_url": "https://api.intra.42.fr/oauth/authorize?..."}
func (h *Handler) AuthLogin(w http.ResponseWriter, r *http.Request) {
	state, err := h.jwt.GenerateState()
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to generate OAuth state")
		writePlainError(w, http.StatusInternalServerError, "failed to start sign-in")
		return
	}
	writePlainJSON(w, http.StatusOK, map[string]string{"auth_url": h.oauth.AuthCodeURL(state)})
}

// AuthCallback completes the authorization-code flow. On success it sets
// the session cookie and redirects to the dashboard; on failure it
// redirects to /auth-error?reason=...
//
// Method: GET
// Path: /api/auth/callback?code=...&state=...
func (h *Handler) AuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if denied := q.Get("error"); denied != "" {
		logging.Ctx(r.Context()).Info().Str("error", sanitizeLogValue(denied)).Msg("Sign-in refused at the intra")
		h.redirectAuthError(w, r, authErrorDenied)
		return
	}
	if err := h.jwt.ValidateState(q.Get("state")); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Rejected OAuth callback state")
		h.redirectAuthError(w, r, authErrorState)
		return
	}
	code := q.Get("code")
	if code == "" {
		h.redirectAuthError(w, r, authErrorCode)
		return
	}

	sessionToken, expiresAt, reason := h.signIn(r.Context(), code)
	if reason != "" {
		h.redirectAuthError(w, r, reason)
		return
	}

	h.sessions.SetSessionCookie(w, sessionToken, expiresAt)
	http.Redirect(w, r, "/", http.StatusFound)
}

// AuthToken is the JSON variant of the callback for scripted clients.
//
// Method: POST
// Path: /api/auth/token
//
// Request: {"code": "..."}
// Response: {"session_token": "...", "expires_at": "..."}
func (h *Handler) AuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	sessionToken, expiresAt, reason := h.signIn(r.Context(), req.Code)
	switch reason {
	case "":
		writePlainJSON(w, http.StatusOK, tokenResponse{SessionToken: sessionToken, ExpiresAt: expiresAt})
	case authErrorExchange:
		writePlainError(w, http.StatusUnauthorized, "the authorization code was rejected")
	default:
		writePlainError(w, http.StatusInternalServerError, "failed to create a session")
	}
}

// signIn exchanges code, stores the token under a new session and returns
// the signed session token. reason is empty on success.
func (h *Handler) signIn(ctx context.Context, code string) (token string, expiresAt time.Time, reason string) {
	upstreamToken, err := h.oauth.Exchange(ctx, code)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("OAuth code exchange failed")
		auth.RecordLogin("exchange_failed")
		return "", time.Time{}, authErrorExchange
	}

	sessionID, err := h.vault.Save(ctx, upstreamToken)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to store access token")
		auth.RecordLogin("store_failed")
		return "", time.Time{}, authErrorSession
	}

	token, expiresAt, err = h.jwt.GenerateToken(sessionID)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to sign session token")
		_ = h.vault.Delete(ctx, sessionID)
		auth.RecordLogin("session_failed")
		return "", time.Time{}, authErrorSession
	}

	auth.RecordLogin("success")
	logging.Ctx(ctx).Info().Str("session_id", sessionID).Msg("Proctor signed in")
	return token, expiresAt, ""
}

// AuthLogout stops the proctor's tracking sessions, deletes the stored
// token and clears the cookie. It succeeds without a session too.
//
// Method: POST
// Path: /api/auth/logout
func (h *Handler) AuthLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if sessionID := auth.SessionID(ctx); sessionID != "" {
		stopped := 0
		if h.tracking != nil {
			stopped = h.tracking.StopOwner(ctx, sessionID)
		}
		if err := h.vault.Delete(ctx, sessionID); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Failed to delete stored token")
		}
		logging.Ctx(ctx).Info().Str("session_id", sessionID).Int("sessions_stopped", stopped).Msg("Proctor signed out")
	}

	auth.RecordLogout()
	h.sessions.ClearSessionCookie(w)
	writePlainJSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}

// AuthMe reports whether the request carries a session with a usable
// upstream token.
//
// Method: GET
// Path: /api/auth/me
func (h *Handler) AuthMe(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokenFor(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to load access token")
	}
	if token == "" {
		writePlainJSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}
	writePlainJSON(w, http.StatusOK, meResponse{Authenticated: true, SessionID: auth.SessionID(r.Context())})
}

func (h *Handler) redirectAuthError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/auth-error?reason="+url.QueryEscape(reason), http.StatusFound)
}
