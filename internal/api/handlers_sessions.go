// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/student"
	"github.com/tomtom215/examwatch/internal/tracking"
	"github.com/tomtom215/examwatch/internal/validation"
)

// maxLoginsPerSession bounds one session; the hourly budget makes larger
// sessions poll too slowly to be useful.
const maxLoginsPerSession = 100

// createSessionRequest is the body of POST /api/v1/sessions.
type createSessionRequest struct {
	Logins  []string   `json:"logins" validate:"required,min=1,max=100,dive,intralogin"`
	StartAt *time.Time `json:"start_at,omitempty"`
}

// addStudentRequest is the body of POST /api/v1/sessions/{id}/students.
type addStudentRequest struct {
	Login string `json:"login" validate:"required,intralogin"`
}

// intervalRequest is the body of PUT /api/v1/sessions/{id}/interval.
type intervalRequest struct {
	Seconds float64 `json:"seconds" validate:"required,gt=0,lte=86400"`
}

// intervalResponse reports the interval after a change.
type intervalResponse struct {
	IntervalSeconds float64  `json:"interval_seconds"`
	OverrideSeconds *float64 `json:"override_seconds,omitempty"`
}

// CreateSession starts tracking a list of logins.
//
// Method: POST
// Path: /api/v1/sessions
//
// Request: {"logins": ["jdoe", "asmith"], "start_at": "2026-10-18T14:00:00Z"}
//
// Response:
//   - 201: the new session's snapshot
//   - 400: invalid logins or a start time in the past
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	create := tracking.CreateRequest{
		Owner:   auth.SessionID(r.Context()),
		Logins:  req.Logins,
		StartAt: req.StartAt,
	}
	if err := create.Validate(time.Now()); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	session, err := h.tracking.Create(r.Context(), create)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, session.Snapshot(r.Context()))
}

// ListSessions lists the caller's active sessions.
//
// Method: GET
// Path: /api/v1/sessions
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, h.tracking.List(auth.SessionID(r.Context())))
}

// GetSession returns a session snapshot.
//
// Method: GET
// Path: /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	respondSuccess(w, http.StatusOK, session.Snapshot(r.Context()))
}

// StopSession stops a session. Its websocket subscribers receive
// session_stopped and are disconnected.
//
// Method: DELETE
// Path: /api/v1/sessions/{id}
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tracking.Stop(r.Context(), id, auth.SessionID(r.Context())); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddStudent adds a login to a session from the next cycle on.
//
// Method: POST
// Path: /api/v1/sessions/{id}/students
func (h *Handler) AddStudent(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req addStudentRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(session.Summary().Logins) >= maxLoginsPerSession {
		respondError(w, http.StatusConflict, "SESSION_FULL", "The session already tracks the maximum number of students", nil)
		return
	}

	if err := session.AddStudent(req.Login); err != nil {
		respondSessionError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("session_id", session.ID()).
		Str("login", student.NormalizeLogin(req.Login)).
		Msg("Student added to session")
	respondSuccess(w, http.StatusCreated, session.Snapshot(r.Context()))
}

// RemoveStudent drops a login and everything known about it.
//
// Method: DELETE
// Path: /api/v1/sessions/{id}/students/{login}
func (h *Handler) RemoveStudent(w http.ResponseWriter, r *http.Request) {
	session, login, ok := h.sessionAndLogin(w, r)
	if !ok {
		return
	}
	if err := session.RemoveStudent(login); err != nil {
		respondSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshStudent fetches one student immediately, outside the cycle.
//
// Method: POST
// Path: /api/v1/sessions/{id}/students/{login}/refresh
func (h *Handler) RefreshStudent(w http.ResponseWriter, r *http.Request) {
	session, login, ok := h.sessionAndLogin(w, r)
	if !ok {
		return
	}
	state, err := session.RefreshNow(r.Context(), login)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, state)
}

// SetInterval overrides the computed polling interval.
//
// Method: PUT
// Path: /api/v1/sessions/{id}/interval
//
// Request: {"seconds": 30}
func (h *Handler) SetInterval(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req intervalRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if err := session.SetInterval(time.Duration(req.Seconds * float64(time.Second))); err != nil {
		respondSessionError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, currentInterval(session.Snapshot(r.Context())))
}

// ClearInterval returns to the computed interval.
//
// Method: DELETE
// Path: /api/v1/sessions/{id}/interval
func (h *Handler) ClearInterval(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}
	session.ClearInterval()
	respondSuccess(w, http.StatusOK, currentInterval(session.Snapshot(r.Context())))
}

// sessionFromRequest resolves {id} for the caller. It answers 404 itself.
func (h *Handler) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*tracking.Session, bool) {
	session, err := h.tracking.Get(chi.URLParam(r, "id"), auth.SessionID(r.Context()))
	if err != nil {
		respondSessionError(w, err)
		return nil, false
	}
	return session, true
}

// sessionAndLogin resolves {id} and validates {login}.
func (h *Handler) sessionAndLogin(w http.ResponseWriter, r *http.Request) (*tracking.Session, string, bool) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return nil, "", false
	}
	login := chi.URLParam(r, "login")
	if !validation.IsIntraLogin(login) {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "login is not a valid intra login", nil)
		return nil, "", false
	}
	return session, student.NormalizeLogin(login), true
}

func currentInterval(snap tracking.Snapshot) intervalResponse {
	return intervalResponse{
		IntervalSeconds: snap.IntervalSeconds,
		OverrideSeconds: snap.OverrideSeconds,
	}
}
