// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/history"
)

// healthCheckTimeout bounds the store ping.
const healthCheckTimeout = 2 * time.Second

// HealthStatus is the body of /health.
type HealthStatus struct {
	Status         string  `json:"status"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	StoreOK        bool    `json:"store_ok"`
	BreakerState   string  `json:"breaker_state"`
	ActiveSessions int     `json:"active_sessions"`
	WSClients      int     `json:"ws_clients"`
}

// BudgetStatus is the body of /api/v1/budget.
type BudgetStatus struct {
	CallsThisHour       int     `json:"calls_this_hour"`
	HourlyLimit         int     `json:"hourly_limit"`
	SafetyMargin        int     `json:"safety_margin"`
	BaseIntervalSeconds float64 `json:"base_interval_seconds"`
	RequestsPerStudent  int     `json:"requests_per_student"`
}

// Health reports liveness and the state of the collaborators. It answers
// 503 when the store does not respond; an open breaker only degrades.
//
// Method: GET
// Path: /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		StoreOK:       true,
	}

	if h.storeCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		status.StoreOK = h.storeCheck(ctx) == nil
		cancel()
	}
	if h.upstream != nil {
		status.BreakerState = h.upstream.BreakerState()
	}
	if h.tracking != nil {
		status.ActiveSessions = h.tracking.Count()
	}
	if h.wsHub != nil {
		status.WSClients = h.wsHub.GetClientCount()
	}

	code := http.StatusOK
	switch {
	case !status.StoreOK:
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case status.BreakerState == "open":
		status.Status = "degraded"
	}
	respondSuccess(w, code, status)
}

// Budget reports the hourly request budget.
//
// Method: GET
// Path: /api/v1/budget
func (h *Handler) Budget(w http.ResponseWriter, r *http.Request) {
	b := h.config.Budget
	status := BudgetStatus{
		HourlyLimit:         b.HourlyLimit,
		SafetyMargin:        b.SafetyMargin,
		BaseIntervalSeconds: b.BaseInterval.Seconds(),
		RequestsPerStudent:  b.RequestsPerStudent,
	}
	if h.tracker != nil {
		status.CallsThisHour = h.tracker.CurrentCount(r.Context())
	}
	respondSuccess(w, http.StatusOK, status)
}

// History returns the recent sessions of the signed-in proctor, most
// recent first.
//
// Method: GET
// Path: /api/v1/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondSuccess(w, http.StatusOK, []history.RecentSession{})
		return
	}
	entries, err := h.history.List(r.Context(), auth.SessionID(r.Context()))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load session history", err)
		return
	}
	if entries == nil {
		entries = []history.RecentSession{}
	}
	respondSuccess(w, http.StatusOK, entries)
}
