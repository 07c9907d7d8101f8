// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
)

// Proxy forwards GET /api/proxy/<path>?<query> to the intra API with the
// proctor's token and passes the upstream status and body through
// verbatim. Proxied calls go through the retrying transport and count
// toward the hourly budget.
//
// Method: GET
// Path: /api/proxy/*
//
// Response:
//   - upstream status and body
//   - 401 {"error": ...}: no session or no stored token
//   - 500 {"error": ...}: the upstream could not be reached
//   - 502 {"error": ...}: the upstream answer is too large to relay
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokenFor(r.Context())
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to load access token")
		writePlainError(w, http.StatusInternalServerError, "failed to load access token")
		return
	}
	if token == "" {
		writePlainError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	path := "/" + strings.TrimLeft(chi.URLParam(r, "*"), "/")
	resp, err := h.upstream.Forward(r.Context(), token, path, r.URL.RawQuery)
	if errors.Is(err, intra.ErrForwardTooLarge) {
		logging.Ctx(r.Context()).Warn().Str("path", sanitizeLogValue(path)).Msg("Proxied answer too large")
		writePlainError(w, http.StatusBadGateway, "intra API answer too large")
		return
	}
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("path", sanitizeLogValue(path)).Msg("Proxy request failed")
		writePlainError(w, http.StatusInternalServerError, "failed to reach the intra API")
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(resp.Body); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write proxied body")
	}
}
