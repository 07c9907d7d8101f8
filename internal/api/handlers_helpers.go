// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/models"
	"github.com/tomtom215/examwatch/internal/scheduler"
	"github.com/tomtom215/examwatch/internal/tracking"
	"github.com/tomtom215/examwatch/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			fmt.Fprintf(&result, "\\x%02x", r)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response in the API envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondSuccess wraps data in a success envelope.
func respondSuccess(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Data:   nil,
		Metadata: models.Metadata{
			Timestamp: time.Now().UTC(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// writePlainJSON writes v without the envelope. The auth and proxy routes
// answer in the bare shape the dashboard expects.
func writePlainJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// writePlainError writes {"error": message}.
func writePlainError(w http.ResponseWriter, status int, message string) {
	writePlainJSON(w, status, map[string]string{"error": message})
}

// decodeJSONBody decodes a bounded JSON body into dst and validates it.
// It answers 400 itself and reports false on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is too large or unreadable", nil)
		return false
	}
	if len(body) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is required", nil)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", nil)
		return false
	}
	if apiErr := validateRequest(dst); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    apiErr,
		})
		return false
	}
	return true
}

// validateRequest validates a struct using go-playground/validator.
// Returns nil if validation passes, or a models.APIError if validation fails.
func validateRequest(v any) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}

	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// requireToken returns the upstream access token of the signed-in proctor.
// It answers 401 itself and reports false when there is none.
func (h *Handler) requireToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, err := h.tokenFor(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TOKEN_ERROR", "Failed to load access token", err)
		return "", false
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Sign in with the intra to continue", nil)
		return "", false
	}
	return token, true
}

// tokenFor loads the access token of the session in ctx, "" if none.
func (h *Handler) tokenFor(ctx context.Context) (string, error) {
	sessionID := auth.SessionID(ctx)
	if sessionID == "" || h.vault == nil {
		return "", nil
	}
	return h.vault.Load(ctx, sessionID)
}

// respondUpstreamError maps an intra client error to an API error.
func respondUpstreamError(w http.ResponseWriter, err error) {
	var se *intra.StatusError
	message := "The intra API request failed"
	if errors.As(err, &se) && se.Message != "" {
		message = se.Message
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "The intra API did not answer in time", err)
	case errors.Is(err, intra.ErrAuth):
		respondError(w, http.StatusUnauthorized, "AUTH_REQUIRED", message, nil)
	case errors.Is(err, intra.ErrForbidden):
		respondError(w, http.StatusForbidden, "FORBIDDEN", message, nil)
	case errors.Is(err, intra.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
	case errors.Is(err, intra.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", message, nil)
	default:
		respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", message, err)
	}
}

// respondSessionError maps a tracking or scheduler error to an API error.
// A session owned by another sign-in answers 404 like a missing one.
func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracking.ErrSessionNotFound), errors.Is(err, tracking.ErrNotOwner):
		respondError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Tracking session not found", nil)
	case errors.Is(err, tracking.ErrNoLogins):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, scheduler.ErrUnknownStudent):
		respondError(w, http.StatusNotFound, "STUDENT_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, scheduler.ErrDuplicateStudent):
		respondError(w, http.StatusConflict, "STUDENT_EXISTS", err.Error(), nil)
	case errors.Is(err, scheduler.ErrIntervalOutOfRange):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		respondUpstreamError(w, err)
	}
}
