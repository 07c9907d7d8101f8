// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package validation validates API request bodies with
// go-playground/validator v10.
//
// A single validator instance is shared by all handlers. On top of the
// built-in tags it registers intralogin, which accepts intra logins before
// they are trimmed and lowercased.
//
//	type createSessionRequest struct {
//	    Logins  []string   `json:"logins" validate:"required,min=1,max=50,dive,intralogin"`
//	    StartAt *time.Time `json:"start_at"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
//	    return
//	}
//
// Field names in messages are the JSON names, so a client sees
// "logins[0] must be an intra login" rather than the Go field name.
package validation
