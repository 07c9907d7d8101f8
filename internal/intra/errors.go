// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package intra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds returned by the client. Match them with errors.Is.
var (
	// ErrAuth means the bearer token is missing or was rejected (401).
	// It is fatal for the proctor session: the token must be purged and the
	// proctor sent back to the login page.
	ErrAuth = errors.New("authentication required")

	// ErrNotFound is an upstream 404, usually an unknown login.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is an upstream 403. It is never retried.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited is an upstream 429 that outlived every retry.
	ErrRateLimited = errors.New("rate limited")

	// ErrUpstream covers every other non-2xx answer and transport failures.
	ErrUpstream = errors.New("upstream error")
)

// StatusError carries the kind, the HTTP status and a human readable
// message for a failed upstream request.
type StatusError struct {
	Kind       error
	StatusCode int
	Message    string
	Path       string
}

// Error implements error.
func (e *StatusError) Error() string {
	return e.Message
}

// Unwrap exposes the kind to errors.Is.
func (e *StatusError) Unwrap() error {
	return e.Kind
}

// newStatusError maps an upstream status to a StatusError. detail is the
// upstream message, when the body carried one.
func newStatusError(status int, path, detail string) *StatusError {
	e := &StatusError{StatusCode: status, Path: path}

	switch status {
	case http.StatusUnauthorized:
		e.Kind = ErrAuth
		e.Message = "access token is invalid or expired, please sign in again"
	case http.StatusForbidden:
		e.Kind = ErrForbidden
		e.Message = "you do not have the permissions required to access this data"
	case http.StatusNotFound:
		e.Kind = ErrNotFound
		e.Message = fmt.Sprintf("%s not found", path)
	case http.StatusTooManyRequests:
		e.Kind = ErrRateLimited
		e.Message = "too many requests were sent to the intra API, please try again later"
	default:
		if detail == "" {
			detail = "unknown error"
		}
		e.Kind = ErrUpstream
		e.Message = fmt.Sprintf("intra API error (%d): %s", status, detail)
	}

	return e
}

// Kind returns a short label for the error kind, for metrics and API codes.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "upstream"
	}
}

// isBreakerNeutral reports whether err says nothing about upstream health.
// Client errors (4xx) and cancelled requests must not open the circuit.
func isBreakerNeutral(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden)
}
