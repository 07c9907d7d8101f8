// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/models"
)

// stubUpstream fails every call with err.
type stubUpstream struct {
	err error
}

func (s stubUpstream) SearchUsers(context.Context, string, string) ([]models.UserSummary, error) {
	return nil, s.err
}

func (s stubUpstream) ListExamProjects(context.Context, string, int) ([]models.IntraProject, error) {
	return nil, s.err
}

func (s stubUpstream) ListInProgressTeams(context.Context, string, int, int) ([]models.IntraTeam, error) {
	return nil, s.err
}

func (s stubUpstream) Forward(context.Context, string, string, string) (*intra.ForwardResponse, error) {
	return nil, s.err
}

func (s stubUpstream) BreakerState() string { return "open" }

func TestProxy_RequiresSession(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/proxy/campus/1/users", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if got := rec.Body.String(); !strings.Contains(got, `"error":"not authenticated"`) {
		t.Errorf("body = %s", got)
	}
}

func TestProxy_PassesUpstreamThroughVerbatim(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, bearer := env.signIn(t)
	before := env.tracker.CurrentCount(context.Background())

	rec := env.do(t, http.MethodGet, "/api/proxy/campus/1/users?filter%5Bpool_year%5D=2026", bearer, nil)
	expectStatus(t, rec, http.StatusTeapot)

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
	if got, want := rec.Body.String(), `{"verbatim":true,"query":"filter%5Bpool_year%5D=2026"}`; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
	if env.intra.count("GET /v2/campus/{id}/users") != 1 {
		t.Errorf("upstream calls = %d, want 1", env.intra.count("GET /v2/campus/{id}/users"))
	}
	if after := env.tracker.CurrentCount(context.Background()); after != before+1 {
		t.Errorf("budget count = %d, want %d", after, before+1)
	}
}

func TestProxy_UnreachableUpstream(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, bearer := env.signIn(t)
	router := env.rebuild(func(d *HandlerDeps) {
		d.Upstream = stubUpstream{err: errors.New("dial tcp: connection refused")}
	})

	req := newBearerRequest(http.MethodGet, "/api/proxy/me", bearer)
	rec := serve(router, req)
	expectStatus(t, rec, http.StatusInternalServerError)
	if got := rec.Body.String(); !strings.Contains(got, "failed to reach the intra API") {
		t.Errorf("body = %s", got)
	}
}
