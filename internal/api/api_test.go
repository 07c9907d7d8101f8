// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/budget"
	"github.com/tomtom215/examwatch/internal/config"
	"github.com/tomtom215/examwatch/internal/history"
	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/models"
	"github.com/tomtom215/examwatch/internal/store"
	"github.com/tomtom215/examwatch/internal/student"
	"github.com/tomtom215/examwatch/internal/supervisor"
	"github.com/tomtom215/examwatch/internal/tracking"
	"github.com/tomtom215/examwatch/internal/transition"
	ws "github.com/tomtom215/examwatch/internal/websocket"
)

const (
	testSessionSecret = "an-api-test-session-secret-of-32+chars"
	testGoodCode      = "good-code"
	testUpstreamToken = "upstream-tok"
	testOrigin        = "http://dashboard.test"
)

// fakeIntra serves the OAuth token endpoint and the v2 API routes the
// handlers use.
type fakeIntra struct {
	server *httptest.Server
	calls  map[string]*atomic.Int32
}

func (f *fakeIntra) count(route string) int {
	return int(f.calls[route].Load())
}

func newFakeIntra(t *testing.T) *fakeIntra {
	t.Helper()
	f := &fakeIntra{calls: make(map[string]*atomic.Int32)}
	mux := http.NewServeMux()

	handle := func(pattern string, h func(w http.ResponseWriter, r *http.Request)) {
		counter := &atomic.Int32{}
		f.calls[pattern] = counter
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			counter.Add(1)
			if !strings.HasPrefix(pattern, "POST /oauth") && r.Header.Get("Authorization") != "Bearer "+testUpstreamToken {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid_token"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			h(w, r)
		})
	}

	handle("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != testGoodCode {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		fmt.Fprintf(w, `{"access_token":%q,"token_type":"bearer","expires_in":7200}`, testUpstreamToken)
	})
	handle("GET /v2/users", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filter[login]"); got != "jdoe" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":7,"login":"jdoe","image":{"link":"https://cdn.test/jdoe.jpg"}}]`))
	})
	handle("GET /v2/users/{login}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":7,"login":%q,"image":{"link":"https://cdn.test/a.jpg"}}`, r.PathValue("login"))
	})
	handle("GET /v2/users/{login}/projects_users", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":1,"final_mark":null,"status":"in_progress","project":{"id":1320,"name":"Exam Rank 02","slug":"exam-rank-02"},`+
			`"teams":[{"id":9,"final_mark":42,"status":"in_progress","updated_at":"2026-10-18T09:00:00Z","users":[{"login":%q}]}]}]`, r.PathValue("login"))
	})
	handle("GET /v2/me/projects", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1324,"name":"Exam Rank 05","slug":"exam-rank-05"},
			{"id":42,"name":"Libft","slug":"libft"},
			{"id":1320,"name":"Exam Rank 02","slug":"exam-rank-02"},
			{"id":1301,"name":"C Piscine Exam 00","slug":"c-piscine-exam-00"},
			{"id":1320,"name":"Exam Rank 02","slug":"exam-rank-02"}
		]`))
	})
	handle("GET /v2/projects/{id}/teams", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"status":"in_progress","users":[{"login":"zed"},{"login":"Alice"}]},
			{"id":2,"status":"in_progress","users":[{"login":"alice"},{"login":"bob"}]}
		]`))
	})
	handle("GET /v2/campus/{id}/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprintf(w, `{"verbatim":true,"query":%q}`, r.URL.RawQuery)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// testEnv is a fully wired API over an in-memory store and a fake intra.
type testEnv struct {
	deps    HandlerDeps
	intra   *fakeIntra
	cfg     *config.Config
	handler *Handler
	router  http.Handler
	jwt     *auth.JWTManager
	vault   *auth.TokenVault
	manager *tracking.Manager
	tracker *budget.Tracker
	hub     *ws.Hub
}

func testConfig(intraURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{PublicURL: "http://localhost:8080", Environment: "development"},
		Upstream: config.UpstreamConfig{
			BaseURL:  intraURL + "/v2",
			CampusID: 1,
			CursusID: 21,
		},
		Budget: config.BudgetConfig{
			HourlyLimit:        1_000_000,
			SafetyMargin:       100,
			RequestsPerStudent: 1,
			BaseInterval:       time.Second,
			MinInterval:        time.Second,
			MaxInterval:        time.Hour,
			RateLimitCooldown:  time.Second,
		},
		Security: config.SecurityConfig{
			SessionSecret:     testSessionSecret,
			SessionTimeout:    time.Hour,
			CORSOrigins:       []string{testOrigin},
			RateLimitDisabled: true,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	fi := newFakeIntra(t)
	cfg := testConfig(fi.server.URL)

	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	tracker, err := budget.NewTracker(ctx, st)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	breaker := intra.DefaultBreakerConfig()
	breaker.Name = "api-test-" + t.Name()
	client, err := intra.NewClient(intra.ClientConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: 5 * time.Second,
		Transport: intra.NewRetryingTransport(intra.TransportConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			Recorder:     tracker,
		}),
		Breaker: breaker,
	})
	if err != nil {
		t.Fatalf("intra.NewClient: %v", err)
	}

	jwtManager, err := auth.NewJWTManager(testSessionSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	oauthClient, err := auth.NewOAuthClient(auth.OAuthConfig{
		ClientID:     "cid",
		ClientSecret: "csecret",
		AuthorizeURL: fi.server.URL + "/oauth/authorize",
		TokenURL:     fi.server.URL + "/oauth/token",
		RedirectURL:  "http://localhost:8080/api/auth/callback",
	})
	if err != nil {
		t.Fatalf("NewOAuthClient: %v", err)
	}
	vault := auth.NewTokenVault(st, nil, time.Hour)
	sessions := auth.NewSessionMiddleware(jwtManager, auth.CookieConfig{Secure: false, SameSite: http.SameSiteLaxMode})

	tree, err := supervisor.NewSupervisorTree(slog.New(slog.NewTextHandler(io.Discard, nil)), supervisor.TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	treeDone := tree.ServeBackground(ctx)

	hub := ws.NewHub()
	hubDone := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(hubDone)
	}()

	manager := tracking.NewManager(tracking.Config{
		Budget: budget.Budget{
			HourlyLimit:        cfg.Budget.HourlyLimit,
			SafetyMargin:       cfg.Budget.SafetyMargin,
			RequestsPerStudent: cfg.Budget.RequestsPerStudent,
			BaseInterval:       cfg.Budget.BaseInterval,
		},
		MinInterval:       cfg.Budget.MinInterval,
		MaxInterval:       cfg.Budget.MaxInterval,
		RateLimitCooldown: cfg.Budget.RateLimitCooldown,
		TickInterval:      50 * time.Millisecond,
		Effects:           transition.Durations{Celebration: 50 * time.Millisecond, Failure: 50 * time.Millisecond, Progress: 50 * time.Millisecond},
	}, tracking.Deps{
		Upstream:  client,
		Tokens:    func(owner string) student.TokenSource { return vault.Source(owner) },
		Tracker:   tracker,
		Publisher: hub,
		History:   history.NewRecorder(st),
		Host:      tree,
	})

	deps := HandlerDeps{
		Upstream:   client,
		OAuth:      oauthClient,
		JWT:        jwtManager,
		Sessions:   sessions,
		Vault:      vault,
		Tracking:   manager,
		Hub:        hub,
		Tracker:    tracker,
		History:    history.NewRecorder(st),
		StoreCheck: func(context.Context) error { return nil },
	}
	handler := NewHandler(cfg, deps)
	mw := NewChiMiddlewareFromSecurity(cfg.Security.CORSOrigins, 100, time.Minute, true)

	t.Cleanup(func() {
		cancel()
		<-treeDone
		<-hubDone
		_ = st.Close()
	})

	return &testEnv{
		deps:    deps,
		intra:   fi,
		cfg:     cfg,
		handler: handler,
		router:  NewRouter(handler, mw).SetupChi(),
		jwt:     jwtManager,
		vault:   vault,
		manager: manager,
		tracker: tracker,
		hub:     hub,
	}
}

// signIn stores an upstream token under a new session and returns the
// session id and its bearer token.
func (e *testEnv) signIn(t *testing.T) (sessionID, bearer string) {
	t.Helper()
	sessionID, err := e.vault.Save(context.Background(), &oauth2.Token{
		AccessToken: testUpstreamToken,
		Expiry:      time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("vault.Save: %v", err)
	}
	bearer, _, err = e.jwt.GenerateToken(sessionID)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return sessionID, bearer
}

// rebuild returns a router over the env's collaborators with some of them
// replaced.
func (e *testEnv) rebuild(mutate func(*HandlerDeps)) http.Handler {
	deps := e.deps
	mutate(&deps)
	mw := NewChiMiddlewareFromSecurity(e.cfg.Security.CORSOrigins, 100, time.Minute, true)
	return NewRouter(NewHandler(e.cfg, deps), mw).SetupChi()
}

func newBearerRequest(method, path, bearer string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// do sends a request through the router. body is marshalled unless it is
// a string.
func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// envelope is the decoded models.APIResponse with a raw payload.
type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) envelope {
	t.Helper()
	env := decodeEnvelope(t, rec)
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
	return env
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
