// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func echoSession() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SessionID(r.Context())))
	})
}

func TestSessionMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	m := newTestJWTManager(t)
	mw := NewSessionMiddleware(m, DefaultCookieConfig())
	token, _, _ := m.GenerateToken("session-abc")

	tests := []struct {
		name    string
		prepare func(*http.Request)
		want    string
	}{
		{
			name:    "cookie",
			prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token}) },
			want:    "session-abc",
		},
		{
			name:    "bearer header",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
			want:    "session-abc",
		},
		{
			name:    "no credentials",
			prepare: func(*http.Request) {},
			want:    "",
		},
		{
			name:    "tampered cookie",
			prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token + "x"}) },
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			mw.Authenticate(echoSession()).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", rec.Code)
			}
			if rec.Body.String() != tt.want {
				t.Errorf("session id = %q, want %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestSessionMiddleware_RequireSession(t *testing.T) {
	t.Parallel()

	m := newTestJWTManager(t)
	mw := NewSessionMiddleware(m, DefaultCookieConfig())
	handler := mw.RequireSession(echoSession())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}

	token, _, _ := m.GenerateToken("session-abc")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "session-abc" {
		t.Errorf("authenticated = %d %q", rec.Code, rec.Body.String())
	}
}

func TestSessionMiddleware_Cookies(t *testing.T) {
	t.Parallel()

	mw := NewSessionMiddleware(newTestJWTManager(t), CookieConfig{Secure: false})

	rec := httptest.NewRecorder()
	mw.SetSessionCookie(rec, "tok", time.Now().Add(time.Hour))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || c.Value != "tok" || !c.HttpOnly || c.Path != "/" {
		t.Errorf("session cookie = %+v", c)
	}

	rec = httptest.NewRecorder()
	mw.ClearSessionCookie(rec)
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 || cleared[0].Value != "" {
		t.Errorf("cleared cookie = %+v", cleared)
	}
}
