// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestNewOAuthClient_Validation(t *testing.T) {
	t.Parallel()

	valid := OAuthConfig{
		ClientID:     "uid",
		AuthorizeURL: "https://api.intra.42.fr/oauth/authorize",
		TokenURL:     "https://api.intra.42.fr/oauth/token",
		RedirectURL:  "http://localhost:3857/api/auth/callback",
	}

	tests := []struct {
		name    string
		mutate  func(*OAuthConfig)
		wantErr bool
	}{
		{name: "valid", mutate: func(*OAuthConfig) {}},
		{name: "missing client id", mutate: func(c *OAuthConfig) { c.ClientID = "" }, wantErr: true},
		{name: "missing token url", mutate: func(c *OAuthConfig) { c.TokenURL = "" }, wantErr: true},
		{name: "missing redirect", mutate: func(c *OAuthConfig) { c.RedirectURL = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewOAuthClient(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOAuthClient() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestOAuthClient_AuthCodeURL(t *testing.T) {
	t.Parallel()

	c, err := NewOAuthClient(OAuthConfig{
		ClientID:     "uid",
		AuthorizeURL: "https://api.intra.42.fr/oauth/authorize",
		TokenURL:     "https://api.intra.42.fr/oauth/token",
		RedirectURL:  "http://localhost:3857/api/auth/callback",
	})
	if err != nil {
		t.Fatalf("NewOAuthClient() error = %v", err)
	}

	raw := c.AuthCodeURL("state-xyz")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":     "uid",
		"state":         "state-xyz",
		"response_type": "code",
		"redirect_uri":  "http://localhost:3857/api/auth/callback",
		"scope":         "public projects",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestOAuthClient_Exchange(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("code") != "good-code" || r.PostForm.Get("client_secret") != "s3cret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":7200,"refresh_token":"ref-456"}`))
	}))
	defer server.Close()

	c, err := NewOAuthClient(OAuthConfig{
		ClientID:     "uid",
		ClientSecret: "s3cret",
		AuthorizeURL: server.URL + "/oauth/authorize",
		TokenURL:     server.URL + "/oauth/token",
		RedirectURL:  "http://localhost/cb",
	})
	if err != nil {
		t.Fatalf("NewOAuthClient() error = %v", err)
	}

	token, err := c.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if token.AccessToken != "tok-123" || token.RefreshToken != "ref-456" {
		t.Errorf("token = %+v", token)
	}
	if token.Expiry.IsZero() {
		t.Error("expiry should be set from expires_in")
	}

	if _, err := c.Exchange(context.Background(), "bad-code"); err == nil {
		t.Error("Exchange() with a rejected code should fail")
	}
	if _, err := c.Exchange(context.Background(), ""); !errors.Is(err, ErrMissingCode) {
		t.Errorf("Exchange(\"\") error = %v, want ErrMissingCode", err)
	}
}
