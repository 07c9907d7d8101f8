// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/store"
)

// TokenStore is the persistence the vault needs. *store.Store implements it.
type TokenStore interface {
	SaveToken(ctx context.Context, rec store.TokenRecord, ttl time.Duration) error
	LoadToken(ctx context.Context, sessionID string) (*store.TokenRecord, error)
	DeleteToken(ctx context.Context, sessionID string) error
}

// TokenVault keeps the upstream access token of each signed-in proctor,
// encrypted, under an opaque session id.
type TokenVault struct {
	store     TokenStore
	encryptor *TokenEncryptor
	ttl       time.Duration
	now       func() time.Time
}

// NewTokenVault creates a vault. A nil encryptor stores tokens in clear.
// Records expire after ttl, or with the upstream token when that is sooner.
func NewTokenVault(s TokenStore, encryptor *TokenEncryptor, ttl time.Duration) *TokenVault {
	if !encryptor.IsEnabled() {
		logging.Warn().Msg("Token encryption disabled, access tokens are stored in clear")
	}
	return &TokenVault{store: s, encryptor: encryptor, ttl: ttl, now: time.Now}
}

// Save stores token under a new session id and returns the id.
func (v *TokenVault) Save(ctx context.Context, token *oauth2.Token) (string, error) {
	if token == nil || token.AccessToken == "" {
		return "", errors.New("empty access token")
	}

	access, err := v.encryptor.Encrypt(token.AccessToken)
	if err != nil {
		return "", fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := v.encryptor.Encrypt(token.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("encrypt refresh token: %w", err)
	}

	now := v.now()
	ttl := v.ttl
	if !token.Expiry.IsZero() {
		if remaining := token.Expiry.Sub(now); ttl <= 0 || remaining < ttl {
			ttl = remaining
		}
	}
	if ttl <= 0 {
		return "", errors.New("access token already expired")
	}

	sessionID := uuid.NewString()
	rec := store.TokenRecord{
		SessionID:        sessionID,
		EncryptedToken:   access,
		EncryptedRefresh: refresh,
		ExpiresAt:        now.Add(ttl),
		CreatedAt:        now,
	}
	if err := v.store.SaveToken(ctx, rec, ttl); err != nil {
		return "", fmt.Errorf("save token: %w", err)
	}
	return sessionID, nil
}

// Load returns the access token of a session, or "" when none is stored.
func (v *TokenVault) Load(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}
	rec, err := v.store.LoadToken(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load token: %w", err)
	}
	if !rec.ExpiresAt.IsZero() && !v.now().Before(rec.ExpiresAt) {
		return "", nil
	}

	token, err := v.encryptor.Decrypt(rec.EncryptedToken)
	if err != nil {
		// An undecryptable record is useless; drop it so the proctor signs in again.
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("Dropping undecryptable token")
		_ = v.store.DeleteToken(ctx, sessionID)
		return "", nil
	}
	return token, nil
}

// Delete removes the token of a session.
func (v *TokenVault) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return v.store.DeleteToken(ctx, sessionID)
}

// Source returns the token source of one session, for the student fetcher.
func (v *TokenVault) Source(sessionID string) *SessionTokenSource {
	return &SessionTokenSource{vault: v, sessionID: sessionID}
}

// SessionTokenSource hands out the token of one proctor session.
type SessionTokenSource struct {
	vault     *TokenVault
	sessionID string
}

// SessionID returns the session the source reads from.
func (s *SessionTokenSource) SessionID() string {
	return s.sessionID
}

// Token returns the current token, or "" after sign-out or expiry.
func (s *SessionTokenSource) Token(ctx context.Context) (string, error) {
	return s.vault.Load(ctx, s.sessionID)
}

// Invalidate drops a token the intra rejected.
func (s *SessionTokenSource) Invalidate(ctx context.Context) error {
	logging.Ctx(ctx).Info().Str("session_id", s.sessionID).Msg("Access token rejected, clearing it")
	return s.vault.Delete(ctx, s.sessionID)
}
