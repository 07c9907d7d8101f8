// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "examwatch-session"
	stateAudience   = "examwatch-oauth-state"

	// DefaultStateTTL bounds the time between the login redirect and the callback.
	DefaultStateTTL = 10 * time.Minute
)

// ErrInvalidToken is returned for any session or state token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the claims of a session token. The session id keys the
// encrypted upstream token in the store.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates the HS256 session cookie and the OAuth
// state parameter. Both use the same secret but different audiences, so a
// state can never be replayed as a session.
type JWTManager struct {
	secret   []byte
	timeout  time.Duration
	stateTTL time.Duration
	now      func() time.Time
}

// NewJWTManager creates a JWT manager. The secret must not be empty.
//
// Example:
//
//	jwtManager, err := auth.NewJWTManager(cfg.Security.SessionSecret, cfg.Security.SessionTimeout)
//	if err != nil {
//	    return fmt.Errorf("init JWT manager: %w", err)
//	}
func NewJWTManager(secret string, timeout time.Duration) (*JWTManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required but was empty")
	}
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &JWTManager{
		secret:   []byte(secret),
		timeout:  timeout,
		stateTTL: DefaultStateTTL,
		now:      time.Now,
	}, nil
}

// SessionTimeout returns the lifetime of a session token.
func (m *JWTManager) SessionTimeout() time.Duration {
	return m.timeout
}

// GenerateToken signs a session token for sessionID.
func (m *JWTManager) GenerateToken(sessionID string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.timeout)
	claims := &Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{sessionAudience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a session token and returns its claims.
// Tokens signed with anything but HMAC are rejected.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if err := m.parse(tokenString, claims, sessionAudience); err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrInvalidToken)
	}
	return claims, nil
}

// GenerateState returns a signed, short-lived OAuth state parameter.
func (m *JWTManager) GenerateState() (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{stateAudience},
		ExpiresAt: jwt.NewNumericDate(now.Add(m.stateTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// ValidateState checks a state parameter returned by the authorization server.
func (m *JWTManager) ValidateState(state string) error {
	if state == "" {
		return fmt.Errorf("%w: empty state", ErrInvalidToken)
	}
	return m.parse(state, &jwt.RegisteredClaims{}, stateAudience)
}

func (m *JWTManager) parse(tokenString string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
