// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package main

import (
	"fmt"
	"math"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/budget"
	"github.com/tomtom215/examwatch/internal/config"
	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/tracking"
	"github.com/tomtom215/examwatch/internal/transition"
)

// AuthComponents holds the sign-in machinery.
type AuthComponents struct {
	JWT      *auth.JWTManager
	OAuth    *auth.OAuthClient
	Vault    *auth.TokenVault
	Sessions *auth.SessionMiddleware
}

// InitAuth builds the session signer, the OAuth client and the token vault.
func InitAuth(cfg *config.Config, tokens auth.TokenStore) (*AuthComponents, error) {
	jwtManager, err := auth.NewJWTManager(cfg.Security.SessionSecret, cfg.Security.SessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("jwt manager: %w", err)
	}

	oauthClient, err := auth.NewOAuthClient(auth.OAuthConfig{
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		AuthorizeURL: cfg.Upstream.AuthorizeURL,
		TokenURL:     cfg.Upstream.TokenURL,
		RedirectURL:  cfg.Upstream.RedirectURI,
		HTTPTimeout:  cfg.Upstream.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("oauth client: %w", err)
	}

	var encryptor *auth.TokenEncryptor
	if cfg.Security.TokenEncryptionKey != "" {
		encryptor, err = auth.NewTokenEncryptor(&auth.TokenEncryptorConfig{MasterKey: cfg.Security.TokenEncryptionKey})
		if err != nil {
			return nil, fmt.Errorf("token encryptor: %w", err)
		}
	}

	cookie := auth.DefaultCookieConfig()
	cookie.Secure = cfg.Security.CookieSecure
	if !cookie.Secure {
		logging.Warn().Msg("Session cookie is sent over plain HTTP (COOKIE_SECURE=false)")
	}

	return &AuthComponents{
		JWT:      jwtManager,
		OAuth:    oauthClient,
		Vault:    auth.NewTokenVault(tokens, encryptor, cfg.Security.SessionTimeout),
		Sessions: auth.NewSessionMiddleware(jwtManager, cookie),
	}, nil
}

// InitIntraClient builds the intra client on top of the paced, retrying
// transport. Every attempt is recorded against the hourly budget.
func InitIntraClient(cfg *config.Config, recorder intra.CallRecorder) (*intra.Client, error) {
	return intra.NewClient(intra.ClientConfig{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
		Transport: intra.NewRetryingTransport(intra.TransportConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			Limiter:      newLimiter(cfg.Upstream.RequestsPerSecond),
			Recorder:     recorder,
			Base:         http.DefaultTransport,
		}),
		Breaker: intra.DefaultBreakerConfig(),
	})
}

// newLimiter paces outbound attempts at rps with a burst of one second's
// worth of requests. A non-positive rps disables pacing.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// TrackingConfig maps the configuration onto the settings every tracking
// session is created with.
func TrackingConfig(cfg *config.Config) tracking.Config {
	return tracking.Config{
		Budget: budget.Budget{
			HourlyLimit:        cfg.Budget.HourlyLimit,
			SafetyMargin:       cfg.Budget.SafetyMargin,
			RequestsPerStudent: cfg.Budget.RequestsPerStudent,
			BaseInterval:       cfg.Budget.BaseInterval,
		},
		MinInterval:       cfg.Budget.MinInterval,
		MaxInterval:       cfg.Budget.MaxInterval,
		RateLimitCooldown: cfg.Budget.RateLimitCooldown,
		Effects: transition.Durations{
			Celebration: cfg.Effects.Celebration,
			Failure:     cfg.Effects.Failure,
			Progress:    cfg.Effects.Progress,
		},
	}
}
