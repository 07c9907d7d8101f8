// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/examwatch/internal/auth"
)

// minSessionSecretLength is the shortest accepted HS256 secret.
const minSessionSecretLength = 32

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateUpstream,
		c.validateBudget,
		c.validateRetry,
		c.validateEffects,
		c.validateStore,
		c.validateSecurity,
		c.validateLogging,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}

	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production, got %q", c.Server.Environment)
	}

	if err := validateHTTPURL(c.Server.PublicURL, "PUBLIC_URL", false); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateUpstream() error {
	u := c.Upstream

	if err := validateHTTPURL(u.BaseURL, "INTRA_BASE_URL", true); err != nil {
		return err
	}
	if err := validateHTTPURL(u.AuthorizeURL, "INTRA_AUTHORIZE_URL", true); err != nil {
		return err
	}
	if err := validateHTTPURL(u.TokenURL, "INTRA_TOKEN_URL", true); err != nil {
		return err
	}
	if err := validateHTTPURL(u.RedirectURI, "INTRA_REDIRECT_URI", true); err != nil {
		return err
	}

	if u.ClientID == "" {
		return fmt.Errorf("INTRA_CLIENT_ID is required")
	}
	if u.ClientSecret == "" {
		return fmt.Errorf("INTRA_CLIENT_SECRET is required")
	}
	if u.RequestTimeout <= 0 {
		return fmt.Errorf("INTRA_REQUEST_TIMEOUT must be positive")
	}
	if u.RequestsPerSecond < 0 {
		return fmt.Errorf("INTRA_REQUESTS_PER_SECOND must not be negative")
	}
	if u.CampusID < 0 || u.CursusID < 0 {
		return fmt.Errorf("INTRA_CAMPUS_ID and INTRA_CURSUS_ID must not be negative")
	}
	return nil
}

func (c *Config) validateBudget() error {
	b := c.Budget

	if b.HourlyLimit <= 0 {
		return fmt.Errorf("BUDGET_HOURLY_LIMIT must be positive")
	}
	if b.SafetyMargin < 0 || b.SafetyMargin >= b.HourlyLimit {
		return fmt.Errorf("BUDGET_SAFETY_MARGIN must be between 0 and BUDGET_HOURLY_LIMIT-1, got %d", b.SafetyMargin)
	}
	if b.RequestsPerStudent <= 0 {
		return fmt.Errorf("BUDGET_REQUESTS_PER_STUDENT must be positive")
	}
	if b.BaseInterval < time.Second {
		return fmt.Errorf("BUDGET_BASE_INTERVAL must be at least 1s, got %v", b.BaseInterval)
	}
	if b.MinInterval < time.Second {
		return fmt.Errorf("BUDGET_MIN_INTERVAL must be at least 1s, got %v", b.MinInterval)
	}
	if b.MaxInterval < b.MinInterval {
		return fmt.Errorf("BUDGET_MAX_INTERVAL (%v) must not be below BUDGET_MIN_INTERVAL (%v)", b.MaxInterval, b.MinInterval)
	}
	if b.RateLimitCooldown < 0 {
		return fmt.Errorf("BUDGET_RATE_LIMIT_COOLDOWN must not be negative")
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries < 0 || c.Retry.MaxRetries > 10 {
		return fmt.Errorf("RETRY_MAX_RETRIES must be between 0 and 10, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("RETRY_INITIAL_DELAY must be positive")
	}
	// A fetch that keeps hitting 429 must give up within one slow cycle.
	if backoff := RetryBackoff(c.Retry.MaxRetries, c.Retry.InitialDelay); backoff > c.Budget.MaxInterval {
		return fmt.Errorf("RETRY_MAX_RETRIES and RETRY_INITIAL_DELAY add up to %v of backoff, above BUDGET_MAX_INTERVAL (%v)",
			backoff, c.Budget.MaxInterval)
	}
	return nil
}

// RetryBackoff is the longest total wait of a doubling backoff, ignoring
// Retry-After: delay * (2^retries - 1).
func RetryBackoff(retries int, delay time.Duration) time.Duration {
	return delay * time.Duration((1<<uint(retries))-1)
}

func (c *Config) validateEffects() error {
	for name, d := range map[string]time.Duration{
		"EFFECT_CELEBRATION": c.Effects.Celebration,
		"EFFECT_FAILURE":     c.Effects.Failure,
		"EFFECT_PROGRESS":    c.Effects.Progress,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.InMemory && strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("STORE_PATH is required unless STORE_IN_MEMORY=true")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	s := c.Security

	if len(s.SessionSecret) < minSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
	}
	if s.SessionTimeout < time.Minute {
		return fmt.Errorf("SESSION_TIMEOUT must be at least 1m, got %v", s.SessionTimeout)
	}
	if _, err := auth.NewTokenEncryptor(&auth.TokenEncryptorConfig{MasterKey: s.TokenEncryptionKey}); err != nil {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY is invalid: %w", err)
	}

	if !s.RateLimitDisabled {
		if s.RateLimitReqs <= 0 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
		}
		if s.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
		}
	}

	if c.IsProduction() {
		if s.TokenEncryptionKey == "" {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY is required in production")
		}
		if !s.CookieSecure {
			return fmt.Errorf("COOKIE_SECURE must be true in production")
		}
		for _, origin := range s.CORSOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ORIGINS must not contain * in production because cookies are sent with credentials")
			}
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be trace, debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
