// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
//
// Loading order (Koanf v2):
//  1. Defaults from defaultConfig()
//  2. Optional YAML file (CONFIG_PATH, then config.yaml)
//  3. Environment variables
//
// Config is immutable after Load() and safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Upstream UpstreamConfig `koanf:"upstream"`
	Budget   BudgetConfig   `koanf:"budget"`
	Retry    RetryConfig    `koanf:"retry"`
	Effects  EffectsConfig  `koanf:"effects"`
	Store    StoreConfig    `koanf:"store"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`
	// Environment is "development", "staging" or "production". Production
	// enables the stricter secret checks in Validate.
	Environment string `koanf:"environment"`
	// PublicURL is where proctors reach the dashboard. OAuth callbacks
	// redirect back to it.
	PublicURL string `koanf:"public_url"`
}

// Addr returns host:port for http.Server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig describes the intra API and its OAuth application.
type UpstreamConfig struct {
	BaseURL      string `koanf:"base_url"`
	AuthorizeURL string `koanf:"authorize_url"`
	TokenURL     string `koanf:"token_url"`
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURI  string `koanf:"redirect_uri"`

	RequestTimeout time.Duration `koanf:"request_timeout"`
	// RequestsPerSecond paces every outbound attempt. 0 disables pacing.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// CampusID and CursusID scope the exam lookups. 0 means unscoped.
	CampusID int `koanf:"campus_id"`
	CursusID int `koanf:"cursus_id"`
}

// BudgetConfig holds the hourly request budget and interval bounds.
type BudgetConfig struct {
	HourlyLimit        int `koanf:"hourly_limit"`
	SafetyMargin       int `koanf:"safety_margin"`
	RequestsPerStudent int `koanf:"requests_per_student"`

	// BaseInterval is the floor of the computed interval.
	BaseInterval time.Duration `koanf:"base_interval"`
	// MinInterval and MaxInterval bound the manual override.
	MinInterval time.Duration `koanf:"min_interval"`
	MaxInterval time.Duration `koanf:"max_interval"`

	RateLimitCooldown time.Duration `koanf:"rate_limit_cooldown"`
}

// RetryConfig controls retries of rate limited requests.
type RetryConfig struct {
	MaxRetries   int           `koanf:"max_retries"`
	InitialDelay time.Duration `koanf:"initial_delay"`
}

// EffectsConfig holds how long each visual effect stays on a card.
type EffectsConfig struct {
	Celebration time.Duration `koanf:"celebration"`
	Failure     time.Duration `koanf:"failure"`
	Progress    time.Duration `koanf:"progress"`
}

// StoreConfig configures the badger store.
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// SecurityConfig holds session, cookie and HTTP protection settings.
type SecurityConfig struct {
	// SessionSecret signs session and OAuth state JWTs (HS256).
	SessionSecret  string        `koanf:"session_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// TokenEncryptionKey encrypts stored intra tokens. Empty stores them
	// unencrypted.
	TokenEncryptionKey string `koanf:"token_encryption_key"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CookieSecure      bool          `koanf:"cookie_secure"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller adds file and line to every entry.
	// Default: false
	Caller bool `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
