// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config files searched in order. The first
// one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/examwatch/config.yaml",
	"/etc/examwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. Config files and the
// environment override them.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Host:        "0.0.0.0",
			Timeout:     30 * time.Second,
			Environment: "development",
			PublicURL:   "http://localhost:8080",
		},
		Upstream: UpstreamConfig{
			BaseURL:           "https://api.intra.42.fr/v2",
			AuthorizeURL:      "https://api.intra.42.fr/oauth/authorize",
			TokenURL:          "https://api.intra.42.fr/oauth/token",
			RedirectURI:       "http://localhost:8080/api/auth/callback",
			RequestTimeout:    15 * time.Second,
			RequestsPerSecond: 2,
		},
		Budget: BudgetConfig{
			HourlyLimit:        1200,
			SafetyMargin:       100,
			RequestsPerStudent: 1,
			BaseInterval:       4 * time.Second,
			MinInterval:        4 * time.Second,
			MaxInterval:        300 * time.Second,
			RateLimitCooldown:  60 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 2 * time.Second,
		},
		Effects: EffectsConfig{
			Celebration: 5 * time.Second,
			Failure:     3 * time.Second,
			Progress:    2 * time.Second,
		},
		Store: StoreConfig{
			Path:     "/data/examwatch",
			InMemory: false,
		},
		Security: SecurityConfig{
			SessionSecret:      "",
			SessionTimeout:     24 * time.Hour,
			TokenEncryptionKey: "",
			CORSOrigins:        []string{"http://localhost:8080"},
			RateLimitReqs:      100,
			RateLimitWindow:    time.Minute,
			RateLimitDisabled:  false,
			CookieSecure:       false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration from defaults, an optional YAML file and the
// environment, in that order of increasing priority, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// INTRA_CLIENT_ID -> upstream.client_id, HTTP_PORT -> server.port, ...
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when they come
// from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated strings for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unlisted variables are ignored so the process environment cannot leak
// into the config.
var envMappings = map[string]string{
	// Server
	"http_port":    "server.port",
	"http_host":    "server.host",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",
	"public_url":   "server.public_url",

	// Upstream
	"intra_base_url":            "upstream.base_url",
	"intra_authorize_url":       "upstream.authorize_url",
	"intra_token_url":           "upstream.token_url",
	"intra_client_id":           "upstream.client_id",
	"intra_client_secret":       "upstream.client_secret",
	"intra_redirect_uri":        "upstream.redirect_uri",
	"intra_request_timeout":     "upstream.request_timeout",
	"intra_requests_per_second": "upstream.requests_per_second",
	"intra_campus_id":           "upstream.campus_id",
	"intra_cursus_id":           "upstream.cursus_id",

	// Budget
	"budget_hourly_limit":         "budget.hourly_limit",
	"budget_safety_margin":        "budget.safety_margin",
	"budget_requests_per_student": "budget.requests_per_student",
	"budget_base_interval":        "budget.base_interval",
	"budget_min_interval":         "budget.min_interval",
	"budget_max_interval":         "budget.max_interval",
	"budget_rate_limit_cooldown":  "budget.rate_limit_cooldown",

	// Retry
	"retry_max_retries":   "retry.max_retries",
	"retry_initial_delay": "retry.initial_delay",

	// Effects
	"effect_celebration": "effects.celebration",
	"effect_failure":     "effects.failure",
	"effect_progress":    "effects.progress",

	// Store
	"store_path":      "store.path",
	"store_in_memory": "store.in_memory",

	// Security
	"session_secret":       "security.session_secret",
	"session_timeout":      "security.session_timeout",
	"token_encryption_key": "security.token_encryption_key",
	"cors_origins":         "security.cors_origins",
	"rate_limit_requests":  "security.rate_limit_reqs",
	"rate_limit_window":    "security.rate_limit_window",
	"disable_rate_limit":   "security.rate_limit_disabled",
	"cookie_secure":        "security.cookie_secure",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable to its koanf path, or ""
// to skip it.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
