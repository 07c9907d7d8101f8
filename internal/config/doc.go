// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package config loads and validates the Examwatch configuration.

# Configuration Sources

Configuration is layered with koanf v2, later layers winning:
  - Built-in defaults (defaultConfig)
  - An optional YAML file: $CONFIG_PATH, config.yaml, config.yml or
    /etc/examwatch/config.yaml
  - Environment variables listed in envMappings

Environment variables outside envMappings are ignored.

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default 0.0.0.0:8080), HTTP_TIMEOUT (30s)
  - ENVIRONMENT: development, staging or production
  - PUBLIC_URL: where proctors open the dashboard

Intra API:
  - INTRA_CLIENT_ID, INTRA_CLIENT_SECRET: OAuth application (required)
  - INTRA_REDIRECT_URI: must point at /api/auth/callback
  - INTRA_BASE_URL (https://api.intra.42.fr/v2): typed calls and the
    proxy are relative to it
  - INTRA_AUTHORIZE_URL, INTRA_TOKEN_URL
  - INTRA_REQUEST_TIMEOUT (15s), INTRA_REQUESTS_PER_SECOND (2)
  - INTRA_CAMPUS_ID, INTRA_CURSUS_ID: scope of exam lookups

Request budget:
  - BUDGET_HOURLY_LIMIT (1200), BUDGET_SAFETY_MARGIN (100)
  - BUDGET_REQUESTS_PER_STUDENT (1)
  - BUDGET_BASE_INTERVAL (4s): floor of the computed interval
  - BUDGET_MIN_INTERVAL, BUDGET_MAX_INTERVAL (4s, 300s): override bounds
  - BUDGET_RATE_LIMIT_COOLDOWN (60s)
  - RETRY_MAX_RETRIES (3), RETRY_INITIAL_DELAY (1s)

Card effects:
  - EFFECT_CELEBRATION (5s), EFFECT_FAILURE (3s), EFFECT_PROGRESS (2s)

Storage:
  - STORE_PATH (/data/examwatch), STORE_IN_MEMORY

Security:
  - SESSION_SECRET: at least 32 characters (required)
  - SESSION_TIMEOUT (24h)
  - TOKEN_ENCRYPTION_KEY: base64, at least 16 bytes; required in production
  - CORS_ORIGINS: comma-separated
  - RATE_LIMIT_REQUESTS (100), RATE_LIMIT_WINDOW (1m), DISABLE_RATE_LIMIT
  - COOKIE_SECURE: required in production

Logging:
  - LOG_LEVEL (info), LOG_FORMAT (json), LOG_CALLER

# Usage

	cfg, err := config.Load()
	if err != nil {
	    logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	server := &http.Server{Addr: cfg.Server.Addr()}
*/
package config
