// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package main is the entry point for the Examwatch server.

Examwatch lets a proctor follow, live, how a room of 42 students is doing on
an intra exam. The proctor signs in with their intra account, picks the
logins to watch and the server polls the intra API in a round-robin cycle
paced to stay inside the hourly request budget. Progress, status changes
and the countdown to the next refresh are pushed to the dashboard over a
websocket.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	RootSupervisor ("examwatch")
	├── DataSupervisor ("data-layer")
	│   └── Store GC (badger value log)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocket Hub
	│   └── one service per tracking session
	└── APISupervisor ("api-layer")
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with defaults, an optional YAML file and the environment
 2. Logging: zerolog with JSON or console output
 3. Store: BadgerDB holding the hourly counter, session history and access tokens
 4. Budget tracker: restores the counter of the current hour
 5. Intra client: paced retrying transport behind a circuit breaker
 6. Authentication: OAuth client, session JWTs and the encrypted token vault
 7. Supervisor tree, websocket hub and tracking manager
 8. HTTP Server: Chi router with middleware stack

# Configuration

	Priority: Environment variables > Config file > Defaults

Core environment variables:

	# Server
	HTTP_PORT=8080
	PUBLIC_URL=https://examwatch.example.org
	ENVIRONMENT=production
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console

	# Intra application
	INTRA_CLIENT_ID=<uid>
	INTRA_CLIENT_SECRET=<secret>
	INTRA_REDIRECT_URI=https://examwatch.example.org/api/auth/callback
	INTRA_CAMPUS_ID=1
	INTRA_CURSUS_ID=21

	# Budget
	BUDGET_HOURLY_LIMIT=1200
	BUDGET_SAFETY_MARGIN=100

	# Security
	SESSION_SECRET=<32+ chars>
	TOKEN_ENCRYPTION_KEY=<base64, 16+ bytes>
	COOKIE_SECURE=true
	CORS_ORIGINS=https://examwatch.example.org

	# Store
	STORE_PATH=/data/examwatch

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every
tracking session, closes websocket clients and drains the HTTP server
within 10 seconds.
*/
package main
