// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/tomtom215/examwatch/internal/api"
	"github.com/tomtom215/examwatch/internal/budget"
	"github.com/tomtom215/examwatch/internal/config"
	"github.com/tomtom215/examwatch/internal/history"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/store"
	"github.com/tomtom215/examwatch/internal/student"
	"github.com/tomtom215/examwatch/internal/supervisor"
	"github.com/tomtom215/examwatch/internal/supervisor/services"
	"github.com/tomtom215/examwatch/internal/tracking"
	ws "github.com/tomtom215/examwatch/internal/websocket"
)

// shutdownTimeout bounds the HTTP server drain on exit.
const shutdownTimeout = 10 * time.Second

//nolint:gocyclo // Main initialization function with sequential setup steps
func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("intra_base_url", cfg.Upstream.BaseURL).
		Int("hourly_limit", cfg.Budget.HourlyLimit).
		Bool("store_in_memory", cfg.Store.InMemory).
		Msg("Starting Examwatch")

	db, err := store.Open(store.Options{Path: cfg.Store.Path, InMemory: cfg.Store.InMemory})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The hourly counter survives restarts so a quick restart cannot
	// double the budget.
	tracker, err := budget.NewTracker(ctx, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load the hourly call counter")
	}
	logging.Info().Int("calls_this_hour", tracker.CurrentCount(ctx)).Msg("Budget tracker ready")

	intraClient, err := InitIntraClient(cfg, tracker)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create intra client")
	}

	authComponents, err := InitAuth(cfg, db)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authentication")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if slices.Contains(cfg.Security.CORSOrigins, "*") {
		logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); session cookies are exposed to every site")
	}

	// Bridges zerolog to slog for sutureslog.
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  shutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	wsHub := ws.NewHub()
	recorder := history.NewRecorder(db)

	manager := tracking.NewManager(TrackingConfig(cfg), tracking.Deps{
		Upstream: intraClient,
		Tokens: func(owner string) student.TokenSource {
			return authComponents.Vault.Source(owner)
		},
		Tracker:   tracker,
		Publisher: wsHub,
		History:   recorder,
		Host:      tree,
	})

	handler := api.NewHandler(cfg, api.HandlerDeps{
		Upstream:   intraClient,
		OAuth:      authComponents.OAuth,
		JWT:        authComponents.JWT,
		Sessions:   authComponents.Sessions,
		Vault:      authComponents.Vault,
		Tracking:   manager,
		Hub:        wsHub,
		Tracker:    tracker,
		History:    recorder,
		StoreCheck: db.Ping,
	})
	chiMiddleware := api.NewChiMiddlewareFromSecurity(
		cfg.Security.CORSOrigins,
		cfg.Security.RateLimitReqs,
		cfg.Security.RateLimitWindow,
		cfg.Security.RateLimitDisabled,
	)
	router := api.NewRouter(handler, chiMiddleware)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		// Websocket connections are hijacked, so the write timeout only
		// bounds regular responses.
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree.AddDataService(services.NewStoreGCService(db, 10*time.Minute))
	tree.AddMessagingService(services.NewWebSocketHubService(wsHub))
	tree.AddAPIService(services.NewHTTPServerService(server, shutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Int("active_sessions", manager.Count()).Msg("Application stopped gracefully")
}
