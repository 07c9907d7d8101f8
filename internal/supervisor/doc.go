// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package supervisor provides process supervision for Examwatch using suture v4.

The supervisor tree manages every long-running goroutine of the server:
automatic restart with backoff, failure isolation between layers and
graceful shutdown on context cancellation.

# Overview

	RootSupervisor ("examwatch")
	├── DataSupervisor ("data-layer")
	│   └── StoreGCService
	├── MessagingSupervisor ("messaging-layer")
	│   ├── WebSocketHubService
	│   └── tracking sessions, added and removed at runtime
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A tracking session that panics or fails is restarted on its own. A
session that ends for good (sign-in expired, no students left, stopped by
the proctor) returns suture.ErrDoNotRestart and drops out of the tree.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}

	tree.AddDataService(services.NewStoreGCService(db, 10*time.Minute))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	errCh := tree.ServeBackground(ctx)

The tree itself implements tracking.ServiceHost through AddTrackingService
and RemoveTrackingService.

# Configuration

TreeConfig controls restart behavior. Zero values fall back to suture's
defaults:
  - FailureThreshold: 5 failures
  - FailureDecay: 30 seconds
  - FailureBackoff: 15 seconds
  - ShutdownTimeout: 10 seconds

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return suture.ErrDoNotRestart: stopped for good, not restarted
  - Return any other error: crashed, restarted after backoff
  - Context canceled: shutdown requested, return promptly

# Debugging Shutdown Issues

UnstoppedServiceReport lists the services that ignored the shutdown
timeout, usually because they block on I/O without watching ctx.
*/
package supervisor
