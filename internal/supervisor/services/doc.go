// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package services provides suture.Service wrappers for Examwatch components.

Each wrapper translates a component lifecycle (ListenAndServe, Run, a
periodic job) into suture's context-aware Serve pattern and names itself
through fmt.Stringer for suture's event log.

# Available Services

HTTP Server (HTTPServerService):
  - Wraps *http.Server with graceful shutdown
  - Configurable shutdown timeout for draining connections

WebSocket Hub (WebSocketHubService):
  - Delegates to websocket.Hub.RunWithContext
  - Closes every client stream on shutdown

Store GC (StoreGCService):
  - Runs badger value log garbage collection on a ticker
  - A GC error is logged and the next tick retries

# Error Handling

Return values determine supervisor behavior:

	ctx.Err()   -> shutdown requested, normal termination
	error       -> crashed, the supervisor restarts the service

Tracking sessions are not wrapped here; tracking.Session implements
suture.Service itself.
*/
package services
