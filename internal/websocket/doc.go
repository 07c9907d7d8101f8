// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package websocket streams tracking session events to proctor dashboards.

It uses gorilla/websocket with a hub-client architecture. Every client
subscribes to exactly one tracking session when it connects, and the hub
only delivers a session's messages to that session's subscribers.

	┌──────────┐
	│   Hub    │ ← Publish(sessionID, type, data)
	└────┬─────┘
	     │ filtered by session
	┌────┴─────┬─────────┐
	│ s1:c1    │ s1:c2   │ s2:c3
	└──────────┴─────────┘

Each client has two goroutines:
  - readPump: reads from the connection, answers application pings
  - writePump: writes queued messages and keepalive pings

Message Types:

  - snapshot: full board, sent once on connect
  - student_update: fresh derived state of one student
  - effect: an effect started (kind, burst, sound, expires_at)
  - effect_cleared: an effect expired and the student settled
  - countdown: time left until the next fetch, every second
  - fetch_error: a fetch failed; the last known state is kept
  - auth_required: the intra rejected the token, sign in again
  - session_stopped: the session ended; the server closes the stream

Usage Example:

	hub := websocket.NewHub()
	go func() { _ = hub.RunWithContext(ctx) }()

	hub.Publish(sessionID, websocket.MessageTypeCountdown, countdown)

The Run loop is supervised through the supervisor package.
*/
package websocket
