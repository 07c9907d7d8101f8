// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/examwatch/internal/logging"
	ws "github.com/tomtom215/examwatch/internal/websocket"
)

// registerTimeout bounds the wait for the hub to accept a client.
const registerTimeout = 5 * time.Second

// SessionWebSocket streams the events of one session. The first message
// is a full snapshot; later messages are student_update, effect,
// effect_cleared, countdown, fetch_error, auth_required and
// session_stopped.
//
// Method: GET
// Path: /api/v1/sessions/{id}/ws
func (h *Handler) SessionWebSocket(w http.ResponseWriter, r *http.Request) {
	session, ok := h.sessionFromRequest(w, r)
	if !ok {
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered the client.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := ws.NewClient(h.wsHub, conn, session.ID())

	// The snapshot is queued before the client is registered so it is
	// always the first message, ahead of any event published meanwhile.
	client.Enqueue(ws.Message{
		Type: ws.MessageTypeSnapshot,
		Data: session.Snapshot(r.Context()),
	})

	timer := time.NewTimer(registerTimeout)
	defer timer.Stop()
	select {
	case h.wsHub.Register <- client:
	case <-timer.C:
		logging.Ctx(r.Context()).Error().Str("session_id", session.ID()).Msg("WebSocket hub did not accept the client")
		_ = conn.Close()
		return
	}
	client.Start()

	logging.Ctx(r.Context()).Debug().
		Str("session_id", session.ID()).
		Uint64("client_id", client.ID()).
		Msg("WebSocket client subscribed")
}
