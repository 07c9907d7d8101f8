// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path (e.g., SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for WebSocket communication
const (
	MessageTypeSnapshot       = "snapshot"
	MessageTypeStudentUpdate  = "student_update"
	MessageTypeEffect         = "effect"
	MessageTypeEffectCleared  = "effect_cleared"
	MessageTypeCountdown      = "countdown"
	MessageTypeFetchError     = "fetch_error"
	MessageTypeAuthRequired   = "auth_required"
	MessageTypeSessionStopped = "session_stopped"
	MessageTypePing           = "ping"
	MessageTypePong           = "pong"
)

// Message represents a WebSocket message
type Message struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`

	// closeAfter asks the hub to close the session's clients once the
	// message is queued to them.
	closeAfter bool
}

// Hub maintains the set of active clients and delivers each session's
// messages to the clients subscribed to it.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every client.
//
// Lifecycle events are handled before messages so that a client registered
// just before a publish receives it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
			if message.closeAfter {
				h.closeSessionClients(message.SessionID)
			}
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Set(float64(total))
	logging.Info().
		Str("session_id", client.sessionID).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

// logGracefulShutdown closes all clients and logs the shutdown. The context
// error is not logged as an error; cancellation is the expected path.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return ShutdownReasonContextDeadline
	default:
		return ShutdownReasonContextCanceled
	}
}

// sortedClientsLocked returns the clients matching keep in ID order.
func (h *Hub) sortedClientsLocked(keep func(*Client) bool) []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if keep(client) {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients delivers a message to the subscribers of its session
// in client ID order. A client whose queue is full is dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClientsLocked(func(c *Client) bool {
		return c.sessionID == message.SessionID
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.WithLabelValues(message.Type).Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().
			Str("session_id", client.sessionID).
			Uint64("client_id", client.id).
			Msg("websocket client too slow, disconnecting")
	}
	if len(toRemove) > 0 {
		metrics.WSConnections.Set(float64(len(h.clients)))
	}
}

// closeSessionClients closes the subscribers of one session.
func (h *Hub) closeSessionClients(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClientsLocked(func(c *Client) bool {
		return c.sessionID == sessionID
	})
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sortedClientsLocked(func(*Client) bool { return true })
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.WSConnections.Set(0)
}

// Publish queues a message for the subscribers of a session. It never
// blocks; when the queue is full the message is dropped.
func (h *Hub) Publish(sessionID, messageType string, data interface{}) {
	h.enqueue(Message{
		Type:      messageType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// PublishAndClose publishes a final message for a session and then closes
// the streams of its subscribers.
func (h *Hub) PublishAndClose(sessionID, messageType string, data interface{}) {
	h.enqueue(Message{
		Type:       messageType,
		SessionID:  sessionID,
		Timestamp:  time.Now(),
		Data:       data,
		closeAfter: true,
	})
}

func (h *Hub) enqueue(message Message) {
	sessionID, messageType := message.SessionID, message.Type
	select {
	case h.broadcast <- message:
	default:
		metrics.WSMessagesDropped.Inc()
		logging.Warn().
			Str("session_id", sessionID).
			Str("type", messageType).
			Msg("websocket broadcast channel full, message dropped")
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SessionClientCount returns the number of subscribers of a session.
func (h *Hub) SessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for client := range h.clients {
		if client.sessionID == sessionID {
			n++
		}
	}
	return n
}

// MarshalMessage serializes a message for WebSocket transmission.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
