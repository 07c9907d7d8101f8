// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package websocket

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/examwatch/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a new hub that stops with the test.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// createTestClient creates a client without a connection.
func createTestClient(hub *Hub, sessionID string) *Client {
	return &Client{id: clientIDCounter.Add(1), sessionID: sessionID, hub: hub, send: make(chan Message, 256)}
}

// registerClient registers a client and waits for registration to complete
func registerClient(hub *Hub, client *Client) {
	hub.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		return msg, ok
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("client %d received nothing", c.id)
		return Message{}, false
	}
}

func TestHub_ClientRegistration(t *testing.T) {
	hub := setupHub(t)

	client := createTestClient(hub, "s1")
	registerClient(hub, client)

	if hub.GetClientCount() != 1 || hub.SessionClientCount("s1") != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", hub.GetClientCount(), hub.SessionClientCount("s1"))
	}

	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.GetClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed after unregister")
	}

	// Unregistering twice must not close the channel again.
	hub.Unregister <- client
	time.Sleep(20 * time.Millisecond)
}

func TestHub_PublishIsScopedToSession(t *testing.T) {
	hub := setupHub(t)

	a1 := createTestClient(hub, "s1")
	a2 := createTestClient(hub, "s1")
	b := createTestClient(hub, "s2")
	for _, c := range []*Client{a1, a2, b} {
		registerClient(hub, c)
	}

	hub.Publish("s1", MessageTypeCountdown, map[string]int{"remaining_seconds": 4})

	for _, c := range []*Client{a1, a2} {
		msg, _ := receive(t, c)
		if msg.Type != MessageTypeCountdown || msg.SessionID != "s1" {
			t.Errorf("client %d got %+v", c.id, msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("published message without timestamp")
		}
	}

	select {
	case msg := <-b.send:
		t.Errorf("subscriber of s2 received %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PublishAndClose(t *testing.T) {
	hub := setupHub(t)

	stopped := createTestClient(hub, "s1")
	other := createTestClient(hub, "s2")
	registerClient(hub, stopped)
	registerClient(hub, other)

	hub.PublishAndClose("s1", MessageTypeSessionStopped, map[string]string{"reason": "stopped"})

	msg, ok := receive(t, stopped)
	if !ok || msg.Type != MessageTypeSessionStopped {
		t.Fatalf("first message = %+v (open=%v), want session_stopped", msg, ok)
	}
	if _, ok := receive(t, stopped); ok {
		t.Error("stream should be closed after the final message")
	}
	if hub.SessionClientCount("s1") != 0 || hub.SessionClientCount("s2") != 1 {
		t.Errorf("counts = %d/%d, want 0/1", hub.SessionClientCount("s1"), hub.SessionClientCount("s2"))
	}
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	hub := setupHub(t)

	slow := &Client{id: clientIDCounter.Add(1), sessionID: "s1", hub: hub, send: make(chan Message, 1)}
	registerClient(hub, slow)

	hub.Publish("s1", MessageTypeStudentUpdate, nil)
	hub.Publish("s1", MessageTypeStudentUpdate, nil)
	time.Sleep(50 * time.Millisecond)

	if hub.GetClientCount() != 0 {
		t.Errorf("slow client still registered")
	}
}

func TestHub_RunWithContext(t *testing.T) {
	tests := []struct {
		name       string
		ctx        func() (context.Context, context.CancelFunc)
		cancelNow  bool
		wantErr    error
		wantReason ShutdownReason
	}{
		{
			name:       "cancellation",
			ctx:        func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			cancelNow:  true,
			wantErr:    context.Canceled,
			wantReason: ShutdownReasonContextCanceled,
		},
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 50*time.Millisecond)
			},
			wantErr:    context.DeadlineExceeded,
			wantReason: ShutdownReasonContextDeadline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewHub()
			ctx, cancel := tt.ctx()
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- hub.RunWithContext(ctx) }()

			client := createTestClient(hub, "s1")
			hub.Register <- client

			if tt.cancelNow {
				cancel()
			}

			select {
			case err := <-errCh:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("RunWithContext() = %v, want %v", err, tt.wantErr)
				}
			case <-time.After(time.Second):
				t.Fatal("RunWithContext did not return")
			}

			if got := getShutdownReason(ctx); got != tt.wantReason {
				t.Errorf("reason = %q, want %q", got, tt.wantReason)
			}
			if hub.GetClientCount() != 0 {
				t.Error("clients must be closed on shutdown")
			}
			if _, ok := <-client.send; ok {
				t.Error("client channel should be closed on shutdown")
			}
		})
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{
		Type:       MessageTypeEffect,
		SessionID:  "s1",
		Data:       map[string]string{"login": "jdoe"},
		closeAfter: true,
	})
	if err != nil {
		t.Fatalf("MarshalMessage() error = %v", err)
	}
	s := string(data)
	for _, want := range []string{`"type":"effect"`, `"session_id":"s1"`, `"login":"jdoe"`} {
		if !strings.Contains(s, want) {
			t.Errorf("%s missing %s", s, want)
		}
	}
	if strings.Contains(s, "close") {
		t.Errorf("internal fields leaked: %s", s)
	}
}
