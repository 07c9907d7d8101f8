// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package tracking runs tracking sessions. A session owns one scheduler,
// one transition board and one identity cache, and is supervised by suture
// in the messaging layer of the supervisor tree.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/examwatch/internal/budget"
	"github.com/tomtom215/examwatch/internal/history"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
	"github.com/tomtom215/examwatch/internal/scheduler"
	"github.com/tomtom215/examwatch/internal/student"
	"github.com/tomtom215/examwatch/internal/transition"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("tracking session not found")

	// ErrNotOwner is returned when a proctor touches another proctor's session.
	ErrNotOwner = errors.New("tracking session belongs to another sign-in")

	// ErrNoLogins rejects a session without any login.
	ErrNoLogins = errors.New("at least one login is required")
)

// ServiceHost runs session services. *supervisor.SupervisorTree implements it.
type ServiceHost interface {
	AddTrackingService(svc suture.Service) suture.ServiceToken
	RemoveTrackingService(token suture.ServiceToken) error
}

// TokenSources returns the token source of a proctor session.
type TokenSources func(ownerSessionID string) student.TokenSource

// Config holds the settings every session is created with.
type Config struct {
	Budget            budget.Budget
	MinInterval       time.Duration
	MaxInterval       time.Duration
	RateLimitCooldown time.Duration
	TickInterval      time.Duration
	Effects           transition.Durations
}

// Deps are the shared collaborators of all sessions.
type Deps struct {
	Upstream  student.Upstream
	Tokens    TokenSources
	Tracker   *budget.Tracker
	Publisher Publisher
	History   *history.Recorder
	Host      ServiceHost
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Owner   string
	Logins  []string
	StartAt *time.Time
}

type managed struct {
	session *Session
	token   suture.ServiceToken
}

// Manager creates, lists and stops tracking sessions.
type Manager struct {
	cfg  Config
	deps Deps

	mu       sync.RWMutex
	sessions map[string]*managed
}

// NewManager creates a manager.
func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*managed),
	}
}

// Create starts a session and records it in the recent-session history.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	logins := normalizeLogins(req.Logins)
	if len(logins) == 0 {
		return nil, ErrNoLogins
	}

	id := uuid.NewString()
	fetcher := student.NewFetcher(m.deps.Upstream, m.deps.Tokens(req.Owner), student.NewIdentityCache())

	schedCfg := scheduler.Config{
		Planner:           m.cfg.Budget,
		MinInterval:       m.cfg.MinInterval,
		MaxInterval:       m.cfg.MaxInterval,
		RateLimitCooldown: m.cfg.RateLimitCooldown,
		TickInterval:      m.cfg.TickInterval,
	}
	deps := sessionDeps{
		fetcher:     fetcher,
		publisher:   m.deps.Publisher,
		hourlyLimit: m.cfg.Budget.HourlyLimit,
		onEnd:       m.forget,
	}
	if m.deps.Tracker != nil {
		schedCfg.Resetter = m.deps.Tracker
		deps.calls = m.deps.Tracker
	}

	session := newSession(id, req.Owner, req.StartAt, schedCfg, m.cfg.Effects, logins, deps)

	m.mu.Lock()
	entry := &managed{session: session}
	m.sessions[id] = entry
	m.mu.Unlock()

	// The token is stored after the session is visible so a session that
	// ends immediately can still be forgotten.
	token := m.deps.Host.AddTrackingService(session)
	m.mu.Lock()
	entry.token = token
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	metrics.TrackedStudents.Add(float64(len(logins)))

	if m.deps.History != nil {
		rec := history.RecentSession{Logins: logins, StartedAt: time.Now(), ScheduledStart: req.StartAt}
		if err := m.deps.History.Record(ctx, req.Owner, rec); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record session history")
		}
	}

	logging.Ctx(ctx).Info().
		Str("session_id", id).
		Strs("logins", logins).
		Msg("Tracking session created")
	return session, nil
}

// Get returns a session the owner may access.
func (m *Manager) Get(id, owner string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if owner != "" && entry.session.owner != owner {
		return nil, ErrNotOwner
	}
	return entry.session, nil
}

// List returns the sessions of an owner, oldest first. An empty owner
// lists every session.
func (m *Manager) List(owner string) []Summary {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, entry := range m.sessions {
		if owner == "" || entry.session.owner == owner {
			sessions = append(sessions, entry.session)
		}
	}
	m.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].createdAt.Equal(sessions[j].createdAt) {
			return sessions[i].id < sessions[j].id
		}
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})

	out := make([]Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	return out
}

// Stop ends a session and removes it from the supervisor.
func (m *Manager) Stop(ctx context.Context, id, owner string) error {
	session, err := m.Get(id, owner)
	if err != nil {
		return err
	}

	m.mu.Lock()
	entry, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	metrics.ActiveSessions.Set(float64(count))

	if err := m.deps.Host.RemoveTrackingService(entry.token); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", id).Msg("Failed to remove session service")
	}
	session.end(ReasonStopped)
	return nil
}

// StopOwner stops every session polling with the token of owner, for
// example after sign-out.
func (m *Manager) StopOwner(ctx context.Context, owner string) int {
	stopped := 0
	for _, s := range m.List(owner) {
		if err := m.Stop(ctx, s.ID, owner); err == nil {
			stopped++
		}
	}
	return stopped
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// forget drops a session that ended on its own. Suture already removed
// the service because it returned ErrDoNotRestart.
func (m *Manager) forget(id, reason string) {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()

	if ok {
		metrics.ActiveSessions.Set(float64(count))
		logging.Debug().Str("session_id", id).Str("reason", reason).Msg("Forgot ended tracking session")
	}
}

// Validate checks a create request without creating anything.
func (r CreateRequest) Validate(now time.Time) error {
	if len(normalizeLogins(r.Logins)) == 0 {
		return ErrNoLogins
	}
	if r.StartAt != nil && r.StartAt.Before(now.Add(-time.Minute)) {
		return fmt.Errorf("start_at %s is in the past", r.StartAt.Format(time.RFC3339))
	}
	return nil
}

func normalizeLogins(logins []string) []string {
	out := make([]string, 0, len(logins))
	for _, login := range logins {
		login = student.NormalizeLogin(login)
		if login != "" && !slices.Contains(out, login) {
			out = append(out, login)
		}
	}
	return out
}
