// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
	"github.com/tomtom215/examwatch/internal/models"
	"github.com/tomtom215/examwatch/internal/scheduler"
	"github.com/tomtom215/examwatch/internal/student"
	"github.com/tomtom215/examwatch/internal/transition"
	"github.com/tomtom215/examwatch/internal/websocket"
)

// Publisher delivers session events to the session's subscribers.
// *websocket.Hub implements it.
type Publisher interface {
	Publish(sessionID, messageType string, data interface{})
	PublishAndClose(sessionID, messageType string, data interface{})
}

// CallCounter reports the calls sent during the current hour.
type CallCounter interface {
	CurrentCount(ctx context.Context) int
}

// Stop reasons.
const (
	ReasonStopped      = "stopped"
	ReasonAuthRequired = "auth_required"
	ReasonNoStudents   = "no_students"
	ReasonShutdown     = "shutdown"
)

// Phases beyond the scheduler's own.
const (
	PhaseScheduled = "scheduled"
	PhaseStopped   = "stopped"
)

// FetchError is the last failure seen for a student.
type FetchError struct {
	Login   string    `json:"login"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// CountdownView is the wire form of a wait in progress.
type CountdownView struct {
	Cycle            int       `json:"cycle"`
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int       `json:"remaining_seconds"`
	IntervalSeconds  float64   `json:"interval_seconds"`
	NextLogin        string    `json:"next_login,omitempty"`
	// Scheduled is true while waiting for a delayed start.
	Scheduled bool `json:"scheduled,omitempty"`
}

// StudentView is one row of a session snapshot.
type StudentView struct {
	Login     string            `json:"login"`
	Entry     *transition.Entry `json:"entry,omitempty"`
	LastError *FetchError       `json:"last_error,omitempty"`
}

// Snapshot is the full view of a session.
type Snapshot struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	StartAt         *time.Time     `json:"start_at,omitempty"`
	Phase           string         `json:"phase"`
	Cycle           int            `json:"cycle"`
	Students        []StudentView  `json:"students"`
	IntervalSeconds float64        `json:"interval_seconds"`
	OverrideSeconds *float64       `json:"override_seconds,omitempty"`
	Countdown       *CountdownView `json:"countdown,omitempty"`
	CallsThisHour   int            `json:"calls_this_hour"`
	HourlyLimit     int            `json:"hourly_limit"`
}

// Summary is the list form of a session.
type Summary struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	StartAt   *time.Time `json:"start_at,omitempty"`
	Phase     string     `json:"phase"`
	Logins    []string   `json:"logins"`
	Cycle     int        `json:"cycle"`
}

// sessionDeps are the collaborators a session is built from.
type sessionDeps struct {
	fetcher     *student.Fetcher
	publisher   Publisher
	calls       CallCounter
	hourlyLimit int
	onEnd       func(id, reason string)
}

// Session is one tracking session: a scheduler, a transition board and
// an identity cache, run as a supervised service.
type Session struct {
	id        string
	owner     string
	createdAt time.Time
	startAt   *time.Time

	sched     *scheduler.Scheduler
	board     *transition.Board
	fetcher   *student.Fetcher
	publisher Publisher
	calls     CallCounter
	limit     int
	onEnd     func(id, reason string)

	// roster serializes membership changes with the application of
	// results, so a removed login never gets a row back.
	roster sync.Mutex

	mu        sync.Mutex
	errors    map[string]FetchError
	countdown *CountdownView
	scheduled bool
	stopped   bool
	endOnce   sync.Once
}

func newSession(id, owner string, startAt *time.Time, schedCfg scheduler.Config, durations transition.Durations, logins []string, deps sessionDeps) *Session {
	s := &Session{
		id:        id,
		owner:     owner,
		createdAt: time.Now(),
		startAt:   startAt,
		fetcher:   deps.fetcher,
		publisher: deps.publisher,
		calls:     deps.calls,
		limit:     deps.hourlyLimit,
		onEnd:     deps.onEnd,
		errors:    make(map[string]FetchError),
	}
	s.board = transition.NewBoard(transition.BoardOptions{
		Durations: durations,
		OnEffect:  s.handleEffect,
		OnCleared: s.handleCleared,
	})
	schedCfg.Name = id
	s.sched = scheduler.New(schedCfg, deps.fetcher, s, logins)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Owner returns the proctor session whose token the session polls with.
func (s *Session) Owner() string { return s.owner }

// String implements fmt.Stringer for suture logs.
func (s *Session) String() string { return "tracking-session-" + s.id }

// Serve implements suture.Service. It waits for a delayed start, then runs
// the scheduler. A session that ends on its own is not restarted.
func (s *Session) Serve(ctx context.Context) error {
	ctx = logging.ContextWithSessionID(ctx, s.id)
	log := logging.Ctx(ctx)

	err := s.waitForStart(ctx)
	if err == nil {
		log.Info().Int("students", len(s.sched.Logins())).Msg("Tracking session started")
		err = s.sched.Run(ctx)
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, intra.ErrAuth):
		s.end(ReasonAuthRequired)
		return suture.ErrDoNotRestart
	case errors.Is(err, scheduler.ErrNoStudents):
		s.end(ReasonNoStudents)
		return suture.ErrDoNotRestart
	default:
		log.Error().Err(err).Msg("Tracking session failed")
		return err
	}
}

// waitForStart publishes a countdown every second until the start time.
func (s *Session) waitForStart(ctx context.Context) error {
	if s.startAt == nil || !time.Now().Before(*s.startAt) {
		return nil
	}
	startAt := *s.startAt

	s.mu.Lock()
	s.scheduled = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.scheduled = false
		s.mu.Unlock()
	}()

	logging.Ctx(ctx).Info().Time("start_at", startAt).Msg("Tracking session scheduled")

	timer := time.NewTimer(time.Until(startAt))
	defer timer.Stop()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	report := func() {
		view := CountdownView{
			Deadline:         startAt,
			RemainingSeconds: remainingSeconds(time.Until(startAt)),
			NextLogin:        firstOf(s.sched.Logins()),
			Scheduled:        true,
		}
		s.setCountdown(&view)
		s.publisher.Publish(s.id, websocket.MessageTypeCountdown, view)
	}
	report()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.sched.Emptied():
			if len(s.sched.Logins()) == 0 {
				return scheduler.ErrNoStudents
			}
		case <-timer.C:
			return nil
		case <-ticker.C:
			report()
		}
	}
}

// HandleResult implements scheduler.Handler. Results for logins that are
// no longer tracked are ignored.
func (s *Session) HandleResult(state *models.DerivedStudentState) {
	s.roster.Lock()
	defer s.roster.Unlock()
	if !s.sched.Tracks(state.Login()) {
		return
	}

	s.mu.Lock()
	delete(s.errors, state.Login())
	s.mu.Unlock()

	s.board.Apply(*state)
	entry, ok := s.board.Get(state.Login())
	if !ok {
		return
	}
	s.publisher.Publish(s.id, websocket.MessageTypeStudentUpdate, StudentView{Login: state.Login(), Entry: &entry})
}

// HandleError implements scheduler.Handler. The last known state of the
// student stays on the board.
func (s *Session) HandleError(login string, err error) {
	s.roster.Lock()
	defer s.roster.Unlock()
	if !s.sched.Tracks(login) {
		return
	}

	fe := FetchError{Login: login, Kind: intra.Kind(err), Message: errorMessage(err), At: time.Now()}

	s.mu.Lock()
	s.errors[login] = fe
	s.mu.Unlock()

	s.publisher.Publish(s.id, websocket.MessageTypeFetchError, fe)
	if errors.Is(err, intra.ErrAuth) {
		s.publisher.Publish(s.id, websocket.MessageTypeAuthRequired, map[string]string{"message": fe.Message})
	}
}

// IsFinished implements scheduler.Handler.
func (s *Session) IsFinished(login string) bool {
	return s.board.IsFinished(login)
}

// HandleCountdown implements scheduler.Handler.
func (s *Session) HandleCountdown(c scheduler.Countdown) {
	view := CountdownView{
		Cycle:            c.Cycle,
		Deadline:         c.Deadline,
		RemainingSeconds: remainingSeconds(c.Remaining),
		IntervalSeconds:  c.Interval.Seconds(),
		NextLogin:        c.NextLogin,
	}
	s.setCountdown(&view)
	s.publisher.Publish(s.id, websocket.MessageTypeCountdown, view)
}

func (s *Session) handleEffect(e transition.EffectEvent) {
	s.publisher.Publish(s.id, websocket.MessageTypeEffect, e)
}

func (s *Session) handleCleared(e transition.ClearedEvent) {
	s.publisher.Publish(s.id, websocket.MessageTypeEffectCleared, e)
}

func (s *Session) setCountdown(view *CountdownView) {
	s.mu.Lock()
	s.countdown = view
	s.mu.Unlock()
}

// RefreshNow fetches one student immediately.
func (s *Session) RefreshNow(ctx context.Context, login string) (*models.DerivedStudentState, error) {
	ctx = logging.ContextWithSessionID(ctx, s.id)
	return s.sched.RefreshNow(ctx, login)
}

// AddStudent starts tracking a login from the next cycle on.
func (s *Session) AddStudent(login string) error {
	s.roster.Lock()
	defer s.roster.Unlock()
	if err := s.sched.AddStudent(login); err != nil {
		return err
	}
	metrics.TrackedStudents.Inc()
	return nil
}

// RemoveStudent stops tracking a login and forgets everything about it.
func (s *Session) RemoveStudent(login string) error {
	login = student.NormalizeLogin(login)

	s.roster.Lock()
	defer s.roster.Unlock()
	if err := s.sched.RemoveStudent(login); err != nil {
		return err
	}
	s.board.Remove(login)
	s.fetcher.Identities().Forget(login)

	s.mu.Lock()
	delete(s.errors, login)
	s.mu.Unlock()

	metrics.TrackedStudents.Dec()
	return nil
}

// SetInterval sets the manual interval override.
func (s *Session) SetInterval(d time.Duration) error {
	return s.sched.SetIntervalOverride(d)
}

// ClearInterval returns to the computed interval.
func (s *Session) ClearInterval() {
	s.sched.ClearOverride()
}

// Snapshot returns the full view of the session.
func (s *Session) Snapshot(ctx context.Context) Snapshot {
	status := s.sched.Status()
	entries := s.board.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:              s.id,
		CreatedAt:       s.createdAt,
		StartAt:         s.startAt,
		Phase:           s.phaseLocked(status.Phase),
		Cycle:           status.Cycle,
		Students:        make([]StudentView, 0, len(status.Logins)),
		IntervalSeconds: status.Interval.Seconds(),
		HourlyLimit:     s.limit,
	}
	if status.Override != nil {
		o := status.Override.Seconds()
		snap.OverrideSeconds = &o
	}
	if s.countdown != nil && (s.scheduled || status.Phase == scheduler.PhaseWaiting) {
		c := *s.countdown
		if !c.Deadline.IsZero() {
			c.RemainingSeconds = remainingSeconds(time.Until(c.Deadline))
		}
		snap.Countdown = &c
	}
	if s.calls != nil {
		snap.CallsThisHour = s.calls.CurrentCount(ctx)
	}

	for _, login := range status.Logins {
		view := StudentView{Login: login}
		if entry, ok := entries[login]; ok {
			e := entry
			view.Entry = &e
		}
		if fe, ok := s.errors[login]; ok {
			f := fe
			view.LastError = &f
		}
		snap.Students = append(snap.Students, view)
	}
	return snap
}

// Summary returns the list form of the session.
func (s *Session) Summary() Summary {
	status := s.sched.Status()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:        s.id,
		CreatedAt: s.createdAt,
		StartAt:   s.startAt,
		Phase:     s.phaseLocked(status.Phase),
		Logins:    status.Logins,
		Cycle:     status.Cycle,
	}
}

func (s *Session) phaseLocked(p scheduler.Phase) string {
	switch {
	case s.stopped:
		return PhaseStopped
	case s.scheduled:
		return PhaseScheduled
	default:
		return string(p)
	}
}

// end releases the session once, whatever ended it.
func (s *Session) end(reason string) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		s.board.Close()
		metrics.ForgetSession(s.id)
		metrics.TrackedStudents.Sub(float64(len(s.sched.Logins())))
		s.publisher.PublishAndClose(s.id, websocket.MessageTypeSessionStopped, map[string]string{"reason": reason})

		logging.Info().Str("session_id", s.id).Str("reason", reason).Msg("Tracking session ended")
		if s.onEnd != nil {
			s.onEnd(s.id, reason)
		}
	})
}

func remainingSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

func firstOf(logins []string) string {
	if len(logins) == 0 {
		return ""
	}
	return logins[0]
}

func errorMessage(err error) string {
	var se *intra.StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return err.Error()
}
