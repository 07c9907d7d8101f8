// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package scheduler sequences the refreshes of a tracking session.

A cycle walks the login list in order and fetches one student at a time,
waiting the current interval between two fetches and again before the next
cycle. Requests are never fanned out: the sequential loop is what keeps the
session inside the hourly budget the interval was computed from.

State machine:

	Idle -> RunningCycle(index) -> Waiting(deadline) -> RunningCycle ... -> Idle

A failed fetch aborts the rest of the cycle; the next cycle still starts
after one interval (plus a cooldown after a rate limit). An authentication
failure stops the scheduler, and so does removing the last login, which
also ends a pending wait at once.

A result for a login removed while its request was in flight is dropped.
*/
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
	"github.com/tomtom215/examwatch/internal/models"
	"github.com/tomtom215/examwatch/internal/student"
)

var (
	// ErrNoStudents ends Run when the login list is empty.
	ErrNoStudents = errors.New("no students to track")

	// ErrUnknownStudent is returned for a login that is not tracked.
	ErrUnknownStudent = errors.New("student is not tracked")

	// ErrDuplicateStudent is returned when adding a login twice.
	ErrDuplicateStudent = errors.New("student is already tracked")

	// ErrIntervalOutOfRange rejects a manual override outside [min,max].
	ErrIntervalOutOfRange = errors.New("interval out of range")
)

// Fetcher produces the state of one student.
type Fetcher interface {
	Fetch(ctx context.Context, login string) (*models.DerivedStudentState, error)
}

// Planner computes the interval for a number of tracked students.
type Planner interface {
	OptimalInterval(studentCount int) time.Duration
}

// HourResetter is told about every countdown tick so the hourly counter
// rolls over even when no request is sent.
type HourResetter interface {
	ResetIfHourChanged(ctx context.Context) (bool, error)
}

// Handler receives everything the scheduler observes.
type Handler interface {
	HandleResult(state *models.DerivedStudentState)
	HandleError(login string, err error)
	// IsFinished reports whether scheduled cycles skip the student.
	IsFinished(login string) bool
	HandleCountdown(c Countdown)
}

// Phase is the scheduler state.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseWaiting Phase = "waiting"
)

// Countdown describes a wait in progress.
type Countdown struct {
	Cycle     int           `json:"cycle"`
	Deadline  time.Time     `json:"deadline"`
	Remaining time.Duration `json:"remaining"`
	Interval  time.Duration `json:"interval"`
	// NextLogin is the student fetched when the wait ends, if known.
	NextLogin string `json:"next_login,omitempty"`
}

// Config configures a Scheduler.
type Config struct {
	// Name labels logs and metrics, usually the session id.
	Name    string
	Planner Planner
	// MinInterval and MaxInterval bound the manual override.
	MinInterval time.Duration
	MaxInterval time.Duration
	// RateLimitCooldown is added to the wait after a rate-limited fetch.
	RateLimitCooldown time.Duration
	// TickInterval is the countdown reporting period. Defaults to 1s.
	TickInterval time.Duration
	Resetter     HourResetter
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Logins    []string       `json:"logins"`
	Phase     Phase          `json:"phase"`
	Cycle     int            `json:"cycle"`
	Index     int            `json:"index"`
	Interval  time.Duration  `json:"interval"`
	Override  *time.Duration `json:"override,omitempty"`
	Deadline  *time.Time     `json:"deadline,omitempty"`
	NextLogin string         `json:"next_login,omitempty"`
}

// Scheduler drives the refresh loop of one session.
type Scheduler struct {
	cfg     Config
	fetcher Fetcher
	handler Handler

	mu        sync.Mutex
	logins    []string
	override  *time.Duration
	phase     Phase
	cycle     int
	index     int
	deadline  time.Time
	nextLogin string

	// emptied is signalled when RemoveStudent empties the list.
	emptied chan struct{}
}

// New creates a scheduler over logins. Logins are normalized and
// de-duplicated, keeping their first position.
func New(cfg Config, fetcher Fetcher, handler Handler, logins []string) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	s := &Scheduler{
		cfg:     cfg,
		fetcher: fetcher,
		handler: handler,
		phase:   PhaseIdle,
		emptied: make(chan struct{}, 1),
	}
	for _, login := range logins {
		login = student.NormalizeLogin(login)
		if login != "" && !slices.Contains(s.logins, login) {
			s.logins = append(s.logins, login)
		}
	}
	return s
}

// Run loops over cycles until ctx is cancelled, the login list is empty,
// or the upstream rejects the token.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logging.Ctx(ctx)
	defer s.setPhase(PhaseIdle)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		logins := s.Logins()
		if len(logins) == 0 {
			return ErrNoStudents
		}

		cycle := s.startCycle()
		start := time.Now()

		cooldown, err := s.runCycle(ctx, logins)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNoStudents) {
			return err
		}
		metrics.RecordCycle(time.Since(start), err != nil)

		if err != nil {
			if errors.Is(err, intra.ErrAuth) {
				log.Warn().Int("cycle", cycle).Msg("Access token rejected, stopping scheduler")
				return err
			}
			log.Warn().Err(err).Int("cycle", cycle).Dur("cooldown", cooldown).Msg("Cycle aborted")
		}

		next := s.firstEligible(s.Logins())
		if err := s.wait(ctx, cycle, s.CurrentInterval()+cooldown, next); err != nil {
			return err
		}
	}
}

// runCycle fetches every eligible student of the snapshot. It stops at the
// first failure and returns it with the extra cooldown it calls for.
func (s *Scheduler) runCycle(ctx context.Context, logins []string) (time.Duration, error) {
	for i, login := range logins {
		if !s.eligible(login) {
			continue
		}
		s.setIndex(i)

		state, err := s.fetcher.Fetch(ctx, login)
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err != nil {
			metrics.RecordFetchError(intra.Kind(err))
			if s.Tracks(login) {
				s.handler.HandleError(login, err)
			}
			if errors.Is(err, intra.ErrRateLimited) {
				return s.cfg.RateLimitCooldown, err
			}
			return 0, err
		}
		if s.Tracks(login) {
			s.handler.HandleResult(state)
		} else {
			logging.Ctx(ctx).Debug().Str("login", login).Msg("Dropped result of a removed student")
		}

		next := s.nextEligible(logins, i+1)
		if next == "" {
			return 0, nil
		}
		if err := s.wait(ctx, s.Cycle(), s.CurrentInterval(), next); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// wait blocks for d, reporting the remaining time every tick. The deadline
// is fixed when the wait starts, so ticks never drift. It returns
// ErrNoStudents as soon as the login list is emptied.
func (s *Scheduler) wait(ctx context.Context, cycle int, d time.Duration, next string) error {
	if s.empty() {
		return ErrNoStudents
	}
	deadline := time.Now().Add(d)
	s.setWaiting(deadline, next)
	metrics.SetPollingInterval(s.cfg.Name, d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	report := func() {
		if s.empty() {
			return
		}
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		s.handler.HandleCountdown(Countdown{
			Cycle:     cycle,
			Deadline:  deadline,
			Remaining: remaining,
			Interval:  d,
			NextLogin: next,
		})
	}
	report()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.emptied:
			if s.empty() {
				return ErrNoStudents
			}
		case <-timer.C:
			s.setPhase(PhaseRunning)
			return nil
		case <-ticker.C:
			if s.cfg.Resetter != nil {
				if _, err := s.cfg.Resetter.ResetIfHourChanged(ctx); err != nil {
					logging.Ctx(ctx).Warn().Err(err).Msg("Failed to reset hourly call counter")
				}
			}
			report()
		}
	}
}

// RefreshNow fetches one student immediately. It may run while a cycle is
// waiting and never touches the countdown. Finished students can be
// refreshed too.
func (s *Scheduler) RefreshNow(ctx context.Context, login string) (*models.DerivedStudentState, error) {
	login = student.NormalizeLogin(login)
	if !s.Tracks(login) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, login)
	}

	state, err := s.fetcher.Fetch(ctx, login)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		metrics.RecordFetchError(intra.Kind(err))
		if s.Tracks(login) {
			s.handler.HandleError(login, err)
		}
		return nil, err
	}
	if !s.Tracks(login) {
		// Removed while the request was in flight.
		return nil, fmt.Errorf("%w: %s", ErrUnknownStudent, login)
	}
	s.handler.HandleResult(state)
	return state, nil
}

// AddStudent appends a login to the list. It is picked up by the next cycle.
func (s *Scheduler) AddStudent(login string) error {
	login = student.NormalizeLogin(login)
	if login == "" {
		return fmt.Errorf("%w: empty login", ErrUnknownStudent)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.logins, login) {
		return fmt.Errorf("%w: %s", ErrDuplicateStudent, login)
	}
	s.logins = append(s.logins, login)
	return nil
}

// RemoveStudent drops a login. A cycle in progress skips it from then on,
// and a fetch already in flight for it is discarded. Removing the last
// login ends a pending wait.
func (s *Scheduler) RemoveStudent(login string) error {
	login = student.NormalizeLogin(login)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.Index(s.logins, login)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownStudent, login)
	}
	s.logins = slices.Delete(s.logins, i, i+1)
	if len(s.logins) == 0 {
		select {
		case s.emptied <- struct{}{}:
		default:
		}
	}
	return nil
}

// Emptied is signalled when the last login is removed. Only one goroutine
// should wait on it at a time.
func (s *Scheduler) Emptied() <-chan struct{} {
	return s.emptied
}

// SetIntervalOverride replaces the computed interval from the next wait on.
func (s *Scheduler) SetIntervalOverride(d time.Duration) error {
	if d < s.cfg.MinInterval || d > s.cfg.MaxInterval {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrIntervalOutOfRange, d, s.cfg.MinInterval, s.cfg.MaxInterval)
	}
	s.mu.Lock()
	s.override = &d
	s.mu.Unlock()
	return nil
}

// ClearOverride restores the computed interval from the next wait on.
func (s *Scheduler) ClearOverride() {
	s.mu.Lock()
	s.override = nil
	s.mu.Unlock()
}

// CurrentInterval is the interval the next wait will use.
func (s *Scheduler) CurrentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervalLocked()
}

func (s *Scheduler) intervalLocked() time.Duration {
	if s.override != nil {
		return *s.override
	}
	return s.cfg.Planner.OptimalInterval(len(s.logins))
}

// Logins returns a copy of the tracked logins in order.
func (s *Scheduler) Logins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.logins)
}

// Cycle returns the current cycle number, starting at 1.
func (s *Scheduler) Cycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycle
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Logins:    slices.Clone(s.logins),
		Phase:     s.phase,
		Cycle:     s.cycle,
		Index:     s.index,
		Interval:  s.intervalLocked(),
		NextLogin: s.nextLogin,
	}
	if s.override != nil {
		o := *s.override
		st.Override = &o
	}
	if s.phase == PhaseWaiting {
		d := s.deadline
		st.Deadline = &d
	}
	return st
}

func (s *Scheduler) startCycle() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++
	s.index = 0
	s.phase = PhaseRunning
	return s.cycle
}

func (s *Scheduler) setIndex(i int) {
	s.mu.Lock()
	s.index = i
	s.phase = PhaseRunning
	s.mu.Unlock()
}

func (s *Scheduler) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Scheduler) setWaiting(deadline time.Time, next string) {
	s.mu.Lock()
	s.phase = PhaseWaiting
	s.deadline = deadline
	s.nextLogin = next
	s.mu.Unlock()
}

// Tracks reports whether login is in the list.
func (s *Scheduler) Tracks(login string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.logins, student.NormalizeLogin(login))
}

func (s *Scheduler) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logins) == 0
}

// eligible reports whether a scheduled cycle should fetch login now.
func (s *Scheduler) eligible(login string) bool {
	return s.Tracks(login) && !s.handler.IsFinished(login)
}

func (s *Scheduler) nextEligible(logins []string, from int) string {
	for _, login := range logins[from:] {
		if s.eligible(login) {
			return login
		}
	}
	return ""
}

func (s *Scheduler) firstEligible(logins []string) string {
	return s.nextEligible(logins, 0)
}
