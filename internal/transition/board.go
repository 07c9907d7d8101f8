// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package transition

import (
	"sync"
	"time"

	"github.com/tomtom215/examwatch/internal/metrics"
	"github.com/tomtom215/examwatch/internal/models"
)

// Mode is the display mode of a student.
type Mode string

const (
	ModeTracking  Mode = "tracking"
	ModeAnimating Mode = "animating"
	ModeFinished  Mode = "finished"
)

// Durations sets how long each effect stays active.
type Durations struct {
	Celebration time.Duration
	Failure     time.Duration
	Progress    time.Duration
}

// DefaultDurations returns 5s, 3s and 2s for celebration, failure and progress.
func DefaultDurations() Durations {
	return Durations{
		Celebration: 5 * time.Second,
		Failure:     3 * time.Second,
		Progress:    2 * time.Second,
	}
}

func (d Durations) of(kind EffectKind) time.Duration {
	switch kind {
	case EffectCelebration:
		return d.Celebration
	case EffectFailure:
		return d.Failure
	default:
		return d.Progress
	}
}

// Entry is the board row of one student.
type Entry struct {
	State     models.DerivedStudentState `json:"state"`
	Mode      Mode                       `json:"mode"`
	Effect    EffectKind                 `json:"effect,omitempty"`
	ExpiresAt *time.Time                 `json:"expires_at,omitempty"`
	// Next is the mode entered when the animation expires.
	Next      Mode `json:"next,omitempty"`
	Completed bool `json:"completed"`
}

// EffectEvent is published when an effect starts.
type EffectEvent struct {
	Login     string                     `json:"login"`
	Decision  Decision                   `json:"decision"`
	State     models.DerivedStudentState `json:"state"`
	ExpiresAt time.Time                  `json:"expires_at"`
}

// ClearedEvent is published when an effect expires.
type ClearedEvent struct {
	Login string `json:"login"`
	Mode  Mode   `json:"mode"`
}

// BoardOptions configures a Board.
type BoardOptions struct {
	Durations Durations
	// OnEffect and OnCleared are called without the board lock held.
	OnEffect  func(EffectEvent)
	OnCleared func(ClearedEvent)
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

type row struct {
	entry Entry
	timer *time.Timer
	// generation invalidates the callback of a timer that was replaced.
	generation uint64
}

// Board applies decisions to the students of a session and owns the
// auto-clear timers of their effects. Re-triggering an active effect
// restarts its timer instead of stacking a second one.
type Board struct {
	mu        sync.Mutex
	rows      map[string]*row
	durations Durations
	onEffect  func(EffectEvent)
	onCleared func(ClearedEvent)
	now       func() time.Time
	closed    bool
}

// NewBoard returns an empty board.
func NewBoard(opts BoardOptions) *Board {
	durations := opts.Durations
	if durations == (Durations{}) {
		durations = DefaultDurations()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Board{
		rows:      make(map[string]*row),
		durations: durations,
		onEffect:  opts.OnEffect,
		onCleared: opts.OnCleared,
		now:       now,
	}
}

// Apply records a fresh observation of a student and returns the decision
// taken for it.
func (b *Board) Apply(next models.DerivedStudentState) Decision {
	login := next.Login()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Decision{}
	}

	r, seen := b.rows[login]
	var prev *models.DerivedStudentState
	if seen {
		prevState := r.entry.State
		prev = &prevState
	} else {
		r = &row{entry: Entry{Mode: ModeTracking}}
		b.rows[login] = r
	}

	d := Decide(prev, next, r.entry.Completed)

	r.entry.State = next
	if d.MarkCompleted {
		r.entry.Completed = true
	}

	settled := b.settledMode(r, d)

	var event *EffectEvent
	if d.Effect != EffectNone {
		expiresAt := b.now().Add(b.durations.of(d.Effect))
		r.entry.Mode = ModeAnimating
		r.entry.Effect = d.Effect
		r.entry.ExpiresAt = &expiresAt
		r.entry.Next = settled
		b.armLocked(login, r, b.durations.of(d.Effect))
		event = &EffectEvent{Login: login, Decision: d, State: next, ExpiresAt: expiresAt}
	} else if r.entry.Mode == ModeAnimating {
		// Let the running animation finish; only the landing mode moves.
		r.entry.Next = settled
	} else {
		r.entry.Mode = settled
	}
	b.mu.Unlock()

	if event != nil {
		metrics.RecordEffect(string(event.Decision.Effect))
		if b.onEffect != nil {
			b.onEffect(*event)
		}
	}
	return d
}

// settledMode is the mode the student rests in once no effect is active.
// Finished is sticky.
func (b *Board) settledMode(r *row, d Decision) Mode {
	if d.MarkFinished || r.entry.Mode == ModeFinished ||
		(r.entry.Mode == ModeAnimating && r.entry.Next == ModeFinished) {
		return ModeFinished
	}
	return ModeTracking
}

// armLocked (re)starts the auto-clear timer of a row.
func (b *Board) armLocked(login string, r *row, d time.Duration) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.generation++
	gen := r.generation
	r.timer = time.AfterFunc(d, func() { b.expire(login, gen) })
}

func (b *Board) expire(login string, gen uint64) {
	b.mu.Lock()
	r, ok := b.rows[login]
	if !ok || b.closed || r.generation != gen || r.entry.Mode != ModeAnimating {
		b.mu.Unlock()
		return
	}
	r.entry.Mode = r.entry.Next
	r.entry.Effect = EffectNone
	r.entry.ExpiresAt = nil
	r.entry.Next = ""
	r.timer = nil
	mode := r.entry.Mode
	b.mu.Unlock()

	if b.onCleared != nil {
		b.onCleared(ClearedEvent{Login: login, Mode: mode})
	}
}

// IsFinished reports whether scheduled cycles should skip the student.
func (b *Board) IsFinished(login string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rows[login]
	if !ok {
		return false
	}
	return r.entry.Mode == ModeFinished ||
		(r.entry.Mode == ModeAnimating && r.entry.Next == ModeFinished)
}

// Get returns the row of a student.
func (b *Board) Get(login string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.rows[login]
	if !ok {
		return Entry{}, false
	}
	return r.entry, true
}

// Snapshot returns a copy of every row, keyed by login.
func (b *Board) Snapshot() map[string]Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Entry, len(b.rows))
	for login, r := range b.rows {
		out[login] = r.entry
	}
	return out
}

// Remove forgets a student and cancels its pending effect.
func (b *Board) Remove(login string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if r, ok := b.rows[login]; ok {
		if r.timer != nil {
			r.timer.Stop()
		}
		delete(b.rows, login)
	}
}

// Close stops every timer. Later calls to Apply are ignored.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, r := range b.rows {
		if r.timer != nil {
			r.timer.Stop()
		}
	}
}
