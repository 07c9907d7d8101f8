// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package scheduler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/models"
)

type fixedPlanner time.Duration

func (p fixedPlanner) OptimalInterval(int) time.Duration { return time.Duration(p) }

type call struct {
	login string
	at    time.Time
}

// fakeFetcher records calls and fails for logins listed in failures.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    []call
	failures map[string]error
	// holds keeps a fetch of the login pending until the channel closes.
	holds map[string]chan struct{}
	// notify receives every fetched login.
	notify chan string
}

func newFakeFetcher(failures map[string]error) *fakeFetcher {
	return &fakeFetcher{failures: failures, holds: make(map[string]chan struct{}), notify: make(chan string, 256)}
}

func (f *fakeFetcher) hold(login string) chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.holds[login] = gate
	f.mu.Unlock()
	return gate
}

func (f *fakeFetcher) Fetch(_ context.Context, login string) (*models.DerivedStudentState, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{login: login, at: time.Now()})
	err := f.failures[login]
	gate := f.holds[login]
	f.mu.Unlock()

	select {
	case f.notify <- login:
	default:
	}
	if gate != nil {
		<-gate
	}

	if err != nil {
		return nil, err
	}
	return &models.DerivedStudentState{
		Identity: models.StudentIdentity{Login: login},
		Status:   models.StatusInProgress,
	}, nil
}

func (f *fakeFetcher) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]call, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeHandler struct {
	mu         sync.Mutex
	results    []string
	errs       []string
	finished   map[string]bool
	countdowns []Countdown
}

func newFakeHandler(finished ...string) *fakeHandler {
	h := &fakeHandler{finished: make(map[string]bool)}
	for _, login := range finished {
		h.finished[login] = true
	}
	return h
}

func (h *fakeHandler) HandleResult(state *models.DerivedStudentState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, state.Login())
}

func (h *fakeHandler) HandleError(login string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, login)
}

func (h *fakeHandler) IsFinished(login string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished[login]
}

func (h *fakeHandler) HandleCountdown(c Countdown) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.countdowns = append(h.countdowns, c)
}

func (h *fakeHandler) resultCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

func (h *fakeHandler) countdownCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.countdowns)
}

func testConfig(interval time.Duration) Config {
	return Config{
		Name:              "test",
		Planner:           fixedPlanner(interval),
		MinInterval:       time.Millisecond,
		MaxInterval:       time.Second,
		RateLimitCooldown: 0,
		TickInterval:      5 * time.Millisecond,
	}
}

// waitFor blocks until login has been fetched n times.
func waitFor(t *testing.T, f *fakeFetcher, login string, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	seen := 0
	for _, c := range f.snapshot() {
		if c.login == login {
			seen++
		}
	}
	for seen < n {
		select {
		case got := <-f.notify:
			if got == login {
				seen++
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s to be fetched %d times (calls: %v)", login, n, f.snapshot())
		}
	}
}

func runAsync(ctx context.Context, s *Scheduler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestRun_FailureAbortsRestOfCycle(t *testing.T) {
	t.Parallel()

	interval := 40 * time.Millisecond
	fetcher := newFakeFetcher(map[string]error{
		"s2": &intra.StatusError{Kind: intra.ErrNotFound, StatusCode: http.StatusNotFound, Message: "not found"},
	})
	handler := newFakeHandler()
	s := New(testConfig(interval), fetcher, handler, []string{"s1", "s2", "s3", "s4", "s5"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 2)
	cancel()
	<-done

	calls := fetcher.snapshot()
	if len(calls) < 3 {
		t.Fatalf("calls = %v", calls)
	}
	order := []string{calls[0].login, calls[1].login, calls[2].login}
	if order[0] != "s1" || order[1] != "s2" || order[2] != "s1" {
		t.Fatalf("call order = %v, want [s1 s2 s1]: s3-s5 must not be attempted", order)
	}

	// The next cycle starts after exactly one interval, not a cumulative delay.
	gap := calls[2].at.Sub(calls[1].at)
	if gap < interval || gap > 3*interval {
		t.Errorf("gap between abort and next cycle = %v, want about %v", gap, interval)
	}
	if s.Cycle() < 2 {
		t.Errorf("cycle = %d, want at least 2", s.Cycle())
	}
}

func TestRun_RateLimitAddsCooldown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(10 * time.Millisecond)
	cfg.RateLimitCooldown = 150 * time.Millisecond

	fetcher := newFakeFetcher(map[string]error{
		"s1": &intra.StatusError{Kind: intra.ErrRateLimited, StatusCode: http.StatusTooManyRequests, Message: "slow down"},
	})
	s := New(cfg, fetcher, newFakeHandler(), []string{"s1", "s2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 2)
	cancel()
	<-done

	calls := fetcher.snapshot()
	if calls[1].login != "s1" {
		t.Fatalf("s2 must not be attempted after a rate limit, calls = %v", calls)
	}
	if gap := calls[1].at.Sub(calls[0].at); gap < 160*time.Millisecond {
		t.Errorf("gap = %v, want interval + cooldown (>= 160ms)", gap)
	}
}

func TestRun_AuthFailureStops(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]error{
		"s1": &intra.StatusError{Kind: intra.ErrAuth, StatusCode: http.StatusUnauthorized, Message: "expired"},
	})
	handler := newFakeHandler()
	s := New(testConfig(10*time.Millisecond), fetcher, handler, []string{"s1", "s2"})

	err := s.Run(context.Background())
	if !errors.Is(err, intra.ErrAuth) {
		t.Fatalf("Run = %v, want ErrAuth", err)
	}
	if len(handler.errs) != 1 || handler.errs[0] != "s1" {
		t.Errorf("errors handled = %v", handler.errs)
	}
	if s.Status().Phase != PhaseIdle {
		t.Errorf("phase after stop = %q, want idle", s.Status().Phase)
	}
}

func TestRun_SkipsFinishedStudents(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	handler := newFakeHandler("s2")
	s := New(testConfig(5*time.Millisecond), fetcher, handler, []string{"s1", "s2", "s3"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s3", 3)
	cancel()
	<-done

	for _, c := range fetcher.snapshot() {
		if c.login == "s2" {
			t.Fatal("finished student fetched by a scheduled cycle")
		}
	}

	// A manual refresh still reaches a finished student.
	state, err := s.RefreshNow(context.Background(), "S2")
	if err != nil || state.Login() != "s2" {
		t.Errorf("RefreshNow(s2) = %v, %v", state, err)
	}
}

func TestRun_CancelStopsPendingWait(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	s := New(testConfig(time.Hour), fetcher, newFakeHandler(), []string{"s1", "s2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 1)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if len(fetcher.snapshot()) != 1 {
		t.Errorf("calls after cancel = %v", fetcher.snapshot())
	}
}

func TestRun_NoStudents(t *testing.T) {
	t.Parallel()

	s := New(testConfig(time.Millisecond), newFakeFetcher(nil), newFakeHandler(), nil)
	if err := s.Run(context.Background()); !errors.Is(err, ErrNoStudents) {
		t.Errorf("Run = %v, want ErrNoStudents", err)
	}
}

func TestRun_ReportsCountdown(t *testing.T) {
	t.Parallel()

	handler := newFakeHandler()
	fetcher := newFakeFetcher(nil)
	s := New(testConfig(60*time.Millisecond), fetcher, handler, []string{"s1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 2)
	cancel()
	<-done

	if handler.countdownCount() < 3 {
		t.Errorf("countdown reports = %d, want several per wait", handler.countdownCount())
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	for _, c := range handler.countdowns {
		if c.Remaining < 0 || c.Remaining > c.Interval {
			t.Errorf("remaining %v outside [0, %v]", c.Remaining, c.Interval)
		}
		if c.Remaining != 0 && !c.Deadline.After(time.Time{}) {
			t.Error("countdown without deadline")
		}
	}
}

func TestOverride_AppliesFromNextWait(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	s := New(testConfig(300*time.Millisecond), fetcher, newFakeHandler(), []string{"s1", "s2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 1)

	// Wait for the scheduler to enter its first wait, then override.
	for s.Status().Phase != PhaseWaiting {
		time.Sleep(time.Millisecond)
	}
	inFlight := *s.Status().Deadline
	if err := s.SetIntervalOverride(10 * time.Millisecond); err != nil {
		t.Fatalf("SetIntervalOverride: %v", err)
	}
	if got := *s.Status().Deadline; !got.Equal(inFlight) {
		t.Errorf("override changed the in-flight deadline: %v -> %v", inFlight, got)
	}

	waitFor(t, fetcher, "s1", 2)
	cancel()
	<-done

	calls := fetcher.snapshot()
	if first := calls[1].at.Sub(calls[0].at); first < 250*time.Millisecond {
		t.Errorf("in-flight wait shortened to %v", first)
	}
	if second := calls[2].at.Sub(calls[1].at); second > 200*time.Millisecond {
		t.Errorf("override not applied to the next wait: %v", second)
	}
}

func TestOverride_Bounds(t *testing.T) {
	t.Parallel()

	cfg := testConfig(66 * time.Second)
	cfg.MinInterval = 4 * time.Second
	cfg.MaxInterval = 300 * time.Second
	s := New(cfg, newFakeFetcher(nil), newFakeHandler(), []string{"s1"})

	for _, d := range []time.Duration{time.Second, 301 * time.Second} {
		if err := s.SetIntervalOverride(d); !errors.Is(err, ErrIntervalOutOfRange) {
			t.Errorf("SetIntervalOverride(%v) = %v, want ErrIntervalOutOfRange", d, err)
		}
	}
	if err := s.SetIntervalOverride(10 * time.Second); err != nil {
		t.Fatalf("SetIntervalOverride(10s): %v", err)
	}
	if got := s.CurrentInterval(); got != 10*time.Second {
		t.Errorf("CurrentInterval = %v, want 10s", got)
	}
	s.ClearOverride()
	if got := s.CurrentInterval(); got != 66*time.Second {
		t.Errorf("CurrentInterval after clear = %v, want 66s", got)
	}
}

func TestAddRemoveStudent(t *testing.T) {
	t.Parallel()

	s := New(testConfig(time.Second), newFakeFetcher(nil), newFakeHandler(), []string{"A", "a", " b "})
	if got := s.Logins(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("Logins = %v, want [a b]", got)
	}

	if err := s.AddStudent("C"); err != nil {
		t.Fatalf("AddStudent: %v", err)
	}
	if err := s.AddStudent("c"); !errors.Is(err, ErrDuplicateStudent) {
		t.Errorf("AddStudent duplicate = %v", err)
	}
	if err := s.RemoveStudent("a"); err != nil {
		t.Fatalf("RemoveStudent: %v", err)
	}
	if err := s.RemoveStudent("zz"); !errors.Is(err, ErrUnknownStudent) {
		t.Errorf("RemoveStudent unknown = %v", err)
	}
	if got := s.Logins(); len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Logins = %v, want [b c]", got)
	}

	if _, err := s.RefreshNow(context.Background(), "a"); !errors.Is(err, ErrUnknownStudent) {
		t.Errorf("RefreshNow removed student = %v", err)
	}
}

func TestRun_RemovingLastStudentEndsWait(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	handler := newFakeHandler()
	s := New(testConfig(time.Second), fetcher, handler, []string{"s1"})

	done := runAsync(context.Background(), s)
	waitFor(t, fetcher, "s1", 1)
	for s.Status().Phase != PhaseWaiting {
		time.Sleep(time.Millisecond)
	}

	removedAt := time.Now()
	if err := s.RemoveStudent("s1"); err != nil {
		t.Fatalf("RemoveStudent: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrNoStudents) {
			t.Errorf("Run = %v, want ErrNoStudents", err)
		}
		if elapsed := time.Since(removedAt); elapsed > 200*time.Millisecond {
			t.Errorf("Run returned %v after the list was emptied, want well before the 1s interval", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept waiting after the last student was removed")
	}

	after := handler.countdownCount()
	time.Sleep(30 * time.Millisecond)
	if handler.countdownCount() != after {
		t.Error("countdown still reported after Run returned")
	}
}

func TestRun_ReAddedStudentKeepsWaiting(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	gate := fetcher.hold("s1")
	s := New(testConfig(20*time.Millisecond), fetcher, newFakeHandler(), []string{"s1"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 1)

	// The list is emptied and refilled while s1 is in flight, so the
	// following wait sees a stale signal for a non-empty list.
	if err := s.RemoveStudent("s1"); err != nil {
		t.Fatalf("RemoveStudent: %v", err)
	}
	if err := s.AddStudent("s2"); err != nil {
		t.Fatalf("AddStudent: %v", err)
	}
	close(gate)
	waitFor(t, fetcher, "s2", 1)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestRun_DropsResultOfStudentRemovedInFlight(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	gate := fetcher.hold("s1")
	handler := newFakeHandler()
	s := New(testConfig(5*time.Millisecond), fetcher, handler, []string{"s1", "s2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 1)

	if err := s.RemoveStudent("s1"); err != nil {
		t.Fatalf("RemoveStudent: %v", err)
	}
	close(gate)
	waitFor(t, fetcher, "s2", 1)
	for handler.resultCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	handler.mu.Lock()
	defer handler.mu.Unlock()
	for _, login := range handler.results {
		if login == "s1" {
			t.Fatalf("result of removed s1 was handed over: %v", handler.results)
		}
	}
}

func TestRefreshNow_LeavesWaitUntouched(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(nil)
	handler := newFakeHandler()
	s := New(testConfig(300*time.Millisecond), fetcher, handler, []string{"s1", "s2"})

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, s)
	waitFor(t, fetcher, "s1", 1)
	for s.Status().Phase != PhaseWaiting {
		time.Sleep(time.Millisecond)
	}
	before := s.Status()

	state, err := s.RefreshNow(context.Background(), "s2")
	if err != nil || state.Login() != "s2" {
		t.Fatalf("RefreshNow(s2) = %v, %v", state, err)
	}

	after := s.Status()
	if after.Phase != PhaseWaiting {
		t.Errorf("phase after refresh = %q, want waiting", after.Phase)
	}
	if !after.Deadline.Equal(*before.Deadline) {
		t.Errorf("refresh moved the deadline: %v -> %v", *before.Deadline, *after.Deadline)
	}
	if after.NextLogin != before.NextLogin || after.Cycle != before.Cycle {
		t.Errorf("refresh changed the wait: %+v -> %+v", before, after)
	}

	handler.mu.Lock()
	for _, c := range handler.countdowns {
		if c.Cycle == before.Cycle && !c.Deadline.Equal(*before.Deadline) {
			t.Errorf("countdown deadline %v differs from the wait's %v", c.Deadline, *before.Deadline)
		}
	}
	handler.mu.Unlock()

	cancel()
	<-done
}
