// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package intra

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/metrics"
)

// CallRecorder counts upstream requests against the hourly budget.
type CallRecorder interface {
	RecordCall(ctx context.Context) error
}

// TransportConfig configures a RetryingTransport.
type TransportConfig struct {
	// MaxRetries is the number of retries after the first 429.
	MaxRetries int
	// InitialDelay is the wait before the first retry. It doubles each time.
	InitialDelay time.Duration
	// Limiter paces attempts. Nil disables pacing.
	Limiter *rate.Limiter
	// Recorder is told about every attempt. Nil disables counting.
	Recorder CallRecorder
	// AttemptTimeout bounds each attempt, up to the end of its body.
	// Backoff waits are not included. Zero leaves attempts unbounded.
	AttemptTimeout time.Duration
	// Base performs the actual request. Defaults to http.DefaultTransport.
	Base http.RoundTripper
}

// RetryingTransport is an http.RoundTripper that retries HTTP 429 answers
// with exponential backoff. Every attempt, retries included, is recorded
// exactly once. Any other response is returned untouched.
//
// Requests are expected to have no body (the intra API is only read), so
// the same request can be sent again on retry.
//
// When the request context has a deadline too close for the next backoff,
// the last 429 is returned instead of waiting, so callers still see a rate
// limit rather than a timeout.
type RetryingTransport struct {
	maxRetries     int
	initialDelay   time.Duration
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	recorder       CallRecorder
	base           http.RoundTripper
}

// NewRetryingTransport builds a transport from cfg.
func NewRetryingTransport(cfg TransportConfig) *RetryingTransport {
	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingTransport{
		maxRetries:     maxRetries,
		initialDelay:   cfg.InitialDelay,
		attemptTimeout: cfg.AttemptTimeout,
		limiter:        cfg.Limiter,
		recorder:       cfg.Recorder,
		base:           base,
	}
}

// withAttemptTimeout returns a copy of t bounding each attempt by d.
func (t *RetryingTransport) withAttemptTimeout(d time.Duration) *RetryingTransport {
	clone := *t
	clone.attemptTimeout = d
	return &clone
}

// RoundTrip implements http.RoundTripper.
func (t *RetryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		t.record(ctx)

		attemptReq, cancel := req, context.CancelFunc(func() {})
		if t.attemptTimeout > 0 {
			var attemptCtx context.Context
			attemptCtx, cancel = context.WithTimeout(ctx, t.attemptTimeout)
			attemptReq = req.WithContext(attemptCtx)
		}

		start := time.Now()
		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			cancel()
			metrics.RecordUpstreamAttempt(0, time.Since(start))
			return nil, err
		}
		metrics.RecordUpstreamAttempt(resp.StatusCode, time.Since(start))
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Out of retries: hand the 429 back so the caller can map it.
		if attempt >= t.maxRetries {
			metrics.UpstreamRateLimitExhausted.Inc()
			logging.Ctx(ctx).Warn().
				Int("retries", t.maxRetries).
				Str("path", req.URL.Path).
				Msg("Intra API still rate limited after all retries")
			return resp, nil
		}

		delay := t.initialDelay * time.Duration(1<<uint(attempt))
		if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok && retryAfter > delay {
			delay = retryAfter
		}

		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= delay {
			metrics.UpstreamRateLimitExhausted.Inc()
			logging.Ctx(ctx).Warn().
				Dur("retry_delay", delay).
				Int("attempt", attempt+1).
				Str("path", req.URL.Path).
				Msg("Intra API rate limited and the caller deadline is too close to retry")
			return resp, nil
		}
		_ = resp.Body.Close()

		metrics.UpstreamRetries.Inc()
		logging.Ctx(ctx).Warn().
			Dur("retry_delay", delay).
			Int("attempt", attempt+1).
			Int("max_retries", t.maxRetries).
			Msg("Intra API rate limited (HTTP 429), retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// cancelOnClose releases the attempt context once the body is done with.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (t *RetryingTransport) record(ctx context.Context) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.RecordCall(ctx); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record upstream call")
	}
}

// parseRetryAfter reads a Retry-After value given in seconds. HTTP dates
// are not used by the intra API and are ignored.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
