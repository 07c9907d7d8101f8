// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// histogramCount extracts the sample count of a histogram.
func histogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m io_prometheus_client.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordCycle_ObservesDuration(t *testing.T) {
	before := histogramCount(t, CycleDuration)
	RecordCycle(1500*time.Millisecond, false)
	if got := histogramCount(t, CycleDuration); got != before+1 {
		t.Errorf("cycle duration samples = %d, want %d", got, before+1)
	}
}

func TestRecordUpstreamAttempt_ObservesDuration(t *testing.T) {
	before := histogramCount(t, UpstreamRequestDuration)
	RecordUpstreamAttempt(200, 80*time.Millisecond)
	if got := histogramCount(t, UpstreamRequestDuration); got != before+1 {
		t.Errorf("upstream duration samples = %d, want %d", got, before+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/budget", "200"))

	RecordAPIRequest("GET", "/api/v1/budget", "200", 15*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/budget", "200"))
	if after != before+1 {
		t.Errorf("APIRequestsTotal = %v, want %v", after, before+1)
	}
}

func TestRecordUpstreamAttempt(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{"success", 200, "200"},
		{"rate limited", 429, "429"},
		{"transport error", 0, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(tt.label))
			RecordUpstreamAttempt(tt.status, 100*time.Millisecond)
			after := testutil.ToFloat64(UpstreamRequestsTotal.WithLabelValues(tt.label))
			if after != before+1 {
				t.Errorf("UpstreamRequestsTotal{%s} = %v, want %v", tt.label, after, before+1)
			}
		})
	}
}

func TestRecordCycle(t *testing.T) {
	completed := testutil.ToFloat64(CyclesTotal.WithLabelValues("completed"))
	aborted := testutil.ToFloat64(CyclesTotal.WithLabelValues("aborted"))

	RecordCycle(30*time.Second, false)
	RecordCycle(4*time.Second, true)

	if got := testutil.ToFloat64(CyclesTotal.WithLabelValues("completed")); got != completed+1 {
		t.Errorf("completed cycles = %v, want %v", got, completed+1)
	}
	if got := testutil.ToFloat64(CyclesTotal.WithLabelValues("aborted")); got != aborted+1 {
		t.Errorf("aborted cycles = %v, want %v", got, aborted+1)
	}
}

func TestSetPollingInterval(t *testing.T) {
	SetPollingInterval("session-a", 66*time.Second)

	if got := testutil.ToFloat64(PollingInterval.WithLabelValues("session-a")); got != 66 {
		t.Errorf("PollingInterval = %v, want 66", got)
	}

	ForgetSession("session-a")
	if n := testutil.CollectAndCount(PollingInterval); n != 0 {
		t.Errorf("expected no series after ForgetSession, got %d", n)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("active requests = %v, want %v", got, before+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("active requests = %v, want %v", got, before)
	}
}
