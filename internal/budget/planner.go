// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package budget keeps polling inside the upstream hourly request quota.
//
// Budget turns a student count into a safe wait between two upstream
// requests; Tracker counts the requests actually sent during the current
// wall-clock hour and persists the count so a restart does not forget it.
package budget

import (
	"math"
	"time"
)

// Budget describes the hourly request quota shared by every tracking session.
type Budget struct {
	// HourlyLimit is the number of requests the upstream allows per hour.
	HourlyLimit int

	// SafetyMargin is kept in reserve for manual refreshes and lookups.
	SafetyMargin int

	// RequestsPerStudent is the number of upstream requests one student
	// costs per cycle.
	RequestsPerStudent int

	// BaseInterval is the floor of every computed interval.
	BaseInterval time.Duration
}

// OptimalInterval returns the wait between two student refreshes so that a
// full cycle over studentCount students stays within the hourly quota:
//
//	ceil(3600 / floor((HourlyLimit - SafetyMargin) / (studentCount * RequestsPerStudent)))
//
// The result is never below BaseInterval. When the quota cannot afford even
// one cycle per hour the interval is a full hour.
func (b Budget) OptimalInterval(studentCount int) time.Duration {
	if studentCount <= 0 {
		return b.BaseInterval
	}

	perStudent := b.RequestsPerStudent
	if perStudent < 1 {
		perStudent = 1
	}

	available := b.HourlyLimit - b.SafetyMargin
	cyclesPerHour := available / (studentCount * perStudent)
	if cyclesPerHour < 1 {
		return maxDuration(time.Hour, b.BaseInterval)
	}

	seconds := int(math.Ceil(3600 / float64(cyclesPerHour)))
	return maxDuration(time.Duration(seconds)*time.Second, b.BaseInterval)
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
