// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package models

import "time"

// StudentIdentity is the immutable identity of a tracked student.
// It is fetched once per tracking session and never refreshed.
type StudentIdentity struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

// ExamStatus is the derived outcome of a student's current exam attempt.
type ExamStatus string

const (
	StatusNotStarted            ExamStatus = "not_started"
	StatusInProgress            ExamStatus = "in_progress"
	StatusFinishedPendingReview ExamStatus = "finished_pending_review"
	StatusPassed                ExamStatus = "passed"
	StatusFailed                ExamStatus = "failed"
)

// IsTerminal reports whether the status is a final exam outcome.
func (s ExamStatus) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// DerivedStudentState is the progress card of one student. It is recomputed
// wholesale from upstream data on every successful fetch.
//
// Progress is in [0,100]. A progress lower than the previous observation is
// valid data (a re-graded attempt), not an error.
type DerivedStudentState struct {
	Identity        StudentIdentity `json:"identity"`
	Progress        int             `json:"progress"`
	Status          ExamStatus      `json:"status"`
	CurrentExam     *string         `json:"current_exam"`
	LastAttemptDate *time.Time      `json:"last_attempt_date"`
	FetchedAt       time.Time       `json:"fetched_at"`
}

// Login returns the login of the student this state belongs to.
func (s *DerivedStudentState) Login() string {
	return s.Identity.Login
}
