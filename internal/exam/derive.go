// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package exam

import (
	"time"

	"github.com/tomtom215/examwatch/internal/models"
)

// Attempt is one (enrollment, team) pair chosen as the student's current
// exam sitting.
type Attempt struct {
	Enrollment models.ProjectUser
	Team       models.IntraTeam
	Rank       int
}

// Filter returns the enrollments whose project is an exam, preserving order.
func Filter(enrollments []models.ProjectUser) []models.ProjectUser {
	exams := make([]models.ProjectUser, 0, len(enrollments))
	for i := range enrollments {
		if IsExam(enrollments[i].Project.Name) {
			exams = append(exams, enrollments[i])
		}
	}
	return exams
}

// SelectCurrent picks the attempt to display among exam enrollments.
//
// Every team of every enrollment is a candidate. A higher Rank wins; at the
// same rank the most recently updated team wins. Ties on both keys keep the
// first candidate in input order, so the choice is deterministic. Returns
// false when no enrollment has a team.
func SelectCurrent(exams []models.ProjectUser) (Attempt, bool) {
	var (
		best       Attempt
		found      bool
		bestRank   = -1
		bestUpdate time.Time
	)

	for i := range exams {
		rank := Rank(exams[i].Project.Name)
		for _, team := range exams[i].Teams {
			if rank > bestRank || (rank == bestRank && team.UpdatedAt.After(bestUpdate)) {
				best = Attempt{Enrollment: exams[i], Team: team, Rank: rank}
				bestRank = rank
				bestUpdate = team.UpdatedAt
				found = true
			}
		}
	}

	return best, found
}

// Derive computes progress and status from the selected team.
//
//   - a mark is present: progress is the mark; passed if validated, else failed
//   - team finished without a mark: 100, pending review
//   - team in progress: progress carried from the mark field (0 when absent)
//   - anything else: not started, 0
func Derive(team models.IntraTeam) (int, models.ExamStatus) {
	switch {
	case team.FinalMark != nil:
		status := models.StatusFailed
		if team.Validated != nil && *team.Validated {
			status = models.StatusPassed
		}
		return clamp(*team.FinalMark), status
	case team.Status == models.IntraStatusFinished:
		return 100, models.StatusFinishedPendingReview
	case team.Status == models.IntraStatusInProgress:
		return 0, models.StatusInProgress
	default:
		return 0, models.StatusNotStarted
	}
}

// Reduce turns a raw enrollment list into a derived state for identity.
func Reduce(identity models.StudentIdentity, enrollments []models.ProjectUser, now time.Time) *models.DerivedStudentState {
	state := &models.DerivedStudentState{
		Identity:  identity,
		Progress:  0,
		Status:    models.StatusNotStarted,
		FetchedAt: now,
	}

	attempt, ok := SelectCurrent(Filter(enrollments))
	if !ok {
		return state
	}

	name := attempt.Enrollment.Project.Name
	updated := attempt.Team.UpdatedAt
	state.CurrentExam = &name
	if !updated.IsZero() {
		state.LastAttemptDate = &updated
	}
	state.Progress, state.Status = Derive(attempt.Team)
	return state
}

func clamp(mark int) int {
	if mark < 0 {
		return 0
	}
	if mark > 100 {
		return 100
	}
	return mark
}
