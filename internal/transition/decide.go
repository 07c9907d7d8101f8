// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package transition decides which one-shot effect a state change deserves
// and tracks the per-student display mode (tracking, animating, finished).
package transition

import "github.com/tomtom215/examwatch/internal/models"

// EffectKind names a one-shot visual and audio effect.
type EffectKind string

const (
	EffectNone        EffectKind = ""
	EffectProgress    EffectKind = "progress"
	EffectCelebration EffectKind = "celebration"
	EffectFailure     EffectKind = "failure"
)

// Decision is the outcome of comparing two observations of a student.
type Decision struct {
	Effect EffectKind `json:"effect,omitempty"`
	// Burst asks for the confetti burst of a completion.
	Burst bool `json:"burst,omitempty"`
	// Sound asks for the sound attached to the effect.
	Sound bool `json:"sound,omitempty"`
	// MarkFinished removes the student from scheduled cycles.
	MarkFinished bool `json:"mark_finished,omitempty"`
	// MarkCompleted records that the completion was celebrated once.
	MarkCompleted bool `json:"mark_completed,omitempty"`
}

// Decide compares the previous observation (nil for the first one) with
// the next. completed is true once a completion was celebrated for the
// student, so reaching 100 again does not celebrate twice.
//
// The rules are evaluated in order:
//
//	first observation              -> no effect; finished when at 100 or passed
//	progress rose to 100           -> celebration with burst, completed, finished
//	status became passed           -> celebration sound, finished
//	status in_progress -> failed   -> failure
//	progress rose or status moved  -> progress
func Decide(prev *models.DerivedStudentState, next models.DerivedStudentState, completed bool) Decision {
	if prev == nil {
		return Decision{
			MarkFinished: next.Progress == 100 || next.Status == models.StatusPassed,
		}
	}

	var d Decision

	if next.Progress > prev.Progress && next.Progress == 100 && prev.Progress < 100 && !completed {
		d.Effect = EffectCelebration
		d.Burst = true
		d.Sound = true
		d.MarkCompleted = true
		d.MarkFinished = true
	}

	if next.Status == models.StatusPassed && prev.Status != models.StatusPassed {
		d.Effect = EffectCelebration
		d.Sound = true
		d.MarkFinished = true
	}

	if d.Effect != EffectNone {
		return d
	}

	if next.Status == models.StatusFailed && prev.Status == models.StatusInProgress {
		return Decision{Effect: EffectFailure, Sound: true}
	}

	if next.Progress > prev.Progress || next.Status != prev.Status {
		return Decision{Effect: EffectProgress, Sound: true}
	}

	return Decision{}
}
