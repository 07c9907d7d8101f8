// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package models

import "time"

// Upstream records of the 42 intra v2 API. Only the fields the dashboard
// reads are declared; the decoder ignores the rest.

// IntraUser is the response of GET /users/{login}.
type IntraUser struct {
	ID    int        `json:"id"`
	Login string     `json:"login"`
	Image IntraImage `json:"image"`
}

// IntraImage holds the avatar links of a user.
type IntraImage struct {
	Link     string `json:"link"`
	Versions struct {
		Large  string `json:"large"`
		Medium string `json:"medium"`
		Small  string `json:"small"`
		Micro  string `json:"micro"`
	} `json:"versions"`
}

// AvatarURL returns the best available avatar link.
func (u *IntraUser) AvatarURL() string {
	if u.Image.Link != "" {
		return u.Image.Link
	}
	return u.Image.Versions.Medium
}

// ProjectUser is one element of GET /users/{login}/projects_users: the
// enrollment of a user in a project, exams included.
type ProjectUser struct {
	ID        int          `json:"id"`
	FinalMark *int         `json:"final_mark"`
	Status    string       `json:"status"`
	Validated *bool        `json:"validated?"`
	Project   IntraProject `json:"project"`
	CursusIDs []int        `json:"cursus_ids"`
	MarkedAt  *time.Time   `json:"marked_at"`
	Teams     []IntraTeam  `json:"teams"`
}

// IntraProject identifies a project.
type IntraProject struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	Exam bool   `json:"exam,omitempty"`
}

// IntraTeam is a sitting of a project. For exams it carries the
// authoritative mark and lifecycle status.
type IntraTeam struct {
	ID        int             `json:"id"`
	Name      string          `json:"name"`
	FinalMark *int            `json:"final_mark"`
	ProjectID int             `json:"project_id"`
	Status    string          `json:"status"`
	Validated *bool           `json:"validated?"`
	UpdatedAt time.Time       `json:"updated_at"`
	Users     []IntraTeamUser `json:"users"`
}

// IntraTeamUser is a member of a team.
type IntraTeamUser struct {
	ID     int    `json:"id"`
	Login  string `json:"login"`
	Leader bool   `json:"leader"`
}

// Upstream lifecycle values of a team or project user.
const (
	IntraStatusInProgress = "in_progress"
	IntraStatusFinished   = "finished"
)

// UserSummary is the shape returned by the login search endpoint.
type UserSummary struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}
