// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

package api

import (
	"net/http"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/examwatch/internal/auth"
	"github.com/tomtom215/examwatch/internal/cache"
	"github.com/tomtom215/examwatch/internal/exam"
	"github.com/tomtom215/examwatch/internal/models"
	"github.com/tomtom215/examwatch/internal/student"
)

// maxSearchQuery bounds the login search term.
const maxSearchQuery = 64

// ExamProject is one entry of the exam selector.
type ExamProject struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	// Rank is the position in the exam catalog, earliest first.
	Rank int `json:"rank"`
}

// ExamLogins lists who is sitting an exam right now.
type ExamLogins struct {
	ProjectID int      `json:"project_id"`
	Logins    []string `json:"logins"`
}

// SearchUsers looks up intra users by login.
//
// Method: GET
// Path: /api/v1/users/search?query=<login>
//
// Response:
//   - 200: matching users (id, login, avatar_url)
//   - 400: missing or oversized query
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "query parameter is required", nil)
		return
	}
	if len(query) > maxSearchQuery {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "query parameter is too long", nil)
		return
	}

	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	users, err := h.upstream.SearchUsers(r.Context(), token, query)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, users)
}

// ListExams returns the proctor's exam projects that are part of the exam
// catalog, earliest first. Results are cached per sign-in for five minutes.
//
// Method: GET
// Path: /api/v1/exams
func (h *Handler) ListExams(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cursusID := h.config.Upstream.CursusID
	key := cache.GenerateKey("exams", map[string]any{
		"session": auth.SessionID(r.Context()),
		"cursus":  cursusID,
	})

	if exams, ok := h.examCache.Get(key); ok {
		respondJSON(w, http.StatusOK, &models.APIResponse{
			Status: "success",
			Data:   exams,
			Metadata: models.Metadata{
				Timestamp:   time.Now().UTC(),
				QueryTimeMS: time.Since(start).Milliseconds(),
				Cached:      true,
			},
		})
		return
	}

	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	projects, err := h.upstream.ListExamProjects(r.Context(), token, cursusID)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}

	exams := catalogExams(projects)
	h.examCache.Set(key, exams)

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data:   exams,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// ListExamLogins returns the logins of the teams currently sitting an
// exam on the configured campus, de-duplicated and sorted.
//
// Method: GET
// Path: /api/v1/exams/{projectID}/logins
func (h *Handler) ListExamLogins(w http.ResponseWriter, r *http.Request) {
	projectID, err := strconv.Atoi(chi.URLParam(r, "projectID"))
	if err != nil || projectID <= 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "projectID must be a positive integer", nil)
		return
	}

	token, ok := h.requireToken(w, r)
	if !ok {
		return
	}

	teams, err := h.upstream.ListInProgressTeams(r.Context(), token, projectID, h.config.Upstream.CampusID)
	if err != nil {
		respondUpstreamError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, ExamLogins{ProjectID: projectID, Logins: teamLogins(teams)})
}

// catalogExams keeps catalog exams, ordered by rank then name, one entry
// per project id.
func catalogExams(projects []models.IntraProject) []ExamProject {
	exams := make([]ExamProject, 0, len(projects))
	seen := make(map[int]bool, len(projects))
	for _, p := range projects {
		if !exam.IsExam(p.Name) || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		exams = append(exams, ExamProject{ID: p.ID, Name: p.Name, Slug: p.Slug, Rank: exam.Rank(p.Name)})
	}

	sort.SliceStable(exams, func(i, j int) bool {
		if exams[i].Rank != exams[j].Rank {
			return exams[i].Rank < exams[j].Rank
		}
		return exams[i].Name < exams[j].Name
	})
	return exams
}

// teamLogins flattens team members into a sorted set of logins.
func teamLogins(teams []models.IntraTeam) []string {
	logins := make([]string, 0, len(teams))
	for _, team := range teams {
		for _, u := range team.Users {
			if login := student.NormalizeLogin(u.Login); login != "" {
				logins = append(logins, login)
			}
		}
	}
	slices.Sort(logins)
	return slices.Compact(logins)
}
