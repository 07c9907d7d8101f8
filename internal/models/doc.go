// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

/*
Package models defines the data structures shared across Examwatch.

Model Categories:

 1. Intra API records (intra.go):
    - IntraUser, ProjectUser, IntraProject, IntraTeam: the subset of the
    intra v2 responses the dashboard reads
    - UserSummary: the login search result

 2. Derived state (student.go):
    - StudentIdentity: id, login and avatar, fetched once per session
    - DerivedStudentState: the progress card of one student
    - ExamStatus: not_started, in_progress, finished_pending_review, passed, failed

 3. API envelope (api_responses.go):
    - APIResponse, Metadata, APIError

JSON tags follow the intra API for upstream records and snake_case for
everything the dashboard serves.
*/
package models
