// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package exam recognizes exam enrollments among a student's projects,
// picks the attempt to display and derives its progress and status.
//
// Everything in this package is pure: the same input always yields the same
// output, which is what makes the dashboard stable between refreshes.
package exam

import "strings"

// Order is the canonical curriculum progression, earliest first. An exam
// later in this list is always preferred over an earlier one.
var Order = []string{
	"C Piscine Exam 00",
	"C Piscine Exam 01",
	"C Piscine Exam 02",
	"C Piscine Final Exam",
	"Exam Rank 02",
	"Exam Rank 03",
	"Exam Rank 04",
	"Exam Rank 05",
	"Exam Rank 06",
}

// IsExam reports whether a project name follows the exam naming convention.
func IsExam(projectName string) bool {
	return strings.Contains(projectName, "Exam Rank") ||
		strings.Contains(projectName, "C Piscine Exam") ||
		projectName == "C Piscine Final Exam"
}

// Rank returns the position of the exam in Order, or -1 when the name
// matches no catalog entry.
func Rank(examName string) int {
	for i, name := range Order {
		if strings.Contains(examName, name) {
			return i
		}
	}
	return -1
}
