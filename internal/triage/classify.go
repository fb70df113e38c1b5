package triage

import (
	"sort"
	"time"

	"canopy/internal/domain"
)

type Reason string

const (
	ReasonOverdue       Reason = "overdue"
	ReasonDueSoon       Reason = "due_soon"
	ReasonInReview      Reason = "in_review"
	ReasonUnprocessed   Reason = "unprocessed"
	ReasonAssignedToYou Reason = "assigned_to_you"
	ReasonSnoozed       Reason = "snoozed"
	ReasonUnknown       Reason = "unknown"
)

// Classify assigns the first matching reason. Due-date urgency outranks review
// state, which outranks authorship. It never fails: a task that matches
// nothing gets ReasonUnknown. A horizon <= 0 means DefaultHorizon, so callers
// that want a different window must pass it explicitly.
func Classify(task domain.Task, now time.Time, horizon time.Duration, userID string) Reason {
	if task.DueDate != nil {
		if task.DueDate.Before(now) {
			return ReasonOverdue
		}
		if !task.DueDate.After(now.Add(horizonOrDefault(horizon))) {
			return ReasonDueSoon
		}
	}
	if task.Status == domain.StatusInReview {
		return ReasonInReview
	}
	if MissingDetails(userID).Match(task) {
		return ReasonUnprocessed
	}
	if task.AssigneeID != nil && *task.AssigneeID == userID {
		return ReasonAssignedToYou
	}
	return ReasonUnknown
}

type Entry struct {
	Task   domain.Task `json:"task"`
	Reason Reason      `json:"reason"`
}

// Inbox classifies candidates and orders them: overdue first, then the rest,
// each group by most recently updated.
func Inbox(tasks []domain.Task, now time.Time, horizon time.Duration, userID string) []Entry {
	entries := make([]Entry, 0, len(tasks))
	for _, task := range tasks {
		entries = append(entries, Entry{Task: task, Reason: Classify(task, now, horizon, userID)})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		iOverdue := entries[i].Reason == ReasonOverdue
		jOverdue := entries[j].Reason == ReasonOverdue
		if iOverdue != jOverdue {
			return iOverdue
		}
		return entries[i].Task.UpdatedAt.After(entries[j].Task.UpdatedAt)
	})
	return entries
}

// Snoozed tags every task as snoozed and orders by ascending due date.
func Snoozed(tasks []domain.Task) []Entry {
	entries := make([]Entry, 0, len(tasks))
	for _, task := range tasks {
		entries = append(entries, Entry{Task: task, Reason: ReasonSnoozed})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Task.DueDate, entries[j].Task.DueDate
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})
	return entries
}
