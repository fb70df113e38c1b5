// Package triage turns a workspace's tasks into a personal inbox: which tasks
// are candidates for a user, why each one is there, and in what order.
package triage

import (
	"time"

	"canopy/internal/domain"
	"canopy/internal/filter"
)

// DefaultHorizon is the look-ahead window that separates "due soon" from later.
// Every function here that takes a horizon substitutes it for a zero or
// negative one.
const DefaultHorizon = 48 * time.Hour

func horizonOrDefault(horizon time.Duration) time.Duration {
	if horizon <= 0 {
		return DefaultHorizon
	}
	return horizon
}

// Open excludes trashed, archived and closed tasks.
func Open() filter.Expr {
	return filter.And(
		filter.IsNull(filter.DeletedAt),
		filter.IsNull(filter.ArchivedAt),
		filter.NotIn(filter.Status, string(domain.StatusDone), string(domain.StatusCancelled)),
	)
}

// MissingDetails matches tasks the user created that still lack an assignee,
// a priority or a due date.
func MissingDetails(userID string) filter.Expr {
	return filter.And(
		filter.Eq(filter.CreatedBy, userID),
		filter.Or(
			filter.IsNull(filter.Assignee),
			filter.Eq(filter.Priority, string(domain.PriorityNone)),
			filter.IsNull(filter.DueDate),
		),
	)
}

// InboxPredicate selects inbox candidates. The list and the count queries
// both render this one expression. A horizon <= 0 means DefaultHorizon.
func InboxPredicate(userID string, now time.Time, horizon time.Duration) filter.Expr {
	limit := now.Add(horizonOrDefault(horizon))
	return filter.And(
		Open(),
		filter.Or(
			filter.And(
				filter.Eq(filter.Assignee, userID),
				filter.Or(filter.IsNull(filter.DueDate), filter.OnOrBefore(filter.DueDate, limit)),
			),
			MissingDetails(userID),
			filter.And(
				filter.Eq(filter.CreatedBy, userID),
				filter.Eq(filter.Status, string(domain.StatusInReview)),
			),
		),
	)
}

// SnoozedPredicate selects the user's open tasks whose due date lies past the
// horizon. Tasks in review stay out; they belong to the inbox. A horizon <= 0
// means DefaultHorizon.
func SnoozedPredicate(userID string, now time.Time, horizon time.Duration) filter.Expr {
	limit := now.Add(horizonOrDefault(horizon))
	return filter.And(
		filter.IsNull(filter.DeletedAt),
		filter.IsNull(filter.ArchivedAt),
		filter.Or(filter.Eq(filter.Assignee, userID), filter.Eq(filter.CreatedBy, userID)),
		filter.NotIn(filter.Status,
			string(domain.StatusDone),
			string(domain.StatusCancelled),
			string(domain.StatusInReview),
		),
		filter.After(filter.DueDate, limit),
	)
}
