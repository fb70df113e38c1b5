package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/internal/domain"
	"canopy/internal/filter"
)

func TestInboxPredicateCandidates(t *testing.T) {
	trashedAt := now.Add(-time.Hour)

	cases := []struct {
		name string
		task domain.Task
		want bool
	}{
		{
			name: "assigned without due date",
			task: domain.Task{CreatedByID: "x", AssigneeID: ptr("u"), Status: domain.StatusTodo, Priority: domain.PriorityHigh},
			want: true,
		},
		{
			name: "assigned due inside horizon",
			task: domain.Task{CreatedByID: "x", AssigneeID: ptr("u"), Status: domain.StatusTodo, Priority: domain.PriorityHigh, DueDate: at(time.Hour)},
			want: true,
		},
		{
			name: "assigned due past horizon",
			task: domain.Task{CreatedByID: "x", AssigneeID: ptr("u"), Status: domain.StatusTodo, Priority: domain.PriorityHigh, DueDate: at(72 * time.Hour)},
			want: false,
		},
		{
			name: "authored missing priority",
			task: domain.Task{CreatedByID: "u", AssigneeID: ptr("x"), Status: domain.StatusTodo, Priority: domain.PriorityNone, DueDate: at(72 * time.Hour)},
			want: true,
		},
		{
			name: "authored complete and far out",
			task: domain.Task{CreatedByID: "u", AssigneeID: ptr("x"), Status: domain.StatusTodo, Priority: domain.PriorityLow, DueDate: at(72 * time.Hour)},
			want: false,
		},
		{
			name: "authored in review",
			task: domain.Task{CreatedByID: "u", AssigneeID: ptr("x"), Status: domain.StatusInReview, Priority: domain.PriorityLow, DueDate: at(72 * time.Hour)},
			want: true,
		},
		{
			name: "done is excluded",
			task: domain.Task{CreatedByID: "u", Status: domain.StatusDone, Priority: domain.PriorityNone},
			want: false,
		},
		{
			name: "trashed is excluded",
			task: domain.Task{CreatedByID: "u", Status: domain.StatusTodo, Priority: domain.PriorityNone, DeletedAt: &trashedAt},
			want: false,
		},
		{
			name: "archived is excluded",
			task: domain.Task{CreatedByID: "u", Status: domain.StatusTodo, Priority: domain.PriorityNone, ArchivedAt: &trashedAt},
			want: false,
		},
	}

	predicate := InboxPredicate("u", now, DefaultHorizon)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, predicate.Match(tc.task))
		})
	}
}

func TestCandidatesNeverClassifyUnknown(t *testing.T) {
	predicate := InboxPredicate("u", now, DefaultHorizon)
	statuses := []domain.TaskStatus{domain.StatusTodo, domain.StatusInProgress, domain.StatusInReview}
	priorities := []domain.Priority{domain.PriorityNone, domain.PriorityHigh}
	people := []*string{nil, ptr("u"), ptr("x")}
	dues := []*time.Time{nil, at(-time.Hour), at(time.Hour), at(10 * 24 * time.Hour)}

	for _, creator := range []string{"u", "x"} {
		for _, status := range statuses {
			for _, priority := range priorities {
				for _, assignee := range people {
					for _, due := range dues {
						task := domain.Task{CreatedByID: creator, Status: status, Priority: priority, AssigneeID: assignee, DueDate: due}
						if !predicate.Match(task) {
							continue
						}
						require.NotEqual(t, ReasonUnknown, Classify(task, now, DefaultHorizon, "u"), "%+v", task)
					}
				}
			}
		}
	}
}

func TestSnoozedPredicate(t *testing.T) {
	predicate := SnoozedPredicate("u", now, DefaultHorizon)

	assert.True(t, predicate.Match(domain.Task{CreatedByID: "u", Status: domain.StatusTodo, DueDate: at(72 * time.Hour)}))
	assert.True(t, predicate.Match(domain.Task{CreatedByID: "x", AssigneeID: ptr("u"), Status: domain.StatusInProgress, DueDate: at(72 * time.Hour)}))
	assert.False(t, predicate.Match(domain.Task{CreatedByID: "u", Status: domain.StatusInReview, DueDate: at(72 * time.Hour)}))
	assert.False(t, predicate.Match(domain.Task{CreatedByID: "u", Status: domain.StatusTodo, DueDate: at(time.Hour)}))
	assert.False(t, predicate.Match(domain.Task{CreatedByID: "u", Status: domain.StatusTodo}))
	assert.False(t, predicate.Match(domain.Task{CreatedByID: "x", Status: domain.StatusTodo, DueDate: at(72 * time.Hour)}))
}

func TestPredicatesTreatZeroHorizonAsDefault(t *testing.T) {
	soon := domain.Task{CreatedByID: "u", Status: domain.StatusTodo, Priority: domain.PriorityHigh, AssigneeID: ptr("u"), DueDate: at(24 * time.Hour)}
	later := domain.Task{CreatedByID: "u", Status: domain.StatusTodo, Priority: domain.PriorityHigh, AssigneeID: ptr("u"), DueDate: at(72 * time.Hour)}

	for _, task := range []domain.Task{soon, later} {
		assert.Equal(t, InboxPredicate("u", now, DefaultHorizon).Match(task), InboxPredicate("u", now, 0).Match(task))
		assert.Equal(t, SnoozedPredicate("u", now, DefaultHorizon).Match(task), SnoozedPredicate("u", now, 0).Match(task))
	}
	assert.True(t, SnoozedPredicate("u", now, 0).Match(later))
	assert.False(t, SnoozedPredicate("u", now, 0).Match(soon))
}

func TestInboxPredicateRendersOneClause(t *testing.T) {
	clause, args := filter.Render(InboxPredicate("u", now, DefaultHorizon), 2)
	assert.Contains(t, clause, "deleted_at IS NULL")
	assert.Contains(t, clause, "archived_at IS NULL")
	assert.Contains(t, clause, "due_date <= $")
	assert.NotContains(t, clause, "$1")
	assert.Contains(t, args, now.Add(DefaultHorizon))
}
