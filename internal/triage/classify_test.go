package triage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"canopy/internal/domain"
)

var now = time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)

func at(offset time.Duration) *time.Time {
	value := now.Add(offset)
	return &value
}

func ptr(value string) *string { return &value }

func baseTask() domain.Task {
	return domain.Task{
		ID:          "t1",
		WorkspaceID: "ws1",
		CreatedByID: "author",
		Status:      domain.StatusTodo,
		Priority:    domain.PriorityMedium,
		AssigneeID:  ptr("someone"),
		DueDate:     at(30 * 24 * time.Hour),
	}
}

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.Task)
		user   string
		want   Reason
	}{
		{
			name:   "past due outranks review",
			mutate: func(task *domain.Task) { task.DueDate = at(-time.Hour); task.Status = domain.StatusInReview },
			user:   "author",
			want:   ReasonOverdue,
		},
		{
			name: "an hour late is overdue whatever else holds",
			mutate: func(task *domain.Task) {
				task.DueDate = at(-time.Hour)
				task.AssigneeID = nil
				task.Priority = domain.PriorityNone
			},
			user: "author",
			want: ReasonOverdue,
		},
		{
			name:   "inside horizon",
			mutate: func(task *domain.Task) { task.DueDate = at(24 * time.Hour) },
			user:   "someone",
			want:   ReasonDueSoon,
		},
		{
			name:   "exactly on horizon",
			mutate: func(task *domain.Task) { task.DueDate = at(DefaultHorizon) },
			user:   "someone",
			want:   ReasonDueSoon,
		},
		{
			name:   "due right now is not yet overdue",
			mutate: func(task *domain.Task) { task.DueDate = at(0) },
			user:   "someone",
			want:   ReasonDueSoon,
		},
		{
			name:   "review outranks authorship",
			mutate: func(task *domain.Task) { task.Status = domain.StatusInReview; task.AssigneeID = nil },
			user:   "author",
			want:   ReasonInReview,
		},
		{
			name:   "author with missing priority",
			mutate: func(task *domain.Task) { task.Priority = domain.PriorityNone },
			user:   "author",
			want:   ReasonUnprocessed,
		},
		{
			name:   "assignee with complete details",
			mutate: func(task *domain.Task) {},
			user:   "someone",
			want:   ReasonAssignedToYou,
		},
		{
			name:   "missing details of someone else's task",
			mutate: func(task *domain.Task) { task.AssigneeID = nil },
			user:   "stranger",
			want:   ReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := baseTask()
			tc.mutate(&task)
			assert.Equal(t, tc.want, Classify(task, now, DefaultHorizon, tc.user))
		})
	}
}

func TestClassifyFreshTaskStaysUnprocessedAfterAssignment(t *testing.T) {
	task := domain.Task{
		ID:          "fresh",
		CreatedByID: "u",
		Status:      domain.StatusTodo,
		Priority:    domain.PriorityNone,
	}
	assert.Equal(t, ReasonUnprocessed, Classify(task, now, DefaultHorizon, "u"))

	task.AssigneeID = ptr("u")
	assert.Equal(t, ReasonUnprocessed, Classify(task, now, DefaultHorizon, "u"))
}

func TestClassifyIsDeterministic(t *testing.T) {
	task := baseTask()
	task.DueDate = at(36 * time.Hour)
	first := Classify(task, now, DefaultHorizon, "someone")
	for i := 0; i < 50; i++ {
		require.Equal(t, first, Classify(task, now, DefaultHorizon, "someone"))
	}
}

func TestClassifyZeroHorizonUsesDefault(t *testing.T) {
	task := baseTask()
	task.DueDate = at(47 * time.Hour)
	assert.Equal(t, ReasonDueSoon, Classify(task, now, 0, "someone"))
	assert.Equal(t, ReasonDueSoon, Classify(task, now, -time.Hour, "someone"))

	task.DueDate = at(72 * time.Hour)
	assert.Equal(t, ReasonAssignedToYou, Classify(task, now, 0, "someone"))
}

func TestInboxOrdersOverdueFirstThenRecency(t *testing.T) {
	recentOverdue := baseTask()
	recentOverdue.ID, recentOverdue.UpdatedAt, recentOverdue.AssigneeID = "recent-overdue", now.Add(-time.Hour), ptr("u")
	recentOverdue.DueDate = at(-2 * time.Hour)

	staleOverdue := baseTask()
	staleOverdue.ID, staleOverdue.UpdatedAt = "stale-overdue", now.Add(-48*time.Hour)
	staleOverdue.DueDate = at(-time.Hour)

	fresh := baseTask()
	fresh.ID, fresh.UpdatedAt, fresh.AssigneeID = "fresh", now, ptr("u")

	middle := baseTask()
	middle.ID, middle.UpdatedAt, middle.Status = "middle", now.Add(-3*time.Hour), domain.StatusInReview

	entries := Inbox([]domain.Task{fresh, staleOverdue, middle, recentOverdue}, now, DefaultHorizon, "u")

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.Task.ID)
	}
	assert.Equal(t, []string{"recent-overdue", "stale-overdue", "fresh", "middle"}, ids)
	assert.Equal(t, ReasonOverdue, entries[0].Reason)
	assert.Equal(t, ReasonAssignedToYou, entries[2].Reason)
	assert.Equal(t, ReasonInReview, entries[3].Reason)
}

func TestSnoozedOrdersByDueDate(t *testing.T) {
	later := baseTask()
	later.ID, later.DueDate = "later", at(20*24*time.Hour)
	sooner := baseTask()
	sooner.ID, sooner.DueDate = "sooner", at(5*24*time.Hour)

	entries := Snoozed([]domain.Task{later, sooner})
	require.Len(t, entries, 2)
	assert.Equal(t, "sooner", entries[0].Task.ID)
	assert.Equal(t, ReasonSnoozed, entries[0].Reason)
	assert.Equal(t, ReasonSnoozed, entries[1].Reason)
}
