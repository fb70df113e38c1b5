package domain

import (
	"encoding/json"
	"time"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusDone       TaskStatus = "DONE"
	StatusCancelled  TaskStatus = "CANCELLED"
)

// TaskStatuses lists every status in board column order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled}

func (s TaskStatus) Valid() bool {
	for _, status := range TaskStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Closed reports whether the status takes a task out of triage.
func (s TaskStatus) Closed() bool {
	return s == StatusDone || s == StatusCancelled
}

type Priority string

const (
	PriorityNone   Priority = "NONE"
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityNone, PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

type Task struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	ParentID    *string         `json:"parentId"`
	Position    float64         `json:"position"`
	CreatedByID string          `json:"createdById"`
	Title       string          `json:"title"`
	Description json.RawMessage `json:"description,omitempty"`
	Status      TaskStatus      `json:"status"`
	Priority    Priority        `json:"priority"`
	AssigneeID  *string         `json:"assigneeId"`
	DueDate     *time.Time      `json:"dueDate"`
	ArchivedAt  *time.Time      `json:"archivedAt,omitempty"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (t Task) NodeID() string                { return t.ID }
func (t Task) NodeWorkspaceID() string       { return t.WorkspaceID }
func (t Task) NodeParentID() *string         { return t.ParentID }
func (t Task) NodeDeletedAt() *time.Time     { return t.DeletedAt }
func (t Task) MediaContent() json.RawMessage { return t.Description }

// TaskPatch carries the editable task fields; nil means unchanged.
type TaskPatch struct {
	Title         *string
	Description   *json.RawMessage
	Priority      *Priority
	AssigneeID    *string
	ClearAssignee bool
	DueDate       *time.Time
	ClearDueDate  bool
	Archived      *bool
}
