package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"canopy/internal/domain"
	"canopy/internal/filter"
)

const taskColumns = `id, workspace_id, parent_id, position, created_by_id, title, description, status, priority,
	assignee_id, due_date, archived_at, deleted_at, created_at, updated_at`

// TaskOrder names a supported ORDER BY for task listings.
type TaskOrder string

const (
	OrderUpdatedDesc TaskOrder = "updated_at DESC, id"
	OrderDueAsc      TaskOrder = "due_date ASC NULLS LAST, id"
	OrderPosition    TaskOrder = "position, id"
)

type TaskRepo struct {
	*itemTable[domain.Task]
	db *sql.DB
}

func newTaskRepo(db *sql.DB, q dbtx) *TaskRepo {
	return &TaskRepo{
		itemTable: &itemTable[domain.Task]{
			q:       q,
			kind:    domain.KindTask,
			table:   "tasks",
			columns: taskColumns,
			scan:    scanTask,
		},
		db: db,
	}
}

// InTx runs fn with a repo bound to a single transaction. Calls made on a repo
// that is already transactional join the outer transaction.
func (r *TaskRepo) InTx(ctx context.Context, fn func(*TaskRepo) error) error {
	return inTx(ctx, r.db, r.q, func(q dbtx) error {
		return fn(&TaskRepo{itemTable: r.withQuerier(q), db: r.db})
	})
}

func (r *TaskRepo) Create(ctx context.Context, task domain.Task) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tasks (id, workspace_id, parent_id, position, created_by_id, title, description, status, priority,
			assignee_id, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, task.ID, task.WorkspaceID, nullString(task.ParentID), task.Position, task.CreatedByID, task.Title,
		nullJSON(task.Description), string(task.Status), string(task.Priority), nullString(task.AssigneeID),
		nullTime(task.DueDate), task.CreatedAt.UTC())
	if err != nil {
		ref := task.WorkspaceID
		if task.ParentID != nil {
			ref = *task.ParentID
		}
		return wrapErr(domain.KindTask, ref, "insert task", err)
	}
	return nil
}

// UpdateStatus persists a status change scoped to workspaceID. It is the
// only write the board makes.
func (r *TaskRepo) UpdateStatus(ctx context.Context, workspaceID, taskID string, status domain.TaskStatus) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE tasks SET status = $3, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
	`, taskID, workspaceID, string(status))
	if err != nil {
		return wrapErr(domain.KindTask, taskID, "update task status", err)
	}
	return expectOne(domain.KindTask, taskID, "update task status", result)
}

func (r *TaskRepo) Update(ctx context.Context, workspaceID, taskID string, patch domain.TaskPatch, now time.Time) (domain.Task, error) {
	sets := make([]string, 0, 8)
	args := []any{taskID, workspaceID}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", nullJSON(*patch.Description))
	}
	if patch.Priority != nil {
		set("priority", string(*patch.Priority))
	}
	if patch.ClearAssignee {
		set("assignee_id", nil)
	} else if patch.AssigneeID != nil {
		set("assignee_id", *patch.AssigneeID)
	}
	if patch.ClearDueDate {
		set("due_date", nil)
	} else if patch.DueDate != nil {
		set("due_date", patch.DueDate.UTC())
	}
	if patch.Archived != nil {
		if *patch.Archived {
			set("archived_at", now.UTC())
		} else {
			set("archived_at", nil)
		}
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $1 AND workspace_id = $2 RETURNING %s`,
		strings.Join(sets, ", "), taskColumns)
	task, err := scanTask(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Task{}, wrapErr(domain.KindTask, taskID, "update task", err)
	}
	return task, nil
}

// List returns tasks in workspaceID matching expr.
func (r *TaskRepo) List(ctx context.Context, workspaceID string, expr filter.Expr, order TaskOrder) ([]domain.Task, error) {
	clause, args := filter.Render(expr, 2)
	if order == "" {
		order = OrderUpdatedDesc
	}
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE workspace_id = $1 AND %s ORDER BY %s`, taskColumns, clause, order)
	return r.list(ctx, "list tasks", query, append([]any{workspaceID}, args...)...)
}

// Count returns how many tasks List would return for the same expr.
func (r *TaskRepo) Count(ctx context.Context, workspaceID string, expr filter.Expr) (int, error) {
	clause, args := filter.Render(expr, 2)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tasks WHERE workspace_id = $1 AND %s`, clause)
	var count int
	if err := r.q.QueryRowContext(ctx, query, append([]any{workspaceID}, args...)...).Scan(&count); err != nil {
		return 0, wrapErr(domain.KindTask, workspaceID, "count tasks", err)
	}
	return count, nil
}

// ListBoard returns the active, unarchived tasks of a workspace in position order.
func (r *TaskRepo) ListBoard(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	return r.List(ctx, workspaceID, filter.And(filter.IsNull(filter.DeletedAt), filter.IsNull(filter.ArchivedAt)), OrderPosition)
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task        domain.Task
		parentID    sql.NullString
		description []byte
		status      string
		priority    string
		assigneeID  sql.NullString
		dueDate     sql.NullTime
		archivedAt  sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&task.ID, &task.WorkspaceID, &parentID, &task.Position, &task.CreatedByID, &task.Title, &description,
		&status, &priority, &assigneeID, &dueDate, &archivedAt, &deletedAt, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return domain.Task{}, err
	}
	task.ParentID = stringPtr(parentID)
	if len(description) > 0 {
		task.Description = description
	}
	task.Status = domain.TaskStatus(status)
	task.Priority = domain.Priority(priority)
	task.AssigneeID = stringPtr(assigneeID)
	task.DueDate = timePtr(dueDate)
	task.ArchivedAt = timePtr(archivedAt)
	task.DeletedAt = timePtr(deletedAt)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return task, nil
}
