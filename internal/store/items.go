package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"canopy/internal/domain"
)

// dbtx is satisfied by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// itemTable holds the queries shared by every positioned, trashable item
// table. Table and column names are compile-time constants.
type itemTable[T domain.Node] struct {
	q       dbtx
	kind    domain.Kind
	table   string
	columns string
	scan    func(rowScanner) (T, error)
}

func (t *itemTable[T]) withQuerier(q dbtx) *itemTable[T] {
	clone := *t
	clone.q = q
	return &clone
}

func (t *itemTable[T]) FindByID(ctx context.Context, id string) (T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.columns, t.table)
	item, err := t.scan(t.q.QueryRowContext(ctx, query, id))
	if err != nil {
		var zero T
		return zero, wrapErr(t.kind, id, "find "+string(t.kind), err)
	}
	return item, nil
}

// MaxSiblingPosition reports the highest position among active items sharing
// parentID (nil means root) in workspaceID. ok is false when there are none.
func (t *itemTable[T]) MaxSiblingPosition(ctx context.Context, workspaceID string, parentID *string) (float64, bool, error) {
	query := fmt.Sprintf(`
		SELECT MAX(position) FROM %s
		WHERE workspace_id = $1 AND parent_id IS NOT DISTINCT FROM $2::text AND deleted_at IS NULL
	`, t.table)
	var max sql.NullFloat64
	if err := t.q.QueryRowContext(ctx, query, workspaceID, nullString(parentID)).Scan(&max); err != nil {
		return 0, false, wrapErr(t.kind, workspaceID, "max sibling position", err)
	}
	return max.Float64, max.Valid, nil
}

func (t *itemTable[T]) SetParent(ctx context.Context, id string, parentID *string, position float64) error {
	query := fmt.Sprintf(`UPDATE %s SET parent_id = $2, position = $3, updated_at = NOW() WHERE id = $1`, t.table)
	result, err := t.q.ExecContext(ctx, query, id, nullString(parentID), position)
	if err != nil {
		ref := id
		if parentID != nil {
			ref = *parentID
		}
		return wrapErr(t.kind, ref, "set parent", err)
	}
	return expectOne(t.kind, id, "set parent", result)
}

// ListChildren returns direct children of parentID regardless of trash state.
func (t *itemTable[T]) ListChildren(ctx context.Context, parentID string) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE parent_id = $1 ORDER BY position, id`, t.columns, t.table)
	return t.list(ctx, "list children", query, parentID)
}

// ListActiveChildren returns the untrashed children of parentID in position order.
func (t *itemTable[T]) ListActiveChildren(ctx context.Context, workspaceID string, parentID *string) ([]T, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE workspace_id = $1 AND parent_id IS NOT DISTINCT FROM $2::text AND deleted_at IS NULL
		ORDER BY position, id
	`, t.columns, t.table)
	return t.list(ctx, "list active children", query, workspaceID, nullString(parentID))
}

func (t *itemTable[T]) ListTrashed(ctx context.Context, workspaceID string) ([]T, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE workspace_id = $1 AND deleted_at IS NOT NULL
		ORDER BY deleted_at DESC, id
	`, t.columns, t.table)
	return t.list(ctx, "list trashed", query, workspaceID)
}

func (t *itemTable[T]) MarkTrashed(ctx context.Context, id string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, updated_at = NOW() WHERE id = $1`, t.table)
	result, err := t.q.ExecContext(ctx, query, id, at.UTC())
	if err != nil {
		return wrapErr(t.kind, id, "mark trashed", err)
	}
	return expectOne(t.kind, id, "mark trashed", result)
}

// MarkChildrenTrashed stamps every direct child with at, including children
// trashed earlier on their own.
func (t *itemTable[T]) MarkChildrenTrashed(ctx context.Context, parentID string, at time.Time) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = $2, updated_at = NOW() WHERE parent_id = $1`, t.table)
	return t.execCount(ctx, "mark children trashed", query, parentID, at.UTC())
}

func (t *itemTable[T]) ClearTrashed(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = NULL, updated_at = NOW() WHERE id = $1`, t.table)
	result, err := t.q.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(t.kind, id, "clear trashed", err)
	}
	return expectOne(t.kind, id, "clear trashed", result)
}

func (t *itemTable[T]) ClearChildrenTrashed(ctx context.Context, parentID string) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = NULL, updated_at = NOW() WHERE parent_id = $1 AND deleted_at IS NOT NULL`, t.table)
	return t.execCount(ctx, "clear children trashed", query, parentID)
}

// Delete removes the row. Children keep existing as roots through the
// parent_id foreign key's ON DELETE SET NULL.
func (t *itemTable[T]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.table)
	result, err := t.q.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(t.kind, id, "delete "+string(t.kind), err)
	}
	return expectOne(t.kind, id, "delete "+string(t.kind), result)
}

func (t *itemTable[T]) list(ctx context.Context, op, query string, args ...any) ([]T, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(t.kind, "", op, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, wrapErr(t.kind, "", op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(t.kind, "", op, err)
	}
	return items, nil
}

func (t *itemTable[T]) execCount(ctx context.Context, op, query string, args ...any) (int64, error) {
	result, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(t.kind, "", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, &domain.PersistenceError{Op: op, Err: err}
	}
	return affected, nil
}

// inTx runs fn inside a transaction on db. When q is already a transaction
// fn joins it.
func inTx(ctx context.Context, db *sql.DB, q dbtx, fn func(dbtx) error) error {
	if _, nested := q.(*sql.Tx); nested || db == nil {
		return fn(q)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.PersistenceError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.PersistenceError{Op: "commit tx", Err: err}
	}
	return nil
}

func nullString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC()
}

func nullJSON(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time.UTC()
	return &v
}
