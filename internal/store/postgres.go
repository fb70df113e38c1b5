package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"canopy/internal/domain"
)

type PostgresStore struct {
	db    *sql.DB
	tasks *TaskRepo
	notes *NoteRepo
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:    db,
		tasks: newTaskRepo(db, db),
		notes: newNoteRepo(db, db),
	}
}

func (s *PostgresStore) Tasks() *TaskRepo {
	return s.tasks
}

func (s *PostgresStore) Notes() *NoteRepo {
	return s.notes
}

func (s *PostgresStore) CreateWorkspace(ctx context.Context, workspace domain.Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, name, created_at) VALUES ($1, $2, $3)
	`, workspace.ID, workspace.Name, workspace.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertMember(ctx context.Context, member domain.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, email, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role
	`, member.WorkspaceID, member.UserID, member.Email, member.Role)
	if err != nil {
		return wrapErr(domain.KindWorkspace, member.WorkspaceID, "upsert member", err)
	}
	return nil
}

// WorkspaceRole returns the caller's role in workspaceID, or "" when they are
// not a member.
func (s *PostgresStore) WorkspaceRole(ctx context.Context, workspaceID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2
	`, workspaceID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup member role: %w", err)
	}
	return role, nil
}

// SearchTitles is a case-insensitive title match across tasks and notes. It
// backs search when no index is configured. kind narrows the match to one
// table before the limit applies.
func (s *PostgresStore) SearchTitles(ctx context.Context, workspaceID, query string, kind domain.Kind, limit int) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.SearchHit{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, title FROM (
			SELECT id, 'task' AS kind, title, updated_at FROM tasks
			WHERE workspace_id = $1 AND deleted_at IS NULL AND title ILIKE $2
			UNION ALL
			SELECT id, 'note' AS kind, title, updated_at FROM notes
			WHERE workspace_id = $1 AND deleted_at IS NULL AND title ILIKE $2
		) hits
		WHERE $3::text = '' OR kind = $3::text
		ORDER BY updated_at DESC, id
		LIMIT $4
	`, workspaceID, pattern, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("search titles: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0)
	for rows.Next() {
		var (
			hit     domain.SearchHit
			hitKind string
		)
		if err := rows.Scan(&hit.ID, &hitKind, &hit.Title); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hit.Kind = domain.Kind(hitKind)
		hit.WorkspaceID = workspaceID
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ActiveTitles lists every active task and note across workspaces for a full
// index rebuild.
func (s *PostgresStore) ActiveTitles(ctx context.Context) ([]domain.SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, 'task' AS kind, title FROM tasks WHERE deleted_at IS NULL
		UNION ALL
		SELECT id, workspace_id, 'note' AS kind, title FROM notes WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("list active titles: %w", err)
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0)
	for rows.Next() {
		var (
			hit  domain.SearchHit
			kind string
		)
		if err := rows.Scan(&hit.ID, &hit.WorkspaceID, &kind, &hit.Title); err != nil {
			return nil, fmt.Errorf("scan active title: %w", err)
		}
		hit.Kind = domain.Kind(kind)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
