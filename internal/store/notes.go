package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"canopy/internal/domain"
)

const noteColumns = `id, workspace_id, parent_id, position, created_by_id, title, content, is_public,
	deleted_at, created_at, updated_at`

type NoteRepo struct {
	*itemTable[domain.Note]
	db *sql.DB
}

func newNoteRepo(db *sql.DB, q dbtx) *NoteRepo {
	return &NoteRepo{
		itemTable: &itemTable[domain.Note]{
			q:       q,
			kind:    domain.KindNote,
			table:   "notes",
			columns: noteColumns,
			scan:    scanNote,
		},
		db: db,
	}
}

func (r *NoteRepo) InTx(ctx context.Context, fn func(*NoteRepo) error) error {
	return inTx(ctx, r.db, r.q, func(q dbtx) error {
		return fn(&NoteRepo{itemTable: r.withQuerier(q), db: r.db})
	})
}

func (r *NoteRepo) Create(ctx context.Context, note domain.Note) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notes (id, workspace_id, parent_id, position, created_by_id, title, content, is_public,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, note.ID, note.WorkspaceID, nullString(note.ParentID), note.Position, note.CreatedByID, note.Title,
		nullJSON(note.Content), note.IsPublic, note.CreatedAt.UTC())
	if err != nil {
		ref := note.WorkspaceID
		if note.ParentID != nil {
			ref = *note.ParentID
		}
		return wrapErr(domain.KindNote, ref, "insert note", err)
	}
	return nil
}

// UpdateContent changes the editable note fields; nil arguments are left alone.
func (r *NoteRepo) UpdateContent(ctx context.Context, workspaceID, noteID string, title *string, content *json.RawMessage, isPublic *bool) (domain.Note, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{noteID, workspaceID}
	if title != nil {
		args = append(args, *title)
		sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
	}
	if content != nil {
		args = append(args, nullJSON(*content))
		sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
	}
	if isPublic != nil {
		args = append(args, *isPublic)
		sets = append(sets, fmt.Sprintf("is_public = $%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE notes SET %s WHERE id = $1 AND workspace_id = $2 RETURNING %s`,
		strings.Join(sets, ", "), noteColumns)
	note, err := scanNote(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return domain.Note{}, wrapErr(domain.KindNote, noteID, "update note", err)
	}
	return note, nil
}

func scanNote(row rowScanner) (domain.Note, error) {
	var (
		note      domain.Note
		parentID  sql.NullString
		content   []byte
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&note.ID, &note.WorkspaceID, &parentID, &note.Position, &note.CreatedByID, &note.Title, &content,
		&note.IsPublic, &deletedAt, &note.CreatedAt, &note.UpdatedAt,
	)
	if err != nil {
		return domain.Note{}, err
	}
	note.ParentID = stringPtr(parentID)
	if len(content) > 0 {
		note.Content = content
	}
	note.DeletedAt = timePtr(deletedAt)
	note.CreatedAt = note.CreatedAt.UTC()
	note.UpdatedAt = note.UpdatedAt.UTC()
	return note, nil
}
