package search

import (
	"context"

	"canopy/internal/domain"
)

// Query describes a search request.
type Query struct {
	Text        string
	WorkspaceID string
	Kind        domain.Kind // empty = tasks and notes
	Limit       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []domain.SearchHit `json:"results"`
	Total   int                `json:"total"`
	Query   string             `json:"query"`
}

// Record is the data we index for a task or note.
type Record struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspaceId"`
	Kind        domain.Kind `json:"kind"`
	Title       string      `json:"title"`
}

// Index is a full-text item index.
type Index interface {
	Healthy() bool
	Search(q Query) ([]domain.SearchHit, int, error)
	IndexItems(records []Record) error
	DeleteItem(id string) error
}

// Fallback answers searches when no index is reachable. An empty kind matches
// tasks and notes; the limit applies after the kind filter.
type Fallback interface {
	SearchTitles(ctx context.Context, workspaceID, query string, kind domain.Kind, limit int) ([]domain.SearchHit, error)
}

// TaskRecord builds the index record for a task.
func TaskRecord(task domain.Task) Record {
	return Record{ID: task.ID, WorkspaceID: task.WorkspaceID, Kind: domain.KindTask, Title: task.Title}
}

// NoteRecord builds the index record for a note.
func NoteRecord(note domain.Note) Record {
	return Record{ID: note.ID, WorkspaceID: note.WorkspaceID, Kind: domain.KindNote, Title: note.Title}
}

// HitRecord turns a stored title row back into an index record.
func HitRecord(hit domain.SearchHit) Record {
	return Record{ID: hit.ID, WorkspaceID: hit.WorkspaceID, Kind: hit.Kind, Title: hit.Title}
}
