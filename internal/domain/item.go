// Package domain holds the item vocabulary shared by the hierarchy, lifecycle,
// triage and board components: tasks, notes, their statuses and the error
// taxonomy every layer speaks.
package domain

import (
	"encoding/json"
	"time"
)

// Kind names an item family. Each kind lives in its own forest.
type Kind string

const (
	KindTask Kind = "task"
	KindNote Kind = "note"

	KindWorkspace Kind = "workspace"
)

// Node is the shape the hierarchy and lifecycle components need from an item.
type Node interface {
	NodeID() string
	NodeWorkspaceID() string
	NodeParentID() *string
	NodeDeletedAt() *time.Time
	// MediaContent is the opaque payload scanned for storage references on purge.
	MediaContent() json.RawMessage
}

// ParentKey renders a nullable parent id for logs and cache keys.
func ParentKey(parentID *string) string {
	if parentID == nil {
		return "<root>"
	}
	return *parentID
}

// SameParent reports whether two nullable parent ids point at the same scope.
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SearchHit is one title match returned by search.
type SearchHit struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
}
