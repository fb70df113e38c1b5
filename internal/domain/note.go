package domain

import (
	"encoding/json"
	"time"
)

type Note struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspaceId"`
	ParentID    *string         `json:"parentId"`
	Position    float64         `json:"position"`
	CreatedByID string          `json:"createdById"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content,omitempty"`
	IsPublic    bool            `json:"isPublic"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (n Note) NodeID() string                { return n.ID }
func (n Note) NodeWorkspaceID() string       { return n.WorkspaceID }
func (n Note) NodeParentID() *string         { return n.ParentID }
func (n Note) NodeDeletedAt() *time.Time     { return n.DeletedAt }
func (n Note) MediaContent() json.RawMessage { return n.Content }
