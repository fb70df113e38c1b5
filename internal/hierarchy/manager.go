// Package hierarchy orders sibling items and moves subtrees between parents.
// One Manager serves every item kind; the store decides which table backs it.
package hierarchy

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"canopy/internal/domain"
)

// PositionGap separates consecutive end-appended siblings.
const PositionGap = 1000

type Store[T domain.Node] interface {
	FindByID(ctx context.Context, id string) (T, error)
	// MaxSiblingPosition reports the largest position among active items in
	// the (workspaceID, parentID) scope; ok is false when the scope is empty.
	MaxSiblingPosition(ctx context.Context, workspaceID string, parentID *string) (max float64, ok bool, err error)
	SetParent(ctx context.Context, id string, parentID *string, position float64) error
}

type Manager[T domain.Node] struct {
	kind  domain.Kind
	store Store[T]
	log   zerolog.Logger
}

func New[T domain.Node](kind domain.Kind, store Store[T], logger zerolog.Logger) *Manager[T] {
	return &Manager[T]{kind: kind, store: store, log: logger.With().Str("kind", string(kind)).Logger()}
}

// AppendToEnd returns a position that sorts after every active sibling in the
// scope without touching them.
func (m *Manager[T]) AppendToEnd(ctx context.Context, workspaceID string, parentID *string) (float64, error) {
	max, ok, err := m.store.MaxSiblingPosition(ctx, workspaceID, parentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return PositionGap, nil
	}
	return max + PositionGap, nil
}

// Reparent moves itemID under newParentID (nil = root) and appends it to the
// end of its new sibling list. The ancestor check and the write are separate
// statements: two concurrent moves of one item race and the last write wins.
func (m *Manager[T]) Reparent(ctx context.Context, itemID string, newParentID *string) error {
	if newParentID != nil && *newParentID == itemID {
		return &domain.CycleError{ItemID: itemID, ParentID: itemID}
	}

	item, err := m.store.FindByID(ctx, itemID)
	if err != nil {
		return err
	}

	if newParentID != nil {
		parent, err := m.store.FindByID(ctx, *newParentID)
		if err != nil {
			return err
		}
		if parent.NodeWorkspaceID() != item.NodeWorkspaceID() {
			return &domain.NotFoundError{Kind: m.kind, ID: *newParentID}
		}
		if err := m.checkAncestors(ctx, itemID, parent); err != nil {
			return err
		}
	}

	position, err := m.AppendToEnd(ctx, item.NodeWorkspaceID(), newParentID)
	if err != nil {
		return err
	}
	if err := m.store.SetParent(ctx, itemID, newParentID, position); err != nil {
		return err
	}

	m.log.Debug().
		Str("item_id", itemID).
		Str("parent_id", domain.ParentKey(newParentID)).
		Float64("position", position).
		Msg("item reparented")
	return nil
}

// checkAncestors walks from start up to its root and fails if itemID shows up.
// The visited set bounds the walk even when stored parent links already loop.
func (m *Manager[T]) checkAncestors(ctx context.Context, itemID string, start T) error {
	visited := map[string]struct{}{}
	current := start
	for {
		id := current.NodeID()
		if id == itemID {
			return &domain.CycleError{ItemID: itemID, ParentID: start.NodeID()}
		}
		if _, seen := visited[id]; seen {
			m.log.Warn().Str("item_id", id).Msg("parent chain already contains a loop")
			return nil
		}
		visited[id] = struct{}{}

		parentID := current.NodeParentID()
		if parentID == nil {
			return nil
		}
		next, err := m.store.FindByID(ctx, *parentID)
		if errors.Is(err, domain.ErrNotFound) {
			// dangling link; the chain ends here
			return nil
		}
		if err != nil {
			return err
		}
		current = next
	}
}
