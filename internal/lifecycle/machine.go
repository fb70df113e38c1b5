// Package lifecycle moves items between ACTIVE, TRASHED and PURGED.
//
// An item is TRASHED exactly when its deleted_at is set. Trash and restore
// cascade to direct children only; grandchildren keep whatever state they had.
// Purge is terminal and removes the row after a best-effort media cleanup.
package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"canopy/internal/domain"
	"canopy/internal/hierarchy"
)

type Store[T domain.Node] interface {
	hierarchy.Store[T]
	// ListChildren returns every direct child, trashed or not, by position.
	ListChildren(ctx context.Context, parentID string) ([]T, error)
	MarkTrashed(ctx context.Context, id string, at time.Time) error
	MarkChildrenTrashed(ctx context.Context, parentID string, at time.Time) (int64, error)
	ClearTrashed(ctx context.Context, id string) error
	ClearChildrenTrashed(ctx context.Context, parentID string) (int64, error)
	Delete(ctx context.Context, id string) error
}

// UnitOfWork runs fn against a store bound to a single transaction and
// commits only when fn returns nil.
type UnitOfWork[T domain.Node] func(ctx context.Context, fn func(Store[T]) error) error

// Media extracts external storage references from an item payload and removes
// them out of band.
type Media interface {
	References(content json.RawMessage) []string
	Remove(ctx context.Context, refs []string) error
}

type Machine[T domain.Node] struct {
	kind  domain.Kind
	store Store[T]
	inTx  UnitOfWork[T]
	media Media
	now   func() time.Time
	log   zerolog.Logger
}

func New[T domain.Node](kind domain.Kind, store Store[T], inTx UnitOfWork[T], media Media, logger zerolog.Logger) *Machine[T] {
	return &Machine[T]{
		kind:  kind,
		store: store,
		inTx:  inTx,
		media: media,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.With().Str("kind", string(kind)).Logger(),
	}
}

// Trash marks the item deleted. With cascadeChildren its direct children are
// trashed with the same timestamp; without it they are promoted to the item's
// own parent and appended to the end of that scope in their current order.
func (m *Machine[T]) Trash(ctx context.Context, id string, cascadeChildren bool) error {
	return m.inTx(ctx, func(tx Store[T]) error {
		item, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		at := m.now()
		if err := tx.MarkTrashed(ctx, id, at); err != nil {
			return err
		}

		if cascadeChildren {
			count, err := tx.MarkChildrenTrashed(ctx, id, at)
			if err != nil {
				return err
			}
			m.log.Info().Str("item_id", id).Int64("children", count).Msg("item trashed with children")
			return nil
		}

		promoted, err := m.promoteChildren(ctx, tx, item)
		if err != nil {
			return err
		}
		m.log.Info().Str("item_id", id).Int("promoted", promoted).Msg("item trashed, children promoted")
		return nil
	})
}

func (m *Machine[T]) promoteChildren(ctx context.Context, tx Store[T], item T) (int, error) {
	children, err := tx.ListChildren(ctx, item.NodeID())
	if err != nil {
		return 0, err
	}
	if len(children) == 0 {
		return 0, nil
	}

	grandparent := item.NodeParentID()
	base, err := hierarchy.New[T](m.kind, tx, m.log).AppendToEnd(ctx, item.NodeWorkspaceID(), grandparent)
	if err != nil {
		return 0, err
	}
	for i, child := range children {
		position := base + float64(i*hierarchy.PositionGap)
		if err := tx.SetParent(ctx, child.NodeID(), grandparent, position); err != nil {
			return 0, err
		}
	}
	return len(children), nil
}

// Restore clears deleted_at on the item and on every trashed direct child,
// including children that were trashed on their own before the parent.
func (m *Machine[T]) Restore(ctx context.Context, id string) error {
	return m.inTx(ctx, func(tx Store[T]) error {
		if _, err := tx.FindByID(ctx, id); err != nil {
			return err
		}
		if err := tx.ClearTrashed(ctx, id); err != nil {
			return err
		}
		count, err := tx.ClearChildrenTrashed(ctx, id)
		if err != nil {
			return err
		}
		m.log.Info().Str("item_id", id).Int64("children", count).Msg("item restored")
		return nil
	})
}

// Purge hard-deletes the item. Media referenced by its content is removed
// first; a cleanup failure is logged and the delete still happens.
func (m *Machine[T]) Purge(ctx context.Context, id string) error {
	item, err := m.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if m.media != nil {
		refs := m.media.References(item.MediaContent())
		if len(refs) > 0 {
			if err := m.media.Remove(ctx, refs); err != nil {
				m.log.Warn().Err(err).Str("item_id", id).Int("refs", len(refs)).Msg("media cleanup failed")
			}
		}
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.log.Info().Str("item_id", id).Msg("item purged")
	return nil
}
