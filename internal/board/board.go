// Package board is the optimistic drag-and-drop model behind a status board.
//
// A Board holds a local snapshot of cards. Dragging changes that snapshot
// immediately; only a changed status is written back when the drag ends. The
// local order is a view for the current session and is never persisted, so a
// reload shows the server order again.
package board

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"canopy/internal/domain"
)

var (
	ErrUnknownCard   = errors.New("board: unknown card")
	ErrUnknownColumn = errors.New("board: unknown column")
)

// StatusWriter persists the one field a drag can change.
type StatusWriter interface {
	UpdateTaskStatus(ctx context.Context, workspaceID, taskID string, status domain.TaskStatus) error
}

// CommitError reports a failed status write. The board keeps the optimistic
// status; the caller decides whether to put From back.
type CommitError struct {
	TaskID string
	From   domain.TaskStatus
	To     domain.TaskStatus
	Err    error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("board: persist status of %s (%s -> %s): %v", e.TaskID, e.From, e.To, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

type Phase int

const (
	Idle Phase = iota
	Dragging
)

type Card struct {
	ID          string            `json:"id"`
	WorkspaceID string            `json:"workspaceId"`
	Title       string            `json:"title"`
	Status      domain.TaskStatus `json:"status"`
	Position    float64           `json:"position"`
	// Dirty is set once the card's status moved away from its value at drag start.
	Dirty bool `json:"dirty"`
}

type Board struct {
	columns []domain.TaskStatus
	order   []string
	cards   map[string]*Card

	phase  Phase
	active string
	origin domain.TaskStatus
}

// New loads tasks in server order (position, then id). Columns default to
// every task status.
func New(tasks []domain.Task, columns ...domain.TaskStatus) *Board {
	if len(columns) == 0 {
		columns = domain.TaskStatuses
	}
	sorted := make([]domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].ID < sorted[j].ID
	})

	b := &Board{
		columns: append([]domain.TaskStatus(nil), columns...),
		order:   make([]string, 0, len(sorted)),
		cards:   make(map[string]*Card, len(sorted)),
	}
	for _, task := range sorted {
		b.order = append(b.order, task.ID)
		b.cards[task.ID] = &Card{
			ID:          task.ID,
			WorkspaceID: task.WorkspaceID,
			Title:       task.Title,
			Status:      task.Status,
			Position:    task.Position,
		}
	}
	return b
}

func (b *Board) Columns() []domain.TaskStatus {
	return append([]domain.TaskStatus(nil), b.columns...)
}

// Column returns the cards showing in one column, in local order.
func (b *Board) Column(status domain.TaskStatus) []Card {
	cards := make([]Card, 0)
	for _, id := range b.order {
		if card := b.cards[id]; card.Status == status {
			cards = append(cards, *card)
		}
	}
	return cards
}

// Order returns every card id in local order.
func (b *Board) Order() []string {
	return append([]string(nil), b.order...)
}

func (b *Board) Card(id string) (Card, bool) {
	card, ok := b.cards[id]
	if !ok {
		return Card{}, false
	}
	return *card, true
}

func (b *Board) Phase() Phase { return b.phase }

// Active returns the dragged card id while a drag is in progress.
func (b *Board) Active() (string, bool) {
	return b.active, b.phase == Dragging
}

// SetStatus applies a status from outside a drag, e.g. to undo a failed commit.
func (b *Board) SetStatus(id string, status domain.TaskStatus) error {
	card, ok := b.cards[id]
	if !ok {
		return ErrUnknownCard
	}
	card.Status = status
	return nil
}

// DragStart records id as the active card and remembers its status.
func (b *Board) DragStart(id string) error {
	card, ok := b.cards[id]
	if !ok {
		return ErrUnknownCard
	}
	b.clearDirty()
	b.phase = Dragging
	b.active = id
	b.origin = card.Status
	return nil
}

// DragOverCard moves the active card next to overID. Hovering a card in
// another column also takes that column's status.
func (b *Board) DragOverCard(overID string) {
	if b.phase != Dragging || overID == b.active {
		return
	}
	over, ok := b.cards[overID]
	if !ok {
		return
	}
	active := b.cards[b.active]
	if active.Status != over.Status {
		b.setActiveStatus(over.Status)
	}
	b.move(b.indexOf(b.active), b.indexOf(overID))
}

// DragOverColumn takes the status of an empty column region. The local order
// is left alone.
func (b *Board) DragOverColumn(status domain.TaskStatus) error {
	if b.phase != Dragging {
		return nil
	}
	if !b.hasColumn(status) {
		return ErrUnknownColumn
	}
	b.setActiveStatus(status)
	return nil
}

// DragEnd finishes the drag. The status is written once, and only when it
// differs from the status at drag start. The local order is never written.
func (b *Board) DragEnd(ctx context.Context, writer StatusWriter) (bool, error) {
	if b.phase != Dragging {
		return false, nil
	}
	card := b.cards[b.active]
	origin := b.origin
	b.reset()

	if card.Status == origin {
		return false, nil
	}
	if err := writer.UpdateTaskStatus(ctx, card.WorkspaceID, card.ID, card.Status); err != nil {
		return false, &CommitError{TaskID: card.ID, From: origin, To: card.Status, Err: err}
	}
	return true, nil
}

// DragCancel ends a drag without a drop target. Nothing is written and the
// last optimistic state stays on the board.
func (b *Board) DragCancel() {
	if b.phase != Dragging {
		return
	}
	b.reset()
}

func (b *Board) setActiveStatus(status domain.TaskStatus) {
	card := b.cards[b.active]
	card.Status = status
	card.Dirty = status != b.origin
}

func (b *Board) reset() {
	b.clearDirty()
	b.phase = Idle
	b.active = ""
	b.origin = ""
}

func (b *Board) clearDirty() {
	for _, card := range b.cards {
		card.Dirty = false
	}
}

func (b *Board) hasColumn(status domain.TaskStatus) bool {
	for _, column := range b.columns {
		if column == status {
			return true
		}
	}
	return false
}

func (b *Board) indexOf(id string) int {
	for i, candidate := range b.order {
		if candidate == id {
			return i
		}
	}
	return -1
}

// move takes the id at from out of the order and reinserts it at to.
func (b *Board) move(from, to int) {
	if from < 0 || to < 0 || from == to {
		return
	}
	id := b.order[from]
	b.order = append(b.order[:from], b.order[from+1:]...)
	b.order = append(b.order[:to], append([]string{id}, b.order[to:]...)...)
}
