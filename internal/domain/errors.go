package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCycle       = errors.New("cycle")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence")
)

// CycleError rejects a reparent that would make an item its own ancestor.
type CycleError struct {
	ItemID   string
	ParentID string
}

func (e *CycleError) Error() string {
	if e.ItemID == e.ParentID {
		return fmt.Sprintf("cycle: %s cannot be its own parent", e.ItemID)
	}
	return fmt.Sprintf("cycle: %s is a descendant of %s", e.ParentID, e.ItemID)
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Kind)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// PersistenceError wraps a failed store read or write. The cause stays reachable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
