package domain

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
)

func TestErrorTaxonomyMatchesSentinels(t *testing.T) {
	cycle := fmt.Errorf("move: %w", &CycleError{ItemID: "a", ParentID: "b"})
	if !errors.Is(cycle, ErrCycle) {
		t.Fatalf("expected wrapped CycleError to match ErrCycle")
	}
	var cycleErr *CycleError
	if !errors.As(cycle, &cycleErr) || cycleErr.ParentID != "b" {
		t.Fatalf("expected errors.As to recover the cycle details, got %+v", cycleErr)
	}

	missing := &NotFoundError{Kind: KindTask, ID: "t1"}
	if !errors.Is(missing, ErrNotFound) {
		t.Fatalf("expected NotFoundError to match ErrNotFound")
	}
	if missing.Error() != "task t1 not found" {
		t.Fatalf("unexpected message %q", missing.Error())
	}

	persist := &PersistenceError{Op: "update task", Err: sql.ErrConnDone}
	if !errors.Is(persist, ErrPersistence) || !errors.Is(persist, sql.ErrConnDone) {
		t.Fatalf("expected PersistenceError to match both sentinel and cause")
	}
}

func TestCycleErrorMessage(t *testing.T) {
	self := &CycleError{ItemID: "a", ParentID: "a"}
	if self.Error() != "cycle: a cannot be its own parent" {
		t.Fatalf("unexpected message %q", self.Error())
	}
}

func TestStatusVocabulary(t *testing.T) {
	if !StatusInReview.Valid() || TaskStatus("BLOCKED").Valid() {
		t.Fatalf("unexpected status validity")
	}
	if !StatusDone.Closed() || !StatusCancelled.Closed() || StatusInReview.Closed() {
		t.Fatalf("unexpected closed set")
	}
	if !PriorityNone.Valid() || Priority("P0").Valid() {
		t.Fatalf("unexpected priority validity")
	}
}
