package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("tsk")
	if !strings.HasPrefix(id, "tsk_") || len(id) != len("tsk_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("tsk") == id {
		t.Fatal("expected unique ids")
	}
	if bare := NewID(""); strings.Contains(bare, "_") || len(bare) != 32 {
		t.Fatalf("unexpected bare id %q", bare)
	}
}
