package solutionstore

import (
	"testing"

	"github.com/oriys/nova/internal/domain"
)

func TestSaveAllLoadAllRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := map[string]*domain.Solution{
		"custom-1": {SolutionID: "custom-1", DisplayName: "Custom One"},
	}
	if err := store.SaveAll(in); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	out, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(out) != 1 || out["custom-1"].DisplayName != "Custom One" {
		t.Fatalf("LoadAll = %+v", out)
	}
}

func TestLoadAllMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty map, got %+v", out)
	}
}
