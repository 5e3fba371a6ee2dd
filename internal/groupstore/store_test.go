package groupstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/nova/internal/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	g := &domain.Group{GroupID: "cameras", DisplayName: "Cameras"}
	if err := s.Save(g); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := s.Load("cameras")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.DisplayName != "Cameras" {
		t.Errorf("DisplayName = %q, want Cameras", loaded.DisplayName)
	}
}

func TestSave_AtomicWriteViaTempRename(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g := &domain.Group{GroupID: "cameras", DisplayName: "Cameras"}
	if err := s.Save(g); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "groups", "cameras.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file should not remain after rename")
	}
	if _, err := os.Stat(filepath.Join(dir, "groups", "cameras.json")); err != nil {
		t.Fatalf("expected cameras.json to exist: %v", err)
	}
}

func TestLoad_MissingReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Load("nope"); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("Load = %v, want NotFound", err)
	}
}

func TestLoadAll_ReturnsEveryPersistedGroup(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Save(&domain.Group{GroupID: id, DisplayName: id}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}
	groups, err := s.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("LoadAll returned %d groups, want 3", len(groups))
	}
}

func TestDelete_Idempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Delete("ghost"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.Delete("ghost"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
