package solution

import (
	"testing"

	"github.com/oriys/nova/internal/domain"
)

type memStore struct {
	saved map[string]*domain.Solution
}

func (m *memStore) SaveAll(s map[string]*domain.Solution) error {
	m.saved = s
	return nil
}

func (m *memStore) LoadAll() (map[string]*domain.Solution, error) {
	return m.saved, nil
}

func TestInitializeDefaults(t *testing.T) {
	r := New(nil)
	r.InitializeDefaults()

	if !r.Has("face_detection") {
		t.Fatal("expected face_detection default")
	}
	if !r.IsDefault("face_detection") {
		t.Fatal("expected face_detection to be marked default")
	}
}

func TestDelete_DefaultSolutionFails(t *testing.T) {
	r := New(nil)
	r.InitializeDefaults()

	if err := r.Delete("face_detection"); err == nil {
		t.Fatal("expected error deleting default solution")
	}
}

func TestRegister_DefaultNeverPersisted(t *testing.T) {
	store := &memStore{}
	r := New(store)
	r.InitializeDefaults()

	custom := &domain.Solution{
		SolutionID: "custom1",
		IsDefault:  true, // attempt to smuggle a default flag in
		Nodes:      []domain.NodeDescriptor{{NodeType: "rtsp_source", NameTemplate: "s_{instanceId}"}},
	}
	if err := r.Register(custom); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if store.saved["custom1"].IsDefault {
		t.Fatal("custom solution should have IsDefault forced false")
	}
	if _, ok := store.saved["face_detection"]; ok {
		t.Fatal("default solution must never be persisted")
	}
}

func TestLoadPersisted_SkipsDefaultFlagged(t *testing.T) {
	store := &memStore{saved: map[string]*domain.Solution{
		"sneaky": {SolutionID: "sneaky", IsDefault: true, Nodes: []domain.NodeDescriptor{{NodeType: "x", NameTemplate: "n"}}},
		"real":   {SolutionID: "real", IsDefault: false, Nodes: []domain.NodeDescriptor{{NodeType: "x", NameTemplate: "n"}}},
	}}
	r := New(store)
	r.InitializeDefaults()
	if err := r.LoadPersisted(); err != nil {
		t.Fatalf("LoadPersisted: %v", err)
	}

	if !r.Has("real") {
		t.Fatal("expected real solution to load")
	}
	if s, ok := r.Get("sneaky"); ok && s.IsDefault {
		t.Fatal("record flagged default in storage must be skipped or have flag stripped")
	}
}

func TestResolveParam(t *testing.T) {
	r := New(nil)
	got := r.ResolveParam("prefix_{instanceId}_${KEY}", "inst-1", map[string]string{"KEY": "value"})
	want := "prefix_inst-1_value"
	if got != want {
		t.Fatalf("ResolveParam = %q, want %q", got, want)
	}
}

func TestResolveParam_MissingKeyFallsThroughEmpty(t *testing.T) {
	r := New(nil)
	got := r.ResolveParam("${MISSING}", "inst-1", map[string]string{})
	if got != "" {
		t.Fatalf("ResolveParam = %q, want empty string", got)
	}
}
