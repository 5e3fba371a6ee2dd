// Package solution implements the Solution Registry (§4.C): a concurrent
// read-mostly catalog of pipeline templates, seeded with built-in
// defaults and augmented with user-persisted custom solutions.
package solution

import (
	"strings"
	"sync"

	"github.com/oriys/nova/internal/domain"
)

// Store is the persistence contract the Registry needs for custom
// (non-default) solutions; internal/solutionstore (backed by a single
// JSON file, mirroring internal/instancestore) implements it.
type Store interface {
	SaveAll(map[string]*domain.Solution) error
	LoadAll() (map[string]*domain.Solution, error)
}

// Registry is a concurrent map from solution id to template, with the
// default/custom distinction from §4.C.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*domain.Solution
	store Store
}

// New builds an empty registry. Call InitializeDefaults then LoadPersisted
// to reach the startup state described in §4.C.
func New(store Store) *Registry {
	return &Registry{items: make(map[string]*domain.Solution), store: store}
}

// InitializeDefaults populates the fixed, code-defined built-in solutions.
// Every built-in is marked IsDefault=true and is never written to storage.
func (r *Registry) InitializeDefaults() {
	for _, s := range builtins() {
		cp := s
		cp.IsDefault = true
		r.mu.Lock()
		r.items[cp.SolutionID] = &cp
		r.mu.Unlock()
	}
}

// LoadPersisted loads custom solutions from the store, skipping any
// record flagged IsDefault=true (defaults exist only in code).
func (r *Registry) LoadPersisted() error {
	if r.store == nil {
		return nil
	}
	persisted, err := r.store.LoadAll()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range persisted {
		if s.IsDefault {
			continue
		}
		s.IsDefault = false
		r.items[id] = s
	}
	return nil
}

// Register adds or replaces a solution (custom only; registering over a
// default id is rejected).
func (r *Registry) Register(s *domain.Solution) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.items[s.SolutionID]; ok && existing.IsDefault {
		return domain.ErrDefaultEntity
	}
	s.IsDefault = false
	r.items[s.SolutionID] = s
	return r.persistLocked()
}

// Get returns the solution for id.
func (r *Registry) Get(id string) (*domain.Solution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	return s, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns all solution ids.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	return ids
}

// GetAll returns a snapshot copy of the full catalog.
func (r *Registry) GetAll() map[string]*domain.Solution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.Solution, len(r.items))
	for id, s := range r.items {
		out[id] = s
	}
	return out
}

// IsDefault reports whether id names a built-in solution.
func (r *Registry) IsDefault(id string) bool {
	s, ok := r.Get(id)
	return ok && s.IsDefault
}

// Update replaces a non-default solution's contents. It fails for unknown
// or default ids.
func (r *Registry) Update(id string, s *domain.Solution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.IsDefault {
		return domain.ErrDefaultEntity
	}
	s.SolutionID = id
	s.IsDefault = false
	r.items[id] = s
	return r.persistLocked()
}

// Delete removes a non-default solution. Deleting a default id fails;
// deleting an unknown id fails with NotFound.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.IsDefault {
		return domain.ErrDefaultEntity
	}
	delete(r.items, id)
	return r.persistLocked()
}

func (r *Registry) persistLocked() error {
	if r.store == nil {
		return nil
	}
	custom := make(map[string]*domain.Solution)
	for id, s := range r.items {
		if !s.IsDefault {
			custom[id] = s
		}
	}
	return r.store.SaveAll(custom)
}

// ResolveParam substitutes the literal "{instanceId}" token and every
// "${KEY}" reference in value using requestParams; a key absent from
// requestParams resolves to "".
func (r *Registry) ResolveParam(value, instanceID string, requestParams map[string]string) string {
	out := strings.ReplaceAll(value, "{instanceId}", instanceID)
	for strings.Contains(out, "${") {
		start := strings.Index(out, "${")
		end := strings.Index(out[start:], "}")
		if end < 0 {
			break
		}
		end += start
		key := out[start+2 : end]
		val, ok := requestParams[key]
		if !ok {
			val = ""
		}
		out = out[:start] + val + out[end+1:]
	}
	return out
}

func builtins() []domain.Solution {
	return []domain.Solution{
		{
			SolutionID:  "face_detection",
			DisplayName: "Face Detection",
			Type:        "face",
			Nodes: []domain.NodeDescriptor{
				{NodeType: "rtsp_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}},
				{NodeType: "face_detector", NameTemplate: "face_detector_{instanceId}", Parameters: map[string]string{
					"modelPath": "${MODEL_PATH}",
					"threshold": "${detectionSensitivity}",
				}},
				{NodeType: "null_sink", NameTemplate: "sink_{instanceId}"},
			},
		},
		{
			SolutionID:  "object_detection",
			DisplayName: "Object Detection",
			Type:        "object",
			Nodes: []domain.NodeDescriptor{
				{NodeType: "rtsp_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}},
				{NodeType: "object_detector", NameTemplate: "object_detector_{instanceId}", Parameters: map[string]string{
					"modelPath": "${MODEL_PATH}",
					"threshold": "${detectionSensitivity}",
				}},
				{NodeType: "null_sink", NameTemplate: "sink_{instanceId}"},
			},
		},
		{
			SolutionID:  "face_detection_file",
			DisplayName: "Face Detection (File Source)",
			Type:        "face",
			Nodes: []domain.NodeDescriptor{
				{NodeType: "file_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"path": "${FILE_PATH}"}},
				{NodeType: "face_detector", NameTemplate: "face_detector_{instanceId}", Parameters: map[string]string{
					"modelPath": "${MODEL_PATH}",
					"threshold": "${detectionSensitivity}",
				}},
				{NodeType: "null_sink", NameTemplate: "sink_{instanceId}"},
			},
		},
		{
			SolutionID:  "face_detection_rtmp",
			DisplayName: "Face Detection (RTMP Output)",
			Type:        "face",
			Nodes: []domain.NodeDescriptor{
				{NodeType: "rtsp_source", NameTemplate: "source_{instanceId}", Parameters: map[string]string{"uri": "${RTSP_URL}"}},
				{NodeType: "face_detector", NameTemplate: "face_detector_{instanceId}", Parameters: map[string]string{
					"modelPath": "${MODEL_PATH}",
					"threshold": "${detectionSensitivity}",
				}},
				{NodeType: "rtmp_sink", NameTemplate: "sink_{instanceId}", Parameters: map[string]string{"uri": "${RTMP_URL}"}},
			},
		},
	}
}
