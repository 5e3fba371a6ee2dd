// Package group implements the Group registry supplementing §3's Group
// data model: default groups cannot be deleted, non-empty groups cannot
// be deleted, read-only groups cannot be modified.
package group

import (
	"sync"

	"github.com/oriys/nova/internal/domain"
)

// Store is the persistence contract, implemented by groupstore.Store.
type Store interface {
	Save(g *domain.Group) error
	Load(groupID string) (*domain.Group, error)
	LoadAll() ([]*domain.Group, error)
	Delete(groupID string) error
}

// InstanceCounter reports how many instances currently belong to a
// group, used to enforce the non-empty-group-cannot-be-deleted rule
// without the group package depending on the instance manager.
type InstanceCounter func(groupID string) int

type Registry struct {
	mu      sync.RWMutex
	groups  map[string]*domain.Group
	store   Store
	counter InstanceCounter
}

func New(store Store, counter InstanceCounter) *Registry {
	return &Registry{groups: make(map[string]*domain.Group), store: store, counter: counter}
}

// LoadPersisted populates the registry from storage and ensures the
// fixed "default" group exists.
func (r *Registry) LoadPersisted() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		groups, err := r.store.LoadAll()
		if err != nil {
			return err
		}
		for _, g := range groups {
			r.groups[g.GroupID] = g
		}
	}

	if _, ok := r.groups["default"]; !ok {
		def := &domain.Group{GroupID: "default", DisplayName: "Default", IsDefault: true}
		r.groups["default"] = def
		if r.store != nil {
			if err := r.store.Save(def); err != nil {
				return err
			}
		}
	}
	return nil
}

// Create adds a new, non-default group.
func (r *Registry) Create(g *domain.Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.GroupID]; ok {
		return domain.ErrAlreadyExists
	}
	g.IsDefault = false
	r.groups[g.GroupID] = g
	if r.store != nil {
		return r.store.Save(g)
	}
	return nil
}

// Get returns a group with its instance count populated.
func (r *Registry) Get(groupID string) (*domain.Group, bool) {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	cp := *g
	if r.counter != nil {
		cp.InstanceCount = r.counter(groupID)
	}
	return &cp, true
}

// List returns every group with instance counts populated.
func (r *Registry) List() []*domain.Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Group, 0, len(r.groups))
	for id, g := range r.groups {
		cp := *g
		if r.counter != nil {
			cp.InstanceCount = r.counter(id)
		}
		out = append(out, &cp)
	}
	return out
}

// Update modifies a non-read-only group's display name/description.
func (r *Registry) Update(groupID, displayName, description string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return domain.ErrNotFound
	}
	if g.ReadOnly {
		return domain.ErrReadOnly
	}
	g.DisplayName = displayName
	g.Description = description
	if r.store != nil {
		return r.store.Save(g)
	}
	return nil
}

// Delete removes a group. Fails for the default group and for any group
// that still has instances assigned to it.
func (r *Registry) Delete(groupID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[groupID]
	if !ok {
		return domain.ErrNotFound
	}
	if g.IsDefault {
		return domain.ErrDefaultEntity
	}
	if r.counter != nil && r.counter(groupID) > 0 {
		return domain.ErrNonEmptyGroup
	}
	delete(r.groups, groupID)
	if r.store != nil {
		return r.store.Delete(groupID)
	}
	return nil
}
