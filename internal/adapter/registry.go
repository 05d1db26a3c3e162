package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the registered model adapters. Registration is validated
// up front so lookup never has to re-check capability wiring at call time.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]ModelAdapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]ModelAdapter)}
}

// Register adds an adapter. It rejects nil adapters, empty IDs and
// duplicate registrations.
func (r *Registry) Register(a ModelAdapter) error {
	if a == nil {
		return fmt.Errorf("register: adapter is nil")
	}
	id := a.ID()
	if id == "" {
		return fmt.Errorf("register: adapter has empty ID")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return fmt.Errorf("register: adapter %q already registered", id)
	}
	r.adapters[id] = a
	return nil
}

// Get returns the adapter for id.
func (r *Registry) Get(id string) (ModelAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns all registered adapter IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Available returns the IDs of adapters whose probe currently reports healthy.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id, a := range r.adapters {
		if a.Available() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
