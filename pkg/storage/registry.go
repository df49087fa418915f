package storage

import (
	"sort"
	"sync"
)

// Registry holds the configured backends by name
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Gateway
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Gateway)}
}

// Register adds or replaces a backend
func (r *Registry) Register(name string, gw Gateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = gw
}

// Get returns the backend registered under name
func (r *Registry) Get(name string) (Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.backends[name]
	return gw, ok
}

// Names returns the registered backend names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
