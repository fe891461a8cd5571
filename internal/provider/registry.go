package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe registry of provider adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Duplicate registrations overwrite the previous entry.
func (r *Registry) Register(a Adapter) error {
	info := a.Info()
	if info.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[info.Name] = a
	return nil
}

// Unregister removes an adapter from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
}

// Get returns an adapter by name, or an error if not found.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return a, nil
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Adapters returns a snapshot of all adapters sorted by name.
func (r *Registry) Adapters() []Adapter {
	r.mu.RLock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Info().Name < out[j].Info().Name
	})
	return out
}

// List returns info about all registered adapters, sorted by name.
func (r *Registry) List() []ProviderInfo {
	adapters := r.Adapters()
	infos := make([]ProviderInfo, len(adapters))
	for i, a := range adapters {
		infos[i] = a.Info()
	}
	return infos
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	infos := r.List()
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}
