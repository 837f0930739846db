package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// NotFoundError is returned by Registry.Resolve when no backend is registered
// under the requested runner name. It carries the full set of known names for
// diagnostic surfacing; the condition is terminal for the caller's request
// but harmless to the registry itself.
type NotFoundError struct {
	Name  string
	Known []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unavailable backend %q, available backends: %s", e.Name, strings.Join(e.Known, ", "))
}

// Info pairs a registered runner name with the backend's capabilities.
type Info struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry maps logical runner names to backend implementations. It is
// read-mostly: backends are registered at process start and lookups are safe
// for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty backend registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
	}
}

// Register adds a backend to the registry under the given runner name.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

// Resolve returns the backend registered under name. Lookups are
// case-sensitive exact matches. An unregistered name yields a *NotFoundError
// listing every currently known name.
func (r *Registry) Resolve(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, &NotFoundError{Name: name, Known: r.namesLocked()}
	}
	return b, nil
}

// Names returns all registered runner names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.namesLocked()
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns information about all registered backends, sorted by runner
// name for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.backends))
	for name, b := range r.backends {
		infos = append(infos, Info{
			Name:         name,
			Capabilities: b.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
