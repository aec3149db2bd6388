package plugin

import (
	"errors"
	"slices"
	"sync"
)

// ErrNotRegistered is recorded on instances whose locator has no factory.
var ErrNotRegistered = errors.New("plugin: locator not registered")

// Factory builds one plugin. Needs must equal the collaborator set declared
// by the plugin's manifest; New receives exactly those collaborators.
type Factory struct {
	Needs Needs
	New   func(Deps) (any, error)
}

// Registry maps class locators to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds f under locator, replacing any earlier registration.
func (r *Registry) Register(locator string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[locator] = f
}

// Lookup returns the factory for locator.
func (r *Registry) Lookup(locator string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[locator]
	return f, ok
}

// Locators returns every registered locator, sorted.
func (r *Registry) Locators() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
