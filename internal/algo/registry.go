package algo

import (
	"fmt"
	"sort"
	"sync"

	"github.com/blingworks/blingbot/internal/domain"
)

// Registry maps algorithm names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a Registry with the built-in algorithms
// registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NameCrossover, func(bars domain.BarSource) Algorithm {
		return NewCrossover(bars)
	})
	r.Register(NameCrossoverAgg, func(bars domain.BarSource) Algorithm {
		return NewCrossoverAgg(bars)
	})
	return r
}

// Register adds a factory under the given name, replacing any existing
// entry with the same name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// New builds the algorithm registered under name over the given bar source.
// It returns domain.ErrUnknownAlgorithm when the name is not registered.
func (r *Registry) New(name string, bars domain.BarSource) (Algorithm, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("algo %q: %w", name, domain.ErrUnknownAlgorithm)
	}
	return f(bars), nil
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
