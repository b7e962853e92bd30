package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/ports"
)

// Factory constructs a fresh skill instance.
// It is called once per state entry, and once per simple state at load time.
type Factory func() (ports.Skill, error)

// Registry maps canonical skill names to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a skill factory to the registry.
// If a skill with the same name exists, it is overwritten.
func (r *Registry) Register(name string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// Has reports whether a factory is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New looks up a skill by name and constructs it.
// Returns an error wrapping domain.ErrSkillNotFound if the name is unknown;
// any other error is a construction failure of a known skill.
func (r *Registry) New(name string) (ports.Skill, error) {
	r.mu.RLock()
	fn, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSkillNotFound, name)
	}

	skill, err := fn()
	if err != nil {
		return nil, fmt.Errorf("construct skill %s: %w", name, err)
	}
	if skill == nil {
		return nil, fmt.Errorf("construct skill %s: factory returned nil", name)
	}
	return skill, nil
}

// Names returns the registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
