package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/step"
)

// Factory builds a step from its declaration. It is called once per step at setup
// and again at run time from the persisted spec; it must not execute anything.
type Factory func(spec domain.StepSpec) (step.Step, error)

// Registry maps step kinds to factories.
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

// Register adds a factory for kind.
// If a factory for the same kind exists, it is overwritten.
func (r *Registry) Register(kind string, fn Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = fn
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build looks up the factory for spec.Kind and calls it.
// Returns a ConfigurationError wrapping ErrUnknownStepKind if the kind is not registered.
func (r *Registry) Build(spec domain.StepSpec) (step.Step, error) {
	r.mu.RLock()
	fn, ok := r.factories[spec.Kind]
	r.mu.RUnlock()

	if !ok {
		return nil, &domain.ConfigurationError{
			Source: fmt.Sprintf("step %q", spec.Name),
			Value:  spec.Kind,
			Reason: "no factory registered for step kind",
			Err:    domain.ErrUnknownStepKind,
		}
	}

	s, err := fn(spec)
	if err != nil {
		return nil, fmt.Errorf("build step %q (%s): %w", spec.Name, spec.Kind, err)
	}
	return s, nil
}

// BuildAll builds every spec in order and reports all failures together.
func (r *Registry) BuildAll(specs []domain.StepSpec) ([]step.Step, error) {
	steps := make([]step.Step, 0, len(specs))
	var errs []error
	for _, spec := range specs {
		s, err := r.Build(spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		steps = append(steps, s)
	}
	if err := domain.Join(errs); err != nil {
		return nil, err
	}
	return steps, nil
}
