package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/cairn/pkg/domain"
)

// Store implements ports.RunStateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.RunState
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.RunState),
	}
}

// Save keeps a deep copy of the state, so later mutations by the caller are not visible.
func (s *Store) Save(ctx context.Context, name string, state *domain.RunState) error {
	copied := state.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = copied
	return nil
}

// Load returns a copy so the caller can't mutate store state directly by pointer.
func (s *Store) Load(ctx context.Context, name string) (*domain.RunState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[name]
	if !ok {
		return nil, domain.ErrRunStateNotFound
	}
	return state.Clone(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// List returns stored names, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.data))
	for id := range s.data {
		names = append(names, id)
	}
	sort.Strings(names)
	return names, nil
}
