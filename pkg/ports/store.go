package ports

import (
	"context"

	"github.com/aretw0/cairn/pkg/domain"
)

// RunStateStore defines the interface for persisting run state.
// It is the only channel between a setup invocation and later run invocations.
type RunStateStore interface {
	// Save persists the state under name, replacing any previous state atomically.
	Save(ctx context.Context, name string, state *domain.RunState) error

	// Load retrieves the state saved under name.
	// Returns domain.ErrRunStateNotFound if nothing was saved.
	Load(ctx context.Context, name string) (*domain.RunState, error)

	// Delete removes the state. Deleting a missing state is not an error.
	Delete(ctx context.Context, name string) error

	// List returns the names of every saved state.
	List(ctx context.Context) ([]string, error)
}
