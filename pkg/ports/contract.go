package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleRunState returns a small but fully populated RunState.
func sampleRunState(name string) *domain.RunState {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.RunState{
		Version:   domain.RunStateVersion,
		Kind:      domain.KindSuite,
		Name:      name,
		WorkDir:   "/scratch/run",
		CreatedAt: now,
		UpdatedAt: now,
		TestCases: []domain.TestCaseState{{
			Path:       "ocean/channel/10km/default",
			WorkDir:    "ocean/channel/10km/default",
			ConfigFile: "default.cfg",
			Steps: []domain.StepState{
				{
					StepSpec: domain.StepSpec{
						Name:    "init",
						Kind:    "command",
						Outputs: []string{"init.nc"},
						Options: map[string]string{"args": "init"},
					},
					Status:   domain.StepSucceeded,
					Attempts: 1,
				},
				{StepSpec: domain.StepSpec{Name: "forward", Kind: "command"}, Status: domain.StepPending},
			},
		}},
	}
}

// RunRunStateStoreContract runs a suite of tests to verify that a RunStateStore implementation
// adheres to the defined interface contract.
func RunRunStateStoreContract(t *testing.T, store RunStateStore) {
	ctx := context.Background()
	name := "contract-test-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := sampleRunState(name)

		err := store.Save(ctx, name, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, name)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, state.Version, loaded.Version)
		assert.Equal(t, state.Kind, loaded.Kind)
		require.Len(t, loaded.TestCases, 1)
		assert.Equal(t, state.TestCases[0].Path, loaded.TestCases[0].Path)
		assert.Equal(t, []string{"init", "forward"}, loaded.TestCases[0].StepNames())
		assert.Equal(t, domain.StepSucceeded, loaded.TestCases[0].Step("init").Status)
		assert.Equal(t, "init", loaded.TestCases[0].Step("init").Options["args"])
		assert.True(t, state.CreatedAt.Equal(loaded.CreatedAt))
	})

	t.Run("Loaded State Is Independent", func(t *testing.T) {
		loaded, err := store.Load(ctx, name)
		require.NoError(t, err)
		loaded.TestCases[0].Steps[0].Status = domain.StepFailed

		again, err := store.Load(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, domain.StepSucceeded, again.TestCases[0].Steps[0].Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+name)
		assert.ErrorIs(t, err, domain.ErrRunStateNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, name, sampleRunState(name))
		require.NoError(t, err)

		err = store.Delete(ctx, name)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, name)
		assert.ErrorIs(t, err, domain.ErrRunStateNotFound, "Load after Delete should return ErrRunStateNotFound")

		assert.NoError(t, store.Delete(ctx, name), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := name + "-1"
		id2 := name + "-2"
		_ = store.Save(ctx, id1, sampleRunState(id1))
		_ = store.Save(ctx, id2, sampleRunState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, id1)
		assert.Contains(t, names, id2)
	})
}
