package registry_test

import (
	"errors"
	"testing"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/registry"
	"github.com/aretw0/cairn/pkg/step"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register("noop", func(spec domain.StepSpec) (step.Step, error) {
		return step.Func(spec, nil), nil
	})
	reg.Register("broken", func(spec domain.StepSpec) (step.Step, error) {
		return nil, errors.New("missing option")
	})

	t.Run("Builds Registered Kind", func(t *testing.T) {
		s, err := reg.Build(domain.StepSpec{Name: "a", Kind: "noop"})
		require.NoError(t, err)
		assert.Equal(t, "a", s.Spec().Name)
	})

	t.Run("Fails For Unknown Kind", func(t *testing.T) {
		_, err := reg.Build(domain.StepSpec{Name: "a", Kind: "fortran"})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnknownStepKind)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
		assert.Contains(t, err.Error(), "fortran")
	})

	t.Run("Wraps Factory Errors", func(t *testing.T) {
		_, err := reg.Build(domain.StepSpec{Name: "b", Kind: "broken"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"b"`)
		assert.Contains(t, err.Error(), "missing option")
	})

	t.Run("BuildAll Aggregates", func(t *testing.T) {
		_, err := reg.BuildAll([]domain.StepSpec{
			{Name: "a", Kind: "noop"},
			{Name: "b", Kind: "broken"},
			{Name: "c", Kind: "unknown"},
		})
		var agg *domain.AggregateError
		require.ErrorAs(t, err, &agg)
		assert.Len(t, agg.Errors, 2)
	})

	assert.True(t, reg.Has("noop"))
	assert.False(t, reg.Has("fortran"))
	assert.Equal(t, []string{"broken", "noop"}, reg.Kinds())
}
