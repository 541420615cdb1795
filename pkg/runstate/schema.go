package runstate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/cairn/pkg/domain"
)

// migrations upgrade a state from the key version to the next one.
var migrations = map[int]func(*domain.RunState) error{}

// Migrate checks the schema version of state and upgrades older versions in place.
// A missing version, a newer version or a gap in the migration chain is reported
// as domain.ErrIncompatibleRunState.
func Migrate(state *domain.RunState) (*domain.RunState, error) {
	switch {
	case state.Version <= 0:
		return nil, fmt.Errorf("%w: %q has no schema version", domain.ErrIncompatibleRunState, state.Name)
	case state.Version > domain.RunStateVersion:
		return nil, fmt.Errorf("%w: %q was written with schema version %d, this build reads up to %d",
			domain.ErrIncompatibleRunState, state.Name, state.Version, domain.RunStateVersion)
	}
	for state.Version < domain.RunStateVersion {
		up, ok := migrations[state.Version]
		if !ok {
			return nil, fmt.Errorf("%w: no migration from schema version %d", domain.ErrIncompatibleRunState, state.Version)
		}
		if err := up(state); err != nil {
			return nil, fmt.Errorf("%w: migrate from schema version %d: %w", domain.ErrIncompatibleRunState, state.Version, err)
		}
		state.Version++
	}
	return state, nil
}

// RecoverInterrupted marks steps that a crashed or killed run left in StepRunning as failed,
// and returns them as "test_case/step".
func RecoverInterrupted(state *domain.RunState) []string {
	var recovered []string
	for i := range state.TestCases {
		tc := &state.TestCases[i]
		for j := range tc.Steps {
			s := &tc.Steps[j]
			if s.Status != domain.StepRunning {
				continue
			}
			s.Status = domain.StepFailed
			s.LastError = domain.ErrInterrupted.Error()
			recovered = append(recovered, tc.Path+"/"+s.Name)
		}
	}
	return recovered
}

// KindSet reports whether a step kind can be built. registry.Registry satisfies it.
type KindSet interface {
	Has(kind string) bool
}

// Check reports every persisted step whose kind is not registered in kinds,
// which happens when a run state was set up by a build with different step kinds.
func Check(state *domain.RunState, kinds KindSet) error {
	var errs []error
	for _, tc := range state.TestCases {
		if len(tc.Steps) == 0 {
			errs = append(errs, fmt.Errorf("%w: test case %q has no steps", domain.ErrIncompatibleRunState, tc.Path))
		}
		var unknown []string
		for _, s := range tc.Steps {
			if !kinds.Has(s.Kind) {
				unknown = append(unknown, fmt.Sprintf("%s (%s)", s.Name, s.Kind))
			}
		}
		if len(unknown) > 0 {
			errs = append(errs, fmt.Errorf("%w: test case %q: %w: %s",
				domain.ErrIncompatibleRunState, tc.Path, domain.ErrUnknownStepKind, strings.Join(unknown, ", ")))
		}
	}
	return domain.Join(errs)
}

// IsNotFound reports whether err means no run state was saved under the name.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrRunStateNotFound)
}
