package runstate_test

import (
	"testing"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/runstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverInterrupted(t *testing.T) {
	st := newState("s", 2)
	st.TestCases[0].Steps[0].Status = domain.StepSucceeded
	st.TestCases[0].Steps[1].Status = domain.StepRunning
	st.TestCases[1].Steps[0].Status = domain.StepRunning

	recovered := runstate.RecoverInterrupted(st)
	assert.Equal(t, []string{"ocean/case0/forward", "ocean/case1/init"}, recovered)

	assert.Equal(t, domain.StepSucceeded, st.TestCases[0].Steps[0].Status)
	assert.Equal(t, domain.StepFailed, st.TestCases[0].Steps[1].Status)
	assert.Equal(t, domain.ErrInterrupted.Error(), st.TestCases[0].Steps[1].LastError)
	assert.Equal(t, domain.StepFailed, st.TestCases[1].Steps[0].Status)

	assert.Empty(t, runstate.RecoverInterrupted(st), "recovery is idempotent")
}

type kinds map[string]bool

func (k kinds) Has(kind string) bool { return k[kind] }

func TestCheck(t *testing.T) {
	st := newState("s", 2)
	require.NoError(t, runstate.Check(st, kinds{"command": true}))

	st.TestCases[1].Steps[1].Kind = "plot"
	err := runstate.Check(st, kinds{"command": true})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIncompatibleRunState)
	assert.ErrorIs(t, err, domain.ErrUnknownStepKind)
	assert.Contains(t, err.Error(), "forward (plot)")
	assert.Contains(t, err.Error(), "ocean/case1")
}

func TestMigrate(t *testing.T) {
	st := newState("s", 1)
	out, err := runstate.Migrate(st)
	require.NoError(t, err)
	assert.Same(t, st, out)

	st.Version = -1
	_, err = runstate.Migrate(st)
	assert.ErrorIs(t, err, domain.ErrIncompatibleRunState)
}
