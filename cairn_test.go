package cairn_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/cairn"
	"github.com/aretw0/cairn/pkg/adapters/memory"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/suite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBlueprint(path string, names ...string) suite.Blueprint {
	bp := suite.Blueprint{Path: path}
	for _, n := range names {
		bp.Steps = append(bp.Steps, domain.StepSpec{
			Name:    n,
			Kind:    "write",
			Outputs: []string{n + ".txt"},
			Options: map[string]string{"file": n + ".txt", "content": n},
		})
	}
	return bp
}

func TestHarness_Resolve(t *testing.T) {
	ctx := context.Background()
	h, err := cairn.New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, err)

	_, err = h.Resolve(ctx, "")
	assert.ErrorIs(t, err, domain.ErrRunStateNotFound)

	name, err := h.Resolve(ctx, "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", name)

	_, err = h.Setup(ctx, "first", suite.SetupOptions{Blueprints: []suite.Blueprint{writeBlueprint("a/t1", "s1")}})
	require.NoError(t, err)
	name, err = h.Resolve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "first", name)

	_, err = h.Setup(ctx, "second", suite.SetupOptions{Blueprints: []suite.Blueprint{writeBlueprint("a/t2", "s1")}})
	require.NoError(t, err)
	_, err = h.Resolve(ctx, "")
	assert.ErrorIs(t, err, cairn.ErrAmbiguousRunState)
}

func TestHarness_RunRecordsMetricsAndResults(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	var results []domain.TestCaseResult
	h, err := cairn.New(filepath.Join(t.TempDir(), "work"),
		cairn.WithStore(memory.NewStore()),
		cairn.WithMetrics(reg),
		cairn.WithResultFunc(func(r domain.TestCaseResult) { results = append(results, r) }),
	)
	require.NoError(t, err)

	_, err = h.Setup(ctx, "nightly", suite.SetupOptions{Blueprints: []suite.Blueprint{
		writeBlueprint("ocean/t1", "init", "forward"),
		writeBlueprint("ocean/t2", "init"),
	}})
	require.NoError(t, err)

	res, err := h.Run(ctx, "nightly", suite.RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Failures())
	require.Len(t, results, 2)

	m := h.Metrics()
	require.NotNil(t, m)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.StepRuns.WithLabelValues("write", "succeeded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TestCaseRuns.WithLabelValues("succeeded")))

	require.NoError(t, h.Clean(ctx, "nightly"))
	_, err = h.Store().Load(ctx, "nightly")
	assert.ErrorIs(t, err, domain.ErrRunStateNotFound)
}
