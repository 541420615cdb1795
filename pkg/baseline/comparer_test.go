package baseline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cairn/pkg/baseline"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func verdicts(report domain.ValidationReport) map[string]domain.Verdict {
	out := make(map[string]domain.Verdict)
	for _, v := range report.Verdicts {
		out[v.Artifact] = v
	}
	return out
}

func TestComparer_Artifacts(t *testing.T) {
	work, base := t.TempDir(), t.TempDir()

	write(t, work, "forward/stats.json", `{"ke": 1.0004, "steps": [1, 2.5], "name": "channel"}`)
	write(t, base, "forward/stats.json", `{"ke": 1.0, "steps": [1, 2.5], "name": "channel"}`)
	write(t, work, "forward/drift.json", `{"ke": 1.5}`)
	write(t, base, "forward/drift.json", `{"ke": 1.0}`)
	write(t, work, "forward/output.nc", "data")
	write(t, base, "forward/output.nc", "other data")
	write(t, work, "forward/new.nc", "data")
	write(t, work, "forward/empty.nc", "")
	write(t, base, "forward/empty.nc", "data")

	cfg := config.Merge(config.NewSource("core", config.LayerCore).Set("validation", "tolerance", "1e-3"))
	report, err := baseline.NewComparer().Validate(context.Background(), ports.ValidationRequest{
		TestCase:    "ocean/channel",
		WorkDir:     work,
		BaselineDir: base,
		Artifacts:   []string{"forward/stats.json", "forward/drift.json", "forward/output.nc", "forward/new.nc", "forward/empty.nc", "forward/gone.nc"},
		Config:      cfg,
	})
	require.NoError(t, err)

	got := verdicts(report)
	assert.Equal(t, domain.VerdictPass, got["forward/stats.json"].Status, got["forward/stats.json"].Message)
	assert.Equal(t, domain.VerdictFail, got["forward/drift.json"].Status)
	assert.Contains(t, got["forward/drift.json"].Message, "$.ke")
	assert.Equal(t, domain.VerdictPass, got["forward/output.nc"].Status, "non-JSON artifacts only need to exist and be non-empty")
	assert.Equal(t, domain.VerdictWarn, got["forward/new.nc"].Status)
	assert.Equal(t, domain.VerdictFail, got["forward/empty.nc"].Status)
	assert.Equal(t, domain.VerdictFail, got["forward/gone.nc"].Status)
	assert.False(t, report.Passed())
	assert.Equal(t, "2 passed, 3 failed, 1 warnings", report.Diagnostic)

	data, err := os.ReadFile(filepath.Join(work, baseline.ReportFile))
	require.NoError(t, err)
	var written domain.ValidationReport
	require.NoError(t, json.Unmarshal(data, &written))
	assert.Equal(t, report, written)
}

func TestComparer_StructuralDifferences(t *testing.T) {
	cases := []struct {
		name, got, want, msg string
	}{
		{"Missing Key", `{"a": 1}`, `{"a": 1, "b": 2}`, "$.b: missing from this run"},
		{"Extra Key", `{"a": 1, "c": 2}`, `{"a": 1}`, "$.c: not in the baseline"},
		{"Array Length", `[1, 2]`, `[1]`, "$: length 2"},
		{"Type", `{"a": "x"}`, `{"a": 1}`, "$.a: expected a number"},
		{"String", `{"a": "x"}`, `{"a": "y"}`, "$.a: x differs"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			work, base := t.TempDir(), t.TempDir()
			write(t, work, "a.json", tc.got)
			write(t, base, "a.json", tc.want)

			report, err := baseline.NewComparer().Validate(context.Background(), ports.ValidationRequest{
				WorkDir: work, BaselineDir: base, Artifacts: []string{"a.json"},
			})
			require.NoError(t, err)
			require.Len(t, report.Verdicts, 1)
			assert.Equal(t, domain.VerdictFail, report.Verdicts[0].Status)
			assert.Contains(t, report.Verdicts[0].Message, tc.msg)
		})
	}
}

func TestComparer_Timers(t *testing.T) {
	work, base := t.TempDir(), t.TempDir()
	write(t, base, "timers.json", `{"init": 10, "forward": 100}`)

	report, err := baseline.NewComparer(baseline.WithTimerTolerance(0.2)).Validate(context.Background(), ports.ValidationRequest{
		WorkDir:     work,
		BaselineDir: base,
		Timers:      map[string]float64{"init": 11, "forward": 130, "analysis": 5},
	})
	require.NoError(t, err)

	got := verdicts(report)
	assert.Equal(t, domain.VerdictPass, got["timer:init"].Status)
	assert.Equal(t, domain.VerdictWarn, got["timer:forward"].Status)
	assert.NotContains(t, got, "timer:analysis", "steps without a baseline time are not compared")
}

func TestComparer_MissingBaselineTestCase(t *testing.T) {
	report, err := baseline.NewComparer().Validate(context.Background(), ports.ValidationRequest{
		WorkDir:     t.TempDir(),
		BaselineDir: filepath.Join(t.TempDir(), "missing"),
		Artifacts:   []string{"out.nc"},
	})
	require.NoError(t, err)
	require.Len(t, report.Verdicts, 1)
	assert.Equal(t, domain.VerdictWarn, report.Verdicts[0].Status)
	assert.False(t, report.Passed())
}

func TestComparer_BadSettings(t *testing.T) {
	cfg := config.Merge(config.NewSource("core", config.LayerCore).Set("validation", "tolerance", "tight"))
	_, err := baseline.NewComparer().Validate(context.Background(), ports.ValidationRequest{
		WorkDir: t.TempDir(), BaselineDir: t.TempDir(), Config: cfg,
	})
	assert.ErrorIs(t, err, domain.ErrTypeConversion)

	cfg = config.Merge(config.NewSource("core", config.LayerCore).Set("validation", "tolerance", "-1"))
	_, err = baseline.NewComparer().Validate(context.Background(), ports.ValidationRequest{
		WorkDir: t.TempDir(), BaselineDir: t.TempDir(), Config: cfg,
	})
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
