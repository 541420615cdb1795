package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/cairn/pkg/catalog"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oceanCatalog = `
core: ocean
config: ocean.cfg
test_cases:
  - path: ocean/channel/10km/default
    description: baroclinic channel
    config: channel/default.cfg
    settings:
      namelist:
        config_dt: "'00:10:00'"
    steps:
      - name: initial_state
        kind: command
        outputs: [init.nc]
        options: {args: ./init}
      - name: forward
        kind: command
        inputs:
          - ../initial_state/init.nc
          - {source: /data/mesh.nc, target: graph.nc}
      - name: plot
        kind: command
        optional: true
  - path: ocean/channel/10km/threads
    steps:
      - {name: forward, kind: command, timeout: 1h}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "ocean.cfg", "[parallel]\ncores = 4\n[namelist]\nconfig_dt = '00:30:00'\n")
	writeFile(t, dir, "channel/default.cfg", "[parallel]\ncores = 8\n")
	c, err := catalog.Load(writeFile(t, dir, "ocean.yaml", oceanCatalog))
	require.NoError(t, err)
	return c
}

func TestLoad(t *testing.T) {
	c := load(t)
	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "ocean/channel/10km/default", entries[0].Path)
	assert.Equal(t, "ocean", entries[0].Core())

	steps := entries[0].Steps
	require.Len(t, steps, 3)
	assert.Equal(t, []string{"init.nc"}, steps[0].Outputs)
	assert.Equal(t, "./init", steps[0].Options["args"])
	assert.Equal(t, []domain.Input{{Source: "../initial_state/init.nc"}, {Source: "/data/mesh.nc", Target: "graph.nc"}}, steps[1].Inputs)
	assert.True(t, steps[2].Optional)
	assert.Equal(t, "1h", entries[1].Steps[0].Timeout)
}

func TestBlueprint_LayersConfig(t *testing.T) {
	e, ok := load(t).Lookup("ocean/channel/10km/default")
	require.True(t, ok)

	bp, err := e.Blueprint()
	require.NoError(t, err)
	assert.Equal(t, e.Path, bp.Path)
	require.Len(t, bp.Sources, 3)

	cfg := config.Merge(bp.Sources...)
	cores, err := cfg.GetInt("parallel", "cores")
	require.NoError(t, err)
	assert.Equal(t, 8, cores, "test case config overrides core config")
	dt, err := cfg.Get("namelist", "config_dt")
	require.NoError(t, err)
	assert.Equal(t, "'00:10:00'", dt, "inline settings win")
	assert.Contains(t, cfg.Origin("namelist", "config_dt"), "ocean.yaml: ocean/channel/10km/default")
}

func TestBlueprint_MissingConfigFile(t *testing.T) {
	c, err := catalog.Parse(filepath.Join(t.TempDir(), "ocean.yaml"), strings.NewReader(oceanCatalog))
	require.NoError(t, err)

	_, err = catalog.Blueprints(c.Entries())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "ocean.cfg")
	assert.Contains(t, err.Error(), "default.cfg")
}

func TestParse_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "core: ocean\ntest_cases:\n  - path: ocean/a\n    stepz: []\n",
		"wrong core":     "core: ocean\ntest_cases:\n  - path: landice/a\n",
		"duplicate path": "core: ocean\ntest_cases:\n  - path: ocean/a\n  - path: ocean/a\n",
		"missing path":   "core: ocean\ntest_cases:\n  - description: x\n",
		"missing core":   "test_cases:\n  - path: ocean/a\n",
		"not yaml":       "core: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := catalog.Parse("ocean.yaml", strings.NewReader(doc))
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestSelect(t *testing.T) {
	c := load(t)

	got, err := c.Select("ocean/channel/10km/threads", []int{0, 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ocean/channel/10km/threads", got[0].Path)
	assert.Equal(t, "ocean/channel/10km/default", got[1].Path)

	_, err = c.Select("ocean/nope", []int{7})
	var agg *domain.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
}

func TestSuiteFile(t *testing.T) {
	c := load(t)
	dir := t.TempDir()

	sf, err := catalog.LoadSuite(writeFile(t, dir, "nightly.yaml", "name: nightly\ntest_cases:\n  - ocean/channel/10km/threads\n  - ocean/channel/10km/default\n"))
	require.NoError(t, err)
	entries, err := c.Resolve(sf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "ocean/channel/10km/threads", entries[0].Path)

	_, err = c.Resolve(catalog.SuiteFile{Name: "x", TestCases: []string{"ocean/a", "ocean/b"}})
	var agg *domain.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)

	_, err = catalog.LoadSuite(writeFile(t, dir, "empty.yaml", "name: empty\n"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	_, err = catalog.LoadSuite(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
