package config_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_LaterSourceWinsPerKey(t *testing.T) {
	first := config.NewSource("first", config.LayerCore).Set("sec", "a", "1")
	second := config.NewSource("second", config.LayerCore).Set("sec", "a", "2").Set("sec", "b", "3")

	r := config.Merge(first, second)

	a, err := r.Get("sec", "a")
	require.NoError(t, err)
	b, err := r.Get("sec", "b")
	require.NoError(t, err)
	assert.Equal(t, "2", a)
	assert.Equal(t, "3", b)
	assert.Equal(t, []string{"a", "b"}, r.Keys("sec"))
	assert.Equal(t, "second", r.Origin("sec", "a"))
}

func TestMerge_OrdersByLayer(t *testing.T) {
	cli := config.NewSource("cli", config.LayerCLI).Set("run", "cores", "8")
	user := config.NewSource("user", config.LayerUser).Set("run", "cores", "4").Set("run", "queue", "debug")
	machine := config.NewSource("machine", config.LayerMachine).
		Set("run", "cores", "1").
		Set("run", "queue", "normal").
		Set("paths", "scratch", "/tmp")

	// Argument order is deliberately reversed.
	r := config.Merge(cli, user, machine)

	cores, err := r.GetInt("run", "cores")
	require.NoError(t, err)
	assert.Equal(t, 8, cores)

	queue, err := r.Get("run", "queue")
	require.NoError(t, err)
	assert.Equal(t, "debug", queue)
}

func TestMerge_MonotonicOverride(t *testing.T) {
	layers := []config.Layer{config.LayerMachine, config.LayerCore, config.LayerTestCase, config.LayerUser, config.LayerCLI}

	for i, layer := range layers {
		t.Run(layer.String(), func(t *testing.T) {
			// Only the source at index i sets "only"; every source sets "shared".
			var sources []*config.Source
			for j, l := range layers {
				s := config.NewSource(l.String(), l).Set("sec", "shared", l.String())
				if j == i {
					s.Set("sec", "only", "from-"+l.String())
				}
				sources = append(sources, s)
			}

			r := config.Merge(sources...)

			only, err := r.Get("sec", "only")
			require.NoError(t, err)
			assert.Equal(t, "from-"+layer.String(), only)

			shared, err := r.Get("sec", "shared")
			require.NoError(t, err)
			assert.Equal(t, "cli", shared)
		})
	}
}

func TestMerge_IgnoresNilSources(t *testing.T) {
	r := config.Merge(nil, config.NewSource("a", config.LayerCore).Set("s", "k", "v"), nil)
	assert.True(t, r.Has("s", "k"))
}

func TestResolved_WithDoesNotMutate(t *testing.T) {
	base := config.Merge(config.NewSource("base", config.LayerCore).Set("sec", "a", "1"))
	extended := base.With(config.NewSource("override", config.LayerCLI).Set("sec", "a", "9"))

	a, err := base.Get("sec", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", a)

	a, err = extended.Get("sec", "a")
	require.NoError(t, err)
	assert.Equal(t, "9", a)
}

func TestResolved_GetMissingOption(t *testing.T) {
	r := config.Merge(config.NewSource("a", config.LayerCore).Set("sec", "a", "1"))

	_, err := r.Get("sec", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sec", cfgErr.Section)
	assert.Equal(t, "missing", cfgErr.Key)
}

func TestResolved_KeysAreCaseInsensitive(t *testing.T) {
	r := config.Merge(config.NewSource("a", config.LayerCore).Set("sec", "Cores", "4"))

	v, err := r.Get("sec", "CORES")
	require.NoError(t, err)
	assert.Equal(t, "4", v)
}

func TestResolved_DefaultSectionFallback(t *testing.T) {
	src, err := config.Parse("inline", config.LayerMachine, []byte("root = /data\n\n[paths]\nmesh = ${root}/mesh.nc\n"))
	require.NoError(t, err)

	r := config.Merge(src)
	mesh, err := r.Get("paths", "mesh")
	require.NoError(t, err)
	assert.Equal(t, "/data/mesh.nc", mesh)
	assert.True(t, r.Has("paths", "root"))
}

func TestInterpolation(t *testing.T) {
	base := config.NewSource("base", config.LayerCore).
		Set("paths", "root", "/scratch").
		Set("paths", "mesh", "${root}/mesh").
		Set("paths", "initial", "${paths:mesh}/init.nc").
		Set("run", "namelist", "${paths:initial}.nml").
		Set("run", "price", "$$5").
		Set("run", "plain", "cost $ 3")

	t.Run("chain", func(t *testing.T) {
		v, err := config.Merge(base).Get("run", "namelist")
		require.NoError(t, err)
		assert.Equal(t, "/scratch/mesh/init.nc.nml", v)
	})

	t.Run("override of referenced key is honored", func(t *testing.T) {
		r := config.Merge(base, config.NewSource("user", config.LayerUser).Set("paths", "root", "/home/me"))
		v, err := r.Get("run", "namelist")
		require.NoError(t, err)
		assert.Equal(t, "/home/me/mesh/init.nc.nml", v)
	})

	t.Run("literal dollar", func(t *testing.T) {
		r := config.Merge(base)
		v, err := r.Get("run", "price")
		require.NoError(t, err)
		assert.Equal(t, "$5", v)

		v, err = r.Get("run", "plain")
		require.NoError(t, err)
		assert.Equal(t, "cost $ 3", v)
	})

	t.Run("raw keeps references", func(t *testing.T) {
		raw, ok := config.Merge(base).Raw("paths", "mesh")
		require.True(t, ok)
		assert.Equal(t, "${root}/mesh", raw)
	})

	t.Run("expand arbitrary string", func(t *testing.T) {
		v, err := config.Merge(base).Expand("paths", "ls ${mesh}")
		require.NoError(t, err)
		assert.Equal(t, "ls /scratch/mesh", v)
	})
}

func TestInterpolation_Failures(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		read   string
		reason string
	}{
		{"self reference", map[string]string{"a": "${a}"}, "a", "cyclic"},
		{"cycle", map[string]string{"a": "x${b}", "b": "${sec:c}", "c": "${a}"}, "a", "cyclic"},
		{"missing", map[string]string{"a": "${nope:b}"}, "a", "not set"},
		{"unterminated", map[string]string{"a": "${b"}, "a", "not terminated"},
		{"empty", map[string]string{"a": "${}"}, "a", "malformed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := config.NewSource("test", config.LayerCore)
			for k, v := range tt.values {
				src.Set("sec", k, v)
			}

			_, err := config.Merge(src).Get("sec", tt.read)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInterpolation)
			assert.ErrorIs(t, err, domain.ErrConfiguration)

			var ie *config.InterpolationError
			require.ErrorAs(t, err, &ie)
			assert.Contains(t, ie.Error(), tt.reason)
			assert.NotEmpty(t, ie.Chain)
			assert.Equal(t, "sec:"+tt.read, ie.Chain[0])
		})
	}
}

func TestTypedAccessors(t *testing.T) {
	src := config.NewSource("typed.cfg", config.LayerTestCase).
		Set("t", "int", "42").
		Set("t", "float", "2.5e-3").
		Set("t", "yes", "Yes").
		Set("t", "off", "OFF").
		Set("t", "one", "1").
		Set("t", "list", "init, forward\tanalysis  , ,").
		Set("t", "duration", "1h30m").
		Set("t", "ref", "${int}").
		Set("t", "word", "abc")
	r := config.Merge(src)

	n, err := r.GetInt("t", "int")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = r.GetInt("t", "ref")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	f, err := r.GetFloat("t", "float")
	require.NoError(t, err)
	assert.InDelta(t, 0.0025, f, 1e-12)

	for key, want := range map[string]bool{"yes": true, "off": false, "one": true} {
		b, err := r.GetBool("t", key)
		require.NoError(t, err, key)
		assert.Equal(t, want, b, key)
	}

	list, err := r.GetList("t", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"init", "forward", "analysis"}, list)

	d, err := r.GetDuration("t", "duration")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)
}

func TestTypedAccessors_NeverCoerce(t *testing.T) {
	r := config.Merge(config.NewSource("typed.cfg", config.LayerTestCase).
		Set("t", "word", "abc").
		Set("t", "float", "1.5").
		Set("t", "nan", "NaN"))

	checks := map[string]func() error{
		"int from word":    func() error { _, err := r.GetInt("t", "word"); return err },
		"int from float":   func() error { _, err := r.GetInt("t", "float"); return err },
		"float from word":  func() error { _, err := r.GetFloat("t", "word"); return err },
		"float nan":        func() error { _, err := r.GetFloat("t", "nan"); return err },
		"bool from float":  func() error { _, err := r.GetBool("t", "float"); return err },
		"duration no unit": func() error { _, err := r.GetDuration("t", "float"); return err },
	}

	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			err := check()
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrTypeConversion)

			var tce *config.TypeConversionError
			require.ErrorAs(t, err, &tce)
			assert.Equal(t, "t", tce.Section)
			assert.Equal(t, "typed.cfg", tce.Origin)
			assert.NotEmpty(t, tce.Value)
		})
	}
}

func TestValidate_AggregatesFailures(t *testing.T) {
	r := config.Merge(config.NewSource("bad", config.LayerCore).
		Set("a", "x", "${missing}").
		Set("b", "y", "${b:y}").
		Set("c", "ok", "fine"))

	err := r.Validate()
	require.Error(t, err)

	var agg *domain.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.ErrorIs(t, err, domain.ErrInterpolation)

	assert.NoError(t, config.Merge(config.NewSource("good", config.LayerCore).Set("c", "ok", "fine")).Validate())
}

func TestDecode(t *testing.T) {
	type runOptions struct {
		Cores    int           `mapstructure:"cores"`
		Ratio    float64       `mapstructure:"ratio"`
		Verbose  bool          `mapstructure:"verbose"`
		Steps    []string      `mapstructure:"steps"`
		Timeout  time.Duration `mapstructure:"timeout"`
		Model    string        `mapstructure:"model"`
		Optional *int          `mapstructure:"optional"`
	}

	src := config.NewSource("run.cfg", config.LayerTestCase).
		Set("run", "cores", "16").
		Set("run", "ratio", "0.75").
		Set("run", "verbose", "on").
		Set("run", "steps", "init forward").
		Set("run", "timeout", "10m").
		Set("run", "model", "${paths:bin}/model").
		Set("run", "unrelated", "ignored").
		Set("paths", "bin", "/opt/bin")

	var opts runOptions
	require.NoError(t, config.Merge(src).Decode("run", &opts))
	assert.Equal(t, runOptions{
		Cores:   16,
		Ratio:   0.75,
		Verbose: true,
		Steps:   []string{"init", "forward"},
		Timeout: 10 * time.Minute,
		Model:   "/opt/bin/model",
	}, opts)

	t.Run("conversion failure names the key", func(t *testing.T) {
		bad := config.Merge(src, config.NewSource("cli", config.LayerCLI).Set("run", "cores", "many"))
		err := bad.Decode("run", &runOptions{})
		require.Error(t, err)

		var tce *config.TypeConversionError
		require.ErrorAs(t, err, &tce)
		assert.Equal(t, "cores", tce.Key)
		assert.Equal(t, "many", tce.Value)
		assert.Equal(t, "cli", tce.Origin)
	})
}

func TestParse(t *testing.T) {
	data := []byte(`# machine defaults
[parallel]
Cores = 4
system = single_node

[paths]
url = http://example.org/data#v2
`)
	src, err := config.Parse("machine.cfg", config.LayerMachine, data)
	require.NoError(t, err)

	assert.Equal(t, []string{"parallel", "paths"}, src.Sections())
	v, ok := src.Get("parallel", "cores")
	require.True(t, ok)
	assert.Equal(t, "4", v)

	url, ok := src.Get("paths", "url")
	require.True(t, ok)
	assert.Equal(t, "http://example.org/data#v2", url)
}

func TestParse_Malformed(t *testing.T) {
	_, err := config.Parse("broken.cfg", config.LayerUser, []byte("[unterminated\nkey = v\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Contains(t, err.Error(), "broken.cfg")
}

func TestParseFile_Missing(t *testing.T) {
	_, err := config.ParseFile(t.TempDir()+"/none.cfg", config.LayerUser)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestParseOverride(t *testing.T) {
	section, key, value, err := config.ParseOverride("parallel:Cores= 8")
	require.NoError(t, err)
	assert.Equal(t, "parallel", section)
	assert.Equal(t, "cores", key)
	assert.Equal(t, "8", value)

	for _, bad := range []string{"no-equals", "nokey=1", ":k=1", "s:=1"} {
		_, _, _, err := config.ParseOverride(bad)
		assert.ErrorIs(t, err, domain.ErrConfiguration, bad)
	}

	src, err := config.Overrides([]string{"a:b=1", "a:b=2"})
	require.NoError(t, err)
	assert.Equal(t, config.LayerCLI, src.Layer)
	v, _ := src.Get("a", "b")
	assert.Equal(t, "2", v)
}

func TestWriteTo_RoundTrip(t *testing.T) {
	r := config.Merge(
		config.NewSource("core", config.LayerCore).
			Set("paths", "root", "/scratch").
			Set("paths", "mesh", "${root}/mesh.nc").
			Set("namelist", "config_dt", "'00:10:00'").
			Set("namelist", "config_run_duration", "  '0001_00:00:00'  "),
		config.NewSource("cli", config.LayerCLI).Set("paths", "root", "/data"),
	)

	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)

	src, err := config.Parse("written.cfg", config.LayerTestCase, buf.Bytes())
	require.NoError(t, err)
	reread := config.Merge(src)

	raw, ok := reread.Raw("paths", "mesh")
	require.True(t, ok)
	assert.Equal(t, "${root}/mesh.nc", raw)

	mesh, err := reread.Get("paths", "mesh")
	require.NoError(t, err)
	assert.Equal(t, "/data/mesh.nc", mesh)

	dt, err := reread.Get("namelist", "config_dt")
	require.NoError(t, err)
	assert.Equal(t, "'00:10:00'", dt)

	duration, err := reread.Get("namelist", "config_run_duration")
	require.NoError(t, err)
	assert.Equal(t, "'0001_00:00:00'", duration)
}

func TestErrorsIsSentinels(t *testing.T) {
	var err error = &config.TypeConversionError{Section: "s", Key: "k", Value: "v", Type: "int"}
	assert.True(t, errors.Is(err, domain.ErrTypeConversion))
	assert.False(t, errors.Is(err, domain.ErrInterpolation))
}
