// Package baseline compares a finished test case with the same test case in a baseline run.
package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/aretw0/cairn/pkg/testcase"
)

// ReportFile is written into the test case directory after every comparison.
const ReportFile = "baseline_comparison.json"

// Section holds the comparison settings in the test case configuration.
const Section = "validation"

// TimerPrefix marks timer verdicts, e.g. "timer:forward".
const TimerPrefix = "timer:"

// DefaultTimerTolerance lets a step run 50% slower than in the baseline before warning.
const DefaultTimerTolerance = 0.5

// Settings are the comparison tolerances.
type Settings struct {
	// Tolerance is the absolute difference allowed between numeric values.
	Tolerance float64 `mapstructure:"tolerance"`

	// TimerTolerance is the relative slowdown allowed before a timer warns.
	TimerTolerance float64 `mapstructure:"timer_tolerance"`
}

// Comparer is the default ports.BaselineValidator.
type Comparer struct {
	defaults Settings
	logger   *slog.Logger
}

var _ ports.BaselineValidator = (*Comparer)(nil)

// Option configures a Comparer.
type Option func(*Comparer)

// WithTolerance sets the default absolute tolerance for numeric values.
func WithTolerance(tol float64) Option {
	return func(c *Comparer) {
		c.defaults.Tolerance = tol
	}
}

// WithTimerTolerance sets the default relative tolerance for timers.
func WithTimerTolerance(tol float64) Option {
	return func(c *Comparer) {
		c.defaults.TimerTolerance = tol
	}
}

// WithLogger configures the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Comparer) {
		c.logger = logger
	}
}

// NewComparer creates a Comparer. Settings in a request's [validation] section override the options.
func NewComparer(opts ...Option) *Comparer {
	c := &Comparer{
		defaults: Settings{TimerTolerance: DefaultTimerTolerance},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate compares every artifact and timer of req with the baseline and writes ReportFile.
func (c *Comparer) Validate(ctx context.Context, req ports.ValidationRequest) (domain.ValidationReport, error) {
	settings := c.defaults
	if req.Config != nil {
		if err := req.Config.Decode(Section, &settings); err != nil {
			return domain.ValidationReport{}, err
		}
	}
	if settings.Tolerance < 0 || settings.TimerTolerance < 0 {
		return domain.ValidationReport{}, &domain.ConfigurationError{Section: Section, Reason: "tolerances must not be negative"}
	}
	logger := c.logger.With("test_case", req.TestCase, "baseline", req.BaselineDir)

	var report domain.ValidationReport
	if info, err := os.Stat(req.BaselineDir); err != nil || !info.IsDir() {
		report.Verdicts = append(report.Verdicts, domain.Verdict{
			Artifact: ".",
			Status:   domain.VerdictWarn,
			Message:  "test case is not in the baseline",
		})
	} else {
		artifacts := slices.Clone(req.Artifacts)
		sort.Strings(artifacts)
		for _, a := range artifacts {
			if err := ctx.Err(); err != nil {
				return domain.ValidationReport{}, err
			}
			report.Verdicts = append(report.Verdicts, c.compareArtifact(req, a, settings.Tolerance))
		}
		report.Verdicts = append(report.Verdicts, compareTimers(req, settings.TimerTolerance)...)
	}
	report.Diagnostic = diagnose(report.Verdicts)

	if err := writeReport(filepath.Join(req.WorkDir, ReportFile), report); err != nil {
		logger.Warn("Failed to write baseline comparison", "err", err)
	}
	logger.Info("Compared with baseline", "passed", report.Passed(), "diagnostic", report.Diagnostic)
	return report, nil
}

func (c *Comparer) compareArtifact(req ports.ValidationRequest, name string, tol float64) domain.Verdict {
	v := domain.Verdict{Artifact: name, Status: domain.VerdictPass}

	cur := filepath.Join(req.WorkDir, name)
	info, err := os.Stat(cur)
	switch {
	case err != nil:
		return fail(v, "missing from this run")
	case info.Size() == 0:
		return fail(v, "empty in this run")
	}

	base := filepath.Join(req.BaselineDir, name)
	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		v.Status = domain.VerdictWarn
		v.Message = "not in the baseline"
		return v
	} else if err != nil {
		return fail(v, err.Error())
	}

	if !strings.EqualFold(filepath.Ext(name), ".json") {
		return v
	}

	got, err := readJSON(cur)
	if err != nil {
		return fail(v, err.Error())
	}
	want, err := readJSON(base)
	if err != nil {
		return fail(v, "baseline: "+err.Error())
	}
	if diff := compareValues("", got, want, tol); diff != "" {
		return fail(v, diff)
	}
	return v
}

func fail(v domain.Verdict, msg string) domain.Verdict {
	v.Status = domain.VerdictFail
	v.Message = msg
	return v
}

func readJSON(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return v, nil
}

// compareValues returns a description of the first difference, or "" if got matches want.
func compareValues(path string, got, want any, tol float64) string {
	at := path
	if at == "" {
		at = "$"
	}
	switch w := want.(type) {
	case float64:
		g, ok := got.(float64)
		if !ok {
			return fmt.Sprintf("%s: expected a number, got %v", at, got)
		}
		if d := math.Abs(g - w); d > tol || math.IsNaN(d) {
			return fmt.Sprintf("%s: %g differs from baseline %g by %g (tolerance %g)", at, g, w, d, tol)
		}
	case map[string]any:
		g, ok := got.(map[string]any)
		if !ok {
			return fmt.Sprintf("%s: expected an object", at)
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		for k := range g {
			if _, ok := w[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			gv, gok := g[k]
			wv, wok := w[k]
			switch {
			case !gok:
				return fmt.Sprintf("%s.%s: missing from this run", at, k)
			case !wok:
				return fmt.Sprintf("%s.%s: not in the baseline", at, k)
			}
			if d := compareValues(at+"."+k, gv, wv, tol); d != "" {
				return d
			}
		}
	case []any:
		g, ok := got.([]any)
		if !ok {
			return fmt.Sprintf("%s: expected an array", at)
		}
		if len(g) != len(w) {
			return fmt.Sprintf("%s: length %d differs from baseline %d", at, len(g), len(w))
		}
		for i := range w {
			if d := compareValues(fmt.Sprintf("%s[%d]", at, i), g[i], w[i], tol); d != "" {
				return d
			}
		}
	default:
		if got != want {
			return fmt.Sprintf("%s: %v differs from baseline %v", at, got, want)
		}
	}
	return ""
}

// compareTimers warns about steps that ran slower than the baseline allows.
// Steps without a baseline time are not compared.
func compareTimers(req ports.ValidationRequest, tol float64) []domain.Verdict {
	data, err := os.ReadFile(filepath.Join(req.BaselineDir, testcase.TimersFile))
	if err != nil {
		return nil
	}
	var base map[string]float64
	if err := json.Unmarshal(data, &base); err != nil {
		return []domain.Verdict{{Artifact: TimerPrefix + "*", Status: domain.VerdictWarn, Message: "baseline timers are unreadable"}}
	}

	names := make([]string, 0, len(req.Timers))
	for name := range req.Timers {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []domain.Verdict
	for _, name := range names {
		want, ok := base[name]
		if !ok || want <= 0 {
			continue
		}
		got := req.Timers[name]
		v := domain.Verdict{Artifact: TimerPrefix + name, Status: domain.VerdictPass}
		if got > want*(1+tol) {
			v.Status = domain.VerdictWarn
			v.Message = fmt.Sprintf("took %.2fs, baseline %.2fs", got, want)
		}
		out = append(out, v)
	}
	return out
}

func diagnose(verdicts []domain.Verdict) string {
	var pass, fail, warn int
	for _, v := range verdicts {
		switch v.Status {
		case domain.VerdictPass:
			pass++
		case domain.VerdictFail:
			fail++
		case domain.VerdictWarn:
			warn++
		}
	}
	return fmt.Sprintf("%d passed, %d failed, %d warnings", pass, fail, warn)
}

func writeReport(path string, report domain.ValidationReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
