// Package suite sets up, runs and cleans named collections of test cases
// that share a work directory, a run state and a provenance log.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/cairn/internal/adapters/file"
	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/adapters/process"
	"github.com/aretw0/cairn/pkg/baseline"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/aretw0/cairn/pkg/registry"
	"github.com/aretw0/cairn/pkg/runstate"
	"github.com/aretw0/cairn/pkg/step"
	"github.com/aretw0/cairn/pkg/steps"
	"github.com/aretw0/cairn/pkg/testcase"
)

// CaseOutputsDir holds one log file per test case, relative to the work directory.
const CaseOutputsDir = "case_outputs"

// Blueprint describes a test case before setup: where it lives, the configuration
// layered on top of the suite's shared sources, and its steps in execution order.
type Blueprint struct {
	Path    string
	Sources []*config.Source
	Steps   []domain.StepSpec
}

// Suite is a named, ordered collection of test cases.
type Suite struct {
	name    string
	workDir string

	registry  *registry.Registry
	states    *runstate.Manager
	store     ports.RunStateStore
	locker    ports.DistributedLocker
	validator ports.BaselineValidator
	log       *provenance.Log

	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	onResult     func(domain.TestCaseResult)
	stdout       io.Writer
	stderr       io.Writer
	caseLogs     bool
	caseLogLevel slog.Level
	now          func() time.Time
}

// Option configures a Suite.
type Option func(*Suite)

// WithRegistry sets the step kinds available to the suite. Defaults to the built-in kinds.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Suite) {
		s.registry = reg
	}
}

// WithStore sets where run state is persisted. Defaults to a file store in the work directory.
func WithStore(store ports.RunStateStore) Option {
	return func(s *Suite) {
		s.store = store
	}
}

// WithLocker coordinates run state writes across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Suite) {
		s.locker = locker
	}
}

// WithValidator replaces the default baseline.Comparer.
func WithValidator(v ports.BaselineValidator) Option {
	return func(s *Suite) {
		s.validator = v
	}
}

// WithLogger configures the logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Suite) {
		s.logger = logger
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Suite) {
		s.hooks = hooks
	}
}

// WithResultFunc is called once per finished test case, after validation,
// in completion order. Calls never overlap.
func WithResultFunc(fn func(domain.TestCaseResult)) Option {
	return func(s *Suite) {
		s.onResult = fn
	}
}

// WithOutput sets where step processes write when per-case logs are disabled.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(s *Suite) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithCaseLogs sends each test case's log and process output to
// <work_dir>/case_outputs/<path_with_underscores>.log.
func WithCaseLogs(enabled bool, level slog.Level) Option {
	return func(s *Suite) {
		s.caseLogs = enabled
		s.caseLogLevel = level
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Suite) {
		s.now = now
	}
}

// New creates a suite rooted at workDir.
func New(name, workDir string, opts ...Option) (*Suite, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, &domain.ConfigurationError{Value: name, Reason: "invalid suite name"}
	}
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work directory: %w", err)
	}

	s := &Suite{
		name:    name,
		workDir: abs,
		logger:  logging.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("suite", name)

	if s.registry == nil {
		s.registry = registry.NewRegistry()
		steps.Register(s.registry, process.NewRunner())
	}
	if s.store == nil {
		s.store = file.ForWorkDir(abs)
	}
	if s.validator == nil {
		s.validator = baseline.NewComparer(baseline.WithLogger(s.logger))
	}
	mopts := []runstate.Option{runstate.WithLogger(s.logger), runstate.WithClock(s.now)}
	if s.locker != nil {
		mopts = append(mopts, runstate.WithLocker(s.locker))
	}
	s.states = runstate.NewManager(s.store, mopts...)
	s.log = provenance.ForWorkDir(abs)
	return s, nil
}

// Name returns the suite name.
func (s *Suite) Name() string { return s.name }

// WorkDir returns the absolute work directory.
func (s *Suite) WorkDir() string { return s.workDir }

// Provenance returns the suite's provenance log.
func (s *Suite) Provenance() *provenance.Log { return s.log }

// States returns the run state manager.
func (s *Suite) States() *runstate.Manager { return s.states }

// State loads the persisted run state.
func (s *Suite) State(ctx context.Context) (*domain.RunState, error) {
	return s.states.Load(ctx, s.name)
}

// SetupOptions are the inputs of Setup.
type SetupOptions struct {
	// Sources are shared by every test case, beneath each blueprint's own sources.
	Sources    []*config.Source
	Blueprints []Blueprint

	// Kind defaults to domain.KindSuite. domain.KindTestCase requires exactly one blueprint.
	Kind domain.RunStateKind

	BaselineDir string
}

type prepared struct {
	bp  Blueprint
	dir string
	cfg *config.Resolved
}

// Setup resolves and validates every test case, then creates the work directories,
// writes each test case's merged configuration and saves the run state.
// Nothing is executed. On any error nothing is created on disk.
func (s *Suite) Setup(ctx context.Context, opts SetupOptions) (*domain.RunState, error) {
	kind := opts.Kind
	if kind == "" {
		kind = domain.KindSuite
	}

	var errs []error
	switch {
	case len(opts.Blueprints) == 0:
		errs = append(errs, &domain.ConfigurationError{Source: s.name, Reason: "no test cases to set up"})
	case kind == domain.KindTestCase && len(opts.Blueprints) != 1:
		errs = append(errs, &domain.ConfigurationError{Source: s.name, Reason: fmt.Sprintf("a single test case run state needs exactly one test case, got %d", len(opts.Blueprints))})
	}

	seen := make(map[string]bool)
	cases := make([]prepared, 0, len(opts.Blueprints))
	for _, bp := range opts.Blueprints {
		if err := checkPath(bp.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[bp.Path] {
			errs = append(errs, &domain.ConfigurationError{Source: s.name, Value: bp.Path, Reason: "test case listed twice"})
			continue
		}
		seen[bp.Path] = true

		p, err := s.prepare(bp, opts.Sources)
		if err != nil {
			errs = append(errs, fmt.Errorf("test case %s: %w", bp.Path, err))
			continue
		}
		cases = append(cases, p)
	}
	if err := domain.Join(errs); err != nil {
		return nil, err
	}

	state := &domain.RunState{
		Version:     domain.RunStateVersion,
		Kind:        kind,
		Name:        s.name,
		WorkDir:     s.workDir,
		BaselineDir: opts.BaselineDir,
	}
	for _, p := range cases {
		cfgFile := path.Base(p.bp.Path) + ".cfg"
		if err := writeConfig(p.dir, cfgFile, p.cfg); err != nil {
			return nil, err
		}
		tc := domain.TestCaseState{
			Path:       p.bp.Path,
			WorkDir:    filepath.ToSlash(p.bp.Path),
			ConfigFile: cfgFile,
		}
		for _, spec := range p.bp.Steps {
			tc.Steps = append(tc.Steps, domain.StepState{StepSpec: spec, Status: domain.StepPending})
		}
		state.TestCases = append(state.TestCases, tc)
		s.logger.Info("Set up test case", "test_case", p.bp.Path, "dir", p.dir)
	}

	if err := s.states.Save(ctx, s.name, state); err != nil {
		return nil, fmt.Errorf("save run state: %w", err)
	}
	return state, nil
}

// prepare resolves one blueprint the way Run will rebuild it, so that every
// configuration, interpolation, step option and selection error surfaces at setup.
func (s *Suite) prepare(bp Blueprint, shared []*config.Source) (prepared, error) {
	dir := filepath.Join(s.workDir, filepath.FromSlash(bp.Path))

	defaults := config.NewSource(bp.Path+" defaults", config.LayerCore).
		Set(testcase.Section, "path", bp.Path).
		Set(testcase.Section, "work_dir", strings.ReplaceAll(dir, "$", "$$"))
	var run []string
	for _, spec := range bp.Steps {
		if !spec.Optional {
			run = append(run, spec.Name)
		}
	}
	defaults.Set(testcase.Section, testcase.KeyStepsToRun, strings.Join(run, " "))

	sources := make([]*config.Source, 0, 1+len(shared)+len(bp.Sources))
	sources = append(sources, defaults)
	sources = append(sources, shared...)
	sources = append(sources, bp.Sources...)
	cfg := config.Merge(sources...)

	if err := cfg.Validate(); err != nil {
		return prepared{}, err
	}
	if _, err := s.build(bp.Path, dir, cfg, bp.Steps); err != nil {
		return prepared{}, err
	}
	return prepared{bp: bp, dir: dir, cfg: cfg}, nil
}

type built struct {
	tc    *testcase.TestCase
	specs map[string]domain.StepSpec // interpolated, by step name
}

// build interpolates the step specs, instantiates them through the registry and assembles the test case.
func (s *Suite) build(tcPath, dir string, cfg *config.Resolved, specs []domain.StepSpec, opts ...testcase.Option) (built, error) {
	if len(specs) == 0 {
		return built{}, &domain.ConfigurationError{Source: tcPath, Reason: "test case has no steps"}
	}
	var errs []error
	expanded := make([]domain.StepSpec, 0, len(specs))
	for _, spec := range specs {
		e, err := step.Expand(cfg, spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		expanded = append(expanded, e)
	}
	if err := domain.Join(errs); err != nil {
		return built{}, err
	}

	stepList, err := s.registry.BuildAll(expanded)
	if err != nil {
		return built{}, err
	}
	tc, err := testcase.New(tcPath, dir, cfg, stepList, opts...)
	if err != nil {
		return built{}, err
	}

	byName := make(map[string]domain.StepSpec, len(expanded))
	for _, spec := range expanded {
		byName[spec.Name] = spec
	}
	return built{tc: tc, specs: byName}, nil
}

func checkPath(p string) error {
	switch {
	case p == "":
		return &domain.ConfigurationError{Reason: "test case path is empty"}
	case path.IsAbs(p) || path.Clean(p) != p || p == "." || strings.HasPrefix(p, "../") || p == "..":
		return &domain.ConfigurationError{Value: p, Reason: "test case path must be a clean relative path"}
	}
	return nil
}

func writeConfig(dir, name string, cfg *config.Resolved) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create test case directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("write test case config: %w", err)
	}
	if _, err := cfg.WriteTo(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write test case config: %w", err)
	}
	return f.Close()
}

// Clean empties each test case directory except for its baseline comparison report,
// then removes the per-case logs and the run state. The provenance log survives.
func (s *Suite) Clean(ctx context.Context) error {
	state, err := s.states.Load(ctx, s.name)
	if runstate.IsNotFound(err) {
		s.logger.Info("Nothing to clean")
		return nil
	}
	if err != nil {
		return err
	}

	var errs []error
	for _, tc := range state.TestCases {
		dir := filepath.Join(s.workDir, filepath.FromSlash(tc.WorkDir))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if e.Name() == baseline.ReportFile {
				continue
			}
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
		if err := os.Remove(CaseLogPath(s.workDir, tc.Path)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := s.states.Delete(ctx, s.name); err != nil {
		errs = append(errs, err)
	}
	s.logger.Info("Cleaned work directory", "test_cases", len(state.TestCases))
	return domain.Join(errs)
}

// CaseLogPath is where WithCaseLogs writes the log of test case tcPath.
func CaseLogPath(workDir, tcPath string) string {
	return filepath.Join(workDir, CaseOutputsDir, strings.ReplaceAll(tcPath, "/", "_")+".log")
}
