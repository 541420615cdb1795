// Package testcase runs an ordered set of steps that share one configuration
// and one working directory.
package testcase

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/step"
)

// Section is the configuration section that controls test case execution.
const Section = "test_case"

// Options read from Section.
const (
	KeyStepsToRun        = "steps_to_run"
	KeyContinueOnFailure = "continue_on_failure"
	KeyStepTimeout       = "step_timeout"
)

// TimersFile holds step wall times in seconds, written into the test case directory after every run.
const TimersFile = "timers.json"

// StatusFunc is called whenever a selected step changes status.
// err is non-nil only for StepFailed.
type StatusFunc func(name string, status domain.StepStatus, err error)

// TestCase is an ordered collection of named steps sharing a configuration and a directory.
type TestCase struct {
	path  string
	dir   string
	cfg   *config.Resolved
	steps []step.Step
	index map[string]int

	stepsToRun        []string
	continueOnFailure bool
	stepTimeout       time.Duration
	timeouts          map[string]time.Duration

	runID    string
	logger   *slog.Logger
	hooks    domain.LifecycleHooks
	stdout   io.Writer
	stderr   io.Writer
	onStatus StatusFunc
}

// Option configures a TestCase.
type Option func(*TestCase)

// WithLogger configures the logger. Defaults to a no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(tc *TestCase) {
		tc.logger = logger
	}
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(tc *TestCase) {
		tc.hooks = hooks
	}
}

// WithOutput sets where step processes write their output. Defaults to discarding it.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(tc *TestCase) {
		tc.stdout = stdout
		tc.stderr = stderr
	}
}

// WithStatusFunc registers a callback for step status changes, typically to persist them.
func WithStatusFunc(fn StatusFunc) Option {
	return func(tc *TestCase) {
		tc.onStatus = fn
	}
}

// WithRunID tags emitted events with a run identifier.
func WithRunID(id string) Option {
	return func(tc *TestCase) {
		tc.runID = id
	}
}

// New assembles a test case. path identifies it (e.g. "ocean/baroclinic_channel/10km/default"),
// dir is its absolute working directory. steps_to_run, continue_on_failure and step_timeout
// are read from the [test_case] section of cfg; every problem found is reported together.
func New(path, dir string, cfg *config.Resolved, steps []step.Step, opts ...Option) (*TestCase, error) {
	tc := &TestCase{
		path:     path,
		dir:      dir,
		cfg:      cfg,
		steps:    steps,
		index:    make(map[string]int, len(steps)),
		timeouts: make(map[string]time.Duration),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(tc)
	}
	tc.logger = tc.logger.With("test_case", path)

	var errs []error
	for i, s := range steps {
		spec := s.Spec()
		if _, dup := tc.index[spec.Name]; dup {
			errs = append(errs, &domain.ConfigurationError{Source: path, Value: spec.Name, Reason: "duplicate step name"})
			continue
		}
		tc.index[spec.Name] = i
		if spec.Timeout != "" {
			d, err := time.ParseDuration(spec.Timeout)
			if err != nil || d <= 0 {
				errs = append(errs, &domain.ConfigurationError{Source: path, Key: spec.Name, Value: spec.Timeout, Reason: "invalid step timeout"})
				continue
			}
			tc.timeouts[spec.Name] = d
		}
	}

	if cfg.Has(Section, KeyStepsToRun) {
		names, err := cfg.GetList(Section, KeyStepsToRun)
		if err != nil {
			errs = append(errs, err)
		} else if err := tc.checkNames(names, KeyStepsToRun); err != nil {
			errs = append(errs, err)
		} else {
			tc.stepsToRun = tc.ordered(names)
		}
	} else {
		for _, s := range steps {
			if !s.Spec().Optional {
				tc.stepsToRun = append(tc.stepsToRun, s.Spec().Name)
			}
		}
	}

	if cfg.Has(Section, KeyContinueOnFailure) {
		v, err := cfg.GetBool(Section, KeyContinueOnFailure)
		if err != nil {
			errs = append(errs, err)
		}
		tc.continueOnFailure = v
	}
	if cfg.Has(Section, KeyStepTimeout) {
		v, err := cfg.GetDuration(Section, KeyStepTimeout)
		if err != nil {
			errs = append(errs, err)
		}
		tc.stepTimeout = v
	}

	if err := domain.Join(errs); err != nil {
		return nil, err
	}
	return tc, nil
}

// Path returns the test case identifier.
func (tc *TestCase) Path() string { return tc.path }

// Dir returns the absolute working directory.
func (tc *TestCase) Dir() string { return tc.dir }

// Config returns the shared configuration.
func (tc *TestCase) Config() *config.Resolved { return tc.cfg }

// StepNames returns declared step names in declaration order.
func (tc *TestCase) StepNames() []string {
	names := make([]string, len(tc.steps))
	for i, s := range tc.steps {
		names[i] = s.Spec().Name
	}
	return names
}

// StepsToRun returns the configured default run set.
func (tc *TestCase) StepsToRun() []string { return slices.Clone(tc.stepsToRun) }

// HasStep reports whether name is declared.
func (tc *TestCase) HasStep(name string) bool {
	_, ok := tc.index[name]
	return ok
}

// SelectSteps resolves the run set. A non-empty include replaces steps_to_run exactly;
// otherwise exclude is subtracted from steps_to_run. Every name must be declared.
// The result is in declaration order and depends only on the arguments.
func (tc *TestCase) SelectSteps(include, exclude []string) ([]string, error) {
	if err := domain.Join([]error{
		tc.checkNames(include, "steps"),
		tc.checkNames(exclude, "no-steps"),
	}); err != nil {
		return nil, err
	}

	if len(include) > 0 {
		return tc.ordered(include), nil
	}
	run := make([]string, 0, len(tc.stepsToRun))
	for _, name := range tc.stepsToRun {
		if !slices.Contains(exclude, name) {
			run = append(run, name)
		}
	}
	return run, nil
}

// checkNames returns a ConfigurationError listing every undeclared name.
func (tc *TestCase) checkNames(names []string, key string) error {
	var unknown []string
	for _, n := range names {
		if !tc.HasStep(n) {
			unknown = append(unknown, n)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return &domain.ConfigurationError{
		Source:  tc.path,
		Section: Section,
		Key:     key,
		Value:   strings.Join(unknown, " "),
		Reason:  fmt.Sprintf("unknown step name(s); declared steps are: %s", strings.Join(tc.StepNames(), ", ")),
	}
}

// ordered dedupes names and sorts them into declaration order.
func (tc *TestCase) ordered(names []string) []string {
	out := make([]string, 0, len(names))
	for _, s := range tc.steps {
		if slices.Contains(names, s.Spec().Name) {
			out = append(out, s.Spec().Name)
		}
	}
	return out
}
