package cairn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/cairn/internal/adapters/file"
	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/observability"
	"github.com/aretw0/cairn/pkg/persistence/middleware"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/aretw0/cairn/pkg/registry"
	"github.com/aretw0/cairn/pkg/runstate"
	"github.com/aretw0/cairn/pkg/suite"
	"github.com/prometheus/client_golang/prometheus"
)

// Version of the cairn library and CLI.
var Version = "0.1.0"

// Harness is the high-level entry point for the cairn library.
// It owns one work directory and builds every Suite in it with the same stack.
type Harness struct {
	workDir string

	registry *registry.Registry
	store    ports.RunStateStore
	locker   ports.DistributedLocker
	hooks    domain.LifecycleHooks
	metrics  *observability.Metrics
	onResult func(domain.TestCaseResult)

	logger       *slog.Logger
	stdout       io.Writer
	stderr       io.Writer
	caseLogs     bool
	caseLogLevel slog.Level

	metricsReg prometheus.Registerer
}

// Option defines a functional option for configuring the Harness.
type Option func(*Harness)

// WithRegistry replaces the built-in step kinds.
func WithRegistry(reg *registry.Registry) Option {
	return func(h *Harness) {
		h.registry = reg
	}
}

// WithStore replaces the file store under the work directory.
func WithStore(store ports.RunStateStore) Option {
	return func(h *Harness) {
		h.store = store
	}
}

// WithLocker serializes run state writes across processes.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(h *Harness) {
		h.locker = locker
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(h *Harness) {
		h.hooks = hooks
	}
}

// WithMetrics records step and test case metrics into reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(h *Harness) {
		h.metricsReg = reg
	}
}

// WithResultFunc is called once per finished test case.
func WithResultFunc(fn func(domain.TestCaseResult)) Option {
	return func(h *Harness) {
		h.onResult = fn
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithOutput sets where step processes write when case logs are disabled.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(h *Harness) {
		h.stdout = stdout
		h.stderr = stderr
	}
}

// WithCaseLogs writes one log file per test case under case_outputs/.
func WithCaseLogs(level slog.Level) Option {
	return func(h *Harness) {
		h.caseLogs = true
		h.caseLogLevel = level
	}
}

// New creates a harness rooted at workDir.
func New(workDir string, opts ...Option) (*Harness, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work directory: %w", err)
	}
	h := &Harness{
		workDir: abs,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.store == nil {
		h.store = file.ForWorkDir(abs)
	}
	if h.metricsReg != nil {
		m, err := observability.NewMetrics(h.metricsReg)
		if err != nil {
			return nil, err
		}
		h.metrics = m

		instrument, err := middleware.NewInstrumented(h.metricsReg, h.logger)
		if err != nil {
			return nil, err
		}
		h.store = middleware.Chain(h.store, instrument)
	}
	return h, nil
}

// WorkDir returns the absolute work directory.
func (h *Harness) WorkDir() string { return h.workDir }

// Store returns the run state store.
func (h *Harness) Store() ports.RunStateStore { return h.store }

// States returns a run state manager over the harness store.
func (h *Harness) States() *runstate.Manager {
	opts := []runstate.Option{runstate.WithLogger(h.logger)}
	if h.locker != nil {
		opts = append(opts, runstate.WithLocker(h.locker))
	}
	return runstate.NewManager(h.store, opts...)
}

// Metrics returns the collectors, or nil without WithMetrics.
func (h *Harness) Metrics() *observability.Metrics { return h.metrics }

// Suite builds the named suite with the harness stack.
func (h *Harness) Suite(name string) (*suite.Suite, error) {
	hooks := []domain.LifecycleHooks{observability.LoggingHooks(h.logger), h.hooks}
	if h.metrics != nil {
		hooks = append(hooks, h.metrics.Hooks())
	}

	opts := []suite.Option{
		suite.WithStore(h.store),
		suite.WithLogger(h.logger),
		suite.WithHooks(domain.CombineHooks(hooks...)),
		suite.WithOutput(h.stdout, h.stderr),
		suite.WithCaseLogs(h.caseLogs, h.caseLogLevel),
	}
	if h.registry != nil {
		opts = append(opts, suite.WithRegistry(h.registry))
	}
	if h.locker != nil {
		opts = append(opts, suite.WithLocker(h.locker))
	}
	if h.onResult != nil {
		opts = append(opts, suite.WithResultFunc(h.onResult))
	}
	return suite.New(name, h.workDir, opts...)
}

// ErrAmbiguousRunState is returned by Resolve when no name is given and the
// work directory holds several run states.
var ErrAmbiguousRunState = errors.New("several run states, name one")

// Resolve returns name, or the only run state in the work directory when name is empty.
func (h *Harness) Resolve(ctx context.Context, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	names, err := h.store.List(ctx)
	if err != nil {
		return "", err
	}
	switch len(names) {
	case 0:
		return "", fmt.Errorf("%w in %s: run setup first", domain.ErrRunStateNotFound, h.workDir)
	case 1:
		return names[0], nil
	default:
		return "", fmt.Errorf("%w: %v", ErrAmbiguousRunState, names)
	}
}

// Setup prepares the named suite.
func (h *Harness) Setup(ctx context.Context, name string, opts suite.SetupOptions) (*domain.RunState, error) {
	s, err := h.Suite(name)
	if err != nil {
		return nil, err
	}
	return s.Setup(ctx, opts)
}

// Run executes the named suite, or the only one set up when name is empty.
func (h *Harness) Run(ctx context.Context, name string, opts suite.RunOptions) (*domain.SuiteResult, error) {
	name, err := h.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	s, err := h.Suite(name)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, opts)
}

// Clean removes the outputs and run state of the named suite.
func (h *Harness) Clean(ctx context.Context, name string) error {
	name, err := h.Resolve(ctx, name)
	if err != nil {
		return err
	}
	s, err := h.Suite(name)
	if err != nil {
		return err
	}
	return s.Clean(ctx)
}
