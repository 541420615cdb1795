package suite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/aretw0/cairn/pkg/runstate"
	"github.com/aretw0/cairn/pkg/testcase"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunOptions select what a Run executes.
type RunOptions struct {
	// Include replaces steps_to_run. In a suite it is narrowed to each test case's declared steps.
	Include []string

	// Exclude is subtracted from steps_to_run.
	Exclude []string

	// Resume skips steps that already succeeded, unless they are named in Include.
	Resume bool

	// Parallel is the number of test cases run at once. Values below 2 run them sequentially.
	Parallel int

	// Overrides are layered on top of each test case's saved configuration for this run only.
	Overrides []*config.Source

	// BaselineDir replaces the baseline recorded at setup.
	BaselineDir string
}

// Run executes the test cases recorded by Setup, in declared order, and appends
// one provenance entry per test case, failed or not. Test case failures are reported
// in the result; the error is reserved for an unusable run state, bad selections,
// persistence failures and interruption.
func (s *Suite) Run(ctx context.Context, opts RunOptions) (*domain.SuiteResult, error) {
	state, err := s.states.Load(ctx, s.name)
	if err != nil {
		return nil, err
	}

	if recovered := runstate.RecoverInterrupted(state); len(recovered) > 0 {
		s.logger.Warn("Recovered steps left running by an interrupted run", "steps", strings.Join(recovered, ", "))
		if err := s.states.Save(ctx, s.name, state); err != nil {
			return nil, fmt.Errorf("save recovered run state: %w", err)
		}
	}
	if err := runstate.Check(state, s.registry); err != nil {
		return nil, err
	}
	if err := checkSelection(state, opts.Include, opts.Exclude); err != nil {
		return nil, err
	}
	if len(opts.Include) > 0 && len(opts.Exclude) > 0 {
		s.logger.Warn("Excluded steps are ignored because included steps replace steps_to_run",
			"steps", strings.Join(opts.Include, ","), "no_steps", strings.Join(opts.Exclude, ","))
	}

	baselineDir := state.BaselineDir
	if opts.BaselineDir != "" {
		baselineDir = opts.BaselineDir
	}

	res := &domain.SuiteResult{
		Name:      s.name,
		RunID:     uuid.NewString(),
		StartedAt: s.now().UTC(),
	}
	logger := s.logger.With("run_id", res.RunID)
	logger.Info("Running suite", "test_cases", len(state.TestCases), "work_dir", s.workDir)

	n := len(state.TestCases)
	results := make([]*domain.TestCaseResult, n)
	var (
		mu      sync.Mutex
		next    int
		errs    []error
		persist = context.WithoutCancel(ctx)
	)
	appendEntry := func(r *domain.TestCaseResult) {
		if err := s.log.Append(provenance.NewEntry(s.now(), res.RunID, s.name, r)); err != nil {
			errs = append(errs, fmt.Errorf("provenance for %s: %w", r.Path, err))
		}
	}
	// finish records a result and flushes every consecutive finished result,
	// so the log follows declared order even when test cases run in parallel.
	finish := func(i int, r *domain.TestCaseResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = r
		if s.onResult != nil {
			s.onResult(*r)
		}
		if err != nil {
			errs = append(errs, err)
		}
		for next < n && results[next] != nil {
			appendEntry(results[next])
			next++
		}
	}

	var g errgroup.Group
	g.SetLimit(max(opts.Parallel, 1))
	for i := range state.TestCases {
		if ctx.Err() != nil {
			break
		}
		tcs := state.TestCases[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r, err := s.runTestCase(ctx, persist, res.RunID, state, tcs, opts, baselineDir)
			finish(i, r, err)
			return nil
		})
	}
	_ = g.Wait()

	mu.Lock()
	for ; next < n; next++ {
		if results[next] != nil {
			appendEntry(results[next])
		}
	}
	mu.Unlock()

	for _, r := range results {
		if r != nil {
			res.TestCases = append(res.TestCases, *r)
		}
	}
	res.Duration = time.Since(res.StartedAt)

	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("suite %s: %w: %w", s.name, domain.ErrInterrupted, ctx.Err()))
	}
	logger.Info("Suite finished", "failures", res.Failures(), "duration", res.Duration.Round(time.Millisecond))
	return res, domain.Join(errs)
}

// runTestCase rebuilds one test case from its saved configuration and executes it.
// Anything that prevents it from running is reported as a failed result.
func (s *Suite) runTestCase(ctx, persist context.Context, runID string, state *domain.RunState, tcs domain.TestCaseState, opts RunOptions, baselineDir string) (*domain.TestCaseResult, error) {
	dir := filepath.Join(s.workDir, filepath.FromSlash(tcs.WorkDir))
	failed := func(err error) *domain.TestCaseResult {
		s.logger.Error("Test case could not run", "test_case", tcs.Path, "err", err)
		return &domain.TestCaseResult{Path: tcs.Path, Outcome: domain.OutcomeFailed, Err: err}
	}

	logger := s.logger
	stdout, stderr := s.stdout, s.stderr
	if s.caseLogs {
		l, f, err := logging.NewFile(CaseLogPath(s.workDir, tcs.Path), s.caseLogLevel)
		if err != nil {
			return failed(err), nil
		}
		defer f.Close()
		logger = l.With("run_id", runID)
		stdout, stderr = f, f
	}

	src, err := config.ParseFile(filepath.Join(dir, tcs.ConfigFile), config.LayerTestCase)
	if err != nil {
		return failed(err), nil
	}
	cfg := config.Merge(append([]*config.Source{src}, opts.Overrides...)...)

	var persistErr error
	onStatus := func(name string, status domain.StepStatus, stepErr error) {
		if err := s.states.UpdateStep(persist, s.name, tcs.Path, name, status, stepErr); err != nil && persistErr == nil {
			persistErr = fmt.Errorf("persist status of %s/%s: %w", tcs.Path, name, err)
			logger.Warn("Failed to persist step status", "test_case", tcs.Path, "step", name, "err", err)
		}
	}

	b, err := s.build(tcs.Path, dir, cfg, tcs.Specs(),
		testcase.WithLogger(logger),
		testcase.WithHooks(s.hooks),
		testcase.WithOutput(orDiscard(stdout), orDiscard(stderr)),
		testcase.WithStatusFunc(onStatus),
		testcase.WithRunID(runID),
	)
	if err != nil {
		return failed(err), nil
	}

	runSet, err := s.runSet(state, tcs, b.tc, opts)
	if err != nil {
		return failed(err), nil
	}

	r, err := b.tc.Execute(ctx, runSet)
	if err != nil {
		return failed(err), nil
	}

	if baselineDir != "" && r.Outcome == domain.OutcomeSucceeded {
		s.validate(persist, r, b, dir, filepath.Join(baselineDir, filepath.FromSlash(tcs.WorkDir)))
	}
	return r, persistErr
}

// runSet applies the run-time filters to one test case. A single test case follows
// testcase.SelectSteps strictly; in a suite, filters only apply to the names a test case declares.
func (s *Suite) runSet(state *domain.RunState, tcs domain.TestCaseState, tc *testcase.TestCase, opts RunOptions) ([]string, error) {
	include, exclude := opts.Include, opts.Exclude
	if state.Kind != domain.KindTestCase {
		include = declared(tc, opts.Include)
		exclude = declared(tc, opts.Exclude)
		if len(opts.Include) > 0 && len(include) == 0 {
			return nil, nil
		}
	}
	run, err := tc.SelectSteps(include, exclude)
	if err != nil {
		return nil, err
	}
	if !opts.Resume {
		return run, nil
	}
	return slices.DeleteFunc(run, func(name string) bool {
		st := tcs.Step(name)
		return st != nil && st.Status == domain.StepSucceeded && !slices.Contains(opts.Include, name)
	}), nil
}

func (s *Suite) validate(ctx context.Context, r *domain.TestCaseResult, b built, dir, baselineDir string) {
	req := ports.ValidationRequest{
		TestCase:    r.Path,
		WorkDir:     dir,
		BaselineDir: baselineDir,
		Timers:      r.Timers,
		Config:      b.tc.Config(),
	}
	for _, sr := range r.Steps {
		if sr.Status != domain.StepSucceeded {
			continue
		}
		spec := b.specs[sr.Name]
		for _, out := range spec.Outputs {
			rel := filepath.Join(spec.Dir(), out)
			if _, err := os.Stat(filepath.Join(dir, rel)); err == nil {
				req.Artifacts = append(req.Artifacts, filepath.ToSlash(rel))
			}
		}
	}

	report, err := s.validator.Validate(ctx, req)
	if err != nil {
		report = domain.ValidationReport{
			Verdicts:   []domain.Verdict{{Artifact: ".", Status: domain.VerdictFail, Message: err.Error()}},
			Diagnostic: "baseline comparison could not run",
		}
	}
	r.Validation = &report
	if !report.Passed() && r.Err == nil {
		r.Err = &domain.ValidationError{TestCase: r.Path, Mismatches: report.Mismatches()}
	}
}

// checkSelection rejects step names that no test case declares.
func checkSelection(state *domain.RunState, include, exclude []string) error {
	known := make(map[string]bool)
	var all []string
	for _, tc := range state.TestCases {
		for _, name := range tc.StepNames() {
			if !known[name] {
				known[name] = true
				all = append(all, name)
			}
		}
	}
	var errs []error
	for _, sel := range []struct {
		key   string
		names []string
	}{{"steps", include}, {"no-steps", exclude}} {
		var unknown []string
		for _, n := range sel.names {
			if !known[n] {
				unknown = append(unknown, n)
			}
		}
		if len(unknown) > 0 {
			errs = append(errs, &domain.ConfigurationError{
				Source: state.Name,
				Key:    sel.key,
				Value:  strings.Join(unknown, " "),
				Reason: fmt.Sprintf("unknown step name(s); declared steps are: %s", strings.Join(all, ", ")),
			})
		}
	}
	return domain.Join(errs)
}

func declared(tc *testcase.TestCase, names []string) []string {
	var out []string
	for _, n := range names {
		if tc.HasStep(n) {
			out = append(out, n)
		}
	}
	return out
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
