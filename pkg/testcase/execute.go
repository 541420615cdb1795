package testcase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/step"
)

// Execute runs the steps in runSet in declaration order. Steps outside runSet are
// reported skipped and left alone on disk. The first failure stops the remaining
// steps unless continue_on_failure is set. Step failures are reported in the result,
// not as an error; the error is reserved for an invalid runSet or an unusable directory.
func (tc *TestCase) Execute(ctx context.Context, runSet []string) (*domain.TestCaseResult, error) {
	if err := tc.checkNames(runSet, "steps"); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tc.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create test case directory: %w", err)
	}

	start := time.Now()
	res := &domain.TestCaseResult{
		Path:   tc.path,
		Timers: make(map[string]float64),
	}
	tc.emitTestCase(ctx, tc.hooks.OnTestCaseStart, domain.EventTestCaseStart, nil)

	var failed, interrupted bool
	ran := 0
	for _, s := range tc.steps {
		spec := s.Spec()
		if !slices.Contains(runSet, spec.Name) {
			res.Steps = append(res.Steps, domain.StepResult{Name: spec.Name, Status: domain.StepSkipped})
			continue
		}
		if (failed && !tc.continueOnFailure) || interrupted || ctx.Err() != nil {
			interrupted = interrupted || ctx.Err() != nil
			res.Steps = append(res.Steps, domain.StepResult{Name: spec.Name, Status: domain.StepSkipped})
			tc.setStatus(spec.Name, domain.StepSkipped, nil)
			continue
		}

		ran++
		sr := tc.runStep(ctx, s)
		res.Steps = append(res.Steps, sr)
		res.Timers[spec.Name] = sr.Duration.Seconds()

		if sr.Status == domain.StepFailed {
			failed = true
			if res.Err == nil {
				res.Err = sr.Err
			}
			if errors.Is(sr.Err, domain.ErrInterrupted) {
				interrupted = true
			}
		}
	}

	switch {
	case interrupted:
		res.Outcome = domain.OutcomeIncomplete
		if res.Err == nil {
			res.Err = fmt.Errorf("test case %s: %w", tc.path, domain.ErrInterrupted)
		}
	case failed:
		res.Outcome = domain.OutcomeFailed
	case ran == 0:
		res.Outcome = domain.OutcomeSkipped
	default:
		res.Outcome = domain.OutcomeSucceeded
	}
	res.Duration = time.Since(start)

	if err := tc.writeTimers(res.Timers); err != nil {
		tc.logger.Warn("Failed to write timers", "err", err)
	}

	tc.logger.Info("Test case finished", "outcome", res.Outcome, "duration", res.Duration.Round(time.Millisecond))
	tc.emitTestCase(ctx, tc.hooks.OnTestCaseFinish, domain.EventTestCaseFinish, res)
	return res, nil
}

// runStep prepares, runs and verifies one step, classifying any failure.
func (tc *TestCase) runStep(ctx context.Context, s step.Step) domain.StepResult {
	spec := s.Spec()
	dir := filepath.Join(tc.dir, spec.Dir())
	logger := tc.logger.With("step", spec.Name)

	tc.setStatus(spec.Name, domain.StepRunning, nil)
	tc.emitStep(ctx, tc.hooks.OnStepStart, domain.EventStepStart, spec, domain.StepRunning, 0, nil)
	logger.Info("Running step", "kind", spec.Kind, "dir", dir)

	timeout := tc.stepTimeout
	if d, ok := tc.timeouts[spec.Name]; ok {
		timeout = d
	}
	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	err := tc.invoke(stepCtx, s, dir)
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = &domain.StepExecutionError{Step: spec.Name, Err: fmt.Errorf("%w: %w", domain.ErrInterrupted, err)}
		case stepCtx.Err() != nil:
			err = &domain.TimeoutError{Step: spec.Name, Timeout: timeout}
		case !isClassified(err):
			err = &domain.StepExecutionError{Step: spec.Name, Err: err}
		}
	}

	status := domain.StepSucceeded
	if err != nil {
		status = domain.StepFailed
		logger.Error("Step failed", "duration", elapsed.Round(time.Millisecond), "err", err)
	} else {
		logger.Info("Step succeeded", "duration", elapsed.Round(time.Millisecond))
	}

	tc.setStatus(spec.Name, status, err)
	tc.emitStep(ctx, tc.hooks.OnStepFinish, domain.EventStepFinish, spec, status, elapsed, err)

	sr := domain.StepResult{Name: spec.Name, Status: status, Duration: elapsed, Err: err}
	if err != nil {
		sr.Error = err.Error()
	}
	return sr
}

func (tc *TestCase) invoke(ctx context.Context, s step.Step, dir string) (err error) {
	spec := s.Spec()
	// A panicking step fails its test case, not the whole run.
	defer func() {
		if p := recover(); p != nil {
			err = &domain.StepExecutionError{Step: spec.Name, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := s.Prepare(ctx, dir); err != nil {
		return &domain.StepExecutionError{Step: spec.Name, Err: err}
	}
	if missing := step.MissingInputs(spec, dir); len(missing) > 0 {
		return &domain.StepExecutionError{
			Step: spec.Name,
			Err:  fmt.Errorf("%w: %s", domain.ErrMissingInput, strings.Join(missing, ", ")),
		}
	}

	env := &step.Env{
		Config:      tc.cfg,
		Dir:         dir,
		TestCaseDir: tc.dir,
		Logger:      tc.logger.With("step", spec.Name),
		Stdout:      tc.stdout,
		Stderr:      tc.stderr,
	}
	if err := s.Run(ctx, env); err != nil {
		return err
	}

	if missing := step.MissingOutputs(spec, dir); len(missing) > 0 {
		return &domain.MissingOutputError{Step: spec.Name, Missing: missing}
	}
	return nil
}

func isClassified(err error) bool {
	return errors.Is(err, domain.ErrStepExecution) ||
		errors.Is(err, domain.ErrMissingOutput) ||
		errors.Is(err, domain.ErrTimeout)
}

func (tc *TestCase) setStatus(name string, status domain.StepStatus, err error) {
	if tc.onStatus != nil {
		tc.onStatus(name, status, err)
	}
}

// writeTimers merges this run's timers into the test case's timers file,
// so steps that were not selected keep their last recorded time.
func (tc *TestCase) writeTimers(timers map[string]float64) error {
	path := filepath.Join(tc.dir, TimersFile)
	merged := make(map[string]float64)
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &merged)
	}
	for k, v := range timers {
		merged[k] = v
	}
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (tc *TestCase) emitStep(ctx context.Context, fn func(context.Context, *domain.StepEvent), typ domain.EventType, spec domain.StepSpec, status domain.StepStatus, d time.Duration, err error) {
	if fn == nil {
		return
	}
	fn(ctx, &domain.StepEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, RunID: tc.runID},
		TestCase:  tc.path,
		Step:      spec.Name,
		Kind:      spec.Kind,
		Status:    status,
		Duration:  d,
		Err:       err,
	})
}

func (tc *TestCase) emitTestCase(ctx context.Context, fn func(context.Context, *domain.TestCaseEvent), typ domain.EventType, res *domain.TestCaseResult) {
	if fn == nil {
		return
	}
	fn(ctx, &domain.TestCaseEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, RunID: tc.runID},
		TestCase:  tc.path,
		Result:    res,
	})
}
