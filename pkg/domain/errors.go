package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// ErrConfiguration covers bad merge input, unresolved interpolation and unknown step names.
	ErrConfiguration = errors.New("configuration error")

	// ErrInterpolation is returned when a ${section:key} reference cannot be resolved.
	ErrInterpolation = errors.New("interpolation error")

	// ErrTypeConversion is returned when a typed config accessor cannot parse the stored value.
	ErrTypeConversion = errors.New("type conversion error")

	// ErrUnknownStepKind is returned when no factory is registered for a step kind.
	ErrUnknownStepKind = errors.New("unknown step kind")

	// ErrStepExecution covers non-zero process exits and faults raised inside a step.
	ErrStepExecution = errors.New("step execution error")

	// ErrMissingInput is returned when a staged input does not exist before a step runs.
	ErrMissingInput = errors.New("missing input")

	// ErrMissingOutput is returned when a declared output is absent after a step reported success.
	ErrMissingOutput = errors.New("missing output")

	// ErrTimeout is returned when a step exceeds its configured timeout.
	ErrTimeout = errors.New("step timed out")

	// ErrInterrupted marks a step or test case stopped by cancellation.
	ErrInterrupted = errors.New("interrupted")

	// ErrValidation is returned when baseline comparison reports a mismatch.
	ErrValidation = errors.New("validation failed")

	// ErrRunStateNotFound is returned when no RunState exists under the given name.
	ErrRunStateNotFound = errors.New("run state not found")

	// ErrIncompatibleRunState is returned when a RunState cannot be understood by this build.
	ErrIncompatibleRunState = errors.New("incompatible run state")
)

// ConfigurationError reports which file, section, key and value triggered a configuration failure.
type ConfigurationError struct {
	Source  string // File path or source label, if known
	Section string
	Key     string
	Value   string
	Reason  string
	Err     error
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Section != "" || e.Key != "" {
		fmt.Fprintf(&b, " at [%s] %s", e.Section, e.Key)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " = %q", e.Value)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// StepExecutionError wraps a fault raised while preparing or running a step.
type StepExecutionError struct {
	Step     string
	ExitCode int    // Non-zero when an external process failed
	Stderr   string // Captured tail of the process error output
	Err      error
}

func (e *StepExecutionError) Error() string {
	msg := fmt.Sprintf("step %q failed", e.Step)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" with exit code %d", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += "\n" + s
	}
	return msg
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

func (e *StepExecutionError) Is(target error) bool { return target == ErrStepExecution }

// MissingOutputError is raised by the framework, not the step, when outputs are absent after success.
type MissingOutputError struct {
	Step    string
	Missing []string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("step %q reported success but output(s) are missing: %s", e.Step, strings.Join(e.Missing, ", "))
}

func (e *MissingOutputError) Is(target error) bool { return target == ErrMissingOutput }

// TimeoutError reports a step that exceeded its timeout.
type TimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %q exceeded timeout of %s", e.Step, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// ValidationError reports baseline mismatches for a test case.
type ValidationError struct {
	TestCase   string
	Mismatches []Verdict
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, v := range e.Mismatches {
		parts = append(parts, fmt.Sprintf("%s (%s)", v.Artifact, v.Status))
	}
	return fmt.Sprintf("baseline comparison failed for %s: %s", e.TestCase, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AggregateError collects independent failures so they can be reported together.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// Join drops nil entries and returns nil for no errors, the error itself for one,
// and an AggregateError otherwise.
func Join(errs []error) error {
	errs = slices.DeleteFunc(slices.Clone(errs), func(err error) bool { return err == nil })
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return &AggregateError{Errors: errs}
}
