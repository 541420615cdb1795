package domain

import "time"

// StepResult is the outcome of one step in one execution attempt.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`

	Err error `json:"-"`
}

// TestCaseResult is the outcome of one test case in one execution attempt.
type TestCaseResult struct {
	Path     string        `json:"path"`
	Outcome  Outcome       `json:"outcome"`
	Steps    []StepResult  `json:"steps"`
	Duration time.Duration `json:"duration"`

	// Timers are step wall times in seconds, keyed by step name.
	Timers map[string]float64 `json:"timers,omitempty"`

	// Validation is nil when no baseline comparison ran.
	Validation *ValidationReport `json:"validation,omitempty"`

	// Err is the first error that made the test case fail, including setup errors at run time.
	Err error `json:"-"`
}

// Counts returns how many steps succeeded, failed and were skipped.
func (r *TestCaseResult) Counts() (passed, failed, skipped int) {
	for _, s := range r.Steps {
		switch s.Status {
		case StepSucceeded:
			passed++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}

// Passed reports whether execution succeeded and validation (if any) passed.
func (r *TestCaseResult) Passed() bool {
	if r.Outcome != OutcomeSucceeded && r.Outcome != OutcomeSkipped {
		return false
	}
	return r.Validation == nil || r.Validation.Passed()
}

// SuiteResult is the outcome of a suite run.
type SuiteResult struct {
	Name      string           `json:"name"`
	RunID     string           `json:"run_id"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration"`
	TestCases []TestCaseResult `json:"test_cases"`
}

// Failures returns the number of test cases that did not pass.
func (r *SuiteResult) Failures() int {
	n := 0
	for i := range r.TestCases {
		if !r.TestCases[i].Passed() {
			n++
		}
	}
	return n
}

// Mismatches returns every non-pass verdict, keyed by test case path.
func (r *SuiteResult) Mismatches() map[string][]Verdict {
	out := make(map[string][]Verdict)
	for _, tc := range r.TestCases {
		if tc.Validation == nil {
			continue
		}
		if m := tc.Validation.Mismatches(); len(m) > 0 {
			out[tc.Path] = m
		}
	}
	return out
}
