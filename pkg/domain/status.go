package domain

// StepStatus is the lifecycle marker of a single step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"   // Declared, never executed
	StepRunning   StepStatus = "running"   // Run in progress (or interrupted before a terminal marker)
	StepSucceeded StepStatus = "succeeded" // Run returned and every declared output exists
	StepFailed    StepStatus = "failed"    // Run errored, timed out, was interrupted or missed outputs
	StepSkipped   StepStatus = "skipped"   // Not selected, or not reached after an earlier failure
)

// Terminal reports whether the status closes an execution attempt.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepSucceeded, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Outcome is the aggregate result of a test case run.
type Outcome string

const (
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"    // No step was selected
	OutcomeIncomplete Outcome = "incomplete" // The run was interrupted
)
