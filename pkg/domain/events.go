package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTestCaseStart  EventType = "test_case_start"
	EventTestCaseFinish EventType = "test_case_finish"
	EventStepStart      EventType = "step_start"
	EventStepFinish     EventType = "step_finish"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
}

// StepEvent represents the start or end of a step.
type StepEvent struct {
	EventBase
	TestCase string        `json:"test_case"`
	Step     string        `json:"step"`
	Kind     string        `json:"kind"`
	Status   StepStatus    `json:"status,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// TestCaseEvent represents the start or end of a test case.
type TestCaseEvent struct {
	EventBase
	TestCase string          `json:"test_case"`
	Result   *TestCaseResult `json:"result,omitempty"`
}

// LifecycleHooks defines callbacks for execution observability.
// Any field may be nil.
type LifecycleHooks struct {
	OnTestCaseStart  func(context.Context, *TestCaseEvent)
	OnTestCaseFinish func(context.Context, *TestCaseEvent)
	OnStepStart      func(context.Context, *StepEvent)
	OnStepFinish     func(context.Context, *StepEvent)
}

// CombineHooks fans every callback out to all of the given hooks, in order.
func CombineHooks(all ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnTestCaseStart: func(ctx context.Context, e *TestCaseEvent) {
			for _, h := range all {
				if h.OnTestCaseStart != nil {
					h.OnTestCaseStart(ctx, e)
				}
			}
		},
		OnTestCaseFinish: func(ctx context.Context, e *TestCaseEvent) {
			for _, h := range all {
				if h.OnTestCaseFinish != nil {
					h.OnTestCaseFinish(ctx, e)
				}
			}
		},
		OnStepStart: func(ctx context.Context, e *StepEvent) {
			for _, h := range all {
				if h.OnStepStart != nil {
					h.OnStepStart(ctx, e)
				}
			}
		},
		OnStepFinish: func(ctx context.Context, e *StepEvent) {
			for _, h := range all {
				if h.OnStepFinish != nil {
					h.OnStepFinish(ctx, e)
				}
			}
		},
	}
}
