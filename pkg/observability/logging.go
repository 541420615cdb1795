package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/cairn/pkg/domain"
)

// LoggingHooks writes one structured line per lifecycle event.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTestCaseStart: func(ctx context.Context, e *domain.TestCaseEvent) {
			logger.DebugContext(ctx, "test_case_start", "run_id", e.RunID, "test_case", e.TestCase)
		},
		OnTestCaseFinish: func(ctx context.Context, e *domain.TestCaseEvent) {
			attrs := []any{"run_id", e.RunID, "test_case", e.TestCase}
			if e.Result != nil {
				attrs = append(attrs, "outcome", e.Result.Outcome, "duration", e.Result.Duration)
			}
			logger.InfoContext(ctx, "test_case_finish", attrs...)
		},
		OnStepStart: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_start", "run_id", e.RunID, "test_case", e.TestCase, "step", e.Step, "kind", e.Kind)
		},
		OnStepFinish: func(ctx context.Context, e *domain.StepEvent) {
			attrs := []any{"run_id", e.RunID, "test_case", e.TestCase, "step", e.Step, "status", e.Status, "duration", e.Duration}
			if e.Err != nil {
				logger.WarnContext(ctx, "step_finish", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "step_finish", attrs...)
		},
	}
}
