package observability

import (
	"context"
	"errors"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the harness collectors.
type Metrics struct {
	StepRuns      *prometheus.CounterVec
	StepDuration  *prometheus.HistogramVec
	StepsRunning  prometheus.Gauge
	TestCaseRuns  *prometheus.CounterVec
	TestCaseTimes *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cairn_step_runs_total",
			Help: "Finished step executions by kind and terminal status.",
		}, []string{"kind", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cairn_step_duration_seconds",
			Help:    "Wall time of step executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"kind"}),
		StepsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cairn_steps_running",
			Help: "Steps currently executing.",
		}),
		TestCaseRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cairn_test_case_runs_total",
			Help: "Finished test case executions by outcome.",
		}, []string{"outcome"}),
		TestCaseTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cairn_test_case_duration_seconds",
			Help:    "Wall time of test case executions.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"outcome"}),
	}

	var err error
	if m.StepRuns, err = register(reg, m.StepRuns); err != nil {
		return nil, err
	}
	if m.StepDuration, err = register(reg, m.StepDuration); err != nil {
		return nil, err
	}
	if m.StepsRunning, err = register(reg, m.StepsRunning); err != nil {
		return nil, err
	}
	if m.TestCaseRuns, err = register(reg, m.TestCaseRuns); err != nil {
		return nil, err
	}
	if m.TestCaseTimes, err = register(reg, m.TestCaseTimes); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// Hooks records every step and test case event.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(_ context.Context, _ *domain.StepEvent) {
			m.StepsRunning.Inc()
		},
		OnStepFinish: func(_ context.Context, e *domain.StepEvent) {
			m.StepsRunning.Dec()
			m.StepRuns.WithLabelValues(e.Kind, string(e.Status)).Inc()
			m.StepDuration.WithLabelValues(e.Kind).Observe(e.Duration.Seconds())
		},
		OnTestCaseFinish: func(_ context.Context, e *domain.TestCaseEvent) {
			if e.Result == nil {
				return
			}
			outcome := string(e.Result.Outcome)
			m.TestCaseRuns.WithLabelValues(outcome).Inc()
			m.TestCaseTimes.WithLabelValues(outcome).Observe(e.Result.Duration.Seconds())
		},
	}
}
