package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

type instrumented struct {
	next     ports.RunStateStore
	duration *prometheus.HistogramVec
	logger   *slog.Logger
}

// NewInstrumented times every store operation into cairn_runstate_store_duration_seconds
// and logs failures other than a missing run state.
func NewInstrumented(reg prometheus.Registerer, logger *slog.Logger) (Middleware, error) {
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cairn_runstate_store_duration_seconds",
		Help:    "Latency of run state store operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "result"})
	if err := reg.Register(duration); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return nil, err
		}
		duration = existing
	}
	return func(next ports.RunStateStore) ports.RunStateStore {
		return &instrumented{next: next, duration: duration, logger: logger}
	}, nil
}

func (m *instrumented) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case errors.Is(err, domain.ErrRunStateNotFound):
		result = "not_found"
	case err != nil:
		result = "error"
		m.logger.Warn("Run state store failed", "op", op, "err", err)
	}
	m.duration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (m *instrumented) Save(ctx context.Context, name string, state *domain.RunState) (err error) {
	defer func(start time.Time) { m.observe("save", start, err) }(time.Now())
	return m.next.Save(ctx, name, state)
}

func (m *instrumented) Load(ctx context.Context, name string) (_ *domain.RunState, err error) {
	defer func(start time.Time) { m.observe("load", start, err) }(time.Now())
	return m.next.Load(ctx, name)
}

func (m *instrumented) Delete(ctx context.Context, name string) (err error) {
	defer func(start time.Time) { m.observe("delete", start, err) }(time.Now())
	return m.next.Delete(ctx, name)
}

func (m *instrumented) List(ctx context.Context) (_ []string, err error) {
	defer func(start time.Time) { m.observe("list", start, err) }(time.Now())
	return m.next.List(ctx)
}
