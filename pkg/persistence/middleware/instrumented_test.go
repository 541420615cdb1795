package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/cairn/internal/logging"
	"github.com/aretw0/cairn/pkg/adapters/memory"
	"github.com/aretw0/cairn/pkg/persistence/middleware"
	"github.com/aretw0/cairn/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumented_Contract(t *testing.T) {
	mw, err := middleware.NewInstrumented(prometheus.NewRegistry(), logging.NewNop())
	require.NoError(t, err)
	ports.RunRunStateStoreContract(t, middleware.Chain(memory.NewStore(), mw))
}

func TestInstrumented_Observes(t *testing.T) {
	reg := prometheus.NewRegistry()
	mw, err := middleware.NewInstrumented(reg, logging.NewNop())
	require.NoError(t, err)
	store := middleware.Chain(memory.NewStore(), mw)

	_, err = store.Load(context.Background(), "missing")
	require.Error(t, err)
	_, err = store.List(context.Background())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "cairn_runstate_store_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per op and result")

	_, err = middleware.NewInstrumented(reg, logging.NewNop())
	assert.NoError(t, err, "registering twice reuses the histogram")
}
