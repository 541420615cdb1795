package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/cairn/pkg/adapters/memory"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/aretw0/cairn/pkg/runstate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *runstate.Manager, *provenance.Log) {
	t.Helper()
	states := runstate.NewManager(memory.NewStore())
	log := provenance.New(filepath.Join(t.TempDir(), provenance.FileName))
	return NewServer(states, log.Path(), opts...), states, log
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestGetHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rr := get(t, s.Handler(), "/health")

	assert.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["version"])
}

func TestRuns(t *testing.T) {
	s, states, _ := newTestServer(t)
	h := s.Handler()

	rr := get(t, h, "/runs")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	require.NoError(t, states.Save(context.Background(), "nightly", &domain.RunState{
		Kind: domain.KindSuite,
		Name: "nightly",
		TestCases: []domain.TestCaseState{{
			Path:  "ocean/t1",
			Steps: []domain.StepState{{StepSpec: domain.StepSpec{Name: "forward", Kind: "command"}, Status: domain.StepPending}},
		}},
	}))

	rr = get(t, h, "/runs")
	assert.JSONEq(t, `["nightly"]`, rr.Body.String())

	rr = get(t, h, "/runs/nightly")
	require.Equal(t, http.StatusOK, rr.Code)
	var state domain.RunState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &state))
	assert.Equal(t, "ocean/t1", state.TestCases[0].Path)

	rr = get(t, h, "/runs/nightly/graph")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `subgraph tc0["ocean/t1"]`)

	rr = get(t, h, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
}

func TestGetProvenance(t *testing.T) {
	s, _, log := newTestServer(t)
	h := s.Handler()

	rr := get(t, h, "/provenance")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	now := time.Now()
	require.NoError(t, log.Append(provenance.NewEntry(now, "run-1", "nightly", &domain.TestCaseResult{Path: "ocean/t1", Outcome: domain.OutcomeSucceeded})))
	require.NoError(t, log.Append(provenance.NewEntry(now, "run-1", "nightly", &domain.TestCaseResult{Path: "ocean/t2", Outcome: domain.OutcomeFailed})))
	require.NoError(t, log.Append(provenance.NewEntry(now, "run-2", "nightly", &domain.TestCaseResult{Path: "ocean/t1", Outcome: domain.OutcomeSucceeded})))

	var entries []provenance.Entry
	rr = get(t, h, "/provenance?run_id=run-1")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)

	rr = get(t, h, "/provenance?test_case=ocean/t1")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "ocean/t1", e.TestCase)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "cairn_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s, _, _ := newTestServer(t, WithGatherer(reg))
	rr := get(t, s.Handler(), "/metrics")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "cairn_test_total 1")
}

func TestSubscribeEvents(t *testing.T) {
	streams := NewStreamManager()
	s, _, _ := newTestServer(t, WithStreams(streams))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?run_id=run-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	hooks := streams.Hooks()
	hooks.OnStepStart(ctx, &domain.StepEvent{EventBase: domain.EventBase{RunID: "run-2"}, Step: "other"})
	hooks.OnStepStart(ctx, &domain.StepEvent{EventBase: domain.EventBase{RunID: "run-1", Type: domain.EventStepStart}, Step: "forward"})

	var data string
	for lines.Scan() {
		if strings.HasPrefix(lines.Text(), "data: {") {
			data = strings.TrimPrefix(lines.Text(), "data: ")
			break
		}
	}
	var e domain.StepEvent
	require.NoError(t, json.Unmarshal([]byte(data), &e))
	assert.Equal(t, "forward", e.Step, "events of other runs are filtered out")
}

func TestStreamManager_Unsubscribe(t *testing.T) {
	sm := NewStreamManager()
	ch, unsubscribe := sm.Subscribe("")
	sm.Broadcast("any", "hello")
	assert.Equal(t, "hello", <-ch)

	unsubscribe()
	unsubscribe()
	_, open := <-ch
	assert.False(t, open)
	sm.Broadcast("any", "dropped")
}
