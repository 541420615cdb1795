package provenance_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(path string, outcome domain.Outcome) *domain.TestCaseResult {
	return &domain.TestCaseResult{
		Path:     path,
		Outcome:  outcome,
		Duration: 1500 * time.Millisecond,
		Steps: []domain.StepResult{
			{Name: "init", Status: domain.StepSucceeded, Duration: time.Second},
			{Name: "forward", Status: domain.StepFailed, Duration: 500 * time.Millisecond, Error: "exit status 1"},
		},
	}
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	res := result("ocean/channel", domain.OutcomeFailed)
	res.Err = errors.New("step forward failed")
	res.Validation = &domain.ValidationReport{
		Verdicts:   []domain.Verdict{{Artifact: "output.nc", Status: domain.VerdictWarn, Message: "not in baseline"}},
		Diagnostic: "1 warning",
	}

	e := provenance.NewEntry(at, "run-1", "nightly", res)
	assert.Equal(t, "ocean/channel", e.TestCase)
	assert.Equal(t, domain.OutcomeFailed, e.Outcome)
	assert.Equal(t, 1.5, e.Seconds)
	require.Len(t, e.Steps, 2)
	assert.Equal(t, provenance.StepRecord{Name: "forward", Status: domain.StepFailed, Seconds: 0.5, Error: "exit status 1"}, e.Steps[1])
	assert.Equal(t, "1 warning", e.Diagnostic)
	assert.Equal(t, "step forward failed", e.Error)
	assert.False(t, e.Passed())
}

func TestLog_AppendAndRead(t *testing.T) {
	dir := t.TempDir()
	log := provenance.ForWorkDir(dir)
	at := time.Now()

	require.NoError(t, log.Append(provenance.NewEntry(at, "r1", "s", result("t1", domain.OutcomeFailed))))
	require.NoError(t, log.Append(provenance.NewEntry(at, "r1", "s", result("t2", domain.OutcomeSucceeded))))

	entries, err := provenance.Read(filepath.Join(dir, provenance.FileName))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "t1", entries[0].TestCase)
	assert.Equal(t, "t2", entries[1].TestCase)

	data, err := os.ReadFile(log.Path())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"), "one line per entry")
}

func TestLog_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	log := provenance.New(filepath.Join(t.TempDir(), "nested", provenance.FileName))
	const n = 50

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, log.Append(provenance.NewEntry(time.Now(), "r", "s", result(fmt.Sprintf("t%d", i), domain.OutcomeSucceeded))))
		}()
	}
	wg.Wait()

	entries, err := provenance.Read(log.Path())
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestRead(t *testing.T) {
	t.Run("Missing Log", func(t *testing.T) {
		entries, err := provenance.Read(filepath.Join(t.TempDir(), "none.jsonl"))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Truncated Final Line Is Ignored", func(t *testing.T) {
		entries, err := provenance.Decode(strings.NewReader(`{"test_case":"t1","outcome":"succeeded"}` + "\n" + `{"test_case":"t2","outc`))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "t1", entries[0].TestCase)
	})

	t.Run("Corrupt Line Is An Error", func(t *testing.T) {
		_, err := provenance.Decode(strings.NewReader("{}\nnot json\n{}\n"))
		assert.ErrorContains(t, err, "line 2")
	})
}

func TestFilter(t *testing.T) {
	entries := []provenance.Entry{
		{RunID: "a", TestCase: "t1"},
		{RunID: "a", TestCase: "t2"},
		{RunID: "b", TestCase: "t1"},
	}
	assert.Len(t, provenance.Filter(entries, "a", ""), 2)
	assert.Len(t, provenance.Filter(entries, "", "t1"), 2)
	assert.Len(t, provenance.Filter(entries, "b", "t1"), 1)
	assert.Len(t, provenance.Filter(entries, "", ""), 3)
}
