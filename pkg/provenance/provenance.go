// Package provenance implements the append-only history of run attempts.
//
// Each entry is one JSON line. An entry is written with a single append and
// fsynced, so the file never holds an interleaved or half-terminated entry
// written by this package.
package provenance

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/cairn/pkg/domain"
)

// FileName is the provenance log name inside a suite work directory.
const FileName = "provenance.jsonl"

// StepRecord is the outcome of one step as recorded in the log.
type StepRecord struct {
	Name    string            `json:"name"`
	Status  domain.StepStatus `json:"status"`
	Seconds float64           `json:"seconds,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Entry records one run attempt of one test case.
type Entry struct {
	Time       time.Time        `json:"time"`
	RunID      string           `json:"run_id"`
	Suite      string           `json:"suite"`
	TestCase   string           `json:"test_case"`
	Outcome    domain.Outcome   `json:"outcome"`
	Seconds    float64          `json:"seconds"`
	Steps      []StepRecord     `json:"steps"`
	Validation []domain.Verdict `json:"validation,omitempty"`
	Diagnostic string           `json:"diagnostic,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Passed reports whether the attempt succeeded and every verdict passed.
func (e Entry) Passed() bool {
	if e.Outcome != domain.OutcomeSucceeded && e.Outcome != domain.OutcomeSkipped {
		return false
	}
	for _, v := range e.Validation {
		if v.Status != domain.VerdictPass {
			return false
		}
	}
	return true
}

// NewEntry builds the entry for a test case result.
func NewEntry(at time.Time, runID, suite string, res *domain.TestCaseResult) Entry {
	e := Entry{
		Time:     at.UTC(),
		RunID:    runID,
		Suite:    suite,
		TestCase: res.Path,
		Outcome:  res.Outcome,
		Seconds:  res.Duration.Seconds(),
		Steps:    make([]StepRecord, 0, len(res.Steps)),
	}
	for _, s := range res.Steps {
		e.Steps = append(e.Steps, StepRecord{
			Name:    s.Name,
			Status:  s.Status,
			Seconds: s.Duration.Seconds(),
			Error:   s.Error,
		})
	}
	if res.Validation != nil {
		e.Validation = res.Validation.Verdicts
		e.Diagnostic = res.Validation.Diagnostic
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// Log appends entries to a JSON Lines file. Safe for concurrent use.
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a log writing to path. The file is created on first Append.
func New(path string) *Log {
	return &Log{path: path}
}

// ForWorkDir returns the log of a suite work directory.
func ForWorkDir(workDir string) *Log {
	return New(filepath.Join(workDir, FileName))
}

// Path returns the log file path.
func (l *Log) Path() string { return l.path }

// Append writes e as one line.
func (l *Log) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal provenance entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create provenance directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open provenance log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append provenance entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("fsync provenance log: %w", err)
	}
	return f.Close()
}

// Read returns every entry in the log at path. A missing log has no entries.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open provenance log: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses JSON Lines. A final line without a newline is the remains of
// a write cut short by a crash and is ignored; any other malformed line is an error.
func Decode(r io.Reader) ([]Entry, error) {
	var entries []Entry
	br := bufio.NewReader(r)
	for n := 1; ; n++ {
		line, err := br.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read provenance log: %w", err)
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("provenance log line %d: %w", n, err)
		}
		entries = append(entries, e)
	}
}

// Filter returns the entries of one run, or of one test case when runID is empty.
func Filter(entries []Entry, runID, testCase string) []Entry {
	var out []Entry
	for _, e := range entries {
		if runID != "" && e.RunID != runID {
			continue
		}
		if testCase != "" && e.TestCase != testCase {
			continue
		}
		out = append(out, e)
	}
	return out
}
