package domain

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// RunStateVersion is the schema version written by this build.
// Bump it whenever a field changes meaning, and teach runstate.Migrate about the old shape.
const RunStateVersion = 1

// RunStateKind tells whether a RunState was set up for a whole suite or a single test case.
type RunStateKind string

const (
	KindSuite    RunStateKind = "suite"
	KindTestCase RunStateKind = "test_case"
)

// RunState is the persisted snapshot of what was set up in a work directory.
// It is the only channel between a setup invocation and later run invocations.
type RunState struct {
	Version     int             `json:"version"`
	Kind        RunStateKind    `json:"kind"`
	Name        string          `json:"name"`
	WorkDir     string          `json:"work_dir"`
	BaselineDir string          `json:"baseline_dir,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	TestCases   []TestCaseState `json:"test_cases"`
}

// TestCaseState records the composition and progress of one test case.
type TestCaseState struct {
	Path string `json:"path"`

	// WorkDir is relative to RunState.WorkDir.
	WorkDir string `json:"work_dir"`

	// ConfigFile is the merged configuration written at setup, relative to WorkDir.
	ConfigFile string `json:"config_file"`

	Steps []StepState `json:"steps"`
}

// StepState is a StepSpec plus its persisted progress.
type StepState struct {
	StepSpec

	Status    StepStatus `json:"status"`
	Attempts  int        `json:"attempts,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// StepSpec declares a step. It is what catalogs describe and what RunState persists.
type StepSpec struct {
	Name    string            `yaml:"name" json:"name"`
	Kind    string            `yaml:"kind" json:"kind"`
	Subdir  string            `yaml:"subdir,omitempty" json:"subdir,omitempty"`
	Inputs  []Input           `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []string          `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Options map[string]string `yaml:"options,omitempty" json:"options,omitempty"`

	// Optional steps are declared but left out of the default steps_to_run.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`

	// Timeout is a Go duration string; empty means no step-level timeout.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Dir returns the step directory relative to its test case directory.
func (s StepSpec) Dir() string {
	if s.Subdir != "" {
		return s.Subdir
	}
	return s.Name
}

// Input is a file staged into the step directory before the step runs.
// Source is absolute or relative to the step directory; Target defaults to the base name of Source.
type Input struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
}

// UnmarshalYAML accepts either a bare path or a {source, target} mapping.
func (in *Input) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		in.Source = node.Value
		return nil
	}
	type plain Input
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	*in = Input(p)
	return nil
}

// Find returns the test case with the given path, or nil.
func (r *RunState) Find(path string) *TestCaseState {
	for i := range r.TestCases {
		if r.TestCases[i].Path == path {
			return &r.TestCases[i]
		}
	}
	return nil
}

// Step returns the step with the given name, or nil.
func (t *TestCaseState) Step(name string) *StepState {
	for i := range t.Steps {
		if t.Steps[i].Name == name {
			return &t.Steps[i]
		}
	}
	return nil
}

// StepNames returns the declared step names in declaration order.
func (t *TestCaseState) StepNames() []string {
	names := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		names[i] = s.Name
	}
	return names
}

// Specs returns the declared step specs in declaration order.
func (t *TestCaseState) Specs() []StepSpec {
	specs := make([]StepSpec, len(t.Steps))
	for i, s := range t.Steps {
		specs[i] = s.StepSpec
	}
	return specs
}

// Clone returns a deep copy.
func (r *RunState) Clone() *RunState {
	out := *r
	out.TestCases = make([]TestCaseState, len(r.TestCases))
	for i, tc := range r.TestCases {
		tc.Steps = make([]StepState, len(r.TestCases[i].Steps))
		for j, s := range r.TestCases[i].Steps {
			s.StepSpec = s.StepSpec.clone()
			tc.Steps[j] = s
		}
		out.TestCases[i] = tc
	}
	return &out
}

func (s StepSpec) clone() StepSpec {
	if s.Inputs != nil {
		s.Inputs = append([]Input(nil), s.Inputs...)
	}
	if s.Outputs != nil {
		s.Outputs = append([]string(nil), s.Outputs...)
	}
	if s.Options != nil {
		opts := make(map[string]string, len(s.Options))
		for k, v := range s.Options {
			opts[k] = v
		}
		s.Options = opts
	}
	return s
}
