// Package step defines the capability every unit of work implements, plus the
// shared staging logic (directory creation, input links, output checks).
package step

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
)

// Step is a unit of work bound to one directory.
type Step interface {
	// Spec returns the declaration the step was built from.
	Spec() domain.StepSpec

	// Prepare creates dir and stages the declared inputs into it.
	Prepare(ctx context.Context, dir string) error

	// Run does the work. A nil error means the step believes it succeeded;
	// the caller still verifies the declared outputs.
	Run(ctx context.Context, env *Env) error
}

// Env is what a step sees while running. Config is shared and read-only.
type Env struct {
	Config      *config.Resolved
	Dir         string // Absolute step directory
	TestCaseDir string // Absolute test case directory
	Logger      *slog.Logger
	Stdout      io.Writer
	Stderr      io.Writer
}

// Base carries a spec and the default Prepare. Embed it in step kinds.
type Base struct {
	spec domain.StepSpec
}

// NewBase returns a Base for spec.
func NewBase(spec domain.StepSpec) Base { return Base{spec: spec} }

func (b Base) Spec() domain.StepSpec { return b.spec }

// Prepare creates dir and symlinks every input into it. Existing links are replaced,
// so re-running setup after an input moved is safe. Regular files are left alone.
func (b Base) Prepare(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create step directory: %w", err)
	}
	for _, in := range b.spec.Inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		link := filepath.Join(dir, InputTarget(in))
		if fi, err := os.Lstat(link); err == nil {
			if fi.Mode()&os.ModeSymlink == 0 {
				continue
			}
			if err := os.Remove(link); err != nil {
				return fmt.Errorf("replace input link %s: %w", link, err)
			}
		}
		if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
			return err
		}
		if err := os.Symlink(in.Source, link); err != nil {
			return fmt.Errorf("stage input %s: %w", in.Source, err)
		}
	}
	return nil
}

// InputTarget is the path, relative to the step directory, an input is staged at.
func InputTarget(in domain.Input) string {
	if in.Target != "" {
		return in.Target
	}
	return filepath.Base(in.Source)
}

// MissingInputs returns the staged inputs that do not resolve to an existing file.
// Relative sources are resolved from the step directory, so a dangling link counts as missing.
func MissingInputs(spec domain.StepSpec, dir string) []string {
	var missing []string
	for _, in := range spec.Inputs {
		if _, err := os.Stat(filepath.Join(dir, InputTarget(in))); err != nil {
			missing = append(missing, in.Source)
		}
	}
	return missing
}

// MissingOutputs returns the declared outputs absent from dir.
func MissingOutputs(spec domain.StepSpec, dir string) []string {
	var missing []string
	for _, out := range spec.Outputs {
		p := out
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, out)
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, out)
		}
	}
	return missing
}

// Expand interpolates the inputs, outputs and options of spec against cfg.
// Bare ${key} references resolve in the [test_case] section.
func Expand(cfg *config.Resolved, spec domain.StepSpec) (domain.StepSpec, error) {
	const section = "test_case"
	var err error
	expand := func(s string) string {
		if err != nil {
			return s
		}
		var v string
		v, err = cfg.Expand(section, s)
		return v
	}

	out := spec
	if len(spec.Inputs) > 0 {
		out.Inputs = make([]domain.Input, len(spec.Inputs))
		for i, in := range spec.Inputs {
			out.Inputs[i] = domain.Input{Source: expand(in.Source), Target: expand(in.Target)}
		}
	}
	if len(spec.Outputs) > 0 {
		out.Outputs = make([]string, len(spec.Outputs))
		for i, o := range spec.Outputs {
			out.Outputs[i] = expand(o)
		}
	}
	if spec.Options != nil {
		out.Options = make(map[string]string, len(spec.Options))
		for k, v := range spec.Options {
			out.Options[k] = expand(v)
		}
	}
	if err != nil {
		return spec, fmt.Errorf("step %q: %w", spec.Name, err)
	}
	return out, nil
}

// RunFunc is the body of a Func step.
type RunFunc func(ctx context.Context, env *Env) error

type funcStep struct {
	Base
	fn RunFunc
}

// Func adapts a plain function into a Step with the default Prepare.
func Func(spec domain.StepSpec, fn RunFunc) Step {
	return &funcStep{Base: NewBase(spec), fn: fn}
}

func (s *funcStep) Run(ctx context.Context, env *Env) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, env)
}
