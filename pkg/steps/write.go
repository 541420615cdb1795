package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/step"
)

type writeOptions struct {
	File    string `mapstructure:"file"`
	Content string `mapstructure:"content"`

	// Section dumps every option of a configuration section as "key = value" lines.
	Section string `mapstructure:"section"`
}

type writeStep struct {
	step.Base
	opts writeOptions
}

// Write is the factory for write steps.
func Write(spec domain.StepSpec) (step.Step, error) {
	var opts writeOptions
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	if opts.File == "" {
		return nil, missingOption(spec, "file")
	}
	if opts.Content != "" && opts.Section != "" {
		return nil, &domain.ConfigurationError{
			Source: fmt.Sprintf("step %q", spec.Name),
			Reason: "content and section are mutually exclusive",
		}
	}
	return &writeStep{Base: step.NewBase(spec), opts: opts}, nil
}

func (s *writeStep) Run(ctx context.Context, env *step.Env) error {
	content := s.opts.Content
	if s.opts.Section != "" {
		var b strings.Builder
		for _, key := range env.Config.Keys(s.opts.Section) {
			v, err := env.Config.Get(s.opts.Section, key)
			if err != nil {
				return &domain.StepExecutionError{Step: s.Spec().Name, Err: err}
			}
			fmt.Fprintf(&b, "%s = %s\n", key, v)
		}
		content = b.String()
	} else if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}

	path := filepath.Join(env.Dir, s.opts.File)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &domain.StepExecutionError{Step: s.Spec().Name, Err: err}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return &domain.StepExecutionError{Step: s.Spec().Name, Err: err}
	}
	return nil
}
