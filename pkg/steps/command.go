package steps

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aretw0/cairn/pkg/adapters/process"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/registry"
	"github.com/aretw0/cairn/pkg/step"
)

type commandOptions struct {
	// Args is the command line. It is split on whitespace unless Shell is set.
	Args string `mapstructure:"args"`

	// Launcher is prepended to the command, e.g. "mpirun -n 16".
	Launcher string `mapstructure:"launcher"`

	// Shell runs Args through "sh -c".
	Shell bool `mapstructure:"shell"`

	// Threads exports OMP_NUM_THREADS when positive.
	Threads int `mapstructure:"threads"`

	// Log also copies stdout and stderr into this file inside the step directory.
	Log string `mapstructure:"log"`
}

type commandStep struct {
	step.Base
	opts   commandOptions
	runner *process.Runner
}

// Command returns the factory for command steps.
func Command(runner *process.Runner) registry.Factory {
	return func(spec domain.StepSpec) (step.Step, error) {
		var opts commandOptions
		if err := decodeOptions(spec, &opts); err != nil {
			return nil, err
		}
		if strings.TrimSpace(opts.Args) == "" {
			return nil, missingOption(spec, "args")
		}
		return &commandStep{Base: step.NewBase(spec), opts: opts, runner: runner}, nil
	}
}

func (s *commandStep) argv() []string {
	argv := strings.Fields(s.opts.Launcher)
	if s.opts.Shell {
		return append(argv, "sh", "-c", s.opts.Args)
	}
	return append(argv, strings.Fields(s.opts.Args)...)
}

func (s *commandStep) Run(ctx context.Context, env *step.Env) error {
	argv := s.argv()
	name := s.Spec().Name

	var extra []string
	if s.opts.Threads > 0 {
		extra = append(extra, "OMP_NUM_THREADS="+strconv.Itoa(s.opts.Threads))
	}

	stdout, stderr := env.Stdout, env.Stderr
	if s.opts.Log != "" {
		f, err := os.Create(filepath.Join(env.Dir, s.opts.Log))
		if err != nil {
			return &domain.StepExecutionError{Step: name, Err: err}
		}
		defer f.Close()
		stdout = tee(stdout, f)
		stderr = tee(stderr, f)
	}

	if env.Logger != nil {
		env.Logger.Debug("Running command", "step", name, "argv", strings.Join(argv, " "))
	}

	res, err := s.runner.Run(ctx, process.Command{
		Path:   argv[0],
		Args:   argv[1:],
		Dir:    env.Dir,
		Env:    extra,
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		return &domain.StepExecutionError{Step: name, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
	}
	return nil
}

func tee(w io.Writer, f io.Writer) io.Writer {
	if w == nil {
		return f
	}
	return io.MultiWriter(w, f)
}
