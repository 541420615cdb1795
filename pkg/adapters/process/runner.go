package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"
)

// DefaultGracePeriod is how long a cancelled process gets to exit after SIGTERM before it is killed.
const DefaultGracePeriod = 5 * time.Second

// stderrTail bounds how much error output is kept for error messages.
const stderrTail = 4 << 10

// Runner executes external programs for command steps.
type Runner struct {
	baseEnv []string
	grace   time.Duration
}

// Command describes one process execution.
type Command struct {
	Path string
	Args []string
	Dir  string
	Env  []string // Appended to the runner's environment

	// Stdout and Stderr receive the process output as it is produced. Either may be nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is what is known about a finished process.
type Result struct {
	ExitCode int
	Stderr   string // Last few KiB of error output
	Duration time.Duration
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithEnv sets the base environment. Defaults to the current process environment.
func WithEnv(env []string) RunnerOption {
	return func(r *Runner) {
		r.baseEnv = env
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit after SIGTERM.
func WithGracePeriod(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.grace = d
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		baseEnv: os.Environ(),
		grace:   DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the command and waits for it. A non-zero exit is reported both in
// Result.ExitCode and as an *exec.ExitError. On cancellation the process receives
// SIGTERM, then is killed once the grace period elapses; the returned error wraps ctx.Err().
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(append([]string(nil), r.baseEnv...), c.Env...)
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	cmd.WaitDelay = r.grace

	tail := &tailBuffer{max: stderrTail}
	cmd.Stdout = orDiscard(c.Stdout)
	cmd.Stderr = io.MultiWriter(orDiscard(c.Stderr), tail)

	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), Stderr: tail.String()}

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && ctx.Err() != nil {
		return res, errors.Join(ctx.Err(), err)
	}
	return res, err
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// tailBuffer keeps only the last max bytes written to it.
type tailBuffer struct {
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > t.max {
		p = p[len(p)-t.max:]
	}
	if over := t.buf.Len() + len(p) - t.max; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
