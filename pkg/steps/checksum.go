package steps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/step"
)

type checksumOptions struct {
	// Files are relative to the step directory; "../forward/output.nc" reaches an earlier step.
	Files  string `mapstructure:"files"`
	Output string `mapstructure:"output"`
}

type checksumStep struct {
	step.Base
	files  []string
	output string
}

// Checksum is the factory for checksum steps.
func Checksum(spec domain.StepSpec) (step.Step, error) {
	opts := checksumOptions{Output: "checksums.sha256"}
	if err := decodeOptions(spec, &opts); err != nil {
		return nil, err
	}
	files := config.SplitList(opts.Files)
	if len(files) == 0 {
		return nil, missingOption(spec, "files")
	}
	return &checksumStep{Base: step.NewBase(spec), files: files, output: opts.Output}, nil
}

func (s *checksumStep) Run(ctx context.Context, env *step.Env) error {
	var b strings.Builder
	for _, name := range s.files {
		if err := ctx.Err(); err != nil {
			return err
		}
		sum, err := digest(filepath.Join(env.Dir, name))
		if err != nil {
			return &domain.StepExecutionError{Step: s.Spec().Name, Err: err}
		}
		fmt.Fprintf(&b, "%s  %s\n", sum, name)
	}
	if err := os.WriteFile(filepath.Join(env.Dir, s.output), []byte(b.String()), 0o644); err != nil {
		return &domain.StepExecutionError{Step: s.Spec().Name, Err: err}
	}
	return nil
}

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
