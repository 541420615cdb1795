package ports

import (
	"context"

	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
)

// ValidationRequest describes a finished test case to compare against its baseline.
type ValidationRequest struct {
	TestCase    string // Relative path, identical in the work and baseline directories
	WorkDir     string // Absolute test case directory of this run
	BaselineDir string // Absolute test case directory of the baseline run

	// Artifacts are declared outputs that exist after the run, relative to WorkDir.
	Artifacts []string

	// Timers are step wall times in seconds, keyed by step name.
	Timers map[string]float64

	// Config is the test case configuration, for tolerances and similar settings.
	Config *config.Resolved
}

// BaselineValidator compares a test case against a baseline run.
// A returned error means the comparison itself could not be carried out;
// mismatches are reported as non-pass verdicts.
type BaselineValidator interface {
	Validate(ctx context.Context, req ValidationRequest) (domain.ValidationReport, error)
}
