package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/cairn"
	cairnhttp "github.com/aretw0/cairn/internal/adapters/http"
	"github.com/aretw0/cairn/internal/presentation/tui"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/aretw0/cairn/pkg/suite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	var (
		include     []string
		exclude     []string
		resume      bool
		parallel    int
		baselineDir string
		overrides   []string
		caseLogs    bool
		serveAddr   string
	)
	cmd := &cobra.Command{
		Use:   "run [name]",
		Short: "Run a suite or test case that was set up",
		Long: `Run executes the test cases recorded by setup, in order, and appends one
provenance entry per test case. Without a name, the only run state in the
work directory is used. The exit code is non-zero when any test case fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}

			opts := suite.RunOptions{
				Include:  include,
				Exclude:  exclude,
				Resume:   resume,
				Parallel: parallel,
			}
			if len(overrides) > 0 {
				src, err := config.Overrides(overrides)
				if err != nil {
					return err
				}
				opts.Overrides = []*config.Source{src}
			}
			if baselineDir != "" {
				abs, err := filepath.Abs(baselineDir)
				if err != nil {
					return err
				}
				opts.BaselineDir = abs
			}

			out := cmd.OutOrStdout()
			reporter := tui.NewReporter(out, a.workDir, caseLogs)
			reg := prometheus.NewRegistry()
			streams := cairnhttp.NewStreamManager()
			hopts := []cairn.Option{
				cairn.WithResultFunc(reporter.Result),
				cairn.WithMetrics(reg),
				cairn.WithLifecycleHooks(streams.Hooks()),
				cairn.WithOutput(out, cmd.ErrOrStderr()),
			}
			if caseLogs {
				hopts = append(hopts, cairn.WithCaseLogs(slog.LevelInfo))
			}
			h, err := a.harness(hopts...)
			if err != nil {
				return err
			}
			name, err = h.Resolve(cmd.Context(), name)
			if err != nil {
				return err
			}

			if serveAddr != "" {
				srv := cairnhttp.NewServer(h.States(), provenance.ForWorkDir(h.WorkDir()).Path(),
					cairnhttp.WithGatherer(reg),
					cairnhttp.WithStreams(streams),
					cairnhttp.WithLogger(a.logger),
				)
				serveCtx, stop := context.WithCancel(cmd.Context())
				defer stop()
				go func() {
					if err := srv.ListenAndServe(serveCtx, serveAddr); err != nil {
						a.logger.Error("status server stopped", "err", err)
					}
				}()
			}

			res, runErr := h.Run(cmd.Context(), name, opts)
			if res != nil {
				render := tui.NewRenderer(tui.IsTerminal(out))
				summary, err := render(tui.Summary(res))
				if err != nil {
					return errors.Join(runErr, err)
				}
				fmt.Fprint(out, summary)
			}
			if runErr != nil {
				return runErr
			}
			if n := res.Failures(); n > 0 {
				return fmt.Errorf("%d %w", n, errFailures)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&include, "steps", nil, "Run only these steps, replacing steps_to_run")
	f.StringSliceVar(&exclude, "no-steps", nil, "Skip these steps")
	f.BoolVar(&resume, "resume", false, "Skip steps that already succeeded")
	f.IntVar(&parallel, "parallel", 1, "Number of test cases to run at once")
	f.StringVarP(&baselineDir, "baseline-dir", "b", "", "Compare outputs with this work directory instead of the one given at setup")
	f.StringArrayVarP(&overrides, "option", "o", nil, "Override an option as section:key=value for this run")
	f.BoolVar(&caseLogs, "case-logs", true, "Write each test case's log and output to case_outputs/")
	f.StringVar(&serveAddr, "serve", "", "Serve status, metrics and live events on this address during the run")
	return cmd
}

func (a *app) cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [name]",
		Short: "Remove test case outputs, case logs and the run state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			h, err := a.harness()
			if err != nil {
				return err
			}
			if err := h.Clean(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleaned", h.WorkDir())
			return nil
		},
	}
}
