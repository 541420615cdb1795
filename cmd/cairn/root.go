package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/cairn"
	"github.com/aretw0/cairn/internal/adapters/redis"
	"github.com/aretw0/cairn/internal/logging"
	"github.com/spf13/cobra"
)

// errFailures marks a run that completed with failing test cases.
var errFailures = errors.New("test cases failed")

// app carries the state shared by every subcommand.
type app struct {
	workDir       string
	logLevel      string
	redisAddr     string
	redisPassword string
	redisDB       int

	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	closer io.Closer
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if a.closer != nil {
		_ = a.closer.Close()
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errFailures):
		return 1
	default:
		fmt.Fprintln(a.stderr, "Error:", err)
		return 1
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cairn",
		Short:         "cairn sets up and runs suites of scientific model test cases",
		Long:          `cairn resolves layered INI configuration into work directories, runs test case steps with fail-fast and resume, and compares outputs with a baseline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(a.logLevel)
			if err != nil {
				return err
			}
			a.logger = logging.NewWriter(a.stderr, level)
			return nil
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.workDir, "work-dir", "w", ".", "Work directory holding test case directories and run states")
	flags.StringVar(&a.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&a.redisAddr, "redis", "", "Keep run states in Redis at this address instead of the work directory")
	flags.StringVar(&a.redisPassword, "redis-password", "", "Redis password")
	flags.IntVar(&a.redisDB, "redis-db", 0, "Redis database number")

	root.AddCommand(
		a.listCmd(),
		a.setupCmd(),
		a.runCmd(),
		a.cleanCmd(),
		a.stateCmd(),
		a.serveCmd(),
		a.versionCmd(),
	)
	return root
}

// harness builds the library facade with the persistent flags applied.
func (a *app) harness(extra ...cairn.Option) (*cairn.Harness, error) {
	opts := []cairn.Option{cairn.WithLogger(a.logger)}
	if a.redisAddr != "" {
		store := redis.New(a.redisAddr, a.redisPassword, a.redisDB)
		a.closer = store
		opts = append(opts,
			cairn.WithStore(store),
			cairn.WithLocker(redis.NewLocker(store.Client(), redis.DefaultPrefix)),
		)
	}
	return cairn.New(a.workDir, append(opts, extra...)...)
}
