package main

import (
	"fmt"
	"path/filepath"

	"github.com/aretw0/cairn/pkg/catalog"
	"github.com/aretw0/cairn/pkg/config"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/aretw0/cairn/pkg/suite"
	"github.com/spf13/cobra"
)

// customSuite names run states set up from -t/-n selections.
const customSuite = "custom"

type catalogFlags struct {
	files []string
}

func (c *catalogFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&c.files, "catalog", "c", []string{"catalog.yaml"}, "Catalog files declaring the available test cases")
}

func (c *catalogFlags) load() (*catalog.Catalog, error) {
	return catalog.Load(c.files...)
}

func (a *app) listCmd() *cobra.Command {
	var cf catalogFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the test cases of the catalogs with their numbers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := cf.load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, e := range cat.Entries() {
				fmt.Fprintf(out, "%4d: %s\n", i, e.Path)
				if e.Description != "" {
					fmt.Fprintf(out, "      %s\n", e.Description)
				}
			}
			return nil
		},
	}
	cf.register(cmd)
	return cmd
}

func (a *app) setupCmd() *cobra.Command {
	var (
		cf          catalogFlags
		test        string
		numbers     []int
		name        string
		baselineDir string
		configFiles  []string
		machineFiles []string
		overrides    []string
	)
	cmd := &cobra.Command{
		Use:   "setup [suite-file]",
		Short: "Resolve configuration and prepare work directories",
		Long: `Setup resolves and validates the configuration of every selected test case,
then writes one merged config file per test case and the run state.
Nothing is created when any test case is invalid.

Test cases come either from a suite file or from -t/-n selections.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (test != "" || len(numbers) > 0) {
				return fmt.Errorf("give either a suite file or -t/-n selections")
			}
			cat, err := cf.load()
			if err != nil {
				return err
			}

			var (
				entries []catalog.Entry
				kind    = domain.KindSuite
			)
			if len(args) == 1 {
				sf, err := catalog.LoadSuite(args[0])
				if err != nil {
					return err
				}
				if entries, err = cat.Resolve(sf); err != nil {
					return err
				}
				if name == "" {
					name = sf.Name
				}
			} else {
				if entries, err = cat.Select(test, numbers); err != nil {
					return err
				}
				if len(entries) == 1 {
					kind = domain.KindTestCase
				}
				if name == "" {
					name = customSuite
				}
			}

			blueprints, err := catalog.Blueprints(entries)
			if err != nil {
				return err
			}
			sources, err := config.ParseFiles(config.LayerMachine, machineFiles...)
			if err != nil {
				return err
			}
			user, err := config.ParseFiles(config.LayerUser, configFiles...)
			if err != nil {
				return err
			}
			sources = append(sources, user...)
			if len(overrides) > 0 {
				src, err := config.Overrides(overrides)
				if err != nil {
					return err
				}
				sources = append(sources, src)
			}
			if baselineDir != "" {
				if baselineDir, err = filepath.Abs(baselineDir); err != nil {
					return err
				}
			}

			h, err := a.harness()
			if err != nil {
				return err
			}
			state, err := h.Setup(cmd.Context(), name, suite.SetupOptions{
				Sources:     sources,
				Blueprints:  blueprints,
				Kind:        kind,
				BaselineDir: baselineDir,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set up %s %q with %d test case(s) in %s\n", state.Kind, state.Name, len(state.TestCases), h.WorkDir())
			return nil
		},
	}
	cf.register(cmd)
	f := cmd.Flags()
	f.StringVarP(&test, "test", "t", "", "Path of a test case to set up")
	f.IntSliceVarP(&numbers, "number", "n", nil, "Numbers of test cases to set up, as shown by list")
	f.StringVar(&name, "name", "", "Run state name (default: the suite name, or \"custom\")")
	f.StringVarP(&baselineDir, "baseline-dir", "b", "", "Work directory of a previous run to compare outputs with")
	f.StringSliceVarP(&configFiles, "config-file", "f", nil, "User config files layered over the catalog configuration")
	f.StringSliceVar(&machineFiles, "machine-file", nil, "Machine config files, overridden by every other layer")
	f.StringArrayVarP(&overrides, "option", "o", nil, "Override an option as section:key=value")
	return cmd
}
