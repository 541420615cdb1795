package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/aretw0/cairn/internal/presentation/graph"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/spf13/cobra"
)

func (a *app) stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and remove run states",
	}
	cmd.AddCommand(a.stateLsCmd(), a.stateInspectCmd(), a.stateGraphCmd(), a.stateRmCmd())
	return cmd
}

func (a *app) stateLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List run states with their progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.harness()
			if err != nil {
				return err
			}
			states := h.States()
			names, err := states.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No run states found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tTEST CASES\tSUCCEEDED\tFAILED\tPENDING\tUPDATED")
			for _, name := range names {
				state, err := states.Load(cmd.Context(), name)
				if err != nil {
					fmt.Fprintf(tw, "%s\t?\t\t\t\t\t%v\n", name, err)
					continue
				}
				counts := make(map[domain.StepStatus]int)
				for _, tc := range state.TestCases {
					for _, s := range tc.Steps {
						counts[s.Status]++
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					name, state.Kind, len(state.TestCases),
					counts[domain.StepSucceeded], counts[domain.StepFailed], counts[domain.StepPending],
					state.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
}

func (a *app) stateInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [name]",
		Short: "Print a run state as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.harness()
			if err != nil {
				return err
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			if name, err = h.Resolve(cmd.Context(), name); err != nil {
				return err
			}
			state, err := h.States().Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func (a *app) stateGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph [name]",
		Short: "Print a run state as a Mermaid flowchart",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.harness()
			if err != nil {
				return err
			}
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			if name, err = h.Resolve(cmd.Context(), name); err != nil {
				return err
			}
			state, err := h.States().Load(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(state))
			return nil
		},
	}
}

func (a *app) stateRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>...",
		Short: "Remove run states, keeping test case outputs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.harness()
			if err != nil {
				return err
			}
			var errs []error
			for _, name := range args {
				if err := h.States().Delete(cmd.Context(), name); err != nil {
					errs = append(errs, fmt.Errorf("remove %q: %w", name, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed run state %q\n", name)
			}
			return errors.Join(errs...)
		},
	}
}
