package main

import (
	"fmt"

	"github.com/aretw0/cairn"
	cairnhttp "github.com/aretw0/cairn/internal/adapters/http"
	"github.com/aretw0/cairn/internal/presentation/tui"
	"github.com/spf13/cobra"
)

func init() {
	cairnhttp.Version = cairn.Version
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of cairn",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			if tui.IsTerminal(out) {
				tui.PrintBanner(out)
			}
			fmt.Fprintf(out, "cairn version %s\n", cairn.Version)
		},
	}
}
