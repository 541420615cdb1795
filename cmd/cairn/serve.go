package main

import (
	cairnhttp "github.com/aretw0/cairn/internal/adapters/http"
	"github.com/aretw0/cairn/pkg/provenance"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run states and provenance of the work directory over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.harness()
			if err != nil {
				return err
			}
			srv := cairnhttp.NewServer(h.States(), provenance.ForWorkDir(h.WorkDir()).Path(),
				cairnhttp.WithLogger(a.logger),
			)
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
