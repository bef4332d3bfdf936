package main

import (
	"github.com/dhamidi/reparse/lsp"
	"github.com/spf13/cobra"
)

func newLSPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.table()
			if err != nil {
				return err
			}
			server, err := lsp.NewServer(t, a.cfg, version)
			if err != nil {
				return err
			}
			return server.RunStdio()
		},
	}
}
