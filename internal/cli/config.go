package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with worker manifests",
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a worker manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadManifest(cmd.Context())
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return &exitError{code: 1}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", doc.Source)
			return nil
		},
	}
	return cmd
}
