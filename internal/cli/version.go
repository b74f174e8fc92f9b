package cli

import (
	"fmt"

	"github.com/soyeahso/agentos/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				b := version.Current()
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": b.Version,
					"commit":  b.Commit,
					"date":    b.Date,
					"go":      b.GoVersion,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
