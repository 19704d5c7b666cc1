package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmnodes/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// No configuration is needed to print the version.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Info()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "osmnodes %s (commit %s, built %s, %s)\n",
				info["version"], info["commit"], info["build_date"], info["go_version"])
			return err
		},
	}
}
