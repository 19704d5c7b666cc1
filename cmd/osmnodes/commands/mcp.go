package commands

import (
	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmnodes/pkg/server"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the fetch_nodes tool over MCP on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := server.NewMCPServer(a.newFetcher(a.newClient(), "mcp"), a.logger)
			return server.ServeStdio(cmd.Context(), srv, a.logger)
		},
	}
}
