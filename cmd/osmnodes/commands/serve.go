package commands

import (
	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmnodes/pkg/monitoring"
	"github.com/NERVsystems/osmnodes/pkg/server"
	"github.com/NERVsystems/osmnodes/pkg/tracing"
	"github.com/NERVsystems/osmnodes/pkg/version"
)

type serveOptions struct {
	clientRPS   float64
	clientBurst int
	enableMCP   bool
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve node fetches over HTTP",
		Long: `Serve GET /nodes, /health and /metrics on server.addr.
With --mcp the fetch_nodes tool is also served over streamable HTTP at /mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Float64Var(&opts.clientRPS, "client-rps", 0, "per-client request limit (0 disables)")
	f.IntVar(&opts.clientBurst, "client-burst", 5, "per-client burst size")
	f.BoolVar(&opts.enableMCP, "mcp", false, "also serve MCP over streamable HTTP at /mcp")
	_ = a.v.BindPFlag("server.addr", f.Lookup("addr"))

	return cmd
}

func (a *app) runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx := cmd.Context()
	client := a.newClient()

	hc := monitoring.NewHealthChecker(monitoring.ServiceName, version.BuildVersion)
	monitor := monitoring.NewConnectionMonitor(tracing.ServiceOverpass, hc, client.Ping, a.cfg.Server.HealthInterval)
	go monitor.Run(ctx)

	apiOpts := []server.APIOption{
		server.WithAPILogger(a.logger),
		server.WithHealthChecker(hc),
		server.WithClientRateLimit(opts.clientRPS, opts.clientBurst),
	}
	if opts.enableMCP {
		apiOpts = append(apiOpts, server.WithMCP(server.NewMCPServer(a.newFetcher(client, "mcp"), a.logger)))
	}

	api := server.NewAPI(a.newFetcher(client, "http"), apiOpts...)
	defer api.Close()

	return server.Run(ctx, server.HTTPConfig{
		Addr:         a.cfg.Server.Addr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}, api.Routes(), a.logger, nil)
}
