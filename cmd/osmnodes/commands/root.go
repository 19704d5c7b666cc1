// Package commands implements the osmnodes command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NERVsystems/osmnodes/pkg/config"
	"github.com/NERVsystems/osmnodes/pkg/monitoring"
	"github.com/NERVsystems/osmnodes/pkg/nodes"
	"github.com/NERVsystems/osmnodes/pkg/osm"
	"github.com/NERVsystems/osmnodes/pkg/tracing"
	"github.com/NERVsystems/osmnodes/pkg/version"
)

// app carries state shared by the subcommands of one invocation
type app struct {
	v          *viper.Viper
	cfg        *config.Config
	logger     *slog.Logger
	configFile string
	debug      bool

	shutdownTracing func(context.Context) error
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "osmnodes",
		Short: "Fetch OpenStreetMap nodes inside a bounding box",
		Long: `osmnodes queries an Overpass interpreter for the nodes inside a bounding box
that match a set of tag filters, and returns them as a point feature table.

Settings come from osmnodes.yaml, OSMNODES_* environment variables and flags,
in increasing order of precedence.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./osmnodes.yaml if present)")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.String("endpoint", osm.OverpassBaseURL, "Overpass interpreter URL")
	pf.String("user-agent", version.UserAgent(), "User-Agent sent to the interpreter")
	pf.String("log-format", "text", "log format: text or json")
	pf.Duration("timeout", 0, "overall timeout per interpreter request (0 means none)")
	pf.Float64("rps", 1, "interpreter requests per second (0 disables limiting)")

	_ = a.v.BindPFlag("overpass.endpoint", pf.Lookup("endpoint"))
	_ = a.v.BindPFlag("overpass.user_agent", pf.Lookup("user-agent"))
	_ = a.v.BindPFlag("log.format", pf.Lookup("log-format"))
	_ = a.v.BindPFlag("overpass.timeout", pf.Lookup("timeout"))
	_ = a.v.BindPFlag("overpass.rps", pf.Lookup("rps"))

	cmd.AddCommand(
		newGetCmd(a),
		newServeCmd(a),
		newMCPCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// ExecuteContext runs the command line with args and returns the process
// exit code
func ExecuteContext(ctx context.Context, args []string) int {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(a.logger)

	shutdown, err := tracing.InitTracing(cmd.Context(), tracing.Options{
		Endpoint:    cfg.Tracing.Endpoint,
		Version:     version.BuildVersion,
		Environment: cfg.Tracing.Environment,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		a.logger.Warn("tracing disabled", "error", err)
	} else {
		a.shutdownTracing = shutdown
	}

	installMonitoringHooks()
	a.logger.Debug("configuration loaded",
		"endpoint", cfg.Overpass.Endpoint,
		"rps", cfg.Overpass.RPS,
		"cache", cfg.Cache.Enabled)
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	if a.shutdownTracing == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracing(ctx); err != nil {
		a.logger.Warn("tracing shutdown failed", "error", err)
	}
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// installMonitoringHooks routes interpreter traffic into Prometheus
func installMonitoringHooks() {
	osm.SetMonitoringHooks(&osm.MonitoringHooks{
		OnResponse: func(service, operation string, duration time.Duration, success bool) {
			monitoring.RecordExternalServiceRequest(service, operation, duration, success)
		},
		OnRateLimit: func(service string, waitTime time.Duration) {
			monitoring.RecordRateLimitWait(service, waitTime)
		},
		OnError: func(service, errorType string) {
			monitoring.RecordError(service, errorType)
		},
		OnCache: func(hit bool, size int) {
			if hit {
				monitoring.RecordCacheHit(tracing.CacheTypeOverpass)
			} else {
				monitoring.RecordCacheMiss(tracing.CacheTypeOverpass)
			}
			monitoring.UpdateCacheSize(tracing.CacheTypeOverpass, size)
		},
	})
}

func (a *app) newClient() *osm.Client {
	return osm.NewClient(a.cfg.ClientOptions(a.logger)...)
}

func (a *app) newFetcher(client nodes.Querier, surface string) *nodes.Fetcher {
	return nodes.New(client,
		nodes.WithLogger(a.logger),
		nodes.WithServerTimeout(a.cfg.Overpass.ServerTimeout),
		nodes.WithSurface(surface),
	)
}
