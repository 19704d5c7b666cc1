package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/features"
	"github.com/NERVsystems/osmnodes/pkg/geo"
	"github.com/NERVsystems/osmnodes/pkg/nodes"
	"github.com/NERVsystems/osmnodes/pkg/osm/queries"
)

type getOptions struct {
	bbox     string
	tags     []string
	tagsJSON string
	where    []string
	format   string
}

func newGetCmd(a *app) *cobra.Command {
	var opts getOptions

	cmd := &cobra.Command{
		Use:   "get --bbox minLon,minLat,maxLon,maxLat [--tag key=value]... [--where expr]...",
		Short: "Fetch nodes inside a bounding box and print them",
		Example: `  osmnodes get --bbox -75.28030675,39.86747186,-74.95574856,40.13793484 --tag station=subway
  osmnodes get --bbox -75.28,39.87,-74.96,40.14 --where 'station=subway' --where 'wheelchair!=no' --format geojson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runGet(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.bbox, "bbox", "", "bounding box as minLon,minLat,maxLon,maxLat")
	f.StringArrayVar(&opts.tags, "tag", nil, "equality filter key=value (repeatable)")
	f.StringVar(&opts.tagsJSON, "tags", "", `equality filters as a JSON object, e.g. {"station":"subway"}`)
	f.StringArrayVar(&opts.where, "where", nil, "filter expression: key=value, key!=value, key~regex, key!~regex, key or !key (repeatable)")
	f.StringVar(&opts.format, "format", string(features.FormatTable), "output format: table, csv, markdown or geojson")
	_ = cmd.MarkFlagRequired("bbox")

	return cmd
}

func (a *app) runGet(cmd *cobra.Command, opts getOptions) error {
	format, err := features.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	bbox, err := geo.ParseBoundingBox(opts.bbox)
	if err != nil {
		return core.NewError(core.CodeInvalidArgument, "invalid --bbox").Wrap(err)
	}
	if err := bbox.Validate(); err != nil {
		return core.NewError(core.CodeInvalidArgument, "invalid --bbox").Wrap(err)
	}

	tags, err := queries.ParseTagPairs(opts.tags)
	if err != nil {
		return err
	}
	if opts.tagsJSON != "" {
		extra, err := queries.ParseTagsJSON([]byte(opts.tagsJSON))
		if err != nil {
			return err
		}
		for k, v := range extra {
			tags[k] = v
		}
	}

	fetcher := a.newFetcher(a.newClient(), "cli")
	table, err := fetcher.Fetch(cmd.Context(), nodes.Request{BBox: bbox, Tags: tags, Where: opts.where})
	if err != nil {
		return err
	}

	if err := table.Render(cmd.OutOrStdout(), format); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
