// Package nodes fetches OpenStreetMap nodes inside a bounding box and returns
// them as a point feature table.
package nodes

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/features"
	"github.com/NERVsystems/osmnodes/pkg/geo"
	"github.com/NERVsystems/osmnodes/pkg/monitoring"
	"github.com/NERVsystems/osmnodes/pkg/osm"
	"github.com/NERVsystems/osmnodes/pkg/osm/queries"
	"github.com/NERVsystems/osmnodes/pkg/tracing"
)

// Querier runs an Overpass QL query. *osm.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, query string) (*osm.Response, error)
}

// Request describes one fetch. Tags are equality filters rendered as given;
// Where expressions are parsed and quoted. Both are ANDed together.
type Request struct {
	BBox  geo.BoundingBox
	Tags  map[string]string
	Where []string
}

// Fetcher runs the query, map and assemble pipeline. It is safe for
// concurrent use.
type Fetcher struct {
	client  Querier
	mapper  *features.Mapper
	logger  *slog.Logger
	timeout int
	surface string
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithMapper replaces the default mapper and its ignored tag list
func WithMapper(m *features.Mapper) Option {
	return func(f *Fetcher) {
		f.mapper = m
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithServerTimeout asks the interpreter to abort queries that run longer
// than seconds. Zero leaves the interpreter default.
func WithServerTimeout(seconds int) Option {
	return func(f *Fetcher) {
		f.timeout = seconds
	}
}

// WithSurface labels metrics and spans with the caller, e.g. "cli" or "http".
func WithSurface(surface string) Option {
	return func(f *Fetcher) {
		f.surface = surface
	}
}

// New creates a Fetcher on top of client
func New(client Querier, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:  client,
		mapper:  features.DefaultMapper(),
		logger:  slog.Default(),
		surface: "library",
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "nodes")
	return f
}

// Get returns every node inside bbox whose tags equal all pairs in tags.
func (f *Fetcher) Get(ctx context.Context, bbox geo.BoundingBox, tags map[string]string) (*features.Table, error) {
	return f.Fetch(ctx, Request{BBox: bbox, Tags: tags})
}

// GetWhere returns every node inside bbox that satisfies all where
// expressions. A malformed expression fails before any request is made.
func (f *Fetcher) GetWhere(ctx context.Context, bbox geo.BoundingBox, where ...string) (*features.Table, error) {
	return f.Fetch(ctx, Request{BBox: bbox, Where: where})
}

// Fetch runs one request. It fails with a core.ErrNoData error when the
// interpreter returns no nodes, so a returned table is never empty.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*features.Table, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "nodes.fetch",
		trace.WithAttributes(
			attribute.String(tracing.AttrFetchSurface, f.surface),
			attribute.String(tracing.AttrBBox, req.BBox.String()),
			attribute.Int(tracing.AttrFetchTagCount, len(req.Tags)),
			attribute.Int(tracing.AttrFetchWhere, len(req.Where)),
		),
	)
	defer span.End()

	table, err := f.fetch(ctx, req)

	status := tracing.StatusSuccess
	rows := 0
	switch {
	case err == nil:
		rows = table.Len()
		monitoring.ObserveRows(rows)
		span.SetStatus(codes.Ok, "")
	case core.CodeOf(err) == core.CodeNoData:
		status = tracing.StatusNoData
		span.SetStatus(codes.Ok, "no data")
	default:
		status = tracing.StatusError
		span.RecordError(err, trace.WithAttributes(tracing.ErrorAttributes(string(core.CodeOf(err)), err)...))
		span.SetStatus(codes.Error, err.Error())
		monitoring.RecordError("nodes", string(core.CodeOf(err)))
	}
	span.SetAttributes(tracing.FetchAttributes(f.surface, status, rows)...)
	monitoring.RecordFetch(f.surface, status, time.Since(start))

	return table, err
}

func (f *Fetcher) fetch(ctx context.Context, req Request) (*features.Table, error) {
	filters, err := queries.ParseWhere(req.Where...)
	if err != nil {
		return nil, err
	}

	query := queries.NodeQuery(req.BBox, req.Tags, filters, f.timeout)

	resp, err := f.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	elements := make([]osm.Element, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		if !e.IsNode() {
			f.logger.Debug("skipping non-node element", "type", e.Type, "id", e.ID)
			continue
		}
		elements = append(elements, e)
	}
	if len(elements) == 0 {
		return nil, core.NewError(core.CodeNoData, "OSM query results contain no data").
			WithQuery(query).
			WithGuidance("Widen the bounding box or relax the tag filters")
	}

	records, err := f.mapper.MapAll(elements)
	if err != nil {
		var e *core.Error
		if errors.As(err, &e) {
			e.WithQuery(query)
		}
		return nil, err
	}

	table, err := features.NewTable(records)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("fetched nodes", "rows", table.Len(), "bbox", req.BBox.String())
	return table, nil
}

var defaultFetcher = sync.OnceValue(func() *Fetcher {
	return New(osm.NewClient())
})

// Get queries the public Overpass interpreter for nodes inside the box
// (lngMin, latMin) to (lngMax, latMax) whose tags equal every pair in tags.
// tags may be nil, a map[string]string or a map[string]any of scalars;
// anything else fails with a core.ErrInvalidArgument error.
func Get(ctx context.Context, lngMin, latMin, lngMax, latMax float64, tags any) (*features.Table, error) {
	t, err := queries.TagsFromAny(tags)
	if err != nil {
		return nil, err
	}
	return defaultFetcher().Get(ctx, geo.NewBoundingBox(lngMin, latMin, lngMax, latMax), t)
}
