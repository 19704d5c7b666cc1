package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/features"
	"github.com/NERVsystems/osmnodes/pkg/geo"
	"github.com/NERVsystems/osmnodes/pkg/monitoring"
	"github.com/NERVsystems/osmnodes/pkg/nodes"
	"github.com/NERVsystems/osmnodes/pkg/osm/queries"
)

// API serves node fetches over HTTP
type API struct {
	fetcher *nodes.Fetcher
	health  *monitoring.HealthChecker
	limiter *RateLimiter
	mcp     *mcpserver.MCPServer
	logger  *slog.Logger
	timeout time.Duration
}

// APIOption configures an API
type APIOption func(*API)

// WithHealthChecker serves the checker at /health
func WithHealthChecker(hc *monitoring.HealthChecker) APIOption {
	return func(a *API) {
		a.health = hc
	}
}

// WithClientRateLimit limits each client IP to rps requests per second
func WithClientRateLimit(rps float64, burst int) APIOption {
	return func(a *API) {
		if rps > 0 {
			a.limiter = NewRateLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRequestTimeout bounds each /nodes request. Zero means none.
func WithRequestTimeout(d time.Duration) APIOption {
	return func(a *API) {
		a.timeout = d
	}
}

// WithMCP also serves srv over streamable HTTP at /mcp
func WithMCP(srv *mcpserver.MCPServer) APIOption {
	return func(a *API) {
		a.mcp = srv
	}
}

// WithAPILogger sets the logger
func WithAPILogger(logger *slog.Logger) APIOption {
	return func(a *API) {
		a.logger = logger
	}
}

// NewAPI creates the HTTP API on top of a fetcher
func NewAPI(fetcher *nodes.Fetcher, opts ...APIOption) *API {
	a := &API{
		fetcher: fetcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "http")
	return a
}

// Close releases background resources
func (a *API) Close() {
	if a.limiter != nil {
		a.limiter.Stop()
	}
}

// Routes returns the router:
//
//	GET /nodes    node fetch as GeoJSON or CSV
//	GET /health   upstream health
//	GET /metrics  Prometheus metrics
//	/mcp          MCP streamable HTTP, when enabled
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(a.logger))
	r.Use(TracingMiddleware)
	r.Use(SecurityHeaders)

	r.Group(func(r chi.Router) {
		if a.limiter != nil {
			r.Use(a.limiter.Middleware)
		}
		if a.timeout > 0 {
			r.Use(middleware.Timeout(a.timeout))
		}
		r.Get("/nodes", a.handleNodes)
	})

	if a.health != nil {
		r.Get("/health", a.health.HealthHandler())
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": monitoring.StatusHealthy})
		})
	}
	r.Handle("/metrics", promhttp.Handler())

	if a.mcp != nil {
		r.Handle("/mcp", mcpserver.NewStreamableHTTPServer(a.mcp))
	}

	return r
}

// handleNodes accepts
//
//	bbox=minLon,minLat,maxLon,maxLat  required
//	tag=key=value                     repeatable equality filter
//	tags={"key":"value"}              JSON equality filters
//	where=expr                        repeatable where expression
//	format=geojson|csv                default geojson
func (a *API) handleNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req, format, err := parseNodesRequest(q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	table, err := a.fetcher.Fetch(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	switch format {
	case features.FormatCSV:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		if err := table.WriteCSV(w); err != nil {
			a.logger.Error("failed to write csv response", "error", err)
		}
	default:
		data, err := table.MarshalGeoJSON()
		if err != nil {
			a.writeError(w, r, core.NewError(core.CodeParse, "result cannot be encoded as GeoJSON").Wrap(err))
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		if _, err := w.Write(data); err != nil {
			a.logger.Error("failed to write geojson response", "error", err)
		}
	}
}

func parseNodesRequest(q map[string][]string) (nodes.Request, features.Format, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	raw := get("bbox")
	if raw == "" {
		return nodes.Request{}, "", core.NewError(core.CodeInvalidArgument, "bbox is required").
			WithGuidance("Pass bbox=minLon,minLat,maxLon,maxLat")
	}
	bbox, err := geo.ParseBoundingBox(raw)
	if err != nil {
		return nodes.Request{}, "", core.NewError(core.CodeInvalidArgument, "invalid bbox").Wrap(err)
	}
	if err := bbox.Validate(); err != nil {
		return nodes.Request{}, "", core.NewError(core.CodeInvalidArgument, "invalid bbox").Wrap(err)
	}

	tags, err := queries.ParseTagPairs(q["tag"])
	if err != nil {
		return nodes.Request{}, "", err
	}
	if js := get("tags"); js != "" {
		extra, err := queries.ParseTagsJSON([]byte(js))
		if err != nil {
			return nodes.Request{}, "", err
		}
		for k, v := range extra {
			tags[k] = v
		}
	}

	format := features.FormatGeoJSON
	if f := strings.ToLower(get("format")); f != "" {
		if f != string(features.FormatGeoJSON) && f != string(features.FormatCSV) {
			return nodes.Request{}, "", core.Errorf(core.CodeInvalidArgument, "unsupported format %q", f).
				WithGuidance("Use format=geojson or format=csv")
		}
		format = features.Format(f)
	}

	return nodes.Request{BBox: bbox, Tags: tags, Where: q["where"]}, format, nil
}

type errorBody struct {
	Code     core.ErrorCode `json:"code"`
	Message  string         `json:"message"`
	Guidance string         `json:"guidance,omitempty"`
	Query    string         `json:"query,omitempty"`
	Status   int            `json:"upstream_status,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.HTTPStatus(err)
	body := errorBody{Code: "INTERNAL", Message: err.Error()}

	var cerr *core.Error
	if errors.As(err, &cerr) {
		body = errorBody{
			Code:     cerr.Code,
			Message:  cerr.Message,
			Guidance: cerr.Guidance,
			Query:    cerr.Query,
			Status:   cerr.Status,
		}
		if cerr.Err != nil {
			body.Message += ": " + cerr.Err.Error()
		}
	}

	if status >= 500 {
		a.logger.Error("request failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		a.logger.Debug("request rejected", "request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
