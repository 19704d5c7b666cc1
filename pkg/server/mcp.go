package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/geo"
	"github.com/NERVsystems/osmnodes/pkg/monitoring"
	"github.com/NERVsystems/osmnodes/pkg/nodes"
	"github.com/NERVsystems/osmnodes/pkg/osm/queries"
	"github.com/NERVsystems/osmnodes/pkg/version"
)

const (
	// ServerName is the name of the MCP server
	ServerName = "osmnodes"

	// FetchNodesToolName is the name of the node fetch tool
	FetchNodesToolName = "fetch_nodes"
)

// FetchNodesTool returns the tool definition for fetching nodes in a bbox
func FetchNodesTool() mcp.Tool {
	return mcp.NewTool(FetchNodesToolName,
		mcp.WithDescription("Fetch OpenStreetMap nodes inside a bounding box as a GeoJSON FeatureCollection. "+
			"Every feature is a point with the node id and its tags as properties; provenance tags such as source and created_by are left out. "+
			"Example: bbox: {\"minLon\": -75.2803, \"minLat\": 39.8675, \"maxLon\": -74.9557, \"maxLat\": 40.1379}, tags: {\"station\": \"subway\"}"),
		mcp.WithObject("bbox",
			mcp.Required(),
			mcp.Description("Bounding box with fields minLon, minLat, maxLon, maxLat (WGS84 degrees)"),
		),
		mcp.WithObject("tags",
			mcp.Description("Equality filters as key-value pairs. Every returned node carries all of them. Example: {\"station\": \"subway\"}"),
		),
		mcp.WithArray("where",
			mcp.Description("Filter expressions ANDed together: key=value, key!=value, key~regex, key!~regex, key, !key"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// FetchNodesInput is the decoded argument set of fetch_nodes
type FetchNodesInput struct {
	BBox  geo.BoundingBox `json:"bbox"`
	Tags  any             `json:"tags,omitempty"`
	Where []string        `json:"where,omitempty"`
}

// ToolHandler serves fetch_nodes calls
type ToolHandler struct {
	fetcher *nodes.Fetcher
	logger  *slog.Logger
}

// NewToolHandler creates a handler on top of a fetcher
func NewToolHandler(fetcher *nodes.Fetcher, logger *slog.Logger) *ToolHandler {
	return &ToolHandler{
		fetcher: fetcher,
		logger:  logger.With("tool", FetchNodesToolName),
	}
}

// HandleFetchNodes runs one fetch. Classified failures become tool error
// results so the model can read the guidance; only unexpected failures are
// returned as errors.
func (h *ToolHandler) HandleFetchNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()

	input, err := decodeFetchNodesInput(req.GetArguments())
	if err != nil {
		return h.errorResult(err), nil
	}

	tags, err := queries.TagsFromAny(input.Tags)
	if err != nil {
		return h.errorResult(err), nil
	}

	table, err := h.fetcher.Fetch(ctx, nodes.Request{BBox: input.BBox, Tags: tags, Where: input.Where})
	if err != nil {
		return h.errorResult(err), nil
	}

	data, err := table.MarshalGeoJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}

	h.logger.Debug("tool call completed", "rows", table.Len(), "duration", time.Since(start))
	return mcp.NewToolResultText(string(data)), nil
}

func decodeFetchNodesInput(args map[string]any) (FetchNodesInput, error) {
	var input FetchNodesInput

	raw, ok := args["bbox"]
	if !ok {
		return input, core.NewError(core.CodeInvalidArgument, "bbox is required").
			WithGuidance(`Pass bbox as {"minLon": ..., "minLat": ..., "maxLon": ..., "maxLat": ...}`)
	}
	if _, ok := raw.(map[string]any); !ok {
		return input, core.Errorf(core.CodeInvalidArgument, "bbox must be an object, got %T", raw)
	}

	data, err := json.Marshal(args)
	if err != nil {
		return input, core.NewError(core.CodeInvalidArgument, "arguments cannot be encoded").Wrap(err)
	}
	if err := json.Unmarshal(data, &input); err != nil {
		return input, core.NewError(core.CodeInvalidArgument, "invalid arguments").Wrap(err)
	}
	if err := input.BBox.Validate(); err != nil {
		return input, core.NewError(core.CodeInvalidArgument, "invalid bbox").Wrap(err)
	}
	return input, nil
}

func (h *ToolHandler) errorResult(err error) *mcp.CallToolResult {
	code := core.CodeOf(err)
	if code == "" || code == core.CodeTransport || code == core.CodeHTTP || code == core.CodeParse {
		h.logger.Error("tool call failed", "error", err)
	} else {
		h.logger.Debug("tool call rejected", "error", err)
	}

	text := err.Error()
	var cerr *core.Error
	if errors.As(err, &cerr) && cerr.Query != "" {
		text += "\nQuery: " + cerr.Query
	}
	return mcp.NewToolResultError(text)
}

// NewMCPServer creates an MCP server exposing fetch_nodes
func NewMCPServer(fetcher *nodes.Fetcher, logger *slog.Logger) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	h := NewToolHandler(fetcher, logger)
	srv.AddTool(FetchNodesTool(), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		result, err := h.HandleFetchNodes(ctx, req)
		monitoring.RecordToolCall(FetchNodesToolName, time.Since(start), err == nil && result != nil && !result.IsError)
		return result, err
	})

	return srv
}

// ServeStdio serves srv over stdin and stdout until ctx is done or stdin
// closes.
func ServeStdio(ctx context.Context, srv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(srv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("serving MCP over stdio", "name", ServerName, "version", version.BuildVersion)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
