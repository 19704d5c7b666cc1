package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var philadelphiaArg = map[string]any{
	"minLon": -75.28030675, "minLat": 39.86747186,
	"maxLon": -74.95574856, "maxLat": 40.13793484,
}

func callFetchNodes(t *testing.T, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	fetcher, _ := newTestFetcher(t)
	h := NewToolHandler(fetcher, slog.Default())

	req := mcp.CallToolRequest{}
	req.Params.Name = FetchNodesToolName
	req.Params.Arguments = args

	result, err := h.HandleFetchNodes(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestFetchNodesTool(t *testing.T) {
	tool := FetchNodesTool()
	assert.Equal(t, FetchNodesToolName, tool.Name)
	assert.Contains(t, tool.InputSchema.Required, "bbox")
	assert.Contains(t, tool.InputSchema.Properties, "tags")
	assert.Contains(t, tool.InputSchema.Properties, "where")
}

func TestHandleFetchNodes(t *testing.T) {
	result := callFetchNodes(t, map[string]any{
		"bbox": philadelphiaArg,
		"tags": map[string]any{"station": "subway"},
	})
	require.False(t, result.IsError, resultText(t, result))

	fc, err := geojson.UnmarshalFeatureCollection([]byte(resultText(t, result)))
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)
	for _, f := range fc.Features {
		assert.Equal(t, "subway", f.Properties["station"])
	}
}

func TestHandleFetchNodesWhere(t *testing.T) {
	result := callFetchNodes(t, map[string]any{
		"bbox":  philadelphiaArg,
		"where": []any{"station=subway", "wheelchair=yes"},
	})
	require.False(t, result.IsError, resultText(t, result))

	fc, err := geojson.UnmarshalFeatureCollection([]byte(resultText(t, result)))
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "11th Street", fc.Features[0].Properties["name"])
}

func TestHandleFetchNodesErrors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing bbox", map[string]any{}, "INVALID_ARGUMENT"},
		{"bbox not an object", map[string]any{"bbox": "1,2,3,4"}, "INVALID_ARGUMENT"},
		{"bbox out of range", map[string]any{"bbox": map[string]any{"minLon": 0, "minLat": -100, "maxLon": 1, "maxLat": 1}}, "INVALID_ARGUMENT"},
		{"tags not a mapping", map[string]any{"bbox": philadelphiaArg, "tags": []any{"station"}}, "INVALID_ARGUMENT"},
		{"malformed where", map[string]any{"bbox": philadelphiaArg, "where": []any{"subway$station"}}, "INVALID_ARGUMENT"},
		{"impossible filter", map[string]any{"bbox": philadelphiaArg, "tags": map[string]any{"station": "subway", "shop": "dry_cleaning"}}, "NO_DATA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callFetchNodes(t, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestNewMCPServerRegistersTool(t *testing.T) {
	fetcher, _ := newTestFetcher(t)
	srv := NewMCPServer(fetcher, slog.Default())

	resp := srv.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name":"fetch_nodes"`)
}
