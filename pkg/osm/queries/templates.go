// Package queries provides utilities for building Overpass API node queries.
package queries

import (
	"fmt"
	"sort"
	"strings"

	"github.com/NERVsystems/osmnodes/pkg/geo"
)

// OverpassBuilder provides a fluent interface for building Overpass node
// queries. Every query requests JSON output.
type OverpassBuilder struct {
	timeout  int
	elements []string
	output   string
}

// NewOverpassBuilder creates a new Overpass query builder with initial settings.
func NewOverpassBuilder() *OverpassBuilder {
	return &OverpassBuilder{
		elements: make([]string, 0),
	}
}

// WithTimeout sets the server-side [timeout:N] setting. Zero leaves it out.
func (b *OverpassBuilder) WithTimeout(seconds int) *OverpassBuilder {
	b.timeout = seconds
	return b
}

// WithOutput specifies the output verbosity. The default is a bare "out".
// Common options include "body", "meta" and "skel".
func (b *OverpassBuilder) WithOutput(outputType string) *OverpassBuilder {
	b.output = outputType
	return b
}

// WithNodeInBbox adds a node statement restricted to the bounding box.
// Equality tags come first, rendered unescaped as [key=value] in sorted key
// order, followed by the where filters in the order given.
func (b *OverpassBuilder) WithNodeInBbox(bbox geo.BoundingBox, tags map[string]string, filters ...Filter) *OverpassBuilder {
	var stmt strings.Builder
	stmt.WriteString("node")
	stmt.WriteString(renderTags(tags))
	for _, f := range filters {
		stmt.WriteString(f.String())
	}
	stmt.WriteString(fmt.Sprintf("(%s,%s,%s,%s);",
		geo.FormatCoord(bbox.MinLat), geo.FormatCoord(bbox.MinLon),
		geo.FormatCoord(bbox.MaxLat), geo.FormatCoord(bbox.MaxLon)))

	b.elements = append(b.elements, stmt.String())
	return b
}

// Build returns the complete Overpass query string.
func (b *OverpassBuilder) Build() string {
	var query strings.Builder

	query.WriteString("[out:json]")
	if b.timeout > 0 {
		query.WriteString(fmt.Sprintf("[timeout:%d]", b.timeout))
	}
	query.WriteString(";(")
	for _, e := range b.elements {
		query.WriteString(e)
	}
	query.WriteString(");out")
	if b.output != "" {
		query.WriteString(" ")
		query.WriteString(b.output)
	}
	query.WriteString(";")

	return query.String()
}

// BuildNodeQuery renders the query for all nodes inside bbox whose tags
// equal every pair in tags. Keys and values are not escaped, so content that
// breaks the query grammar is reported by the interpreter, not here.
func BuildNodeQuery(bbox geo.BoundingBox, tags map[string]string) string {
	return NodeQuery(bbox, tags, nil, 0)
}

// NodeQuery composes equality tags and where filters into one node query.
func NodeQuery(bbox geo.BoundingBox, tags map[string]string, filters []Filter, timeout int) string {
	return NewOverpassBuilder().
		WithTimeout(timeout).
		WithNodeInBbox(bbox, tags, filters...).
		Build()
}

func renderTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("[%s=%s]", k, tags[k]))
	}
	return sb.String()
}
