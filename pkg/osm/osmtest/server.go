// Package osmtest provides an in-process fake Overpass interpreter that
// evaluates the node queries produced by package queries.
package osmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/NERVsystems/osmnodes/pkg/osm/queries"
)

// Node is a point feature served by the fake interpreter
type Node struct {
	ID   int64          `json:"id"`
	Lat  float64        `json:"lat"`
	Lon  float64        `json:"lon"`
	Tags map[string]any `json:"tags,omitempty"`
}

// Request is a query received by the fake interpreter
type Request struct {
	Method    string
	Query     string
	UserAgent string
}

// Server is a fake interpreter backed by a fixed set of nodes
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nodes    []Node
	requests []Request

	// Override, when set, handles requests instead of the query evaluator.
	Override http.HandlerFunc
}

// NewServer starts a fake interpreter serving nodes. Close it when done.
func NewServer(nodes ...Node) *Server {
	s := &Server{nodes: nodes}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns the queries received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("data")

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Query: query, UserAgent: r.UserAgent()})
	override := s.Override
	s.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if query == "[out:json];out meta;" {
		writeJSON(w, []Node{})
		return
	}

	stmt, err := parseNodeQuery(query)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: line 1: parse error: %v", err), http.StatusBadRequest)
		return
	}

	matched := []Node{}
	for _, n := range s.nodes {
		if stmt.matches(n) {
			matched = append(matched, n)
		}
	}
	writeJSON(w, matched)
}

func writeJSON(w http.ResponseWriter, nodes []Node) {
	type element struct {
		Type string `json:"type"`
		Node
	}
	elements := make([]element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, element{Type: "node", Node: n})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version":   0.6,
		"generator": "osmtest",
		"elements":  elements,
	})
}

type nodeStatement struct {
	filters                  []queries.Filter
	south, west, north, east float64
}

func (st nodeStatement) matches(n Node) bool {
	if n.Lat < st.south || n.Lat > st.north || n.Lon < st.west || n.Lon > st.east {
		return false
	}
	tags := make(map[string]string, len(n.Tags))
	for k, v := range n.Tags {
		tags[k] = fmt.Sprint(v)
	}
	for _, f := range st.filters {
		if !f.Matches(tags) {
			return false
		}
	}
	return true
}

var (
	statementPattern = regexp.MustCompile(`^\[out:json\](?:\[timeout:\d+\])?;\(node((?:\[[^\]]*\])*)\(([^)]*)\);\);out(?: \w+)?;$`)
	bracketPattern   = regexp.MustCompile(`\[([^\]]*)\]`)
)

// parseNodeQuery understands the single-statement node queries that
// package queries renders.
func parseNodeQuery(q string) (nodeStatement, error) {
	m := statementPattern.FindStringSubmatch(q)
	if m == nil {
		return nodeStatement{}, fmt.Errorf("unsupported query %q", q)
	}

	var st nodeStatement
	for _, b := range bracketPattern.FindAllStringSubmatch(m[1], -1) {
		clause := strings.ReplaceAll(b[1], `"`, "")
		clause = strings.ReplaceAll(clause, `\\`, `\`)
		fs, err := queries.ParseWhere(clause)
		if err != nil {
			return nodeStatement{}, err
		}
		st.filters = append(st.filters, fs...)
	}

	coords := strings.Split(m[2], ",")
	if len(coords) != 4 {
		return nodeStatement{}, fmt.Errorf("bbox needs 4 values")
	}
	vals := make([]float64, 4)
	for i, c := range coords {
		v, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nodeStatement{}, err
		}
		vals[i] = v
	}
	st.south, st.west, st.north, st.east = vals[0], vals[1], vals[2], vals[3]
	return st, nil
}

// Philadelphia is the bounding box used by the fixture data
var Philadelphia = [4]float64{-75.28030675, 39.86747186, -74.95574856, 40.13793484}

// PhiladelphiaStations is a small fixture of transit nodes inside Philadelphia
func PhiladelphiaStations() []Node {
	return []Node{
		{ID: 1001, Lat: 39.9524, Lon: -75.1636, Tags: map[string]any{
			"name": "City Hall", "railway": "station", "station": "subway",
			"source": "survey", "created_by": "JOSM",
		}},
		{ID: 1002, Lat: 39.9522, Lon: -75.1586, Tags: map[string]any{
			"name": "11th Street", "railway": "station", "station": "subway",
			"tiger:tlid": "12345", "wheelchair": "yes",
		}},
		{ID: 1003, Lat: 39.9557, Lon: -75.1819, Tags: map[string]any{
			"name": "30th Street", "railway": "station", "station": "train",
			"source:ref": "septa", "platforms": 6,
		}},
		{ID: 1004, Lat: 39.9496, Lon: -75.1503, Tags: map[string]any{
			"name": "Corner Cleaners", "shop": "dry_cleaning", "history": "imported",
		}},
		{ID: 1005, Lat: 39.9610, Lon: -75.1420, Tags: map[string]any{
			"name": "Spring Garden", "station": "subway", "railway": "station",
			"attribution": "x", "tiger:upload_uuid": "y", "source_ref": "z", "covered": true,
		}},
		{ID: 2001, Lat: 40.7128, Lon: -74.0060, Tags: map[string]any{
			"name": "Outside the box", "station": "subway",
		}},
	}
}
