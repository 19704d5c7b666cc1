package features

import (
	"log/slog"
	"sort"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/osm"
)

// Reserved column names. Tags with these keys are dropped so they cannot
// shadow the element's identity or position.
const (
	ColumnID       = "id"
	ColumnLat      = "lat"
	ColumnLon      = "lon"
	ColumnGeometry = "geometry"
)

// DefaultIgnoredTags returns the provenance and import bookkeeping tags left
// out of every record. A fresh slice is returned on each call.
func DefaultIgnoredTags() []string {
	return []string{
		"source",
		"source_ref",
		"source:ref",
		"history",
		"attribution",
		"created_by",
		"tiger:tlid",
		"tiger:upload_uuid",
	}
}

// Record is the flattened form of one node
type Record struct {
	ID    int64
	Lat   float64
	Lon   float64
	Attrs map[string]Value
}

// Get returns a column value of the record, including id, lat and lon.
func (r Record) Get(column string) (Value, bool) {
	switch column {
	case ColumnID:
		return NumberValue(float64(r.ID)), true
	case ColumnLat:
		return NumberValue(r.Lat), true
	case ColumnLon:
		return NumberValue(r.Lon), true
	}
	v, ok := r.Attrs[column]
	return v, ok
}

// AttrNames returns the attribute names in sorted order
func (r Record) AttrNames() []string {
	names := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Mapper turns elements into records, dropping a fixed set of tags
type Mapper struct {
	ignore map[string]struct{}
	logger *slog.Logger
}

// NewMapper creates a mapper that drops the given tag keys
func NewMapper(ignored ...string) *Mapper {
	m := &Mapper{
		ignore: make(map[string]struct{}, len(ignored)),
		logger: slog.Default().With("component", "mapper"),
	}
	for _, k := range ignored {
		m.ignore[k] = struct{}{}
	}
	return m
}

// WithLogger sets the logger used to report dropped tags and returns m
func (m *Mapper) WithLogger(logger *slog.Logger) *Mapper {
	m.logger = logger.With("component", "mapper")
	return m
}

// DefaultMapper drops DefaultIgnoredTags
func DefaultMapper() *Mapper {
	return NewMapper(DefaultIgnoredTags()...)
}

// Ignores reports whether the mapper drops tag key
func (m *Mapper) Ignores(key string) bool {
	_, ok := m.ignore[key]
	return ok
}

// Map converts one element into a record holding id, lat, lon and every tag
// the mapper does not ignore. Tags named id, lat, lon or geometry are dropped
// with a warning because they would shadow the node's own columns. Tag values
// that are not scalars fail with a parse error.
func (m *Mapper) Map(e osm.Element) (Record, error) {
	rec := Record{
		ID:    e.ID,
		Lat:   e.Lat,
		Lon:   e.Lon,
		Attrs: make(map[string]Value, len(e.Tags)),
	}

	for k, raw := range e.Tags {
		if m.Ignores(k) {
			continue
		}
		if isReserved(k) {
			m.logger.Warn("dropping tag that collides with a reserved column", "id", e.ID, "tag", k)
			continue
		}
		v, err := ValueOf(raw)
		if err != nil {
			return Record{}, core.Errorf(core.CodeParse, "node %d tag %q", e.ID, k).Wrap(err)
		}
		rec.Attrs[k] = v
	}
	return rec, nil
}

// MapAll converts elements in order
func (m *Mapper) MapAll(elements []osm.Element) ([]Record, error) {
	records := make([]Record, 0, len(elements))
	for _, e := range elements {
		rec, err := m.Map(e)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func isReserved(key string) bool {
	switch key {
	case ColumnID, ColumnLat, ColumnLon, ColumnGeometry:
		return true
	}
	return false
}
