package features

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"github.com/NERVsystems/osmnodes/pkg/core"
)

// CRS is the coordinate reference system of every table geometry
const CRS = "EPSG:4326"

// Row is a record with its derived point geometry
type Row struct {
	Record
	Geometry orb.Point
}

// Table is an ordered collection of rows indexed by element ID.
// A Table returned by NewTable always has at least one row.
type Table struct {
	rows    []Row
	index   map[int64]int
	columns []string
}

// NewTable assembles records into a table. Zero records is a no-data error;
// a non-finite coordinate or an invalid attribute value is a parse error.
// On duplicate IDs the first row is the one Lookup returns.
func NewTable(records []Record) (*Table, error) {
	if len(records) == 0 {
		return nil, core.NewError(core.CodeNoData, "OSM query results contain no data")
	}

	t := &Table{
		rows:  make([]Row, 0, len(records)),
		index: make(map[int64]int, len(records)),
	}
	attrs := make(map[string]struct{})

	for _, rec := range records {
		if !finite(rec.Lat) || !finite(rec.Lon) {
			return nil, core.Errorf(core.CodeParse, "node %d has a non-finite position (%v, %v)", rec.ID, rec.Lon, rec.Lat)
		}
		for k, v := range rec.Attrs {
			if !v.Valid() {
				return nil, core.Errorf(core.CodeParse, "node %d attribute %q has no value", rec.ID, k)
			}
			if n, ok := v.Float(); ok && !finite(n) {
				return nil, core.Errorf(core.CodeParse, "node %d attribute %q is not a finite number", rec.ID, k)
			}
			attrs[k] = struct{}{}
		}

		if _, dup := t.index[rec.ID]; !dup {
			t.index[rec.ID] = len(t.rows)
		}
		t.rows = append(t.rows, Row{
			Record:   rec,
			Geometry: orb.Point{rec.Lon, rec.Lat},
		})
	}

	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	t.columns = append([]string{ColumnLat, ColumnLon}, names...)

	return t, nil
}

// Len returns the number of rows
func (t *Table) Len() int { return len(t.rows) }

// CRS returns the coordinate reference system of the geometry column
func (t *Table) CRS() string { return CRS }

// Row returns the i-th row
func (t *Table) Row(i int) Row { return t.rows[i] }

// Rows returns a copy of all rows in order
func (t *Table) Rows() []Row {
	return append([]Row(nil), t.rows...)
}

// Lookup returns the row with the given element ID
func (t *Table) Lookup(id int64) (Row, bool) {
	i, ok := t.index[id]
	if !ok {
		return Row{}, false
	}
	return t.rows[i], true
}

// IDs returns the index of the table in row order
func (t *Table) IDs() []int64 {
	ids := make([]int64, len(t.rows))
	for i, r := range t.rows {
		ids[i] = r.ID
	}
	return ids
}

// Columns returns the attribute columns: lat, lon, then tag columns sorted
// by name. The index (id) and geometry columns are not included.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether any row carries the column
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return name == ColumnID
}

// Column returns the values of one column in row order. Rows without the
// attribute yield an invalid Value.
func (t *Table) Column(name string) []Value {
	out := make([]Value, len(t.rows))
	for i, r := range t.rows {
		v, _ := r.Get(name)
		out[i] = v
	}
	return out
}

// Geometry returns the point of the i-th row
func (t *Table) Geometry(i int) orb.Point { return t.rows[i].Geometry }

// Bound returns the bounding box of all geometries
func (t *Table) Bound() orb.Bound {
	mp := make(orb.MultiPoint, len(t.rows))
	for i, r := range t.rows {
		mp[i] = r.Geometry
	}
	return mp.Bound()
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
