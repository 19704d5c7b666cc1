package features

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/paulmach/orb/encoding/wkt"
)

// Format is an output format for Render
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatGeoJSON  Format = "geojson"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatCSV, FormatMarkdown, FormatGeoJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, csv, markdown or geojson)", s)
	}
}

// Render writes the table to w. Tabular formats list id, the attribute
// columns and the geometry as WKT.
func (t *Table) Render(w io.Writer, format Format) error {
	if format == FormatGeoJSON {
		data, err := t.MarshalGeoJSON()
		if err != nil {
			return fmt.Errorf("encode geojson: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	tw := table.NewWriter()
	header := table.Row{ColumnID}
	for _, c := range t.columns {
		header = append(header, c)
	}
	header = append(header, ColumnGeometry)
	tw.AppendHeader(header)

	for _, r := range t.rows {
		row := table.Row{strconv.FormatInt(r.ID, 10)}
		for _, c := range t.columns {
			v, _ := r.Get(c)
			row = append(row, v.String())
		}
		row = append(row, wkt.MarshalString(r.Geometry))
		tw.AppendRow(row)
	}

	var out string
	switch format {
	case FormatCSV:
		out = tw.RenderCSV()
	case FormatMarkdown:
		out = tw.RenderMarkdown()
	case FormatTable, "":
		tw.SetStyle(table.StyleLight)
		tw.SetCaption("%d nodes, CRS %s", t.Len(), CRS)
		out = tw.Render()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	_, err := fmt.Fprintln(w, out)
	return err
}

// WriteCSV writes the table as CSV with a header row
func (t *Table) WriteCSV(w io.Writer) error {
	return t.Render(w, FormatCSV)
}
