package features

import (
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection converts the table to GeoJSON. Each feature carries the
// element ID, its attributes plus lat and lon as properties, and the
// collection declares its CRS as a foreign member.
func (t *Table) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.BBox = geojson.NewBBox(t.Bound())
	fc.ExtraMembers = geojson.Properties{
		"crs": map[string]any{
			"type": "name",
			"properties": map[string]any{
				"name": "urn:ogc:def:crs:EPSG::4326",
			},
		},
	}

	for _, r := range t.rows {
		f := geojson.NewFeature(r.Geometry)
		f.ID = r.ID
		f.Properties[ColumnLat] = r.Lat
		f.Properties[ColumnLon] = r.Lon
		for k, v := range r.Attrs {
			f.Properties[k] = v.Interface()
		}
		fc.Append(f)
	}
	return fc
}

// MarshalGeoJSON encodes the table as a GeoJSON FeatureCollection
func (t *Table) MarshalGeoJSON() ([]byte, error) {
	return t.FeatureCollection().MarshalJSON()
}
