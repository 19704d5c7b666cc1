// Package geo provides the geographic value types shared by the query,
// transport and feature packages.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// BoundingBox is a rectangular search region in WGS84 degrees.
// The core pipeline does not enforce min <= max; outer surfaces call Validate.
type BoundingBox struct {
	MinLon float64 `json:"minLon"`
	MinLat float64 `json:"minLat"`
	MaxLon float64 `json:"maxLon"`
	MaxLat float64 `json:"maxLat"`
}

// NewBoundingBox creates a bounding box from west, south, east, north
// coordinates, the order used by the public fetch operation.
func NewBoundingBox(lngMin, latMin, lngMax, latMax float64) BoundingBox {
	return BoundingBox{
		MinLon: lngMin,
		MinLat: latMin,
		MaxLon: lngMax,
		MaxLat: latMax,
	}
}

// FromBound converts an orb.Bound into a BoundingBox
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLon: b.Min.Lon(),
		MinLat: b.Min.Lat(),
		MaxLon: b.Max.Lon(),
		MaxLat: b.Max.Lat(),
	}
}

// Bound returns the box as an orb.Bound
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Contains reports whether the point lies inside the box, edges included.
func (b BoundingBox) Contains(lon, lat float64) bool {
	return b.Bound().Contains(orb.Point{lon, lat})
}

// Validate checks coordinate ranges and ordering.
func (b BoundingBox) Validate() error {
	for _, v := range []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bounding box contains a non-finite coordinate")
		}
	}
	if b.MinLat < -90 || b.MinLat > 90 || b.MaxLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("invalid latitude range [%g, %g] (must be between -90 and 90)", b.MinLat, b.MaxLat)
	}
	if b.MinLon < -180 || b.MinLon > 180 || b.MaxLon < -180 || b.MaxLon > 180 {
		return fmt.Errorf("invalid longitude range [%g, %g] (must be between -180 and 180)", b.MinLon, b.MaxLon)
	}
	if b.MinLat > b.MaxLat {
		return fmt.Errorf("minLat %g is greater than maxLat %g", b.MinLat, b.MaxLat)
	}
	if b.MinLon > b.MaxLon {
		return fmt.Errorf("minLon %g is greater than maxLon %g", b.MinLon, b.MaxLon)
	}
	return nil
}

// String renders the box as "minLon,minLat,maxLon,maxLat".
func (b BoundingBox) String() string {
	return strings.Join([]string{
		FormatCoord(b.MinLon),
		FormatCoord(b.MinLat),
		FormatCoord(b.MaxLon),
		FormatCoord(b.MaxLat),
	}, ",")
}

// ParseBoundingBox parses "minLon,minLat,maxLon,maxLat".
func ParseBoundingBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("bounding box %q must have 4 comma-separated values", s)
	}

	var vals [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("bounding box value %q: %w", p, err)
		}
		vals[i] = v
	}
	return NewBoundingBox(vals[0], vals[1], vals[2], vals[3]), nil
}

// FormatCoord renders a coordinate with the shortest decimal form that
// round-trips to the same float64.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
