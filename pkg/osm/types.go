// Package osm provides the Overpass API transport for node queries.
package osm

import "encoding/json"

// Element is one element of an Overpass JSON response. Tag values are kept
// untyped so numeric or boolean values survive decoding.
type Element struct {
	Type string         `json:"type"`
	ID   int64          `json:"id"`
	Lat  float64        `json:"lat"`
	Lon  float64        `json:"lon"`
	Tags map[string]any `json:"tags,omitempty"`
}

// IsNode reports whether the element is a point feature
func (e Element) IsNode() bool {
	return e.Type == "" || e.Type == "node"
}

// Response is the decoded body of an Overpass interpreter call
type Response struct {
	Version   json.Number `json:"version,omitempty"`
	Generator string      `json:"generator,omitempty"`
	OSM3S     *struct {
		TimestampOSMBase string `json:"timestamp_osm_base"`
		Copyright        string `json:"copyright"`
	} `json:"osm3s,omitempty"`
	Elements []Element `json:"elements"`
	Remark   string    `json:"remark,omitempty"`
}
