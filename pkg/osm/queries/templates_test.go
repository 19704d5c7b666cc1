package queries

import (
	"testing"

	"github.com/NERVsystems/osmnodes/pkg/geo"
)

var philadelphia = geo.NewBoundingBox(-75.28030675, 39.86747186, -74.95574856, 40.13793484)

func TestOverpassBuilder_Simple(t *testing.T) {
	q := NewOverpassBuilder().
		WithNodeInBbox(geo.NewBoundingBox(2, 1, 4, 3), map[string]string{"amenity": "cafe"}).
		Build()
	expected := "[out:json];(node[amenity=cafe](1,2,3,4););out;"
	if q != expected {
		t.Errorf("unexpected query: %s", q)
	}
}

func TestOverpassBuilder_CustomOutput(t *testing.T) {
	q := NewOverpassBuilder().
		WithTimeout(25).
		WithNodeInBbox(geo.NewBoundingBox(0, 0, 1, 1), map[string]string{"highway": "bus_stop"}).
		WithOutput("meta").
		Build()
	expected := "[out:json][timeout:25];(node[highway=bus_stop](0,0,1,1););out meta;"
	if q != expected {
		t.Errorf("unexpected query: %s", q)
	}
}

func TestBuildNodeQuery(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		expected string
	}{
		{
			name:     "no tags",
			tags:     nil,
			expected: "[out:json];(node(39.86747186,-75.28030675,40.13793484,-74.95574856););out;",
		},
		{
			name:     "single tag",
			tags:     map[string]string{"station": "subway"},
			expected: "[out:json];(node[station=subway](39.86747186,-75.28030675,40.13793484,-74.95574856););out;",
		},
		{
			name:     "tags are sorted",
			tags:     map[string]string{"station": "subway", "operator": "SEPTA", "name": "City Hall"},
			expected: "[out:json];(node[name=City Hall][operator=SEPTA][station=subway](39.86747186,-75.28030675,40.13793484,-74.95574856););out;",
		},
		{
			name:     "values are not escaped",
			tags:     map[string]string{"name": "a]b"},
			expected: "[out:json];(node[name=a]b](39.86747186,-75.28030675,40.13793484,-74.95574856););out;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildNodeQuery(philadelphia, tt.tags); got != tt.expected {
				t.Errorf("BuildNodeQuery() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestNodeQueryWithFilters(t *testing.T) {
	filters, err := ParseWhere("station", "station!=subway")
	if err != nil {
		t.Fatalf("ParseWhere: %v", err)
	}

	got := NodeQuery(geo.NewBoundingBox(0, 0, 1, 1), map[string]string{"railway": "station"}, filters, 0)
	expected := `[out:json];(node[railway=station]["station"]["station"!="subway"](0,0,1,1););out;`
	if got != expected {
		t.Errorf("NodeQuery() = %s, want %s", got, expected)
	}
}
