package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var philadelphia = NewBoundingBox(-75.28030675, 39.86747186, -74.95574856, 40.13793484)

func TestBoundingBoxJSON(t *testing.T) {
	data, err := json.Marshal(philadelphia)
	require.NoError(t, err)
	assert.JSONEq(t, `{"minLon":-75.28030675,"minLat":39.86747186,"maxLon":-74.95574856,"maxLat":40.13793484}`, string(data))

	var back BoundingBox
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, philadelphia, back)
}

func TestParseBoundingBox(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BoundingBox
		wantErr bool
	}{
		{name: "philadelphia", input: "-75.28030675,39.86747186,-74.95574856,40.13793484", want: philadelphia},
		{name: "spaces", input: " 1, 2 ,3,4 ", want: NewBoundingBox(1, 2, 3, 4)},
		{name: "too few", input: "1,2,3", wantErr: true},
		{name: "not a number", input: "1,2,x,4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBoundingBox(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBoundingBoxStringRoundTrip(t *testing.T) {
	got, err := ParseBoundingBox(philadelphia.String())
	require.NoError(t, err)
	assert.Equal(t, philadelphia, got)
}

func TestBoundingBoxValidate(t *testing.T) {
	assert.NoError(t, philadelphia.Validate())
	assert.Error(t, NewBoundingBox(0, 91, 1, 92).Validate())
	assert.Error(t, NewBoundingBox(-181, 0, 1, 1).Validate())
	assert.Error(t, NewBoundingBox(2, 0, 1, 1).Validate())
	assert.Error(t, NewBoundingBox(0, 2, 1, 1).Validate())
}

func TestBoundingBoxBound(t *testing.T) {
	b := philadelphia.Bound()
	assert.Equal(t, philadelphia.MinLon, b.Min.Lon())
	assert.Equal(t, philadelphia.MaxLat, b.Max.Lat())
	assert.Equal(t, philadelphia, FromBound(b))
	assert.True(t, philadelphia.Contains(-75.1, 40.0))
	assert.False(t, philadelphia.Contains(-73.9, 40.7))
}
