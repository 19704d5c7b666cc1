package nodes_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/osmnodes/pkg/core"
	"github.com/NERVsystems/osmnodes/pkg/features"
	"github.com/NERVsystems/osmnodes/pkg/geo"
	"github.com/NERVsystems/osmnodes/pkg/monitoring"
	"github.com/NERVsystems/osmnodes/pkg/nodes"
	"github.com/NERVsystems/osmnodes/pkg/osm"
	"github.com/NERVsystems/osmnodes/pkg/osm/osmtest"
)

var philadelphia = geo.NewBoundingBox(
	osmtest.Philadelphia[0], osmtest.Philadelphia[1],
	osmtest.Philadelphia[2], osmtest.Philadelphia[3],
)

func newFetcher(t *testing.T, opts ...nodes.Option) (*nodes.Fetcher, *osmtest.Server) {
	t.Helper()
	srv := osmtest.NewServer(osmtest.PhiladelphiaStations()...)
	t.Cleanup(srv.Close)

	client := osm.NewClient(osm.WithEndpoint(srv.URL), osm.WithRateLimit(0, 0))
	return nodes.New(client, opts...), srv
}

func TestGetPhiladelphiaSubway(t *testing.T) {
	f, _ := newFetcher(t)

	tbl, err := f.Get(context.Background(), philadelphia, map[string]string{"station": "subway"})
	require.NoError(t, err)

	assert.Equal(t, []int64{1001, 1002, 1005}, tbl.IDs())
	for _, v := range tbl.Column("station") {
		assert.Equal(t, features.StringValue("subway"), v)
	}
	assert.Equal(t, "EPSG:4326", tbl.CRS())
}

func TestGetImpossibleFilterIsNoData(t *testing.T) {
	f, _ := newFetcher(t)

	tbl, err := f.Get(context.Background(), philadelphia, map[string]string{
		"station": "subway",
		"shop":    "dry_cleaning",
	})
	require.ErrorIs(t, err, core.ErrNoData)
	assert.Nil(t, tbl)

	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "[out:json];(node[shop=dry_cleaning][station=subway](39.86747186,-75.28030675,40.13793484,-74.95574856););out;", cerr.Query)
}

func TestGetEveryRowSatisfiesTags(t *testing.T) {
	f, _ := newFetcher(t)

	tags := map[string]string{"railway": "station", "station": "subway"}
	tbl, err := f.Get(context.Background(), philadelphia, tags)
	require.NoError(t, err)

	for _, row := range tbl.Rows() {
		for k, want := range tags {
			got, ok := row.Get(k)
			require.True(t, ok, "row %d lacks %q", row.ID, k)
			assert.Equal(t, want, got.String())
		}
	}
}

func TestGetEmptyTagsReturnsEverythingInBox(t *testing.T) {
	f, _ := newFetcher(t)

	tbl, err := f.Get(context.Background(), philadelphia, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002, 1003, 1004, 1005}, tbl.IDs())
}

func TestDenylistedColumnsNeverAppear(t *testing.T) {
	f, _ := newFetcher(t)

	tbl, err := f.Get(context.Background(), philadelphia, nil)
	require.NoError(t, err)

	for _, tag := range features.DefaultIgnoredTags() {
		assert.False(t, tbl.HasColumn(tag), "column %q present", tag)
		for _, row := range tbl.Rows() {
			_, ok := row.Attrs[tag]
			assert.False(t, ok, "row %d has %q", row.ID, tag)
		}
	}
}

func TestCustomMapper(t *testing.T) {
	f, _ := newFetcher(t, nodes.WithMapper(features.NewMapper("name")))

	tbl, err := f.Get(context.Background(), philadelphia, map[string]string{"station": "train"})
	require.NoError(t, err)
	assert.False(t, tbl.HasColumn("name"))
	assert.True(t, tbl.HasColumn("source:ref"))
}

func TestGeometryRoundTrip(t *testing.T) {
	f, _ := newFetcher(t)

	tbl, err := f.Get(context.Background(), philadelphia, nil)
	require.NoError(t, err)

	for i, row := range tbl.Rows() {
		g := tbl.Geometry(i)
		assert.Equal(t, row.Lon, g.X())
		assert.Equal(t, row.Lat, g.Y())
	}
}

func TestTagValueTypesSurvive(t *testing.T) {
	f, _ := newFetcher(t)

	tbl, err := f.Get(context.Background(), philadelphia, nil)
	require.NoError(t, err)

	row, ok := tbl.Lookup(1003)
	require.True(t, ok)
	assert.Equal(t, features.NumberValue(6), row.Attrs["platforms"])

	row, ok = tbl.Lookup(1005)
	require.True(t, ok)
	assert.Equal(t, features.BoolValue(true), row.Attrs["covered"])
}

func TestGetWhere(t *testing.T) {
	tests := []struct {
		name  string
		where []string
		want  []int64
	}{
		{"single equality", []string{"station=subway"}, []int64{1001, 1002, 1005}},
		{"conjunction", []string{"station=subway", "wheelchair=yes"}, []int64{1002}},
		{"not equal", []string{"railway", "station!=subway"}, []int64{1003}},
		{"regex", []string{"name~th Street$"}, []int64{1002, 1003}},
		{"absent", []string{"!railway"}, []int64{1004}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := newFetcher(t)
			tbl, err := f.GetWhere(context.Background(), philadelphia, tt.where...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tbl.IDs())
		})
	}
}

func TestGetWhereImpossibleIsNoData(t *testing.T) {
	f, _ := newFetcher(t)

	_, err := f.GetWhere(context.Background(), philadelphia, "station=subway", "shop=dry_cleaning")
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestMalformedWhereFailsBeforeRequest(t *testing.T) {
	f, srv := newFetcher(t)

	_, err := f.GetWhere(context.Background(), philadelphia, "subway$station")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Empty(t, srv.Requests())
}

func TestFetchCombinesTagsAndWhere(t *testing.T) {
	f, srv := newFetcher(t, nodes.WithServerTimeout(25))

	tbl, err := f.Fetch(context.Background(), nodes.Request{
		BBox:  philadelphia,
		Tags:  map[string]string{"railway": "station"},
		Where: []string{"station!=train"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, 1002, 1005}, tbl.IDs())

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Query, "[timeout:25]")
	assert.Contains(t, reqs[0].Query, `[railway=station]["station"!="train"]`)
}

func TestMalformedTagSurfacesAsHTTPError(t *testing.T) {
	f, _ := newFetcher(t)

	_, err := f.Get(context.Background(), philadelphia, map[string]string{"bad key": "x"})
	require.ErrorIs(t, err, core.ErrHTTP)

	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusBadRequest, cerr.Status)
}

func TestGarbageBodySurfacesAsParseError(t *testing.T) {
	f, srv := newFetcher(t)
	srv.Override = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>runtime error</html>")
	}

	_, err := f.Get(context.Background(), philadelphia, nil)
	assert.ErrorIs(t, err, core.ErrParse)
}

func TestAbortedQueryIsNotNoDataOrPartial(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "timeout",
			body: `{"elements":[],"remark":"runtime error: Query timed out in \"query\" at line 1 after 25 seconds."}`,
		},
		{
			name: "out of memory",
			body: `{"elements":[{"type":"node","id":1001,"lat":39.9524,"lon":-75.1636,"tags":{"station":"subway"}}],` +
				`"remark":"runtime error: Query run out of memory using about 2048 MB of RAM."}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFetcher(t)
			srv.Override = func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}

			tbl, err := f.Get(context.Background(), philadelphia, map[string]string{"station": "subway"})
			require.ErrorIs(t, err, core.ErrHTTP)
			assert.NotErrorIs(t, err, core.ErrNoData)
			assert.Nil(t, tbl)

			var cerr *core.Error
			require.ErrorAs(t, err, &cerr)
			assert.Contains(t, cerr.Query, "[station=subway]")
		})
	}
}

type stubQuerier struct {
	resp *osm.Response
	err  error
}

func (s stubQuerier) Query(context.Context, string) (*osm.Response, error) {
	return s.resp, s.err
}

func TestNonNodeElementsAreSkipped(t *testing.T) {
	f := nodes.New(stubQuerier{resp: &osm.Response{Elements: []osm.Element{
		{Type: "way", ID: 1},
		{Type: "node", ID: 2, Lat: 1, Lon: 2},
		{Type: "relation", ID: 3},
	}}})

	tbl, err := f.Get(context.Background(), philadelphia, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, tbl.IDs())

	f = nodes.New(stubQuerier{resp: &osm.Response{Elements: []osm.Element{{Type: "way", ID: 1}}}})
	_, err = f.Get(context.Background(), philadelphia, nil)
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestTransportErrorPropagatesUnchanged(t *testing.T) {
	want := core.NewError(core.CodeTransport, "connection refused")
	f := nodes.New(stubQuerier{err: want})

	_, err := f.Get(context.Background(), philadelphia, nil)
	assert.Same(t, want, err)
}

func TestCompositeTagValueIsParseError(t *testing.T) {
	f := nodes.New(stubQuerier{resp: &osm.Response{Elements: []osm.Element{
		{Type: "node", ID: 9, Tags: map[string]any{"nested": map[string]any{"a": "b"}}},
	}}})

	_, err := f.Get(context.Background(), philadelphia, nil)
	require.ErrorIs(t, err, core.ErrParse)

	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.NotEmpty(t, cerr.Query)
}

func TestFetchRecordsMetrics(t *testing.T) {
	f, _ := newFetcher(t, nodes.WithSurface("metrics_test"))

	_, err := f.Get(context.Background(), philadelphia, map[string]string{"station": "subway"})
	require.NoError(t, err)
	_, err = f.Get(context.Background(), philadelphia, map[string]string{"station": "monorail"})
	require.Error(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(monitoring.FetchRequestsTotal.WithLabelValues("metrics_test", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(monitoring.FetchRequestsTotal.WithLabelValues("metrics_test", "no_data")))
}

func TestPackageGetRejectsNonMappingTags(t *testing.T) {
	_, err := nodes.Get(context.Background(),
		philadelphia.MinLon, philadelphia.MinLat, philadelphia.MaxLon, philadelphia.MaxLat,
		[]string{"station=subway"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}
