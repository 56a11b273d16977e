package routes

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/resolver"
	"flowmap.citybikes.dev/internal/roadgraph"
	"flowmap.citybikes.dev/internal/router"
)

func pair(dep, ret, count int64) models.PairCount {
	return models.PairCount{
		DepartureStationID: dep,
		ReturnStationID:    ret,
		Count:              count,
		Departure:          orb.Point{24.9 + float64(dep)*0.01, 60.1},
		Return:             orb.Point{24.9 + float64(ret)*0.01, 60.1},
	}
}

func TestCanonicalKeyIsOrderIndependent(t *testing.T) {
	ids := []int64{0, 1, 7, 42, 541, 996}
	for _, a := range ids {
		for _, b := range ids {
			assert.Equal(t, models.NewPairKey(a, b), models.NewPairKey(b, a))
			assert.Equal(t, pair(a, b, 1).Key(), pair(b, a, 1).Key())
		}
	}
}

func TestDeduplicatePairs(t *testing.T) {
	records := []models.PairCount{
		pair(2, 1, 5),
		pair(1, 2, 9),
		pair(3, 3, 1),
		pair(1, 3, 2),
		pair(3, 1, 4),
	}

	dedup, keys := DeduplicatePairs(records)

	require.Len(t, keys, len(records))
	assert.Equal(t, []models.PairCount{records[0], records[2], records[3]}, dedup, "first occurrence wins, input order kept")
	assert.Equal(t, []models.PairKey{
		{Low: 1, High: 2}, {Low: 1, High: 2}, {Low: 3, High: 3}, {Low: 1, High: 3}, {Low: 1, High: 3},
	}, keys)
}

func TestRemap(t *testing.T) {
	records := []models.PairCount{
		pair(1, 2, 5),
		pair(2, 1, 9),
		pair(1, 3, 2),
		pair(4, 5, 1),
		pair(3, 1, 4),
	}
	dedup, keys := DeduplicatePairs(records)
	require.Len(t, dedup, 3)

	line := orb.LineString{{24.91, 60.1}, {24.92, 60.1}}
	index, err := IndexGeometries(dedup, []orb.Geometry{line, nil, orb.Point{24.94, 60.1}})
	require.NoError(t, err)

	got := Remap(index, keys)

	require.Len(t, got, len(records), "one geometry per original record")
	assert.Equal(t, line, got[0])
	assert.Equal(t, got[0], got[1], "records sharing a key share the geometry")
	assert.Nil(t, got[2], "failed routes stay nil")
	assert.Nil(t, got[4])
	assert.Equal(t, orb.Point{24.94, 60.1}, got[3])

	t.Run("unknown keys stay nil", func(t *testing.T) {
		out := Remap(index, []models.PairKey{{Low: 100, High: 200}})
		assert.Equal(t, []orb.Geometry{nil}, out)
	})

	t.Run("length mismatch is an error", func(t *testing.T) {
		_, err := IndexGeometries(dedup, nil)
		assert.Error(t, err)
	})
}

func TestBuildJourneyRoutes(t *testing.T) {
	records := []models.PairCount{pair(1, 2, 5), pair(2, 1, 9)}
	dedup, keys := DeduplicatePairs(records)
	line := orb.LineString{{24.91, 60.1}, {24.92, 60.1}}
	index, err := IndexGeometries(dedup, []orb.Geometry{line})
	require.NoError(t, err)

	journeys := BuildJourneyRoutes(records, keys, index)

	require.Len(t, journeys, 2)
	assert.Equal(t, int64(9), journeys[1].Count)
	assert.Equal(t, models.PairKey{Low: 1, High: 2}, journeys[1].Key)
	assert.Equal(t, line, journeys[1].Geometry)
}

func TestDepartureBound(t *testing.T) {
	dedup := []models.PairCount{
		{Departure: orb.Point{24.95, 60.17}, Return: orb.Point{30, 70}},
		{Departure: orb.Point{24.90, 60.20}, Return: orb.Point{10, 50}},
		{Departure: orb.Point{25.00, 60.15}},
	}

	b, err := DepartureBound(dedup)
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{24.90, 60.15}, Max: orb.Point{25.00, 60.20}}, b)

	_, err = DepartureBound(nil)
	assert.Error(t, err)
}

func TestPolyline(t *testing.T) {
	// the example from Google's polyline documentation
	line := orb.LineString{{-120.2, 38.5}, {-120.95, 40.7}, {-126.453, 43.252}}
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", EncodePolyline(line))

	decoded, err := DecodePolyline(EncodePolyline(line))
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	assert.InDelta(t, -126.453, decoded[2].Lon(), 1e-5)

	assert.Empty(t, EncodePolyline(nil))
	assert.NotEmpty(t, EncodePolyline(orb.Point{24.9, 60.1}))
}

func TestLineIndex(t *testing.T) {
	journeys := []models.JourneyRoute{
		{Key: models.PairKey{Low: 1, High: 2}, Geometry: orb.LineString{{24.941234, 60.171299}, {24.95, 60.17}}},
		{Key: models.PairKey{Low: 1, High: 2}, Geometry: orb.LineString{{0, 0}, {1, 1}}},
		{Key: models.PairKey{Low: 3, High: 3}, Geometry: orb.Point{24.9, 60.1}},
		{Key: models.PairKey{Low: 4, High: 5}},
	}

	index := LineIndex(journeys, models.DefaultPrecision)

	require.Len(t, index, 1)
	assert.Equal(t, orb.LineString{{24.9412, 60.1713}, {24.95, 60.17}}, index[models.PairKey{Low: 1, High: 2}])
}

// Three stations on a four node graph. Node 3 is isolated from the rest, so the
// pair ending at station 30 has no route.
func TestRoutingScenario(t *testing.T) {
	nodes := []roadgraph.Node{
		{OSMID: 1, Point: orb.Point{24.940, 60.170}},
		{OSMID: 2, Point: orb.Point{24.945, 60.170}},
		{OSMID: 3, Point: orb.Point{24.950, 60.170}},
		{OSMID: 4, Point: orb.Point{24.990, 60.190}},
	}
	edges := []roadgraph.Edge{
		{From: 0, To: 1, Length: 277}, {From: 1, To: 0, Length: 277},
		{From: 1, To: 2, Length: 277}, {From: 2, To: 1, Length: 277},
		{From: 3, To: 3, Length: 0},
	}
	g, err := roadgraph.NewGraph(nodes, edges, roadgraph.NetworkBike)
	require.NoError(t, err)

	stations := map[int64]orb.Point{
		10: {24.9401, 60.1701},
		20: {24.9501, 60.1699},
		30: {24.9899, 60.1901},
	}
	records := []models.PairCount{
		{DepartureStationID: 10, ReturnStationID: 20, Count: 4, Departure: stations[10], Return: stations[20]},
		{DepartureStationID: 20, ReturnStationID: 30, Count: 2, Departure: stations[20], Return: stations[30]},
	}

	dedup, keys := DeduplicatePairs(records)
	deps, rets := Endpoints(dedup)

	res, err := resolver.New(g)
	require.NoError(t, err)
	origins, err := res.NearestNodes(deps)
	require.NoError(t, err)
	destinations, err := res.NearestNodes(rets)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 2}, origins)
	assert.Equal(t, []int32{2, 3}, destinations)

	results, stats, err := (&router.Router{BatchSize: 1, Workers: 2}).ComputeRoutes(context.Background(), g, origins, destinations)
	require.NoError(t, err)
	assert.Equal(t, []router.Result{{Nodes: []int32{0, 1, 2}, Found: true}, {}}, results)
	assert.Equal(t, 1, stats.Failed)

	index, err := IndexGeometries(dedup, ToGeometries(results, g))
	require.NoError(t, err)
	journeys := BuildJourneyRoutes(records, keys, index)

	require.Len(t, journeys, 2)
	assert.Equal(t, orb.LineString{{24.940, 60.170}, {24.945, 60.170}, {24.950, 60.170}}, journeys[0].Geometry)
	assert.Nil(t, journeys[1].Geometry)
}

func TestToGeometry(t *testing.T) {
	nodes := []roadgraph.Node{{OSMID: 1, Point: orb.Point{1, 2}}, {OSMID: 2, Point: orb.Point{3, 4}}}
	g, err := roadgraph.NewGraph(nodes, []roadgraph.Edge{{From: 0, To: 1, Length: 1}}, roadgraph.NetworkBike)
	require.NoError(t, err)

	assert.Nil(t, ToGeometry(router.Result{}, g))
	assert.Equal(t, orb.Point{1, 2}, ToGeometry(router.Result{Nodes: []int32{0}, Found: true}, g))
	assert.Equal(t, orb.LineString{{1, 2}, {3, 4}}, ToGeometry(router.Result{Nodes: []int32{0, 1}, Found: true}, g))
}
