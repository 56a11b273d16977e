package layers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmap.citybikes.dev/internal/models"
)

var (
	pA = orb.Point{24.9400, 60.1700}
	pB = orb.Point{24.9410, 60.1700}
	pC = orb.Point{24.9420, 60.1700}
	pD = orb.Point{24.9420, 60.1710}
)

func flow(dep, ret int64, time string, count int64, route orb.LineString) models.FlowRecord {
	return models.FlowRecord{
		GroupedCount: models.GroupedCount{DepartureStationID: dep, ReturnStationID: ret, Time: time, Count: count},
		Route:        route,
	}
}

func sampleRecords() []models.FlowRecord {
	return []models.FlowRecord{
		flow(1, 2, "08:00:00", 3, orb.LineString{pA, pB, pC}),
		flow(1, 3, "08:00:00", 4, orb.LineString{pA, pB, pD}),
		flow(2, 1, "08:00:00", 9, orb.LineString{pC, pB, pA}),
		flow(1, 2, "16:00:00", 5, orb.LineString{pA, pB, pC}),
	}
}

func TestBuild(t *testing.T) {
	stations := map[int64]orb.Point{1: pA}
	def := Definition{Name: "station_one", Stations: []int64{1}, Times: MorningTimes}

	l := Build(def, sampleRecords(), stations, 0, models.DefaultPrecision)

	// A-B carries 7, B-C 3, B-D 4
	require.Len(t, l.Features, 3)
	assert.Equal(t, []int64{3, 4, 7}, []int64{l.Features[0].Count, l.Features[1].Count, l.Features[2].Count})
	assert.Equal(t, [2]float64{2, 3}, l.Domain())
	require.NotNil(t, l.Marker)
	assert.Equal(t, pA, *l.Marker)

	fc := l.FeatureCollection()
	require.Len(t, fc.Features, 4)
	assert.Equal(t, int64(3), fc.Features[0].Properties[PropCount])
	assert.Equal(t, 2.0, fc.Features[0].Properties[PropWeight])
	assert.Equal(t, int64(1), fc.Features[3].Properties[PropStation])
	assert.Equal(t, []float64{2, 3}, fc.ExtraMembers[MemberDomain])
	assert.Equal(t, "station_one", fc.ExtraMembers[MemberName])
}

func TestBuildGroupWithoutMarker(t *testing.T) {
	def := Definition{Name: "all_day", Stations: []int64{1, 2}}

	l := Build(def, sampleRecords(), map[int64]orb.Point{1: pA}, 0, models.DefaultPrecision)

	assert.Nil(t, l.Marker)
	// A-B: 3+4+9+5, B-C: 3+9+5, B-D: 4
	counts := make([]int64, len(l.Features))
	for i, f := range l.Features {
		counts[i] = f.Count
	}
	assert.Equal(t, []int64{4, 17, 21}, counts)
}

func TestBuildPrecision(t *testing.T) {
	records := []models.FlowRecord{
		flow(1, 2, "08:00:00", 2, orb.LineString{{24.940010, 60.170010}, {24.941010, 60.170010}}),
		flow(1, 3, "08:00:00", 5, orb.LineString{{24.940040, 60.170040}, {24.941040, 60.170040}}),
	}
	def := Definition{Name: "close_routes", Stations: []int64{1}}

	fine := Build(def, records, nil, 0, 6)
	require.Len(t, fine.Features, 2)
	assert.Equal(t, int64(2), fine.Features[0].Count)
	assert.Equal(t, int64(5), fine.Features[1].Count)

	coarse := Build(def, records, nil, 0, 4)
	require.Len(t, coarse.Features, 1)
	assert.Equal(t, int64(7), coarse.Features[0].Count)
}

func TestBuildEmptySelection(t *testing.T) {
	l := Build(Definition{Name: "nobody", Stations: []int64{99}}, sampleRecords(), nil, 0, models.DefaultPrecision)

	assert.Empty(t, l.Features)
	assert.Equal(t, [2]float64{0, 0}, l.Domain())
	assert.Empty(t, l.FeatureCollection().Features)
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	def := Definition{Name: "station_one", Stations: []int64{1}, Times: MorningTimes}
	l := Build(def, sampleRecords(), map[int64]orb.Point{1: pA}, 0, models.DefaultPrecision)

	info, err := l.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, models.LayerInfo{
		Name:         "station_one",
		FeatureCount: 3,
		Domain:       [2]float64{2, 3},
		Path:         filepath.Join(dir, "station_one.geojson"),
	}, info)

	fc, err := Read(info.Path)
	require.NoError(t, err)
	require.Len(t, fc.Features, 4)
	assert.Equal(t, 3.0, fc.Features[2].Properties.MustFloat64(PropWeight))
	assert.Equal(t, []interface{}{2.0, 3.0}, fc.ExtraMembers[MemberDomain])

	t.Run("filter by weight keeps markers", func(t *testing.T) {
		filtered := FilterByWeight(fc, 2.5)
		require.Len(t, filtered.Features, 2)
		assert.Equal(t, 3.0, filtered.Features[0].Properties.MustFloat64(PropWeight))
		assert.Equal(t, orb.Point(pA), filtered.Features[1].Geometry)
		assert.Equal(t, fc.ExtraMembers, filtered.ExtraMembers)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(dir, "nope.geojson"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestFilterByWeightOnEmptyCollection(t *testing.T) {
	out := FilterByWeight(geojson.NewFeatureCollection(), 1)
	assert.Empty(t, out.Features)
}
