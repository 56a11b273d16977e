package tripdata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmap.citybikes.dev/internal/models"
)

const pairsCSV = `Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret
1,2,10,24.95,60.17,24.96,60.18
2,1,4,24.96,60.18,24.95,60.17
3,998,7,24.97,60.19,24.90,60.10
`

func TestReadPairCounts(t *testing.T) {
	t.Run("parses rows in file order", func(t *testing.T) {
		recs, err := ReadPairCounts(strings.NewReader(pairsCSV), Options{})
		require.NoError(t, err)
		require.Len(t, recs, 3)

		assert.Equal(t, models.PairCount{
			DepartureStationID: 1,
			ReturnStationID:    2,
			Count:              10,
			Departure:          orb.Point{24.95, 60.17},
			Return:             orb.Point{24.96, 60.18},
		}, recs[0])
		assert.Equal(t, int64(2), recs[1].DepartureStationID)
		assert.Equal(t, recs[0].Key(), recs[1].Key())
	})

	t.Run("drops rows above the station id limit", func(t *testing.T) {
		recs, err := ReadPairCounts(strings.NewReader(pairsCSV), Options{MaxStationID: 997})
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("accepts float formatted ids", func(t *testing.T) {
		in := "Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret\n1.0,2.0,3,24.9,60.1,24.8,60.2\n"
		recs, err := ReadPairCounts(strings.NewReader(in), Options{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), recs[0].DepartureStationID)
	})

	t.Run("handles a byte order mark", func(t *testing.T) {
		recs, err := ReadPairCounts(strings.NewReader("\ufeff"+pairsCSV), Options{})
		require.NoError(t, err)
		assert.Len(t, recs, 3)
	})
}

func TestReadPairCountsErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{
			name:   "empty file",
			input:  "",
			errMsg: "empty file",
		},
		{
			name:   "missing column",
			input:  "Departure station id,Return station id,count,x_dep,y_dep,x_ret\n",
			errMsg: `missing column "y_ret"`,
		},
		{
			name:   "non numeric count",
			input:  "Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret\n1,2,many,24.9,60.1,24.8,60.2\n",
			errMsg: `line 2 column "count"`,
		},
		{
			name:   "latitude out of range",
			input:  "Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret\n1,2,3,24.9,160.1,24.8,60.2\n",
			errMsg: "latitude",
		},
		{
			name:   "negative station id",
			input:  "Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret\n-1,2,3,24.9,60.1,24.8,60.2\n",
			errMsg: "non-negative",
		},
		{
			name:   "fractional count",
			input:  "Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret\n1,2,2.5,24.9,60.1,24.8,60.2\n",
			errMsg: "invalid integer",
		},
		{
			name:   "short row",
			input:  "Departure station id,Return station id,count,x_dep,y_dep,x_ret,y_ret\n1,2,3,24.9,60.1\n",
			errMsg: "missing value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPairCounts(strings.NewReader(tt.input), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedRecord)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReadGroupedCounts(t *testing.T) {
	in := `Departure station id,Return station id,time,count,ids
1,2,07:00:00,3,"(1, 2)"
2,1,07:00:00,5,"(1, 2)"
`
	recs, err := ReadGroupedCounts(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "07:00:00", recs[0].Time)
	assert.Equal(t, int64(5), recs[1].Count)
	assert.Equal(t, models.PairKey{Low: 1, High: 2}, recs[1].Key())

	t.Run("rejects empty time bucket", func(t *testing.T) {
		_, err := ReadGroupedCounts(strings.NewReader("Departure station id,Return station id,time,count\n1,2,,3\n"), Options{})
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})
}

func TestReadStations(t *testing.T) {
	in := `FID,ID,Nimi,x,y
1,501,Hanasaari,24.840319,60.16582
2,503,Keilalahti,24.827467,60.171524
3,501,Duplicate,0,0
`
	stations, err := ReadStations(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, stations, 2)

	idx := StationIndex(stations)
	assert.Equal(t, orb.Point{24.840319, 60.16582}, idx[501])
	assert.Equal(t, orb.Point{24.827467, 60.171524}, idx[503])
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.csv")
	require.NoError(t, os.WriteFile(path, []byte(pairsCSV), 0o600))

	recs, err := LoadPairCounts(path, Options{})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	_, err = LoadStations(filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
