// Package netflow derives per-station arrivals minus departures from the hourly
// grouped trip counts.
package netflow

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"

	"github.com/paulmach/orb"

	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/segments"
	"flowmap.citybikes.dev/internal/utils"
)

type stationTime struct {
	station int64
	time    string
}

// Compute sums departures and returns per station and time bucket and joins the
// two. Only buckets with both departures and returns, at stations with a known
// coordinate, are reported. Rows are ordered by station id, then time.
func Compute(grouped []models.GroupedCount, stations map[int64]orb.Point) []models.NetFlow {
	departures := make(map[stationTime]int64)
	returns := make(map[stationTime]int64)
	for _, g := range grouped {
		departures[stationTime{g.DepartureStationID, g.Time}] += g.Count
		returns[stationTime{g.ReturnStationID, g.Time}] += g.Count
	}

	keys := make([]stationTime, 0, len(departures))
	for k := range departures {
		if _, ok := stations[k.station]; !ok {
			continue
		}
		if _, ok := returns[k]; !ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].station != keys[j].station {
			return keys[i].station < keys[j].station
		}
		return keys[i].time < keys[j].time
	})

	out := make([]models.NetFlow, len(keys))
	for i, k := range keys {
		dep, ret := departures[k], returns[k]
		net := ret - dep
		out[i] = models.NetFlow{
			StationID:  k.station,
			Time:       k.time,
			Departures: dep,
			Returns:    ret,
			NetFlow:    net,
			LogNetFlow: segments.SignedLog2(float64(net)),
			Volume:     dep + ret,
			Coordinate: stations[k.station],
		}
	}
	return out
}

var csvHeader = []string{"station_id", "time", "departures", "returns", "net_flow", "log_net_flow", "volume", "lon", "lat"}

// WriteCSV writes rows with a header line.
func WriteCSV(w io.Writer, rows []models.NetFlow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.StationID, 10),
			r.Time,
			strconv.FormatInt(r.Departures, 10),
			strconv.FormatInt(r.Returns, 10),
			strconv.FormatInt(r.NetFlow, 10),
			strconv.FormatFloat(r.LogNetFlow, 'f', -1, 64),
			strconv.FormatInt(r.Volume, 10),
			strconv.FormatFloat(r.Coordinate.Lon(), 'f', -1, 64),
			strconv.FormatFloat(r.Coordinate.Lat(), 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes rows to path atomically.
func WriteCSVFile(path string, rows []models.NetFlow) error {
	return utils.WriteFileAtomic(path, func(w io.Writer) error {
		return WriteCSV(w, rows)
	})
}
