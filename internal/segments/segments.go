// Package segments aggregates route traffic onto the individual road segments it
// travels over and prepares the result for rendering.
package segments

import (
	"math"
	"sort"

	"github.com/paulmach/orb"

	"flowmap.citybikes.dev/internal/models"
)

// WeightedSegment is a canonical segment with the summed trip count over it.
type WeightedSegment struct {
	Segment models.Segment
	Count   int64
}

// Filter selects flow records by departure station and time bucket. An empty
// set does not filter.
type Filter struct {
	Stations map[int64]struct{}
	Times    map[string]struct{}
}

func NewFilter(stations []int64, times []string) Filter {
	f := Filter{}
	if len(stations) > 0 {
		f.Stations = make(map[int64]struct{}, len(stations))
		for _, s := range stations {
			f.Stations[s] = struct{}{}
		}
	}
	if len(times) > 0 {
		f.Times = make(map[string]struct{}, len(times))
		for _, t := range times {
			f.Times[t] = struct{}{}
		}
	}
	return f
}

func (f Filter) Match(rec models.GroupedCount) bool {
	if len(f.Stations) > 0 {
		if _, ok := f.Stations[rec.DepartureStationID]; !ok {
			return false
		}
	}
	if len(f.Times) > 0 {
		if _, ok := f.Times[rec.Time]; !ok {
			return false
		}
	}
	return true
}

// Join attaches the route line of each grouped count's station pair. Counts
// whose pair has no line are dropped.
func Join(grouped []models.GroupedCount, lines map[models.PairKey]orb.LineString) []models.FlowRecord {
	out := make([]models.FlowRecord, 0, len(grouped))
	for _, g := range grouped {
		ls, ok := lines[g.Key()]
		if !ok || len(ls) < 2 {
			continue
		}
		out = append(out, models.FlowRecord{GroupedCount: g, Route: ls})
	}
	return out
}

// Explode splits a line into its consecutive two point pieces, in traversal order.
func Explode(ls orb.LineString) []orb.LineString {
	if len(ls) < 2 {
		return nil
	}
	out := make([]orb.LineString, len(ls)-1)
	for i := 0; i+1 < len(ls); i++ {
		out[i] = orb.LineString{ls[i], ls[i+1]}
	}
	return out
}

// Aggregate sums the counts of the records matching f onto every segment their
// routes cross. Segments are identified independent of travel direction after
// rounding to precision decimals; segments that collapse to a point are
// dropped. Output is in first seen order.
func Aggregate(records []models.FlowRecord, f Filter, precision int) []WeightedSegment {
	pos := make(map[models.Segment]int)
	var out []WeightedSegment

	for _, rec := range records {
		if !f.Match(rec.GroupedCount) || len(rec.Route) < 2 {
			continue
		}
		for _, piece := range Explode(rec.Route) {
			seg := models.NewSegment(
				models.PointFromOrb(piece[0], precision),
				models.PointFromOrb(piece[1], precision))
			if seg.IsDegenerate() {
				continue
			}
			if i, ok := pos[seg]; ok {
				out[i].Count += rec.Count
				continue
			}
			pos[seg] = len(out)
			out = append(out, WeightedSegment{Segment: seg, Count: rec.Count})
		}
	}

	return out
}

// SignedLog2 compresses x onto a log2 scale keeping its sign: sign(x)*log2(|x|+1).
func SignedLog2(x float64) float64 {
	return math.Copysign(math.Log2(math.Abs(x)+1), x)
}

// groupByCount buckets segments by weight, ascending, keeping first seen order
// within a bucket.
func groupByCount(ws []WeightedSegment) ([]int64, map[int64][]models.Segment) {
	groups := make(map[int64][]models.Segment)
	for _, w := range ws {
		groups[w.Count] = append(groups[w.Count], w.Segment)
	}
	counts := make([]int64, 0, len(groups))
	for c := range groups {
		counts = append(counts, c)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i] < counts[j] })
	return counts, groups
}
