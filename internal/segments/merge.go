package segments

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"flowmap.citybikes.dev/internal/models"
)

// DefaultTolerance is the Douglas-Peucker threshold in degrees, about 5 m.
const DefaultTolerance = 0.00007

// Feature is one render-ready geometry: all segments sharing a weight, merged and
// simplified. Value is the weight on the signed log2 display scale.
type Feature struct {
	Count    int64
	Value    float64
	Geometry orb.Geometry
}

// MergeAndSimplify groups segments by weight, merges each group into maximal
// lines and simplifies them with tolerance. Features are ordered by ascending
// weight.
func MergeAndSimplify(ws []WeightedSegment, tolerance float64) []Feature {
	counts, groups := groupByCount(ws)
	dp := simplify.DouglasPeucker(tolerance)

	out := make([]Feature, 0, len(counts))
	for _, c := range counts {
		lines := lineMerge(groups[c])
		if len(lines) == 0 {
			continue
		}

		var geom orb.Geometry
		if len(lines) == 1 {
			geom = lines[0]
		} else {
			geom = orb.MultiLineString(lines)
		}
		if tolerance > 0 {
			geom = dp.Simplify(geom)
		}

		out = append(out, Feature{Count: c, Value: SignedLog2(float64(c)), Geometry: geom})
	}
	return out
}

// Domain returns the smallest and largest display values, the colour scale range
// expected by the renderer. It is (0, 0) for no features.
func Domain(features []Feature) (lo, hi float64) {
	for i, f := range features {
		if i == 0 || f.Value < lo {
			lo = f.Value
		}
		if i == 0 || f.Value > hi {
			hi = f.Value
		}
	}
	return lo, hi
}

// lineMerge joins segments into the longest lines possible without passing
// through a vertex shared by more or fewer than two segments. Open chains start
// at such vertices; what remains afterwards are closed loops.
func lineMerge(segs []models.Segment) []orb.LineString {
	incident := make(map[models.CoordinatePoint][]int)
	var vertexOrder []models.CoordinatePoint
	for i, s := range segs {
		for _, v := range [2]models.CoordinatePoint{s.A, s.B} {
			if _, ok := incident[v]; !ok {
				vertexOrder = append(vertexOrder, v)
			}
			incident[v] = append(incident[v], i)
		}
	}

	used := make([]bool, len(segs))

	walk := func(start models.CoordinatePoint, first int) orb.LineString {
		line := orb.LineString{start.Orb()}
		at, seg := start, first
		for {
			used[seg] = true
			s := segs[seg]
			next := s.A
			if next == at {
				next = s.B
			}
			line = append(line, next.Orb())
			at = next

			if len(incident[at]) != 2 {
				return line
			}
			seg = -1
			for _, cand := range incident[at] {
				if !used[cand] {
					seg = cand
				}
			}
			if seg < 0 {
				return line
			}
		}
	}

	var out []orb.LineString
	for _, v := range vertexOrder {
		if len(incident[v]) == 2 {
			continue
		}
		for _, i := range incident[v] {
			if !used[i] {
				out = append(out, walk(v, i))
			}
		}
	}
	for i, s := range segs {
		if !used[i] {
			out = append(out, walk(s.A, i))
		}
	}
	return out
}
