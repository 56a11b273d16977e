package models

import (
	"math"

	"github.com/paulmach/orb"
)

// DefaultPrecision is the number of decimals kept on segment coordinates before
// they are compared. Four decimals is roughly 10 m at city latitudes.
const DefaultPrecision = 4

// Segment is an undirected two-point piece of a route.
// A and B are ordered so that (p, q) and (q, p) produce the same Segment.
type Segment struct {
	A CoordinatePoint
	B CoordinatePoint
}

type CoordinatePoint struct {
	Lat float64
	Lon float64
}

// NewSegment returns the canonical segment between a and b.
func NewSegment(a, b CoordinatePoint) Segment {
	if ComparePoints(a, b) <= 0 {
		return Segment{A: a, B: b}
	}
	return Segment{A: b, B: a}
}

func ComparePoints(a, b CoordinatePoint) int {
	if a.Lat < b.Lat {
		return -1
	}
	if a.Lat > b.Lat {
		return 1
	}
	if a.Lon < b.Lon {
		return -1
	}
	if a.Lon > b.Lon {
		return 1
	}
	return 0
}

// PointFromOrb converts an orb point (lon, lat) and rounds it to precision decimals.
// A negative precision keeps the coordinate untouched.
func PointFromOrb(p orb.Point, precision int) CoordinatePoint {
	return CoordinatePoint{
		Lat: RoundCoordinate(p.Lat(), precision),
		Lon: RoundCoordinate(p.Lon(), precision),
	}
}

// Orb returns the point in orb's (lon, lat) order.
func (c CoordinatePoint) Orb() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// LineString returns the segment as a two-point line from A to B.
func (s Segment) LineString() orb.LineString {
	return orb.LineString{s.A.Orb(), s.B.Orb()}
}

// IsDegenerate reports whether both ends collapse onto the same point.
func (s Segment) IsDegenerate() bool {
	return s.A == s.B
}

func RoundCoordinate(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}
