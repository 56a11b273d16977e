// Package routes turns router output into geometries and maps them between the
// deduplicated station pairs and the full set of pair records.
package routes

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-polyline"

	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/roadgraph"
	"flowmap.citybikes.dev/internal/router"
)

// ToGeometry maps a route onto coordinates: nil for a failed route, a Point for a
// single node path and a LineString otherwise.
func ToGeometry(res router.Result, g *roadgraph.Graph) orb.Geometry {
	if !res.Found || len(res.Nodes) == 0 {
		return nil
	}
	if len(res.Nodes) == 1 {
		return g.Point(res.Nodes[0])
	}

	ls := make(orb.LineString, len(res.Nodes))
	for i, n := range res.Nodes {
		ls[i] = g.Point(n)
	}
	return ls
}

// ToGeometries applies ToGeometry to every result.
func ToGeometries(results []router.Result, g *roadgraph.Graph) []orb.Geometry {
	out := make([]orb.Geometry, len(results))
	for i, res := range results {
		out[i] = ToGeometry(res, g)
	}
	return out
}

// DeduplicatePairs keeps the first record of every canonical station pair, in
// input order, and returns the canonical key of each input record.
func DeduplicatePairs(records []models.PairCount) ([]models.PairCount, []models.PairKey) {
	keys := make([]models.PairKey, len(records))
	seen := make(map[models.PairKey]struct{}, len(records))
	var dedup []models.PairCount

	for i, rec := range records {
		key := rec.Key()
		keys[i] = key
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		dedup = append(dedup, rec)
	}

	return dedup, keys
}

// IndexGeometries keys the geometry computed for each deduplicated record by its
// canonical pair.
func IndexGeometries(dedup []models.PairCount, geoms []orb.Geometry) (map[models.PairKey]orb.Geometry, error) {
	if len(dedup) != len(geoms) {
		return nil, fmt.Errorf("%d deduplicated records but %d geometries", len(dedup), len(geoms))
	}
	index := make(map[models.PairKey]orb.Geometry, len(dedup))
	for i, rec := range dedup {
		index[rec.Key()] = geoms[i]
	}
	return index, nil
}

// Remap returns one geometry per original record. Records sharing a key share a
// geometry; keys without one stay nil.
func Remap(index map[models.PairKey]orb.Geometry, keys []models.PairKey) []orb.Geometry {
	out := make([]orb.Geometry, len(keys))
	for i, k := range keys {
		out[i] = index[k]
	}
	return out
}

// BuildJourneyRoutes attaches the remapped geometry to every original record.
func BuildJourneyRoutes(records []models.PairCount, keys []models.PairKey, index map[models.PairKey]orb.Geometry) []models.JourneyRoute {
	geoms := Remap(index, keys)
	out := make([]models.JourneyRoute, len(records))
	for i, rec := range records {
		out[i] = models.JourneyRoute{PairCount: rec, Key: keys[i], Geometry: geoms[i]}
	}
	return out
}

// Endpoints splits the deduplicated records into departure and return coordinates.
func Endpoints(dedup []models.PairCount) (departures, returns []orb.Point) {
	departures = make([]orb.Point, len(dedup))
	returns = make([]orb.Point, len(dedup))
	for i, rec := range dedup {
		departures[i] = rec.Departure
		returns[i] = rec.Return
	}
	return departures, returns
}

// DepartureBound is the bounding box of the departure coordinates. Return
// stations are not included.
func DepartureBound(dedup []models.PairCount) (orb.Bound, error) {
	if len(dedup) == 0 {
		return orb.Bound{}, errors.New("no station pairs to bound")
	}
	b := orb.Bound{Min: dedup[0].Departure, Max: dedup[0].Departure}
	for _, rec := range dedup[1:] {
		b = b.Extend(rec.Departure)
	}
	return b, nil
}

// EncodePolyline renders a route in Google's encoded polyline format with five
// decimals. Missing geometries encode to "".
func EncodePolyline(geom orb.Geometry) string {
	var pts []orb.Point
	switch g := geom.(type) {
	case orb.Point:
		pts = []orb.Point{g}
	case orb.LineString:
		pts = g
	default:
		return ""
	}

	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.Lat(), p.Lon()}
	}
	return string(polyline.EncodeCoords(coords))
}

// DecodePolyline is the inverse of EncodePolyline for two or more points.
func DecodePolyline(s string) (orb.LineString, error) {
	if s == "" {
		return nil, nil
	}
	coords, _, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c[1], c[0]}
	}
	return ls, nil
}

// LineIndex collects one LineString per canonical pair from persisted journey
// routes, rounding coordinates to precision decimals. Point and missing
// geometries are skipped since they carry no segments.
func LineIndex(journeys []models.JourneyRoute, precision int) map[models.PairKey]orb.LineString {
	index := make(map[models.PairKey]orb.LineString)
	for _, j := range journeys {
		if _, ok := index[j.Key]; ok {
			continue
		}
		ls, ok := j.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		rounded := make(orb.LineString, len(ls))
		for i, p := range ls {
			rounded[i] = models.PointFromOrb(p, precision).Orb()
		}
		index[j.Key] = rounded
	}
	return index
}
