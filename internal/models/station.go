package models

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Station is a bike-share docking station.
type Station struct {
	ID         int64
	Coordinate orb.Point
}

// PairKey identifies an unordered pair of stations. Low is never greater than High.
type PairKey struct {
	Low  int64
	High int64
}

// NewPairKey canonicalizes a station pair so that (a, b) and (b, a) share a key.
func NewPairKey(a, b int64) PairKey {
	if a <= b {
		return PairKey{Low: a, High: b}
	}
	return PairKey{Low: b, High: a}
}

// String renders the key the same way the ids column stores it, e.g. "(12, 40)".
func (k PairKey) String() string {
	return fmt.Sprintf("(%d, %d)", k.Low, k.High)
}

// ParsePairKey reads a key written by String.
func ParsePairKey(s string) (PairKey, error) {
	var a, b int64
	if _, err := fmt.Sscanf(s, "(%d, %d)", &a, &b); err != nil {
		return PairKey{}, fmt.Errorf("invalid pair key %q: %w", s, err)
	}
	return NewPairKey(a, b), nil
}

// PairCount is the number of trips between a departure and a return station.
type PairCount struct {
	DepartureStationID int64
	ReturnStationID    int64
	Count              int64
	Departure          orb.Point
	Return             orb.Point
}

func (p PairCount) Key() PairKey {
	return NewPairKey(p.DepartureStationID, p.ReturnStationID)
}

// JourneyRoute is a PairCount together with the route geometry of its canonical pair.
// Geometry is nil when no path was found.
type JourneyRoute struct {
	PairCount
	Key      PairKey
	Geometry orb.Geometry
}

// GroupedCount is a trip count for a station pair within one time bucket.
type GroupedCount struct {
	DepartureStationID int64
	ReturnStationID    int64
	Time               string
	Count              int64
}

func (g GroupedCount) Key() PairKey {
	return NewPairKey(g.DepartureStationID, g.ReturnStationID)
}

// FlowRecord is a GroupedCount joined with the route line of its station pair.
type FlowRecord struct {
	GroupedCount
	Route orb.LineString
}

// NetFlow summarises departures and returns at a station within one time bucket.
type NetFlow struct {
	StationID  int64
	Time       string
	Departures int64
	Returns    int64
	// NetFlow is returns - departures.
	NetFlow int64
	// LogNetFlow is NetFlow on a signed log2 scale.
	LogNetFlow float64
	Volume     int64
	Coordinate orb.Point
}
