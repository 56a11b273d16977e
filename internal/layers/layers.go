// Package layers renders weighted segment flows as GeoJSON files for the
// external map renderer.
package layers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"flowmap.citybikes.dev/internal/models"
	"flowmap.citybikes.dev/internal/segments"
	"flowmap.citybikes.dev/internal/utils"
)

// Feature property and foreign member names read by the renderer.
const (
	PropCount   = "count"
	PropWeight  = "weight"
	PropStation = "station"
	MemberName  = "name"
	// MemberDomain is the [min, max] weight range used for the colour scale.
	MemberDomain = "domain"
)

// Layer is one rendered definition.
type Layer struct {
	Definition Definition
	Features   []segments.Feature
	// Marker is set for single-station layers whose station has a known position.
	Marker *orb.Point
}

// Build aggregates the records selected by def, with coordinates rounded to
// precision decimals, and merges them into features.
func Build(def Definition, records []models.FlowRecord, stations map[int64]orb.Point, tolerance float64, precision int) Layer {
	ws := segments.Aggregate(records, segments.NewFilter(def.Stations, def.Times), precision)
	l := Layer{
		Definition: def,
		Features:   segments.MergeAndSimplify(ws, tolerance),
	}
	if len(def.Stations) == 1 {
		if p, ok := stations[def.Stations[0]]; ok {
			l.Marker = &p
		}
	}
	return l
}

func (l Layer) Domain() [2]float64 {
	lo, hi := segments.Domain(l.Features)
	return [2]float64{lo, hi}
}

// FeatureCollection converts the layer to GeoJSON. The station marker, when
// present, is the last feature and carries no weight.
func (l Layer) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range l.Features {
		gf := geojson.NewFeature(f.Geometry)
		gf.Properties[PropCount] = f.Count
		gf.Properties[PropWeight] = f.Value
		fc.Append(gf)
	}
	if l.Marker != nil {
		marker := geojson.NewFeature(*l.Marker)
		marker.Properties[PropStation] = l.Definition.Stations[0]
		fc.Append(marker)
	}

	d := l.Domain()
	fc.ExtraMembers = geojson.Properties{
		MemberName:   l.Definition.Name,
		MemberDomain: []float64{d[0], d[1]},
	}
	return fc
}

// Write stores the layer as <dir>/<name>.geojson.
func (l Layer) Write(dir string) (models.LayerInfo, error) {
	path := filepath.Join(dir, l.Definition.Name+".geojson")

	data, err := l.FeatureCollection().MarshalJSON()
	if err != nil {
		return models.LayerInfo{}, fmt.Errorf("encode layer %s: %w", l.Definition.Name, err)
	}
	err = utils.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return models.LayerInfo{}, err
	}

	return models.LayerInfo{
		Name:         l.Definition.Name,
		FeatureCount: len(l.Features),
		Domain:       l.Domain(),
		Path:         path,
	}, nil
}

// Read loads a layer file written by Write.
func Read(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode layer %s: %w", path, err)
	}
	return fc, nil
}

// FilterByWeight returns a copy of fc without the weighted features below
// minWeight. Features without a weight, such as station markers, are kept.
func FilterByWeight(fc *geojson.FeatureCollection, minWeight float64) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	out.BBox = fc.BBox
	out.ExtraMembers = fc.ExtraMembers
	for _, f := range fc.Features {
		if w, ok := f.Properties[PropWeight].(float64); ok && w < minWeight {
			continue
		}
		out.Append(f)
	}
	return out
}
