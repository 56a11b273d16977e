package roadgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/osm"

	"flowmap.citybikes.dev/internal/logging"
	"flowmap.citybikes.dev/internal/utils"
)

// Scanner streams OSM objects. osmxml.Scanner and osmpbf.Scanner satisfy it.
type Scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// Source provides the raw map data for a region.
type Source interface {
	Open(ctx context.Context, bbox orb.Bound, networkType NetworkType) (Scanner, error)
}

type wayRecord struct {
	nodes    []osm.NodeID
	forward  bool
	backward bool
}

// Build reads nodes and ways from src, keeps the ways of networkType, truncates
// the network to bbox and returns the resulting graph. Nodes are ordered by OSM
// id and edge lengths are haversine metres.
func Build(ctx context.Context, src Source, bbox orb.Bound, networkType NetworkType) (*Graph, error) {
	logger := logging.FromContext(ctx).With(slog.String("component", "roadgraph"))

	filter, ok := networkFilters[networkType]
	if !ok {
		return nil, fmt.Errorf("unknown network type %q", networkType)
	}
	if err := utils.ValidateBound(bbox); err != nil {
		return nil, fmt.Errorf("invalid bbox: %w", err)
	}

	start := time.Now()
	scanner, err := src.Open(ctx, bbox, networkType)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(scanner, logger, "close_osm_scanner")

	coords := make(map[osm.NodeID]orb.Point)
	var ways []wayRecord
	scanned := 0
	for scanner.Scan() {
		scanned++
		switch o := scanner.Object().(type) {
		case *osm.Node:
			coords[o.ID] = orb.Point{o.Lon, o.Lat}
		case *osm.Way:
			if !filter.Accepts(o.Tags) || len(o.Nodes) < 2 {
				continue
			}
			fwd, bwd := onewayDirections(o.Tags, networkType)
			ids := make([]osm.NodeID, len(o.Nodes))
			for i, wn := range o.Nodes {
				ids[i] = wn.ID
			}
			ways = append(ways, wayRecord{nodes: ids, forward: fwd, backward: bwd})
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("scan map data: %w", err)
	}

	inside := func(id osm.NodeID) bool {
		p, ok := coords[id]
		return ok && bbox.Contains(p)
	}

	type rawEdge struct {
		from, to osm.NodeID
		length   float64
	}
	var raw []rawEdge
	used := make(map[osm.NodeID]struct{})
	for _, w := range ways {
		for i := 0; i+1 < len(w.nodes); i++ {
			a, b := w.nodes[i], w.nodes[i+1]
			if a == b || !inside(a) || !inside(b) {
				continue
			}
			length := geo.DistanceHaversine(coords[a], coords[b])
			if w.forward {
				raw = append(raw, rawEdge{from: a, to: b, length: length})
			}
			if w.backward {
				raw = append(raw, rawEdge{from: b, to: a, length: length})
			}
			used[a] = struct{}{}
			used[b] = struct{}{}
		}
	}

	ids := make([]osm.NodeID, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	index := make(map[osm.NodeID]int32, len(ids))
	nodes := make([]Node, len(ids))
	for i, id := range ids {
		index[id] = int32(i)
		nodes[i] = Node{OSMID: int64(id), Point: coords[id]}
	}

	edges := make([]Edge, len(raw))
	for i, e := range raw {
		edges[i] = Edge{From: index[e.from], To: index[e.to], Length: e.length}
	}

	g, err := NewGraph(nodes, edges, networkType)
	if err != nil {
		return nil, fmt.Errorf("bbox %v: %w", bbox, err)
	}

	logging.LogOperation(logger, "graph_built",
		slog.Any("graph", g),
		slog.Int("objects_scanned", scanned),
		slog.Int("ways_kept", len(ways)),
		slog.Duration("duration", time.Since(start)))

	return g, nil
}
