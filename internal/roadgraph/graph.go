// Package roadgraph builds, persists and loads the routable road network.
//
// A Graph is an arena: nodes and edges live in contiguous arrays addressed by
// int32 indices, with outgoing edges stored in compressed sparse row form. Once
// constructed a Graph is never mutated, so it is shared between goroutines
// without locking.
package roadgraph

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
)

var (
	// ErrNetworkUnavailable is returned when map data cannot be fetched or opened.
	ErrNetworkUnavailable = errors.New("map data source unavailable")
	// ErrEmptyRegion is returned when a bounding box holds no routable nodes or edges.
	ErrEmptyRegion = errors.New("no routable network in region")
	// ErrCorruptGraphFile is returned by Load for unreadable or inconsistent artifacts.
	ErrCorruptGraphFile = errors.New("corrupt graph file")
)

// Graph is a directed road network.
type Graph struct {
	NetworkType NetworkType
	Bound       orb.Bound

	// Per node, ordered by OSM id for built graphs.
	OSMID []int64
	Lon   []float64
	Lat   []float64

	// FirstOut[u]..FirstOut[u+1] index the edges leaving u.
	FirstOut []int32
	Head     []int32
	// Length is the edge length in metres.
	Length []float64

	// Component holds the weak component label of each node. It is derived from
	// the edges and rebuilt on Load rather than read from the artifact.
	Component []int32
}

// Node is an input vertex for NewGraph.
type Node struct {
	OSMID int64
	Point orb.Point
}

// Edge is a directed input edge for NewGraph. From and To index the node slice.
type Edge struct {
	From   int32
	To     int32
	Length float64
}

// NewGraph packs nodes and edges into a Graph. Node order is kept as given; edges
// are grouped by tail and, within a tail, ordered by head then length.
func NewGraph(nodes []Node, edges []Edge, networkType NetworkType) (*Graph, error) {
	if len(nodes) == 0 || len(edges) == 0 {
		return nil, fmt.Errorf("%d nodes, %d edges: %w", len(nodes), len(edges), ErrEmptyRegion)
	}

	n := len(nodes)
	g := &Graph{
		NetworkType: networkType,
		OSMID:       make([]int64, n),
		Lon:         make([]float64, n),
		Lat:         make([]float64, n),
		FirstOut:    make([]int32, n+1),
		Head:        make([]int32, len(edges)),
		Length:      make([]float64, len(edges)),
	}

	bound := orb.Bound{Min: nodes[0].Point, Max: nodes[0].Point}
	for i, nd := range nodes {
		g.OSMID[i] = nd.OSMID
		g.Lon[i] = nd.Point.Lon()
		g.Lat[i] = nd.Point.Lat()
		bound = bound.Extend(nd.Point)
	}
	g.Bound = bound

	for _, e := range edges {
		if e.From < 0 || int(e.From) >= n || e.To < 0 || int(e.To) >= n {
			return nil, fmt.Errorf("edge %d->%d references a node outside [0, %d)", e.From, e.To, n)
		}
		if e.Length < 0 {
			return nil, fmt.Errorf("edge %d->%d has negative length %f", e.From, e.To, e.Length)
		}
		g.FirstOut[e.From+1]++
	}
	for u := 0; u < n; u++ {
		g.FirstOut[u+1] += g.FirstOut[u]
	}

	next := make([]int32, n)
	copy(next, g.FirstOut[:n])
	for _, e := range edges {
		pos := next[e.From]
		g.Head[pos] = e.To
		g.Length[pos] = e.Length
		next[e.From]++
	}

	for u := 0; u < n; u++ {
		sortEdgeRange(g.Head, g.Length, int(g.FirstOut[u]), int(g.FirstOut[u+1]))
	}

	g.Component = weakComponents(g)

	return g, nil
}

// sortEdgeRange orders one adjacency list; lists are short so insertion sort is enough.
func sortEdgeRange(head []int32, length []float64, lo, hi int) {
	for i := lo + 1; i < hi; i++ {
		h, l := head[i], length[i]
		j := i - 1
		for j >= lo && (head[j] > h || (head[j] == h && length[j] > l)) {
			head[j+1], length[j+1] = head[j], length[j]
			j--
		}
		head[j+1], length[j+1] = h, l
	}
}

func (g *Graph) NumNodes() int { return len(g.OSMID) }

func (g *Graph) NumEdges() int { return len(g.Head) }

// Point returns the coordinate of node i in (lon, lat) order.
func (g *Graph) Point(i int32) orb.Point {
	return orb.Point{g.Lon[i], g.Lat[i]}
}

// EdgesFrom returns the half-open edge index range leaving u.
func (g *Graph) EdgesFrom(u int32) (start, end int32) {
	return g.FirstOut[u], g.FirstOut[u+1]
}

// Connected reports whether a and b share a weak component. When it returns
// false no path exists in either direction.
func (g *Graph) Connected(a, b int32) bool {
	return g.Component[a] == g.Component[b]
}

// ComponentCount returns the number of weak components.
func (g *Graph) ComponentCount() int {
	highest := int32(-1)
	for _, c := range g.Component {
		if c > highest {
			highest = c
		}
	}
	return int(highest + 1)
}

// Validate checks the array invariants a loaded or hand-built graph must satisfy.
func (g *Graph) Validate() error {
	n := len(g.OSMID)
	if n == 0 || len(g.Head) == 0 {
		return fmt.Errorf("%d nodes, %d edges: %w", n, len(g.Head), ErrEmptyRegion)
	}
	if len(g.Lon) != n || len(g.Lat) != n {
		return errors.New("node arrays differ in length")
	}
	if len(g.FirstOut) != n+1 {
		return fmt.Errorf("first-out array has %d entries, want %d", len(g.FirstOut), n+1)
	}
	if len(g.Length) != len(g.Head) {
		return errors.New("edge arrays differ in length")
	}
	if g.FirstOut[0] != 0 || int(g.FirstOut[n]) != len(g.Head) {
		return errors.New("first-out array does not span the edge arrays")
	}
	for u := 0; u < n; u++ {
		if g.FirstOut[u] > g.FirstOut[u+1] {
			return fmt.Errorf("first-out array decreases at node %d", u)
		}
	}
	for _, h := range g.Head {
		if h < 0 || int(h) >= n {
			return fmt.Errorf("edge head %d outside [0, %d)", h, n)
		}
	}
	return nil
}

// LogValue summarises the graph for structured logs.
func (g *Graph) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("network_type", string(g.NetworkType)),
		slog.Int("nodes", g.NumNodes()),
		slog.Int("edges", g.NumEdges()),
		slog.Int("components", g.ComponentCount()),
	)
}
