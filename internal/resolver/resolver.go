// Package resolver maps station coordinates onto their nearest road graph node.
package resolver

import (
	"fmt"
	"math"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"flowmap.citybikes.dev/internal/roadgraph"
	"flowmap.citybikes.dev/internal/utils"
)

const (
	metresPerDegree = math.Pi * orb.EarthRadius / 180
	// DefaultCacheSize bounds the coordinate cache; stations repeat across pairs.
	DefaultCacheSize = 4096
)

type nodePoint struct {
	index int32
	point orb.Point
}

func (n nodePoint) Point() orb.Point { return n.point }

// Resolver answers nearest node queries against one graph. Distances are planar
// in an equirectangular projection centred on the graph, which is accurate to
// well under a metre at city scale.
type Resolver struct {
	graph  *roadgraph.Graph
	tree   *quadtree.Quadtree
	cosLat float64
	cache  gcache.Cache
}

// New indexes every node of g.
func New(g *roadgraph.Graph) (*Resolver, error) {
	return NewWithCacheSize(g, DefaultCacheSize)
}

func NewWithCacheSize(g *roadgraph.Graph, cacheSize int) (*Resolver, error) {
	if g == nil || g.NumNodes() == 0 {
		return nil, fmt.Errorf("resolver needs a non-empty graph: %w", roadgraph.ErrEmptyRegion)
	}
	if cacheSize < 1 {
		cacheSize = 1
	}

	r := &Resolver{
		graph:  g,
		cosLat: math.Cos(g.Bound.Center().Lat() * math.Pi / 180),
		cache:  gcache.New(cacheSize).LRU().Build(),
	}

	projected := orb.Bound{Min: r.project(g.Bound.Min), Max: r.project(g.Bound.Max)}
	// pad so nodes on the boundary are strictly inside after rounding
	r.tree = quadtree.New(projected.Pad(1))

	for i := 0; i < g.NumNodes(); i++ {
		idx := int32(i)
		if err := r.tree.Add(nodePoint{index: idx, point: r.project(g.Point(idx))}); err != nil {
			return nil, fmt.Errorf("index node %d: %w", i, err)
		}
	}

	return r, nil
}

func (r *Resolver) project(p orb.Point) orb.Point {
	return orb.Point{p.Lon() * metresPerDegree * r.cosLat, p.Lat() * metresPerDegree}
}

// NearestNodes returns the nearest node index for every coordinate, in input
// order. Among nodes at the same distance the lowest index wins.
func (r *Resolver) NearestNodes(coords []orb.Point) ([]int32, error) {
	out := make([]int32, len(coords))
	for i, c := range coords {
		if err := utils.ValidateCoordinate(c); err != nil || math.IsNaN(c.Lon()) || math.IsNaN(c.Lat()) {
			return nil, fmt.Errorf("coordinate %d %v: invalid", i, c)
		}

		if v, err := r.cache.Get(c); err == nil {
			out[i] = v.(int32)
			continue
		}

		idx := r.nearest(r.project(c))
		_ = r.cache.Set(c, idx)
		out[i] = idx
	}
	return out, nil
}

func (r *Resolver) nearest(q orb.Point) int32 {
	found := r.tree.Find(q)
	if found == nil {
		return -1
	}
	best := found.(nodePoint)
	bestDist := planar.DistanceSquared(best.point, q)

	// the tree returns whichever of several equidistant nodes it visits first;
	// rescan the disc around q to make the choice depend on node order only
	d := math.Sqrt(bestDist)
	window := orb.Bound{Min: orb.Point{q[0] - d, q[1] - d}, Max: orb.Point{q[0] + d, q[1] + d}}.Pad(1e-6)
	for _, p := range r.tree.InBound(nil, window) {
		np := p.(nodePoint)
		dist := planar.DistanceSquared(np.point, q)
		if dist < bestDist || (dist == bestDist && np.index < best.index) {
			best, bestDist = np, dist
		}
	}
	return best.index
}
