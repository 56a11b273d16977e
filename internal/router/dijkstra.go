package router

import (
	"container/heap"
	"context"
	"math"

	"flowmap.citybikes.dev/internal/roadgraph"
)

// cancelCheckInterval is how many settled nodes pass between context checks.
const cancelCheckInterval = 1024

type heapItem struct {
	dist float64
	node int32
}

// nodeHeap implements heap.Interface ordered by (dist, node) so that equal
// distances settle in node index order.
type nodeHeap []heapItem

func (h nodeHeap) Len() int { return len(h) }

func (h nodeHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node < h[j].node
}

func (h nodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nodeHeap) Push(x any) { *h = append(*h, x.(heapItem)) }

func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// searcher holds the scratch state of one worker. Only entries listed in touched
// are reset between searches.
type searcher struct {
	g       *roadgraph.Graph
	dist    []float64
	prev    []int32
	touched []int32
	heap    nodeHeap
}

func newSearcher(g *roadgraph.Graph) *searcher {
	n := g.NumNodes()
	s := &searcher{
		g:    g,
		dist: make([]float64, n),
		prev: make([]int32, n),
		heap: make(nodeHeap, 0, 256),
	}
	for i := range s.dist {
		s.dist[i] = math.Inf(1)
		s.prev[i] = -1
	}
	return s
}

func (s *searcher) reset() {
	for _, v := range s.touched {
		s.dist[v] = math.Inf(1)
		s.prev[v] = -1
	}
	s.touched = s.touched[:0]
	s.heap = s.heap[:0]
}

// shortestPath runs Dijkstra from origin and stops once destination is settled.
// It returns the node sequence, or false when destination is unreachable.
func (s *searcher) shortestPath(ctx context.Context, origin, destination int32) ([]int32, bool, error) {
	if origin == destination {
		return []int32{origin}, true, nil
	}
	if !s.g.Connected(origin, destination) {
		return nil, false, nil
	}

	defer s.reset()

	s.dist[origin] = 0
	s.touched = append(s.touched, origin)
	heap.Push(&s.heap, heapItem{dist: 0, node: origin})

	settled := 0
	for len(s.heap) > 0 {
		it := heap.Pop(&s.heap).(heapItem)
		if it.dist > s.dist[it.node] {
			continue
		}
		if it.node == destination {
			return s.path(origin, destination), true, nil
		}

		settled++
		if settled%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, false, err
			}
		}

		start, end := s.g.EdgesFrom(it.node)
		for e := start; e < end; e++ {
			v := s.g.Head[e]
			nd := it.dist + s.g.Length[e]
			if nd < s.dist[v] {
				if math.IsInf(s.dist[v], 1) {
					s.touched = append(s.touched, v)
				}
				s.dist[v] = nd
				s.prev[v] = it.node
				heap.Push(&s.heap, heapItem{dist: nd, node: v})
			}
		}
	}

	return nil, false, nil
}

func (s *searcher) path(origin, destination int32) []int32 {
	var out []int32
	for v := destination; v != -1; v = s.prev[v] {
		out = append(out, v)
		if v == origin {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
