package router

import (
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowmap.citybikes.dev/internal/roadgraph"
)

// gridGraph builds a size x size bidirectional grid plus one isolated edge
// (nodes size*size and size*size+1).
func gridGraph(t *testing.T, size int) *roadgraph.Graph {
	t.Helper()
	var nodes []roadgraph.Node
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			nodes = append(nodes, roadgraph.Node{
				OSMID: int64(len(nodes) + 1),
				Point: orb.Point{24.9 + float64(x)*0.001, 60.1 + float64(y)*0.001},
			})
		}
	}
	var edges []roadgraph.Edge
	id := func(x, y int) int32 { return int32(y*size + x) }
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if x+1 < size {
				edges = append(edges,
					roadgraph.Edge{From: id(x, y), To: id(x+1, y), Length: 55},
					roadgraph.Edge{From: id(x+1, y), To: id(x, y), Length: 55})
			}
			if y+1 < size {
				edges = append(edges,
					roadgraph.Edge{From: id(x, y), To: id(x, y+1), Length: 111},
					roadgraph.Edge{From: id(x, y+1), To: id(x, y), Length: 111})
			}
		}
	}
	island := int32(len(nodes))
	nodes = append(nodes,
		roadgraph.Node{OSMID: 9001, Point: orb.Point{25.5, 60.5}},
		roadgraph.Node{OSMID: 9002, Point: orb.Point{25.501, 60.5}})
	edges = append(edges, roadgraph.Edge{From: island, To: island + 1, Length: 55})

	g, err := roadgraph.NewGraph(nodes, edges, roadgraph.NetworkBike)
	require.NoError(t, err)
	return g
}

func pathLength(t *testing.T, g *roadgraph.Graph, nodes []int32) float64 {
	t.Helper()
	total := 0.0
	for i := 0; i+1 < len(nodes); i++ {
		best := -1.0
		start, end := g.EdgesFrom(nodes[i])
		for e := start; e < end; e++ {
			if g.Head[e] == nodes[i+1] && (best < 0 || g.Length[e] < best) {
				best = g.Length[e]
			}
		}
		require.GreaterOrEqual(t, best, 0.0, "consecutive path nodes must share an edge")
		total += best
	}
	return total
}

func TestShortestPath(t *testing.T) {
	g := gridGraph(t, 4)
	s := newSearcher(g)
	ctx := context.Background()

	t.Run("finds a minimal path", func(t *testing.T) {
		nodes, found, err := s.shortestPath(ctx, 0, 15)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, int32(0), nodes[0])
		assert.Equal(t, int32(15), nodes[len(nodes)-1])
		assert.InDelta(t, 3*55+3*111, pathLength(t, g, nodes), 1e-9)
	})

	t.Run("same origin and destination is a single node", func(t *testing.T) {
		nodes, found, err := s.shortestPath(ctx, 5, 5)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []int32{5}, nodes)
	})

	t.Run("disconnected components fail", func(t *testing.T) {
		nodes, found, err := s.shortestPath(ctx, 0, 16)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, nodes)
	})

	t.Run("respects edge direction", func(t *testing.T) {
		nodes, found, err := s.shortestPath(ctx, 17, 16)
		require.NoError(t, err)
		assert.False(t, found, "the island edge only runs 16 -> 17")
		assert.Nil(t, nodes)

		nodes, found, err = s.shortestPath(ctx, 16, 17)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []int32{16, 17}, nodes)
	})

	t.Run("scratch state is reset between searches", func(t *testing.T) {
		first, _, err := s.shortestPath(ctx, 3, 12)
		require.NoError(t, err)
		second, _, err := newSearcher(g).shortestPath(ctx, 3, 12)
		require.NoError(t, err)
		assert.Equal(t, second, first)
	})
}

func TestComputeRoutesMatchesSequentialSearch(t *testing.T) {
	g := gridGraph(t, 8)
	rng := rand.New(rand.NewSource(7))

	n := 137
	origins := make([]int32, n)
	destinations := make([]int32, n)
	for i := range origins {
		origins[i] = int32(rng.Intn(g.NumNodes()))
		destinations[i] = int32(rng.Intn(g.NumNodes()))
	}

	want := make([]Result, n)
	s := newSearcher(g)
	for i := range origins {
		nodes, found, err := s.shortestPath(context.Background(), origins[i], destinations[i])
		require.NoError(t, err)
		want[i] = Result{Nodes: nodes, Found: found}
	}

	for _, batchSize := range []int{1, 3, 10, 64, 500} {
		for _, workers := range []int{1, 2, 5} {
			r := &Router{BatchSize: batchSize, Workers: workers}
			got, stats, err := r.ComputeRoutes(context.Background(), g, origins, destinations)
			require.NoError(t, err)
			require.Len(t, got, n)
			assert.Equal(t, want, got, "batch size %d, workers %d", batchSize, workers)
			assert.Equal(t, n, stats.Pairs)
			assert.Equal(t, (n+batchSize-1)/batchSize, stats.Batches)
		}
	}
}

func TestComputeRoutesIgnoresCompletionOrder(t *testing.T) {
	g := gridGraph(t, 5)

	origins := []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	destinations := []int32{24, 23, 22, 21, 20, 19, 18, 17, 16, 15}

	var mu sync.Mutex
	var completion []int
	r := &Router{BatchSize: 2, Workers: 5}
	// earlier batches sleep longer, so they finish last
	r.beforeBatch = func(ctx context.Context, batch int) {
		time.Sleep(time.Duration(5-batch) * 15 * time.Millisecond)
		mu.Lock()
		completion = append(completion, batch)
		mu.Unlock()
	}

	got, _, err := r.ComputeRoutes(context.Background(), g, origins, destinations)
	require.NoError(t, err)

	assert.NotEqual(t, []int{0, 1, 2, 3, 4}, completion, "batches should not have run in order")
	require.Len(t, got, len(origins))
	for i, res := range got {
		require.True(t, res.Found)
		assert.Equal(t, origins[i], res.Nodes[0], "result %d starts at its own origin", i)
		assert.Equal(t, destinations[i], res.Nodes[len(res.Nodes)-1], "result %d ends at its own destination", i)
	}
}

func TestComputeRoutesFailures(t *testing.T) {
	g := gridGraph(t, 3)
	island := int32(9)

	r := &Router{BatchSize: 1, Workers: 2}
	got, stats, err := r.ComputeRoutes(context.Background(), g,
		[]int32{0, 0, 4},
		[]int32{8, island, 4})
	require.NoError(t, err)

	assert.True(t, got[0].Found)
	assert.Equal(t, Result{}, got[1])
	assert.Equal(t, Result{Nodes: []int32{4}, Found: true}, got[2])

	assert.Equal(t, 2, stats.Found)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 1.0/3.0, stats.FailureRate, 1e-9)
}

func TestComputeRoutesInvalidRequest(t *testing.T) {
	g := gridGraph(t, 3)
	r := &Router{}

	called := false
	r.beforeBatch = func(context.Context, int) { called = true }

	tests := []struct {
		name         string
		graph        *roadgraph.Graph
		origins      []int32
		destinations []int32
	}{
		{name: "length mismatch", graph: g, origins: []int32{0, 1}, destinations: []int32{2}},
		{name: "origin out of range", graph: g, origins: []int32{0, 99}, destinations: []int32{1, 2}},
		{name: "negative destination", graph: g, origins: []int32{0}, destinations: []int32{-1}},
		{name: "nil graph", graph: nil, origins: []int32{0}, destinations: []int32{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := r.ComputeRoutes(context.Background(), tt.graph, tt.origins, tt.destinations)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, got)
		})
	}
	assert.False(t, called, "no batch is dispatched for an invalid request")

	_, _, err := (&Router{BatchSize: -1}).ComputeRoutes(context.Background(), g, []int32{0}, []int32{1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestComputeRoutesTimeout(t *testing.T) {
	g := gridGraph(t, 3)

	r := &Router{BatchSize: 1, Workers: 2, Timeout: 20 * time.Millisecond}
	r.beforeBatch = func(ctx context.Context, batch int) {
		if batch == 0 {
			<-ctx.Done()
		}
	}

	got, _, err := r.ComputeRoutes(context.Background(), g, []int32{0, 1, 2}, []int32{8, 7, 6})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Nil(t, got, "no partial results on timeout")
}

func TestComputeRoutesCancelled(t *testing.T) {
	g := gridGraph(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := (&Router{Workers: 1}).ComputeRoutes(ctx, g, []int32{0}, []int32{8})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestComputeRoutesEmpty(t *testing.T) {
	g := gridGraph(t, 2)

	got, stats, err := (&Router{}).ComputeRoutes(context.Background(), g, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, stats.Pairs)
	assert.Zero(t, stats.FailureRate)
}

func TestDefaultWorkers(t *testing.T) {
	assert.GreaterOrEqual(t, DefaultWorkers(), 1)
}

func TestNodeHeapOrder(t *testing.T) {
	h := &nodeHeap{}
	for _, it := range []heapItem{{dist: 5, node: 1}, {dist: 2, node: 9}, {dist: 2, node: 3}, {dist: 0, node: 7}, {dist: 5, node: 0}} {
		heap.Push(h, it)
	}

	var order []int32
	for h.Len() > 0 {
		order = append(order, heap.Pop(h).(heapItem).node)
	}
	assert.Equal(t, []int32{7, 3, 9, 0, 1}, order)
}
