package roadgraph

// weakComponents labels nodes by weakly connected component with an iterative
// depth-first search over the undirected view of the graph. Labels are assigned
// in order of the lowest node index in each component.
func weakComponents(g *Graph) []int32 {
	n := g.NumNodes()

	// undirected adjacency: outgoing heads plus reversed edges
	degree := make([]int32, n+1)
	for u := 0; u < n; u++ {
		start, end := g.EdgesFrom(int32(u))
		degree[u+1] += end - start
		for e := start; e < end; e++ {
			degree[g.Head[e]+1]++
		}
	}
	for u := 0; u < n; u++ {
		degree[u+1] += degree[u]
	}
	adj := make([]int32, degree[n])
	fill := make([]int32, n)
	copy(fill, degree[:n])
	for u := 0; u < n; u++ {
		start, end := g.EdgesFrom(int32(u))
		for e := start; e < end; e++ {
			v := g.Head[e]
			adj[fill[u]] = v
			fill[u]++
			adj[fill[v]] = int32(u)
			fill[v]++
		}
	}

	labels := make([]int32, n)
	for i := range labels {
		labels[i] = -1
	}

	var next int32
	stack := make([]int32, 0, 64)
	for root := 0; root < n; root++ {
		if labels[root] >= 0 {
			continue
		}
		labels[root] = next
		stack = append(stack[:0], int32(root))
		for len(stack) > 0 {
			u := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, v := range adj[degree[u]:degree[u+1]] {
				if labels[v] < 0 {
					labels[v] = next
					stack = append(stack, v)
				}
			}
		}
		next++
	}

	return labels
}
