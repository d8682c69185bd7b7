package graph

// Clustering computes connected components over the graph, treating every
// edge as undirected. Any shared edge merges two nodes into one cluster —
// no value threshold gates membership, so dust transfers merge components
// just like large ones. MinEdgeValue exists for deployments that want to
// exclude dust; the default of 0 keeps every edge.

// Assignment maps node id to its cluster id.
type Assignment map[string]int

// ClusterOptions tune cluster computation.
type ClusterOptions struct {
	// MinEdgeValue excludes edges below this value from connectivity.
	// 0 (the default) keeps all edges.
	MinEdgeValue float64
}

// AssignClusters partitions the graph into connected components via BFS.
// Cluster ids are assigned in node-slice order starting at 0, so results
// are deterministic for a fixed build order. Each node's Cluster field is
// updated in place; the assignment map and cluster count are returned.
func AssignClusters(g *Graph) (Assignment, int) {
	return AssignClustersWith(g, ClusterOptions{})
}

// AssignClustersWith is AssignClusters with explicit options.
func AssignClustersWith(g *Graph, opts ClusterOptions) (Assignment, int) {
	if g == nil || len(g.Nodes) == 0 {
		return Assignment{}, 0
	}

	// Undirected adjacency. Neighbor order follows edge order, which is
	// itself deterministic (one edge per transaction in input order).
	adj := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		if e.Value < opts.MinEdgeValue {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		adj[e.Target] = append(adj[e.Target], e.Source)
	}

	assignment := make(Assignment, len(g.Nodes))
	next := 0

	for _, start := range g.Nodes {
		if _, seen := assignment[start.ID]; seen {
			continue
		}

		// BFS from the first unvisited node in slice order.
		cluster := next
		next++
		queue := []string{start.ID}
		assignment[start.ID] = cluster

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, neighbor := range adj[current] {
				if _, seen := assignment[neighbor]; seen {
					continue
				}
				assignment[neighbor] = cluster
				queue = append(queue, neighbor)
			}
		}
	}

	for _, n := range g.Nodes {
		n.Cluster = assignment[n.ID]
	}
	return assignment, next
}
