package graph

// Graph is an immutable snapshot of nodes and edges with lookup indices.
// Nodes and edges keep the order in which the editor supplied them.
type Graph struct {
	nodes []Node
	edges []Edge
	index map[string]int
	in    map[string][]int
	out   map[string][]int
	dups  []string
}

// Snapshot copies nodes and edges into a new Graph. Later changes to the
// caller's slices or property maps do not affect it. Property values are
// shared and must be treated as read-only. When two nodes share an id the
// first one wins and Validate reports the duplicate.
func Snapshot(nodes []Node, edges []Edge) *Graph {
	g := &Graph{
		nodes: make([]Node, 0, len(nodes)),
		edges: append([]Edge(nil), edges...),
		index: make(map[string]int, len(nodes)),
		in:    make(map[string][]int),
		out:   make(map[string][]int),
	}
	for _, n := range nodes {
		if _, ok := g.index[n.ID]; ok {
			g.dups = append(g.dups, n.ID)
			continue
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n.clone())
	}
	for i, e := range g.edges {
		g.in[e.Target] = append(g.in[e.Target], i)
		g.out[e.Source] = append(g.out[e.Source], i)
	}
	return g
}

// Nodes returns the nodes in editor order. The slice must not be modified.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Edges returns the edges in editor order. The slice must not be modified.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// NodeCount returns the number of distinct nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Incoming returns the edges targeting id, in edge order.
func (g *Graph) Incoming(id string) []Edge {
	return g.collect(g.in[id])
}

// Outgoing returns the edges leaving id, in edge order.
func (g *Graph) Outgoing(id string) []Edge {
	return g.collect(g.out[id])
}

func (g *Graph) collect(idx []int) []Edge {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Edge, len(idx))
	for i, j := range idx {
		out[i] = g.edges[j]
	}
	return out
}

// Output returns the first node flagged as the graph output.
func (g *Graph) Output() (Node, bool) {
	for _, n := range g.nodes {
		if n.IsOutput {
			return n, true
		}
	}
	return Node{}, false
}

// Downstream returns start plus every node reachable from it along outgoing
// edges. Edges for which skip returns true are not followed.
func (g *Graph) Downstream(start []string, skip func(Edge) bool) map[string]bool {
	return g.walk(start, skip, func(id string) []Edge { return g.Outgoing(id) }, func(e Edge) string { return e.Target })
}

// Upstream returns start plus every node that start depends on along
// incoming edges. Edges for which skip returns true are not followed.
func (g *Graph) Upstream(start []string, skip func(Edge) bool) map[string]bool {
	return g.walk(start, skip, func(id string) []Edge { return g.Incoming(id) }, func(e Edge) string { return e.Source })
}

func (g *Graph) walk(start []string, skip func(Edge) bool, next func(string) []Edge, other func(Edge) string) map[string]bool {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(start))
	for _, id := range start {
		if !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range next(current) {
			if skip != nil && skip(e) {
				continue
			}
			if id := other(e); !seen[id] {
				seen[id] = true
				queue = append(queue, id)
			}
		}
	}
	return seen
}
