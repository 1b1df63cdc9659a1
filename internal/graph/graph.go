// Package graph holds the two small graph shapes the backend needs: a
// directed multigraph for control flow and a simple undirected graph for
// interference. Vertices are plain ints; callers keep their own tables from
// vertex to payload.
package graph

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// ---------------------------------------------------------------------------
// Directed: vertices 0..n-1, parallel edges and self loops allowed
// ---------------------------------------------------------------------------

// Directed is a directed pseudograph over dense vertex indices.
type Directed struct {
	succ [][]int
	pred [][]int
}

// NewDirected returns a graph with n vertices and no edges.
func NewDirected(n int) *Directed {
	return &Directed{
		succ: make([][]int, n),
		pred: make([][]int, n),
	}
}

// AddVertex appends a vertex and returns its index.
func (g *Directed) AddVertex() int {
	g.succ = append(g.succ, nil)
	g.pred = append(g.pred, nil)
	return len(g.succ) - 1
}

// Order returns the number of vertices.
func (g *Directed) Order() int {
	return len(g.succ)
}

// AddEdge adds an edge from -> to. Adding the same edge twice keeps both.
func (g *Directed) AddEdge(from, to int) {
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
}

// OutEdges returns the targets of every edge leaving v, parallel edges
// included, in insertion order.
func (g *Directed) OutEdges(v int) []int {
	return g.succ[v]
}

// Successors returns the distinct successors of v in first-edge order.
func (g *Directed) Successors(v int) []int {
	return distinct(g.succ[v])
}

// Predecessors returns the distinct predecessors of v in first-edge order.
func (g *Directed) Predecessors(v int) []int {
	return distinct(g.pred[v])
}

// EdgeCount returns the number of edges, parallel edges counted separately.
func (g *Directed) EdgeCount() int {
	n := 0
	for _, s := range g.succ {
		n += len(s)
	}
	return n
}

func distinct(vs []int) []int {
	if len(vs) < 2 {
		return vs
	}
	out := make([]int, 0, len(vs))
	seen := make(map[int]bool, len(vs))
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Undirected: simple graph, sparse vertex IDs
// ---------------------------------------------------------------------------

// Undirected is a simple undirected graph: no self loops, at most one edge
// per vertex pair.
type Undirected struct {
	adj map[int]mapset.Set[int]
}

// NewUndirected returns an empty graph.
func NewUndirected() *Undirected {
	return &Undirected{adj: make(map[int]mapset.Set[int])}
}

// AddVertex adds v if it is not already present.
func (g *Undirected) AddVertex(v int) {
	if _, ok := g.adj[v]; !ok {
		g.adj[v] = mapset.NewThreadUnsafeSet[int]()
	}
}

// HasVertex reports whether v is in the graph.
func (g *Undirected) HasVertex(v int) bool {
	_, ok := g.adj[v]
	return ok
}

// AddEdge connects u and v, adding either vertex if missing. A self loop
// adds the vertex but no edge. It reports whether a new edge was created.
func (g *Undirected) AddEdge(u, v int) bool {
	g.AddVertex(u)
	g.AddVertex(v)
	if u == v {
		return false
	}
	if !g.adj[u].Add(v) {
		return false
	}
	g.adj[v].Add(u)
	return true
}

// HasEdge reports whether u and v are adjacent.
func (g *Undirected) HasEdge(u, v int) bool {
	n, ok := g.adj[u]
	return ok && n.Contains(v)
}

// RemoveVertex deletes v and every edge touching it.
func (g *Undirected) RemoveVertex(v int) {
	n, ok := g.adj[v]
	if !ok {
		return
	}
	for _, u := range n.ToSlice() {
		g.adj[u].Remove(v)
	}
	delete(g.adj, v)
}

// Degree returns the number of neighbours of v.
func (g *Undirected) Degree(v int) int {
	if n, ok := g.adj[v]; ok {
		return n.Cardinality()
	}
	return 0
}

// Neighbors returns the neighbours of v in ascending order.
func (g *Undirected) Neighbors(v int) []int {
	n, ok := g.adj[v]
	if !ok {
		return nil
	}
	out := n.ToSlice()
	sort.Ints(out)
	return out
}

// Vertices returns every vertex in ascending order.
func (g *Undirected) Vertices() []int {
	out := make([]int, 0, len(g.adj))
	for v := range g.adj {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Order returns the number of vertices.
func (g *Undirected) Order() int {
	return len(g.adj)
}

// Edges returns every edge once as {lo, hi}, sorted.
func (g *Undirected) Edges() [][2]int {
	var out [][2]int
	for _, u := range g.Vertices() {
		for _, v := range g.Neighbors(u) {
			if u < v {
				out = append(out, [2]int{u, v})
			}
		}
	}
	return out
}

// EdgeCount returns the number of edges.
func (g *Undirected) EdgeCount() int {
	n := 0
	for _, s := range g.adj {
		n += s.Cardinality()
	}
	return n / 2
}

// Clone returns an independent copy of g.
func (g *Undirected) Clone() *Undirected {
	c := &Undirected{adj: make(map[int]mapset.Set[int], len(g.adj))}
	for v, n := range g.adj {
		c.adj[v] = n.Clone()
	}
	return c
}
