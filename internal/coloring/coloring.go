// Package coloring assigns at most N colors to the vertices of an
// interference graph with an optimistic simplify/select heuristic. Vertices
// that cannot be colored are spilled one at a time and the whole attempt is
// repeated on the smaller graph.
package coloring

import (
	"sort"

	"tigerra/internal/graph"
)

// NoColor marks an uncolored vertex.
const NoColor = -1

// Result is the outcome of Color.
type Result struct {
	Colors   map[int]int // colored vertices only
	Spilled  []int       // in spill order
	Attempts int
}

// Color returns the color of v, or NoColor if v was spilled.
func (r *Result) Color(v int) int {
	if c, ok := r.Colors[v]; ok {
		return c
	}
	return NoColor
}

// IsSpilled reports whether v ended up without a color.
func (r *Result) IsSpilled(v int) bool {
	_, ok := r.Colors[v]
	return !ok
}

// Color colors g with colors 0..n-1. cost gives the spill cost of a
// vertex. g itself is not modified.
func Color(g *graph.Undirected, cost func(v int) int, n int) *Result {
	if n < 0 {
		n = 0
	}
	work := g.Clone()
	res := &Result{}
	for {
		res.Attempts++
		colors, spill, ok := TryColor(g, Order(work, cost, n), n)
		if ok {
			res.Colors = colors
			return res
		}
		res.Spilled = append(res.Spilled, spill)
		work.RemoveVertex(spill)
	}
}

// Order returns the simplify stack for g, bottom first. Vertices of degree
// below n come first in ascending vertex order, then the rest by ascending
// spill cost (ties by vertex), so the cheapest high-degree vertex is popped
// last.
func Order(g *graph.Undirected, cost func(v int) int, n int) []int {
	var low, high []int
	for _, v := range g.Vertices() {
		if g.Degree(v) < n {
			low = append(low, v)
		} else {
			high = append(high, v)
		}
	}
	sort.SliceStable(high, func(i, j int) bool {
		return cost(high[i]) < cost(high[j])
	})
	return append(low, high...)
}

// TryColor pops stack from the top and gives each vertex the lowest color
// not used by an already colored neighbour in full. It stops at the first
// vertex that has no free color and returns it as the spill candidate.
func TryColor(full *graph.Undirected, stack []int, n int) (colors map[int]int, spill int, ok bool) {
	colors = make(map[int]int, len(stack))
	for i := len(stack) - 1; i >= 0; i-- {
		v := stack[i]
		used := make([]bool, n)
		for _, u := range full.Neighbors(v) {
			if c, found := colors[u]; found {
				used[c] = true
			}
		}
		c := NoColor
		for k := 0; k < n; k++ {
			if !used[k] {
				c = k
				break
			}
		}
		if c == NoColor {
			return colors, v, false
		}
		colors[v] = c
	}
	return colors, NoColor, true
}
