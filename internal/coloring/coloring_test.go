package coloring_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"pgregory.net/rapid"

	"tigerra/internal/coloring"
	"tigerra/internal/graph"
)

func fromAdjacency(adj [][]int) *graph.Undirected {
	g := graph.NewUndirected()
	for v, ns := range adj {
		g.AddVertex(v)
		for _, u := range ns {
			g.AddEdge(v, u)
		}
	}
	return g
}

func costs(m map[int]int) func(int) int {
	return func(v int) int { return m[v] }
}

// 0 --- 1 ---- 5
//       |    / | \
//       |  /   |  \
//       2 ---- 3 -- 4
var chain = [][]int{
	{1},
	{0, 2, 5},
	{1, 3, 5},
	{2, 4, 5},
	{3, 5},
	{1, 2, 3, 4},
}

var chainCosts = map[int]int{0: 10, 1: 10, 2: 10, 3: 1, 4: 1, 5: 2}

func TestOrderChain(t *testing.T) {
	g := fromAdjacency(chain)
	// 0 is the only vertex below degree 2; the rest go by spill cost.
	assert.Check(t, is.DeepEqual(coloring.Order(g, costs(chainCosts), 2), []int{0, 3, 4, 5, 1, 2}))
}

func TestTryColorChainSpillsFive(t *testing.T) {
	g := fromAdjacency(chain)
	colors, spill, ok := coloring.TryColor(g, coloring.Order(g, costs(chainCosts), 2), 2)
	assert.Check(t, !ok)
	assert.Check(t, is.Equal(spill, 5))
	assert.Check(t, is.DeepEqual(colors, map[int]int{2: 0, 1: 1}))
}

func TestColorChain(t *testing.T) {
	g := fromAdjacency(chain)
	res := coloring.Color(g, costs(chainCosts), 2)
	assert.Check(t, is.DeepEqual(res.Spilled, []int{5}))
	assert.Check(t, is.DeepEqual(res.Colors, map[int]int{0: 0, 1: 1, 2: 0, 3: 1, 4: 0}))
	assert.Check(t, is.Equal(res.Attempts, 2))
	assert.Check(t, is.Equal(res.Color(5), coloring.NoColor))
	assert.Check(t, res.IsSpilled(5))
	assert.Check(t, !res.IsSpilled(0))

	// the input graph is left alone
	assert.Check(t, is.Equal(g.Order(), 6))
	assert.Check(t, is.Equal(g.Degree(5), 4))
}

func TestColorDenseGraph(t *testing.T) {
	dense := [][]int{
		{1, 2, 5},
		{0, 2, 4, 5},
		{0, 1, 3, 4, 5},
		{2, 4, 5},
		{1, 2, 3, 5},
		{0, 1, 2, 3, 4},
	}
	unit := map[int]int{0: 1, 1: 1, 2: 1, 3: 1, 4: 1, 5: 1}
	res := coloring.Color(fromAdjacency(dense), costs(unit), 4)
	assert.Check(t, is.Len(res.Spilled, 0))
	assert.Check(t, is.Equal(res.Attempts, 1))
	want := map[int]int{0: 1, 1: 3, 2: 2, 3: 3, 4: 1, 5: 0}
	assert.Check(t, is.DeepEqual(res.Colors, want), cmp.Diff(want, res.Colors))
}

func TestColorNoRegisters(t *testing.T) {
	g := fromAdjacency([][]int{{1}, {0}, {}})
	res := coloring.Color(g, costs(nil), 0)
	assert.Check(t, is.Len(res.Colors, 0))
	assert.Check(t, is.Len(res.Spilled, 3))
	assert.Check(t, is.Equal(res.Attempts, 4))
}

func TestColorEmptyGraph(t *testing.T) {
	res := coloring.Color(graph.NewUndirected(), costs(nil), 4)
	assert.Check(t, is.Len(res.Colors, 0))
	assert.Check(t, is.Len(res.Spilled, 0))
	assert.Check(t, is.Equal(res.Attempts, 1))
}

// ---------------------------------------------------------------------------
// Properties over random graphs
// ---------------------------------------------------------------------------

func randomGraph(t *rapid.T) (*graph.Undirected, map[int]int) {
	n := rapid.IntRange(0, 12).Draw(t, "vertices")
	g := graph.NewUndirected()
	cost := make(map[int]int, n)
	for v := 0; v < n; v++ {
		g.AddVertex(v)
		cost[v] = rapid.IntRange(0, 20).Draw(t, "cost")
	}
	for u := 0; u < n; u++ {
		for v := u + 1; v < n; v++ {
			if rapid.IntRange(0, 2).Draw(t, "edge") == 0 {
				g.AddEdge(u, v)
			}
		}
	}
	return g, cost
}

func TestColoringIsValid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, cost := randomGraph(t)
		n := rapid.IntRange(0, 5).Draw(t, "colors")
		res := coloring.Color(g, costs(cost), n)

		for v, c := range res.Colors {
			if c < 0 || c >= n {
				t.Fatalf("vertex %d has color %d outside [0, %d)", v, c, n)
			}
		}
		for _, e := range g.Edges() {
			cu, okU := res.Colors[e[0]]
			cv, okV := res.Colors[e[1]]
			if okU && okV && cu == cv {
				t.Fatalf("edge %d-%d: both colored %d", e[0], e[1], cu)
			}
		}
		if len(res.Colors)+len(res.Spilled) != g.Order() {
			t.Fatalf("%d colored + %d spilled != %d vertices", len(res.Colors), len(res.Spilled), g.Order())
		}
		if res.Attempts != len(res.Spilled)+1 {
			t.Fatalf("attempts %d for %d spills", res.Attempts, len(res.Spilled))
		}
	})
}

func TestLowDegreeNeverSpills(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g, cost := randomGraph(t)
		n := rapid.IntRange(1, 5).Draw(t, "colors")
		res := coloring.Color(g, costs(cost), n)
		for _, v := range res.Spilled {
			if g.Degree(v) < n {
				t.Fatalf("vertex %d of degree %d spilled with %d colors", v, g.Degree(v), n)
			}
		}
	})
}
