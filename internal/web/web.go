// Package web builds webs, the maximal live ranges of each variable of a
// function, and the interference graph between them.
//
// Webs are first built per basic block, then webs of the same variable that
// meet on a CFG edge are unioned. Every web that was simultaneously live
// with another at some instruction gets an interference edge to it.
package web

import (
	"fmt"
	"sort"
	"strings"

	"github.com/containerd/errdefs"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"tigerra/internal/graph"
	"tigerra/internal/ir"
)

// NoColor marks a web without a register.
const NoColor = -1

// Web is one live range of one variable.
type Web struct {
	ID        int
	Symbol    *ir.Symbol
	Range     mapset.Set[*ir.Instr]
	SpillCost int

	// Filled in by the register allocator.
	Color    int
	Register string
}

// New returns an empty, uncolored web of sym.
func New(sym *ir.Symbol) *Web {
	return &Web{
		Symbol: sym,
		Range:  mapset.NewThreadUnsafeSet[*ir.Instr](),
		Color:  NoColor,
	}
}

func (w *Web) absorb(other *Web) {
	for _, insn := range other.Range.ToSlice() {
		w.Range.Add(insn)
	}
	w.SpillCost += other.SpillCost
}

// Contains reports whether insn lies in the web's range.
func (w *Web) Contains(insn *ir.Instr) bool {
	return w.Range.Contains(insn)
}

// Spilled reports whether the web was left without a register.
func (w *Web) Spilled() bool {
	return w.Color == NoColor
}

// Instrs returns the range in instruction order.
func (w *Web) Instrs() []*ir.Instr {
	out := w.Range.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (w *Web) String() string {
	return fmt.Sprintf("%s: %d", w.Symbol, w.SpillCost)
}

// ---------------------------------------------------------------------------
// Result
// ---------------------------------------------------------------------------

// BlockWebs records the webs of one block: those open on entry, those still
// open on exit, and those that ended inside the block.
type BlockWebs struct {
	In     map[*ir.Symbol]*Web
	Out    map[*ir.Symbol]*Web
	Closed []*Web
}

// Result is the outcome of Build for one function. After Build returns,
// every reference it holds is to a canonical web.
type Result struct {
	Func     *ir.Func
	Webs     []*Web      // canonical webs by ID
	Blocks   []BlockWebs // indexed by block index
	Clusters [][]*Web    // sets of webs live together at some instruction
	Graph    *graph.Undirected

	byID map[int]*Web
}

// Web returns the canonical web with the given ID, or nil.
func (r *Result) Web(id int) *Web {
	return r.byID[id]
}

// SpillCost returns the spill cost of web id, suitable as a coloring cost
// function.
func (r *Result) SpillCost(id int) int {
	if w := r.byID[id]; w != nil {
		return w.SpillCost
	}
	return 0
}

// WebsOf returns the webs of sym in ID order.
func (r *Result) WebsOf(sym *ir.Symbol) []*Web {
	var out []*Web
	for _, w := range r.Webs {
		if w.Symbol == sym {
			out = append(out, w)
		}
	}
	return out
}

// Lookup returns the web of sym whose range contains insn, or nil.
func (r *Result) Lookup(sym *ir.Symbol, insn *ir.Instr) *Web {
	for _, w := range r.Webs {
		if w.Symbol == sym && w.Contains(insn) {
			return w
		}
	}
	return nil
}

// Dump renders the per-block web maps for debugging.
func (r *Result) Dump() string {
	var sb strings.Builder
	for i, bw := range r.Blocks {
		fmt.Fprintf(&sb, "B%d in=%s closed=%s out=%s\n", i,
			formatMap(bw.In), formatWebs(bw.Closed), formatMap(bw.Out))
	}
	return sb.String()
}

func formatMap(m map[*ir.Symbol]*Web) string {
	webs := make([]*Web, 0, len(m))
	for _, s := range sortedKeys(m) {
		webs = append(webs, m[s])
	}
	return formatWebs(webs)
}

func formatWebs(webs []*Web) string {
	parts := make([]string, len(webs))
	for i, w := range webs {
		parts[i] = fmt.Sprintf("%s#%d", w.Symbol, w.ID)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

type builder struct {
	fn       *ir.Func
	ds       *DisjointSet
	clusters [][]*Web
}

// Build computes the webs and interference graph of fn. Liveness must have
// reached its fixpoint.
func Build(fn *ir.Func) (*Result, error) {
	b := &builder{fn: fn, ds: &DisjointSet{}}
	r := &Result{Func: fn, Blocks: make([]BlockWebs, len(fn.Blocks))}

	for _, blk := range fn.Blocks {
		bw, err := b.scanBlock(blk)
		if err != nil {
			return nil, err
		}
		r.Blocks[blk.Index] = bw
	}
	if err := b.merge(r); err != nil {
		return nil, err
	}
	b.canonicalize(r)
	b.interference(r)
	return r, nil
}

// local reports whether sym takes part in allocation for this function.
func (b *builder) local(sym *ir.Symbol) bool {
	return sym.Class == ir.ClassVar && !sym.IsArgument && b.fn.Owns(sym)
}

func (b *builder) open(sym *ir.Symbol) *Web {
	w := New(sym)
	b.ds.Add(w)
	return w
}

func (b *builder) scanBlock(blk *ir.Block) (BlockWebs, error) {
	if len(blk.Instrs) == 0 {
		return BlockWebs{}, errors.Wrapf(errdefs.ErrInternal, "%s: empty block %s", b.fn.Name(), blk)
	}
	leader := blk.Leader()
	if leader.InSet() == nil {
		return BlockWebs{}, errors.Wrapf(errdefs.ErrInternal, "%s: no live sets for %s", b.fn.Name(), blk)
	}
	bw := BlockWebs{In: make(map[*ir.Symbol]*Web)}
	live := make(map[*ir.Symbol]*Web)

	for _, s := range ir.Sorted(leader.InSet()) {
		if !b.local(s) {
			continue
		}
		w := b.open(s)
		w.Range.Add(leader)
		bw.In[s] = w
		live[s] = w
	}

	for _, insn := range blk.Instrs {
		out := insn.OutSet()
		var cluster []*Web
		join := func(w *Web) {
			for _, c := range cluster {
				if c == w {
					return
				}
			}
			cluster = append(cluster, w)
		}

		for _, s := range ir.Sorted(insn.InSet()) {
			if !b.local(s) {
				continue
			}
			w, ok := live[s]
			if !ok {
				return BlockWebs{}, b.noWeb(s, insn)
			}
			w.Range.Add(insn)
			if out.Contains(s) {
				join(w)
			}
		}
		for _, s := range insn.Defs() {
			if !b.local(s) {
				continue
			}
			w, ok := live[s]
			if !ok {
				w = b.open(s)
				live[s] = w
			}
			w.Range.Add(insn)
			w.SpillCost++
			join(w)
		}
		for _, s := range insn.Uses() {
			if !b.local(s) {
				continue
			}
			w, ok := live[s]
			if !ok {
				return BlockWebs{}, b.noWeb(s, insn)
			}
			w.SpillCost++
		}
		for _, s := range sortedKeys(live) {
			if !out.Contains(s) {
				bw.Closed = append(bw.Closed, live[s])
				delete(live, s)
			}
		}
		if len(cluster) > 0 {
			b.clusters = append(b.clusters, cluster)
		}
	}
	bw.Out = live
	return bw, nil
}

func (b *builder) noWeb(sym *ir.Symbol, insn *ir.Instr) error {
	return errors.Wrapf(errdefs.ErrInternal, "%s: %s is live at %q but has no open web", b.fn.Name(), sym, insn)
}

// merge unions, for every CFG edge, each successor entry web with the web
// of the same variable leaving the predecessor.
func (b *builder) merge(r *Result) error {
	for _, blk := range b.fn.Blocks {
		out := r.Blocks[blk.Index].Out
		for _, succ := range blk.Successors() {
			in := r.Blocks[succ.Index].In
			for _, s := range sortedKeys(in) {
				ow, ok := out[s]
				if !ok {
					return errors.Wrapf(errdefs.ErrInternal, "%s: %s enters %s but no web leaves %s",
						b.fn.Name(), s, succ, blk)
				}
				b.ds.Union(in[s].ID, ow.ID)
			}
		}
	}
	return nil
}

// canonicalize rewrites every web reference to its set representative.
func (b *builder) canonicalize(r *Result) {
	for i := range r.Blocks {
		bw := &r.Blocks[i]
		for s, w := range bw.In {
			bw.In[s] = b.ds.Canonical(w)
		}
		for s, w := range bw.Out {
			bw.Out[s] = b.ds.Canonical(w)
		}
		bw.Closed = b.canonicalSlice(bw.Closed)
	}
	for i, c := range b.clusters {
		b.clusters[i] = b.canonicalSlice(c)
	}
	r.Clusters = b.clusters

	r.byID = make(map[int]*Web)
	for id := 0; id < b.ds.Len(); id++ {
		root := b.ds.Find(id)
		if _, ok := r.byID[root]; !ok {
			r.byID[root] = b.ds.Web(root)
		}
	}
	r.Webs = make([]*Web, 0, len(r.byID))
	for _, w := range r.byID {
		r.Webs = append(r.Webs, w)
	}
	sort.Slice(r.Webs, func(i, j int) bool { return r.Webs[i].ID < r.Webs[j].ID })
}

func (b *builder) canonicalSlice(webs []*Web) []*Web {
	var out []*Web
	seen := make(map[*Web]bool, len(webs))
	for _, w := range webs {
		c := b.ds.Canonical(w)
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// interference adds one vertex per canonical web and an edge between every
// two webs sharing a cluster.
func (b *builder) interference(r *Result) {
	g := graph.NewUndirected()
	for _, w := range r.Webs {
		g.AddVertex(w.ID)
	}
	for _, c := range r.Clusters {
		for i := 0; i < len(c); i++ {
			for j := i + 1; j < len(c); j++ {
				g.AddEdge(c[i].ID, c[j].ID)
			}
		}
	}
	r.Graph = g
}

func sortedKeys(m map[*ir.Symbol]*Web) []*ir.Symbol {
	keys := make([]*ir.Symbol, 0, len(m))
	for s := range m {
		keys = append(keys, s)
	}
	ir.SortSymbols(keys)
	return keys
}
