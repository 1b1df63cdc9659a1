// Package liveness computes per-instruction live-in and live-out sets by
// backward iterative dataflow over every function's CFG.
//
// The fixpoint is global: a call reads the callee's entry live-in, so all
// functions are swept together until nothing changes anywhere.
package liveness

import (
	"context"

	"github.com/containerd/log"

	"tigerra/internal/ir"
)

// Analyzer runs the dataflow over one listing. The CFG of every function
// must already be built.
type Analyzer struct {
	listing *ir.Listing
	sweeps  int
}

// New allocates empty live sets for every instruction of l. Inside a block
// the live-out of an instruction and the live-in of the next one share a
// single arena slot, and the last instruction's live-out is the block's
// out-set.
func New(l *ir.Listing) *Analyzer {
	for _, fn := range l.Funcs {
		initSets(fn)
	}
	return &Analyzer{listing: l}
}

func initSets(fn *ir.Func) {
	fn.Live.Reset()
	for _, b := range fn.Blocks {
		id := fn.Live.New()
		for _, insn := range b.Instrs {
			insn.In = id
			id = fn.Live.New()
			insn.Out = id
		}
	}
}

// Sweep performs one pass over all functions and reports whether any set
// grew. Sets are only ever added to.
func (a *Analyzer) Sweep() bool {
	a.sweeps++
	changed := false
	for _, fn := range a.listing.Funcs {
		for _, b := range fn.Blocks {
			for k := len(b.Instrs) - 1; k >= 0; k-- {
				if transfer(b.Instrs[k]) {
					changed = true
				}
			}
		}
		for _, b := range fn.Blocks {
			out := b.OutSet()
			for _, succ := range b.Successors() {
				for _, s := range succ.InSet().ToSlice() {
					if out.Add(s) {
						changed = true
					}
				}
			}
		}
	}
	return changed
}

// transfer applies in ∪= (out \ defs) ∪ uses to insn.
func transfer(insn *ir.Instr) bool {
	in, out := insn.InSet(), insn.OutSet()
	defs := ir.NewSymbolSet(insn.Defs()...)
	changed := false
	for _, s := range out.ToSlice() {
		if !defs.Contains(s) && in.Add(s) {
			changed = true
		}
	}
	for _, s := range insn.Uses() {
		if in.Add(s) {
			changed = true
		}
	}
	return changed
}

// Run sweeps until a full pass changes nothing and returns the number of
// sweeps, the final unchanged one included.
func (a *Analyzer) Run(ctx context.Context) int {
	start := a.sweeps
	for a.Sweep() {
		log.G(ctx).WithField("sweep", a.sweeps-start).Debug("liveness: sets still growing")
	}
	n := a.sweeps - start
	log.G(ctx).WithFields(log.Fields{
		"funcs":  len(a.listing.Funcs),
		"sweeps": n,
	}).Debug("liveness: fixpoint reached")
	return n
}

// Sweeps returns the number of sweeps performed so far.
func (a *Analyzer) Sweeps() int {
	return a.sweeps
}

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// Snapshot is a copy of every instruction's live sets at one point in time.
type Snapshot struct {
	in  map[*ir.Instr]ir.SymbolSet
	out map[*ir.Instr]ir.SymbolSet
}

// Take copies the current live sets of l.
func Take(l *ir.Listing) Snapshot {
	s := Snapshot{
		in:  make(map[*ir.Instr]ir.SymbolSet),
		out: make(map[*ir.Instr]ir.SymbolSet),
	}
	for _, fn := range l.Funcs {
		for _, insn := range fn.Instrs {
			if set := insn.InSet(); set != nil {
				s.in[insn] = set.Clone()
			}
			if set := insn.OutSet(); set != nil {
				s.out[insn] = set.Clone()
			}
		}
	}
	return s
}

// SubsetOf reports whether every set in s is contained in the matching set
// of later.
func (s Snapshot) SubsetOf(later Snapshot) bool {
	return subsets(s.in, later.in) && subsets(s.out, later.out)
}

// Equal reports whether s and other hold the same sets.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.SubsetOf(other) && other.SubsetOf(s)
}

func subsets(a, b map[*ir.Instr]ir.SymbolSet) bool {
	for insn, set := range a {
		other, ok := b[insn]
		if !ok || !set.IsSubset(other) {
			return false
		}
	}
	return true
}
