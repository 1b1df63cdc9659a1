// Package regalloc answers the code generator's one question: which
// register holds a symbol at a given instruction.
package regalloc

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"tigerra/internal/coloring"
	"tigerra/internal/ir"
	"tigerra/internal/target"
	"tigerra/internal/web"
)

// Allocation modes selectable from configuration.
const (
	ModeBriggs = "briggs"
	ModeNaive  = "naive"
)

// Allocator maps a symbol at an instruction to a register. ok is false when
// the symbol lives in memory there.
type Allocator interface {
	ResolveRegister(sym *ir.Symbol, insn *ir.Instr) (reg string, ok bool)
}

// argRegister places arguments by their frame ordinal.
func argRegister(t *target.Target, sym *ir.Symbol) (string, bool) {
	if sym == nil || !sym.IsArgument {
		return "", false
	}
	return t.ArgReg(sym.FrameIndex)
}

// ---------------------------------------------------------------------------
// Naive
// ---------------------------------------------------------------------------

// Naive keeps arguments in their incoming registers and everything else in
// memory.
type Naive struct {
	Target *target.Target
}

// NewNaive returns a Naive allocator for t.
func NewNaive(t *target.Target) *Naive {
	return &Naive{Target: t}
}

func (n *Naive) ResolveRegister(sym *ir.Symbol, _ *ir.Instr) (string, bool) {
	return argRegister(n.Target, sym)
}

// ---------------------------------------------------------------------------
// Coloring
// ---------------------------------------------------------------------------

// Assignment is the allocation of one function.
type Assignment struct {
	Webs     *web.Result
	Coloring *coloring.Result
}

// Coloring hands out registers by graph coloring the webs of each
// function. Functions must be added with Allocate before queries about
// them return registers.
type Coloring struct {
	Target *target.Target
	funcs  map[*ir.Func]*Assignment
}

// NewColoring returns an empty Coloring allocator for t.
func NewColoring(t *target.Target) *Coloring {
	return &Coloring{Target: t, funcs: make(map[*ir.Func]*Assignment)}
}

// Allocate builds the webs of fn, colors them with the target's GP
// registers and records the result. Liveness must be at its fixpoint.
func (c *Coloring) Allocate(fn *ir.Func) (*Assignment, error) {
	res, err := web.Build(fn)
	if err != nil {
		return nil, err
	}
	col := coloring.Color(res.Graph, res.SpillCost, c.Target.NumRegs())
	if err := c.Assign(res, col); err != nil {
		return nil, err
	}
	return c.funcs[fn], nil
}

// Assign records an already computed coloring of res, writing each web's
// color and register.
func (c *Coloring) Assign(res *web.Result, col *coloring.Result) error {
	for _, w := range res.Webs {
		w.Color = web.NoColor
		w.Register = ""
		k := col.Color(w.ID)
		if k == coloring.NoColor {
			continue
		}
		if k >= c.Target.NumRegs() {
			return errors.Wrapf(errdefs.ErrInternal, "%s: web %s colored %d with %d registers",
				res.Func.Name(), w, k, c.Target.NumRegs())
		}
		w.Color = k
		w.Register = c.Target.GPRegs[k]
	}
	c.funcs[res.Func] = &Assignment{Webs: res, Coloring: col}
	return nil
}

// Func returns the recorded allocation of fn, or nil.
func (c *Coloring) Func(fn *ir.Func) *Assignment {
	return c.funcs[fn]
}

func (c *Coloring) ResolveRegister(sym *ir.Symbol, insn *ir.Instr) (string, bool) {
	if sym == nil {
		return "", false
	}
	if sym.IsArgument {
		return argRegister(c.Target, sym)
	}
	if insn == nil {
		return "", false
	}
	a := c.funcs[insn.Func]
	if a == nil {
		return "", false
	}
	w := a.Webs.Lookup(sym, insn)
	if w == nil || w.Spilled() {
		return "", false
	}
	return w.Register, true
}

// Spilled lists the symbols of fn with at least one web left in memory,
// by symbol ID.
func (c *Coloring) Spilled(fn *ir.Func) []*ir.Symbol {
	a := c.funcs[fn]
	if a == nil {
		return nil
	}
	seen := make(map[*ir.Symbol]bool)
	var out []*ir.Symbol
	for _, w := range a.Webs.Webs {
		if w.Spilled() && !seen[w.Symbol] {
			seen[w.Symbol] = true
			out = append(out, w.Symbol)
		}
	}
	ir.SortSymbols(out)
	return out
}

// New returns the allocator called name.
func New(name string, t *target.Target) (Allocator, error) {
	switch name {
	case ModeBriggs, "":
		return NewColoring(t), nil
	case ModeNaive:
		return NewNaive(t), nil
	default:
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "unknown register allocator %q", name)
	}
}
