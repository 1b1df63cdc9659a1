// Package backend drives register allocation over a whole listing:
// validation, control flow, liveness, webs, coloring, and finally the
// allocator the code generator queries.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"tigerra/internal/cfg"
	"tigerra/internal/ir"
	"tigerra/internal/irchecker"
	"tigerra/internal/liveness"
	"tigerra/internal/regalloc"
	"tigerra/internal/target"
)

// ---------------------------------------------------------------------------
// Options controls the behaviour of the allocation pipeline.
// ---------------------------------------------------------------------------

// Options configures Allocate.
type Options struct {
	// Target supplies the register tables. If nil, the default target is
	// used.
	Target *target.Target

	// Allocator selects the allocator answering register queries
	// (regalloc.ModeBriggs or regalloc.ModeNaive). Webs are colored either
	// way so their graphs can be exported.
	Allocator string
}

// DefaultOptions returns the default target with the coloring allocator.
func DefaultOptions() *Options {
	return &Options{Allocator: regalloc.ModeBriggs}
}

// ---------------------------------------------------------------------------
// Result is returned by Allocate.
// ---------------------------------------------------------------------------

// FuncReport summarizes the allocation of one function.
type FuncReport struct {
	Name          string
	Blocks        int
	Webs          int
	Interferences int
	Attempts      int
	Spilled       []string
	SpillBytes    int // frame space taken by the spilled symbols

	// Spill cost distribution over the function's webs.
	MeanSpillCost   float64
	MedianSpillCost float64
	MaxSpillCost    float64
}

type Result struct {
	Listing     *ir.Listing
	Target      *target.Target
	Allocator   regalloc.Allocator
	Coloring    *regalloc.Coloring // webs and colors of every function
	Diagnostics []irchecker.Diagnostic
	Sweeps      int // liveness sweeps to the fixpoint
	Reports     []FuncReport
}

// CheckError reports a listing rejected by the structural checker.
type CheckError struct {
	Diagnostics []irchecker.Diagnostic
}

func (e *CheckError) Error() string {
	var msgs []string
	for _, d := range e.Diagnostics {
		if d.Severity == irchecker.Error {
			msgs = append(msgs, d.Error())
		}
	}
	return fmt.Sprintf("invalid listing: %s", strings.Join(msgs, "; "))
}

func (e *CheckError) Unwrap() error {
	return errdefs.ErrInvalidArgument
}

// ---------------------------------------------------------------------------
// Allocate: the public entry point for the full pipeline
//
// Pipeline: check → CFG → liveness → webs → coloring → allocator
// ---------------------------------------------------------------------------

// Allocate runs every stage over l. Checker errors are returned as a
// *CheckError; any other error is an internal one.
func Allocate(ctx context.Context, l *ir.Listing, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	t := opts.Target
	if t == nil {
		var err error
		if t, err = target.Lookup(target.Default); err != nil {
			return nil, err
		}
	}
	res := &Result{Listing: l, Target: t}

	// --- Step 1: validate ---
	res.Diagnostics = irchecker.Check(l)
	for _, d := range res.Diagnostics {
		if d.Severity == irchecker.Warning {
			log.G(ctx).WithField("func", d.Func).Warn(d.Error())
		}
	}
	if irchecker.HasErrors(res.Diagnostics) {
		return res, &CheckError{Diagnostics: res.Diagnostics}
	}

	// --- Step 2: control flow ---
	log.G(ctx).WithField("funcs", len(l.Funcs)).Debug("building control flow graphs")
	if err := cfg.Build(l); err != nil {
		return nil, err
	}

	// --- Step 3: liveness ---
	res.Sweeps = liveness.New(l).Run(ctx)

	// --- Step 4: webs and coloring ---
	res.Coloring = regalloc.NewColoring(t)
	for _, fn := range l.Funcs {
		a, err := res.Coloring.Allocate(fn)
		if err != nil {
			return nil, errors.Wrapf(err, "allocating %s", fn.Name())
		}
		rep := report(fn, a, res.Coloring.Spilled(fn), t.WordSize)
		log.G(ctx).WithFields(log.Fields{
			"func":     rep.Name,
			"webs":     rep.Webs,
			"spilled":  len(rep.Spilled),
			"attempts": rep.Attempts,
		}).Info("registers allocated")
		res.Reports = append(res.Reports, rep)
	}

	// --- Step 5: pick the allocator ---
	switch opts.Allocator {
	case regalloc.ModeBriggs, "":
		res.Allocator = res.Coloring
	default:
		alloc, err := regalloc.New(opts.Allocator, t)
		if err != nil {
			return nil, err
		}
		res.Allocator = alloc
	}
	return res, nil
}

func report(fn *ir.Func, a *regalloc.Assignment, spilled []*ir.Symbol, wordSize int) FuncReport {
	rep := FuncReport{
		Name:          fn.Name(),
		Blocks:        len(fn.Blocks),
		Webs:          len(a.Webs.Webs),
		Interferences: a.Webs.Graph.EdgeCount(),
		Attempts:      a.Coloring.Attempts,
	}
	for _, s := range spilled {
		rep.Spilled = append(rep.Spilled, s.Name)
		rep.SpillBytes += s.MemorySize(wordSize)
	}
	costs := make(stats.Float64Data, 0, len(a.Webs.Webs))
	for _, w := range a.Webs.Webs {
		costs = append(costs, float64(w.SpillCost))
	}
	// all three fail only on empty input, which leaves the zero values
	rep.MeanSpillCost, _ = costs.Mean()
	rep.MedianSpillCost, _ = costs.Median()
	rep.MaxSpillCost, _ = costs.Max()
	return rep
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// Dump renders the listing with every variable operand annotated with its
// location at that instruction: sym@register, or sym@mem.
func (r *Result) Dump() string {
	parts := make([]string, len(r.Listing.Funcs))
	for k, fn := range r.Listing.Funcs {
		parts[k] = r.dumpFunc(fn)
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func (r *Result) dumpFunc(fn *ir.Func) string {
	var sb strings.Builder
	params := make([]string, len(fn.Params))
	for k, p := range fn.Params {
		params[k] = r.operand(p, nil)
	}
	fmt.Fprintf(&sb, "func %s(%s) {\n", fn.Name(), strings.Join(params, ", "))
	for _, insn := range fn.Instrs {
		if insn.IsLabel() {
			sb.WriteString(insn.String() + "\n")
			continue
		}
		ops := make([]string, len(insn.Operands))
		for k, s := range insn.Operands {
			ops[k] = r.operand(s, insn)
		}
		sb.WriteString("  " + insn.Op.String())
		if len(ops) > 0 {
			sb.WriteString(" " + strings.Join(ops, ", "))
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func (r *Result) operand(s *ir.Symbol, at *ir.Instr) string {
	if s.Class != ir.ClassVar {
		return s.String()
	}
	if reg, ok := r.Allocator.ResolveRegister(s, at); ok {
		return s.Name + "@" + reg
	}
	return s.Name + "@mem"
}

// Summary renders one line per function report.
func (r *Result) Summary() string {
	var sb strings.Builder
	for _, rep := range r.Reports {
		spilled := "-"
		if len(rep.Spilled) > 0 {
			spilled = strings.Join(rep.Spilled, ",")
		}
		fmt.Fprintf(&sb, "%-12s blocks=%d webs=%d edges=%d attempts=%d cost(mean=%.2f median=%.2f max=%.0f) spilled=%s (%d bytes)\n",
			rep.Name, rep.Blocks, rep.Webs, rep.Interferences, rep.Attempts,
			rep.MeanSpillCost, rep.MedianSpillCost, rep.MaxSpillCost, spilled, rep.SpillBytes)
	}
	return sb.String()
}
