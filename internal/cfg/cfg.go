// Package cfg partitions each function of a listing into basic blocks and
// builds the block-level control flow graph.
package cfg

import (
	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"tigerra/internal/graph"
	"tigerra/internal/ir"
)

// Build runs BuildFunc over every function of l, stopping at the first
// error.
func Build(l *ir.Listing) error {
	for _, fn := range l.Funcs {
		if err := BuildFunc(fn); err != nil {
			return err
		}
	}
	return nil
}

// BuildFunc marks leaders, splits fn into blocks and wires the CFG. Any
// previous partition of fn is discarded.
//
// An empty function or a branch to a label without a block is an internal
// error: the listing is malformed and nothing downstream can run.
func BuildFunc(fn *ir.Func) error {
	if len(fn.Instrs) == 0 {
		return errors.Wrapf(errdefs.ErrInternal, "%s: empty function", fn.Name())
	}
	for _, insn := range fn.Instrs {
		if err := insn.CheckOperands(); err != nil {
			return err
		}
	}
	fn.ResetBlocks()

	if err := markLeaders(fn); err != nil {
		return err
	}
	split(fn)
	return connect(fn)
}

// ---------------------------------------------------------------------------
// Leaders
// ---------------------------------------------------------------------------

// markLeaders flags the first instruction, every branch target and every
// instruction following a branch.
func markLeaders(fn *ir.Func) error {
	for _, insn := range fn.Instrs {
		insn.Leader = false
	}
	nextIsLeader := true
	for _, insn := range fn.Instrs {
		if nextIsLeader {
			insn.Leader = true
			nextIsLeader = false
		}
		target, err := insn.BranchTarget()
		if err != nil {
			return err
		}
		if target != nil {
			target.Leader = true
			nextIsLeader = true
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

func split(fn *ir.Func) {
	var cur []*ir.Instr
	for _, insn := range fn.Instrs {
		if insn.Leader && len(cur) > 0 {
			fn.AddBlock(&ir.Block{Instrs: cur})
			cur = nil
		}
		cur = append(cur, insn)
	}
	if len(cur) > 0 {
		fn.AddBlock(&ir.Block{Instrs: cur})
	}
}

// ---------------------------------------------------------------------------
// Edges
// ---------------------------------------------------------------------------

// connect adds the fallthrough edge from each block to the next one and the
// branch edge to the target's block. When both land on the same block the
// graph keeps two parallel edges.
func connect(fn *ir.Func) error {
	g := graph.NewDirected(len(fn.Blocks))
	for i, b := range fn.Blocks {
		last := b.Last()
		if i+1 < len(fn.Blocks) && last.IsFallThrough() {
			g.AddEdge(i, i+1)
		}
		target, err := last.BranchTarget()
		if err != nil {
			return err
		}
		if target == nil {
			continue
		}
		tb, err := fn.BlockByLeader(target)
		if err != nil {
			return errors.Wrapf(err, "%s: branch in %s", fn.Name(), b)
		}
		g.AddEdge(i, tb.Index)
	}
	fn.CFG = g
	return nil
}
