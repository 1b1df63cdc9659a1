package ir

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
)

// Arity is the accepted operand count range of an opcode. Max < 0 means
// unbounded.
type Arity struct{ Min, Max int }

var arities = map[Opcode]Arity{
	OpLabel:   {0, 0},
	OpAssign:  {2, 2},
	OpArrInit: {3, 3},
	OpLoad:    {3, 3},
	OpStore:   {3, 3},
	OpGoto:    {1, 1},
	OpReturn:  {0, 1},
	OpCall:    {2, -1},
}

// Arity returns the operand count range op accepts.
func (op Opcode) Arity() Arity {
	if op.IsArithmetic() || op.IsCondBranch() {
		return Arity{3, 3}
	}
	return arities[op]
}

// Accepts reports whether n operands fall in the range.
func (a Arity) Accepts(n int) bool {
	return n >= a.Min && (a.Max < 0 || n <= a.Max)
}

func (a Arity) String() string {
	switch {
	case a.Max < 0:
		return fmt.Sprintf("at least %d operand(s)", a.Min)
	case a.Min == a.Max:
		return fmt.Sprintf("%d operand(s)", a.Min)
	}
	return fmt.Sprintf("%d to %d operand(s)", a.Min, a.Max)
}

// CheckOperands returns an internal error when the instruction carries
// fewer or more operands than its opcode takes. Defs, Uses and
// BranchTarget index operands by position and rely on this holding.
func (i *Instr) CheckOperands() error {
	n := len(i.Operands)
	a := i.Op.Arity()
	if n < a.Min {
		return errMissingOperand(i, n)
	}
	if !a.Accepts(n) {
		return errors.Wrapf(errdefs.ErrInternal, "%s: %s takes %s, got %d", i.Func.Name(), i.Op, a, n)
	}
	return nil
}

// Per-opcode definition and use positions.
//
//	assign, arithmetic, call, load   def operand 0
//	assign, arrinit                  use operand 1
//	arithmetic                       use operands 1, 2
//	call                             use operands 2.. plus the callee's entry live-in minus its arguments
//	load                             use operand 2
//	store                            use operands 0 and 2 (the stored value is not a use here)
//	conditional branch               use operands 0, 1
//	return                           use operand 0
//
// Constants never appear in a use set.

// Defs returns the symbols written by the instruction. An instruction
// that fails CheckOperands may report fewer symbols than it names.
func (i *Instr) Defs() []*Symbol {
	if i.IsLabel() || len(i.Operands) == 0 {
		return nil
	}
	switch {
	case i.Op == OpAssign, i.Op.IsArithmetic(), i.Op == OpCall, i.Op == OpLoad:
		return []*Symbol{i.Operands[0]}
	}
	return nil
}

// Uses returns the distinct non-constant symbols read by the instruction,
// in first-seen order. Operands missing from a malformed instruction are
// skipped; cfg.BuildFunc rejects such instructions before liveness runs.
//
// For a call whose callee has an IR body, the callee's current entry
// live-in (arguments removed) is added. For mutually recursive functions
// that set may still be incomplete on the first sweep; the approximation
// is kept as is.
func (i *Instr) Uses() []*Symbol {
	if i.IsLabel() {
		return nil
	}
	var uses []*Symbol
	seen := make(map[*Symbol]bool)
	add := func(s *Symbol) {
		if s == nil || s.IsConstant() || seen[s] {
			return
		}
		seen[s] = true
		uses = append(uses, s)
	}
	operand := func(k int) {
		if k < len(i.Operands) {
			add(i.Operands[k])
		}
	}

	switch {
	case i.Op == OpAssign, i.Op == OpArrInit:
		operand(1)
	case i.Op.IsArithmetic():
		operand(1)
		operand(2)
	case i.Op == OpStore:
		operand(0)
		operand(2)
	case i.Op.IsCondBranch():
		operand(0)
		operand(1)
	case i.Op == OpReturn:
		operand(0)
	case i.Op == OpCall:
		for k := 2; k < len(i.Operands); k++ {
			operand(k)
		}
		if len(i.Operands) > 1 {
			for _, s := range calleeLiveIn(i.Operands[1]) {
				if !s.IsArgument {
					add(s)
				}
			}
		}
	case i.Op == OpLoad:
		operand(2)
	}
	return uses
}

func calleeLiveIn(callee *Symbol) []*Symbol {
	if callee.Func == nil || len(callee.Func.Blocks) == 0 {
		return nil
	}
	return Sorted(callee.Func.Blocks[0].InSet())
}

// IsFallThrough reports whether control may continue to the next
// instruction.
func (i *Instr) IsFallThrough() bool {
	return i.Op != OpGoto && i.Op != OpReturn
}

// BranchTarget returns the label instruction the instruction may jump to,
// or nil if it does not branch.
func (i *Instr) BranchTarget() (*Instr, error) {
	var k int
	switch {
	case i.Op == OpGoto:
		k = 0
	case i.Op.IsCondBranch():
		k = 2
	default:
		return nil, nil
	}
	if k >= len(i.Operands) {
		return nil, errMissingOperand(i, k)
	}
	return i.Func.Label(i.Operands[k])
}
