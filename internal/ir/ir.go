// Package ir is the linear intermediate representation consumed by the
// register allocator: a listing of functions, each a flat list of
// three-address instructions over Symbols.
package ir

import (
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"

	"tigerra/internal/graph"
)

// ---------------------------------------------------------------------------
// Opcodes
// ---------------------------------------------------------------------------

// Opcode is an IR instruction opcode.
type Opcode int

const (
	OpLabel Opcode = iota // label definition (marks a position, no operands)

	// Data movement
	OpAssign  // assign dst, src
	OpArrInit // arrinit arr, size, value
	OpLoad    // load dst, arr, index
	OpStore   // store arr, value, index

	// Arithmetic / logic: op dst, lhs, rhs
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr

	// Control flow
	OpGoto // goto label
	OpBeq  // beq lhs, rhs, label
	OpBne
	OpBlt
	OpBgt
	OpBge
	OpBle
	OpReturn // return [value]
	OpCall   // call dst, callee, args...
)

var opNames = map[Opcode]string{
	OpLabel: "label", OpAssign: "assign", OpArrInit: "arrinit",
	OpLoad: "load", OpStore: "store",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpAnd: "and", OpOr: "or",
	OpGoto: "goto", OpBeq: "beq", OpBne: "bne", OpBlt: "blt", OpBgt: "bgt", OpBge: "bge", OpBle: "ble",
	OpReturn: "return", OpCall: "call",
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opNames))
	for op, name := range opNames {
		if op != OpLabel {
			m[name] = op
		}
	}
	return m
}()

func (op Opcode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op_%d", int(op))
}

// LookupOpcode resolves an instruction mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// IsArithmetic reports whether op is one of add/sub/mul/div/and/or.
func (op Opcode) IsArithmetic() bool {
	return op >= OpAdd && op <= OpOr
}

// IsCondBranch reports whether op is a two-way conditional branch.
func (op Opcode) IsCondBranch() bool {
	return op >= OpBeq && op <= OpBle
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instr is a single IR instruction. Label pseudo-instructions have Op ==
// OpLabel, no operands and Label set.
type Instr struct {
	Op       Opcode
	Operands []*Symbol
	Label    *Symbol
	Leader   bool
	Func     *Func
	Index    int // position in Func.Instrs
	Line     int // source line when parsed from text, 0 otherwise

	// Live-in and live-out, as indices into Func.Live.
	In  SetID
	Out SetID
}

// IsLabel reports whether the instruction is a label definition.
func (i *Instr) IsLabel() bool {
	return i.Op == OpLabel
}

// InSet returns the live-in set, nil before liveness has initialised it.
func (i *Instr) InSet() SymbolSet {
	return i.Func.Live.Get(i.In)
}

// OutSet returns the live-out set, nil before liveness has initialised it.
func (i *Instr) OutSet() SymbolSet {
	return i.Func.Live.Get(i.Out)
}

func (i *Instr) String() string {
	if i.IsLabel() {
		return i.Label.Name + ":"
	}
	ops := make([]string, len(i.Operands))
	for k, s := range i.Operands {
		ops[k] = s.String()
	}
	if len(ops) == 0 {
		return i.Op.String()
	}
	return i.Op.String() + " " + strings.Join(ops, ", ")
}

// ---------------------------------------------------------------------------
// Basic block
// ---------------------------------------------------------------------------

// Block is a maximal straight-line run of instructions starting at a leader.
type Block struct {
	Index  int // vertex in Func.CFG
	Instrs []*Instr
	Func   *Func
}

// Leader returns the first instruction.
func (b *Block) Leader() *Instr {
	return b.Instrs[0]
}

// Last returns the final instruction.
func (b *Block) Last() *Instr {
	return b.Instrs[len(b.Instrs)-1]
}

// InSet is the block's live-in: the live-in of its leader.
func (b *Block) InSet() SymbolSet {
	return b.Leader().InSet()
}

// OutSet is the block's live-out: the live-out of its last instruction.
func (b *Block) OutSet() SymbolSet {
	return b.Last().OutSet()
}

// Successors returns the distinct CFG successors of b.
func (b *Block) Successors() []*Block {
	idx := b.Func.CFG.Successors(b.Index)
	out := make([]*Block, len(idx))
	for k, v := range idx {
		out[k] = b.Func.Blocks[v]
	}
	return out
}

func (b *Block) String() string {
	return fmt.Sprintf("B%d", b.Index)
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// Func is a single function: its instruction stream plus everything the
// backend derives from it.
type Func struct {
	Symbol *Symbol
	Params []*Symbol
	Locals []*Symbol // non-argument variables, in declaration order
	Instrs []*Instr

	Blocks []*Block
	CFG    *graph.Directed
	Live   LiveSets

	leaderToBlock map[*Instr]*Block
	labels        map[*Symbol]*Instr
}

// Name returns the function name.
func (f *Func) Name() string {
	return f.Symbol.Name
}

// Emit appends an instruction. Every operand must be non-nil.
func (f *Func) Emit(op Opcode, operands ...*Symbol) (*Instr, error) {
	if op == OpLabel {
		return nil, errors.Wrapf(errdefs.ErrInternal, "%s: label emitted as instruction", f.Name())
	}
	for k, s := range operands {
		if s == nil {
			return nil, errors.Wrapf(errdefs.ErrInternal, "%s: %s operand %d is nil", f.Name(), op, k)
		}
	}
	return f.append(&Instr{Op: op, Operands: operands}), nil
}

// EmitLabel appends a label definition.
func (f *Func) EmitLabel(label *Symbol) (*Instr, error) {
	if label == nil || label.Class != ClassLabel {
		return nil, errors.Wrapf(errdefs.ErrInternal, "%s: not a label symbol", f.Name())
	}
	insn := f.append(&Instr{Op: OpLabel, Label: label})
	if _, ok := f.labels[label]; !ok {
		f.labels[label] = insn
	}
	return insn, nil
}

func (f *Func) append(insn *Instr) *Instr {
	insn.Func = f
	insn.Index = len(f.Instrs)
	insn.In, insn.Out = NoSet, NoSet
	f.Instrs = append(f.Instrs, insn)
	return insn
}

// Label returns the label instruction defining sym.
func (f *Func) Label(sym *Symbol) (*Instr, error) {
	if sym.Class != ClassLabel {
		return nil, errors.Wrapf(errdefs.ErrInternal, "%s: %q is not a label symbol", f.Name(), sym.Name)
	}
	insn, ok := f.labels[sym]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrInternal, "%s: label %q not found", f.Name(), sym.Name)
	}
	return insn, nil
}

// AddBlock appends b and records its leader.
func (f *Func) AddBlock(b *Block) {
	b.Index = len(f.Blocks)
	b.Func = f
	f.Blocks = append(f.Blocks, b)
	f.leaderToBlock[b.Leader()] = b
}

// ResetBlocks forgets any previous partition.
func (f *Func) ResetBlocks() {
	f.Blocks = nil
	f.CFG = nil
	f.leaderToBlock = make(map[*Instr]*Block)
}

// BlockByLeader returns the block whose first instruction is leader.
func (f *Func) BlockByLeader(leader *Instr) (*Block, error) {
	b, ok := f.leaderToBlock[leader]
	if !ok {
		return nil, errors.Wrapf(errdefs.ErrInternal, "%s: no block for leader %q", f.Name(), leader)
	}
	return b, nil
}

// Owns reports whether sym is a variable local to f.
func (f *Func) Owns(sym *Symbol) bool {
	return sym.Owner == f.Symbol
}

func (f *Func) String() string {
	var sb strings.Builder
	params := make([]string, len(f.Params))
	for k, p := range f.Params {
		params[k] = p.Name
	}
	fmt.Fprintf(&sb, "func %s(%s) {\n", f.Name(), strings.Join(params, ", "))
	for _, insn := range f.Instrs {
		if insn.IsLabel() {
			sb.WriteString(insn.String() + "\n")
		} else {
			sb.WriteString("  " + insn.String() + "\n")
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// Listing is the top-level IR container for one compilation run.
type Listing struct {
	Funcs  []*Func
	nextID int
}

// NewSymbol creates a symbol with the next creation ID.
func (l *Listing) NewSymbol(name string, class SymbolClass, typ *Type) *Symbol {
	s := &Symbol{ID: l.nextID, Name: name, Class: class, Type: typ}
	l.nextID++
	return s
}

// NewFunc registers a function body for the function symbol sym.
func (l *Listing) NewFunc(sym *Symbol) (*Func, error) {
	if sym.Class != ClassFunc {
		return nil, errors.Wrapf(errdefs.ErrInternal, "%q is not a function symbol", sym.Name)
	}
	f := &Func{
		Symbol:        sym,
		leaderToBlock: make(map[*Instr]*Block),
		labels:        make(map[*Symbol]*Instr),
	}
	sym.Func = f
	l.Funcs = append(l.Funcs, f)
	return f, nil
}

// Func returns the function named name, or nil.
func (l *Listing) Func(name string) *Func {
	for _, f := range l.Funcs {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// NewParam adds the next argument of f. Its frame slot is ordinal*wordSize.
func (l *Listing) NewParam(f *Func, name string, typ *Type, wordSize int) *Symbol {
	s := l.NewSymbol(name, ClassVar, typ)
	s.IsArgument = true
	s.Owner = f.Symbol
	s.FrameIndex = len(f.Params) * wordSize
	s.FrameSize = wordSize
	f.Params = append(f.Params, s)
	return s
}

// NewLocal adds a non-argument variable owned by f.
func (l *Listing) NewLocal(f *Func, name string, typ *Type) *Symbol {
	s := l.NewSymbol(name, ClassVar, typ)
	s.Owner = f.Symbol
	f.Locals = append(f.Locals, s)
	return s
}

func errMissingOperand(i *Instr, k int) error {
	return errors.Wrapf(errdefs.ErrInternal, "%s: %s is missing operand %d", i.Func.Name(), i.Op, k)
}
