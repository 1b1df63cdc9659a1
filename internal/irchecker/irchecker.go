// Package irchecker validates the structure of an IR listing before the
// register allocator runs over it. It reports problems as diagnostics rather
// than failing on the first one, so a malformed listing can be fixed in one
// go.
package irchecker

import (
	"fmt"

	"tigerra/internal/ir"
)

// ---------------------------------------------------------------------------
// Diagnostic severity
// ---------------------------------------------------------------------------

// Severity indicates whether a diagnostic is an error or a warning.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Diagnostic
// ---------------------------------------------------------------------------

// Diagnostic is a single message about one function of the listing. Line is
// the source line of the offending instruction, 0 when the listing was not
// parsed from text.
type Diagnostic struct {
	Message  string
	Func     string
	Line     int
	Severity Severity
}

func (d Diagnostic) Error() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s, line %d: %s: %s", d.Func, d.Line, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Func, d.Severity, d.Message)
}

// HasErrors returns true if any diagnostic in the slice is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Checker
// ---------------------------------------------------------------------------

// Checker holds the state for checking one listing.
type Checker struct {
	diagnostics []Diagnostic
	fn          *ir.Func
}

// Check validates every function of l and returns all diagnostics. The
// returned slice is empty when the listing is well formed.
func Check(l *ir.Listing) []Diagnostic {
	c := &Checker{}
	seen := make(map[string]bool)
	for _, fn := range l.Funcs {
		if seen[fn.Name()] {
			c.fn = fn
			c.error(0, fmt.Sprintf("function %q defined more than once", fn.Name()))
		}
		seen[fn.Name()] = true
		c.checkFunc(fn)
	}
	return c.diagnostics
}

// ---- helpers ----

func (c *Checker) error(line int, msg string) {
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Message:  msg,
		Func:     c.fn.Name(),
		Line:     line,
		Severity: Error,
	})
}

func (c *Checker) warn(line int, msg string) {
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Message:  msg,
		Func:     c.fn.Name(),
		Line:     line,
		Severity: Warning,
	})
}

// ---------------------------------------------------------------------------
// Function checks
// ---------------------------------------------------------------------------

func (c *Checker) checkFunc(fn *ir.Func) {
	c.fn = fn
	if len(fn.Instrs) == 0 {
		c.error(0, "function has no instructions")
		return
	}

	defined := make(map[*ir.Symbol]*ir.Instr)
	targeted := make(map[*ir.Symbol]*ir.Instr)

	for _, insn := range fn.Instrs {
		if insn.IsLabel() {
			if prev, dup := defined[insn.Label]; dup {
				c.error(insn.Line, fmt.Sprintf("label %q already defined (line %d)", insn.Label.Name, prev.Line))
				continue
			}
			defined[insn.Label] = insn
			continue
		}
		c.checkInstr(insn, targeted)
	}

	for _, insn := range fn.Instrs {
		if !insn.IsLabel() {
			continue
		}
		if _, ok := targeted[insn.Label]; !ok && defined[insn.Label] == insn {
			c.warn(insn.Line, fmt.Sprintf("label %q is never branched to", insn.Label.Name))
		}
	}
	var missing []*ir.Symbol
	for sym := range targeted {
		if _, ok := defined[sym]; !ok {
			missing = append(missing, sym)
		}
	}
	ir.SortSymbols(missing)
	for _, sym := range missing {
		c.error(targeted[sym].Line, fmt.Sprintf("branch to undefined label %q", sym.Name))
	}

	if last := fn.Instrs[len(fn.Instrs)-1]; last.IsFallThrough() {
		c.warn(last.Line, "control reaches the end of the function without a return")
	}
}

func (c *Checker) checkInstr(insn *ir.Instr, targeted map[*ir.Symbol]*ir.Instr) {
	n := len(insn.Operands)
	if a := insn.Op.Arity(); !a.Accepts(n) {
		c.error(insn.Line, fmt.Sprintf("%s takes %s, got %d", insn.Op, a, n))
		return
	}

	for _, d := range insn.Defs() {
		if d.Class != ir.ClassVar {
			c.error(insn.Line, fmt.Sprintf("%s cannot write to %s %q", insn.Op, d.Class, d))
		} else if d.Owner != c.fn.Symbol {
			c.error(insn.Line, fmt.Sprintf("%s writes %q, which belongs to another function", insn.Op, d))
		}
	}

	switch {
	case insn.Op == ir.OpGoto:
		c.checkLabel(insn, insn.Operands[0], targeted)
	case insn.Op.IsCondBranch():
		c.checkValue(insn, insn.Operands[0])
		c.checkValue(insn, insn.Operands[1])
		c.checkLabel(insn, insn.Operands[2], targeted)
	case insn.Op == ir.OpCall:
		c.checkCall(insn)
	case insn.Op == ir.OpLoad:
		c.checkArray(insn, insn.Operands[1])
		c.checkValue(insn, insn.Operands[2])
	case insn.Op == ir.OpStore, insn.Op == ir.OpArrInit:
		c.checkArray(insn, insn.Operands[0])
		for _, s := range insn.Operands[1:] {
			c.checkValue(insn, s)
		}
	case insn.Op == ir.OpReturn:
		for _, s := range insn.Operands {
			c.checkValue(insn, s)
		}
	default:
		for _, s := range insn.Operands[1:] {
			c.checkValue(insn, s)
		}
	}
}

func (c *Checker) checkLabel(insn *ir.Instr, sym *ir.Symbol, targeted map[*ir.Symbol]*ir.Instr) {
	if sym.Class != ir.ClassLabel {
		c.error(insn.Line, fmt.Sprintf("%s target %q is a %s, not a label", insn.Op, sym, sym.Class))
		return
	}
	if _, ok := targeted[sym]; !ok {
		targeted[sym] = insn
	}
}

// checkValue accepts constants and variables of the current function.
func (c *Checker) checkValue(insn *ir.Instr, sym *ir.Symbol) {
	switch {
	case sym.IsConstant():
	case sym.Class == ir.ClassVar:
		if sym.Owner != c.fn.Symbol {
			c.error(insn.Line, fmt.Sprintf("%s reads %q, which belongs to another function", insn.Op, sym))
		}
	default:
		c.error(insn.Line, fmt.Sprintf("%s operand %q is a %s, not a value", insn.Op, sym, sym.Class))
	}
}

func (c *Checker) checkArray(insn *ir.Instr, sym *ir.Symbol) {
	c.checkValue(insn, sym)
	if sym.Class == ir.ClassVar && !sym.Type.IsArray() {
		c.warn(insn.Line, fmt.Sprintf("%s on %q, which is not declared as an array", insn.Op, sym))
	}
}

func (c *Checker) checkCall(insn *ir.Instr) {
	callee := insn.Operands[1]
	if callee.Class != ir.ClassFunc {
		c.error(insn.Line, fmt.Sprintf("call target %q is a %s, not a function", callee, callee.Class))
		return
	}
	args := insn.Operands[2:]
	for _, s := range args {
		c.checkValue(insn, s)
	}
	if callee.Func != nil && len(args) != len(callee.Func.Params) {
		c.warn(insn.Line, fmt.Sprintf("call to %q passes %d argument(s), it takes %d",
			callee.Name, len(args), len(callee.Func.Params)))
	}
}

