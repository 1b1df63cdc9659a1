// Package dot renders control flow graphs and interference graphs in
// Graphviz's dot language.
package dot

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"tigerra/internal/ir"
	"tigerra/internal/web"
)

// CFGFile and WebFile name the files the CLI writes for function fn.
func CFGFile(fn string) string { return "cfg." + fn + ".dot" }
func WebFile(fn string) string { return "web." + fn + ".dot" }

// WriteCFG writes the CFG of fn as a digraph with one record node per
// block. With liveness, each instruction is preceded by its live-in set
// and the block ends with its live-out set.
func WriteCFG(w io.Writer, fn *ir.Func, withLiveness bool) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "digraph %s {\n", quote(fn.Name()))
	for _, b := range fn.Blocks {
		fmt.Fprintf(bw, "  %d [ shape=\"Mrecord\" label=%s ];\n", b.Index, quote(BlockLabel(b, withLiveness)))
	}
	if fn.CFG != nil {
		for _, b := range fn.Blocks {
			for _, succ := range fn.CFG.OutEdges(b.Index) {
				fmt.Fprintf(bw, "  %d -> %d;\n", b.Index, succ)
			}
		}
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// BlockLabel renders the instructions of b, one per left-aligned line.
func BlockLabel(b *ir.Block, withLiveness bool) string {
	var sb strings.Builder
	for _, insn := range b.Instrs {
		if withLiveness && !insn.IsLabel() && insn.InSet() != nil {
			sb.WriteString("- " + liveSet(insn.InSet()) + `\l`)
		}
		sb.WriteString(insn.String() + `\l`)
	}
	if withLiveness && b.OutSet() != nil {
		sb.WriteString("- " + liveSet(b.OutSet()) + `\l`)
	}
	return sb.String()
}

// liveSet renders set as "[a, b]". Braces would open a field group inside
// a record label.
func liveSet(set ir.SymbolSet) string {
	syms := ir.Sorted(set)
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// WriteWebs writes the interference graph of res. Vertices are labelled
// "symbol: cost" followed by the web's register, or "spill" once coloring
// left it in memory.
func WriteWebs(w io.Writer, res *web.Result) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "graph %s {\n", quote(res.Func.Name()))
	for _, wb := range res.Webs {
		fmt.Fprintf(bw, "  %d [ label=%s ];\n", wb.ID, quote(WebLabel(wb)))
	}
	for _, e := range res.Graph.Edges() {
		fmt.Fprintf(bw, "  %d -- %d;\n", e[0], e[1])
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

// WebLabel is the vertex label of wb.
func WebLabel(wb *web.Web) string {
	if wb.Spilled() {
		return wb.String() + " spill"
	}
	return wb.String() + " " + wb.Register
}

// quote makes s a dot string literal. Backslash sequences such as \l are
// kept, since dot gives them meaning inside labels.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
