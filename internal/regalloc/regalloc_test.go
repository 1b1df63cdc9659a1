package regalloc_test

import (
	"context"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"tigerra/internal/cfg"
	"tigerra/internal/ir"
	"tigerra/internal/liveness"
	"tigerra/internal/parser"
	"tigerra/internal/regalloc"
	"tigerra/internal/target"
)

func analyze(t *testing.T, src string) *ir.Listing {
	t.Helper()
	l, err := parser.ParseSource(src, parser.DefaultWordSize)
	assert.NilError(t, err)
	assert.NilError(t, cfg.Build(l))
	liveness.New(l).Run(context.Background())
	return l
}

func mips(t *testing.T, n int) *target.Target {
	t.Helper()
	tg, err := target.Lookup("mips")
	assert.NilError(t, err)
	return tg.Limit(n)
}

func local(fn *ir.Func, name string) *ir.Symbol {
	for _, s := range fn.Locals {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func TestStraightLineNoSpills(t *testing.T) {
	fn := analyze(t, "func f() {\n  assign x, 1\n  add y, x, 2\n  return y\n}").Funcs[0]
	alloc := regalloc.NewColoring(mips(t, 4))
	a, err := alloc.Allocate(fn)
	assert.NilError(t, err)
	assert.Check(t, is.Len(a.Coloring.Spilled, 0))
	assert.Check(t, is.Len(alloc.Spilled(fn), 0))

	x, y := local(fn, "x"), local(fn, "y")
	assign, add, ret := fn.Instrs[0], fn.Instrs[1], fn.Instrs[2]

	for _, tc := range []struct {
		sym  *ir.Symbol
		at   *ir.Instr
		want string
		ok   bool
	}{
		{x, assign, "$t0", true},
		{x, add, "$t0", true},
		{y, add, "$t0", true},
		{y, ret, "$t0", true},
		{x, ret, "", false}, // dead by then
	} {
		reg, ok := alloc.ResolveRegister(tc.sym, tc.at)
		assert.Check(t, is.Equal(ok, tc.ok), "%s at %q", tc.sym, tc.at)
		assert.Check(t, is.Equal(reg, tc.want), "%s at %q", tc.sym, tc.at)
	}
}

func TestSpilledSymbolHasNoRegister(t *testing.T) {
	fn := analyze(t, `
func f() {
  assign a, 1
  assign b, 2
  add c, a, b
  return c
}`).Funcs[0]
	alloc := regalloc.NewColoring(mips(t, 1))
	a, err := alloc.Allocate(fn)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(a.Coloring.Attempts, 2))

	spilled := alloc.Spilled(fn)
	assert.Assert(t, is.Len(spilled, 1))
	assert.Check(t, is.Equal(spilled[0].Name, "a"))

	_, ok := alloc.ResolveRegister(local(fn, "a"), fn.Instrs[1])
	assert.Check(t, !ok)
	reg, ok := alloc.ResolveRegister(local(fn, "b"), fn.Instrs[2])
	assert.Check(t, ok)
	assert.Check(t, is.Equal(reg, "$t0"))

	w := a.Webs.WebsOf(local(fn, "a"))[0]
	assert.Check(t, w.Spilled())
	assert.Check(t, is.Equal(w.Register, ""))
}

func TestInterferingWebsGetDistinctRegisters(t *testing.T) {
	fn := analyze(t, `
func sum(n) {
  assign acc, 0
  assign i, 1
loop:
  bgt i, n, done
  add acc, acc, i
  add i, i, 1
  goto loop
done:
  return acc
}`).Funcs[0]
	alloc := regalloc.NewColoring(mips(t, 0))
	_, err := alloc.Allocate(fn)
	assert.NilError(t, err)

	body := fn.Instrs[4] // add acc, acc, i
	acc, ok := alloc.ResolveRegister(local(fn, "acc"), body)
	assert.Assert(t, ok)
	i, ok := alloc.ResolveRegister(local(fn, "i"), body)
	assert.Assert(t, ok)
	assert.Check(t, acc != i)

	n, ok := alloc.ResolveRegister(fn.Params[0], body)
	assert.Check(t, ok)
	assert.Check(t, is.Equal(n, "$a0"))
}

func TestArgumentRegisters(t *testing.T) {
	fn := analyze(t, "func g(p, q, r, s, u) {\n  return u\n}").Funcs[0]
	tg := mips(t, 0)
	for _, alloc := range []regalloc.Allocator{regalloc.NewNaive(tg), regalloc.NewColoring(tg)} {
		for i, want := range []string{"$a0", "$a1", "$a2", "$a3"} {
			reg, ok := alloc.ResolveRegister(fn.Params[i], fn.Instrs[0])
			assert.Check(t, ok)
			assert.Check(t, is.Equal(reg, want))
		}
		// past the table: passed on the stack
		_, ok := alloc.ResolveRegister(fn.Params[4], fn.Instrs[0])
		assert.Check(t, !ok)
	}
}

func TestNaiveKeepsLocalsInMemory(t *testing.T) {
	fn := analyze(t, "func f(a) {\n  add x, a, 1\n  return x\n}").Funcs[0]
	alloc := regalloc.NewNaive(mips(t, 0))
	_, ok := alloc.ResolveRegister(local(fn, "x"), fn.Instrs[1])
	assert.Check(t, !ok)
	reg, ok := alloc.ResolveRegister(fn.Params[0], fn.Instrs[0])
	assert.Check(t, ok)
	assert.Check(t, is.Equal(reg, "$a0"))
}

func TestUnallocatedFunction(t *testing.T) {
	fn := analyze(t, "func f() {\n  assign x, 1\n  return x\n}").Funcs[0]
	alloc := regalloc.NewColoring(mips(t, 0))
	_, ok := alloc.ResolveRegister(local(fn, "x"), fn.Instrs[0])
	assert.Check(t, !ok)
	assert.Check(t, is.Nil(alloc.Func(fn)))
	assert.Check(t, is.Len(alloc.Spilled(fn), 0))
	_, ok = alloc.ResolveRegister(nil, fn.Instrs[0])
	assert.Check(t, !ok)
}

func TestNew(t *testing.T) {
	tg := mips(t, 0)
	a, err := regalloc.New(regalloc.ModeBriggs, tg)
	assert.NilError(t, err)
	_, isColoring := a.(*regalloc.Coloring)
	assert.Check(t, isColoring)

	a, err = regalloc.New(regalloc.ModeNaive, tg)
	assert.NilError(t, err)
	_, isNaive := a.(*regalloc.Naive)
	assert.Check(t, isNaive)

	_, err = regalloc.New("linear-scan", tg)
	assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
}
