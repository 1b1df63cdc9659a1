package backend_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/containerd/log/logtest"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"tigerra/internal/backend"
	"tigerra/internal/ir"
	"tigerra/internal/parser"
	"tigerra/internal/regalloc"
	"tigerra/internal/target"
)

func listing(t *testing.T, src string) *ir.Listing {
	t.Helper()
	l, err := parser.ParseSource(src, parser.DefaultWordSize)
	assert.NilError(t, err)
	return l
}

func options(t *testing.T, regs int, alloc string) *backend.Options {
	t.Helper()
	tg, err := target.Lookup("mips")
	assert.NilError(t, err)
	return &backend.Options{Target: tg.Limit(regs), Allocator: alloc}
}

func TestStraightLineFitsInRegisters(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	l := listing(t, "func f() {\n  assign x, 1\n  add y, x, 2\n  return y\n}")

	res, err := backend.Allocate(ctx, l, options(t, 4, regalloc.ModeBriggs))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(res.Reports, 1))
	assert.Check(t, is.Len(res.Reports[0].Spilled, 0))
	assert.Check(t, is.Equal(res.Sweeps, 2))

	want := "func f() {\n" +
		"  assign x@$t0, 1\n" +
		"  add y@$t0, x@$t0, 2\n" +
		"  return y@$t0\n" +
		"}\n"
	assert.Check(t, is.Equal(res.Dump(), want))
}

func TestSpillShowsInDump(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	l := listing(t, `
func f() {
  assign a, 1
  assign b, 2
  add c, a, b
  return c
}`)
	res, err := backend.Allocate(ctx, l, options(t, 1, regalloc.ModeBriggs))
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(res.Reports[0].Spilled, []string{"a"}))
	assert.Check(t, is.Equal(res.Reports[0].Attempts, 2))
	assert.Check(t, is.Contains(res.Dump(), "  add c@$t0, a@mem, b@$t0\n"))
	assert.Check(t, is.Equal(res.Reports[0].SpillBytes, 4))
	assert.Check(t, is.Contains(res.Summary(), "spilled=a (4 bytes)"))
}

func TestLoopReport(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	l := listing(t, `
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
}`)
	res, err := backend.Allocate(ctx, l, nil)
	assert.NilError(t, err)
	want := backend.FuncReport{
		Name:            "sum",
		Blocks:          4,
		Webs:            2,
		Interferences:   1,
		Attempts:        1,
		MeanSpillCost:   4.5,
		MedianSpillCost: 4.5,
		MaxSpillCost:    5,
	}
	assert.Check(t, is.DeepEqual(res.Reports, []backend.FuncReport{want}), cmp.Diff([]backend.FuncReport{want}, res.Reports))
	assert.Check(t, is.Equal(res.Target.Name, "mips"))
	assert.Check(t, is.Contains(res.Dump(), "func sum(n@$a0) {\n"))
}

func TestNaiveAllocatorStillColors(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	l := listing(t, "func f(a) {\n  add x, a, 1\n  return x\n}")
	res, err := backend.Allocate(ctx, l, options(t, 0, regalloc.ModeNaive))
	assert.NilError(t, err)

	_, isNaive := res.Allocator.(*regalloc.Naive)
	assert.Check(t, isNaive)
	assert.Check(t, res.Coloring.Func(l.Funcs[0]) != nil, "webs are built for export regardless")
	assert.Check(t, is.Contains(res.Dump(), "  add x@mem, a@$a0, 1\n"))
}

func TestUnknownAllocator(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	l := listing(t, "func f() {\n  return\n}")
	_, err := backend.Allocate(ctx, l, options(t, 0, "linear-scan"))
	assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))
}

func TestCheckErrorsStopThePipeline(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	l := listing(t, "func f() {\n  goto nowhere\n}")
	res, err := backend.Allocate(ctx, l, nil)
	assert.Check(t, is.ErrorType(err, cerrdefs.IsInvalidArgument))

	var checkErr *backend.CheckError
	assert.Assert(t, errors.As(err, &checkErr))
	assert.Check(t, is.ErrorContains(err, `"nowhere"`))
	assert.Check(t, len(res.Diagnostics) > 0)
	assert.Check(t, is.Nil(res.Coloring), "nothing past the checker ran")
}

func TestExampleListing(t *testing.T) {
	ctx := logtest.WithT(context.Background(), t)
	src, err := os.ReadFile(filepath.Join("..", "..", "example.ir"))
	assert.NilError(t, err)
	l, err := parser.ParseSource(string(src), parser.DefaultWordSize)
	assert.NilError(t, err)

	res, err := backend.Allocate(ctx, l, nil)
	assert.NilError(t, err)
	assert.Check(t, is.Len(res.Reports, 2))
	for _, rep := range res.Reports {
		assert.Check(t, is.Len(rep.Spilled, 0), rep.Name)
	}
	dump := res.Dump()
	assert.Check(t, is.Contains(dump, "  call total@$t"))
	assert.Check(t, is.Contains(dump, "  mul x@$t"))
	// the stored value is not read by store, so it has no register there
	assert.Check(t, is.Contains(dump, "  store arr@$t"))
	assert.Check(t, strings.Contains(dump, ", total@mem, 0\n"), dump)
}
