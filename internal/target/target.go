// Package target holds the register tables the allocator colors with.
package target

import (
	"runtime"
	"sort"

	"github.com/containerd/errdefs"
	"github.com/pkg/errors"
)

// Default is the target used when none is configured.
const Default = "mips"

// HostName selects the table of the machine running the allocator.
const HostName = "host"

// Arch identifies a CPU family.
type Arch int

const (
	ArchMIPS Arch = iota
	ArchX86_64
	ArchARM64
)

func (a Arch) String() string {
	switch a {
	case ArchMIPS:
		return "mips"
	case ArchX86_64:
		return "amd64"
	case ArchARM64:
		return "arm64"
	default:
		return "unknown"
	}
}

// Target describes the registers available to the allocator.
type Target struct {
	Name string
	Arch Arch

	// WordSize is the byte size of one argument slot in the frame.
	WordSize int

	// Registers by role.
	ReturnReg    string
	StackPointer string
	FramePointer string
	ArgRegs      []string // argument registers, in order
	GPRegs       []string // general purpose registers handed out by coloring
}

// Lookup returns a fresh Target for name. Aliases follow Go's GOARCH
// spelling as well as the common ones.
func Lookup(name string) (*Target, error) {
	t := &Target{}
	switch name {
	case "mips", "mipsle", "mips32":
		t.fillMIPS()
	case "amd64", "x86_64":
		t.fillX86_64()
	case "arm64", "aarch64":
		t.fillARM64()
	case HostName:
		return Host(), nil
	default:
		return nil, errors.Wrapf(errdefs.ErrInvalidArgument, "unknown target %q (known: %v)", name, Names())
	}
	return t, nil
}

// Host returns the target matching the running Go binary, falling back to
// Default on architectures without a table.
func Host() *Target {
	t, err := Lookup(runtime.GOARCH)
	if err != nil {
		t, _ = Lookup(Default)
	}
	return t
}

// Names lists the canonical target names.
func Names() []string {
	names := []string{ArchMIPS.String(), ArchX86_64.String(), ArchARM64.String()}
	sort.Strings(names)
	return names
}

func (t *Target) fillMIPS() {
	t.Name = "mips"
	t.Arch = ArchMIPS
	t.WordSize = 4
	t.ReturnReg = "$v0"
	t.StackPointer = "$sp"
	t.FramePointer = "$fp"
	t.ArgRegs = []string{"$a0", "$a1", "$a2", "$a3"}
	t.GPRegs = []string{"$t0", "$t1", "$t2", "$t3", "$t4", "$t5", "$t6", "$t7", "$t8", "$t9"}
}

func (t *Target) fillX86_64() {
	t.Name = "amd64"
	t.Arch = ArchX86_64
	t.WordSize = 8
	t.ReturnReg = "rax"
	t.StackPointer = "rsp"
	t.FramePointer = "rbp"
	// System V AMD64 ABI
	t.ArgRegs = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	// callee-saved plus the scratch registers not used for arguments
	t.GPRegs = []string{"rbx", "r10", "r11", "r12", "r13", "r14", "r15"}
}

func (t *Target) fillARM64() {
	t.Name = "arm64"
	t.Arch = ArchARM64
	t.WordSize = 8
	t.ReturnReg = "x0"
	t.StackPointer = "sp"
	t.FramePointer = "x29"
	// AAPCS64: x0-x7 for arguments
	t.ArgRegs = []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"}
	t.GPRegs = []string{"x9", "x10", "x11", "x12", "x13", "x14", "x15",
		"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28"}
}

// Limit returns a copy of t whose GP table is cut to the first n
// registers. n <= 0 or n beyond the table keeps every register.
func (t *Target) Limit(n int) *Target {
	c := *t
	if n > 0 && n < len(t.GPRegs) {
		c.GPRegs = t.GPRegs[:n:n]
	}
	return &c
}

// NumRegs is the coloring budget.
func (t *Target) NumRegs() int {
	return len(t.GPRegs)
}

// ArgReg returns the register carrying the argument at frameIndex, if the
// argument is passed in a register at all.
func (t *Target) ArgReg(frameIndex int) (string, bool) {
	if t.WordSize <= 0 || frameIndex < 0 {
		return "", false
	}
	i := frameIndex / t.WordSize
	if i >= len(t.ArgRegs) {
		return "", false
	}
	return t.ArgRegs[i], true
}
