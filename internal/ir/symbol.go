package ir

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Symbol classes
// ---------------------------------------------------------------------------

// SymbolClass describes what a Symbol names.
type SymbolClass int

const (
	ClassVar        SymbolClass = iota // variable (local, temporary or argument)
	ClassTypedef                       // type alias
	ClassFunc                          // function
	ClassIntConst                      // integer literal
	ClassFloatConst                    // float literal
	ClassLabel                         // branch target
)

var classNames = map[SymbolClass]string{
	ClassVar:        "var",
	ClassTypedef:    "type",
	ClassFunc:       "func",
	ClassIntConst:   "iconst",
	ClassFloatConst: "fconst",
	ClassLabel:      "label",
}

func (c SymbolClass) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class_%d", int(c))
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Type is the (already checked) type of a symbol. Arrays carry their
// element type and length; everything else is a named scalar.
type Type struct {
	Name string
	Elem *Type
	Len  int
}

var (
	TypeVoid  = &Type{Name: "void"}
	TypeInt   = &Type{Name: "int"}
	TypeFloat = &Type{Name: "float"}
)

// ArrayOf returns the type of an n-element array of elem.
func ArrayOf(elem *Type, n int) *Type {
	return &Type{Name: elem.Name + "[" + strconv.Itoa(n) + "]", Elem: elem, Len: n}
}

// IsArray reports whether t is an array type.
func (t *Type) IsArray() bool {
	return t != nil && t.Elem != nil
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}

// LookupType resolves a scalar type name, or nil if unknown.
func LookupType(name string) *Type {
	switch name {
	case "void":
		return TypeVoid
	case "int":
		return TypeInt
	case "float":
		return TypeFloat
	}
	return nil
}

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

// Symbol is a named entity referenced by IR operands. Symbols are created
// once by whoever builds the listing and are compared by identity.
type Symbol struct {
	ID    int // creation order within the listing
	Name  string
	Class SymbolClass
	Type  *Type

	IntVal   int64
	FloatVal float64

	// Frame layout. For arguments FrameIndex is the byte offset of the
	// argument slot, so FrameIndex/WordSize is its ordinal.
	FrameIndex int
	FrameSize  int
	IsArgument bool

	// Owner is the function symbol the variable belongs to.
	Owner *Symbol

	// Func is the IR body of a function symbol, nil for externals.
	Func *Func
}

// IsConstant reports whether s is an integer or float literal.
func (s *Symbol) IsConstant() bool {
	return s.Class == ClassIntConst || s.Class == ClassFloatConst
}

// MemorySize is the number of bytes the symbol occupies in a frame.
func (s *Symbol) MemorySize(wordSize int) int {
	if s.Type.IsArray() {
		return s.Type.Len * wordSize
	}
	return wordSize
}

func (s *Symbol) String() string {
	switch s.Class {
	case ClassIntConst:
		return strconv.FormatInt(s.IntVal, 10)
	case ClassFloatConst:
		return strconv.FormatFloat(s.FloatVal, 'g', -1, 64)
	}
	return s.Name
}
