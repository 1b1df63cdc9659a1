package ir

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// SetID indexes a live set in a function's arena.
type SetID int

// NoSet marks an instruction whose live sets have not been allocated yet.
const NoSet SetID = -1

// SymbolSet is a set of symbols. Sets are only ever touched by a single
// goroutine, so the thread-unsafe variant is used throughout.
type SymbolSet = mapset.Set[*Symbol]

// NewSymbolSet returns an empty SymbolSet holding syms.
func NewSymbolSet(syms ...*Symbol) SymbolSet {
	return mapset.NewThreadUnsafeSet(syms...)
}

// LiveSets is a per-function arena of live sets. Adjacent instructions in a
// block share one entry: the live-out of instruction i and the live-in of
// instruction i+1 have the same SetID.
type LiveSets struct {
	sets []SymbolSet
}

// New allocates an empty set and returns its index.
func (a *LiveSets) New() SetID {
	a.sets = append(a.sets, NewSymbolSet())
	return SetID(len(a.sets) - 1)
}

// Get returns the set stored at id, or nil for NoSet.
func (a *LiveSets) Get(id SetID) SymbolSet {
	if id == NoSet || int(id) >= len(a.sets) {
		return nil
	}
	return a.sets[id]
}

// Len returns the number of sets in the arena.
func (a *LiveSets) Len() int {
	return len(a.sets)
}

// Reset drops every set.
func (a *LiveSets) Reset() {
	a.sets = nil
}

// SortSymbols orders syms by creation ID.
func SortSymbols(syms []*Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i].ID < syms[j].ID })
}

// Sorted returns the members of set ordered by creation ID. A nil set yields
// nil.
func Sorted(set SymbolSet) []*Symbol {
	if set == nil {
		return nil
	}
	syms := set.ToSlice()
	SortSymbols(syms)
	return syms
}

// FormatSet renders a set as "{a, b, c}" in creation order.
func FormatSet(set SymbolSet) string {
	syms := Sorted(set)
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.String()
	}
	return "{" + strings.Join(names, ", ") + "}"
}
