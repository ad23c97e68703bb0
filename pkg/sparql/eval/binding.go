package eval

import (
	"hash/fnv"
	"sort"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// Frame is one row of a solution sequence: a partial mapping from
// variable name to bound term. Frames are extended by cloning rather
// than mutated in place, so a join engine can backtrack over a shared
// parent frame without needing explicit undo bookkeeping.
type Frame map[string]ast.Term

// NewFrame returns an empty frame.
func NewFrame() Frame { return Frame{} }

// Lookup returns the term bound to name and whether it is bound at all.
func (f Frame) Lookup(name string) (ast.Term, bool) {
	t, ok := f[name]
	return t, ok
}

// Bound reports whether name is bound in f.
func (f Frame) Bound(name string) bool {
	_, ok := f[name]
	return ok
}

// Extend returns a new frame equal to f with name bound to t.
func (f Frame) Extend(name string, t ast.Term) Frame {
	out := f.Clone()
	out[name] = t
	return out
}

// Clone returns a shallow copy of f.
func (f Frame) Clone() Frame {
	out := make(Frame, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Compatible reports whether f and other agree on every variable they
// both bind, the SPARQL join-compatibility test.
func (f Frame) Compatible(other Frame) bool {
	for k, v := range other {
		if existing, ok := f[k]; ok && !existing.Equals(v) {
			return false
		}
	}
	return true
}

// Merge returns a new frame with every binding from f and other. Callers
// must have already checked Compatible.
func (f Frame) Merge(other Frame) Frame {
	out := f.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// RowHash computes the 32-bit FNV-1a hash of f's binding string values for
// vars (sorted for order-independence, joined with '|'). This is the
// dedup key DISTINCT uses; two rows with an identical binding-string
// tuple hash equal, and a hash collision between two distinct tuples is
// an accepted, unchecked risk rather than a correctness bug.
func (f Frame) RowHash(vars []string) uint32 {
	ordered := append([]string(nil), vars...)
	sort.Strings(ordered)
	h := fnv.New32a()
	for i, v := range ordered {
		if i > 0 {
			h.Write([]byte{'|'})
		}
		if t, ok := f[v]; ok {
			h.Write([]byte(t.String()))
		}
	}
	return h.Sum32()
}
