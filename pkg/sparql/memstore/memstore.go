// Package memstore is an in-memory triple/quad store: a plain slice of
// quads plus three sorted indexes (SPO/POS/OSP), loaded from N-Quads
// text. It implements the query engine's Store and GraphStore interfaces
// for tests and the command-line demo — a stand-in for a real persistent
// backend, which is out of scope here.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/exec"
)

// TripleIterator is an alias for the executor's iterator contract, kept
// here so callers that only import memstore don't also need exec.
type TripleIterator = exec.TripleIterator

// entry is one stored quad, keyed three ways for index lookups.
type entry struct {
	s, p, o, g rdf.Term
}

// Store is an in-memory, read-after-write triple/quad store safe for
// concurrent readers; writes take an exclusive lock and rebuild the
// sorted indexes.
type Store struct {
	mu      sync.RWMutex
	entries []entry

	spo []int
	pos []int
	osp []int
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// LoadNQuads parses text as N-Quads and adds every quad to the store.
func LoadNQuads(s *Store, text string) error {
	quads, err := rdf.NewNQuadsParser(text).Parse()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quads {
		g := q.Graph
		if g == nil {
			g = rdf.NewDefaultGraph()
		}
		s.entries = append(s.entries, entry{s: q.Subject, p: q.Predicate, o: q.Object, g: g})
	}
	s.reindex()
	return nil
}

// AddTriple adds a single triple to the default graph, used by the
// command-line loader and programmatic test fixtures.
func (s *Store) AddTriple(subject, predicate, object rdf.Term) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry{s: subject, p: predicate, o: object, g: rdf.NewDefaultGraph()})
	s.reindex()
}

// ListGraphs implements exec.GraphLister, returning each distinct graph
// name present in the store (including the default graph), needed to
// evaluate GRAPH clauses with an unbound graph variable.
func (s *Store) ListGraphs(ctx context.Context) ([]ast.Term, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]ast.Term)
	for _, e := range s.entries {
		key := e.g.String()
		if _, ok := seen[key]; !ok {
			seen[key] = ast.NewRDFTerm(e.g, 0)
		}
	}
	out := make([]ast.Term, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) reindex() {
	n := len(s.entries)
	s.spo = make([]int, n)
	s.pos = make([]int, n)
	s.osp = make([]int, n)
	for i := range s.entries {
		s.spo[i], s.pos[i], s.osp[i] = i, i, i
	}
	cmp := func(idx []int, key func(entry) (string, string, string)) func(i, j int) bool {
		return func(i, j int) bool {
			a1, a2, a3 := key(s.entries[idx[i]])
			b1, b2, b3 := key(s.entries[idx[j]])
			if a1 != b1 {
				return a1 < b1
			}
			if a2 != b2 {
				return a2 < b2
			}
			return a3 < b3
		}
	}
	sort.SliceStable(s.spo, cmp(s.spo, func(e entry) (string, string, string) {
		return e.s.String(), e.p.String(), e.o.String()
	}))
	sort.SliceStable(s.pos, cmp(s.pos, func(e entry) (string, string, string) {
		return e.p.String(), e.o.String(), e.s.String()
	}))
	sort.SliceStable(s.osp, cmp(s.osp, func(e entry) (string, string, string) {
		return e.o.String(), e.s.String(), e.p.String()
	}))
}

// QueryCurrent implements exec.Store: ast.Term{} (the zero Term) in any
// position is a wildcard.
func (s *Store) QueryCurrent(ctx context.Context, subject, predicate, object ast.Term) (TripleIterator, error) {
	return s.QueryGraph(ctx, ast.Term{}, subject, predicate, object)
}

// QueryGraph implements exec.GraphStore. A zero graph term matches every
// graph (QueryCurrent's use); a bound graph term restricts to it.
func (s *Store) QueryGraph(ctx context.Context, graph, subject, predicate, object ast.Term) (TripleIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Index choice: POS when only the predicate is bound, OSP when only
	// the object is bound, SPO otherwise. It only decides which slice to
	// linear-scan, and so the order of the matches.
	idx := s.spo
	switch {
	case !predicate.IsUnbound() && object.IsUnbound() && subject.IsUnbound():
		idx = s.pos
	case !object.IsUnbound() && subject.IsUnbound() && predicate.IsUnbound():
		idx = s.osp
	}

	matches := make([]entry, 0, len(idx))
	for _, i := range idx {
		e := s.entries[i]
		if !graph.IsUnbound() && !termMatches(graph, e.g) {
			continue
		}
		if !termMatches(subject, e.s) || !termMatches(predicate, e.p) || !termMatches(object, e.o) {
			continue
		}
		matches = append(matches, e)
	}
	return &sliceIterator{entries: matches}, nil
}

func termMatches(pattern ast.Term, candidate rdf.Term) bool {
	if pattern.IsUnbound() {
		return true
	}
	if pattern.RDF == nil {
		return false
	}
	return pattern.RDF.Equals(candidate)
}

// sliceIterator walks a pre-filtered slice of matched entries. Close
// releases any resources the implementation holds; it needs none.
type sliceIterator struct {
	entries []entry
	pos     int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.entries) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Triple() (subject, predicate, object ast.Term) {
	e := it.entries[it.pos-1]
	return ast.NewRDFTerm(e.s, 0), ast.NewRDFTerm(e.p, 0), ast.NewRDFTerm(e.o, 0)
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
