// Package exec executes a compiled plan.Node tree against a Store,
// producing solution rows (for SELECT/ASK), constructed triples (for
// CONSTRUCT/DESCRIBE), or a boolean (for ASK).
package exec

import (
	"context"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// Store is the minimal dataset a query executes against. A nil/zero Term
// in any position is a wildcard.
type Store interface {
	QueryCurrent(ctx context.Context, subject, predicate, object ast.Term) (TripleIterator, error)
}

// TripleIterator walks a sequence of matched triples.
type TripleIterator interface {
	Next() bool
	Triple() (subject, predicate, object ast.Term)
	Err() error
	Close() error
}

// GraphStore is a Store that also supports GRAPH clauses.
type GraphStore interface {
	Store
	QueryGraph(ctx context.Context, graph, subject, predicate, object ast.Term) (TripleIterator, error)
}

// GraphLister lets a Store enumerate its known graph names, needed to
// evaluate `GRAPH ?var { ... }` with an unbound graph variable.
type GraphLister interface {
	ListGraphs(ctx context.Context) ([]ast.Term, error)
}

// TemporalStore is a Store that also keeps enough history to answer
// AS OF/DURING/ALL VERSIONS clauses: triples as they stood at a point in
// time, across a time range, or every version ever recorded, rather than
// only the current state QueryCurrent exposes. at/from/to carry the
// literal temporal-clause text verbatim (e.g. an xsd:dateTime lexical
// form); interpreting that text is the store's responsibility, not the
// executor's.
type TemporalStore interface {
	Store
	QueryAsOf(ctx context.Context, at string, subject, predicate, object ast.Term) (TripleIterator, error)
	QueryDuring(ctx context.Context, from, to string, subject, predicate, object ast.Term) (TripleIterator, error)
	QueryAllVersions(ctx context.Context, subject, predicate, object ast.Term) (TripleIterator, error)
}
