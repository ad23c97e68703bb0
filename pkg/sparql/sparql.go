// Package sparql is the public entry point: parse a query, then execute
// it against a Store. The actual query-language implementation lives in
// the ast/parser/eval/plan/exec subpackages this file wires together.
package sparql

import (
	"context"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/exec"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/parser"
)

// Store is the dataset a query executes against.
type Store = exec.Store

// GraphStore additionally supports GRAPH clauses.
type GraphStore = exec.GraphStore

// GraphLister lets a Store enumerate its graph names, needed for
// `GRAPH ?var { ... }` with an unbound graph variable.
type GraphLister = exec.GraphLister

// Results holds a query's output rows, boolean, or constructed triples.
type Results = exec.Results

// ParseQuery parses source into a query AST.
func ParseQuery(source string) (*ast.Query, error) {
	return parser.ParseQuery(source)
}

// Execute parses nothing itself; it runs an already-parsed query q
// against store and returns its Results.
func Execute(ctx context.Context, store Store, q *ast.Query) (*Results, error) {
	return exec.New(store).Execute(ctx, q)
}

// ExecuteAsk runs q (which must be an ASK query) and returns its boolean
// result directly.
func ExecuteAsk(ctx context.Context, store Store, q *ast.Query) (bool, error) {
	return exec.New(store).ExecuteAsk(ctx, q)
}

// Query parses and executes source in one call, the common case for a
// one-shot query against a Store.
func Query(ctx context.Context, store Store, source string) (*Results, error) {
	q, err := ParseQuery(source)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, store, q)
}
