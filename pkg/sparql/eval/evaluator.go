// Package eval implements the SPARQL 1.1 expression evaluator: arithmetic,
// comparison, boolean logic, and the builtin function library, plus the
// Frame binding type expressions are evaluated against.
//
// Every evaluation path returns a plain ast.Term rather than an error.
// An unsupported operand, a type error, division by zero, an unknown
// function, or an unbound variable all resolve to ast.Unbound, matching
// SPARQL's own error-tolerant FILTER semantics (an erroring expression
// behaves like one that evaluated to an unbound/non-boolean value, it
// does not abort the query).
package eval

import (
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// ExistsProbe runs pattern against the active dataset with frame's
// bindings in scope and reports whether it has at least one solution.
// The executor supplies this at construction time, since only it has
// access to the store and the surrounding join machinery.
type ExistsProbe func(pattern *ast.GraphPattern, frame Frame) bool

const defaultRegexTimeout = 100 * time.Millisecond

// Evaluator evaluates ast.Expression trees against a Frame. It is safe
// for concurrent use: its mutable state, the regex compile cache and the
// RAND source, is guarded by regexMu.
type Evaluator struct {
	exists       ExistsProbe
	regexTimeout time.Duration

	regexMu    sync.Mutex
	regexCache map[uint64]*regexp.Regexp

	rand *rand.Rand
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithExistsProbe wires EXISTS/NOT EXISTS evaluation to the executor's
// pattern-matching machinery. Without it, EXISTS always evaluates false.
func WithExistsProbe(p ExistsProbe) Option {
	return func(e *Evaluator) { e.exists = p }
}

// WithRegexTimeout bounds how long a single REGEX/REPLACE pattern is
// given to compile; past it, REGEX resolves to false and REPLACE to
// Unbound, as for an invalid pattern. The default is 100ms.
func WithRegexTimeout(d time.Duration) Option {
	return func(e *Evaluator) { e.regexTimeout = d }
}

func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		regexTimeout: defaultRegexTimeout,
		regexCache:   make(map[uint64]*regexp.Regexp),
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate computes expr's value under frame. It never panics on
// malformed input and never returns a Go error; see the package doc.
func (e *Evaluator) Evaluate(expr ast.Expression, frame Frame) ast.Term {
	if expr == nil {
		return ast.Unbound
	}
	switch ex := expr.(type) {
	case *ast.BinaryExpr:
		return e.evalBinary(ex, frame)
	case *ast.UnaryExpr:
		return e.evalUnary(ex, frame)
	case *ast.VariableExpr:
		if t, ok := frame.Lookup(ex.Name); ok {
			return t
		}
		return ast.Unbound
	case *ast.LiteralExpr:
		return ast.NewRDFTerm(ex.Term, 0)
	case *ast.FuncCallExpr:
		return e.evalFuncCall(ex, frame)
	case *ast.AggregateExpr:
		// Aggregates are resolved by the group-by stage into synthetic
		// row variables before an expression tree ever sees them again
		// (e.g. HAVING references the aggregate's projected alias); a
		// bare AggregateExpr reaching the evaluator directly has no
		// single-row value.
		return ast.Unbound
	case *ast.InExpr:
		return e.evalIn(ex, frame)
	case *ast.ExistsExpr:
		return e.evalExists(ex, frame)
	default:
		return ast.Unbound
	}
}

func (e *Evaluator) evalExists(ex *ast.ExistsExpr, frame Frame) ast.Term {
	found := false
	if e.exists != nil {
		found = e.exists(ex.Pattern, frame)
	}
	if ex.Not {
		found = !found
	}
	return boolTerm(found)
}

func (e *Evaluator) evalIn(ex *ast.InExpr, frame Frame) ast.Term {
	left := e.Evaluate(ex.Expression, frame)
	sawError := left.IsUnbound()
	found := false
	for _, v := range ex.Values {
		right := e.Evaluate(v, frame)
		eq, ok := equalTerms(left, right)
		if !ok {
			sawError = true
			continue
		}
		if eq {
			found = true
		}
	}
	if found {
		return boolTerm(!ex.Not)
	}
	if sawError {
		return ast.Unbound
	}
	return boolTerm(ex.Not)
}

func boolTerm(b bool) ast.Term {
	return ast.NewRDFTerm(rdf.NewBooleanLiteral(b), 0)
}
