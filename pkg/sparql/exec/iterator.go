package exec

import (
	"context"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/eval"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/plan"
)

// RowIterator yields solution rows, each a Frame that extends the outer
// frame it was built with. Implementations mirror the teacher's
// scanIterator/nestedLoopJoinIterator/filterIterator family, generalized
// to plan.Node and eval.Frame.
type RowIterator interface {
	Next(ctx context.Context) bool
	Frame() eval.Frame
	Err() error
	Close() error
}

// build compiles node into a RowIterator seeded with outer: every row it
// produces extends outer rather than starting from scratch, which is how
// a nested-loop Join pushes the left row's bindings into the right side's
// scans without a separate post-hoc compatibility pass.
func (x *Executor) build(ctx context.Context, node plan.Node, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	switch n := node.(type) {
	case nil:
		return &unitIterator{frame: outer}, nil
	case *plan.Unit:
		return &unitIterator{frame: outer}, nil
	case *plan.Scan:
		return x.buildScan(ctx, n, graph, outer)
	case *plan.Join:
		return x.buildJoin(ctx, n, graph, outer)
	case *plan.Filter:
		return x.buildFilter(ctx, n, graph, outer)
	case *plan.Bind:
		return x.buildBind(ctx, n, graph, outer)
	case *plan.Optional:
		return x.buildOptional(ctx, n, graph, outer)
	case *plan.Union:
		return x.buildUnion(ctx, n, graph, outer)
	case *plan.Minus:
		return x.buildMinus(ctx, n, graph, outer)
	case *plan.Values:
		return x.buildValues(ctx, n, graph, outer)
	case *plan.Graph:
		return x.buildGraph(ctx, n, outer)
	case *plan.Service:
		return x.buildService(ctx, n, graph, outer)
	case *plan.SubSelect:
		return x.buildSubSelect(ctx, n, outer)
	default:
		if it, handled, err := x.buildModifier(ctx, node, graph, outer); handled {
			return it, err
		}
		return nil, &Error{Detail: "exec: unsupported pattern plan node"}
	}
}

// Error reports a structural problem discovered while executing a plan,
// distinct from a Store's I/O error or an expression evaluation failure
// (which never surfaces; see the eval package doc).
type Error struct{ Detail string }

func (e *Error) Error() string { return "exec: " + e.Detail }

// --- Unit -------------------------------------------------------------

type unitIterator struct {
	frame eval.Frame
	done  bool
}

func (it *unitIterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	it.done = true
	return true
}
func (it *unitIterator) Frame() eval.Frame { return it.frame }
func (it *unitIterator) Err() error        { return nil }
func (it *unitIterator) Close() error      { return nil }

// --- Scan ---------------------------------------------------------------

type scanIterator struct {
	triples TripleIterator
	pattern ast.TriplePattern
	outer   eval.Frame
	frame   eval.Frame
	err     error
}

func (x *Executor) buildScan(ctx context.Context, n *plan.Scan, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	if n.Pattern.HasPath() {
		return x.buildPathScan(ctx, n.Pattern, graph, outer)
	}
	s := resolveTerm(n.Pattern.Subject, outer)
	p := resolveTerm(n.Pattern.Predicate, outer)
	o := resolveTerm(n.Pattern.Object, outer)

	triples, err := x.queryGraph(ctx, graph, s, p, o)
	if err != nil {
		return nil, err
	}
	return &scanIterator{triples: triples, pattern: n.Pattern, outer: outer}, nil
}

// resolveTerm substitutes a variable already bound in frame with its
// concrete value, pushing join bindings down into the store query. An
// unbound variable becomes the zero Term, the store's wildcard; a
// non-variable term passes through unchanged and the store matches it.
func resolveTerm(t ast.Term, frame eval.Frame) ast.Term {
	if t.IsVariable() {
		if v, ok := frame.Lookup(t.Name); ok {
			return v
		}
		return ast.Term{}
	}
	return t
}

func (it *scanIterator) Next(ctx context.Context) bool {
	for it.triples.Next() {
		s, p, o := it.triples.Triple()
		frame := it.outer
		var ok bool
		if frame, ok = bindPosition(frame, it.pattern.Subject, s); !ok {
			continue
		}
		if frame, ok = bindPosition(frame, it.pattern.Predicate, p); !ok {
			continue
		}
		if frame, ok = bindPosition(frame, it.pattern.Object, o); !ok {
			continue
		}
		it.frame = frame
		return true
	}
	it.err = it.triples.Err()
	return false
}

// bindPosition extends frame with pattern bound to value, the same
// consistency check the store applies to a non-variable pattern term
// (e.g. `?x foo ?x`, where both positions must agree).
func bindPosition(frame eval.Frame, pattern ast.Term, value ast.Term) (eval.Frame, bool) {
	if !pattern.IsVariable() {
		return frame, true
	}
	if existing, ok := frame.Lookup(pattern.Name); ok {
		return frame, existing.Equals(value)
	}
	return frame.Extend(pattern.Name, value), true
}

func (it *scanIterator) Frame() eval.Frame { return it.frame }
func (it *scanIterator) Err() error        { return it.err }
func (it *scanIterator) Close() error      { return it.triples.Close() }

func (x *Executor) queryGraph(ctx context.Context, graph, s, p, o ast.Term) (TripleIterator, error) {
	if x.temporal != nil {
		return x.queryTemporal(ctx, graph, s, p, o)
	}
	if graph.IsUnbound() {
		return x.store.QueryCurrent(ctx, s, p, o)
	}
	gs, ok := x.store.(GraphStore)
	if !ok {
		return &emptyTriples{}, nil
	}
	return gs.QueryGraph(ctx, graph, s, p, o)
}

// queryTemporal routes a pattern scan through the store's temporal
// variant for an AS OF/DURING/ALL VERSIONS query. A store that does not
// implement TemporalStore reports an explicit error rather than silently
// falling back to the current-state view.
func (x *Executor) queryTemporal(ctx context.Context, graph, s, p, o ast.Term) (TripleIterator, error) {
	if !graph.IsUnbound() {
		return nil, &Error{Detail: "exec: GRAPH combined with a temporal clause is not supported"}
	}
	ts, ok := x.store.(TemporalStore)
	if !ok {
		return nil, &Error{Detail: "exec: store does not implement TemporalStore, cannot evaluate AS OF/DURING/ALL VERSIONS"}
	}
	switch x.temporal.Kind {
	case ast.TemporalAsOf:
		return ts.QueryAsOf(ctx, x.temporal.At, s, p, o)
	case ast.TemporalDuring:
		return ts.QueryDuring(ctx, x.temporal.From, x.temporal.To, s, p, o)
	case ast.TemporalAllVersions:
		return ts.QueryAllVersions(ctx, s, p, o)
	default:
		return nil, &Error{Detail: "exec: unknown temporal clause kind"}
	}
}

type emptyTriples struct{}

func (*emptyTriples) Next() bool                                           { return false }
func (*emptyTriples) Triple() (subject, predicate, object ast.Term) { return }
func (*emptyTriples) Err() error                                           { return nil }
func (*emptyTriples) Close() error                                         { return nil }

// --- Join ---------------------------------------------------------------

type joinIterator struct {
	x     *Executor
	ctx   context.Context
	graph ast.Term
	right plan.Node

	left      RowIterator
	rightIt   RowIterator
	frame     eval.Frame
	err       error
}

func (x *Executor) buildJoin(ctx context.Context, n *plan.Join, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	left, err := x.build(ctx, n.Left, graph, outer)
	if err != nil {
		return nil, err
	}
	return &joinIterator{x: x, ctx: ctx, graph: graph, right: n.Right, left: left}, nil
}

func (it *joinIterator) Next(ctx context.Context) bool {
	for {
		if it.rightIt != nil {
			if it.rightIt.Next(ctx) {
				it.frame = it.rightIt.Frame()
				return true
			}
			it.err = it.rightIt.Err()
			it.rightIt.Close()
			it.rightIt = nil
			if it.err != nil {
				return false
			}
		}
		if !it.left.Next(ctx) {
			it.err = it.left.Err()
			return false
		}
		rightIt, err := it.x.build(it.ctx, it.right, it.graph, it.left.Frame())
		if err != nil {
			it.err = err
			return false
		}
		it.rightIt = rightIt
	}
}

func (it *joinIterator) Frame() eval.Frame { return it.frame }
func (it *joinIterator) Err() error        { return it.err }
func (it *joinIterator) Close() error {
	if it.rightIt != nil {
		it.rightIt.Close()
	}
	return it.left.Close()
}

// --- Filter ---------------------------------------------------------------

type filterIterator struct {
	input RowIterator
	expr  ast.Expression
	ev    *eval.Evaluator
	frame eval.Frame
}

func (x *Executor) buildFilter(ctx context.Context, n *plan.Filter, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	input, err := x.build(ctx, n.Input, graph, outer)
	if err != nil {
		return nil, err
	}
	return &filterIterator{input: input, expr: n.Expression, ev: x.eval}, nil
}

// Next skips any row whose expression doesn't evaluate to true, never
// aborting on an evaluation error, a non-boolean result, or an unbound
// variable — matching the teacher's error-tolerant FILTER semantics,
// here uniform across the whole evaluator rather than special-cased.
func (it *filterIterator) Next(ctx context.Context) bool {
	for it.input.Next(ctx) {
		frame := it.input.Frame()
		if isTrue(it.ev.Evaluate(it.expr, frame)) {
			it.frame = frame
			return true
		}
	}
	return false
}

func isTrue(t ast.Term) bool {
	v, ok := eval.EBV(t)
	return ok && v
}

func (it *filterIterator) Frame() eval.Frame { return it.frame }
func (it *filterIterator) Err() error        { return it.input.Err() }
func (it *filterIterator) Close() error      { return it.input.Close() }

// --- Bind ---------------------------------------------------------------

type bindIterator struct {
	input    RowIterator
	expr     ast.Expression
	variable string
	ev       *eval.Evaluator
	frame    eval.Frame
}

func (x *Executor) buildBind(ctx context.Context, n *plan.Bind, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	input, err := x.build(ctx, n.Input, graph, outer)
	if err != nil {
		return nil, err
	}
	return &bindIterator{input: input, expr: n.Expression, variable: n.Variable, ev: x.eval}, nil
}

func (it *bindIterator) Next(ctx context.Context) bool {
	if !it.input.Next(ctx) {
		return false
	}
	frame := it.input.Frame()
	value := it.ev.Evaluate(it.expr, frame)
	if value.IsUnbound() {
		it.frame = frame
	} else {
		it.frame = frame.Extend(it.variable, value)
	}
	return true
}

func (it *bindIterator) Frame() eval.Frame { return it.frame }
func (it *bindIterator) Err() error        { return it.input.Err() }
func (it *bindIterator) Close() error      { return it.input.Close() }

// --- Optional ---------------------------------------------------------------

type optionalIterator struct {
	x     *Executor
	ctx   context.Context
	graph ast.Term
	right plan.Node

	left     RowIterator
	rightIt  RowIterator
	leftRow  eval.Frame
	matched  bool
	frame    eval.Frame
	err      error
	done     bool
}

func (x *Executor) buildOptional(ctx context.Context, n *plan.Optional, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	left, err := x.build(ctx, n.Left, graph, outer)
	if err != nil {
		return nil, err
	}
	return &optionalIterator{x: x, ctx: ctx, graph: graph, right: n.Right, left: left}, nil
}

// Next produces every compatible Right row for the current Left row
// (full multi-match left-outer-join, not first-match-only), falling back
// to Left alone, unextended, when Right has zero matches.
func (it *optionalIterator) Next(ctx context.Context) bool {
	for {
		if it.rightIt != nil {
			if it.rightIt.Next(ctx) {
				it.matched = true
				it.frame = it.rightIt.Frame()
				return true
			}
			it.err = it.rightIt.Err()
			it.rightIt.Close()
			it.rightIt = nil
			if it.err != nil {
				return false
			}
			if !it.matched {
				it.frame = it.leftRow
				return true
			}
		}
		if !it.left.Next(ctx) {
			it.err = it.left.Err()
			return false
		}
		it.leftRow = it.left.Frame()
		it.matched = false
		rightIt, err := it.x.build(it.ctx, it.right, it.graph, it.leftRow)
		if err != nil {
			it.err = err
			return false
		}
		it.rightIt = rightIt
	}
}

func (it *optionalIterator) Frame() eval.Frame { return it.frame }
func (it *optionalIterator) Err() error        { return it.err }
func (it *optionalIterator) Close() error {
	if it.rightIt != nil {
		it.rightIt.Close()
	}
	return it.left.Close()
}

// --- Union ---------------------------------------------------------------

type unionIterator struct {
	x       *Executor
	ctx     context.Context
	graph   ast.Term
	outer   eval.Frame
	pending []plan.Node
	current RowIterator
	frame   eval.Frame
	err     error
}

func (x *Executor) buildUnion(ctx context.Context, n *plan.Union, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	return &unionIterator{x: x, ctx: ctx, graph: graph, outer: outer, pending: n.Branches}, nil
}

func (it *unionIterator) Next(ctx context.Context) bool {
	for {
		if it.current != nil {
			if it.current.Next(ctx) {
				it.frame = it.current.Frame()
				return true
			}
			it.err = it.current.Err()
			it.current.Close()
			it.current = nil
			if it.err != nil {
				return false
			}
		}
		if len(it.pending) == 0 {
			return false
		}
		next := it.pending[0]
		it.pending = it.pending[1:]
		branch, err := it.x.build(it.ctx, next, it.graph, it.outer)
		if err != nil {
			it.err = err
			return false
		}
		it.current = branch
	}
}

func (it *unionIterator) Frame() eval.Frame { return it.frame }
func (it *unionIterator) Err() error        { return it.err }
func (it *unionIterator) Close() error {
	if it.current != nil {
		return it.current.Close()
	}
	return nil
}

// --- Minus ---------------------------------------------------------------

// buildMinus materializes Right once against the original outer frame
// (MINUS evaluates its right side independently of the left row under
// test, unlike Optional/Join which push bindings down), then for each
// Left row drops it if some Right row is join-compatible and shares at
// least one bound variable with it.
func (x *Executor) buildMinus(ctx context.Context, n *plan.Minus, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	left, err := x.build(ctx, n.Left, graph, outer)
	if err != nil {
		return nil, err
	}
	rightRows, err := x.drainNode(ctx, n.Right, graph, outer)
	if err != nil {
		left.Close()
		return nil, err
	}
	return &minusIterator{left: left, right: rightRows}, nil
}

type minusIterator struct {
	left  RowIterator
	right []eval.Frame
	frame eval.Frame
}

func (it *minusIterator) Next(ctx context.Context) bool {
	for it.left.Next(ctx) {
		frame := it.left.Frame()
		if !minusExcludes(frame, it.right) {
			it.frame = frame
			return true
		}
	}
	return false
}

func minusExcludes(left eval.Frame, rights []eval.Frame) bool {
	for _, right := range rights {
		if sharesVariable(left, right) && left.Compatible(right) {
			return true
		}
	}
	return false
}

func sharesVariable(a, b eval.Frame) bool {
	for k := range a {
		if b.Bound(k) {
			return true
		}
	}
	return false
}

func (it *minusIterator) Frame() eval.Frame { return it.frame }
func (it *minusIterator) Err() error        { return it.left.Err() }
func (it *minusIterator) Close() error      { return it.left.Close() }

// --- Values ---------------------------------------------------------------

type valuesIterator struct {
	input RowIterator
	vars  []string
	rows  [][]ast.Term
	row   int
	frame eval.Frame
	left  eval.Frame
	have  bool
}

func (x *Executor) buildValues(ctx context.Context, n *plan.Values, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	input, err := x.build(ctx, n.Input, graph, outer)
	if err != nil {
		return nil, err
	}
	return &valuesIterator{input: input, vars: n.Vars, rows: n.Rows}, nil
}

func (it *valuesIterator) Next(ctx context.Context) bool {
	for {
		if it.have {
			for it.row < len(it.rows) {
				row := it.rows[it.row]
				it.row++
				if frame, ok := mergeValuesRow(it.left, it.vars, row); ok {
					it.frame = frame
					return true
				}
			}
			it.have = false
		}
		if !it.input.Next(ctx) {
			return false
		}
		it.left = it.input.Frame()
		it.row = 0
		it.have = true
	}
}

// mergeValuesRow extends left with row's bindings; an UNDEF slot (the
// zero ast.Term) leaves that variable unconstrained rather than binding
// it, and a bound slot must agree with any existing binding for the
// same variable.
func mergeValuesRow(left eval.Frame, vars []string, row []ast.Term) (eval.Frame, bool) {
	frame := left
	for i, v := range vars {
		if i >= len(row) || row[i].IsUnbound() {
			continue
		}
		var ok bool
		if frame, ok = bindPosition(frame, ast.Term{Kind: ast.KindVariable, Name: v}, row[i]); !ok {
			return nil, false
		}
	}
	return frame, true
}

func (it *valuesIterator) Frame() eval.Frame { return it.frame }
func (it *valuesIterator) Err() error        { return it.input.Err() }
func (it *valuesIterator) Close() error      { return it.input.Close() }

// --- Graph ---------------------------------------------------------------

func (x *Executor) buildGraph(ctx context.Context, n *plan.Graph, outer eval.Frame) (RowIterator, error) {
	resolved := resolveTerm(n.Graph, outer)
	if !resolved.IsUnbound() {
		return x.build(ctx, n.Input, resolved, outer)
	}
	lister, ok := x.store.(GraphLister)
	if !ok {
		return &emptyRows{}, nil
	}
	graphs, err := lister.ListGraphs(ctx)
	if err != nil {
		return nil, err
	}
	return &graphVarIterator{x: x, ctx: ctx, input: n.Input, outer: outer, variable: n.Graph.Name, graphs: graphs}, nil
}

type graphVarIterator struct {
	x        *Executor
	ctx      context.Context
	input    plan.Node
	outer    eval.Frame
	variable string
	graphs   []ast.Term
	idx      int
	current  RowIterator
	frame    eval.Frame
	err      error
}

func (it *graphVarIterator) Next(ctx context.Context) bool {
	for {
		if it.current != nil {
			if it.current.Next(ctx) {
				it.frame = it.current.Frame().Extend(it.variable, it.graphs[it.idx-1])
				return true
			}
			it.err = it.current.Err()
			it.current.Close()
			it.current = nil
			if it.err != nil {
				return false
			}
		}
		if it.idx >= len(it.graphs) {
			return false
		}
		g := it.graphs[it.idx]
		it.idx++
		rows, err := it.x.build(it.ctx, it.input, g, it.outer)
		if err != nil {
			it.err = err
			return false
		}
		it.current = rows
	}
}

func (it *graphVarIterator) Frame() eval.Frame { return it.frame }
func (it *graphVarIterator) Err() error        { return it.err }
func (it *graphVarIterator) Close() error {
	if it.current != nil {
		return it.current.Close()
	}
	return nil
}

type emptyRows struct{}

func (*emptyRows) Next(ctx context.Context) bool { return false }
func (*emptyRows) Frame() eval.Frame             { return nil }
func (*emptyRows) Err() error                    { return nil }
func (*emptyRows) Close() error                  { return nil }

// --- Service ---------------------------------------------------------------

// buildService runs Pattern against the same in-process Store: genuine
// remote federation is out of scope, but SERVICE ... { } blocks still
// need to evaluate so a query that only uses SERVICE for optional
// enrichment behaves sensibly against a single dataset.
func (x *Executor) buildService(ctx context.Context, n *plan.Service, graph ast.Term, outer eval.Frame) (RowIterator, error) {
	inner, err := plan.BuildPattern(n.Pattern)
	if err != nil {
		if n.Silent {
			return &unitIterator{frame: outer}, nil
		}
		return nil, err
	}
	rows, err := x.build(ctx, inner, graph, outer)
	if err != nil {
		if n.Silent {
			return &unitIterator{frame: outer}, nil
		}
		return nil, err
	}
	return rows, nil
}

// --- SubSelect ---------------------------------------------------------------

func (x *Executor) buildSubSelect(ctx context.Context, n *plan.SubSelect, outer eval.Frame) (RowIterator, error) {
	p, err := plan.Build(&ast.Query{Type: ast.QuerySelect, Select: n.Query})
	if err != nil {
		return nil, err
	}
	rows, err := x.drainPlan(ctx, p, eval.NewFrame())
	if err != nil {
		return nil, err
	}
	return &subSelectIterator{outer: outer, rows: rows}, nil
}

type subSelectIterator struct {
	outer eval.Frame
	rows  []eval.Frame
	idx   int
	frame eval.Frame
}

func (it *subSelectIterator) Next(ctx context.Context) bool {
	for it.idx < len(it.rows) {
		row := it.rows[it.idx]
		it.idx++
		if it.outer.Compatible(row) {
			it.frame = it.outer.Merge(row)
			return true
		}
	}
	return false
}

func (it *subSelectIterator) Frame() eval.Frame { return it.frame }
func (it *subSelectIterator) Err() error        { return nil }
func (it *subSelectIterator) Close() error      { return nil }

// drainNode builds node and collects every row it produces.
func (x *Executor) drainNode(ctx context.Context, node plan.Node, graph ast.Term, outer eval.Frame) ([]eval.Frame, error) {
	it, err := x.build(ctx, node, graph, outer)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var out []eval.Frame
	for it.Next(ctx) {
		out = append(out, it.Frame())
	}
	return out, it.Err()
}
