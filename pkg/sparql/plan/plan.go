// Package plan turns a parsed query into an execution plan tree: a
// planner folds ast.GraphPattern.Elements and its structural clauses into
// Scan/Join/Filter/Bind/Optional/Union/Minus/Values/Graph/Service nodes in
// source order, then wraps the pattern plan in the solution-modifier nodes
// (Group, Having, Projection, Distinct, OrderBy, Offset, Limit) a query
// form needs.
package plan

import (
	"sort"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// Node is any execution plan node.
type Node interface {
	planNode()
}

// Scan matches a single triple pattern (or, when HasPath, walks a property
// path) against the active dataset.
type Scan struct {
	Pattern ast.TriplePattern
}

func (*Scan) planNode() {}

// Unit produces exactly one row with no bindings, the identity element for
// a pattern with no preceding triples (e.g. a bare `{ FILTER(...) }` or
// `{ BIND(...) }` group, which SPARQL evaluates against the single empty
// solution mapping rather than against the whole dataset).
type Unit struct{}

func (*Unit) planNode() {}

// JoinType distinguishes the few join strategies the executor implements.
type JoinType int

const (
	JoinNestedLoop JoinType = iota
)

// Join is an inner join between two plans, evaluated as a nested-loop,
// rescan-per-left-row iterator (see the grounding ledger for why this was
// chosen over a literal N-level backtracking state machine).
type Join struct {
	Left, Right Node
	Type        JoinType
}

func (*Join) planNode() {}

// Filter keeps only rows for which Expression's effective boolean value is
// true.
type Filter struct {
	Input      Node
	Expression ast.Expression
}

func (*Filter) planNode() {}

// Bind extends each row with Variable bound to Expression's value.
type Bind struct {
	Input      Node
	Expression ast.Expression
	Variable   string
}

func (*Bind) planNode() {}

// Optional is a left outer join: every Left row survives, extended with
// every compatible Right row, or alone if none match.
type Optional struct {
	Left, Right Node
}

func (*Optional) planNode() {}

// Union evaluates each Branch independently and concatenates their rows.
// More than two SPARQL UNION alternatives compile to one Union node with
// one Branch per alternative, not a chain of binary nodes.
type Union struct {
	Branches []Node
}

func (*Union) planNode() {}

// Minus removes every Left row compatible with some Right row (and sharing
// at least one bound variable with it), the SPARQL anti-join.
type Minus struct {
	Left, Right Node
}

func (*Minus) planNode() {}

// Values joins Input against an inline data table.
type Values struct {
	Input Node
	Vars  []string
	Rows  [][]ast.Term
}

func (*Values) planNode() {}

// Graph restricts Input to triples from the named graph Graph resolves to
// (a variable or a bound IRI).
type Graph struct {
	Input Node
	Graph ast.Term
}

func (*Graph) planNode() {}

// Service evaluates Pattern against the executor's own store; no remote
// endpoint is contacted. Silent turns an evaluation error into the
// unchanged input row instead of aborting the query.
type Service struct {
	Pattern *ast.GraphPattern
	Service ast.Term
	Silent  bool
}

func (*Service) planNode() {}

// SubSelect produces the solutions of a nested SELECT; buildPattern joins
// it with the rest of the enclosing pattern.
type SubSelect struct {
	Query *ast.SelectQuery
}

func (*SubSelect) planNode() {}

// Group partitions rows by GroupBy and computes Aggregates per group,
// producing one output row per group with both the grouping variables and
// the aggregate results bound.
type Group struct {
	Input      Node
	GroupBy    []ast.GroupCondition
	Aggregates []AggregateBinding
}

func (*Group) planNode() {}

// AggregateBinding is one (aggregate expression, output variable) pair
// computed per group, or per the whole solution sequence when GroupBy is
// empty (an implicit single group).
type AggregateBinding struct {
	Expr     *ast.AggregateExpr
	Variable string
}

// Having filters grouped rows, structurally identical to Filter but kept
// distinct so the executor can assert it always follows a Group.
type Having struct {
	Input      Node
	Expression ast.Expression
}

func (*Having) planNode() {}

// Projection keeps only the named/aliased output columns, computing any
// (expr AS ?alias) entries along the way.
type Projection struct {
	Input     Node
	Entries   []ast.ProjectionEntry
	SelectAll bool
}

func (*Projection) planNode() {}

// Distinct deduplicates rows by their full set of bound variables. It is
// always placed above Projection, never below it (SPARQL dedups on the
// projected row, not the pattern's internal bindings).
type Distinct struct {
	Input Node
}

func (*Distinct) planNode() {}

// OrderBy sorts rows by Conditions, stably, so ties preserve upstream order.
type OrderBy struct {
	Input      Node
	Conditions []ast.OrderCondition
}

func (*OrderBy) planNode() {}

type Offset struct {
	Input Node
	N     int
}

func (*Offset) planNode() {}

type Limit struct {
	Input Node
	N     int
}

func (*Limit) planNode() {}

// Construct rewrites each Input row through Template, producing triples
// instead of solution rows.
type Construct struct {
	Input    Node
	Template []ast.TriplePattern
}

func (*Construct) planNode() {}

// Plan is the root of a compiled query: Root drives the executor, and the
// remaining fields tell it which top-level query form Root belongs to.
type Plan struct {
	Root     Node
	Query    *ast.Query
	Temporal *ast.TemporalClause
}

// Build compiles a parsed query into a Plan.
func Build(q *ast.Query) (*Plan, error) {
	switch q.Type {
	case ast.QuerySelect:
		root, err := buildSelect(q.Select)
		if err != nil {
			return nil, err
		}
		return &Plan{Root: root, Query: q, Temporal: q.Select.Modifier.Temporal}, nil
	case ast.QueryAsk:
		root, err := buildPattern(q.Ask.Where)
		if err != nil {
			return nil, err
		}
		root = &Limit{Input: root, N: 1}
		return &Plan{Root: root, Query: q, Temporal: q.Ask.Modifier.Temporal}, nil
	case ast.QueryConstruct:
		root, err := buildPattern(q.Construct.Where)
		if err != nil {
			return nil, err
		}
		root = &Construct{Input: root, Template: q.Construct.Template}
		return &Plan{Root: root, Query: q, Temporal: q.Construct.Modifier.Temporal}, nil
	case ast.QueryDescribe:
		var root Node
		if q.Describe.Where != nil {
			r, err := buildPattern(q.Describe.Where)
			if err != nil {
				return nil, err
			}
			root = r
		}
		return &Plan{Root: root, Query: q, Temporal: q.Describe.Modifier.Temporal}, nil
	}
	return nil, &BuildError{Detail: "unknown query type"}
}

// BuildError reports a plan-construction failure (currently just the
// unreachable unknown-query-type case; parse-level problems are caught
// earlier as parser.ParseError).
type BuildError struct{ Detail string }

func (e *BuildError) Error() string { return "plan: " + e.Detail }

func buildSelect(q *ast.SelectQuery) (Node, error) {
	root, err := buildPattern(q.Where)
	if err != nil {
		return nil, err
	}

	mod := q.Modifier
	hasAggregates := selectHasAggregates(q.Select) || len(mod.GroupBy) > 0
	if hasAggregates {
		root = &Group{
			Input:      root,
			GroupBy:    mod.GroupBy,
			Aggregates: collectAggregates(q.Select),
		}
	}

	for _, h := range mod.Having {
		root = &Having{Input: root, Expression: h.Expression}
	}

	if len(mod.OrderBy) > 0 {
		root = &OrderBy{Input: root, Conditions: mod.OrderBy}
	}

	// Projection before Distinct: SPARQL dedups on the projected row.
	root = &Projection{Input: root, Entries: q.Select.Projection, SelectAll: q.Select.SelectAll}

	if q.Select.Distinct || q.Select.Reduced {
		root = &Distinct{Input: root}
	}

	if mod.Offset != nil {
		root = &Offset{Input: root, N: *mod.Offset}
	}
	if mod.Limit != nil {
		root = &Limit{Input: root, N: *mod.Limit}
	}

	return root, nil
}

func selectHasAggregates(sel ast.SelectClause) bool {
	for _, p := range sel.Projection {
		if p.Aggregate != nil && p.Aggregate.Function != ast.AggNone {
			return true
		}
	}
	return false
}

func collectAggregates(sel ast.SelectClause) []AggregateBinding {
	var out []AggregateBinding
	for _, p := range sel.Projection {
		if p.Aggregate == nil {
			continue
		}
		name := p.Variable
		if name == "" {
			name = p.Alias
		}
		out = append(out, AggregateBinding{Expr: p.Aggregate, Variable: name})
	}
	return out
}

// BuildPattern compiles a standalone { ... } graph pattern, exported for
// callers that need to plan a pattern outside a full query form: EXISTS
// probes and in-process SERVICE evaluation.
func BuildPattern(g *ast.GraphPattern) (Node, error) {
	return buildPattern(g)
}

// buildPattern compiles one { ... } graph pattern, walking Elements in
// source order so a FILTER or BIND only sees the triples that precede it,
// fixing the position-blind filter-then-bind ordering bug.
func buildPattern(g *ast.GraphPattern) (Node, error) {
	if g == nil {
		return nil, nil
	}

	var root Node

	// Triples commute freely within a maximal run uninterrupted by a
	// FILTER/BIND, so each such run is reordered by selectivity before
	// being folded into the join chain; the run boundaries themselves are
	// never crossed, which is what keeps a FILTER/BIND seeing exactly the
	// triples that precede it in source order (the ordering fix).
	var run []ast.TriplePattern
	flushRun := func() {
		if len(run) == 0 {
			return
		}
		ordered := make([]ast.TriplePattern, len(run))
		copy(ordered, run)
		sort.SliceStable(ordered, func(i, j int) bool {
			return selectivity(ordered[i]) < selectivity(ordered[j])
		})
		for _, tp := range ordered {
			scan := &Scan{Pattern: tp}
			if root == nil {
				root = scan
			} else {
				root = &Join{Left: root, Right: scan}
			}
		}
		run = nil
	}

	for _, e := range g.Elements {
		switch e.Kind {
		case ast.ElemTriple:
			run = append(run, e.Triple)
		case ast.ElemFilter:
			flushRun()
			if root == nil {
				root = &Unit{}
			}
			root = &Filter{Input: root, Expression: e.Filter.Expression}
		case ast.ElemBind:
			flushRun()
			if root == nil {
				root = &Unit{}
			}
			root = &Bind{Input: root, Expression: e.Bind.Expression, Variable: e.Bind.Variable}
		}
	}
	flushRun()

	for _, ob := range g.OptionalBlocks {
		rightPlan, err := buildPattern(ob.Pattern)
		if err != nil {
			return nil, err
		}
		if root == nil {
			root = &Unit{}
		}
		root = &Optional{Left: root, Right: rightPlan}
	}

	if len(g.UnionBranches) > 0 {
		branches := make([]Node, 0, len(g.UnionBranches))
		for _, b := range g.UnionBranches {
			bp, err := buildPattern(b)
			if err != nil {
				return nil, err
			}
			branches = append(branches, bp)
		}
		union := &Union{Branches: branches}
		if root == nil {
			root = union
		} else {
			root = &Join{Left: root, Right: union}
		}
	}

	for _, mb := range g.MinusBlocks {
		rightPlan, err := buildPattern(mb.Pattern)
		if err != nil {
			return nil, err
		}
		if root == nil {
			root = &Unit{}
		}
		root = &Minus{Left: root, Right: rightPlan}
	}

	for _, gc := range g.GraphClauses {
		inner, err := buildPattern(gc.Pattern)
		if err != nil {
			return nil, err
		}
		gp := &Graph{Input: inner, Graph: gc.Graph}
		if root == nil {
			root = gp
		} else {
			root = &Join{Left: root, Right: gp}
		}
	}

	for _, sc := range g.ServiceClauses {
		sp := &Service{Pattern: sc.Pattern, Service: sc.Service, Silent: sc.Silent}
		if root == nil {
			root = sp
		} else {
			root = &Join{Left: root, Right: sp}
		}
	}

	for _, ss := range g.SubSelects {
		sub := &SubSelect{Query: ss.Query}
		if root == nil {
			root = sub
		} else {
			root = &Join{Left: root, Right: sub}
		}
	}

	if g.Values != nil {
		if root == nil {
			root = &Unit{}
		}
		root = &Values{Input: root, Vars: g.Values.Vars, Rows: g.Values.Rows}
	}

	return root, nil
}

func selectivity(tp ast.TriplePattern) float64 {
	s := 1.0
	if !tp.Subject.IsVariable() {
		s *= 0.01
	}
	if !tp.Predicate.IsVariable() && !tp.HasPath() {
		s *= 0.1
	}
	if !tp.Object.IsVariable() {
		s *= 0.1
	}
	return s
}
