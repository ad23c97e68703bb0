package plan

import (
	"testing"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

func v(name string) ast.Term    { return ast.NewVariable(name, 0) }
func iri(s string) ast.Term     { return ast.NewRDFTerm(rdf.NewNamedNode(s), 0) }
func triple(s, p, o ast.Term) ast.TriplePattern {
	return ast.TriplePattern{Subject: s, Predicate: p, Object: o}
}

func patternOf(tps ...ast.TriplePattern) *ast.GraphPattern {
	g := &ast.GraphPattern{}
	for _, tp := range tps {
		_ = g.AddTriple(tp)
	}
	return g
}

func TestBuildPattern_SingleTripleProducesScan(t *testing.T) {
	g := patternOf(triple(v("s"), iri("http://example.org/p"), v("o")))
	node, err := BuildPattern(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(*Scan); !ok {
		t.Errorf("expected a single triple pattern to compile to *Scan, got %T", node)
	}
}

func TestBuildPattern_MultipleTriplesProduceJoinChain(t *testing.T) {
	g := patternOf(
		triple(v("s"), iri("http://example.org/p1"), v("o1")),
		triple(v("o1"), iri("http://example.org/p2"), v("o2")),
	)
	node, err := BuildPattern(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := node.(*Join); !ok {
		t.Errorf("expected multiple triples to compile to a *Join, got %T", node)
	}
}

func TestBuildPattern_EmptyPatternIsNil(t *testing.T) {
	node, err := BuildPattern(&ast.GraphPattern{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Errorf("expected an empty { } pattern to compile to a nil Node, got %T", node)
	}
}

func TestBuildPattern_FilterOnlySeesPrecedingTriples(t *testing.T) {
	// { ?s ?p ?o . FILTER(...) ?s2 ?p2 ?o2 } -- the Filter node must wrap
	// only the first triple, not both.
	g := &ast.GraphPattern{}
	_ = g.AddTriple(triple(v("s"), v("p"), v("o")))
	_ = g.AddFilter(&ast.Filter{Expression: &ast.VariableExpr{Name: "s"}})
	_ = g.AddTriple(triple(v("s2"), v("p2"), v("o2")))

	node, err := BuildPattern(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	join, ok := node.(*Join)
	if !ok {
		t.Fatalf("expected a *Join wrapping the filtered first triple and the second triple, got %T", node)
	}
	filter, ok := join.Left.(*Filter)
	if !ok {
		t.Fatalf("expected the join's left side to be the *Filter, got %T", join.Left)
	}
	if _, ok := filter.Input.(*Scan); !ok {
		t.Errorf("expected the filter to wrap a *Scan of only the first triple, got %T", filter.Input)
	}
}

func TestBuildPattern_OptionalWrapsLeftAndRight(t *testing.T) {
	g := patternOf(triple(v("s"), v("p"), v("o")))
	g.OptionalBlocks = []ast.OptionalBlock{
		{Pattern: patternOf(triple(v("s"), iri("http://example.org/extra"), v("x")))},
	}
	node, err := BuildPattern(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	opt, ok := node.(*Optional)
	if !ok {
		t.Fatalf("expected *Optional, got %T", node)
	}
	if opt.Left == nil || opt.Right == nil {
		t.Error("expected both Left and Right of Optional to be populated")
	}
}

func TestBuildPattern_UnionBranches(t *testing.T) {
	g := &ast.GraphPattern{
		UnionBranches: []*ast.GraphPattern{
			patternOf(triple(v("s"), iri("http://example.org/a"), v("o"))),
			patternOf(triple(v("s"), iri("http://example.org/b"), v("o"))),
			patternOf(triple(v("s"), iri("http://example.org/c"), v("o"))),
		},
	}
	node, err := BuildPattern(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	union, ok := node.(*Union)
	if !ok {
		t.Fatalf("expected *Union, got %T", node)
	}
	if len(union.Branches) != 3 {
		t.Errorf("expected 3 branches for a 3-way UNION, got %d", len(union.Branches))
	}
}

func TestSelectivity_BoundTermsRankAheadOfVariables(t *testing.T) {
	allVars := triple(v("s"), v("p"), v("o"))
	boundSubject := triple(iri("http://example.org/s"), v("p"), v("o"))
	fullyBound := triple(iri("http://example.org/s"), iri("http://example.org/p"), iri("http://example.org/o"))

	if selectivity(fullyBound) >= selectivity(boundSubject) {
		t.Error("a fully-bound triple should be more selective than a partially-bound one")
	}
	if selectivity(boundSubject) >= selectivity(allVars) {
		t.Error("a triple with a bound subject should be more selective than an all-variable triple")
	}
}

func TestBuildPattern_ReordersRunBySelectivity(t *testing.T) {
	// An all-variable triple followed by a fully-bound one should have the
	// bound triple scanned first in the resulting join chain (Join.Left is
	// evaluated first).
	g := patternOf(
		triple(v("s"), v("p"), v("o")),
		triple(iri("http://example.org/s"), iri("http://example.org/p"), iri("http://example.org/o")),
	)
	node, err := BuildPattern(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	join, ok := node.(*Join)
	if !ok {
		t.Fatalf("expected *Join, got %T", node)
	}
	left, ok := join.Left.(*Scan)
	if !ok {
		t.Fatalf("expected join.Left to be a *Scan, got %T", join.Left)
	}
	if left.Pattern.Subject.IsVariable() {
		t.Error("expected the more selective (fully bound) triple to be scanned first")
	}
}

func TestBuild_AskWrapsInLimitOne(t *testing.T) {
	q := &ast.Query{
		Type: ast.QueryAsk,
		Ask:  &ast.AskQuery{Where: patternOf(triple(v("s"), v("p"), v("o")))},
	}
	p, err := Build(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limit, ok := p.Root.(*Limit)
	if !ok || limit.N != 1 {
		t.Errorf("expected ASK to wrap its pattern in Limit{N:1}, got %T", p.Root)
	}
}

func TestBuild_ConstructWrapsTemplate(t *testing.T) {
	tmpl := []ast.TriplePattern{triple(v("s"), iri("http://example.org/p"), v("o"))}
	q := &ast.Query{
		Type: ast.QueryConstruct,
		Construct: &ast.ConstructQuery{
			Template: tmpl,
			Where:    patternOf(triple(v("s"), iri("http://example.org/p"), v("o"))),
		},
	}
	p, err := Build(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, ok := p.Root.(*Construct)
	if !ok {
		t.Fatalf("expected *Construct, got %T", p.Root)
	}
	if len(c.Template) != 1 {
		t.Errorf("expected the CONSTRUCT template to carry through unchanged")
	}
}

func TestBuild_DescribeWithNoWhereHasNilRoot(t *testing.T) {
	q := &ast.Query{
		Type:     ast.QueryDescribe,
		Describe: &ast.DescribeQuery{Resources: []ast.Term{iri("http://example.org/s")}},
	}
	p, err := Build(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Root != nil {
		t.Errorf("expected a WHERE-less DESCRIBE to have a nil plan root, got %T", p.Root)
	}
}

func TestBuild_SelectWithAggregateWrapsGroup(t *testing.T) {
	q := &ast.Query{
		Type: ast.QuerySelect,
		Select: &ast.SelectQuery{
			Select: ast.SelectClause{
				Projection: []ast.ProjectionEntry{
					{Alias: "n", Aggregate: &ast.AggregateExpr{Function: ast.AggCount, Star: true}},
				},
			},
			Where: patternOf(triple(v("s"), v("p"), v("o"))),
		},
	}
	p, err := Build(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Root is Projection (possibly wrapped further); walk down to find Group.
	var found bool
	var walk func(n Node)
	walk = func(n Node) {
		switch x := n.(type) {
		case *Group:
			found = true
		case *Projection:
			walk(x.Input)
		case *Having:
			walk(x.Input)
		case *OrderBy:
			walk(x.Input)
		case *Distinct:
			walk(x.Input)
		case *Offset:
			walk(x.Input)
		case *Limit:
			walk(x.Input)
		}
	}
	walk(p.Root)
	if !found {
		t.Error("expected a SELECT with an aggregate projection to include a *Group node")
	}
}

func TestBuild_SelectOrdersSolutionModifiersLimitAboveOffset(t *testing.T) {
	limitN, offsetN := 5, 2
	q := &ast.Query{
		Type: ast.QuerySelect,
		Select: &ast.SelectQuery{
			Select: ast.SelectClause{SelectAll: true},
			Where:  patternOf(triple(v("s"), v("p"), v("o"))),
			Modifier: ast.SolutionModifier{
				Limit:  &limitN,
				Offset: &offsetN,
			},
		},
	}
	p, err := Build(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	limit, ok := p.Root.(*Limit)
	if !ok {
		t.Fatalf("expected plan root to be *Limit, got %T", p.Root)
	}
	if _, ok := limit.Input.(*Offset); !ok {
		t.Errorf("expected Limit to sit above Offset, got %T", limit.Input)
	}
}

func TestCollectAggregates_UsesVariableOrAlias(t *testing.T) {
	sel := ast.SelectClause{
		Projection: []ast.ProjectionEntry{
			{Variable: "x"},
			{Alias: "total", Aggregate: &ast.AggregateExpr{Function: ast.AggSum}},
		},
	}
	got := collectAggregates(sel)
	if len(got) != 1 {
		t.Fatalf("expected exactly one aggregate binding (bare ?x has none), got %d", len(got))
	}
	if got[0].Variable != "total" {
		t.Errorf("expected aggregate binding variable 'total', got %q", got[0].Variable)
	}
}
