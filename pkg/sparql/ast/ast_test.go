package ast

import (
	"testing"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
)

func TestTerm_VariableVsBound(t *testing.T) {
	v := NewVariable("x", 0)
	if !v.IsVariable() {
		t.Error("expected variable term to report IsVariable")
	}
	if v.IsBound() {
		t.Error("variable term should not be bound")
	}
	if v.String() != "?x" {
		t.Errorf("expected ?x, got %s", v.String())
	}

	iri := NewRDFTerm(rdf.NewNamedNode("http://example.org/s"), 0)
	if iri.IsVariable() {
		t.Error("IRI term should not report IsVariable")
	}
	if !iri.IsBound() {
		t.Error("IRI term should be bound")
	}
	if iri.Kind != KindIRI {
		t.Errorf("expected KindIRI, got %v", iri.Kind)
	}
}

func TestNewRDFTerm_KindDispatch(t *testing.T) {
	tests := []struct {
		name string
		term rdf.Term
		kind TermKind
	}{
		{"named node", rdf.NewNamedNode("http://example.org/s"), KindIRI},
		{"literal", rdf.NewLiteral("hello"), KindLiteral},
		{"blank node", rdf.NewBlankNode("b1"), KindBlankNode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewRDFTerm(tt.term, 0)
			if got.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, got.Kind)
			}
		})
	}
}

func TestTerm_IsUnbound(t *testing.T) {
	if !Unbound.IsUnbound() {
		t.Error("zero-value Term should be unbound")
	}
	v := NewVariable("x", 0)
	if v.IsUnbound() {
		t.Error("a named variable term is not itself the Unbound sentinel")
	}
}

func TestTerm_Equals(t *testing.T) {
	a := NewVariable("x", 0)
	b := NewVariable("x", 5) // offset shouldn't matter
	c := NewVariable("y", 0)
	if !a.Equals(b) {
		t.Error("expected variables with same name to be equal regardless of offset")
	}
	if a.Equals(c) {
		t.Error("expected variables with different names to be unequal")
	}

	s1 := NewRDFTerm(rdf.NewNamedNode("http://example.org/s"), 0)
	s2 := NewRDFTerm(rdf.NewNamedNode("http://example.org/s"), 10)
	s3 := NewRDFTerm(rdf.NewNamedNode("http://example.org/other"), 0)
	if !s1.Equals(s2) {
		t.Error("expected equal IRIs to be equal")
	}
	if s1.Equals(s3) {
		t.Error("expected different IRIs to be unequal")
	}
	if a.Equals(s1) {
		t.Error("a variable should never equal a bound term")
	}
}

func TestTriplePattern_HasPath(t *testing.T) {
	plain := TriplePattern{Predicate: NewRDFTerm(rdf.NewNamedNode("http://example.org/p"), 0)}
	if plain.HasPath() {
		t.Error("a plain IRI predicate should not report HasPath")
	}
	withPath := TriplePattern{Path: PropertyPath{Kind: PathOneOrMore}}
	if !withPath.HasPath() {
		t.Error("a non-PathNone path should report HasPath")
	}
}

func TestGraphPattern_AddTriple_EnforcesLimit(t *testing.T) {
	g := &GraphPattern{}
	tp := TriplePattern{
		Subject:   NewVariable("s", 0),
		Predicate: NewVariable("p", 0),
		Object:    NewVariable("o", 0),
	}
	for i := 0; i < MaxTriplePatterns; i++ {
		if err := g.AddTriple(tp); err != nil {
			t.Fatalf("unexpected error adding triple %d: %v", i, err)
		}
	}
	if err := g.AddTriple(tp); err == nil {
		t.Error("expected an error once MaxTriplePatterns is exceeded")
	}
}

func TestGraphPattern_AddFilter_EnforcesLimit(t *testing.T) {
	g := &GraphPattern{}
	f := &Filter{Expression: &VariableExpr{Name: "x"}}
	for i := 0; i < MaxFilters; i++ {
		if err := g.AddFilter(f); err != nil {
			t.Fatalf("unexpected error adding filter %d: %v", i, err)
		}
	}
	if err := g.AddFilter(f); err == nil {
		t.Error("expected an error once MaxFilters is exceeded")
	}
}

func TestGraphPattern_TriplePatterns_PreservesOrder(t *testing.T) {
	g := &GraphPattern{}
	tp1 := TriplePattern{Subject: NewVariable("a", 0)}
	tp2 := TriplePattern{Subject: NewVariable("b", 0)}
	g.AddBind(&Bind{Variable: "mid", Expression: &VariableExpr{Name: "a"}})
	_ = g.AddTriple(tp1)
	_ = g.AddTriple(tp2)

	got := g.TriplePatterns()
	if len(got) != 2 {
		t.Fatalf("expected 2 triple patterns, got %d", len(got))
	}
	if got[0].Subject.Name != "a" || got[1].Subject.Name != "b" {
		t.Errorf("expected triple patterns in source order, got %v", got)
	}
}

func TestGraphPattern_Variables(t *testing.T) {
	inner := &GraphPattern{}
	_ = inner.AddTriple(TriplePattern{
		Subject:   NewVariable("s", 0),
		Predicate: NewVariable("p", 0),
		Object:    NewVariable("o", 0),
	})

	g := &GraphPattern{
		OptionalBlocks: []OptionalBlock{{Pattern: inner}},
	}
	_ = g.AddTriple(TriplePattern{
		Subject:   NewVariable("s", 0),
		Predicate: NewRDFTerm(rdf.NewNamedNode("http://example.org/knows"), 0),
		Object:    NewVariable("friend", 0),
	})
	g.AddBind(&Bind{Variable: "computed", Expression: &VariableExpr{Name: "s"}})

	vars := g.Variables()
	seen := map[string]bool{}
	for _, v := range vars {
		if seen[v] {
			t.Errorf("variable %q listed more than once: %v", v, vars)
		}
		seen[v] = true
	}
	for _, want := range []string{"s", "p", "o", "friend", "computed"} {
		if !seen[want] {
			t.Errorf("expected variable %q in %v", want, vars)
		}
	}
}

func TestQuery_WhereAndModifier_DispatchByType(t *testing.T) {
	selWhere := &GraphPattern{}
	q := &Query{
		Type:   QuerySelect,
		Select: &SelectQuery{Where: selWhere, Modifier: SolutionModifier{Limit: intPtr(10)}},
	}
	if q.Where() != selWhere {
		t.Error("expected Where() to return the SELECT query's pattern")
	}
	if q.Modifier().Limit == nil || *q.Modifier().Limit != 10 {
		t.Error("expected Modifier() to return the SELECT query's modifier")
	}

	askWhere := &GraphPattern{}
	q2 := &Query{Type: QueryAsk, Ask: &AskQuery{Where: askWhere}}
	if q2.Where() != askWhere {
		t.Error("expected Where() to return the ASK query's pattern")
	}
}

func intPtr(n int) *int { return &n }
