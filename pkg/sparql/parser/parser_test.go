package parser

import (
	"testing"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

func TestParseQuery_SelectDispatch(t *testing.T) {
	q, err := ParseQuery(`SELECT ?s WHERE { ?s ?p ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Type != ast.QuerySelect {
		t.Errorf("expected QuerySelect, got %v", q.Type)
	}
	if len(q.Select.Select.Projection) != 1 || q.Select.Select.Projection[0].Variable != "s" {
		t.Errorf("expected a single ?s projection entry, got %+v", q.Select.Select.Projection)
	}
}

func TestParseQuery_SelectStar(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Select.Select.SelectAll {
		t.Error("expected SelectAll to be true for SELECT *")
	}
}

func TestParseQuery_RejectsUnknownKeyword(t *testing.T) {
	_, err := ParseQuery(`DELETE { ?s ?p ?o }`)
	if err == nil {
		t.Error("expected an error for an unsupported query keyword")
	}
}

func TestParsePrologue_PrefixExpandsPrefixedNames(t *testing.T) {
	q, err := ParseQuery(`
		PREFIX foaf: <http://xmlns.com/foaf/0.1/>
		SELECT ?name WHERE { ?p foaf:name ?name }
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tps := q.Select.Where.TriplePatterns()
	if len(tps) != 1 {
		t.Fatalf("expected 1 triple pattern, got %d", len(tps))
	}
	pred := tps[0].Predicate
	if pred.RDF == nil || pred.RDF.String() != "<http://xmlns.com/foaf/0.1/name>" {
		t.Errorf("expected foaf:name to expand to the full IRI, got %v", pred)
	}
}

func TestParsePrologue_Base(t *testing.T) {
	q, err := ParseQuery(`
		BASE <http://example.org/>
		SELECT ?s WHERE { ?s <p> ?o }
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Prologue.Base != "http://example.org/" {
		t.Errorf("expected BASE to be recorded, got %q", q.Prologue.Base)
	}
	tps := q.Select.Where.TriplePatterns()
	if tps[0].Predicate.RDF.String() != "<http://example.org/p>" {
		t.Errorf("expected relative IRI <p> to resolve against BASE, got %v", tps[0].Predicate)
	}
}

func TestParseGroupGraphPattern_MultipleTriplesSemicolonAndComma(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s <http://ex/p1> ?o1 , ?o2 ; <http://ex/p2> ?o3 }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tps := q.Select.Where.TriplePatterns()
	if len(tps) != 3 {
		t.Fatalf("expected 3 triple patterns from the ; and , shorthand, got %d", len(tps))
	}
}

func TestParseFilter_BareBuiltinPredicate(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . FILTER regex(?o, "^abc") }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var found bool
	for _, el := range q.Select.Where.Elements {
		if el.Kind == ast.ElemFilter {
			found = true
			if _, ok := el.Filter.Expression.(*ast.FuncCallExpr); !ok {
				t.Errorf("expected the bare FILTER regex(...) call to parse as a FuncCallExpr, got %T", el.Filter.Expression)
			}
		}
	}
	if !found {
		t.Error("expected a FILTER element in the parsed pattern")
	}
}

func TestParseBind(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . BIND(?o + 1 AS ?next) }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var found bool
	for _, el := range q.Select.Where.Elements {
		if el.Kind == ast.ElemBind {
			found = true
			if el.Bind.Variable != "next" {
				t.Errorf("expected BIND target variable 'next', got %q", el.Bind.Variable)
			}
		}
	}
	if !found {
		t.Error("expected a BIND element in the parsed pattern")
	}
}

func TestParseOptional(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . OPTIONAL { ?s <http://ex/extra> ?x } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Select.Where.OptionalBlocks) != 1 {
		t.Fatalf("expected 1 OPTIONAL block, got %d", len(q.Select.Where.OptionalBlocks))
	}
}

func TestParseUnion(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { { ?s <http://ex/a> ?o } UNION { ?s <http://ex/b> ?o } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Select.Where.UnionBranches) != 2 {
		t.Fatalf("expected 2 UNION branches, got %d", len(q.Select.Where.UnionBranches))
	}
}

func TestParseMinus(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . MINUS { ?s <http://ex/bad> ?o } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Select.Where.MinusBlocks) != 1 {
		t.Fatalf("expected 1 MINUS block, got %d", len(q.Select.Where.MinusBlocks))
	}
}

func TestParseGraph(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { GRAPH <http://ex/g1> { ?s ?p ?o } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Select.Where.GraphClauses) != 1 {
		t.Fatalf("expected 1 GRAPH clause, got %d", len(q.Select.Where.GraphClauses))
	}
}

func TestParseService_Silent(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { SERVICE SILENT <http://ex/endpoint> { ?s ?p ?o } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Select.Where.ServiceClauses) != 1 {
		t.Fatalf("expected 1 SERVICE clause, got %d", len(q.Select.Where.ServiceClauses))
	}
	if !q.Select.Where.ServiceClauses[0].Silent {
		t.Error("expected SERVICE SILENT to set Silent=true")
	}
}

func TestParseSubSelect(t *testing.T) {
	q, err := ParseQuery(`SELECT ?s WHERE { { SELECT ?s WHERE { ?s ?p ?o } } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Select.Where.SubSelects) != 1 {
		t.Fatalf("expected 1 sub-select, got %d", len(q.Select.Where.SubSelects))
	}
}

func TestParsePropertyPath_SequenceAndOneOrMore(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s <http://ex/a>/<http://ex/b>+ ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tps := q.Select.Where.TriplePatterns()
	if len(tps) != 1 {
		t.Fatalf("expected 1 triple pattern, got %d", len(tps))
	}
	if !tps[0].HasPath() {
		t.Fatal("expected the predicate to be parsed as a property path")
	}
	if tps[0].Path.Kind != ast.PathSequence {
		t.Errorf("expected a top-level PathSequence, got %v", tps[0].Path.Kind)
	}
}

func TestParsePropertyPath_Inverse(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ^<http://ex/knows> ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tps := q.Select.Where.TriplePatterns()
	if tps[0].Path.Kind != ast.PathInverse {
		t.Errorf("expected PathInverse, got %v", tps[0].Path.Kind)
	}
}

func TestParsePropertyPath_NegatedSet(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s !(<http://ex/a>|<http://ex/b>) ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tps := q.Select.Where.TriplePatterns()
	if tps[0].Path.Kind != ast.PathNegatedSet {
		t.Fatalf("expected PathNegatedSet, got %v", tps[0].Path.Kind)
	}
	if len(tps[0].Path.Members) != 2 {
		t.Errorf("expected 2 negated-set members, got %d", len(tps[0].Path.Members))
	}
}

func TestParseValues_MultiVariable(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . VALUES (?s ?o) { (<http://ex/a> 1) (<http://ex/b> UNDEF) } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vc := q.Select.Where.Values
	if vc == nil {
		t.Fatal("expected a VALUES clause")
	}
	if len(vc.Vars) != 2 || len(vc.Rows) != 2 {
		t.Fatalf("expected 2 vars and 2 rows, got %d vars, %d rows", len(vc.Vars), len(vc.Rows))
	}
	if vc.Rows[1][1].IsBound() {
		t.Error("expected UNDEF to leave the second row's second column unbound")
	}
}

func TestParseIRIRef_UnicodeEscape(t *testing.T) {
	query := "SELECT * WHERE { ?s <http://ex/caf\\u00e9> ?o }"
	q, err := ParseQuery(query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tps := q.Select.Where.TriplePatterns()
	want := "<http://ex/café>"
	if tps[0].Predicate.RDF.String() != want {
		t.Errorf("expected \\u00e9 to decode to 'é' inside the IRI, got %v", tps[0].Predicate)
	}
}

func TestParseSolutionModifier_GroupByOrderByLimitOffset(t *testing.T) {
	q, err := ParseQuery(`
		SELECT ?s (COUNT(*) AS ?n) WHERE { ?s ?p ?o }
		GROUP BY ?s
		ORDER BY DESC(?n)
		LIMIT 10
		OFFSET 5
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := q.Select.Modifier
	if len(m.GroupBy) != 1 || m.GroupBy[0].Variable != "s" {
		t.Errorf("expected GROUP BY ?s, got %+v", m.GroupBy)
	}
	if len(m.OrderBy) != 1 || !m.OrderBy[0].Descending {
		t.Errorf("expected a single descending ORDER BY condition, got %+v", m.OrderBy)
	}
	if m.Limit == nil || *m.Limit != 10 {
		t.Errorf("expected LIMIT 10, got %v", m.Limit)
	}
	if m.Offset == nil || *m.Offset != 5 {
		t.Errorf("expected OFFSET 5, got %v", m.Offset)
	}
}

func TestParseAsk(t *testing.T) {
	q, err := ParseQuery(`ASK { ?s ?p ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Type != ast.QueryAsk {
		t.Errorf("expected QueryAsk, got %v", q.Type)
	}
}

func TestParseDescribe_Star(t *testing.T) {
	q, err := ParseQuery(`DESCRIBE *`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Describe.DescribeAll {
		t.Error("expected DESCRIBE * to set DescribeAll")
	}
}

func TestParseConstruct_ShorthandWhereForm(t *testing.T) {
	q, err := ParseQuery(`CONSTRUCT WHERE { ?s <http://ex/p> ?o }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.Construct.Template) != 1 {
		t.Fatalf("expected CONSTRUCT WHERE shorthand to reuse the pattern as the template, got %d triples", len(q.Construct.Template))
	}
}

func TestParseExpression_NotInOperator(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . FILTER(?o NOT IN (1, 2, 3)) }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var filter *ast.Filter
	for _, el := range q.Select.Where.Elements {
		if el.Kind == ast.ElemFilter {
			filter = el.Filter
		}
	}
	if filter == nil {
		t.Fatal("expected a FILTER element")
	}
	in, ok := filter.Expression.(*ast.InExpr)
	if !ok {
		t.Fatalf("expected an *ast.InExpr, got %T", filter.Expression)
	}
	if !in.Not {
		t.Error("expected NOT IN to set InExpr.Not")
	}
}

func TestParseExpression_OperatorPrecedence(t *testing.T) {
	// 1 + 2 * 3 must parse as 1 + (2 * 3), i.e. the outer node is '+'.
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . FILTER(?o = 1 + 2 * 3) }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var filter *ast.Filter
	for _, el := range q.Select.Where.Elements {
		if el.Kind == ast.ElemFilter {
			filter = el.Filter
		}
	}
	eq, ok := filter.Expression.(*ast.BinaryExpr)
	if !ok || eq.Op != ast.OpEqual {
		t.Fatalf("expected top-level '=' comparison, got %T", filter.Expression)
	}
	add, ok := eq.Right.(*ast.BinaryExpr)
	if !ok || add.Op != ast.OpAdd {
		t.Fatalf("expected the right side to be a '+' expression, got %T", eq.Right)
	}
	mul, ok := add.Right.(*ast.BinaryExpr)
	if !ok || mul.Op != ast.OpMultiply {
		t.Fatalf("expected '2 * 3' to bind tighter than '+', got %T", add.Right)
	}
}

func TestParseExpression_ExistsAndNotExists(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . FILTER EXISTS { ?s <http://ex/x> ?y } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var filter *ast.Filter
	for _, el := range q.Select.Where.Elements {
		if el.Kind == ast.ElemFilter {
			filter = el.Filter
		}
	}
	if _, ok := filter.Expression.(*ast.ExistsExpr); !ok {
		t.Fatalf("expected an *ast.ExistsExpr, got %T", filter.Expression)
	}
}

func TestParseIRIRef_UnterminatedReportsError(t *testing.T) {
	_, err := ParseQuery(`SELECT * WHERE { ?s <http://ex/unterminated ?o }`)
	if err == nil {
		t.Error("expected an error for an unterminated IRI reference")
	}
}

func TestParseValuesClause_SingleVariableShorthand(t *testing.T) {
	q, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o . VALUES ?s { <http://ex/a> <http://ex/b> } }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vc := q.Select.Where.Values
	if vc == nil || len(vc.Vars) != 1 || vc.Vars[0] != "s" {
		t.Fatalf("expected single-variable VALUES shorthand to bind ?s, got %+v", vc)
	}
	if len(vc.Rows) != 2 {
		t.Fatalf("expected 2 VALUES rows, got %d", len(vc.Rows))
	}
}
