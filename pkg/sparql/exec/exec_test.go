package exec_test

import (
	"context"
	"testing"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/memstore"
)

func newFOAFStore() *memstore.Store {
	st := memstore.New()
	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	age := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")
	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")

	st.AddTriple(alice, name, rdf.NewLiteral("Alice"))
	st.AddTriple(alice, age, rdf.NewIntegerLiteral(30))
	st.AddTriple(alice, knows, bob)
	st.AddTriple(bob, name, rdf.NewLiteral("Bob"))
	st.AddTriple(bob, age, rdf.NewIntegerLiteral(25))
	st.AddTriple(bob, knows, carol)
	st.AddTriple(carol, name, rdf.NewLiteral("Carol"))
	st.AddTriple(carol, age, rdf.NewIntegerLiteral(28))
	return st
}

func runSelect(t *testing.T, st *memstore.Store, query string) ([]string, []map[string]string) {
	t.Helper()
	res, err := sparql.Query(context.Background(), st, query)
	if err != nil {
		t.Fatalf("query error: %v", err)
	}
	vars := res.Vars()
	var rows []map[string]string
	for res.Next(context.Background()) {
		row := make(map[string]string)
		for _, v := range vars {
			if val, ok := res.Binding(v); ok {
				row[v] = val.RDF.String()
			}
		}
		rows = append(rows, row)
	}
	return vars, rows
}

func TestSelect_BasicTriplePattern(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name WHERE {
			?person <http://xmlns.com/foaf/0.1/name> ?name .
		}
	`)
	if len(rows) != 3 {
		t.Fatalf("expected 3 people, got %d: %v", len(rows), rows)
	}
}

func TestSelect_JoinAcrossTwoPatterns(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name ?age WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
			?p <http://xmlns.com/foaf/0.1/age> ?age .
		}
		ORDER BY ?name
	`)
	if len(rows) != 3 {
		t.Fatalf("expected 3 joined rows, got %d: %v", len(rows), rows)
	}
	if rows[0]["name"] != `"Alice"` {
		t.Errorf("expected Alice first after ORDER BY ?name, got %v", rows[0])
	}
}

func TestSelect_FilterRestrictsRows(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
			?p <http://xmlns.com/foaf/0.1/age> ?age .
			FILTER(?age > 26)
		}
	`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 people older than 26 (Alice 30, Carol 28), got %d: %v", len(rows), rows)
	}
}

func TestSelect_OptionalKeepsUnmatchedRow(t *testing.T) {
	st := memstore.New()
	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	email := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/mbox")
	st.AddTriple(alice, name, rdf.NewLiteral("Alice"))
	st.AddTriple(alice, email, rdf.NewLiteral("alice@example.org"))
	st.AddTriple(bob, name, rdf.NewLiteral("Bob"))

	_, rows := runSelect(t, st, `
		SELECT ?name ?email WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
			OPTIONAL { ?p <http://xmlns.com/foaf/0.1/mbox> ?email }
		}
	`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (one with email, one without), got %d: %v", len(rows), rows)
	}
	var sawUnboundEmail bool
	for _, r := range rows {
		if _, ok := r["email"]; !ok {
			sawUnboundEmail = true
		}
	}
	if !sawUnboundEmail {
		t.Error("expected Bob's row to have ?email left unbound by OPTIONAL")
	}
}

func TestSelect_Union(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name WHERE {
			{ ?p <http://xmlns.com/foaf/0.1/name> "Alice" . ?p <http://xmlns.com/foaf/0.1/name> ?name }
			UNION
			{ ?p <http://xmlns.com/foaf/0.1/name> "Bob" . ?p <http://xmlns.com/foaf/0.1/name> ?name }
		}
	`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows from the two UNION branches, got %d: %v", len(rows), rows)
	}
}

func TestSelect_Minus(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
			MINUS { ?p <http://xmlns.com/foaf/0.1/age> 30 }
		}
	`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows once Alice (age 30) is excluded, got %d: %v", len(rows), rows)
	}
	for _, r := range rows {
		if r["name"] == `"Alice"` {
			t.Error("expected Alice to be excluded by MINUS")
		}
	}
}

func TestSelect_Values(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
			VALUES ?name { "Alice" "Carol" }
		}
	`)
	if len(rows) != 2 {
		t.Fatalf("expected VALUES to restrict to Alice and Carol, got %d: %v", len(rows), rows)
	}
}

func TestSelect_DistinctDeduplicates(t *testing.T) {
	st := memstore.New()
	alice := rdf.NewNamedNode("http://example.org/alice")
	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")
	st.AddTriple(alice, knows, bob)
	st.AddTriple(alice, knows, carol)
	typ := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/Person")
	rdfType := rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	st.AddTriple(alice, rdfType, typ)

	_, rows := runSelect(t, st, `
		SELECT DISTINCT ?p WHERE {
			?p <http://xmlns.com/foaf/0.1/knows> ?friend .
		}
	`)
	if len(rows) != 1 {
		t.Fatalf("expected DISTINCT to collapse alice's two 'knows' rows into one, got %d: %v", len(rows), rows)
	}
}

func TestSelect_LimitAndOffset(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
		}
		ORDER BY ?name
		LIMIT 1
		OFFSET 1
	`)
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row, got %d: %v", len(rows), rows)
	}
	if rows[0]["name"] != `"Bob"` {
		t.Errorf("expected Bob (second alphabetically) with OFFSET 1, got %v", rows[0])
	}
}

func TestSelect_CountAggregate(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT (COUNT(*) AS ?n) WHERE {
			?p <http://xmlns.com/foaf/0.1/name> ?name .
		}
	`)
	if len(rows) != 1 {
		t.Fatalf("expected a single aggregate row, got %d", len(rows))
	}
	if rows[0]["n"] != `"3"^^<http://www.w3.org/2001/XMLSchema#integer>` {
		t.Errorf("expected COUNT(*) == 3, got %v", rows[0])
	}
}

func TestSelect_GroupByWithAggregate(t *testing.T) {
	st := memstore.New()
	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	team := rdf.NewNamedNode("http://example.org/team")
	st.AddTriple(alice, team, rdf.NewLiteral("red"))
	st.AddTriple(bob, team, rdf.NewLiteral("red"))
	carol := rdf.NewNamedNode("http://example.org/carol")
	st.AddTriple(carol, team, rdf.NewLiteral("blue"))

	_, rows := runSelect(t, st, `
		SELECT ?team (COUNT(*) AS ?n) WHERE {
			?p <http://example.org/team> ?team .
		}
		GROUP BY ?team
		ORDER BY ?team
	`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups (red, blue), got %d: %v", len(rows), rows)
	}
	if rows[0]["team"] != `"blue"` || rows[0]["n"] != `"1"^^<http://www.w3.org/2001/XMLSchema#integer>` {
		t.Errorf("expected blue group with count 1 first (alphabetical order), got %v", rows[0])
	}
	if rows[1]["team"] != `"red"` || rows[1]["n"] != `"2"^^<http://www.w3.org/2001/XMLSchema#integer>` {
		t.Errorf("expected red group with count 2, got %v", rows[1])
	}
}

func TestAsk_TrueAndFalse(t *testing.T) {
	st := newFOAFStore()
	ok, err := sparql.Query(context.Background(), st, `ASK { ?p <http://xmlns.com/foaf/0.1/name> "Alice" }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok.Ask() {
		t.Error("expected ASK for Alice's name triple to be true")
	}

	ok, err = sparql.Query(context.Background(), st, `ASK { ?p <http://xmlns.com/foaf/0.1/name> "Dave" }`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Ask() {
		t.Error("expected ASK for a nonexistent name to be false")
	}
}

func TestConstruct_BuildsNewTriples(t *testing.T) {
	st := newFOAFStore()
	res, err := sparql.Query(context.Background(), st, `
		CONSTRUCT { ?p <http://example.org/hasName> ?name }
		WHERE { ?p <http://xmlns.com/foaf/0.1/name> ?name }
	`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	triples := res.Triples()
	if len(triples) != 3 {
		t.Fatalf("expected 3 constructed triples, got %d", len(triples))
	}
	for _, tr := range triples {
		if tr.Predicate.String() != "<http://example.org/hasName>" {
			t.Errorf("expected the constructed predicate to be hasName, got %v", tr.Predicate)
		}
	}
}

func TestDescribe_ExplicitResource(t *testing.T) {
	st := newFOAFStore()
	res, err := sparql.Query(context.Background(), st, `DESCRIBE <http://example.org/alice>`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	triples := res.Triples()
	if len(triples) != 3 {
		t.Fatalf("expected alice's 3 outgoing triples (name, age, knows), got %d", len(triples))
	}
}

func TestSelect_Bind(t *testing.T) {
	st := newFOAFStore()
	_, rows := runSelect(t, st, `
		SELECT ?name ?doubled WHERE {
			?p <http://xmlns.com/foaf/0.1/age> ?age .
			?p <http://xmlns.com/foaf/0.1/name> ?name .
			BIND(?age * 2 AS ?doubled)
		}
		ORDER BY ?name
	`)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0]["doubled"] != `"60"^^<http://www.w3.org/2001/XMLSchema#integer>` {
		t.Errorf("expected Alice's doubled age to be 60, got %v", rows[0])
	}
}

func TestSelect_PropertyPathOneOrMore(t *testing.T) {
	st := newFOAFStore() // alice knows bob knows carol
	_, rows := runSelect(t, st, `
		SELECT ?who WHERE {
			<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows>+ ?who .
		}
	`)
	if len(rows) != 2 {
		t.Fatalf("expected alice to reach both bob and carol via knows+, got %d: %v", len(rows), rows)
	}
}
