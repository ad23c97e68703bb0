// Command trigo is a small command-line front end to the query engine:
// a built-in demo data set with a fixed example query, and a way to run one
// query against an N-Quads file. Serving SPARQL over HTTP is out of
// scope (see the design notes on protocol-layer Non-goals).
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/memstore"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: trigo <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  demo                       - run a query against built-in sample data")
		fmt.Println("  query <nquads-file> <q>    - execute a SPARQL query against an N-Quads file")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "demo":
		runDemo()
	case "query":
		if len(os.Args) < 4 {
			fmt.Println("Usage: trigo query <nquads-file> <sparql-query>")
			os.Exit(1)
		}
		runQuery(os.Args[2], os.Args[3])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func runDemo() {
	fmt.Println("=== Sample dataset ===")
	st := memstore.New()

	alice := rdf.NewNamedNode("http://example.org/alice")
	bob := rdf.NewNamedNode("http://example.org/bob")
	carol := rdf.NewNamedNode("http://example.org/carol")
	name := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	age := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")
	knows := rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")

	triples := []*rdf.Triple{
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice")),
		rdf.NewTriple(alice, age, rdf.NewIntegerLiteral(30)),
		rdf.NewTriple(alice, knows, bob),
		rdf.NewTriple(bob, name, rdf.NewLiteral("Bob")),
		rdf.NewTriple(bob, age, rdf.NewIntegerLiteral(25)),
		rdf.NewTriple(bob, knows, carol),
		rdf.NewTriple(carol, name, rdf.NewLiteral("Carol")),
		rdf.NewTriple(carol, age, rdf.NewIntegerLiteral(28)),
	}
	for _, t := range triples {
		st.AddTriple(t.Subject, t.Predicate, t.Object)
		fmt.Printf("  + %s\n", t)
	}

	query := `
		SELECT ?person ?name ?age
		WHERE {
			?person <http://xmlns.com/foaf/0.1/name> ?name .
			?person <http://xmlns.com/foaf/0.1/age> ?age .
		}
		ORDER BY ?name
	`
	runAndPrint(st, query)
}

func runQuery(nquadsPath, query string) {
	data, err := os.ReadFile(nquadsPath)
	if err != nil {
		log.Fatalf("reading %s: %v", nquadsPath, err)
	}
	st := memstore.New()
	if err := memstore.LoadNQuads(st, string(data)); err != nil {
		log.Fatalf("parsing %s: %v", nquadsPath, err)
	}
	runAndPrint(st, query)
}

func runAndPrint(st *memstore.Store, query string) {
	q, err := sparql.ParseQuery(query)
	if err != nil {
		log.Fatalf("parse error: %v", err)
	}
	res, err := sparql.Execute(context.Background(), st, q)
	if err != nil {
		log.Fatalf("execution error: %v", err)
	}
	defer res.Close()

	switch q.Type {
	case ast.QuerySelect:
		printSelect(res)
	case ast.QueryConstruct, ast.QueryDescribe:
		printTriples(res)
	case ast.QueryAsk:
		fmt.Printf("Result: %t\n", res.Ask())
	}
}

func printSelect(res *sparql.Results) {
	vars := res.Vars()
	fmt.Println("Results:")
	n := 0
	for res.Next(context.Background()) {
		n++
		for _, v := range vars {
			if t, ok := res.Binding(v); ok {
				fmt.Printf("  ?%s = %s\n", v, formatTerm(t.RDF))
			}
		}
		fmt.Println()
	}
	fmt.Printf("%d result(s)\n", n)
}

func printTriples(res *sparql.Results) {
	for _, t := range res.Triples() {
		fmt.Println(t)
	}
}

func formatTerm(term rdf.Term) string {
	if term == nil {
		return ""
	}
	switch t := term.(type) {
	case *rdf.NamedNode:
		iri := t.IRI
		for i := len(iri) - 1; i >= 0; i-- {
			if iri[i] == '/' || iri[i] == '#' {
				return iri[i+1:]
			}
		}
		return iri
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}
