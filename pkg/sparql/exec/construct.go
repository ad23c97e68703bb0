package exec

import (
	"context"

	"github.com/google/uuid"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/eval"
)

// instantiateTemplate applies a CONSTRUCT template to every row,
// skipping any triple that needs a variable left unbound by that row or
// a non-IRI term in predicate position. Blank node labels in the
// template are scoped per row: the same label within one row produces
// the same fresh node, but two rows never share a blank node.
func instantiateTemplate(template []ast.TriplePattern, rows []eval.Frame) []*rdf.Triple {
	var out []*rdf.Triple
	for _, row := range rows {
		scope := make(map[string]*rdf.BlankNode)
		for _, tp := range template {
			s, ok := instantiateTerm(tp.Subject, row, scope)
			if !ok {
				continue
			}
			p, ok := instantiateTerm(tp.Predicate, row, scope)
			if !ok {
				continue
			}
			if _, isIRI := p.(*rdf.NamedNode); !isIRI {
				continue
			}
			o, ok := instantiateTerm(tp.Object, row, scope)
			if !ok {
				continue
			}
			out = append(out, rdf.NewTriple(s, p, o))
		}
	}
	return dedupeTriples(out)
}

func instantiateTerm(t ast.Term, row eval.Frame, scope map[string]*rdf.BlankNode) (rdf.Term, bool) {
	switch t.Kind {
	case ast.KindVariable:
		v, ok := row.Lookup(t.Name)
		if !ok || v.IsUnbound() || v.RDF == nil {
			return nil, false
		}
		return v.RDF, true
	case ast.KindBlankNode:
		if bn, ok := scope[t.Name]; ok {
			return bn, true
		}
		bn := rdf.NewBlankNode(newUUIDv7())
		scope[t.Name] = bn
		return bn, true
	default:
		if t.RDF == nil {
			return nil, false
		}
		return t.RDF, true
	}
}

// newUUIDv7 generates an RFC-4122 version 7 (time-ordered) UUID for a
// fresh per-row blank node label, falling back to a random v4 only if
// the entropy source itself fails.
func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func dedupeTriples(triples []*rdf.Triple) []*rdf.Triple {
	seen := make(map[string]bool, len(triples))
	out := make([]*rdf.Triple, 0, len(triples))
	for _, tr := range triples {
		k := tr.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, tr)
	}
	return out
}

// describeResources resolves a DESCRIBE query's resource list: the
// explicit IRIs named after DESCRIBE, plus the values a named variable
// takes in the WHERE pattern's result rows, plus, for DESCRIBE *, every
// value bound in those rows.
func describeResources(q *ast.DescribeQuery, rows []eval.Frame) []ast.Term {
	var out []ast.Term
	seen := make(map[string]bool)
	add := func(t ast.Term) {
		if t.IsUnbound() || t.RDF == nil {
			return
		}
		k := t.String()
		if seen[k] {
			return
		}
		seen[k] = true
		out = append(out, t)
	}
	for _, res := range q.Resources {
		if res.IsVariable() {
			for _, row := range rows {
				if v, ok := row.Lookup(res.Name); ok {
					add(v)
				}
			}
			continue
		}
		add(res)
	}
	if q.DescribeAll {
		for _, row := range rows {
			for _, v := range row {
				add(v)
			}
		}
	}
	return out
}

// describeTriples gathers every triple with resource as subject, the
// conventional (non-normative) DESCRIBE expansion.
func (x *Executor) describeTriples(ctx context.Context, resources []ast.Term) ([]*rdf.Triple, error) {
	var out []*rdf.Triple
	for _, res := range resources {
		it, err := x.queryGraph(ctx, ast.Term{}, res, ast.Term{}, ast.Term{})
		if err != nil {
			return nil, err
		}
		for it.Next() {
			s, p, o := it.Triple()
			if s.RDF == nil || p.RDF == nil || o.RDF == nil {
				continue
			}
			out = append(out, rdf.NewTriple(s.RDF, p.RDF, o.RDF))
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return nil, err
		}
	}
	return dedupeTriples(out), nil
}
