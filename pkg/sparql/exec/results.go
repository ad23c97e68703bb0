package exec

import (
	"context"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/eval"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/plan"
)

// Results holds one query's output: solution rows for SELECT, a single
// boolean for ASK, or a triple set for CONSTRUCT/DESCRIBE. Every stage
// is fully evaluated by the time Execute returns, since ORDER BY,
// DISTINCT and GROUP BY all need their full input before they can
// produce anything — the streaming pattern-matching tree underneath
// (see iterator.go) still avoids holding the whole dataset, only the
// final solution sequence is materialized here.
type Results struct {
	vars   []string
	rows   []eval.Frame
	pos    int

	isAsk    bool
	askValue bool

	triples []*rdf.Triple
}

// Vars names the projected columns, in projection order, for a SELECT
// Results; empty for ASK/CONSTRUCT/DESCRIBE.
func (r *Results) Vars() []string { return r.vars }

// Next advances to the next solution row, returning false once exhausted.
func (r *Results) Next(ctx context.Context) bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

// Binding returns the current row's binding for name.
func (r *Results) Binding(name string) (ast.Term, bool) {
	if r.pos == 0 || r.pos > len(r.rows) {
		return ast.Term{}, false
	}
	return r.rows[r.pos-1].Lookup(name)
}

// Frame returns the current row in full.
func (r *Results) Frame() eval.Frame {
	if r.pos == 0 || r.pos > len(r.rows) {
		return nil
	}
	return r.rows[r.pos-1]
}

// Len reports how many solution rows Results holds (SELECT only).
func (r *Results) Len() int { return len(r.rows) }

// Ask reports an ASK query's boolean result.
func (r *Results) Ask() bool { return r.askValue }

// Triples returns a CONSTRUCT or DESCRIBE query's output graph.
func (r *Results) Triples() []*rdf.Triple { return r.triples }

// Close releases resources held by Results. The current implementation
// holds none once Execute returns, but the method exists so callers
// don't need to special-case whether a query form needs cleanup.
func (r *Results) Close() error { return nil }

// Execute runs q to completion against the executor's store.
func (x *Executor) Execute(ctx context.Context, q *ast.Query) (*Results, error) {
	p, err := plan.Build(q)
	if err != nil {
		return nil, err
	}
	x.temporal = p.Temporal

	switch q.Type {
	case ast.QuerySelect:
		rows, err := x.drainPlan(ctx, p, eval.NewFrame())
		if err != nil {
			return nil, err
		}
		vars := selectVars(q.Select)
		return &Results{vars: vars, rows: rows}, nil

	case ast.QueryConstruct:
		c, ok := p.Root.(*plan.Construct)
		if !ok {
			return nil, &Error{Detail: "exec: CONSTRUCT plan missing Construct node"}
		}
		rows, err := x.drainNode(ctx, c.Input, ast.Term{}, eval.NewFrame())
		if err != nil {
			return nil, err
		}
		return &Results{triples: instantiateTemplate(c.Template, rows)}, nil

	case ast.QueryDescribe:
		var rows []eval.Frame
		if p.Root != nil {
			var err error
			rows, err = x.drainNode(ctx, p.Root, ast.Term{}, eval.NewFrame())
			if err != nil {
				return nil, err
			}
		}
		resources := describeResources(q.Describe, rows)
		triples, err := x.describeTriples(ctx, resources)
		if err != nil {
			return nil, err
		}
		return &Results{triples: triples}, nil

	case ast.QueryAsk:
		rows, err := x.drainNode(ctx, p.Root, ast.Term{}, eval.NewFrame())
		if err != nil {
			return nil, err
		}
		return &Results{isAsk: true, askValue: len(rows) > 0}, nil
	}
	return nil, &Error{Detail: "exec: unknown query type"}
}

// ExecuteAsk is a convenience wrapper for ASK queries.
func (x *Executor) ExecuteAsk(ctx context.Context, q *ast.Query) (bool, error) {
	res, err := x.Execute(ctx, q)
	if err != nil {
		return false, err
	}
	return res.Ask(), nil
}

func selectVars(q *ast.SelectQuery) []string {
	if q.Select.SelectAll {
		return q.Where.Variables()
	}
	vars := make([]string, 0, len(q.Select.Projection))
	for _, entry := range q.Select.Projection {
		switch {
		case entry.Variable != "":
			vars = append(vars, entry.Variable)
		case entry.Alias != "":
			vars = append(vars, entry.Alias)
		}
	}
	return vars
}
