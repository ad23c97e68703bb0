package exec

import (
	"context"
	"sort"
	"strings"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/eval"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/plan"
)

// sliceFrameIterator replays a pre-computed row set. Group/Having/
// Projection/Distinct/OrderBy/Offset/Limit all need to see their whole
// input at once (a sort or a group-by can't be answered row by row), so
// each materializes its input via drainNode and exposes the transformed
// result through this adapter, keeping the RowIterator interface uniform
// even where the implementation isn't actually streaming.
type sliceFrameIterator struct {
	rows  []eval.Frame
	idx   int
	frame eval.Frame
}

func (it *sliceFrameIterator) Next(ctx context.Context) bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.frame = it.rows[it.idx]
	it.idx++
	return true
}
func (it *sliceFrameIterator) Frame() eval.Frame { return it.frame }
func (it *sliceFrameIterator) Err() error        { return nil }
func (it *sliceFrameIterator) Close() error      { return nil }

func (x *Executor) buildModifier(ctx context.Context, node plan.Node, graph ast.Term, outer eval.Frame) (RowIterator, bool, error) {
	switch n := node.(type) {
	case *plan.Group:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		return &sliceFrameIterator{rows: x.applyGroup(rows, n)}, true, nil
	case *plan.Having:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		return &sliceFrameIterator{rows: applyFilterRows(rows, n.Expression, x.eval)}, true, nil
	case *plan.Projection:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		return &sliceFrameIterator{rows: x.applyProjection(rows, n)}, true, nil
	case *plan.Distinct:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		return &sliceFrameIterator{rows: applyDistinct(rows)}, true, nil
	case *plan.OrderBy:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		return &sliceFrameIterator{rows: x.applyOrderBy(rows, n.Conditions)}, true, nil
	case *plan.Offset:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		if n.N < len(rows) {
			rows = rows[n.N:]
		} else {
			rows = nil
		}
		return &sliceFrameIterator{rows: rows}, true, nil
	case *plan.Limit:
		rows, err := x.drainNode(ctx, n.Input, graph, outer)
		if err != nil {
			return nil, true, err
		}
		if n.N >= 0 && n.N < len(rows) {
			rows = rows[:n.N]
		}
		return &sliceFrameIterator{rows: rows}, true, nil
	default:
		return nil, false, nil
	}
}

// applyFilterRows implements Having: structurally the same error-tolerant
// effective-boolean-value test as Filter, just over a materialized slice.
func applyFilterRows(rows []eval.Frame, expr ast.Expression, ev *eval.Evaluator) []eval.Frame {
	out := make([]eval.Frame, 0, len(rows))
	for _, r := range rows {
		if isTrue(ev.Evaluate(expr, r)) {
			out = append(out, r)
		}
	}
	return out
}

// --- Group / aggregates ---------------------------------------------------

type groupBucket struct {
	key  eval.Frame
	rows []eval.Frame
}

func (x *Executor) applyGroup(rows []eval.Frame, n *plan.Group) []eval.Frame {
	order := make([]string, 0)
	buckets := make(map[string]*groupBucket)

	if len(n.GroupBy) == 0 {
		// An aggregate with no GROUP BY is one implicit group over the
		// whole solution sequence, even when rows is empty (COUNT(*)
		// over zero rows is still a valid answer: 0).
		buckets[""] = &groupBucket{key: eval.NewFrame(), rows: rows}
		order = append(order, "")
	} else {
		for _, row := range rows {
			key := eval.NewFrame()
			var sb strings.Builder
			for _, cond := range n.GroupBy {
				var v ast.Term
				if cond.Expression != nil {
					v = x.eval.Evaluate(cond.Expression, row)
				} else {
					v, _ = row.Lookup(cond.Variable)
				}
				if cond.Variable != "" {
					key = key.Extend(cond.Variable, v)
				}
				sb.WriteString(v.String())
				sb.WriteByte(0)
			}
			k := sb.String()
			b, ok := buckets[k]
			if !ok {
				b = &groupBucket{key: key}
				buckets[k] = b
				order = append(order, k)
			}
			b.rows = append(b.rows, row)
		}
	}

	out := make([]eval.Frame, 0, len(order))
	for _, k := range order {
		b := buckets[k]
		frame := b.key
		for _, agg := range n.Aggregates {
			frame = frame.Extend(agg.Variable, x.computeAggregate(agg.Expr, b.rows))
		}
		out = append(out, frame)
	}
	return out
}

// computeAggregate reduces one group's rows through a single aggregate
// expression. An aggregate over zero input values resolves to SPARQL's
// documented identity: 0 for COUNT/SUM, unbound for AVG/MIN/MAX/SAMPLE,
// the empty string for GROUP_CONCAT.
func (x *Executor) computeAggregate(agg *ast.AggregateExpr, rows []eval.Frame) ast.Term {
	values := make([]ast.Term, 0, len(rows))
	if agg.Star {
		values = make([]ast.Term, len(rows))
	} else {
		for _, r := range rows {
			values = append(values, x.eval.Evaluate(agg.Arg, r))
		}
	}
	if agg.Distinct {
		values = dedupeTerms(values)
	}

	switch agg.Function {
	case ast.AggNone:
		// A plain (expr AS ?y) projection entry inside a grouped query:
		// not a reduction, just expr evaluated once for the group (every
		// row in a valid grouped query agrees on the variables it uses).
		if len(values) == 0 {
			return ast.Unbound
		}
		return values[0]
	case ast.AggCount:
		n := 0
		for _, v := range values {
			if agg.Star || !v.IsUnbound() {
				n++
			}
		}
		return ast.NewRDFTerm(rdf.NewIntegerLiteral(int64(n)), 0)
	case ast.AggSum:
		var sum float64
		var operands []ast.Term
		for _, v := range values {
			if n, ok := eval.NumericValue(v); ok {
				sum += n
				operands = append(operands, v)
			}
		}
		if len(operands) == 0 {
			return ast.NewRDFTerm(rdf.NewIntegerLiteral(0), 0)
		}
		return eval.NumericTerm(sum, operands...)
	case ast.AggAvg:
		var sum float64
		var operands []ast.Term
		for _, v := range values {
			if n, ok := eval.NumericValue(v); ok {
				sum += n
				operands = append(operands, v)
			}
		}
		if len(operands) == 0 {
			return ast.Unbound
		}
		return eval.NumericTerm(sum/float64(len(operands)), operands...)
	case ast.AggMin, ast.AggMax:
		var best ast.Term
		have := false
		for _, v := range values {
			if v.IsUnbound() {
				continue
			}
			if !have {
				best, have = v, true
				continue
			}
			cmp, ok := eval.OrderTerms(best, v)
			if !ok {
				continue
			}
			if (agg.Function == ast.AggMin && cmp > 0) || (agg.Function == ast.AggMax && cmp < 0) {
				best = v
			}
		}
		if !have {
			return ast.Unbound
		}
		return best
	case ast.AggGroupConcat:
		sep := agg.Separator
		if sep == "" {
			sep = " "
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			if s, ok := eval.StringValue(v); ok {
				parts = append(parts, s)
			}
		}
		return ast.NewRDFTerm(rdf.NewLiteral(strings.Join(parts, sep)), 0)
	case ast.AggSample:
		for _, v := range values {
			if !v.IsUnbound() {
				return v
			}
		}
		return ast.Unbound
	default:
		return ast.Unbound
	}
}

func dedupeTerms(values []ast.Term) []ast.Term {
	seen := make(map[string]bool, len(values))
	out := make([]ast.Term, 0, len(values))
	for _, v := range values {
		k := v.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// --- Projection / Distinct / OrderBy ---------------------------------------------------

func (x *Executor) applyProjection(rows []eval.Frame, n *plan.Projection) []eval.Frame {
	if n.SelectAll {
		return rows
	}
	out := make([]eval.Frame, 0, len(rows))
	for _, row := range rows {
		projected := eval.NewFrame()
		for _, entry := range n.Entries {
			switch {
			case entry.Variable != "":
				if v, ok := row.Lookup(entry.Variable); ok {
					projected = projected.Extend(entry.Variable, v)
				}
			case entry.Aggregate != nil && entry.Alias != "":
				// A preceding Group node already computed and bound
				// this alias when the projection entry is a real
				// aggregate (or part of a grouped query); otherwise
				// (a bare `(expr AS ?y)` with no GROUP BY) it hasn't
				// been evaluated yet, so do it here.
				v, ok := row.Lookup(entry.Alias)
				if !ok {
					v = x.eval.Evaluate(entry.Aggregate.Arg, row)
				}
				projected = projected.Extend(entry.Alias, v)
			}
		}
		out = append(out, projected)
	}
	return out
}

// applyDistinct deduplicates rows on their FNV-1a RowHash, the same
// collision-accepted hash the binding-sequence dedup key uses elsewhere.
func applyDistinct(rows []eval.Frame) []eval.Frame {
	seen := make(map[uint32]bool, len(rows))
	out := make([]eval.Frame, 0, len(rows))
	for _, row := range rows {
		k := row.RowHash(rowVars(row))
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, row)
	}
	return out
}

func rowVars(row eval.Frame) []string {
	vars := make([]string, 0, len(row))
	for v := range row {
		vars = append(vars, v)
	}
	return vars
}

func (x *Executor) applyOrderBy(rows []eval.Frame, conditions []ast.OrderCondition) []eval.Frame {
	out := append([]eval.Frame(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, cond := range conditions {
			var a, b ast.Term
			if cond.Expression != nil {
				a = x.eval.Evaluate(cond.Expression, out[i])
				b = x.eval.Evaluate(cond.Expression, out[j])
			} else {
				a, _ = out[i].Lookup(cond.Variable)
				b, _ = out[j].Lookup(cond.Variable)
			}
			cmp, ok := eval.OrderTerms(a, b)
			if !ok {
				continue
			}
			if cmp == 0 {
				continue
			}
			if cond.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}
