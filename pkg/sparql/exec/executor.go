package exec

import (
	"context"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/eval"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/plan"
)

// Executor runs a compiled plan.Plan against a Store. It is cheap to
// construct; create one per query rather than sharing a single instance
// across concurrent queries, since Execute records the running query's
// temporal clause on the Executor itself.
type Executor struct {
	store    Store
	eval     *eval.Evaluator
	temporal *ast.TemporalClause
}

// New wires an Executor's evaluator to its own EXISTS/NOT EXISTS probe,
// so an expression inside a FILTER can run a nested pattern match
// against the same store and the frame bindings visible at that point.
func New(store Store) *Executor {
	x := &Executor{store: store}
	x.eval = eval.New(eval.WithExistsProbe(x.existsProbe))
	return x
}

func (x *Executor) existsProbe(pattern *ast.GraphPattern, frame eval.Frame) bool {
	node, err := plan.BuildPattern(pattern)
	if err != nil {
		return false
	}
	it, err := x.build(context.Background(), node, ast.Term{}, frame)
	if err != nil {
		return false
	}
	defer it.Close()
	return it.Next(context.Background())
}

// drainPlan evaluates p's whole node tree to completion, returning every
// solution row. p.Root already includes the solution-modifier stages
// (Group/Having/Projection/Distinct/OrderBy/Offset/Limit), so the rows
// returned are the final ones.
func (x *Executor) drainPlan(ctx context.Context, p *plan.Plan, outer eval.Frame) ([]eval.Frame, error) {
	return x.drainNode(ctx, p.Root, ast.Term{}, outer)
}
