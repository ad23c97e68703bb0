package eval

import (
	"testing"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

func TestEvaluate_InExpr(t *testing.T) {
	e := New()
	f := NewFrame()
	expr := &ast.InExpr{
		Expression: litArg(intTerm(2)),
		Values:     []ast.Expression{litArg(intTerm(1)), litArg(intTerm(2)), litArg(intTerm(3))},
	}
	got := e.Evaluate(expr, f)
	if b, ok := ebv(got); !ok || !b {
		t.Error("expected 2 IN (1,2,3) to be true")
	}

	expr.Not = true
	got = e.Evaluate(expr, f)
	if b, ok := ebv(got); !ok || b {
		t.Error("expected 2 NOT IN (1,2,3) to be false")
	}
}

func TestEvaluate_ExistsWithoutProbe(t *testing.T) {
	e := New() // no WithExistsProbe option: should default to "not found"
	got := e.Evaluate(&ast.ExistsExpr{Pattern: &ast.GraphPattern{}}, NewFrame())
	if b, ok := ebv(got); !ok || b {
		t.Error("expected EXISTS with no wired probe to evaluate false")
	}
}

func TestEvaluate_ExistsWithProbe(t *testing.T) {
	probeCalled := false
	e := New(WithExistsProbe(func(pattern *ast.GraphPattern, frame Frame) bool {
		probeCalled = true
		return true
	}))
	got := e.Evaluate(&ast.ExistsExpr{Pattern: &ast.GraphPattern{}}, NewFrame())
	if !probeCalled {
		t.Error("expected the wired ExistsProbe to be invoked")
	}
	if b, ok := ebv(got); !ok || !b {
		t.Error("expected EXISTS to evaluate true when the probe reports a match")
	}

	notExpr := &ast.ExistsExpr{Not: true, Pattern: &ast.GraphPattern{}}
	got = e.Evaluate(notExpr, NewFrame())
	if b, ok := ebv(got); !ok || b {
		t.Error("expected NOT EXISTS to invert the probe result")
	}
}

func TestEvaluate_AggregateExprHasNoSingleRowValue(t *testing.T) {
	e := New()
	got := e.Evaluate(&ast.AggregateExpr{Function: ast.AggCount}, NewFrame())
	if !got.IsUnbound() {
		t.Error("a bare AggregateExpr reaching the evaluator directly should resolve to Unbound")
	}
}

func TestEvaluate_NilExpression(t *testing.T) {
	e := New()
	if got := e.Evaluate(nil, NewFrame()); !got.IsUnbound() {
		t.Error("expected evaluating a nil expression to yield Unbound")
	}
}
