package eval

import (
	"testing"

	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

func callExpr(name string, args ...ast.Expression) *ast.FuncCallExpr {
	return &ast.FuncCallExpr{Name: name, Args: args}
}

func litArg(t ast.Term) ast.Expression { return &ast.LiteralExpr{Term: t.RDF} }

func TestEvalFuncCall_StringFunctions(t *testing.T) {
	e := New()
	f := NewFrame()

	tests := []struct {
		name string
		expr *ast.FuncCallExpr
		want string
	}{
		{"UCASE", callExpr("UCASE", litArg(strTerm("abc"))), "ABC"},
		{"LCASE", callExpr("LCASE", litArg(strTerm("ABC"))), "abc"},
		{"CONCAT", callExpr("CONCAT", litArg(strTerm("foo")), litArg(strTerm("bar"))), "foobar"},
		{"STRBEFORE", callExpr("STRBEFORE", litArg(strTerm("foo/bar")), litArg(strTerm("/"))), "foo"},
		{"STRAFTER", callExpr("STRAFTER", litArg(strTerm("foo/bar")), litArg(strTerm("/"))), "bar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.evalFuncCall(tt.expr, f)
			s, ok := extractString(got)
			if !ok || s != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got)
			}
		})
	}
}

func TestEvalFuncCall_STRLEN_CountsRunes(t *testing.T) {
	e := New()
	got := e.evalFuncCall(callExpr("STRLEN", litArg(strTerm("héllo"))), NewFrame())
	v, ok := extractNumeric(got)
	if !ok || v != 5 {
		t.Errorf("expected rune-counted length 5, got %v", got)
	}
}

func TestEvalFuncCall_BOUND_InspectsVariableNotValue(t *testing.T) {
	e := New()
	f := NewFrame().Extend("x", strTerm(""))
	got := e.evalFuncCall(callExpr("BOUND", &ast.VariableExpr{Name: "x"}), f)
	b, ok := ebv(got)
	if !ok || !b {
		t.Error("expected BOUND(?x) to be true even though x's value is the empty string")
	}
	got = e.evalFuncCall(callExpr("BOUND", &ast.VariableExpr{Name: "y"}), f)
	b, ok = ebv(got)
	if !ok || b {
		t.Error("expected BOUND(?y) to be false for an unbound variable")
	}
}

func TestEvalFuncCall_IsTypeChecks(t *testing.T) {
	e := New()
	f := NewFrame()

	if b, ok := ebv(e.evalFuncCall(callExpr("ISIRI", litArg(iriTerm("http://example.org/x"))), f)); !ok || !b {
		t.Error("expected isIRI(<iri>) true")
	}
	if b, ok := ebv(e.evalFuncCall(callExpr("ISLITERAL", litArg(iriTerm("http://example.org/x"))), f)); !ok || b {
		t.Error("expected isLiteral(<iri>) false")
	}
	if b, ok := ebv(e.evalFuncCall(callExpr("ISNUMERIC", litArg(intTerm(1))), f)); !ok || !b {
		t.Error("expected isNumeric(1) true")
	}
}

func TestEvalFuncCall_SUBSTR_OneBasedAndClamped(t *testing.T) {
	e := New()
	f := NewFrame()

	got := e.evalFuncCall(callExpr("SUBSTR", litArg(strTerm("hello")), litArg(intTerm(2))), f)
	s, _ := extractString(got)
	if s != "ello" {
		t.Errorf("expected SUBSTR('hello', 2) == 'ello', got %q", s)
	}

	got = e.evalFuncCall(callExpr("SUBSTR", litArg(strTerm("hello")), litArg(intTerm(2)), litArg(intTerm(2))), f)
	s, _ = extractString(got)
	if s != "el" {
		t.Errorf("expected SUBSTR('hello', 2, 2) == 'el', got %q", s)
	}

	// Out-of-range start clamps rather than erroring.
	got = e.evalFuncCall(callExpr("SUBSTR", litArg(strTerm("hi")), litArg(intTerm(-1)), litArg(intTerm(3))), f)
	s, _ = extractString(got)
	if s != "h" {
		t.Errorf("expected clamped SUBSTR to return 'h', got %q", s)
	}
}

func TestEvalFuncCall_REGEX(t *testing.T) {
	e := New()
	f := NewFrame()
	got := e.evalFuncCall(callExpr("REGEX", litArg(strTerm("Hello")), litArg(strTerm("^hello$")), litArg(strTerm("i"))), f)
	b, ok := ebv(got)
	if !ok || !b {
		t.Error("expected case-insensitive REGEX match to succeed")
	}
	got = e.evalFuncCall(callExpr("REGEX", litArg(strTerm("Hello")), litArg(strTerm("^hello$"))), f)
	b, ok = ebv(got)
	if !ok || b {
		t.Error("expected case-sensitive REGEX match to fail")
	}
}

func TestEvalFuncCall_REPLACE_BackreferenceTranslation(t *testing.T) {
	e := New()
	f := NewFrame()
	got := e.evalFuncCall(callExpr("REPLACE",
		litArg(strTerm("2024-01-02")),
		litArg(strTerm(`(\d+)-(\d+)-(\d+)`)),
		litArg(strTerm("$3/$2/$1")),
	), f)
	s, ok := extractString(got)
	if !ok || s != "02/01/2024" {
		t.Errorf("expected REPLACE to rewrite date order, got %q", s)
	}
}

func TestEvalFuncCall_IF(t *testing.T) {
	e := New()
	f := NewFrame()
	got := e.evalFuncCall(callExpr("IF", litArg(boolT(true)), litArg(strTerm("yes")), litArg(strTerm("no"))), f)
	s, _ := extractString(got)
	if s != "yes" {
		t.Errorf("expected IF(true, 'yes', 'no') == 'yes', got %q", s)
	}
}

func TestEvalFuncCall_COALESCE(t *testing.T) {
	e := New()
	f := NewFrame()
	got := e.evalFuncCall(callExpr("COALESCE", &ast.VariableExpr{Name: "missing"}, litArg(strTerm("fallback"))), f)
	s, ok := extractString(got)
	if !ok || s != "fallback" {
		t.Errorf("expected COALESCE to skip the unbound first arg, got %q", s)
	}
}

func TestEvalFuncCall_MD5(t *testing.T) {
	e := New()
	got := e.evalFuncCall(callExpr("MD5", litArg(strTerm(""))), NewFrame())
	s, ok := extractString(got)
	if !ok || s != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("expected MD5('') to be the well-known empty-string digest, got %q", s)
	}
}

func TestEvalCast_XSDInteger(t *testing.T) {
	e := New()
	got := e.evalFuncCall(&ast.FuncCallExpr{
		Name: "http://www.w3.org/2001/XMLSchema#integer",
		Args: []ast.Expression{litArg(strTerm("42"))},
	}, NewFrame())
	v, ok := extractNumeric(got)
	if !ok || v != 42 {
		t.Errorf("expected xsd:integer(\"42\") == 42, got %v", got)
	}
}
