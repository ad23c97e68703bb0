package eval

import (
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

func (e *Evaluator) evalBinary(ex *ast.BinaryExpr, frame Frame) ast.Term {
	switch ex.Op {
	case ast.OpOr:
		return evalOr(e.Evaluate(ex.Left, frame), e.Evaluate(ex.Right, frame))
	case ast.OpAnd:
		return evalAnd(e.Evaluate(ex.Left, frame), e.Evaluate(ex.Right, frame))
	}

	left := e.Evaluate(ex.Left, frame)
	right := e.Evaluate(ex.Right, frame)

	switch ex.Op {
	case ast.OpEqual, ast.OpNotEqual:
		eq, ok := equalTerms(left, right)
		if !ok {
			return ast.Unbound
		}
		if ex.Op == ast.OpNotEqual {
			eq = !eq
		}
		return boolTerm(eq)

	case ast.OpLess, ast.OpLessEqual, ast.OpGreater, ast.OpGreaterEqual:
		cmp, ok := orderTerms(left, right)
		if !ok {
			return ast.Unbound
		}
		switch ex.Op {
		case ast.OpLess:
			return boolTerm(cmp < 0)
		case ast.OpLessEqual:
			return boolTerm(cmp <= 0)
		case ast.OpGreater:
			return boolTerm(cmp > 0)
		default:
			return boolTerm(cmp >= 0)
		}

	case ast.OpAdd, ast.OpSubtract, ast.OpMultiply, ast.OpDivide:
		lv, lok := extractNumeric(left)
		rv, rok := extractNumeric(right)
		if !lok || !rok {
			return ast.Unbound
		}
		switch ex.Op {
		case ast.OpAdd:
			return numericTerm(lv+rv, left, right)
		case ast.OpSubtract:
			return numericTerm(lv-rv, left, right)
		case ast.OpMultiply:
			return numericTerm(lv*rv, left, right)
		default: // OpDivide
			if rv == 0 {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewDecimalLiteral(lv / rv))
		}
	}
	return ast.Unbound
}

func (e *Evaluator) evalUnary(ex *ast.UnaryExpr, frame Frame) ast.Term {
	operand := e.Evaluate(ex.Operand, frame)
	switch ex.Op {
	case ast.OpNot:
		v, ok := ebv(operand)
		if !ok {
			return ast.Unbound
		}
		return boolTerm(!v)
	case ast.OpUnaryMinus:
		v, ok := extractNumeric(operand)
		if !ok {
			return ast.Unbound
		}
		return numericTerm(-v, operand, operand)
	case ast.OpUnaryPlus:
		if _, ok := extractNumeric(operand); !ok {
			return ast.Unbound
		}
		return operand
	}
	return ast.Unbound
}

// evalAnd/evalOr implement SPARQL's three-valued boolean logic: an
// erroring operand (EBV undefined) only poisons the result when the
// other operand cannot already decide it on its own, matching the
// corpus's error-tolerant evaluateOr (`error || true == true`).
func evalOr(l, r ast.Term) ast.Term {
	lv, lok := ebv(l)
	rv, rok := ebv(r)
	if lok && lv {
		return boolTerm(true)
	}
	if rok && rv {
		return boolTerm(true)
	}
	if lok && rok {
		return boolTerm(false)
	}
	return ast.Unbound
}

func evalAnd(l, r ast.Term) ast.Term {
	lv, lok := ebv(l)
	rv, rok := ebv(r)
	if lok && !lv {
		return boolTerm(false)
	}
	if rok && !rv {
		return boolTerm(false)
	}
	if lok && rok {
		return boolTerm(true)
	}
	return ast.Unbound
}

// EBV is ebv exported for callers outside the package (the executor's
// Filter/Having evaluation, which needs the same effective-boolean-value
// rule FILTER itself uses).
func EBV(t ast.Term) (bool, bool) { return ebv(t) }

// ebv computes a term's effective boolean value. Unlike the corpus's
// evaluator, an unsupported or unbound term resolves to (false, false)
// rather than a Go error.
func ebv(t ast.Term) (bool, bool) {
	if t.IsUnbound() || t.RDF == nil {
		return false, false
	}
	lit, ok := t.RDF.(*rdf.Literal)
	if !ok {
		return false, false
	}
	if lit.Datatype == nil {
		if lit.Language != "" {
			return lit.Value != "", true
		}
		return lit.Value != "", true
	}
	switch lit.Datatype.IRI {
	case rdf.XSDBoolean.IRI:
		b, err := strconv.ParseBool(lit.Value)
		if err != nil {
			return false, false
		}
		return b, true
	case rdf.XSDString.IRI:
		return lit.Value != "", true
	default:
		if v, ok := extractNumericLiteral(lit); ok {
			return v != 0, true
		}
		return false, false
	}
}

// equalTerms implements the `=` / `!=` operator: numeric cross-datatype
// equality first, then RDF term equality for everything else.
func equalTerms(l, r ast.Term) (bool, bool) {
	if l.IsUnbound() || r.IsUnbound() || l.RDF == nil || r.RDF == nil {
		return false, false
	}
	if lv, lok := extractNumeric(l); lok {
		if rv, rok := extractNumeric(r); rok {
			return lv == rv, true
		}
	}
	return l.RDF.Equals(r.RDF), true
}

// orderTerms implements `<`/`<=`/`>`/`>=` and the ORDER BY comparator:
// numeric comparison when both sides are numeric, else lexical string
// comparison, matching the corpus's compareTerms fallback chain.
// OrderTerms is orderTerms exported for ORDER BY, which needs the same
// numeric-then-string total order the `<`/`>` operators use.
func OrderTerms(l, r ast.Term) (int, bool) { return orderTerms(l, r) }

func orderTerms(l, r ast.Term) (int, bool) {
	if l.IsUnbound() || r.IsUnbound() {
		return 0, false
	}
	if lv, lok := extractNumeric(l); lok {
		if rv, rok := extractNumeric(r); rok {
			switch {
			case lv < rv:
				return -1, true
			case lv > rv:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	ls, lok := extractString(l)
	rs, rok := extractString(r)
	if lok && rok {
		return strings.Compare(ls, rs), true
	}
	return 0, false
}

// NumericValue, StringValue and NumericTerm are extractNumeric/
// extractString/numericTerm exported for the executor's aggregate
// computation (SUM/AVG/MIN/MAX/GROUP_CONCAT need the same numeric and
// lexical coercion rules the arithmetic operators use).
func NumericValue(t ast.Term) (float64, bool) { return extractNumeric(t) }
func StringValue(t ast.Term) (string, bool)   { return extractString(t) }
func NumericTerm(v float64, operands ...ast.Term) ast.Term { return numericTerm(v, operands...) }

func extractNumeric(t ast.Term) (float64, bool) {
	if t.IsUnbound() || t.RDF == nil {
		return 0, false
	}
	lit, ok := t.RDF.(*rdf.Literal)
	if !ok {
		return 0, false
	}
	return extractNumericLiteral(lit)
}

func extractNumericLiteral(lit *rdf.Literal) (float64, bool) {
	if lit.Datatype != nil {
		switch lit.Datatype.IRI {
		case rdf.XSDInteger.IRI, rdf.XSDDecimal.IRI, rdf.XSDDouble.IRI:
			v, err := strconv.ParseFloat(lit.Value, 64)
			return v, err == nil
		case rdf.XSDBoolean.IRI, rdf.XSDString.IRI, rdf.XSDDateTime.IRI, rdf.XSDDate.IRI, rdf.XSDTime.IRI:
			return 0, false
		}
		return 0, false
	}
	if lit.Language != "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(lit.Value, 64)
	return v, err == nil
}

func extractString(t ast.Term) (string, bool) {
	if t.IsUnbound() || t.RDF == nil {
		return "", false
	}
	switch v := t.RDF.(type) {
	case *rdf.Literal:
		return v.Value, true
	case *rdf.NamedNode:
		return v.IRI, true
	default:
		return "", false
	}
}

func rdfTerm(t rdf.Term) ast.Term { return ast.NewRDFTerm(t, 0) }

// numericTerm preserves xsd:integer typing when both operands were
// integers and the result is itself whole, matching the corpus's
// createNumericLiteral; otherwise it produces an xsd:double.
func numericTerm(v float64, operands ...ast.Term) ast.Term {
	allInt := true
	for _, t := range operands {
		lit, ok := t.RDF.(*rdf.Literal)
		if !ok || lit.Datatype == nil || lit.Datatype.IRI != rdf.XSDInteger.IRI {
			allInt = false
			break
		}
	}
	if allInt && v == float64(int64(v)) {
		return rdfTerm(rdf.NewIntegerLiteral(int64(v)))
	}
	return rdfTerm(rdf.NewDoubleLiteral(v))
}
