package parser

import (
	"strings"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// parseFilter parses the constraint expression following the FILTER
// keyword, which is either a bracketed expression or a builtin-function
// call used as a predicate (e.g. FILTER regex(...), FILTER EXISTS {...}).
func (p *Parser) parseFilter() (*ast.Filter, error) {
	c := p.c
	c.SkipWhitespace()
	offset := c.Pos()
	expr, err := p.parseConstraint()
	if err != nil {
		return nil, err
	}
	return &ast.Filter{Expression: expr, Offset: offset}, nil
}

func (p *Parser) parseConstraint() (ast.Expression, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() == '(' {
		c.Advance()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		c.SkipWhitespace()
		if c.Peek() != ')' {
			return nil, newErr(UnexpectedChar, c.Pos(), "expected ')'")
		}
		c.Advance()
		return e, nil
	}
	return p.parseExpression()
}

// parseBind parses `( expr AS ?var )` following the BIND keyword.
func (p *Parser) parseBind() (*ast.Bind, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() != '(' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '(' after BIND")
	}
	c.Advance()
	e, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	c.SkipWhitespace()
	if !c.MatchKeyword("AS") {
		return nil, newErr(ExpectedKeyword, c.Pos(), "expected AS in BIND")
	}
	c.SkipWhitespace()
	v, err := p.parseVariable()
	if err != nil {
		return nil, err
	}
	c.SkipWhitespace()
	if c.Peek() != ')' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected ')' closing BIND")
	}
	c.Advance()
	return &ast.Bind{Expression: e, Variable: v.Name}, nil
}

// parseExpression parses a full SPARQL expression by precedence climbing:
//
//	expr       := conditionalOr
//	conditionalOr  := conditionalAnd ('||' conditionalAnd)*
//	conditionalAnd := valueLogical ('&&' valueLogical)*
//	valueLogical   := relational (('=' | '!=' | '<' | '<=' | '>' | '>=' | (NOT)? IN) relational)?
//	additive       := multiplicative (('+' | '-') multiplicative)*
//	multiplicative := unary (('*' | '/') unary)*
//	unary          := ('!' | '+' | '-') unary | primary
func (p *Parser) parseExpression() (ast.Expression, error) {
	return p.parseConditionalOr()
}

func (p *Parser) parseConditionalOr() (ast.Expression, error) {
	left, err := p.parseConditionalAnd()
	if err != nil {
		return nil, err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		if !c.MatchOperator("||") {
			break
		}
		right, err := p.parseConditionalAnd()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseConditionalAnd() (ast.Expression, error) {
	left, err := p.parseValueLogical()
	if err != nil {
		return nil, err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		if !c.MatchOperator("&&") {
			break
		}
		right, err := p.parseValueLogical()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: ast.OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseValueLogical() (ast.Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	c := p.c
	c.SkipWhitespace()

	not := false
	save := c.pos
	if c.MatchKeyword("NOT") {
		c.SkipWhitespace()
		if c.MatchKeyword("IN") {
			return p.parseInTail(left, true)
		}
		c.pos = save
	}
	if c.MatchKeyword("IN") {
		return p.parseInTail(left, not)
	}

	var op ast.Operator
	switch {
	case c.MatchOperator("!="):
		op = ast.OpNotEqual
	case c.MatchOperator("<="):
		op = ast.OpLessEqual
	case c.MatchOperator(">="):
		op = ast.OpGreaterEqual
	case c.MatchOperator("="):
		op = ast.OpEqual
	case c.MatchOperator("<"):
		op = ast.OpLess
	case c.MatchOperator(">"):
		op = ast.OpGreater
	default:
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &ast.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseInTail(left ast.Expression, not bool) (ast.Expression, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() != '(' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '(' after IN")
	}
	c.Advance()
	var values []ast.Expression
	c.SkipWhitespace()
	if c.Peek() != ')' {
		for {
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			c.SkipWhitespace()
			if c.Peek() == ',' {
				c.Advance()
				continue
			}
			break
		}
	}
	c.SkipWhitespace()
	if c.Peek() != ')' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected ')' closing IN list")
	}
	c.Advance()
	return &ast.InExpr{Not: not, Expression: left, Values: values}, nil
}

func (p *Parser) parseAdditive() (ast.Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		var op ast.Operator
		switch {
		case c.Peek() == '+':
			op = ast.OpAdd
		case c.Peek() == '-':
			op = ast.OpSubtract
		default:
			return left, nil
		}
		c.Advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (ast.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		var op ast.Operator
		switch c.Peek() {
		case '*':
			op = ast.OpMultiply
		case '/':
			op = ast.OpDivide
		default:
			return left, nil
		}
		c.Advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expression, error) {
	c := p.c
	c.SkipWhitespace()
	switch c.Peek() {
	case '!':
		c.Advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: ast.OpNot, Operand: operand}, nil
	case '-':
		if !isDigit(c.PeekAt(1)) {
			c.Advance()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &ast.UnaryExpr{Op: ast.OpUnaryMinus, Operand: operand}, nil
		}
	case '+':
		if !isDigit(c.PeekAt(1)) {
			c.Advance()
			operand, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			return &ast.UnaryExpr{Op: ast.OpUnaryPlus, Operand: operand}, nil
		}
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (ast.Expression, error) {
	c := p.c
	c.SkipWhitespace()

	switch {
	case c.Peek() == '(':
		c.Advance()
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		c.SkipWhitespace()
		if c.Peek() != ')' {
			return nil, newErr(UnexpectedChar, c.Pos(), "expected ')'")
		}
		c.Advance()
		return e, nil

	case c.Peek() == '?' || c.Peek() == '$':
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &ast.VariableExpr{Name: v.Name}, nil

	case c.PeekKeyword("NOT"):
		save := c.pos
		c.MatchKeyword("NOT")
		c.SkipWhitespace()
		if c.MatchKeyword("EXISTS") {
			pat, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			return &ast.ExistsExpr{Not: true, Pattern: pat}, nil
		}
		c.pos = save
		return nil, newErr(UnexpectedChar, c.Pos(), "expected EXISTS after NOT")

	case c.PeekKeyword("EXISTS"):
		c.MatchKeyword("EXISTS")
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &ast.ExistsExpr{Pattern: pat}, nil

	case c.PeekKeyword("TRUE"):
		c.MatchKeyword("TRUE")
		return &ast.LiteralExpr{Term: rdf.NewBooleanLiteral(true)}, nil

	case c.PeekKeyword("FALSE"):
		c.MatchKeyword("FALSE")
		return &ast.LiteralExpr{Term: rdf.NewBooleanLiteral(false)}, nil

	case c.Peek() == '"' || c.Peek() == '\'':
		lit, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &ast.LiteralExpr{Term: lit}, nil

	case c.Peek() == '+' || c.Peek() == '-' || isDigit(c.Peek()):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &ast.LiteralExpr{Term: lit}, nil

	case c.Peek() == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		return p.parseFunctionTail(iri)

	case isAlpha(c.Peek()):
		return p.parseFunctionOrPrefixedName()

	default:
		return nil, newErr(UnexpectedChar, c.Pos(), "unexpected character %q in expression", c.Peek())
	}
}

// builtinFuncs is the set of zero/one/two/N-arg builtin names recognized
// as function calls rather than prefixed-name IRIs.
var builtinFuncs = map[string]bool{
	"STR": true, "LANG": true, "LANGMATCHES": true, "DATATYPE": true,
	"BOUND": true, "IRI": true, "URI": true, "BNODE": true, "RAND": true,
	"ABS": true, "CEIL": true, "FLOOR": true, "ROUND": true,
	"CONCAT": true, "STRLEN": true, "UCASE": true, "LCASE": true,
	"ENCODE_FOR_URI": true, "CONTAINS": true, "STRSTARTS": true, "STRENDS": true,
	"STRBEFORE": true, "STRAFTER": true, "REPLACE": true, "REGEX": true,
	"SUBSTR": true, "YEAR": true, "MONTH": true, "DAY": true, "HOURS": true,
	"MINUTES": true, "SECONDS": true, "TIMEZONE": true, "TZ": true, "NOW": true,
	"UUID": true, "STRUUID": true, "MD5": true, "SHA1": true, "SHA256": true,
	"SHA384": true, "SHA512": true, "COALESCE": true, "IF": true, "SAMETERM": true,
	"ISIRI": true, "ISURI": true, "ISBLANK": true, "ISLITERAL": true, "ISNUMERIC": true,
	"STRDT": true, "STRLANG": true, "HASLANG": true, "HASLANGDIR": true,
}

var aggregateFuncs = map[string]ast.AggregateFunc{
	"COUNT": ast.AggCount, "SUM": ast.AggSum, "AVG": ast.AggAvg,
	"MIN": ast.AggMin, "MAX": ast.AggMax,
	"GROUP_CONCAT": ast.AggGroupConcat, "SAMPLE": ast.AggSample,
}

// parseFunctionOrPrefixedName parses a bare identifier that is either a
// builtin/aggregate function call or a prefixed-name IRI used as a custom
// function call / standalone literal term.
func (p *Parser) parseFunctionOrPrefixedName() (ast.Expression, error) {
	c := p.c
	start := c.pos
	name := c.ReadWhile(func(b byte) bool { return isNameChar(b) })
	upper := strings.ToUpper(name)

	if agg, ok := aggregateFuncs[upper]; ok {
		return p.parseAggregate(agg)
	}
	if builtinFuncs[upper] {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return &ast.FuncCallExpr{Name: upper, Args: args}, nil
	}

	c.SkipWhitespace()
	if c.Peek() == ':' {
		c.pos = start
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return p.parseFunctionTail(iri)
	}
	if c.Peek() == '(' {
		// An unrecognized builtin name still parses as a call; the
		// evaluator resolves it to Unbound.
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return &ast.FuncCallExpr{Name: upper, Args: args}, nil
	}
	return nil, newErr(UnexpectedChar, start, "unknown identifier %q in expression", name)
}

// parseFunctionTail treats a just-parsed IRI as a custom function call if
// followed directly by '(', otherwise as a bare IRI term.
func (p *Parser) parseFunctionTail(iri string) (ast.Expression, error) {
	c := p.c
	save := c.pos
	c.SkipWhitespace()
	if c.Peek() == '(' {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return &ast.FuncCallExpr{Name: iri, Args: args}, nil
	}
	c.pos = save
	return &ast.LiteralExpr{Term: rdf.NewNamedNode(iri)}, nil
}

func (p *Parser) parseArgList() ([]ast.Expression, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() != '(' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '(' in function call")
	}
	c.Advance()
	var args []ast.Expression
	c.SkipWhitespace()
	if c.MatchKeyword("DISTINCT") {
		c.SkipWhitespace()
	}
	if c.Peek() == '*' {
		c.Advance()
	} else if c.Peek() != ')' {
		for {
			a, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			c.SkipWhitespace()
			if c.Peek() == ',' {
				c.Advance()
				continue
			}
			break
		}
	}
	c.SkipWhitespace()
	if c.Peek() != ')' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected ')' closing function call")
	}
	c.Advance()
	return args, nil
}

func (p *Parser) parseAggregate(fn ast.AggregateFunc) (ast.Expression, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() != '(' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '(' after aggregate function")
	}
	c.Advance()
	c.SkipWhitespace()

	distinct := c.MatchKeyword("DISTINCT")
	c.SkipWhitespace()

	agg := &ast.AggregateExpr{Function: fn, Distinct: distinct}

	if c.Peek() == '*' {
		c.Advance()
		agg.Star = true
	} else if c.Peek() != ')' {
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		agg.Arg = e
		if fn == ast.AggGroupConcat {
			c.SkipWhitespace()
			if c.Peek() == ';' {
				c.Advance()
				c.SkipWhitespace()
				if !c.MatchKeyword("SEPARATOR") {
					return nil, newErr(ExpectedKeyword, c.Pos(), "expected SEPARATOR")
				}
				c.SkipWhitespace()
				if c.Peek() != '=' {
					return nil, newErr(UnexpectedChar, c.Pos(), "expected '=' after SEPARATOR")
				}
				c.Advance()
				c.SkipWhitespace()
				sep, err := p.parseStringLiteral()
				if err != nil {
					return nil, err
				}
				if lit, ok := sep.(*rdf.Literal); ok {
					agg.Separator = lit.Value
				}
			}
		}
	}
	c.SkipWhitespace()
	if c.Peek() != ')' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected ')' closing aggregate")
	}
	c.Advance()
	return agg, nil
}
