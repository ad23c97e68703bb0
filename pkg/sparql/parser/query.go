package parser

import (
	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// parseSelectBody parses the SELECT clause, WHERE pattern, and solution
// modifier following the already-consumed SELECT keyword.
func (p *Parser) parseSelectBody() (*ast.SelectQuery, error) {
	c := p.c
	sel := ast.SelectClause{}
	c.SkipWhitespace()
	switch {
	case c.MatchKeyword("DISTINCT"):
		sel.Distinct = true
	case c.MatchKeyword("REDUCED"):
		sel.Reduced = true
	}
	c.SkipWhitespace()
	if c.Peek() == '*' {
		c.Advance()
		sel.SelectAll = true
	} else {
		for {
			c.SkipWhitespace()
			entry, ok, err := p.parseProjectionEntry()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			sel.Projection = append(sel.Projection, entry)
		}
		if len(sel.Projection) == 0 {
			return nil, newErr(ExpectedKeyword, c.Pos(), "expected projection variable, '(', or '*'")
		}
	}

	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}
	c.SkipWhitespace()
	c.MatchKeyword("WHERE")
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	modifier, err := p.parseSolutionModifier()
	if err != nil {
		return nil, err
	}
	return &ast.SelectQuery{Select: sel, Where: where, Modifier: modifier}, nil
}

// parseProjectionEntry parses one `?var` or `(expr AS ?alias)` projection
// entry. ok is false when the current position holds neither (the caller
// has reached the end of the projection list).
func (p *Parser) parseProjectionEntry() (ast.ProjectionEntry, bool, error) {
	c := p.c
	c.SkipWhitespace()
	switch {
	case c.Peek() == '?' || c.Peek() == '$':
		v, err := p.parseVariable()
		if err != nil {
			return ast.ProjectionEntry{}, false, err
		}
		return ast.ProjectionEntry{Variable: v.Name}, true, nil

	case c.Peek() == '(':
		c.Advance()
		e, err := p.parseExpression()
		if err != nil {
			return ast.ProjectionEntry{}, false, err
		}
		c.SkipWhitespace()
		var alias string
		if c.MatchKeyword("AS") {
			c.SkipWhitespace()
			v, err := p.parseVariable()
			if err != nil {
				return ast.ProjectionEntry{}, false, err
			}
			alias = v.Name
		}
		c.SkipWhitespace()
		if c.Peek() != ')' {
			return ast.ProjectionEntry{}, false, newErr(UnexpectedChar, c.Pos(), "expected ')' closing projection expression")
		}
		c.Advance()
		return ast.ProjectionEntry{Aggregate: asAggregateExpr(e), Alias: alias}, true, nil

	default:
		return ast.ProjectionEntry{}, false, nil
	}
}

// asAggregateExpr wraps a plain expression as a trivial (AggNone)
// aggregate entry so ProjectionEntry.Aggregate covers both
// `(COUNT(?x) AS ?c)` and `(?x + 1 AS ?y)` uniformly.
func asAggregateExpr(e ast.Expression) *ast.AggregateExpr {
	if agg, ok := e.(*ast.AggregateExpr); ok {
		return agg
	}
	return &ast.AggregateExpr{Function: ast.AggNone, Arg: e}
}

// parseConstructBody parses both the ordinary `CONSTRUCT { tmpl } WHERE
// { pattern }` form and the `CONSTRUCT WHERE { pattern }` shorthand, where
// the matched pattern's triples double as the template.
func (p *Parser) parseConstructBody() (*ast.ConstructQuery, error) {
	c := p.c
	c.SkipWhitespace()

	var template []ast.TriplePattern
	var where *ast.GraphPattern

	if c.MatchKeyword("WHERE") {
		pat, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		where = pat
		template = pat.TriplePatterns()
	} else {
		tmpl, err := p.parseConstructTemplate()
		if err != nil {
			return nil, err
		}
		if err := p.parseDatasetClauses(); err != nil {
			return nil, err
		}
		c.SkipWhitespace()
		if !c.MatchKeyword("WHERE") {
			return nil, newErr(ExpectedKeyword, c.Pos(), "expected WHERE")
		}
		w, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		template = tmpl
		where = w
	}

	modifier, err := p.parseSolutionModifier()
	if err != nil {
		return nil, err
	}
	return &ast.ConstructQuery{Template: template, Where: where, Modifier: modifier}, nil
}

// parseConstructTemplate parses a `{ ... }` block of plain triple patterns
// (no FILTER/OPTIONAL/etc, per the CONSTRUCT template grammar).
func (p *Parser) parseConstructTemplate() ([]ast.TriplePattern, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() != '{' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '{' in CONSTRUCT template")
	}
	c.Advance()
	tmp := &ast.GraphPattern{}
	for {
		c.SkipWhitespace()
		if c.AtEnd() {
			return nil, newErr(UnexpectedEOF, c.Pos(), "unterminated CONSTRUCT template")
		}
		if c.Peek() == '}' {
			c.Advance()
			break
		}
		if c.Peek() == '.' {
			c.Advance()
			continue
		}
		if err := p.parseTriplesSameSubjectPath(tmp); err != nil {
			return nil, err
		}
	}
	return tmp.TriplePatterns(), nil
}

// parseAskBody parses ASK's (optional) dataset clauses and WHERE pattern.
func (p *Parser) parseAskBody() (*ast.AskQuery, error) {
	c := p.c
	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}
	c.SkipWhitespace()
	c.MatchKeyword("WHERE")
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	modifier, err := p.parseSolutionModifier()
	if err != nil {
		return nil, err
	}
	return &ast.AskQuery{Where: where, Modifier: modifier}, nil
}

// parseDescribeBody parses `DESCRIBE (VarOrIri+ | '*')` followed by an
// optional WHERE pattern.
func (p *Parser) parseDescribeBody() (*ast.DescribeQuery, error) {
	c := p.c
	desc := &ast.DescribeQuery{}
	c.SkipWhitespace()
	if c.Peek() == '*' {
		c.Advance()
		desc.DescribeAll = true
	} else {
		for {
			c.SkipWhitespace()
			if c.AtEnd() || c.PeekKeyword("WHERE") || c.PeekKeyword("FROM") {
				break
			}
			ch := c.Peek()
			if ch != '?' && ch != '$' && ch != '<' && !isAlpha(ch) && ch != ':' {
				break
			}
			t, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			desc.Resources = append(desc.Resources, t)
		}
		if len(desc.Resources) == 0 {
			return nil, newErr(ExpectedKeyword, c.Pos(), "expected resource list or '*' after DESCRIBE")
		}
	}

	if err := p.parseDatasetClauses(); err != nil {
		return nil, err
	}
	c.SkipWhitespace()
	if c.MatchKeyword("WHERE") || c.Peek() == '{' {
		where, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		desc.Where = where
	}
	modifier, err := p.parseSolutionModifier()
	if err != nil {
		return nil, err
	}
	desc.Modifier = modifier
	return desc, nil
}

// parseDatasetClauses consumes zero or more `FROM [NAMED] <iri>` clauses.
// The in-process store this parser feeds has no notion of an external
// named-graph dataset to load, so the IRIs are validated but discarded;
// GRAPH inside the pattern still addresses graphs already in the store.
func (p *Parser) parseDatasetClauses() error {
	c := p.c
	for {
		c.SkipWhitespace()
		if !c.MatchKeyword("FROM") {
			return nil
		}
		c.SkipWhitespace()
		c.MatchKeyword("NAMED")
		c.SkipWhitespace()
		if _, err := p.parseIRIRef(); err != nil {
			return err
		}
	}
}

// parseSolutionModifier parses the (all optional) trailing
// TEMPORAL/GROUP BY/HAVING/ORDER BY/LIMIT/OFFSET clauses.
func (p *Parser) parseSolutionModifier() (ast.SolutionModifier, error) {
	var m ast.SolutionModifier
	c := p.c

	tc, err := p.parseTemporalClause()
	if err != nil {
		return m, err
	}
	m.Temporal = tc

	c.SkipWhitespace()
	if c.MatchKeyword("GROUP") {
		c.SkipWhitespace()
		if !c.MatchKeyword("BY") {
			return m, newErr(ExpectedKeyword, c.Pos(), "expected BY after GROUP")
		}
		for {
			c.SkipWhitespace()
			if c.Peek() == '?' || c.Peek() == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return m, err
				}
				m.GroupBy = append(m.GroupBy, ast.GroupCondition{Variable: v.Name})
			} else if c.Peek() == '(' {
				c.Advance()
				e, err := p.parseExpression()
				if err != nil {
					return m, err
				}
				c.SkipWhitespace()
				var alias string
				if c.MatchKeyword("AS") {
					c.SkipWhitespace()
					v, err := p.parseVariable()
					if err != nil {
						return m, err
					}
					alias = v.Name
				}
				c.SkipWhitespace()
				if c.Peek() != ')' {
					return m, newErr(UnexpectedChar, c.Pos(), "expected ')' closing GROUP BY expression")
				}
				c.Advance()
				m.GroupBy = append(m.GroupBy, ast.GroupCondition{Variable: alias, Expression: e})
			} else {
				break
			}
		}
	}

	c.SkipWhitespace()
	if c.MatchKeyword("HAVING") {
		for {
			c.SkipWhitespace()
			if c.AtEnd() || c.PeekKeyword("ORDER") || c.PeekKeyword("LIMIT") || c.PeekKeyword("OFFSET") {
				break
			}
			e, err := p.parseConstraint()
			if err != nil {
				return m, err
			}
			m.Having = append(m.Having, ast.Filter{Expression: e})
		}
	}

	c.SkipWhitespace()
	if c.MatchKeyword("ORDER") {
		c.SkipWhitespace()
		if !c.MatchKeyword("BY") {
			return m, newErr(ExpectedKeyword, c.Pos(), "expected BY after ORDER")
		}
		for {
			c.SkipWhitespace()
			if c.AtEnd() || c.PeekKeyword("LIMIT") || c.PeekKeyword("OFFSET") {
				break
			}
			if c.Peek() != '?' && c.Peek() != '$' && c.Peek() != '(' && !isAlpha(c.Peek()) {
				break
			}
			desc := false
			switch {
			case c.MatchKeyword("DESC"):
				desc = true
			case c.MatchKeyword("ASC"):
			}
			c.SkipWhitespace()
			var cond ast.OrderCondition
			if c.Peek() == '?' || c.Peek() == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return m, err
				}
				cond = ast.OrderCondition{Variable: v.Name, Descending: desc}
			} else {
				e, err := p.parseUnary()
				if err != nil {
					return m, err
				}
				if v, ok := e.(*ast.VariableExpr); ok {
					cond = ast.OrderCondition{Variable: v.Name, Descending: desc}
				} else {
					cond = ast.OrderCondition{Expression: e, Descending: desc}
				}
			}
			if len(m.OrderBy) >= ast.MaxOrderBy {
				return m, newErr(CapacityExceeded, c.Pos(), "too many ORDER BY conditions (max %d)", ast.MaxOrderBy)
			}
			m.OrderBy = append(m.OrderBy, cond)
		}
	}

	c.SkipWhitespace()
	if c.MatchKeyword("LIMIT") {
		c.SkipWhitespace()
		n, ok := c.ParseInteger()
		if !ok {
			return m, newErr(InvalidNumber, c.Pos(), "expected integer after LIMIT")
		}
		m.Limit = &n
	}
	c.SkipWhitespace()
	if c.MatchKeyword("OFFSET") {
		c.SkipWhitespace()
		n, ok := c.ParseInteger()
		if !ok {
			return m, newErr(InvalidNumber, c.Pos(), "expected integer after OFFSET")
		}
		m.Offset = &n
	}

	return m, nil
}

// parseTemporalClause parses the supplemented `AS OF <dateTime>`,
// `DURING <dateTime> TO <dateTime>`, or `ALL VERSIONS` clause, which a
// temporal-aware store interprets (see SPEC_FULL.md §6.1); the core query
// engine treats it as opaque routing information.
func (p *Parser) parseTemporalClause() (*ast.TemporalClause, error) {
	c := p.c
	c.SkipWhitespace()
	switch {
	case c.MatchKeyword("AS"):
		c.SkipWhitespace()
		if !c.MatchKeyword("OF") {
			return nil, newErr(ExpectedKeyword, c.Pos(), "expected OF after AS")
		}
		c.SkipWhitespace()
		lit, err := p.parseTemporalLiteral()
		if err != nil {
			return nil, err
		}
		return &ast.TemporalClause{Kind: ast.TemporalAsOf, At: lit}, nil

	case c.MatchKeyword("DURING"):
		c.SkipWhitespace()
		from, err := p.parseTemporalLiteral()
		if err != nil {
			return nil, err
		}
		c.SkipWhitespace()
		if !c.MatchKeyword("TO") {
			return nil, newErr(ExpectedKeyword, c.Pos(), "expected TO in DURING clause")
		}
		c.SkipWhitespace()
		to, err := p.parseTemporalLiteral()
		if err != nil {
			return nil, err
		}
		return &ast.TemporalClause{Kind: ast.TemporalDuring, From: from, To: to}, nil

	case c.PeekKeyword("ALL"):
		save := c.pos
		c.MatchKeyword("ALL")
		c.SkipWhitespace()
		if !c.MatchKeyword("VERSIONS") {
			c.pos = save
			return nil, nil
		}
		return &ast.TemporalClause{Kind: ast.TemporalAllVersions}, nil
	}
	return nil, nil
}

func (p *Parser) parseTemporalLiteral() (string, error) {
	c := p.c
	if c.Peek() == '"' || c.Peek() == '\'' {
		lit, err := p.parseStringLiteral()
		if err != nil {
			return "", err
		}
		if l, ok := lit.(*rdf.Literal); ok {
			return l.Value, nil
		}
		return "", nil
	}
	return "", newErr(UnexpectedChar, c.Pos(), "expected dateTime string literal")
}
