package parser

import "github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"

// parseGroupGraphPattern parses a `{ ... }` block into a *ast.GraphPattern,
// dispatching on keyword/shape the way the corpus's existing SPARQL
// parser does, generalized to cover property paths, VALUES, SERVICE,
// sub-selects, N-way UNION, and multi-block MINUS (see SPEC_FULL.md §4.3).
func (p *Parser) parseGroupGraphPattern() (*ast.GraphPattern, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() != '{' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '{'")
	}
	c.Advance()

	pattern := &ast.GraphPattern{}

	for {
		c.SkipWhitespace()
		if c.AtEnd() {
			return nil, newErr(UnexpectedEOF, c.Pos(), "unterminated graph pattern")
		}
		if c.Peek() == '}' {
			c.Advance()
			break
		}
		if c.Peek() == '.' {
			c.Advance()
			continue
		}

		switch {
		case c.PeekKeyword("FILTER"):
			c.MatchKeyword("FILTER")
			f, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			if err := pattern.AddFilter(f); err != nil {
				return nil, newErr(CapacityExceeded, c.Pos(), "%v", err)
			}

		case c.PeekKeyword("OPTIONAL"):
			c.MatchKeyword("OPTIONAL")
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.OptionalBlocks = append(pattern.OptionalBlocks, ast.OptionalBlock{Pattern: inner})

		case c.PeekKeyword("MINUS"):
			c.MatchKeyword("MINUS")
			if len(pattern.MinusBlocks) >= ast.MaxMinusBlocks {
				return nil, newErr(CapacityExceeded, c.Pos(), "too many MINUS blocks (max %d)", ast.MaxMinusBlocks)
			}
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.MinusBlocks = append(pattern.MinusBlocks, ast.MinusBlock{Pattern: inner})

		case c.PeekKeyword("BIND"):
			c.MatchKeyword("BIND")
			b, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			pattern.AddBind(b)

		case c.PeekKeyword("VALUES"):
			c.MatchKeyword("VALUES")
			v, err := p.parseValuesClause()
			if err != nil {
				return nil, err
			}
			pattern.Values = v

		case c.PeekKeyword("GRAPH"):
			c.MatchKeyword("GRAPH")
			if len(pattern.GraphClauses) >= ast.MaxGraphPatterns {
				return nil, newErr(CapacityExceeded, c.Pos(), "too many GRAPH clauses (max %d)", ast.MaxGraphPatterns)
			}
			term, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.GraphClauses = append(pattern.GraphClauses, ast.GraphClause{Graph: term, Pattern: inner})

		case c.PeekKeyword("SERVICE"):
			c.MatchKeyword("SERVICE")
			c.SkipWhitespace()
			silent := c.MatchKeyword("SILENT")
			c.SkipWhitespace()
			term, err := p.parseVarOrTerm()
			if err != nil {
				return nil, err
			}
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.ServiceClauses = append(pattern.ServiceClauses, ast.ServiceClause{Silent: silent, Service: term, Pattern: inner})

		case c.Peek() == '{':
			if err := p.parseBraceGroup(pattern); err != nil {
				return nil, err
			}

		default:
			if err := p.parseTriplesSameSubjectPath(pattern); err != nil {
				return nil, err
			}
		}
	}

	return pattern, nil
}

// parseBraceGroup handles a `{` that starts neither with a prior keyword
// (OPTIONAL/MINUS/GRAPH/SERVICE) nor the enclosing block: either a
// sub-select (`{ SELECT ... }`), or a group that may be the first of one
// or more `UNION`-joined alternatives.
func (p *Parser) parseBraceGroup(pattern *ast.GraphPattern) error {
	c := p.c
	save := c.pos
	c.Advance() // '{'
	c.SkipWhitespace()
	isSubSelect := c.PeekKeyword("SELECT")
	c.pos = save

	if isSubSelect {
		c.Advance()
		c.SkipWhitespace()
		c.MatchKeyword("SELECT")
		sub, err := p.parseSelectBody()
		if err != nil {
			return err
		}
		c.SkipWhitespace()
		if c.Peek() != '}' {
			return newErr(UnexpectedChar, c.Pos(), "expected '}' after sub-select")
		}
		c.Advance()
		if len(pattern.SubSelects) >= ast.MaxSubSelects {
			return newErr(CapacityExceeded, c.Pos(), "too many sub-selects (max %d)", ast.MaxSubSelects)
		}
		pattern.SubSelects = append(pattern.SubSelects, &ast.SubSelect{Query: sub})
		return nil
	}

	first, err := p.parseGroupGraphPattern()
	if err != nil {
		return err
	}
	branches := []*ast.GraphPattern{first}
	for {
		c.SkipWhitespace()
		if !c.MatchKeyword("UNION") {
			break
		}
		c.SkipWhitespace()
		next, err := p.parseGroupGraphPattern()
		if err != nil {
			return err
		}
		branches = append(branches, next)
	}
	if pattern.UnionBranches != nil {
		return newErr(CapacityExceeded, c.Pos(), "at most one UNION group per graph pattern scope is supported")
	}
	pattern.UnionBranches = branches
	return nil
}

// parseTriplesSameSubjectPath parses one subject and its predicate-object
// list (`;`/`,` shorthand), appending a TriplePattern per predicate/object
// pair, then an optional trailing '.'.
func (p *Parser) parseTriplesSameSubjectPath(pattern *ast.GraphPattern) error {
	subject, err := p.parseVarOrTerm()
	if err != nil {
		return err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		predTerm, path, err := p.parsePredicate()
		if err != nil {
			return err
		}
		for {
			c.SkipWhitespace()
			object, err := p.parseVarOrTerm()
			if err != nil {
				return err
			}
			tp := ast.TriplePattern{Subject: subject, Predicate: predTerm, Object: object, Path: path}
			if err := pattern.AddTriple(tp); err != nil {
				return newErr(CapacityExceeded, c.Pos(), "%v", err)
			}
			c.SkipWhitespace()
			if c.Peek() == ',' {
				c.Advance()
				continue
			}
			break
		}
		c.SkipWhitespace()
		if c.Peek() == ';' {
			c.Advance()
			continue
		}
		break
	}
	c.SkipWhitespace()
	if c.Peek() == '.' {
		c.Advance()
	}
	return nil
}

// parseValuesClause parses `(?v1 .. ?vk) { (val ..)* }` or the
// single-variable shorthand `?v { val* }`.
func (p *Parser) parseValuesClause() (*ast.ValuesClause, error) {
	c := p.c
	c.SkipWhitespace()
	v := &ast.ValuesClause{}

	if c.Peek() == '(' {
		c.Advance()
		for {
			c.SkipWhitespace()
			if c.Peek() == ')' {
				c.Advance()
				break
			}
			vt, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			if len(v.Vars) >= ast.MaxValuesVars {
				return nil, newErr(CapacityExceeded, c.Pos(), "too many VALUES variables (max %d)", ast.MaxValuesVars)
			}
			v.Vars = append(v.Vars, vt.Name)
		}
	} else {
		vt, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		v.Vars = append(v.Vars, vt.Name)
	}

	c.SkipWhitespace()
	if c.Peek() != '{' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected '{' in VALUES")
	}
	c.Advance()

	singleVar := len(v.Vars) == 1
	for {
		c.SkipWhitespace()
		if c.Peek() == '}' {
			c.Advance()
			break
		}
		var row []ast.Term
		if singleVar && c.Peek() != '(' {
			t, err := p.parseValueOrUndef()
			if err != nil {
				return nil, err
			}
			row = []ast.Term{t}
		} else {
			if c.Peek() != '(' {
				return nil, newErr(UnexpectedChar, c.Pos(), "expected '(' in VALUES row")
			}
			c.Advance()
			for {
				c.SkipWhitespace()
				if c.Peek() == ')' {
					c.Advance()
					break
				}
				t, err := p.parseValueOrUndef()
				if err != nil {
					return nil, err
				}
				row = append(row, t)
			}
		}
		if len(v.Rows) >= ast.MaxValuesRows {
			return nil, newErr(CapacityExceeded, c.Pos(), "too many VALUES rows (max %d)", ast.MaxValuesRows)
		}
		v.Rows = append(v.Rows, row)
	}
	return v, nil
}

func (p *Parser) parseValueOrUndef() (ast.Term, error) {
	c := p.c
	c.SkipWhitespace()
	if c.MatchKeyword("UNDEF") {
		return ast.Term{}, nil
	}
	return p.parseVarOrTerm()
}
