package parser

import (
	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// parsePredicate parses a predicate-position term, which may be either a
// plain IRI/variable or a full property path expression:
//
//	path      := pathAlt
//	pathAlt   := pathSeq ('|' pathSeq)*
//	pathSeq   := pathElt ('/' pathElt)*
//	pathElt   := '^'? pathPrimary pathMod?
//	pathMod   := '*' | '+' | '?'
//	pathPrimary := iri | '(' path ')' | '!' (iri | '(' altList ')')
//
// When the result is a plain variable or single IRI with no modifiers,
// Path.Kind is PathNone and Term carries the predicate directly so the
// executor can take the ordinary (non-path) scan fast path.
func (p *Parser) parsePredicate() (ast.Term, ast.PropertyPath, error) {
	c := p.c
	c.SkipWhitespace()
	if c.Peek() == '?' || c.Peek() == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return ast.Term{}, ast.PropertyPath{}, err
		}
		return v, ast.PropertyPath{}, nil
	}

	p.isPredicatePosition = true
	path, err := p.parsePathAlternative()
	p.isPredicatePosition = false
	if err != nil {
		return ast.Term{}, ast.PropertyPath{}, err
	}
	if path.Kind == ast.PathIRI {
		return ast.NewRDFTerm(path.IRI, c.Pos()), ast.PropertyPath{}, nil
	}
	return ast.Term{}, path, nil
}

func (p *Parser) parsePathAlternative() (ast.PropertyPath, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return ast.PropertyPath{}, err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		if c.Peek() != '|' || c.PeekAt(1) == '|' {
			break
		}
		c.Advance()
		right, err := p.parsePathSequence()
		if err != nil {
			return ast.PropertyPath{}, err
		}
		l, r := left, right
		left = ast.PropertyPath{Kind: ast.PathAlternative, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *Parser) parsePathSequence() (ast.PropertyPath, error) {
	left, err := p.parsePathElement()
	if err != nil {
		return ast.PropertyPath{}, err
	}
	c := p.c
	for {
		c.SkipWhitespace()
		if c.Peek() != '/' {
			break
		}
		c.Advance()
		right, err := p.parsePathElement()
		if err != nil {
			return ast.PropertyPath{}, err
		}
		l, r := left, right
		left = ast.PropertyPath{Kind: ast.PathSequence, Left: &l, Right: &r}
	}
	return left, nil
}

func (p *Parser) parsePathElement() (ast.PropertyPath, error) {
	c := p.c
	c.SkipWhitespace()
	inverse := false
	if c.Peek() == '^' {
		c.Advance()
		inverse = true
	}
	primary, err := p.parsePathPrimary()
	if err != nil {
		return ast.PropertyPath{}, err
	}
	c.SkipWhitespace()
	switch c.Peek() {
	case '*':
		c.Advance()
		primary = ast.PropertyPath{Kind: ast.PathZeroOrMore, Sub: box(primary)}
	case '+':
		c.Advance()
		primary = ast.PropertyPath{Kind: ast.PathOneOrMore, Sub: box(primary)}
	case '?':
		if !isNameChar(c.PeekAt(1)) { // avoid eating a variable-start '?' that isn't ours to take
			c.Advance()
			primary = ast.PropertyPath{Kind: ast.PathZeroOrOne, Sub: box(primary)}
		}
	}
	if inverse {
		primary = ast.PropertyPath{Kind: ast.PathInverse, Sub: box(primary)}
	}
	return primary, nil
}

func box(p ast.PropertyPath) *ast.PropertyPath { return &p }

func (p *Parser) parsePathPrimary() (ast.PropertyPath, error) {
	c := p.c
	c.SkipWhitespace()
	switch {
	case c.Peek() == '(':
		c.Advance()
		inner, err := p.parsePathAlternative()
		if err != nil {
			return ast.PropertyPath{}, err
		}
		c.SkipWhitespace()
		if c.Peek() != ')' {
			return ast.PropertyPath{}, newErr(UnexpectedChar, c.Pos(), "expected ')'")
		}
		c.Advance()
		return ast.PropertyPath{Kind: ast.PathGrouped, Sub: box(inner)}, nil
	case c.Peek() == '!':
		c.Advance()
		return p.parseNegatedPropertySet()
	case c.Peek() == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return ast.PropertyPath{}, err
		}
		return ast.SimplePath(rdf.NewNamedNode(iri)), nil
	case c.MatchKeyword("a"):
		return ast.SimplePath(rdf.NewNamedNode(rdfType)), nil
	case isAlpha(c.Peek()) || c.Peek() == ':':
		iri, err := p.parsePrefixedName()
		if err != nil {
			return ast.PropertyPath{}, err
		}
		return ast.SimplePath(rdf.NewNamedNode(iri)), nil
	default:
		return ast.PropertyPath{}, newErr(UnexpectedChar, c.Pos(), "expected property path primary")
	}
}

func (p *Parser) parseNegatedPropertySet() (ast.PropertyPath, error) {
	c := p.c
	c.SkipWhitespace()
	var members []*rdf.NamedNode
	var inverted []bool
	readOne := func() error {
		inv := false
		if c.Peek() == '^' {
			c.Advance()
			inv = true
		}
		var iri string
		var err error
		if c.Peek() == '<' {
			iri, err = p.parseIRIRef()
		} else {
			iri, err = p.parsePrefixedName()
		}
		if err != nil {
			return err
		}
		members = append(members, rdf.NewNamedNode(iri))
		inverted = append(inverted, inv)
		return nil
	}
	if c.Peek() == '(' {
		c.Advance()
		c.SkipWhitespace()
		if c.Peek() != ')' {
			if err := readOne(); err != nil {
				return ast.PropertyPath{}, err
			}
			for {
				c.SkipWhitespace()
				if c.Peek() != '|' {
					break
				}
				c.Advance()
				if err := readOne(); err != nil {
					return ast.PropertyPath{}, err
				}
			}
		}
		c.SkipWhitespace()
		if c.Peek() != ')' {
			return ast.PropertyPath{}, newErr(UnexpectedChar, c.Pos(), "expected ')'")
		}
		c.Advance()
	} else {
		if err := readOne(); err != nil {
			return ast.PropertyPath{}, err
		}
	}
	return ast.PropertyPath{Kind: ast.PathNegatedSet, Members: members, NegatedInverse: inverted}, nil
}
