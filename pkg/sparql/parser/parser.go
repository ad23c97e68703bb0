// Package parser implements the SPARQL 1.1 query parser: source cursor,
// term/property-path parser, graph-pattern parser, and query parser,
// producing an *ast.Query.
package parser

import "github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"

// Parser turns SPARQL source text into an *ast.Query. It is a stack value
// with no external state; the resulting AST is immutable and safe to
// share across concurrent readers.
type Parser struct {
	c        *cursor
	prefixes map[string]string
	baseURI  string

	// isPredicatePosition lets the term dispatch table accept the bare
	// `a` keyword only where SPARQL actually allows it.
	isPredicatePosition bool
}

func New(source string) *Parser {
	return &Parser{
		c:        newCursor(source),
		prefixes: make(map[string]string),
	}
}

// ParseQuery parses source as a single SPARQL query.
func ParseQuery(source string) (*ast.Query, error) {
	return New(source).Parse()
}

// Parse runs the parser to completion.
func (p *Parser) Parse() (*ast.Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}
	q := &ast.Query{
		Prologue: ast.Prologue{Base: p.baseURI, Prefixes: copyPrefixes(p.prefixes)},
	}
	c := p.c
	c.SkipWhitespace()
	switch {
	case c.MatchKeyword("SELECT"):
		q.Type = ast.QuerySelect
		sel, err := p.parseSelectBody()
		if err != nil {
			return nil, err
		}
		q.Select = sel
	case c.MatchKeyword("CONSTRUCT"):
		q.Type = ast.QueryConstruct
		con, err := p.parseConstructBody()
		if err != nil {
			return nil, err
		}
		q.Construct = con
	case c.MatchKeyword("ASK"):
		q.Type = ast.QueryAsk
		ask, err := p.parseAskBody()
		if err != nil {
			return nil, err
		}
		q.Ask = ask
	case c.MatchKeyword("DESCRIBE"):
		q.Type = ast.QueryDescribe
		desc, err := p.parseDescribeBody()
		if err != nil {
			return nil, err
		}
		q.Describe = desc
	default:
		return nil, newErr(ExpectedKeyword, c.Pos(), "expected SELECT, CONSTRUCT, ASK, or DESCRIBE")
	}
	return q, nil
}

func copyPrefixes(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// parsePrologue consumes `(BASE <iri> | PREFIX ns: <iri>)*`.
func (p *Parser) parsePrologue() error {
	c := p.c
	for {
		c.SkipWhitespace()
		if c.MatchKeyword("BASE") {
			c.SkipWhitespace()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.baseURI = iri
			continue
		}
		if c.MatchKeyword("PREFIX") {
			c.SkipWhitespace()
			start := c.Pos()
			prefix := c.ReadWhile(func(b byte) bool { return isNameChar(b) })
			if c.Peek() != ':' {
				return newErr(UnexpectedChar, start, "expected ':' in PREFIX")
			}
			c.Advance()
			c.SkipWhitespace()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.prefixes[prefix] = iri
			continue
		}
		break
	}
	return nil
}

func (p *Parser) expectKeyword(kw string) error {
	p.c.SkipWhitespace()
	if !p.c.MatchKeyword(kw) {
		return newErr(ExpectedKeyword, p.c.Pos(), "expected %s", kw)
	}
	return nil
}
