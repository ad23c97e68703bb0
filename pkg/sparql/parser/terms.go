package parser

import (
	"strconv"
	"strings"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// parseVarOrTerm parses a term in subject/object position: variable, IRI,
// literal, blank node, numeric literal, or prefixed name. The `a`
// shorthand for rdf:type is accepted only while isPredicatePosition is
// set.
func (p *Parser) parseVarOrTerm() (ast.Term, error) {
	c := p.c
	c.SkipWhitespace()
	offset := c.Pos()
	ch := c.Peek()

	switch {
	case ch == '?' || ch == '$':
		return p.parseVariable()
	case ch == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return ast.Term{}, err
		}
		return ast.NewRDFTerm(rdf.NewNamedNode(iri), offset), nil
	case ch == '"' || ch == '\'':
		lit, err := p.parseStringLiteral()
		if err != nil {
			return ast.Term{}, err
		}
		return ast.NewRDFTerm(lit, offset), nil
	case ch == '_':
		bn, err := p.parseBlankNode()
		if err != nil {
			return ast.Term{}, err
		}
		return ast.NewRDFTerm(bn, offset), nil
	case ch == '+' || ch == '-' || isDigit(ch):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return ast.Term{}, err
		}
		return ast.NewRDFTerm(lit, offset), nil
	case p.isPredicatePosition && c.MatchKeyword("a"):
		return ast.NewRDFTerm(rdf.NewNamedNode(rdfType), offset), nil
	case isAlpha(ch) || ch == ':':
		name, err := p.parsePrefixedName()
		if err != nil {
			return ast.Term{}, err
		}
		return ast.NewRDFTerm(rdf.NewNamedNode(name), offset), nil
	default:
		return ast.Term{}, newErr(UnexpectedChar, offset, "unexpected character %q", ch)
	}
}

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

func (p *Parser) parseVariable() (ast.Term, error) {
	c := p.c
	offset := c.Pos()
	c.Advance() // '?' or '$'
	name := c.ReadWhile(isNameChar)
	if name == "" {
		return ast.Term{}, newErr(UnexpectedChar, c.Pos(), "expected variable name")
	}
	return ast.NewVariable(name, offset), nil
}

// parseIRIRef parses `<...>` and resolves it against BASE.
func (p *Parser) parseIRIRef() (string, error) {
	c := p.c
	start := c.Pos()
	if c.Peek() != '<' {
		return "", newErr(UnexpectedChar, start, "expected '<'")
	}
	c.Advance()
	var b strings.Builder
	for {
		if c.AtEnd() {
			return "", newErr(UnterminatedIRI, start, "unterminated IRI")
		}
		ch := c.Advance()
		if ch == '>' {
			break
		}
		if ch == '\\' {
			esc, err := p.readEscape()
			if err != nil {
				return "", err
			}
			b.WriteString(esc)
			continue
		}
		b.WriteByte(ch)
	}
	return p.resolveIRI(b.String()), nil
}

func (p *Parser) resolveIRI(iri string) string {
	if iri == "" {
		return p.baseURI
	}
	if strings.Contains(iri, ":") || p.baseURI == "" {
		return iri
	}
	if strings.HasPrefix(iri, "#") {
		if i := strings.IndexByte(p.baseURI, '#'); i >= 0 {
			return p.baseURI[:i] + iri
		}
		return p.baseURI + iri
	}
	if strings.HasPrefix(iri, "/") {
		if i := strings.Index(p.baseURI, "://"); i >= 0 {
			if j := strings.IndexByte(p.baseURI[i+3:], '/'); j >= 0 {
				return p.baseURI[:i+3+j] + iri
			}
		}
		return p.baseURI + iri
	}
	if idx := strings.LastIndexByte(p.baseURI, '/'); idx >= 0 {
		return p.baseURI[:idx+1] + iri
	}
	return p.baseURI + iri
}

// parsePrefixedName parses `prefix:local` or `:local`.
func (p *Parser) parsePrefixedName() (string, error) {
	c := p.c
	start := c.Pos()
	prefix := c.ReadWhile(func(b byte) bool { return isNameChar(b) })
	if c.Peek() != ':' {
		return "", newErr(UnexpectedChar, start, "expected prefixed name")
	}
	c.Advance()
	local := c.ReadWhile(func(b byte) bool { return isNameChar(b) || b == '.' || b == '-' })
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", newErr(UnexpectedChar, start, "undefined prefix %q", prefix)
	}
	return ns + local, nil
}

func (p *Parser) parseBlankNode() (rdf.Term, error) {
	c := p.c
	start := c.Pos()
	if c.Peek() != '_' {
		return nil, newErr(UnexpectedChar, start, "expected blank node")
	}
	c.Advance()
	if c.Peek() != ':' {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected ':' in blank node")
	}
	c.Advance()
	label := c.ReadWhile(isNameChar)
	if label == "" {
		return nil, newErr(UnexpectedChar, c.Pos(), "expected blank node label")
	}
	return rdf.NewBlankNode(label), nil
}

// parseStringLiteral parses a short ('...'/"...") or long
// ('''...'''/"""...""") string, with an optional @lang or ^^datatype suffix.
func (p *Parser) parseStringLiteral() (rdf.Term, error) {
	c := p.c
	start := c.Pos()
	quote := c.Peek()
	long := c.PeekN(3) == strings.Repeat(string(quote), 3)

	var value string
	if long {
		c.pos += 3
		var b strings.Builder
		for {
			if c.AtEnd() {
				return nil, newErr(UnterminatedLiteral, start, "unterminated long string")
			}
			if c.PeekN(3) == strings.Repeat(string(quote), 3) {
				c.pos += 3
				break
			}
			ch := c.Advance()
			if ch == '\\' {
				esc, err := p.readEscape()
				if err != nil {
					return nil, err
				}
				b.WriteString(esc)
				continue
			}
			b.WriteByte(ch)
		}
		value = b.String()
	} else {
		c.Advance()
		var b strings.Builder
		for {
			if c.AtEnd() {
				return nil, newErr(UnterminatedLiteral, start, "unterminated string")
			}
			ch := c.Advance()
			if ch == quote {
				break
			}
			if ch == '\n' {
				return nil, newErr(UnterminatedLiteral, start, "newline in short string")
			}
			if ch == '\\' {
				esc, err := p.readEscape()
				if err != nil {
					return nil, err
				}
				b.WriteString(esc)
				continue
			}
			b.WriteByte(ch)
		}
		value = b.String()
	}

	if c.Peek() == '@' {
		c.Advance()
		lang := c.ReadWhile(func(b byte) bool { return isAlpha(b) || isDigit(b) || b == '-' })
		if lang == "" {
			return nil, newErr(UnexpectedChar, c.Pos(), "expected language tag")
		}
		return rdf.NewLiteralWithLanguage(value, lang), nil
	}
	if c.Peek() == '^' && c.PeekAt(1) == '^' {
		c.pos += 2
		dtOffset := c.Pos()
		var dtIRI string
		var err error
		if c.Peek() == '<' {
			dtIRI, err = p.parseIRIRef()
		} else {
			dtIRI, err = p.parsePrefixedName()
		}
		if err != nil {
			return nil, err
		}
		_ = dtOffset
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dtIRI)), nil
	}
	return rdf.NewLiteral(value), nil
}

func (p *Parser) readEscape() (string, error) {
	c := p.c
	if c.AtEnd() {
		return "", newErr(UnterminatedLiteral, c.Pos(), "unterminated escape")
	}
	ch := c.Advance()
	switch ch {
	case 't':
		return "\t", nil
	case 'n':
		return "\n", nil
	case 'r':
		return "\r", nil
	case 'b':
		return "\b", nil
	case 'f':
		return "\f", nil
	case '"', '\'', '\\':
		return string(ch), nil
	case 'u', 'U':
		n := 4
		if ch == 'U' {
			n = 8
		}
		hex := c.PeekN(n)
		if len(hex) < n {
			return "", newErr(UnterminatedLiteral, c.Pos(), "truncated unicode escape")
		}
		c.pos += n
		v, err := strconv.ParseInt(hex, 16, 32)
		if err != nil {
			return "", newErr(UnexpectedChar, c.Pos(), "invalid unicode escape")
		}
		return string(rune(v)), nil
	default:
		return string(ch), nil
	}
}

func (p *Parser) parseNumericLiteral() (rdf.Term, error) {
	c := p.c
	start := c.Pos()
	if c.Peek() == '+' || c.Peek() == '-' {
		c.Advance()
	}
	intPart := c.ReadWhile(isDigit)
	isDouble := false
	isDecimal := false
	if c.Peek() == '.' && isDigit(c.PeekAt(1)) {
		isDecimal = true
		c.Advance()
		c.ReadWhile(isDigit)
	}
	if c.Peek() == 'e' || c.Peek() == 'E' {
		isDouble = true
		c.Advance()
		if c.Peek() == '+' || c.Peek() == '-' {
			c.Advance()
		}
		exp := c.ReadWhile(isDigit)
		if exp == "" {
			return nil, newErr(InvalidNumber, start, "malformed exponent")
		}
	}
	lexeme := c.input[start:c.pos]
	if intPart == "" && !isDecimal {
		return nil, newErr(InvalidNumber, start, "expected digits")
	}
	switch {
	case isDouble:
		v, err := strconv.ParseFloat(lexeme, 64)
		if err != nil {
			return nil, newErr(InvalidNumber, start, "%v", err)
		}
		return rdf.NewDoubleLiteral(v), nil
	case isDecimal:
		v, err := strconv.ParseFloat(lexeme, 64)
		if err != nil {
			return nil, newErr(InvalidNumber, start, "%v", err)
		}
		return rdf.NewDecimalLiteral(v), nil
	default:
		v, err := strconv.ParseInt(lexeme, 10, 64)
		if err != nil {
			return nil, newErr(InvalidNumber, start, "%v", err)
		}
		return rdf.NewIntegerLiteral(v), nil
	}
}
