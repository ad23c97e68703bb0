package eval

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
	"github.com/aleksaelezovic/trigosparql/pkg/sparql/ast"
)

// xxh3Key hashes a compiled-regex cache key from its flags and pattern.
func xxh3Key(flags, pattern string) uint64 {
	return xxh3.HashString(flags + "\x00" + pattern)
}

func (e *Evaluator) evalFuncCall(ex *ast.FuncCallExpr, frame Frame) ast.Term {
	name := strings.ToUpper(ex.Name)

	// BOUND inspects the argument expression itself rather than its value.
	if name == "BOUND" {
		if len(ex.Args) != 1 {
			return ast.Unbound
		}
		v, ok := ex.Args[0].(*ast.VariableExpr)
		if !ok {
			return ast.Unbound
		}
		return boolTerm(frame.Bound(v.Name))
	}

	args := make([]ast.Term, len(ex.Args))
	for i, a := range ex.Args {
		args[i] = e.Evaluate(a, frame)
	}

	switch name {
	case "ISIRI", "ISURI":
		return arity1(args, func(t ast.Term) ast.Term { return boolTerm(t.Kind == ast.KindIRI) })
	case "ISBLANK":
		return arity1(args, func(t ast.Term) ast.Term { return boolTerm(t.Kind == ast.KindBlankNode) })
	case "ISLITERAL":
		return arity1(args, func(t ast.Term) ast.Term { return boolTerm(t.Kind == ast.KindLiteral) })
	case "ISNUMERIC":
		return arity1(args, func(t ast.Term) ast.Term {
			_, ok := extractNumeric(t)
			return boolTerm(ok)
		})

	case "STR":
		return arity1(args, func(t ast.Term) ast.Term {
			s, ok := termLexical(t)
			if !ok {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewLiteral(s))
		})

	case "LANG":
		return arity1(args, func(t ast.Term) ast.Term {
			lit, ok := t.RDF.(*rdf.Literal)
			if !ok {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewLiteral(lit.Language))
		})

	case "DATATYPE":
		return arity1(args, func(t ast.Term) ast.Term {
			lit, ok := t.RDF.(*rdf.Literal)
			if !ok {
				return ast.Unbound
			}
			if lit.Language != "" {
				if lit.Direction == "" {
					return rdfTerm(rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"))
				}
				return rdfTerm(rdf.RDFDirLangString)
			}
			if lit.Datatype != nil {
				return rdfTerm(lit.Datatype)
			}
			return rdfTerm(rdf.XSDString)
		})

	case "IRI", "URI":
		return arity1(args, func(t ast.Term) ast.Term {
			s, ok := extractString(t)
			if !ok {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewNamedNode(s))
		})

	case "BNODE":
		if len(args) == 0 {
			return rdfTerm(rdf.NewBlankNode(newUUIDv7()))
		}
		return arity1(args, func(t ast.Term) ast.Term {
			s, ok := extractString(t)
			if !ok {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewBlankNode(s))
		})

	case "STRLEN":
		return arity1(args, func(t ast.Term) ast.Term {
			s, ok := extractString(t)
			if !ok {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewIntegerLiteral(int64(len([]rune(s)))))
		})

	case "SUBSTR":
		return evalSubstr(args)

	case "UCASE":
		return arity1(args, func(t ast.Term) ast.Term { return stringLike(t, strings.ToUpper) })
	case "LCASE":
		return arity1(args, func(t ast.Term) ast.Term { return stringLike(t, strings.ToLower) })

	case "CONCAT":
		var b strings.Builder
		for _, a := range args {
			s, ok := extractString(a)
			if !ok {
				return ast.Unbound
			}
			b.WriteString(s)
		}
		return rdfTerm(rdf.NewLiteral(b.String()))

	case "CONTAINS":
		return evalStringPredicate(args, strings.Contains)
	case "STRSTARTS":
		return evalStringPredicate(args, strings.HasPrefix)
	case "STRENDS":
		return evalStringPredicate(args, strings.HasSuffix)

	case "STRBEFORE":
		return evalStringSplit(args, func(s, sep string) string {
			i := strings.Index(s, sep)
			if i < 0 {
				return ""
			}
			return s[:i]
		})
	case "STRAFTER":
		return evalStringSplit(args, func(s, sep string) string {
			i := strings.Index(s, sep)
			if i < 0 {
				return ""
			}
			return s[i+len(sep):]
		})

	case "ENCODE_FOR_URI":
		return arity1(args, func(t ast.Term) ast.Term {
			s, ok := extractString(t)
			if !ok {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewLiteral(strings.ReplaceAll(url.QueryEscape(s), "+", "%20")))
		})

	case "REGEX":
		return e.evalRegex(args)
	case "REPLACE":
		return e.evalReplace(args)

	case "LANGMATCHES":
		if len(args) != 2 {
			return ast.Unbound
		}
		lang, ok1 := extractString(args[0])
		pattern, ok2 := extractString(args[1])
		if !ok1 || !ok2 {
			return ast.Unbound
		}
		return boolTerm(langMatches(lang, pattern))

	case "SAMETERM":
		if len(args) != 2 {
			return ast.Unbound
		}
		if args[0].IsUnbound() || args[1].IsUnbound() {
			return ast.Unbound
		}
		return boolTerm(args[0].RDF.Equals(args[1].RDF))

	case "ABS":
		return numeric1(args, func(v float64) float64 {
			if v < 0 {
				return -v
			}
			return v
		})
	case "CEIL":
		return numeric1(args, ceil)
	case "FLOOR":
		return numeric1(args, floor)
	case "ROUND":
		return numeric1(args, round)

	case "STRDT":
		if len(args) != 2 {
			return ast.Unbound
		}
		s, ok1 := extractString(args[0])
		iri, ok2 := args[1].RDF.(*rdf.NamedNode)
		if !ok1 || !ok2 {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewLiteralWithDatatype(s, iri))

	case "STRLANG":
		if len(args) != 2 {
			return ast.Unbound
		}
		s, ok1 := extractString(args[0])
		lang, ok2 := extractString(args[1])
		if !ok1 || !ok2 {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewLiteralWithLanguage(s, lang))

	case "HASLANG":
		return arity1(args, func(t ast.Term) ast.Term {
			lit, ok := t.RDF.(*rdf.Literal)
			if !ok {
				return boolTerm(false)
			}
			return boolTerm(lit.Language != "")
		})

	case "HASLANGDIR":
		return arity1(args, func(t ast.Term) ast.Term {
			lit, ok := t.RDF.(*rdf.Literal)
			if !ok {
				return boolTerm(false)
			}
			return boolTerm(lit.Direction != "")
		})

	case "YEAR", "MONTH", "DAY", "HOURS", "MINUTES", "SECONDS", "TIMEZONE", "TZ":
		return evalDateTimePart(args, name)

	case "NOW":
		return rdfTerm(rdf.NewLiteralWithDatatype(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), rdf.XSDDateTime))

	case "UUID":
		return rdfTerm(rdf.NewNamedNode("urn:uuid:" + newUUIDv7()))
	case "STRUUID":
		return rdfTerm(rdf.NewLiteral(newUUIDv7()))

	case "MD5":
		return hashHex(args, md5.New)
	case "SHA1":
		return hashHex(args, sha1.New)
	case "SHA256":
		return hashHex(args, sha256.New)
	case "SHA384":
		return hashHex(args, sha512.New384)
	case "SHA512":
		return hashHex(args, sha512.New)

	case "COALESCE":
		for _, a := range args {
			if !a.IsUnbound() {
				return a
			}
		}
		return ast.Unbound

	case "IF":
		if len(args) != 3 {
			return ast.Unbound
		}
		v, ok := ebv(args[0])
		if !ok {
			return ast.Unbound
		}
		if v {
			return args[1]
		}
		return args[2]

	case "RAND":
		e.regexMu.Lock()
		r := e.rand.Float64()
		e.regexMu.Unlock()
		return rdfTerm(rdf.NewDoubleLiteral(r))

	default:
		return evalCast(ex.Name, args)
	}
}

// evalCast implements the xsd:TYPE(arg) constructor functions, e.g.
// xsd:integer("5"), dispatched by their full datatype IRI since the parser
// leaves any function name it doesn't recognize as a builtin uninterpreted.
func evalCast(name string, args []ast.Term) ast.Term {
	const xsd = "http://www.w3.org/2001/xmlschema#"
	lower := strings.ToLower(name)
	if !strings.HasPrefix(lower, xsd) || len(args) != 1 {
		return ast.Unbound
	}
	arg := args[0]
	switch strings.TrimPrefix(lower, xsd) {
	case "integer", "int", "long":
		s, ok := extractString(arg)
		if !ok {
			return ast.Unbound
		}
		v, ok := extractNumeric(arg)
		if !ok {
			iv, err := parseIntLexical(s)
			if err != nil {
				return ast.Unbound
			}
			return rdfTerm(rdf.NewIntegerLiteral(iv))
		}
		return rdfTerm(rdf.NewIntegerLiteral(int64(v)))
	case "decimal":
		v, ok := extractNumeric(arg)
		if !ok {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewDecimalLiteral(v))
	case "double", "float":
		v, ok := extractNumeric(arg)
		if !ok {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewDoubleLiteral(v))
	case "boolean":
		s, ok := extractString(arg)
		if !ok {
			return ast.Unbound
		}
		b, err := parseXSDBoolean(s)
		if err != nil {
			return ast.Unbound
		}
		return boolTerm(b)
	case "string":
		s, ok := extractString(arg)
		if !ok {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewLiteral(s))
	case "datetime":
		s, ok := extractString(arg)
		if !ok {
			return ast.Unbound
		}
		t, err := parseDateTime(s)
		if err != nil {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewDateTimeLiteral(t))
	}
	return ast.Unbound
}

func parseIntLexical(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

func parseXSDBoolean(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid xsd:boolean lexical form %q", s)
}

func arity1(args []ast.Term, f func(ast.Term) ast.Term) ast.Term {
	if len(args) != 1 || args[0].IsUnbound() {
		return ast.Unbound
	}
	return f(args[0])
}

func numeric1(args []ast.Term, f func(float64) float64) ast.Term {
	if len(args) != 1 {
		return ast.Unbound
	}
	v, ok := extractNumeric(args[0])
	if !ok {
		return ast.Unbound
	}
	return numericTerm(f(v), args[0])
}

func stringLike(t ast.Term, f func(string) string) ast.Term {
	s, ok := extractString(t)
	if !ok {
		return ast.Unbound
	}
	if lit, ok := t.RDF.(*rdf.Literal); ok && lit.Language != "" {
		return rdfTerm(rdf.NewLiteralWithLanguage(f(s), lit.Language))
	}
	return rdfTerm(rdf.NewLiteral(f(s)))
}

func evalSubstr(args []ast.Term) ast.Term {
	if len(args) != 2 && len(args) != 3 {
		return ast.Unbound
	}
	s, ok := extractString(args[0])
	if !ok {
		return ast.Unbound
	}
	start, ok := extractNumeric(args[1])
	if !ok {
		return ast.Unbound
	}
	runes := []rune(s)
	// SPARQL indices are 1-based; clamp into range rather than erroring.
	from := int(start) - 1
	length := len(runes) - from
	if len(args) == 3 {
		l, ok := extractNumeric(args[2])
		if !ok {
			return ast.Unbound
		}
		length = int(l)
	}
	if from < 0 {
		length += from
		from = 0
	}
	if from > len(runes) {
		from = len(runes)
	}
	if length < 0 {
		length = 0
	}
	if from+length > len(runes) {
		length = len(runes) - from
	}
	return rdfTerm(rdf.NewLiteral(string(runes[from : from+length])))
}

func evalStringPredicate(args []ast.Term, f func(s, sub string) bool) ast.Term {
	if len(args) != 2 {
		return ast.Unbound
	}
	a, ok1 := extractString(args[0])
	b, ok2 := extractString(args[1])
	if !ok1 || !ok2 {
		return ast.Unbound
	}
	return boolTerm(f(a, b))
}

func evalStringSplit(args []ast.Term, f func(s, sep string) string) ast.Term {
	if len(args) != 2 {
		return ast.Unbound
	}
	a, ok1 := extractString(args[0])
	b, ok2 := extractString(args[1])
	if !ok1 || !ok2 {
		return ast.Unbound
	}
	return rdfTerm(rdf.NewLiteral(f(a, b)))
}

func (e *Evaluator) compileRegex(pattern, flags string) (*regexp.Regexp, bool) {
	key := xxh3Key(flags, pattern)

	e.regexMu.Lock()
	if re, ok := e.regexCache[key]; ok {
		e.regexMu.Unlock()
		return re, true
	}
	e.regexMu.Unlock()

	goPattern := pattern
	var prefix string
	for _, f := range flags {
		switch f {
		case 'i':
			prefix += "i"
		case 'm':
			prefix += "m"
		case 's':
			prefix += "s"
		case 'x':
			prefix += "x"
		case 'q':
			goPattern = regexp.QuoteMeta(pattern)
		default:
			return nil, false
		}
	}
	if prefix != "" {
		goPattern = "(?" + prefix + ")" + goPattern
	}
	type compiled struct {
		re  *regexp.Regexp
		err error
	}
	done := make(chan compiled, 1)
	go func() {
		re, err := regexp.Compile(goPattern)
		done <- compiled{re, err}
	}()
	var re *regexp.Regexp
	select {
	case c := <-done:
		if c.err != nil {
			return nil, false
		}
		re = c.re
	case <-time.After(e.regexTimeout):
		return nil, false
	}

	e.regexMu.Lock()
	e.regexCache[key] = re
	e.regexMu.Unlock()
	return re, true
}

func (e *Evaluator) evalRegex(args []ast.Term) ast.Term {
	if len(args) != 2 && len(args) != 3 {
		return ast.Unbound
	}
	s, ok := extractString(args[0])
	if !ok {
		return ast.Unbound
	}
	pattern, ok := extractString(args[1])
	if !ok {
		return ast.Unbound
	}
	flags := ""
	if len(args) == 3 {
		flags, ok = extractString(args[2])
		if !ok {
			return ast.Unbound
		}
	}
	re, ok := e.compileRegex(pattern, flags)
	if !ok {
		return boolTerm(false)
	}
	return boolTerm(re.MatchString(s))
}

func (e *Evaluator) evalReplace(args []ast.Term) ast.Term {
	if len(args) != 3 && len(args) != 4 {
		return ast.Unbound
	}
	s, ok := extractString(args[0])
	if !ok {
		return ast.Unbound
	}
	pattern, ok := extractString(args[1])
	if !ok {
		return ast.Unbound
	}
	replacement, ok := extractString(args[2])
	if !ok {
		return ast.Unbound
	}
	flags := ""
	if len(args) == 4 {
		flags, ok = extractString(args[3])
		if !ok {
			return ast.Unbound
		}
	}
	re, ok := e.compileRegex(pattern, flags)
	if !ok {
		return ast.Unbound
	}
	goReplacement := translateReplacement(replacement)
	return rdfTerm(rdf.NewLiteral(re.ReplaceAllString(s, goReplacement)))
}

// translateReplacement rewrites SPARQL/XPath-style $1 backreferences into
// Go regexp's ${1} form, since a bare "$1" followed by a digit is ambiguous
// in Go's replacement syntax.
func translateReplacement(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '$' && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '9' {
			j := i + 1
			for j < len(s) && s[j] >= '0' && s[j] <= '9' {
				j++
			}
			b.WriteString("${" + s[i+1:j] + "}")
			i = j - 1
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func langMatches(lang, pattern string) bool {
	if pattern == "*" {
		return lang != ""
	}
	lang = strings.ToLower(lang)
	pattern = strings.ToLower(pattern)
	if lang == pattern {
		return true
	}
	return strings.HasPrefix(lang, pattern+"-")
}

func ceil(v float64) float64 {
	i := float64(int64(v))
	if v > i {
		return i + 1
	}
	return i
}

func floor(v float64) float64 {
	i := float64(int64(v))
	if v < i {
		return i - 1
	}
	return i
}

func round(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return -float64(int64(-v + 0.5))
}

func evalDateTimePart(args []ast.Term, name string) ast.Term {
	if len(args) != 1 {
		return ast.Unbound
	}
	s, ok := extractString(args[0])
	if !ok {
		return ast.Unbound
	}
	t, err := parseDateTime(s)
	if err != nil {
		return ast.Unbound
	}
	switch name {
	case "YEAR":
		return rdfTerm(rdf.NewIntegerLiteral(int64(t.Year())))
	case "MONTH":
		return rdfTerm(rdf.NewIntegerLiteral(int64(t.Month())))
	case "DAY":
		return rdfTerm(rdf.NewIntegerLiteral(int64(t.Day())))
	case "HOURS":
		return rdfTerm(rdf.NewIntegerLiteral(int64(t.Hour())))
	case "MINUTES":
		return rdfTerm(rdf.NewIntegerLiteral(int64(t.Minute())))
	case "SECONDS":
		return rdfTerm(rdf.NewDecimalLiteral(float64(t.Second())))
	case "TIMEZONE":
		_, offset := t.Zone()
		if offset == 0 && !strings.Contains(s, "+") && !strings.HasSuffix(strings.TrimSpace(s), "Z") {
			return ast.Unbound
		}
		return rdfTerm(rdf.NewLiteralWithDatatype(formatTZOffset(offset), rdf.XSDDuration))
	case "TZ":
		zoneName, offset := t.Zone()
		if offset == 0 && zoneName == "UTC" {
			return rdfTerm(rdf.NewLiteral("Z"))
		}
		return rdfTerm(rdf.NewLiteral(formatTZOffsetColon(offset)))
	}
	return ast.Unbound
}

func formatTZOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if m == 0 {
		return fmt.Sprintf("%sPT%dH", sign, h)
	}
	return fmt.Sprintf("%sPT%dH%dM", sign, h, m)
}

func formatTZOffsetColon(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	return fmt.Sprintf("%s%02d:%02d", sign, h, m)
}

func parseDateTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized dateTime lexical form %q", s)
}

// newUUIDv7 generates an RFC-4122 version 7 (time-ordered) UUID, falling
// back to a random v4 only if the entropy source itself fails.
func newUUIDv7() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func hashHex(args []ast.Term, newHash func() hash.Hash) ast.Term {
	if len(args) != 1 {
		return ast.Unbound
	}
	s, ok := extractString(args[0])
	if !ok {
		return ast.Unbound
	}
	h := newHash()
	h.Write([]byte(s))
	return rdfTerm(rdf.NewLiteral(hex.EncodeToString(h.Sum(nil))))
}

// termLexical returns a term's lexical form per STR(): a literal's Value or
// an IRI's string, with no quoting. Blank nodes have no lexical form.
func termLexical(t ast.Term) (string, bool) {
	switch v := t.RDF.(type) {
	case *rdf.Literal:
		return v.Value, true
	case *rdf.NamedNode:
		return v.IRI, true
	default:
		return "", false
	}
}
