// Package ast defines the parsed representation of a SPARQL 1.1 query:
// terms, property paths, graph patterns, and the query forms (SELECT,
// CONSTRUCT, ASK, DESCRIBE) built from them.
package ast

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trigosparql/pkg/rdf"
)

// TermKind tags the variant carried by a Term.
type TermKind byte

const (
	KindVariable TermKind = iota + 1
	KindIRI
	KindLiteral
	KindBlankNode
	KindQuotedTriple
)

// Term is a SPARQL term: a variable, or an RDF term (IRI, literal, blank
// node, quoted triple). Non-variable terms wrap the corresponding rdf.Term
// so the evaluator and pattern scanner can reuse rdf.Term.Equals/String.
type Term struct {
	Kind     TermKind
	Name     string   // KindVariable: variable name, without leading '?'/'$'
	RDF      rdf.Term // KindIRI/KindLiteral/KindBlankNode/KindQuotedTriple
	Offset   int      // byte offset in source, for error reporting
}

func NewVariable(name string, offset int) Term {
	return Term{Kind: KindVariable, Name: name, Offset: offset}
}

func NewRDFTerm(t rdf.Term, offset int) Term {
	kind := KindIRI
	switch t.(type) {
	case *rdf.NamedNode:
		kind = KindIRI
	case *rdf.Literal:
		kind = KindLiteral
	case *rdf.BlankNode:
		kind = KindBlankNode
	case *rdf.QuotedTriple:
		kind = KindQuotedTriple
	}
	return Term{Kind: kind, RDF: t, Offset: offset}
}

func (t Term) IsVariable() bool { return t.Kind == KindVariable }
func (t Term) IsBound() bool    { return t.Kind != KindVariable && t.Kind != 0 }

// IsUnbound reports whether t is the zero Term, the evaluator's sentinel
// for "no value" (an unbound variable, a type error, division by zero,
// and similar never-throws outcomes all collapse to this).
func (t Term) IsUnbound() bool { return t.Kind == 0 }

// Unbound is the zero Term, returned by the expression evaluator in
// place of raising an error.
var Unbound = Term{}

func (t Term) String() string {
	if t.IsVariable() {
		return "?" + t.Name
	}
	if t.RDF == nil {
		return "?"
	}
	return t.RDF.String()
}

// Equals compares two terms by value: two variables are equal iff they
// share a name, two bound terms are equal iff their rdf.Term values are.
func (t Term) Equals(o Term) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.IsVariable() {
		return t.Name == o.Name
	}
	if t.RDF == nil || o.RDF == nil {
		return t.RDF == o.RDF
	}
	return t.RDF.Equals(o.RDF)
}

// PathKind tags the variant carried by a PropertyPath.
type PathKind byte

const (
	PathNone PathKind = iota // plain IRI predicate, not a path
	PathIRI
	PathInverse
	PathZeroOrMore
	PathOneOrMore
	PathZeroOrOne
	PathSequence
	PathAlternative
	PathNegatedSet
	PathGrouped
)

// PropertyPath is the parsed predicate-position path expression. The
// recursive variants (Inverse/ZeroOrMore/OneOrMore/ZeroOrOne/Grouped) wrap
// a single Sub path; Sequence/Alternative wrap Left and Right; NegatedSet
// carries the IRIs excluded from a wildcard step.
type PropertyPath struct {
	Kind    PathKind
	IRI     *rdf.NamedNode // PathIRI
	Sub     *PropertyPath  // PathInverse/ZeroOrMore/OneOrMore/ZeroOrOne/Grouped
	Left    *PropertyPath  // PathSequence/PathAlternative
	Right   *PropertyPath  // PathSequence/PathAlternative
	Members []*rdf.NamedNode // PathNegatedSet, each may be inverted via NegatedInverse
	NegatedInverse []bool   // parallel to Members
}

func SimplePath(iri *rdf.NamedNode) PropertyPath {
	return PropertyPath{Kind: PathIRI, IRI: iri}
}

// TriplePattern is a single subject/predicate/object pattern. If Path.Kind
// != PathNone, Predicate is unused and the path is evaluated instead.
type TriplePattern struct {
	Subject   Term
	Predicate Term
	Object    Term
	Path      PropertyPath
}

func (tp TriplePattern) HasPath() bool { return tp.Path.Kind != PathNone }

// AggregateFunc tags a (possibly trivial) aggregate applied to a
// projection or GROUP BY expression.
type AggregateFunc byte

const (
	AggNone AggregateFunc = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
	AggGroupConcat
	AggSample
)

// Expression is any SPARQL expression AST node.
type Expression interface {
	exprNode()
}

type Operator int

const (
	OpOr Operator = iota
	OpAnd
	OpNot
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpUnaryMinus
	OpUnaryPlus
)

type BinaryExpr struct {
	Op          Operator
	Left, Right Expression
}

type UnaryExpr struct {
	Op      Operator
	Operand Expression
}

type VariableExpr struct {
	Name string
}

type LiteralExpr struct {
	Term rdf.Term
}

type FuncCallExpr struct {
	Name string // upper-cased builtin name, or a full IRI for a custom function
	Args []Expression
}

// AggregateExpr is a projection/GROUP BY entry built from an aggregate
// function, e.g. COUNT(?x), SUM(?x), or a plain (expr AS ?alias) when
// Function == AggNone.
type AggregateExpr struct {
	Function AggregateFunc
	Arg      Expression // nil for COUNT(*)
	Star     bool        // true for COUNT(*)
	Distinct bool
	Separator string // GROUP_CONCAT SEPARATOR, default " "
}

type InExpr struct {
	Not        bool
	Expression Expression
	Values     []Expression
}

type ExistsExpr struct {
	Not     bool
	Pattern *GraphPattern
}

func (*BinaryExpr) exprNode()    {}
func (*UnaryExpr) exprNode()     {}
func (*VariableExpr) exprNode()  {}
func (*LiteralExpr) exprNode()   {}
func (*FuncCallExpr) exprNode()  {}
func (*AggregateExpr) exprNode() {}
func (*InExpr) exprNode()        {}
func (*ExistsExpr) exprNode()    {}

// Filter wraps a boolean expression restricting the enclosing pattern.
type Filter struct {
	Expression Expression
	Offset     int
}

// Bind assigns the value of Expression to Variable after the pattern
// elements preceding it (in source order) have been matched.
type Bind struct {
	Expression Expression
	Variable   string
}

// PatternElementKind tags a single entry of GraphPattern.Elements, which
// preserves source order across triple patterns, FILTERs, and BINDs so the
// planner can interleave them correctly (see SPEC_FULL.md §4.8).
type PatternElementKind byte

const (
	ElemTriple PatternElementKind = iota
	ElemFilter
	ElemBind
)

type PatternElement struct {
	Kind   PatternElementKind
	Triple TriplePattern
	Filter *Filter
	Bind   *Bind
}

// OptionalBlock is an OPTIONAL { ... } attached to an enclosing pattern.
type OptionalBlock struct {
	Pattern *GraphPattern
}

// MinusBlock is a MINUS { ... } attached to an enclosing pattern, bounded
// to at most 4 per pattern per SPEC_FULL.md §3.3.
type MinusBlock struct {
	Pattern *GraphPattern
}

// ValuesClause is a VALUES (?v1 ... ?vk) { (row)* } clause. The zero
// (unbound) Term in Rows encodes UNDEF.
type ValuesClause struct {
	Vars []string
	Rows [][]Term
}

// GraphClause is a GRAPH term { ... } child pattern.
type GraphClause struct {
	Graph   Term
	Pattern *GraphPattern
}

// ServiceClause is a SERVICE [SILENT] term { ... } child pattern.
type ServiceClause struct {
	Silent  bool
	Service Term
	Pattern *GraphPattern
}

// SubSelect boxes a nested { SELECT ... } pattern.
type SubSelect struct {
	Query *SelectQuery
}

// Capacity limits enforced by the parser; exceeding any of these yields a
// CapacityExceeded ParseError rather than silent truncation.
const (
	MaxTriplePatterns = 32
	MaxFilters        = 16
	MaxOrderBy        = 4
	MaxMinusBlocks    = 4
	MaxGraphPatterns  = 8
	MaxValuesVars     = 4
	MaxValuesRows     = 16
	MaxSubSelects     = 2
)

// GraphPattern is a `{ ... }` block: an ordered sequence of triple
// patterns/filters/binds, plus the structural clauses (OPTIONAL, UNION,
// MINUS, VALUES, GRAPH, SERVICE, sub-selects) attached to it.
type GraphPattern struct {
	Elements       []PatternElement
	OptionalBlocks []OptionalBlock
	UnionBranches  []*GraphPattern // len > 0 means this pattern is `{A} UNION {B} UNION {C}...`
	MinusBlocks    []MinusBlock
	Values         *ValuesClause
	GraphClauses   []GraphClause
	ServiceClauses []ServiceClause
	SubSelects     []*SubSelect
}

func (g *GraphPattern) addTriple(tp TriplePattern) error {
	n := 0
	for _, e := range g.Elements {
		if e.Kind == ElemTriple {
			n++
		}
	}
	if n >= MaxTriplePatterns {
		return fmt.Errorf("too many triple patterns in group (max %d)", MaxTriplePatterns)
	}
	g.Elements = append(g.Elements, PatternElement{Kind: ElemTriple, Triple: tp})
	return nil
}

func (g *GraphPattern) addFilter(f *Filter) error {
	n := 0
	for _, e := range g.Elements {
		if e.Kind == ElemFilter {
			n++
		}
	}
	if n >= MaxFilters {
		return fmt.Errorf("too many filters in group (max %d)", MaxFilters)
	}
	g.Elements = append(g.Elements, PatternElement{Kind: ElemFilter, Filter: f})
	return nil
}

func (g *GraphPattern) addBind(b *Bind) {
	g.Elements = append(g.Elements, PatternElement{Kind: ElemBind, Bind: b})
}

// AddTriple appends a triple pattern element, enforcing MaxTriplePatterns.
func (g *GraphPattern) AddTriple(tp TriplePattern) error { return g.addTriple(tp) }

// AddFilter appends a filter element, enforcing MaxFilters.
func (g *GraphPattern) AddFilter(f *Filter) error { return g.addFilter(f) }

// AddBind appends a bind element.
func (g *GraphPattern) AddBind(b *Bind) { g.addBind(b) }

// TriplePatterns returns the triple-pattern elements in source order.
func (g *GraphPattern) TriplePatterns() []TriplePattern {
	var out []TriplePattern
	for _, e := range g.Elements {
		if e.Kind == ElemTriple {
			out = append(out, e.Triple)
		}
	}
	return out
}

// Variables returns the set of variable names mentioned anywhere in the
// pattern (used for SELECT * projection ordering).
func (g *GraphPattern) Variables() []string {
	seen := map[string]bool{}
	var order []string
	add := func(t Term) {
		if t.IsVariable() && !seen[t.Name] {
			seen[t.Name] = true
			order = append(order, t.Name)
		}
	}
	var walk func(p *GraphPattern)
	walk = func(p *GraphPattern) {
		if p == nil {
			return
		}
		for _, e := range p.Elements {
			switch e.Kind {
			case ElemTriple:
				add(e.Triple.Subject)
				add(e.Triple.Predicate)
				add(e.Triple.Object)
			case ElemBind:
				add(Term{Kind: KindVariable, Name: e.Bind.Variable})
			}
		}
		for _, ob := range p.OptionalBlocks {
			walk(ob.Pattern)
		}
		for _, branch := range p.UnionBranches {
			walk(branch)
		}
		for _, mb := range p.MinusBlocks {
			walk(mb.Pattern)
		}
		for _, gc := range p.GraphClauses {
			add(gc.Graph)
			walk(gc.Pattern)
		}
		for _, sc := range p.ServiceClauses {
			walk(sc.Pattern)
		}
		if p.Values != nil {
			for _, v := range p.Values.Vars {
				add(Term{Kind: KindVariable, Name: v})
			}
		}
	}
	walk(g)
	return order
}

// QueryType tags the four SPARQL query forms.
type QueryType byte

const (
	QuerySelect QueryType = iota + 1
	QueryConstruct
	QueryAsk
	QueryDescribe
)

// Prologue holds BASE/PREFIX declarations. PREFIX IRIs are already
// resolved against BASE by the time the parser records them here, and the
// parser uses Prologue.Prefixes to expand prefixed names inline, so
// downstream consumers never see raw prefixes.
type Prologue struct {
	Base     string
	Prefixes map[string]string
}

type ProjectionEntry struct {
	Variable  string // non-empty for a bare `?var`
	Aggregate *AggregateExpr
	Alias     string // for `(expr AS ?alias)`
}

type SelectClause struct {
	Distinct   bool
	Reduced    bool
	SelectAll  bool
	Projection []ProjectionEntry
}

type GroupCondition struct {
	Variable   string
	Expression Expression // nil for bare `?var`
}

type OrderCondition struct {
	Variable   string     // bare `?var` form
	Expression Expression // `(expr)` form; nil when Variable is set
	Descending bool
}

type TemporalKind byte

const (
	TemporalNone TemporalKind = iota
	TemporalAsOf
	TemporalDuring
	TemporalAllVersions
)

// TemporalClause carries AS OF/DURING/ALL VERSIONS syntax. The query core
// never interprets it; only a temporal-aware Store acts on it.
type TemporalClause struct {
	Kind  TemporalKind
	At    string // AS OF argument, raw lexical dateTime
	From  string // DURING lower bound
	To    string // DURING upper bound
}

type SolutionModifier struct {
	GroupBy  []GroupCondition
	Having   []Filter
	OrderBy  []OrderCondition
	Limit    *int
	Offset   *int
	Temporal *TemporalClause
}

type SelectQuery struct {
	Select   SelectClause
	Where    *GraphPattern
	Modifier SolutionModifier
}

type ConstructQuery struct {
	Template []TriplePattern
	Where    *GraphPattern
	Modifier SolutionModifier
}

type AskQuery struct {
	Where    *GraphPattern
	Modifier SolutionModifier
}

type DescribeQuery struct {
	Resources []Term
	DescribeAll bool
	Where     *GraphPattern
	Modifier  SolutionModifier
}

type Query struct {
	Type      QueryType
	Prologue  Prologue
	Select    *SelectQuery
	Construct *ConstructQuery
	Ask       *AskQuery
	Describe  *DescribeQuery
}

// Where returns the top-level WHERE pattern regardless of query form.
func (q *Query) Where() *GraphPattern {
	switch q.Type {
	case QuerySelect:
		return q.Select.Where
	case QueryConstruct:
		return q.Construct.Where
	case QueryAsk:
		return q.Ask.Where
	case QueryDescribe:
		return q.Describe.Where
	}
	return nil
}

// Modifier returns the top-level solution modifier regardless of query form.
func (q *Query) Modifier() *SolutionModifier {
	switch q.Type {
	case QuerySelect:
		return &q.Select.Modifier
	case QueryConstruct:
		return &q.Construct.Modifier
	case QueryAsk:
		return &q.Ask.Modifier
	case QueryDescribe:
		return &q.Describe.Modifier
	}
	return nil
}

func (t Term) GoString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Term(%v)", t.String())
	return b.String()
}
