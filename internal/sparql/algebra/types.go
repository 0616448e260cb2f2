// Package algebra defines the immutable SPARQL algebra tree the translator
// consumes. Unlike the older parser.GraphPattern union type it replaces,
// every algebra shape has its own Node implementation: a closed Node
// interface with a marker method, the way parser.Expression closes over its
// variants with expressionNode().
package algebra

import "github.com/relquad/sparqlrel/pkg/rdf"

// Node is any algebra tree element: a pattern, a modifier, or a path.
type Node interface {
	node()
}

// Var is a SPARQL variable reference inside the algebra tree. Scope
// annotates which translation scope introduced it, used by the translator
// to decide whether two same-named variables across subquery boundaries
// refer to the same binding or are shadowed.
type Var struct {
	Name  string
	Scope int
}

// Term is a concrete RDF term used as a fixed triple-pattern position.
type Term struct {
	Value rdf.Term
}

// PatternTerm is either a Var or a Term in a triple or path-triple position.
type PatternTerm interface {
	patternTerm()
}

func (Var) patternTerm()  {}
func (Term) patternTerm() {}

// BGP is a basic graph pattern: a conjunction of triple patterns evaluated
// against one graph (the Graph node above it, or the default graph).
type BGP struct {
	Triples []TriplePattern
}

func (*BGP) node() {}

// TriplePattern is one (subject, predicate, object) pattern inside a BGP.
type TriplePattern struct {
	Subject   PatternTerm
	Predicate PatternTerm
	Object    PatternTerm
}

// PathTriple is a triple pattern whose predicate position is a property
// path rather than a single predicate term.
type PathTriple struct {
	Subject PatternTerm
	Path    Path
	Object  PatternTerm
}

func (*PathTriple) node() {}

// Join is the inner join of two patterns over their shared variables.
type Join struct {
	Left, Right Node
}

func (*Join) node() {}

// LeftJoin is SPARQL OPTIONAL: every solution of Left appears in the
// result, extended with Right's bindings when Right matches and the
// optional Filter (if present) holds; otherwise Left's solution passes
// through unextended.
type LeftJoin struct {
	Left, Right Node
	Filter      Expr // may be nil
}

func (*LeftJoin) node() {}

// Union is the bag union of two patterns' solutions.
type Union struct {
	Left, Right Node
}

func (*Union) node() {}

// Graph restricts Pattern to one named graph. Name is either a fixed Term
// (IRI) or a Var that GRAPH ?g binds to every named graph in turn.
type Graph struct {
	Name    PatternTerm
	Pattern Node
}

func (*Graph) node() {}

// Filter keeps only the solutions of Pattern for which every Condition has
// effective boolean value true (three-valued logic: error and false both
// exclude the row).
type Filter struct {
	Pattern    Node
	Conditions []Expr
}

func (*Filter) node() {}

// Extend is BIND: adds a new variable bound to the evaluation of Expr over
// each solution of Pattern. A variable already bound in a solution makes
// BIND an error per SPARQL 1.1 (the parser/build step rejects this
// statically where it can; the translator raises errs.Type otherwise).
type Extend struct {
	Pattern  Node
	Variable Var
	Expr     Expr
}

func (*Extend) node() {}

// Minus removes from Pattern every solution that is join-compatible with
// some solution of Subtrahend, per SPARQL's MINUS semantics (not bag
// difference: disjoint-domain solutions are never removed).
type Minus struct {
	Pattern    Node
	Subtrahend Node
}

func (*Minus) node() {}

// Values is an inline VALUES data block: a fixed table of bindings, one row
// of which may bind UNDEF (a nil Term slot) for any variable.
type Values struct {
	Vars Rows
}

func (*Values) node() {}

// Rows is a VALUES block's variable list and its literal rows (nil entries
// are UNDEF).
type Rows struct {
	Variables []Var
	Rows      [][]rdf.Term
}

// Subquery isolates a nested SELECT: only Project's listed variables are
// visible to the enclosing pattern, matching SPARQL's subquery scoping.
type Subquery struct {
	Query *Query
}

func (*Subquery) node() {}

// Slice applies LIMIT/OFFSET. Negative Limit means unset.
type Slice struct {
	Pattern Node
	Offset  int64
	Limit   int64 // -1 = unset
}

func (*Slice) node() {}

// Distinct deduplicates solutions by full binding equality.
type Distinct struct {
	Pattern Node
}

func (*Distinct) node() {}

// Reduced marks a non-binding hint that duplicate removal is permitted but
// not required; the translator treats it as Distinct, since SQL gives no
// cheaper alternative once a query plan is already built.
type Reduced struct {
	Pattern Node
}

func (*Reduced) node() {}

// OrderBy sorts solutions by Conditions in order, each ascending unless
// Descending is set.
type OrderBy struct {
	Pattern    Node
	Conditions []OrderCondition
}

func (*OrderBy) node() {}

// OrderCondition is one ORDER BY key.
type OrderCondition struct {
	Expr       Expr
	Descending bool
}

// Group applies GROUP BY, computing Aggregates per group of Pattern's
// solutions that agree on every Keys expression.
type Group struct {
	Pattern    Node
	Keys       []Expr
	Aggregates []AggregateBinding
}

func (*Group) node() {}

// AggregateBinding names the variable an aggregate's result is bound to.
type AggregateBinding struct {
	Variable Var
	Agg      Aggregate
}

// Project restricts visible variables to Vars, in order. The final stage of
// a SELECT query's algebra tree before solution modifiers are layered on.
type Project struct {
	Pattern Node
	Vars    []Var
}

func (*Project) node() {}

// Query is a complete parsed/built query: the algebra tree plus its form
// (SELECT/ASK/CONSTRUCT/DESCRIBE) and, for CONSTRUCT, its output template.
type Query struct {
	Form         QueryForm
	Pattern      Node
	Template     []TriplePattern // CONSTRUCT only
	DescribeVars []PatternTerm   // DESCRIBE only: resources or variables to describe
	Distinct     bool
	Reduced      bool
}

// QueryForm is the SPARQL query form.
type QueryForm int

const (
	FormSelect QueryForm = iota
	FormAsk
	FormConstruct
	FormDescribe
)
