package algebra

import "github.com/relquad/sparqlrel/pkg/rdf"

// Expr is a SPARQL expression node, closed the same way parser.Expression
// is closed (expressionNode marker), generalized with the additional forms
// SPARQL 1.1 expressions need that the older evaluator covered ad hoc:
// EXISTS/NOT EXISTS, IN/NOT IN, IF, COALESCE, and aggregate references.
type Expr interface {
	expr()
}

// VarExpr references a bound (or possibly unbound) variable.
type VarExpr struct{ Var Var }

func (VarExpr) expr() {}

// LitExpr is a constant RDF term.
type LitExpr struct{ Value rdf.Term }

func (LitExpr) expr() {}

// BinOp is an arithmetic, comparison, or logical binary operator.
type BinOp int

const (
	OpOr BinOp = iota
	OpAnd
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
)

// Binary is a binary expression.
type Binary struct {
	Op          BinOp
	Left, Right Expr
}

func (Binary) expr() {}

// UnOp is a unary operator.
type UnOp int

const (
	OpNot UnOp = iota
	OpUnaryPlus
	OpUnaryMinus
)

// Unary is a unary expression.
type Unary struct {
	Op      UnOp
	Operand Expr
}

func (Unary) expr() {}

// Call is a built-in function call (STR, LANG, DATATYPE, BOUND, REGEX,
// CONTAINS, IF, COALESCE, and the rest of SPARQL 1.1's function library).
// Name is the uppercased SPARQL function name.
type Call struct {
	Name string
	Args []Expr
}

func (Call) expr() {}

// In is the IN / NOT IN membership test.
type In struct {
	Target Expr
	List   []Expr
	Negate bool
}

func (In) expr() {}

// Exists is EXISTS {pattern} / NOT EXISTS {pattern}, evaluated against the
// outer solution's bindings.
type Exists struct {
	Pattern Node
	Negate  bool
}

func (Exists) expr() {}

// AggregateKind is one of SPARQL 1.1's seven aggregate functions.
type AggregateKind int

const (
	AggCount AggregateKind = iota
	AggSum
	AggAvg
	AggMin
	AggMax
	AggSample
	AggGroupConcat
)

// Aggregate is an aggregate expression, legal only inside a Group's
// AggregateBinding list or (for COUNT(*) / aggregate-of-aggregate) inside a
// HAVING expression translated alongside the same Group.
type Aggregate struct {
	Kind      AggregateKind
	Distinct  bool
	Expr      Expr   // nil for COUNT(*)
	Separator string // GROUP_CONCAT only; defaults to " "
}

func (Aggregate) expr() {}
