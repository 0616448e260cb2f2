package translate

import (
	"fmt"
	"strings"

	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// CompiledExpr is a SPARQL expression compiled to SQL: four fragments
// standing in for an RDF term's (text, type, lang, datatype) tuple — the
// same tuple rdf.TermUUID hashes, minus the uuid column itself. A computed
// value (arithmetic, a function result, a literal) never needs its own
// term_uuid: term equality and SAMETERM both reduce to tuple equality,
// and nothing downstream joins back to the term table by way of a
// CompiledExpr, so there's no row in the physical term table to look up.
type CompiledExpr struct {
	Text     string
	Type     string
	Lang     string
	Datatype string
}

// literalTuple is the SQL tuple for a literal with a fixed datatype and no
// language tag — the shape nearly every function and arithmetic result
// produces.
func literalTuple(textSQL, datatypeIRI string) CompiledExpr {
	return CompiledExpr{
		Text:     textSQL,
		Type:     "'" + string(rdf.KindLiteral) + "'",
		Lang:     "NULL",
		Datatype: sqlString(datatypeIRI),
	}
}

func booleanTuple(boolSQL string) CompiledExpr {
	return literalTuple(fmt.Sprintf("(%s)::text", boolSQL), rdf.XSDBoolean.IRI)
}

func stringTuple(textSQL string) CompiledExpr {
	return literalTuple(textSQL, rdf.XSDString.IRI)
}

// sqlString escapes and single-quotes a Go string for embedding as a SQL
// text literal. Only the quote char is escaped (by doubling it); every other
// character, control characters included, passes through unchanged.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Compiler generalizes the teacher's Evaluator: the same exhaustive
// operator/function switch, but each case emits SQL text against a Scope's
// variable-to-column bindings instead of computing an rdf.Term directly
// against a store.Binding.
type Compiler struct {
	translator *Translator
}

// NewCompiler creates an expression compiler bound to the pattern
// translator it needs for EXISTS/NOT EXISTS subpatterns.
func NewCompiler(t *Translator) *Compiler {
	return &Compiler{translator: t}
}

// Compile compiles expr into its SQL tuple against scope's bindings.
func (c *Compiler) Compile(expr algebra.Expr, scope *Scope) (CompiledExpr, error) {
	switch e := expr.(type) {
	case algebra.VarExpr:
		ref, ok := scope.Lookup(e.Var)
		if !ok {
			return CompiledExpr{}, errs.Type("unbound variable ?%s", e.Var.Name)
		}
		return CompiledExpr{Text: ref.Text(), Type: ref.Kind(), Lang: ref.Lang(), Datatype: ref.Datatype()}, nil

	case algebra.LitExpr:
		return c.compileLiteral(e.Value), nil

	case algebra.Binary:
		return c.compileBinary(e, scope)

	case algebra.Unary:
		return c.compileUnary(e, scope)

	case algebra.Call:
		return c.compileCall(e, scope)

	case algebra.In:
		return c.compileIn(e, scope)

	case algebra.Exists:
		return c.compileExists(e, scope)

	case algebra.Aggregate:
		return CompiledExpr{}, errs.UnsupportedFeature("aggregate outside GROUP BY context")
	}
	return CompiledExpr{}, errs.UnsupportedFeature(fmt.Sprintf("expression %T", expr))
}

// CompileCondition compiles expr and reduces it to its effective boolean
// value, for use directly in a SQL WHERE/ON/HAVING clause. A TypeError
// raised while compiling is swallowed into SQL FALSE here, so a FILTER or an
// OPTIONAL's attached filter excludes the row on a type error rather than
// aborting the query (SPEC_FULL.md §7); IF's condition also passes through
// here, so a type error there selects the else branch. Any other error is
// returned.
func (c *Compiler) CompileCondition(expr algebra.Expr, scope *Scope) (string, error) {
	v, err := c.Compile(expr, scope)
	if err != nil {
		if te, ok := err.(*errs.Error); ok && te.Code() == errs.CodeType {
			return "FALSE", nil
		}
		return "", err
	}
	return ebvSQL(v), nil
}

func (c *Compiler) compileLiteral(t rdf.Term) CompiledExpr {
	lit := litSQL(t)
	return CompiledExpr{Text: lit.Text, Type: lit.Type, Lang: lit.Lang, Datatype: lit.Datatype}
}

// ebvSQL implements the teacher's effectiveBooleanValue truth table as a
// SQL CASE chain: boolean literals by their text, numeric literals by
// zero/non-zero, plain, language-tagged and xsd:string literals by
// non-empty, everything else (IRIs, blank nodes, other datatypes) raises an
// error that
// CompileCondition turns into exclusion and everywhere else propagates as
// SQL NULL (the three-valued-logic "error" state).
func ebvSQL(v CompiledExpr) string {
	return fmt.Sprintf(`(CASE
		WHEN %s <> 'L' THEN NULL
		WHEN %s = %s THEN (%s = 'true' OR %s = '1')
		WHEN %s IN (%s) THEN (%s ~ '^-?[0-9.eE+-]+$' AND %s::double precision <> 0)
		WHEN %s IS NULL OR %s = %s THEN (%s <> '')
		ELSE NULL
	END)`,
		v.Type,
		v.Datatype, sqlString(rdf.XSDBoolean.IRI), v.Text, v.Text,
		v.Datatype, numericDatatypeList(), v.Text, v.Text,
		v.Datatype, v.Datatype, sqlString(rdf.XSDString.IRI), v.Text,
	)
}

func numericDatatypeList() string {
	iris := []string{
		rdf.XSDInteger.IRI, rdf.XSDDecimal.IRI, rdf.XSDDouble.IRI,
		"http://www.w3.org/2001/XMLSchema#int", "http://www.w3.org/2001/XMLSchema#long",
		"http://www.w3.org/2001/XMLSchema#float",
	}
	quoted := make([]string, len(iris))
	for i, iri := range iris {
		quoted[i] = sqlString(iri)
	}
	return strings.Join(quoted, ", ")
}

// isNumericSQL reports whether v's declared datatype is one SPARQL treats
// as a numeric literal, used to decide numeric vs. lexical ordering.
func isNumericSQL(v CompiledExpr) string {
	return fmt.Sprintf("(%s IN (%s))", v.Datatype, numericDatatypeList())
}

func numericSQL(v CompiledExpr) string {
	return fmt.Sprintf("(%s)::double precision", v.Text)
}

func (c *Compiler) compileBinary(e algebra.Binary, scope *Scope) (CompiledExpr, error) {
	left, err := c.Compile(e.Left, scope)
	if err != nil {
		return CompiledExpr{}, err
	}

	switch e.Op {
	case algebra.OpAnd:
		right, err := c.Compile(e.Right, scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("COALESCE(%s AND %s, FALSE)", ebvSQL(left), ebvSQL(right))), nil
	case algebra.OpOr:
		right, err := c.Compile(e.Right, scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("COALESCE(%s OR %s, %s IS NOT DISTINCT FROM TRUE OR %s IS NOT DISTINCT FROM TRUE)", ebvSQL(left), ebvSQL(right), ebvSQL(left), ebvSQL(right))), nil
	}

	right, err := c.Compile(e.Right, scope)
	if err != nil {
		return CompiledExpr{}, err
	}

	switch e.Op {
	case algebra.OpEqual:
		return booleanTuple(termEqualSQL(left, right)), nil
	case algebra.OpNotEqual:
		return booleanTuple("NOT (" + termEqualSQL(left, right) + ")"), nil
	case algebra.OpLess, algebra.OpLessEqual, algebra.OpGreater, algebra.OpGreaterEqual:
		op := map[algebra.BinOp]string{
			algebra.OpLess: "<", algebra.OpLessEqual: "<=",
			algebra.OpGreater: ">", algebra.OpGreaterEqual: ">=",
		}[e.Op]
		return booleanTuple(fmt.Sprintf(
			"(CASE WHEN %s AND %s THEN %s %s %s ELSE %s %s %s END)",
			isNumericSQL(left), isNumericSQL(right), numericSQL(left), op, numericSQL(right),
			left.Text, op, right.Text,
		)), nil
	case algebra.OpAdd, algebra.OpSubtract, algebra.OpMultiply, algebra.OpDivide:
		op := map[algebra.BinOp]string{
			algebra.OpAdd: "+", algebra.OpSubtract: "-", algebra.OpMultiply: "*", algebra.OpDivide: "/",
		}[e.Op]
		expr := fmt.Sprintf("(%s %s %s)", numericSQL(left), op, numericSQL(right))
		if e.Op == algebra.OpDivide {
			expr = fmt.Sprintf("(%s %s NULLIF(%s, 0))", numericSQL(left), op, numericSQL(right))
		}
		return literalTuple(fmt.Sprintf("(%s)::text", expr), rdf.XSDDouble.IRI), nil
	}
	return CompiledExpr{}, errs.UnsupportedFeature("binary operator")
}

// termEqualSQL implements RDF term equality (value-identical literal tuples
// or identical IRIs/blank node labels); the physical term table's content
// addressing guarantees this is exactly UUID equality for two materialized
// terms, but a computed value on one side has no UUID to compare, so
// equality is always done over the tuple.
func termEqualSQL(left, right CompiledExpr) string {
	return fmt.Sprintf(
		"(%s = %s AND %s = %s AND %s IS NOT DISTINCT FROM %s AND %s IS NOT DISTINCT FROM %s)",
		left.Type, right.Type, left.Text, right.Text, left.Lang, right.Lang, left.Datatype, right.Datatype,
	)
}

func (c *Compiler) compileUnary(e algebra.Unary, scope *Scope) (CompiledExpr, error) {
	operand, err := c.Compile(e.Operand, scope)
	if err != nil {
		return CompiledExpr{}, err
	}
	switch e.Op {
	case algebra.OpNot:
		return booleanTuple(fmt.Sprintf("NOT COALESCE(%s, FALSE)", ebvSQL(operand))), nil
	case algebra.OpUnaryPlus:
		return literalTuple(fmt.Sprintf("(+%s)::text", numericSQL(operand)), rdf.XSDDouble.IRI), nil
	case algebra.OpUnaryMinus:
		return literalTuple(fmt.Sprintf("(-%s)::text", numericSQL(operand)), rdf.XSDDouble.IRI), nil
	}
	return CompiledExpr{}, errs.UnsupportedFeature("unary operator")
}

func (c *Compiler) compileIn(e algebra.In, scope *Scope) (CompiledExpr, error) {
	target, err := c.Compile(e.Target, scope)
	if err != nil {
		return CompiledExpr{}, err
	}
	conds := make([]string, 0, len(e.List))
	for _, item := range e.List {
		v, err := c.Compile(item, scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		conds = append(conds, termEqualSQL(target, v))
	}
	if len(conds) == 0 {
		return booleanTuple(fmt.Sprintf("%t", e.Negate)), nil
	}
	sql := "(" + strings.Join(conds, " OR ") + ")"
	if e.Negate {
		sql = "NOT " + sql
	}
	return booleanTuple(sql), nil
}

func (c *Compiler) compileExists(e algebra.Exists, scope *Scope) (CompiledExpr, error) {
	innerScope := scope.Fresh(scope.Aliases().Derived("ex_"))
	rel, err := c.translator.Translate(e.Pattern, innerScope, nil)
	if err != nil {
		return CompiledExpr{}, err
	}
	body := "SELECT 1 FROM " + rel.From
	for _, j := range rel.Joins {
		body += " " + j
	}
	where := correlateOuter(rel, scope)
	where = append(where, rel.Where...)
	if len(where) > 0 {
		body += " WHERE " + strings.Join(where, " AND ")
	}
	sql := fmt.Sprintf("EXISTS (%s)", body)
	if e.Negate {
		sql = "NOT " + sql
	}
	return booleanTuple(sql), nil
}

// CompileAggregate compiles one GROUP BY aggregate binding to a SQL
// aggregate-function expression. Unlike Compile, the result is meant to sit
// directly in a GROUP BY query's SELECT list, not be recomposed further.
func (c *Compiler) CompileAggregate(agg algebra.Aggregate, scope *Scope) (CompiledExpr, error) {
	distinct := ""
	if agg.Distinct {
		distinct = "DISTINCT "
	}
	if agg.Kind == algebra.AggCount && agg.Expr == nil {
		return literalTuple("COUNT(*)::text", rdf.XSDInteger.IRI), nil
	}
	val, err := c.Compile(agg.Expr, scope)
	if err != nil {
		return CompiledExpr{}, err
	}
	switch agg.Kind {
	case algebra.AggCount:
		return literalTuple(fmt.Sprintf("COUNT(%s%s)::text", distinct, val.Text), rdf.XSDInteger.IRI), nil
	case algebra.AggSum:
		return literalTuple(fmt.Sprintf("COALESCE(SUM(%s%s), 0)::text", distinct, numericSQL(val)), rdf.XSDDouble.IRI), nil
	case algebra.AggAvg:
		return literalTuple(fmt.Sprintf("AVG(%s%s)::text", distinct, numericSQL(val)), rdf.XSDDouble.IRI), nil
	case algebra.AggMin:
		return literalTuple(fmt.Sprintf("MIN(%s%s)", distinct, val.Text), rdf.XSDString.IRI), nil
	case algebra.AggMax:
		return literalTuple(fmt.Sprintf("MAX(%s%s)", distinct, val.Text), rdf.XSDString.IRI), nil
	case algebra.AggSample:
		return literalTuple(fmt.Sprintf("(array_agg(%s%s))[1]", distinct, val.Text), rdf.XSDString.IRI), nil
	case algebra.AggGroupConcat:
		sep := agg.Separator
		if sep == "" {
			sep = " "
		}
		return literalTuple(fmt.Sprintf("STRING_AGG(%s%s, %s)", distinct, val.Text, sqlString(sep)), rdf.XSDString.IRI), nil
	}
	return CompiledExpr{}, errs.UnsupportedFeature("aggregate kind")
}

// correlateOuter links an EXISTS subpattern's re-bound variables back to the
// enclosing scope's bindings for every variable the subpattern shares with
// it, implementing EXISTS's defined correlation to the outer solution.
func correlateOuter(inner *Relation, outer *Scope) []string {
	var conds []string
	for v, ref := range inner.Columns {
		if outerRef, ok := outer.Lookup(v); ok {
			conds = append(conds, termEqualSQL(
				CompiledExpr{Text: ref.Text(), Type: ref.Kind(), Lang: ref.Lang(), Datatype: ref.Datatype()},
				CompiledExpr{Text: outerRef.Text(), Type: outerRef.Kind(), Lang: outerRef.Lang(), Datatype: outerRef.Datatype()},
			))
		}
	}
	return conds
}
