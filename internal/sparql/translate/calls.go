package translate

import (
	"fmt"
	"strings"

	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// iriTuple is the SQL tuple for a computed IRI (DATATYPE's result, IRI()'s
// constructed term) — the Call-expression counterpart to literalTuple.
func iriTuple(textSQL string) CompiledExpr {
	return CompiledExpr{Text: textSQL, Type: "'" + string(rdf.KindIRI) + "'", Lang: "NULL", Datatype: "NULL"}
}

// arg1 compiles e's sole argument, the shape most of the function library
// takes.
func (c *Compiler) arg1(e algebra.Call, scope *Scope, fn string) (CompiledExpr, error) {
	if len(e.Args) != 1 {
		return CompiledExpr{}, errs.Type("%s requires exactly 1 argument", fn)
	}
	return c.Compile(e.Args[0], scope)
}

func (c *Compiler) arg2(e algebra.Call, scope *Scope, fn string) (CompiledExpr, CompiledExpr, error) {
	if len(e.Args) != 2 {
		return CompiledExpr{}, CompiledExpr{}, errs.Type("%s requires exactly 2 arguments", fn)
	}
	a, err := c.Compile(e.Args[0], scope)
	if err != nil {
		return CompiledExpr{}, CompiledExpr{}, err
	}
	b, err := c.Compile(e.Args[1], scope)
	if err != nil {
		return CompiledExpr{}, CompiledExpr{}, err
	}
	return a, b, nil
}

// compileCall dispatches one built-in function call to SQL — the same
// exhaustive case-per-function switch as the teacher's
// evaluateFunctionCall, generalized from "evaluate against a *store.Binding"
// to "emit SQL against a Scope's column bindings". Grounded on
// pkg/sparql/evaluator/functions.go; functions the teacher's dispatch did
// not cover (REPLACE, the hash functions, date accessors, xsd casts) follow
// its same case-per-function, extract-then-reconstruct shape.
func (c *Compiler) compileCall(e algebra.Call, scope *Scope) (CompiledExpr, error) {
	name := strings.ToUpper(e.Name)

	switch name {
	case "BOUND":
		return c.compileBound(e, scope)

	case "ISIRI", "ISURI":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("(%s = '%s')", v.Type, string(rdf.KindIRI))), nil
	case "ISBLANK":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("(%s = '%s')", v.Type, string(rdf.KindBlank))), nil
	case "ISLITERAL":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("(%s = '%s')", v.Type, string(rdf.KindLiteral))), nil
	case "ISNUMERIC":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(isNumericSQL(v)), nil

	case "STR":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return stringTuple(v.Text), nil
	case "LANG":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return stringTuple(fmt.Sprintf("COALESCE(%s, '')", v.Lang)), nil
	case "DATATYPE":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return iriTuple(fmt.Sprintf(
			"(CASE WHEN %s = '%s' THEN COALESCE(%s, %s) ELSE NULL END)",
			v.Type, string(rdf.KindLiteral), v.Datatype, sqlString(rdf.XSDString.IRI),
		)), nil
	case "IRI", "URI":
		// Base-IRI resolution against the query's BASE declaration is not
		// applied here; the argument is taken as an absolute IRI already.
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return iriTuple(v.Text), nil

	case "COALESCE":
		if len(e.Args) == 0 {
			return CompiledExpr{}, errs.Type("COALESCE requires at least 1 argument")
		}
		vals := make([]CompiledExpr, len(e.Args))
		for i, a := range e.Args {
			v, err := c.Compile(a, scope)
			if err != nil {
				return CompiledExpr{}, err
			}
			vals[i] = v
		}
		return CompiledExpr{
			Text:     coalesceCol(vals, func(v CompiledExpr) string { return v.Text }),
			Type:     coalesceCol(vals, func(v CompiledExpr) string { return v.Type }),
			Lang:     coalesceCol(vals, func(v CompiledExpr) string { return v.Lang }),
			Datatype: coalesceCol(vals, func(v CompiledExpr) string { return v.Datatype }),
		}, nil
	case "IF":
		if len(e.Args) != 3 {
			return CompiledExpr{}, errs.Type("IF requires exactly 3 arguments")
		}
		cond, err := c.CompileCondition(e.Args[0], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		a, err := c.Compile(e.Args[1], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		b, err := c.Compile(e.Args[2], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		caseOf := func(x, y string) string { return fmt.Sprintf("(CASE WHEN %s THEN %s ELSE %s END)", cond, x, y) }
		return CompiledExpr{Text: caseOf(a.Text, b.Text), Type: caseOf(a.Type, b.Type), Lang: caseOf(a.Lang, b.Lang), Datatype: caseOf(a.Datatype, b.Datatype)}, nil
	case "SAMETERM":
		a, b, err := c.arg2(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(termEqualSQL(a, b)), nil
	case "LANGMATCHES":
		tag, rang, err := c.arg2(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf(
			"(%s = '*' OR lower(%s) = lower(%s) OR lower(%s) LIKE (lower(%s) || '-%%'))",
			rang.Text, tag.Text, rang.Text, tag.Text, rang.Text,
		)), nil

	case "STRLEN":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(fmt.Sprintf("(char_length(%s))::text", v.Text), rdf.XSDInteger.IRI), nil
	case "UCASE":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return stringTuple(fmt.Sprintf("upper(%s)", v.Text)), nil
	case "LCASE":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return stringTuple(fmt.Sprintf("lower(%s)", v.Text)), nil
	case "CONCAT":
		if len(e.Args) == 0 {
			return stringTuple("''"), nil
		}
		parts := make([]string, len(e.Args))
		for i, a := range e.Args {
			v, err := c.Compile(a, scope)
			if err != nil {
				return CompiledExpr{}, err
			}
			parts[i] = v.Text
		}
		return stringTuple("(" + strings.Join(parts, " || ") + ")"), nil
	case "CONTAINS":
		a, b, err := c.arg2(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("(strpos(%s, %s) > 0)", a.Text, b.Text)), nil
	case "STRSTARTS":
		a, b, err := c.arg2(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("(left(%s, char_length(%s)) = %s)", a.Text, b.Text, b.Text)), nil
	case "STRENDS":
		a, b, err := c.arg2(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return booleanTuple(fmt.Sprintf("(right(%s, char_length(%s)) = %s)", a.Text, b.Text, b.Text)), nil
	case "SUBSTR":
		if len(e.Args) < 2 || len(e.Args) > 3 {
			return CompiledExpr{}, errs.Type("SUBSTR requires 2 or 3 arguments")
		}
		str, err := c.Compile(e.Args[0], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		start, err := c.Compile(e.Args[1], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		if len(e.Args) == 3 {
			length, err := c.Compile(e.Args[2], scope)
			if err != nil {
				return CompiledExpr{}, err
			}
			return stringTuple(fmt.Sprintf("substring(%s from %s::int for %s::int)", str.Text, numericSQL(start), numericSQL(length))), nil
		}
		return stringTuple(fmt.Sprintf("substring(%s from %s::int)", str.Text, numericSQL(start))), nil
	case "REPLACE":
		if len(e.Args) < 3 || len(e.Args) > 4 {
			return CompiledExpr{}, errs.Type("REPLACE requires 3 or 4 arguments")
		}
		str, err := c.Compile(e.Args[0], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		pattern, err := c.Compile(e.Args[1], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		repl, err := c.Compile(e.Args[2], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		patSQL := pattern.Text
		if len(e.Args) == 4 {
			flags, err := c.Compile(e.Args[3], scope)
			if err != nil {
				return CompiledExpr{}, err
			}
			patSQL = embedRegexFlags(pattern.Text, flags.Text)
		}
		return stringTuple(fmt.Sprintf("regexp_replace(%s, %s, %s, 'g')", str.Text, patSQL, repl.Text)), nil
	case "REGEX":
		if len(e.Args) < 2 || len(e.Args) > 3 {
			return CompiledExpr{}, errs.Type("REGEX requires 2 or 3 arguments")
		}
		text, err := c.Compile(e.Args[0], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		pattern, err := c.Compile(e.Args[1], scope)
		if err != nil {
			return CompiledExpr{}, err
		}
		patSQL := pattern.Text
		if len(e.Args) == 3 {
			flags, err := c.Compile(e.Args[2], scope)
			if err != nil {
				return CompiledExpr{}, err
			}
			patSQL = embedRegexFlags(pattern.Text, flags.Text)
		}
		return booleanTuple(fmt.Sprintf("(%s ~ %s)", text.Text, patSQL)), nil

	case "ABS":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(fmt.Sprintf("(abs(%s))::text", numericSQL(v)), rdf.XSDDouble.IRI), nil
	case "CEIL":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(fmt.Sprintf("(ceil(%s))::text", numericSQL(v)), rdf.XSDDouble.IRI), nil
	case "FLOOR":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(fmt.Sprintf("(floor(%s))::text", numericSQL(v)), rdf.XSDDouble.IRI), nil
	case "ROUND":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(fmt.Sprintf("(round(%s))::text", numericSQL(v)), rdf.XSDDouble.IRI), nil

	case "MD5":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return stringTuple(fmt.Sprintf("md5(%s)", v.Text)), nil
	case "SHA1", "SHA256", "SHA384", "SHA512":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		// digest() comes from the pgcrypto extension (schema.go's DDL enables
		// it); md5 alone is built into core Postgres.
		return stringTuple(fmt.Sprintf("encode(digest(%s, '%s'), 'hex')", v.Text, strings.ToLower(name))), nil

	case "YEAR", "MONTH", "DAY", "HOURS", "MINUTES", "SECONDS":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		field := map[string]string{
			"YEAR": "year", "MONTH": "month", "DAY": "day",
			"HOURS": "hour", "MINUTES": "minute", "SECONDS": "second",
		}[name]
		return literalTuple(fmt.Sprintf("(EXTRACT(%s FROM (%s)::timestamptz))::text", field, v.Text), rdf.XSDInteger.IRI), nil
	case "TIMEZONE":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(fmt.Sprintf("('PT' || (EXTRACT(timezone_hour FROM (%s)::timestamptz))::text || 'H')", v.Text), rdf.XSDDuration.IRI), nil
	case "TZ":
		v, err := c.arg1(e, scope, name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return stringTuple(fmt.Sprintf("to_char((%s)::timestamptz, 'OF')", v.Text)), nil
	}

	// xsd:type(value) casts arrive as a Call named the full datatype IRI
	// (the parser does not special-case them), the same way the teacher's
	// default case recognizes them by the "http://.../XMLSchema#" prefix.
	if strings.HasPrefix(name, "HTTP://WWW.W3.ORG/2001/XMLSCHEMA#") {
		v, err := c.arg1(e, scope, e.Name)
		if err != nil {
			return CompiledExpr{}, err
		}
		return literalTuple(v.Text, e.Name), nil
	}
	return CompiledExpr{}, errs.UnsupportedFeature("function " + e.Name)
}

func (c *Compiler) compileBound(e algebra.Call, scope *Scope) (CompiledExpr, error) {
	if len(e.Args) != 1 {
		return CompiledExpr{}, errs.Type("BOUND requires exactly 1 argument")
	}
	ve, ok := e.Args[0].(algebra.VarExpr)
	if !ok {
		return CompiledExpr{}, errs.Type("BOUND requires a variable argument")
	}
	ref, ok := scope.Lookup(ve.Var)
	if !ok {
		return booleanTuple("FALSE"), nil
	}
	return booleanTuple(fmt.Sprintf("(%s IS NOT NULL)", ref.Text())), nil
}

// coalesceCol builds a SQL COALESCE() over one tuple field across vals, in
// argument order — safe to do column-wise because an unbound variable's
// whole tuple (text/type/lang/datatype) is NULL together, never partially.
func coalesceCol(vals []CompiledExpr, get func(CompiledExpr) string) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = get(v)
	}
	return "COALESCE(" + strings.Join(parts, ", ") + ")"
}

// embedRegexFlags prepends SPARQL's REGEX/REPLACE flag letters (i, m, s, x)
// to pattern as a Postgres ARE inline option group, when flagsSQL is
// non-empty at runtime.
func embedRegexFlags(patternSQL, flagsSQL string) string {
	return fmt.Sprintf("(CASE WHEN %s = '' THEN %s ELSE ('(?' || %s || ')' || %s) END)", flagsSQL, patternSQL, flagsSQL, patternSQL)
}
