package translate

import "github.com/relquad/sparqlrel/internal/sparql/algebra"

// collectVars walks node and every expression reachable from it, recording
// every variable mentioned anywhere (bound or merely referenced). Minus
// uses this to decide whether Subtrahend shares any variable with Pattern
// at all: SPARQL's MINUS leaves Pattern untouched when the two share no
// variable, independent of whether Subtrahend is itself satisfiable.
func collectVars(node algebra.Node, out map[algebra.Var]bool) {
	if node == nil {
		return
	}
	switch n := node.(type) {
	case *algebra.BGP:
		for _, tp := range n.Triples {
			collectPatternTermVars(tp.Subject, out)
			collectPatternTermVars(tp.Predicate, out)
			collectPatternTermVars(tp.Object, out)
		}
	case *algebra.PathTriple:
		collectPatternTermVars(n.Subject, out)
		collectPatternTermVars(n.Object, out)
	case *algebra.Join:
		collectVars(n.Left, out)
		collectVars(n.Right, out)
	case *algebra.LeftJoin:
		collectVars(n.Left, out)
		collectVars(n.Right, out)
		if n.Filter != nil {
			collectExprVars(n.Filter, out)
		}
	case *algebra.Union:
		collectVars(n.Left, out)
		collectVars(n.Right, out)
	case *algebra.Graph:
		collectPatternTermVars(n.Name, out)
		collectVars(n.Pattern, out)
	case *algebra.Filter:
		collectVars(n.Pattern, out)
		for _, cond := range n.Conditions {
			collectExprVars(cond, out)
		}
	case *algebra.Extend:
		collectVars(n.Pattern, out)
		out[n.Variable] = true
		collectExprVars(n.Expr, out)
	case *algebra.Minus:
		collectVars(n.Pattern, out)
		collectVars(n.Subtrahend, out)
	case *algebra.Values:
		for _, v := range n.Vars.Variables {
			out[v] = true
		}
	case *algebra.Subquery:
		if n.Query != nil {
			collectVars(n.Query.Pattern, out)
		}
	case *algebra.Slice:
		collectVars(n.Pattern, out)
	case *algebra.Distinct:
		collectVars(n.Pattern, out)
	case *algebra.Reduced:
		collectVars(n.Pattern, out)
	case *algebra.OrderBy:
		collectVars(n.Pattern, out)
		for _, cond := range n.Conditions {
			collectExprVars(cond.Expr, out)
		}
	case *algebra.Group:
		collectVars(n.Pattern, out)
		for _, k := range n.Keys {
			collectExprVars(k, out)
		}
		for _, ab := range n.Aggregates {
			out[ab.Variable] = true
			if ab.Agg.Expr != nil {
				collectExprVars(ab.Agg.Expr, out)
			}
		}
	case *algebra.Project:
		collectVars(n.Pattern, out)
		for _, v := range n.Vars {
			out[v] = true
		}
	}
}

func collectPatternTermVars(t algebra.PatternTerm, out map[algebra.Var]bool) {
	if v, ok := t.(algebra.Var); ok {
		out[v] = true
	}
}

func collectExprVars(e algebra.Expr, out map[algebra.Var]bool) {
	switch v := e.(type) {
	case algebra.VarExpr:
		out[v.Var] = true
	case algebra.Binary:
		collectExprVars(v.Left, out)
		collectExprVars(v.Right, out)
	case algebra.Unary:
		collectExprVars(v.Operand, out)
	case algebra.Call:
		for _, a := range v.Args {
			collectExprVars(a, out)
		}
	case algebra.In:
		collectExprVars(v.Target, out)
		for _, item := range v.List {
			collectExprVars(item, out)
		}
	case algebra.Exists:
		collectVars(v.Pattern, out)
	case algebra.Aggregate:
		if v.Expr != nil {
			collectExprVars(v.Expr, out)
		}
	}
}

// sharesVariable reports whether a and b mention at least one common
// variable anywhere in their trees.
func sharesVariable(a, b algebra.Node) bool {
	av := map[algebra.Var]bool{}
	collectVars(a, av)
	if len(av) == 0 {
		return false
	}
	bv := map[algebra.Var]bool{}
	collectVars(b, bv)
	for v := range bv {
		if av[v] {
			return true
		}
	}
	return false
}
