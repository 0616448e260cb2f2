package algebra

import (
	"fmt"

	"github.com/relquad/sparqlrel/internal/sparql/parser"
)

// Build converts a parsed query into its algebra tree. Unlike the teacher's
// optimizer.Optimize, which folds parsing and plan selection into one
// QueryPlan union, Build produces a form-agnostic Node tree first. Neither
// Build nor the translator reorders joins: triples are joined in pattern
// order, and join order and access paths are left to the database's planner.
func Build(q *parser.Query) (*Query, error) {
	b := &builder{}
	switch q.QueryType {
	case parser.QueryTypeSelect:
		return b.buildSelect(q.Select)
	case parser.QueryTypeAsk:
		return b.buildAsk(q.Ask)
	case parser.QueryTypeConstruct:
		return b.buildConstruct(q.Construct)
	case parser.QueryTypeDescribe:
		return b.buildDescribe(q.Describe)
	}
	return nil, fmt.Errorf("algebra: unknown query type %v", q.QueryType)
}

// BuildWherePattern compiles a standalone WHERE clause — the update
// executor's DELETE/INSERT/WHERE form, which has no SELECT wrapper of its
// own — into an algebra Node, returning the scope id its variables were
// assigned so the caller can build matching Var values for its Delete and
// Insert quad templates.
func BuildWherePattern(gp *parser.GraphPattern) (Node, int, error) {
	b := &builder{}
	scope := b.scope()
	node, err := b.buildGraphPattern(gp, scope)
	if err != nil {
		return nil, 0, err
	}
	return node, scope, nil
}

// builder assigns a fresh scope id to each nested SELECT so the translator
// can tell same-named variables in a subquery apart from the enclosing
// query's variables of the same name.
type builder struct {
	nextScope int
}

func (b *builder) scope() int {
	s := b.nextScope
	b.nextScope++
	return s
}

func (b *builder) buildSelect(sq *parser.SelectQuery) (*Query, error) {
	scope := b.scope()

	pattern, err := b.buildGraphPattern(sq.Where, scope)
	if err != nil {
		return nil, err
	}

	if len(sq.GroupBy) > 0 || hasAggregateProjection(sq.Items) {
		pattern, err = b.buildGroup(pattern, sq, scope)
		if err != nil {
			return nil, err
		}
	}

	if len(sq.Having) > 0 {
		conds := make([]Expr, 0, len(sq.Having))
		for _, h := range sq.Having {
			e, err := b.buildExpr(h, scope)
			if err != nil {
				return nil, err
			}
			conds = append(conds, e)
		}
		pattern = &Filter{Pattern: pattern, Conditions: conds}
	}

	var vars []Var
	if !sq.Star {
		for _, item := range sq.Items {
			if item.Expr != nil {
				e, err := b.buildExpr(item.Expr, scope)
				if err != nil {
					return nil, err
				}
				v := Var{Name: item.Variable.Name, Scope: scope}
				pattern = &Extend{Pattern: pattern, Variable: v, Expr: e}
				vars = append(vars, v)
				continue
			}
			vars = append(vars, Var{Name: item.Variable.Name, Scope: scope})
		}
	}

	if len(sq.OrderBy) > 0 {
		conds := make([]OrderCondition, 0, len(sq.OrderBy))
		for _, oc := range sq.OrderBy {
			e, err := b.buildExpr(oc.Expression, scope)
			if err != nil {
				return nil, err
			}
			conds = append(conds, OrderCondition{Expr: e, Descending: !oc.Ascending})
		}
		pattern = &OrderBy{Pattern: pattern, Conditions: conds}
	}

	if !sq.Star {
		pattern = &Project{Pattern: pattern, Vars: vars}
	}

	if sq.Distinct {
		pattern = &Distinct{Pattern: pattern}
	} else if sq.Reduced {
		pattern = &Reduced{Pattern: pattern}
	}

	if sq.Offset != nil || sq.Limit != nil {
		slice := &Slice{Pattern: pattern, Offset: 0, Limit: -1}
		if sq.Offset != nil {
			slice.Offset = int64(*sq.Offset)
		}
		if sq.Limit != nil {
			slice.Limit = int64(*sq.Limit)
		}
		pattern = slice
	}

	return &Query{Form: FormSelect, Pattern: pattern, Distinct: sq.Distinct, Reduced: sq.Reduced}, nil
}

func hasAggregateProjection(items []*parser.ProjectItem) bool {
	for _, item := range items {
		if item.Expr == nil {
			continue
		}
		if _, ok := item.Expr.(*parser.AggregateExpression); ok {
			return true
		}
	}
	return false
}

// buildGroup wraps pattern in a Group node. GROUP BY keys come from
// sq.GroupBy; aggregate bindings come from any projection item whose
// expression is a bare AggregateExpression (the common case) — an
// aggregate nested inside a larger expression is left for the expression
// compiler to flatten when it builds the SELECT item's Extend.
func (b *builder) buildGroup(pattern Node, sq *parser.SelectQuery, scope int) (Node, error) {
	keys := make([]Expr, 0, len(sq.GroupBy))
	for _, gc := range sq.GroupBy {
		if gc.Expr != nil {
			e, err := b.buildExpr(gc.Expr, scope)
			if err != nil {
				return nil, err
			}
			keys = append(keys, e)
			continue
		}
		keys = append(keys, VarExpr{Var: Var{Name: gc.Variable.Name, Scope: scope}})
	}

	var bindings []AggregateBinding
	for _, item := range sq.Items {
		agg, ok := item.Expr.(*parser.AggregateExpression)
		if !ok {
			continue
		}
		built, err := b.buildAggregate(agg, scope)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, AggregateBinding{
			Variable: Var{Name: item.Variable.Name, Scope: scope},
			Agg:      built,
		})
	}

	return &Group{Pattern: pattern, Keys: keys, Aggregates: bindings}, nil
}

func (b *builder) buildAsk(aq *parser.AskQuery) (*Query, error) {
	scope := b.scope()
	pattern, err := b.buildGraphPattern(aq.Where, scope)
	if err != nil {
		return nil, err
	}
	pattern = &Slice{Pattern: pattern, Offset: 0, Limit: 1}
	return &Query{Form: FormAsk, Pattern: pattern}, nil
}

func (b *builder) buildConstruct(cq *parser.ConstructQuery) (*Query, error) {
	scope := b.scope()
	pattern, err := b.buildGraphPattern(cq.Where, scope)
	if err != nil {
		return nil, err
	}

	template := make([]TriplePattern, 0, len(cq.Template))
	for _, t := range cq.Template {
		tp, err := b.buildTriplePattern(t, scope)
		if err != nil {
			return nil, err
		}
		template = append(template, tp)
	}

	return &Query{Form: FormConstruct, Pattern: pattern, Template: template}, nil
}

func (b *builder) buildDescribe(dq *parser.DescribeQuery) (*Query, error) {
	scope := b.scope()
	var pattern Node
	if dq.Where != nil {
		p, err := b.buildGraphPattern(dq.Where, scope)
		if err != nil {
			return nil, err
		}
		pattern = p
	}

	vars := make([]PatternTerm, 0, len(dq.Resources))
	for _, r := range dq.Resources {
		pt, err := b.buildPatternTerm(r, scope)
		if err != nil {
			return nil, err
		}
		vars = append(vars, pt)
	}

	return &Query{Form: FormDescribe, Pattern: pattern, DescribeVars: vars}, nil
}

// buildGraphPattern folds one parser.GraphPattern (and its nested children,
// filters, binds, and values) into a single algebra Node. Basic-graph
// triples and path triples join first; VALUES and each child pattern join
// in afterward using the combinator its Type calls for; filters and binds
// apply last, in the order they were written.
func (b *builder) buildGraphPattern(gp *parser.GraphPattern, scope int) (Node, error) {
	node, conds, err := b.buildGraphPatternCore(gp, scope)
	if err != nil {
		return nil, err
	}
	if len(conds) > 0 {
		node = &Filter{Pattern: node, Conditions: conds}
	}
	return b.foldBinds(node, gp.Binds, scope)
}

func (b *builder) foldBinds(node Node, binds []*parser.Bind, scope int) (Node, error) {
	for _, bind := range binds {
		e, err := b.buildExpr(bind.Expression, scope)
		if err != nil {
			return nil, err
		}
		node = &Extend{Pattern: node, Variable: Var{Name: bind.Variable.Name, Scope: scope}, Expr: e}
	}
	return node, nil
}

func andAll(conds []Expr) Expr {
	if len(conds) == 0 {
		return nil
	}
	result := conds[0]
	for _, c := range conds[1:] {
		result = Binary{Op: OpAnd, Left: result, Right: c}
	}
	return result
}

// buildGraphPatternCore accumulates a GraphPattern's triples, path triples,
// VALUES block, and children into one Node, returning any FILTER conditions
// unwrapped so the OPTIONAL case can route them into LeftJoin.Filter instead
// of wrapping the right-hand pattern on its own.
func (b *builder) buildGraphPatternCore(gp *parser.GraphPattern, scope int) (Node, []Expr, error) {
	if gp == nil {
		return &BGP{}, nil, nil
	}

	var acc Node

	if len(gp.Patterns) > 0 || len(gp.PathTriples) > 0 {
		bgp := &BGP{}
		for _, t := range gp.Patterns {
			tp, err := b.buildTriplePattern(t, scope)
			if err != nil {
				return nil, nil, err
			}
			bgp.Triples = append(bgp.Triples, tp)
		}
		acc = bgp

		for _, pt := range gp.PathTriples {
			subj, err := b.buildPatternTerm(pt.Subject, scope)
			if err != nil {
				return nil, nil, err
			}
			obj, err := b.buildPatternTerm(pt.Object, scope)
			if err != nil {
				return nil, nil, err
			}
			path, err := b.buildPath(pt.Path)
			if err != nil {
				return nil, nil, err
			}
			node := &PathTriple{Subject: subj, Path: path, Object: obj}
			acc = joinNodes(acc, node)
		}
	}

	if gp.Values != nil {
		vars := make([]Var, 0, len(gp.Values.Variables))
		for _, v := range gp.Values.Variables {
			vars = append(vars, Var{Name: v.Name, Scope: scope})
		}
		acc = joinNodes(acc, &Values{Vars: Rows{Variables: vars, Rows: gp.Values.Rows}})
	}

	for _, child := range gp.Children {
		switch child.Type {
		case parser.GraphPatternTypeOptional:
			right, conds, err := b.buildGraphPatternCore(child, scope)
			if err != nil {
				return nil, nil, err
			}
			right, err = b.foldBinds(right, child.Binds, scope)
			if err != nil {
				return nil, nil, err
			}
			acc = &LeftJoin{Left: acc, Right: right, Filter: andAll(conds)}

		case parser.GraphPatternTypeMinus:
			right, err := b.buildGraphPattern(child, scope)
			if err != nil {
				return nil, nil, err
			}
			acc = &Minus{Pattern: acc, Subtrahend: right}

		case parser.GraphPatternTypeUnion:
			var union Node
			for _, branch := range child.Children {
				branchNode, err := b.buildGraphPattern(branch, scope)
				if err != nil {
					return nil, nil, err
				}
				if union == nil {
					union = branchNode
				} else {
					union = &Union{Left: union, Right: branchNode}
				}
			}
			acc = joinNodes(acc, union)

		case parser.GraphPatternTypeGraph:
			inner, err := b.buildGraphPattern(child, scope)
			if err != nil {
				return nil, nil, err
			}
			var name PatternTerm
			if child.Graph.Variable != nil {
				name = Var{Name: child.Graph.Variable.Name, Scope: scope}
			} else {
				name = Term{Value: child.Graph.IRI}
			}
			acc = joinNodes(acc, &Graph{Name: name, Pattern: inner})

		case parser.GraphPatternTypeSubquery:
			sub, err := b.buildSelect(child.Subquery)
			if err != nil {
				return nil, nil, err
			}
			acc = joinNodes(acc, &Subquery{Query: sub})

		default:
			inner, err := b.buildGraphPattern(child, scope)
			if err != nil {
				return nil, nil, err
			}
			acc = joinNodes(acc, inner)
		}
	}

	if acc == nil {
		acc = &BGP{}
	}

	var conds []Expr
	if len(gp.Filters) > 0 {
		conds = make([]Expr, 0, len(gp.Filters))
		for _, f := range gp.Filters {
			e, err := b.buildExpr(f.Expression, scope)
			if err != nil {
				return nil, nil, err
			}
			conds = append(conds, e)
		}
	}

	return acc, conds, nil
}

func joinNodes(left, right Node) Node {
	if left == nil {
		return right
	}
	if right == nil {
		return left
	}
	return &Join{Left: left, Right: right}
}

func (b *builder) buildTriplePattern(t *parser.TriplePattern, scope int) (TriplePattern, error) {
	subj, err := b.buildPatternTerm(t.Subject, scope)
	if err != nil {
		return TriplePattern{}, err
	}
	pred, err := b.buildPatternTerm(t.Predicate, scope)
	if err != nil {
		return TriplePattern{}, err
	}
	obj, err := b.buildPatternTerm(t.Object, scope)
	if err != nil {
		return TriplePattern{}, err
	}
	return TriplePattern{Subject: subj, Predicate: pred, Object: obj}, nil
}

func (b *builder) buildPatternTerm(t parser.TermOrVariable, scope int) (PatternTerm, error) {
	if t.IsVariable() {
		return Var{Name: t.Variable.Name, Scope: scope}, nil
	}
	if t.Term == nil {
		return nil, fmt.Errorf("algebra: term position has neither variable nor value")
	}
	return Term{Value: t.Term}, nil
}

// ---- Path ----

func (b *builder) buildPath(p parser.PathExpr) (Path, error) {
	switch v := p.(type) {
	case *parser.PathPredicate:
		return PredicatePath{IRI: v.IRI}, nil
	case *parser.PathInverse:
		inner, err := b.buildPath(v.Path)
		if err != nil {
			return nil, err
		}
		return InversePath{Path: inner}, nil
	case *parser.PathSequence:
		first, err := b.buildPath(v.First)
		if err != nil {
			return nil, err
		}
		second, err := b.buildPath(v.Second)
		if err != nil {
			return nil, err
		}
		return SequencePath{First: first, Second: second}, nil
	case *parser.PathAlternative:
		left, err := b.buildPath(v.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.buildPath(v.Right)
		if err != nil {
			return nil, err
		}
		return AlternativePath{Left: left, Right: right}, nil
	case *parser.PathZeroOrMore:
		inner, err := b.buildPath(v.Path)
		if err != nil {
			return nil, err
		}
		return ZeroOrMorePath{Path: inner}, nil
	case *parser.PathOneOrMore:
		inner, err := b.buildPath(v.Path)
		if err != nil {
			return nil, err
		}
		return OneOrMorePath{Path: inner}, nil
	case *parser.PathZeroOrOne:
		inner, err := b.buildPath(v.Path)
		if err != nil {
			return nil, err
		}
		return ZeroOrOnePath{Path: inner}, nil
	case *parser.PathNegatedSet:
		members := make([]NegatedSetMember, 0, len(v.Members))
		for _, m := range v.Members {
			members = append(members, NegatedSetMember{IRI: m.IRI, Inverse: m.Inverse})
		}
		return NegatedSetPath{Excluded: members}, nil
	}
	return nil, fmt.Errorf("algebra: unknown path expression %T", p)
}

// ---- Expressions ----

func (b *builder) buildExpr(e parser.Expression, scope int) (Expr, error) {
	switch v := e.(type) {
	case *parser.VariableExpression:
		return VarExpr{Var: Var{Name: v.Variable.Name, Scope: scope}}, nil
	case *parser.LiteralExpression:
		return LitExpr{Value: v.Literal}, nil
	case *parser.BinaryExpression:
		left, err := b.buildExpr(v.Left, scope)
		if err != nil {
			return nil, err
		}
		right, err := b.buildExpr(v.Right, scope)
		if err != nil {
			return nil, err
		}
		op, err := buildBinOp(v.Operator)
		if err != nil {
			return nil, err
		}
		return Binary{Op: op, Left: left, Right: right}, nil
	case *parser.UnaryExpression:
		operand, err := b.buildExpr(v.Operand, scope)
		if err != nil {
			return nil, err
		}
		op, err := buildUnOp(v.Operator)
		if err != nil {
			return nil, err
		}
		return Unary{Op: op, Operand: operand}, nil
	case *parser.FunctionCallExpression:
		args := make([]Expr, 0, len(v.Arguments))
		for _, a := range v.Arguments {
			ae, err := b.buildExpr(a, scope)
			if err != nil {
				return nil, err
			}
			args = append(args, ae)
		}
		return Call{Name: v.Function, Args: args}, nil
	case *parser.InExpression:
		target, err := b.buildExpr(v.Target, scope)
		if err != nil {
			return nil, err
		}
		list := make([]Expr, 0, len(v.List))
		for _, item := range v.List {
			ie, err := b.buildExpr(item, scope)
			if err != nil {
				return nil, err
			}
			list = append(list, ie)
		}
		return In{Target: target, List: list, Negate: v.Negate}, nil
	case *parser.ExistsExpression:
		inner, err := b.buildGraphPattern(v.Pattern, scope)
		if err != nil {
			return nil, err
		}
		return Exists{Pattern: inner, Negate: v.Negate}, nil
	case *parser.AggregateExpression:
		return b.buildAggregate(v, scope)
	}
	return nil, fmt.Errorf("algebra: unknown expression %T", e)
}

func (b *builder) buildAggregate(agg *parser.AggregateExpression, scope int) (Aggregate, error) {
	kind, err := aggregateKind(agg.Function)
	if err != nil {
		return Aggregate{}, err
	}
	var expr Expr
	if agg.Arg != nil {
		e, err := b.buildExpr(agg.Arg, scope)
		if err != nil {
			return Aggregate{}, err
		}
		expr = e
	}
	sep := agg.Separator
	if sep == "" {
		sep = " "
	}
	return Aggregate{Kind: kind, Distinct: agg.Distinct, Expr: expr, Separator: sep}, nil
}

func aggregateKind(name string) (AggregateKind, error) {
	switch name {
	case "COUNT":
		return AggCount, nil
	case "SUM":
		return AggSum, nil
	case "AVG":
		return AggAvg, nil
	case "MIN":
		return AggMin, nil
	case "MAX":
		return AggMax, nil
	case "SAMPLE":
		return AggSample, nil
	case "GROUP_CONCAT":
		return AggGroupConcat, nil
	}
	return 0, fmt.Errorf("algebra: unknown aggregate function %q", name)
}

func buildBinOp(op parser.Operator) (BinOp, error) {
	switch op {
	case parser.OpOr:
		return OpOr, nil
	case parser.OpAnd:
		return OpAnd, nil
	case parser.OpEqual:
		return OpEqual, nil
	case parser.OpNotEqual:
		return OpNotEqual, nil
	case parser.OpLessThan:
		return OpLess, nil
	case parser.OpLessThanOrEqual:
		return OpLessEqual, nil
	case parser.OpGreaterThan:
		return OpGreater, nil
	case parser.OpGreaterThanOrEqual:
		return OpGreaterEqual, nil
	case parser.OpAdd:
		return OpAdd, nil
	case parser.OpSubtract:
		return OpSubtract, nil
	case parser.OpMultiply:
		return OpMultiply, nil
	case parser.OpDivide:
		return OpDivide, nil
	}
	return 0, fmt.Errorf("algebra: operator %v is not a binary operator", op)
}

func buildUnOp(op parser.Operator) (UnOp, error) {
	switch op {
	case parser.OpNot:
		return OpNot, nil
	case parser.OpUnaryPlus:
		return OpUnaryPlus, nil
	case parser.OpUnaryMinus:
		return OpUnaryMinus, nil
	}
	return 0, fmt.Errorf("algebra: operator %v is not a unary operator", op)
}
