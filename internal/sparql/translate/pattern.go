package translate

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Relation is one node's compiled output: a FROM source plus the joins and
// conditions still needed to attach it to a parent relation, and the
// variable bindings it exposes (SPEC_FULL.md §4.6). Nodes compose
// Relations the way the teacher's optimizer composed QueryPlan fragments,
// except the fragment here is literal SQL text rather than an iterator
// plan.
type Relation struct {
	From    string
	Joins   []string
	Where   []string
	Columns map[algebra.Var]ColumnRef
}

func newRelation() *Relation {
	return &Relation{Columns: map[algebra.Var]ColumnRef{}}
}

// Translator compiles an algebra.Node tree into a Relation against one
// logical space's schema, the way executor.createIterator compiled a
// optimizer.QueryPlan into a store.BindingIterator.
type Translator struct {
	schema       *relstore.SpaceSchema
	log          *zap.Logger
	compiler     *Compiler
	maxPathDepth int
}

// NewTranslator creates a Translator against schema. maxPathDepth caps
// property-path recursive CTEs (SPEC_FULL.md §4.6); callers pass the
// configured recursion limit.
func NewTranslator(schema *relstore.SpaceSchema, log *zap.Logger, maxPathDepth int) *Translator {
	t := &Translator{schema: schema, log: log, maxPathDepth: maxPathDepth}
	t.compiler = NewCompiler(t)
	return t
}

// Translate dispatches on node's concrete type, threading graph (the active
// default/named graph context; nil means the default graph) down through
// every recursive call. Each case is grounded on the corresponding
// algebra.Node doc comment.
func (t *Translator) Translate(node algebra.Node, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	switch n := node.(type) {
	case *algebra.BGP:
		return t.translateBGP(n, scope, graph)
	case *algebra.PathTriple:
		return t.translatePathTriple(n, scope, graph)
	case *algebra.Join:
		return t.translateJoin(n, scope, graph)
	case *algebra.LeftJoin:
		return t.translateLeftJoin(n, scope, graph)
	case *algebra.Union:
		return t.translateUnion(n, scope, graph)
	case *algebra.Graph:
		return t.translateGraph(n, scope)
	case *algebra.Filter:
		return t.translateFilter(n, scope, graph)
	case *algebra.Extend:
		return t.translateExtend(n, scope, graph)
	case *algebra.Minus:
		return t.translateMinus(n, scope, graph)
	case *algebra.Values:
		return t.translateValues(n, scope)
	case *algebra.Subquery:
		return t.translateSubquery(n, scope, graph)
	case *algebra.Slice:
		return t.translateSlice(n, scope, graph)
	case *algebra.Distinct:
		return t.translateDistinct(n, scope, graph)
	case *algebra.Reduced:
		return t.translateReduced(n, scope, graph)
	case *algebra.OrderBy:
		return t.translateOrderBy(n, scope, graph)
	case *algebra.Group:
		return t.translateGroup(n, scope, graph)
	case *algebra.Project:
		return t.translateProject(n, scope, graph)
	}
	return nil, errs.UnsupportedFeature(fmt.Sprintf("algebra node %T", node))
}

var roleHints = map[string]string{
	relstore.ColSubjectUUID:   "s",
	relstore.ColPredicateUUID: "p",
	relstore.ColObjectUUID:    "o",
	relstore.ColContextUUID:   "c",
}

// bindPosition constrains one triple position (quadAlias.roleCol) to term,
// reusing an already-bound variable's column via an equality condition
// instead of a fresh term-table join, and creating that join (and
// registering the binding in scope) the first time a variable is seen.
func (t *Translator) bindPosition(rel *Relation, scope *Scope, term algebra.PatternTerm, quadAlias, roleCol string, graphPosition bool) error {
	return t.bindUUIDExpr(rel, scope, term, quadAlias+"."+roleCol, roleHints[roleCol], graphPosition)
}

// bindUUIDExpr is bindPosition generalized to any SQL expression yielding a
// term_uuid, not just a quad table's own column — used directly by the
// property-path translator, whose path-reachability CTEs expose
// start_uuid/end_uuid columns on a derived alias rather than a physical
// rdf_quad row.
func (t *Translator) bindUUIDExpr(rel *Relation, scope *Scope, term algebra.PatternTerm, uuidExpr, roleHint string, graphPosition bool) error {
	switch v := term.(type) {
	case algebra.Term:
		u := rdf.TermUUID(v.Value)
		if graphPosition {
			u = rdf.GraphUUID(v.Value)
		}
		rel.Where = append(rel.Where, fmt.Sprintf("%s = '%s'::uuid", uuidExpr, u.String()))
		return nil
	case algebra.Var:
		if ref, ok := scope.Lookup(v); ok {
			rel.Where = append(rel.Where, fmt.Sprintf("%s = %s", uuidExpr, ref.UUID()))
			return nil
		}
		termAlias := scope.Aliases().TermJoin(roleHint)
		rel.Joins = append(rel.Joins, fmt.Sprintf(
			"JOIN %s AS %s ON %s = %s.%s",
			relstore.QuoteIdent(t.schema.TermTable), termAlias,
			uuidExpr, termAlias, relstore.ColTermUUID,
		))
		ref := termColumnRef(termAlias)
		scope.Bind(v, ref)
		rel.Columns[v] = ref
		return nil
	}
	return errs.UnsupportedFeature("pattern term")
}

// bindContext constrains a triple's context_uuid to graph, defaulting to
// the reserved default-graph identifier when graph is nil (SPEC_FULL.md
// §9(c): the default graph is its own named graph, not a union of all
// named graphs).
func (t *Translator) bindContext(rel *Relation, scope *Scope, graph algebra.PatternTerm, quadAlias string) error {
	if graph == nil {
		rel.Where = append(rel.Where, fmt.Sprintf("%s.%s = '%s'::uuid", quadAlias, relstore.ColContextUUID, relstore.DefaultGraphUUID().String()))
		return nil
	}
	return t.bindPosition(rel, scope, graph, quadAlias, relstore.ColContextUUID, true)
}

func (t *Translator) translateBGP(bgp *algebra.BGP, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	rel := newRelation()
	for _, tp := range bgp.Triples {
		quadAlias := scope.Aliases().Quad()
		quadRef := relstore.QuoteIdent(t.schema.QuadTable) + " AS " + quadAlias
		if rel.From == "" {
			rel.From = quadRef
		} else {
			rel.Joins = append(rel.Joins, "JOIN "+quadRef+" ON TRUE")
		}
		if err := t.bindPosition(rel, scope, tp.Subject, quadAlias, relstore.ColSubjectUUID, false); err != nil {
			return nil, err
		}
		if err := t.bindPosition(rel, scope, tp.Predicate, quadAlias, relstore.ColPredicateUUID, false); err != nil {
			return nil, err
		}
		if err := t.bindPosition(rel, scope, tp.Object, quadAlias, relstore.ColObjectUUID, false); err != nil {
			return nil, err
		}
		if err := t.bindContext(rel, scope, graph, quadAlias); err != nil {
			return nil, err
		}
	}
	if rel.From == "" {
		// An empty BGP (the {} pattern) matches the single empty solution.
		rel.From = "(SELECT 1) AS " + scope.Aliases().Derived("empty_")
	}
	return rel, nil
}

func mergeRelations(left, right *Relation) *Relation {
	merged := &Relation{
		From:    left.From,
		Joins:   append(append([]string{}, left.Joins...), "JOIN "+right.From+" ON TRUE"),
		Where:   append(append([]string{}, left.Where...), right.Where...),
		Columns: make(map[algebra.Var]ColumnRef, len(left.Columns)+len(right.Columns)),
	}
	merged.Joins = append(merged.Joins, right.Joins...)
	for v, ref := range left.Columns {
		merged.Columns[v] = ref
	}
	for v, ref := range right.Columns {
		merged.Columns[v] = ref
	}
	return merged
}

func (t *Translator) translateJoin(j *algebra.Join, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	left, err := t.Translate(j.Left, scope, graph)
	if err != nil {
		return nil, err
	}
	right, err := t.Translate(j.Right, scope, graph)
	if err != nil {
		return nil, err
	}
	return mergeRelations(left, right), nil
}

// selectListFor builds "<sql expr> AS <col>" entries projecting every
// variable in cols to the synthetic column names in names.
func selectListFor(cols map[algebra.Var]ColumnRef, names map[algebra.Var]projCols) []string {
	list := make([]string, 0, len(cols)*5)
	for v, ref := range cols {
		p := names[v]
		list = append(list,
			ref.UUID()+" AS "+p.uuidCol,
			ref.Text()+" AS "+p.textCol,
			ref.Kind()+" AS "+p.typeCol,
			ref.Lang()+" AS "+p.langCol,
			ref.Datatype()+" AS "+p.datatypeCol,
		)
	}
	return list
}

func relBody(rel *Relation) string {
	body := "FROM " + rel.From
	for _, j := range rel.Joins {
		body += " " + j
	}
	if len(rel.Where) > 0 {
		body += " WHERE " + strings.Join(rel.Where, " AND ")
	}
	return body
}

func (t *Translator) translateLeftJoin(lj *algebra.LeftJoin, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	left, err := t.Translate(lj.Left, scope, graph)
	if err != nil {
		return nil, err
	}
	rightScope := scope.Child(scope.Aliases().Derived("opt_") + "_")
	right, err := t.Translate(lj.Right, rightScope, graph)
	if err != nil {
		return nil, err
	}
	cond := "TRUE"
	if lj.Filter != nil {
		cond, err = t.compiler.CompileCondition(lj.Filter, rightScope)
		if err != nil {
			return nil, err
		}
	}

	names := map[algebra.Var]projCols{}
	for v := range right.Columns {
		names[v] = freshProjCols(scope.Aliases(), "opt")
	}
	body := "SELECT " + strings.Join(selectListFor(right.Columns, names), ", ") + " " + relBody(right)
	where := cond
	if where != "TRUE" {
		if len(right.Where) > 0 {
			body += " AND " + cond
		} else {
			body += " WHERE " + cond
		}
	}
	alias := scope.Aliases().Derived("lat_")

	merged := &Relation{
		From:    left.From,
		Joins:   append(append([]string{}, left.Joins...), fmt.Sprintf("LEFT JOIN LATERAL (%s) AS %s ON TRUE", body, alias)),
		Where:   left.Where,
		Columns: make(map[algebra.Var]ColumnRef, len(left.Columns)+len(names)),
	}
	for v, ref := range left.Columns {
		merged.Columns[v] = ref
	}
	for v, p := range names {
		ref := ColumnRef{Alias: alias, UUIDCol: p.uuidCol, TextCol: p.textCol, TypeCol: p.typeCol, LangCol: p.langCol, DatatypeCol: p.datatypeCol}
		merged.Columns[v] = ref
		scope.Bind(v, ref)
	}
	return merged, nil
}

func sortedVars(vs map[algebra.Var]bool) []algebra.Var {
	out := make([]algebra.Var, 0, len(vs))
	for v := range vs {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

func projectUnionBranch(rel *Relation, vars []algebra.Var, names map[algebra.Var]projCols) string {
	list := make([]string, 0, len(vars)*5)
	for _, v := range vars {
		p := names[v]
		if ref, ok := rel.Columns[v]; ok {
			list = append(list,
				ref.UUID()+" AS "+p.uuidCol,
				ref.Text()+" AS "+p.textCol,
				ref.Kind()+" AS "+p.typeCol,
				ref.Lang()+" AS "+p.langCol,
				ref.Datatype()+" AS "+p.datatypeCol,
			)
		} else {
			list = append(list,
				"NULL::uuid AS "+p.uuidCol,
				"NULL::text AS "+p.textCol,
				"NULL::char(1) AS "+p.typeCol,
				"NULL::text AS "+p.langCol,
				"NULL::text AS "+p.datatypeCol,
			)
		}
	}
	return "SELECT " + strings.Join(list, ", ") + " " + relBody(rel)
}

func (t *Translator) translateUnion(u *algebra.Union, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	leftScope := scope.Child(scope.Aliases().Derived("un0_") + "_")
	rightScope := scope.Child(scope.Aliases().Derived("un1_") + "_")
	left, err := t.Translate(u.Left, leftScope, graph)
	if err != nil {
		return nil, err
	}
	right, err := t.Translate(u.Right, rightScope, graph)
	if err != nil {
		return nil, err
	}

	allVarSet := map[algebra.Var]bool{}
	for v := range left.Columns {
		allVarSet[v] = true
	}
	for v := range right.Columns {
		allVarSet[v] = true
	}
	allVars := sortedVars(allVarSet)

	names := map[algebra.Var]projCols{}
	for _, v := range allVars {
		names[v] = freshProjCols(scope.Aliases(), "un")
	}

	leftSelect := projectUnionBranch(left, allVars, names)
	rightSelect := projectUnionBranch(right, allVars, names)
	alias := scope.Aliases().Derived("union_")

	merged := &Relation{From: fmt.Sprintf("(%s UNION ALL %s) AS %s", leftSelect, rightSelect, alias), Columns: map[algebra.Var]ColumnRef{}}
	for _, v := range allVars {
		p := names[v]
		ref := ColumnRef{Alias: alias, UUIDCol: p.uuidCol, TextCol: p.textCol, TypeCol: p.typeCol, LangCol: p.langCol, DatatypeCol: p.datatypeCol}
		merged.Columns[v] = ref
		scope.Bind(v, ref)
	}
	return merged, nil
}

func (t *Translator) translateGraph(g *algebra.Graph, scope *Scope) (*Relation, error) {
	return t.Translate(g.Pattern, scope, g.Name)
}

func (t *Translator) translateFilter(f *algebra.Filter, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	rel, err := t.Translate(f.Pattern, scope, graph)
	if err != nil {
		return nil, err
	}
	for _, cond := range f.Conditions {
		condSQL, err := t.compiler.CompileCondition(cond, scope)
		if err != nil {
			return nil, err
		}
		rel.Where = append(rel.Where, condSQL)
	}
	return rel, nil
}

func (t *Translator) translateExtend(e *algebra.Extend, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	rel, err := t.Translate(e.Pattern, scope, graph)
	if err != nil {
		return nil, err
	}
	val, err := t.compiler.Compile(e.Expr, scope)
	if err != nil {
		if typeErr, ok := err.(*errs.Error); ok && typeErr.Code() == errs.CodeType {
			val = CompiledExpr{Text: "NULL::text", Type: "NULL::char(1)", Lang: "NULL::text", Datatype: "NULL::text"}
		} else {
			return nil, err
		}
	}
	ref := ColumnRef{Alias: "", UUIDCol: "NULL::uuid", TextCol: val.Text, TypeCol: val.Type, LangCol: val.Lang, DatatypeCol: val.Datatype, Computed: true}
	scope.Bind(e.Variable, ref)
	rel.Columns[e.Variable] = ref
	return rel, nil
}

func (t *Translator) translateMinus(m *algebra.Minus, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	rel, err := t.Translate(m.Pattern, scope, graph)
	if err != nil {
		return nil, err
	}
	if !sharesVariable(m.Pattern, m.Subtrahend) {
		return rel, nil
	}
	subScope := scope.Child(scope.Aliases().Derived("min_") + "_")
	sub, err := t.Translate(m.Subtrahend, subScope, graph)
	if err != nil {
		return nil, err
	}
	rel.Where = append(rel.Where, "NOT EXISTS (SELECT 1 "+relBody(sub)+")")
	return rel, nil
}

func (t *Translator) translateValues(v *algebra.Values, scope *Scope) (*Relation, error) {
	names := map[algebra.Var]projCols{}
	colNames := make([]string, 0, len(v.Vars.Variables)*5)
	for _, variable := range v.Vars.Variables {
		p := freshProjCols(scope.Aliases(), "vals")
		names[variable] = p
		colNames = append(colNames, p.uuidCol, p.textCol, p.typeCol, p.langCol, p.datatypeCol)
	}
	alias := scope.Aliases().Values()

	rel := newRelation()
	if len(v.Vars.Rows) == 0 {
		cells := make([]string, 0, len(colNames))
		for range colNames {
			cells = append(cells, "NULL")
		}
		rel.From = fmt.Sprintf("(SELECT %s) AS %s(%s)", strings.Join(cells, ", "), alias, strings.Join(colNames, ", "))
		rel.Where = []string{"FALSE"}
	} else {
		rowExprs := make([]string, 0, len(v.Vars.Rows))
		for _, row := range v.Vars.Rows {
			cells := make([]string, 0, len(colNames))
			for _, term := range row {
				lit := litSQL(term)
				cells = append(cells, lit.UUID, lit.Text, lit.Type, lit.Lang, lit.Datatype)
			}
			rowExprs = append(rowExprs, "("+strings.Join(cells, ", ")+")")
		}
		rel.From = fmt.Sprintf("(VALUES %s) AS %s(%s)", strings.Join(rowExprs, ", "), alias, strings.Join(colNames, ", "))
	}

	for _, variable := range v.Vars.Variables {
		p := names[variable]
		ref := ColumnRef{Alias: alias, UUIDCol: p.uuidCol, TextCol: p.textCol, TypeCol: p.typeCol, LangCol: p.langCol, DatatypeCol: p.datatypeCol}
		rel.Columns[variable] = ref
		scope.Bind(variable, ref)
	}
	return rel, nil
}

// translateSubquery isolates a nested SELECT per SPARQL's subquery scoping
// (Subquery's own variable scope never leaks into the enclosing pattern
// except through its Project). The inner Query.Pattern already has its own
// Project/Distinct/OrderBy/Slice layered on by algebra.Build, so
// translating it through the ordinary dispatch already yields a fully
// solution-modified Relation; this just re-binds the result into the
// outer scope.
func (t *Translator) translateSubquery(sq *algebra.Subquery, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	innerScope := scope.Fresh(scope.Aliases().Derived("sub_") + "_")
	rel, err := t.Translate(sq.Query.Pattern, innerScope, graph)
	if err != nil {
		return nil, err
	}
	for v, ref := range rel.Columns {
		scope.Bind(v, ref)
	}
	return rel, nil
}

func (t *Translator) translatePathTriple(pt *algebra.PathTriple, scope *Scope, graph algebra.PatternTerm) (*Relation, error) {
	return t.translatePath(pt, scope, graph)
}
