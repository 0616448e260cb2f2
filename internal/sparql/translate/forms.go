package translate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// CompiledQuery is one query's self-contained SQL text plus the column plan
// relstore.Materializer needs to turn its result rows back into bindings,
// the translator's equivalent of the teacher's QueryPlan paired with its
// output row shape.
type CompiledQuery struct {
	SQL  string
	Plan []relstore.ColumnPlan
}

// CompileSelect compiles a SELECT query's algebra tree into one SQL
// statement, projecting in the query's own order when one is explicit
// (SELECT ?a ?b) or in a deterministic fallback order for SELECT *.
func (t *Translator) CompileSelect(q *algebra.Query) (*CompiledQuery, error) {
	scope := NewScope(relstore.NewAliasGenerator(""))
	rel, err := t.Translate(q.Pattern, scope, nil)
	if err != nil {
		return nil, err
	}
	vars := projectedVars(q.Pattern)
	if vars == nil {
		vars = sortedVars(varSetOf(rel.Columns))
	}
	return t.finalize(rel, vars, scope.Aliases())
}

// CompileAsk compiles an ASK query down to a single boolean-valued row. The
// builder always wraps an ASK's pattern in a Slice{Limit:1}; that Slice is
// unwrapped here rather than translated, since a bare EXISTS subquery does
// the LIMIT 1 check without needing a derived-table round trip.
func (t *Translator) CompileAsk(q *algebra.Query) (string, error) {
	pattern := q.Pattern
	if slice, ok := pattern.(*algebra.Slice); ok {
		pattern = slice.Pattern
	}
	scope := NewScope(relstore.NewAliasGenerator(""))
	rel, err := t.Translate(pattern, scope, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT EXISTS (SELECT 1 %s) AS result", relBody(rel)), nil
}

// CompileConstruct compiles a CONSTRUCT query's WHERE clause into a SELECT
// projecting exactly the variables its template references. The engine
// runs this, then calls MaterializeConstruct once per result row to expand
// the template.
func (t *Translator) CompileConstruct(q *algebra.Query) (*CompiledQuery, error) {
	scope := NewScope(relstore.NewAliasGenerator(""))
	rel, err := t.Translate(q.Pattern, scope, nil)
	if err != nil {
		return nil, err
	}
	want := map[algebra.Var]bool{}
	for _, tp := range q.Template {
		collectPatternTermVars(tp.Subject, want)
		collectPatternTermVars(tp.Predicate, want)
		collectPatternTermVars(tp.Object, want)
	}
	return t.finalize(rel, sortedVars(want), scope.Aliases())
}

// MaterializeConstruct substitutes one solution row's bindings into
// template, skipping any triple whose subject, predicate, or object
// resolves to an unbound variable — SPARQL's CONSTRUCT silently drops those
// rather than emitting a partial triple.
func MaterializeConstruct(template []algebra.TriplePattern, b *relstore.Binding) []*rdf.Triple {
	var out []*rdf.Triple
	for _, tp := range template {
		s, ok := resolveTemplateTerm(tp.Subject, b)
		if !ok {
			continue
		}
		p, ok := resolveTemplateTerm(tp.Predicate, b)
		if !ok {
			continue
		}
		o, ok := resolveTemplateTerm(tp.Object, b)
		if !ok {
			continue
		}
		out = append(out, rdf.NewTriple(s, p, o))
	}
	return out
}

func resolveTemplateTerm(pt algebra.PatternTerm, b *relstore.Binding) (rdf.Term, bool) {
	switch v := pt.(type) {
	case algebra.Term:
		return v.Value, true
	case algebra.Var:
		return b.Get(v.Name)
	}
	return nil, false
}

// CompileDescribeResources compiles a DESCRIBE query's WHERE clause into a
// SELECT over exactly its DESCRIBE variables, resolving them to concrete
// resources before the engine runs one concise-bounded-description query
// per resolved resource (DescribeCBDSQL). A DESCRIBE naming only fixed
// IRIs has no WHERE clause to compile — the engine reads those straight off
// Query.DescribeVars and skips this step entirely.
func (t *Translator) CompileDescribeResources(q *algebra.Query) (*CompiledQuery, error) {
	if q.Pattern == nil {
		return nil, errs.Cardinality("DESCRIBE has no WHERE clause to resolve its variables against")
	}
	scope := NewScope(relstore.NewAliasGenerator(""))
	rel, err := t.Translate(q.Pattern, scope, nil)
	if err != nil {
		return nil, err
	}
	want := map[algebra.Var]bool{}
	for _, pt := range q.DescribeVars {
		collectPatternTermVars(pt, want)
	}
	vars := sortedVars(want)
	if len(vars) == 0 {
		return nil, errs.Cardinality("DESCRIBE with a WHERE clause must reference at least one variable")
	}
	return t.finalize(rel, vars, scope.Aliases())
}

// DescribeCBDSQL builds the concise bounded description for one resolved
// resource: every quad in which it appears as subject or object, across
// every graph. SPEC_FULL.md leaves the exact CBD closure unspecified beyond
// this one-hop form — a deeper closure (following blank nodes recursively)
// is not attempted.
func (t *Translator) DescribeCBDSQL(resource uuid.UUID) string {
	quad := relstore.QuoteIdent(t.schema.QuadTable)
	cols := strings.Join([]string{relstore.ColSubjectUUID, relstore.ColPredicateUUID, relstore.ColObjectUUID, relstore.ColContextUUID}, ", ")
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = '%s'::uuid UNION ALL SELECT %s FROM %s WHERE %s = '%s'::uuid",
		cols, quad, relstore.ColSubjectUUID, resource.String(),
		cols, quad, relstore.ColObjectUUID, resource.String(),
	)
}

// DescribeCBDPlan is the ColumnPlan for DescribeCBDSQL's four term-identity
// columns (subject, predicate, object, graph), every one resolved through
// the reverse term cache.
func DescribeCBDPlan() []relstore.ColumnPlan {
	return []relstore.ColumnPlan{
		{Variable: "s", IsTermID: true, Width: 1},
		{Variable: "p", IsTermID: true, Width: 1},
		{Variable: "o", IsTermID: true, Width: 1},
		{Variable: "g", IsTermID: true, Width: 1},
	}
}

// CompileProjection renders an already-translated Relation's vars as a
// top-level SELECT, the same way CompileSelect/CompileConstruct do for a
// full query — exported for the update executor, which evaluates a
// DELETE/INSERT/WHERE clause's WHERE the same way a query evaluates its
// pattern but has no algebra.Query of its own to hand CompileSelect.
func (t *Translator) CompileProjection(rel *Relation, vars []algebra.Var, ag *relstore.AliasGenerator) (*CompiledQuery, error) {
	return t.finalize(rel, vars, ag)
}

// finalize renders vars, in order, as the outermost SELECT list over rel: a
// single term_uuid column for a term-identity binding, or the full
// (text, type, lang, datatype) tuple for a Computed one. A projected
// variable the pattern never actually bound is simply omitted — every row's
// value for it is unbound, which the caller already gets for free from a
// ColumnPlan it never sees.
func (t *Translator) finalize(rel *Relation, vars []algebra.Var, ag *relstore.AliasGenerator) (*CompiledQuery, error) {
	var selectList []string
	var plan []relstore.ColumnPlan
	for i, v := range vars {
		ref, ok := rel.Columns[v]
		if !ok {
			continue
		}
		if ref.Computed {
			p := freshProjCols(ag, fmt.Sprintf("out%d", i))
			selectList = append(selectList,
				ref.Text()+" AS "+p.textCol,
				ref.Kind()+" AS "+p.typeCol,
				ref.Lang()+" AS "+p.langCol,
				ref.Datatype()+" AS "+p.datatypeCol,
			)
			plan = append(plan, relstore.ColumnPlan{Variable: v.Name, Width: 4, Literal: relstore.TermFromTuple})
			continue
		}
		col := ag.Column(fmt.Sprintf("out%d_u", i))
		selectList = append(selectList, ref.UUID()+" AS "+col)
		plan = append(plan, relstore.ColumnPlan{Variable: v.Name, IsTermID: true, Width: 1})
	}
	if len(selectList) == 0 {
		selectList = []string{"1"}
	}
	sql := "SELECT " + strings.Join(selectList, ", ") + " " + relBody(rel)
	return &CompiledQuery{SQL: sql, Plan: plan}, nil
}

// projectedVars walks down through the solution-modifier wrappers a query's
// top Node can be built with (Slice/Distinct/Reduced/OrderBy never change
// which variables are visible) to find the innermost explicit Project, or
// returns nil if the query has no Project node at all (a bare SELECT *).
func projectedVars(node algebra.Node) []algebra.Var {
	switch n := node.(type) {
	case *algebra.Project:
		return n.Vars
	case *algebra.Slice:
		return projectedVars(n.Pattern)
	case *algebra.Distinct:
		return projectedVars(n.Pattern)
	case *algebra.Reduced:
		return projectedVars(n.Pattern)
	case *algebra.OrderBy:
		return projectedVars(n.Pattern)
	}
	return nil
}

func varSetOf(cols map[algebra.Var]ColumnRef) map[algebra.Var]bool {
	out := make(map[algebra.Var]bool, len(cols))
	for v := range cols {
		out[v] = true
	}
	return out
}
