package translate

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

func testTranslator() *Translator {
	schema := relstore.NewSpaceSchema("rq", "demo")
	return NewTranslator(schema, zap.NewNop(), 10)
}

func testScope() *Scope {
	return NewScope(relstore.NewAliasGenerator(""))
}

func iriTerm(iri string) algebra.Term {
	return algebra.Term{Value: rdf.NewNamedNode(iri)}
}

func varOf(name string) algebra.Var {
	return algebra.Var{Name: name}
}

// BGP + Join: two triple patterns sharing ?s, joined on that variable's
// term_uuid rather than re-joining the term table.
func TestTranslateBGP_SharedVariableJoinsOnUUID(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	bgp := &algebra.BGP{
		Triples: []algebra.TriplePattern{
			{Subject: varOf("s"), Predicate: iriTerm("http://example.org/name"), Object: varOf("name")},
			{Subject: varOf("s"), Predicate: iriTerm("http://example.org/age"), Object: varOf("age")},
		},
	}

	rel, err := tr.Translate(bgp, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if rel.From == "" {
		t.Fatal("expected a non-empty FROM source")
	}
	if len(rel.Joins) != 4 {
		t.Fatalf("expected four JOINs (three term-table joins and the second quad row), got %d: %v", len(rel.Joins), rel.Joins)
	}
	if _, ok := rel.Columns[varOf("s")]; !ok {
		t.Error("expected ?s to be bound")
	}
	if _, ok := rel.Columns[varOf("name")]; !ok {
		t.Error("expected ?name to be bound")
	}
	if _, ok := rel.Columns[varOf("age")]; !ok {
		t.Error("expected ?age to be bound")
	}
	// the second triple's subject must reuse ?s's already-bound column
	// instead of opening a fresh term join for it.
	sRef := rel.Columns[varOf("s")]
	found := false
	for _, w := range rel.Where {
		if strings.Contains(w, sRef.UUID()) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a WHERE condition reusing %s, got %v", sRef.UUID(), rel.Where)
	}
}

func TestTranslateJoin_MergesTwoBGPs(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	left := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("a"), Predicate: iriTerm("http://example.org/p1"), Object: varOf("b")},
	}}
	right := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("b"), Predicate: iriTerm("http://example.org/p2"), Object: varOf("c")},
	}}
	join := &algebra.Join{Left: left, Right: right}

	rel, err := tr.Translate(join, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	for _, v := range []algebra.Var{varOf("a"), varOf("b"), varOf("c")} {
		if _, ok := rel.Columns[v]; !ok {
			t.Errorf("expected %s to be bound after join", v.Name)
		}
	}
}

// OPTIONAL: a LeftJoin's required side must always project, and the
// optional side's columns must come from a LEFT JOIN LATERAL, not an inner
// join, so a non-matching required row still survives.
func TestTranslateLeftJoin_OptionalSideIsLateralLeftJoin(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	required := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("s"), Predicate: iriTerm("http://example.org/name"), Object: varOf("name")},
	}}
	optional := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("s"), Predicate: iriTerm("http://example.org/email"), Object: varOf("email")},
	}}
	lj := &algebra.LeftJoin{Left: required, Right: optional}

	rel, err := tr.Translate(lj, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if _, ok := rel.Columns[varOf("name")]; !ok {
		t.Error("expected required ?name to be bound")
	}
	if _, ok := rel.Columns[varOf("email")]; !ok {
		t.Error("expected optional ?email to be bound (possibly to NULL at runtime)")
	}
	joined := strings.Join(rel.Joins, " | ")
	if !strings.Contains(joined, "LEFT JOIN LATERAL") {
		t.Errorf("expected a LEFT JOIN LATERAL for the optional branch, got %v", rel.Joins)
	}
}

// UNION: both branches must project the full variable set, with NULL
// padding on whichever branch doesn't bind a given variable.
func TestTranslateUnion_PadsMissingVariablesWithNull(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	left := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("s"), Predicate: iriTerm("http://example.org/name"), Object: varOf("v")},
	}}
	right := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("s"), Predicate: iriTerm("http://example.org/nick"), Object: varOf("v")},
	}}
	u := &algebra.Union{Left: left, Right: right}

	rel, err := tr.Translate(u, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(rel.From, "UNION ALL") {
		t.Errorf("expected a UNION ALL derived table, got %s", rel.From)
	}
	for _, v := range []algebra.Var{varOf("s"), varOf("v")} {
		if _, ok := rel.Columns[v]; !ok {
			t.Errorf("expected %s to be bound in the merged union relation", v.Name)
		}
	}
}

// Property paths: a PathTriple with a OneOrMorePath must compile to a
// recursive CTE whose cycle guard is the visited-array condition, not a
// bare depth check.
func TestTranslatePathTriple_OneOrMoreUsesVisitedArrayGuard(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	pt := &algebra.PathTriple{
		Subject: iriTerm("http://example.org/a"),
		Path:    algebra.OneOrMorePath{Path: algebra.PredicatePath{IRI: rdf.NewNamedNode("http://example.org/p")}},
		Object:  varOf("y"),
	}

	rel, err := tr.Translate(pt, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(rel.From, "WITH RECURSIVE") {
		t.Fatalf("expected a recursive CTE in FROM, got %s", rel.From)
	}
	if !strings.Contains(rel.From, "ARRAY[") {
		t.Errorf("expected the closure CTE to seed a visited array, got %s", rel.From)
	}
	if !strings.Contains(rel.From, "NOT (s.end_uuid = ANY(r.visited))") {
		t.Errorf("expected the recursive step to guard against revisiting a node, got %s", rel.From)
	}
	if _, ok := rel.Columns[varOf("y")]; !ok {
		t.Error("expected ?y to be bound from the path's end_uuid column")
	}
}

// ASK + EXISTS: CompileAsk must wrap the pattern in EXISTS(...), and a
// Filter{Exists{...}} inside the pattern must correlate back to the outer
// scope's bindings rather than re-matching independently.
func TestCompileAsk_WrapsPatternInExists(t *testing.T) {
	tr := testTranslator()

	q := &algebra.Query{
		Form: algebra.FormAsk,
		Pattern: &algebra.Slice{
			Limit: 1,
			Pattern: &algebra.BGP{Triples: []algebra.TriplePattern{
				{Subject: iriTerm("http://example.org/a"), Predicate: iriTerm("http://example.org/p"), Object: varOf("o")},
			}},
		},
	}

	sql, err := tr.CompileAsk(q)
	if err != nil {
		t.Fatalf("CompileAsk: %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT EXISTS (SELECT 1 FROM") {
		t.Errorf("expected ASK to compile to a SELECT EXISTS wrapper, got %s", sql)
	}
}

func TestTranslateFilter_ExistsCorrelatesToOuterBinding(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	outer := &algebra.BGP{Triples: []algebra.TriplePattern{
		{Subject: varOf("s"), Predicate: iriTerm("http://example.org/name"), Object: varOf("name")},
	}}
	innerExists := algebra.Exists{
		Pattern: &algebra.BGP{Triples: []algebra.TriplePattern{
			{Subject: varOf("s"), Predicate: iriTerm("http://example.org/knows"), Object: varOf("friend")},
		}},
	}
	filter := &algebra.Filter{Pattern: outer, Conditions: []algebra.Expr{innerExists}}

	rel, err := tr.Translate(filter, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	joined := strings.Join(rel.Where, " AND ")
	if !strings.Contains(joined, "EXISTS (") {
		t.Errorf("expected a WHERE condition containing EXISTS(...), got %v", rel.Where)
	}
	// the inner ?s must correlate back to the outer ?s's term_uuid join,
	// not introduce an unrelated fresh one.
	sRef, ok := rel.Columns[varOf("s")]
	if !ok {
		t.Fatal("expected ?s to remain bound on the outer relation")
	}
	if !strings.Contains(joined, sRef.Text()) {
		t.Errorf("expected the EXISTS correlation to reference the outer ?s column %s, got %v", sRef.Text(), rel.Where)
	}
}

func TestTranslateBGP_EmptyPatternMatchesSingleSolution(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	rel, err := tr.Translate(&algebra.BGP{}, scope, nil)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if !strings.Contains(rel.From, "SELECT 1") {
		t.Errorf("expected the empty BGP to compile to a single-row relation, got %s", rel.From)
	}
}
