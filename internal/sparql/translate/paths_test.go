package translate

import (
	"strings"
	"testing"

	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

func predPath(iri string) algebra.PredicatePath {
	return algebra.PredicatePath{IRI: rdf.NewNamedNode(iri)}
}

// closurePathSQL's recursive step must guard on the visited-node array, not
// a bare depth counter: a cyclic path relation (a->b->c->d->a) queried with
// :p+ from a must stop extending a row the moment it would revisit a node
// already in that row's own path, rather than only after maxPathDepth hops.
// Without the array guard, "a -> b -> c -> d -> a" under :p+ from a wrongly
// reaches a again at depth 4 before the depth cap trims it; with the guard
// the recursive step's WHERE clause rejects that extension outright.
func TestClosurePathSQL_OneOrMoreGuardsAgainstRevisitingVisitedNode(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	sql, err := tr.closurePathSQL(predPath("http://example.org/p"), scope, nil, false)
	if err != nil {
		t.Fatalf("closurePathSQL: %v", err)
	}
	if !strings.Contains(sql, "WITH RECURSIVE") {
		t.Fatalf("expected a recursive CTE, got %s", sql)
	}
	if !strings.Contains(sql, "ARRAY[start_uuid, end_uuid] AS visited") {
		t.Errorf("expected the seed row to start its own visited array, got %s", sql)
	}
	if !strings.Contains(sql, "r.visited || s.end_uuid") {
		t.Errorf("expected each recursive step to extend the visited array, got %s", sql)
	}
	if !strings.Contains(sql, "NOT (s.end_uuid = ANY(r.visited))") {
		t.Errorf("expected the recursive step to reject revisiting a node already in visited, got %s", sql)
	}
	// the depth cap must still be present as a backstop alongside the array
	// guard, not replaced by it.
	if !strings.Contains(sql, "r.depth <") {
		t.Errorf("expected the hop-count backstop to remain, got %s", sql)
	}
}

func TestClosurePathSQL_ZeroOrMoreSeedsReflexivePairs(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	sql, err := tr.closurePathSQL(predPath("http://example.org/p"), scope, nil, true)
	if err != nil {
		t.Fatalf("closurePathSQL: %v", err)
	}
	if !strings.Contains(sql, "ARRAY[n] AS visited") {
		t.Errorf("expected the reflexive seed to start a single-node visited array, got %s", sql)
	}
	if !strings.Contains(sql, "0 AS depth") {
		t.Errorf("expected the reflexive seed to start at depth 0, got %s", sql)
	}
}

func TestClosurePathSQL_FinalSelectDeduplicatesViaDistinct(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	sql, err := tr.closurePathSQL(predPath("http://example.org/p"), scope, nil, false)
	if err != nil {
		t.Fatalf("closurePathSQL: %v", err)
	}
	if !strings.Contains(sql, "SELECT DISTINCT start_uuid, end_uuid FROM") {
		t.Errorf("expected the outer query to dedup via SELECT DISTINCT, got %s", sql)
	}
	// UNION ALL, not UNION, between base and recursive terms: the outer
	// DISTINCT already dedups the two (start_uuid, end_uuid) columns, so a
	// plain UNION here would only pay for comparing the unused visited
	// array on every row without changing the result.
	if !strings.Contains(sql, ") UNION ALL (") {
		t.Errorf("expected the CTE to combine its base and recursive terms with UNION ALL, got %s", sql)
	}
}

// A property path nested in a negated set or sequence must still route
// through the same cycle-safe closure when it is the inner path of a
// OneOrMorePath/ZeroOrMorePath wrapper.
func TestPathReachability_OneOrMoreOfSequenceUsesClosure(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	path := algebra.OneOrMorePath{Path: algebra.SequencePath{
		First:  predPath("http://example.org/p1"),
		Second: predPath("http://example.org/p2"),
	}}
	sql, err := tr.pathReachability(path, scope, nil)
	if err != nil {
		t.Fatalf("pathReachability: %v", err)
	}
	if !strings.Contains(sql, "WITH RECURSIVE") {
		t.Errorf("expected the sequence closure to compile through closurePathSQL, got %s", sql)
	}
	if !strings.Contains(sql, "NOT (s.end_uuid = ANY(r.visited))") {
		t.Errorf("expected the visited-array guard on a compound inner path too, got %s", sql)
	}
}
