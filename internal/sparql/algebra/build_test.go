package algebra

import (
	"testing"

	"github.com/relquad/sparqlrel/internal/sparql/parser"
)

func mustParse(t *testing.T, query string) *parser.Query {
	t.Helper()
	p, err := parser.NewParser(query).Parse()
	if err != nil {
		t.Fatalf("parsing %q: %v", query, err)
	}
	return p
}

func TestBuild_SelectDistinct(t *testing.T) {
	q := mustParse(t, `SELECT DISTINCT ?s WHERE { ?s <http://example.org/p> ?o }`)
	built, err := Build(q)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Form != FormSelect {
		t.Errorf("expected FormSelect, got %v", built.Form)
	}
	if !built.Distinct {
		t.Error("expected Distinct to be set")
	}
	if built.Pattern == nil {
		t.Error("expected a non-nil WHERE pattern")
	}
}

func TestBuild_Ask(t *testing.T) {
	q := mustParse(t, `ASK { ?s ?p ?o }`)
	built, err := Build(q)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Form != FormAsk {
		t.Errorf("expected FormAsk, got %v", built.Form)
	}
}

func TestBuild_ConstructHasTemplate(t *testing.T) {
	q := mustParse(t, `CONSTRUCT { ?s <http://example.org/knows> ?o } WHERE { ?s <http://example.org/p> ?o }`)
	built, err := Build(q)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Form != FormConstruct {
		t.Errorf("expected FormConstruct, got %v", built.Form)
	}
	if len(built.Template) != 1 {
		t.Fatalf("expected 1 template triple, got %d", len(built.Template))
	}
}

func TestBuild_DescribeWithFixedResource(t *testing.T) {
	q := mustParse(t, `DESCRIBE <http://example.org/alice>`)
	built, err := Build(q)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if built.Form != FormDescribe {
		t.Errorf("expected FormDescribe, got %v", built.Form)
	}
	if len(built.DescribeVars) != 1 {
		t.Fatalf("expected 1 describe target, got %d", len(built.DescribeVars))
	}
	if built.Pattern != nil {
		t.Error("expected no WHERE pattern for a fixed-resource DESCRIBE")
	}
}

func TestBuildWherePattern_JoinsTriplePatterns(t *testing.T) {
	q := mustParse(t, `SELECT ?s WHERE { ?s <http://example.org/p1> ?o1 . ?s <http://example.org/p2> ?o2 }`)
	node, scope, err := BuildWherePattern(q.Select.Where)
	if err != nil {
		t.Fatalf("BuildWherePattern: %v", err)
	}
	if node == nil {
		t.Fatal("expected a non-nil pattern node")
	}
	if scope < 0 {
		t.Errorf("expected a valid scope id, got %d", scope)
	}
}
