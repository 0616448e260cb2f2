package engine

import (
	"testing"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

func binding(name string, t rdf.Term) *relstore.Binding {
	b := relstore.NewBinding()
	b.Set(name, t)
	return b
}

func TestApplySolutionModifiers_DedupsOnDistinct(t *testing.T) {
	alice := rdf.NewNamedNode("http://example.org/alice")
	sol := relstore.Solution{
		binding("person", alice),
		binding("person", alice),
		binding("person", rdf.NewNamedNode("http://example.org/bob")),
	}

	out := applySolutionModifiers(&algebra.Query{Distinct: true}, sol)
	if len(out) != 2 {
		t.Fatalf("expected 2 distinct bindings, got %d", len(out))
	}
}

func TestApplySolutionModifiers_PassesThroughWithoutDistinct(t *testing.T) {
	alice := rdf.NewNamedNode("http://example.org/alice")
	sol := relstore.Solution{
		binding("person", alice),
		binding("person", alice),
	}
	out := applySolutionModifiers(&algebra.Query{Distinct: false}, sol)
	if len(out) != 2 {
		t.Fatalf("expected pass-through of %d rows, got %d", len(sol), len(out))
	}
}

func TestDedupTriples(t *testing.T) {
	s := rdf.NewNamedNode("http://example.org/s")
	p := rdf.NewNamedNode("http://example.org/p")
	o := rdf.NewLiteral("o")
	triples := []*rdf.Triple{
		rdf.NewTriple(s, p, o),
		rdf.NewTriple(s, p, o),
		rdf.NewTriple(s, p, rdf.NewLiteral("other")),
	}
	out := dedupTriples(triples)
	if len(out) != 2 {
		t.Fatalf("expected 2 distinct triples, got %d", len(out))
	}
}
