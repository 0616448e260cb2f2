package relstore

import (
	"testing"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

func TestBindingDigest_OrderIndependent(t *testing.T) {
	a := NewBinding()
	a.Set("x", rdf.NewNamedNode("http://example.org/a"))
	a.Set("y", rdf.NewLiteral("hello"))

	b := NewBinding()
	b.Set("y", rdf.NewLiteral("hello"))
	b.Set("x", rdf.NewNamedNode("http://example.org/a"))

	if BindingDigest(a) != BindingDigest(b) {
		t.Error("BindingDigest should not depend on map iteration/insertion order")
	}
}

func TestBindingDigest_DistinguishesValues(t *testing.T) {
	a := NewBinding()
	a.Set("x", rdf.NewNamedNode("http://example.org/a"))

	b := NewBinding()
	b.Set("x", rdf.NewNamedNode("http://example.org/b"))

	if BindingDigest(a) == BindingDigest(b) {
		t.Error("BindingDigest should differ for differently-bound bindings")
	}
}

func TestBindingDigest_DistinguishesVariableNames(t *testing.T) {
	a := NewBinding()
	a.Set("x", rdf.NewLiteral("v"))

	b := NewBinding()
	b.Set("y", rdf.NewLiteral("v"))

	if BindingDigest(a) == BindingDigest(b) {
		t.Error("BindingDigest should differ when the bound variable name differs")
	}
}

func TestBinding_CompatibleAndMerge(t *testing.T) {
	a := NewBinding()
	a.Set("x", rdf.NewNamedNode("http://example.org/a"))

	b := NewBinding()
	b.Set("x", rdf.NewNamedNode("http://example.org/a"))
	b.Set("y", rdf.NewLiteral("1"))

	if !a.Compatible(b) {
		t.Fatal("bindings agreeing on shared variables should be compatible")
	}

	merged := a.Merge(b)
	if _, ok := merged.Get("y"); !ok {
		t.Error("merged binding should carry variables only bound on the other side")
	}

	c := NewBinding()
	c.Set("x", rdf.NewNamedNode("http://example.org/other"))
	if a.Compatible(c) {
		t.Error("bindings disagreeing on a shared variable should not be compatible")
	}
}

func TestSolution_Project(t *testing.T) {
	b := NewBinding()
	b.Set("x", rdf.NewNamedNode("http://example.org/a"))
	b.Set("y", rdf.NewLiteral("1"))
	sol := Solution{b}

	projected := sol.Project([]string{"x"})
	if len(projected) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(projected))
	}
	if _, ok := projected[0].Get("y"); ok {
		t.Error("projected binding should drop variables not named")
	}
	if _, ok := projected[0].Get("x"); !ok {
		t.Error("projected binding should keep named variables")
	}
}
