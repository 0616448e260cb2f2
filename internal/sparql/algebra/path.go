package algebra

import "github.com/relquad/sparqlrel/pkg/rdf"

// Path is a SPARQL 1.1 property path expression, evaluated between a
// PathTriple's Subject and Object.
type Path interface {
	path()
}

// PredicatePath is a single fixed IRI used as a path step (the base case
// every compound path bottoms out at).
type PredicatePath struct{ IRI rdf.Term }

func (PredicatePath) path() {}

// InversePath reverses Path's direction (^path).
type InversePath struct{ Path Path }

func (InversePath) path() {}

// SequencePath is path concatenation (a/b): traverse First from subject to
// an intermediate node, then Second from there to object.
type SequencePath struct{ First, Second Path }

func (SequencePath) path() {}

// AlternativePath is path disjunction (a|b): either Left or Right connects
// subject to object.
type AlternativePath struct{ Left, Right Path }

func (AlternativePath) path() {}

// ZeroOrMorePath is the reflexive-transitive closure (path*).
type ZeroOrMorePath struct{ Path Path }

func (ZeroOrMorePath) path() {}

// OneOrMorePath is the transitive closure (path+).
type OneOrMorePath struct{ Path Path }

func (OneOrMorePath) path() {}

// ZeroOrOnePath is the optional step (path?).
type ZeroOrOnePath struct{ Path Path }

func (ZeroOrOnePath) path() {}

// NegatedSetPath matches any single predicate not in Excluded, optionally
// in the Inverse direction per member (!iri, !^iri, !(iri1|^iri2|...)).
type NegatedSetPath struct {
	Excluded []NegatedSetMember
}

func (NegatedSetPath) path() {}

// NegatedSetMember is one alternative inside a negated property set.
type NegatedSetMember struct {
	IRI     rdf.Term
	Inverse bool
}
