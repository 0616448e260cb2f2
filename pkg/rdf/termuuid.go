package rdf

import (
	"github.com/google/uuid"
)

// TermKind is the single-byte discriminator stored in the physical term
// table's term_type column.
type TermKind byte

const (
	KindIRI     TermKind = 'U'
	KindLiteral TermKind = 'L'
	KindBlank   TermKind = 'B'
	KindGraph   TermKind = 'G'
)

// termNamespace is the fixed UUIDv5 namespace every term UUID is derived
// from. Keeping it fixed (rather than per-space) is what makes two lexically
// and typewise identical terms resolve to the same UUID across spaces and
// across process restarts.
var termNamespace = uuid.MustParse("6f1b8c2e-0b8e-4f1a-9c1d-2a7e5d9b3c4a")

// Kind classifies a term for the purposes of the physical schema. GraphTerm
// values (named-graph identifiers) are classified by the caller, since the
// Term interface itself has no dedicated graph-name variant: an IRI used as
// a graph name is still a NamedNode at the RDF level.
func Kind(t Term) TermKind {
	switch t.(type) {
	case *NamedNode:
		return KindIRI
	case *BlankNode:
		return KindBlank
	case *Literal:
		return KindLiteral
	default:
		return KindIRI
	}
}

// TermUUID computes the content-addressed identifier for t: a UUIDv5 of the
// normalized tuple (kind, lang-or-empty, datatype-or-empty, lexical) per
// SPEC_FULL.md §4.1. Two terms that are .Equals() always produce the same
// UUID regardless of insertion order or process, and the tuple's field
// separator is a control byte that cannot appear in an IRI or literal
// lexical form, so no two distinct tuples can collide by concatenation.
func TermUUID(t Term) uuid.UUID {
	kind := Kind(t)
	var lang, datatype, lexical string

	switch v := t.(type) {
	case *NamedNode:
		lexical = v.IRI
	case *BlankNode:
		lexical = v.ID
	case *Literal:
		lexical = v.Value
		lang = v.Language
		if v.Datatype != nil {
			datatype = v.Datatype.IRI
		}
	default:
		lexical = t.String()
	}

	const sep = "\x00"
	name := string(kind) + sep + lang + sep + datatype + sep + lexical
	return uuid.NewSHA1(termNamespace, []byte(name))
}

// GraphUUID computes the identifier for a named-graph term. g must not be
// nil (a nil g panics); the default graph's identifier is DefaultGraphUUID,
// computed from DefaultGraphName.
func GraphUUID(g Term) uuid.UUID {
	if nn, ok := g.(*NamedNode); ok {
		return uuid.NewSHA1(termNamespace, []byte(string(KindGraph)+"\x00"+nn.IRI))
	}
	return TermUUID(g)
}

// DefaultGraphName is the reserved graph-name term identifying the default
// graph, per SPEC_FULL.md §9(c): the default graph is a distinct named
// graph with a reserved identifier, not a union of named graphs.
var DefaultGraphName = NewNamedNode("urn:sparqlrel:default-graph")

// DefaultGraphUUID is the reserved context_uuid for the default graph.
var DefaultGraphUUID = GraphUUID(DefaultGraphName)
