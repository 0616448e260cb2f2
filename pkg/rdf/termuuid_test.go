package rdf

import "testing"

func TestTermUUID_ContentAddressed(t *testing.T) {
	a := NewNamedNode("http://example.org/alice")
	b := NewNamedNode("http://example.org/alice")
	if TermUUID(a) != TermUUID(b) {
		t.Error("identical IRIs must resolve to the same UUID")
	}

	c := NewNamedNode("http://example.org/bob")
	if TermUUID(a) == TermUUID(c) {
		t.Error("distinct IRIs must not collide")
	}
}

func TestTermUUID_DistinguishesKindLangDatatype(t *testing.T) {
	plain := NewLiteral("30")
	typed := NewLiteralWithDatatype("30", XSDInteger)
	langTagged := NewLiteralWithLanguage("30", "en")

	ids := []string{
		TermUUID(plain).String(),
		TermUUID(typed).String(),
		TermUUID(langTagged).String(),
	}
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("literal variants must not collide, got duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestTermUUID_BlankNodeUsesID(t *testing.T) {
	b1 := NewBlankNode("n1")
	b2 := NewBlankNode("n1")
	if TermUUID(b1) != TermUUID(b2) {
		t.Error("blank nodes with the same id must resolve to the same UUID")
	}
}

func TestDefaultGraphUUID_Stable(t *testing.T) {
	if GraphUUID(DefaultGraphName) != DefaultGraphUUID {
		t.Error("DefaultGraphUUID must be derived from DefaultGraphName")
	}
}
