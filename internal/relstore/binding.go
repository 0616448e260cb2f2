package relstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Binding is one solution row: a partial function from SPARQL variable
// names to RDF terms. Unlike the teacher's KV-oriented Binding, this one
// carries no internal encoded-term cache of its own — term resolution is
// the shared TermCache's job, and a Binding only ever holds already-resolved
// rdf.Term values materialized from a result row.
type Binding struct {
	Vars map[string]rdf.Term
}

// NewBinding creates a new empty binding.
func NewBinding() *Binding {
	return &Binding{Vars: make(map[string]rdf.Term)}
}

// Get returns the term bound to name, and whether it was bound at all
// (unbound and bound-to-nil are the same thing here: the caller checks ok).
func (b *Binding) Get(name string) (rdf.Term, bool) {
	t, ok := b.Vars[name]
	return t, ok && t != nil
}

// Set binds name to t, overwriting any existing binding.
func (b *Binding) Set(name string, t rdf.Term) {
	b.Vars[name] = t
}

// Clone returns an independent copy, used when a Binding must be extended
// along two different branches (e.g. the two sides of a Union) without the
// branches observing each other's bindings.
func (b *Binding) Clone() *Binding {
	out := NewBinding()
	for k, v := range b.Vars {
		out.Vars[k] = v
	}
	return out
}

// Merge returns a new binding containing b's bindings overlaid with other's.
// Callers that need SPARQL join compatibility (equal values on shared
// variables) must check that themselves before calling Merge — this is pure
// union-of-maps.
func (b *Binding) Merge(other *Binding) *Binding {
	out := b.Clone()
	for k, v := range other.Vars {
		out.Vars[k] = v
	}
	return out
}

// Compatible reports whether b and other agree on every variable they both
// bind, per SPARQL's join-compatibility rule used by BGP/Join/LeftJoin.
func (b *Binding) Compatible(other *Binding) bool {
	for k, v := range other.Vars {
		if existing, ok := b.Vars[k]; ok && !existing.Equals(v) {
			return false
		}
	}
	return true
}

// BindingDigest hashes a binding's sorted variable/term pairs into a
// 128-bit dedup key with xxh3.Hash128, the same hash the corpus's term
// encoder uses for content-addressing RDF terms, applied here to binding
// rows instead: a result only needs to key an in-memory set, not resist
// adversarial collisions, so DISTINCT re-application reaches for the same
// fast hash rather than crypto/sha256.
func BindingDigest(b *Binding) string {
	names := make([]string, 0, len(b.Vars))
	for name := range b.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf strings.Builder
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteByte('=')
		buf.WriteString(b.Vars[name].String())
		buf.WriteByte(0)
	}
	hash := xxh3.Hash128([]byte(buf.String()))
	return fmt.Sprintf("%016x%016x", hash.Hi, hash.Lo)
}

// Solution is an ordered sequence of bindings — the materialized result of
// evaluating a pattern, before solution modifiers (SPEC_FULL.md §4.7) are
// applied.
type Solution []*Binding

// Project restricts every binding to the named variables, in order,
// dropping any others. Used by SELECT's projection and by Subquery
// boundary enforcement.
func (s Solution) Project(vars []string) Solution {
	out := make(Solution, len(s))
	for i, b := range s {
		p := NewBinding()
		for _, v := range vars {
			if t, ok := b.Get(v); ok {
				p.Set(v, t)
			}
		}
		out[i] = p
	}
	return out
}
