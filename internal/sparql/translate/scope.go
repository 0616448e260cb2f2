// Package translate compiles the algebra tree (internal/sparql/algebra)
// into SQL text against a relstore.SpaceSchema, the way the teacher's
// executor.createIterator compiled optimizer.QueryPlan into a
// store.BindingIterator — one translateX method per node kind, dispatched
// from a single type switch, each returning a composable Relation instead
// of an iterator.
package translate

import (
	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
)

// ColumnRef names the SQL columns holding one variable's resolved term,
// either a direct term-table join (the five physical column names) or a
// derived-table projection (synthetic per-variable column names assigned
// when a LeftJoin/Union/Subquery branch is wrapped as its own subquery).
type ColumnRef struct {
	Alias       string
	UUIDCol     string
	TextCol     string
	TypeCol     string
	LangCol     string
	DatatypeCol string

	// Computed marks a binding with no term-table identity: BIND's
	// arithmetic/function results and GROUP BY's aggregate columns. Such a
	// variable's UUID column always carries SQL NULL, so forms.go
	// materializes it from its (text, type, lang, datatype) tuple instead
	// of resolving a term_uuid through the cache.
	Computed bool
}

// termColumnRef builds the ColumnRef for a fresh join against the physical
// term table under alias.
func termColumnRef(alias string) ColumnRef {
	return ColumnRef{
		Alias:       alias,
		UUIDCol:     relstore.ColTermUUID,
		TextCol:     relstore.ColTermText,
		TypeCol:     relstore.ColTermType,
		LangCol:     relstore.ColLang,
		DatatypeCol: relstore.ColDatatype,
	}
}

// col qualifies name with the column's alias, unless the ColumnRef carries
// raw SQL expressions directly (Alias == "", as BIND's computed bindings
// do) rather than naming a physical table's columns.
func (c ColumnRef) col(name string) string {
	if c.Alias == "" {
		return name
	}
	return c.Alias + "." + name
}

// UUID is the SQL expression for the variable's term_uuid.
func (c ColumnRef) UUID() string { return c.col(c.UUIDCol) }

// Text is the SQL expression for the variable's lexical form.
func (c ColumnRef) Text() string { return c.col(c.TextCol) }

// Kind is the SQL expression for the variable's term_type discriminator.
func (c ColumnRef) Kind() string { return c.col(c.TypeCol) }

// Lang is the SQL expression for the variable's language tag (NULL if none).
func (c ColumnRef) Lang() string { return c.col(c.LangCol) }

// Datatype is the SQL expression for the variable's datatype IRI (NULL for
// plain/language-tagged literals and non-literal terms).
func (c ColumnRef) Datatype() string { return c.col(c.DatatypeCol) }

// Scope owns one AliasGenerator child and the variable-to-column bindings
// visible at one nesting level of the algebra tree (SPEC_FULL.md §4.3/§9).
// A child scope's Lookup falls back to its parent so an inner pattern can
// still reference an outer binding (e.g. GRAPH ?g wrapping a pattern that
// reuses a variable bound above it), but a Bind call only ever affects the
// scope it was called on.
type Scope struct {
	aliases *relstore.AliasGenerator
	parent  *Scope
	vars    map[algebra.Var]ColumnRef
}

// NewScope creates a root translation scope.
func NewScope(aliases *relstore.AliasGenerator) *Scope {
	return &Scope{aliases: aliases, vars: make(map[algebra.Var]ColumnRef)}
}

// Child returns a nested scope with its own alias namespace, used for
// LeftJoin, Union and Minus branches so their internal aliases never
// collide with the parent's.
func (s *Scope) Child(prefix string) *Scope {
	return &Scope{aliases: s.aliases.Child(prefix), parent: s, vars: make(map[algebra.Var]ColumnRef)}
}

// Fresh returns a scope with a child alias namespace of s but no inherited
// variable bindings, used for Subquery isolation (a nested SELECT's WHERE
// clause does not see the enclosing query's bindings) and for EXISTS bodies.
func (s *Scope) Fresh(prefix string) *Scope {
	return &Scope{aliases: s.aliases.Child(prefix), vars: make(map[algebra.Var]ColumnRef)}
}

// Bind records the column holding v's value in this scope.
func (s *Scope) Bind(v algebra.Var, ref ColumnRef) {
	s.vars[v] = ref
}

// Lookup resolves v, searching outward through parent scopes.
func (s *Scope) Lookup(v algebra.Var) (ColumnRef, bool) {
	if ref, ok := s.vars[v]; ok {
		return ref, true
	}
	if s.parent != nil {
		return s.parent.Lookup(v)
	}
	return ColumnRef{}, false
}

// Aliases returns the scope's alias generator.
func (s *Scope) Aliases() *relstore.AliasGenerator { return s.aliases }
