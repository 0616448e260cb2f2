package relstore

import (
	"fmt"
	"sync/atomic"
)

// AliasGenerator produces deterministic, collision-free SQL identifiers
// across nested translation scopes (SPEC_FULL.md §4.3). A root generator
// owns a counter; each Subquery/Graph/LeftJoin/path scope obtains a child
// generator with a distinct prefix and its own independent counter, so
// child-scope aliases never shadow parent aliases: the prefix path, not the
// counter, keeps their names apart.
type AliasGenerator struct {
	prefix  string
	counter *atomic.Int64
}

// NewAliasGenerator creates a root alias generator. prefix is typically
// empty at the query root; callers that need a namespaced root (e.g. one
// generator per query in a shared process) can pass one.
func NewAliasGenerator(prefix string) *AliasGenerator {
	return &AliasGenerator{prefix: prefix, counter: new(atomic.Int64)}
}

// Child returns a scoped generator whose emitted aliases are namespaced by
// the concatenation of every ancestor prefix, guaranteeing no two live
// scopes ever emit the same alias. Per SPEC_FULL.md §4.3, common child
// prefixes are "req_" (LeftJoin required side keeps the parent prefix),
// "opt_" (LeftJoin optional side), "sub_" (Subquery), "path_" (property
// path CTE), "un0_"/"un1_" (Union branches).
func (g *AliasGenerator) Child(prefix string) *AliasGenerator {
	return &AliasGenerator{prefix: g.prefix + prefix, counter: new(atomic.Int64)}
}

// next returns the generator-local monotonically increasing counter value.
func (g *AliasGenerator) next() int64 {
	return g.counter.Add(1) - 1
}

// Quad allocates a fresh alias for an rdf_quad table reference.
func (g *AliasGenerator) Quad() string {
	return fmt.Sprintf("%sq%d", g.prefix, g.next())
}

// TermJoin allocates a fresh alias for a join to the term table that
// resolves the given triple-position role ("s", "p", "o", "c").
func (g *AliasGenerator) TermJoin(role string) string {
	return fmt.Sprintf("%s%s_term%d", g.prefix, role, g.next())
}

// CTE allocates a fresh alias for a WITH-clause common table expression
// (used by Subquery and by property-path recursive CTEs).
func (g *AliasGenerator) CTE() string {
	return fmt.Sprintf("%scte%d", g.prefix, g.next())
}

// PathStep allocates a fresh alias for one recursive CTE step in a
// property-path translation.
func (g *AliasGenerator) PathStep() string {
	return fmt.Sprintf("%spath%d", g.prefix, g.next())
}

// Values allocates a fresh alias for a (VALUES ...) derived relation.
func (g *AliasGenerator) Values() string {
	return fmt.Sprintf("%svals%d", g.prefix, g.next())
}

// Column allocates a fresh synthetic output column name, used for
// expression results (Extend/BIND) and for grouped-aggregate columns that
// have no natural SQL name.
func (g *AliasGenerator) Column(hint string) string {
	return fmt.Sprintf("%s%s%d", g.prefix, hint, g.next())
}

// Derived allocates a fresh alias for a derived-table expression (a LATERAL
// OPTIONAL branch, a UNION branch pair, a VALUES block, or a nested
// SELECT embedded as a Subquery), distinct from Column's synthetic
// SELECT-list names since the two occupy different syntactic positions.
func (g *AliasGenerator) Derived(hint string) string {
	return fmt.Sprintf("%s%s%d", g.prefix, hint, g.next())
}
