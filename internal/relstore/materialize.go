package relstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// ColumnPlan tells the materializer how to turn one or more physical result
// columns back into a bound variable. A term-identity binding occupies a
// single term_uuid column (IsTermID, Width 1, resolved through the reverse
// cache); a computed binding — translate.ColumnRef.Computed, BIND results
// and GROUP BY aggregate columns with no backing term row — occupies the
// full four-column (text, kind, lang, datatype) tuple (Width 4, rebuilt by
// Literal without touching the cache at all).
type ColumnPlan struct {
	Variable string
	IsTermID bool
	// Width is how many consecutive physical columns this plan consumes,
	// starting at its row offset. Zero defaults to 1.
	Width int
	// Literal, when IsTermID is false, rebuilds the variable's rdf.Term from
	// its Width scanned values (e.g. the (text, kind, lang, datatype) tuple
	// TermFromTuple expects for a computed column).
	Literal func(vals []any) (rdf.Term, error)
}

func (p ColumnPlan) width() int {
	if p.Width <= 0 {
		return 1
	}
	return p.Width
}

// Materializer turns the (columns, rows) pair RunSelect returns into a
// Solution, batching every term_uuid column together into a single reverse
// cache lookup instead of one round trip per row per column.
type Materializer struct {
	cache *TermCache
}

func NewMaterializer(cache *TermCache) *Materializer {
	return &Materializer{cache: cache}
}

// Materialize converts raw SQL rows into a Solution per plan, which must
// have one entry per column in the same order RunSelect returned them.
func (m *Materializer) Materialize(ctx context.Context, schema *SpaceSchema, plan []ColumnPlan, rows [][]any) (Solution, error) {
	if len(rows) == 0 {
		return Solution{}, nil
	}
	if len(plan) == 0 {
		return nil, errs.Type("materialize: empty column plan for %d rows", len(rows))
	}

	offsets := make([]int, len(plan))
	offset := 0
	for i, col := range plan {
		offsets[i] = offset
		offset += col.width()
	}

	idSet := make(map[uuid.UUID]struct{})
	for _, row := range rows {
		for i, col := range plan {
			if !col.IsTermID {
				continue
			}
			at := offsets[i]
			if at >= len(row) {
				continue
			}
			if id, ok := row[at].(uuid.UUID); ok {
				idSet[id] = struct{}{}
			}
		}
	}

	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	resolved, err := m.cache.ResolveUUIDs(ctx, schema, ids)
	if err != nil {
		return nil, err
	}

	out := make(Solution, 0, len(rows))
	for _, row := range rows {
		b := NewBinding()
		for i, col := range plan {
			w := col.width()
			at := offsets[i]
			if at+w > len(row) {
				continue
			}
			cells := row[at : at+w]

			if col.IsTermID {
				if cells[0] == nil {
					continue // SQL NULL: variable unbound in this row
				}
				id, ok := cells[0].(uuid.UUID)
				if !ok {
					return nil, errs.Type("materialize: column %q expected uuid, got %T", col.Variable, cells[0])
				}
				term, ok := resolved[id]
				if !ok {
					return nil, fmt.Errorf("materialize: term %s not found for column %q", id, col.Variable)
				}
				b.Set(col.Variable, term)
				continue
			}

			if allNil(cells) {
				continue // whole tuple unbound in this row
			}
			if col.Literal == nil {
				return nil, errs.Type("materialize: column %q has no literal wrapper", col.Variable)
			}
			term, err := col.Literal(cells)
			if err != nil {
				return nil, err
			}
			b.Set(col.Variable, term)
		}
		out = append(out, b)
	}
	return out, nil
}

func allNil(vals []any) bool {
	for _, v := range vals {
		if v != nil {
			return false
		}
	}
	return true
}
