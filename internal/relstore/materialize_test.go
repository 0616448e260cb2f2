package relstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

func TestMaterialize_TermIDColumn(t *testing.T) {
	store := newFakeQueryer()
	alice := rdf.NewNamedNode("http://example.org/alice")
	id := uuid.New()
	store.put(alice, id)

	cache := NewTermCache(store, zap.NewNop(), 10)
	schema := NewSpaceSchema("rq", "test")
	m := NewMaterializer(cache)

	plan := []ColumnPlan{{Variable: "person", IsTermID: true, Width: 1}}
	rows := [][]any{{id}}

	sol, err := m.Materialize(context.Background(), schema, plan, rows)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(sol) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(sol))
	}
	got, ok := sol[0].Get("person")
	if !ok || !got.Equals(alice) {
		t.Errorf("expected person=%v, got %v (ok=%v)", alice, got, ok)
	}
}

func TestMaterialize_ComputedColumnUsesLiteralFunc(t *testing.T) {
	cache := NewTermCache(newFakeQueryer(), zap.NewNop(), 10)
	schema := NewSpaceSchema("rq", "test")
	m := NewMaterializer(cache)

	plan := []ColumnPlan{{
		Variable: "count",
		IsTermID: false,
		Width:    1,
		Literal: func(vals []any) (rdf.Term, error) {
			return rdf.NewIntegerLiteral(int64(vals[0].(int))), nil
		},
	}}
	rows := [][]any{{3}}

	sol, err := m.Materialize(context.Background(), schema, plan, rows)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	got, ok := sol[0].Get("count")
	if !ok {
		t.Fatal("expected count to be bound")
	}
	if got.String() != rdf.NewIntegerLiteral(3).String() {
		t.Errorf("expected integer literal 3, got %v", got)
	}
}

func TestMaterialize_NullTermIDLeavesVariableUnbound(t *testing.T) {
	cache := NewTermCache(newFakeQueryer(), zap.NewNop(), 10)
	schema := NewSpaceSchema("rq", "test")
	m := NewMaterializer(cache)

	plan := []ColumnPlan{{Variable: "person", IsTermID: true, Width: 1}}
	rows := [][]any{{nil}}

	sol, err := m.Materialize(context.Background(), schema, plan, rows)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, ok := sol[0].Get("person"); ok {
		t.Error("expected unbound variable for NULL term id column")
	}
}

func TestMaterialize_EmptyRowsReturnsEmptySolution(t *testing.T) {
	cache := NewTermCache(newFakeQueryer(), zap.NewNop(), 10)
	schema := NewSpaceSchema("rq", "test")
	m := NewMaterializer(cache)

	sol, err := m.Materialize(context.Background(), schema, []ColumnPlan{{Variable: "x", IsTermID: true}}, nil)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if len(sol) != 0 {
		t.Errorf("expected empty solution, got %d rows", len(sol))
	}
}
