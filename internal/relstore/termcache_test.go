package relstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

// fakeQueryer is an in-memory Queryer used to test TermCache without a
// database, the same role the teacher's in-process triple store's own
// fixtures play for its executor tests.
type fakeQueryer struct {
	byTerm map[rdf.Term]uuid.UUID
	byUUID map[uuid.UUID]rdf.Term
	calls  int
}

func newFakeQueryer() *fakeQueryer {
	return &fakeQueryer{byTerm: map[rdf.Term]uuid.UUID{}, byUUID: map[uuid.UUID]rdf.Term{}}
}

func (f *fakeQueryer) put(t rdf.Term, id uuid.UUID) {
	f.byTerm[t] = id
	f.byUUID[id] = t
}

func (f *fakeQueryer) LookupTermUUIDs(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) (map[rdf.Term]uuid.UUID, error) {
	f.calls++
	out := map[rdf.Term]uuid.UUID{}
	for _, t := range terms {
		for known, id := range f.byTerm {
			if known.Equals(t) {
				out[t] = id
			}
		}
	}
	return out, nil
}

func (f *fakeQueryer) LookupTermsByUUID(ctx context.Context, schema *SpaceSchema, ids []uuid.UUID) (map[uuid.UUID]rdf.Term, error) {
	f.calls++
	out := map[uuid.UUID]rdf.Term{}
	for _, id := range ids {
		if t, ok := f.byUUID[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (f *fakeQueryer) InsertTerms(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) error {
	return nil
}

func TestTermCache_ResolveBatch_CachesAcrossCalls(t *testing.T) {
	store := newFakeQueryer()
	alice := rdf.NewNamedNode("http://example.org/alice")
	id := uuid.New()
	store.put(alice, id)

	cache := NewTermCache(store, zap.NewNop(), 10)
	schema := NewSpaceSchema("rq", "test")

	result, err := cache.ResolveBatch(context.Background(), schema, []rdf.Term{alice})
	if err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	if result[alice] != id {
		t.Fatalf("expected resolved id %s, got %s", id, result[alice])
	}
	if store.calls != 1 {
		t.Fatalf("expected 1 store call, got %d", store.calls)
	}

	// second call should be served entirely from cache
	if _, err := cache.ResolveBatch(context.Background(), schema, []rdf.Term{alice}); err != nil {
		t.Fatalf("ResolveBatch (cached): %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected cache hit to avoid a second store call, got %d calls", store.calls)
	}
}

func TestTermCache_ResolveUUIDs_PopulatesFromResolveBatch(t *testing.T) {
	store := newFakeQueryer()
	alice := rdf.NewNamedNode("http://example.org/alice")
	id := uuid.New()
	store.put(alice, id)

	cache := NewTermCache(store, zap.NewNop(), 10)
	schema := NewSpaceSchema("rq", "test")

	if _, err := cache.ResolveBatch(context.Background(), schema, []rdf.Term{alice}); err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}

	resolved, err := cache.ResolveUUIDs(context.Background(), schema, []uuid.UUID{id})
	if err != nil {
		t.Fatalf("ResolveUUIDs: %v", err)
	}
	if !resolved[id].Equals(alice) {
		t.Errorf("expected reverse lookup to find %v, got %v", alice, resolved[id])
	}
	if store.calls != 1 {
		t.Errorf("expected reverse lookup to be served from cache, got %d store calls", store.calls)
	}
}

func TestTermCache_EvictsUnpinnedOverCapacity(t *testing.T) {
	store := newFakeQueryer()
	var terms []rdf.Term
	for i := 0; i < 5; i++ {
		term := rdf.NewNamedNode(uuid.New().String())
		store.put(term, uuid.New())
		terms = append(terms, term)
	}

	cache := NewTermCache(store, zap.NewNop(), 2)
	schema := NewSpaceSchema("rq", "test")

	if _, err := cache.ResolveBatch(context.Background(), schema, terms); err != nil {
		t.Fatalf("ResolveBatch: %v", err)
	}
	if cache.order.Len() > 2 {
		t.Errorf("expected LRU order capped at maxSize=2, got %d entries", cache.order.Len())
	}
}
