package relstore

import (
	"container/list"
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Queryer is the minimal store surface the term cache needs to resolve a
// batch of terms it doesn't already hold. Implemented by *Store (pgx-backed)
// in production and by a fake in tests.
type Queryer interface {
	LookupTermUUIDs(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) (map[rdf.Term]uuid.UUID, error)
	LookupTermsByUUID(ctx context.Context, schema *SpaceSchema, ids []uuid.UUID) (map[uuid.UUID]rdf.Term, error)
	InsertTerms(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) error
}

// TermCache batch-resolves terms to UUIDs and back, avoiding a round trip
// per row (SPEC_FULL.md §4.2). It is shared process-wide and read-mostly: a
// reader-preferring RWMutex protects the map, writes are batched under a
// short exclusive section, and eviction is size-bounded LRU with a pinned
// vocabulary set that Warm populates.
type TermCache struct {
	store    Queryer
	log      *zap.Logger
	maxSize  int
	persist  *badgerSpill

	mu      sync.RWMutex
	entries map[uuid.UUID]*cacheEntry
	byTerm  map[termKey]uuid.UUID
	order   *list.List // LRU order of unpinned entries, front = most recent
}

type cacheEntry struct {
	uuid    uuid.UUID
	term    rdf.Term
	pinned  bool
	element *list.Element
}

// termKey is a comparable projection of an rdf.Term suitable for use as a
// map key (rdf.Term implementations are not guaranteed comparable once
// pointers to distinct-but-equal structs exist).
type termKey struct {
	kind     rdf.TermKind
	lang     string
	datatype string
	lexical  string
}

func keyOf(t rdf.Term) termKey {
	k := termKey{kind: rdf.Kind(t)}
	switch v := t.(type) {
	case *rdf.NamedNode:
		k.lexical = v.IRI
	case *rdf.BlankNode:
		k.lexical = v.ID
	case *rdf.Literal:
		k.lexical = v.Value
		k.lang = v.Language
		if v.Datatype != nil {
			k.datatype = v.Datatype.IRI
		}
	default:
		k.lexical = t.String()
	}
	return k
}

// NewTermCache creates a cache bounded to maxSize unpinned entries.
func NewTermCache(store Queryer, log *zap.Logger, maxSize int) *TermCache {
	if maxSize <= 0 {
		maxSize = 100_000
	}
	return &TermCache{
		store:   store,
		log:     log,
		maxSize: maxSize,
		entries: make(map[uuid.UUID]*cacheEntry),
		byTerm:  make(map[termKey]uuid.UUID),
		order:   list.New(),
	}
}

// WithSpill attaches an on-disk Badger spill for the pinned vocabulary set,
// so a process restart does not need to re-warm from the store.
func (c *TermCache) WithSpill(spill *badgerSpill) *TermCache {
	c.persist = spill
	return c
}

// ResolveBatch resolves every term to its UUID in one logical round trip:
// cache hits are served immediately, misses are resolved in a single
// IN-list query against the store. Queries never create terms — an unknown
// term that the store also doesn't know about is simply absent from the
// returned map (callers treat that as "matches nothing").
func (c *TermCache) ResolveBatch(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) (map[rdf.Term]uuid.UUID, error) {
	result := make(map[rdf.Term]uuid.UUID, len(terms))
	var misses []rdf.Term

	c.mu.RLock()
	for _, t := range terms {
		if id, ok := c.byTerm[keyOf(t)]; ok {
			result[t] = id
			continue
		}
		misses = append(misses, t)
	}
	c.mu.RUnlock()

	if len(misses) == 0 {
		return result, nil
	}

	resolved, err := c.store.LookupTermUUIDs(ctx, schema, misses)
	if err != nil {
		c.log.Warn("term cache batch resolve failed", zap.Int("misses", len(misses)), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	for t, id := range resolved {
		c.insertLocked(t, id, false)
		result[t] = id
	}
	c.mu.Unlock()

	return result, nil
}

// ResolveUUIDs is the inverse of ResolveBatch, used during result
// materialization to turn raw UUID columns (aggregation outputs, path
// endpoints) back into terms.
func (c *TermCache) ResolveUUIDs(ctx context.Context, schema *SpaceSchema, ids []uuid.UUID) (map[uuid.UUID]rdf.Term, error) {
	result := make(map[uuid.UUID]rdf.Term, len(ids))
	var misses []uuid.UUID

	c.mu.RLock()
	for _, id := range ids {
		if e, ok := c.entries[id]; ok {
			result[id] = e.term
			continue
		}
		misses = append(misses, id)
	}
	c.mu.RUnlock()

	if len(misses) == 0 {
		return result, nil
	}

	resolved, err := c.store.LookupTermsByUUID(ctx, schema, misses)
	if err != nil {
		c.log.Warn("term cache reverse resolve failed", zap.Int("misses", len(misses)), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	for id, t := range resolved {
		c.insertLocked(t, id, false)
		result[id] = t
	}
	c.mu.Unlock()

	return result, nil
}

// Warm resolves the IRI equal to prefix and pins it so LRU eviction never
// touches it. Only that single term is looked up: other terms whose IRIs
// merely start with prefix are not loaded. With a spill configured, the
// terms saved for prefix are loaded from it instead when present.
func (c *TermCache) Warm(ctx context.Context, schema *SpaceSchema, prefix string) error {
	if c.persist != nil {
		if loaded, ok := c.persist.load(prefix); ok {
			c.mu.Lock()
			for t, id := range loaded {
				c.insertLocked(t, id, true)
			}
			c.mu.Unlock()
			c.log.Info("term cache warmed from spill", zap.String("prefix", prefix), zap.Int("count", len(loaded)))
			return nil
		}
	}

	terms, err := c.store.LookupTermUUIDs(ctx, schema, []rdf.Term{rdf.NewNamedNode(prefix)})
	if err != nil {
		return err
	}

	c.mu.Lock()
	for t, id := range terms {
		c.insertLocked(t, id, true)
	}
	c.mu.Unlock()

	if c.persist != nil {
		_ = c.persist.save(prefix, terms) // best-effort; cache still warm in memory
	}
	return nil
}

// insertLocked adds or refreshes an entry. Caller must hold c.mu for write.
func (c *TermCache) insertLocked(t rdf.Term, id uuid.UUID, pinned bool) {
	k := keyOf(t)
	if existing, ok := c.byTerm[k]; ok {
		if e, ok := c.entries[existing]; ok {
			if e.pinned || !pinned {
				if e.element != nil {
					c.order.MoveToFront(e.element)
				}
				return
			}
			if e.element != nil {
				c.order.Remove(e.element)
			}
		}
	}

	e := &cacheEntry{uuid: id, term: t, pinned: pinned}
	c.entries[id] = e
	c.byTerm[k] = id

	if pinned {
		return
	}

	e.element = c.order.PushFront(id)
	c.evictIfNeeded()
}

// evictIfNeeded drops the least-recently-used unpinned entries once the
// cache exceeds maxSize. Caller must hold c.mu for write.
func (c *TermCache) evictIfNeeded() {
	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back == nil {
			return
		}
		id := back.Value.(uuid.UUID)
		c.order.Remove(back)
		if e, ok := c.entries[id]; ok {
			delete(c.byTerm, keyOf(e.term))
			delete(c.entries, id)
		}
	}
}
