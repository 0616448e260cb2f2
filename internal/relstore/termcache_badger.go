package relstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

// badgerSpill persists the pinned vocabulary set warmed by TermCache.Warm to
// local disk, so a process restart does not need to re-query the store for
// terms it already proved stable. This is the concrete home for the
// project's badger/v4 dependency: the term cache's own hot set, not quad
// storage (translation never stores quads in Badger — that stays relational).
type badgerSpill struct {
	db *badger.DB
}

// OpenBadgerSpill opens (creating if absent) a Badger instance at path for
// term-cache persistence, for callers (the engine package) that configure a
// TermCache's on-disk spill from outside relstore.
func OpenBadgerSpill(path string) (*badgerSpill, error) {
	return openBadgerSpill(path)
}

// openBadgerSpill opens (creating if absent) a Badger instance at path for
// term-cache persistence.
func openBadgerSpill(path string) (*badgerSpill, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open term cache spill: %w", err)
	}
	return &badgerSpill{db: db}, nil
}

func (s *badgerSpill) Close() error {
	return s.db.Close()
}

// spillRecord is the on-disk shape of one cached term, keyed by its lexical
// form under the prefix's bucket (see spillKey).
type spillRecord struct {
	UUID     uuid.UUID     `json:"uuid"`
	Kind     rdf.TermKind  `json:"kind"`
	Lexical  string        `json:"lexical"`
	Language string        `json:"language,omitempty"`
	Datatype string        `json:"datatype,omitempty"`
}

func spillKey(prefix, lexical string) []byte {
	return []byte("vocab:" + prefix + "\x00" + lexical)
}

// save writes every resolved term under prefix's bucket in a single Badger
// transaction.
func (s *badgerSpill) save(prefix string, terms map[rdf.Term]uuid.UUID) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for t, id := range terms {
			rec := toSpillRecord(t, id)
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(spillKey(prefix, rec.Lexical), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// load reconstructs every term previously saved under prefix's bucket. The
// bool return is false when nothing was ever spilled for prefix, signalling
// the caller to fall through to the store.
func (s *badgerSpill) load(prefix string) (map[rdf.Term]uuid.UUID, bool) {
	result := make(map[rdf.Term]uuid.UUID)
	seekPrefix := []byte("vocab:" + prefix + "\x00")

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = seekPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekPrefix); it.ValidForPrefix(seekPrefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec spillRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				result[fromSpillRecord(rec)] = rec.UUID
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || len(result) == 0 {
		return nil, false
	}
	return result, true
}

func toSpillRecord(t rdf.Term, id uuid.UUID) spillRecord {
	rec := spillRecord{UUID: id, Kind: rdf.Kind(t)}
	switch v := t.(type) {
	case *rdf.NamedNode:
		rec.Lexical = v.IRI
	case *rdf.BlankNode:
		rec.Lexical = v.ID
	case *rdf.Literal:
		rec.Lexical = v.Value
		rec.Language = v.Language
		if v.Datatype != nil {
			rec.Datatype = v.Datatype.IRI
		}
	default:
		rec.Lexical = t.String()
	}
	return rec
}

func fromSpillRecord(rec spillRecord) rdf.Term {
	switch rec.Kind {
	case rdf.KindBlank:
		return rdf.NewBlankNode(rec.Lexical)
	case rdf.KindLiteral:
		if rec.Language != "" {
			return rdf.NewLiteralWithLanguage(rec.Lexical, rec.Language)
		}
		if rec.Datatype != "" {
			return rdf.NewLiteralWithDatatype(rec.Lexical, rdf.NewNamedNode(rec.Datatype))
		}
		return rdf.NewLiteral(rec.Lexical)
	default:
		return rdf.NewNamedNode(rec.Lexical)
	}
}

// prefixBounds is unused by the JSON-record spill but documents the
// Badger-native key-range alternative the teacher's own iterator used
// (store.PrefixKey/store.TablePrefix); kept here because other spill
// formats would seek over a shared byte-range the same way.
func prefixBounds(prefix string) (start, end []byte) {
	start = []byte(prefix)
	end = bytes.Clone(start)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}
