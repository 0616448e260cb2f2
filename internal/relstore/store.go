package relstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Pool is the subset of *pgxpool.Pool the store depends on, narrowed so
// tests can substitute a fake without standing up a real database.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// pgconnCommandTag mirrors pgconn.CommandTag's RowsAffected method without
// importing pgconn directly, keeping the Pool interface's import surface
// limited to pgx/v5 and pgx/v5/pgxpool.
type pgconnCommandTag interface {
	RowsAffected() int64
}

// poolAdapter wraps *pgxpool.Pool to satisfy Pool — pgxpool.Pool already has
// exactly this method set, the adapter exists only so callers can pass the
// concrete pool without an explicit type assertion.
type poolAdapter struct{ p *pgxpool.Pool }

func (a poolAdapter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return a.p.Query(ctx, sql, args...)
}
func (a poolAdapter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return a.p.QueryRow(ctx, sql, args...)
}
func (a poolAdapter) Exec(ctx context.Context, sql string, args ...any) (pgconnCommandTag, error) {
	return a.p.Exec(ctx, sql, args...)
}
func (a poolAdapter) Begin(ctx context.Context) (pgx.Tx, error) {
	return a.p.Begin(ctx)
}

// Store is the pgx-backed implementation of Queryer, plus generic SQL
// execution used by the translate package's emitted statements.
type Store struct {
	pool Pool
	log  *zap.Logger
}

// NewStore wraps a live connection pool.
func NewStore(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{pool: poolAdapter{pool}, log: log}
}

// NewStoreWithPool wraps an arbitrary Pool implementation, used by tests.
func NewStoreWithPool(pool Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// LookupTermUUIDs resolves a batch of terms against the term table in one
// round trip using a VALUES list joined against the table, rather than one
// query per term.
func (s *Store) LookupTermUUIDs(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) (map[rdf.Term]uuid.UUID, error) {
	if len(terms) == 0 {
		return map[rdf.Term]uuid.UUID{}, nil
	}

	table := QuoteIdent(schema.TermTable)
	valuesSQL, args := valuesListForTerms(terms)

	query := fmt.Sprintf(`
		SELECT v.idx, t.%s
		FROM (VALUES %s) AS v(idx, kind, text, lang, datatype)
		JOIN %s t ON t.%s = v.kind
			AND t.%s = v.text
			AND t.%s IS NOT DISTINCT FROM NULLIF(v.lang, '')
			AND t.%s IS NOT DISTINCT FROM NULLIF(v.datatype, '')
	`, ColTermUUID, valuesSQL, table, ColTermType, ColTermText, ColLang, ColDatatype)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Store(err)
	}
	defer rows.Close()

	result := make(map[rdf.Term]uuid.UUID, len(terms))
	for rows.Next() {
		var idx int
		var id uuid.UUID
		if err := rows.Scan(&idx, &id); err != nil {
			return nil, errs.Store(err)
		}
		result[terms[idx]] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store(err)
	}
	return result, nil
}

// valuesListForTerms builds the "(0, 'U', 'http://...', '', ''), (1, ...)"
// fragment and its positional argument list for a batch term lookup.
func valuesListForTerms(terms []rdf.Term) (string, []any) {
	clauses := make([]string, len(terms))
	args := make([]any, 0, len(terms)*4)
	argc := 1
	for i, t := range terms {
		kind, text, lang, datatype := decompose(t)
		clauses[i] = fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)", argc, argc+1, argc+2, argc+3, argc+4)
		args = append(args, i, string(kind), text, lang, datatype)
		argc += 5
	}
	return joinComma(clauses), args
}

func decompose(t rdf.Term) (kind rdf.TermKind, text, lang, datatype string) {
	kind = rdf.Kind(t)
	switch v := t.(type) {
	case *rdf.NamedNode:
		text = v.IRI
	case *rdf.BlankNode:
		text = v.ID
	case *rdf.Literal:
		text = v.Value
		lang = v.Language
		if v.Datatype != nil {
			datatype = v.Datatype.IRI
		}
	default:
		text = t.String()
	}
	return
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

// LookupTermsByUUID resolves a batch of UUIDs back to terms.
func (s *Store) LookupTermsByUUID(ctx context.Context, schema *SpaceSchema, ids []uuid.UUID) (map[uuid.UUID]rdf.Term, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]rdf.Term{}, nil
	}

	table := QuoteIdent(schema.TermTable)
	query := fmt.Sprintf(`
		SELECT %s, %s, %s, %s, %s
		FROM %s
		WHERE %s = ANY($1)
	`, ColTermUUID, ColTermText, ColTermType, ColLang, ColDatatype, table, ColTermUUID)

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, errs.Store(err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]rdf.Term, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var text, kindStr, lang, datatype *string
		if err := rows.Scan(&id, &text, &kindStr, &lang, &datatype); err != nil {
			return nil, errs.Store(err)
		}
		result[id] = recompose(kindStr, text, lang, datatype)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Store(err)
	}
	return result, nil
}

func recompose(kindStr, text, lang, datatype *string) rdf.Term {
	asAny := func(s *string) any {
		if s == nil {
			return nil
		}
		return *s
	}
	term, _ := TermFromTuple([]any{asAny(text), asAny(kindStr), asAny(lang), asAny(datatype)})
	return term
}

// TermFromTuple rebuilds an rdf.Term from a scanned (text, kind, lang,
// datatype) tuple, the shape translate.CompiledExpr's four SQL columns
// produce for a computed binding that has no term_uuid to resolve through
// the cache (BIND results, GROUP BY aggregate columns). Each element is
// either a string or nil (SQL NULL), matching what pgx.Rows.Values returns.
func TermFromTuple(vals []any) (rdf.Term, error) {
	if len(vals) != 4 {
		return nil, errs.Type("TermFromTuple: expected 4 values, got %d", len(vals))
	}
	asString := func(v any) (string, bool) {
		if v == nil {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	}
	text, _ := asString(vals[0])
	kindStr, _ := asString(vals[1])
	lang, hasLang := asString(vals[2])
	datatype, hasDatatype := asString(vals[3])

	var k rdf.TermKind
	if len(kindStr) > 0 {
		k = rdf.TermKind(kindStr[0])
	}
	switch k {
	case rdf.KindBlank:
		return rdf.NewBlankNode(text), nil
	case rdf.KindLiteral:
		if hasLang && lang != "" {
			return rdf.NewLiteralWithLanguage(text, lang), nil
		}
		if hasDatatype && datatype != "" {
			return rdf.NewLiteralWithDatatype(text, rdf.NewNamedNode(datatype)), nil
		}
		return rdf.NewLiteral(text), nil
	default:
		return rdf.NewNamedNode(text), nil
	}
}

// InsertTerms upserts a batch of terms, used by INSERT DATA / INSERT
// {...} WHERE {...} updates before the corresponding rdf_quad rows are
// written. Conflicts are ignored: term rows are immutable once created,
// content-addressing guarantees any conflicting row is identical.
func (s *Store) InsertTerms(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) error {
	if len(terms) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := insertTermSQL(schema)

	for _, t := range terms {
		kind, text, lang, datatype := decompose(t)
		id := rdf.TermUUID(t)
		batch.Queue(query, id, text, string(kind), nullIfEmpty(lang), nullIfEmpty(datatype))
	}

	br, err := s.sendBatch(ctx, batch)
	if err != nil {
		return errs.Store(err)
	}
	defer br.Close()

	for range terms {
		if _, err := br.Exec(); err != nil {
			return errs.Store(err)
		}
	}
	return nil
}

// insertTermSQL is the upsert statement shared by Store.InsertTerms (pool
// batch, used outside a transaction) and Tx.InsertTerms (one open Tx,
// used inside the update executor).
func insertTermSQL(schema *SpaceSchema) string {
	table := QuoteIdent(schema.TermTable)
	return fmt.Sprintf(`
		INSERT INTO %s (%s, %s, %s, %s, %s)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (%s) DO NOTHING
	`, table, ColTermUUID, ColTermText, ColTermType, ColLang, ColDatatype, ColTermUUID)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sendBatch routes through pgxpool when available, since pgx.Batch execution
// requires SendBatch which is not part of the narrowed Pool interface.
func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) (pgx.BatchResults, error) {
	pooled, ok := s.pool.(poolAdapter)
	if !ok {
		return nil, fmt.Errorf("store: batch execution requires a live pgxpool.Pool")
	}
	return pooled.p.SendBatch(ctx, batch), nil
}

// RunSelect executes a translator-generated SELECT and returns the raw
// column names and row values; materialize.go turns these into Bindings
// using the translation scope's variable-to-column map.
func (s *Store) RunSelect(ctx context.Context, sql string, args []any) (columns []string, rowsOut [][]any, err error) {
	rows, qerr := s.pool.Query(ctx, sql, args...)
	if qerr != nil {
		return nil, nil, errs.Store(qerr)
	}
	defer rows.Close()

	for _, fd := range rows.FieldDescriptions() {
		columns = append(columns, string(fd.Name))
	}

	for rows.Next() {
		vals, verr := rows.Values()
		if verr != nil {
			return nil, nil, errs.Store(verr)
		}
		rowsOut = append(rowsOut, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errs.Store(err)
	}
	return columns, rowsOut, nil
}

// RunExec executes a translator-generated data-modifying statement
// (INSERT/DELETE into rdf_quad) and reports rows affected.
func (s *Store) RunExec(ctx context.Context, sql string, args []any) (int64, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errs.Store(err)
	}
	return tag.RowsAffected(), nil
}

// Tx is the transactional handle given to the update executor, so an
// UPDATE's deletes and inserts commit or roll back atomically.
type Tx struct {
	tx  pgx.Tx
	log *zap.Logger
}

// Begin starts a transaction against the live pool. Returns
// errs.Transaction on failure, since a caller in the update path treats
// "could not even start the transaction" the same as "it rolled back".
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errs.Transaction(err)
	}
	return &Tx{tx: tx, log: s.log}, nil
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, errs.Transaction(err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, errs.Transaction(err)
	}
	return rows, nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return errs.Transaction(err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		t.log.Warn("rollback after failed update did not complete cleanly", zap.Error(err))
		return errs.Transaction(err)
	}
	return nil
}

// InsertTerms is InsertTerms's tx-scoped sibling: the update executor's
// term writes need to commit or roll back with the rest of the update, so
// they run through the one open Tx instead of Store's own pool-backed
// batch path. One statement per term rather than a pgx.Batch — pgx.Tx
// exposes SendBatch too, but Tx here only narrows to Exec/Query, matching
// the rest of this type's surface.
func (t *Tx) InsertTerms(ctx context.Context, schema *SpaceSchema, terms []rdf.Term) error {
	if len(terms) == 0 {
		return nil
	}
	query := insertTermSQL(schema)
	for _, term := range terms {
		kind, text, lang, datatype := decompose(term)
		id := rdf.TermUUID(term)
		if _, err := t.Exec(ctx, query, id, text, string(kind), nullIfEmpty(lang), nullIfEmpty(datatype)); err != nil {
			return err
		}
	}
	return nil
}
