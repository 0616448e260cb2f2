// Package engine wires the parser, algebra builder, translator, and
// relstore together into the two operations a caller actually wants: run a
// query, run an update. It sits above internal/relstore rather than inside
// it since relstore must not import the translator (translate already
// imports relstore), the same layering split the teacher kept between its
// storage and executor packages.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/internal/config"
	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/internal/sparql/parser"
	"github.com/relquad/sparqlrel/internal/sparql/translate"
	"github.com/relquad/sparqlrel/internal/sparql/update"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Engine is the single entry point a caller (CLI, server handler, test)
// drives: parse + plan + execute a SPARQL query or update text against one
// logical space.
type Engine struct {
	cfg        *config.Config
	pool       *pgxpool.Pool
	store      *relstore.Store
	cache      *relstore.TermCache
	schema     *relstore.SpaceSchema
	translator *translate.Translator
	updater    *update.Executor
	log        *zap.Logger
	spillClose func() error
}

// New opens a connection pool against cfg.Database.DSN and assembles an
// Engine ready to serve queries. Callers own the returned Engine's
// lifetime; Close releases the pool.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		return nil, errs.Store(fmt.Errorf("parsing database dsn: %w", err))
	}
	poolCfg.MaxConns = cfg.Database.MaxConnections
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errs.Store(fmt.Errorf("opening connection pool: %w", err))
	}

	eng, err := newFromPool(pool, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.VocabularyPrefix != "" {
		if err := eng.Warm(ctx, cfg.Cache.VocabularyPrefix); err != nil {
			eng.log.Warn("warming term cache vocabulary prefix failed", zap.String("prefix", cfg.Cache.VocabularyPrefix), zap.Error(err))
		}
	}

	return eng, nil
}

// newFromPool is the shared constructor New and tests (against a pool
// pointed at a disposable database) both funnel through.
func newFromPool(pool *pgxpool.Pool, cfg *config.Config, log *zap.Logger) (*Engine, error) {
	schema := relstore.NewSpaceSchema(cfg.Space.Prefix, cfg.Space.SpaceID)
	store := relstore.NewStore(pool, log)
	cache := relstore.NewTermCache(store, log, cfg.Cache.MaxTermCacheSize)

	var spillClose func() error
	if cfg.Cache.BadgerDir != "" {
		spill, err := relstore.OpenBadgerSpill(cfg.Cache.BadgerDir)
		if err != nil {
			pool.Close()
			return nil, errs.Store(fmt.Errorf("opening term cache spill: %w", err))
		}
		cache = cache.WithSpill(spill)
		spillClose = spill.Close
	}

	translator := translate.NewTranslator(schema, log, cfg.Query.MaxPathDepth)
	updater := update.NewExecutor(schema, store, cache, translator, log)

	return &Engine{
		cfg:        cfg,
		pool:       pool,
		store:      store,
		cache:      cache,
		schema:     schema,
		translator: translator,
		updater:    updater,
		log:        log,
		spillClose: spillClose,
	}, nil
}

// Close releases the underlying connection pool and any on-disk term cache
// spill.
func (e *Engine) Close() {
	if e.spillClose != nil {
		if err := e.spillClose(); err != nil {
			e.log.Warn("closing term cache spill", zap.Error(err))
		}
	}
	e.pool.Close()
}

// EnsureSchema issues the space's DDL, creating its term/quad/update-log
// tables if they do not already exist. Safe to call on every startup.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	for _, stmt := range e.schema.DDL() {
		if _, err := e.store.RunExec(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// Warm pins the term whose IRI equals prefix in the term cache against
// eviction; terms whose IRIs merely start with prefix are not loaded.
func (e *Engine) Warm(ctx context.Context, prefix string) error {
	return e.cache.Warm(ctx, e.schema, prefix)
}

// Result is the closed set of shapes a query can produce, mirroring
// SPARQL's four result forms.
type Result interface {
	isResult()
}

// SolutionSequence is a SELECT query's result: one binding per row, in the
// order the store returned them (ORDER BY, if present, was already applied
// in SQL).
type SolutionSequence relstore.Solution

func (SolutionSequence) isResult() {}

// BooleanResult is an ASK query's result.
type BooleanResult bool

func (BooleanResult) isResult() {}

// Graph is a CONSTRUCT or DESCRIBE query's result: an unordered triple set,
// deduplicated the way RDF graphs are defined to be (SPARQL §18.2.4).
type Graph []*rdf.Triple

func (Graph) isResult() {}

// ExecuteQuery parses, plans, and runs one SPARQL query, returning the
// Result variant matching its form.
func (e *Engine) ExecuteQuery(ctx context.Context, queryText string) (Result, error) {
	parsed, err := parser.NewParser(queryText).Parse()
	if err != nil {
		return nil, err
	}
	q, err := algebra.Build(parsed)
	if err != nil {
		return nil, err
	}

	switch q.Form {
	case algebra.FormSelect:
		return e.runSelect(ctx, q)
	case algebra.FormAsk:
		return e.runAsk(ctx, q)
	case algebra.FormConstruct:
		return e.runConstruct(ctx, q)
	case algebra.FormDescribe:
		return e.runDescribe(ctx, q)
	}
	return nil, errs.UnsupportedFeature(fmt.Sprintf("query form %v", q.Form))
}

func (e *Engine) runSelect(ctx context.Context, q *algebra.Query) (Result, error) {
	compiled, err := e.translator.CompileSelect(q)
	if err != nil {
		return nil, err
	}
	solution, err := e.runAndMaterialize(ctx, compiled)
	if err != nil {
		return nil, err
	}
	solution = applySolutionModifiers(q, solution)
	return SolutionSequence(solution), nil
}

func (e *Engine) runAsk(ctx context.Context, q *algebra.Query) (Result, error) {
	sql, err := e.translator.CompileAsk(q)
	if err != nil {
		return nil, err
	}
	_, rows, err := e.store.RunSelect(ctx, sql, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return BooleanResult(false), nil
	}
	val, _ := rows[0][0].(bool)
	return BooleanResult(val), nil
}

func (e *Engine) runConstruct(ctx context.Context, q *algebra.Query) (Result, error) {
	compiled, err := e.translator.CompileConstruct(q)
	if err != nil {
		return nil, err
	}
	solution, err := e.runAndMaterialize(ctx, compiled)
	if err != nil {
		return nil, err
	}
	return Graph(dedupTriples(materializeAll(q.Template, solution))), nil
}

// runDescribe resolves DESCRIBE's resources, then runs one concise-bounded-
// description query per resolved resource and unions the results.
func (e *Engine) runDescribe(ctx context.Context, q *algebra.Query) (Result, error) {
	resources, err := e.resolveDescribeResources(ctx, q)
	if err != nil {
		return nil, err
	}

	var triples []*rdf.Triple
	for _, resource := range resources {
		sql := e.translator.DescribeCBDSQL(resource)
		_, rows, err := e.store.RunSelect(ctx, sql, nil)
		if err != nil {
			return nil, err
		}
		materializer := relstore.NewMaterializer(e.cache)
		solution, err := materializer.Materialize(ctx, e.schema, translate.DescribeCBDPlan(), rows)
		if err != nil {
			return nil, err
		}
		for _, b := range solution {
			s, sok := b.Get("s")
			p, pok := b.Get("p")
			o, ook := b.Get("o")
			if sok && pok && ook {
				triples = append(triples, rdf.NewTriple(s, p, o))
			}
		}
	}
	return Graph(dedupTriples(triples)), nil
}

// resolveDescribeResources returns the set of concrete resources a DESCRIBE
// names, either directly (fixed IRIs in the DESCRIBE clause) or by running
// its WHERE clause and reading the DESCRIBE variables out of each row.
func (e *Engine) resolveDescribeResources(ctx context.Context, q *algebra.Query) ([]uuid.UUID, error) {
	var fixed []uuid.UUID
	var varNames []algebra.Var
	for _, pt := range q.DescribeVars {
		switch v := pt.(type) {
		case algebra.Term:
			fixed = append(fixed, rdf.TermUUID(v.Value))
		case algebra.Var:
			varNames = append(varNames, v)
		}
	}
	if q.Pattern == nil {
		if len(fixed) == 0 {
			return nil, errs.Cardinality("DESCRIBE named no resource and has no WHERE clause")
		}
		return fixed, nil
	}

	compiled, err := e.translator.CompileDescribeResources(q)
	if err != nil {
		return nil, err
	}
	solution, err := e.runAndMaterialize(ctx, compiled)
	if err != nil {
		return nil, err
	}
	seen := map[uuid.UUID]bool{}
	out := append([]uuid.UUID{}, fixed...)
	for _, id := range fixed {
		seen[id] = true
	}
	for _, b := range solution {
		for _, v := range varNames {
			t, ok := b.Get(v.Name)
			if !ok {
				continue
			}
			id := rdf.TermUUID(t)
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (e *Engine) runAndMaterialize(ctx context.Context, compiled *translate.CompiledQuery) (relstore.Solution, error) {
	_, rows, err := e.store.RunSelect(ctx, compiled.SQL, nil)
	if err != nil {
		return nil, err
	}
	materializer := relstore.NewMaterializer(e.cache)
	return materializer.Materialize(ctx, e.schema, compiled.Plan, rows)
}

// applySolutionModifiers re-applies DISTINCT in Go whenever the query has
// DISTINCT, even where the translated SQL already collapsed duplicates.
// Bindings compare by bindingSignature, a hash over each variable name and
// its term's String() form.
func applySolutionModifiers(q *algebra.Query, solution relstore.Solution) relstore.Solution {
	if !q.Distinct {
		return solution
	}
	seen := map[string]bool{}
	out := make(relstore.Solution, 0, len(solution))
	for _, b := range solution {
		key := bindingSignature(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, b)
	}
	return out
}

// bindingSignature hashes a binding's variable/term pairs into a dedup key
// using xxh3, the same fast non-cryptographic hash the pack's storage
// layers reach for over crypto/sha256 when the result only needs to key an
// in-memory set, not resist adversarial collisions.
func bindingSignature(b *relstore.Binding) string {
	return relstore.BindingDigest(b)
}

func materializeAll(template []algebra.TriplePattern, solution relstore.Solution) []*rdf.Triple {
	var out []*rdf.Triple
	for _, b := range solution {
		out = append(out, translate.MaterializeConstruct(template, b)...)
	}
	return out
}

// dedupTriples removes duplicate triples by their UUID-derived identity,
// since the same triple can be produced by more than one solution row
// (e.g. an unconstrained template position).
func dedupTriples(triples []*rdf.Triple) []*rdf.Triple {
	seen := map[string]bool{}
	out := make([]*rdf.Triple, 0, len(triples))
	for _, tr := range triples {
		key := rdf.TermUUID(tr.Subject).String() + "|" + rdf.TermUUID(tr.Predicate).String() + "|" + rdf.TermUUID(tr.Object).String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tr)
	}
	return out
}

// ExecuteUpdate parses and runs one SPARQL 1.1 Update request.
func (e *Engine) ExecuteUpdate(ctx context.Context, updateText string) error {
	upd, err := parser.NewParser(updateText).ParseUpdate()
	if err != nil {
		return err
	}
	return e.updater.Execute(ctx, upd)
}
