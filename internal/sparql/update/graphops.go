package update

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/relstore/errs"
	"github.com/relquad/sparqlrel/internal/sparql/parser"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// graphManagement executes CREATE/DROP/CLEAR/COPY/MOVE/ADD. The physical
// schema keeps no separate graph registry (SPEC_FULL.md §3): a graph
// exists exactly when some quad's context_uuid names it. CREATE therefore
// has nothing to do. CLEAR always succeeds, ground truth or not; DROP on a
// single named graph must fail unless SILENT when that graph has no quads.
func (e *Executor) graphManagement(ctx context.Context, tx *relstore.Tx, op *parser.GraphManagementOp) error {
	switch op.Kind {
	case parser.GraphOpCreate:
		return nil
	case parser.GraphOpDrop:
		return e.dropTarget(ctx, tx, op.Target, op.Silent)
	case parser.GraphOpClear:
		return e.clearTarget(ctx, tx, op.Target, op.Silent)
	case parser.GraphOpCopy:
		return e.copyGraph(ctx, tx, op.From, op.To, op.Silent, true)
	case parser.GraphOpMove:
		if err := e.copyGraph(ctx, tx, op.From, op.To, op.Silent, true); err != nil {
			return err
		}
		fromUUID, err := refUUID(op.From)
		if err != nil {
			return silentOrErr(op.Silent, err)
		}
		return e.clearUUID(ctx, tx, fromUUID)
	case parser.GraphOpAdd:
		return e.copyGraph(ctx, tx, op.From, op.To, op.Silent, false)
	}
	return errs.UnsupportedFeature(fmt.Sprintf("graph management kind %v", op.Kind))
}

func (e *Executor) clearTarget(ctx context.Context, tx *relstore.Tx, ref parser.GraphRef, silent bool) error {
	quad := relstore.QuoteIdent(e.schema.QuadTable)
	switch {
	case ref.All:
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", quad))
		return err
	case ref.Default:
		return e.clearUUID(ctx, tx, relstore.DefaultGraphUUID())
	case ref.Named:
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s <> $1", quad, relstore.ColContextUUID), relstore.DefaultGraphUUID())
		return err
	case ref.IRI != nil:
		return e.clearUUID(ctx, tx, rdf.GraphUUID(ref.IRI))
	}
	return silentOrErr(silent, errs.UnsupportedFeature("graph reference names neither DEFAULT, NAMED, ALL, nor an IRI"))
}

// dropTarget implements DROP: identical to CLEAR for DEFAULT/NAMED/ALL
// (those never fail on absence — DEFAULT always exists, and NAMED/ALL name
// a set rather than one graph that could individually be missing), but a
// single named graph IRI must already hold at least one quad or the drop
// fails unless SILENT.
func (e *Executor) dropTarget(ctx context.Context, tx *relstore.Tx, ref parser.GraphRef, silent bool) error {
	if ref.IRI != nil {
		g := rdf.GraphUUID(ref.IRI)
		exists, err := e.graphExists(ctx, tx, g)
		if err != nil {
			return err
		}
		if !exists {
			return silentOrErr(silent, errs.NotFound("graph <%s> does not exist", ref.IRI.IRI))
		}
	}
	return e.clearTarget(ctx, tx, ref, silent)
}

func (e *Executor) graphExists(ctx context.Context, tx *relstore.Tx, g uuid.UUID) (bool, error) {
	quad := relstore.QuoteIdent(e.schema.QuadTable)
	rows, err := tx.Query(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1 LIMIT 1", quad, relstore.ColContextUUID), g)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), nil
}

func (e *Executor) clearUUID(ctx context.Context, tx *relstore.Tx, g uuid.UUID) error {
	quad := relstore.QuoteIdent(e.schema.QuadTable)
	_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = $1", quad, relstore.ColContextUUID), g)
	return err
}

// copyGraph copies every quad from one graph into another, clearing the
// destination first unless clearDest is false (ADD's "merge, don't
// replace" semantics).
func (e *Executor) copyGraph(ctx context.Context, tx *relstore.Tx, from, to parser.GraphRef, silent, clearDest bool) error {
	fromUUID, err := refUUID(from)
	if err != nil {
		return silentOrErr(silent, err)
	}
	toUUID, err := refUUID(to)
	if err != nil {
		return silentOrErr(silent, err)
	}
	if fromUUID == toUUID {
		return nil
	}

	if clearDest {
		if err := e.clearUUID(ctx, tx, toUUID); err != nil {
			return err
		}
	}

	quad := relstore.QuoteIdent(e.schema.QuadTable)
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s) SELECT %s, %s, %s, $1 FROM %s WHERE %s = $2 ON CONFLICT DO NOTHING",
		quad, relstore.ColSubjectUUID, relstore.ColPredicateUUID, relstore.ColObjectUUID, relstore.ColContextUUID,
		relstore.ColSubjectUUID, relstore.ColPredicateUUID, relstore.ColObjectUUID, quad, relstore.ColContextUUID,
	)
	_, err = tx.Exec(ctx, sql, toUUID, fromUUID)
	return err
}

func refUUID(ref parser.GraphRef) (uuid.UUID, error) {
	switch {
	case ref.Default:
		return relstore.DefaultGraphUUID(), nil
	case ref.IRI != nil:
		return rdf.GraphUUID(ref.IRI), nil
	}
	return uuid.UUID{}, errs.UnsupportedFeature("COPY/MOVE/ADD source or destination must be DEFAULT or a named graph IRI")
}

func silentOrErr(silent bool, err error) error {
	if silent {
		return nil
	}
	return err
}
