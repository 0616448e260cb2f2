package relstore

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Column names on the physical term table.
const (
	ColTermUUID    = "term_uuid"
	ColTermText    = "term_text"
	ColTermType    = "term_type"
	ColLang        = "lang"
	ColDatatype    = "datatype"
	ColTermTextFTS = "term_text_fts"
)

// Column names on the physical rdf_quad table.
const (
	ColSubjectUUID   = "subject_uuid"
	ColPredicateUUID = "predicate_uuid"
	ColObjectUUID    = "object_uuid"
	ColContextUUID   = "context_uuid"
)

// SpaceSchema resolves the physical table names for one logical space
// without a catalog lookup, per SPEC_FULL.md §4.1: table names are derived
// from (globalPrefix, spaceID) using a fixed template.
type SpaceSchema struct {
	Prefix  string
	SpaceID string

	TermTable      string
	QuadTable      string
	UpdateLogTable string
}

// NewSpaceSchema computes the physical table names for a logical space.
func NewSpaceSchema(prefix, spaceID string) *SpaceSchema {
	return &SpaceSchema{
		Prefix:         prefix,
		SpaceID:        spaceID,
		TermTable:      fmt.Sprintf("%s_%s_term", prefix, spaceID),
		QuadTable:      fmt.Sprintf("%s_%s_rdf_quad", prefix, spaceID),
		UpdateLogTable: fmt.Sprintf("%s_%s_update_log", prefix, spaceID),
	}
}

// DefaultGraphUUID is the reserved context_uuid identifying the default
// graph, shared by every space (SPEC_FULL.md §9(c)).
func DefaultGraphUUID() uuid.UUID { return rdf.DefaultGraphUUID }

// QuoteIdent double-quotes a SQL identifier for embedding into generated
// statements. Table and alias names in this package are always generated
// internally (never taken verbatim from user input), but quoting keeps the
// emitted SQL well-formed regardless of the configured prefix/space id.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}

// DDL returns the CREATE TABLE / CREATE INDEX statements for a space,
// matching the physical schema in SPEC_FULL.md §3. Schema setup itself is
// an external collaborator (spec.md §1 Non-goals); this is exposed for
// tests and for the cmd/sparqlrel demo binary to bootstrap a scratch space.
func (s *SpaceSchema) DDL() []string {
	term := QuoteIdent(s.TermTable)
	quad := QuoteIdent(s.QuadTable)
	log := QuoteIdent(s.UpdateLogTable)

	return []string{
		// digest(), used by the SHA1/SHA256/SHA384/SHA512 built-ins.
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s uuid PRIMARY KEY,
			%s text NOT NULL,
			%s char(1) NOT NULL,
			%s text,
			%s text,
			%s tsvector GENERATED ALWAYS AS (to_tsvector('simple', %s)) STORED
		)`, term, ColTermUUID, ColTermText, ColTermType, ColLang, ColDatatype, ColTermTextFTS, ColTermText),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_fts ON %s USING GIN (%s)`, s.TermTable, term, ColTermTextFTS),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			%s uuid NOT NULL,
			%s uuid NOT NULL,
			%s uuid NOT NULL,
			%s uuid NOT NULL,
			UNIQUE (%s, %s, %s, %s)
		)`, quad, ColSubjectUUID, ColPredicateUUID, ColObjectUUID, ColContextUUID,
			ColSubjectUUID, ColPredicateUUID, ColObjectUUID, ColContextUUID),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_spc ON %s (%s, %s, %s, %s)`, s.QuadTable, quad, ColSubjectUUID, ColPredicateUUID, ColObjectUUID, ColContextUUID),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_poc ON %s (%s, %s, %s, %s)`, s.QuadTable, quad, ColPredicateUUID, ColObjectUUID, ColContextUUID, ColSubjectUUID),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ocs ON %s (%s, %s, %s, %s)`, s.QuadTable, quad, ColObjectUUID, ColContextUUID, ColSubjectUUID, ColPredicateUUID),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_csp ON %s (%s, %s, %s, %s)`, s.QuadTable, quad, ColContextUUID, ColSubjectUUID, ColPredicateUUID, ColObjectUUID),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			kind text NOT NULL,
			query_text text NOT NULL,
			executed_at timestamptz NOT NULL DEFAULT now(),
			success boolean NOT NULL,
			graph_deltas jsonb
		)`, log),
	}
}
