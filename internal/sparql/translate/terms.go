package translate

import "github.com/relquad/sparqlrel/pkg/rdf"

// litTuple is the shared term-to-SQL-literal mapping used both for constant
// expressions (expr.go's compileLiteral) and for VALUES rows (pattern.go's
// translateValues), which need the extra term_uuid literal VALUES rows are
// keyed by.
type litTuple struct {
	UUID, Text, Type, Lang, Datatype string
}

// litSQL renders t (or, for a VALUES UNDEF slot, a nil Term) as the SQL
// literal tuple a term-table row for it would hold.
func litSQL(t rdf.Term) litTuple {
	if t == nil {
		return litTuple{UUID: "NULL::uuid", Text: "NULL::text", Type: "NULL::char(1)", Lang: "NULL::text", Datatype: "NULL::text"}
	}
	u := rdf.TermUUID(t)
	switch v := t.(type) {
	case *rdf.NamedNode:
		return litTuple{UUID: sqlUUID(u), Text: sqlString(v.IRI), Type: sqlChar(rdf.KindIRI), Lang: "NULL::text", Datatype: "NULL::text"}
	case *rdf.BlankNode:
		return litTuple{UUID: sqlUUID(u), Text: sqlString(v.ID), Type: sqlChar(rdf.KindBlank), Lang: "NULL::text", Datatype: "NULL::text"}
	case *rdf.Literal:
		lang := "NULL::text"
		datatype := "NULL::text"
		if v.Language != "" {
			lang = sqlString(v.Language)
		}
		if v.Datatype != nil {
			datatype = sqlString(v.Datatype.IRI)
		}
		return litTuple{UUID: sqlUUID(u), Text: sqlString(v.Value), Type: sqlChar(rdf.KindLiteral), Lang: lang, Datatype: datatype}
	}
	return litTuple{UUID: sqlUUID(u), Text: sqlString(t.String()), Type: sqlChar(rdf.KindIRI), Lang: "NULL::text", Datatype: "NULL::text"}
}

func sqlUUID(u interface{ String() string }) string {
	return "'" + u.String() + "'::uuid"
}

func sqlChar(k rdf.TermKind) string {
	return "'" + string(k) + "'"
}
