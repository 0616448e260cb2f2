package update

import (
	"strings"
	"testing"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/sparql/parser"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

func TestGraphUUID_NilMeansDefaultGraph(t *testing.T) {
	id, err := graphUUID(nil)
	if err != nil {
		t.Fatalf("graphUUID(nil): %v", err)
	}
	if id != relstore.DefaultGraphUUID() {
		t.Errorf("expected default graph uuid, got %s", id)
	}
}

func TestGraphUUID_NamedGraphDerivesFromIRI(t *testing.T) {
	named := rdf.NewNamedNode("http://example.org/graph1")
	g := &parser.GraphTerm{IRI: named}
	id, err := graphUUID(g)
	if err != nil {
		t.Fatalf("graphUUID: %v", err)
	}
	want := rdf.GraphUUID(named)
	if id != want {
		t.Errorf("expected %s, got %s", want, id)
	}
	// deterministic: the same IRI always derives the same graph uuid
	again, _ := graphUUID(g)
	if again != id {
		t.Errorf("expected graphUUID to be deterministic, got %s then %s", id, again)
	}
}

func TestGroundTerm_RejectsVariable(t *testing.T) {
	tv := parser.TermOrVariable{Variable: &parser.Variable{Name: "x"}}
	if _, err := groundTerm(tv); err == nil {
		t.Fatal("expected an error for a variable inside ground update data")
	}
}

func TestGroundTerm_AcceptsConcreteTerm(t *testing.T) {
	term := rdf.NewNamedNode("http://example.org/alice")
	tv := parser.TermOrVariable{Term: term}
	got, err := groundTerm(tv)
	if err != nil {
		t.Fatalf("groundTerm: %v", err)
	}
	if !got.Equals(term) {
		t.Errorf("expected %v, got %v", term, got)
	}
}

func TestQuadInsertAndDeleteSQL_ReferenceQuadTable(t *testing.T) {
	insertSQL := quadInsertSQL("rq_quads")
	if !strings.Contains(insertSQL, "INSERT INTO rq_quads") {
		t.Errorf("unexpected insert SQL: %s", insertSQL)
	}
	deleteSQL := quadDeleteSQL("rq_quads")
	if !strings.Contains(deleteSQL, "DELETE FROM rq_quads") {
		t.Errorf("unexpected delete SQL: %s", deleteSQL)
	}
}

func TestParseUpdate_InsertData(t *testing.T) {
	text := `PREFIX foaf: <http://xmlns.com/foaf/0.1/>
	INSERT DATA { <http://example.org/alice> foaf:name "Alice" . }`
	upd, err := parser.NewParser(text).ParseUpdate()
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if len(upd.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(upd.Operations))
	}
	if _, ok := upd.Operations[0].(*parser.InsertDataOp); !ok {
		t.Errorf("expected *parser.InsertDataOp, got %T", upd.Operations[0])
	}
}
