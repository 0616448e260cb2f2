package sparqlhttp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/sparql/engine"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

func sampleSolution() relstore.Solution {
	b := relstore.NewBinding()
	b.Set("name", rdf.NewLiteral("Alice"))
	b.Set("age", rdf.NewLiteralWithDatatype("30", rdf.NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")))
	b.Set("person", rdf.NewNamedNode("http://example.org/alice"))
	return relstore.Solution{b}
}

func TestFormatSelectJSON(t *testing.T) {
	data, err := formatSelectJSON(sampleSolution())
	if err != nil {
		t.Fatalf("formatSelectJSON: %v", err)
	}
	var out jsonResults
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshaling output: %v", err)
	}
	if out.Results == nil || len(out.Results.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %+v", out.Results)
	}
	row := out.Results.Bindings[0]
	if row["person"].Type != "uri" || row["person"].Value != "http://example.org/alice" {
		t.Errorf("unexpected person binding: %+v", row["person"])
	}
	if row["age"].Type != "literal" || row["age"].Datatype == nil {
		t.Errorf("expected typed literal for age, got %+v", row["age"])
	}
}

func TestFormatAskJSON(t *testing.T) {
	data, err := formatAskJSON(true)
	if err != nil {
		t.Fatalf("formatAskJSON: %v", err)
	}
	var out jsonResults
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshaling output: %v", err)
	}
	if out.Boolean == nil || !*out.Boolean {
		t.Errorf("expected boolean=true, got %+v", out.Boolean)
	}
}

func TestFormatSelectXML_EscapesAndBinds(t *testing.T) {
	sol := sampleSolution()
	out := string(formatSelectXML(sol))
	if !strings.Contains(out, `<uri>http://example.org/alice</uri>`) {
		t.Errorf("expected uri binding in XML, got: %s", out)
	}
	if !strings.Contains(out, `<variable name="name"/>`) {
		t.Errorf("expected variable header in XML, got: %s", out)
	}
}

func TestFormatSelectCSV_HeaderAndRow(t *testing.T) {
	data, err := formatSelectCSV(sampleSolution())
	if err != nil {
		t.Fatalf("formatSelectCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), string(data))
	}
	if !strings.Contains(lines[1], "Alice") || !strings.Contains(lines[1], "http://example.org/alice") {
		t.Errorf("unexpected CSV row: %q", lines[1])
	}
}

func TestFormatSelectTSV_IRIInAngleBrackets(t *testing.T) {
	out := string(formatSelectTSV(sampleSolution()))
	if !strings.Contains(out, "<http://example.org/alice>") {
		t.Errorf("expected angle-bracketed IRI in TSV, got: %s", out)
	}
	if !strings.Contains(out, `"Alice"`) {
		t.Errorf("expected quoted plain literal in TSV, got: %s", out)
	}
	// the three basic numeric types are unquoted per the SPARQL TSV spec
	if strings.Contains(out, `"30"`) {
		t.Errorf("expected bare integer literal in TSV, got: %s", out)
	}
}

func TestFormatGraphNTriples(t *testing.T) {
	g := engine.Graph{
		rdf.NewTriple(
			rdf.NewNamedNode("http://example.org/s"),
			rdf.NewNamedNode("http://example.org/p"),
			rdf.NewLiteral("o"),
		),
	}
	out := string(formatGraphNTriples(g))
	want := "<http://example.org/s> <http://example.org/p> \"o\" .\n"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestNegotiateFormat(t *testing.T) {
	cases := map[string]string{
		"application/sparql-results+xml": "xml",
		"text/xml":                       "xml",
		"text/csv":                       "csv",
		"text/tab-separated-values":      "tsv",
		"application/sparql-results+json": "json",
		"":                                "json",
	}
	for accept, want := range cases {
		if got := negotiateFormat(accept); got != want {
			t.Errorf("negotiateFormat(%q) = %q, want %q", accept, got, want)
		}
	}
}
