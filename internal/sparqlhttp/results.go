package sparqlhttp

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/relquad/sparqlrel/internal/relstore"
	"github.com/relquad/sparqlrel/internal/sparql/engine"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// SPARQL 1.1 Query Results JSON Format
// https://www.w3.org/TR/sparql11-results-json/

type jsonResults struct {
	Head    jsonHead     `json:"head"`
	Results *jsonBody    `json:"results,omitempty"`
	Boolean *bool        `json:"boolean,omitempty"`
}

type jsonHead struct {
	Vars []string `json:"vars"`
}

type jsonBody struct {
	Bindings []map[string]jsonValue `json:"bindings"`
}

type jsonValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	Lang     *string `json:"xml:lang,omitempty"`
}

func termToJSONValue(t rdf.Term) jsonValue {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return jsonValue{Type: "uri", Value: v.IRI}
	case *rdf.BlankNode:
		return jsonValue{Type: "bnode", Value: v.ID}
	case *rdf.Literal:
		out := jsonValue{Type: "literal", Value: v.Value}
		if v.Language != "" {
			lang := v.Language
			out.Lang = &lang
		} else if v.Datatype != nil {
			dt := v.Datatype.IRI
			out.Datatype = &dt
		}
		return out
	default:
		return jsonValue{Type: "literal", Value: t.String()}
	}
}

func solutionVars(solution relstore.Solution) []string {
	seen := map[string]bool{}
	var out []string
	for _, b := range solution {
		for name := range b.Vars {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func formatSelectJSON(solution relstore.Solution) ([]byte, error) {
	bindings := make([]map[string]jsonValue, 0, len(solution))
	for _, b := range solution {
		row := make(map[string]jsonValue, len(b.Vars))
		for name, term := range b.Vars {
			row[name] = termToJSONValue(term)
		}
		bindings = append(bindings, row)
	}
	out := jsonResults{
		Head:    jsonHead{Vars: solutionVars(solution)},
		Results: &jsonBody{Bindings: bindings},
	}
	return json.MarshalIndent(out, "", "  ")
}

func formatAskJSON(result bool) ([]byte, error) {
	out := jsonResults{Head: jsonHead{Vars: []string{}}, Boolean: &result}
	return json.MarshalIndent(out, "", "  ")
}

// SPARQL 1.1 Query Results XML Format
// https://www.w3.org/TR/rdf-sparql-XMLres/

func formatSelectXML(solution relstore.Solution) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<sparql xmlns=\"http://www.w3.org/2005/sparql-results#\">\n  <head>\n")
	for _, name := range solutionVars(solution) {
		fmt.Fprintf(&b, "    <variable name=%q/>\n", name)
	}
	b.WriteString("  </head>\n  <results>\n")
	for _, row := range solution {
		b.WriteString("    <result>\n")
		for name, term := range row.Vars {
			fmt.Fprintf(&b, "      <binding name=%q>\n", name)
			b.WriteString(termToXML(term, "        "))
			b.WriteString("      </binding>\n")
		}
		b.WriteString("    </result>\n")
	}
	b.WriteString("  </results>\n</sparql>\n")
	return []byte(b.String())
}

func formatAskXML(result bool) []byte {
	return []byte(fmt.Sprintf("<?xml version=\"1.0\"?>\n<sparql xmlns=\"http://www.w3.org/2005/sparql-results#\">\n  <head/>\n  <boolean>%t</boolean>\n</sparql>\n", result))
}

func termToXML(t rdf.Term, indent string) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return indent + "<uri>" + xmlEscape(v.IRI) + "</uri>\n"
	case *rdf.BlankNode:
		return indent + "<bnode>" + xmlEscape(v.ID) + "</bnode>\n"
	case *rdf.Literal:
		if v.Language != "" {
			return indent + "<literal xml:lang=\"" + v.Language + "\">" + xmlEscape(v.Value) + "</literal>\n"
		}
		if v.Datatype != nil {
			return indent + "<literal datatype=\"" + xmlEscape(v.Datatype.IRI) + "\">" + xmlEscape(v.Value) + "</literal>\n"
		}
		return indent + "<literal>" + xmlEscape(v.Value) + "</literal>\n"
	default:
		return indent + "<literal>" + xmlEscape(t.String()) + "</literal>\n"
	}
}

func xmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")
	return r.Replace(s)
}

// SPARQL 1.1 Query Results CSV and TSV Formats
// https://www.w3.org/TR/sparql11-results-csv-tsv/

func formatSelectCSV(solution relstore.Solution) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	bnodeMap := bnodeLabels(solution)
	vars := solutionVars(solution)

	if err := w.Write(vars); err != nil {
		return nil, err
	}
	for _, row := range solution {
		record := make([]string, len(vars))
		for i, name := range vars {
			if term, ok := row.Vars[name]; ok {
				record[i] = termToCSVValue(term, bnodeMap)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func formatAskCSV(result bool) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write([]string{"result"}); err != nil {
		return nil, err
	}
	value := "false"
	if result {
		value = "true"
	}
	if err := w.Write([]string{value}); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// bnodeLabels canonicalizes the blank nodes appearing in a solution to
// short labels (a, b, ..., b0, b1, ...) in order of first appearance, the
// way the CSV/TSV formats require since the UUID-backed blank node IDs
// this store produces are not meant to be read directly.
func bnodeLabels(solution relstore.Solution) map[string]string {
	labels := make(map[string]string)
	counter := 0
	for _, row := range solution {
		for _, term := range row.Vars {
			if bn, ok := term.(*rdf.BlankNode); ok {
				if _, exists := labels[bn.ID]; !exists {
					var label string
					if counter < 26 {
						label = string(rune('a' + counter))
					} else {
						label = fmt.Sprintf("b%d", counter-26)
					}
					labels[bn.ID] = label
					counter++
				}
			}
		}
	}
	return labels
}

func termToCSVValue(t rdf.Term, bnodeMap map[string]string) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return v.IRI
	case *rdf.BlankNode:
		if canonical, ok := bnodeMap[v.ID]; ok {
			return "_:" + canonical
		}
		return "_:" + v.ID
	case *rdf.Literal:
		if v.Language != "" {
			return v.Value + "@" + v.Language
		}
		return v.Value
	default:
		return t.String()
	}
}

func formatSelectTSV(solution relstore.Solution) []byte {
	var b strings.Builder
	bnodeMap := bnodeLabels(solution)
	vars := solutionVars(solution)

	for i, name := range vars {
		if i > 0 {
			b.WriteString("\t")
		}
		b.WriteString("?")
		b.WriteString(name)
	}
	b.WriteString("\n")

	for _, row := range solution {
		for i, name := range vars {
			if i > 0 {
				b.WriteString("\t")
			}
			if term, ok := row.Vars[name]; ok {
				b.WriteString(termToTSVValue(term, bnodeMap))
			}
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func formatAskTSV(result bool) []byte {
	if result {
		return []byte("?result\ntrue\n")
	}
	return []byte("?result\nfalse\n")
}

func termToTSVValue(t rdf.Term, bnodeMap map[string]string) string {
	switch v := t.(type) {
	case *rdf.NamedNode:
		return "<" + v.IRI + ">"
	case *rdf.BlankNode:
		if canonical, ok := bnodeMap[v.ID]; ok {
			return "_:" + canonical
		}
		return "_:" + v.ID
	case *rdf.Literal:
		if v.Language != "" {
			return "\"" + escapeTSVString(v.Value) + "\"@" + v.Language
		}
		if v.Datatype != nil {
			switch v.Datatype.IRI {
			case "http://www.w3.org/2001/XMLSchema#integer", "http://www.w3.org/2001/XMLSchema#decimal", "http://www.w3.org/2001/XMLSchema#double":
				return v.Value
			}
			return "\"" + escapeTSVString(v.Value) + "\"^^<" + v.Datatype.IRI + ">"
		}
		return "\"" + escapeTSVString(v.Value) + "\""
	default:
		return t.String()
	}
}

func escapeTSVString(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\t", "\\t", "\n", "\\n", "\r", "\\r", "\"", "\\\"")
	return r.Replace(s)
}

// N-Triples, used for CONSTRUCT/DESCRIBE's Graph result.

func formatGraphNTriples(g engine.Graph) []byte {
	var b strings.Builder
	for _, tr := range g {
		writeNTriplesTerm(&b, tr.Subject)
		b.WriteByte(' ')
		writeNTriplesTerm(&b, tr.Predicate)
		b.WriteByte(' ')
		writeNTriplesTerm(&b, tr.Object)
		b.WriteString(" .\n")
	}
	return []byte(b.String())
}

func writeNTriplesTerm(b *strings.Builder, t rdf.Term) {
	switch v := t.(type) {
	case *rdf.NamedNode:
		b.WriteByte('<')
		b.WriteString(v.IRI)
		b.WriteByte('>')
	case *rdf.BlankNode:
		b.WriteString("_:")
		b.WriteString(v.ID)
	case *rdf.Literal:
		b.WriteByte('"')
		b.WriteString(escapeNTriplesString(v.Value))
		b.WriteByte('"')
		if v.Language != "" {
			b.WriteByte('@')
			b.WriteString(v.Language)
		} else if v.Datatype != nil {
			b.WriteString("^^<")
			b.WriteString(v.Datatype.IRI)
			b.WriteByte('>')
		}
	default:
		b.WriteString(t.String())
	}
}

func escapeNTriplesString(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n", "\r", "\\r", "\t", "\\t")
	return r.Replace(s)
}

// writeResult dispatches on the engine.Result's concrete type and the
// negotiated format.
func writeResult(w http.ResponseWriter, result engine.Result, format string) {
	switch r := result.(type) {
	case engine.Graph:
		w.Header().Set("Content-Type", "application/n-triples; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(formatGraphNTriples(r))
	case engine.BooleanResult:
		writeBoolean(w, bool(r), format)
	case engine.SolutionSequence:
		writeSolution(w, relstore.Solution(r), format)
	default:
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("unrecognized result type %T", result))
	}
}

func writeBoolean(w http.ResponseWriter, result bool, format string) {
	switch format {
	case "xml":
		w.Header().Set("Content-Type", "application/sparql-results+xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(formatAskXML(result))
	case "csv":
		data, err := formatAskCSV(result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "tsv":
		w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(formatAskTSV(result))
	default:
		data, err := formatAskJSON(result)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/sparql-results+json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func writeSolution(w http.ResponseWriter, solution relstore.Solution, format string) {
	switch format {
	case "xml":
		w.Header().Set("Content-Type", "application/sparql-results+xml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(formatSelectXML(solution))
	case "csv":
		data, err := formatSelectCSV(solution)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "tsv":
		w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(formatSelectTSV(solution))
	default:
		data, err := formatSelectJSON(solution)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/sparql-results+json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
