package sparqlhttp

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestExtractPayload_GETQueryParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/sparql?query=SELECT+%2A", nil)
	payload, err := extractPayload(req, "query", "application/sparql-query")
	if err != nil {
		t.Fatalf("extractPayload: %v", err)
	}
	if payload != "SELECT *" {
		t.Errorf("got %q, want %q", payload, "SELECT *")
	}
}

func TestExtractPayload_DirectContentType(t *testing.T) {
	body := "SELECT * WHERE { ?s ?p ?o }"
	req := httptest.NewRequest(http.MethodPost, "/sparql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/sparql-query")
	payload, err := extractPayload(req, "query", "application/sparql-query")
	if err != nil {
		t.Fatalf("extractPayload: %v", err)
	}
	if payload != body {
		t.Errorf("got %q, want %q", payload, body)
	}
}

func TestExtractPayload_FormEncoded(t *testing.T) {
	form := url.Values{"query": {"ASK { ?s ?p ?o }"}}
	req := httptest.NewRequest(http.MethodPost, "/sparql", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	payload, err := extractPayload(req, "query", "application/sparql-query")
	if err != nil {
		t.Fatalf("extractPayload: %v", err)
	}
	if payload != "ASK { ?s ?p ?o }" {
		t.Errorf("got %q, want %q", payload, "ASK { ?s ?p ?o }")
	}
}

func TestSetCORS(t *testing.T) {
	w := httptest.NewRecorder()
	setCORS(w)
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("expected CORS origin header to be set")
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "bad query")
	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
	if !strings.Contains(w.Body.String(), "bad query") {
		t.Errorf("expected error message in body, got %q", w.Body.String())
	}
}

func TestHandleUpdate_RejectsNonPost(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/update", nil)
	w := httptest.NewRecorder()
	s.handleUpdate(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("got status %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleRoot_NotFoundForOtherPaths(t *testing.T) {
	s := &Server{}
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	s.handleRoot(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want %d", w.Code, http.StatusNotFound)
	}
}
