// Package sparqlhttp implements the SPARQL 1.1 Protocol over HTTP
// (https://www.w3.org/TR/sparql11-protocol/), the same query-string/body
// handling and Accept-header negotiation the teacher's internal/server
// package used, adapted to run against an engine.Engine instead of an
// in-process triplestore.
package sparqlhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/internal/sparql/engine"
)

// Server is the HTTP SPARQL endpoint.
type Server struct {
	engine *engine.Engine
	addr   string
	log    *zap.Logger
}

// NewServer builds a Server bound to addr, serving queries and updates
// against eng.
func NewServer(eng *engine.Engine, addr string, log *zap.Logger) *Server {
	return &Server{engine: eng, addr: addr, log: log}
}

// Start runs the HTTP server until it errors or the process is killed.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/sparql", s.handleQuery)
	mux.HandleFunc("/update", s.handleUpdate)
	mux.HandleFunc("/", s.handleRoot)

	httpServer := &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("sparql endpoint starting", zap.String("addr", s.addr))
	return httpServer.ListenAndServe()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "sparqlrel endpoint\nquery:  POST/GET /sparql\nupdate: POST /update\n")
}

// handleQuery serves SPARQL 1.1 Protocol query requests: the query text
// arrives as a "query" URL parameter on GET, or as the POST body (either
// application/sparql-query or application/x-www-form-urlencoded).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	queryText, err := extractPayload(r, "query", "application/sparql-query")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if queryText == "" {
		writeError(w, http.StatusBadRequest, "missing 'query' parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	result, err := s.engine.ExecuteQuery(ctx, queryText)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	format := negotiateFormat(r.Header.Get("Accept"))
	writeResult(w, result, format)
}

// handleUpdate serves SPARQL 1.1 Protocol update requests: the update text
// arrives as an "update" form parameter or as the raw POST body when the
// content type is application/sparql-update.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "update requires POST")
		return
	}

	updateText, err := extractPayload(r, "update", "application/sparql-update")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if updateText == "" {
		writeError(w, http.StatusBadRequest, "missing 'update' parameter")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.engine.ExecuteUpdate(ctx, updateText); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func extractPayload(r *http.Request, formField, directContentType string) (string, error) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get(formField), nil
	}

	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, directContentType):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("reading request body: %w", err)
		}
		return string(body), nil
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return "", fmt.Errorf("parsing form: %w", err)
		}
		return r.FormValue(formField), nil
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return "", fmt.Errorf("reading request body: %w", err)
		}
		return string(body), nil
	}
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
}

func negotiateFormat(accept string) string {
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "application/sparql-results+xml") || strings.Contains(accept, "text/xml"):
		return "xml"
	case strings.Contains(accept, "text/csv"):
		return "csv"
	case strings.Contains(accept, "text/tab-separated-values"):
		return "tsv"
	default:
		return "json"
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, status, message)
}
