package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/relquad/sparqlrel/internal/config"
	"github.com/relquad/sparqlrel/internal/sparql/engine"
	"github.com/relquad/sparqlrel/internal/sparqlhttp"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: sparqlrel <command> [args]")
		fmt.Println("Commands:")
		fmt.Println("  demo          - run a demo against a scratch space, inserting and querying sample data")
		fmt.Println("  query <q>     - execute a SPARQL query")
		fmt.Println("  update <u>    - execute a SPARQL update")
		fmt.Println("  serve [addr]  - start the HTTP SPARQL endpoint (default: localhost:8080)")
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.FromEnv()

	switch command := os.Args[1]; command {
	case "demo":
		runDemo(cfg, logger)
	case "query":
		if len(os.Args) < 3 {
			fmt.Println("Usage: sparqlrel query <sparql-query>")
			os.Exit(1)
		}
		runQuery(cfg, logger, os.Args[2])
	case "update":
		if len(os.Args) < 3 {
			fmt.Println("Usage: sparqlrel update <sparql-update>")
			os.Exit(1)
		}
		runUpdate(cfg, logger, os.Args[2])
	case "serve":
		addr := "localhost:8080"
		if len(os.Args) >= 3 {
			addr = os.Args[2]
		}
		runServer(cfg, logger, addr)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}

func openEngine(cfg *config.Config, logger *zap.Logger) *engine.Engine {
	ctx := context.Background()
	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening engine", zap.Error(err))
	}
	if err := eng.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensuring schema", zap.Error(err))
	}
	return eng
}

func runDemo(cfg *config.Config, logger *zap.Logger) {
	fmt.Println("=== sparqlrel demo ===")
	fmt.Println()

	eng := openEngine(cfg, logger)
	defer eng.Close()
	ctx := context.Background()

	fmt.Println("Loading sample data...")
	insertSampleData(ctx, eng, logger)

	query := `
		SELECT ?person ?name ?age
		WHERE {
			?person <http://xmlns.com/foaf/0.1/name> ?name .
			?person <http://xmlns.com/foaf/0.1/age> ?age .
		}
		ORDER BY ?name
	`
	fmt.Printf("Query:\n%s\n", query)

	result, err := eng.ExecuteQuery(ctx, query)
	if err != nil {
		logger.Fatal("executing demo query", zap.Error(err))
	}

	solution, ok := result.(engine.SolutionSequence)
	if !ok {
		logger.Fatal("demo query did not return a solution sequence")
	}

	fmt.Println("Results:")
	for _, b := range solution {
		person, _ := b.Get("person")
		name, _ := b.Get("name")
		age, _ := b.Get("age")
		fmt.Printf("  %-30s name=%-10s age=%s\n", formatTerm(person), formatTerm(name), formatTerm(age))
	}
	fmt.Printf("\nFound %d results\n", len(solution))
	fmt.Println("\n=== Demo Complete ===")
}

func insertSampleData(ctx context.Context, eng *engine.Engine, logger *zap.Logger) {
	update := `
		PREFIX foaf: <http://xmlns.com/foaf/0.1/>
		INSERT DATA {
			<http://example.org/alice> foaf:name "Alice" ; foaf:age "30"^^<http://www.w3.org/2001/XMLSchema#integer> ; foaf:knows <http://example.org/bob> .
			<http://example.org/bob> foaf:name "Bob" ; foaf:age "25"^^<http://www.w3.org/2001/XMLSchema#integer> ; foaf:knows <http://example.org/carol> .
			<http://example.org/carol> foaf:name "Carol" ; foaf:age "28"^^<http://www.w3.org/2001/XMLSchema#integer> .
			GRAPH <http://example.org/graph1> {
				<http://example.org/alice> foaf:name "Alice in Graph1" .
				<http://example.org/bob> foaf:name "Bob in Graph1" .
			}
		}
	`
	if err := eng.ExecuteUpdate(ctx, update); err != nil {
		logger.Fatal("inserting sample data", zap.Error(err))
	}
}

func runQuery(cfg *config.Config, logger *zap.Logger, queryText string) {
	eng := openEngine(cfg, logger)
	defer eng.Close()

	result, err := eng.ExecuteQuery(context.Background(), queryText)
	if err != nil {
		logger.Fatal("executing query", zap.Error(err))
	}
	printResult(result)
}

func runUpdate(cfg *config.Config, logger *zap.Logger, updateText string) {
	eng := openEngine(cfg, logger)
	defer eng.Close()

	if err := eng.ExecuteUpdate(context.Background(), updateText); err != nil {
		logger.Fatal("executing update", zap.Error(err))
	}
	fmt.Println("Update applied.")
}

func runServer(cfg *config.Config, logger *zap.Logger, addr string) {
	eng := openEngine(cfg, logger)
	defer eng.Close()

	srv := sparqlhttp.NewServer(eng, addr, logger)
	fmt.Printf("SPARQL endpoint starting at http://%s/sparql\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func printResult(result engine.Result) {
	switch r := result.(type) {
	case engine.SolutionSequence:
		for _, b := range r {
			for name, term := range b.Vars {
				fmt.Printf("  %s = %s\n", name, formatTerm(term))
			}
			fmt.Println()
		}
		fmt.Printf("Found %d results\n", len(r))
	case engine.BooleanResult:
		fmt.Printf("Result: %t\n", bool(r))
	case engine.Graph:
		for _, tr := range r {
			fmt.Printf("%s %s %s .\n", formatTerm(tr.Subject), formatTerm(tr.Predicate), formatTerm(tr.Object))
		}
		fmt.Printf("\nConstructed %d triples\n", len(r))
	}
}

// formatTerm shortens an IRI to its local name (the fragment or last path
// segment) and renders literals as bare values, the way a query's output
// table is meant to be read at a glance rather than as full N-Triples.
func formatTerm(term rdf.Term) string {
	if term == nil {
		return ""
	}
	switch t := term.(type) {
	case *rdf.NamedNode:
		iri := t.IRI
		for i := len(iri) - 1; i >= 0; i-- {
			if iri[i] == '/' || iri[i] == '#' {
				return iri[i+1:]
			}
		}
		return iri
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}
