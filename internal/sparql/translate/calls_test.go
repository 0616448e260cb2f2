package translate

import (
	"strings"
	"testing"

	"github.com/relquad/sparqlrel/internal/sparql/algebra"
	"github.com/relquad/sparqlrel/pkg/rdf"
)

// bindVar binds v in scope to a fresh literal term join alias so Call
// arguments referencing it have somewhere to resolve to, without needing a
// live Translate over a BGP.
func bindVar(scope *Scope, v algebra.Var) {
	scope.Bind(v, termColumnRef(scope.Aliases().TermJoin("x")))
}

func callOf(name string, args ...algebra.Expr) algebra.Call {
	return algebra.Call{Name: name, Args: args}
}

func TestCompileCall_Bound(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("BOUND", algebra.VarExpr{Var: varOf("x")}), scope)
	if err != nil {
		t.Fatalf("compileCall(BOUND): %v", err)
	}
	if !strings.Contains(got.Text, "IS NOT NULL") {
		t.Errorf("expected BOUND to compile to an IS NOT NULL check, got %s", got.Text)
	}
}

func TestCompileCall_BoundUnresolvedVariableIsFalse(t *testing.T) {
	tr := testTranslator()
	scope := testScope()

	got, err := tr.compiler.compileCall(callOf("BOUND", algebra.VarExpr{Var: varOf("never_bound")}), scope)
	if err != nil {
		t.Fatalf("compileCall(BOUND): %v", err)
	}
	if got.Text != "(FALSE)::text" {
		t.Errorf("expected BOUND on an unbound variable to compile to FALSE, got %s", got.Text)
	}
}

func TestCompileCall_Str(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("STR", algebra.VarExpr{Var: varOf("x")}), scope)
	if err != nil {
		t.Fatalf("compileCall(STR): %v", err)
	}
	if got.Datatype != "'"+rdf.XSDString.IRI+"'" {
		t.Errorf("expected STR to produce an xsd:string literal, got datatype %s", got.Datatype)
	}
}

func TestCompileCall_Datatype_ReturnsIRIKind(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("DATATYPE", algebra.VarExpr{Var: varOf("x")}), scope)
	if err != nil {
		t.Fatalf("compileCall(DATATYPE): %v", err)
	}
	if !strings.Contains(got.Type, string(rdf.KindIRI)) {
		t.Errorf("expected DATATYPE()'s result to carry IRI kind %q, got type expr %s", rdf.KindIRI, got.Type)
	}
}

func TestCompileCall_Regex(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("REGEX",
		algebra.VarExpr{Var: varOf("x")},
		algebra.LitExpr{Value: rdf.NewLiteral("^a.*z$")},
	), scope)
	if err != nil {
		t.Fatalf("compileCall(REGEX): %v", err)
	}
	if !strings.Contains(got.Text, "~") {
		t.Errorf("expected REGEX to compile to a ~ match, got %s", got.Text)
	}
}

func TestCompileCall_RegexWithFlagsEmbedsInlineModifier(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("REGEX",
		algebra.VarExpr{Var: varOf("x")},
		algebra.LitExpr{Value: rdf.NewLiteral("abc")},
		algebra.LitExpr{Value: rdf.NewLiteral("i")},
	), scope)
	if err != nil {
		t.Fatalf("compileCall(REGEX with flags): %v", err)
	}
	if !strings.Contains(got.Text, "(?") {
		t.Errorf("expected the flags form to embed an inline (?i) modifier, got %s", got.Text)
	}
}

func TestCompileCall_Sha256UsesDigest(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("SHA256", algebra.VarExpr{Var: varOf("x")}), scope)
	if err != nil {
		t.Fatalf("compileCall(SHA256): %v", err)
	}
	if !strings.Contains(got.Text, "digest(") || !strings.Contains(got.Text, "sha256") {
		t.Errorf("expected SHA256 to compile via pgcrypto's digest(), got %s", got.Text)
	}
}

func TestCompileCall_Md5UsesCoreFunction(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf("MD5", algebra.VarExpr{Var: varOf("x")}), scope)
	if err != nil {
		t.Fatalf("compileCall(MD5): %v", err)
	}
	if !strings.Contains(got.Text, "md5(") {
		t.Errorf("expected MD5 to compile to md5(...), got %s", got.Text)
	}
}

func TestCompileCall_XSDCastRelabelsDatatype(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	got, err := tr.compiler.compileCall(callOf(rdf.XSDInteger.IRI, algebra.VarExpr{Var: varOf("x")}), scope)
	if err != nil {
		t.Fatalf("compileCall(xsd:integer cast): %v", err)
	}
	if got.Datatype != "'"+rdf.XSDInteger.IRI+"'" {
		t.Errorf("expected the cast to relabel the datatype to xsd:integer, got %s", got.Datatype)
	}
}

func TestCompileCall_UnknownFunctionIsUnsupported(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))

	_, err := tr.compiler.compileCall(callOf("NOT_A_REAL_FUNCTION", algebra.VarExpr{Var: varOf("x")}), scope)
	if err == nil {
		t.Fatal("expected an error for an unrecognized function name")
	}
}

func TestCompileCall_Coalesce(t *testing.T) {
	tr := testTranslator()
	scope := testScope()
	bindVar(scope, varOf("x"))
	bindVar(scope, varOf("y"))

	got, err := tr.compiler.compileCall(callOf("COALESCE",
		algebra.VarExpr{Var: varOf("x")},
		algebra.VarExpr{Var: varOf("y")},
	), scope)
	if err != nil {
		t.Fatalf("compileCall(COALESCE): %v", err)
	}
	if !strings.Contains(got.Text, "COALESCE") {
		t.Errorf("expected COALESCE to compile to a SQL COALESCE, got %s", got.Text)
	}
}
