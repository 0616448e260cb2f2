package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/relquad/sparqlrel/pkg/rdf"
)

// Parser parses SPARQL 1.1 query and update text into this package's AST.
// It is a hand-rolled recursive-descent parser over the raw byte string: no
// separate tokenizer pass, position tracked as a byte offset, backtracking
// done by saving and restoring pos.
type Parser struct {
	input    string
	pos      int
	length   int
	prefixes map[string]string
}

// NewParser creates a new SPARQL parser.
func NewParser(input string) *Parser {
	return &Parser{
		input:    input,
		pos:      0,
		length:   len(input),
		prefixes: make(map[string]string),
	}
}

// Parse parses a SPARQL query (SELECT/CONSTRUCT/ASK/DESCRIBE).
func (p *Parser) Parse() (*Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}

	queryType, err := p.parseQueryType()
	if err != nil {
		return nil, err
	}

	query := &Query{QueryType: queryType}

	switch queryType {
	case QueryTypeSelect:
		q, err := p.parseSelectBody()
		if err != nil {
			return nil, err
		}
		query.Select = q
	case QueryTypeAsk:
		q, err := p.parseAsk()
		if err != nil {
			return nil, err
		}
		query.Ask = q
	case QueryTypeConstruct:
		q, err := p.parseConstruct()
		if err != nil {
			return nil, err
		}
		query.Construct = q
	case QueryTypeDescribe:
		q, err := p.parseDescribe()
		if err != nil {
			return nil, err
		}
		query.Describe = q
	}

	return query, nil
}

// ParseUpdate parses a SPARQL 1.1 Update request: a ';'-separated sequence
// of update operations executed together as one unit by the update
// executor.
func (p *Parser) ParseUpdate() (*Update, error) {
	update := &Update{}

	for {
		if err := p.parsePrologue(); err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.pos >= p.length {
			break
		}

		op, err := p.parseUpdateOperation()
		if err != nil {
			return nil, err
		}
		update.Operations = append(update.Operations, op)

		p.skipWhitespace()
		if p.peek() == ';' {
			p.advance()
			continue
		}
		break
	}

	return update, nil
}

func (p *Parser) parsePrologue() error {
	for {
		p.skipWhitespace()
		if p.matchKeyword("PREFIX") {
			if err := p.skipPrefix(); err != nil {
				return err
			}
		} else if p.matchKeyword("BASE") {
			if err := p.skipBase(); err != nil {
				return err
			}
		} else {
			return nil
		}
	}
}

func (p *Parser) parseUpdateOperation() (UpdateOperation, error) {
	switch {
	case p.matchKeyword("INSERT"):
		p.skipWhitespace()
		if p.matchKeyword("DATA") {
			return p.parseInsertData()
		}
		return p.parseModify(nil, true)
	case p.matchKeyword("DELETE"):
		p.skipWhitespace()
		if p.matchKeyword("DATA") {
			return p.parseDeleteData()
		}
		if p.matchKeyword("WHERE") {
			return p.parseDeleteWhereShorthand()
		}
		return p.parseModify(nil, false)
	case p.matchKeyword("WITH"):
		graph, err := p.parseIRIOrPrefixedAsNode()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.matchKeyword("DELETE") {
			return p.parseModify(graph, false)
		}
		if p.matchKeyword("INSERT") {
			return p.parseModify(graph, true)
		}
		return nil, fmt.Errorf("expected DELETE or INSERT after WITH")
	case p.matchKeyword("CREATE"):
		return p.parseGraphManagement(GraphOpCreate)
	case p.matchKeyword("DROP"):
		return p.parseGraphManagement(GraphOpDrop)
	case p.matchKeyword("CLEAR"):
		return p.parseGraphManagement(GraphOpClear)
	case p.matchKeyword("COPY"):
		return p.parseGraphManagement(GraphOpCopy)
	case p.matchKeyword("MOVE"):
		return p.parseGraphManagement(GraphOpMove)
	case p.matchKeyword("ADD"):
		return p.parseGraphManagement(GraphOpAdd)
	}
	return nil, fmt.Errorf("unrecognized update operation")
}

func (p *Parser) parseInsertData() (*InsertDataOp, error) {
	quads, err := p.parseQuadData()
	if err != nil {
		return nil, err
	}
	return &InsertDataOp{Quads: quads}, nil
}

func (p *Parser) parseDeleteData() (*DeleteDataOp, error) {
	quads, err := p.parseQuadData()
	if err != nil {
		return nil, err
	}
	return &DeleteDataOp{Quads: quads}, nil
}

// parseQuadData parses the ground-term-only quad block used by INSERT DATA
// / DELETE DATA: bare triples in the default graph, or GRAPH <iri> { ... }
// blocks. Never variables.
func (p *Parser) parseQuadData() ([]*QuadPattern, error) {
	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start quad data")
	}
	p.advance()

	var quads []*QuadPattern
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}
		if p.matchKeyword("GRAPH") {
			p.skipWhitespace()
			iri, err := p.parseIRI()
			if err != nil {
				return nil, err
			}
			graph := &GraphTerm{IRI: rdf.NewNamedNode(iri)}
			p.skipWhitespace()
			if p.peek() != '{' {
				return nil, fmt.Errorf("expected '{' after GRAPH in quad data")
			}
			p.advance()
			for {
				p.skipWhitespace()
				if p.peek() == '}' {
					p.advance()
					break
				}
				t, err := p.parseTriplePattern()
				if err != nil {
					return nil, err
				}
				quads = append(quads, &QuadPattern{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: graph})
				p.skipWhitespace()
				if p.peek() == '.' {
					p.advance()
				}
			}
			continue
		}
		t, err := p.parseTriplePattern()
		if err != nil {
			return nil, err
		}
		quads = append(quads, &QuadPattern{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object})
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}
	return quads, nil
}

func (p *Parser) parseDeleteWhereShorthand() (*ModifyOp, error) {
	pattern, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	quads := patternToQuadTemplate(pattern, nil)
	return &ModifyOp{Delete: quads, Where: pattern}, nil
}

func (p *Parser) parseModify(withGraph *rdf.NamedNode, insertFirst bool) (*ModifyOp, error) {
	op := &ModifyOp{WithGraph: withGraph}

	parseTemplate := func() ([]*QuadPattern, error) {
		p.skipWhitespace()
		return p.parseQuadTemplate()
	}

	if insertFirst {
		tmpl, err := parseTemplate()
		if err != nil {
			return nil, err
		}
		op.Insert = tmpl
		p.skipWhitespace()
		if p.matchKeyword("DELETE") {
			p.skipWhitespace()
			tmpl, err := parseTemplate()
			if err != nil {
				return nil, err
			}
			op.Delete = tmpl
		}
	} else {
		tmpl, err := parseTemplate()
		if err != nil {
			return nil, err
		}
		op.Delete = tmpl
		p.skipWhitespace()
		if p.matchKeyword("INSERT") {
			p.skipWhitespace()
			tmpl, err := parseTemplate()
			if err != nil {
				return nil, err
			}
			op.Insert = tmpl
		}
	}

	p.skipWhitespace()
	for p.matchKeyword("USING") {
		p.skipWhitespace()
		named := p.matchKeyword("NAMED")
		p.skipWhitespace()
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		op.Using = append(op.Using, UsingClause{Graph: rdf.NewNamedNode(iri), Named: named})
		p.skipWhitespace()
	}

	if !p.matchKeyword("WHERE") {
		return nil, fmt.Errorf("expected WHERE in DELETE/INSERT update")
	}
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	op.Where = where
	return op, nil
}

// parseQuadTemplate parses a modify template's { ... } block, where quads
// may reference variables bound by WHERE, and may be wrapped in GRAPH
// blocks naming a fixed graph or a shared WHERE variable.
func (p *Parser) parseQuadTemplate() ([]*QuadPattern, error) {
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start quad template")
	}
	p.advance()

	var quads []*QuadPattern
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}
		if p.matchKeyword("GRAPH") {
			p.skipWhitespace()
			graph := &GraphTerm{}
			if p.peek() == '?' || p.peek() == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				graph.Variable = v
			} else {
				iri, err := p.parseIRI()
				if err != nil {
					return nil, err
				}
				graph.IRI = rdf.NewNamedNode(iri)
			}
			p.skipWhitespace()
			if p.peek() != '{' {
				return nil, fmt.Errorf("expected '{' after GRAPH in quad template")
			}
			p.advance()
			for {
				p.skipWhitespace()
				if p.peek() == '}' {
					p.advance()
					break
				}
				t, err := p.parseTriplePattern()
				if err != nil {
					return nil, err
				}
				quads = append(quads, &QuadPattern{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: graph})
				p.skipWhitespace()
				if p.peek() == '.' {
					p.advance()
				}
			}
			continue
		}
		t, err := p.parseTriplePattern()
		if err != nil {
			return nil, err
		}
		quads = append(quads, &QuadPattern{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object})
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}
	return quads, nil
}

// patternToQuadTemplate converts a parsed WHERE graph pattern into a quad
// template for DELETE WHERE shorthand, where the template mirrors the
// pattern's basic triples exactly.
func patternToQuadTemplate(gp *GraphPattern, graph *GraphTerm) []*QuadPattern {
	var quads []*QuadPattern
	for _, t := range gp.Patterns {
		quads = append(quads, &QuadPattern{Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: graph})
	}
	for _, child := range gp.Children {
		quads = append(quads, patternToQuadTemplate(child, graph)...)
	}
	return quads
}

func (p *Parser) parseGraphManagement(kind GraphManagementKind) (*GraphManagementOp, error) {
	op := &GraphManagementOp{Kind: kind}
	p.skipWhitespace()
	op.Silent = p.matchKeyword("SILENT")
	p.skipWhitespace()

	readRef := func() (GraphRef, error) {
		p.skipWhitespace()
		if p.matchKeyword("DEFAULT") {
			return GraphRef{Default: true}, nil
		}
		if p.matchKeyword("NAMED") {
			return GraphRef{Named: true}, nil
		}
		if p.matchKeyword("ALL") {
			return GraphRef{All: true}, nil
		}
		iri, err := p.parseIRI()
		if err != nil {
			return GraphRef{}, err
		}
		return GraphRef{IRI: rdf.NewNamedNode(iri)}, nil
	}

	switch kind {
	case GraphOpCreate, GraphOpDrop, GraphOpClear:
		p.matchKeyword("GRAPH")
		ref, err := readRef()
		if err != nil {
			return nil, err
		}
		op.Target = ref
	case GraphOpCopy, GraphOpMove, GraphOpAdd:
		from, err := readRef()
		if err != nil {
			return nil, err
		}
		op.From = from
		p.skipWhitespace()
		if !p.matchKeyword("TO") {
			return nil, fmt.Errorf("expected TO in graph management operation")
		}
		to, err := readRef()
		if err != nil {
			return nil, err
		}
		op.To = to
	}
	return op, nil
}

func (p *Parser) parseIRIOrPrefixedAsNode() (*rdf.NamedNode, error) {
	p.skipWhitespace()
	if p.peek() == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return rdf.NewNamedNode(iri), nil
	}
	iri, err := p.parsePrefixedName()
	if err != nil {
		return nil, err
	}
	return rdf.NewNamedNode(iri), nil
}

// ---- Query-form parsing ----

func (p *Parser) parseQueryType() (QueryType, error) {
	p.skipWhitespace()
	if p.matchKeyword("SELECT") {
		return QueryTypeSelect, nil
	}
	if p.matchKeyword("CONSTRUCT") {
		return QueryTypeConstruct, nil
	}
	if p.matchKeyword("ASK") {
		return QueryTypeAsk, nil
	}
	if p.matchKeyword("DESCRIBE") {
		return QueryTypeDescribe, nil
	}
	return 0, fmt.Errorf("expected query type (SELECT, CONSTRUCT, ASK, DESCRIBE)")
}

// parseSelectBody parses everything after the SELECT keyword, shared
// between a top-level SELECT query and a nested subquery.
func (p *Parser) parseSelectBody() (*SelectQuery, error) {
	query := &SelectQuery{}

	if p.matchKeyword("DISTINCT") {
		query.Distinct = true
	} else if p.matchKeyword("REDUCED") {
		query.Reduced = true
	}

	if err := p.parseProjection(query); err != nil {
		return nil, err
	}

	for p.matchKeyword("FROM") {
		p.skipWhitespace()
		p.matchKeyword("NAMED")
		p.skipWhitespace()
		if _, err := p.parseIRI(); err != nil {
			return nil, err
		}
		p.skipWhitespace()
	}

	p.matchKeyword("WHERE")
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where

	if p.matchKeyword("GROUP") {
		if !p.matchKeyword("BY") {
			return nil, fmt.Errorf("expected BY after GROUP")
		}
		groupBy, err := p.parseGroupBy()
		if err != nil {
			return nil, err
		}
		query.GroupBy = groupBy
	}

	if p.matchKeyword("HAVING") {
		having, err := p.parseHaving()
		if err != nil {
			return nil, err
		}
		query.Having = having
	}

	if p.matchKeyword("ORDER") {
		if !p.matchKeyword("BY") {
			return nil, fmt.Errorf("expected BY after ORDER")
		}
		orderBy, err := p.parseOrderBy()
		if err != nil {
			return nil, err
		}
		query.OrderBy = orderBy
	}

	if p.matchKeyword("LIMIT") {
		limit, err := p.parseInteger()
		if err != nil {
			return nil, err
		}
		query.Limit = &limit
	}

	if p.matchKeyword("OFFSET") {
		offset, err := p.parseInteger()
		if err != nil {
			return nil, err
		}
		query.Offset = &offset
	}

	return query, nil
}

func (p *Parser) parseAsk() (*AskQuery, error) {
	query := &AskQuery{}
	p.matchKeyword("WHERE")
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where
	return query, nil
}

func (p *Parser) parseConstruct() (*ConstructQuery, error) {
	query := &ConstructQuery{}
	p.skipWhitespace()

	if p.matchKeyword("WHERE") {
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		if len(where.Filters) > 0 {
			return nil, fmt.Errorf("CONSTRUCT WHERE cannot contain FILTER expressions")
		}
		query.Where = where
		query.Template = where.Patterns
		return query, nil
	}

	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start CONSTRUCT template or WHERE keyword")
	}
	p.advance()

	var template []*TriplePattern
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}
		t, err := p.parseTriplePattern()
		if err != nil {
			return nil, err
		}
		template = append(template, t)
		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}
	query.Template = template

	if !p.matchKeyword("WHERE") {
		return nil, fmt.Errorf("expected WHERE clause")
	}
	where, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}
	query.Where = where
	return query, nil
}

func (p *Parser) parseDescribe() (*DescribeQuery, error) {
	query := &DescribeQuery{}
	p.skipWhitespace()

	if p.peek() == '*' {
		p.advance()
	} else {
		for {
			p.skipWhitespace()
			ch := p.peek()
			if ch == '?' || ch == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				query.Resources = append(query.Resources, TermOrVariable{Variable: v})
			} else if ch == '<' {
				iri, err := p.parseIRI()
				if err != nil {
					return nil, err
				}
				query.Resources = append(query.Resources, TermOrVariable{Term: rdf.NewNamedNode(iri)})
			} else if isPNameStart(ch) {
				iri, err := p.parsePrefixedName()
				if err != nil {
					return nil, err
				}
				query.Resources = append(query.Resources, TermOrVariable{Term: rdf.NewNamedNode(iri)})
			} else {
				break
			}
		}
	}

	p.skipWhitespace()
	if p.matchKeyword("WHERE") || p.peek() == '{' {
		where, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		query.Where = where
	}
	return query, nil
}

func isPNameStart(ch byte) bool {
	return ch == ':' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

// parseProjection parses the SELECT item list: '*', or a mix of bare
// variables and (expr AS ?var) computed columns.
func (p *Parser) parseProjection(query *SelectQuery) error {
	p.skipWhitespace()

	if p.peek() == '*' {
		p.advance()
		query.Star = true
		return nil
	}

	for {
		p.skipWhitespace()
		ch := p.peek()

		if ch == '(' {
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return err
			}
			p.skipWhitespace()
			if !p.matchKeyword("AS") {
				return fmt.Errorf("expected AS in projected expression")
			}
			p.skipWhitespace()
			v, err := p.parseVariable()
			if err != nil {
				return err
			}
			p.skipWhitespace()
			if p.peek() != ')' {
				return fmt.Errorf("expected ')' to close projected expression")
			}
			p.advance()
			query.Items = append(query.Items, &ProjectItem{Variable: v, Expr: expr})
			continue
		}

		if ch != '?' && ch != '$' {
			break
		}
		v, err := p.parseVariable()
		if err != nil {
			return err
		}
		query.Items = append(query.Items, &ProjectItem{Variable: v})
	}

	if len(query.Items) == 0 {
		return fmt.Errorf("expected at least one projected variable or *")
	}
	return nil
}

// ---- Graph pattern parsing ----

func (p *Parser) parseGraphPattern() (*GraphPattern, error) {
	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start graph pattern")
	}
	p.advance()

	pattern := &GraphPattern{Type: GraphPatternTypeBasic}

	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}

		if p.matchKeyword("GRAPH") {
			gp, err := p.parseGraphGraphPattern()
			if err != nil {
				return nil, err
			}
			pattern.Children = append(pattern.Children, gp)
			continue
		}

		if p.matchKeyword("FILTER") {
			filter, err := p.parseFilterClause()
			if err != nil {
				return nil, err
			}
			pattern.Filters = append(pattern.Filters, filter)
			continue
		}

		if p.matchKeyword("BIND") {
			bind, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			pattern.Binds = append(pattern.Binds, bind)
			continue
		}

		if p.matchKeyword("VALUES") {
			values, err := p.parseValuesBlock()
			if err != nil {
				return nil, err
			}
			pattern.Values = values
			continue
		}

		if p.matchKeyword("OPTIONAL") {
			optionalPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			optionalPattern.Type = GraphPatternTypeOptional
			pattern.Children = append(pattern.Children, optionalPattern)
			continue
		}

		if p.matchKeyword("MINUS") {
			minusPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			minusPattern.Type = GraphPatternTypeMinus
			pattern.Children = append(pattern.Children, minusPattern)
			continue
		}

		if p.peek() == '{' {
			save := p.pos
			sub, isSub, err := p.tryParseSubquery()
			if err != nil {
				return nil, err
			}
			if isSub {
				pattern.Children = append(pattern.Children, sub)
				continue
			}
			p.pos = save

			nestedPattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}

			p.skipWhitespace()
			if p.matchKeyword("UNION") {
				branches := []*GraphPattern{nestedPattern}
				for {
					rightPattern, err := p.parseGraphPattern()
					if err != nil {
						return nil, err
					}
					branches = append(branches, rightPattern)
					p.skipWhitespace()
					if !p.matchKeyword("UNION") {
						break
					}
				}
				unionPattern := &GraphPattern{Type: GraphPatternTypeUnion, Children: branches}
				pattern.Children = append(pattern.Children, unionPattern)
				continue
			}

			pattern.Children = append(pattern.Children, nestedPattern)
			continue
		}

		triple, pathTriple, err := p.parseTripleOrPath()
		if err != nil {
			return nil, err
		}
		if pathTriple != nil {
			pattern.PathTriples = append(pattern.PathTriples, pathTriple)
		} else {
			pattern.Patterns = append(pattern.Patterns, triple)
		}

		p.skipWhitespace()
		if p.peek() == '.' {
			p.advance()
		}
	}

	return pattern, nil
}

// tryParseSubquery attempts to parse "{ SELECT ... }" at the current
// position, returning isSub=false if the group does not start with SELECT;
// callers must restore p.pos on a false return.
func (p *Parser) tryParseSubquery() (*GraphPattern, bool, error) {
	if p.peek() != '{' {
		return nil, false, nil
	}
	p.advance()
	p.skipWhitespace()
	if err := p.parsePrologue(); err != nil {
		return nil, false, err
	}
	if !p.matchKeyword("SELECT") {
		return nil, false, nil
	}
	sub, err := p.parseSelectBody()
	if err != nil {
		return nil, false, err
	}
	p.skipWhitespace()
	if p.peek() != '}' {
		return nil, false, fmt.Errorf("expected '}' to close subquery")
	}
	p.advance()
	return &GraphPattern{Type: GraphPatternTypeSubquery, Subquery: sub}, true, nil
}

func (p *Parser) parseGraphGraphPattern() (*GraphPattern, error) {
	p.skipWhitespace()
	graphTerm := &GraphTerm{}

	if p.peek() == '?' || p.peek() == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		graphTerm.Variable = v
	} else if p.peek() == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		graphTerm.IRI = rdf.NewNamedNode(iri)
	} else if isPNameStart(p.peek()) {
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		graphTerm.IRI = rdf.NewNamedNode(iri)
	} else {
		return nil, fmt.Errorf("expected IRI or variable after GRAPH")
	}

	nestedPattern, err := p.parseGraphPattern()
	if err != nil {
		return nil, err
	}

	return &GraphPattern{
		Type:        GraphPatternTypeGraph,
		Graph:       graphTerm,
		Patterns:    nestedPattern.Patterns,
		PathTriples: nestedPattern.PathTriples,
		Filters:     nestedPattern.Filters,
		Binds:       nestedPattern.Binds,
		Values:      nestedPattern.Values,
		Children:    nestedPattern.Children,
	}, nil
}

// parseValuesBlock parses VALUES (?a ?b) { (v1 v2) (v3 v4) } or the
// single-variable shorthand VALUES ?a { v1 v2 }.
func (p *Parser) parseValuesBlock() (*ValuesBlock, error) {
	p.skipWhitespace()
	block := &ValuesBlock{}

	if p.peek() == '(' {
		p.advance()
		for {
			p.skipWhitespace()
			if p.peek() == ')' {
				p.advance()
				break
			}
			v, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			block.Variables = append(block.Variables, v)
		}
	} else {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		block.Variables = []*Variable{v}
	}

	p.skipWhitespace()
	if p.peek() != '{' {
		return nil, fmt.Errorf("expected '{' to start VALUES data block")
	}
	p.advance()

	multiCol := len(block.Variables) > 1
	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			p.advance()
			break
		}
		var row []rdf.Term
		if multiCol {
			if p.peek() != '(' {
				return nil, fmt.Errorf("expected '(' to start VALUES row")
			}
			p.advance()
			for {
				p.skipWhitespace()
				if p.peek() == ')' {
					p.advance()
					break
				}
				t, err := p.parseValuesTerm()
				if err != nil {
					return nil, err
				}
				row = append(row, t)
			}
		} else {
			t, err := p.parseValuesTerm()
			if err != nil {
				return nil, err
			}
			row = []rdf.Term{t}
		}
		block.Rows = append(block.Rows, row)
	}

	return block, nil
}

func (p *Parser) parseValuesTerm() (rdf.Term, error) {
	p.skipWhitespace()
	if p.matchKeyword("UNDEF") {
		return nil, nil
	}
	tv, err := p.parseTermOrVariable()
	if err != nil {
		return nil, err
	}
	if tv.IsVariable() {
		return nil, fmt.Errorf("VALUES data block cannot contain variables")
	}
	return tv.Term, nil
}

// ---- Triple and path parsing ----

func (p *Parser) parseTriplePattern() (*TriplePattern, error) {
	t, pt, err := p.parseTripleOrPath()
	if err != nil {
		return nil, err
	}
	if pt != nil {
		return nil, fmt.Errorf("property path not allowed in this context")
	}
	return t, nil
}

// parseTripleOrPath parses one subject/predicate/object group, returning
// either a plain TriplePattern or, when the predicate is a compound path
// expression, a PathTriplePattern.
func (p *Parser) parseTripleOrPath() (*TriplePattern, *PathTriplePattern, error) {
	p.skipWhitespace()
	subject, err := p.parseTermOrVariable()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse subject: %w", err)
	}

	p.skipWhitespace()
	if p.peek() == '?' || p.peek() == '$' {
		predVar, err := p.parseVariable()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse predicate: %w", err)
		}
		p.skipWhitespace()
		object, err := p.parseTermOrVariable()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse object: %w", err)
		}
		return &TriplePattern{Subject: *subject, Predicate: TermOrVariable{Variable: predVar}, Object: *object}, nil, nil
	}

	path, err := p.parsePathAlternative()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse predicate: %w", err)
	}

	p.skipWhitespace()
	object, err := p.parseTermOrVariable()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse object: %w", err)
	}

	if pred, ok := path.(*PathPredicate); ok {
		return &TriplePattern{Subject: *subject, Predicate: TermOrVariable{Term: pred.IRI}, Object: *object}, nil, nil
	}
	return nil, &PathTriplePattern{Subject: *subject, Path: path, Object: *object}, nil
}

func (p *Parser) parsePathAlternative() (PathExpr, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peek() != '|' {
			break
		}
		p.advance()
		right, err := p.parsePathSequence()
		if err != nil {
			return nil, err
		}
		left = &PathAlternative{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePathSequence() (PathExpr, error) {
	left, err := p.parsePathUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if p.peek() != '/' {
			break
		}
		p.advance()
		right, err := p.parsePathUnary()
		if err != nil {
			return nil, err
		}
		left = &PathSequence{First: left, Second: right}
	}
	return left, nil
}

func (p *Parser) parsePathUnary() (PathExpr, error) {
	p.skipWhitespace()
	if p.peek() == '^' {
		p.advance()
		inner, err := p.parsePathPrimary()
		if err != nil {
			return nil, err
		}
		return p.wrapPathModifier(&PathInverse{Path: inner})
	}
	inner, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}
	return p.wrapPathModifier(inner)
}

// wrapPathModifier applies a trailing */+/? modifier if present.
func (p *Parser) wrapPathModifier(path PathExpr) (PathExpr, error) {
	switch p.peek() {
	case '*':
		p.advance()
		return &PathZeroOrMore{Path: path}, nil
	case '+':
		p.advance()
		return &PathOneOrMore{Path: path}, nil
	case '?':
		p.advance()
		return &PathZeroOrOne{Path: path}, nil
	}
	return path, nil
}

func (p *Parser) parsePathPrimary() (PathExpr, error) {
	p.skipWhitespace()
	ch := p.peek()

	if ch == '(' {
		p.advance()
		inner, err := p.parsePathAlternative()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expected ')' to close grouped path")
		}
		p.advance()
		return inner, nil
	}

	if ch == '!' {
		p.advance()
		return p.parsePathNegatedSet()
	}

	if ch == 'a' && !p.identContinuesAt(p.pos+1) {
		p.advance()
		return &PathPredicate{IRI: rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")}, nil
	}

	if ch == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return &PathPredicate{IRI: rdf.NewNamedNode(iri)}, nil
	}

	if isPNameStart(ch) {
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return &PathPredicate{IRI: rdf.NewNamedNode(iri)}, nil
	}

	return nil, fmt.Errorf("unexpected character in property path: %c", ch)
}

func (p *Parser) parsePathNegatedSet() (PathExpr, error) {
	p.skipWhitespace()
	if p.peek() == '(' {
		p.advance()
		var members []PathNegatedMember
		for {
			p.skipWhitespace()
			if p.peek() == ')' {
				p.advance()
				break
			}
			if p.peek() == '|' {
				p.advance()
				continue
			}
			m, err := p.parseNegatedMember()
			if err != nil {
				return nil, err
			}
			members = append(members, m)
		}
		return &PathNegatedSet{Members: members}, nil
	}
	m, err := p.parseNegatedMember()
	if err != nil {
		return nil, err
	}
	return &PathNegatedSet{Members: []PathNegatedMember{m}}, nil
}

func (p *Parser) parseNegatedMember() (PathNegatedMember, error) {
	p.skipWhitespace()
	inverse := false
	if p.peek() == '^' {
		inverse = true
		p.advance()
	}
	var iri string
	var err error
	if p.peek() == '<' {
		iri, err = p.parseIRI()
	} else {
		iri, err = p.parsePrefixedName()
	}
	if err != nil {
		return PathNegatedMember{}, err
	}
	return PathNegatedMember{IRI: rdf.NewNamedNode(iri), Inverse: inverse}, nil
}

func (p *Parser) identContinuesAt(pos int) bool {
	if pos >= p.length {
		return false
	}
	ch := p.input[pos]
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_' || ch == '-' || ch == ':'
}

// ---- Term parsing ----

func (p *Parser) parseTermOrVariable() (*TermOrVariable, error) {
	p.skipWhitespace()
	ch := p.peek()

	if ch == '?' || ch == '$' {
		variable, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Variable: variable}, nil
	}

	if ch == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(iri)}, nil
	}

	if ch == '"' || ch == '\'' {
		literal, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: literal}, nil
	}

	if ch == '_' {
		blankNode, err := p.parseBlankNode()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: blankNode}, nil
	}

	if (ch >= '0' && ch <= '9') || ch == '-' || ch == '+' {
		literal, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: literal}, nil
	}

	if ch == 'a' && !p.identContinuesAt(p.pos+1) {
		p.advance()
		return &TermOrVariable{Term: rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")}, nil
	}

	if p.matchKeyword("true") {
		return &TermOrVariable{Term: rdf.NewBooleanLiteral(true)}, nil
	}
	if p.matchKeyword("false") {
		return &TermOrVariable{Term: rdf.NewBooleanLiteral(false)}, nil
	}

	if isPNameStart(ch) {
		prefixedName, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return &TermOrVariable{Term: rdf.NewNamedNode(prefixedName)}, nil
	}

	return nil, fmt.Errorf("unexpected character: %c", ch)
}

func (p *Parser) parseVariable() (*Variable, error) {
	if p.peek() != '?' && p.peek() != '$' {
		return nil, fmt.Errorf("expected variable starting with ? or $")
	}
	p.advance()

	name := p.readWhile(func(ch byte) bool {
		return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '_'
	})

	if name == "" {
		return nil, fmt.Errorf("invalid variable name")
	}

	return &Variable{Name: name}, nil
}

func (p *Parser) parseIRI() (string, error) {
	if p.peek() != '<' {
		return "", fmt.Errorf("expected '<' to start IRI")
	}
	p.advance()

	iri := p.readWhile(func(ch byte) bool {
		return ch != '>'
	})

	if p.peek() != '>' {
		return "", fmt.Errorf("expected '>' to end IRI")
	}
	p.advance()

	return iri, nil
}

func (p *Parser) parseStringLiteral() (*rdf.Literal, error) {
	quote := p.peek()
	if quote != '"' && quote != '\'' {
		return nil, fmt.Errorf("expected quote to start string literal")
	}
	p.advance()

	value := p.readWhile(func(ch byte) bool {
		return ch != quote
	})

	if p.peek() != quote {
		return nil, fmt.Errorf("expected quote to end string literal")
	}
	p.advance()

	if p.peek() == '@' {
		p.advance()
		lang := p.readWhile(func(ch byte) bool {
			return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
				(ch >= '0' && ch <= '9') || ch == '-'
		})
		return rdf.NewLiteralWithLanguage(value, lang), nil
	}

	if p.peek() == '^' && p.pos+1 < p.length && p.input[p.pos+1] == '^' {
		p.advance()
		p.advance()
		var dt string
		var err error
		if p.peek() == '<' {
			dt, err = p.parseIRI()
		} else {
			dt, err = p.parsePrefixedName()
		}
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(dt)), nil
	}

	return rdf.NewLiteral(value), nil
}

func (p *Parser) parseBlankNode() (*rdf.BlankNode, error) {
	if p.peek() != '_' {
		return nil, fmt.Errorf("expected '_' to start blank node")
	}
	p.advance()

	if p.peek() != ':' {
		return nil, fmt.Errorf("expected ':' after '_' in blank node")
	}
	p.advance()

	id := p.readWhile(func(ch byte) bool {
		return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '_'
	})

	return rdf.NewBlankNode(id), nil
}

func (p *Parser) parseNumericLiteral() (*rdf.Literal, error) {
	numStr := p.readWhile(func(ch byte) bool {
		return (ch >= '0' && ch <= '9') || ch == '.' || ch == '-' || ch == '+' || ch == 'e' || ch == 'E'
	})

	if !strings.Contains(numStr, ".") && !strings.ContainsAny(numStr, "eE") {
		if _, err := strconv.ParseInt(numStr, 10, 64); err == nil {
			return rdf.NewLiteralWithDatatype(numStr, rdf.XSDInteger), nil
		}
	}
	if strings.ContainsAny(numStr, "eE") {
		return rdf.NewLiteralWithDatatype(numStr, rdf.XSDDouble), nil
	}
	return rdf.NewLiteralWithDatatype(numStr, rdf.XSDDecimal), nil
}

// ---- FILTER / BIND / GROUP BY / ORDER BY ----

func (p *Parser) parseFilterClause() (*Filter, error) {
	expr, err := p.parseConstraint()
	if err != nil {
		return nil, err
	}
	return &Filter{Expression: expr}, nil
}

// parseConstraint parses a FILTER/HAVING constraint: either a bare
// EXISTS/NOT EXISTS, or a parenthesized expression.
func (p *Parser) parseConstraint() (Expression, error) {
	p.skipWhitespace()
	save := p.pos
	if p.matchKeyword("NOT") {
		p.skipWhitespace()
		if p.matchKeyword("EXISTS") {
			pattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			return &ExistsExpression{Pattern: pattern, Negate: true}, nil
		}
		p.pos = save
	}
	if p.matchKeyword("EXISTS") {
		pattern, err := p.parseGraphPattern()
		if err != nil {
			return nil, err
		}
		return &ExistsExpression{Pattern: pattern}, nil
	}
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' to start constraint")
	}
	p.advance()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' to close constraint")
	}
	p.advance()
	return expr, nil
}

func (p *Parser) parseBind() (*Bind, error) {
	p.skipWhitespace()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' after BIND")
	}
	p.advance()

	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()
	if !p.matchKeyword("AS") {
		return nil, fmt.Errorf("expected AS keyword in BIND expression")
	}

	p.skipWhitespace()
	variable, err := p.parseVariable()
	if err != nil {
		return nil, fmt.Errorf("expected variable after AS in BIND: %w", err)
	}

	p.skipWhitespace()
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' to close BIND expression")
	}
	p.advance()

	return &Bind{Expression: expr, Variable: variable}, nil
}

func (p *Parser) parseGroupBy() ([]*GroupCondition, error) {
	var conditions []*GroupCondition

	for {
		p.skipWhitespace()
		ch := p.peek()
		if ch != '?' && ch != '$' && ch != '(' {
			break
		}

		if ch == '(' {
			p.advance()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			cond := &GroupCondition{Expr: expr}
			p.skipWhitespace()
			if p.matchKeyword("AS") {
				p.skipWhitespace()
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				cond.Variable = v
			}
			p.skipWhitespace()
			if p.peek() != ')' {
				return nil, fmt.Errorf("expected ')' to close GROUP BY expression")
			}
			p.advance()
			conditions = append(conditions, cond)
		} else {
			variable, err := p.parseVariable()
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, &GroupCondition{Variable: variable})
		}

		p.skipWhitespace()
	}

	return conditions, nil
}

func (p *Parser) parseHaving() ([]Expression, error) {
	var exprs []Expression
	for {
		p.skipWhitespace()
		if p.peek() != '(' && !p.peekKeyword("EXISTS") && !p.peekKeyword("NOT") {
			break
		}
		expr, err := p.parseConstraint()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 0 {
		return nil, fmt.Errorf("expected at least one condition in HAVING")
	}
	return exprs, nil
}

func (p *Parser) parseOrderBy() ([]*OrderCondition, error) {
	var conditions []*OrderCondition

	for {
		p.skipWhitespace()
		ascending := true
		explicit := false
		if p.matchKeyword("DESC") {
			ascending = false
			explicit = true
		} else if p.matchKeyword("ASC") {
			ascending = true
			explicit = true
		}

		p.skipWhitespace()
		var expr Expression
		if explicit {
			if p.peek() != '(' {
				return nil, fmt.Errorf("expected '(' after ASC/DESC")
			}
			p.advance()
			e, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			p.skipWhitespace()
			if p.peek() != ')' {
				return nil, fmt.Errorf("expected ')' after ASC/DESC expression")
			}
			p.advance()
			expr = e
		} else {
			ch := p.peek()
			if ch == '?' || ch == '$' {
				v, err := p.parseVariable()
				if err != nil {
					return nil, err
				}
				expr = &VariableExpression{Variable: v}
			} else if ch == '(' {
				p.advance()
				e, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				p.skipWhitespace()
				if p.peek() != ')' {
					return nil, fmt.Errorf("expected ')' to close ORDER BY expression")
				}
				p.advance()
				expr = e
			} else {
				break
			}
		}

		conditions = append(conditions, &OrderCondition{Expression: expr, Ascending: ascending})
		p.skipWhitespace()
	}

	return conditions, nil
}

func (p *Parser) parseInteger() (int, error) {
	p.skipWhitespace()
	numStr := p.readWhile(func(ch byte) bool {
		return ch >= '0' && ch <= '9'
	})
	if numStr == "" {
		return 0, fmt.Errorf("expected integer")
	}
	return strconv.Atoi(numStr)
}

// ---- Expression grammar (recursive descent, precedence climbing) ----
//
// Expression     -> ConditionalOr
// ConditionalOr  -> ConditionalAnd ('||' ConditionalAnd)*
// ConditionalAnd -> Relational ('&&' Relational)*
// Relational     -> Additive (('='|'!='|'<'|'>'|'<='|'>=') Additive | 'NOT'? 'IN' ExprList)?
// Additive       -> Multiplicative (('+'|'-') Multiplicative)*
// Multiplicative -> Unary (('*'|'/') Unary)*
// Unary          -> ('!'|'+'|'-') Unary | Primary
// Primary        -> '(' Expression ')' | BuiltInCall | Var | Literal

func (p *Parser) parseExpression() (Expression, error) {
	return p.parseConditionalOr()
}

func (p *Parser) parseConditionalOr() (Expression, error) {
	left, err := p.parseConditionalAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if !p.matchLiteral("||") {
			break
		}
		right, err := p.parseConditionalAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: OpOr, Right: right}
	}
	return left, nil
}

func (p *Parser) parseConditionalAnd() (Expression, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		if !p.matchLiteral("&&") {
			break
		}
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Left: left, Operator: OpAnd, Right: right}
	}
	return left, nil
}

func (p *Parser) parseRelational() (Expression, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()

	switch {
	case p.matchLiteral("!="):
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: OpNotEqual, Right: right}, nil
	case p.matchLiteral("<="):
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: OpLessThanOrEqual, Right: right}, nil
	case p.matchLiteral(">="):
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: OpGreaterThanOrEqual, Right: right}, nil
	case p.matchLiteral("="):
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: OpEqual, Right: right}, nil
	case p.matchLiteral("<"):
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: OpLessThan, Right: right}, nil
	case p.matchLiteral(">"):
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryExpression{Left: left, Operator: OpGreaterThan, Right: right}, nil
	}

	save := p.pos
	negate := false
	if p.matchKeyword("NOT") {
		p.skipWhitespace()
		if p.matchKeyword("IN") {
			negate = true
		} else {
			p.pos = save
		}
	}
	if negate {
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &InExpression{Target: left, List: list, Negate: true}, nil
	}
	if p.matchKeyword("IN") {
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &InExpression{Target: left, List: list, Negate: false}, nil
	}

	return left, nil
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	p.skipWhitespace()
	if p.peek() != '(' {
		return nil, fmt.Errorf("expected '(' to start expression list")
	}
	p.advance()
	var exprs []Expression
	for {
		p.skipWhitespace()
		if p.peek() == ')' {
			p.advance()
			break
		}
		if p.peek() == ',' {
			p.advance()
			continue
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func (p *Parser) parseAdditive() (Expression, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		ch := p.peek()
		if ch == '+' {
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Left: left, Operator: OpAdd, Right: right}
		} else if ch == '-' {
			p.advance()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Left: left, Operator: OpSubtract, Right: right}
		} else {
			break
		}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWhitespace()
		ch := p.peek()
		if ch == '*' {
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Left: left, Operator: OpMultiply, Right: right}
		} else if ch == '/' {
			p.advance()
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpression{Left: left, Operator: OpDivide, Right: right}
		} else {
			break
		}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expression, error) {
	p.skipWhitespace()
	switch p.peek() {
	case '!':
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Operator: OpNot, Operand: operand}, nil
	case '+':
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Operator: OpUnaryPlus, Operand: operand}, nil
	case '-':
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Operator: OpUnaryMinus, Operand: operand}, nil
	}
	return p.parsePrimaryExpression()
}

var aggregateFunctions = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
	"SAMPLE": true, "GROUP_CONCAT": true,
}

func (p *Parser) parsePrimaryExpression() (Expression, error) {
	p.skipWhitespace()
	ch := p.peek()

	if ch == '(' {
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expected ')' to close expression")
		}
		p.advance()
		return expr, nil
	}

	if ch == '?' || ch == '$' {
		v, err := p.parseVariable()
		if err != nil {
			return nil, err
		}
		return &VariableExpression{Variable: v}, nil
	}

	if ch == '"' || ch == '\'' {
		lit, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Literal: lit}, nil
	}

	if (ch >= '0' && ch <= '9') || (ch == '.' && p.pos+1 < p.length && p.input[p.pos+1] >= '0' && p.input[p.pos+1] <= '9') {
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Literal: lit}, nil
	}

	if p.matchKeyword("true") {
		return &LiteralExpression{Literal: rdf.NewBooleanLiteral(true)}, nil
	}
	if p.matchKeyword("false") {
		return &LiteralExpression{Literal: rdf.NewBooleanLiteral(false)}, nil
	}

	if name, ok := p.peekFunctionName(); ok {
		upper := strings.ToUpper(name)
		if aggregateFunctions[upper] {
			return p.parseAggregate(upper)
		}
		return p.parseFunctionCall(upper)
	}

	if ch == '<' {
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Literal: rdf.NewNamedNode(iri)}, nil
	}

	if isPNameStart(ch) {
		iri, err := p.parsePrefixedName()
		if err != nil {
			return nil, err
		}
		return &LiteralExpression{Literal: rdf.NewNamedNode(iri)}, nil
	}

	return nil, fmt.Errorf("unexpected character in expression: %c", ch)
}

// peekFunctionName recognizes NAME( without consuming past the name when
// it is not followed by '(', so identifiers that are really prefixed
// names fall through to parsePrefixedName instead.
func (p *Parser) peekFunctionName() (string, bool) {
	start := p.pos
	end := start
	for end < p.length {
		ch := p.input[end]
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' {
			end++
			continue
		}
		break
	}
	if end == start {
		return "", false
	}
	name := p.input[start:end]
	rest := end
	for rest < p.length && (p.input[rest] == ' ' || p.input[rest] == '\t' || p.input[rest] == '\n' || p.input[rest] == '\r') {
		rest++
	}
	if rest < p.length && p.input[rest] == '(' {
		p.pos = rest + 1
		return name, true
	}
	return "", false
}

func (p *Parser) parseFunctionCall(name string) (Expression, error) {
	var args []Expression
	for {
		p.skipWhitespace()
		if p.peek() == ')' {
			p.advance()
			break
		}
		if p.peek() == ',' {
			p.advance()
			continue
		}
		if p.matchKeyword("DISTINCT") {
			p.skipWhitespace()
		}
		save := p.pos
		if p.matchKeyword("NOT") {
			p.skipWhitespace()
			if p.matchKeyword("EXISTS") {
				pattern, err := p.parseGraphPattern()
				if err != nil {
					return nil, err
				}
				args = append(args, &ExistsExpression{Pattern: pattern, Negate: true})
				continue
			}
			p.pos = save
		}
		if p.matchKeyword("EXISTS") {
			pattern, err := p.parseGraphPattern()
			if err != nil {
				return nil, err
			}
			args = append(args, &ExistsExpression{Pattern: pattern})
			continue
		}
		e, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	return &FunctionCallExpression{Function: name, Arguments: args}, nil
}

func (p *Parser) parseAggregate(name string) (Expression, error) {
	agg := &AggregateExpression{Function: name}
	p.skipWhitespace()

	if name == "COUNT" && p.peek() == '*' {
		p.advance()
		p.skipWhitespace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expected ')' after COUNT(*)")
		}
		p.advance()
		return agg, nil
	}

	if p.matchKeyword("DISTINCT") {
		agg.Distinct = true
	}

	p.skipWhitespace()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	agg.Arg = expr

	p.skipWhitespace()
	if name == "GROUP_CONCAT" && p.matchLiteral(";") {
		p.skipWhitespace()
		if !p.matchKeyword("SEPARATOR") {
			return nil, fmt.Errorf("expected SEPARATOR after ';' in GROUP_CONCAT")
		}
		p.skipWhitespace()
		if p.peek() != '=' {
			return nil, fmt.Errorf("expected '=' after SEPARATOR")
		}
		p.advance()
		p.skipWhitespace()
		lit, err := p.parseStringLiteral()
		if err != nil {
			return nil, err
		}
		agg.Separator = lit.Value
		p.skipWhitespace()
	}

	if p.peek() != ')' {
		return nil, fmt.Errorf("expected ')' to close aggregate call")
	}
	p.advance()
	return agg, nil
}

// ---- Lexical helpers ----

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) advance() {
	if p.pos < p.length {
		p.pos++
	}
}

func (p *Parser) skipWhitespace() {
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			p.pos++
			continue
		}
		if ch == '#' {
			p.pos++
			for p.pos < p.length && p.input[p.pos] != '\n' && p.input[p.pos] != '\r' {
				p.pos++
			}
			continue
		}
		break
	}
}

func (p *Parser) readWhile(predicate func(byte) bool) string {
	start := p.pos
	for p.pos < p.length && predicate(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *Parser) matchKeyword(keyword string) bool {
	p.skipWhitespace()
	remaining := p.input[p.pos:]
	pattern := `(?i)^` + regexp.QuoteMeta(keyword) + `\b`
	matched, _ := regexp.MatchString(pattern, remaining)
	if matched {
		p.pos += len(keyword)
		return true
	}
	return false
}

func (p *Parser) peekKeyword(keyword string) bool {
	save := p.pos
	matched := p.matchKeyword(keyword)
	p.pos = save
	return matched
}

// matchLiteral consumes an exact, case-sensitive literal. Used for
// multi-character operators where matchKeyword's word-boundary semantics
// don't apply.
func (p *Parser) matchLiteral(lit string) bool {
	if strings.HasPrefix(p.input[p.pos:], lit) {
		p.pos += len(lit)
		return true
	}
	return false
}

func (p *Parser) skipPrefix() error {
	p.skipWhitespace()
	prefixStart := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' {
		p.advance()
	}
	prefix := p.input[prefixStart:p.pos]

	if p.pos >= p.length {
		return fmt.Errorf("expected ':' in PREFIX declaration")
	}
	p.advance()
	p.skipWhitespace()

	if p.peek() != '<' {
		return fmt.Errorf("expected '<' to start IRI in PREFIX declaration")
	}
	p.advance()

	iriStart := p.pos
	for p.pos < p.length && p.input[p.pos] != '>' {
		p.advance()
	}
	iri := p.input[iriStart:p.pos]

	if p.pos >= p.length {
		return fmt.Errorf("expected '>' to end IRI in PREFIX declaration")
	}
	p.advance()

	p.prefixes[prefix] = iri
	return nil
}

func (p *Parser) skipBase() error {
	p.skipWhitespace()
	if p.peek() != '<' {
		return fmt.Errorf("expected '<' to start IRI in BASE declaration")
	}
	p.advance()
	for p.pos < p.length && p.input[p.pos] != '>' {
		p.advance()
	}
	if p.pos >= p.length {
		return fmt.Errorf("expected '>' to end IRI in BASE declaration")
	}
	p.advance()
	return nil
}

func (p *Parser) parsePrefixedName() (string, error) {
	prefixStart := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' {
		ch := p.input[p.pos]
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			break
		}
		p.advance()
	}
	prefix := p.input[prefixStart:p.pos]

	if p.peek() != ':' {
		return "", fmt.Errorf("expected ':' in prefixed name")
	}
	p.advance()

	localStart := p.pos
	for p.pos < p.length {
		ch := p.input[p.pos]
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') || ch == '_' || ch == '-') {
			break
		}
		p.advance()
	}
	local := p.input[localStart:p.pos]

	baseIRI, ok := p.prefixes[prefix]
	if !ok {
		return "", fmt.Errorf("undefined prefix: '%s'", prefix)
	}

	return baseIRI + local, nil
}
