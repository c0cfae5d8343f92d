package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lhaig/boundcheck/internal/diagnostic"
	"github.com/lhaig/boundcheck/internal/lexer"
	"github.com/lhaig/boundcheck/internal/model"
)

// New creates a new parser
func New(source string) *Parser {
	l := lexer.New(source)
	tokens := l.Tokenize()
	return &Parser{
		tokens: tokens,
		pos:    0,
		diags:  diagnostic.New(),
		source: source,
		lines:  lineOffsets(source),
	}
}

// Diagnostics returns the parser's diagnostics
func (p *Parser) Diagnostics() *diagnostic.Diagnostics {
	return p.diags
}

// Parse parses every class in the source. Each class lists the other classes of the
// same source as its dependencies.
func (p *Parser) Parse() []*model.ClassModel {
	var classes []*model.ClassModel
	for !p.check(lexer.EOF) {
		switch {
		case p.checkWord("using"):
			p.skipConstruct()
		case p.check(lexer.NAMESPACE):
			classes = append(classes, p.parseNamespace()...)
		default:
			if c := p.parseTypeDecl(); c != nil {
				classes = append(classes, c)
			}
		}
	}
	linkDependencies(classes)
	return classes
}

// ParseExpression parses the expression text of a contract comment that starts at
// line:column. Constructs outside the supported expression grammar are errors.
func ParseExpression(text string, line, column int) (model.Expression, error) {
	p := &Parser{
		tokens: lexer.NewAt(text, line, column).Tokenize(),
		diags:  diagnostic.New(),
	}
	expr := p.parseExpression()
	if !p.check(lexer.EOF) {
		tok := p.current()
		p.diags.Errorf(tok.Line, tok.Column, "unexpected %s after expression", tok.Type)
	}
	if errs := p.diags.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("%d:%d: %s", errs[0].Line, errs[0].Column, errs[0].Message)
	}
	if len(p.issues) > 0 {
		return nil, fmt.Errorf("%s", p.issues[0])
	}
	return expr, nil
}

func linkDependencies(classes []*model.ClassModel) {
	for _, c := range classes {
		for _, other := range classes {
			if other == c {
				continue
			}
			dep := *other
			dep.Dependencies = nil
			c.Dependencies = append(c.Dependencies, &dep)
		}
	}
}

// parseNamespace parses: namespace A.B { decl* }  or the file scoped  namespace A.B;
func (p *Parser) parseNamespace() []*model.ClassModel {
	p.expect(lexer.NAMESPACE)
	p.namespace = p.parseQualifiedName()

	var classes []*model.ClassModel
	if p.match(lexer.SEMICOLON) {
		return classes
	}
	p.expect(lexer.LBRACE)
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		if p.checkWord("using") {
			p.skipConstruct()
			continue
		}
		if c := p.parseTypeDecl(); c != nil {
			classes = append(classes, c)
		}
	}
	p.expect(lexer.RBRACE)
	p.namespace = ""
	return classes
}

// parseQualifiedName parses: IDENT (. IDENT)*
func (p *Parser) parseQualifiedName() string {
	parts := []string{p.expect(lexer.IDENT).Literal}
	for p.check(lexer.DOT) && p.peek().Type == lexer.IDENT {
		p.advance()
		parts = append(parts, p.advance().Literal)
	}
	return strings.Join(parts, ".")
}

// classModifiers are modifier words that make a class declaration invalid for verification
var classModifiers = map[string]bool{
	"abstract": true,
	"sealed":   true,
	"partial":  true,
}

// memberModifiers are modifier words with no meaning in the verified subset
var memberModifiers = map[string]bool{
	"abstract": true,
	"virtual":  true,
	"override": true,
	"sealed":   true,
	"const":    true,
	"async":    true,
	"extern":   true,
	"volatile": true,
	"unsafe":   true,
	"partial":  true,
}

// parseTypeDecl parses a class declaration, collecting contract comments that precede it
func (p *Parser) parseTypeDecl() *model.ClassModel {
	var leading []lexer.Token
	for p.isContract() {
		leading = append(leading, p.advance())
	}

	if p.check(lexer.EOF) || p.check(lexer.RBRACE) {
		return nil // contract comments with nothing to annotate
	}

	start := p.current()
	invalid := ""
	for p.current().Type.IsModifier() || p.check(lexer.IDENT) && classModifiers[p.current().Literal] {
		tok := p.advance()
		switch tok.Type {
		case lexer.PUBLIC, lexer.INTERNAL:
		case lexer.STATIC:
			invalid = "static classes are not supported"
		default:
			if classModifiers[tok.Literal] {
				invalid = fmt.Sprintf("%s classes are not supported", tok.Literal)
			} else {
				invalid = fmt.Sprintf("modifier %s is not supported on classes", tok.Literal)
			}
		}
	}

	if !p.check(lexer.CLASS) {
		tok := p.current()
		p.diags.Errorf(tok.Line, tok.Column, "expected class declaration, got %s", tok.Type)
		startPos := p.pos
		p.skipConstruct()
		if p.pos == startPos {
			p.advance() // ensure forward progress
		}
		return nil
	}
	p.advance()
	nameTok := p.expect(lexer.IDENT)

	name := nameTok.Literal
	if p.namespace != "" {
		name = p.namespace + "." + name
	}
	c := model.NewClassModel(name)
	c.Location = locOf(nameTok)
	p.class = c
	errorsBefore := p.diags.ErrorCount()

	if p.check(lexer.LT) {
		p.skipBalanced(lexer.LT, lexer.GT)
		invalid = "generic classes are not supported"
	}
	if p.match(lexer.COLON) {
		for !p.check(lexer.LBRACE) && !p.check(lexer.EOF) {
			p.advance()
		}
		invalid = "inheritance is not supported"
	}
	if invalid != "" {
		c.Unsupported.Reject(model.UnsupportedDeclaration, p.textFrom(start), locOf(start), invalid)
	}

	p.pending = leading
	p.flushContracts(nil)
	p.expect(lexer.LBRACE)
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		if p.isContract() {
			p.pending = append(p.pending, p.advance())
			continue
		}
		startPos := p.pos
		p.parseMember()
		if p.pos == startPos {
			p.advance() // ensure forward progress to avoid infinite loop
		}
	}
	p.flushContracts(nil)
	p.expect(lexer.RBRACE)

	if p.diags.ErrorCount() > errorsBefore {
		c.Unsupported.InvalidDeclaration = true
	}
	p.class = nil
	return c
}

func (p *Parser) isContract() bool {
	switch p.current().Type {
	case lexer.INVARIANT_COMMENT, lexer.REQUIRE_COMMENT, lexer.ENSURE_COMMENT:
		return true
	}
	return false
}

// flushContracts attaches pending contract comments. Invariants always belong to the
// class; requires and ensures are only valid directly before a method.
func (p *Parser) flushContracts(m *model.Method) {
	pending := p.pending
	p.pending = nil
	for _, tok := range pending {
		kind, category := contractKind(tok.Type)
		if kind != model.InvariantAssertion && m == nil {
			p.class.Unsupported.Reject(category, tok.Literal, locOf(tok),
				fmt.Sprintf("%s comment is not attached to a method", kind))
			continue
		}
		expr, err := ParseExpression(tok.Literal, tok.Line, tok.Column)
		if err != nil {
			p.class.Unsupported.Reject(category, tok.Literal, locOf(tok), err.Error())
			continue
		}
		a := &model.Assertion{Kind: kind, Text: tok.Literal, Location: locOf(tok), Expr: expr}
		switch kind {
		case model.InvariantAssertion:
			p.class.Invariants = append(p.class.Invariants, a)
		case model.RequireAssertion:
			m.Requires = append(m.Requires, a)
		case model.EnsureAssertion:
			m.Ensures = append(m.Ensures, a)
		}
	}
}

func contractKind(tt lexer.TokenType) (model.AssertionKind, model.Category) {
	switch tt {
	case lexer.REQUIRE_COMMENT:
		return model.RequireAssertion, model.UnsupportedRequire
	case lexer.ENSURE_COMMENT:
		return model.EnsureAssertion, model.UnsupportedEnsure
	default:
		return model.InvariantAssertion, model.UnsupportedInvariant
	}
}

// modifiers is the parsed modifier list of a member
type modifiers struct {
	public      bool
	static      bool
	unsupported string
}

func (p *Parser) parseModifiers() modifiers {
	var mods modifiers
	for {
		tok := p.current()
		switch {
		case tok.Type == lexer.PUBLIC:
			mods.public = true
		case tok.Type == lexer.PRIVATE, tok.Type == lexer.READONLY:
		case tok.Type == lexer.STATIC:
			mods.static = true
		case tok.Type == lexer.PROTECTED, tok.Type == lexer.INTERNAL:
			mods.unsupported = fmt.Sprintf("%s members are not supported", tok.Literal)
		case tok.Type == lexer.IDENT && memberModifiers[tok.Literal]:
			mods.unsupported = fmt.Sprintf("modifier %s is not supported", tok.Literal)
		default:
			return mods
		}
		p.advance()
	}
}

// parseMember parses a field, property or method declaration
func (p *Parser) parseMember() {
	start := p.current()
	mods := p.parseModifiers()

	switch {
	case p.check(lexer.CLASS):
		p.flushContracts(nil)
		p.skipConstruct()
		p.reject(model.UnsupportedField, start, "nested classes are not supported")
		return
	case p.check(lexer.IDENT) && p.current().Literal == shortName(p.class.Name) && p.peek().Type == lexer.LPAREN:
		p.flushContracts(nil)
		p.skipConstruct()
		p.reject(model.UnsupportedMethod, start, "constructors are not supported")
		return
	}

	typ, typeReason := p.parseType()
	if typ == nil {
		p.flushContracts(nil)
		p.synchronize()
		return
	}
	nameTok := p.expect(lexer.IDENT)
	if nameTok.Type != lexer.IDENT {
		p.flushContracts(nil)
		p.synchronize()
		return
	}

	switch {
	case p.check(lexer.LT):
		p.flushContracts(nil)
		p.skipConstruct()
		p.reject(model.UnsupportedMethod, start, "generic methods are not supported")
		return
	case p.check(lexer.ASSIGN) && p.peek().Type == lexer.GT:
		p.flushContracts(nil)
		p.skipConstruct()
		p.reject(model.UnsupportedProperty, start, "expression-bodied members are not supported")
		return
	}

	switch {
	case p.check(lexer.LPAREN):
		p.parseMethod(start, mods, typ, typeReason, nameTok)
	case p.check(lexer.LBRACE):
		p.flushContracts(nil)
		p.parseProperty(start, mods, typ, typeReason, nameTok)
	default:
		p.flushContracts(nil)
		p.parseField(start, mods, typ, typeReason, nameTok)
	}
}

func shortName(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// parseField parses the remainder of: T Name [= init] ;
func (p *Parser) parseField(start lexer.Token, mods modifiers, typ *model.Type, typeReason string, nameTok lexer.Token) {
	v := &model.Variable{
		Name:     nameTok.Literal,
		Kind:     model.FieldVar,
		Type:     typ,
		Location: locOf(nameTok),
		Owner:    p.class.Name,
		IsPublic: mods.public,
	}
	before := p.rejections
	if p.match(lexer.ASSIGN) {
		v.Initializer = p.parseExpression()
	}
	reason := firstOf(typeReason, mods.unsupported)
	if mods.static {
		reason = firstOf(reason, "static fields are not supported")
	}
	if p.check(lexer.COMMA) {
		reason = firstOf(reason, "multiple declarators are not supported")
		p.skipConstruct()
	} else {
		p.expect(lexer.SEMICOLON)
	}
	if reason != "" || p.rejections > before {
		p.reject(model.UnsupportedField, start, firstOf(reason, "unsupported initializer"))
		return
	}
	p.class.Fields = append(p.class.Fields, v)
}

// parseProperty parses the remainder of: T Name { get; set; } [= init;]
func (p *Parser) parseProperty(start lexer.Token, mods modifiers, typ *model.Type, typeReason string, nameTok lexer.Token) {
	v := &model.Variable{
		Name:     nameTok.Literal,
		Kind:     model.PropertyVar,
		Type:     typ,
		Location: locOf(nameTok),
		Owner:    p.class.Name,
		IsPublic: mods.public,
	}
	reason := firstOf(typeReason, mods.unsupported)
	if mods.static {
		reason = firstOf(reason, "static properties are not supported")
	}

	p.expect(lexer.LBRACE)
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		p.parseModifiers()
		acc := p.current()
		if acc.Type != lexer.IDENT || (acc.Literal != "get" && acc.Literal != "set" && acc.Literal != "init") {
			p.diags.Errorf(acc.Line, acc.Column, "expected accessor, got %s", acc.Type)
			p.skipConstruct()
			break
		}
		p.advance()
		if !p.match(lexer.SEMICOLON) {
			reason = firstOf(reason, "accessor bodies are not supported")
			p.skipConstruct()
		}
	}
	p.expect(lexer.RBRACE)

	before := p.rejections
	if p.match(lexer.ASSIGN) {
		v.Initializer = p.parseExpression()
		p.expect(lexer.SEMICOLON)
	}
	if reason != "" || p.rejections > before {
		p.reject(model.UnsupportedProperty, start, firstOf(reason, "unsupported initializer"))
		return
	}
	p.class.Properties = append(p.class.Properties, v)
}

// parseMethod parses the remainder of: T Name ( params ) { body }
func (p *Parser) parseMethod(start lexer.Token, mods modifiers, typ *model.Type, typeReason string, nameTok lexer.Token) {
	m := &model.Method{
		Name:       nameTok.Literal,
		Access:     model.Private,
		IsStatic:   mods.static,
		ReturnType: typ,
		Location:   locOf(nameTok),
	}
	if mods.public {
		m.Access = model.Public
	}
	p.method = m
	defer func() { p.method = nil }()

	p.flushContracts(m)

	reason := firstOf(typeReason, mods.unsupported)
	p.expect(lexer.LPAREN)
	if !p.check(lexer.RPAREN) {
		p.parseParam(m)
		for p.match(lexer.COMMA) {
			p.parseParam(m)
		}
	}
	p.expect(lexer.RPAREN)

	if typ.Kind != model.Void {
		m.Locals = append(m.Locals, &model.Variable{
			Name:     model.ResultName,
			Kind:     model.LocalVar,
			Type:     typ,
			Location: m.Location,
			Owner:    p.class.Name,
			Method:   m.Name,
			IsResult: true,
		})
	}

	switch {
	case p.check(lexer.ASSIGN) && p.peek().Type == lexer.GT:
		reason = firstOf(reason, "expression-bodied methods are not supported")
		p.skipConstruct()
	case p.check(lexer.SEMICOLON):
		reason = firstOf(reason, "methods without a body are not supported")
		p.advance()
	default:
		m.Body = p.parseBlock()
	}

	if reason != "" {
		p.reject(model.UnsupportedMethod, start, reason)
		return
	}
	p.class.Methods = append(p.class.Methods, m)
}

// parseParam parses: T name
func (p *Parser) parseParam(m *model.Method) {
	start := p.current()
	reason := ""
	if p.check(lexer.IDENT) && (start.Literal == "ref" || start.Literal == "out" || start.Literal == "params" || start.Literal == "in") {
		p.advance()
		reason = fmt.Sprintf("%s parameters are not supported", start.Literal)
	}
	typ, typeReason := p.parseType()
	if typ == nil {
		p.synchronize()
		return
	}
	nameTok := p.expect(lexer.IDENT)
	if p.match(lexer.ASSIGN) {
		p.parseExpression()
		reason = firstOf(reason, "default parameter values are not supported")
	}
	if reason = firstOf(reason, typeReason); reason != "" {
		p.reject(model.UnsupportedParameter, start, reason)
		return
	}
	m.Parameters = append(m.Parameters, &model.Variable{
		Name:     nameTok.Literal,
		Kind:     model.ParameterVar,
		Type:     typ,
		Location: locOf(nameTok),
		Owner:    p.class.Name,
		Method:   m.Name,
	})
}

// parseType parses a type reference. A non-empty reason marks a syntactically valid
// type the verifier cannot represent. A nil type means a syntax error was reported.
func (p *Parser) parseType() (*model.Type, string) {
	tok := p.current()
	var t *model.Type
	reason := ""
	switch tok.Type {
	case lexer.INT_TYPE:
		p.advance()
		t = model.TypeInt
	case lexer.BOOL_TYPE:
		p.advance()
		t = model.TypeBool
	case lexer.DOUBLE_TYPE, lexer.FLOAT_TYPE:
		p.advance()
		t = model.TypeFloat
	case lexer.VOID_TYPE:
		p.advance()
		t = model.TypeVoid
	case lexer.STRING_TYPE:
		p.advance()
		t = model.RefType("string")
		reason = "string values are not supported"
	case lexer.IDENT:
		name := p.parseQualifiedName()
		t = model.RefType(name)
		if name == "var" {
			reason = "implicitly typed declarations are not supported"
		}
		if p.check(lexer.LT) {
			p.skipBalanced(lexer.LT, lexer.GT)
			reason = "generic types are not supported"
		}
	default:
		p.diags.Errorf(tok.Line, tok.Column, "expected type, got %s", tok.Type)
		return nil, ""
	}

	for p.check(lexer.LBRACKET) && p.peek().Type == lexer.RBRACKET {
		p.advance()
		p.advance()
		if t.Kind == model.Array {
			reason = firstOf(reason, "nested arrays are not supported")
		}
		t = model.ArrayOf(t)
	}
	if p.check(lexer.LBRACKET) && p.peek().Type == lexer.COMMA {
		p.skipBalanced(lexer.LBRACKET, lexer.RBRACKET)
		reason = firstOf(reason, "multidimensional arrays are not supported")
	}
	if p.match(lexer.QUESTION) {
		reason = firstOf(reason, "nullable types are not supported")
	}
	return t, reason
}

func firstOf(reasons ...string) string {
	for _, r := range reasons {
		if r != "" {
			return r
		}
	}
	return ""
}

// --- Statements ---

// unsupportedStatements are statement keywords outside the verified subset
var unsupportedStatements = map[string]bool{
	"do":       true,
	"switch":   true,
	"foreach":  true,
	"break":    true,
	"continue": true,
	"throw":    true,
	"try":      true,
	"goto":     true,
	"lock":     true,
	"using":    true,
	"yield":    true,
	"checked":  true,
}

// parseBlock parses: { statement* }
func (p *Parser) parseBlock() []model.Statement {
	p.expect(lexer.LBRACE)
	stmts := []model.Statement{}
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		startPos := p.pos
		stmts = append(stmts, p.parseStatement()...)
		if p.pos == startPos {
			p.advance() // ensure forward progress to avoid infinite loop
		}
	}
	p.expect(lexer.RBRACE)
	return stmts
}

// parseBody parses a block or a single embedded statement
func (p *Parser) parseBody() []model.Statement {
	if p.check(lexer.LBRACE) {
		return p.parseBlock()
	}
	return p.parseStatement()
}

// parseStatement parses one statement. Nested blocks are flattened into the
// enclosing list, so the result may hold any number of statements.
func (p *Parser) parseStatement() []model.Statement {
	tok := p.current()
	switch {
	case tok.Type == lexer.LBRACE:
		return p.parseBlock()
	case tok.Type == lexer.SEMICOLON:
		p.advance()
		return nil
	case tok.Type == lexer.IF:
		return p.parseIfStmt()
	case tok.Type == lexer.RETURN:
		return p.parseReturnStmt()
	case tok.Type == lexer.FOR:
		return p.parseForStmt()
	case tok.Type == lexer.WHILE:
		p.skipConstruct()
		p.reject(model.UnsupportedStatement, tok, "while loops are not supported")
		return nil
	case tok.Type == lexer.IDENT && unsupportedStatements[tok.Literal] && p.peek().Type != lexer.ASSIGN:
		if tok.Literal == "do" {
			p.skipConstruct(lexer.WHILE)
		} else {
			p.skipConstruct()
		}
		p.reject(model.UnsupportedStatement, tok, fmt.Sprintf("%s statements are not supported", tok.Literal))
		return nil
	case p.isContract():
		p.advance()
		_, category := contractKind(tok.Type)
		p.reject(category, tok, "contract comments inside a method body are not supported")
		return nil
	case p.looksLikeDeclaration():
		return p.parseLocalDecl()
	default:
		return p.parseExprStmt()
	}
}

// looksLikeDeclaration reports whether the tokens at the cursor start a local
// declaration: a type followed by a name.
func (p *Parser) looksLikeDeclaration() bool {
	tok := p.current()
	if tok.Type.IsTypeKeyword() {
		return p.peek().Type != lexer.DOT
	}
	if tok.Type != lexer.IDENT {
		return false
	}
	i := 1
	for p.peekN(i).Type == lexer.DOT && p.peekN(i+1).Type == lexer.IDENT {
		i += 2
	}
	if p.peekN(i).Type == lexer.LT {
		return true // generic type, rejected by parseType
	}
	for p.peekN(i).Type == lexer.LBRACKET && p.peekN(i+1).Type == lexer.RBRACKET {
		i += 2
	}
	return p.peekN(i).Type == lexer.IDENT
}

// parseLocalDecl parses: T name [= expr];
func (p *Parser) parseLocalDecl() []model.Statement {
	start := p.current()
	typ, reason := p.parseType()
	if typ == nil {
		p.synchronize()
		return nil
	}
	nameTok := p.expect(lexer.IDENT)
	if nameTok.Type != lexer.IDENT {
		p.synchronize()
		return nil
	}
	if p.check(lexer.COMMA) {
		reason = firstOf(reason, "multiple declarators are not supported")
	}
	if typ.Kind == model.Void {
		reason = firstOf(reason, "void locals are not supported")
	}
	if reason != "" {
		p.skipConstruct()
		p.reject(model.UnsupportedLocal, start, reason)
		return nil
	}

	v := p.declareLocal(nameTok, typ)

	target := &model.VariableRef{Name: v.Name, Location: v.Location}
	decl := &model.Assignment{Target: target, Value: defaultValue(typ, v.Location), IsDeclaration: true, Location: locOf(start)}
	if !p.match(lexer.ASSIGN) {
		p.expect(lexer.SEMICOLON)
		return []model.Statement{decl}
	}
	if p.isCallStart() {
		call := p.parseCall(start, &model.VariableRef{Name: v.Name, Location: v.Location})
		if call == nil {
			return []model.Statement{decl}
		}
		return []model.Statement{decl, call}
	}
	decl.Value = p.parseExpression()
	p.expect(lexer.SEMICOLON)
	return []model.Statement{decl}
}

// declareLocal registers a local of the current method. A declaration in a sibling
// block that repeats the name and type of an earlier local reuses that variable.
func (p *Parser) declareLocal(nameTok lexer.Token, typ *model.Type) *model.Variable {
	for _, l := range p.method.Locals {
		if l.Name == nameTok.Literal && !l.IsResult && l.Type.Equal(typ) {
			return l
		}
	}
	v := &model.Variable{
		Name:     nameTok.Literal,
		Kind:     model.LocalVar,
		Type:     typ,
		Location: locOf(nameTok),
		Owner:    p.class.Name,
		Method:   p.method.Name,
	}
	p.method.Locals = append(p.method.Locals, v)
	return v
}

func defaultValue(t *model.Type, loc model.Location) model.Expression {
	switch t.Kind {
	case model.Boolean:
		return &model.BoolLiteral{Value: false, Location: loc}
	case model.Integer:
		return &model.IntLiteral{Value: 0, Location: loc}
	case model.FloatingPoint:
		return &model.FloatLiteral{Value: 0, Text: "0", Location: loc}
	default:
		return &model.NullLiteral{Of: t, Location: loc}
	}
}

// parseIfStmt parses: if ( cond ) stmt [else stmt]
func (p *Parser) parseIfStmt() []model.Statement {
	tok := p.expect(lexer.IF)
	p.expect(lexer.LPAREN)
	cond := p.parseExpression()
	p.expect(lexer.RPAREN)

	stmt := &model.Conditional{Condition: cond, Location: locOf(tok)}
	stmt.Then = p.parseBody()
	if p.match(lexer.ELSE) {
		stmt.Else = p.parseBody()
	}
	return []model.Statement{stmt}
}

// parseReturnStmt parses: return [expr];
func (p *Parser) parseReturnStmt() []model.Statement {
	tok := p.expect(lexer.RETURN)
	stmt := &model.Return{Location: locOf(tok)}
	if !p.check(lexer.SEMICOLON) {
		if p.isCallStart() {
			p.skipConstruct()
			p.reject(model.UnsupportedStatement, tok, "returning a call result directly is not supported")
			return nil
		}
		stmt.Value = p.parseExpression()
	}
	p.expect(lexer.SEMICOLON)
	return []model.Statement{stmt}
}

// parseForStmt parses: for (int i = from; i < to; i++) body
func (p *Parser) parseForStmt() []model.Statement {
	tok := p.current()
	startPos := p.pos
	unsupported := func(reason string) []model.Statement {
		p.pos = startPos
		p.skipConstruct()
		p.reject(model.UnsupportedStatement, tok, reason)
		return nil
	}

	p.expect(lexer.FOR)
	p.expect(lexer.LPAREN)
	if !p.check(lexer.INT_TYPE) || p.peek().Type != lexer.IDENT || p.peekN(2).Type != lexer.ASSIGN {
		return unsupported("for loops must declare an int index")
	}
	p.advance()
	index := p.advance()
	p.advance()
	from := p.parseExpression()
	p.expect(lexer.SEMICOLON)

	if !p.checkWord(index.Literal) {
		return unsupported("for loop condition must test the index")
	}
	p.advance()
	var inclusive bool
	switch {
	case p.match(lexer.LT):
	case p.match(lexer.LEQ):
		inclusive = true
	default:
		return unsupported("for loop condition must be index < bound or index <= bound")
	}
	to := p.parseExpression()
	p.expect(lexer.SEMICOLON)

	switch {
	case p.checkWord(index.Literal) && p.peek().Type == lexer.INC:
		p.advance()
		p.advance()
	case p.check(lexer.INC) && p.peek().Type == lexer.IDENT && p.peek().Literal == index.Literal:
		p.advance()
		p.advance()
	case p.checkWord(index.Literal) && p.peek().Type == lexer.PLUS_EQ &&
		p.peekN(2).Type == lexer.INT_LIT && p.peekN(2).Literal == "1":
		p.advance()
		p.advance()
		p.advance()
	default:
		return unsupported("for loops must increment the index by one")
	}
	p.expect(lexer.RPAREN)

	v := p.declareLocal(index, model.TypeInt)

	loop := &model.ForLoop{
		Index:     &model.VariableRef{Name: v.Name, Location: v.Location},
		From:      from,
		To:        to,
		Inclusive: inclusive,
		Location:  locOf(tok),
	}
	loop.Body = p.parseBody()
	return []model.Statement{loop}
}

// isCallStart reports whether the cursor is at Name( or this.Name(
func (p *Parser) isCallStart() bool {
	if p.check(lexer.IDENT) && p.peek().Type == lexer.LPAREN {
		return true
	}
	return p.check(lexer.THIS) && p.peek().Type == lexer.DOT &&
		p.peekN(2).Type == lexer.IDENT && p.peekN(3).Type == lexer.LPAREN
}

// parseCall parses a call of a method of the same instance followed by a semicolon.
// A call that is part of a larger expression is rejected.
func (p *Parser) parseCall(start lexer.Token, dest model.Expression) model.Statement {
	if p.match(lexer.THIS) {
		p.advance() // '.'
	}
	name := p.advance()
	p.expect(lexer.LPAREN)
	var args []model.Expression
	if !p.check(lexer.RPAREN) {
		args = append(args, p.parseExpression())
		for p.match(lexer.COMMA) {
			args = append(args, p.parseExpression())
		}
	}
	p.expect(lexer.RPAREN)
	if !p.check(lexer.SEMICOLON) {
		p.skipConstruct()
		p.reject(model.UnsupportedExpression, start, "method calls inside expressions are not supported")
		return nil
	}
	p.advance()
	return &model.MethodCall{Method: name.Literal, Args: args, Dest: dest, Location: locOf(name)}
}

// parseExprStmt parses an assignment or a call statement
func (p *Parser) parseExprStmt() []model.Statement {
	start := p.current()
	if p.isCallStart() {
		if call := p.parseCall(start, nil); call != nil {
			return []model.Statement{call}
		}
		return nil
	}

	before := p.rejections
	target := p.parsePostfix()
	if p.rejections > before {
		p.skipConstruct()
		return nil
	}
	if !isAssignable(target) {
		p.diags.Errorf(start.Line, start.Column, "expected assignment or call statement")
		p.synchronize()
		return nil
	}

	loc := locOf(start)
	switch op := p.current(); op.Type {
	case lexer.ASSIGN:
		p.advance()
		if p.isCallStart() {
			if call := p.parseCall(start, target); call != nil {
				return []model.Statement{call}
			}
			return nil
		}
		value := p.parseExpression()
		p.expect(lexer.SEMICOLON)
		return []model.Statement{&model.Assignment{Target: target, Value: value, Location: loc}}
	case lexer.PLUS_EQ, lexer.MINUS_EQ:
		p.advance()
		value := p.parseExpression()
		p.expect(lexer.SEMICOLON)
		arith := model.Add
		if op.Type == lexer.MINUS_EQ {
			arith = model.Sub
		}
		return []model.Statement{&model.Assignment{
			Target:   target,
			Value:    &model.Binary{Op: arith, Left: target, Right: value, Location: locOf(op)},
			Location: loc,
		}}
	case lexer.INC, lexer.DEC:
		p.advance()
		p.expect(lexer.SEMICOLON)
		arith := model.Add
		if op.Type == lexer.DEC {
			arith = model.Sub
		}
		one := &model.IntLiteral{Value: 1, Location: locOf(op)}
		return []model.Statement{&model.Assignment{
			Target:   target,
			Value:    &model.Binary{Op: arith, Left: target, Right: one, Location: locOf(op)},
			Location: loc,
		}}
	default:
		p.diags.Errorf(op.Line, op.Column, "expected assignment operator, got %s", op.Type)
		p.synchronize()
		return nil
	}
}

func isAssignable(e model.Expression) bool {
	switch e.(type) {
	case *model.VariableRef, *model.MemberAccess, *model.ElementAccess:
		return true
	default:
		return false
	}
}

// --- Expressions: precedence climbing ---

// Precedence levels (lowest to highest):
// 1. ||           (left-associative)
// 2. &&           (left-associative)
// 3. == !=        (left-associative)
// 4. < > <= >=    (left-associative)
// 5. + -          (left-associative)
// 6. * / %        (left-associative)
// 7. unary (- !)
// 8. postfix (. [])
const (
	precNone       = 0
	precOr         = 1
	precAnd        = 2
	precEquality   = 3
	precComparison = 4
	precAdditive   = 5
	precMulti      = 6
)

func tokenPrecedence(tt lexer.TokenType) int {
	switch tt {
	case lexer.OR, lexer.PIPE:
		return precOr
	case lexer.AND, lexer.AMPERSAND:
		return precAnd
	case lexer.EQ, lexer.NEQ:
		return precEquality
	case lexer.LT, lexer.GT, lexer.LEQ, lexer.GEQ:
		return precComparison
	case lexer.PLUS, lexer.MINUS:
		return precAdditive
	case lexer.STAR, lexer.SLASH, lexer.PERCENT:
		return precMulti
	default:
		return precNone
	}
}

func (p *Parser) parseExpression() model.Expression {
	start := p.current()
	expr := p.parsePrecedence(precOr)
	if p.check(lexer.QUESTION) {
		p.advance()
		p.parseExpression()
		p.expect(lexer.COLON)
		p.parseExpression()
		p.reject(model.UnsupportedExpression, start, "conditional expressions are not supported")
	}
	return expr
}

func (p *Parser) parsePrecedence(minPrec int) model.Expression {
	start := p.current()
	left := p.parseUnary()

	for {
		prec := tokenPrecedence(p.current().Type)
		if prec == precNone || prec < minPrec {
			break
		}
		op := p.advance()
		right := p.parsePrecedence(prec + 1)
		loc := left.Loc()

		switch op.Type {
		case lexer.OR:
			left = &model.Logical{Op: model.Or, Left: left, Right: right, Location: loc}
		case lexer.AND:
			left = &model.Logical{Op: model.And, Left: left, Right: right, Location: loc}
		case lexer.EQ, lexer.NEQ, lexer.LT, lexer.GT, lexer.LEQ, lexer.GEQ:
			left = &model.Comparison{Op: compareOps[op.Type], Left: left, Right: right, Location: loc}
		case lexer.PLUS, lexer.MINUS, lexer.STAR, lexer.SLASH, lexer.PERCENT:
			left = &model.Binary{Op: arithOps[op.Type], Left: left, Right: right, Location: locOf(op)}
		default:
			p.reject(model.UnsupportedExpression, start, "bitwise operators are not supported")
		}
	}
	return left
}

var compareOps = map[lexer.TokenType]model.CompareOp{
	lexer.EQ:  model.Eq,
	lexer.NEQ: model.Ne,
	lexer.LT:  model.Lt,
	lexer.LEQ: model.Le,
	lexer.GT:  model.Gt,
	lexer.GEQ: model.Ge,
}

var arithOps = map[lexer.TokenType]model.ArithOp{
	lexer.PLUS:    model.Add,
	lexer.MINUS:   model.Sub,
	lexer.STAR:    model.Mul,
	lexer.SLASH:   model.Div,
	lexer.PERCENT: model.Rem,
}

func (p *Parser) parseUnary() model.Expression {
	tok := p.current()
	switch tok.Type {
	case lexer.MINUS:
		p.advance()
		return &model.Unary{Op: model.Negate, Operand: p.parseUnary(), Location: locOf(tok)}
	case lexer.NOT:
		p.advance()
		return &model.Unary{Op: model.Not, Operand: p.parseUnary(), Location: locOf(tok)}
	case lexer.INC, lexer.DEC:
		p.advance()
		operand := p.parseUnary()
		p.reject(model.UnsupportedExpression, tok, "increment inside an expression is not supported")
		return operand
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() model.Expression {
	start := p.current()
	expr := p.parsePrimary()

	for {
		switch {
		case p.check(lexer.LBRACKET):
			p.advance() // consume '['
			index := p.parseExpression()
			p.expect(lexer.RBRACKET)
			expr = &model.ElementAccess{Array: expr, Index: index, Location: expr.Loc()}
		case p.check(lexer.DOT):
			p.advance()
			name := p.expect(lexer.IDENT)
			if p.check(lexer.LPAREN) {
				p.skipBalanced(lexer.LPAREN, lexer.RPAREN)
				p.reject(model.UnsupportedExpression, start, "calls on other objects are not supported")
				return expr
			}
			expr = &model.MemberAccess{Object: expr, Member: name.Literal, Location: locOf(name)}
		case p.check(lexer.LPAREN):
			p.skipBalanced(lexer.LPAREN, lexer.RPAREN)
			p.reject(model.UnsupportedExpression, start, "method calls inside expressions are not supported")
			return expr
		case p.check(lexer.INC) || p.check(lexer.DEC):
			if p.peek().Type == lexer.SEMICOLON {
				return expr // statement form, handled by the caller
			}
			p.advance()
			p.reject(model.UnsupportedExpression, start, "increment inside an expression is not supported")
			return expr
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() model.Expression {
	tok := p.current()
	loc := locOf(tok)

	switch tok.Type {
	case lexer.INT_LIT:
		p.advance()
		v, err := strconv.ParseInt(tok.Literal, 10, 64)
		if err != nil {
			p.reject(model.UnsupportedExpression, tok, "integer literal out of range")
		}
		return &model.IntLiteral{Value: v, Location: loc}
	case lexer.FLOAT_LIT:
		p.advance()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.reject(model.UnsupportedExpression, tok, "invalid floating point literal")
		}
		return &model.FloatLiteral{Value: v, Text: tok.Literal, Location: loc}
	case lexer.TRUE, lexer.FALSE:
		p.advance()
		return &model.BoolLiteral{Value: tok.Type == lexer.TRUE, Location: loc}
	case lexer.NULL:
		p.advance()
		return &model.NullLiteral{Location: loc}
	case lexer.STRING_LIT:
		p.advance()
		p.reject(model.UnsupportedExpression, tok, "string literals are not supported")
		return &model.NullLiteral{Location: loc}
	case lexer.IDENT:
		p.advance()
		return &model.VariableRef{Name: tok.Literal, Location: loc}
	case lexer.THIS:
		p.advance()
		if !p.check(lexer.DOT) {
			p.reject(model.UnsupportedExpression, tok, "this is only supported in member access")
			return &model.NullLiteral{Location: loc}
		}
		p.advance()
		name := p.expect(lexer.IDENT)
		if p.check(lexer.LPAREN) {
			p.skipBalanced(lexer.LPAREN, lexer.RPAREN)
			p.reject(model.UnsupportedExpression, tok, "method calls inside expressions are not supported")
		}
		return &model.VariableRef{Name: name.Literal, ViaThis: true, Location: loc}
	case lexer.LPAREN:
		if p.peek().Type.IsTypeKeyword() && p.peekN(2).Type == lexer.RPAREN {
			p.advance()
			p.advance()
			p.advance()
			operand := p.parseUnary()
			p.reject(model.UnsupportedExpression, tok, "casts are not supported")
			return operand
		}
		p.advance()
		inner := p.parseExpression()
		p.expect(lexer.RPAREN)
		return &model.Paren{Inner: inner, Location: loc}
	case lexer.NEW:
		return p.parseNew()
	default:
		if tok.Type.IsTypeKeyword() {
			p.advance()
			p.reject(model.UnsupportedExpression, tok, "type members are not supported")
			return &model.NullLiteral{Location: loc}
		}
		p.diags.Errorf(tok.Line, tok.Column, "unexpected token %s in expression", tok.Type)
		if !syncTokens[tok.Type] {
			p.advance()
		}
		return &model.NullLiteral{Location: loc}
	}
}

// parseNew parses: new C()  or  new T[n]
func (p *Parser) parseNew() model.Expression {
	tok := p.expect(lexer.NEW)
	loc := locOf(tok)

	var elem *model.Type
	className := ""
	switch t := p.current(); t.Type {
	case lexer.INT_TYPE:
		elem = model.TypeInt
	case lexer.BOOL_TYPE:
		elem = model.TypeBool
	case lexer.DOUBLE_TYPE, lexer.FLOAT_TYPE:
		elem = model.TypeFloat
	case lexer.IDENT:
		className = p.parseQualifiedName()
		elem = model.RefType(className)
	default:
		p.skipConstruct()
		p.reject(model.UnsupportedExpression, tok, "unsupported new expression")
		return &model.NullLiteral{Location: loc}
	}
	if className == "" {
		p.advance()
	}

	switch {
	case p.check(lexer.LBRACKET) && p.peek().Type != lexer.RBRACKET:
		p.advance()
		length := p.parseExpression()
		p.expect(lexer.RBRACKET)
		return &model.NewArray{Elem: elem, Length: length, Location: loc}
	case className != "" && p.check(lexer.LPAREN) && p.peek().Type == lexer.RPAREN:
		p.advance()
		p.advance()
		if p.check(lexer.LBRACE) {
			p.skipBalanced(lexer.LBRACE, lexer.RBRACE)
			p.reject(model.UnsupportedExpression, tok, "object initializers are not supported")
		}
		return &model.NewObject{ClassName: className, Location: loc}
	case p.check(lexer.LPAREN):
		p.skipBalanced(lexer.LPAREN, lexer.RPAREN)
		p.reject(model.UnsupportedExpression, tok, "constructor arguments are not supported")
	default:
		for p.check(lexer.LBRACKET) {
			p.skipBalanced(lexer.LBRACKET, lexer.RBRACKET)
		}
		if p.check(lexer.LBRACE) {
			p.skipBalanced(lexer.LBRACE, lexer.RBRACE)
		}
		p.reject(model.UnsupportedExpression, tok, "array initializers are not supported")
	}
	return &model.NullLiteral{Location: loc}
}
