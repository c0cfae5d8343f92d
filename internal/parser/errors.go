package parser

import (
	"github.com/lhaig/boundcheck/internal/diagnostic"
	"github.com/lhaig/boundcheck/internal/lexer"
	"github.com/lhaig/boundcheck/internal/model"
)

// syncTokens are tokens the parser can synchronize to after an error
var syncTokens = map[lexer.TokenType]bool{
	lexer.CLASS:     true,
	lexer.PUBLIC:    true,
	lexer.PRIVATE:   true,
	lexer.RETURN:    true,
	lexer.IF:        true,
	lexer.FOR:       true,
	lexer.RBRACE:    true,
	lexer.SEMICOLON: true,
	lexer.EOF:       true,
}

// Parser holds the parser state
type Parser struct {
	tokens []lexer.Token
	pos    int
	diags  *diagnostic.Diagnostics
	source string // raw source for extracting the text of rejected elements
	lines  []int  // byte offset of the first character of every line

	namespace  string
	class      *model.ClassModel
	method     *model.Method
	pending    []lexer.Token // contract comments waiting for the member they annotate
	rejections int
	issues     []string // rejection reasons when no class is being built
}

// current returns the current token
func (p *Parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos]
}

// peek returns the next token without consuming
func (p *Parser) peek() lexer.Token {
	return p.peekN(1)
}

// peekN returns the token n positions ahead without consuming
func (p *Parser) peekN(n int) lexer.Token {
	if p.pos+n >= len(p.tokens) {
		return lexer.Token{Type: lexer.EOF}
	}
	return p.tokens[p.pos+n]
}

// advance moves to the next token and returns the consumed token
func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes the current token if it matches the expected type,
// otherwise reports an error
func (p *Parser) expect(tt lexer.TokenType) lexer.Token {
	tok := p.current()
	if tok.Type != tt {
		p.diags.Errorf(tok.Line, tok.Column, "expected %s, got %s", tt, tok.Type)
		return tok
	}
	return p.advance()
}

// check returns true if the current token is of the given type
func (p *Parser) check(tt lexer.TokenType) bool {
	return p.current().Type == tt
}

// checkWord returns true if the current token is the identifier word
func (p *Parser) checkWord(word string) bool {
	tok := p.current()
	return tok.Type == lexer.IDENT && tok.Literal == word
}

// match consumes the current token if it matches, returns true if consumed
func (p *Parser) match(tt lexer.TokenType) bool {
	if p.check(tt) {
		p.advance()
		return true
	}
	return false
}

// synchronize skips tokens until a sync point is found, consuming a semicolon
func (p *Parser) synchronize() {
	for !p.check(lexer.EOF) {
		if p.current().Type == lexer.SEMICOLON {
			p.advance() // consume the semicolon and continue
			return
		}
		if syncTokens[p.current().Type] {
			return
		}
		p.advance()
	}
}

// skipBalanced consumes tokens from an opening delimiter through its matching close
func (p *Parser) skipBalanced(open, close lexer.TokenType) {
	depth := 0
	for !p.check(lexer.EOF) {
		tok := p.advance()
		switch tok.Type {
		case open:
			depth++
		case close:
			depth--
			if depth <= 0 {
				return
			}
		}
	}
}

// skipConstruct consumes a statement or member the parser does not model: everything
// up to a semicolon or a closing brace at nesting depth zero. Tokens in cont continue
// the construct after a closing brace (else, catch, an initializer).
func (p *Parser) skipConstruct(cont ...lexer.TokenType) {
	depth := 0
	for !p.check(lexer.EOF) {
		if depth == 0 && p.check(lexer.RBRACE) {
			return // belongs to the enclosing block
		}
		tok := p.advance()
		switch tok.Type {
		case lexer.LPAREN, lexer.LBRACKET, lexer.LBRACE:
			depth++
		case lexer.RPAREN, lexer.RBRACKET:
			depth--
		case lexer.RBRACE:
			depth--
			if depth == 0 && !p.continues(cont) {
				return
			}
		case lexer.SEMICOLON:
			if depth == 0 {
				return
			}
		}
	}
}

func (p *Parser) continues(cont []lexer.TokenType) bool {
	tok := p.current()
	if tok.Type == lexer.ELSE || tok.Type == lexer.IDENT && (tok.Literal == "catch" || tok.Literal == "finally") {
		return true
	}
	for _, tt := range cont {
		if tok.Type == tt {
			return true
		}
	}
	return false
}

// offset converts a token position into a byte offset in the source
func (p *Parser) offset(tok lexer.Token) int {
	if tok.Line < 1 || tok.Line > len(p.lines) {
		return -1
	}
	off := p.lines[tok.Line-1] + tok.Column - 1
	if off > len(p.source) {
		return -1
	}
	return off
}

// textFrom returns the source text from start through the last consumed token
func (p *Parser) textFrom(start lexer.Token) string {
	if p.pos == 0 {
		return ""
	}
	last := p.tokens[p.pos-1]
	from, to := p.offset(start), p.offset(last)
	if from < 0 || to < 0 {
		return start.Literal
	}
	to += len(last.Literal)
	if to > len(p.source) {
		to = len(p.source)
	}
	if from >= to {
		return start.Literal
	}
	return p.source[from:to]
}

// reject records an element that is valid source but cannot be verified
func (p *Parser) reject(c model.Category, start lexer.Token, reason string) {
	p.rejections++
	if p.class == nil {
		p.issues = append(p.issues, reason)
		return
	}
	p.class.Unsupported.Reject(c, p.textFrom(start), locOf(start), reason)
}

func locOf(tok lexer.Token) model.Location {
	return model.Location{Line: tok.Line, Column: tok.Column}
}

func lineOffsets(source string) []int {
	lines := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			lines = append(lines, i+1)
		}
	}
	return lines
}
