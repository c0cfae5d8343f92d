package lexer

import "strings"

// Lexer scans class source code and produces tokens
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number
	column       int  // current column number
}

// New creates a new Lexer instance
func New(input string) *Lexer {
	return NewAt(input, 1, 1)
}

// NewAt creates a Lexer whose first character is reported at line:column.
// It is used to re-scan the expression text of a contract comment.
func NewAt(input string, line, column int) *Lexer {
	l := &Lexer{
		input:  input,
		line:   line,
		column: column - 1,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances the position
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0 // ASCII code for NUL
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

// peekChar returns the next character without advancing the position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// skipWhitespace skips whitespace characters
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		if l.ch == '\n' {
			l.line++
			l.column = 0
		}
		l.readChar()
	}
}

// readLineComment consumes a // comment. Comments of the form "// Invariant: expr",
// "// Require: expr" and "// Ensure: expr" become contract tokens whose position is
// the start of the expression text.
func (l *Lexer) readLineComment(line, column int) (Token, bool) {
	start := l.position
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
	text := l.input[start+2 : l.position]

	body := strings.TrimLeft(text, " \t")
	word, rest, found := strings.Cut(body, ":")
	if !found {
		return Token{}, false
	}
	typ, ok := contractPrefixes[strings.TrimSpace(word)]
	if !ok {
		return Token{}, false
	}
	expr := strings.TrimLeft(rest, " \t")
	offset := 2 + (len(text) - len(body)) + len(word) + 1 + (len(rest) - len(expr))
	return Token{
		Type:    typ,
		Literal: strings.TrimRight(expr, " \t\r"),
		Line:    line,
		Column:  column + offset,
	}, true
}

// skipMultiLineComment skips a multi-line comment (/* */)
func (l *Lexer) skipMultiLineComment() {
	// Already read '/*', now skip until '*/'
	for {
		if l.ch == 0 {
			break // End of file
		}
		if l.ch == '\n' {
			l.line++
			l.column = 0
		}
		if l.ch == '*' && l.peekChar() == '/' {
			l.readChar() // consume '*'
			l.readChar() // consume '/'
			break
		}
		l.readChar()
	}
}

// readIdentifier reads an identifier or keyword
func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

// readNumber reads a numeric literal (integer or float). A trailing d, f or m suffix
// marks a floating point literal.
func (l *Lexer) readNumber() (string, TokenType) {
	position := l.position
	tokenType := INT_LIT

	// Read integer part
	for isDigit(l.ch) {
		l.readChar()
	}

	// Check for decimal point
	if l.ch == '.' && isDigit(l.peekChar()) {
		tokenType = FLOAT_LIT
		l.readChar() // consume '.'

		// Read fractional part
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	literal := l.input[position:l.position]

	switch l.ch {
	case 'd', 'D', 'f', 'F', 'm', 'M':
		tokenType = FLOAT_LIT
		l.readChar()
	}
	return literal, tokenType
}

// readString reads a string literal
func (l *Lexer) readString() (string, bool) {
	// Already consumed opening quote
	position := l.position
	for {
		l.readChar()
		if l.ch == 0 || l.ch == '\n' {
			// Unterminated string
			return "", false
		}
		if l.ch == '\\' {
			l.readChar()
			continue
		}
		if l.ch == '"' {
			break
		}
	}
	// Store the raw literal including quotes for reference
	return l.input[position : l.position+1], true
}

// either returns the two-character token when the next char is second, and the
// single-character token otherwise
func (l *Lexer) either(second byte, double, single TokenType, line, column int) Token {
	if l.peekChar() == second {
		ch := l.ch
		l.readChar()
		return Token{Type: double, Literal: string(ch) + string(l.ch), Line: line, Column: column}
	}
	return Token{Type: single, Literal: string(l.ch), Line: line, Column: column}
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() Token {
	var tok Token

	l.skipWhitespace()

	// Save position before processing token
	line, column := l.line, l.column

	switch l.ch {
	case '=':
		tok = l.either('=', EQ, ASSIGN, line, column)
	case '!':
		tok = l.either('=', NEQ, NOT, line, column)
	case '<':
		tok = l.either('=', LEQ, LT, line, column)
	case '>':
		tok = l.either('=', GEQ, GT, line, column)
	case '&':
		tok = l.either('&', AND, AMPERSAND, line, column)
	case '|':
		tok = l.either('|', OR, PIPE, line, column)
	case '+':
		if l.peekChar() == '=' {
			tok = l.either('=', PLUS_EQ, PLUS, line, column)
		} else {
			tok = l.either('+', INC, PLUS, line, column)
		}
	case '-':
		if l.peekChar() == '=' {
			tok = l.either('=', MINUS_EQ, MINUS, line, column)
		} else {
			tok = l.either('-', DEC, MINUS, line, column)
		}
	case '*':
		tok = Token{Type: STAR, Literal: string(l.ch), Line: line, Column: column}
	case '/':
		if l.peekChar() == '/' {
			if contract, ok := l.readLineComment(line, column); ok {
				return contract
			}
			return l.NextToken()
		} else if l.peekChar() == '*' {
			l.readChar() // consume '/'
			l.readChar() // consume '*'
			l.skipMultiLineComment()
			return l.NextToken()
		}
		tok = Token{Type: SLASH, Literal: string(l.ch), Line: line, Column: column}
	case '%':
		tok = Token{Type: PERCENT, Literal: string(l.ch), Line: line, Column: column}
	case '?':
		tok = Token{Type: QUESTION, Literal: string(l.ch), Line: line, Column: column}
	case '(':
		tok = Token{Type: LPAREN, Literal: string(l.ch), Line: line, Column: column}
	case ')':
		tok = Token{Type: RPAREN, Literal: string(l.ch), Line: line, Column: column}
	case '{':
		tok = Token{Type: LBRACE, Literal: string(l.ch), Line: line, Column: column}
	case '}':
		tok = Token{Type: RBRACE, Literal: string(l.ch), Line: line, Column: column}
	case '[':
		tok = Token{Type: LBRACKET, Literal: string(l.ch), Line: line, Column: column}
	case ']':
		tok = Token{Type: RBRACKET, Literal: string(l.ch), Line: line, Column: column}
	case ',':
		tok = Token{Type: COMMA, Literal: string(l.ch), Line: line, Column: column}
	case ':':
		tok = Token{Type: COLON, Literal: string(l.ch), Line: line, Column: column}
	case ';':
		tok = Token{Type: SEMICOLON, Literal: string(l.ch), Line: line, Column: column}
	case '.':
		tok = Token{Type: DOT, Literal: string(l.ch), Line: line, Column: column}
	case '"':
		str, ok := l.readString()
		if !ok {
			tok = Token{Type: ILLEGAL, Literal: "unterminated string", Line: line, Column: column}
		} else {
			tok = Token{Type: STRING_LIT, Literal: str, Line: line, Column: column}
		}
	case 0:
		return Token{Type: EOF, Literal: "", Line: line, Column: column}
	default:
		if isLetter(l.ch) {
			ident := l.readIdentifier()
			return Token{Type: LookupIdent(ident), Literal: ident, Line: line, Column: column}
		} else if isDigit(l.ch) {
			literal, tokenType := l.readNumber()
			return Token{Type: tokenType, Literal: literal, Line: line, Column: column}
		}
		tok = Token{Type: ILLEGAL, Literal: string(l.ch), Line: line, Column: column}
	}

	l.readChar()
	return tok
}

// Tokenize returns all tokens from the input
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			break
		}
	}
	return tokens
}

// Helper functions

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
