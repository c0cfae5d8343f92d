package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestNextToken_Operators(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
	}{
		{
			name:     "arithmetic operators",
			input:    "+ - * / %",
			expected: []TokenType{PLUS, MINUS, STAR, SLASH, PERCENT, EOF},
		},
		{
			name:     "comparison operators",
			input:    "== != < > <= >=",
			expected: []TokenType{EQ, NEQ, LT, GT, LEQ, GEQ, EOF},
		},
		{
			name:     "logical operators",
			input:    "&& || !",
			expected: []TokenType{AND, OR, NOT, EOF},
		},
		{
			name:     "compound assignment",
			input:    "= += -= ++ --",
			expected: []TokenType{ASSIGN, PLUS_EQ, MINUS_EQ, INC, DEC, EOF},
		},
		{
			name:     "single bitwise",
			input:    "& | ?",
			expected: []TokenType{AMPERSAND, PIPE, QUESTION, EOF},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, types(New(tt.input).Tokenize()))
		})
	}
}

func TestNextToken_Delimiters(t *testing.T) {
	expected := []TokenType{
		LPAREN, RPAREN, LBRACE, RBRACE, LBRACKET, RBRACKET,
		COMMA, COLON, SEMICOLON, DOT, EOF,
	}
	assert.Equal(t, expected, types(New("( ) { } [ ] , : ; .").Tokenize()))
}

func TestNextToken_Keywords(t *testing.T) {
	tests := []struct {
		keyword  string
		expected TokenType
	}{
		{"namespace", NAMESPACE},
		{"class", CLASS},
		{"public", PUBLIC},
		{"private", PRIVATE},
		{"static", STATIC},
		{"if", IF},
		{"else", ELSE},
		{"return", RETURN},
		{"for", FOR},
		{"while", WHILE},
		{"new", NEW},
		{"null", NULL},
		{"this", THIS},
		{"int", INT_TYPE},
		{"double", DOUBLE_TYPE},
		{"void", VOID_TYPE},
		{"Count", IDENT},
		{"get", IDENT},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			tok := New(tt.keyword).NextToken()
			assert.Equal(t, tt.expected, tok.Type)
			assert.Equal(t, tt.keyword, tok.Literal)
		})
	}
}

func TestNextToken_NumberLiterals(t *testing.T) {
	tests := []struct {
		input   string
		typ     TokenType
		literal string
	}{
		{"42", INT_LIT, "42"},
		{"3.25", FLOAT_LIT, "3.25"},
		{"2d", FLOAT_LIT, "2"},
		{"1.5f", FLOAT_LIT, "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := New(tt.input).NextToken()
			assert.Equal(t, tt.typ, tok.Type)
			assert.Equal(t, tt.literal, tok.Literal)
		})
	}
}

func TestNextToken_StringLiterals(t *testing.T) {
	tok := New(`"a \"quoted\" word"`).NextToken()
	assert.Equal(t, STRING_LIT, tok.Type)
	assert.Equal(t, `"a \"quoted\" word"`, tok.Literal)

	tok = New(`"open`).NextToken()
	assert.Equal(t, ILLEGAL, tok.Type)
}

func TestNextToken_LineAndColumnTracking(t *testing.T) {
	input := "class A {\n    int X;\n}"
	tokens := New(input).Tokenize()
	require.Len(t, tokens, 8)

	assert.Equal(t, Token{Type: CLASS, Literal: "class", Line: 1, Column: 1}, tokens[0])
	assert.Equal(t, Token{Type: IDENT, Literal: "A", Line: 1, Column: 7}, tokens[1])
	assert.Equal(t, Token{Type: INT_TYPE, Literal: "int", Line: 2, Column: 5}, tokens[3])
	assert.Equal(t, Token{Type: IDENT, Literal: "X", Line: 2, Column: 9}, tokens[4])
	assert.Equal(t, Token{Type: RBRACE, Literal: "}", Line: 3, Column: 1}, tokens[6])
}

func TestNextToken_Comments(t *testing.T) {
	input := "// plain comment\nx /* block\ncomment */ y // trailing: note\n"
	tokens := New(input).Tokenize()
	assert.Equal(t, []TokenType{IDENT, IDENT, EOF}, types(tokens))
	assert.Equal(t, 3, tokens[1].Line)
}

func TestNextToken_ContractComments(t *testing.T) {
	input := "        // Invariant: Count >= 0\n" +
		"    //Require:x > 0  \n" +
		"    // Ensure : Result == x\n"
	tokens := New(input).Tokenize()
	require.Len(t, tokens, 4)

	assert.Equal(t, Token{Type: INVARIANT_COMMENT, Literal: "Count >= 0", Line: 1, Column: 23}, tokens[0])
	assert.Equal(t, Token{Type: REQUIRE_COMMENT, Literal: "x > 0", Line: 2, Column: 15}, tokens[1])
	assert.Equal(t, ENSURE_COMMENT, tokens[2].Type)
	assert.Equal(t, "Result == x", tokens[2].Literal)
	assert.Equal(t, 3, tokens[2].Line)
	assert.Equal(t, 17, tokens[2].Column)
}

func TestNewAt_OffsetsPositions(t *testing.T) {
	tokens := NewAt("Count >= 0", 4, 23).Tokenize()
	require.Len(t, tokens, 4)
	assert.Equal(t, 23, tokens[0].Column)
	assert.Equal(t, 29, tokens[1].Column)
	assert.Equal(t, 32, tokens[2].Column)
	assert.Equal(t, 4, tokens[2].Line)
}

func TestNextToken_IllegalCharacters(t *testing.T) {
	for _, input := range []string{"@", "#", "$", "'"} {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, ILLEGAL, New(input).NextToken().Type)
		})
	}
}

func TestNextToken_CompleteClass(t *testing.T) {
	input := `class Counter {
    // Invariant: Count >= 0
    private int Count = 0;
    public void Add(int n) {
        if (n > 0) { this.Count += n; }
    }
}`
	expected := []TokenType{
		CLASS, IDENT, LBRACE,
		INVARIANT_COMMENT,
		PRIVATE, INT_TYPE, IDENT, ASSIGN, INT_LIT, SEMICOLON,
		PUBLIC, VOID_TYPE, IDENT, LPAREN, INT_TYPE, IDENT, RPAREN, LBRACE,
		IF, LPAREN, IDENT, GT, INT_LIT, RPAREN, LBRACE, THIS, DOT, IDENT, PLUS_EQ, IDENT, SEMICOLON, RBRACE,
		RBRACE,
		RBRACE,
		EOF,
	}
	assert.Equal(t, expected, types(New(input).Tokenize()))
}

func TestTokenType_String(t *testing.T) {
	assert.Equal(t, "INVARIANT_COMMENT", INVARIANT_COMMENT.String())
	assert.Equal(t, "PLUS_EQ", PLUS_EQ.String())
	assert.Equal(t, "TokenType(999)", TokenType(999).String())
	assert.True(t, DOUBLE_TYPE.IsTypeKeyword())
	assert.False(t, IDENT.IsTypeKeyword())
	assert.True(t, STATIC.IsModifier())
}
