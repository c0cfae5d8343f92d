package lexer

import "fmt"

// TokenType represents the type of a token
type TokenType int

const (
	// Special tokens
	ILLEGAL TokenType = iota
	EOF

	// Literals
	IDENT      // x, Count, Shop
	INT_LIT    // 123
	FLOAT_LIT  // 123.45
	STRING_LIT // "hello"

	// Contract comments. The literal holds the expression text after the colon.
	INVARIANT_COMMENT // Invariant: ...
	REQUIRE_COMMENT   // Require: ...
	ENSURE_COMMENT    // Ensure: ...

	// Keywords
	NAMESPACE
	CLASS
	PUBLIC
	PRIVATE
	PROTECTED
	INTERNAL
	STATIC
	READONLY
	IF
	ELSE
	RETURN
	FOR
	WHILE
	NEW
	NULL
	THIS
	TRUE
	FALSE

	// Type keywords
	INT_TYPE
	BOOL_TYPE
	DOUBLE_TYPE
	FLOAT_TYPE
	STRING_TYPE
	VOID_TYPE

	// Operators
	PLUS       // +
	MINUS      // -
	STAR       // *
	SLASH      // /
	PERCENT    // %
	EQ         // ==
	NEQ        // !=
	LT         // <
	GT         // >
	LEQ        // <=
	GEQ        // >=
	ASSIGN     // =
	AND        // &&
	OR         // ||
	NOT        // !
	INC        // ++
	DEC        // --
	PLUS_EQ    // +=
	MINUS_EQ   // -=
	AMPERSAND  // &
	PIPE       // |
	QUESTION   // ?

	// Delimiters
	LPAREN    // (
	RPAREN    // )
	LBRACE    // {
	RBRACE    // }
	LBRACKET  // [
	RBRACKET  // ]
	COMMA     // ,
	COLON     // :
	SEMICOLON // ;
	DOT       // .
)

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String returns a string representation of the token type
func (t TokenType) String() string {
	switch t {
	case ILLEGAL:
		return "ILLEGAL"
	case EOF:
		return "EOF"
	case IDENT:
		return "IDENT"
	case INT_LIT:
		return "INT_LIT"
	case FLOAT_LIT:
		return "FLOAT_LIT"
	case STRING_LIT:
		return "STRING_LIT"
	case INVARIANT_COMMENT:
		return "INVARIANT_COMMENT"
	case REQUIRE_COMMENT:
		return "REQUIRE_COMMENT"
	case ENSURE_COMMENT:
		return "ENSURE_COMMENT"
	case NAMESPACE:
		return "NAMESPACE"
	case CLASS:
		return "CLASS"
	case PUBLIC:
		return "PUBLIC"
	case PRIVATE:
		return "PRIVATE"
	case PROTECTED:
		return "PROTECTED"
	case INTERNAL:
		return "INTERNAL"
	case STATIC:
		return "STATIC"
	case READONLY:
		return "READONLY"
	case IF:
		return "IF"
	case ELSE:
		return "ELSE"
	case RETURN:
		return "RETURN"
	case FOR:
		return "FOR"
	case WHILE:
		return "WHILE"
	case NEW:
		return "NEW"
	case NULL:
		return "NULL"
	case THIS:
		return "THIS"
	case TRUE:
		return "TRUE"
	case FALSE:
		return "FALSE"
	case INT_TYPE:
		return "INT_TYPE"
	case BOOL_TYPE:
		return "BOOL_TYPE"
	case DOUBLE_TYPE:
		return "DOUBLE_TYPE"
	case FLOAT_TYPE:
		return "FLOAT_TYPE"
	case STRING_TYPE:
		return "STRING_TYPE"
	case VOID_TYPE:
		return "VOID_TYPE"
	case PLUS:
		return "PLUS"
	case MINUS:
		return "MINUS"
	case STAR:
		return "STAR"
	case SLASH:
		return "SLASH"
	case PERCENT:
		return "PERCENT"
	case EQ:
		return "EQ"
	case NEQ:
		return "NEQ"
	case LT:
		return "LT"
	case GT:
		return "GT"
	case LEQ:
		return "LEQ"
	case GEQ:
		return "GEQ"
	case ASSIGN:
		return "ASSIGN"
	case AND:
		return "AND"
	case OR:
		return "OR"
	case NOT:
		return "NOT"
	case INC:
		return "INC"
	case DEC:
		return "DEC"
	case PLUS_EQ:
		return "PLUS_EQ"
	case MINUS_EQ:
		return "MINUS_EQ"
	case AMPERSAND:
		return "AMPERSAND"
	case PIPE:
		return "PIPE"
	case QUESTION:
		return "QUESTION"
	case LPAREN:
		return "LPAREN"
	case RPAREN:
		return "RPAREN"
	case LBRACE:
		return "LBRACE"
	case RBRACE:
		return "RBRACE"
	case LBRACKET:
		return "LBRACKET"
	case RBRACKET:
		return "RBRACKET"
	case COMMA:
		return "COMMA"
	case COLON:
		return "COLON"
	case SEMICOLON:
		return "SEMICOLON"
	case DOT:
		return "DOT"
	default:
		return fmt.Sprintf("TokenType(%d)", t)
	}
}

// IsTypeKeyword reports whether the token names a builtin type
func (t TokenType) IsTypeKeyword() bool {
	return t >= INT_TYPE && t <= VOID_TYPE
}

// IsModifier reports whether the token is an access or storage modifier
func (t TokenType) IsModifier() bool {
	return t >= PUBLIC && t <= READONLY
}

// keywords maps keyword strings to their token types
var keywords = map[string]TokenType{
	"namespace": NAMESPACE,
	"class":     CLASS,
	"public":    PUBLIC,
	"private":   PRIVATE,
	"protected": PROTECTED,
	"internal":  INTERNAL,
	"static":    STATIC,
	"readonly":  READONLY,
	"if":        IF,
	"else":      ELSE,
	"return":    RETURN,
	"for":       FOR,
	"while":     WHILE,
	"new":       NEW,
	"null":      NULL,
	"this":      THIS,
	"true":      TRUE,
	"false":     FALSE,
	"int":       INT_TYPE,
	"bool":      BOOL_TYPE,
	"double":    DOUBLE_TYPE,
	"float":     FLOAT_TYPE,
	"string":    STRING_TYPE,
	"void":      VOID_TYPE,
}

// contractPrefixes maps the leading word of a contract comment to its token type
var contractPrefixes = map[string]TokenType{
	"Invariant": INVARIANT_COMMENT,
	"Require":   REQUIRE_COMMENT,
	"Ensure":    ENSURE_COMMENT,
}

// LookupIdent checks if an identifier is a keyword
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}
