// Package expression provides the restricted expression language used for
// task inputs, conditions, switch subjects and loop iterables.
package expression

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenIllegal

	// Literals
	TokenIdent  // variable name
	TokenInt    // integer literal
	TokenFloat  // float literal
	TokenString // string literal
	TokenBool   // true/false
	TokenNull   // null/none

	// Variable reference
	TokenVarRef // ${...}

	// Operators
	TokenEQ    // ==
	TokenNE    // !=
	TokenLT    // <
	TokenGT    // >
	TokenLE    // <=
	TokenGE    // >=
	TokenIN    // in
	TokenPlus  // +
	TokenMinus // -

	// Logical operators
	TokenAND // AND, &&
	TokenOR  // OR, ||
	TokenNOT // NOT, !

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenDot      // .
)

var tokenNames = map[TokenType]string{
	TokenEOF:      "EOF",
	TokenIllegal:  "ILLEGAL",
	TokenIdent:    "IDENT",
	TokenInt:      "INT",
	TokenFloat:    "FLOAT",
	TokenString:   "STRING",
	TokenBool:     "BOOL",
	TokenNull:     "NULL",
	TokenVarRef:   "VARREF",
	TokenEQ:       "==",
	TokenNE:       "!=",
	TokenLT:       "<",
	TokenGT:       ">",
	TokenLE:       "<=",
	TokenGE:       ">=",
	TokenIN:       "IN",
	TokenPlus:     "+",
	TokenMinus:    "-",
	TokenAND:      "AND",
	TokenOR:       "OR",
	TokenNOT:      "NOT",
	TokenLParen:   "(",
	TokenRParen:   ")",
	TokenLBracket: "[",
	TokenRBracket: "]",
	TokenComma:    ",",
	TokenDot:      ".",
}

// String returns the string representation of the token type.
func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return "UNKNOWN"
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // Position in the input string
}
