package compiler

import "fmt"

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenInteger    // 42, 16rFF
	TokenFloat      // 3.14, 1.5e10
	TokenString     // 'hello'
	TokenSymbol     // #foo, #at:put:, #+
	TokenCharacter  // $a
	TokenIdentifier // foo, Bar, self, nil

	// Selectors
	TokenKeyword        // at:
	TokenBinarySelector // + - * / < > = @ , ...

	// Delimiters
	TokenLParen     // (
	TokenRParen     // )
	TokenLBracket   // [
	TokenRBracket   // ]
	TokenLBrace     // {
	TokenRBrace     // }
	TokenHashLParen // #(
	TokenCaret      // ^
	TokenPeriod     // .
	TokenSemicolon  // ;
	TokenAssign     // :=
	TokenColon      // :
	TokenBar        // |
)

var tokenNames = [...]string{
	TokenEOF:            "EOF",
	TokenError:          "ERROR",
	TokenInteger:        "INTEGER",
	TokenFloat:          "FLOAT",
	TokenString:         "STRING",
	TokenSymbol:         "SYMBOL",
	TokenCharacter:      "CHARACTER",
	TokenIdentifier:     "IDENTIFIER",
	TokenKeyword:        "KEYWORD",
	TokenBinarySelector: "BINARY",
	TokenLParen:         "(",
	TokenRParen:         ")",
	TokenLBracket:       "[",
	TokenRBracket:       "]",
	TokenLBrace:         "{",
	TokenRBrace:         "}",
	TokenHashLParen:     "#(",
	TokenCaret:          "^",
	TokenPeriod:         ".",
	TokenSemicolon:      ";",
	TokenAssign:         ":=",
	TokenColon:          ":",
	TokenBar:            "|",
}

func (t TokenType) String() string {
	if int(t) >= 0 && int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token. Pos is the first character, End the
// position just past the last one.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	End     Position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// IsBinaryChar returns true if r is a valid binary selector character.
func IsBinaryChar(r rune) bool {
	switch r {
	case '+', '-', '*', '/', '\\', '~', '<', '>', '=', '@', '%', '|', '&', '?', '!', ',':
		return true
	}
	return false
}

// reservedIdentifiers have a fixed meaning supplied by the reserved binding
// scope; the lexer reports them as plain identifiers.
var reservedIdentifiers = map[string]bool{
	"self":        true,
	"super":       true,
	"nil":         true,
	"true":        true,
	"false":       true,
	"thisContext": true,
}

// IsReservedIdentifier reports whether name is a pseudo-variable.
func IsReservedIdentifier(name string) bool {
	return reservedIdentifiers[name]
}
