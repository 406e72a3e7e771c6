package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer tokenizes Smalltalk source code. Positions are relative to the
// start of the input, so a method body lexed on its own gets method-body
// coordinates.
type Lexer struct {
	input   string
	pos     int  // offset of ch
	readPos int  // offset after ch
	ch      rune // current character, 0 at EOF
	line    int
	col     int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	// Advance line/column for the character being left behind.
	if l.readPos > 0 && l.pos < len(l.input) {
		if l.ch == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	} else if l.readPos == 0 {
		l.col = 1
	}

	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = len(l.input)
		l.readPos = len(l.input) + 1
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) token(t TokenType, literal string, pos Position) Token {
	return Token{Type: t, Literal: literal, Pos: pos, End: l.position()}
}

// single consumes one character and returns a token for it.
func (l *Lexer) single(t TokenType, pos Position) Token {
	lit := string(l.ch)
	l.readChar()
	return l.token(t, lit, pos)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos, End: pos}
	case l.ch == '(':
		return l.single(TokenLParen, pos)
	case l.ch == ')':
		return l.single(TokenRParen, pos)
	case l.ch == '[':
		return l.single(TokenLBracket, pos)
	case l.ch == ']':
		return l.single(TokenRBracket, pos)
	case l.ch == '{':
		return l.single(TokenLBrace, pos)
	case l.ch == '}':
		return l.single(TokenRBrace, pos)
	case l.ch == '^':
		return l.single(TokenCaret, pos)
	case l.ch == '.':
		return l.single(TokenPeriod, pos)
	case l.ch == ';':
		return l.single(TokenSemicolon, pos)
	case l.ch == ':':
		l.readChar()
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenAssign, ":=", pos)
		}
		return l.token(TokenColon, ":", pos)
	case l.ch == '|':
		return l.single(TokenBar, pos)
	case l.ch == '#':
		return l.readHashToken(pos)
	case l.ch == '\'':
		return l.readString(pos)
	case l.ch == '$':
		return l.readCharacter(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case l.ch == '-' && isDigit(l.peekChar()):
		return l.readNumber(pos)
	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifierOrKeyword(pos)
	case IsBinaryChar(l.ch):
		return l.readBinarySelector(pos)
	default:
		ch := l.ch
		l.readChar()
		return l.token(TokenError, fmt.Sprintf("unexpected character: %c", ch), pos)
	}
}

// skipWhitespaceAndComments skips whitespace and "double quoted" comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
			l.readChar()
		}
		if l.ch != '"' {
			return
		}
		l.readChar()
		for l.ch != '"' && l.ch != 0 {
			l.readChar()
		}
		if l.ch == '"' {
			l.readChar()
		}
	}
}

func (l *Lexer) readHashToken(pos Position) Token {
	l.readChar() // consume #

	switch {
	case l.ch == '(':
		l.readChar()
		return l.token(TokenHashLParen, "#(", pos)
	case l.ch == '\'':
		lit, ok := l.readQuoted()
		if !ok {
			return l.token(TokenError, "unterminated symbol", pos)
		}
		return l.token(TokenSymbol, lit, pos)
	case isLetter(l.ch) || l.ch == '_':
		var sb strings.Builder
		for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == ':' {
			sb.WriteRune(l.ch)
			l.readChar()
		}
		return l.token(TokenSymbol, sb.String(), pos)
	case IsBinaryChar(l.ch):
		start := l.pos
		for IsBinaryChar(l.ch) {
			l.readChar()
		}
		return l.token(TokenSymbol, l.input[start:l.pos], pos)
	default:
		return l.token(TokenError, "unexpected # token", pos)
	}
}

// readQuoted reads a '...' body with doubled-quote escapes. The current
// character must be the opening quote.
func (l *Lexer) readQuoted() (string, bool) {
	l.readChar() // opening '
	var sb strings.Builder
	for l.ch != 0 {
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				sb.WriteRune('\'')
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar() // closing '
			return sb.String(), true
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	return sb.String(), false
}

func (l *Lexer) readString(pos Position) Token {
	lit, ok := l.readQuoted()
	if !ok {
		return l.token(TokenError, "unterminated string", pos)
	}
	return l.token(TokenString, lit, pos)
}

func (l *Lexer) readCharacter(pos Position) Token {
	l.readChar() // consume $
	if l.ch == 0 {
		return l.token(TokenError, "unexpected EOF in character literal", pos)
	}
	ch := l.ch
	l.readChar()
	return l.token(TokenCharacter, string(ch), pos)
}

// readNumber reads integers (with optional radix prefix, 16rFF) and floats.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}

	if l.ch == 'r' {
		l.readChar()
		for isDigit(l.ch) || (l.ch >= 'A' && l.ch <= 'Z') || (l.ch >= 'a' && l.ch <= 'z') {
			l.readChar()
		}
		return l.token(TokenInteger, l.input[start:l.pos], pos)
	}

	isFloat := false
	if l.ch == '.' && isDigit(l.peekChar()) {
		isFloat = true
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if (l.ch == 'e' || l.ch == 'E') && (isDigit(l.peekChar()) || l.peekChar() == '-') {
		isFloat = true
		l.readChar()
		if l.ch == '-' || l.ch == '+' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if isFloat {
		return l.token(TokenFloat, l.input[start:l.pos], pos)
	}
	return l.token(TokenInteger, l.input[start:l.pos], pos)
}

func (l *Lexer) readIdentifierOrKeyword(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	literal := l.input[start:l.pos]

	if l.ch == ':' && l.peekChar() != '=' {
		l.readChar()
		return l.token(TokenKeyword, literal+":", pos)
	}
	return l.token(TokenIdentifier, literal, pos)
}

func (l *Lexer) readBinarySelector(pos Position) Token {
	start := l.pos
	for IsBinaryChar(l.ch) {
		// A '-' directly followed by a digit after another binary char
		// starts a negative literal: 3--4 is 3 - -4.
		if l.pos > start && l.ch == '-' && isDigit(l.peekChar()) {
			break
		}
		l.readChar()
	}
	return l.token(TokenBinarySelector, l.input[start:l.pos], pos)
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from the input, ending with EOF or the first
// error token.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}
