package compiler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/talc/source"
)

// ParseError is a syntax error at a position of the parsed input.
type ParseError struct {
	Pos     Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Parser is a recursive descent parser for Smalltalk class definitions and
// method bodies.
type Parser struct {
	lexer     *Lexer
	input     string
	curToken  Token
	peekToken Token
	prevEnd   Position // end of the most recently consumed token
	errors    []*ParseError
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
		input: input,
	}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.prevEnd = p.curToken.End
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect advances if the current token matches, otherwise records an error.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.describe(p.curToken))
	return false
}

func (p *Parser) describe(tok Token) string {
	if tok.Type == TokenError {
		return tok.Literal
	}
	return tok.String()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errors = append(p.errors, &ParseError{Pos: p.curToken.Pos, Message: fmt.Sprintf(format, args...)})
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []*ParseError {
	return p.errors
}

// Err joins all parse errors, or returns nil.
func (p *Parser) Err() error {
	if len(p.errors) == 0 {
		return nil
	}
	errs := make([]error, len(p.errors))
	for i, e := range p.errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Methods and statements
// ---------------------------------------------------------------------------

// ParseMethod parses an entire input as one method: a signature, optional
// temporaries and statements up to EOF.
func (p *Parser) ParseMethod() *MethodDef {
	start := p.curToken.Pos
	selector, params := p.parseMethodSignature()
	if selector == "" {
		return nil
	}

	var temps []string
	if p.curTokenIs(TokenBar) {
		temps = p.parseTemporaries()
	}
	stmts := p.ParseStatements()
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after method body", p.describe(p.curToken))
	}

	return &MethodDef{
		SpanVal:    MakeSpan(start, p.prevEnd),
		Selector:   selector,
		Parameters: params,
		Temps:      temps,
		Statements: stmts,
		Origin:     Position{Line: 1, Column: 1},
		Source:     p.input,
	}
}

// ParseBracketedMethod parses "selector args [ | temps | statements ]".
func (p *Parser) ParseBracketedMethod() *MethodDef {
	start := p.curToken.Pos
	selector, params := p.parseMethodSignature()
	if selector == "" {
		return nil
	}
	if !p.curTokenIs(TokenLBracket) {
		p.errorf("expected '[' after method signature")
		return nil
	}
	p.nextToken()

	var temps []string
	if p.curTokenIs(TokenBar) {
		temps = p.parseTemporaries()
	}
	stmts := p.ParseStatements()
	if !p.expect(TokenRBracket) {
		return nil
	}
	if !p.curTokenIs(TokenEOF) {
		p.errorf("unexpected %s after method body", p.describe(p.curToken))
	}

	return &MethodDef{
		SpanVal:    MakeSpan(start, p.prevEnd),
		Selector:   selector,
		Parameters: params,
		Temps:      temps,
		Statements: stmts,
		Origin:     Position{Line: 1, Column: 1},
		Source:     p.input,
	}
}

func (p *Parser) parseMethodSignature() (string, []string) {
	switch {
	case p.curTokenIs(TokenIdentifier):
		selector := p.curToken.Literal
		p.nextToken()
		return selector, nil

	case p.curTokenIs(TokenBinarySelector) || p.curTokenIs(TokenBar):
		selector := p.curToken.Literal
		p.nextToken()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name after binary selector")
			return "", nil
		}
		param := p.curToken.Literal
		p.nextToken()
		return selector, []string{param}

	case p.curTokenIs(TokenKeyword):
		var selector strings.Builder
		var params []string
		for p.curTokenIs(TokenKeyword) {
			selector.WriteString(p.curToken.Literal)
			p.nextToken()
			if !p.curTokenIs(TokenIdentifier) {
				p.errorf("expected parameter name after keyword")
				return "", nil
			}
			params = append(params, p.curToken.Literal)
			p.nextToken()
		}
		return selector.String(), params

	default:
		p.errorf("expected method signature, got %s", p.describe(p.curToken))
		return "", nil
	}
}

// parseTemporaries parses | temp1 temp2 |
func (p *Parser) parseTemporaries() []string {
	p.nextToken() // consume |
	var temps []string
	for p.curTokenIs(TokenIdentifier) {
		temps = append(temps, p.curToken.Literal)
		p.nextToken()
	}
	if !p.expect(TokenBar) {
		return nil
	}
	return temps
}

// ParseStatements parses statements separated by periods, stopping at EOF
// or a closing bracket/brace.
func (p *Parser) ParseStatements() []Stmt {
	var stmts []Stmt
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenRBracket) && !p.curTokenIs(TokenRBrace) {
		stmt := p.ParseStatement()
		if stmt == nil {
			p.synchronize()
		} else {
			stmts = append(stmts, stmt)
		}
		if p.curTokenIs(TokenPeriod) {
			p.nextToken()
			continue
		}
		break
	}
	return stmts
}

// synchronize skips to the next statement boundary after an error.
func (p *Parser) synchronize() {
	for !p.curTokenIs(TokenEOF) && !p.curTokenIs(TokenPeriod) &&
		!p.curTokenIs(TokenRBracket) && !p.curTokenIs(TokenRBrace) {
		p.nextToken()
	}
}

// ParseStatement parses a single statement.
func (p *Parser) ParseStatement() Stmt {
	if p.curTokenIs(TokenCaret) {
		start := p.curToken.Pos
		p.nextToken()
		value := p.ParseExpression()
		if value == nil {
			return nil
		}
		return &Return{SpanVal: MakeSpan(start, value.Span().End), Value: value}
	}

	expr := p.ParseExpression()
	if expr == nil {
		return nil
	}
	return &ExprStmt{SpanVal: expr.Span(), Expr: expr}
}

// ---------------------------------------------------------------------------
// Expressions (message precedence: unary > binary > keyword)
// ---------------------------------------------------------------------------

// ParseExpression parses a single expression, including assignments and
// cascades.
func (p *Parser) ParseExpression() Expr {
	if p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenAssign) {
		target := &Variable{
			SpanVal: MakeSpan(p.curToken.Pos, p.curToken.End),
			Name:    p.curToken.Literal,
		}
		p.nextToken() // identifier
		p.nextToken() // :=
		value := p.ParseExpression()
		if value == nil {
			return nil
		}
		return &Assignment{
			SpanVal:  MakeSpan(target.SpanVal.Start, value.Span().End),
			Variable: target,
			Value:    value,
		}
	}

	expr := p.parseKeywordSend()
	if expr != nil && p.curTokenIs(TokenSemicolon) {
		return p.parseCascade(expr)
	}
	return expr
}

func (p *Parser) parseKeywordSend() Expr {
	receiver := p.parseBinarySend()
	if receiver == nil {
		return nil
	}
	if !p.curTokenIs(TokenKeyword) {
		return receiver
	}

	selector, keywords, args := p.parseKeywordParts()
	if args == nil {
		return nil
	}
	return &KeywordMessage{
		SpanVal:   MakeSpan(receiver.Span().Start, p.prevEnd),
		Receiver:  receiver,
		Selector:  selector,
		Keywords:  keywords,
		Arguments: args,
	}
}

// parseKeywordParts parses "key1: arg1 key2: arg2". args is nil on error.
func (p *Parser) parseKeywordParts() (string, []string, []Expr) {
	var selector strings.Builder
	var keywords []string
	args := []Expr{}
	for p.curTokenIs(TokenKeyword) {
		keywords = append(keywords, p.curToken.Literal)
		selector.WriteString(p.curToken.Literal)
		p.nextToken()
		arg := p.parseBinarySend()
		if arg == nil {
			return "", nil, nil
		}
		args = append(args, arg)
	}
	return selector.String(), keywords, args
}

// atBinaryOperator reports whether the current token continues a binary
// expression. A negative number literal directly after an operand is read
// as a subtraction: x-1.
func (p *Parser) atBinaryOperator() bool {
	if p.curTokenIs(TokenBinarySelector) || p.curTokenIs(TokenBar) {
		return true
	}
	return (p.curTokenIs(TokenInteger) || p.curTokenIs(TokenFloat)) && strings.HasPrefix(p.curToken.Literal, "-")
}

func (p *Parser) parseBinarySend() Expr {
	left := p.parseUnarySend()
	if left == nil {
		return nil
	}

	for p.atBinaryOperator() {
		var right Expr
		selector := p.curToken.Literal
		if p.curTokenIs(TokenInteger) || p.curTokenIs(TokenFloat) {
			// Split "-1" into the operator and a positive literal.
			selector = "-"
			tok := p.curToken
			tok.Literal = tok.Literal[1:]
			tok.Pos = source.Rebase(tok.Pos, Position{Offset: 1, Line: 1, Column: 2})
			right = p.parseUnaryChain(p.numberFrom(tok))
		} else {
			p.nextToken()
			right = p.parseUnarySend()
		}
		if right == nil {
			return nil
		}
		left = &BinaryMessage{
			SpanVal:  MakeSpan(left.Span().Start, right.Span().End),
			Receiver: left,
			Selector: selector,
			Argument: right,
		}
	}
	return left
}

// parseCascade turns the message already parsed into the first cascade part
// and collects the rest.
func (p *Parser) parseCascade(first Expr) Expr {
	var receiver Expr
	var messages []*CascadedMessage

	switch msg := first.(type) {
	case *UnaryMessage:
		receiver = msg.Receiver
		messages = append(messages, &CascadedMessage{SpanVal: msg.SpanVal, Selector: msg.Selector})
	case *BinaryMessage:
		receiver = msg.Receiver
		messages = append(messages, &CascadedMessage{SpanVal: msg.SpanVal, Selector: msg.Selector, Arguments: []Expr{msg.Argument}})
	case *KeywordMessage:
		receiver = msg.Receiver
		messages = append(messages, &CascadedMessage{SpanVal: msg.SpanVal, Selector: msg.Selector, Arguments: msg.Arguments})
	default:
		p.errorf("cascade requires a message send")
		return nil
	}

	for p.curTokenIs(TokenSemicolon) {
		p.nextToken()
		msg := p.parseCascadedMessage()
		if msg == nil {
			return nil
		}
		messages = append(messages, msg)
	}

	return &Cascade{
		SpanVal:  MakeSpan(first.Span().Start, p.prevEnd),
		Receiver: receiver,
		Messages: messages,
	}
}

func (p *Parser) parseCascadedMessage() *CascadedMessage {
	start := p.curToken.Pos
	switch {
	case p.curTokenIs(TokenIdentifier):
		selector := p.curToken.Literal
		p.nextToken()
		return &CascadedMessage{SpanVal: MakeSpan(start, p.prevEnd), Selector: selector}

	case p.curTokenIs(TokenBinarySelector) || p.curTokenIs(TokenBar):
		selector := p.curToken.Literal
		p.nextToken()
		arg := p.parseUnarySend()
		if arg == nil {
			return nil
		}
		return &CascadedMessage{SpanVal: MakeSpan(start, p.prevEnd), Selector: selector, Arguments: []Expr{arg}}

	case p.curTokenIs(TokenKeyword):
		selector, _, args := p.parseKeywordParts()
		if args == nil {
			return nil
		}
		return &CascadedMessage{SpanVal: MakeSpan(start, p.prevEnd), Selector: selector, Arguments: args}

	default:
		p.errorf("expected message in cascade, got %s", p.describe(p.curToken))
		return nil
	}
}

func (p *Parser) parseUnarySend() Expr {
	primary := p.parsePrimary()
	if primary == nil {
		return nil
	}
	return p.parseUnaryChain(primary)
}

func (p *Parser) parseUnaryChain(receiver Expr) Expr {
	if receiver == nil {
		return nil
	}
	for p.curTokenIs(TokenIdentifier) && !p.peekTokenIs(TokenAssign) {
		selector := p.curToken.Literal
		p.nextToken()
		receiver = &UnaryMessage{
			SpanVal:  MakeSpan(receiver.Span().Start, p.prevEnd),
			Receiver: receiver,
			Selector: selector,
		}
	}
	return receiver
}

func (p *Parser) parsePrimary() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenInteger, TokenFloat:
		return p.numberFrom(tok)
	case TokenString:
		p.nextToken()
		return &StringLiteral{SpanVal: MakeSpan(tok.Pos, tok.End), Value: tok.Literal}
	case TokenSymbol:
		p.nextToken()
		return &SymbolLiteral{SpanVal: MakeSpan(tok.Pos, tok.End), Value: tok.Literal}
	case TokenCharacter:
		p.nextToken()
		return &CharLiteral{SpanVal: MakeSpan(tok.Pos, tok.End), Value: []rune(tok.Literal)[0]}
	case TokenHashLParen:
		return p.parseLiteralArray()
	case TokenLParen:
		p.nextToken()
		expr := p.ParseExpression()
		if expr == nil {
			return nil
		}
		if !p.expect(TokenRParen) {
			return nil
		}
		return expr
	case TokenLBracket:
		return p.parseBlock()
	case TokenLBrace:
		return p.parseDynamicArray()
	case TokenIdentifier:
		p.nextToken()
		return &Variable{SpanVal: MakeSpan(tok.Pos, tok.End), Name: tok.Literal}
	default:
		p.errorf("unexpected %s", p.describe(tok))
		return nil
	}
}

// numberFrom consumes the current token and builds a number literal from
// tok, which may be an adjusted copy of it.
func (p *Parser) numberFrom(tok Token) Expr {
	p.nextToken()
	span := MakeSpan(tok.Pos, tok.End)

	if tok.Type == TokenFloat {
		value, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errors = append(p.errors, &ParseError{Pos: tok.Pos, Message: fmt.Sprintf("invalid float: %s", tok.Literal)})
		}
		return &FloatLiteral{SpanVal: span, Value: value}
	}

	literal := tok.Literal
	var value int64
	var err error
	if idx := strings.Index(literal, "r"); idx > 0 {
		neg := strings.HasPrefix(literal, "-")
		radix, rerr := strconv.Atoi(strings.TrimPrefix(literal[:idx], "-"))
		if rerr != nil || radix < 2 || radix > 36 {
			err = fmt.Errorf("bad radix")
		} else {
			value, err = strconv.ParseInt(literal[idx+1:], radix, 64)
			if neg {
				value = -value
			}
		}
	} else {
		value, err = strconv.ParseInt(literal, 10, 64)
	}
	if err != nil {
		p.errors = append(p.errors, &ParseError{Pos: tok.Pos, Message: fmt.Sprintf("invalid integer: %s", literal)})
	}
	return &IntLiteral{SpanVal: span, Value: value}
}

func (p *Parser) parseLiteralArray() *ArrayLiteral {
	start := p.curToken.Pos
	p.nextToken() // consume #( or (

	var elements []Expr
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		if elem := p.parseLiteralArrayElement(); elem != nil {
			elements = append(elements, elem)
		}
	}
	p.expect(TokenRParen)

	return &ArrayLiteral{SpanVal: MakeSpan(start, p.prevEnd), Elements: elements}
}

func (p *Parser) parseLiteralArrayElement() Expr {
	tok := p.curToken
	switch tok.Type {
	case TokenInteger, TokenFloat, TokenString, TokenSymbol, TokenCharacter:
		return p.parsePrimary()
	case TokenIdentifier:
		p.nextToken()
		span := MakeSpan(tok.Pos, tok.End)
		switch tok.Literal {
		case "nil", "true", "false":
			return &ConstLiteral{SpanVal: span, Name: tok.Literal}
		}
		return &SymbolLiteral{SpanVal: span, Value: tok.Literal}
	case TokenKeyword, TokenBinarySelector:
		p.nextToken()
		return &SymbolLiteral{SpanVal: MakeSpan(tok.Pos, tok.End), Value: tok.Literal}
	case TokenHashLParen, TokenLParen:
		return p.parseLiteralArray()
	default:
		p.errorf("unexpected %s in literal array", p.describe(tok))
		p.nextToken()
		return nil
	}
}

func (p *Parser) parseDynamicArray() *DynamicArray {
	start := p.curToken.Pos
	p.nextToken() // consume {

	var elements []Expr
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		elem := p.ParseExpression()
		if elem == nil {
			p.synchronize()
		} else {
			elements = append(elements, elem)
		}
		if p.curTokenIs(TokenPeriod) {
			p.nextToken()
		} else if !p.curTokenIs(TokenRBrace) {
			break
		}
	}
	p.expect(TokenRBrace)

	return &DynamicArray{SpanVal: MakeSpan(start, p.prevEnd), Elements: elements}
}

func (p *Parser) parseBlock() *Block {
	start := p.curToken.Pos
	p.nextToken() // consume [

	var params []string
	for p.curTokenIs(TokenColon) {
		p.nextToken()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected parameter name after ':'")
			return nil
		}
		params = append(params, p.curToken.Literal)
		p.nextToken()
	}
	if len(params) > 0 && !p.expect(TokenBar) {
		return nil
	}

	var temps []string
	if p.curTokenIs(TokenBar) {
		temps = p.parseTemporaries()
	}
	stmts := p.ParseStatements()
	if !p.expect(TokenRBracket) {
		return nil
	}

	return &Block{
		SpanVal:    MakeSpan(start, p.prevEnd),
		Parameters: params,
		Temps:      temps,
		Statements: stmts,
	}
}

// ---------------------------------------------------------------------------
// Definition files
// ---------------------------------------------------------------------------

// ParseSourceFile parses a file of class definitions:
//
//	Counter subclass: Object
//	  instanceVars: count
//	  classVars: Instances
//	  method: increment [ count := count + 1 ]
//	  classMethod: new [ ^super new setUp ]
//
// Method bodies are parsed in their own coordinate space; errors found in
// them are reported in file coordinates.
func (p *Parser) ParseSourceFile() *SourceFile {
	start := p.curToken.Pos
	sf := &SourceFile{}

	for !p.curTokenIs(TokenEOF) {
		if p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenKeyword) && p.peekToken.Literal == "subclass:" {
			if cls := p.parseClassDef(); cls != nil {
				sf.Classes = append(sf.Classes, cls)
			}
			continue
		}
		p.errorf("expected class definition, got %s", p.describe(p.curToken))
		p.nextToken()
	}

	sf.SpanVal = MakeSpan(start, p.prevEnd)
	return sf
}

func (p *Parser) atClassStart() bool {
	return p.curTokenIs(TokenIdentifier) && p.peekTokenIs(TokenKeyword) && p.peekToken.Literal == "subclass:"
}

func (p *Parser) parseClassDef() *ClassDef {
	start := p.curToken.Pos
	name := p.curToken.Literal
	p.nextToken() // name
	p.nextToken() // subclass:

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected superclass name after 'subclass:'")
		return nil
	}
	cls := &ClassDef{Name: name, Superclass: p.curToken.Literal}
	p.nextToken()

	for !p.curTokenIs(TokenEOF) && !p.atClassStart() {
		if !p.curTokenIs(TokenKeyword) {
			p.errorf("unexpected %s in definition of %s", p.describe(p.curToken), name)
			p.nextToken()
			continue
		}

		switch p.curToken.Literal {
		case "instanceVars:", "instanceVariables:":
			cls.InstanceVariables = append(cls.InstanceVariables, p.parseNameList()...)
		case "classVars:", "classVariables:":
			cls.ClassVariables = append(cls.ClassVariables, p.parseNameList()...)
		case "classInstanceVars:", "classInstanceVariables:":
			cls.ClassInstanceVariables = append(cls.ClassInstanceVariables, p.parseNameList()...)
		case "pools:", "poolDictionaries:":
			cls.PoolDictionaries = append(cls.PoolDictionaries, p.parseNameList()...)
		case "category:":
			p.nextToken()
			if !p.curTokenIs(TokenString) {
				p.errorf("expected string after 'category:'")
				continue
			}
			cls.Category = p.curToken.Literal
			p.nextToken()
		case "method:":
			if m := p.parseMethodInBrackets(); m != nil {
				cls.Methods = append(cls.Methods, m)
			}
		case "classMethod:":
			if m := p.parseMethodInBrackets(); m != nil {
				cls.ClassMethods = append(cls.ClassMethods, m)
			}
		default:
			p.errorf("unknown class definition keyword %s", p.curToken.Literal)
			p.nextToken()
		}
	}

	cls.SpanVal = MakeSpan(start, p.prevEnd)
	return cls
}

// parseNameList parses "key: a b c" or "key: 'a b c'".
func (p *Parser) parseNameList() []string {
	p.nextToken() // keyword
	if p.curTokenIs(TokenString) {
		names := strings.Fields(p.curToken.Literal)
		p.nextToken()
		return names
	}
	var names []string
	for p.curTokenIs(TokenIdentifier) && !p.atClassStart() {
		names = append(names, p.curToken.Literal)
		p.nextToken()
	}
	return names
}

// parseMethodInBrackets locates the text of "selector [ body ]" and parses it
// with a fresh parser so that every span in the method is relative to the
// method start.
func (p *Parser) parseMethodInBrackets() *MethodDef {
	p.nextToken() // consume method: / classMethod:
	origin := p.curToken.Pos

	depth := 0
	end := -1
	for end < 0 {
		switch p.curToken.Type {
		case TokenEOF:
			p.errorf("unterminated method body")
			return nil
		case TokenLBracket:
			depth++
		case TokenRBracket:
			depth--
			if depth < 0 {
				p.errorf("unbalanced ']' in method definition")
				p.nextToken()
				return nil
			}
			if depth == 0 {
				end = p.curToken.End.Offset
			}
		case TokenKeyword:
			if depth == 0 && p.curToken.Pos != origin &&
				(p.curToken.Literal == "method:" || p.curToken.Literal == "classMethod:") {
				p.errorf("expected '[' after method signature")
				return nil
			}
		}
		p.nextToken()
	}

	text := p.input[origin.Offset:end]
	sub := NewParser(text)
	method := sub.ParseBracketedMethod()
	for _, e := range sub.Errors() {
		p.errors = append(p.errors, &ParseError{Pos: source.Rebase(origin, e.Pos), Message: e.Message})
	}
	if method == nil {
		return nil
	}
	method.Origin = origin
	method.Source = text
	return method
}

// ---------------------------------------------------------------------------
// Helpers for external use
// ---------------------------------------------------------------------------

// ParseSourceFileFromString parses a definition file.
func ParseSourceFileFromString(input string) (*SourceFile, error) {
	p := NewParser(input)
	sf := p.ParseSourceFile()
	return sf, p.Err()
}

// ParseMethodFromString parses a method in chunk format (no brackets).
func ParseMethodFromString(input string) (*MethodDef, error) {
	p := NewParser(input)
	m := p.ParseMethod()
	if err := p.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
