package compiler

import "github.com/chazu/talc/source"

// Position and Span are shared with the source mapping services.
type (
	Position = source.Position
	Span     = source.Span
)

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return source.MakeSpan(start, end)
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node()
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr()
}

// IntLiteral represents an integer literal.
type IntLiteral struct {
	SpanVal Span
	Value   int64
}

// FloatLiteral represents a floating-point literal.
type FloatLiteral struct {
	SpanVal Span
	Value   float64
}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

// SymbolLiteral represents a symbol literal (#foo).
type SymbolLiteral struct {
	SpanVal Span
	Value   string
}

// CharLiteral represents a character literal ($a).
type CharLiteral struct {
	SpanVal Span
	Value   rune
}

// ConstLiteral is nil, true or false inside a literal array. Outside of
// literal arrays those names are ordinary Variables resolved by the
// reserved scope.
type ConstLiteral struct {
	SpanVal Span
	Name    string
}

// ArrayLiteral represents a literal array #(1 2 3).
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expr
}

// DynamicArray represents a brace array {1. 2. 3}.
type DynamicArray struct {
	SpanVal  Span
	Elements []Expr
}

// Variable is a reference to any named slot, including pseudo-variables.
type Variable struct {
	SpanVal Span
	Name    string
}

// Assignment represents a variable assignment (x := expr).
type Assignment struct {
	SpanVal  Span
	Variable *Variable
	Value    Expr
}

// UnaryMessage represents a unary message send (recv selector).
type UnaryMessage struct {
	SpanVal  Span
	Receiver Expr
	Selector string
}

// BinaryMessage represents a binary message send (recv + arg).
type BinaryMessage struct {
	SpanVal  Span
	Receiver Expr
	Selector string
	Argument Expr
}

// KeywordMessage represents a keyword message send (recv key1: arg1 key2: arg2).
type KeywordMessage struct {
	SpanVal   Span
	Receiver  Expr
	Selector  string   // full selector: "key1:key2:"
	Keywords  []string // individual keywords: ["key1:", "key2:"]
	Arguments []Expr
}

// Cascade represents a cascade (recv msg1; msg2; msg3).
type Cascade struct {
	SpanVal  Span
	Receiver Expr
	Messages []*CascadedMessage
}

// CascadedMessage is one message of a cascade; it has no receiver of its own.
type CascadedMessage struct {
	SpanVal   Span
	Selector  string
	Arguments []Expr
}

// Block represents a block closure [:a :b | | t | stmts].
type Block struct {
	SpanVal    Span
	Parameters []string
	Temps      []string
	Statements []Stmt
}

func (n *IntLiteral) Span() Span      { return n.SpanVal }
func (n *FloatLiteral) Span() Span    { return n.SpanVal }
func (n *StringLiteral) Span() Span   { return n.SpanVal }
func (n *SymbolLiteral) Span() Span   { return n.SpanVal }
func (n *CharLiteral) Span() Span     { return n.SpanVal }
func (n *ConstLiteral) Span() Span    { return n.SpanVal }
func (n *ArrayLiteral) Span() Span    { return n.SpanVal }
func (n *DynamicArray) Span() Span    { return n.SpanVal }
func (n *Variable) Span() Span        { return n.SpanVal }
func (n *Assignment) Span() Span      { return n.SpanVal }
func (n *UnaryMessage) Span() Span    { return n.SpanVal }
func (n *BinaryMessage) Span() Span   { return n.SpanVal }
func (n *KeywordMessage) Span() Span  { return n.SpanVal }
func (n *Cascade) Span() Span         { return n.SpanVal }
func (n *CascadedMessage) Span() Span { return n.SpanVal }
func (n *Block) Span() Span           { return n.SpanVal }

func (n *IntLiteral) node()      {}
func (n *FloatLiteral) node()    {}
func (n *StringLiteral) node()   {}
func (n *SymbolLiteral) node()   {}
func (n *CharLiteral) node()     {}
func (n *ConstLiteral) node()    {}
func (n *ArrayLiteral) node()    {}
func (n *DynamicArray) node()    {}
func (n *Variable) node()        {}
func (n *Assignment) node()      {}
func (n *UnaryMessage) node()    {}
func (n *BinaryMessage) node()   {}
func (n *KeywordMessage) node()  {}
func (n *Cascade) node()         {}
func (n *CascadedMessage) node() {}
func (n *Block) node()           {}

func (n *IntLiteral) expr()     {}
func (n *FloatLiteral) expr()   {}
func (n *StringLiteral) expr()  {}
func (n *SymbolLiteral) expr()  {}
func (n *CharLiteral) expr()    {}
func (n *ConstLiteral) expr()   {}
func (n *ArrayLiteral) expr()   {}
func (n *DynamicArray) expr()   {}
func (n *Variable) expr()       {}
func (n *Assignment) expr()     {}
func (n *UnaryMessage) expr()   {}
func (n *BinaryMessage) expr()  {}
func (n *KeywordMessage) expr() {}
func (n *Cascade) expr()        {}
func (n *Block) expr()          {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt()
}

// ExprStmt is an expression used as a statement.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

// Return represents a return statement (^expr).
type Return struct {
	SpanVal Span
	Value   Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

func (n *Return) Span() Span { return n.SpanVal }
func (n *Return) node()      {}
func (n *Return) stmt()      {}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// MethodDef represents a method definition. All spans inside it are in
// method-body coordinates: offset 0 is the first character of the selector.
// Origin is where that character sits in the enclosing definition text.
type MethodDef struct {
	SpanVal    Span
	Selector   string
	Parameters []string
	Temps      []string
	Statements []Stmt
	Origin     Position
	Source     string // method text, selector through closing bracket
}

func (n *MethodDef) Span() Span { return n.SpanVal }
func (n *MethodDef) node()      {}

// ClassDef represents a class definition. Its span is in definition
// coordinates.
type ClassDef struct {
	SpanVal                Span
	Name                   string
	Superclass             string // "nil" for a root class
	InstanceVariables      []string
	ClassVariables         []string
	ClassInstanceVariables []string
	PoolDictionaries       []string
	Category               string
	Methods                []*MethodDef
	ClassMethods           []*MethodDef
}

func (n *ClassDef) Span() Span { return n.SpanVal }
func (n *ClassDef) node()      {}

// SourceFile represents a complete definition file.
type SourceFile struct {
	SpanVal Span
	Classes []*ClassDef
}

func (n *SourceFile) Span() Span { return n.SpanVal }
func (n *SourceFile) node()      {}

// SelectorArity returns the number of arguments a selector takes.
func SelectorArity(selector string) int {
	if selector == "" {
		return 0
	}
	if IsBinaryChar([]rune(selector)[0]) {
		return 1
	}
	n := 0
	for _, r := range selector {
		if r == ':' {
			n++
		}
	}
	return n
}
