package lower

import (
	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/scope"
)

// Node is a node of a lowered method. Spans are in method-body coordinates.
type Node interface {
	Span() compiler.Span
	node()
}

// Const is a literal encoded inline.
type Const struct {
	SpanVal compiler.Span
	Value   Literal
}

// LiteralRef refers to a slot of the class side's literal pool.
type LiteralRef struct {
	SpanVal compiler.Span
	Index   int
	Value   Literal
}

// Load reads a variable. Captured is set when a block reads a local of an
// enclosing frame.
type Load struct {
	SpanVal  compiler.Span
	Binding  scope.Binding
	Captured bool
}

// Store assigns a variable and evaluates to the assigned value.
type Store struct {
	SpanVal  compiler.Span
	Binding  scope.Binding
	Captured bool
	Value    Node
}

// Send is a dynamically dispatched message send.
type Send struct {
	SpanVal  compiler.Span
	Receiver Node
	Selector string
	Args     []Node
	Super    bool
}

// CachedSend is a message send through a numbered call site of the class
// side's call-site table.
type CachedSend struct {
	SpanVal  compiler.Span
	Site     int
	Receiver Node
	Selector string
	Args     []Node
	Super    bool
}

// Cascade evaluates Receiver once and sends every message to it. Messages
// use CascadeReceiver as their receiver. The value is the last message's.
type Cascade struct {
	SpanVal  compiler.Span
	Receiver Node
	Messages []Node
}

// CascadeReceiver denotes the receiver of the enclosing cascade.
type CascadeReceiver struct {
	SpanVal compiler.Span
}

// MakeArray builds an array from evaluated elements.
type MakeArray struct {
	SpanVal  compiler.Span
	Elements []Node
}

// Closure creates a block. Its frame holds Arity parameters followed by
// temporaries; Depth is the frame depth of its body.
type Closure struct {
	SpanVal   compiler.Span
	Arity     int
	FrameSize int
	Depth     int
	Body      *Seq
}

// Return leaves the method. A NonLocal return appears inside a block and
// returns from the block's home method.
type Return struct {
	SpanVal  compiler.Span
	Value    Node
	NonLocal bool
}

// Seq evaluates nodes in order; its value is the last node's.
type Seq struct {
	SpanVal compiler.Span
	Nodes   []Node
}

// ParamRole says which part of the method signature a Param stands for.
type ParamRole int

const (
	SelfParam ParamRole = iota
	ContextParam
	ArgParam
)

// Param is a parameter of the lowered routine: the receiver, the execution
// context or one of the arguments.
type Param struct {
	Name  string
	Role  ParamRole
	Index int
}

func (n *Const) Span() compiler.Span           { return n.SpanVal }
func (n *LiteralRef) Span() compiler.Span      { return n.SpanVal }
func (n *Load) Span() compiler.Span            { return n.SpanVal }
func (n *Store) Span() compiler.Span           { return n.SpanVal }
func (n *Send) Span() compiler.Span            { return n.SpanVal }
func (n *CachedSend) Span() compiler.Span      { return n.SpanVal }
func (n *Cascade) Span() compiler.Span         { return n.SpanVal }
func (n *CascadeReceiver) Span() compiler.Span { return n.SpanVal }
func (n *MakeArray) Span() compiler.Span       { return n.SpanVal }
func (n *Closure) Span() compiler.Span         { return n.SpanVal }
func (n *Return) Span() compiler.Span          { return n.SpanVal }
func (n *Seq) Span() compiler.Span             { return n.SpanVal }
func (n *Param) Span() compiler.Span           { return compiler.Span{} }

func (n *Const) node()           {}
func (n *LiteralRef) node()      {}
func (n *Load) node()            {}
func (n *Store) node()           {}
func (n *Send) node()            {}
func (n *CachedSend) node()      {}
func (n *Cascade) node()         {}
func (n *CascadeReceiver) node() {}
func (n *MakeArray) node()       {}
func (n *Closure) node()         {}
func (n *Return) node()          {}
func (n *Seq) node()             {}
func (n *Param) node()           {}

// Method is a lowered method, ready for emission.
type Method struct {
	Class     string
	Side      model.Side
	Selector  string
	Self      Node
	Context   Node
	Args      []Node
	Temps     int
	FrameSize int // method frame: arguments then temporaries
	Body      *Seq
	Debug     []SequencePoint
}

// Walk calls fn for n and every node below it, depth first. It stops
// descending into a node when fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *Store:
		Walk(n.Value, fn)
	case *Send:
		Walk(n.Receiver, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *CachedSend:
		Walk(n.Receiver, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	case *Cascade:
		Walk(n.Receiver, fn)
		for _, m := range n.Messages {
			Walk(m, fn)
		}
	case *MakeArray:
		for _, e := range n.Elements {
			Walk(e, fn)
		}
	case *Closure:
		Walk(n.Body, fn)
	case *Return:
		Walk(n.Value, fn)
	case *Seq:
		for _, c := range n.Nodes {
			Walk(c, fn)
		}
	}
}
