// Package lower turns the parse tree of one method into a lowered method:
// a small tree of nodes with every identifier resolved against the binding
// scope of the method's class and side. Lowering is all-or-nothing; the
// first problem aborts the call with an *Error.
package lower

import (
	"errors"
	"fmt"

	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/scope"
	"github.com/chazu/talc/source"
)

// Options configure a method compiler.
type Options struct {
	GlobalNameScope *scope.NameScope
	LiteralEncoding LiteralEncodingStrategy // nil means InlineLiterals
	DynamicCall     DynamicCallStrategy     // nil means DynamicSends
	DebugInfo       DebugInfoService        // nil disables debug info
}

// Compiler lowers methods of one side.
type Compiler struct {
	side        model.Side
	opts        Options
	memberScope func(*model.Class, *scope.NameScope) (*scope.MemberScope, error)
	reserved    func() *scope.ReservedScope
}

// NewInstanceMethodCompiler creates a compiler for instance-side methods.
func NewInstanceMethodCompiler(opts Options) *Compiler {
	return &Compiler{
		side:        model.InstanceSide,
		opts:        withDefaults(opts),
		memberScope: scope.ForInstanceMethod,
		reserved:    scope.ReservedForInstanceMethod,
	}
}

// NewClassMethodCompiler creates a compiler for class-side methods.
func NewClassMethodCompiler(opts Options) *Compiler {
	return &Compiler{
		side:        model.ClassSide,
		opts:        withDefaults(opts),
		memberScope: scope.ForClassMethod,
		reserved:    scope.ReservedForClassMethod,
	}
}

// NewMethodCompiler creates a compiler for side.
func NewMethodCompiler(side model.Side, opts Options) *Compiler {
	if side == model.ClassSide {
		return NewClassMethodCompiler(opts)
	}
	return NewInstanceMethodCompiler(opts)
}

func withDefaults(opts Options) Options {
	if opts.LiteralEncoding == nil {
		opts.LiteralEncoding = InlineLiterals{}
	}
	if opts.DynamicCall == nil {
		opts.DynamicCall = DynamicSends{}
	}
	return opts
}

// Side returns the side the compiler lowers methods for.
func (c *Compiler) Side() model.Side { return c.side }

// DefaultSignature returns the parameter nodes of a method with the given
// parameter names: the receiver, the execution context and one node per
// argument.
func DefaultSignature(params []string) (self, ctx Node, args []Node) {
	self = &Param{Name: "self", Role: SelfParam}
	ctx = &Param{Name: "thisContext", Role: ContextParam}
	for i, name := range params {
		args = append(args, &Param{Name: name, Role: ArgParam, Index: i})
	}
	return self, ctx, args
}

// LowerMethod lowers a method record of cls with the default signature.
func (c *Compiler) LowerMethod(rec *model.MethodRecord, cls *model.Class) (*Method, error) {
	if rec == nil || rec.Tree == nil {
		return nil, &Error{Err: fmt.Errorf("%w: method has no parse tree", ErrMalformedNode)}
	}
	self, ctx, args := DefaultSignature(rec.Tree.Parameters)
	return c.Lower(rec.Tree, cls, self, ctx, args)
}

// ErrorSink receives lowering diagnostics in method-body coordinates.
type ErrorSink interface {
	ReportError(message string, start, stop source.Position)
}

// Check lowers rec and reports a failure to sink. It returns whether the
// method lowered.
func (c *Compiler) Check(rec *model.MethodRecord, cls *model.Class, sink ErrorSink) bool {
	_, err := c.LowerMethod(rec, cls)
	if err == nil {
		return true
	}
	ReportTo(sink, err)
	return false
}

// ReportTo reports a lowering failure to sink at the span it occurred at.
func ReportTo(sink ErrorSink, err error) {
	var lerr *Error
	if errors.As(err, &lerr) {
		sink.ReportError(lerr.Err.Error(), lerr.Span.Start, lerr.Span.End)
		return
	}
	sink.ReportError(err.Error(), source.Position{}, source.Position{})
}

// Lower lowers tree as a method of cls. self, ctx and args are the nodes
// standing for the receiver, the execution context and the arguments of the
// routine being built.
func (c *Compiler) Lower(tree *compiler.MethodDef, cls *model.Class, self, ctx Node, args []Node) (*Method, error) {
	if tree == nil {
		return nil, &Error{Err: fmt.Errorf("%w: nil method", ErrMalformedNode)}
	}
	fail := func(err error) (*Method, error) {
		return nil, &Error{Selector: tree.Selector, Span: tree.SpanVal, Err: err}
	}
	if cls == nil || self == nil || ctx == nil {
		return fail(fmt.Errorf("%w: missing class or signature", ErrMalformedNode))
	}

	arity := compiler.SelectorArity(tree.Selector)
	if len(tree.Parameters) != arity {
		return fail(fmt.Errorf("%w: %s takes %d arguments, method declares %d",
			ErrArityMismatch, tree.Selector, arity, len(tree.Parameters)))
	}
	if len(args) != arity {
		return fail(fmt.Errorf("%w: %s takes %d arguments, %d supplied",
			ErrArityMismatch, tree.Selector, arity, len(args)))
	}

	members, err := c.memberScope(cls, c.opts.GlobalNameScope)
	if err != nil {
		return fail(err)
	}
	chain := scope.NewChain(c.reserved(), members)
	if err := chain.Push(tree.Parameters, tree.Temps); err != nil {
		return fail(err)
	}

	m := &Method{
		Class:     cls.Name(),
		Side:      c.side,
		Selector:  tree.Selector,
		Self:      self,
		Context:   ctx,
		Args:      args,
		Temps:     len(tree.Temps),
		FrameSize: chain.FrameSize(),
	}
	l := &lowering{c: c, chain: chain, method: m, selector: tree.Selector}

	body, err := l.statements(tree.Statements, tree.SpanVal)
	if err != nil {
		return nil, err
	}
	if !endsWithReturn(tree.Statements) {
		// Methods answer self unless they return explicitly.
		body.Nodes = append(body.Nodes, &Return{SpanVal: tree.SpanVal, Value: self})
	}
	m.Body = body
	return m, nil
}

func endsWithReturn(stmts []compiler.Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	_, ok := stmts[len(stmts)-1].(*compiler.Return)
	return ok
}

// ---------------------------------------------------------------------------
// Tree walk
// ---------------------------------------------------------------------------

// lowering is the state of one Lower call.
type lowering struct {
	c        *Compiler
	chain    *scope.Chain
	method   *Method
	selector string
}

func (l *lowering) errorAt(span compiler.Span, err error) error {
	return &Error{Selector: l.selector, Span: span, Err: err}
}

func (l *lowering) debug(span compiler.Span, label string) {
	if l.c.opts.DebugInfo != nil {
		l.c.opts.DebugInfo.SequencePoint(l.method, SequencePoint{Span: span, Label: label})
	}
}

func (l *lowering) statements(stmts []compiler.Stmt, span compiler.Span) (*Seq, error) {
	seq := &Seq{SpanVal: span}
	for _, stmt := range stmts {
		n, err := l.statement(stmt)
		if err != nil {
			return nil, err
		}
		seq.Nodes = append(seq.Nodes, n)
	}
	return seq, nil
}

func (l *lowering) statement(stmt compiler.Stmt) (Node, error) {
	if stmt == nil {
		return nil, l.errorAt(compiler.Span{}, fmt.Errorf("%w: nil statement", ErrMalformedNode))
	}
	l.debug(stmt.Span(), "statement")

	switch s := stmt.(type) {
	case *compiler.ExprStmt:
		return l.expr(s.Expr)
	case *compiler.Return:
		value, err := l.expr(s.Value)
		if err != nil {
			return nil, err
		}
		return &Return{SpanVal: s.SpanVal, Value: value, NonLocal: l.chain.Depth() > 0}, nil
	default:
		return nil, l.errorAt(stmt.Span(), fmt.Errorf("%w: unexpected statement %T", ErrMalformedNode, stmt))
	}
}

func (l *lowering) expr(e compiler.Expr) (Node, error) {
	if e == nil {
		return nil, l.errorAt(compiler.Span{}, fmt.Errorf("%w: missing expression", ErrMalformedNode))
	}

	switch e := e.(type) {
	case *compiler.IntLiteral, *compiler.FloatLiteral, *compiler.StringLiteral,
		*compiler.SymbolLiteral, *compiler.CharLiteral, *compiler.ConstLiteral,
		*compiler.ArrayLiteral:
		lit, err := l.literal(e)
		if err != nil {
			return nil, err
		}
		return l.encodeLiteral(lit, e.Span())

	case *compiler.DynamicArray:
		arr := &MakeArray{SpanVal: e.SpanVal}
		for _, elem := range e.Elements {
			n, err := l.expr(elem)
			if err != nil {
				return nil, err
			}
			arr.Elements = append(arr.Elements, n)
		}
		return arr, nil

	case *compiler.Variable:
		return l.variable(e)

	case *compiler.Assignment:
		return l.assignment(e)

	case *compiler.UnaryMessage:
		return l.send(e.SpanVal, e.Receiver, e.Selector, nil)

	case *compiler.BinaryMessage:
		if e.Argument == nil {
			return nil, l.errorAt(e.SpanVal, fmt.Errorf("%w: binary %s needs exactly one argument", ErrArityMismatch, e.Selector))
		}
		return l.send(e.SpanVal, e.Receiver, e.Selector, []compiler.Expr{e.Argument})

	case *compiler.KeywordMessage:
		if len(e.Keywords) != len(e.Arguments) {
			return nil, l.errorAt(e.SpanVal, fmt.Errorf("%w: %s has %d keywords but %d arguments",
				ErrArityMismatch, e.Selector, len(e.Keywords), len(e.Arguments)))
		}
		return l.send(e.SpanVal, e.Receiver, e.Selector, e.Arguments)

	case *compiler.Cascade:
		return l.cascade(e)

	case *compiler.Block:
		return l.block(e)

	default:
		return nil, l.errorAt(e.Span(), fmt.Errorf("%w: unexpected expression %T", ErrMalformedNode, e))
	}
}

// literal converts a literal expression, including literal arrays, to a
// Literal value.
func (l *lowering) literal(e compiler.Expr) (Literal, error) {
	switch e := e.(type) {
	case *compiler.IntLiteral:
		return Literal{Kind: IntLiteral, Int: e.Value}, nil
	case *compiler.FloatLiteral:
		return Literal{Kind: FloatLiteral, Float: e.Value}, nil
	case *compiler.StringLiteral:
		return Literal{Kind: StringLiteral, Str: e.Value}, nil
	case *compiler.SymbolLiteral:
		return Literal{Kind: SymbolLiteral, Str: e.Value}, nil
	case *compiler.CharLiteral:
		return Literal{Kind: CharLiteral, Char: e.Value}, nil
	case *compiler.ConstLiteral:
		switch e.Name {
		case "nil":
			return Literal{Kind: NilLiteral}, nil
		case "true":
			return Literal{Kind: TrueLiteral}, nil
		case "false":
			return Literal{Kind: FalseLiteral}, nil
		}
		return Literal{}, l.errorAt(e.SpanVal, fmt.Errorf("%w: unknown constant %q", ErrMalformedNode, e.Name))
	case *compiler.ArrayLiteral:
		arr := Literal{Kind: ArrayLiteral}
		for _, elem := range e.Elements {
			lit, err := l.literal(elem)
			if err != nil {
				return Literal{}, err
			}
			arr.Elements = append(arr.Elements, lit)
		}
		return arr, nil
	}
	return Literal{}, l.errorAt(e.Span(), fmt.Errorf("%w: %T is not a literal", ErrMalformedNode, e))
}

func (l *lowering) resolve(v *compiler.Variable) (scope.Binding, error) {
	if v.Name == "" {
		return scope.Binding{}, l.errorAt(v.SpanVal, fmt.Errorf("%w: empty identifier", ErrMalformedNode))
	}
	b, err := l.chain.Resolve(v.Name)
	if err != nil {
		return scope.Binding{}, l.errorAt(v.SpanVal, err)
	}
	return b, nil
}

func (l *lowering) isLocal(b scope.Binding) bool {
	return b.Kind == scope.Temporary || b.Kind == scope.Argument
}

func (l *lowering) variable(v *compiler.Variable) (Node, error) {
	b, err := l.resolve(v)
	if err != nil {
		return nil, err
	}

	switch b.Pseudo {
	case scope.Self, scope.Super:
		return l.method.Self, nil
	case scope.ThisContext:
		return l.method.Context, nil
	case scope.Nil:
		return l.encodeLiteral(Literal{Kind: NilLiteral}, v.SpanVal)
	case scope.True:
		return l.encodeLiteral(Literal{Kind: TrueLiteral}, v.SpanVal)
	case scope.False:
		return l.encodeLiteral(Literal{Kind: FalseLiteral}, v.SpanVal)
	}

	// Method arguments are the routine's own parameters.
	if b.Kind == scope.Argument && b.Depth == 0 {
		return l.method.Args[b.Index], nil
	}
	return &Load{
		SpanVal:  v.SpanVal,
		Binding:  b,
		Captured: l.isLocal(b) && b.Depth < l.chain.Depth(),
	}, nil
}

func (l *lowering) assignment(a *compiler.Assignment) (Node, error) {
	if a.Variable == nil {
		return nil, l.errorAt(a.SpanVal, fmt.Errorf("%w: assignment without target", ErrMalformedNode))
	}
	b, err := l.resolve(a.Variable)
	if err != nil {
		return nil, err
	}
	if b.ReadOnly {
		return nil, l.errorAt(a.Variable.SpanVal, fmt.Errorf("%w: %s", ErrReadOnlyBinding, b))
	}
	value, err := l.expr(a.Value)
	if err != nil {
		return nil, err
	}
	l.debug(a.SpanVal, "store "+b.Name)
	return &Store{
		SpanVal:  a.SpanVal,
		Binding:  b,
		Captured: l.isLocal(b) && b.Depth < l.chain.Depth(),
		Value:    value,
	}, nil
}

// isSuper reports whether e is the pseudo-variable super.
func (l *lowering) isSuper(e compiler.Expr) bool {
	v, ok := e.(*compiler.Variable)
	if !ok {
		return false
	}
	b, err := l.chain.Resolve(v.Name)
	return err == nil && b.Pseudo == scope.Super
}

func (l *lowering) arguments(span compiler.Span, selector string, args []compiler.Expr) ([]Node, error) {
	if want := compiler.SelectorArity(selector); want != len(args) {
		return nil, l.errorAt(span, fmt.Errorf("%w: %s takes %d arguments, %d given",
			ErrArityMismatch, selector, want, len(args)))
	}
	nodes := make([]Node, 0, len(args))
	for _, a := range args {
		n, err := l.expr(a)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (l *lowering) send(span compiler.Span, receiver compiler.Expr, selector string, args []compiler.Expr) (Node, error) {
	if selector == "" {
		return nil, l.errorAt(span, fmt.Errorf("%w: send without selector", ErrMalformedNode))
	}
	recv, err := l.expr(receiver)
	if err != nil {
		return nil, err
	}
	argNodes, err := l.arguments(span, selector, args)
	if err != nil {
		return nil, err
	}
	l.debug(span, "send "+selector)
	return l.encodeSend(CallSite{
		Span:     span,
		Receiver: recv,
		Selector: selector,
		Args:     argNodes,
		Super:    l.isSuper(receiver),
	})
}

func (l *lowering) encodeLiteral(lit Literal, span compiler.Span) (Node, error) {
	n, err := l.c.opts.LiteralEncoding.EncodeLiteral(lit, span)
	if err != nil {
		return nil, l.errorAt(span, err)
	}
	return n, nil
}

func (l *lowering) encodeSend(site CallSite) (Node, error) {
	n, err := l.c.opts.DynamicCall.EncodeSend(site)
	if err != nil {
		return nil, l.errorAt(site.Span, err)
	}
	return n, nil
}

func (l *lowering) cascade(c *compiler.Cascade) (Node, error) {
	if len(c.Messages) == 0 {
		return nil, l.errorAt(c.SpanVal, fmt.Errorf("%w: empty cascade", ErrMalformedNode))
	}
	recv, err := l.expr(c.Receiver)
	if err != nil {
		return nil, err
	}
	super := l.isSuper(c.Receiver)

	out := &Cascade{SpanVal: c.SpanVal, Receiver: recv}
	for _, msg := range c.Messages {
		if msg.Selector == "" {
			return nil, l.errorAt(msg.SpanVal, fmt.Errorf("%w: cascade message without selector", ErrMalformedNode))
		}
		args, err := l.arguments(msg.SpanVal, msg.Selector, msg.Arguments)
		if err != nil {
			return nil, err
		}
		l.debug(msg.SpanVal, "send "+msg.Selector)
		n, err := l.encodeSend(CallSite{
			Span:     msg.SpanVal,
			Receiver: &CascadeReceiver{SpanVal: c.Receiver.Span()},
			Selector: msg.Selector,
			Args:     args,
			Super:    super,
		})
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, n)
	}
	return out, nil
}

func (l *lowering) block(b *compiler.Block) (Node, error) {
	if err := l.chain.Push(b.Parameters, b.Temps); err != nil {
		return nil, l.errorAt(b.SpanVal, err)
	}
	defer l.chain.Pop()

	depth := l.chain.Depth()
	frameSize := l.chain.FrameSize()
	body, err := l.statements(b.Statements, b.SpanVal)
	if err != nil {
		return nil, err
	}
	return &Closure{
		SpanVal:   b.SpanVal,
		Arity:     len(b.Parameters),
		FrameSize: frameSize,
		Depth:     depth,
		Body:      body,
	}, nil
}
