package gosource

import (
	"errors"
	"fmt"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/scope"
)

var ErrUnsupported = errors.New("unsupported by the Go source backend")

// emitter translates one lowered method. Locals are named l<depth>_<slot>
// and intermediate results r<n>.
type emitter struct {
	cls      *model.Class
	typeName string
	literals int
	sites    []string

	tmp      int
	cascades []string
}

func (e *emitter) unsupported(n lower.Node, format string, args ...any) error {
	sp := n.Span()
	return fmt.Errorf("%w: %s at %d:%d", ErrUnsupported, fmt.Sprintf(format, args...), sp.Start.Line, sp.Start.Column)
}

func (e *emitter) fresh(prefix string) string {
	e.tmp++
	return fmt.Sprintf("%s%d", prefix, e.tmp)
}

func local(depth, slot int) string {
	return fmt.Sprintf("l%d_%d", depth, slot)
}

func value() *jen.Statement {
	return jen.Qual(runtimePath, "Value")
}

// call binds the (Value, error) result of c to a fresh temporary.
func (e *emitter) call(c jen.Code) ([]jen.Code, jen.Code) {
	r := e.fresh("r")
	return []jen.Code{
		jen.List(jen.Id(r), jen.Err()).Op(":=").Add(c),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
	}, jen.Id(r)
}

// check propagates the error returned by c.
func check(c jen.Code) jen.Code {
	return jen.If(jen.Err().Op(":=").Add(c), jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err()))
}

func (e *emitter) method(name string, m *lower.Method) (jen.Code, error) {
	params := []jen.Code{
		jen.Id("rt").Qual(runtimePath, "Runtime"),
		jen.Id("self").Add(value()),
	}
	for i := range m.Args {
		params = append(params, jen.Id(local(0, i)).Add(value()))
	}

	side := "InstanceSide"
	if m.Side == model.ClassSide {
		side = "ClassSide"
	}
	body := []jen.Code{
		jen.Id("ctx").Op(":=").Qual(runtimePath, "NewContext").Call(
			jen.Id("rt"), jen.Lit(m.Class), jen.Qual(modelPath, side), jen.Lit(m.Selector), jen.Id("self")),
		jen.Defer().Id("ctx").Dot("Finish").Call(jen.Op("&").Id("result"), jen.Op("&").Err()),
	}
	body = append(body, declareTemps(0, len(m.Args), m.FrameSize)...)

	stmts, returned, err := e.seq(m.Body)
	if err != nil {
		return nil, err
	}
	body = append(body, stmts...)
	if !returned {
		body = append(body, jen.Return(jen.Id("self"), jen.Nil()))
	}

	return jen.Func().Params(jen.Id(e.typeName)).Id(name).Params(params...).
		Params(jen.Id("result").Add(value()), jen.Err().Error()).
		Block(body...), nil
}

func declareTemps(depth, from, to int) []jen.Code {
	var out []jen.Code
	for i := from; i < to; i++ {
		out = append(out,
			jen.Var().Id(local(depth, i)).Add(value()),
			jen.Id("_").Op("=").Id(local(depth, i)))
	}
	return out
}

// seq emits the statements of s. The value of a statement other than a
// return is discarded; returned reports whether s ends with a return.
func (e *emitter) seq(s *lower.Seq) (stmts []jen.Code, returned bool, err error) {
	if s == nil {
		return nil, false, nil
	}
	for _, n := range s.Nodes {
		code, val, err := e.expr(n)
		if err != nil {
			return nil, false, err
		}
		stmts = append(stmts, code...)
		_, returned = n.(*lower.Return)
		if discard(n) && val != nil {
			stmts = append(stmts, jen.Id("_").Op("=").Add(val))
		}
	}
	return stmts, returned, nil
}

// discard reports whether the value of statement n has to be consumed
// explicitly. Constants may be an untyped nil and never need it.
func discard(n lower.Node) bool {
	switch n.(type) {
	case *lower.Const, *lower.LiteralRef, *lower.Param, *lower.Store, *lower.Return, *lower.Seq:
		return false
	}
	return true
}

// blockSeq emits a block body whose last statement's value is the block's
// result.
func (e *emitter) blockSeq(s *lower.Seq) ([]jen.Code, error) {
	if s == nil || len(s.Nodes) == 0 {
		return []jen.Code{jen.Return(jen.Nil(), jen.Nil())}, nil
	}
	init := &lower.Seq{SpanVal: s.SpanVal, Nodes: s.Nodes[:len(s.Nodes)-1]}
	stmts, _, err := e.seq(init)
	if err != nil {
		return nil, err
	}
	last := s.Nodes[len(s.Nodes)-1]
	code, val, err := e.expr(last)
	if err != nil {
		return nil, err
	}
	stmts = append(stmts, code...)
	if _, ok := last.(*lower.Return); !ok {
		stmts = append(stmts, jen.Return(val, jen.Nil()))
	}
	return stmts, nil
}

func (e *emitter) exprs(ns []lower.Node) ([]jen.Code, []jen.Code, error) {
	var code []jen.Code
	vals := make([]jen.Code, len(ns))
	for i, n := range ns {
		c, v, err := e.expr(n)
		if err != nil {
			return nil, nil, err
		}
		code = append(code, c...)
		vals[i] = v
	}
	return code, vals, nil
}

// expr emits the statements computing n and the expression of its value.
func (e *emitter) expr(n lower.Node) ([]jen.Code, jen.Code, error) {
	switch n := n.(type) {
	case *lower.Param:
		switch n.Role {
		case lower.SelfParam:
			return nil, jen.Id("self"), nil
		case lower.ContextParam:
			return nil, jen.Id("ctx"), nil
		}
		return nil, jen.Id(local(0, n.Index)), nil
	case *lower.Const:
		return nil, literal(n.Value), nil
	case *lower.LiteralRef:
		if n.Index < 0 || n.Index >= e.literals {
			return nil, nil, e.unsupported(n, "literal %d outside the pool", n.Index)
		}
		return nil, jen.Id(e.typeName + "Literals").Index(jen.Lit(n.Index)), nil
	case *lower.Load:
		return e.load(n)
	case *lower.Store:
		return e.store(n)
	case *lower.Send:
		return e.send(n, n.Receiver, jen.Lit(n.Selector), n.Args, n.Super)
	case *lower.CachedSend:
		if n.Site < 0 || n.Site >= len(e.sites) || e.sites[n.Site] != n.Selector {
			return nil, nil, e.unsupported(n, "call site %d does not match #%s", n.Site, n.Selector)
		}
		return e.send(n, n.Receiver, jen.Id(e.typeName+"CallSites").Index(jen.Lit(n.Site)), n.Args, n.Super)
	case *lower.Cascade:
		return e.cascade(n)
	case *lower.CascadeReceiver:
		if len(e.cascades) == 0 {
			return nil, nil, e.unsupported(n, "cascade receiver outside a cascade")
		}
		return nil, jen.Id(e.cascades[len(e.cascades)-1]), nil
	case *lower.MakeArray:
		code, vals, err := e.exprs(n.Elements)
		if err != nil {
			return nil, nil, err
		}
		return code, jen.Index().Add(value()).Values(vals...), nil
	case *lower.Closure:
		return e.closure(n)
	case *lower.Return:
		code, val, err := e.expr(n.Value)
		if err != nil {
			return nil, nil, err
		}
		if n.NonLocal {
			return append(code, jen.Return(jen.Id("ctx").Dot("Return").Call(val))), nil, nil
		}
		return append(code, jen.Return(val, jen.Nil())), nil, nil
	case *lower.Seq:
		stmts, _, err := e.seq(n)
		return stmts, nil, err
	case nil:
		return nil, nil, fmt.Errorf("%w: missing node", ErrUnsupported)
	}
	return nil, nil, e.unsupported(n, "node %T", n)
}

func (e *emitter) load(n *lower.Load) ([]jen.Code, jen.Code, error) {
	b := n.Binding
	switch b.Kind {
	case scope.Temporary, scope.Argument:
		return nil, jen.Id(local(b.Depth, b.Index)), nil
	case scope.InstanceVariable, scope.ClassInstanceVariable:
		code, v := e.call(jen.Qual(runtimePath, "LoadSlot").Call(jen.Id("rt"), jen.Id("self"), jen.Lit(b.Index)))
		return code, v, nil
	case scope.ClassVariable:
		code, v := e.call(jen.Id("rt").Dot("ClassVar").Call(jen.Lit(b.Owner), jen.Lit(b.Name)))
		return code, v, nil
	case scope.PoolVariable:
		code, v := e.call(jen.Id("rt").Dot("PoolValue").Call(jen.Lit(b.Owner), jen.Lit(b.Name)))
		return code, v, nil
	case scope.Global:
		code, v := e.call(jen.Id("rt").Dot("Global").Call(jen.Lit(b.Name)))
		return code, v, nil
	}
	return nil, nil, e.unsupported(n, "load of %s", b)
}

func (e *emitter) store(n *lower.Store) ([]jen.Code, jen.Code, error) {
	code, val, err := e.expr(n.Value)
	if err != nil {
		return nil, nil, err
	}
	// Pin the value so that it is evaluated once.
	v := e.fresh("v")
	code = append(code, jen.Var().Id(v).Add(value()).Op("=").Add(val))

	b := n.Binding
	switch b.Kind {
	case scope.Temporary:
		code = append(code, jen.Id(local(b.Depth, b.Index)).Op("=").Id(v))
	case scope.InstanceVariable, scope.ClassInstanceVariable:
		code = append(code, check(jen.Qual(runtimePath, "StoreSlot").Call(jen.Id("rt"), jen.Id("self"), jen.Lit(b.Index), jen.Id(v))))
	case scope.ClassVariable:
		code = append(code, check(jen.Id("rt").Dot("SetClassVar").Call(jen.Lit(b.Owner), jen.Lit(b.Name), jen.Id(v))))
	case scope.Global:
		code = append(code, check(jen.Id("rt").Dot("SetGlobal").Call(jen.Lit(b.Name), jen.Id(v))))
	default:
		return nil, nil, e.unsupported(n, "store to %s", b)
	}
	return code, jen.Id(v), nil
}

func (e *emitter) send(n lower.Node, receiver lower.Node, selector jen.Code, args []lower.Node, super bool) ([]jen.Code, jen.Code, error) {
	if super && e.cls.Superclass() == nil {
		return nil, nil, e.unsupported(n, "super send in root class %s", e.cls.Name())
	}
	code, recv, err := e.expr(receiver)
	if err != nil {
		return nil, nil, err
	}
	argCode, vals, err := e.exprs(args)
	if err != nil {
		return nil, nil, err
	}
	code = append(code, argCode...)

	fn := "Send"
	if super {
		fn = "SuperSend"
	}
	argList := jen.Nil()
	if len(vals) > 0 {
		argList = jen.Index().Add(value()).Values(vals...)
	}
	callCode, v := e.call(jen.Id("rt").Dot(fn).Call(jen.Id("ctx"), recv, selector, argList))
	return append(code, callCode...), v, nil
}

func (e *emitter) cascade(n *lower.Cascade) ([]jen.Code, jen.Code, error) {
	code, recv, err := e.expr(n.Receiver)
	if err != nil {
		return nil, nil, err
	}
	c := e.fresh("c")
	code = append(code, jen.Var().Id(c).Add(value()).Op("=").Add(recv))

	e.cascades = append(e.cascades, c)
	defer func() { e.cascades = e.cascades[:len(e.cascades)-1] }()

	var last jen.Code
	for i, m := range n.Messages {
		mc, v, err := e.expr(m)
		if err != nil {
			return nil, nil, err
		}
		code = append(code, mc...)
		if i < len(n.Messages)-1 {
			code = append(code, jen.Id("_").Op("=").Add(v))
		}
		last = v
	}
	return code, last, nil
}

func (e *emitter) closure(n *lower.Closure) ([]jen.Code, jen.Code, error) {
	var body []jen.Code
	for i := 0; i < n.Arity; i++ {
		body = append(body,
			jen.Id(local(n.Depth, i)).Op(":=").Id("args").Index(jen.Lit(i)),
			jen.Id("_").Op("=").Id(local(n.Depth, i)))
	}
	body = append(body, declareTemps(n.Depth, n.Arity, n.FrameSize)...)

	// Cascades do not reach into blocks.
	saved := e.cascades
	e.cascades = nil
	stmts, err := e.blockSeq(n.Body)
	e.cascades = saved
	if err != nil {
		return nil, nil, err
	}
	body = append(body, stmts...)

	fn := jen.Func().Params(jen.Id("args").Index().Add(value())).
		Params(value(), jen.Error()).
		Block(body...)
	return nil, jen.Qual(runtimePath, "NewBlock").Call(jen.Lit(n.Arity), fn), nil
}

// literal renders l as a Go expression of a closure.Value.
func literal(l lower.Literal) jen.Code {
	switch l.Kind {
	case lower.IntLiteral:
		return jen.Lit(l.Int)
	case lower.FloatLiteral:
		return jen.Lit(l.Float)
	case lower.StringLiteral:
		return jen.Lit(l.Str)
	case lower.SymbolLiteral:
		return jen.Qual(runtimePath, "Symbol").Call(jen.Lit(l.Str))
	case lower.CharLiteral:
		return jen.LitRune(l.Char)
	case lower.TrueLiteral:
		return jen.True()
	case lower.FalseLiteral:
		return jen.False()
	case lower.ArrayLiteral:
		elems := make([]jen.Code, len(l.Elements))
		for i, el := range l.Elements {
			elems[i] = literal(el)
		}
		return jen.Index().Add(value()).Values(elems...)
	}
	return jen.Nil()
}
