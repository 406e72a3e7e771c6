package closure

import (
	"errors"
	"fmt"

	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/scope"
)

var (
	ErrUnsupported    = errors.New("unsupported by the closure backend")
	ErrDeadContext    = errors.New("non-local return from a dead method context")
	ErrSlotOutOfRange = errors.New("slot out of range")
)

type eval func(f *frame) (Value, error)

// frame is one activation: a routine (the home frame) or a block.
type frame struct {
	self    Value
	ctx     *Context
	slots   []Value
	parent  *frame
	depth   int
	home    *frame
	cascade []Value

	// home frames only
	returned bool
	result   Value
}

// translator turns the IR of one method into closures.
type translator struct {
	cls      *model.Class
	literals []Value
	sites    []string
}

func (tr *translator) unsupported(n lower.Node, format string, args ...any) error {
	sp := n.Span()
	return fmt.Errorf("%w: %s at %d:%d", ErrUnsupported, fmt.Sprintf(format, args...), sp.Start.Line, sp.Start.Column)
}

func (tr *translator) node(n lower.Node) (eval, error) {
	switch n := n.(type) {
	case *lower.Param:
		return tr.param(n)
	case *lower.Const:
		v, err := literalValue(n.Value)
		if err != nil {
			return nil, tr.unsupported(n, "%v", err)
		}
		return func(*frame) (Value, error) { return v, nil }, nil
	case *lower.LiteralRef:
		if n.Index < 0 || n.Index >= len(tr.literals) {
			return nil, tr.unsupported(n, "literal %d outside the pool", n.Index)
		}
		v := tr.literals[n.Index]
		return func(*frame) (Value, error) { return v, nil }, nil
	case *lower.Load:
		return tr.load(n)
	case *lower.Store:
		return tr.store(n)
	case *lower.Send:
		return tr.send(n, n.Receiver, n.Selector, n.Args, n.Super)
	case *lower.CachedSend:
		if n.Site < 0 || n.Site >= len(tr.sites) || tr.sites[n.Site] != n.Selector {
			return nil, tr.unsupported(n, "call site %d does not match #%s", n.Site, n.Selector)
		}
		return tr.send(n, n.Receiver, n.Selector, n.Args, n.Super)
	case *lower.Cascade:
		return tr.cascade(n)
	case *lower.CascadeReceiver:
		return func(f *frame) (Value, error) { return f.cascade[len(f.cascade)-1], nil }, nil
	case *lower.MakeArray:
		elems, err := tr.nodes(n.Elements)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (Value, error) {
			out := make([]Value, len(elems))
			for i, e := range elems {
				v, err := e(f)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}, nil
	case *lower.Closure:
		body, err := tr.seq(n.Body)
		if err != nil {
			return nil, err
		}
		arity, size, depth := n.Arity, n.FrameSize, n.Depth
		return func(f *frame) (Value, error) {
			return &Block{arity: arity, frameSize: size, depth: depth, body: body, outer: f}, nil
		}, nil
	case *lower.Return:
		return tr.ret(n)
	case *lower.Seq:
		return tr.seq(n)
	case nil:
		return nil, fmt.Errorf("%w: missing node", ErrUnsupported)
	}
	return nil, tr.unsupported(n, "node %T", n)
}

func (tr *translator) nodes(ns []lower.Node) ([]eval, error) {
	out := make([]eval, len(ns))
	for i, n := range ns {
		e, err := tr.node(n)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func (tr *translator) param(p *lower.Param) (eval, error) {
	switch p.Role {
	case lower.SelfParam:
		return func(f *frame) (Value, error) { return f.self, nil }, nil
	case lower.ContextParam:
		return func(f *frame) (Value, error) { return f.ctx, nil }, nil
	}
	i := p.Index
	return func(f *frame) (Value, error) { return f.home.slots[i], nil }, nil
}

func (tr *translator) seq(s *lower.Seq) (eval, error) {
	if s == nil {
		return func(*frame) (Value, error) { return nil, nil }, nil
	}
	stmts, err := tr.nodes(s.Nodes)
	if err != nil {
		return nil, err
	}
	return func(f *frame) (Value, error) {
		var v Value
		for _, stmt := range stmts {
			var err error
			if v, err = stmt(f); err != nil {
				return nil, err
			}
			if f.returned {
				return f.result, nil
			}
		}
		return v, nil
	}, nil
}

func (tr *translator) ret(n *lower.Return) (eval, error) {
	value, err := tr.node(n.Value)
	if err != nil {
		return nil, err
	}
	if n.NonLocal {
		return func(f *frame) (Value, error) {
			v, err := value(f)
			if err != nil {
				return nil, err
			}
			return f.ctx.Return(v)
		}, nil
	}
	return func(f *frame) (Value, error) {
		v, err := value(f)
		if err != nil {
			return nil, err
		}
		f.home.returned = true
		f.home.result = v
		return v, nil
	}, nil
}

// localFrame walks out to the frame that declares b.
func localFrame(f *frame, b scope.Binding) *frame {
	for f.depth > b.Depth {
		f = f.parent
	}
	return f
}

func (tr *translator) load(n *lower.Load) (eval, error) {
	b := n.Binding
	switch b.Kind {
	case scope.Temporary, scope.Argument:
		return func(f *frame) (Value, error) { return localFrame(f, b).slots[b.Index], nil }, nil
	case scope.InstanceVariable, scope.ClassInstanceVariable:
		return func(f *frame) (Value, error) { return LoadSlot(f.ctx.Runtime, f.self, b.Index) }, nil
	case scope.ClassVariable:
		return func(f *frame) (Value, error) { return f.ctx.Runtime.ClassVar(b.Owner, b.Name) }, nil
	case scope.PoolVariable:
		return func(f *frame) (Value, error) { return f.ctx.Runtime.PoolValue(b.Owner, b.Name) }, nil
	case scope.Global:
		return func(f *frame) (Value, error) { return f.ctx.Runtime.Global(b.Name) }, nil
	}
	return nil, tr.unsupported(n, "load of %s", b)
}

func (tr *translator) store(n *lower.Store) (eval, error) {
	value, err := tr.node(n.Value)
	if err != nil {
		return nil, err
	}
	b := n.Binding
	var set func(f *frame, v Value) error
	switch b.Kind {
	case scope.Temporary:
		set = func(f *frame, v Value) error {
			localFrame(f, b).slots[b.Index] = v
			return nil
		}
	case scope.InstanceVariable, scope.ClassInstanceVariable:
		set = func(f *frame, v Value) error { return StoreSlot(f.ctx.Runtime, f.self, b.Index, v) }
	case scope.ClassVariable:
		set = func(f *frame, v Value) error { return f.ctx.Runtime.SetClassVar(b.Owner, b.Name, v) }
	case scope.Global:
		set = func(f *frame, v Value) error { return f.ctx.Runtime.SetGlobal(b.Name, v) }
	default:
		return nil, tr.unsupported(n, "store to %s", b)
	}
	return func(f *frame) (Value, error) {
		v, err := value(f)
		if err != nil {
			return nil, err
		}
		return v, set(f, v)
	}, nil
}

func (tr *translator) send(n lower.Node, receiver lower.Node, selector string, args []lower.Node, super bool) (eval, error) {
	if super && tr.cls.Superclass() == nil {
		return nil, tr.unsupported(n, "super send in root class %s", tr.cls.Name())
	}
	recv, err := tr.node(receiver)
	if err != nil {
		return nil, err
	}
	argEvals, err := tr.nodes(args)
	if err != nil {
		return nil, err
	}
	return func(f *frame) (Value, error) {
		r, err := recv(f)
		if err != nil {
			return nil, err
		}
		vals := make([]Value, len(argEvals))
		for i, a := range argEvals {
			if vals[i], err = a(f); err != nil {
				return nil, err
			}
		}
		if super {
			return f.ctx.Runtime.SuperSend(f.ctx, r, selector, vals)
		}
		return f.ctx.Runtime.Send(f.ctx, r, selector, vals)
	}, nil
}

func (tr *translator) cascade(n *lower.Cascade) (eval, error) {
	recv, err := tr.node(n.Receiver)
	if err != nil {
		return nil, err
	}
	msgs, err := tr.nodes(n.Messages)
	if err != nil {
		return nil, err
	}
	return func(f *frame) (Value, error) {
		r, err := recv(f)
		if err != nil {
			return nil, err
		}
		f.cascade = append(f.cascade, r)
		defer func() { f.cascade = f.cascade[:len(f.cascade)-1] }()
		var v Value
		for _, m := range msgs {
			if v, err = m(f); err != nil {
				return nil, err
			}
		}
		return v, nil
	}, nil
}

func literalValue(l lower.Literal) (Value, error) {
	switch l.Kind {
	case lower.IntLiteral:
		return l.Int, nil
	case lower.FloatLiteral:
		return l.Float, nil
	case lower.StringLiteral:
		return l.Str, nil
	case lower.SymbolLiteral:
		return Symbol(l.Str), nil
	case lower.CharLiteral:
		return l.Char, nil
	case lower.NilLiteral:
		return nil, nil
	case lower.TrueLiteral:
		return true, nil
	case lower.FalseLiteral:
		return false, nil
	case lower.ArrayLiteral:
		out := make([]Value, len(l.Elements))
		for i, e := range l.Elements {
			v, err := literalValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, fmt.Errorf("literal kind %d", int(l.Kind))
}
