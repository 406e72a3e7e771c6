// Package closure is a native backend that materializes lowered methods
// into Go closures. Routines live in a Table keyed by class side and native
// name, and run against a Runtime that supplies message dispatch and the
// storage of globals, class variables and receiver slots.
package closure

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/talc/model"
)

// Value is a runtime value. Integers are int64, floats float64, strings
// string, characters rune, booleans bool and arrays []Value.
type Value = any

// Symbol is an interned selector-like string.
type Symbol string

// Object is an instance of a defined class, or the class object itself when
// Meta is set. Slots hold instance variables (class-instance variables for
// class objects) in inheritance order.
type Object struct {
	Class *model.Class
	Meta  bool
	Slots []Value
}

func (o *Object) String() string {
	if o.Meta {
		return o.Class.Name()
	}
	return "a " + o.Class.Name()
}

// Context is the execution context of one method activation. It is what
// thisContext evaluates to, and the target of non-local returns from the
// blocks the activation creates.
type Context struct {
	Runtime  Runtime
	Class    string
	Side     model.Side
	Selector string
	Receiver Value

	active bool
}

type nonLocalReturn struct {
	ctx   *Context
	value Value
}

// NewContext starts an activation of class>>selector. The activation ends
// with Finish.
func NewContext(rt Runtime, class string, side model.Side, selector string, receiver Value) *Context {
	return &Context{Runtime: rt, Class: class, Side: side, Selector: selector, Receiver: receiver, active: true}
}

// Return unwinds to the activation c with v as its result. It fails with
// ErrDeadContext once the activation has finished.
func (c *Context) Return(v Value) (Value, error) {
	if !c.active {
		return nil, ErrDeadContext
	}
	panic(nonLocalReturn{ctx: c, value: v})
}

// Finish ends the activation. It must be deferred directly by the routine
// owning c; a non-local return aimed at c becomes the routine's result.
func (c *Context) Finish(result *Value, err *error) {
	c.active = false
	if p := recover(); p != nil {
		if nlr, ok := p.(nonLocalReturn); ok && nlr.ctx == c {
			*result, *err = nlr.value, nil
			return
		}
		panic(p)
	}
}

func (c *Context) String() string {
	if c.Side == model.ClassSide {
		return fmt.Sprintf("%s class>>%s", c.Class, c.Selector)
	}
	return fmt.Sprintf("%s>>%s", c.Class, c.Selector)
}

// LoadSlot reads slot i of receiver.
func LoadSlot(rt Runtime, receiver Value, i int) (Value, error) {
	slots, err := slotsOf(rt, receiver, i)
	if err != nil {
		return nil, err
	}
	return slots[i], nil
}

// StoreSlot writes slot i of receiver.
func StoreSlot(rt Runtime, receiver Value, i int, v Value) error {
	slots, err := slotsOf(rt, receiver, i)
	if err != nil {
		return err
	}
	slots[i] = v
	return nil
}

func slotsOf(rt Runtime, receiver Value, i int) ([]Value, error) {
	slots, err := rt.Slots(receiver)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(slots) {
		return nil, fmt.Errorf("%w: %d of %s", ErrSlotOutOfRange, i, PrintString(receiver))
	}
	return slots, nil
}

var ErrBlockArity = errors.New("wrong number of block arguments")

// Block is a closure over the frame that created it, or over Go code when
// made by NewBlock.
type Block struct {
	arity     int
	frameSize int
	depth     int
	body      eval
	outer     *frame

	fn func(args []Value) (Value, error)
}

// NewBlock wraps fn as a block taking arity arguments.
func NewBlock(arity int, fn func(args []Value) (Value, error)) *Block {
	return &Block{arity: arity, fn: fn}
}

// NumArgs returns the number of parameters of the block.
func (b *Block) NumArgs() int { return b.arity }

// Call evaluates the block. A non-local return inside the block unwinds to
// the routine activation that created it.
func (b *Block) Call(args ...Value) (Value, error) {
	if len(args) != b.arity {
		return nil, fmt.Errorf("%w: block takes %d, got %d", ErrBlockArity, b.arity, len(args))
	}
	if b.fn != nil {
		return b.fn(args)
	}
	f := &frame{
		self:   b.outer.self,
		ctx:    b.outer.ctx,
		slots:  make([]Value, b.frameSize),
		parent: b.outer,
		depth:  b.depth,
		home:   b.outer.home,
	}
	copy(f.slots, args)
	return b.body(f)
}

func (b *Block) String() string { return "a Block" }

// PrintString renders v the way printString does.
func PrintString(v Value) string {
	switch v := v.(type) {
	case nil:
		return "nil"
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case Symbol:
		return "#" + string(v)
	case rune:
		return "$" + string(v)
	case []Value:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = PrintString(e)
		}
		return "#(" + strings.Join(parts, " ") + ")"
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprintf("%v", v)
}

// displayString is PrintString without quotes around strings and symbols.
func displayString(v Value) string {
	switch v := v.(type) {
	case string:
		return v
	case Symbol:
		return string(v)
	}
	return PrintString(v)
}

func equal(a, b Value) bool {
	as, aok := a.([]Value)
	bs, bok := b.([]Value)
	if aok || bok {
		if !aok || !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	if x, ok := a.(int64); ok {
		if y, ok := b.(float64); ok {
			return float64(x) == y
		}
	}
	if x, ok := a.(float64); ok {
		if y, ok := b.(int64); ok {
			return x == float64(y)
		}
	}
	return a == b
}

func identical(a, b Value) bool {
	if _, ok := a.([]Value); ok {
		bs, ok := b.([]Value)
		as := a.([]Value)
		return ok && len(as) == len(bs) && (len(as) == 0 || &as[0] == &bs[0])
	}
	if _, ok := b.([]Value); ok {
		return false
	}
	return a == b
}
