package closure

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/chazu/talc/model"
)

var (
	ErrDoesNotUnderstand = errors.New("does not understand")
	ErrUnknownGlobal     = errors.New("unknown global")
	ErrUnknownPool       = errors.New("unknown pool variable")
	ErrNotAnObject       = errors.New("receiver has no slots")
	ErrZeroDivide        = errors.New("division by zero")
	ErrIndexOutOfBounds  = errors.New("index out of bounds")
)

// Runtime executes the operations routines cannot perform on their own.
type Runtime interface {
	Send(ctx *Context, receiver Value, selector string, args []Value) (Value, error)
	// SuperSend starts the method lookup above the class of the sending
	// routine.
	SuperSend(ctx *Context, receiver Value, selector string, args []Value) (Value, error)
	// Slots returns the instance (or class-instance) variables of receiver.
	Slots(receiver Value) ([]Value, error)
	Global(name string) (Value, error)
	SetGlobal(name string, v Value) error
	ClassVar(owner, name string) (Value, error)
	SetClassVar(owner, name string, v Value) error
	PoolValue(pool, name string) (Value, error)
}

// Transcript writes shown values to an io.Writer.
type Transcript struct {
	mu sync.Mutex
	w  io.Writer
}

func (t *Transcript) String() string { return "a Transcript" }

func (t *Transcript) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	io.WriteString(t.w, s)
}

// MapRuntime is a small reference runtime: defined classes dispatch into a
// Table, everything else falls back to primitives on Go values.
type MapRuntime struct {
	table      *Table
	transcript *Transcript

	mu        sync.Mutex
	classes   map[string]*model.Class
	metas     map[string]*Object
	globals   map[string]Value
	classVars map[string]Value
}

// NewMapRuntime creates a runtime dispatching into table. Transcript output
// goes to out.
func NewMapRuntime(table *Table, out io.Writer, classes ...*model.Class) *MapRuntime {
	r := &MapRuntime{
		table:      table,
		transcript: &Transcript{w: out},
		classes:    make(map[string]*model.Class),
		metas:      make(map[string]*Object),
		globals:    make(map[string]Value),
		classVars:  make(map[string]Value),
	}
	for _, c := range classes {
		r.classes[c.Name()] = c
		r.metas[c.Name()] = &Object{Class: c, Meta: true, Slots: make([]Value, len(c.AllClassInstVarNames()))}
	}
	return r
}

// ClassObject returns the class object of a defined class.
func (r *MapRuntime) ClassObject(name string) (*Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.metas[name]
	return o, ok
}

// Instantiate creates an instance of cls with nil slots.
func (r *MapRuntime) Instantiate(cls *model.Class) *Object {
	return &Object{Class: cls, Slots: make([]Value, len(cls.AllInstVarNames()))}
}

func (r *MapRuntime) Slots(receiver Value) ([]Value, error) {
	if o, ok := receiver.(*Object); ok {
		return o.Slots, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotAnObject, PrintString(receiver))
}

func (r *MapRuntime) Global(name string) (Value, error) {
	if name == "Transcript" {
		return r.transcript, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.metas[name]; ok {
		return o, nil
	}
	if v, ok := r.globals[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownGlobal, name)
}

func (r *MapRuntime) SetGlobal(name string, v Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globals[name] = v
	return nil
}

func (r *MapRuntime) ClassVar(owner, name string) (Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.classVars[owner+"."+name], nil
}

func (r *MapRuntime) SetClassVar(owner, name string, v Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classVars[owner+"."+name] = v
	return nil
}

func (r *MapRuntime) PoolValue(pool, name string) (Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.classes {
		for _, p := range c.Pools() {
			if p.Name() != pool {
				continue
			}
			if v, ok := p.Value(name); ok {
				return normalize(v), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownPool, pool, name)
}

// normalize maps pool constants onto runtime values.
func normalize(v any) Value {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}

func (r *MapRuntime) lookup(cls *model.Class, side model.Side, selector string) (*Routine, bool) {
	for c := cls; c != nil; c = c.Superclass() {
		if rt, ok := r.table.Lookup(c.Name(), side, selector); ok {
			return rt, true
		}
	}
	return nil, false
}

func (r *MapRuntime) Send(ctx *Context, receiver Value, selector string, args []Value) (Value, error) {
	if o, ok := receiver.(*Object); ok {
		side := model.InstanceSide
		if o.Meta {
			side = model.ClassSide
		}
		if rt, ok := r.lookup(o.Class, side, selector); ok {
			return Invoke(r, rt, o, args...)
		}
	}
	return r.primitive(receiver, selector, args)
}

func (r *MapRuntime) SuperSend(ctx *Context, receiver Value, selector string, args []Value) (Value, error) {
	r.mu.Lock()
	cls, ok := r.classes[ctx.Class]
	r.mu.Unlock()
	if ok {
		if rt, ok := r.lookup(cls.Superclass(), ctx.Side, selector); ok {
			return Invoke(r, rt, receiver, args...)
		}
	}
	return r.primitive(receiver, selector, args)
}

func (r *MapRuntime) dnu(receiver Value, selector string) error {
	return fmt.Errorf("%s %w #%s", PrintString(receiver), ErrDoesNotUnderstand, selector)
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

func (r *MapRuntime) primitive(receiver Value, selector string, args []Value) (Value, error) {
	var (
		v   Value
		ok  bool
		err error
	)
	switch recv := receiver.(type) {
	case int64:
		v, ok, err = integerPrimitive(recv, selector, args)
	case float64:
		v, ok, err = floatPrimitive(recv, selector, args)
	case bool:
		v, ok, err = booleanPrimitive(recv, selector, args)
	case string:
		v, ok, err = stringPrimitive(recv, selector, args)
	case []Value:
		v, ok, err = arrayPrimitive(recv, selector, args)
	case *Block:
		v, ok, err = blockPrimitive(recv, selector, args)
	case *Transcript:
		v, ok = r.transcriptPrimitive(recv, selector, args)
	case *Object:
		if recv.Meta && (selector == "new" || selector == "basicNew") {
			return r.Instantiate(recv.Class), nil
		}
	}
	if err != nil || ok {
		return v, err
	}
	if v, ok, err = r.objectPrimitive(receiver, selector, args); ok || err != nil {
		return v, err
	}
	return nil, r.dnu(receiver, selector)
}

func (r *MapRuntime) objectPrimitive(recv Value, selector string, args []Value) (Value, bool, error) {
	switch selector {
	case "==":
		return identical(recv, args[0]), true, nil
	case "~~":
		return !identical(recv, args[0]), true, nil
	case "=":
		return equal(recv, args[0]), true, nil
	case "~=":
		return !equal(recv, args[0]), true, nil
	case "isNil":
		return recv == nil, true, nil
	case "notNil":
		return recv != nil, true, nil
	case "yourself":
		return recv, true, nil
	case "printString":
		return PrintString(recv), true, nil
	case "displayString":
		return displayString(recv), true, nil
	case "ifNil:":
		if recv == nil {
			return callBlock(args[0])
		}
		return recv, true, nil
	case "ifNotNil:":
		if recv != nil {
			return callBlock(args[0], recv)
		}
		return nil, true, nil
	case "class":
		if o, ok := recv.(*Object); ok && !o.Meta {
			m, _ := r.ClassObject(o.Class.Name())
			return m, true, nil
		}
	}
	return nil, false, nil
}

func callBlock(v Value, args ...Value) (Value, bool, error) {
	b, ok := v.(*Block)
	if !ok {
		return v, true, nil
	}
	if b.NumArgs() == 0 {
		args = nil
	}
	res, err := b.Call(args...)
	return res, true, err
}

func integerPrimitive(recv int64, selector string, args []Value) (Value, bool, error) {
	if len(args) == 1 {
		if f, ok := args[0].(float64); ok {
			return floatPrimitive(float64(recv), selector, []Value{f})
		}
	}
	switch selector {
	case "printString", "displayString":
		return PrintString(recv), true, nil
	case "negated":
		return -recv, true, nil
	case "abs":
		if recv < 0 {
			return -recv, true, nil
		}
		return recv, true, nil
	case "asFloat":
		return float64(recv), true, nil
	case "timesRepeat:":
		for i := int64(0); i < recv; i++ {
			if _, _, err := callBlock(args[0]); err != nil {
				return nil, true, err
			}
		}
		return recv, true, nil
	case "to:do:":
		stop, ok := args[0].(int64)
		if !ok {
			return nil, false, nil
		}
		for i := recv; i <= stop; i++ {
			if _, _, err := callBlock(args[1], i); err != nil {
				return nil, true, err
			}
		}
		return recv, true, nil
	}
	if len(args) != 1 {
		return nil, false, nil
	}
	arg, ok := args[0].(int64)
	if !ok {
		return nil, false, nil
	}
	switch selector {
	case "+":
		return recv + arg, true, nil
	case "-":
		return recv - arg, true, nil
	case "*":
		return recv * arg, true, nil
	case "/":
		if arg == 0 {
			return nil, true, ErrZeroDivide
		}
		if recv%arg == 0 {
			return recv / arg, true, nil
		}
		return float64(recv) / float64(arg), true, nil
	case "//":
		if arg == 0 {
			return nil, true, ErrZeroDivide
		}
		q := recv / arg
		if (recv < 0) != (arg < 0) && recv%arg != 0 {
			q--
		}
		return q, true, nil
	case "\\\\":
		if arg == 0 {
			return nil, true, ErrZeroDivide
		}
		m := recv % arg
		if m != 0 && (m < 0) != (arg < 0) {
			m += arg
		}
		return m, true, nil
	case "<":
		return recv < arg, true, nil
	case ">":
		return recv > arg, true, nil
	case "<=":
		return recv <= arg, true, nil
	case ">=":
		return recv >= arg, true, nil
	case "max:":
		return max(recv, arg), true, nil
	case "min:":
		return min(recv, arg), true, nil
	}
	return nil, false, nil
}

func floatPrimitive(recv float64, selector string, args []Value) (Value, bool, error) {
	switch selector {
	case "printString", "displayString":
		return PrintString(recv), true, nil
	case "negated":
		return -recv, true, nil
	case "abs":
		return math.Abs(recv), true, nil
	case "truncated":
		return int64(recv), true, nil
	case "rounded":
		return int64(math.Round(recv)), true, nil
	case "sqrt":
		return math.Sqrt(recv), true, nil
	}
	if len(args) != 1 {
		return nil, false, nil
	}
	var arg float64
	switch a := args[0].(type) {
	case float64:
		arg = a
	case int64:
		arg = float64(a)
	default:
		return nil, false, nil
	}
	switch selector {
	case "+":
		return recv + arg, true, nil
	case "-":
		return recv - arg, true, nil
	case "*":
		return recv * arg, true, nil
	case "/":
		if arg == 0 {
			return nil, true, ErrZeroDivide
		}
		return recv / arg, true, nil
	case "<":
		return recv < arg, true, nil
	case ">":
		return recv > arg, true, nil
	case "<=":
		return recv <= arg, true, nil
	case ">=":
		return recv >= arg, true, nil
	}
	return nil, false, nil
}

func booleanPrimitive(recv bool, selector string, args []Value) (Value, bool, error) {
	switch selector {
	case "not":
		return !recv, true, nil
	case "&":
		b, ok := args[0].(bool)
		return recv && b, ok, nil
	case "|":
		b, ok := args[0].(bool)
		return recv || b, ok, nil
	case "and:":
		if !recv {
			return false, true, nil
		}
		return callBlock(args[0])
	case "or:":
		if recv {
			return true, true, nil
		}
		return callBlock(args[0])
	case "ifTrue:":
		if recv {
			return callBlock(args[0])
		}
		return nil, true, nil
	case "ifFalse:":
		if !recv {
			return callBlock(args[0])
		}
		return nil, true, nil
	case "ifTrue:ifFalse:":
		if recv {
			return callBlock(args[0])
		}
		return callBlock(args[1])
	case "ifFalse:ifTrue:":
		if !recv {
			return callBlock(args[0])
		}
		return callBlock(args[1])
	}
	return nil, false, nil
}

func stringPrimitive(recv string, selector string, args []Value) (Value, bool, error) {
	switch selector {
	case "size":
		return int64(len(recv)), true, nil
	case "asSymbol":
		return Symbol(recv), true, nil
	case "asUppercase":
		return strings.ToUpper(recv), true, nil
	case "asLowercase":
		return strings.ToLower(recv), true, nil
	case ",":
		return recv + displayString(args[0]), true, nil
	case "at:":
		i, ok := args[0].(int64)
		if !ok {
			return nil, false, nil
		}
		if i < 1 || i > int64(len(recv)) {
			return nil, true, fmt.Errorf("%w: %d", ErrIndexOutOfBounds, i)
		}
		return rune(recv[i-1]), true, nil
	}
	return nil, false, nil
}

func arrayPrimitive(recv []Value, selector string, args []Value) (Value, bool, error) {
	index := func() (int, error) {
		i, ok := args[0].(int64)
		if !ok || i < 1 || i > int64(len(recv)) {
			return 0, fmt.Errorf("%w: %s", ErrIndexOutOfBounds, PrintString(args[0]))
		}
		return int(i - 1), nil
	}
	switch selector {
	case "size":
		return int64(len(recv)), true, nil
	case "isEmpty":
		return len(recv) == 0, true, nil
	case "at:":
		i, err := index()
		if err != nil {
			return nil, true, err
		}
		return recv[i], true, nil
	case "at:put:":
		i, err := index()
		if err != nil {
			return nil, true, err
		}
		recv[i] = args[1]
		return args[1], true, nil
	case "do:":
		for _, e := range recv {
			if _, _, err := callBlock(args[0], e); err != nil {
				return nil, true, err
			}
		}
		return recv, true, nil
	case "inject:into:":
		acc := args[0]
		for _, e := range recv {
			b, ok := args[1].(*Block)
			if !ok {
				return nil, false, nil
			}
			v, err := b.Call(acc, e)
			if err != nil {
				return nil, true, err
			}
			acc = v
		}
		return acc, true, nil
	}
	return nil, false, nil
}

func blockPrimitive(recv *Block, selector string, args []Value) (Value, bool, error) {
	switch selector {
	case "value", "value:", "value:value:", "value:value:value:", "valueWithArguments:":
		if selector == "valueWithArguments:" {
			arr, ok := args[0].([]Value)
			if !ok {
				return nil, false, nil
			}
			args = arr
		}
		v, err := recv.Call(args...)
		return v, true, err
	case "numArgs":
		return int64(recv.NumArgs()), true, nil
	case "whileTrue:", "whileFalse:":
		want := selector == "whileTrue:"
		for {
			c, err := recv.Call()
			if err != nil {
				return nil, true, err
			}
			if b, ok := c.(bool); !ok || b != want {
				return nil, true, nil
			}
			if _, _, err := callBlock(args[0]); err != nil {
				return nil, true, err
			}
		}
	}
	return nil, false, nil
}

func (r *MapRuntime) transcriptPrimitive(t *Transcript, selector string, args []Value) (Value, bool) {
	switch selector {
	case "show:":
		t.write(displayString(args[0]))
	case "print:":
		t.write(PrintString(args[0]))
	case "cr":
		t.write("\n")
	case "space":
		t.write(" ")
	case "tab":
		t.write("\t")
	default:
		return nil, false
	}
	return t, true
}
