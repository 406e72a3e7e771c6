package closure

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
)

var (
	ErrDuplicateName  = errors.New("native name already defined")
	ErrForeignBuilder = errors.New("builder belongs to another container")
	ErrArity          = errors.New("wrong number of arguments")
)

// Routine is an emitted method.
type Routine struct {
	Class    string
	Side     model.Side
	Selector string
	Name     string
	Arity    int

	frameSize int
	body      eval
}

func (r *Routine) String() string {
	return fmt.Sprintf("%s %s>>%s (%s)", r.Side, r.Class, r.Selector, r.Name)
}

// Invoke runs r with self as the receiver.
func Invoke(rt Runtime, r *Routine, self Value, args ...Value) (result Value, err error) {
	if len(args) != r.Arity {
		return nil, fmt.Errorf("%w: %s takes %d, got %d", ErrArity, r.Selector, r.Arity, len(args))
	}
	ctx := NewContext(rt, r.Class, r.Side, r.Selector, self)
	f := &frame{self: self, ctx: ctx, slots: make([]Value, r.frameSize)}
	f.home = f
	copy(f.slots, args)
	defer ctx.Finish(&result, &err)

	v, err := r.body(f)
	if err != nil {
		return nil, err
	}
	if f.returned {
		return f.result, nil
	}
	return v, nil
}

type sideKey struct {
	class string
	side  model.Side
}

type classSide struct {
	cls        *model.Class
	byName     map[string]*Routine
	bySelector map[string]*Routine
	order      []string
	literals   []Value
	sites      []string
}

// Table is a native.Backend holding the routines of every generated class
// side. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	sides map[sideKey]*classSide
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{sides: make(map[sideKey]*classSide)}
}

// Container starts a fresh generation of a class side, replacing routines
// from an earlier generation.
func (t *Table) Container(cls *model.Class, side model.Side) (native.Container, error) {
	s := &classSide{
		cls:        cls,
		byName:     make(map[string]*Routine),
		bySelector: make(map[string]*Routine),
	}
	t.mu.Lock()
	t.sides[sideKey{cls.Name(), side}] = s
	t.mu.Unlock()
	return &container{table: t, s: s, reserved: make(map[string]bool)}, nil
}

// Lookup finds the routine implementing selector in one class side. It does
// not search superclasses.
func (t *Table) Lookup(class string, side model.Side, selector string) (*Routine, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sides[sideKey{class, side}]
	if !ok {
		return nil, false
	}
	r, ok := s.bySelector[selector]
	return r, ok
}

// Routine finds a routine by its native name.
func (t *Table) Routine(class string, side model.Side, name string) (*Routine, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sides[sideKey{class, side}]
	if !ok {
		return nil, false
	}
	r, ok := s.byName[name]
	return r, ok
}

// Names returns the native names of a class side in emission order.
func (t *Table) Names(class string, side model.Side) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.sides[sideKey{class, side}]; ok {
		return append([]string(nil), s.order...)
	}
	return nil
}

type builder struct {
	c    *container
	name string
}

func (b *builder) Name() string { return b.name }

type container struct {
	table    *Table
	s        *classSide
	reserved map[string]bool
}

func (c *container) DefineLiterals(values []lower.Literal) error {
	lits := make([]Value, len(values))
	for i, l := range values {
		v, err := literalValue(l)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		lits[i] = v
	}
	c.s.literals = lits
	return nil
}

func (c *container) DefineCallSites(selectors []string) error {
	c.s.sites = append([]string(nil), selectors...)
	return nil
}

func (c *container) DefineMethod(name string) (native.Builder, error) {
	if c.reserved[name] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	c.reserved[name] = true
	return &builder{c: c, name: name}, nil
}

func (c *container) Materialize(b native.Builder, m *lower.Method) error {
	nb, ok := b.(*builder)
	if !ok || nb.c != c {
		return ErrForeignBuilder
	}
	tr := &translator{cls: c.s.cls, literals: c.s.literals, sites: c.s.sites}
	body, err := tr.seq(m.Body)
	if err != nil {
		return err
	}
	r := &Routine{
		Class:     m.Class,
		Side:      m.Side,
		Selector:  m.Selector,
		Name:      nb.name,
		Arity:     len(m.Args),
		frameSize: m.FrameSize,
		body:      body,
	}

	c.table.mu.Lock()
	defer c.table.mu.Unlock()
	c.s.byName[r.Name] = r
	c.s.bySelector[r.Selector] = r
	c.s.order = append(c.s.order, r.Name)
	return nil
}

func (c *container) Names() []string {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	return append([]string(nil), c.s.order...)
}
