// Package scope resolves the identifiers of a method body. A method compiled
// against a class sees, in order: its local frames, the reserved
// pseudo-variables of its side, and the member/global scope of the class.
package scope

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/talc/model"
)

var (
	ErrUnboundIdentifier = errors.New("unbound identifier")
	ErrAmbiguousBinding  = errors.New("ambiguous binding")
)

// Kind classifies what a name is bound to.
type Kind int

const (
	Temporary Kind = iota
	Argument
	InstanceVariable
	ClassVariable
	ClassInstanceVariable
	PoolVariable
	Global
	Reserved
)

var kindNames = [...]string{
	Temporary:             "temporary",
	Argument:              "argument",
	InstanceVariable:      "instance variable",
	ClassVariable:         "class variable",
	ClassInstanceVariable: "class-instance variable",
	PoolVariable:          "pool variable",
	Global:                "global",
	Reserved:              "pseudo-variable",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Pseudo identifies a reserved binding.
type Pseudo int

const (
	NotPseudo Pseudo = iota
	Self
	Super
	ThisContext
	Nil
	True
	False
)

// Receiver says what self denotes.
type Receiver int

const (
	InstanceReceiver Receiver = iota
	ClassReceiver
)

func (r Receiver) String() string {
	if r == ClassReceiver {
		return "class"
	}
	return "instance"
}

// Binding is the resolution of one name.
type Binding struct {
	Name     string
	Kind     Kind
	Index    int    // slot index for locals, instance and class-instance variables
	Owner    string // defining class for class variables, pool name for pool variables
	ReadOnly bool
	Pseudo   Pseudo
	Receiver Receiver // self and super only
	Depth    int      // frame depth for locals: 0 is the method frame
}

func (b Binding) String() string {
	return fmt.Sprintf("%s %s", b.Kind, b.Name)
}

// ---------------------------------------------------------------------------
// Global name scope
// ---------------------------------------------------------------------------

// NameScope holds the globally visible names.
type NameScope struct {
	names map[string]bool
}

// NewNameScope creates a global scope binding names.
func NewNameScope(names ...string) *NameScope {
	s := &NameScope{names: make(map[string]bool)}
	s.Add(names...)
	return s
}

// Add binds more global names.
func (s *NameScope) Add(names ...string) {
	for _, n := range names {
		s.names[n] = true
	}
}

// Lookup resolves a global.
func (s *NameScope) Lookup(name string) (Binding, bool) {
	if s == nil || !s.names[name] {
		return Binding{}, false
	}
	return Binding{Name: name, Kind: Global, Index: -1}, true
}

// Names returns the bound names, sorted.
func (s *NameScope) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// Member scope
// ---------------------------------------------------------------------------

// MemberScope resolves the members a class exposes to one side's methods,
// falling back to the global scope.
type MemberScope struct {
	class    *model.Class
	bindings map[string]Binding
	globals  *NameScope
}

// ForInstanceMethod builds the member scope of an instance-side method:
// instance variables, class variables and pool variables, inherited ones
// included.
func ForInstanceMethod(cls *model.Class, globals *NameScope) (*MemberScope, error) {
	return newMemberScope(cls, globals, InstanceVariable, cls.AllInstVarNames())
}

// ForClassMethod builds the member scope of a class-side method. It differs
// from the instance side only in exposing class-instance variables instead
// of instance variables.
func ForClassMethod(cls *model.Class, globals *NameScope) (*MemberScope, error) {
	return newMemberScope(cls, globals, ClassInstanceVariable, cls.AllClassInstVarNames())
}

func newMemberScope(cls *model.Class, globals *NameScope, slotKind Kind, slots []string) (*MemberScope, error) {
	s := &MemberScope{class: cls, bindings: make(map[string]Binding), globals: globals}

	for i, name := range slots {
		if err := s.bind(Binding{Name: name, Kind: slotKind, Index: i, Owner: cls.Name()}); err != nil {
			return nil, err
		}
	}

	seenPools := make(map[*model.Pool]bool)
	for current := cls; current != nil; current = current.Superclass() {
		for i, name := range current.ClassVarNames() {
			if err := s.bind(Binding{Name: name, Kind: ClassVariable, Index: i, Owner: current.Name()}); err != nil {
				return nil, err
			}
		}
		for _, pool := range current.Pools() {
			if seenPools[pool] {
				continue
			}
			seenPools[pool] = true
			for _, name := range pool.Names() {
				if err := s.bind(Binding{Name: name, Kind: PoolVariable, Index: -1, Owner: pool.Name(), ReadOnly: true}); err != nil {
					return nil, err
				}
			}
		}
	}
	return s, nil
}

func (s *MemberScope) bind(b Binding) error {
	if prev, ok := s.bindings[b.Name]; ok {
		return fmt.Errorf("%w: %s in %s is both %s (%s) and %s (%s)",
			ErrAmbiguousBinding, b.Name, s.class.Name(), prev.Kind, prev.Owner, b.Kind, b.Owner)
	}
	s.bindings[b.Name] = b
	return nil
}

// Class returns the class the scope was built for.
func (s *MemberScope) Class() *model.Class { return s.class }

// Lookup resolves a member, then a global.
func (s *MemberScope) Lookup(name string) (Binding, bool) {
	if b, ok := s.bindings[name]; ok {
		return b, true
	}
	return s.globals.Lookup(name)
}

// ---------------------------------------------------------------------------
// Reserved scope
// ---------------------------------------------------------------------------

// ReservedScope binds the pseudo-variables of one side.
type ReservedScope struct {
	receiver Receiver
	bindings map[string]Binding
}

// ReservedForInstanceMethod returns the reserved scope of instance-side
// methods: self and super denote the receiving instance.
func ReservedForInstanceMethod() *ReservedScope {
	return newReserved(InstanceReceiver)
}

// ReservedForClassMethod returns the reserved scope of class-side methods:
// self and super denote the class object.
func ReservedForClassMethod() *ReservedScope {
	return newReserved(ClassReceiver)
}

func newReserved(receiver Receiver) *ReservedScope {
	r := &ReservedScope{receiver: receiver, bindings: make(map[string]Binding)}
	for name, p := range map[string]Pseudo{
		"self":        Self,
		"super":       Super,
		"thisContext": ThisContext,
		"nil":         Nil,
		"true":        True,
		"false":       False,
	} {
		b := Binding{Name: name, Kind: Reserved, Index: -1, ReadOnly: true, Pseudo: p}
		if p == Self || p == Super {
			b.Receiver = receiver
		}
		r.bindings[name] = b
	}
	return r
}

// Receiver returns what self denotes in this scope.
func (r *ReservedScope) Receiver() Receiver { return r.receiver }

// Lookup resolves a pseudo-variable.
func (r *ReservedScope) Lookup(name string) (Binding, bool) {
	b, ok := r.bindings[name]
	return b, ok
}
