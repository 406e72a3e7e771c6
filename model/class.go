package model

import (
	"errors"
	"fmt"
	"sync"
)

// ErrFrozen is returned by mutators of a frozen class.
var ErrFrozen = errors.New("class is frozen")

// ---------------------------------------------------------------------------
// Class
// ---------------------------------------------------------------------------

// Class describes a class: its layout, its pools and both method sets.
// Mutators fail with ErrFrozen once Freeze has been called; readers need no
// locking after that point.
type Class struct {
	mu sync.RWMutex

	name          string
	superclass    *Class
	category      string
	instVars      []string
	classVars     []string
	classInstVars []string
	pools         []*Pool
	methods       [2]*MethodSet
	frozen        bool
}

// NewClass creates a class with the given name and superclass (nil for a
// root class).
func NewClass(name string, superclass *Class) *Class {
	return &Class{
		name:       name,
		superclass: superclass,
		methods:    [2]*MethodSet{NewMethodSet(), NewMethodSet()},
	}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Superclass returns the superclass, or nil for a root class.
func (c *Class) Superclass() *Class { return c.superclass }

// Category returns the class category.
func (c *Class) Category() string { return c.category }

// String implements the Stringer interface.
func (c *Class) String() string { return c.name }

// Methods returns the method set of a side.
func (c *Class) Methods(side Side) *MethodSet {
	return c.methods[side]
}

// Freeze makes the class immutable.
func (c *Class) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (c *Class) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

func (c *Class) mutate(fn func()) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("%s: %w", c.name, ErrFrozen)
	}
	fn()
	return nil
}

// SetCategory sets the class category.
func (c *Class) SetCategory(category string) error {
	return c.mutate(func() { c.category = category })
}

// AddInstVarNames appends instance variables.
func (c *Class) AddInstVarNames(names ...string) error {
	return c.mutate(func() { c.instVars = append(c.instVars, names...) })
}

// AddClassVarNames appends class variables.
func (c *Class) AddClassVarNames(names ...string) error {
	return c.mutate(func() { c.classVars = append(c.classVars, names...) })
}

// AddClassInstVarNames appends class-instance variables.
func (c *Class) AddClassInstVarNames(names ...string) error {
	return c.mutate(func() { c.classInstVars = append(c.classInstVars, names...) })
}

// AddPool makes a pool dictionary visible to the class's methods.
func (c *Class) AddPool(p *Pool) error {
	return c.mutate(func() { c.pools = append(c.pools, p) })
}

// AddMethod adds rec to the method set of side. A method with the same
// selector is replaced.
func (c *Class) AddMethod(side Side, rec *MethodRecord) error {
	return c.mutate(func() { c.methods[side].put(rec) })
}

// InstVarNames returns the instance variables defined by this class only.
func (c *Class) InstVarNames() []string { return append([]string(nil), c.instVars...) }

// ClassVarNames returns the class variables defined by this class only.
func (c *Class) ClassVarNames() []string { return append([]string(nil), c.classVars...) }

// ClassInstVarNames returns the class-instance variables defined by this
// class only.
func (c *Class) ClassInstVarNames() []string { return append([]string(nil), c.classInstVars...) }

// Pools returns the pools imported by this class only.
func (c *Class) Pools() []*Pool { return append([]*Pool(nil), c.pools...) }

// ---------------------------------------------------------------------------
// Hierarchy helpers
// ---------------------------------------------------------------------------

// AllInstVarNames returns instance variables in slot order, inherited ones
// first.
func (c *Class) AllInstVarNames() []string {
	if c.superclass == nil {
		return c.InstVarNames()
	}
	return append(c.superclass.AllInstVarNames(), c.instVars...)
}

// AllClassInstVarNames returns class-instance variables in slot order,
// inherited ones first.
func (c *Class) AllClassInstVarNames() []string {
	if c.superclass == nil {
		return c.ClassInstVarNames()
	}
	return append(c.superclass.AllClassInstVarNames(), c.classInstVars...)
}

// AllClassVarNames returns class variables visible to the class, inherited
// ones first. Duplicates are kept; resolving them is the scope's job.
func (c *Class) AllClassVarNames() []string {
	if c.superclass == nil {
		return c.ClassVarNames()
	}
	return append(c.superclass.AllClassVarNames(), c.classVars...)
}

// ClassVarOwner returns the nearest class in the chain defining name.
func (c *Class) ClassVarOwner(name string) *Class {
	for current := c; current != nil; current = current.superclass {
		for _, n := range current.classVars {
			if n == name {
				return current
			}
		}
	}
	return nil
}

// Superclasses returns all superclasses from immediate parent to root.
func (c *Class) Superclasses() []*Class {
	var result []*Class
	for current := c.superclass; current != nil; current = current.superclass {
		result = append(result, current)
	}
	return result
}

// IsSubclassOf returns true if c is other or inherits from it.
func (c *Class) IsSubclassOf(other *Class) bool {
	for current := c; current != nil; current = current.superclass {
		if current == other {
			return true
		}
	}
	return false
}
