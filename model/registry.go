package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/talc/compiler"
)

var (
	ErrDuplicateClass    = errors.New("class already defined")
	ErrUnknownSuperclass = errors.New("unknown superclass")
	ErrUnknownPool       = errors.New("unknown pool dictionary")
)

// Registry manages classes and pools by name. It's safe for concurrent
// access.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
	order   []string
	pools   map[string]*Pool
}

// NewRegistry creates a registry holding an empty root class for each of
// roots.
func NewRegistry(roots ...string) *Registry {
	r := &Registry{
		classes: make(map[string]*Class),
		pools:   make(map[string]*Pool),
	}
	for _, name := range roots {
		r.classes[name] = NewClass(name, nil)
		r.order = append(r.order, name)
	}
	return r
}

// Define adds a class.
func (r *Registry) Define(c *Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[c.Name()]; ok {
		return fmt.Errorf("%s: %w", c.Name(), ErrDuplicateClass)
	}
	r.classes[c.Name()] = c
	r.order = append(r.order, c.Name())
	return nil
}

// DefinePool adds or replaces a pool dictionary.
func (r *Registry) DefinePool(p *Pool) {
	r.mu.Lock()
	r.pools[p.Name()] = p
	r.mu.Unlock()
}

// Lookup finds a class by name.
func (r *Registry) Lookup(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Pool finds a pool by name.
func (r *Registry) Pool(name string) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// Classes returns all classes in definition order.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Class, len(r.order))
	for i, name := range r.order {
		out[i] = r.classes[name]
	}
	return out
}

// Names returns every class and pool name, sorted. These are the globals a
// method can refer to.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes)+len(r.pools))
	for name := range r.classes {
		names = append(names, name)
	}
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FreezeAll freezes every class.
func (r *Registry) FreezeAll() {
	for _, c := range r.Classes() {
		c.Freeze()
	}
}

// FromSourceFile defines a class for each class definition in sf and returns
// them in file order. Superclasses must be defined earlier in the file or
// already be registered. Definitions that fail are reported in the joined
// error and left out of the result.
func (r *Registry) FromSourceFile(sf *compiler.SourceFile) ([]*Class, error) {
	var defined []*Class
	var errs []error
	for _, def := range sf.Classes {
		c, err := r.FromClassDef(def)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defined = append(defined, c)
	}
	return defined, errors.Join(errs...)
}

// FromClassDef defines the class described by def.
func (r *Registry) FromClassDef(def *compiler.ClassDef) (*Class, error) {
	var super *Class
	if def.Superclass != "nil" {
		var ok bool
		if super, ok = r.Lookup(def.Superclass); !ok {
			return nil, fmt.Errorf("%s: %w %s", def.Name, ErrUnknownSuperclass, def.Superclass)
		}
	}

	c := NewClass(def.Name, super)
	c.category = def.Category
	c.instVars = append(c.instVars, def.InstanceVariables...)
	c.classVars = append(c.classVars, def.ClassVariables...)
	c.classInstVars = append(c.classInstVars, def.ClassInstanceVariables...)
	for _, name := range def.PoolDictionaries {
		p, ok := r.Pool(name)
		if !ok {
			return nil, fmt.Errorf("%s: %w %s", def.Name, ErrUnknownPool, name)
		}
		c.pools = append(c.pools, p)
	}
	for _, m := range def.Methods {
		c.methods[InstanceSide].put(NewMethodRecord(m, def.Category))
	}
	for _, m := range def.ClassMethods {
		c.methods[ClassSide].put(NewMethodRecord(m, def.Category))
	}

	if err := r.Define(c); err != nil {
		return nil, err
	}
	return c, nil
}
