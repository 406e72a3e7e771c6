package model

import "sort"

// Pool is a named dictionary of constants shared by the classes that import
// it. Values are int64, float64, string or bool.
type Pool struct {
	name   string
	values map[string]any
}

// NewPool creates a pool from a name and its bindings.
func NewPool(name string, values map[string]any) *Pool {
	p := &Pool{name: name, values: make(map[string]any, len(values))}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

// Name returns the pool name.
func (p *Pool) Name() string { return p.name }

// Names returns the bound names, sorted.
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.values))
	for k := range p.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the pool binds name.
func (p *Pool) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Value returns the value bound to name.
func (p *Pool) Value(name string) (any, bool) {
	v, ok := p.values[name]
	return v, ok
}
