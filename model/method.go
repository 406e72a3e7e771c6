// Package model holds the class descriptors the compilation pipeline reads:
// classes, their two method sets, and pool dictionaries. Classes are built
// by the installer and frozen before any generation pass starts.
package model

import (
	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/source"
)

// Side selects the instance-side or class-side half of a class.
type Side int

const (
	InstanceSide Side = iota
	ClassSide
)

// Sides lists both sides in generation order.
var Sides = [...]Side{InstanceSide, ClassSide}

func (s Side) String() string {
	switch s {
	case InstanceSide:
		return "instance"
	case ClassSide:
		return "class"
	}
	return "unknown"
}

// MethodRecord is one method of a method set. Tree spans are in method-body
// coordinates; Origin locates the body in the definition text.
type MethodRecord struct {
	Selector string
	Category string
	Tree     *compiler.MethodDef
	Origin   source.Position
}

// NewMethodRecord creates a record from a parsed method.
func NewMethodRecord(tree *compiler.MethodDef, category string) *MethodRecord {
	return &MethodRecord{
		Selector: tree.Selector,
		Category: category,
		Tree:     tree,
		Origin:   tree.Origin,
	}
}

// MethodSet maps selectors to method records and remembers insertion order,
// which is the iteration order used for native naming.
type MethodSet struct {
	order   []string
	records map[string]*MethodRecord
}

// NewMethodSet creates an empty method set.
func NewMethodSet() *MethodSet {
	return &MethodSet{records: make(map[string]*MethodRecord)}
}

// put stores rec. A selector that is already present keeps its position and
// takes the new record.
func (s *MethodSet) put(rec *MethodRecord) {
	if _, ok := s.records[rec.Selector]; !ok {
		s.order = append(s.order, rec.Selector)
	}
	s.records[rec.Selector] = rec
}

// Lookup returns the record for selector.
func (s *MethodSet) Lookup(selector string) (*MethodRecord, bool) {
	rec, ok := s.records[selector]
	return rec, ok
}

// Len returns the number of methods.
func (s *MethodSet) Len() int {
	return len(s.order)
}

// Selectors returns the selectors in insertion order.
func (s *MethodSet) Selectors() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Records returns the records in insertion order.
func (s *MethodSet) Records() []*MethodRecord {
	out := make([]*MethodRecord, len(s.order))
	for i, sel := range s.order {
		out[i] = s.records[sel]
	}
	return out
}
