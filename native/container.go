// Package native generates native routines for whole classes. For each
// class side it assigns collision-free names, lowers every method and emits
// each lowered method into a code container supplied by a backend.
package native

import (
	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
)

// Builder is a method slot reserved in a container.
type Builder interface {
	Name() string
}

// Container holds the generated routines of one class side.
//
// DefineMethod reserves name; Materialize fills the reservation with the
// lowered method. A method whose Materialize fails must not appear in Names.
type Container interface {
	DefineMethod(name string) (Builder, error)
	Materialize(b Builder, m *lower.Method) error
	Names() []string
}

// LiteralDefiner is implemented by containers that accept the literal pool
// of the class side. It is called once, before any method.
type LiteralDefiner interface {
	DefineLiterals(values []lower.Literal) error
}

// CallSiteDefiner is implemented by containers that accept the call-site
// table of the class side. It is called once, before any method.
type CallSiteDefiner interface {
	DefineCallSites(selectors []string) error
}

// Backend creates containers. Containers of distinct class sides must
// accept definitions concurrently.
type Backend interface {
	Container(cls *model.Class, side model.Side) (Container, error)
}
