package store

import (
	"slices"

	"github.com/zeebo/xxh3"

	"github.com/chazu/talc/model"
)

// Fingerprint hashes what a pass over a side of cls depends on: the member
// layout visible to the side, the pools imported along the superclass
// chain, the global names the methods were lowered against and the source
// of each method, in method-set order. The order of globals does not
// matter.
func Fingerprint(cls *model.Class, side model.Side, globals []string) uint64 {
	h := xxh3.New()
	write := func(parts ...string) {
		for _, s := range parts {
			h.WriteString(s)
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}

	write(cls.Name(), side.String())
	if super := cls.Superclass(); super != nil {
		write(super.Name())
	}
	if side == model.ClassSide {
		write(cls.AllClassInstVarNames()...)
	} else {
		write(cls.AllInstVarNames()...)
	}
	write(cls.AllClassVarNames()...)
	for c := cls; c != nil; c = c.Superclass() {
		for _, p := range c.Pools() {
			write(c.Name(), p.Name())
			write(p.Names()...)
		}
	}

	names := slices.Clone(globals)
	slices.Sort(names)
	write(slices.Compact(names)...)

	for _, rec := range cls.Methods(side).Records() {
		src := rec.Selector
		if rec.Tree != nil {
			src = rec.Tree.Source
		}
		write(rec.Selector, src)
	}
	return h.Sum64()
}
