package scope

import "fmt"

type frame struct {
	depth int
	names map[string]Binding
	order []string
}

// Chain is the lexical environment of one method body: a stack of local
// frames over the reserved and member scopes. It is built per lowering call
// and never shared.
type Chain struct {
	frames   []*frame
	reserved *ReservedScope
	members  *MemberScope
}

// NewChain creates a chain with no local frames.
func NewChain(reserved *ReservedScope, members *MemberScope) *Chain {
	return &Chain{reserved: reserved, members: members}
}

// Reserved returns the reserved scope of the chain.
func (c *Chain) Reserved() *ReservedScope { return c.reserved }

// Push opens a frame binding arguments (read-only) then temporaries. The
// first frame is the method frame; later ones are blocks.
func (c *Chain) Push(args, temps []string) error {
	f := &frame{depth: len(c.frames), names: make(map[string]Binding)}
	add := func(name string, kind Kind) error {
		if _, ok := f.names[name]; ok {
			return fmt.Errorf("%w: %s declared twice", ErrAmbiguousBinding, name)
		}
		if _, ok := c.reserved.Lookup(name); ok {
			return fmt.Errorf("%w: %s shadows a pseudo-variable", ErrAmbiguousBinding, name)
		}
		f.names[name] = Binding{
			Name:     name,
			Kind:     kind,
			Index:    len(f.order),
			ReadOnly: kind == Argument,
			Depth:    f.depth,
		}
		f.order = append(f.order, name)
		return nil
	}
	for _, a := range args {
		if err := add(a, Argument); err != nil {
			return err
		}
	}
	for _, t := range temps {
		if err := add(t, Temporary); err != nil {
			return err
		}
	}
	c.frames = append(c.frames, f)
	return nil
}

// Pop closes the innermost frame.
func (c *Chain) Pop() {
	c.frames = c.frames[:len(c.frames)-1]
}

// Depth returns the depth of the innermost frame, -1 when none is open.
func (c *Chain) Depth() int {
	return len(c.frames) - 1
}

// FrameSize returns the number of slots of the innermost frame.
func (c *Chain) FrameSize() int {
	if len(c.frames) == 0 {
		return 0
	}
	return len(c.frames[len(c.frames)-1].order)
}

// Resolve looks name up: local frames innermost first, then the reserved
// scope, then members and globals.
func (c *Chain) Resolve(name string) (Binding, error) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if b, ok := c.frames[i].names[name]; ok {
			return b, nil
		}
	}
	if b, ok := c.reserved.Lookup(name); ok {
		return b, nil
	}
	if b, ok := c.members.Lookup(name); ok {
		return b, nil
	}
	return Binding{}, fmt.Errorf("%w: %s", ErrUnboundIdentifier, name)
}
