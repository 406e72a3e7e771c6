package lower

import "github.com/chazu/talc/compiler"

// SequencePoint maps a position of the lowered code back to the method body.
type SequencePoint struct {
	Span  compiler.Span
	Label string
}

// DebugInfoService receives the sequence points of a method as it is
// lowered. A nil service disables debug information.
type DebugInfoService interface {
	SequencePoint(m *Method, p SequencePoint)
}

// RecordDebugInfo stores sequence points on the method itself.
type RecordDebugInfo struct{}

func (RecordDebugInfo) SequencePoint(m *Method, p SequencePoint) {
	m.Debug = append(m.Debug, p)
}
