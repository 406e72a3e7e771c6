// Package source maps positions in compiled code back to the text they came from.
//
// Two coordinate spaces exist for every method: the definition text that
// encloses it (a whole .mag file) and the method body itself, whose offsets
// start at zero at the method's first token. A Service translates positions
// of one space into display locations; services are never shared across
// spaces.
package source

import "fmt"

// Position represents a location in some source text.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// MakeSpan creates a span from start and end positions.
func MakeSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// Rebase converts a position that is relative to origin into the coordinate
// space origin itself lives in.
func Rebase(origin, rel Position) Position {
	line := rel.Line
	if line < 1 {
		line = 1
	}
	p := Position{
		Offset: origin.Offset + rel.Offset,
		Line:   origin.Line + line - 1,
		Column: rel.Column,
	}
	if line == 1 {
		p.Column = origin.Column + rel.Column - 1
	}
	return p
}

// Location is a human-facing source location.
type Location struct {
	Name        string
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

func (l Location) String() string {
	name := l.Name
	if name == "" {
		name = "<input>"
	}
	if l.StartLine == l.EndLine && l.StartColumn == l.EndColumn {
		return fmt.Sprintf("%s:%d:%d", name, l.StartLine, l.StartColumn)
	}
	return fmt.Sprintf("%s:%d:%d-%d:%d", name, l.StartLine, l.StartColumn, l.EndLine, l.EndColumn)
}

// Service translates a start/stop position pair into a display location.
type Service interface {
	Translate(start, stop Position) Location
}

// Reference is a span tied to the service that can translate it.
type Reference struct {
	Start   Position
	Stop    Position
	Service Service
}

// NewReference creates a reference. The service must not be nil.
func NewReference(start, stop Position, svc Service) Reference {
	return Reference{Start: start, Stop: stop, Service: svc}
}

// Location translates the reference. A reference without a service yields
// the raw line/column values it carries.
func (r Reference) Location() Location {
	if r.Service == nil {
		return Location{
			StartLine:   r.Start.Line,
			StartColumn: r.Start.Column,
			EndLine:     r.Stop.Line,
			EndColumn:   r.Stop.Column,
		}
	}
	return r.Service.Translate(r.Start, r.Stop)
}

func (r Reference) String() string {
	return r.Location().String()
}
