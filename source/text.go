package source

import (
	"sort"
	"unicode/utf8"
)

// TextService translates byte offsets of a complete document. Line and
// column values carried by incoming positions are ignored and recomputed
// from the offset, so positions produced in another coordinate space cannot
// leak through.
type TextService struct {
	name       string
	text       string
	lineStarts []int
}

// NewTextService indexes text for translation. name is used for display
// (usually a file path).
func NewTextService(name, text string) *TextService {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &TextService{name: name, text: text, lineStarts: starts}
}

// Name returns the display name of the document.
func (s *TextService) Name() string { return s.name }

// Text returns the indexed document.
func (s *TextService) Text() string { return s.text }

// Position resolves an offset into a full position. Offsets outside the
// text are clamped.
func (s *TextService) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(s.text) {
		offset = len(s.text)
	}
	line := sort.Search(len(s.lineStarts), func(i int) bool {
		return s.lineStarts[i] > offset
	}) - 1
	start := s.lineStarts[line]
	return Position{
		Offset: offset,
		Line:   line + 1,
		Column: utf8.RuneCountInString(s.text[start:offset]) + 1,
	}
}

// Translate implements Service.
func (s *TextService) Translate(start, stop Position) Location {
	a := s.Position(start.Offset)
	b := s.Position(stop.Offset)
	if b.Offset < a.Offset {
		b = a
	}
	return Location{
		Name:        s.name,
		StartLine:   a.Line,
		StartColumn: a.Column,
		EndLine:     b.Line,
		EndColumn:   b.Column,
	}
}

// OffsetService translates positions of a method body whose text starts at
// origin inside the parent's coordinate space.
type OffsetService struct {
	parent Service
	origin Position
}

// NewOffsetService creates a method-body service.
func NewOffsetService(parent Service, origin Position) *OffsetService {
	return &OffsetService{parent: parent, origin: origin}
}

// Origin returns where the method body starts in the parent text.
func (s *OffsetService) Origin() Position { return s.origin }

// Translate implements Service.
func (s *OffsetService) Translate(start, stop Position) Location {
	return s.parent.Translate(Rebase(s.origin, start), Rebase(s.origin, stop))
}
