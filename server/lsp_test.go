package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const counterDoc = `Counter subclass: Object
  instanceVars: count
  category: 'Demo'
  method: increment [ count := count + 1 ]
  method: doIt [ ^1 ]
  method: doIt: x [ ^x ]
  method: broken [ ^missing ]
  classMethod: new [ ^super new ]
`

func newTestServer() *LspServer {
	return NewLSP(Options{Globals: []string{"Transcript"}})
}

func pos(line, char int) protocol.Position {
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(char)}
}

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"Object new", pos(0, 10), "new"},
		{"Obj", pos(0, 3), "Obj"},
		{"", pos(0, 0), ""},
		{"first line\nsecond line\nObj", pos(2, 3), "Obj"},
		{"obj at:put:", pos(0, 11), "at:put:"},
		{"hello", pos(0, 0), ""},
		{"single line", pos(5, 0), ""},
	}
	for _, tc := range tests {
		if got := extractPrefix(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractPrefix(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		text string
		pos  protocol.Position
		want string
	}{
		{"hello world", pos(0, 3), "hello"},
		{"hello world", pos(0, 5), "hello"},
		{"hello world", pos(0, 8), "world"},
		{"", pos(0, 0), ""},
		{"first\nsecond_one", pos(1, 2), "second_one"},
		{"single line", pos(5, 0), ""},
	}
	for _, tc := range tests {
		if got := extractWord(tc.text, tc.pos); got != tc.want {
			t.Errorf("extractWord(%q, %v) = %q, want %q", tc.text, tc.pos, got, tc.want)
		}
	}
}

func TestOffsetAt(t *testing.T) {
	text := "ab\ncdef\ng"
	tests := []struct {
		pos  protocol.Position
		want int
	}{
		{pos(0, 0), 0},
		{pos(1, 2), 5},
		{pos(1, 99), 7},
		{pos(2, 0), 8},
		{pos(9, 0), len(text)},
	}
	for _, tc := range tests {
		if got := offsetAt(text, tc.pos); got != tc.want {
			t.Errorf("offsetAt(%v) = %d, want %d", tc.pos, got, tc.want)
		}
	}
}

func TestLSP_Diagnostics(t *testing.T) {
	s := newTestServer()
	doc := s.update("file:///counter.mag", counterDoc)

	diags := diagnostics(doc)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1: %v", len(diags), diags)
	}
	d := diags[0]
	// "missing" on the seventh line, zero-based
	if d.Range.Start.Line != 6 {
		t.Errorf("diagnostic on line %d, want 6", d.Range.Start.Line)
	}
	line := strings.Split(counterDoc, "\n")[6]
	if got := line[d.Range.Start.Character:d.Range.End.Character]; got != "missing" {
		t.Errorf("diagnostic covers %q, want missing", got)
	}
	if !strings.Contains(d.Message, "missing") {
		t.Errorf("message = %q", d.Message)
	}
}

func TestLSP_DiagnosticsClean(t *testing.T) {
	s := newTestServer()
	doc := s.update("file:///ok.mag", "Point subclass: Object\n  instanceVars: x y\n  method: x [ ^x ]\n")
	if diags := diagnostics(doc); len(diags) != 0 {
		t.Errorf("got %v, want no diagnostics", diags)
	}
}

func TestLSP_Hover_NativeName(t *testing.T) {
	text := "Counter subclass: Object\n  method: doIt [ ^1 ]\n  method: doIt: x [ ^x ]\n"
	s := newTestServer()
	doc := s.update("file:///counter.mag", text)

	hover := s.hover(doc, pos(2, 20))
	if hover == nil {
		t.Fatal("no hover inside doIt:")
	}
	value := hover.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(value, "**Counter>>doIt:**") || !strings.Contains(value, "`doIt1`") {
		t.Errorf("hover = %q", value)
	}
}

func TestLSP_Hover_ClassName(t *testing.T) {
	s := newTestServer()
	doc := s.update("file:///counter.mag", counterDoc)

	hover := s.hover(doc, pos(0, 3))
	if hover == nil {
		t.Fatal("no hover on the class name")
	}
	value := hover.Contents.(protocol.MarkupContent).Value
	for _, want := range []string{"**Counter** < Object", "Instance variables: `count`", "4 instance methods, 1 class methods", "aborted"} {
		if !strings.Contains(value, want) {
			t.Errorf("hover lacks %q:\n%s", want, value)
		}
	}
}

func TestLSP_Hover_OutsideMethods(t *testing.T) {
	s := newTestServer()
	doc := s.update("file:///counter.mag", counterDoc)
	if hover := s.hover(doc, pos(1, 1)); hover != nil {
		t.Errorf("hover = %v, want nil", hover)
	}
}

func TestLSP_Complete(t *testing.T) {
	s := newTestServer()
	doc := s.update("file:///counter.mag", counterDoc)

	labels := func(prefix string) []string {
		var out []string
		for _, item := range s.complete(doc, prefix) {
			out = append(out, item.Label)
		}
		return out
	}
	if got := strings.Join(labels("do"), " "); got != "doIt doIt:" {
		t.Errorf("complete(do) = %q, want %q", got, "doIt doIt:")
	}
	if got := strings.Join(labels("Co"), " "); got != "Counter" {
		t.Errorf("complete(Co) = %q, want Counter", got)
	}
	if got := strings.Join(labels("Trans"), " "); got != "Transcript" {
		t.Errorf("complete(Trans) = %q, want Transcript", got)
	}
}

func TestLSP_Definition(t *testing.T) {
	s := newTestServer()
	uri := protocol.DocumentUri("file:///counter.mag")
	doc := s.update(string(uri), counterDoc)

	locations := s.definition(doc, uri, "doIt")
	if len(locations) != 2 {
		t.Fatalf("got %d locations, want 2", len(locations))
	}
	if locations[0].Range.Start.Line != 4 || locations[1].Range.Start.Line != 5 {
		t.Errorf("locations start on lines %d and %d, want 4 and 5",
			locations[0].Range.Start.Line, locations[1].Range.Start.Line)
	}
	if locations[0].URI != uri {
		t.Errorf("uri = %s", locations[0].URI)
	}
	if got := s.definition(doc, uri, "nothing"); len(got) != 0 {
		t.Errorf("got %v for an unknown selector", got)
	}
}

func TestLSP_DocumentStore(t *testing.T) {
	s := newTestServer()
	uri := protocol.DocumentUri("file:///a.mag")
	s.update(string(uri), counterDoc)
	doc, ok := s.document(uri)
	if !ok || doc.text != counterDoc {
		t.Fatal("document not stored")
	}
	s.update(string(uri), "")
	if doc, _ := s.document(uri); doc.text != "" {
		t.Error("document not replaced")
	}
}
