package native

import (
	"go/token"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/talc/model"
)

var binaryCharNames = map[rune]string{
	'+':  "Plus",
	'-':  "Minus",
	'*':  "Star",
	'/':  "Slash",
	'\\': "Backslash",
	'<':  "LT",
	'>':  "GT",
	'=':  "EQ",
	'~':  "Tilde",
	'@':  "At",
	'%':  "Percent",
	'|':  "Bar",
	'&':  "Amp",
	'?':  "Query",
	'!':  "Bang",
	',':  "Comma",
}

// SanitizeSelector turns a selector into a legal identifier. Keyword parts
// are joined in camel case (at:put: becomes atPut), binary characters are
// spelled out (-> becomes MinusGT) and Go keywords get a trailing
// underscore. Distinct selectors may sanitize to the same name; NameTable
// resolves those collisions.
func SanitizeSelector(selector string) string {
	var sb strings.Builder
	upper := false
	for _, ch := range selector {
		switch {
		case ch == ':':
			upper = sb.Len() > 0
		case binaryCharNames[ch] != "":
			sb.WriteString(binaryCharNames[ch])
		case ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch):
			if upper {
				ch = unicode.ToUpper(ch)
				upper = false
			}
			sb.WriteRune(ch)
		}
	}

	name := sb.String()
	switch {
	case name == "":
		return "method"
	case unicode.IsDigit([]rune(name)[0]):
		return "m" + name
	case token.IsKeyword(name):
		return name + "_"
	}
	return name
}

// NameTable assigns collision-free native names for one class side. It is
// owned by a single generation pass and is not safe for concurrent use.
type NameTable struct {
	entries map[string]*model.MethodRecord
	order   []string
	next    map[string]int // next suffix to try per candidate
}

// NewNameTable creates an empty table.
func NewNameTable() *NameTable {
	return &NameTable{
		entries: make(map[string]*model.MethodRecord),
		next:    make(map[string]int),
	}
}

// Assign records rec under candidate, or under candidate followed by the
// smallest unused numeric suffix: name, name1, name2, ...
func (t *NameTable) Assign(candidate string, rec *model.MethodRecord) string {
	n := t.next[candidate]
	name := candidate
	if n > 0 {
		name = candidate + strconv.Itoa(n)
	}
	for {
		if _, taken := t.entries[name]; !taken {
			break
		}
		n++
		name = candidate + strconv.Itoa(n)
	}
	t.next[candidate] = n + 1
	t.entries[name] = rec
	t.order = append(t.order, name)
	return name
}

// Lookup returns the record assigned to name.
func (t *NameTable) Lookup(name string) (*model.MethodRecord, bool) {
	rec, ok := t.entries[name]
	return rec, ok
}

// Len returns the number of assigned names.
func (t *NameTable) Len() int {
	return len(t.order)
}

// Names returns the assigned names in assignment order.
func (t *NameTable) Names() []string {
	return append([]string(nil), t.order...)
}
