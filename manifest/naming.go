package manifest

import (
	"go/token"
	"strings"
	"unicode"
)

// PackageName derives a Go package name from a project name.
// "my-app" -> "myapp", "Talc Demo" -> "talcdemo", "" -> "generated"
func PackageName(project string) string {
	var b strings.Builder
	for _, r := range project {
		if r > unicode.MaxASCII {
			continue
		}
		if unicode.IsLetter(r) || (unicode.IsDigit(r) && b.Len() > 0) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	name := b.String()
	switch {
	case name == "":
		return "generated"
	case token.IsKeyword(name):
		return name + "_"
	}
	return name
}
