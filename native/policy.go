package native

import "github.com/chazu/talc/model"

// Policy decides which classes are generated.
type Policy interface {
	Generate(cls *model.Class) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(cls *model.Class) bool

func (f PolicyFunc) Generate(cls *model.Class) bool { return f(cls) }

// GenerateAll generates every class.
var GenerateAll Policy = PolicyFunc(func(*model.Class) bool { return true })

// ExcludeNames generates every class except the named ones.
func ExcludeNames(names ...string) Policy {
	if len(names) == 0 {
		return GenerateAll
	}
	deny := make(map[string]bool, len(names))
	for _, n := range names {
		deny[n] = true
	}
	return PolicyFunc(func(cls *model.Class) bool { return !deny[cls.Name()] })
}
