package lower

import (
	"fmt"
	"strconv"
	"strings"
)

// LiteralKind identifies the type of a literal value.
type LiteralKind int

const (
	IntLiteral LiteralKind = iota
	FloatLiteral
	StringLiteral
	SymbolLiteral
	CharLiteral
	NilLiteral
	TrueLiteral
	FalseLiteral
	ArrayLiteral
)

// Literal is a compile-time constant.
type Literal struct {
	Kind     LiteralKind
	Int      int64
	Float    float64
	Str      string // string and symbol text
	Char     rune
	Elements []Literal
}

// Key returns a string that is equal for equal literals, used to
// deduplicate literal pools.
func (l Literal) Key() string {
	var sb strings.Builder
	l.writeKey(&sb)
	return sb.String()
}

func (l Literal) writeKey(sb *strings.Builder) {
	sb.WriteString(strconv.Itoa(int(l.Kind)))
	sb.WriteByte(':')
	switch l.Kind {
	case IntLiteral:
		sb.WriteString(strconv.FormatInt(l.Int, 10))
	case FloatLiteral:
		sb.WriteString(strconv.FormatFloat(l.Float, 'g', -1, 64))
	case StringLiteral, SymbolLiteral:
		sb.WriteString(strconv.Quote(l.Str))
	case CharLiteral:
		sb.WriteString(strconv.QuoteRune(l.Char))
	case ArrayLiteral:
		sb.WriteByte('(')
		for i, e := range l.Elements {
			if i > 0 {
				sb.WriteByte(' ')
			}
			e.writeKey(sb)
		}
		sb.WriteByte(')')
	}
}

// String prints the literal in source syntax.
func (l Literal) String() string {
	switch l.Kind {
	case IntLiteral:
		return strconv.FormatInt(l.Int, 10)
	case FloatLiteral:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case StringLiteral:
		return "'" + strings.ReplaceAll(l.Str, "'", "''") + "'"
	case SymbolLiteral:
		return "#" + l.Str
	case CharLiteral:
		return "$" + string(l.Char)
	case NilLiteral:
		return "nil"
	case TrueLiteral:
		return "true"
	case FalseLiteral:
		return "false"
	case ArrayLiteral:
		parts := make([]string, len(l.Elements))
		for i, e := range l.Elements {
			parts[i] = e.String()
		}
		return "#(" + strings.Join(parts, " ") + ")"
	}
	return fmt.Sprintf("Literal(%d)", int(l.Kind))
}
