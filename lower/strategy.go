package lower

import (
	"fmt"

	"github.com/chazu/talc/compiler"
)

// LiteralEncodingStrategy turns a literal value into the node that produces
// it at run time.
type LiteralEncodingStrategy interface {
	EncodeLiteral(lit Literal, span compiler.Span) (Node, error)
}

// CallSite describes one message send to encode.
type CallSite struct {
	Span     compiler.Span
	Receiver Node
	Selector string
	Args     []Node
	Super    bool
}

// DynamicCallStrategy turns a message send into its call sequence.
type DynamicCallStrategy interface {
	EncodeSend(site CallSite) (Node, error)
}

// ---------------------------------------------------------------------------
// Literal strategies
// ---------------------------------------------------------------------------

// InlineLiterals encodes every literal as a Const.
type InlineLiterals struct{}

func (InlineLiterals) EncodeLiteral(lit Literal, span compiler.Span) (Node, error) {
	return &Const{SpanVal: span, Value: lit}, nil
}

// LiteralPool collects the literals of one class side into a deduplicated,
// indexed table. Constants (nil, true, false) stay inline. Not safe for
// concurrent use.
type LiteralPool struct {
	values []Literal
	index  map[string]int
}

// NewLiteralPool creates an empty pool.
func NewLiteralPool() *LiteralPool {
	return &LiteralPool{index: make(map[string]int)}
}

func (p *LiteralPool) EncodeLiteral(lit Literal, span compiler.Span) (Node, error) {
	switch lit.Kind {
	case NilLiteral, TrueLiteral, FalseLiteral:
		return &Const{SpanVal: span, Value: lit}, nil
	}
	return &LiteralRef{SpanVal: span, Index: p.add(lit), Value: lit}, nil
}

// add adds a literal to the pool, returning its index.
func (p *LiteralPool) add(lit Literal) int {
	key := lit.Key()
	if idx, ok := p.index[key]; ok {
		return idx
	}
	idx := len(p.values)
	p.values = append(p.values, lit)
	p.index[key] = idx
	return idx
}

// Values returns the pooled literals in slot order.
func (p *LiteralPool) Values() []Literal {
	return append([]Literal(nil), p.values...)
}

// ---------------------------------------------------------------------------
// Call strategies
// ---------------------------------------------------------------------------

// DynamicSends encodes every send as a plain Send.
type DynamicSends struct{}

func (DynamicSends) EncodeSend(site CallSite) (Node, error) {
	return &Send{
		SpanVal:  site.Span,
		Receiver: site.Receiver,
		Selector: site.Selector,
		Args:     site.Args,
		Super:    site.Super,
	}, nil
}

// CallSitePool numbers every send of one class side so that the back end
// can attach an inline cache to each. Not safe for concurrent use.
type CallSitePool struct {
	selectors []string
}

// NewCallSitePool creates an empty call-site table.
func NewCallSitePool() *CallSitePool {
	return &CallSitePool{}
}

func (p *CallSitePool) EncodeSend(site CallSite) (Node, error) {
	n := len(p.selectors)
	p.selectors = append(p.selectors, site.Selector)
	return &CachedSend{
		SpanVal:  site.Span,
		Site:     n,
		Receiver: site.Receiver,
		Selector: site.Selector,
		Args:     site.Args,
		Super:    site.Super,
	}, nil
}

// Selectors returns the selector of every call site in site order.
func (p *CallSitePool) Selectors() []string {
	return append([]string(nil), p.selectors...)
}

// ---------------------------------------------------------------------------
// Strategy selection
// ---------------------------------------------------------------------------

// LiteralMode selects a literal encoding strategy.
type LiteralMode int

const (
	InlineLiteralMode LiteralMode = iota
	PooledLiteralMode
)

// ParseLiteralMode parses "inline" or "pool". The empty string is inline.
func ParseLiteralMode(s string) (LiteralMode, error) {
	switch s {
	case "", "inline":
		return InlineLiteralMode, nil
	case "pool":
		return PooledLiteralMode, nil
	}
	return 0, fmt.Errorf("unknown literal encoding %q (want inline or pool)", s)
}

// NewStrategy returns a fresh strategy of this mode.
func (m LiteralMode) NewStrategy() LiteralEncodingStrategy {
	if m == PooledLiteralMode {
		return NewLiteralPool()
	}
	return InlineLiterals{}
}

func (m LiteralMode) String() string {
	if m == PooledLiteralMode {
		return "pool"
	}
	return "inline"
}

// CallMode selects a dynamic call strategy.
type CallMode int

const (
	DynamicCallMode CallMode = iota
	CachedCallMode
)

// ParseCallMode parses "dynamic" or "cached". The empty string is dynamic.
func ParseCallMode(s string) (CallMode, error) {
	switch s {
	case "", "dynamic":
		return DynamicCallMode, nil
	case "cached":
		return CachedCallMode, nil
	}
	return 0, fmt.Errorf("unknown call encoding %q (want dynamic or cached)", s)
}

// NewStrategy returns a fresh strategy of this mode.
func (m CallMode) NewStrategy() DynamicCallStrategy {
	if m == CachedCallMode {
		return NewCallSitePool()
	}
	return DynamicSends{}
}

func (m CallMode) String() string {
	if m == CachedCallMode {
		return "cached"
	}
	return "dynamic"
}
