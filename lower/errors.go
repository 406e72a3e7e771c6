package lower

import (
	"errors"
	"fmt"

	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/scope"
)

var (
	ErrUnboundIdentifier = scope.ErrUnboundIdentifier
	ErrAmbiguousBinding  = scope.ErrAmbiguousBinding
	ErrArityMismatch     = errors.New("arity mismatch")
	ErrMalformedNode     = errors.New("malformed node")
	ErrReadOnlyBinding   = errors.New("cannot assign to read-only binding")
)

// Error is a lowering failure. Span is in method-body coordinates.
type Error struct {
	Selector string
	Span     compiler.Span
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d:%d): %v", e.Selector, e.Span.Start.Line, e.Span.Start.Column, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
