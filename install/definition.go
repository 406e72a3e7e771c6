// Package install installs parsed class definitions: it wraps every method
// in a definition carrying its two source services, validates it, attaches
// metadata annotations and drives native code generation. Problems are
// reported to an installer Context in translated source coordinates.
package install

import (
	"errors"
	"reflect"

	"github.com/chazu/talc/model"
	"github.com/chazu/talc/source"
)

// ErrNullArgument matches every *NullArgumentError.
var ErrNullArgument = errors.New("null argument")

// NullArgumentError reports a missing required collaborator.
type NullArgumentError struct {
	Param string
}

func (e *NullArgumentError) Error() string {
	return "null argument: " + e.Param
}

func (e *NullArgumentError) Is(target error) bool {
	return target == ErrNullArgument
}

// Annotation is key/value metadata attached to an installed artifact.
type Annotation struct {
	Key   string
	Value string
}

// Context receives what an installation produces.
type Context interface {
	AnnotateObject(artifact any, annotations []Annotation)
	ReportError(ref source.Reference, message string)
}

// CodeBasedDefinition owns a compiled artifact together with the service
// translating definition-level positions and the one translating positions
// inside the artifact's own body.
type CodeBasedDefinition[T any] struct {
	sourceService       source.Service
	methodSourceService source.Service
	code                T
	annotations         []Annotation
}

// NewCodeBasedDefinition creates a definition. All three arguments are
// required.
func NewCodeBasedDefinition[T any](sourceService, methodSourceService source.Service, code T) (*CodeBasedDefinition[T], error) {
	switch {
	case isNil(sourceService):
		return nil, &NullArgumentError{Param: "sourceService"}
	case isNil(methodSourceService):
		return nil, &NullArgumentError{Param: "methodSourceService"}
	case isNil(code):
		return nil, &NullArgumentError{Param: "code"}
	}
	return &CodeBasedDefinition[T]{
		sourceService:       sourceService,
		methodSourceService: methodSourceService,
		code:                code,
	}, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func (d *CodeBasedDefinition[T]) SourceService() source.Service       { return d.sourceService }
func (d *CodeBasedDefinition[T]) MethodSourceService() source.Service { return d.methodSourceService }
func (d *CodeBasedDefinition[T]) Code() T                             { return d.code }

// Annotate adds an annotation. A key annotated twice keeps the last value.
func (d *CodeBasedDefinition[T]) Annotate(key, value string) {
	for i, a := range d.annotations {
		if a.Key == key {
			d.annotations[i].Value = value
			return
		}
	}
	d.annotations = append(d.annotations, Annotation{Key: key, Value: value})
}

// Annotations returns a copy of the annotations added so far.
func (d *CodeBasedDefinition[T]) Annotations() []Annotation {
	return append([]Annotation(nil), d.annotations...)
}

// AnnotateObject hands the whole annotation set to ctx in one call. Without
// annotations ctx is not called.
func (d *CodeBasedDefinition[T]) AnnotateObject(ctx Context) error {
	if isNil(ctx) {
		return &NullArgumentError{Param: "ctx"}
	}
	if len(d.annotations) == 0 {
		return nil
	}
	ctx.AnnotateObject(d.code, d.Annotations())
	return nil
}

// ValidationErrorSink returns the sink reporting problems found inside the
// artifact's body to ctx.
func (d *CodeBasedDefinition[T]) ValidationErrorSink(ctx Context) (*ValidationErrorSink, error) {
	if isNil(ctx) {
		return nil, &NullArgumentError{Param: "ctx"}
	}
	return &ValidationErrorSink{service: d.methodSourceService, ctx: ctx}, nil
}

// ValidationErrorSink converts method-body diagnostics into installer
// errors. Every call is one problem.
type ValidationErrorSink struct {
	service source.Service
	ctx     Context
	count   int
}

// ReportError reports message at the span start..stop, given in method-body
// coordinates.
func (s *ValidationErrorSink) ReportError(message string, start, stop source.Position) {
	s.count++
	s.ctx.ReportError(source.NewReference(start, stop, s.service), message)
}

// Count returns how many errors went through the sink.
func (s *ValidationErrorSink) Count() int { return s.count }

// MethodDefinition is the definition of one method of a class side.
type MethodDefinition struct {
	*CodeBasedDefinition[*model.MethodRecord]
	Class string
	Side  model.Side
}

// NewMethodDefinition creates the definition of rec, a method of class on
// side. doc translates the enclosing definition text; the method-body
// service is derived from it and the record's origin.
func NewMethodDefinition(doc source.Service, class string, side model.Side, rec *model.MethodRecord) (*MethodDefinition, error) {
	if rec == nil {
		return nil, &NullArgumentError{Param: "code"}
	}
	var body source.Service
	if !isNil(doc) {
		body = source.NewOffsetService(doc, rec.Origin)
	}
	d, err := NewCodeBasedDefinition(doc, body, rec)
	if err != nil {
		return nil, err
	}
	return &MethodDefinition{CodeBasedDefinition: d, Class: class, Side: side}, nil
}

// Selector returns the selector of the method.
func (d *MethodDefinition) Selector() string { return d.Code().Selector }

// Contains reports whether offset, in definition coordinates, falls inside
// the method's text.
func (d *MethodDefinition) Contains(offset int) bool {
	rec := d.Code()
	if rec.Tree == nil {
		return false
	}
	return offset >= rec.Origin.Offset && offset < rec.Origin.Offset+len(rec.Tree.Source)
}
