package install

import (
	"context"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
	"github.com/chazu/talc/scope"
	"github.com/chazu/talc/source"
)

// Annotation keys attached to every installed method.
const (
	SelectorKey   = "selector"
	SideKey       = "side"
	CategoryKey   = "category"
	NativeNameKey = "native-name"
)

// Option configures an Installer.
type Option func(*Installer)

// WithGlobals adds names visible to every method besides the classes.
func WithGlobals(names ...string) Option {
	return func(in *Installer) { in.globals = append(in.globals, names...) }
}

// WithBackend makes the installer generate native code into b. Without a
// backend methods are only validated.
func WithBackend(b native.Backend, opts ...native.Option) Option {
	return func(in *Installer) {
		in.backend = b
		in.genOpts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(log commonlog.Logger) Option {
	return func(in *Installer) { in.log = log }
}

// Installer installs definition files into a registry.
type Installer struct {
	registry *model.Registry
	globals  []string
	backend  native.Backend
	genOpts  []native.Option
	log      commonlog.Logger
}

// NewInstaller creates an installer defining classes in reg.
func NewInstaller(reg *model.Registry, opts ...Option) *Installer {
	in := &Installer{
		registry: reg,
		log:      commonlog.GetLogger("talc.install"),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Registry returns the registry classes are defined in.
func (in *Installer) Registry() *model.Registry { return in.registry }

// Result is what one installation produced.
type Result struct {
	Classes     []*model.Class
	Definitions []*MethodDefinition
	Reports     [][2]*native.Report // parallel to Classes; nil without a backend
}

// Class returns the installed class called name.
func (r *Result) Class(name string) (*model.Class, bool) {
	for _, c := range r.Classes {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Definition returns the definition of a method.
func (r *Result) Definition(class string, side model.Side, selector string) (*MethodDefinition, bool) {
	for _, d := range r.Definitions {
		if d.Class == class && d.Side == side && d.Selector() == selector {
			return d, true
		}
	}
	return nil, false
}

// DefinitionAt returns the definition whose text contains offset.
func (r *Result) DefinitionAt(offset int) (*MethodDefinition, bool) {
	for _, d := range r.Definitions {
		if d.Contains(offset) {
			return d, true
		}
	}
	return nil, false
}

// Report returns the generation report of a class side.
func (r *Result) Report(class string, side model.Side) (*native.Report, bool) {
	for i, c := range r.Classes {
		if c.Name() == class && i < len(r.Reports) && r.Reports[i][side] != nil {
			return r.Reports[i][side], true
		}
	}
	return nil, false
}

// Aborted reports whether any generation pass aborted.
func (r *Result) Aborted() bool {
	for _, reports := range r.Reports {
		for _, rep := range reports {
			if rep != nil && rep.Phase == native.PhaseAborted {
				return true
			}
		}
	}
	return false
}

// Install parses text, the definition file called name, defines its classes
// and installs their methods. Problems in the text are reported to ic; the
// returned error is reserved for failures that are not tied to a source
// position.
func (in *Installer) Install(ctx context.Context, ic Context, name, text string) (*Result, error) {
	if isNil(ic) {
		return nil, &NullArgumentError{Param: "ctx"}
	}
	doc := source.NewTextService(name, text)
	result := &Result{}

	p := compiler.NewParser(text)
	sf := p.ParseSourceFile()
	for _, e := range p.Errors() {
		ic.ReportError(source.NewReference(e.Pos, e.Pos, doc), e.Message)
	}
	if stopped(ic) {
		return result, nil
	}

	for _, def := range sf.Classes {
		cls, err := in.registry.FromClassDef(def)
		if err != nil {
			ic.ReportError(source.NewReference(def.SpanVal.Start, def.SpanVal.End, doc), err.Error())
			continue
		}
		reportRedefinitions(ic, doc, def)
		result.Classes = append(result.Classes, cls)
	}

	for _, cls := range result.Classes {
		for _, side := range model.Sides {
			for _, rec := range cls.Methods(side).Records() {
				d, err := NewMethodDefinition(doc, cls.Name(), side, rec)
				if err != nil {
					return result, err
				}
				d.Annotate(SelectorKey, rec.Selector)
				d.Annotate(SideKey, side.String())
				if rec.Category != "" {
					d.Annotate(CategoryKey, rec.Category)
				}
				result.Definitions = append(result.Definitions, d)
			}
		}
	}

	globals := scope.NewNameScope(in.globals...)
	globals.Add(in.registry.Names()...)

	var err error
	if in.backend == nil {
		in.validate(ic, globals, result)
	} else {
		err = in.generate(ctx, ic, globals, result)
	}

	for _, d := range result.Definitions {
		if aerr := d.AnnotateObject(ic); aerr != nil {
			return result, aerr
		}
	}
	in.log.Infof("installed %s: %d classes, %d methods", name, len(result.Classes), len(result.Definitions))
	return result, err
}

func (in *Installer) validate(ic Context, globals *scope.NameScope, result *Result) {
	opts := lower.Options{GlobalNameScope: globals}
	compilers := [2]*lower.Compiler{
		model.InstanceSide: lower.NewInstanceMethodCompiler(opts),
		model.ClassSide:    lower.NewClassMethodCompiler(opts),
	}
	for _, d := range result.Definitions {
		if stopped(ic) {
			return
		}
		sink, err := d.ValidationErrorSink(ic)
		if err != nil {
			return
		}
		cls, _ := result.Class(d.Class)
		compilers[d.Side].Check(d.Code(), cls, sink)
	}
}

func (in *Installer) generate(ctx context.Context, ic Context, globals *scope.NameScope, result *Result) error {
	// Superclasses from earlier installs and the roots are read too.
	in.registry.FreezeAll()
	opts := append(append([]native.Option(nil), in.genOpts...), native.WithGlobals(globals))
	gen := native.New(in.backend, opts...)

	reports, err := gen.GenerateAll(ctx, result.Classes)
	result.Reports = reports

	var other []error
	for _, e := range flatten(err) {
		var lerr *native.LoweringError
		if !errors.As(e, &lerr) {
			other = append(other, e)
			continue
		}
		if stopped(ic) {
			continue
		}
		in.route(ic, globals, result, lerr)
	}

	for _, d := range result.Definitions {
		if rep, ok := result.Report(d.Class, d.Side); ok {
			if name, ok := rep.NameOf(d.Selector()); ok {
				d.Annotate(NativeNameKey, name)
			}
		}
	}
	return errors.Join(other...)
}

// route reports an aborted pass to the definition that caused it. The pass
// stops at its first failure, so the other methods of the side are checked
// too.
func (in *Installer) route(ic Context, globals *scope.NameScope, result *Result, lerr *native.LoweringError) {
	cls, ok := result.Class(lerr.Class)
	if !ok {
		return
	}
	if d, ok := result.Definition(lerr.Class, lerr.Side, lerr.Selector); ok {
		if sink, err := d.ValidationErrorSink(ic); err == nil {
			lower.ReportTo(sink, lerr.Err)
		}
	}
	comp := lower.NewMethodCompiler(lerr.Side, lower.Options{GlobalNameScope: globals})
	for _, d := range result.Definitions {
		if d.Class != lerr.Class || d.Side != lerr.Side || d.Selector() == lerr.Selector {
			continue
		}
		if stopped(ic) {
			return
		}
		sink, err := d.ValidationErrorSink(ic)
		if err != nil {
			return
		}
		comp.Check(d.Code(), cls, sink)
	}
}

// reportRedefinitions reports every method of def that a later method with
// the same selector on the same side replaces. Only the last definition is
// installed.
func reportRedefinitions(ic Context, doc *source.TextService, def *compiler.ClassDef) {
	owners := [2]string{model.InstanceSide: def.Name, model.ClassSide: def.Name + " class"}
	for side, methods := range [2][]*compiler.MethodDef{model.InstanceSide: def.Methods, model.ClassSide: def.ClassMethods} {
		last := make(map[string]int, len(methods))
		for i, m := range methods {
			last[m.Selector] = i
		}
		for i, m := range methods {
			if j := last[m.Selector]; j != i {
				stop := source.Position{Offset: m.Origin.Offset + len(m.Source)}
				ic.ReportError(source.NewReference(m.Origin, stop, doc),
					fmt.Sprintf("%s>>%s is redefined on line %d; this definition is ignored",
						owners[side], m.Selector, doc.Position(methods[j].Origin.Offset).Line))
			}
		}
	}
}

func stopped(ic Context) bool {
	s, ok := ic.(interface{ Stopped() bool })
	return ok && s.Stopped()
}

func flatten(err error) []error {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range j.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}
