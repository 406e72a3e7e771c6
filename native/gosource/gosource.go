// Package gosource is a native backend that renders lowered methods as Go
// source. Every class becomes one file; each class side becomes an empty
// struct type whose methods are the emitted routines. Generated code runs
// against the closure package's Runtime.
package gosource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dave/jennifer/jen"

	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
)

const (
	runtimePath = "github.com/chazu/talc/native/closure"
	modelPath   = "github.com/chazu/talc/model"
)

var (
	ErrUnknownClass   = errors.New("no generated code for class")
	ErrDuplicateName  = errors.New("native name already defined")
	ErrForeignBuilder = errors.New("builder belongs to another container")
	ErrFileCollision  = errors.New("classes share a file name")
)

// Package collects the generated files of one Go package. It is a
// native.Backend and is safe for concurrent use.
type Package struct {
	name string

	mu      sync.Mutex
	classes map[string]*classFile
}

type classFile struct {
	name  string
	sides [2]*sideCode
}

type sideCode struct {
	typeName  string
	literals  []lower.Literal
	sites     []string
	funcs     []jen.Code
	names     []string
	selectors map[string]string
}

// NewPackage creates an empty package called name.
func NewPackage(name string) *Package {
	return &Package{name: name, classes: make(map[string]*classFile)}
}

// Name returns the package name.
func (p *Package) Name() string { return p.name }

// TypeName returns the Go type holding the routines of a class side.
func TypeName(class string, side model.Side) string {
	if side == model.ClassSide {
		return class + "_class"
	}
	return class
}

// Container starts a fresh generation of a class side.
func (p *Package) Container(cls *model.Class, side model.Side) (native.Container, error) {
	sc := &sideCode{
		typeName:  TypeName(cls.Name(), side),
		selectors: make(map[string]string),
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cf, ok := p.classes[cls.Name()]
	if !ok {
		cf = &classFile{name: cls.Name()}
		p.classes[cls.Name()] = cf
	}
	cf.sides[side] = sc
	return &container{pkg: p, cls: cls, side: side, code: sc, reserved: make(map[string]bool)}, nil
}

// Classes returns the names of the classes with generated code, sorted.
func (p *Package) Classes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.classes))
	for name := range p.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Render writes the file of class to w.
func (p *Package) Render(class string, w io.Writer) error {
	p.mu.Lock()
	cf, ok := p.classes[class]
	var f *jen.File
	if ok {
		f = p.file(cf)
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return f.Render(w)
}

// FileName returns the file holding the code of class.
func FileName(class string) string {
	return strings.ToLower(class) + ".go"
}

// WriteDir renders every class into dir, one FileName file per class, and
// returns the written paths. Nothing is written when two classes map to
// the same file name.
func (p *Package) WriteDir(dir string) ([]string, error) {
	classes := p.Classes()
	owners := make(map[string]string, len(classes))
	for _, class := range classes {
		name := FileName(class)
		if other, ok := owners[name]; ok {
			return nil, fmt.Errorf("%w: %s and %s both map to %s", ErrFileCollision, other, class, name)
		}
		owners[name] = class
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for _, class := range classes {
		var buf bytes.Buffer
		if err := p.Render(class, &buf); err != nil {
			return paths, fmt.Errorf("render %s: %w", class, err)
		}
		path := filepath.Join(dir, FileName(class))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (p *Package) file(cf *classFile) *jen.File {
	f := jen.NewFile(p.name)
	f.HeaderComment("Code generated by talc. DO NOT EDIT.")
	for _, side := range model.Sides {
		sc := cf.sides[side]
		if sc == nil {
			continue
		}
		f.Commentf("%s holds the %s-side routines of %s.", sc.typeName, side, cf.name)
		f.Type().Id(sc.typeName).Struct()

		if len(sc.literals) > 0 {
			lits := make([]jen.Code, len(sc.literals))
			for i, l := range sc.literals {
				lits[i] = literal(l)
			}
			f.Var().Id(sc.typeName+"Literals").Op("=").Index().Qual(runtimePath, "Value").Values(lits...)
		}
		if len(sc.sites) > 0 {
			sites := make([]jen.Code, len(sc.sites))
			for i, s := range sc.sites {
				sites[i] = jen.Lit(s)
			}
			f.Var().Id(sc.typeName+"CallSites").Op("=").Index().String().Values(sites...)
		}
		selectors := jen.Dict{}
		for sel, name := range sc.selectors {
			selectors[jen.Lit(sel)] = jen.Lit(name)
		}
		f.Commentf("%sSelectors maps selectors to routine names.", sc.typeName)
		f.Var().Id(sc.typeName+"Selectors").Op("=").Map(jen.String()).String().Values(selectors)
		f.Line()

		for _, fn := range sc.funcs {
			f.Add(fn)
			f.Line()
		}
	}
	return f
}

type builder struct {
	c    *container
	name string
}

func (b *builder) Name() string { return b.name }

type container struct {
	pkg      *Package
	cls      *model.Class
	side     model.Side
	code     *sideCode
	reserved map[string]bool
}

func (c *container) DefineLiterals(values []lower.Literal) error {
	c.pkg.mu.Lock()
	defer c.pkg.mu.Unlock()
	c.code.literals = append([]lower.Literal(nil), values...)
	return nil
}

func (c *container) DefineCallSites(selectors []string) error {
	c.pkg.mu.Lock()
	defer c.pkg.mu.Unlock()
	c.code.sites = append([]string(nil), selectors...)
	return nil
}

func (c *container) DefineMethod(name string) (native.Builder, error) {
	if c.reserved[name] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	c.reserved[name] = true
	return &builder{c: c, name: name}, nil
}

// Materialize renders the routine on its own before adding it to the file,
// so a method that does not render fails alone.
func (c *container) Materialize(b native.Builder, m *lower.Method) error {
	nb, ok := b.(*builder)
	if !ok || nb.c != c {
		return ErrForeignBuilder
	}
	c.pkg.mu.Lock()
	e := &emitter{
		cls:      c.cls,
		typeName: c.code.typeName,
		literals: len(c.code.literals),
		sites:    c.code.sites,
	}
	c.pkg.mu.Unlock()

	fn, err := e.method(nb.name, m)
	if err != nil {
		return err
	}
	scratch := jen.NewFile(c.pkg.name)
	scratch.Add(fn)
	if err := scratch.Render(io.Discard); err != nil {
		return fmt.Errorf("render %s: %w", nb.name, err)
	}

	c.pkg.mu.Lock()
	defer c.pkg.mu.Unlock()
	c.code.funcs = append(c.code.funcs, fn)
	c.code.names = append(c.code.names, nb.name)
	c.code.selectors[m.Selector] = nb.name
	return nil
}

func (c *container) Names() []string {
	c.pkg.mu.Lock()
	defer c.pkg.mu.Unlock()
	return append([]string(nil), c.code.names...)
}
