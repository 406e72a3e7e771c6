package gosource

import (
	"bytes"
	"errors"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
	"github.com/chazu/talc/scope"
)

const source = `Counter subclass: Object
  instanceVars: count
  classVars: Created
  method: increment [ count := count + 1 ]
  method: at: i put: v [ ^v ]
  method: detect: arr [ arr do: [:e | e > 2 ifTrue: [^e]]. ^nil ]
  method: sum: arr [ | total | total := 0. arr do: [:e | total := total + e]. ^total ]
  method: greet [ Transcript show: 'a'; show: 'b'; cr ]
  method: literals [ ^#(1 $a #foo 'bar' nil 2.5) ]
  method: type [ ^thisContext ]
  classMethod: new [ Created := nil. ^super new ]

Root subclass: nil
  method: good [ ^1 ]
  method: bad [ ^super good ]
`

func generate(t *testing.T, opts ...native.Option) (*Package, map[string][2]*native.Report) {
	t.Helper()
	sf, err := compiler.ParseSourceFileFromString(source)
	if err != nil {
		t.Fatal(err)
	}
	reg := model.NewRegistry("Object")
	classes, err := reg.FromSourceFile(sf)
	if err != nil {
		t.Fatal(err)
	}
	reg.FreezeAll()

	pkg := NewPackage("demo")
	globals := scope.NewNameScope(reg.Names()...)
	globals.Add("Transcript")
	g := native.New(pkg, append([]native.Option{native.WithGlobals(globals)}, opts...)...)
	reports := make(map[string][2]*native.Report)
	for _, c := range classes {
		r, err := g.GenerateClass(c)
		if err != nil {
			t.Fatalf("generate %s: %v", c.Name(), err)
		}
		reports[c.Name()] = r
	}
	return pkg, reports
}

func render(t *testing.T, pkg *Package, class string) string {
	t.Helper()
	var buf bytes.Buffer
	if err := pkg.Render(class, &buf); err != nil {
		t.Fatal(err)
	}
	if _, err := parser.ParseFile(token.NewFileSet(), class+".go", buf.Bytes(), 0); err != nil {
		t.Fatalf("generated code does not parse: %v\n%s", err, buf.String())
	}
	return buf.String()
}

func TestRender_Counter(t *testing.T) {
	pkg, _ := generate(t)
	src := render(t, pkg, "Counter")

	for _, want := range []string{
		"// Code generated by talc. DO NOT EDIT.",
		"package demo",
		"type Counter struct{}",
		"type Counter_class struct{}",
		"func (Counter) increment(rt closure.Runtime, self closure.Value)",
		"func (Counter) atPut(rt closure.Runtime, self closure.Value, l0_0 closure.Value, l0_1 closure.Value)",
		"func (Counter) type_(",
		"func (Counter_class) new(",
		"closure.NewContext(rt, \"Counter\", model.InstanceSide, \"increment\", self)",
		"defer ctx.Finish(&result, &err)",
		"closure.LoadSlot(rt, self, 0)",
		"closure.StoreSlot(rt, self, 0,",
		"rt.SuperSend(ctx,",
		"return ctx.Return(",
		"closure.NewBlock(1, func(args []closure.Value) (closure.Value, error) {",
		"rt.SetClassVar(\"Counter\", \"Created\",",
		"closure.Symbol(\"foo\")",
		"'a'",
		"\"at:put:\":",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated code lacks %q", want)
		}
	}
}

func TestRender_Pools(t *testing.T) {
	pkg, _ := generate(t,
		native.WithLiteralEncoding(lower.PooledLiteralMode),
		native.WithCallEncoding(lower.CachedCallMode))
	src := render(t, pkg, "Counter")
	for _, want := range []string{
		"var CounterLiterals = []closure.Value{",
		"var CounterCallSites = []string{",
		"CounterCallSites[0]",
		"CounterLiterals[0]",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated code lacks %q", want)
		}
	}
}

func TestMaterialize_FailureIsIsolated(t *testing.T) {
	pkg, reports := generate(t)
	report := reports["Root"][model.InstanceSide]
	if got := strings.Join(report.EmittedNames(), " "); got != "good" {
		t.Errorf("emitted = %q, want good", got)
	}
	if report.Status("bad") != native.StatusSkipped {
		t.Errorf("Status(bad) = %s, want skipped", report.Status("bad"))
	}
	src := render(t, pkg, "Root")
	if strings.Contains(src, "func (Root) bad(") {
		t.Error("skipped method rendered")
	}
}

func TestRender_UnknownClass(t *testing.T) {
	pkg := NewPackage("demo")
	if err := pkg.Render("Nope", &bytes.Buffer{}); !errors.Is(err, ErrUnknownClass) {
		t.Errorf("got %v, want ErrUnknownClass", err)
	}
}

func TestWriteDir(t *testing.T) {
	pkg, _ := generate(t)
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := pkg.WriteDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d files, want 2", len(paths))
	}
	if filepath.Base(paths[0]) != "counter.go" || filepath.Base(paths[1]) != "root.go" {
		t.Errorf("paths = %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("// Code generated by talc. DO NOT EDIT.")) {
		t.Errorf("file starts with %q", string(data[:40]))
	}
}

func TestWriteDir_CaseCollision(t *testing.T) {
	pkg := NewPackage("demo")
	for _, name := range []string{"Point", "POINT"} {
		cls := model.NewClass(name, nil)
		cls.Freeze()
		if _, err := pkg.Container(cls, model.InstanceSide); err != nil {
			t.Fatal(err)
		}
	}
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := pkg.WriteDir(dir)
	if !errors.Is(err, ErrFileCollision) {
		t.Fatalf("got %v, want ErrFileCollision", err)
	}
	if !strings.Contains(err.Error(), "point.go") {
		t.Errorf("error = %q, want the shared file name", err)
	}
	if len(paths) != 0 {
		t.Errorf("wrote %v", paths)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("output directory created despite the collision")
	}
}
