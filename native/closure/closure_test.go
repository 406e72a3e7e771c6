package closure

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
	"github.com/chazu/talc/native"
	"github.com/chazu/talc/scope"
)

const demoSource = `Counter subclass: Object
  instanceVars: count
  classVars: Created
  pools: Limits
  method: init [ count := 0 ]
  method: increment [ count := count + 1 ]
  method: count [ ^count ]
  method: capped [ ^count min: Max ]
  method: detect: arr [ arr do: [:e | e > 2 ifTrue: [^e]]. ^nil ]
  method: sum: arr [ | total | total := 0. arr do: [:e | total := total + e]. ^total ]
  method: escaping [ ^[:x | ^x] ]
  method: greet [ Transcript show: 'a'; show: 'b'; cr ]
  method: context [ ^thisContext ]
  method: literals [ ^#(1 $a #foo 'bar' true) ]
  method: implicit [ count := 7 ]
  classMethod: new [ Created := (Created ifNil: [0]) + 1. ^super new init; yourself ]
  classMethod: created [ ^Created ]

Loud subclass: Counter
  method: increment [ super increment. ^super increment ]
`

type fixture struct {
	table   *Table
	rt      *MapRuntime
	out     *bytes.Buffer
	classes map[string]*model.Class
	reports map[string][2]*native.Report
}

func build(t *testing.T, src string, opts ...native.Option) *fixture {
	t.Helper()
	sf, err := compiler.ParseSourceFileFromString(src)
	if err != nil {
		t.Fatal(err)
	}
	reg := model.NewRegistry("Object")
	reg.DefinePool(model.NewPool("Limits", map[string]any{"Max": 3}))
	classes, err := reg.FromSourceFile(sf)
	if err != nil {
		t.Fatal(err)
	}
	reg.FreezeAll()

	f := &fixture{
		table:   NewTable(),
		out:     &bytes.Buffer{},
		classes: make(map[string]*model.Class),
		reports: make(map[string][2]*native.Report),
	}
	globals := scope.NewNameScope(reg.Names()...)
	globals.Add("Transcript")
	g := native.New(f.table, append([]native.Option{native.WithGlobals(globals)}, opts...)...)
	for _, c := range classes {
		reports, err := g.GenerateClass(c)
		if err != nil {
			t.Fatalf("generate %s: %v", c.Name(), err)
		}
		f.classes[c.Name()] = c
		f.reports[c.Name()] = reports
	}
	f.rt = NewMapRuntime(f.table, f.out, reg.Classes()...)
	return f
}

func (f *fixture) newInstance(t *testing.T, class string) Value {
	t.Helper()
	meta, ok := f.rt.ClassObject(class)
	if !ok {
		t.Fatalf("no class %s", class)
	}
	obj, err := f.rt.Send(nil, meta, "new", nil)
	if err != nil {
		t.Fatal(err)
	}
	return obj
}

func (f *fixture) send(t *testing.T, recv Value, selector string, args ...Value) Value {
	t.Helper()
	v, err := f.rt.Send(nil, recv, selector, args)
	if err != nil {
		t.Fatalf("%s: %v", selector, err)
	}
	return v
}

func TestRoutines_InstanceState(t *testing.T) {
	f := build(t, demoSource)
	c := f.newInstance(t, "Counter")
	f.send(t, c, "increment")
	f.send(t, c, "increment")
	if got := f.send(t, c, "count"); got != int64(2) {
		t.Errorf("count = %v, want 2", got)
	}
	if got := f.send(t, c, "capped"); got != int64(2) {
		t.Errorf("capped = %v, want 2", got)
	}
}

func TestRoutines_ClassSideAndClassVariables(t *testing.T) {
	f := build(t, demoSource)
	f.newInstance(t, "Counter")
	f.newInstance(t, "Counter")
	meta, _ := f.rt.ClassObject("Counter")
	if got := f.send(t, meta, "created"); got != int64(2) {
		t.Errorf("created = %v, want 2", got)
	}
}

func TestRoutines_SuperSend(t *testing.T) {
	f := build(t, demoSource)
	loud := f.newInstance(t, "Loud")
	f.send(t, loud, "increment")
	if got := f.send(t, loud, "count"); got != int64(2) {
		t.Errorf("count = %v, want 2", got)
	}
}

func TestRoutines_NonLocalReturn(t *testing.T) {
	f := build(t, demoSource)
	c := f.newInstance(t, "Counter")
	if got := f.send(t, c, "detect:", []Value{int64(1), int64(5), int64(9)}); got != int64(5) {
		t.Errorf("detect: = %v, want 5", got)
	}
	if got := f.send(t, c, "detect:", []Value{int64(1)}); got != nil {
		t.Errorf("detect: = %v, want nil", got)
	}
}

func TestRoutines_DeadContext(t *testing.T) {
	f := build(t, demoSource)
	c := f.newInstance(t, "Counter")
	block := f.send(t, c, "escaping").(*Block)
	if _, err := block.Call(int64(1)); !errors.Is(err, ErrDeadContext) {
		t.Errorf("got %v, want ErrDeadContext", err)
	}
}

func TestRoutines_CapturedTemporaries(t *testing.T) {
	f := build(t, demoSource)
	c := f.newInstance(t, "Counter")
	if got := f.send(t, c, "sum:", []Value{int64(1), int64(2), int64(3)}); got != int64(6) {
		t.Errorf("sum: = %v, want 6", got)
	}
}

func TestRoutines_Cascade(t *testing.T) {
	f := build(t, demoSource)
	f.send(t, f.newInstance(t, "Counter"), "greet")
	if f.out.String() != "ab\n" {
		t.Errorf("transcript = %q, want %q", f.out.String(), "ab\n")
	}
}

func TestRoutines_ImplicitReturnSelf(t *testing.T) {
	f := build(t, demoSource)
	c := f.newInstance(t, "Counter")
	if got := f.send(t, c, "implicit"); got != c {
		t.Errorf("implicit = %v, want the receiver", got)
	}
}

func TestRoutines_ThisContext(t *testing.T) {
	f := build(t, demoSource)
	ctx, ok := f.send(t, f.newInstance(t, "Counter"), "context").(*Context)
	if !ok || ctx.Selector != "context" || ctx.Class != "Counter" {
		t.Errorf("thisContext = %v", ctx)
	}
}

func TestRoutines_Literals(t *testing.T) {
	for _, mode := range []lower.LiteralMode{lower.InlineLiteralMode, lower.PooledLiteralMode} {
		f := build(t, demoSource,
			native.WithLiteralEncoding(mode),
			native.WithCallEncoding(lower.CachedCallMode))
		got := PrintString(f.send(t, f.newInstance(t, "Counter"), "literals"))
		if got != "#(1 $a #foo 'bar' true)" {
			t.Errorf("%s: literals = %s", mode, got)
		}
	}
}

func TestRoutines_DoesNotUnderstand(t *testing.T) {
	f := build(t, demoSource)
	_, err := f.rt.Send(nil, f.newInstance(t, "Counter"), "frobnicate", nil)
	if !errors.Is(err, ErrDoesNotUnderstand) {
		t.Errorf("got %v, want ErrDoesNotUnderstand", err)
	}
}

func TestTable_EmissionFailureIsIsolated(t *testing.T) {
	src := `Root subclass: nil
  method: good [ ^1 ]
  method: bad [ ^super good ]
  method: alsoGood [ ^2 ]
`
	f := build(t, src)
	report := f.reports["Root"][model.InstanceSide]
	if got := strings.Join(f.table.Names("Root", model.InstanceSide), " "); got != "good alsoGood" {
		t.Errorf("table = %q, want %q", got, "good alsoGood")
	}
	if report.Status("bad") != native.StatusSkipped {
		t.Fatalf("Status(bad) = %s, want skipped", report.Status("bad"))
	}
	if !strings.Contains(report.Skipped[0].Reason, "super send in root class") {
		t.Errorf("reason = %q", report.Skipped[0].Reason)
	}
	if _, ok := f.table.Lookup("Root", model.InstanceSide, "bad"); ok {
		t.Error("skipped method reachable through the table")
	}
}

func TestTable_DuplicateName(t *testing.T) {
	table := NewTable()
	c, err := table.Container(model.NewClass("Foo", nil), model.InstanceSide)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.DefineMethod("foo"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.DefineMethod("foo"); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("got %v, want ErrDuplicateName", err)
	}
}

func TestIntegerPrimitives(t *testing.T) {
	rt := NewMapRuntime(NewTable(), &bytes.Buffer{})
	tests := []struct {
		recv     Value
		selector string
		arg      Value
		want     Value
	}{
		{int64(7), "+", int64(3), int64(10)},
		{int64(7), "//", int64(-2), int64(-4)},
		{int64(-7), "\\\\", int64(2), int64(1)},
		{int64(6), "/", int64(3), int64(2)},
		{int64(1), "+", 0.5, 1.5},
		{int64(2), "<", int64(3), true},
		{"ab", ",", "cd", "abcd"},
	}
	for _, tt := range tests {
		got, err := rt.Send(nil, tt.recv, tt.selector, []Value{tt.arg})
		if err != nil {
			t.Errorf("%v %s %v: %v", tt.recv, tt.selector, tt.arg, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%v %s %v = %v, want %v", tt.recv, tt.selector, tt.arg, got, tt.want)
		}
	}
	if _, err := rt.Send(nil, int64(1), "/", []Value{int64(0)}); !errors.Is(err, ErrZeroDivide) {
		t.Errorf("got %v, want ErrZeroDivide", err)
	}
}
