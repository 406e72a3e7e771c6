package native

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/chazu/talc/compiler"
	"github.com/chazu/talc/lower"
	"github.com/chazu/talc/model"
)

type fakeBuilder struct{ name string }

func (b fakeBuilder) Name() string { return b.name }

type fakeContainer struct {
	mu       sync.Mutex
	defined  []string
	names    []string
	fail     map[string]bool
	panic    map[string]bool
	literals []lower.Literal
	sites    []string
}

func (c *fakeContainer) DefineMethod(name string) (Builder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defined = append(c.defined, name)
	return fakeBuilder{name}, nil
}

func (c *fakeContainer) Materialize(b Builder, m *lower.Method) error {
	if c.panic[m.Selector] {
		panic("boom")
	}
	if c.fail[m.Selector] {
		return fmt.Errorf("cannot emit %s", m.Selector)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, b.Name())
	return nil
}

func (c *fakeContainer) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func (c *fakeContainer) DefineLiterals(values []lower.Literal) error {
	c.literals = values
	return nil
}

func (c *fakeContainer) DefineCallSites(selectors []string) error {
	c.sites = selectors
	return nil
}

// plainContainer hides the optional definer interfaces.
type plainContainer struct{ Container }

type fakeBackend struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	plain      bool
	fail       map[string]bool
	panic      map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{containers: make(map[string]*fakeContainer)}
}

func (b *fakeBackend) Container(cls *model.Class, side model.Side) (Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &fakeContainer{fail: b.fail, panic: b.panic}
	b.containers[cls.Name()+" "+side.String()] = c
	if b.plain {
		return plainContainer{c}, nil
	}
	return c, nil
}

func (b *fakeBackend) container(name string, side model.Side) *fakeContainer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.containers[name+" "+side.String()]
}

func frozenClass(t *testing.T, name string, methods ...string) *model.Class {
	t.Helper()
	c := model.NewClass(name, nil)
	c.AddInstVarNames("count")
	for _, src := range methods {
		m, err := compiler.ParseMethodFromString(src)
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		if err := c.AddMethod(model.InstanceSide, model.NewMethodRecord(m, "")); err != nil {
			t.Fatal(err)
		}
	}
	c.Freeze()
	return c
}

func TestSanitizeSelector(t *testing.T) {
	tests := map[string]string{
		"size":       "size",
		"at:put:":    "atPut",
		"doIt:":      "doIt",
		"+":          "Plus",
		"->":         "MinusGT",
		"~=":         "TildeEQ",
		",":          "Comma",
		"type":       "type_",
		"":           "method",
		"value:":     "value",
		"with:with:": "withWith",
	}
	for in, want := range tests {
		if got := SanitizeSelector(in); got != want {
			t.Errorf("SanitizeSelector(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNameTable_Suffixes(t *testing.T) {
	table := NewNameTable()
	var got []string
	for range 3 {
		got = append(got, table.Assign("doIt", nil))
	}
	if strings.Join(got, " ") != "doIt doIt1 doIt2" {
		t.Errorf("got %v, want [doIt doIt1 doIt2]", got)
	}
	if table.Len() != 3 {
		t.Errorf("got %d names, want 3", table.Len())
	}
}

func TestNameTable_SkipsTakenNames(t *testing.T) {
	table := NewNameTable()
	first := table.Assign("x1", nil)
	a := table.Assign("x", nil)
	b := table.Assign("x", nil)
	if first != "x1" || a != "x" || b != "x2" {
		t.Errorf("got %s %s %s, want x1 x x2", first, a, b)
	}
	seen := map[string]bool{}
	for _, n := range table.Names() {
		if seen[n] {
			t.Errorf("name %s assigned twice", n)
		}
		seen[n] = true
	}
}

func TestNameTable_LookupReturnsRecord(t *testing.T) {
	m, err := compiler.ParseMethodFromString("foo ^1")
	if err != nil {
		t.Fatal(err)
	}
	rec := model.NewMethodRecord(m, "")
	table := NewNameTable()
	name := table.Assign("foo", rec)
	got, ok := table.Lookup(name)
	if !ok || got != rec {
		t.Errorf("Lookup(%q) = %v, %v", name, got, ok)
	}
	if _, ok := table.Lookup("bar"); ok {
		t.Error("unassigned name found")
	}
}

func TestGenerate_CollidingSelectors(t *testing.T) {
	cls := frozenClass(t, "Foo", "doIt ^1", "doIt: x ^x", "do: a it: b ^a")
	backend := newFakeBackend()

	report, err := New(backend).Generate(cls, model.InstanceSide)
	if err != nil {
		t.Fatal(err)
	}
	got := strings.Join(report.EmittedNames(), " ")
	if got != "doIt doIt1 doIt2" {
		t.Errorf("got %q, want %q", got, "doIt doIt1 doIt2")
	}
	if name, _ := report.NameOf("do:it:"); name != "doIt2" {
		t.Errorf("NameOf(do:it:) = %q, want doIt2", name)
	}
	if report.Phase != PhaseDone || !report.Succeeded {
		t.Errorf("phase = %s, succeeded = %v", report.Phase, report.Succeeded)
	}
}

func TestGenerate_EmissionFailureSkipsOnlyThatMethod(t *testing.T) {
	cls := frozenClass(t, "Foo", "a ^1", "b ^2", "c ^3")
	backend := newFakeBackend()
	backend.fail = map[string]bool{"b": true}

	report, err := New(backend).Generate(cls, model.InstanceSide)
	if err != nil {
		t.Fatalf("emission failure should not fail the pass: %v", err)
	}
	c := backend.container("Foo", model.InstanceSide)
	if got := strings.Join(c.Names(), " "); got != "a c" {
		t.Errorf("container = %q, want %q", got, "a c")
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Selector != "b" || report.Skipped[0].Name != "b" {
		t.Fatalf("skipped = %+v", report.Skipped)
	}
	if !strings.Contains(report.Skipped[0].Reason, "cannot emit b") {
		t.Errorf("reason = %q", report.Skipped[0].Reason)
	}
	for sel, want := range map[string]MethodStatus{"a": StatusEmitted, "b": StatusSkipped, "c": StatusEmitted} {
		if got := report.Status(sel); got != want {
			t.Errorf("Status(%s) = %s, want %s", sel, got, want)
		}
	}
}

func TestGenerate_EmissionPanicIsContained(t *testing.T) {
	cls := frozenClass(t, "Foo", "a ^1", "b ^2")
	backend := newFakeBackend()
	backend.panic = map[string]bool{"a": true}

	report, err := New(backend).Generate(cls, model.InstanceSide)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(report.EmittedNames(), " "); got != "b" {
		t.Errorf("emitted = %q, want b", got)
	}
	if report.Status("a") != StatusSkipped || !strings.Contains(report.Skipped[0].Reason, "boom") {
		t.Errorf("skipped = %+v", report.Skipped)
	}
}

func TestGenerate_LoweringFailureAborts(t *testing.T) {
	cls := frozenClass(t, "Foo", "a ^1", "b ^undefinedThing")
	backend := newFakeBackend()

	report, err := New(backend).Generate(cls, model.InstanceSide)
	var lerr *LoweringError
	if !errors.As(err, &lerr) {
		t.Fatalf("err = %v, want *LoweringError", err)
	}
	if lerr.Selector != "b" || lerr.Class != "Foo" || lerr.Side != model.InstanceSide {
		t.Errorf("lowering error = %+v", lerr)
	}
	if !errors.Is(err, lower.ErrUnboundIdentifier) {
		t.Errorf("err = %v, want ErrUnboundIdentifier", err)
	}
	if report.Phase != PhaseAborted || report.Succeeded || report.Failure == "" {
		t.Errorf("report = %+v", report)
	}
	c := backend.container("Foo", model.InstanceSide)
	if len(c.defined) != 0 || len(c.Names()) != 0 {
		t.Errorf("container not empty after abort: defined %v", c.defined)
	}
	if report.Status("a") != StatusPending {
		t.Errorf("Status(a) = %s, want pending", report.Status("a"))
	}
}

func TestGenerate_ExcludedClass(t *testing.T) {
	cls := frozenClass(t, "Console", "a ^1")
	backend := newFakeBackend()

	report, err := New(backend, WithPolicy(ExcludeNames("Console", "Object"))).Generate(cls, model.InstanceSide)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Excluded || !report.Succeeded || len(report.Emitted) != 0 {
		t.Errorf("report = %+v", report)
	}
	if backend.container("Console", model.InstanceSide) != nil {
		t.Error("excluded class should not acquire a container")
	}
}

func TestExcludeNames_Empty(t *testing.T) {
	cls := frozenClass(t, "Object")
	if !ExcludeNames().Generate(cls) {
		t.Error("empty deny list should generate every class")
	}
}

func TestGenerate_RequiresFrozenClass(t *testing.T) {
	cls := model.NewClass("Foo", nil)
	_, err := New(newFakeBackend()).Generate(cls, model.InstanceSide)
	if !errors.Is(err, ErrNotFrozen) {
		t.Errorf("got %v, want ErrNotFrozen", err)
	}
}

func TestGenerate_PoolsDefinedBeforeMethods(t *testing.T) {
	cls := frozenClass(t, "Foo", "a ^#sym", "b ^count + 'str' size", "c ^#sym")
	backend := newFakeBackend()
	g := New(backend,
		WithLiteralEncoding(lower.PooledLiteralMode),
		WithCallEncoding(lower.CachedCallMode))

	if _, err := g.Generate(cls, model.InstanceSide); err != nil {
		t.Fatal(err)
	}
	c := backend.container("Foo", model.InstanceSide)
	var lits []string
	for _, l := range c.literals {
		lits = append(lits, l.String())
	}
	if got := strings.Join(lits, " "); got != "#sym 'str'" {
		t.Errorf("literal pool = %q, want %q", got, "#sym 'str'")
	}
	if got := strings.Join(c.sites, " "); got != "size +" {
		t.Errorf("call sites = %q, want %q", got, "size +")
	}
}

func TestGenerate_PoolWithoutDefinerAborts(t *testing.T) {
	cls := frozenClass(t, "Foo", "a ^#sym")
	backend := newFakeBackend()
	backend.plain = true

	report, err := New(backend, WithLiteralEncoding(lower.PooledLiteralMode)).Generate(cls, model.InstanceSide)
	if !errors.Is(err, ErrNoLiteralPool) {
		t.Fatalf("got %v, want ErrNoLiteralPool", err)
	}
	if report.Phase != PhaseAborted {
		t.Errorf("phase = %s, want aborted", report.Phase)
	}
}

func TestGenerateClass_BothSides(t *testing.T) {
	c := model.NewClass("Foo", nil)
	for side, src := range map[model.Side]string{model.InstanceSide: "a ^1", model.ClassSide: "new ^self"} {
		m, err := compiler.ParseMethodFromString(src)
		if err != nil {
			t.Fatal(err)
		}
		c.AddMethod(side, model.NewMethodRecord(m, ""))
	}
	c.Freeze()

	backend := newFakeBackend()
	reports, err := New(backend).GenerateClass(c)
	if err != nil {
		t.Fatal(err)
	}
	if got := reports[model.InstanceSide].EmittedNames(); len(got) != 1 || got[0] != "a" {
		t.Errorf("instance side = %v", got)
	}
	if got := reports[model.ClassSide].EmittedNames(); len(got) != 1 || got[0] != "new" {
		t.Errorf("class side = %v", got)
	}
}

func TestGenerateAll_Classes(t *testing.T) {
	var classes []*model.Class
	for i := range 5 {
		classes = append(classes, frozenClass(t, fmt.Sprintf("C%d", i), "a ^1", "b ^count"))
	}
	backend := newFakeBackend()

	results, err := New(backend, WithWorkers(2)).GenerateAll(context.Background(), classes)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	for i, r := range results {
		if r[model.InstanceSide].Class != classes[i].Name() || len(r[model.InstanceSide].Emitted) != 2 {
			t.Errorf("result %d = %s", i, r[model.InstanceSide])
		}
	}
}

func TestGenerateAll_RejectsUnfrozenAndDuplicates(t *testing.T) {
	g := New(newFakeBackend())
	frozen := frozenClass(t, "A")
	if _, err := g.GenerateAll(context.Background(), []*model.Class{frozen, model.NewClass("B", nil)}); !errors.Is(err, ErrNotFrozen) {
		t.Errorf("got %v, want ErrNotFrozen", err)
	}
	if _, err := g.GenerateAll(context.Background(), []*model.Class{frozen, frozen}); !errors.Is(err, ErrDuplicateClass) {
		t.Errorf("got %v, want ErrDuplicateClass", err)
	}
}

func TestGenerateAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(newFakeBackend()).GenerateAll(ctx, []*model.Class{frozenClass(t, "A", "a ^1")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
