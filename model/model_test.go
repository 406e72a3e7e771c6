package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/talc/compiler"
)

func method(t *testing.T, src string) *MethodRecord {
	t.Helper()
	m, err := compiler.ParseMethodFromString(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return NewMethodRecord(m, "")
}

func TestMethodSet_PreservesInsertionOrder(t *testing.T) {
	c := NewClass("Foo", nil)
	for _, src := range []string{"zeta ^1", "alpha ^2", "mid ^3"} {
		if err := c.AddMethod(InstanceSide, method(t, src)); err != nil {
			t.Fatal(err)
		}
	}
	got := strings.Join(c.Methods(InstanceSide).Selectors(), " ")
	if got != "zeta alpha mid" {
		t.Errorf("got %q, want %q", got, "zeta alpha mid")
	}
}

func TestMethodSet_DuplicateReplacesInPlace(t *testing.T) {
	c := NewClass("Foo", nil)
	c.AddMethod(InstanceSide, method(t, "a ^1"))
	c.AddMethod(InstanceSide, method(t, "b ^2"))
	replacement := method(t, "a ^3")
	c.AddMethod(InstanceSide, replacement)

	set := c.Methods(InstanceSide)
	if set.Len() != 2 {
		t.Fatalf("got %d methods, want 2", set.Len())
	}
	if set.Records()[0] != replacement {
		t.Error("duplicate selector did not replace the first record")
	}
}

func TestClass_SidesAreSeparate(t *testing.T) {
	c := NewClass("Foo", nil)
	c.AddMethod(ClassSide, method(t, "new ^self"))
	if c.Methods(InstanceSide).Len() != 0 {
		t.Error("class-side method leaked into instance side")
	}
	if _, ok := c.Methods(ClassSide).Lookup("new"); !ok {
		t.Error("class-side method not found")
	}
}

func TestClass_FreezeRejectsMutation(t *testing.T) {
	c := NewClass("Foo", nil)
	c.Freeze()

	checks := map[string]error{
		"AddInstVarNames":  c.AddInstVarNames("x"),
		"AddClassVarNames": c.AddClassVarNames("X"),
		"AddMethod":        c.AddMethod(InstanceSide, method(t, "a ^1")),
		"SetCategory":      c.SetCategory("Kernel"),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrFrozen) {
			t.Errorf("%s: got %v, want ErrFrozen", name, err)
		}
	}
	if len(c.InstVarNames()) != 0 {
		t.Error("frozen class was mutated")
	}
}

func TestClass_InheritedVariables(t *testing.T) {
	base := NewClass("Base", nil)
	base.AddInstVarNames("a", "b")
	base.AddClassVarNames("Shared")
	base.AddClassInstVarNames("count")

	derived := NewClass("Derived", base)
	derived.AddInstVarNames("c")
	derived.AddClassVarNames("Local")

	if got := strings.Join(derived.AllInstVarNames(), " "); got != "a b c" {
		t.Errorf("AllInstVarNames = %q, want %q", got, "a b c")
	}
	if got := strings.Join(derived.AllClassVarNames(), " "); got != "Shared Local" {
		t.Errorf("AllClassVarNames = %q, want %q", got, "Shared Local")
	}
	if got := strings.Join(derived.AllClassInstVarNames(), " "); got != "count" {
		t.Errorf("AllClassInstVarNames = %q, want %q", got, "count")
	}
	if derived.ClassVarOwner("Shared") != base {
		t.Error("Shared should be owned by Base")
	}
	if len(derived.Superclasses()) != 1 || !derived.IsSubclassOf(base) {
		t.Error("hierarchy helpers disagree")
	}
}

func TestRegistry_FromSourceFile(t *testing.T) {
	sf, err := compiler.ParseSourceFileFromString(`Shape subclass: Object
  instanceVars: origin
  classVars: Count
  pools: Colors
  category: 'Geometry'
  method: origin [ ^origin ]
  classMethod: count [ ^Count ]

Circle subclass: Shape
  instanceVars: radius
  method: area [ ^radius * radius ]
`)
	if err != nil {
		t.Fatal(err)
	}

	r := NewRegistry("Object")
	r.DefinePool(NewPool("Colors", map[string]any{"Red": int64(1)}))
	classes, err := r.FromSourceFile(sf)
	if err != nil {
		t.Fatal(err)
	}
	if len(classes) != 2 {
		t.Fatalf("got %d classes, want 2", len(classes))
	}

	circle, ok := r.Lookup("Circle")
	if !ok {
		t.Fatal("Circle not registered")
	}
	if circle.Superclass().Name() != "Shape" {
		t.Errorf("superclass = %s, want Shape", circle.Superclass())
	}
	if got := strings.Join(circle.AllInstVarNames(), " "); got != "origin radius" {
		t.Errorf("inst vars = %q", got)
	}
	shape := classes[0]
	if shape.Category() != "Geometry" || len(shape.Pools()) != 1 {
		t.Errorf("shape category/pools = %q/%d", shape.Category(), len(shape.Pools()))
	}
	if rec, ok := shape.Methods(ClassSide).Lookup("count"); !ok || rec.Category != "Geometry" {
		t.Errorf("class method record = %+v", rec)
	}
}

func TestRegistry_FromSourceFileErrors(t *testing.T) {
	sf, err := compiler.ParseSourceFileFromString(`A subclass: Missing
B subclass: Object
  pools: Nope
C subclass: Object
`)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRegistry("Object")
	classes, err := r.FromSourceFile(sf)
	if !errors.Is(err, ErrUnknownSuperclass) || !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("err = %v, want unknown superclass and pool", err)
	}
	if len(classes) != 1 || classes[0].Name() != "C" {
		t.Errorf("got %v, want only C", classes)
	}
}

func TestRegistry_DuplicateClass(t *testing.T) {
	r := NewRegistry("Object")
	if err := r.Define(NewClass("Object", nil)); !errors.Is(err, ErrDuplicateClass) {
		t.Fatalf("got %v, want ErrDuplicateClass", err)
	}
}

func TestRegistry_FreezeAll(t *testing.T) {
	r := NewRegistry("Object", "Other")
	r.FreezeAll()
	for _, c := range r.Classes() {
		if !c.Frozen() {
			t.Errorf("%s not frozen", c.Name())
		}
	}
}
