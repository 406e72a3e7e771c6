package scope

import (
	"errors"
	"testing"

	"github.com/chazu/talc/model"
)

func fixture() (*model.Class, *model.Class) {
	colors := model.NewPool("Colors", map[string]any{"Red": int64(1), "Blue": int64(2)})

	base := model.NewClass("Base", nil)
	base.AddInstVarNames("a")
	base.AddClassVarNames("Registry")
	base.AddClassInstVarNames("instances")
	base.AddPool(colors)

	derived := model.NewClass("Derived", base)
	derived.AddInstVarNames("b")
	derived.AddClassVarNames("Default")
	return base, derived
}

func TestForInstanceMethod_ResolvesMembers(t *testing.T) {
	_, derived := fixture()
	members, err := ForInstanceMethod(derived, NewNameScope("Transcript"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		kind  Kind
		index int
		owner string
	}{
		{"a", InstanceVariable, 0, "Derived"},
		{"b", InstanceVariable, 1, "Derived"},
		{"Default", ClassVariable, 0, "Derived"},
		{"Registry", ClassVariable, 0, "Base"},
		{"Red", PoolVariable, -1, "Colors"},
		{"Transcript", Global, -1, ""},
	}
	for _, tc := range tests {
		b, ok := members.Lookup(tc.name)
		if !ok {
			t.Errorf("%s: not found", tc.name)
			continue
		}
		if b.Kind != tc.kind || b.Index != tc.index || b.Owner != tc.owner {
			t.Errorf("%s: got %s index %d owner %q, want %s index %d owner %q",
				tc.name, b.Kind, b.Index, b.Owner, tc.kind, tc.index, tc.owner)
		}
	}

	if _, ok := members.Lookup("instances"); ok {
		t.Error("class-instance variable visible on the instance side")
	}
}

func TestForClassMethod_ResolvesClassInstanceVariables(t *testing.T) {
	_, derived := fixture()
	members, err := ForClassMethod(derived, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, ok := members.Lookup("instances")
	if !ok || b.Kind != ClassInstanceVariable {
		t.Errorf("instances = %+v, want class-instance variable", b)
	}
	if _, ok := members.Lookup("a"); ok {
		t.Error("instance variable visible on the class side")
	}
	if b, ok := members.Lookup("Registry"); !ok || b.Kind != ClassVariable {
		t.Errorf("Registry = %+v, want class variable", b)
	}
}

func TestForInstanceMethod_AmbiguousMember(t *testing.T) {
	base := model.NewClass("Base", nil)
	base.AddClassVarNames("Shared")
	derived := model.NewClass("Derived", base)
	derived.AddClassVarNames("Shared")

	if _, err := ForInstanceMethod(derived, nil); !errors.Is(err, ErrAmbiguousBinding) {
		t.Fatalf("got %v, want ErrAmbiguousBinding", err)
	}

	clash := model.NewClass("Clash", nil)
	clash.AddInstVarNames("Red")
	clash.AddPool(model.NewPool("Colors", map[string]any{"Red": int64(1)}))
	if _, err := ForInstanceMethod(clash, nil); !errors.Is(err, ErrAmbiguousBinding) {
		t.Fatalf("got %v, want ErrAmbiguousBinding", err)
	}
}

func TestMemberScope_MembersShadowGlobals(t *testing.T) {
	c := model.NewClass("C", nil)
	c.AddClassVarNames("Transcript")
	members, err := ForInstanceMethod(c, NewNameScope("Transcript"))
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := members.Lookup("Transcript"); b.Kind != ClassVariable {
		t.Errorf("got %s, want class variable", b.Kind)
	}
}

func TestReservedScope_ReceiverBySide(t *testing.T) {
	inst := ReservedForInstanceMethod()
	cls := ReservedForClassMethod()

	for _, name := range []string{"self", "super"} {
		b, ok := inst.Lookup(name)
		if !ok || b.Receiver != InstanceReceiver {
			t.Errorf("instance side %s = %+v", name, b)
		}
		b, ok = cls.Lookup(name)
		if !ok || b.Receiver != ClassReceiver {
			t.Errorf("class side %s = %+v", name, b)
		}
	}
	for _, name := range []string{"nil", "true", "false", "thisContext"} {
		b, ok := inst.Lookup(name)
		if !ok || b.Kind != Reserved || !b.ReadOnly {
			t.Errorf("%s = %+v, want read-only reserved binding", name, b)
		}
	}
}

func TestChain_ResolutionOrder(t *testing.T) {
	c := model.NewClass("C", nil)
	c.AddInstVarNames("x")
	members, err := ForInstanceMethod(c, NewNameScope("Smalltalk", "y"))
	if err != nil {
		t.Fatal(err)
	}
	chain := NewChain(ReservedForInstanceMethod(), members)
	if err := chain.Push([]string{"arg"}, []string{"y"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		kind Kind
	}{
		{"arg", Argument},
		{"y", Temporary}, // local beats global
		{"self", Reserved},
		{"x", InstanceVariable},
		{"Smalltalk", Global},
	}
	for _, tc := range tests {
		b, err := chain.Resolve(tc.name)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if b.Kind != tc.kind {
			t.Errorf("%s: got %s, want %s", tc.name, b.Kind, tc.kind)
		}
	}

	if _, err := chain.Resolve("missing"); !errors.Is(err, ErrUnboundIdentifier) {
		t.Errorf("got %v, want ErrUnboundIdentifier", err)
	}
}

func TestChain_BlockFrames(t *testing.T) {
	members, _ := ForInstanceMethod(model.NewClass("C", nil), nil)
	chain := NewChain(ReservedForInstanceMethod(), members)
	chain.Push(nil, []string{"sum"})
	if err := chain.Push([]string{"each"}, []string{"sum"}); err != nil {
		t.Fatal(err)
	}

	each, _ := chain.Resolve("each")
	if each.Depth != 1 || each.Kind != Argument || !each.ReadOnly {
		t.Errorf("each = %+v", each)
	}
	inner, _ := chain.Resolve("sum")
	if inner.Depth != 1 || inner.Index != 1 {
		t.Errorf("inner sum = %+v, want depth 1 index 1", inner)
	}
	if chain.FrameSize() != 2 {
		t.Errorf("frame size = %d, want 2", chain.FrameSize())
	}

	chain.Pop()
	outer, _ := chain.Resolve("sum")
	if outer.Depth != 0 || outer.Index != 0 {
		t.Errorf("outer sum = %+v, want depth 0 index 0", outer)
	}
	if _, err := chain.Resolve("each"); !errors.Is(err, ErrUnboundIdentifier) {
		t.Errorf("block parameter still visible after Pop: %v", err)
	}
}

func TestChain_RejectsBadDeclarations(t *testing.T) {
	members, _ := ForInstanceMethod(model.NewClass("C", nil), nil)
	chain := NewChain(ReservedForInstanceMethod(), members)

	if err := chain.Push([]string{"a"}, []string{"a"}); !errors.Is(err, ErrAmbiguousBinding) {
		t.Errorf("duplicate local: got %v", err)
	}
	if err := chain.Push(nil, []string{"self"}); !errors.Is(err, ErrAmbiguousBinding) {
		t.Errorf("pseudo-variable local: got %v", err)
	}
	if chain.Depth() != -1 {
		t.Errorf("failed pushes left %d frames", chain.Depth()+1)
	}
}
