package vm

import (
	"strings"
	"testing"
)

func TestInspectorImmediates(t *testing.T) {
	vm := newTestVM(t)
	in := NewInspector(vm)

	cases := []struct {
		v         Value
		typ       string
		value     string
		className string
	}{
		{Nil, "nil", "nil", "NilClass"},
		{True, "bool", "true", "TrueClass"},
		{FromInt(42), "integer", "42", "Integer"},
		{FromFloat64(1.5), "float", "1.5", "Float"},
		{FromSymbol(vm.Intern("ok")), "symbol", ":ok", "Symbol"},
	}
	for _, tc := range cases {
		r := in.Inspect(tc.v)
		if r.Type != tc.typ || r.Value != tc.value || r.ClassName != tc.className {
			t.Errorf("Inspect(%s) = {%s %s %s}, want {%s %s %s}",
				tc.value, r.Type, r.Value, r.ClassName, tc.typ, tc.value, tc.className)
		}
	}
}

func TestInspectorArrayPreview(t *testing.T) {
	vm := newTestVM(t)
	vals := make([]int64, MaxElementPreview+5)
	for i := range vals {
		vals[i] = int64(i)
	}
	r := NewInspector(vm).Inspect(ints(vm, vals...))

	if r.Type != "array" {
		t.Errorf("Type = %q, want array", r.Type)
	}
	if r.Size != len(vals) {
		t.Errorf("Size = %d, want %d", r.Size, len(vals))
	}
	if len(r.Elements) != MaxElementPreview {
		t.Errorf("previewed %d elements, want %d", len(r.Elements), MaxElementPreview)
	}
	if r.Elements[3].Value != "3" {
		t.Errorf("Elements[3] = %q, want 3", r.Elements[3].Value)
	}
}

func TestInspectorHashPairs(t *testing.T) {
	vm := newTestVM(t)
	h := symHash(t, vm, "a", 1, "b", 2)
	r := NewInspector(vm).Inspect(h)

	if r.Size != 2 || len(r.Elements) != 4 {
		t.Fatalf("Size = %d, Elements = %d, want 2 and 4", r.Size, len(r.Elements))
	}
	if r.Elements[0].Value != ":a" || r.Elements[1].Value != "1" {
		t.Errorf("first pair = %s => %s", r.Elements[0].Value, r.Elements[1].Value)
	}
	s := r.String()
	if !strings.Contains(s, "elements (showing 2 of 2)") {
		t.Errorf("String() missing element header:\n%s", s)
	}
	if !strings.Contains(s, "key: :b") || !strings.Contains(s, "value: 2") {
		t.Errorf("String() missing pair lines:\n%s", s)
	}
}

func TestInspectorObjectIvars(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "Account", nil)
	obj := newInstance(t, vm, c)
	IvarSet(obj.Object(), vm.Intern("@owner"), vm.NewString("ann"))
	IvarSet(obj.Object(), vm.Intern("@balance"), FromInt(10))
	obj.Object().Basic().Freeze()

	r := NewInspector(vm).Inspect(obj)
	if r.ClassName != "Account" || r.Type != "object" {
		t.Errorf("ClassName = %q, Type = %q", r.ClassName, r.Type)
	}
	if !r.Frozen {
		t.Error("Frozen should be set")
	}
	if len(r.InstVars) != 2 || r.InstVars[0].Name != "@owner" || r.InstVars[1].Name != "@balance" {
		t.Fatalf("InstVars = %+v", r.InstVars)
	}
	if r.InstVars[0].Value.Value != `"ann"` {
		t.Errorf("@owner = %s", r.InstVars[0].Value.Value)
	}

	pp := r.PrettyPrint()
	for _, want := range []string{"class: Account", "frozen", "instance variables:", "@balance:", "integer: 10"} {
		if !strings.Contains(pp, want) {
			t.Errorf("PrettyPrint() missing %q:\n%s", want, pp)
		}
	}
}

func TestInspectorDepthLimit(t *testing.T) {
	vm := newTestVM(t)
	nested := vm.NewArray(vm.NewArray(vm.NewArray(FromInt(1))))
	in := NewInspector(vm)

	r := in.InspectDepth(nested, 1)
	if len(r.Elements) != 1 {
		t.Fatalf("depth 1 should preview the outer array")
	}
	if inner := r.Elements[0]; len(inner.Elements) != 0 || inner.Size != 1 {
		t.Errorf("inner at depth 0: Size = %d, Elements = %d", inner.Size, len(inner.Elements))
	}
	if r.Elements[0].Value != "[[1]]" {
		t.Errorf("inner summary = %q", r.Elements[0].Value)
	}
}

func TestInspectorNeverCallsUserCode(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "Loud", nil)
	called := false
	vm.DefineNative(c, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		called = true
		return vm.NewString("loud"), nil
	})
	r := NewInspector(vm).Inspect(newInstance(t, vm, c))
	if called {
		t.Error("Inspector called a user inspect method")
	}
	if !strings.HasPrefix(r.Value, "#<Loud") {
		t.Errorf("Value = %q, want the built-in rendering", r.Value)
	}
}

func TestInspectorClassShowsSuperclass(t *testing.T) {
	vm := newTestVM(t)
	base := mustClass(t, vm, "Base", nil)
	derived := mustClass(t, vm, "Derived", base)

	r := NewInspector(vm).Inspect(FromObject(derived))
	if r.Type != "class" {
		t.Errorf("Type = %q, want class", r.Type)
	}
	if len(r.InstVars) != 1 || r.InstVars[0].Name != "superclass" || r.InstVars[0].Value.Value != "Base" {
		t.Errorf("InstVars = %+v", r.InstVars)
	}
}
