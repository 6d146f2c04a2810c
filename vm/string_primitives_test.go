package vm

import (
	"testing"
)

func goString(t *testing.T, vm *VM, v Value) string {
	t.Helper()
	s := v.AsString()
	if s == nil {
		t.Fatalf("expected a String, got %s", vm.InspectString(v))
	}
	return s.String()
}

func TestStringDupSharesUntilWrite(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewString("garnet")
	b := mustSend(t, vm, a, "dup")

	if !a.AsString().Shared() || !b.AsString().Shared() {
		t.Fatal("dup should share the buffer")
	}
	mustSend(t, vm, b, "<<", vm.NewString("!"))
	if got := goString(t, vm, a); got != "garnet" {
		t.Errorf("original = %q after writing the copy", got)
	}
	if got := goString(t, vm, b); got != "garnet!" {
		t.Errorf("copy = %q, want %q", got, "garnet!")
	}
	if a.AsString().Shared() || b.AsString().Shared() {
		t.Error("the write should have split the buffer")
	}
}

func TestStringSubstrIsIndependent(t *testing.T) {
	vm := newTestVM(t)
	s := vm.NewString("hello world").AsString()
	sub := s.Substr(vm.StringClass, 6, 5)
	if sub.String() != "world" {
		t.Fatalf("Substr = %q", sub.String())
	}
	sub.SetByte(0, 'W')
	if s.String() != "hello world" || sub.String() != "World" {
		t.Errorf("s = %q, sub = %q", s.String(), sub.String())
	}
	sub.Append([]byte("s"))
	if sub.String() != "Worlds" || s.String() != "hello world" {
		t.Errorf("after append s = %q, sub = %q", s.String(), sub.String())
	}
}

func TestStringLiteralIsCopiedOnLoad(t *testing.T) {
	vm := newTestVM(t)

	// s = "abc"; s << "d"; run twice
	b := NewIrepBuilder(vm.Symbols, 1, 3)
	b.LoadString(1, "abc")
	b.LoadString(2, "d")
	b.Send(1, "<<", 1, 0, false)
	b.Emit(OpReturn, 1)
	irep := b.MustBuild()

	for i := 0; i < 2; i++ {
		if got := goString(t, vm, mustExec(t, vm, irep)); got != "abcd" {
			t.Errorf("run %d = %q, want abcd", i, got)
		}
	}
}

func TestFrozenStringRejectsWrites(t *testing.T) {
	vm := newTestVM(t)
	s := vm.NewString("ice")
	mustSend(t, vm, s, "freeze")

	if v := mustSend(t, vm, s, "frozen?"); !v.IsTrue() {
		t.Error("frozen? should be true")
	}
	for _, name := range []string{"<<", "replace"} {
		_, err := vm.Send(s, vm.Intern(name), vm.NewString("x"))
		exc := expectRaise(t, vm, err, vm.FrozenErrorClass)
		if exc.MessageString() != "can't modify frozen String" {
			t.Errorf("%s: message = %q", name, exc.MessageString())
		}
	}
	if got := goString(t, vm, s); got != "ice" {
		t.Errorf("frozen string changed to %q", got)
	}

	// dup of a frozen string is writable.
	d := mustSend(t, vm, s, "dup")
	mustSend(t, vm, d, "<<", vm.NewString("d"))
	if got := goString(t, vm, d); got != "iced" {
		t.Errorf("dup = %q, want iced", got)
	}
}

func TestStringPrimitives(t *testing.T) {
	vm := newTestVM(t)

	tests := []struct {
		recv string
		name string
		args []Value
		want string
	}{
		{"ab", "+", []Value{vm.NewString("cd")}, `"abcd"`},
		{"ab", "*", []Value{FromInt(3)}, `"ababab"`},
		{"héllo", "size", nil, "5"},
		{"héllo", "bytesize", nil, "6"},
		{"", "empty?", nil, "true"},
		{"garnet", "[]", []Value{FromInt(-1)}, `"t"`},
		{"garnet", "[]", []Value{FromInt(1), FromInt(3)}, `"arn"`},
		{"garnet", "[]", []Value{FromInt(10)}, "nil"},
		{"Hello", "upcase", nil, `"HELLO"`},
		{"hELLO", "capitalize", nil, `"Hello"`},
		{"abc", "reverse", nil, `"cba"`},
		{"  x  ", "strip", nil, `"x"`},
		{"a,b,,", "split", []Value{vm.NewString(",")}, `["a", "b"]`},
		{"a b  c", "split", nil, `["a", "b", "c"]`},
		{"42abc", "to_i", nil, "42"},
		{"ff", "to_i", []Value{FromInt(16)}, "255"},
		{"1_000", "to_i", nil, "1000"},
		{"2.5x", "to_f", nil, "2.5"},
		{"sym", "to_sym", nil, ":sym"},
		{"a\"b\n", "inspect", nil, `"\"a\\\"b\\n\""`},
		{"abc", "<=>", []Value{vm.NewString("abd")}, "-1"},
		{"abc", "==", []Value{vm.NewString("abc")}, "true"},
		{"abc", "==", []Value{FromInt(1)}, "false"},
		{"garnet", "include?", []Value{vm.NewString("rne")}, "true"},
		{"garnet", "start_with?", []Value{vm.NewString("x"), vm.NewString("gar")}, "true"},
	}
	for _, tc := range tests {
		v := mustSend(t, vm, vm.NewString(tc.recv), tc.name, tc.args...)
		if got := inspectOf(t, vm, v); got != tc.want {
			t.Errorf("%q.%s = %s, want %s", tc.recv, tc.name, got, tc.want)
		}
	}
}

func TestStringPrimitiveErrors(t *testing.T) {
	vm := newTestVM(t)
	s := vm.NewString("x")

	_, err := vm.Send(s, vm.Intern("+"), FromInt(1))
	exc := expectRaise(t, vm, err, vm.TypeErrorClass)
	if exc.MessageString() != "no implicit conversion of Integer into String" {
		t.Errorf("message = %q", exc.MessageString())
	}

	_, err = vm.Send(s, vm.Intern("*"), FromInt(-1))
	expectRaise(t, vm, err, vm.ArgumentErrorClass)

	_, err = vm.Send(s, vm.Intern("to_i"), FromInt(1))
	expectRaise(t, vm, err, vm.ArgumentErrorClass)
}

func TestStringAsHashKey(t *testing.T) {
	vm := newTestVM(t)
	h := vm.NewHash(0)
	if err := vm.HashSet(h, vm.NewString("k"), FromInt(1)); err != nil {
		t.Fatal(err)
	}
	v, err := vm.HashGet(h, vm.NewString("k"))
	if err != nil {
		t.Fatal(err)
	}
	if v.Int() != 1 {
		t.Errorf("h[\"k\"] = %s, want 1", vm.InspectString(v))
	}
}
