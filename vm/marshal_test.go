package vm

import (
	"testing"
)

func roundTrip(t *testing.T, vm *VM, v Value) Value {
	t.Helper()
	b, err := vm.MarshalDump(v)
	if err != nil {
		t.Fatalf("MarshalDump(%s): %v", vm.InspectString(v), err)
	}
	out, err := vm.MarshalLoad(b)
	if err != nil {
		t.Fatalf("MarshalLoad: %v", err)
	}
	return out
}

func TestMarshalRoundTripsCoreValues(t *testing.T) {
	vm := newTestVM(t)
	h := vm.NewHash(0)
	if err := vm.HashSet(h, FromSymbol(vm.Intern("k")), vm.NewString("v")); err != nil {
		t.Fatal(err)
	}
	r, err := vm.NewRange(FromInt(1), FromInt(5), true)
	if err != nil {
		t.Fatal(err)
	}

	cases := []Value{
		Nil,
		True,
		False,
		FromInt(-42),
		FromFloat64(2.5),
		FromSymbol(vm.Intern("sym")),
		vm.NewString("café"),
		vm.NewArray(FromInt(1), vm.NewString("two"), vm.NewArray(Nil)),
		FromObject(h),
		r,
		FromObject(vm.StringClass),
		FromObject(vm.KernelModule),
	}
	for _, v := range cases {
		want := vm.InspectString(v)
		if got := vm.InspectString(roundTrip(t, vm, v)); got != want {
			t.Errorf("round trip of %s = %s", want, got)
		}
	}
}

func TestMarshalPreservesObjectsAndIvars(t *testing.T) {
	vm := newTestVM(t)
	point := mustClass(t, vm, "Point", nil)
	p := newInstance(t, vm, point)
	IvarSet(p.Object(), vm.Intern("@x"), FromInt(3))
	IvarSet(p.Object(), vm.Intern("@y"), vm.NewArray(FromInt(4)))
	p.Object().Basic().Freeze()

	out := roundTrip(t, vm, p)
	if out.Object() == p.Object() {
		t.Fatal("load should build a new object")
	}
	if c := vm.RealClassOf(out); c != point {
		t.Errorf("class = %s, want Point", vm.ClassName(c))
	}
	if x := IvarGet(out, vm.Intern("@x")); x.Int() != 3 {
		t.Errorf("@x = %s, want 3", vm.InspectString(x))
	}
	if y := vm.InspectString(IvarGet(out, vm.Intern("@y"))); y != "[4]" {
		t.Errorf("@y = %s, want [4]", y)
	}
	if !out.Object().Basic().Frozen() {
		t.Error("frozen flag should survive a round trip")
	}
}

func TestMarshalNestedClassPath(t *testing.T) {
	vm := newTestVM(t)
	outer := mustModule(t, vm, "Geo")
	inner, err := vm.DefineClassUnder(outer, vm.Intern("Coord"), vm.ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	out := roundTrip(t, vm, newInstance(t, vm, inner))
	if c := vm.RealClassOf(out); c != inner {
		t.Errorf("class = %s, want Geo::Coord", vm.ClassName(c))
	}
}

func TestMarshalException(t *testing.T) {
	vm := newTestVM(t)
	exc := vm.NewException(vm.ArgumentErrorClass, "bad input")
	out := roundTrip(t, vm, FromObject(exc)).AsException()
	if out == nil {
		t.Fatal("load did not produce an exception")
	}
	if out.MessageString() != "bad input" {
		t.Errorf("message = %q, want bad input", out.MessageString())
	}
	if !vm.KindOf(FromObject(out), vm.ArgumentErrorClass) {
		t.Errorf("class = %s, want ArgumentError", vm.ClassName(vm.RealClassOf(FromObject(out))))
	}
}

func TestMarshalRejectsUnsupportedGraphs(t *testing.T) {
	vm := newTestVM(t)

	cyclic := vm.NewArray()
	cyclic.AsArray().Push(cyclic)
	_, err := vm.MarshalDump(cyclic)
	expectRaise(t, vm, err, vm.ArgumentErrorClass)

	proc := FromObject(vm.NewNativeProc(func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return Nil, nil
	}))
	_, err = vm.MarshalDump(proc)
	expectRaise(t, vm, err, vm.TypeErrorClass)

	obj := newInstance(t, vm, vm.ObjectClass)
	vm.DefineSingletonNative(obj, "hello", 0, 0, returns("hi"))
	_, err = vm.MarshalDump(obj)
	exc := expectRaise(t, vm, err, vm.TypeErrorClass)
	if msg := exc.MessageString(); msg != "singleton can't be dumped" {
		t.Errorf("message = %q", msg)
	}

	anon, err := vm.NewClass(vm.ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	_, err = vm.MarshalDump(newInstance(t, vm, anon))
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

func TestMarshalSharedReferencesAreNotCycles(t *testing.T) {
	vm := newTestVM(t)
	shared := vm.NewString("x")
	a := vm.NewArray(shared, shared)
	if got := vm.InspectString(roundTrip(t, vm, a)); got != `["x", "x"]` {
		t.Errorf("round trip = %s", got)
	}
}

func TestMarshalLoadErrors(t *testing.T) {
	vm := newTestVM(t)

	_, err := vm.MarshalLoad([]byte("not msgpack"))
	expectRaise(t, vm, err, vm.TypeErrorClass)

	c := mustClass(t, vm, "Temporary", nil)
	b, err := vm.MarshalDump(newInstance(t, vm, c))
	if err != nil {
		t.Fatal(err)
	}
	other := newTestVM(t)
	_, err = other.MarshalLoad(b)
	exc := expectRaise(t, other, err, other.ArgumentErrorClass)
	if msg := exc.MessageString(); msg != "undefined class/module Temporary" {
		t.Errorf("message = %q", msg)
	}
}

func TestMarshalModuleFunctions(t *testing.T) {
	vm := newTestVM(t)
	m := FromObject(vm.MarshalModule)
	dumped := mustSend(t, vm, m, "dump", vm.NewArray(FromInt(1), FromSymbol(vm.Intern("a"))))
	if !dumped.IsString() {
		t.Fatalf("Marshal.dump returned %s", vm.InspectString(dumped))
	}
	loaded := mustSend(t, vm, m, "load", dumped)
	if got := vm.InspectString(loaded); got != "[1, :a]" {
		t.Errorf("Marshal.load = %s, want [1, :a]", got)
	}
}
