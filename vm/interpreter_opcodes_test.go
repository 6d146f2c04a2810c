package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

// def m; x = 7; begin; break out with JMPUW; ensure; $n += 1; end; x = 8; x; end
func TestJmpUWRunsEnsure(t *testing.T) {
	vm := newTestVM(t)
	vm.GlobalSet(vm.Intern("$n"), FromInt(0))

	m := NewIrepBuilder(vm.Symbols, 2, 6)
	done := m.NewLabel()
	m.LoadInt(1, 7)
	begin := m.Pos()
	m.Jump(OpJmpUW, done)
	end := m.Pos()
	target := emitEnsure(m)
	m.LoadInt(1, 8)
	m.Mark(done)
	m.Emit(OpReturn, 1)
	m.Handler(CatchEnsure, begin, end, target)
	defineIrepMethod(t, vm, vm.ObjectClass, "m", m.MustBuild())

	if v := mustSend(t, vm, vm.TopSelf(), "m"); v.Int() != 7 {
		t.Errorf("m = %s, want 7", vm.InspectString(v))
	}
	if n := vm.GlobalGet(vm.Intern("$n")); n.Int() != 1 {
		t.Errorf("$n = %s, want 1", vm.InspectString(n))
	}
	if d := vm.Context().Depth(); d != 0 {
		t.Errorf("Depth() = %d, want 0", d)
	}
}

// A JMPUW whose target stays inside the protected region is a plain jump.
func TestJmpUWInsideRegion(t *testing.T) {
	vm := newTestVM(t)
	vm.GlobalSet(vm.Intern("$n"), FromInt(0))

	m := NewIrepBuilder(vm.Symbols, 2, 6)
	skip := m.NewLabel()
	begin := m.Pos()
	m.LoadInt(1, 1)
	m.Jump(OpJmpUW, skip)
	m.LoadInt(1, 2)
	m.Mark(skip)
	m.Emit(OpAddI, 1, 10)
	end := m.Pos()
	target := emitEnsure(m)
	m.Emit(OpReturn, 1)
	m.Handler(CatchEnsure, begin, end, target)
	defineIrepMethod(t, vm, vm.ObjectClass, "m", m.MustBuild())

	if v := mustSend(t, vm, vm.TopSelf(), "m"); v.Int() != 11 {
		t.Errorf("m = %s, want 11", vm.InspectString(v))
	}
	if n := vm.GlobalGet(vm.Intern("$n")); n.Int() != 1 {
		t.Errorf("$n = %s, want 1 (ensure on fall-through only)", vm.InspectString(n))
	}
}

// x.nil? ? :none : :some
func TestJmpNil(t *testing.T) {
	vm := newTestVM(t)

	build := func(load func(b *IrepBuilder)) *Irep {
		b := NewIrepBuilder(vm.Symbols, 1, 3)
		isNil := b.NewLabel()
		load(b)
		b.JumpIf(OpJmpNil, 1, isNil)
		b.LoadSym(1, "some")
		b.Emit(OpReturn, 1)
		b.Mark(isNil)
		b.LoadSym(1, "none")
		b.Emit(OpReturn, 1)
		return b.MustBuild()
	}

	tests := []struct {
		name string
		load func(b *IrepBuilder)
		want string
	}{
		{"nil", func(b *IrepBuilder) { b.Emit(OpLoadNil, 1) }, "none"},
		{"false", func(b *IrepBuilder) { b.Emit(OpLoadF, 1) }, "some"},
		{"zero", func(b *IrepBuilder) { b.LoadInt(1, 0) }, "some"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := mustExec(t, vm, build(tt.load))
			if got := vm.Symbols.Name(v.Symbol()); got != tt.want {
				t.Errorf("result = :%s, want :%s", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// yield
// ---------------------------------------------------------------------------

// def twice; yield(1) + yield(2); end
func defineTwice(t *testing.T, vm *VM) {
	t.Helper()
	m := NewIrepBuilder(vm.Symbols, 2, 5)
	m.Enter(Aspec{})
	spec := int(ArgSpec16{}.Encode())
	m.Emit(OpBlkPush, 2, spec)
	m.LoadInt(3, 1)
	m.Send(2, "call", 1, 0, false)
	m.Emit(OpBlkPush, 3, spec)
	m.LoadInt(4, 2)
	m.Send(3, "call", 1, 0, false)
	m.Emit(OpAdd, 2)
	m.Emit(OpReturn, 2)
	defineIrepMethod(t, vm, vm.ObjectClass, "twice", m.MustBuild())
}

func TestYieldThroughBlkPush(t *testing.T) {
	vm := newTestVM(t)
	defineTwice(t, vm)

	v := sendBlock(t, vm, vm.TopSelf(), "twice", func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(args[0].Int() * 10), nil
	})
	if v.Int() != 30 {
		t.Errorf("twice { |x| x * 10 } = %s, want 30", vm.InspectString(v))
	}

	_, err := vm.Send(vm.TopSelf(), vm.Intern("twice"))
	exc := expectRaise(t, vm, err, vm.LocalJumpErrorClass)
	if exc.MessageString() != "no block given (yield)" {
		t.Errorf("message = %q", exc.MessageString())
	}
	if d := vm.Context().Depth(); d != 0 {
		t.Errorf("Depth() = %d after LocalJumpError, want 0", d)
	}
}

// twice { |x| break 11 }
func TestBreakOutOfYield(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols
	defineTwice(t, vm)

	blk := NewIrepBuilder(st, 2, 4)
	blk.Enter(Aspec{Req: 1})
	blk.LoadInt(3, 11)
	blk.Emit(OpBreak, 3)

	top := NewIrepBuilder(st, 1, 3)
	top.Emit(OpBlock, 2, top.Child(blk.MustBuild()))
	top.SSend(1, "twice", 0, 0, true)
	top.Emit(OpReturn, 1)

	if v := mustExec(t, vm, top.MustBuild()); v.Int() != 11 {
		t.Errorf("twice { break 11 } = %s, want 11", vm.InspectString(v))
	}
	if d := vm.Context().Depth(); d != 0 {
		t.Errorf("Depth() = %d, want 0", d)
	}
}

// def each_pair_yield; [1, 2].each { |x| yield x }; end
func TestYieldFromNestedBlock(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols

	inner := NewIrepBuilder(st, 2, 4)
	inner.Enter(Aspec{Req: 1})
	inner.Emit(OpBlkPush, 2, int(ArgSpec16{Level: 1}.Encode()))
	inner.Emit(OpMove, 3, 1)
	inner.Send(2, "call", 1, 0, false)
	inner.Emit(OpReturn, 2)

	m := NewIrepBuilder(st, 2, 5)
	m.Enter(Aspec{})
	m.LoadInt(2, 1)
	m.LoadInt(3, 2)
	m.Emit(OpArray, 2, 2)
	m.Emit(OpBlock, 3, m.Child(inner.MustBuild()))
	m.Send(2, "each", 0, 0, true)
	m.Emit(OpReturn, 2)
	defineIrepMethod(t, vm, vm.ObjectClass, "each_pair_yield", m.MustBuild())

	var seen []int64
	sendBlock(t, vm, vm.TopSelf(), "each_pair_yield", func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		seen = append(seen, args[0].Int())
		return Nil, nil
	})
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("yielded %v, want [1 2]", seen)
	}
}

// ---------------------------------------------------------------------------
// super
// ---------------------------------------------------------------------------

// class Base; def show(*args, **kw, &b); args + [kw, b ? true : false]; end; end
// class Derived < Base; def show(a, *r, z, **kw, &b); super; end; end
func TestZsuperRebuildsArguments(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols

	base := mustClass(t, vm, "Base", nil)
	vm.DefineNative(base, "show", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		out := append([]Value{}, args...)
		out = append(out, FromBool(block.IsProc()))
		return vm.NewArray(out...), nil
	})
	derived := mustClass(t, vm, "Derived", base)

	spec := Aspec{Req: 1, Rest: true, Post: 1, KDict: true, Block: true}
	m := NewIrepBuilder(st, 6, 10)
	m.Enter(spec)
	m.Emit(OpArgAry, 7, int(ArgSpec16{Req: 1, Rest: true, Post: 1, KDict: true}.Encode()))
	m.Emit(OpSuper, 6, packedArgs|packedArgs<<4)
	m.Emit(OpReturn, 6)
	defineIrepMethod(t, vm, derived, "show", m.MustBuild())

	obj := newInstance(t, vm, derived)
	mid := vm.Intern("show")
	blk := FromObject(vm.NewNativeProc(func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return Nil, nil
	}))

	v, err := vm.SendWithBlock(obj, mid, []Value{FromInt(1), FromInt(2), FromInt(3), FromInt(4)}, kwHash(t, vm, "k", 5), blk)
	if err != nil {
		t.Fatal(err)
	}
	if got := inspectOf(t, vm, v); got != "[1, 2, 3, 4, {:k=>5}, true]" {
		t.Errorf("show(1, 2, 3, 4, k: 5) { } = %s", got)
	}

	v, err = vm.SendWithBlock(obj, mid, []Value{FromInt(1), FromInt(2)}, nil, Nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := inspectOf(t, vm, v); got != "[1, 2, false]" {
		t.Errorf("show(1, 2) = %s", got)
	}
}

// ARGARY outside a method has nothing to rebuild.
func TestArgAryOutsideMethod(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 4)
	b.Emit(OpArgAry, 1, int(ArgSpec16{}.Encode()))
	b.Emit(OpReturn, 1)

	_, err := vm.Exec(b.MustBuild())
	exc := expectRaise(t, vm, err, vm.NoMethodErrorClass)
	if exc.MessageString() != "super: no superclass method" {
		t.Errorf("message = %q", exc.MessageString())
	}
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

func TestGetIdxFastPaths(t *testing.T) {
	vm := newTestVM(t)

	// [1, 2, 3][-1]
	b := NewIrepBuilder(vm.Symbols, 1, 4)
	loadArray123(b)
	b.LoadInt(2, -1)
	b.Emit(OpGetIdx, 1)
	b.Emit(OpReturn, 1)
	if v := mustExec(t, vm, b.MustBuild()); v.Int() != 3 {
		t.Errorf("[1, 2, 3][-1] = %s, want 3", vm.InspectString(v))
	}

	// {a: 1}[:a], {a: 1}[:b]
	for key, want := range map[string]string{"a": "1", "b": "nil"} {
		b := NewIrepBuilder(vm.Symbols, 1, 4)
		b.LoadSym(1, "a")
		b.LoadInt(2, 1)
		b.Emit(OpHash, 1, 1)
		b.LoadSym(2, key)
		b.Emit(OpGetIdx, 1)
		b.Emit(OpReturn, 1)
		if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != want {
			t.Errorf("{a: 1}[:%s] = %s, want %s", key, got, want)
		}
	}
}

// x = [1, 2, 3]; x[0] = 9; x
func TestSetIdxArray(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 5)
	loadArray123(b)
	b.Emit(OpMove, 4, 1)
	b.LoadInt(2, 0)
	b.LoadInt(3, 9)
	b.Emit(OpSetIdx, 1)
	b.Emit(OpArray2, 1, 1, 1)
	b.Emit(OpMove, 2, 4)
	b.Emit(OpArray, 1, 2)
	b.Emit(OpReturn, 1)

	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "[[9], [9, 2, 3]]" {
		t.Errorf("[x[0] = 9, x] = %s, want [[9], [9, 2, 3]]", got)
	}

	// [1, 2, 3][-5] = 0
	b = NewIrepBuilder(vm.Symbols, 1, 4)
	loadArray123(b)
	b.LoadInt(2, -5)
	b.LoadInt(3, 0)
	b.Emit(OpSetIdx, 1)
	b.Emit(OpReturn, 1)
	_, err := vm.Exec(b.MustBuild())
	exc := expectRaise(t, vm, err, vm.IndexErrorClass)
	if exc.MessageString() != "index -5 too small for array; minimum: -3" {
		t.Errorf("message = %q", exc.MessageString())
	}
}

// h = {}; h[:k] = 4; h
func TestSetIdxHashSends(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 5)
	b.Emit(OpHash, 1, 0)
	b.Emit(OpMove, 4, 1)
	b.LoadSym(2, "k")
	b.LoadInt(3, 4)
	b.Emit(OpSetIdx, 1)
	b.Emit(OpReturn, 4)

	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "{:k=>4}" {
		t.Errorf("h = %s, want {:k=>4}", got)
	}
}

// class Box; def [](i); i * 2; end; def []=(i, v); ...; end; end
func TestIndexFallsBackToSend(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols

	box := mustClass(t, vm, "Box", nil)
	vm.DefineNative(box, "[]", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(args[0].Int() * 2), nil
	})
	var stored []int64
	vm.DefineNative(box, "[]=", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		stored = append(stored, args[0].Int(), args[1].Int())
		return args[1], nil
	})

	// b = Box.new; b[3] = 4; [b[21], b[3] = 5]
	top := NewIrepBuilder(st, 2, 6)
	top.Emit(OpGetConst, 1, top.Sym("Box"))
	top.Send(1, "new", 0, 0, false)
	top.Emit(OpMove, 2, 1)
	top.LoadInt(3, 21)
	top.Emit(OpGetIdx, 2)
	top.Emit(OpMove, 3, 1)
	top.LoadInt(4, 3)
	top.LoadInt(5, 5)
	top.Emit(OpSetIdx, 3)
	top.Emit(OpArray, 2, 2)
	top.Emit(OpReturn, 2)

	if got := inspectOf(t, vm, mustExec(t, vm, top.MustBuild())); got != "[42, 5]" {
		t.Errorf("[b[21], b[3] = 5] = %s, want [42, 5]", got)
	}
	if len(stored) != 2 || stored[0] != 3 || stored[1] != 5 {
		t.Errorf("[]= received %v, want [3 5]", stored)
	}

	// A non-integer index on an Array skips the fast path too.
	b := NewIrepBuilder(st, 1, 4)
	loadArray123(b)
	b.LoadString(2, "x")
	b.Emit(OpGetIdx, 1)
	b.Emit(OpReturn, 1)
	_, err := vm.Exec(b.MustBuild())
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// $~ = 3; $~
func TestSpecialVariables(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 3)
	b.Emit(OpGetSV, 2, b.Sym("$~"))
	b.LoadInt(1, 3)
	b.Emit(OpSetSV, 1, b.Sym("$~"))
	b.Emit(OpGetSV, 1, b.Sym("$~"))
	b.Emit(OpArray, 1, 2)
	b.Emit(OpReturn, 1)

	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "[3, nil]" {
		t.Errorf("[$~ after set, $~ before] = %s, want [3, nil]", got)
	}
}

// class Counter; @@count = 10; def bump; @@count = @@count + 1; end; end
func TestClassVariablesFromBytecode(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols

	bump := NewIrepBuilder(st, 1, 3)
	bump.Enter(Aspec{})
	bump.Emit(OpGetCV, 1, bump.Sym("@@count"))
	bump.Emit(OpAddI, 1, 1)
	bump.Emit(OpSetCV, 1, bump.Sym("@@count"))
	bump.Emit(OpReturn, 1)

	body := NewIrepBuilder(st, 1, 3)
	body.LoadInt(1, 10)
	body.Emit(OpSetCV, 1, body.Sym("@@count"))
	body.Emit(OpTClass, 1)
	body.Emit(OpMethod, 2, body.Child(bump.MustBuild()))
	body.Emit(OpDef, 1, body.Sym("bump"))
	body.Emit(OpReturn, 1)

	top := NewIrepBuilder(st, 1, 4)
	top.Emit(OpLoadNil, 1)
	top.Emit(OpLoadNil, 2)
	top.Emit(OpClass, 1, top.Sym("Counter"))
	top.Emit(OpExec, 1, top.Child(body.MustBuild()))
	top.Emit(OpGetConst, 1, top.Sym("Counter"))
	top.Send(1, "new", 0, 0, false)
	top.Emit(OpMove, 2, 1)
	top.Send(2, "bump", 0, 0, false)
	top.Send(1, "bump", 0, 0, false)
	top.Emit(OpReturn, 1)

	if v := mustExec(t, vm, top.MustBuild()); v.Int() != 12 {
		t.Errorf("second bump = %s, want 12", vm.InspectString(v))
	}
	counter, err := vm.PathToClass("Counter")
	if err != nil {
		t.Fatal(err)
	}
	v, err := vm.ClassVarGet(counter, vm.Intern("@@count"))
	if err != nil || v.Int() != 12 {
		t.Errorf("Counter @@count = %s, %v; want 12", vm.InspectString(v), err)
	}
	if _, err := vm.ClassVarGet(vm.ObjectClass, vm.Intern("@@count")); err == nil {
		t.Error("@@count leaked onto Object")
	}
}

// def opt(k: 1); k; end
func TestKeyPDefaultsMissingKeyword(t *testing.T) {
	vm := newTestVM(t)

	m := NewIrepBuilder(vm.Symbols, 4, 5)
	given := m.NewLabel()
	done := m.NewLabel()
	m.Enter(Aspec{Key: 1})
	m.Emit(OpKeyP, 4, m.Sym("k"))
	m.JumpIf(OpJmpIf, 4, given)
	m.LoadInt(3, 1)
	m.Jump(OpJmp, done)
	m.Mark(given)
	m.Emit(OpKArg, 3, m.Sym("k"))
	m.Mark(done)
	m.Emit(OpKeyEnd)
	m.Emit(OpReturn, 3)
	defineIrepMethod(t, vm, vm.ObjectClass, "opt", m.MustBuild())
	mid := vm.Intern("opt")

	kw := kwHash(t, vm, "k", 5)
	v, err := vm.SendWithBlock(vm.TopSelf(), mid, nil, kw, Nil)
	if err != nil || v.Int() != 5 {
		t.Errorf("opt(k: 5) = %s, %v; want 5", vm.InspectString(v), err)
	}
	if kw.Len() != 1 {
		t.Errorf("caller's keyword hash has %d entries after the call, want 1", kw.Len())
	}

	v, err = vm.SendWithBlock(vm.TopSelf(), mid, nil, nil, Nil)
	if err != nil || v.Int() != 1 {
		t.Errorf("opt = %s, %v; want 1", vm.InspectString(v), err)
	}

	_, err = vm.SendWithBlock(vm.TopSelf(), mid, nil, kwHash(t, vm, "j", 2), Nil)
	exc := expectRaise(t, vm, err, vm.ArgumentErrorClass)
	if exc.MessageString() != "unknown keyword: :j" {
		t.Errorf("message = %q", exc.MessageString())
	}
}

// ---------------------------------------------------------------------------
// Definitions
// ---------------------------------------------------------------------------

// o = Object.new; class << o; def hi; "single"; end; end; o.hi
func TestSingletonClassBody(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols

	hi := NewIrepBuilder(st, 1, 2).
		Enter(Aspec{}).
		LoadString(1, "single").
		Emit(OpReturn, 1).
		MustBuild()

	body := NewIrepBuilder(st, 1, 3)
	body.Emit(OpTClass, 1)
	body.Emit(OpMethod, 2, body.Child(hi))
	body.Emit(OpDef, 1, body.Sym("hi"))
	body.Emit(OpReturn, 1)

	top := NewIrepBuilder(st, 1, 3)
	top.Emit(OpGetConst, 1, top.Sym("Object"))
	top.Send(1, "new", 0, 0, false)
	top.Emit(OpMove, 2, 1)
	top.Emit(OpSClass, 2)
	top.Emit(OpExec, 2, top.Child(body.MustBuild()))
	top.Emit(OpMove, 2, 1)
	top.Send(2, "hi", 0, 0, false)
	top.Emit(OpArray, 1, 2)
	top.Emit(OpReturn, 1)

	pair := mustExec(t, vm, top.MustBuild()).AsArray()
	if got := goString(t, vm, pair.At(1)); got != "single" {
		t.Errorf("o.hi = %q, want single", got)
	}
	if !vm.RespondTo(pair.At(0), vm.Intern("hi")) {
		t.Error("o should respond to hi")
	}
	other := newInstance(t, vm, vm.ObjectClass)
	if vm.RespondTo(other, vm.Intern("hi")) {
		t.Error("hi leaked onto Object")
	}
}

// module Greet; def hello; "hello"; end; alias hi hello; undef hello; end
func TestModuleAliasUndef(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols

	hello := NewIrepBuilder(st, 1, 2).
		Enter(Aspec{}).
		LoadString(1, "hello").
		Emit(OpReturn, 1).
		MustBuild()

	body := NewIrepBuilder(st, 1, 3)
	body.Emit(OpTClass, 1)
	body.Emit(OpMethod, 2, body.Child(hello))
	body.Emit(OpDef, 1, body.Sym("hello"))
	body.Emit(OpAlias, body.Sym("hi"), body.Sym("hello"))
	body.Emit(OpUndef, body.Sym("hello"))
	body.Emit(OpReturn, 1)

	top := NewIrepBuilder(st, 1, 3)
	top.Emit(OpLoadNil, 1)
	top.Emit(OpModule, 1, top.Sym("Greet"))
	top.Emit(OpExec, 1, top.Child(body.MustBuild()))
	top.Emit(OpReturn, 1)
	mustExec(t, vm, top.MustBuild())

	greet, err := vm.PathToClass("Greet")
	if err != nil {
		t.Fatal(err)
	}
	if !greet.IsModule() {
		t.Fatalf("Greet is a %s", vm.ClassName(vm.ClassOf(FromObject(greet))))
	}
	c := mustClass(t, vm, "Greeter", nil)
	if err := vm.IncludeModule(c, greet); err != nil {
		t.Fatal(err)
	}
	obj := newInstance(t, vm, c)
	if got := sendString(t, vm, obj, "hi"); got != "hello" {
		t.Errorf("hi = %q, want hello", got)
	}
	_, err = vm.Send(obj, vm.Intern("hello"))
	expectRaise(t, vm, err, vm.NoMethodErrorClass)

	// Reopening with MODULE returns the same module.
	again := NewIrepBuilder(st, 1, 2)
	again.Emit(OpLoadNil, 1)
	again.Emit(OpModule, 1, again.Sym("Greet"))
	again.Emit(OpReturn, 1)
	if v := mustExec(t, vm, again.MustBuild()); v.AsClass() != greet {
		t.Errorf("reopened Greet = %s", vm.InspectString(v))
	}

	// undef of a method that does not exist
	bad := NewIrepBuilder(st, 1, 2)
	bad.Emit(OpUndef, bad.Sym("nope"))
	bad.Emit(OpReturn, 1)
	_, err = vm.Exec(bad.MustBuild())
	expectRaise(t, vm, err, vm.NameErrorClass)
}

// Geo::ANSWER = 42; Geo::ANSWER
func TestScopedConstants(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols
	geo := mustModule(t, vm, "Geo")

	b := NewIrepBuilder(st, 1, 3)
	b.LoadInt(1, 42)
	b.Emit(OpGetConst, 2, b.Sym("Geo"))
	b.Emit(OpSetMCnst, 1, b.Sym("ANSWER"))
	b.Emit(OpGetConst, 1, b.Sym("Geo"))
	b.Emit(OpGetMCnst, 1, b.Sym("ANSWER"))
	b.Emit(OpReturn, 1)

	if v := mustExec(t, vm, b.MustBuild()); v.Int() != 42 {
		t.Errorf("Geo::ANSWER = %s, want 42", vm.InspectString(v))
	}
	if v, err := vm.ConstGet(geo, vm.Intern("ANSWER")); err != nil || v.Int() != 42 {
		t.Errorf("ConstGet(Geo, ANSWER) = %s, %v", vm.InspectString(v), err)
	}

	missing := NewIrepBuilder(st, 1, 2)
	missing.Emit(OpGetConst, 1, missing.Sym("Geo"))
	missing.Emit(OpGetMCnst, 1, missing.Sym("NOPE"))
	missing.Emit(OpReturn, 1)
	_, err := vm.Exec(missing.MustBuild())
	expectRaise(t, vm, err, vm.NameErrorClass)

	// 1::X = 2
	notMod := NewIrepBuilder(st, 1, 3)
	notMod.LoadInt(1, 2)
	notMod.LoadInt(2, 1)
	notMod.Emit(OpSetMCnst, 1, notMod.Sym("X"))
	notMod.Emit(OpReturn, 1)
	_, err = vm.Exec(notMod.MustBuild())
	exc := expectRaise(t, vm, err, vm.TypeErrorClass)
	if exc.MessageString() != "1 is not a class/module" {
		t.Errorf("message = %q", exc.MessageString())
	}
}

// ---------------------------------------------------------------------------
// Literals and collections
// ---------------------------------------------------------------------------

// {a: 1, **{b: 2}, **nil}
func TestHashCat(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 4)
	b.LoadSym(1, "a")
	b.LoadInt(2, 1)
	b.Emit(OpHash, 1, 1)
	b.LoadSym(2, "b")
	b.LoadInt(3, 2)
	b.Emit(OpHash, 2, 1)
	b.Emit(OpHashCat, 1)
	b.Emit(OpLoadNil, 2)
	b.Emit(OpHashCat, 1)
	b.Emit(OpReturn, 1)

	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "{:a=>1, :b=>2}" {
		t.Errorf("result = %s, want {:a=>1, :b=>2}", got)
	}

	bad := NewIrepBuilder(vm.Symbols, 1, 3)
	bad.Emit(OpHash, 1, 0)
	bad.LoadInt(2, 3)
	bad.Emit(OpHashCat, 1)
	bad.Emit(OpReturn, 1)
	_, err := vm.Exec(bad.MustBuild())
	exc := expectRaise(t, vm, err, vm.TypeErrorClass)
	if exc.MessageString() != "no implicit conversion of Integer into Hash" {
		t.Errorf("message = %q", exc.MessageString())
	}
}

// _, *r, z = [1, 2, 3, 4]; [r, z]
func TestAPost(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 5)
	for i := 1; i <= 4; i++ {
		b.LoadInt(i, int64(i))
	}
	b.Emit(OpArray, 1, 4)
	b.Emit(OpAPost, 1, 1, 1)
	b.Emit(OpArray, 1, 2)
	b.Emit(OpReturn, 1)
	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "[[2, 3], 4]" {
		t.Errorf("[r, z] = %s, want [[2, 3], 4]", got)
	}

	// _, *r, y, z = [1]
	short := NewIrepBuilder(vm.Symbols, 1, 4)
	short.LoadInt(1, 1)
	short.Emit(OpArray, 1, 1)
	short.Emit(OpAPost, 1, 1, 2)
	short.Emit(OpArray, 1, 3)
	short.Emit(OpReturn, 1)
	if got := inspectOf(t, vm, mustExec(t, vm, short.MustBuild())); got != "[[], nil, nil]" {
		t.Errorf("[r, y, z] = %s, want [[], nil, nil]", got)
	}
}

// x = [7, 8]; [[1, *x, 2], x]
func TestArraySplatOps(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 2, 5)
	b.LoadInt(2, 7)
	b.LoadInt(3, 8)
	b.Emit(OpArray, 2, 2)
	b.Emit(OpMove, 1, 2)
	b.LoadInt(2, 1)
	b.Emit(OpArray, 2, 1)
	b.Emit(OpMove, 3, 1)
	b.Emit(OpAryCat, 2)
	b.LoadInt(3, 2)
	b.Emit(OpAryPush, 2, 1)
	b.Emit(OpMove, 3, 1)
	b.Emit(OpArray, 2, 2)
	b.Emit(OpReturn, 2)

	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "[[1, 7, 8, 2], [7, 8]]" {
		t.Errorf("result = %s, want [[1, 7, 8, 2], [7, 8]]", got)
	}
}

// y = x.dup-by-splat; y << 9; [x, y]
func TestAryDup(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 5)
	loadArray123(b)
	b.Emit(OpMove, 2, 1)
	b.Emit(OpAryDup, 2)
	b.LoadInt(3, 9)
	b.Emit(OpAryPush, 2, 1)
	b.Emit(OpArray, 1, 2)
	b.Emit(OpReturn, 1)
	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "[[1, 2, 3], [1, 2, 3, 9]]" {
		t.Errorf("[x, y] = %s", got)
	}

	// [*nil], [*5]
	for _, tt := range []struct {
		load func(b *IrepBuilder)
		want string
	}{
		{func(b *IrepBuilder) { b.Emit(OpLoadNil, 1) }, "[]"},
		{func(b *IrepBuilder) { b.LoadInt(1, 5) }, "[5]"},
	} {
		b := NewIrepBuilder(vm.Symbols, 1, 2)
		tt.load(b)
		b.Emit(OpAryDup, 1)
		b.Emit(OpReturn, 1)
		if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != tt.want {
			t.Errorf("splat dup = %s, want %s", got, tt.want)
		}
	}

	// ARYPUSH onto a non-array
	bad := NewIrepBuilder(vm.Symbols, 1, 3)
	bad.LoadInt(1, 1)
	bad.LoadInt(2, 2)
	bad.Emit(OpAryPush, 1, 1)
	bad.Emit(OpReturn, 1)
	_, err := vm.Exec(bad.MustBuild())
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

// [(1..3).to_a, (1...3).to_a]
func TestRangeOps(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 4)
	b.LoadInt(1, 1)
	b.LoadInt(2, 3)
	b.Emit(OpRangeInc, 1)
	b.Send(1, "to_a", 0, 0, false)
	b.LoadInt(2, 1)
	b.LoadInt(3, 3)
	b.Emit(OpRangeExc, 2)
	b.Send(2, "to_a", 0, 0, false)
	b.Emit(OpArray, 1, 2)
	b.Emit(OpReturn, 1)

	if got := inspectOf(t, vm, mustExec(t, vm, b.MustBuild())); got != "[[1, 2, 3], [1, 2]]" {
		t.Errorf("result = %s, want [[1, 2, 3], [1, 2]]", got)
	}
}

// "a#{42}"
func TestStrCat(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 3)
	b.LoadString(1, "a")
	b.LoadInt(2, 42)
	b.Emit(OpStrCat, 1)
	b.LoadSym(2, "b")
	b.Emit(OpStrCat, 1)
	b.Emit(OpReturn, 1)
	irep := b.MustBuild()

	// Running twice shows the literal in the pool is not mutated.
	for i := 0; i < 2; i++ {
		if got := goString(t, vm, mustExec(t, vm, irep)); got != "a42b" {
			t.Errorf("run %d: result = %q, want a42b", i+1, got)
		}
	}
}

// :"#{"ab"}c"
func TestIntern(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 3)
	b.LoadString(1, "ab")
	b.LoadString(2, "c")
	b.Emit(OpStrCat, 1)
	b.Emit(OpIntern, 1)
	b.Emit(OpReturn, 1)

	v := mustExec(t, vm, b.MustBuild())
	if !v.IsSymbol() || v.Symbol() != vm.Intern("abc") {
		t.Errorf("result = %s, want :abc", vm.InspectString(v))
	}

	bad := NewIrepBuilder(vm.Symbols, 1, 2)
	bad.LoadInt(1, 1)
	bad.Emit(OpIntern, 1)
	bad.Emit(OpReturn, 1)
	_, err := vm.Exec(bad.MustBuild())
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestErrRaisesLocalJumpError(t *testing.T) {
	vm := newTestVM(t)

	b := NewIrepBuilder(vm.Symbols, 1, 2)
	b.Emit(OpErr, b.Lit(StringLiteral([]byte("retry outside of rescue clause"))))
	b.Emit(OpReturn, 1)

	_, err := vm.Exec(b.MustBuild())
	exc := expectRaise(t, vm, err, vm.LocalJumpErrorClass)
	if exc.MessageString() != "retry outside of rescue clause" {
		t.Errorf("message = %q", exc.MessageString())
	}
	if d := vm.Context().Depth(); d != 0 {
		t.Errorf("Depth() = %d, want 0", d)
	}
}
