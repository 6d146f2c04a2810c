package vm

import (
	"testing"
)

func returns(s string) NativeFunc {
	return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(s), nil
	}
}

func sendString(t *testing.T, vm *VM, recv Value, name string) string {
	t.Helper()
	v := mustSend(t, vm, recv, name)
	s := v.AsString()
	if s == nil {
		t.Fatalf("%s returned %s, want a String", name, vm.InspectString(v))
	}
	return s.String()
}

func newInstance(t *testing.T, vm *VM, c *RClass) Value {
	t.Helper()
	return mustSend(t, vm, FromObject(c), "new")
}

func mustClass(t *testing.T, vm *VM, name string, super *RClass) *RClass {
	t.Helper()
	c, err := vm.DefineClass(name, super)
	if err != nil {
		t.Fatalf("DefineClass(%s): %v", name, err)
	}
	return c
}

func mustModule(t *testing.T, vm *VM, name string) *RClass {
	t.Helper()
	m, err := vm.DefineModule(name)
	if err != nil {
		t.Fatalf("DefineModule(%s): %v", name, err)
	}
	return m
}

// ---------------------------------------------------------------------------
// Class definition
// ---------------------------------------------------------------------------

func TestDefineClass(t *testing.T) {
	vm := newTestVM(t)
	base := mustClass(t, vm, "Base", vm.ObjectClass)
	derived := mustClass(t, vm, "Derived", base)

	if derived.Super() != base {
		t.Errorf("Derived.superclass = %s, want Base", vm.ClassName(derived.Super()))
	}
	if !derived.IsSubclassOf(vm.ObjectClass) {
		t.Error("Derived should be a subclass of Object")
	}

	again, err := vm.DefineClass("Derived", base)
	if err != nil {
		t.Fatalf("reopening Derived: %v", err)
	}
	if again != derived {
		t.Error("reopening a class should return the existing class")
	}

	_, err = vm.DefineClass("Derived", vm.StringClass)
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

func TestDefineClassUnder(t *testing.T) {
	vm := newTestVM(t)
	outer := mustModule(t, vm, "Outer")
	inner, err := vm.DefineClassUnder(outer, vm.Intern("Inner"), vm.ObjectClass)
	if err != nil {
		t.Fatal(err)
	}
	if got := vm.ClassName(inner); got != "Outer::Inner" {
		t.Errorf("name = %s, want Outer::Inner", got)
	}
	found, err := vm.PathToClass("Outer::Inner")
	if err != nil {
		t.Fatal(err)
	}
	if found != inner {
		t.Error("Outer::Inner does not resolve to the defined class")
	}
}

func TestCannotSubclassClass(t *testing.T) {
	vm := newTestVM(t)
	_, err := vm.NewClass(vm.ClassClass)
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

// ---------------------------------------------------------------------------
// Method resolution order
// ---------------------------------------------------------------------------

func TestIncludeFindsModuleBeforeSuperclass(t *testing.T) {
	vm := newTestVM(t)
	s := mustClass(t, vm, "S", vm.ObjectClass)
	c := mustClass(t, vm, "C", s)
	m := mustModule(t, vm, "M")
	vm.DefineNative(s, "hi", 0, 0, returns("S"))
	vm.DefineNative(m, "hi", 0, 0, returns("M"))

	obj := newInstance(t, vm, c)
	if got := sendString(t, vm, obj, "hi"); got != "S" {
		t.Fatalf("before include: hi = %s, want S", got)
	}

	if err := vm.IncludeModule(c, m); err != nil {
		t.Fatal(err)
	}
	_, owner, ok := vm.TryFindMethod(c, vm.Intern("hi"))
	if !ok || !owner.IsIClass() || owner.Module() != m {
		t.Errorf("TryFindMethod(C, :hi) owner = %v, want include-class of M", owner)
	}
	if got := sendString(t, vm, obj, "hi"); got != "M" {
		t.Errorf("after include: hi = %s, want M", got)
	}

	want := "C M S Object Kernel BasicObject"
	if got := ancestorNames(vm, c); got != want {
		t.Errorf("ancestors = %s, want %s", got, want)
	}
}

func TestIncludeIsIdempotent(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "C", vm.ObjectClass)
	m := mustModule(t, vm, "M")

	if err := vm.IncludeModule(c, m); err != nil {
		t.Fatal(err)
	}
	before := len(vm.Ancestors(c))
	if err := vm.IncludeModule(c, m); err != nil {
		t.Fatal(err)
	}
	if after := len(vm.Ancestors(c)); after != before {
		t.Errorf("chain length after second include = %d, want %d", after, before)
	}

	// A subclass including a module its superclass already has is also a
	// no-op.
	d := mustClass(t, vm, "D", c)
	if err := vm.IncludeModule(d, m); err != nil {
		t.Fatal(err)
	}
	want := "D C M Object Kernel BasicObject"
	if got := ancestorNames(vm, d); got != want {
		t.Errorf("ancestors = %s, want %s", got, want)
	}
}

func TestIncludeTransitiveModules(t *testing.T) {
	vm := newTestVM(t)
	a := mustModule(t, vm, "A")
	b := mustModule(t, vm, "B")
	if err := vm.IncludeModule(b, a); err != nil {
		t.Fatal(err)
	}
	c := mustClass(t, vm, "C", vm.ObjectClass)
	if err := vm.IncludeModule(c, b); err != nil {
		t.Fatal(err)
	}
	want := "C B A Object Kernel BasicObject"
	if got := ancestorNames(vm, c); got != want {
		t.Errorf("ancestors = %s, want %s", got, want)
	}

	// Methods added to a module after inclusion are visible.
	vm.DefineNative(a, "late", 0, 0, returns("late"))
	if got := sendString(t, vm, newInstance(t, vm, c), "late"); got != "late" {
		t.Errorf("late = %s, want late", got)
	}
}

func TestIncludeCycleRejected(t *testing.T) {
	vm := newTestVM(t)
	a := mustModule(t, vm, "A")
	b := mustModule(t, vm, "B")

	err := vm.IncludeModule(a, a)
	expectRaise(t, vm, err, vm.ArgumentErrorClass)

	if err := vm.IncludeModule(a, b); err != nil {
		t.Fatal(err)
	}
	err = vm.IncludeModule(b, a)
	exc := expectRaise(t, vm, err, vm.ArgumentErrorClass)
	if exc.MessageString() != "cyclic include detected" {
		t.Errorf("message = %q", exc.MessageString())
	}
}

func TestPrependCycleLeavesTargetUnchanged(t *testing.T) {
	vm := newTestVM(t)
	a := mustModule(t, vm, "A")
	b := mustModule(t, vm, "B")
	vm.DefineNative(a, "hi", 0, 0, returns("A"))
	if err := vm.IncludeModule(b, a); err != nil {
		t.Fatal(err)
	}
	super, mt := a.super, a.mt

	err := vm.PrependModule(a, b)
	exc := expectRaise(t, vm, err, vm.ArgumentErrorClass)
	if exc.MessageString() != "cyclic prepend detected" {
		t.Errorf("message = %q", exc.MessageString())
	}
	if a.IsPrepended() {
		t.Error("A should not be flagged as prepended after a rejected prepend")
	}
	if a.super != super || a.mt != mt {
		t.Error("A's chain or method table changed after a rejected prepend")
	}
	if _, ok := a.mt.Get(vm.Intern("hi")); !ok {
		t.Error("A lost its own method")
	}
	if got := ancestorNames(vm, a); got != "A" {
		t.Errorf("ancestors = %s, want A", got)
	}

	expectRaise(t, vm, vm.PrependModule(a, a), vm.ArgumentErrorClass)
	if a.IsPrepended() {
		t.Error("A should not be flagged as prepended after prepending itself")
	}
}

func TestIncludeRequiresModule(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "C", vm.ObjectClass)
	err := vm.IncludeModule(c, vm.StringClass)
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

func TestPrependWinsAndReachesOriginalViaSuper(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols
	c := mustClass(t, vm, "C", vm.ObjectClass)
	p := mustModule(t, vm, "P")
	vm.DefineNative(c, "hi", 0, 0, returns("C"))

	// def hi; "P" + super; end
	hi := NewIrepBuilder(st, 1, 4)
	hi.Enter(Aspec{})
	hi.LoadString(1, "P")
	hi.Emit(OpSuper, 2, 0)
	hi.Emit(OpAdd, 1)
	hi.Emit(OpReturn, 1)
	defineIrepMethod(t, vm, p, "hi", hi.MustBuild())

	if err := vm.PrependModule(c, p); err != nil {
		t.Fatal(err)
	}
	if !c.IsPrepended() {
		t.Error("C should be flagged as prepended")
	}
	if got := sendString(t, vm, newInstance(t, vm, c), "hi"); got != "PC" {
		t.Errorf("hi = %s, want PC", got)
	}

	want := "P C Object Kernel BasicObject"
	if got := ancestorNames(vm, c); got != want {
		t.Errorf("ancestors = %s, want %s", got, want)
	}

	// Methods defined after the prepend land in the origin and stay
	// behind P.
	vm.DefineNative(c, "hi", 0, 0, returns("C2"))
	if got := sendString(t, vm, newInstance(t, vm, c), "hi"); got != "PC2" {
		t.Errorf("hi after redefinition = %s, want PC2", got)
	}

	// Prepending again does not duplicate P.
	before := len(vm.Ancestors(c))
	if err := vm.PrependModule(c, p); err != nil {
		t.Fatal(err)
	}
	if after := len(vm.Ancestors(c)); after != before {
		t.Errorf("chain length after second prepend = %d, want %d", after, before)
	}
}

func TestIncludeAfterPrepend(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "C", vm.ObjectClass)
	p := mustModule(t, vm, "P")
	m := mustModule(t, vm, "M")
	if err := vm.PrependModule(c, p); err != nil {
		t.Fatal(err)
	}
	if err := vm.IncludeModule(c, m); err != nil {
		t.Fatal(err)
	}
	want := "P C M Object Kernel BasicObject"
	if got := ancestorNames(vm, c); got != want {
		t.Errorf("ancestors = %s, want %s", got, want)
	}
}

// ---------------------------------------------------------------------------
// Singleton classes
// ---------------------------------------------------------------------------

func TestSingletonClassIsLazy(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "C", vm.ObjectClass)
	obj := newInstance(t, vm, c)

	if vm.ClassOf(obj) != c {
		t.Fatal("a fresh object should not have a singleton class")
	}
	sc, err := vm.SingletonClassOf(obj)
	if err != nil {
		t.Fatal(err)
	}
	if !sc.IsSingleton() || sc.Attached() != obj.Object() {
		t.Error("singleton class should be attached to obj")
	}
	again, _ := vm.SingletonClassOf(obj)
	if again != sc {
		t.Error("singleton class should be cached")
	}
	if vm.RealClassOf(obj) != c {
		t.Errorf("RealClassOf = %s, want C", vm.ClassName(vm.RealClassOf(obj)))
	}

	vm.DefineSingletonNative(obj, "only_me", 0, 0, returns("me"))
	if got := sendString(t, vm, obj, "only_me"); got != "me" {
		t.Errorf("only_me = %s", got)
	}
	other := newInstance(t, vm, c)
	_, err = vm.Send(other, vm.Intern("only_me"))
	expectRaise(t, vm, err, vm.NoMethodErrorClass)
}

func TestClassMethodsAreInherited(t *testing.T) {
	vm := newTestVM(t)
	base := mustClass(t, vm, "Base", vm.ObjectClass)
	derived := mustClass(t, vm, "Derived", base)
	vm.DefineSingletonNative(FromObject(base), "create", 0, 0, returns("created"))

	if got := sendString(t, vm, FromObject(derived), "create"); got != "created" {
		t.Errorf("Derived.create = %s, want created", got)
	}
}

func TestSingletonOfImmediates(t *testing.T) {
	vm := newTestVM(t)
	sc, err := vm.SingletonClassOf(Nil)
	if err != nil || sc != vm.NilClass {
		t.Errorf("singleton of nil = %v, %v; want NilClass", sc, err)
	}
	_, err = vm.SingletonClassOf(FromInt(1))
	expectRaise(t, vm, err, vm.TypeErrorClass)
}

func TestExtendObject(t *testing.T) {
	vm := newTestVM(t)
	m := mustModule(t, vm, "Greeter")
	vm.DefineNative(m, "greet", 0, 0, returns("hello"))
	obj := newInstance(t, vm, vm.ObjectClass)

	if err := vm.ExtendObject(obj, m); err != nil {
		t.Fatal(err)
	}
	if got := sendString(t, vm, obj, "greet"); got != "hello" {
		t.Errorf("greet = %s", got)
	}
}

// ---------------------------------------------------------------------------
// Method table operations
// ---------------------------------------------------------------------------

func TestAliasUndefRemove(t *testing.T) {
	vm := newTestVM(t)
	base := mustClass(t, vm, "Base", vm.ObjectClass)
	c := mustClass(t, vm, "C", base)
	vm.DefineNative(base, "name_of", 0, 0, returns("base"))
	vm.DefineNative(c, "name_of", 0, 0, returns("c"))
	obj := newInstance(t, vm, c)

	if err := vm.AliasMethod(c, vm.Intern("old_name"), vm.Intern("name_of")); err != nil {
		t.Fatal(err)
	}
	vm.DefineNative(c, "name_of", 0, 0, returns("new"))
	if got := sendString(t, vm, obj, "old_name"); got != "c" {
		t.Errorf("alias keeps the old body: got %s, want c", got)
	}

	if err := vm.RemoveMethod(c, vm.Intern("name_of")); err != nil {
		t.Fatal(err)
	}
	if got := sendString(t, vm, obj, "name_of"); got != "base" {
		t.Errorf("after remove_method: %s, want base", got)
	}

	if err := vm.UndefMethod(c, vm.Intern("name_of")); err != nil {
		t.Fatal(err)
	}
	_, err := vm.Send(obj, vm.Intern("name_of"))
	expectRaise(t, vm, err, vm.NoMethodErrorClass)
	if m, _, found := vm.TryFindMethod(c, vm.Intern("name_of")); !found || !m.IsUndef() {
		t.Error("TryFindMethod should report the undef sentinel")
	}

	err = vm.RemoveMethod(c, vm.Intern("missing"))
	expectRaise(t, vm, err, vm.NameErrorClass)
}

func TestMethodCacheInvalidation(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "C", vm.ObjectClass)
	vm.DefineNative(c, "v", 0, 0, returns("one"))
	obj := newInstance(t, vm, c)

	if got := sendString(t, vm, obj, "v"); got != "one" {
		t.Fatalf("v = %s", got)
	}
	vm.DefineNative(c, "v", 0, 0, returns("two"))
	if got := sendString(t, vm, obj, "v"); got != "two" {
		t.Errorf("after redefinition v = %s, want two", got)
	}
}

func TestFrozenClassRejectsDefinitions(t *testing.T) {
	vm := newTestVM(t)
	c := mustClass(t, vm, "C", vm.ObjectClass)
	c.Freeze()
	err := vm.DefineMethod(c, vm.Intern("x"), Method{Func: returns("x")})
	expectRaise(t, vm, err, vm.FrozenErrorClass)
}

// ---------------------------------------------------------------------------
// Constants and class variables
// ---------------------------------------------------------------------------

func TestConstants(t *testing.T) {
	vm := newTestVM(t)
	m := mustModule(t, vm, "Config")
	name := vm.Intern("LIMIT")

	if err := vm.ConstSet(m, name, FromInt(10)); err != nil {
		t.Fatal(err)
	}
	if !vm.ConstDefined(m, name) {
		t.Error("LIMIT should be defined")
	}
	v, err := vm.ConstGet(m, name)
	if err != nil || v.Int() != 10 {
		t.Errorf("ConstGet = %v, %v; want 10", v, err)
	}

	_, err = vm.ConstGet(m, vm.Intern("Missing"))
	exc := expectRaise(t, vm, err, vm.NameErrorClass)
	if exc.MessageString() != "uninitialized constant Config::Missing" {
		t.Errorf("message = %q", exc.MessageString())
	}

	// Constants are inherited through the superclass chain.
	base := mustClass(t, vm, "Base", vm.ObjectClass)
	derived := mustClass(t, vm, "Derived", base)
	if err := vm.ConstSet(base, vm.Intern("K"), FromInt(7)); err != nil {
		t.Fatal(err)
	}
	v, err = vm.ConstGet(derived, vm.Intern("K"))
	if err != nil || v.Int() != 7 {
		t.Errorf("Derived::K = %v, %v; want 7", v, err)
	}
}

func TestClassVariables(t *testing.T) {
	vm := newTestVM(t)
	base := mustClass(t, vm, "Base", vm.ObjectClass)
	derived := mustClass(t, vm, "Derived", base)
	count := vm.Intern("@@count")

	if err := vm.ClassVarSet(base, count, FromInt(1)); err != nil {
		t.Fatal(err)
	}
	// Setting through the subclass updates the existing owner.
	if err := vm.ClassVarSet(derived, count, FromInt(2)); err != nil {
		t.Fatal(err)
	}
	v, err := vm.ClassVarGet(base, count)
	if err != nil || v.Int() != 2 {
		t.Errorf("Base @@count = %v, %v; want 2", v, err)
	}

	_, err = vm.ClassVarGet(base, vm.Intern("@@nope"))
	expectRaise(t, vm, err, vm.NameErrorClass)
}

// class C; @@n = 5; def self.n; @@n; end; end
func TestClassVariableFromSingletonMethod(t *testing.T) {
	vm := newTestVM(t)
	st := vm.Symbols
	c := mustClass(t, vm, "C", vm.ObjectClass)
	if err := vm.ClassVarSet(c, vm.Intern("@@n"), FromInt(5)); err != nil {
		t.Fatal(err)
	}

	n := NewIrepBuilder(st, 1, 2)
	n.Emit(OpGetCV, 1, n.Sym("@@n"))
	n.Emit(OpReturn, 1)

	sc, err := vm.SingletonClassOf(FromObject(c))
	if err != nil {
		t.Fatal(err)
	}
	defineIrepMethod(t, vm, sc, "n", n.MustBuild())

	if v := mustSend(t, vm, FromObject(c), "n"); v.Int() != 5 {
		t.Errorf("C.n = %s, want 5", vm.InspectString(v))
	}
}
