package vm

import (
	"math"
	"sync"
	"testing"
)

func TestZeroValueIsNil(t *testing.T) {
	var v Value
	if !v.IsNil() || !Identical(v, Nil) {
		t.Error("zero Value should be nil")
	}
	if v.IsTruthy() {
		t.Error("nil should be falsy")
	}
}

func TestTruthiness(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"nil", Nil, false},
		{"false", False, false},
		{"true", True, true},
		{"zero", FromInt(0), true},
		{"float zero", FromFloat64(0), true},
		{"symbol", FromSymbol(SymNone + 1), true},
	}
	for _, tc := range tests {
		if got := tc.v.IsTruthy(); got != tc.want {
			t.Errorf("%s.IsTruthy() = %v, want %v", tc.name, got, tc.want)
		}
		if got := tc.v.IsFalsy(); got == tc.want {
			t.Errorf("%s.IsFalsy() = %v, want %v", tc.name, got, !tc.want)
		}
	}
}

func TestIntegerRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 42, math.MaxInt64, math.MinInt64} {
		v := FromInt(n)
		if !v.IsInteger() || !v.IsNumeric() || !v.IsImmediate() {
			t.Errorf("FromInt(%d) has wrong predicates", n)
		}
		if got := v.Int(); got != n {
			t.Errorf("FromInt(%d).Int() = %d", n, got)
		}
	}
}

func TestFloatRoundTrip(t *testing.T) {
	for _, f := range []float64{0, -0.5, 3.25, math.MaxFloat64, math.Inf(1)} {
		v := FromFloat64(f)
		if !v.IsFloat() || v.IsInteger() {
			t.Errorf("FromFloat64(%v) has wrong predicates", f)
		}
		if got := v.Float64(); got != f {
			t.Errorf("FromFloat64(%v).Float64() = %v", f, got)
		}
	}
	nan := FromFloat64(math.NaN())
	if !math.IsNaN(nan.Float64()) {
		t.Error("NaN should survive boxing")
	}

	if f, ok := FromInt(3).ToFloat64(); !ok || f != 3 {
		t.Errorf("ToFloat64(3) = %v, %v", f, ok)
	}
	if _, ok := Nil.ToFloat64(); ok {
		t.Error("ToFloat64(nil) should fail")
	}
}

func TestIntAccessorPanicsOnWrongTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Int() on a float should panic")
		}
	}()
	_ = FromFloat64(1).Int()
}

func TestIdentical(t *testing.T) {
	vm := newTestVM(t)
	a := vm.NewString("x")
	b := vm.NewString("x")

	if !Identical(a, a) {
		t.Error("a value is identical to itself")
	}
	if Identical(a, b) {
		t.Error("distinct strings with equal contents are not identical")
	}
	if !Identical(FromInt(7), FromInt(7)) {
		t.Error("equal integers are identical")
	}
	if Identical(FromInt(1), FromFloat64(1)) {
		t.Error("1 and 1.0 are not identical")
	}
	if Identical(True, FromInt(1)) {
		t.Error("true and 1 are not identical")
	}
}

func TestFromObjectNil(t *testing.T) {
	if v := FromObject(nil); !v.IsNil() {
		t.Error("FromObject(nil) should be nil")
	}
	if Nil.Object() != nil {
		t.Error("Nil.Object() should be nil")
	}
}

func TestTypedViews(t *testing.T) {
	vm := newTestVM(t)
	s := vm.NewString("s")
	a := vm.NewArray()

	if s.AsString() == nil || s.AsArray() != nil {
		t.Error("string views are wrong")
	}
	if a.AsArray() == nil || a.AsHash() != nil || !a.IsArray() {
		t.Error("array views are wrong")
	}
	if FromInt(1).AsString() != nil {
		t.Error("immediates have no heap view")
	}
	if !FromObject(vm.ObjectClass).IsClass() {
		t.Error("a class value should be IsClass")
	}
}

// ---------------------------------------------------------------------------
// Symbol table
// ---------------------------------------------------------------------------

func TestSymbolTableIntern(t *testing.T) {
	st := NewSymbolTable()
	a := st.Intern("garnet")
	if b := st.Intern("garnet"); a != b {
		t.Errorf("Intern is not stable: %d != %d", a, b)
	}
	if b := st.InternBytes([]byte("garnet")); a != b {
		t.Errorf("InternBytes = %d, want %d", b, a)
	}
	if got := st.Name(a); got != "garnet" {
		t.Errorf("Name = %q", got)
	}
	if got := st.Name(Symbol(st.Len() + 10)); got != "" {
		t.Errorf("out-of-range Name = %q, want empty", got)
	}
	if _, ok := st.Lookup("never-interned"); ok {
		t.Error("Lookup should not intern")
	}
}

func TestWellKnownSymbolsAreStable(t *testing.T) {
	a, b := NewSymbolTable(), NewSymbolTable()
	for _, sym := range []Symbol{SymInitialize, SymMethodMissing, SymToS, SymCall} {
		if a.Name(sym) == "" || a.Name(sym) != b.Name(sym) {
			t.Errorf("well-known symbol %d differs across tables: %q vs %q", sym, a.Name(sym), b.Name(sym))
		}
		if got, ok := a.Lookup(a.Name(sym)); !ok || got != sym {
			t.Errorf("Lookup(%q) = %d, want %d", a.Name(sym), got, sym)
		}
	}
}

func TestSymbolTableConcurrentIntern(t *testing.T) {
	st := NewSymbolTable()
	names := []string{"alpha", "beta", "gamma", "delta"}
	ids := make([][]Symbol, 8)

	var wg sync.WaitGroup
	for g := range ids {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for _, n := range names {
				ids[g] = append(ids[g], st.Intern(n))
			}
		}(g)
	}
	wg.Wait()

	for g := 1; g < len(ids); g++ {
		for i := range names {
			if ids[g][i] != ids[0][i] {
				t.Errorf("goroutine %d got %d for %s, want %d", g, ids[g][i], names[i], ids[0][i])
			}
		}
	}
}
