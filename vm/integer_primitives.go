package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Integer primitives
// ---------------------------------------------------------------------------

var overflowOps = map[Opcode]string{
	OpAdd: "addition",
	OpSub: "subtraction",
	OpMul: "multiplication",
}

func (vm *VM) registerIntegerPrimitives() {
	c := vm.IntegerClass

	arith := func(op Opcode) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			y := args[0]
			switch {
			case y.IsInteger():
				v, ok, err := vm.intArith(op, self.Int(), y.Int())
				if err != nil {
					return Nil, err
				}
				if !ok {
					return Nil, vm.Raisef(vm.RangeErrorClass, "integer overflow in %s", overflowOps[op])
				}
				return v, nil
			case y.IsFloat():
				return FromFloat64(floatArith(op, float64(self.Int()), y.Float64())), nil
			}
			return Nil, vm.coerceError(y, "Integer")
		}
	}
	vm.DefineNative(c, "+", 1, 1, arith(OpAdd))
	vm.DefineNative(c, "-", 1, 1, arith(OpSub))
	vm.DefineNative(c, "*", 1, 1, arith(OpMul))
	vm.DefineNative(c, "/", 1, 1, arith(OpDiv))
	vm.DefineNative(c, "%", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		y := args[0]
		switch {
		case y.IsInteger():
			if y.Int() == 0 {
				return Nil, vm.Raisef(vm.ZeroDivisionErrorClass, "divided by 0")
			}
			return FromInt(intMod(self.Int(), y.Int())), nil
		case y.IsFloat():
			return FromFloat64(floatMod(float64(self.Int()), y.Float64())), nil
		}
		return Nil, vm.coerceError(y, "Integer")
	})
	vm.DefineNative(c, "**", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		y := args[0]
		switch {
		case y.IsInteger():
			if y.Int() < 0 {
				return FromFloat64(math.Pow(float64(self.Int()), float64(y.Int()))), nil
			}
			if r, ok := intPow(self.Int(), y.Int()); ok {
				return FromInt(r), nil
			}
			return FromFloat64(math.Pow(float64(self.Int()), float64(y.Int()))), nil
		case y.IsFloat():
			return FromFloat64(math.Pow(float64(self.Int()), y.Float64())), nil
		}
		return Nil, vm.coerceError(y, "Integer")
	})
	vm.DefineNative(c, "-@", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if self.Int() == math.MinInt64 {
			return Nil, vm.Raisef(vm.RangeErrorClass, "integer overflow in negation")
		}
		return FromInt(-self.Int()), nil
	})
	vm.DefineNative(c, "abs", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if n := self.Int(); n < 0 {
			if n == math.MinInt64 {
				return Nil, vm.Raisef(vm.RangeErrorClass, "integer overflow in negation")
			}
			return FromInt(-n), nil
		}
		return self, nil
	})
	vm.defineNumericCompare(c)

	vm.DefineNative(c, "to_i", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	vm.DefineNative(c, "to_f", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromFloat64(float64(self.Int())), nil
	})
	toS := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		base := int64(10)
		if len(args) > 0 {
			b, err := vm.intArg(args[0])
			if err != nil {
				return Nil, err
			}
			if b < 2 || b > 36 {
				return Nil, vm.Raisef(vm.ArgumentErrorClass, "invalid radix %d", b)
			}
			base = b
		}
		return vm.NewString(strconv.FormatInt(self.Int(), int(base))), nil
	}
	vm.DefineNative(c, "to_s", 0, 1, toS)
	vm.DefineNative(c, "inspect", 0, 0, toS)
	vm.DefineNative(c, "succ", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return arith(OpAdd)(vm, self, []Value{FromInt(1)}, Nil)
	})
	vm.DefineNative(c, "pred", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return arith(OpSub)(vm, self, []Value{FromInt(1)}, Nil)
	})
	vm.DefineNative(c, "zero?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.Int() == 0), nil
	})
	vm.DefineNative(c, "even?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.Int()%2 == 0), nil
	})
	vm.DefineNative(c, "odd?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.Int()%2 != 0), nil
	})

	// Iteration
	vm.DefineNative(c, "times", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if block.IsNil() {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "no block given")
		}
		for i := int64(0); i < self.Int(); i++ {
			if _, err := vm.Yield(block, FromInt(i)); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(c, "upto", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		to, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		for i := self.Int(); i <= to; i++ {
			if _, err := vm.Yield(block, FromInt(i)); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(c, "downto", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		to, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		for i := self.Int(); i >= to; i-- {
			if _, err := vm.Yield(block, FromInt(i)); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
}

// defineNumericCompare installs == <=> < <= > >= and eql? on a numeric
// class. Mixed Integer/Float operands compare as floats.
func (vm *VM) defineNumericCompare(c *RClass) {
	vm.DefineNative(c, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		cmp, ok := numCompare(self, args[0])
		return FromBool(ok && cmp == 0), nil
	})
	vm.DefineNative(c, "eql?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if self.tag != args[0].tag {
			return False, nil
		}
		cmp, ok := numCompare(self, args[0])
		return FromBool(ok && cmp == 0), nil
	})
	vm.DefineNative(c, "hash", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h, err := vm.HashKey(self)
		if err != nil {
			return Nil, err
		}
		return FromInt(int64(h >> 2)), nil
	})
	vm.DefineNative(c, "<=>", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		cmp, ok := numCompare(self, args[0])
		if !ok {
			return Nil, nil
		}
		return FromInt(int64(cmp)), nil
	})
	for _, op := range []struct {
		name string
		test func(int) bool
	}{
		{"<", func(c int) bool { return c < 0 }},
		{"<=", func(c int) bool { return c <= 0 }},
		{">", func(c int) bool { return c > 0 }},
		{">=", func(c int) bool { return c >= 0 }},
	} {
		test := op.test
		vm.DefineNative(c, op.name, 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			if !args[0].IsNumeric() {
				return Nil, vm.compareError(self, args[0])
			}
			cmp, ok := numCompare(self, args[0])
			return FromBool(ok && test(cmp)), nil
		})
	}
}

// numCompare compares two numbers; ok is false for non-numbers and NaN.
func numCompare(x, y Value) (int, bool) {
	if x.IsInteger() && y.IsInteger() {
		return cmpInt(x.Int(), y.Int()), true
	}
	f, ok1 := x.ToFloat64()
	g, ok2 := y.ToFloat64()
	if !ok1 || !ok2 || math.IsNaN(f) || math.IsNaN(g) {
		return 0, false
	}
	return cmpFloat(f, g), true
}

func (vm *VM) coerceError(v Value, into string) error {
	return vm.Raisef(vm.TypeErrorClass, "%s can't be coerced into %s", vm.typeName(v), into)
}

func (vm *VM) compareError(x, y Value) error {
	desc := vm.typeName(y)
	if !y.IsNil() && !y.IsBool() {
		desc = vm.ClassName(vm.RealClassOf(y))
	}
	return vm.Raisef(vm.ArgumentErrorClass, "comparison of %s with %s failed", vm.ClassName(vm.RealClassOf(x)), desc)
}

// intMod is the modulo matching floored division.
func intMod(x, y int64) int64 {
	if y == -1 {
		return 0
	}
	m := x % y
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

func floatMod(x, y float64) float64 {
	m := math.Mod(x, y)
	if m != 0 && (m < 0) != (y < 0) {
		m += y
	}
	return m
}

// intPow computes x**y for y >= 0, reporting false on overflow.
func intPow(x, y int64) (int64, bool) {
	result := int64(1)
	for y > 0 {
		if y&1 == 1 {
			r := result * x
			if x != 0 && (r/x != result || (x == -1 && result == math.MinInt64)) {
				return 0, false
			}
			result = r
		}
		y >>= 1
		if y > 0 {
			sq := x * x
			if x != 0 && sq/x != x {
				return 0, false
			}
			x = sq
		}
	}
	return result, true
}
