package vm

import "math"

// ---------------------------------------------------------------------------
// Float primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerFloatPrimitives() {
	c := vm.FloatClass

	arith := func(op Opcode) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			g, ok := args[0].ToFloat64()
			if !ok {
				return Nil, vm.coerceError(args[0], "Float")
			}
			return FromFloat64(floatArith(op, self.Float64(), g)), nil
		}
	}
	vm.DefineNative(c, "+", 1, 1, arith(OpAdd))
	vm.DefineNative(c, "-", 1, 1, arith(OpSub))
	vm.DefineNative(c, "*", 1, 1, arith(OpMul))
	vm.DefineNative(c, "/", 1, 1, arith(OpDiv))
	vm.DefineNative(c, "%", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		g, ok := args[0].ToFloat64()
		if !ok {
			return Nil, vm.coerceError(args[0], "Float")
		}
		return FromFloat64(floatMod(self.Float64(), g)), nil
	})
	vm.DefineNative(c, "**", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		g, ok := args[0].ToFloat64()
		if !ok {
			return Nil, vm.coerceError(args[0], "Float")
		}
		return FromFloat64(math.Pow(self.Float64(), g)), nil
	})
	vm.DefineNative(c, "-@", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromFloat64(-self.Float64()), nil
	})
	vm.DefineNative(c, "abs", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromFloat64(math.Abs(self.Float64())), nil
	})
	vm.defineNumericCompare(c)

	vm.DefineNative(c, "to_f", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	toS := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(FormatFloat(self.Float64())), nil
	}
	vm.DefineNative(c, "to_s", 0, 0, toS)
	vm.DefineNative(c, "inspect", 0, 0, toS)

	toInt := func(round func(float64) float64) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			return vm.floatToInt(round(self.Float64()))
		}
	}
	vm.DefineNative(c, "to_i", 0, 0, toInt(math.Trunc))
	vm.DefineNative(c, "truncate", 0, 0, toInt(math.Trunc))
	vm.DefineNative(c, "floor", 0, 0, toInt(math.Floor))
	vm.DefineNative(c, "ceil", 0, 0, toInt(math.Ceil))
	vm.DefineNative(c, "round", 0, 0, toInt(math.Round))

	vm.DefineNative(c, "nan?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(math.IsNaN(self.Float64())), nil
	})
	vm.DefineNative(c, "infinite?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		f := self.Float64()
		switch {
		case math.IsInf(f, 1):
			return FromInt(1), nil
		case math.IsInf(f, -1):
			return FromInt(-1), nil
		}
		return Nil, nil
	})
	vm.DefineNative(c, "finite?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		f := self.Float64()
		return FromBool(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	})
	vm.DefineNative(c, "zero?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.Float64() == 0), nil
	})

	c.iv.Set(vm.Intern("INFINITY"), FromFloat64(math.Inf(1)))
	c.iv.Set(vm.Intern("NAN"), FromFloat64(math.NaN()))
}

// floatToInt converts an already-rounded float, raising FloatDomainError
// for NaN, infinities and values outside the Integer range.
func (vm *VM) floatToInt(f float64) (Value, error) {
	switch {
	case math.IsNaN(f):
		return Nil, vm.Raisef(vm.FloatDomainErrorClass, "NaN")
	case math.IsInf(f, 1):
		return Nil, vm.Raisef(vm.FloatDomainErrorClass, "Infinity")
	case math.IsInf(f, -1):
		return Nil, vm.Raisef(vm.FloatDomainErrorClass, "-Infinity")
	case f >= 9.223372036854775807e18 || f < -9.223372036854775808e18:
		return Nil, vm.Raisef(vm.FloatDomainErrorClass, "%s", FormatFloat(f))
	}
	return FromInt(int64(f)), nil
}
