package vm

// ---------------------------------------------------------------------------
// NilClass, TrueClass and FalseClass primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerNilBoolPrimitives() {
	n := vm.NilClass
	vm.DefineNative(n, "nil?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return True, nil
	})
	vm.DefineNative(n, "to_s", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(""), nil
	})
	vm.DefineNative(n, "to_a", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewArray(), nil
	})
	vm.DefineNative(n, "to_i", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(0), nil
	})
	vm.DefineNative(n, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString("nil"), nil
	})

	for _, c := range []*RClass{vm.NilClass, vm.FalseClass} {
		vm.DefineNative(c, "&", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			return False, nil
		})
		vm.DefineNative(c, "|", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			return FromBool(args[0].IsTruthy()), nil
		})
	}

	t := vm.TrueClass
	vm.DefineNative(t, "&", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(args[0].IsTruthy()), nil
	})
	vm.DefineNative(t, "|", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return True, nil
	})
	for _, c := range []*RClass{vm.TrueClass, vm.FalseClass} {
		toS := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			return vm.NewString(vm.InspectString(self)), nil
		}
		vm.DefineNative(c, "to_s", 0, 0, toS)
		vm.DefineNative(c, "inspect", 0, 0, toS)
		vm.DefineNative(c, "^", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			return FromBool(self.IsTruthy() != args[0].IsTruthy()), nil
		})
	}
}

// ---------------------------------------------------------------------------
// Comparable primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerComparablePrimitives() {
	m := vm.ComparableModule
	for _, op := range []struct {
		name string
		test func(int64) bool
	}{
		{"<", func(c int64) bool { return c < 0 }},
		{"<=", func(c int64) bool { return c <= 0 }},
		{">", func(c int64) bool { return c > 0 }},
		{">=", func(c int64) bool { return c >= 0 }},
	} {
		test := op.test
		vm.DefineNative(m, op.name, 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			c, err := vm.spaceship(self, args[0])
			if err != nil {
				return Nil, err
			}
			return FromBool(test(c)), nil
		})
	}
	vm.DefineNative(m, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if Identical(self, args[0]) {
			return True, nil
		}
		r, err := vm.Send(self, SymCmp, args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(r.IsInteger() && r.Int() == 0), nil
	})
	vm.DefineNative(m, "between?", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		lo, err := vm.spaceship(self, args[0])
		if err != nil {
			return Nil, err
		}
		hi, err := vm.spaceship(self, args[1])
		if err != nil {
			return Nil, err
		}
		return FromBool(lo >= 0 && hi <= 0), nil
	})
	vm.DefineNative(m, "clamp", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if c, err := vm.spaceship(self, args[0]); err != nil || c < 0 {
			return args[0], err
		}
		if c, err := vm.spaceship(self, args[1]); err != nil || c > 0 {
			return args[1], err
		}
		return self, nil
	})
}

// spaceship sends <=> and requires an Integer answer.
func (vm *VM) spaceship(x, y Value) (int64, error) {
	r, err := vm.Send(x, SymCmp, y)
	if err != nil {
		return 0, err
	}
	if !r.IsInteger() {
		return 0, vm.compareError(x, y)
	}
	return r.Int(), nil
}
