package vm

import "fmt"

// ---------------------------------------------------------------------------
// Range primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerRangePrimitives() {
	c := vm.RangeClass

	first := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self.AsRange().Begin, nil
	}
	vm.DefineNative(c, "begin", 0, 0, first)
	vm.DefineNative(c, "first", 0, 0, first)
	last := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self.AsRange().End, nil
	}
	vm.DefineNative(c, "end", 0, 0, last)
	vm.DefineNative(c, "last", 0, 0, last)
	vm.DefineNative(c, "exclude_end?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.AsRange().Exclusive), nil
	})

	cover := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		r := self.AsRange()
		if r.Begin.IsNumeric() || r.End.IsNumeric() {
			return FromBool(r.Cover(args[0])), nil
		}
		return vm.rangeCoverGeneric(r, args[0])
	}
	vm.DefineNative(c, "include?", 1, 1, cover)
	vm.DefineNative(c, "member?", 1, 1, cover)
	vm.DefineNative(c, "cover?", 1, 1, cover)
	vm.DefineNative(c, "===", 1, 1, cover)

	vm.DefineNative(c, "each", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		r := self.AsRange()
		if !r.Begin.IsInteger() || !(r.End.IsInteger() || r.End.IsNil()) {
			return Nil, vm.Raisef(vm.TypeErrorClass, "can't iterate from %s", vm.ClassName(vm.RealClassOf(r.Begin)))
		}
		lo := r.Begin.Int()
		for i := lo; ; i++ {
			if !r.End.IsNil() {
				hi := r.End.Int()
				if i > hi || (r.Exclusive && i == hi) {
					break
				}
			}
			if _, err := vm.Yield(block, FromInt(i)); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(c, "to_a", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		lo, hi, ok := self.AsRange().intBounds()
		if !ok {
			return Nil, vm.Raisef(vm.TypeErrorClass, "can't iterate from %s", vm.ClassName(vm.RealClassOf(self.AsRange().Begin)))
		}
		out := vm.NewArrayCapa(int(max(hi-lo, 0)))
		for i := lo; i < hi; i++ {
			out.Push(FromInt(i))
		}
		return FromObject(out), nil
	})
	size := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		lo, hi, ok := self.AsRange().intBounds()
		if !ok {
			return Nil, nil
		}
		return FromInt(max(hi-lo, 0)), nil
	}
	vm.DefineNative(c, "size", 0, 0, size)
	vm.DefineNative(c, "count", 0, 0, size)

	vm.DefineNative(c, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsRange()
		if o == nil {
			return False, nil
		}
		r := self.AsRange()
		if r.Exclusive != o.Exclusive {
			return False, nil
		}
		eq, err := vm.Equal(r.Begin, o.Begin)
		if err != nil || !eq {
			return False, err
		}
		eq, err = vm.Equal(r.End, o.End)
		return FromBool(eq), err
	})
	vm.DefineNative(c, "hash", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		r := self.AsRange()
		h, err := vm.HashKey(vm.NewArray(r.Begin, r.End, FromBool(r.Exclusive)))
		if err != nil {
			return Nil, err
		}
		return FromInt(int64(h >> 2)), nil
	})
	toS := func(inspect bool) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			r := self.AsRange()
			str := vm.ToS
			if inspect {
				str = vm.Inspect
			}
			b, err := str(r.Begin)
			if err != nil {
				return Nil, err
			}
			e, err := str(r.End)
			if err != nil {
				return Nil, err
			}
			if r.Begin.IsNil() {
				b = ""
			}
			if r.End.IsNil() {
				e = ""
			}
			dots := ".."
			if r.Exclusive {
				dots = "..."
			}
			return vm.NewString(fmt.Sprintf("%s%s%s", b, dots, e)), nil
		}
	}
	vm.DefineNative(c, "to_s", 0, 0, toS(false))
	vm.DefineNative(c, "inspect", 0, 0, toS(true))
}

// rangeCoverGeneric tests begin <= v and v <(=) end through <=>.
func (vm *VM) rangeCoverGeneric(r *RRange, v Value) (Value, error) {
	if !r.Begin.IsNil() {
		c, err := vm.Send(r.Begin, SymCmp, v)
		if err != nil || !c.IsInteger() || c.Int() > 0 {
			return False, err
		}
	}
	if !r.End.IsNil() {
		c, err := vm.Send(v, SymCmp, r.End)
		if err != nil || !c.IsInteger() {
			return False, err
		}
		if c.Int() > 0 || (r.Exclusive && c.Int() == 0) {
			return False, nil
		}
	}
	return True, nil
}

// rangeBounds resolves r against a sequence of length n, returning the
// start and element count. ok is false when the start is out of range.
func (vm *VM) rangeBounds(r *RRange, n int64) (start, length int64, ok bool, err error) {
	if !r.Begin.IsNil() {
		if start, err = vm.intArg(r.Begin); err != nil {
			return 0, 0, false, err
		}
	}
	end := n
	if !r.End.IsNil() {
		if end, err = vm.intArg(r.End); err != nil {
			return 0, 0, false, err
		}
		if end < 0 {
			end += n
		}
		if !r.Exclusive {
			end++
		}
	}
	if start < 0 {
		start += n
	}
	if start < 0 || start > n {
		return 0, 0, false, nil
	}
	return start, max(min(end, n)-start, 0), true, nil
}
