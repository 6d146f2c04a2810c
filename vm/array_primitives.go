package vm

import (
	"slices"
	"strings"
)

// ---------------------------------------------------------------------------
// Array primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerArrayPrimitives() {
	c := vm.ArrayClass

	vm.DefineNative(c, "initialize", 0, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if len(args) == 0 {
			return Nil, nil
		}
		n, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		if n < 0 {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "negative array size")
		}
		fill := Nil
		if len(args) > 1 {
			fill = args[1]
		}
		vals := make([]Value, n)
		for i := range vals {
			if !block.IsNil() {
				v, err := vm.Yield(block, FromInt(int64(i)))
				if err != nil {
					return Nil, err
				}
				vals[i] = v
				continue
			}
			vals[i] = fill
		}
		a.Replace(vals)
		return Nil, nil
	})
	vm.DefineNative(c, "initialize_copy", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})

	// Element access
	vm.DefineNative(c, "[]", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.aryAref(self.AsArray(), args)
	})
	vm.DefineNative(c, "at", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		i, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		return self.AsArray().At(int(i)), nil
	})
	vm.DefineNative(c, "[]=", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		i, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		if !a.Set(int(i), args[1]) {
			return Nil, vm.Raisef(vm.IndexErrorClass, "index %d too small for array; minimum: -%d", i, a.Len())
		}
		return args[1], nil
	})
	vm.DefineNative(c, "first", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if len(args) == 0 {
			return a.At(0), nil
		}
		n, err := vm.countArg(args[0])
		if err != nil {
			return Nil, err
		}
		return FromObject(a.Slice(vm.ArrayClass, 0, min(n, a.Len()))), nil
	})
	vm.DefineNative(c, "last", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if len(args) == 0 {
			return a.At(-1), nil
		}
		n, err := vm.countArg(args[0])
		if err != nil {
			return Nil, err
		}
		n = min(n, a.Len())
		return FromObject(a.Slice(vm.ArrayClass, a.Len()-n, n)), nil
	})

	// Mutation
	push := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		a.Push(args...)
		return self, nil
	}
	vm.DefineNative(c, "<<", 1, 1, push)
	vm.DefineNative(c, "push", 0, -1, push)
	vm.DefineNative(c, "append", 0, -1, push)
	vm.DefineNative(c, "pop", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		return a.Pop(), nil
	})
	vm.DefineNative(c, "shift", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		return a.Shift(), nil
	})
	vm.DefineNative(c, "unshift", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		a.Unshift(args...)
		return self, nil
	})
	vm.DefineNative(c, "concat", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		for _, v := range args {
			o, err := vm.arrayArg(v)
			if err != nil {
				return Nil, err
			}
			a.Concat(o)
		}
		return self, nil
	})
	vm.DefineNative(c, "replace", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		o, err := vm.arrayArg(args[0])
		if err != nil {
			return Nil, err
		}
		a.Replace(o.Values())
		return self, nil
	})
	vm.DefineNative(c, "clear", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		a.Clear()
		return self, nil
	})
	vm.DefineNative(c, "delete", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if err := vm.AryModify(a); err != nil {
			return Nil, err
		}
		found := Nil
		kept := make([]Value, 0, a.Len())
		for _, v := range a.Values() {
			eq, err := vm.Equal(v, args[0])
			if err != nil {
				return Nil, err
			}
			if eq {
				found = v
				continue
			}
			kept = append(kept, v)
		}
		a.Replace(kept)
		return found, nil
	})

	// Combination
	vm.DefineNative(c, "+", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o, err := vm.arrayArg(args[0])
		if err != nil {
			return Nil, err
		}
		return vm.AryPlus(self.AsArray(), o), nil
	})
	vm.DefineNative(c, "-", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o, err := vm.arrayArg(args[0])
		if err != nil {
			return Nil, err
		}
		exclude := vm.NewHash(o.Len())
		for _, v := range o.Values() {
			if err := exclude.Set(v, True); err != nil {
				return Nil, err
			}
		}
		out := vm.NewArrayCapa(self.AsArray().Len())
		for _, v := range self.AsArray().Values() {
			has, err := exclude.HasKey(v)
			if err != nil {
				return Nil, err
			}
			if !has {
				out.Push(v)
			}
		}
		return FromObject(out), nil
	})
	vm.DefineNative(c, "*", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if sep := args[0].AsString(); sep != nil {
			s, err := vm.aryJoin(self.AsArray(), sep.String())
			if err != nil {
				return Nil, err
			}
			return vm.NewString(s), nil
		}
		n, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		if n < 0 {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "negative argument")
		}
		vals := self.AsArray().Values()
		out := vm.NewArrayCapa(len(vals) * int(n))
		for range n {
			out.Push(vals...)
		}
		return FromObject(out), nil
	})
	vm.DefineNative(c, "join", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		sep := ""
		if len(args) > 0 && !args[0].IsNil() {
			s, err := vm.stringArg(args[0])
			if err != nil {
				return Nil, err
			}
			sep = s.String()
		}
		s, err := vm.aryJoin(self.AsArray(), sep)
		if err != nil {
			return Nil, err
		}
		return vm.NewString(s), nil
	})

	// Comparison
	vm.DefineNative(c, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsArray()
		if o == nil {
			return False, nil
		}
		eq, err := vm.aryEqual(self.AsArray(), o)
		return FromBool(eq), err
	})
	vm.DefineNative(c, "eql?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		eq, err := vm.KeyEql(self, args[0])
		return FromBool(eq), err
	})
	vm.DefineNative(c, "hash", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h, err := vm.HashKey(self)
		if err != nil {
			return Nil, err
		}
		return FromInt(int64(h >> 2)), nil
	})
	vm.DefineNative(c, "<=>", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsArray()
		if o == nil {
			return Nil, nil
		}
		xs, ys := self.AsArray().Values(), o.Values()
		for i := 0; i < len(xs) && i < len(ys); i++ {
			r, err := vm.Send(xs[i], SymCmp, ys[i])
			if err != nil || !r.IsInteger() || r.Int() != 0 {
				return r, err
			}
		}
		return FromInt(int64(cmpInt(int64(len(xs)), int64(len(ys))))), nil
	})

	// Queries
	length := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(int64(self.AsArray().Len())), nil
	}
	vm.DefineNative(c, "size", 0, 0, length)
	vm.DefineNative(c, "length", 0, 0, length)
	vm.DefineNative(c, "empty?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.AsArray().Len() == 0), nil
	})
	vm.DefineNative(c, "include?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		i, err := vm.aryIndex(self.AsArray(), args[0])
		return FromBool(i >= 0), err
	})
	vm.DefineNative(c, "index", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		if len(args) == 0 {
			for i, v := range a.Values() {
				r, err := vm.Yield(block, v)
				if err != nil {
					return Nil, err
				}
				if r.IsTruthy() {
					return FromInt(int64(i)), nil
				}
			}
			return Nil, nil
		}
		i, err := vm.aryIndex(a, args[0])
		if err != nil || i < 0 {
			return Nil, err
		}
		return FromInt(int64(i)), nil
	})

	// Iteration
	vm.DefineNative(c, "each", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		for i := 0; i < a.Len(); i++ {
			if _, err := vm.Yield(block, a.At(i)); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(c, "each_with_index", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		for i := 0; i < a.Len(); i++ {
			if _, err := vm.Yield(block, a.At(i), FromInt(int64(i))); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	mapFn := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		a := self.AsArray()
		out := vm.NewArrayCapa(a.Len())
		for i := 0; i < a.Len(); i++ {
			v, err := vm.Yield(block, a.At(i))
			if err != nil {
				return Nil, err
			}
			out.Push(v)
		}
		return FromObject(out), nil
	}
	vm.DefineNative(c, "map", 0, 0, mapFn)
	vm.DefineNative(c, "collect", 0, 0, mapFn)
	filter := func(keep bool) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			a := self.AsArray()
			out := vm.NewArrayCapa(a.Len())
			for i := 0; i < a.Len(); i++ {
				v := a.At(i)
				r, err := vm.Yield(block, v)
				if err != nil {
					return Nil, err
				}
				if r.IsTruthy() == keep {
					out.Push(v)
				}
			}
			return FromObject(out), nil
		}
	}
	vm.DefineNative(c, "select", 0, 0, filter(true))
	vm.DefineNative(c, "filter", 0, 0, filter(true))
	vm.DefineNative(c, "reject", 0, 0, filter(false))
	vm.DefineNative(c, "inject", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		vals := self.AsArray().Values()
		var acc Value
		if len(args) > 0 {
			acc = args[0]
		} else if len(vals) > 0 {
			acc, vals = vals[0], vals[1:]
		} else {
			return Nil, nil
		}
		for _, v := range vals {
			r, err := vm.Yield(block, acc, v)
			if err != nil {
				return Nil, err
			}
			acc = r
		}
		return acc, nil
	})
	vm.DefineNative(c, "sum", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		acc := FromInt(0)
		if len(args) > 0 {
			acc = args[0]
		}
		for _, v := range self.AsArray().Values() {
			r, err := vm.Send(acc, SymAdd, v)
			if err != nil {
				return Nil, err
			}
			acc = r
		}
		return acc, nil
	})

	// Copies
	vm.DefineNative(c, "to_a", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	vm.DefineNative(c, "reverse", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		vals := slices.Clone(self.AsArray().Values())
		slices.Reverse(vals)
		return vm.NewArray(vals...), nil
	})
	vm.DefineNative(c, "compact", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		out := vm.NewArrayCapa(self.AsArray().Len())
		for _, v := range self.AsArray().Values() {
			if !v.IsNil() {
				out.Push(v)
			}
		}
		return FromObject(out), nil
	})
	vm.DefineNative(c, "uniq", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		seen := vm.NewHash(self.AsArray().Len())
		out := vm.NewArrayCapa(self.AsArray().Len())
		for _, v := range self.AsArray().Values() {
			has, err := seen.HasKey(v)
			if err != nil {
				return Nil, err
			}
			if !has {
				if err := seen.Set(v, True); err != nil {
					return Nil, err
				}
				out.Push(v)
			}
		}
		return FromObject(out), nil
	})
	vm.DefineNative(c, "flatten", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		out := vm.NewArrayCapa(self.AsArray().Len())
		if err := vm.aryFlatten(out, self.AsArray(), map[*RArray]bool{}); err != nil {
			return Nil, err
		}
		return FromObject(out), nil
	})
	vm.DefineNative(c, "sort", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		vals := slices.Clone(self.AsArray().Values())
		var sortErr error
		slices.SortStableFunc(vals, func(x, y Value) int {
			if sortErr != nil {
				return 0
			}
			var c int64
			if block.IsNil() {
				c, sortErr = vm.spaceship(x, y)
			} else {
				var r Value
				r, sortErr = vm.Yield(block, x, y)
				if sortErr == nil && !r.IsInteger() {
					sortErr = vm.compareError(x, y)
				}
				c = r.Int()
			}
			return int(c)
		})
		if sortErr != nil {
			return Nil, sortErr
		}
		return vm.NewArray(vals...), nil
	})
	extreme := func(want int64) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			vals := self.AsArray().Values()
			if len(vals) == 0 {
				return Nil, nil
			}
			best := vals[0]
			for _, v := range vals[1:] {
				c, err := vm.spaceship(v, best)
				if err != nil {
					return Nil, err
				}
				if c == want {
					best = v
				}
			}
			return best, nil
		}
	}
	vm.DefineNative(c, "min", 0, 0, extreme(-1))
	vm.DefineNative(c, "max", 0, 0, extreme(1))

	inspect := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		s, err := vm.inspectArray(self.AsArray())
		if err != nil {
			return Nil, err
		}
		return vm.NewString(s), nil
	}
	vm.DefineNative(c, "inspect", 0, 0, inspect)
	vm.DefineNative(c, "to_s", 0, 0, inspect)
}

// ---------------------------------------------------------------------------
// Array helpers
// ---------------------------------------------------------------------------

// Equal sends == unless the operands are identical.
func (vm *VM) Equal(x, y Value) (bool, error) {
	if Identical(x, y) {
		return true, nil
	}
	if x.IsNumeric() && y.IsNumeric() {
		c, ok := numCompare(x, y)
		return ok && c == 0, nil
	}
	r, err := vm.Send(x, SymEq, y)
	if err != nil {
		return false, err
	}
	return r.IsTruthy(), nil
}

func (vm *VM) aryEqual(a, b *RArray) (bool, error) {
	if a == b {
		return true, nil
	}
	if a.Len() != b.Len() {
		return false, nil
	}
	release, ok := vm.enterRecursion(SymEq, a, b)
	if !ok {
		return true, nil
	}
	defer release()
	for i := 0; i < a.Len(); i++ {
		eq, err := vm.Equal(a.At(i), b.At(i))
		if err != nil || !eq {
			return false, err
		}
	}
	return true, nil
}

func (vm *VM) aryIndex(a *RArray, v Value) (int, error) {
	for i, e := range a.Values() {
		eq, err := vm.Equal(e, v)
		if err != nil {
			return -1, err
		}
		if eq {
			return i, nil
		}
	}
	return -1, nil
}

func (vm *VM) arrayArg(v Value) (*RArray, error) {
	if a := v.AsArray(); a != nil {
		return a, nil
	}
	return nil, vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into Array", vm.typeName(v))
}

// countArg reads a non-negative element count.
func (vm *VM) countArg(v Value) (int, error) {
	n, err := vm.intArg(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, vm.Raisef(vm.ArgumentErrorClass, "negative array size")
	}
	return int(n), nil
}

// aryAref implements Array#[] with an index, a start and length, or a
// Range.
func (vm *VM) aryAref(a *RArray, args []Value) (Value, error) {
	n := int64(a.Len())
	slice := func(start, length int64) Value {
		if start < 0 {
			start += n
		}
		if start < 0 || start > n || length < 0 {
			return Nil
		}
		if start+length > n {
			length = n - start
		}
		return FromObject(a.Slice(vm.ArrayClass, int(start), int(length)))
	}
	if len(args) == 2 {
		start, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		length, err := vm.intArg(args[1])
		if err != nil {
			return Nil, err
		}
		return slice(start, length), nil
	}
	if r := args[0].AsRange(); r != nil {
		start, length, ok, err := vm.rangeBounds(r, n)
		if err != nil || !ok {
			return Nil, err
		}
		return slice(start, length), nil
	}
	i, err := vm.intArg(args[0])
	if err != nil {
		return Nil, err
	}
	return a.At(int(i)), nil
}

func (vm *VM) aryJoin(a *RArray, sep string) (string, error) {
	var b strings.Builder
	if err := vm.joinInto(&b, a, sep, map[*RArray]bool{}); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (vm *VM) joinInto(b *strings.Builder, a *RArray, sep string, seen map[*RArray]bool) error {
	if seen[a] {
		return vm.Raisef(vm.ArgumentErrorClass, "recursive array join")
	}
	seen[a] = true
	defer delete(seen, a)
	for i, v := range a.Values() {
		if i > 0 {
			b.WriteString(sep)
		}
		if inner := v.AsArray(); inner != nil {
			if err := vm.joinInto(b, inner, sep, seen); err != nil {
				return err
			}
			continue
		}
		s, err := vm.ToS(v)
		if err != nil {
			return err
		}
		b.WriteString(s)
	}
	return nil
}

func (vm *VM) aryFlatten(out, a *RArray, seen map[*RArray]bool) error {
	if seen[a] {
		return vm.Raisef(vm.ArgumentErrorClass, "tried to flatten recursive array")
	}
	seen[a] = true
	defer delete(seen, a)
	for _, v := range a.Values() {
		if inner := v.AsArray(); inner != nil {
			if err := vm.aryFlatten(out, inner, seen); err != nil {
				return err
			}
			continue
		}
		out.Push(v)
	}
	return nil
}

// inspectArray renders an array through each element's inspect method,
// printing [...] for an array already being inspected.
func (vm *VM) inspectArray(a *RArray) (string, error) {
	if vm.inspecting[a] {
		return "[...]", nil
	}
	vm.inspecting[a] = true
	defer delete(vm.inspecting, a)
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range a.Values() {
		if i > 0 {
			b.WriteString(", ")
		}
		s, err := vm.inspectElement(v)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	b.WriteByte(']')
	return b.String(), nil
}

// inspectElement inspects a container element, short-circuiting
// containers already on the inspect path.
func (vm *VM) inspectElement(v Value) (string, error) {
	if v.IsObject() && vm.inspecting[v.Object()] {
		if v.IsHash() {
			return "{...}", nil
		}
		return "[...]", nil
	}
	return vm.Inspect(v)
}
