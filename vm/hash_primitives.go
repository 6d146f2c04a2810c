package vm

import "strings"

// ---------------------------------------------------------------------------
// Hash primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerHashPrimitives() {
	c := vm.HashClass

	vm.DefineNative(c, "initialize", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if len(args) > 0 {
			self.AsHash().Default = args[0]
		}
		return Nil, nil
	})
	vm.DefineNative(c, "initialize_copy", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})

	// Access
	vm.DefineNative(c, "[]", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.HashGet(self.AsHash(), args[0])
	})
	vm.DefineNative(c, "[]=", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if err := vm.HashSet(self.AsHash(), args[0], args[1]); err != nil {
			return Nil, err
		}
		return args[1], nil
	})
	vm.DefineNative(c, "store", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if err := vm.HashSet(self.AsHash(), args[0], args[1]); err != nil {
			return Nil, err
		}
		return args[1], nil
	})
	vm.DefineNative(c, "fetch", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		v, ok, err := self.AsHash().Get(args[0])
		if err != nil || ok {
			return v, err
		}
		switch {
		case !block.IsNil():
			return vm.Yield(block, args[0])
		case len(args) > 1:
			return args[1], nil
		}
		return Nil, vm.Raisef(vm.KeyErrorClass, "key not found: %s", vm.InspectString(args[0]))
	})
	hasKey := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		ok, err := self.AsHash().HasKey(args[0])
		return FromBool(ok), err
	}
	vm.DefineNative(c, "key?", 1, 1, hasKey)
	vm.DefineNative(c, "has_key?", 1, 1, hasKey)
	vm.DefineNative(c, "include?", 1, 1, hasKey)
	vm.DefineNative(c, "member?", 1, 1, hasKey)
	vm.DefineNative(c, "value?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, v := range self.AsHash().Vals() {
			eq, err := vm.Equal(v, args[0])
			if err != nil || eq {
				return FromBool(eq), err
			}
		}
		return False, nil
	})
	vm.DefineNative(c, "delete", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h := self.AsHash()
		if h.Frozen() {
			return Nil, vm.frozenError(self)
		}
		v, ok, err := h.Delete(args[0])
		if err != nil {
			return Nil, err
		}
		if !ok && !block.IsNil() {
			return vm.Yield(block, args[0])
		}
		return v, nil
	})
	vm.DefineNative(c, "clear", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h := self.AsHash()
		if h.Frozen() {
			return Nil, vm.frozenError(self)
		}
		h.Clear()
		return self, nil
	})
	vm.DefineNative(c, "default", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self.AsHash().Default, nil
	})
	vm.DefineNative(c, "default=", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h := self.AsHash()
		if h.Frozen() {
			return Nil, vm.frozenError(self)
		}
		h.Default = args[0]
		return args[0], nil
	})

	// Queries
	length := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(int64(self.AsHash().Len())), nil
	}
	vm.DefineNative(c, "size", 0, 0, length)
	vm.DefineNative(c, "length", 0, 0, length)
	vm.DefineNative(c, "count", 0, 0, length)
	vm.DefineNative(c, "empty?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.AsHash().Len() == 0), nil
	})
	vm.DefineNative(c, "keys", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewArray(self.AsHash().Keys()...), nil
	})
	vm.DefineNative(c, "values", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewArray(self.AsHash().Vals()...), nil
	})
	vm.DefineNative(c, "to_a", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h := self.AsHash()
		out := vm.NewArrayCapa(h.Len())
		h.Each(func(k, v Value) bool {
			out.Push(vm.NewArray(k, v))
			return true
		})
		return FromObject(out), nil
	})
	vm.DefineNative(c, "to_h", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})

	// Iteration
	each := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if err := vm.hashEach(self.AsHash(), func(k, v Value) error {
			_, err := vm.Yield(block, k, v)
			return err
		}); err != nil {
			return Nil, err
		}
		return self, nil
	}
	vm.DefineNative(c, "each", 0, 0, each)
	vm.DefineNative(c, "each_pair", 0, 0, each)
	vm.DefineNative(c, "each_key", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, vm.hashEach(self.AsHash(), func(k, _ Value) error {
			_, err := vm.Yield(block, k)
			return err
		})
	})
	vm.DefineNative(c, "each_value", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, vm.hashEach(self.AsHash(), func(_, v Value) error {
			_, err := vm.Yield(block, v)
			return err
		})
	})
	filter := func(keep bool) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			out := vm.NewHash(self.AsHash().Len())
			err := vm.hashEach(self.AsHash(), func(k, v Value) error {
				r, err := vm.Yield(block, k, v)
				if err != nil || r.IsTruthy() != keep {
					return err
				}
				return out.Set(k, v)
			})
			return FromObject(out), err
		}
	}
	vm.DefineNative(c, "select", 0, 0, filter(true))
	vm.DefineNative(c, "filter", 0, 0, filter(true))
	vm.DefineNative(c, "reject", 0, 0, filter(false))
	vm.DefineNative(c, "map", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		out := vm.NewArrayCapa(self.AsHash().Len())
		err := vm.hashEach(self.AsHash(), func(k, v Value) error {
			r, err := vm.Yield(block, k, v)
			out.Push(r)
			return err
		})
		return FromObject(out), err
	})

	// Copies
	vm.DefineNative(c, "merge", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		out := self.AsHash().Dup(vm.HashClass)
		for _, a := range args {
			if err := vm.hashUpdate(out, a, block); err != nil {
				return Nil, err
			}
		}
		return FromObject(out), nil
	})
	update := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h := self.AsHash()
		if h.Frozen() {
			return Nil, vm.frozenError(self)
		}
		for _, a := range args {
			if err := vm.hashUpdate(h, a, block); err != nil {
				return Nil, err
			}
		}
		return self, nil
	}
	vm.DefineNative(c, "merge!", 0, -1, update)
	vm.DefineNative(c, "update", 0, -1, update)
	vm.DefineNative(c, "invert", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		out := vm.NewHash(self.AsHash().Len())
		err := vm.hashEach(self.AsHash(), func(k, v Value) error {
			return out.Set(v, k)
		})
		return FromObject(out), err
	})

	// Comparison
	vm.DefineNative(c, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsHash()
		if o == nil {
			return False, nil
		}
		eq, err := vm.hashEqual(self.AsHash(), o)
		return FromBool(eq), err
	})

	inspect := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		s, err := vm.inspectHash(self.AsHash())
		if err != nil {
			return Nil, err
		}
		return vm.NewString(s), nil
	}
	vm.DefineNative(c, "inspect", 0, 0, inspect)
	vm.DefineNative(c, "to_s", 0, 0, inspect)
}

// hashEach iterates h in insertion order, stopping at the first error.
func (vm *VM) hashEach(h *RHash, fn func(k, v Value) error) error {
	var err error
	h.Each(func(k, v Value) bool {
		err = fn(k, v)
		return err == nil
	})
	return err
}

// hashUpdate merges the entries of src into dst, resolving conflicts
// through block when one is given.
func (vm *VM) hashUpdate(dst *RHash, src Value, block Value) error {
	o := src.AsHash()
	if o == nil {
		return vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into Hash", vm.typeName(src))
	}
	return vm.hashEach(o, func(k, v Value) error {
		if !block.IsNil() {
			old, ok, err := dst.Get(k)
			if err != nil {
				return err
			}
			if ok {
				if v, err = vm.Yield(block, k, old, v); err != nil {
					return err
				}
			}
		}
		return vm.HashSet(dst, k, v)
	})
}

func (vm *VM) hashEqual(a, b *RHash) (bool, error) {
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
	eq := true
	err := vm.hashEach(a, func(k, v Value) error {
		w, ok, err := b.Get(k)
		if err != nil {
			return err
		}
		if !ok {
			eq = false
			return nil
		}
		same, err := vm.Equal(v, w)
		if err == nil && !same {
			eq = false
		}
		return err
	})
	return eq, err
}

// inspectHash renders a hash as {k=>v, ...}, printing {...} for a hash
// already being inspected.
func (vm *VM) inspectHash(h *RHash) (string, error) {
	if vm.inspecting[h] {
		return "{...}", nil
	}
	vm.inspecting[h] = true
	defer delete(vm.inspecting, h)
	var b strings.Builder
	b.WriteByte('{')
	first := true
	err := vm.hashEach(h, func(k, v Value) error {
		if !first {
			b.WriteString(", ")
		}
		first = false
		ks, err := vm.inspectElement(k)
		if err != nil {
			return err
		}
		vs, err := vm.inspectElement(v)
		if err != nil {
			return err
		}
		b.WriteString(ks)
		b.WriteString("=>")
		b.WriteString(vs)
		return nil
	})
	if err != nil {
		return "", err
	}
	b.WriteByte('}')
	return b.String(), nil
}
