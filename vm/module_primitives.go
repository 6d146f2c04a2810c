package vm

import "strings"

// ---------------------------------------------------------------------------
// Module and Class primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerModulePrimitives() {
	m := vm.ModuleClass
	c := vm.ClassClass

	// Hooks default to no-ops; callers skip them unless redefined.
	vm.defineDefault(m, "included", 1, 1, noopHook)
	vm.defineDefault(m, "extended", 1, 1, noopHook)
	vm.defineDefault(m, "prepended", 1, 1, noopHook)
	vm.defineDefault(m, "method_added", 1, 1, noopHook)
	vm.defineDefault(c, "inherited", 1, 1, noopHook)

	vm.DefineSingletonNative(FromObject(c), "new", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		super := vm.ObjectClass
		if len(args) > 0 {
			s := args[0].AsClass()
			if s == nil {
				return Nil, vm.Raisef(vm.TypeErrorClass, "superclass must be a Class (%s given)", vm.InspectString(args[0]))
			}
			super = s
		}
		k, err := vm.NewClass(super)
		if err != nil {
			return Nil, err
		}
		if err := vm.ClassInheritedHook(super, k); err != nil {
			return Nil, err
		}
		return vm.moduleEvalBlock(k, block)
	})
	vm.DefineSingletonNative(FromObject(m), "new", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.moduleEvalBlock(vm.NewModule(), block)
	})

	// Instantiation
	vm.DefineNative(c, "allocate", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.allocInstance(self.AsClass())
	})
	vm.DefineNative(c, "new", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		obj, err := vm.allocInstance(self.AsClass())
		if err != nil {
			return Nil, err
		}
		rest, kw := vm.splitKeywords(args)
		if _, err := vm.SendWithBlock(obj, SymInitialize, rest, kw, block); err != nil {
			return Nil, err
		}
		return obj, nil
	})
	vm.DefineNative(c, "superclass", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		s := k.super
		for s != nil && (s.kind == VTypeIClass || s.kind == VTypeSClass && k.kind != VTypeSClass) {
			s = s.super
		}
		if s == nil {
			return Nil, nil
		}
		return FromObject(s), nil
	})

	// Naming
	name := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		if k.name == "" {
			return Nil, nil
		}
		return vm.NewString(k.name), nil
	}
	vm.DefineNative(m, "name", 0, 0, name)
	toS := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(vm.ClassName(self.AsClass())), nil
	}
	vm.DefineNative(m, "to_s", 0, 0, toS)
	vm.DefineNative(m, "inspect", 0, 0, toS)

	// Relations
	vm.DefineNative(m, "===", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(vm.KindOf(args[0], self.AsClass())), nil
	})
	vm.DefineNative(m, "<", 1, 1, moduleCompare(true))
	vm.DefineNative(m, "<=", 1, 1, moduleCompare(false))
	vm.DefineNative(m, "ancestors", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		var out []Value
		for _, a := range vm.Ancestors(self.AsClass()) {
			out = append(out, FromObject(a))
		}
		return vm.NewArray(out...), nil
	})
	vm.DefineNative(m, "include?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		mod, err := vm.moduleArg(args[0])
		if err != nil {
			return Nil, err
		}
		for cur := self.AsClass().super; cur != nil; cur = cur.super {
			if cur.kind == VTypeIClass && cur.module == mod {
				return True, nil
			}
		}
		return False, nil
	})
	vm.DefineNative(m, "include", 1, -1, moduleAppend(false))
	vm.DefineNative(m, "prepend", 1, -1, moduleAppend(true))
	vm.DefineNative(m, "class_eval", 0, 0, moduleEval)
	vm.DefineNative(m, "module_eval", 0, 0, moduleEval)

	// Method table
	vm.DefineNative(m, "attr_reader", 0, -1, attrDefiner(true, false))
	vm.DefineNative(m, "attr_writer", 0, -1, attrDefiner(false, true))
	vm.DefineNative(m, "attr_accessor", 0, -1, attrDefiner(true, true))
	vm.DefineNative(m, "define_method", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		mid, err := vm.symbolArg(args[0])
		if err != nil {
			return Nil, err
		}
		body := block
		if len(args) > 1 {
			body = args[1]
		}
		p := body.AsProc()
		if p == nil {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "tried to create Proc object without a block")
		}
		k := self.AsClass()
		if err := vm.DefineMethod(k, mid, Method{Proc: vm.methodProc(p)}); err != nil {
			return Nil, err
		}
		if err := vm.MethodAddedHook(k, mid); err != nil {
			return Nil, err
		}
		return FromSymbol(mid), nil
	})
	vm.DefineNative(m, "alias_method", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		newName, err := vm.symbolArg(args[0])
		if err != nil {
			return Nil, err
		}
		oldName, err := vm.symbolArg(args[1])
		if err != nil {
			return Nil, err
		}
		if err := vm.AliasMethod(self.AsClass(), newName, oldName); err != nil {
			return Nil, err
		}
		return FromSymbol(newName), nil
	})
	vm.DefineNative(m, "undef_method", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, a := range args {
			mid, err := vm.symbolArg(a)
			if err != nil {
				return Nil, err
			}
			if err := vm.UndefMethod(self.AsClass(), mid); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(m, "remove_method", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, a := range args {
			mid, err := vm.symbolArg(a)
			if err != nil {
				return Nil, err
			}
			if err := vm.RemoveMethod(self.AsClass(), mid); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(m, "method_defined?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		mid, err := vm.symbolArg(args[0])
		if err != nil {
			return Nil, err
		}
		_, _, ok := vm.FindMethod(self.AsClass(), mid)
		return FromBool(ok), nil
	})
	vm.DefineNative(m, "instance_methods", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		var out []Value
		if len(args) > 0 && args[0].IsFalsy() {
			for _, mid := range k.Origin().mt.Names() {
				out = append(out, FromSymbol(mid))
			}
			return vm.NewArray(out...), nil
		}
		seen := make(map[Symbol]bool)
		for cur := k; cur != nil; cur = cur.super {
			for mid, e := range cur.mt.methods {
				if !seen[mid] && e.IsUndef() {
					seen[mid] = true
				}
			}
			for _, mid := range cur.mt.Names() {
				if !seen[mid] {
					seen[mid] = true
					out = append(out, FromSymbol(mid))
				}
			}
		}
		return vm.NewArray(out...), nil
	})

	// Constants and class variables
	vm.DefineNative(m, "const_get", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		if s := args[0].AsString(); s != nil && strings.Contains(s.String(), "::") {
			cur := FromObject(k)
			for _, part := range strings.Split(s.String(), "::") {
				if part == "" {
					cur = FromObject(vm.ObjectClass)
					continue
				}
				v, err := vm.scopedConstGet(cur, vm.Intern(part))
				if err != nil {
					return Nil, err
				}
				cur = v
			}
			return cur, nil
		}
		name, err := vm.constNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		return vm.ConstGet(k, name)
	})
	vm.DefineNative(m, "const_set", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.constNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		if err := vm.ConstSet(self.AsClass(), name, args[1]); err != nil {
			return Nil, err
		}
		return args[1], nil
	})
	vm.DefineNative(m, "const_defined?", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.constNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		if len(args) > 1 && args[1].IsFalsy() {
			return FromBool(vm.ConstDefinedAt(self.AsClass(), name)), nil
		}
		return FromBool(vm.ConstDefined(self.AsClass(), name)), nil
	})
	vm.DefineNative(m, "constants", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		var out []Value
		for _, n := range self.AsClass().iv.Keys() {
			if isConstName(vm.Symbols.Name(n)) {
				out = append(out, FromSymbol(n))
			}
		}
		return vm.NewArray(out...), nil
	})
	vm.DefineNative(m, "class_variable_get", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.cvarNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		return vm.ClassVarGet(self.AsClass(), name)
	})
	vm.DefineNative(m, "class_variable_set", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.cvarNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		if err := vm.ClassVarSet(self.AsClass(), name, args[1]); err != nil {
			return Nil, err
		}
		return args[1], nil
	})
	vm.DefineNative(m, "class_variable_defined?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.cvarNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(vm.ClassVarDefined(self.AsClass(), name)), nil
	})
}

func moduleCompare(strict bool) NativeFunc {
	return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		other, err := vm.classArg(args[0])
		if err != nil {
			return Nil, err
		}
		if k == other {
			return FromBool(!strict), nil
		}
		if k.IsSubclassOf(other) {
			return True, nil
		}
		if other.IsSubclassOf(k) {
			return False, nil
		}
		return Nil, nil
	}
}

// moduleAppend implements include and prepend. Arguments are processed
// last to first so the first module ends up nearest the receiver.
func moduleAppend(prepend bool) NativeFunc {
	return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		hook := SymIncluded
		if prepend {
			hook = SymPrepended
		}
		for i := len(args) - 1; i >= 0; i-- {
			mod, err := vm.moduleArg(args[i])
			if err != nil {
				return Nil, err
			}
			if prepend {
				err = vm.PrependModule(k, mod)
			} else {
				err = vm.IncludeModule(k, mod)
			}
			if err != nil {
				return Nil, err
			}
			if err := vm.callHook(args[i], hook, self); err != nil {
				return Nil, err
			}
		}
		return self, nil
	}
}

func moduleEval(vm *VM, self Value, args []Value, block Value) (Value, error) {
	p := block.AsProc()
	if p == nil {
		return Nil, vm.Raisef(vm.ArgumentErrorClass, "no block given")
	}
	return vm.callProcWithTarget(p, self, []Value{self}, Nil, self.AsClass())
}

// moduleEvalBlock runs an optional body block for Class.new/Module.new and
// returns the new class.
func (vm *VM) moduleEvalBlock(k *RClass, block Value) (Value, error) {
	kv := FromObject(k)
	if p := block.AsProc(); p != nil {
		if _, err := vm.callProcWithTarget(p, kv, []Value{kv}, Nil, k); err != nil {
			return Nil, err
		}
	}
	return kv, nil
}

// attrDefiner builds attr_reader / attr_writer / attr_accessor.
func attrDefiner(reader, writer bool) NativeFunc {
	return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		k := self.AsClass()
		var out []Value
		for _, a := range args {
			sym, err := vm.symbolArg(a)
			if err != nil {
				return Nil, err
			}
			name := vm.Symbols.Name(sym)
			if !isIdentTail(name) || name == "" || (name[0] >= '0' && name[0] <= '9') {
				return Nil, vm.nameError(vm.NameErrorClass, sym, "invalid attribute name '%s'", name)
			}
			ivar := vm.Intern("@" + name)
			if reader {
				m := Method{Func: func(vm *VM, self Value, args []Value, block Value) (Value, error) {
					return IvarGet(self, ivar), nil
				}}
				if err := vm.DefineMethod(k, sym, m); err != nil {
					return Nil, err
				}
				out = append(out, FromSymbol(sym))
			}
			if writer {
				setter := vm.Intern(name + "=")
				m := Method{Func: func(vm *VM, self Value, args []Value, block Value) (Value, error) {
					if err := vm.ivarSet(self, ivar, args[0]); err != nil {
						return Nil, err
					}
					return args[0], nil
				}, Min: 1, Max: 1}
				if err := vm.DefineMethod(k, setter, m); err != nil {
					return Nil, err
				}
				out = append(out, FromSymbol(setter))
			}
		}
		return vm.NewArray(out...), nil
	}
}

func (vm *VM) constNameArg(v Value) (Symbol, error) {
	sym, err := vm.symbolArg(v)
	if err != nil {
		return SymNone, err
	}
	if name := vm.Symbols.Name(sym); !isConstName(name) {
		return SymNone, vm.nameError(vm.NameErrorClass, sym, "wrong constant name %s", name)
	}
	return sym, nil
}

func (vm *VM) cvarNameArg(v Value) (Symbol, error) {
	sym, err := vm.symbolArg(v)
	if err != nil {
		return SymNone, err
	}
	if name := vm.Symbols.Name(sym); !isCvarName(name) {
		return SymNone, vm.nameError(vm.NameErrorClass, sym, "'%s' is not allowed as a class variable name", name)
	}
	return sym, nil
}
