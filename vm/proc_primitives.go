package vm

// ---------------------------------------------------------------------------
// Proc primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerProcPrimitives() {
	c := vm.ProcClass

	// Proc#call and its aliases run an irep holding a single CALL, which
	// replaces the frame with the receiver's body.
	vm.callIrep = NewIrepBuilder(vm.Symbols, 1, 1).Emit(OpCall).MustBuild()
	callProc := &RProc{
		RBasic: RBasic{class: vm.ProcClass},
		Irep:   vm.callIrep,
		Flags:  ProcScope,
	}
	for _, name := range []string{"call", "[]", "yield", "==="} {
		if err := vm.DefineMethod(c, vm.Intern(name), Method{Proc: callProc}); err != nil {
			panic("garnet: " + err.Error())
		}
	}

	vm.DefineSingletonNative(FromObject(c), "new", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		p := block.AsProc()
		if p == nil {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "tried to create Proc object without a block")
		}
		cp := *p
		cp.RBasic = RBasic{class: self.AsClass()}
		v := FromObject(&cp)
		if _, err := vm.SendWithBlock(v, SymInitialize, nil, nil, Nil); err != nil {
			return Nil, err
		}
		return v, nil
	})
	vm.DefineNative(c, "arity", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(int64(self.AsProc().Arity())), nil
	})
	vm.DefineNative(c, "lambda?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.AsProc().IsStrict()), nil
	})
	vm.DefineNative(c, "to_proc", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	vm.DefineNative(c, "parameters", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.procParameters(self.AsProc()), nil
	})
	inspect := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(vm.InspectString(self)), nil
	}
	vm.DefineNative(c, "inspect", 0, 0, inspect)
	vm.DefineNative(c, "to_s", 0, 0, inspect)
}

// methodProc turns a block into a method body for define_method: a copy
// with lambda argument binding.
func (vm *VM) methodProc(p *RProc) *RProc {
	cp := *p
	cp.RBasic = RBasic{class: vm.ProcClass}
	cp.Flags |= ProcStrict
	return &cp
}

// procParameters describes the parameter list in the form
// [[:req, :a], [:opt, :b], [:rest, :c], ...].
func (vm *VM) procParameters(p *RProc) Value {
	out := vm.NewArrayCapa(4)
	if p.Irep == nil || len(p.Irep.ISeq) < 4 || Opcode(p.Irep.ISeq[0]) != OpEnter {
		if p.IsNative() {
			out.Push(vm.NewArray(FromSymbol(vm.Intern("rest"))))
		}
		return FromObject(out)
	}
	spec := DecodeAspec(uint32(p.Irep.ISeq[1])<<16 | uint32(p.Irep.ISeq[2])<<8 | uint32(p.Irep.ISeq[3]))
	names := p.Irep.LocalNames
	slot := 0
	add := func(kind string) {
		entry := []Value{FromSymbol(vm.Intern(kind))}
		if slot < len(names) && names[slot] != SymNone {
			entry = append(entry, FromSymbol(names[slot]))
		}
		out.Push(vm.NewArray(entry...))
		slot++
	}
	reqKind := "opt"
	if p.IsStrict() {
		reqKind = "req"
	}
	for range spec.Req {
		add(reqKind)
	}
	for range spec.Opt {
		add("opt")
	}
	if spec.Rest {
		add("rest")
	}
	for range spec.Post {
		add(reqKind)
	}
	for range spec.Key {
		add("key")
	}
	if spec.KDict {
		add("keyrest")
	}
	if spec.Block {
		add("block")
	}
	return FromObject(out)
}

// ---------------------------------------------------------------------------
// Fiber
// ---------------------------------------------------------------------------

func (vm *VM) registerFiberPrimitives() {
	vm.DefineSingletonNative(FromObject(vm.FiberClass), "new", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return Nil, vm.Raisef(vm.NotImplementedErrorClass, "fiber not supported")
	})
}
