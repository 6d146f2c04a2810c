package vm

import "strings"

// ---------------------------------------------------------------------------
// Exception primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerExceptionPrimitives() {
	c := vm.ExceptionClass

	vm.DefineSingletonNative(FromObject(c), "exception", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.SendWithBlock(self, SymNew, args, nil, block)
	})
	vm.DefineNative(c, "initialize", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if len(args) > 0 {
			self.AsException().Message = args[0]
		}
		return Nil, nil
	})
	vm.DefineNative(c, "initialize_copy", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if src := args[0].AsException(); src != nil {
			e := self.AsException()
			e.Message = src.Message
			e.Backtrace = append([]string(nil), src.Backtrace...)
		}
		return self, nil
	})
	vm.DefineNative(c, "exception", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if len(args) == 0 || Identical(args[0], self) {
			return self, nil
		}
		d, err := vm.Dup(self)
		if err != nil {
			return Nil, err
		}
		d.AsException().Message = args[0]
		return d, nil
	})

	vm.DefineNative(c, "to_s", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		e := self.AsException()
		if e.Message.IsNil() {
			return vm.NewString(vm.ClassName(vm.RealClassOf(self))), nil
		}
		s, err := vm.ToS(e.Message)
		if err != nil {
			return Nil, err
		}
		return vm.NewString(s), nil
	})
	vm.DefineNative(c, "message", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.Send(self, SymToS)
	})
	vm.DefineNative(c, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name := vm.ClassName(vm.RealClassOf(self))
		if self.AsException().Message.IsNil() {
			return vm.NewString(name), nil
		}
		msg, err := vm.exceptionMessage(self)
		if err != nil {
			return Nil, err
		}
		if msg == "" {
			return vm.NewString(name), nil
		}
		return vm.NewString(msg + " (" + name + ")"), nil
	})
	vm.DefineNative(c, "full_message", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		msg, err := vm.exceptionMessage(self)
		if err != nil {
			return Nil, err
		}
		return vm.NewString(vm.FullMessage(self.AsException(), msg)), nil
	})
	vm.DefineNative(c, "backtrace", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		bt := self.AsException().Backtrace
		if bt == nil {
			return Nil, nil
		}
		out := vm.NewArrayCapa(len(bt))
		for _, line := range bt {
			out.Push(vm.NewString(line))
		}
		return FromObject(out), nil
	})
	vm.DefineNative(c, "set_backtrace", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		e := self.AsException()
		switch {
		case args[0].IsNil():
			e.Backtrace = nil
		case args[0].IsString():
			e.Backtrace = []string{args[0].AsString().String()}
		case args[0].IsArray():
			var bt []string
			for _, v := range args[0].AsArray().Values() {
				s, err := vm.stringArg(v)
				if err != nil {
					return Nil, err
				}
				bt = append(bt, s.String())
			}
			e.Backtrace = bt
		default:
			return Nil, vm.Raisef(vm.TypeErrorClass, "backtrace must be an Array of String")
		}
		return args[0], nil
	})
	vm.DefineNative(c, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if Identical(self, args[0]) {
			return True, nil
		}
		o := args[0].AsException()
		if o == nil || vm.RealClassOf(self) != vm.RealClassOf(args[0]) {
			return False, nil
		}
		a, err := vm.exceptionMessage(self)
		if err != nil {
			return Nil, err
		}
		b, err := vm.exceptionMessage(args[0])
		return FromBool(err == nil && a == b), err
	})

	vm.registerErrorSubclassPrimitives()
}

func (vm *VM) registerErrorSubclassPrimitives() {
	nameSym := vm.Intern("@name")
	vm.DefineNative(vm.NameErrorClass, "initialize", 0, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		e := self.AsException()
		if len(args) > 0 {
			e.Message = args[0]
		}
		if len(args) > 1 {
			IvarSet(e, nameSym, args[1])
		}
		return Nil, nil
	})
	vm.DefineNative(vm.NameErrorClass, "name", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return IvarGet(self, nameSym), nil
	})
	vm.DefineNative(vm.NameErrorClass, "receiver", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if !IvarDefined(self, vm.Intern("@receiver")) {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "no receiver is available")
		}
		return IvarGet(self, vm.Intern("@receiver")), nil
	})
	vm.DefineNative(vm.NoMethodErrorClass, "args", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if v := IvarGet(self, vm.Intern("@args")); !v.IsNil() {
			return v, nil
		}
		return vm.NewArray(), nil
	})
	vm.DefineNative(vm.StopIterationClass, "result", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return IvarGet(self, vm.Intern("@result")), nil
	})
	vm.DefineNative(vm.FrozenErrorClass, "receiver", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return IvarGet(self, vm.Intern("@receiver")), nil
	})
}

// exceptionMessage returns the text of exc.message.
func (vm *VM) exceptionMessage(exc Value) (string, error) {
	r, err := vm.Send(exc, SymMessage)
	if err != nil {
		return "", err
	}
	if s := r.AsString(); s != nil {
		return s.String(), nil
	}
	return vm.InspectString(r), nil
}

// FullMessage formats an exception for an uncaught-exception report:
// the innermost backtrace line, the message and class, then the remaining
// frames.
func (vm *VM) FullMessage(e *RException, msg string) string {
	var b strings.Builder
	if len(e.Backtrace) > 0 {
		b.WriteString(e.Backtrace[0])
		b.WriteString(": ")
	}
	b.WriteString(msg)
	b.WriteString(" (")
	b.WriteString(e.ClassName())
	b.WriteString(")")
	for _, line := range e.Backtrace[min(1, len(e.Backtrace)):] {
		b.WriteString("\n\tfrom ")
		b.WriteString(line)
	}
	return b.String()
}
