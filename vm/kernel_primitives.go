package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// BasicObject and Kernel primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerKernelPrimitives() {
	b := vm.BasicObjectClass
	k := vm.KernelModule

	vm.defineDefault(b, "initialize", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return Nil, nil
	})
	vm.defineDefault(b, "method_missing", 1, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if !args[0].IsSymbol() {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "no method name given")
		}
		return Nil, vm.noMethodError(self, args[0].Symbol(), args[1:])
	})
	vm.defineDefault(b, "singleton_method_added", 1, 1, noopHook)

	vm.DefineNative(b, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(Identical(self, args[0])), nil
	})
	vm.DefineNative(b, "equal?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(Identical(self, args[0])), nil
	})
	vm.DefineNative(b, "!", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.IsFalsy()), nil
	})
	vm.DefineNative(b, "!=", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		r, err := vm.Send(self, SymEq, args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(r.IsFalsy()), nil
	})
	vm.DefineNative(b, "__id__", 0, 0, objectID)
	vm.DefineNative(b, "__send__", 1, -1, kernelSend)
	vm.DefineNative(b, "instance_eval", 0, 1, instanceExec(true))
	vm.DefineNative(b, "instance_exec", 0, -1, instanceExec(false))

	vm.DefineNative(k, "send", 1, -1, kernelSend)
	vm.DefineNative(k, "public_send", 1, -1, kernelSend)
	vm.DefineNative(k, "object_id", 0, 0, objectID)
	vm.DefineNative(k, "class", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromObject(vm.RealClassOf(self)), nil
	})
	vm.DefineNative(k, "singleton_class", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		sc, err := vm.SingletonClassOf(self)
		if err != nil {
			return Nil, err
		}
		return FromObject(sc), nil
	})
	vm.DefineNative(k, "nil?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.IsNil()), nil
	})
	vm.DefineNative(k, "===", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if Identical(self, args[0]) {
			return True, nil
		}
		r, err := vm.Send(self, SymEq, args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(r.IsTruthy()), nil
	})
	vm.defineDefault(k, "hash", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h, err := vm.HashKey(self)
		if err != nil {
			return Nil, err
		}
		return FromInt(int64(h >> 2)), nil
	})
	vm.defineDefault(k, "eql?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(Identical(self, args[0])), nil
	})
	vm.defineDefault(k, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(vm.InspectString(self)), nil
	})
	vm.defineDefault(k, "to_s", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(vm.defaultToS(self)), nil
	})
	vm.DefineNative(k, "itself", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	vm.DefineNative(k, "tap", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if _, err := vm.Yield(block, self); err != nil {
			return Nil, err
		}
		return self, nil
	})

	// Type tests
	isA := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		c, err := vm.classArg(args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(vm.KindOf(self, c)), nil
	}
	vm.DefineNative(k, "is_a?", 1, 1, isA)
	vm.DefineNative(k, "kind_of?", 1, 1, isA)
	vm.DefineNative(k, "instance_of?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		c, err := vm.classArg(args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(vm.RealClassOf(self) == c), nil
	})
	vm.DefineNative(k, "respond_to?", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		mid, err := vm.symbolArg(args[0])
		if err != nil {
			return Nil, err
		}
		if vm.RespondTo(self, mid) {
			return True, nil
		}
		m, _, ok := vm.FindMethod(vm.ClassOf(self), SymRespondToMissing)
		if !ok || m.IsDefault() {
			return False, nil
		}
		priv := False
		if len(args) > 1 {
			priv = args[1]
		}
		r, err := vm.Send(self, SymRespondToMissing, FromSymbol(mid), priv)
		if err != nil {
			return Nil, err
		}
		return FromBool(r.IsTruthy()), nil
	})
	vm.defineDefault(k, "respond_to_missing?", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return False, nil
	})

	// Instance variables
	vm.DefineNative(k, "instance_variable_get", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.ivarNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		return IvarGet(self, name), nil
	})
	vm.DefineNative(k, "instance_variable_set", 2, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.ivarNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		if err := vm.ivarSet(self, name, args[1]); err != nil {
			return Nil, err
		}
		return args[1], nil
	})
	vm.DefineNative(k, "instance_variable_defined?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		name, err := vm.ivarNameArg(args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(IvarDefined(self, name)), nil
	})
	vm.DefineNative(k, "instance_variables", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		var out []Value
		for _, n := range IvarNames(self) {
			if isIvarName(vm.Symbols.Name(n)) {
				out = append(out, FromSymbol(n))
			}
		}
		return vm.NewArray(out...), nil
	})

	// Freezing and copying
	vm.DefineNative(k, "freeze", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if o := self.Object(); o != nil {
			o.Basic().Freeze()
		}
		return self, nil
	})
	vm.DefineNative(k, "frozen?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if o := self.Object(); o != nil {
			return FromBool(o.Basic().Frozen()), nil
		}
		return True, nil
	})
	vm.DefineNative(k, "dup", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.Dup(self)
	})
	vm.DefineNative(k, "clone", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		d, err := vm.Dup(self)
		if err != nil {
			return Nil, err
		}
		if o := self.Object(); o != nil && o.Basic().Frozen() {
			d.Object().Basic().Freeze()
		}
		return d, nil
	})
	vm.defineDefault(k, "initialize_copy", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	vm.DefineNative(k, "extend", 1, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for i := len(args) - 1; i >= 0; i-- {
			m, err := vm.moduleArg(args[i])
			if err != nil {
				return Nil, err
			}
			if err := vm.ExtendObject(self, m); err != nil {
				return Nil, err
			}
			if err := vm.callHook(args[i], SymExtended, self); err != nil {
				return Nil, err
			}
		}
		return self, nil
	})
	vm.DefineNative(k, "define_singleton_method", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
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
		if err := vm.DefineSingletonMethod(self, mid, Method{Proc: vm.methodProc(p)}); err != nil {
			return Nil, err
		}
		return FromSymbol(mid), nil
	})

	// Control
	vm.DefineNative(k, "raise", 0, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return Nil, vm.raiseArgs(args)
	})
	vm.DefineNative(k, "block_given?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(vm.callerBlockGiven()), nil
	})
	vm.DefineNative(k, "lambda", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		p := block.AsProc()
		if p == nil {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "tried to create Proc object without a block")
		}
		if p.IsStrict() {
			return block, nil
		}
		l := *p
		l.RBasic = RBasic{class: p.class}
		l.Flags |= ProcStrict
		return FromObject(&l), nil
	})
	vm.DefineNative(k, "proc", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if block.IsNil() {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "tried to create Proc object without a block")
		}
		return block, nil
	})
	vm.DefineNative(k, "loop", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for {
			if _, err := vm.Yield(block); err != nil {
				var exc *RException
				if errors.As(err, &exc) && vm.KindOf(FromObject(exc), vm.StopIterationClass) {
					return IvarGet(FromObject(exc), vm.Intern("@result")), nil
				}
				return Nil, err
			}
		}
	})

	// Output
	vm.DefineNative(k, "puts", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		var b strings.Builder
		if len(args) == 0 {
			b.WriteByte('\n')
		}
		for _, a := range args {
			if err := vm.putsInto(&b, a, nil); err != nil {
				return Nil, err
			}
		}
		_, err := fmt.Fprint(vm.opts.Stdout, b.String())
		return Nil, err
	})
	vm.DefineNative(k, "print", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, a := range args {
			s, err := vm.ToS(a)
			if err != nil {
				return Nil, err
			}
			if _, err := fmt.Fprint(vm.opts.Stdout, s); err != nil {
				return Nil, err
			}
		}
		return Nil, nil
	})
	vm.DefineNative(k, "p", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, a := range args {
			s, err := vm.Inspect(a)
			if err != nil {
				return Nil, err
			}
			if _, err := fmt.Fprintln(vm.opts.Stdout, s); err != nil {
				return Nil, err
			}
		}
		switch len(args) {
		case 0:
			return Nil, nil
		case 1:
			return args[0], nil
		}
		return vm.NewArray(args...), nil
	})
}

func noopHook(vm *VM, self Value, args []Value, block Value) (Value, error) {
	return Nil, nil
}

func objectID(vm *VM, self Value, args []Value, block Value) (Value, error) {
	return FromInt(int64(vm.ObjectID(self))), nil
}

// kernelSend forwards to the named method with the remaining arguments,
// keywords and block.
func kernelSend(vm *VM, self Value, args []Value, block Value) (Value, error) {
	mid, err := vm.symbolArg(args[0])
	if err != nil {
		return Nil, err
	}
	rest, kw := vm.splitKeywords(args[1:])
	return vm.SendWithBlock(self, mid, rest, kw, block)
}

// instanceExec runs the block with self rebound to the receiver.
func instanceExec(passSelf bool) NativeFunc {
	return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		p := block.AsProc()
		if p == nil {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "no block given")
		}
		if passSelf {
			args = []Value{self}
		}
		var target *RClass
		if sc, err := vm.SingletonClassOf(self); err == nil {
			target = sc
		}
		return vm.callProcWithTarget(p, self, args, block, target)
	}
}

// splitKeywords separates the keyword hash a native received from its
// positional arguments.
func (vm *VM) splitKeywords(args []Value) ([]Value, *RHash) {
	kw := vm.PassedKeywords()
	if kw == nil || len(args) == 0 || args[len(args)-1].AsHash() != kw {
		return args, nil
	}
	return args[:len(args)-1], kw
}

// callerBlockGiven reports whether the method enclosing the caller of the
// running native received a block.
func (vm *VM) callerBlockGiven() bool {
	c := vm.ctx
	if c.depth < 2 {
		return false
	}
	caller := c.cis[c.depth-2]
	p := caller.Proc
	if p == nil || p.IsStrict() || p.Env == nil || p.IsNative() {
		return caller.Block != nil
	}
	env := p.Env
	for up := p.Upper; up != nil && !up.IsStrict() && !up.IsScope() && up.Env != nil; up = up.Upper {
		env = up.Env
	}
	if !env.OnStack() || env.CIIndex < 0 || env.CIIndex >= c.depth {
		return false
	}
	return c.cis[env.CIIndex].Block != nil
}

// raiseArgs implements the argument forms of raise.
func (vm *VM) raiseArgs(args []Value) error {
	var exc *RException
	switch len(args) {
	case 0:
		if pending := vm.GlobalGet(vm.Intern("$!")).AsException(); pending != nil {
			return pending
		}
		exc = vm.NewException(vm.RuntimeErrorClass, "unhandled exception")
	case 1:
		if s := args[0].AsString(); s != nil {
			exc = vm.NewException(vm.RuntimeErrorClass, s.String())
			break
		}
		fallthrough
	default:
		var err error
		exc, err = vm.makeException(args)
		if err != nil {
			return err
		}
	}
	if len(exc.Backtrace) == 0 {
		exc.Backtrace = vm.captureBacktrace()
	}
	return exc
}

// makeException turns (class_or_exception, message?) into an exception.
func (vm *VM) makeException(args []Value) (*RException, error) {
	msg := Nil
	if len(args) > 1 {
		msg = args[1]
	}
	if e := args[0].AsException(); e != nil {
		if msg.IsNil() {
			return e, nil
		}
		d, err := vm.Dup(args[0])
		if err != nil {
			return nil, err
		}
		de := d.AsException()
		de.Message = msg
		return de, nil
	}
	if c := args[0].AsClass(); c != nil && c.IsSubclassOf(vm.ExceptionClass) {
		return vm.ExceptionNew(c, msg)
	}
	return nil, vm.Raisef(vm.TypeErrorClass, "exception class/object expected")
}

func (vm *VM) putsInto(b *strings.Builder, v Value, seen map[HeapObject]bool) error {
	if a := v.AsArray(); a != nil {
		if seen[a] {
			b.WriteString("[...]\n")
			return nil
		}
		seen = markSeen(seen, a)
		for _, e := range a.Values() {
			if err := vm.putsInto(b, e, seen); err != nil {
				return err
			}
		}
		return nil
	}
	s, err := vm.ToS(v)
	if err != nil {
		return err
	}
	b.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		b.WriteByte('\n')
	}
	return nil
}

// ---------------------------------------------------------------------------
// Argument coercion
// ---------------------------------------------------------------------------

// symbolArg accepts a Symbol or String method/constant name.
func (vm *VM) symbolArg(v Value) (Symbol, error) {
	if v.IsSymbol() {
		return v.Symbol(), nil
	}
	if s := v.AsString(); s != nil {
		return vm.Symbols.InternBytes(s.Bytes()), nil
	}
	return SymNone, vm.Raisef(vm.TypeErrorClass, "%s is not a symbol nor a string", vm.InspectString(v))
}

func (vm *VM) ivarNameArg(v Value) (Symbol, error) {
	sym, err := vm.symbolArg(v)
	if err != nil {
		return SymNone, err
	}
	if name := vm.Symbols.Name(sym); !isIvarName(name) {
		return SymNone, vm.nameError(vm.NameErrorClass, sym, "'%s' is not allowed as an instance variable name", name)
	}
	return sym, nil
}

// classArg accepts a class or module.
func (vm *VM) classArg(v Value) (*RClass, error) {
	c := v.AsClass()
	if c == nil || c.kind == VTypeIClass {
		return nil, vm.Raisef(vm.TypeErrorClass, "class or module required")
	}
	return c, nil
}

func (vm *VM) moduleArg(v Value) (*RClass, error) {
	c := v.AsClass()
	if c == nil || c.kind != VTypeModule {
		return nil, vm.Raisef(vm.TypeErrorClass, "wrong argument type %s (expected Module)", vm.ClassName(vm.RealClassOf(v)))
	}
	return c, nil
}

// intArg accepts an Integer, or a Float truncated toward zero.
func (vm *VM) intArg(v Value) (int64, error) {
	switch v.tag {
	case TagInteger:
		return v.Int(), nil
	case TagFloat:
		return int64(v.Float64()), nil
	}
	return 0, vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into Integer", vm.typeName(v))
}

// typeName names v's class the way conversion errors do.
func (vm *VM) typeName(v Value) string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagTrue:
		return "true"
	case TagFalse:
		return "false"
	}
	return vm.ClassName(vm.RealClassOf(v))
}

// ---------------------------------------------------------------------------
// Allocation and copying
// ---------------------------------------------------------------------------

// allocInstance creates an uninitialised instance of c.
func (vm *VM) allocInstance(c *RClass) (Value, error) {
	if c.kind == VTypeSClass {
		return Nil, vm.Raisef(vm.TypeErrorClass, "can't create instance of singleton class")
	}
	if c.noAlloc {
		return Nil, vm.Raisef(vm.TypeErrorClass, "allocator undefined for %s", vm.ClassName(c))
	}
	switch c.instanceType {
	case VTypeString:
		return FromObject(newRString(c, nil)), nil
	case VTypeArray:
		return FromObject(newRArray(c, nil)), nil
	case VTypeHash:
		return FromObject(newRHash(c, vm, 0)), nil
	case VTypeException:
		return FromObject(&RException{RBasic: RBasic{class: c}}), nil
	case VTypeModule:
		m := vm.NewModule()
		m.class = c
		return FromObject(m), nil
	case VTypeClass:
		k, err := vm.NewClass(nil)
		if err != nil {
			return Nil, err
		}
		return FromObject(k), nil
	case VTypeRange, VTypeProc:
		return Nil, vm.Raisef(vm.TypeErrorClass, "allocator undefined for %s", vm.ClassName(c))
	}
	return FromObject(&RObject{RBasic: RBasic{class: c}}), nil
}

// Dup copies v shallowly: same real class, instance variables copied,
// not frozen, then initialize_copy is called.
func (vm *VM) Dup(v Value) (Value, error) {
	if v.IsImmediate() {
		return v, nil
	}
	cls := vm.RealClassOf(v)
	var d HeapObject
	switch o := v.obj.(type) {
	case *RString:
		d = o.Dup(cls)
	case *RArray:
		d = o.Dup(cls)
	case *RHash:
		d = o.Dup(cls)
	case *RRange:
		r := *o
		r.RBasic = RBasic{class: cls, flags: FlagFrozen}
		d = &r
	case *RProc:
		p := *o
		p.RBasic = RBasic{class: cls}
		d = &p
	case *RException:
		e := *o
		e.RBasic = RBasic{class: cls}
		e.Backtrace = append([]string(nil), o.Backtrace...)
		d = &e
	case *RObject:
		d = &RObject{RBasic: RBasic{class: cls}}
	case *RClass:
		return Nil, vm.Raisef(vm.TypeErrorClass, "can't copy %s", vm.ClassName(o))
	default:
		return Nil, vm.Raisef(vm.TypeErrorClass, "can't copy %s", vm.ClassName(cls))
	}
	src := v.obj.Basic()
	for _, n := range src.iv.Keys() {
		val, _ := src.iv.Get(n)
		IvarSet(d, n, val)
	}
	dv := FromObject(d)
	if err := vm.callHook(dv, SymInitializeCopy, v); err != nil {
		return Nil, err
	}
	return dv, nil
}
