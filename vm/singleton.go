package vm

// ---------------------------------------------------------------------------
// Singleton classes
// ---------------------------------------------------------------------------

// prepareSingletonClass materialises the singleton class of o if it does not
// have one yet. A class's singleton inherits from its superclass's
// singleton, so class methods follow the class hierarchy.
func (vm *VM) prepareSingletonClass(o HeapObject) *RClass {
	b := o.Basic()
	if b.class != nil && b.class.kind == VTypeSClass && b.class.attached == o {
		return b.class
	}
	sc := &RClass{
		RBasic: RBasic{class: vm.ClassClass, iv: NewIVTable()},
		kind:   VTypeSClass,
		mt:     NewMethodTable(),
	}
	switch c := o.(type) {
	case *RClass:
		switch c.kind {
		case VTypeClass, VTypeSClass:
			s := c.super
			for s != nil && s.kind == VTypeIClass {
				s = s.super
			}
			if s == nil {
				sc.super = vm.ClassClass
			} else {
				sc.super = vm.prepareSingletonClass(s)
			}
		default:
			sc.super = b.class
		}
	default:
		sc.super = b.class
	}
	if sc.super != nil {
		sc.instanceType = sc.super.instanceType
	}
	sc.attached = o
	sc.flags |= b.flags & FlagFrozen
	b.class = sc
	return sc
}

// SingletonClassOf returns the singleton class of v, creating it on first
// request. nil, true and false answer their fixed classes; other immediates
// cannot have singletons.
func (vm *VM) SingletonClassOf(v Value) (*RClass, error) {
	switch v.tag {
	case TagNil:
		return vm.NilClass, nil
	case TagFalse:
		return vm.FalseClass, nil
	case TagTrue:
		return vm.TrueClass, nil
	case TagInteger, TagFloat, TagSymbol:
		return nil, vm.Raisef(vm.TypeErrorClass, "can't define singleton")
	}
	switch v.obj.(type) {
	case *RBreak, *REnv:
		return nil, vm.Raisef(vm.TypeErrorClass, "can't define singleton")
	}
	return vm.prepareSingletonClass(v.obj), nil
}

// DefineSingletonMethod defines a method on v's singleton class.
func (vm *VM) DefineSingletonMethod(v Value, mid Symbol, m Method) error {
	sc, err := vm.SingletonClassOf(v)
	if err != nil {
		return err
	}
	return vm.DefineMethod(sc, mid, m)
}

// DefineSingletonNative defines a native singleton method with arity bounds.
func (vm *VM) DefineSingletonNative(v Value, name string, min, max int, fn NativeFunc) {
	sc, err := vm.SingletonClassOf(v)
	if err != nil {
		panic("garnet: " + err.Error())
	}
	vm.DefineNative(sc, name, min, max, fn)
}
