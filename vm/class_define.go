package vm

// ---------------------------------------------------------------------------
// Class and module definition
// ---------------------------------------------------------------------------

// DefineClass defines (or reopens) a top-level class.
func (vm *VM) DefineClass(name string, super *RClass) (*RClass, error) {
	return vm.DefineClassUnder(vm.ObjectClass, vm.Symbols.Intern(name), super)
}

// DefineModule defines (or reopens) a top-level module.
func (vm *VM) DefineModule(name string) (*RClass, error) {
	return vm.DefineModuleUnder(vm.ObjectClass, vm.Symbols.Intern(name))
}

// DefineClassUnder defines class name as a constant of outer. An existing
// constant is reopened after checking it is a class whose superclass
// matches super (when super is given).
func (vm *VM) DefineClassUnder(outer *RClass, name Symbol, super *RClass) (*RClass, error) {
	if v, ok := outer.iv.Get(name); ok {
		c := v.AsClass()
		if c == nil || c.kind != VTypeClass {
			return nil, vm.Raisef(vm.TypeErrorClass, "%s is not a class", vm.Symbols.Name(name))
		}
		if super != nil && c.super.Real() != super {
			return nil, vm.Raisef(vm.TypeErrorClass, "superclass mismatch for class %s", vm.Symbols.Name(name))
		}
		log.Debugf("reopen class %s", c.name)
		return c, nil
	}
	c, err := vm.NewClass(super)
	if err != nil {
		return nil, err
	}
	vm.setClassPath(outer, name, c)
	outer.iv.Set(name, FromObject(c))
	log.Debugf("define class %s < %s", c.name, c.super.Name())
	if err := vm.ClassInheritedHook(c.super.Real(), c); err != nil {
		return nil, err
	}
	return c, nil
}

// DefineModuleUnder defines module name as a constant of outer, reopening an
// existing module of that name.
func (vm *VM) DefineModuleUnder(outer *RClass, name Symbol) (*RClass, error) {
	if v, ok := outer.iv.Get(name); ok {
		m := v.AsClass()
		if m == nil || m.kind != VTypeModule {
			return nil, vm.Raisef(vm.TypeErrorClass, "%s is not a module", vm.Symbols.Name(name))
		}
		return m, nil
	}
	m := vm.NewModule()
	vm.setClassPath(outer, name, m)
	outer.iv.Set(name, FromObject(m))
	log.Debugf("define module %s", m.name)
	return m, nil
}

// defineClassValue implements the CLASS instruction: outer and super come
// from registers and are type-checked here.
func (vm *VM) defineClassValue(outer, super Value, name Symbol) (*RClass, error) {
	var s *RClass
	if !super.IsNil() {
		s = super.AsClass()
		if s == nil {
			return nil, vm.Raisef(vm.TypeErrorClass, "superclass must be a Class (%s given)", vm.InspectString(super))
		}
	}
	o, err := vm.checkClassOrModule(outer)
	if err != nil {
		return nil, err
	}
	return vm.DefineClassUnder(o, name, s)
}

func (vm *VM) defineModuleValue(outer Value, name Symbol) (*RClass, error) {
	o, err := vm.checkClassOrModule(outer)
	if err != nil {
		return nil, err
	}
	return vm.DefineModuleUnder(o, name)
}

func (vm *VM) checkClassOrModule(v Value) (*RClass, error) {
	c := v.AsClass()
	if c == nil || c.kind == VTypeIClass {
		return nil, vm.Raisef(vm.TypeErrorClass, "%s is not a class/module", vm.InspectString(v))
	}
	return c, nil
}

// setClassPath names an anonymous class after the constant it is bound to.
func (vm *VM) setClassPath(outer *RClass, name Symbol, c *RClass) {
	if c.name != "" {
		return
	}
	if outer == nil || outer == vm.ObjectClass {
		c.name = vm.Symbols.Name(name)
		return
	}
	c.name = vm.ClassName(outer) + "::" + vm.Symbols.Name(name)
}

// ---------------------------------------------------------------------------
// Include and prepend
// ---------------------------------------------------------------------------

// newIncludeClass creates the include-class standing for m. It shares the
// module's method table and instance variable table by reference.
func (vm *VM) newIncludeClass(m, super *RClass) *RClass {
	if m.kind == VTypeIClass {
		m = m.module
	}
	o := m.Origin()
	return &RClass{
		RBasic: RBasic{class: vm.ClassClass, iv: m.iv},
		kind:   VTypeIClass,
		super:  super,
		mt:     o.mt,
		module: m,
	}
}

// includeModuleAt splices m (and the modules m itself includes) into c's
// chain after insPos. Modules already present are skipped. It reports false
// when m's methods already belong to c, which would form a cycle.
func (vm *VM) includeModuleAt(c, insPos, m *RClass, searchSuper bool) bool {
	klassMT := c.Origin().mt
	for ; m != nil; m = m.super {
		if m.flags&FlagClassPrepended != 0 {
			continue
		}
		if klassMT == m.mt {
			return false
		}
		originalSeen := c == insPos
		superclassSeen := false
		present := false
		for p := c.super; p != nil; p = p.super {
			if p == insPos {
				originalSeen = true
			}
			if p.kind == VTypeIClass {
				if p.mt == m.mt {
					if !superclassSeen && originalSeen {
						insPos = p
					}
					present = true
					break
				}
			} else if p.kind == VTypeClass {
				if !searchSuper {
					break
				}
				superclassSeen = true
			}
		}
		if present {
			continue
		}
		ic := vm.newIncludeClass(m, insPos.super)
		m.flags |= FlagClassInherited
		insPos.super = ic
		insPos = ic
	}
	vm.clearMethodCache()
	return true
}

// includeCycles reports whether m, or a module m includes, shares c's own
// method table.
func includeCycles(c, m *RClass) bool {
	own := c.Origin().mt
	for ; m != nil; m = m.super {
		if m.flags&FlagClassPrepended == 0 && m.mt == own {
			return true
		}
	}
	return false
}

// IncludeModule inserts m into c's resolution chain directly above c (or
// above c's origin when c has prepended modules). Re-including is a no-op.
func (vm *VM) IncludeModule(c, m *RClass) error {
	if m.kind != VTypeModule {
		return vm.Raisef(vm.TypeErrorClass, "wrong argument type %s (expected Module)", vm.ClassName(vm.ClassOf(FromObject(m))))
	}
	if includeCycles(c, m) || !vm.includeModuleAt(c, c.Origin(), m, true) {
		return vm.Raisef(vm.ArgumentErrorClass, "cyclic include detected")
	}
	log.Debugf("include %s into %s", m.name, vm.ClassName(c))
	return nil
}

// PrependModule inserts m ahead of c itself. The first prepend moves c's own
// methods into an origin include-class placed right above c.
func (vm *VM) PrependModule(c, m *RClass) error {
	if m.kind != VTypeModule {
		return vm.Raisef(vm.TypeErrorClass, "wrong argument type %s (expected Module)", vm.ClassName(vm.ClassOf(FromObject(m))))
	}
	if includeCycles(c, m) {
		return vm.Raisef(vm.ArgumentErrorClass, "cyclic prepend detected")
	}
	if c.flags&FlagClassPrepended == 0 {
		origin := &RClass{
			RBasic: RBasic{class: c.class, iv: c.iv, flags: FlagClassOrigin | FlagClassInherited},
			kind:   VTypeIClass,
			super:  c.super,
			mt:     c.mt,
			module: c,
		}
		c.super = origin
		c.mt = NewMethodTable()
		c.flags |= FlagClassPrepended
	}
	if !vm.includeModuleAt(c, c, m, false) {
		return vm.Raisef(vm.ArgumentErrorClass, "cyclic prepend detected")
	}
	log.Debugf("prepend %s to %s", m.name, vm.ClassName(c))
	return nil
}

// ExtendObject includes m into v's singleton class.
func (vm *VM) ExtendObject(v Value, m *RClass) error {
	sc, err := vm.SingletonClassOf(v)
	if err != nil {
		return err
	}
	return vm.IncludeModule(sc, m)
}

// ---------------------------------------------------------------------------
// Method definition
// ---------------------------------------------------------------------------

// DefineMethod stores m in c's own table (its origin when modules are
// prepended). A method proc without a scope is bound to c.
func (vm *VM) DefineMethod(c *RClass, mid Symbol, m Method) error {
	if c.Frozen() {
		return vm.frozenError(FromObject(c))
	}
	if c.kind == VTypeSClass && c.attached != nil && c.attached.Basic().Frozen() {
		return vm.frozenError(FromObject(c.attached))
	}
	if p := m.Proc; p != nil && p.Env == nil && p.Class == nil {
		p.Class = c
		p.Flags |= ProcScope
	}
	c.Origin().mt.Set(mid, m)
	vm.clearMethodCache()
	return nil
}

// DefineNative registers a native method with arity bounds on c. A negative
// max means any number of trailing arguments.
func (vm *VM) DefineNative(c *RClass, name string, min, max int, fn NativeFunc) {
	m := Method{Func: fn, Min: min, Max: max}
	if err := vm.DefineMethod(c, vm.Symbols.Intern(name), m); err != nil {
		panic("garnet: " + err.Error())
	}
}

// defineDefault registers a built-in default that callers may skip.
func (vm *VM) defineDefault(c *RClass, name string, min, max int, fn NativeFunc) {
	m := Method{Func: fn, Min: min, Max: max, Flags: MethodDefault}
	c.Origin().mt.Set(vm.Symbols.Intern(name), m)
	vm.clearMethodCache()
}

// AliasMethod makes newName an alias of oldName in c.
func (vm *VM) AliasMethod(c *RClass, newName, oldName Symbol) error {
	m, _, ok := vm.FindMethod(c, oldName)
	if !ok {
		return vm.nameError(vm.NameErrorClass, oldName, "undefined method '%s' for class '%s'",
			vm.Symbols.Name(oldName), vm.ClassName(c))
	}
	m.Flags |= MethodAlias
	if m.Name == SymNone {
		m.Name = oldName
	}
	return vm.DefineMethod(c, newName, m)
}

// UndefMethod installs the undef sentinel for mid in c, hiding definitions
// further up the chain.
func (vm *VM) UndefMethod(c *RClass, mid Symbol) error {
	if _, _, ok := vm.FindMethod(c, mid); !ok {
		return vm.nameError(vm.NameErrorClass, mid, "undefined method '%s' for class '%s'",
			vm.Symbols.Name(mid), vm.ClassName(c))
	}
	return vm.DefineMethod(c, mid, Method{})
}

// RemoveMethod deletes mid from c's own table.
func (vm *VM) RemoveMethod(c *RClass, mid Symbol) error {
	if c.Frozen() {
		return vm.frozenError(FromObject(c))
	}
	if !c.Origin().mt.Delete(mid) {
		return vm.nameError(vm.NameErrorClass, mid, "method '%s' not defined in %s",
			vm.Symbols.Name(mid), vm.ClassName(c))
	}
	vm.clearMethodCache()
	return nil
}

// ---------------------------------------------------------------------------
// Hooks
// ---------------------------------------------------------------------------

// callHook sends hook to recv unless only the built-in no-op is installed.
func (vm *VM) callHook(recv Value, hook Symbol, args ...Value) error {
	m, _, ok := vm.FindMethod(vm.ClassOf(recv), hook)
	if !ok || m.IsDefault() {
		return nil
	}
	_, err := vm.Send(recv, hook, args...)
	return err
}

// ClassInheritedHook runs super.inherited(klass).
func (vm *VM) ClassInheritedHook(super, klass *RClass) error {
	if super == nil {
		super = vm.ObjectClass
	}
	return vm.callHook(FromObject(super), SymInherited, FromObject(klass))
}

// MethodAddedHook runs method_added on c, or singleton_method_added on the
// attached object when c is a singleton class.
func (vm *VM) MethodAddedHook(c *RClass, mid Symbol) error {
	if c.kind == VTypeSClass && c.attached != nil {
		return vm.callHook(FromObject(c.attached), SymSingletonMethodAdded, FromSymbol(mid))
	}
	return vm.callHook(FromObject(c), SymMethodAdded, FromSymbol(mid))
}
