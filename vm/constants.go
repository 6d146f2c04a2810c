package vm

import "strings"

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

// constLookup searches base and its ancestors. Prepended marker nodes are
// skipped since their table is reached through the origin. When exclude is
// set the search stops before Object unless base is Object itself; modules
// always fall back to Object.
func (vm *VM) constLookup(base *RClass, name Symbol, exclude bool) (Value, bool) {
	c := base
	retried := false
	for {
		for ; c != nil; c = c.super {
			if c.flags&FlagClassPrepended == 0 {
				if v, ok := c.iv.Get(name); ok {
					return v, true
				}
			}
			if exclude && c.super == vm.ObjectClass && base != vm.ObjectClass {
				break
			}
		}
		if retried || base.kind != VTypeModule {
			return Nil, false
		}
		c = vm.ObjectClass
		retried = true
	}
}

// ConstGet looks up name in base's inheritance chain, falling back to
// const_missing and then NameError.
func (vm *VM) ConstGet(base *RClass, name Symbol) (Value, error) {
	if v, ok := vm.constLookup(base, name, false); ok {
		return v, nil
	}
	return vm.constMissing(base, name)
}

// scopedConstGet implements Mod::Name lookups, which do not consult Object
// for non-Object classes.
func (vm *VM) scopedConstGet(base Value, name Symbol) (Value, error) {
	c, err := vm.checkClassOrModule(base)
	if err != nil {
		return Nil, err
	}
	if v, ok := vm.constLookup(c, name, true); ok {
		return v, nil
	}
	return vm.constMissing(c, name)
}

func (vm *VM) constMissing(base *RClass, name Symbol) (Value, error) {
	m, _, ok := vm.FindMethod(vm.ClassOf(FromObject(base)), SymConstMissing)
	if ok && !m.IsDefault() {
		return vm.Send(FromObject(base), SymConstMissing, FromSymbol(name))
	}
	if base == vm.ObjectClass || base == nil {
		return Nil, vm.nameError(vm.NameErrorClass, name, "uninitialized constant %s", vm.Symbols.Name(name))
	}
	return Nil, vm.nameError(vm.NameErrorClass, name, "uninitialized constant %s::%s",
		vm.ClassName(base), vm.Symbols.Name(name))
}

// ConstSet binds name in c. Anonymous classes bound to a constant take its
// name.
func (vm *VM) ConstSet(c *RClass, name Symbol, v Value) error {
	if c.Frozen() {
		return vm.frozenError(FromObject(c))
	}
	if k := v.AsClass(); k != nil {
		vm.setClassPath(c, name, k)
	}
	c.iv.Set(name, v)
	return nil
}

// ConstDefined reports whether name resolves from c.
func (vm *VM) ConstDefined(c *RClass, name Symbol) bool {
	_, ok := vm.constLookup(c, name, false)
	return ok
}

// ConstDefinedAt reports whether name is bound in c's own table.
func (vm *VM) ConstDefinedAt(c *RClass, name Symbol) bool {
	return c.iv.Has(name)
}

// lexicalConstGet implements GETCONST: the current proc's target class
// first, then enclosing procs' target classes, then the inheritance chain
// of the innermost non-singleton scope.
func (vm *VM) lexicalConstGet(proc *RProc, name Symbol) (Value, error) {
	c := proc.TargetClass()
	if c == nil {
		c = vm.ObjectClass
	}
	if v, ok := c.iv.Get(name); ok {
		return v, nil
	}
	c2 := c
	for c2 != nil && c2.kind == VTypeSClass {
		k, ok := c2.attached.(*RClass)
		if !ok {
			c2 = nil
			break
		}
		c2 = k
	}
	if c2 != nil && (c2.kind == VTypeClass || c2.kind == VTypeModule) {
		c = c2
	}
	for p := proc.Upper; p != nil; p = p.Upper {
		if tc := p.TargetClass(); tc != nil {
			if v, ok := tc.iv.Get(name); ok {
				return v, nil
			}
		}
	}
	return vm.ConstGet(c, name)
}

// ---------------------------------------------------------------------------
// Class variables
// ---------------------------------------------------------------------------

// ClassVarGet reads @@name starting at c. For a singleton class the search
// continues through the attached class's chain.
func (vm *VM) ClassVarGet(c *RClass, name Symbol) (Value, error) {
	if owner := vm.cvarOwner(c, name); owner != nil {
		v, _ := owner.iv.Get(name)
		return v, nil
	}
	return Nil, vm.nameError(vm.NameErrorClass, name, "uninitialized class variable %s in %s",
		vm.Symbols.Name(name), vm.ClassName(c))
}

// ClassVarSet writes @@name into the class that already defines it, or into
// c when none does.
func (vm *VM) ClassVarSet(c *RClass, name Symbol, v Value) error {
	if owner := vm.cvarOwner(c, name); owner != nil {
		if owner.Frozen() {
			return vm.frozenError(FromObject(owner))
		}
		owner.iv.Set(name, v)
		return nil
	}
	if c.Frozen() {
		return vm.frozenError(FromObject(c))
	}
	c.iv.Set(name, v)
	return nil
}

// ClassVarDefined reports whether @@name resolves from c.
func (vm *VM) ClassVarDefined(c *RClass, name Symbol) bool {
	return vm.cvarOwner(c, name) != nil
}

func (vm *VM) cvarOwner(c *RClass, name Symbol) *RClass {
	start := c
	for {
		for cur := start; cur != nil; cur = cur.super {
			if cur.iv.Has(name) {
				return cur
			}
		}
		if start == nil || start.kind != VTypeSClass {
			return nil
		}
		k, ok := start.attached.(*RClass)
		if !ok {
			return nil
		}
		start = k
	}
}

// cvarScope resolves the class used by GETCV and SETCV: the innermost
// enclosing proc whose target class is not a singleton class. A method
// defined directly on a singleton class falls back to that singleton, whose
// lookup continues through the attached class.
func (vm *VM) cvarScope(proc *RProc) *RClass {
	var sc *RClass
	for p := proc; p != nil; p = p.Upper {
		c := p.TargetClass()
		switch {
		case c == nil:
		case c.kind != VTypeSClass:
			return c
		case sc == nil:
			sc = c
		}
	}
	if sc != nil {
		return sc
	}
	return vm.ObjectClass
}

// ---------------------------------------------------------------------------
// Name validation
// ---------------------------------------------------------------------------

func isConstName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	return isIdentTail(s[1:])
}

func isIvarName(s string) bool {
	return strings.HasPrefix(s, "@") && !strings.HasPrefix(s, "@@") && len(s) > 1 && isIdentTail(s[1:])
}

func isCvarName(s string) bool {
	return strings.HasPrefix(s, "@@") && len(s) > 2 && isIdentTail(s[2:])
}

func isIdentTail(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80) {
			return false
		}
	}
	return true
}
