package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Method: an entry in a method table
// ---------------------------------------------------------------------------

// MethodFlags qualify method table entries.
type MethodFlags uint8

const (
	// MethodDefault marks a built-in default (no-op hooks, identity hash
	// and eql?) that callers may short-circuit.
	MethodDefault MethodFlags = 1 << iota
	// MethodAlias marks an entry installed by alias_method.
	MethodAlias
)

// Method is either an interpreted proc or a native function. The zero Method
// is the undef sentinel: it stops lookup without providing a body.
type Method struct {
	Proc  *RProc
	Func  NativeFunc
	Min   int // native arity bounds; Max < 0 is unbounded
	Max   int
	Flags MethodFlags
	Name  Symbol // original name for aliases
}

// IsUndef reports whether m is the undef sentinel.
func (m Method) IsUndef() bool { return m.Proc == nil && m.Func == nil }

// IsDefault reports whether m is a built-in default implementation.
func (m Method) IsDefault() bool { return m.Flags&MethodDefault != 0 }

// IsNative reports whether m runs Go code directly.
func (m Method) IsNative() bool {
	return m.Func != nil || (m.Proc != nil && m.Proc.IsNative())
}

// MethodTable maps symbols to methods. Include-classes share the table of
// the module they stand for.
type MethodTable struct {
	methods map[Symbol]Method
}

// NewMethodTable creates an empty table.
func NewMethodTable() *MethodTable {
	return &MethodTable{methods: make(map[Symbol]Method)}
}

// Get returns the entry for mid, including undef sentinels.
func (mt *MethodTable) Get(mid Symbol) (Method, bool) {
	m, ok := mt.methods[mid]
	return m, ok
}

// Set stores an entry.
func (mt *MethodTable) Set(mid Symbol, m Method) {
	mt.methods[mid] = m
}

// Delete removes an entry.
func (mt *MethodTable) Delete(mid Symbol) bool {
	if _, ok := mt.methods[mid]; !ok {
		return false
	}
	delete(mt.methods, mid)
	return true
}

// Len returns the number of entries.
func (mt *MethodTable) Len() int { return len(mt.methods) }

// Names returns the defined (non-undef) method names, sorted by ID.
func (mt *MethodTable) Names() []Symbol {
	out := make([]Symbol, 0, len(mt.methods))
	for k, m := range mt.methods {
		if !m.IsUndef() {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ---------------------------------------------------------------------------
// RClass: classes, modules, singleton classes and include-classes
// ---------------------------------------------------------------------------

// RClass is a class-like heap object. Kind distinguishes ordinary classes,
// modules, singleton classes and synthetic include-classes.
type RClass struct {
	RBasic
	kind         VType
	super        *RClass
	mt           *MethodTable
	name         string
	module       *RClass    // IClass: the module (or class, for an origin) it stands for
	attached     HeapObject // SClass: the object it belongs to
	instanceType VType
	noAlloc      bool // instances are immediates or built only natively
}

func (c *RClass) VType() VType { return c.kind }

// Kind returns VTypeClass, VTypeModule, VTypeSClass or VTypeIClass.
func (c *RClass) Kind() VType { return c.kind }

// Super returns the next node in the resolution chain.
func (c *RClass) Super() *RClass { return c.super }

// Methods returns the class's own method table.
func (c *RClass) Methods() *MethodTable { return c.mt }

// IsModule reports whether c is a module.
func (c *RClass) IsModule() bool { return c.kind == VTypeModule }

// IsSingleton reports whether c is a singleton class.
func (c *RClass) IsSingleton() bool { return c.kind == VTypeSClass }

// IsIClass reports whether c is an include-class or origin node.
func (c *RClass) IsIClass() bool { return c.kind == VTypeIClass }

// IsOrigin reports whether c holds a prepended class's own methods.
func (c *RClass) IsOrigin() bool { return c.flags&FlagClassOrigin != 0 }

// IsPrepended reports whether modules have been prepended to c.
func (c *RClass) IsPrepended() bool { return c.flags&FlagClassPrepended != 0 }

// Attached returns the object a singleton class belongs to.
func (c *RClass) Attached() HeapObject { return c.attached }

// Module returns the module an include-class stands for.
func (c *RClass) Module() *RClass { return c.module }

// Real skips singleton and include-classes to the first ordinary class.
func (c *RClass) Real() *RClass {
	for c != nil && (c.kind == VTypeSClass || c.kind == VTypeIClass) {
		c = c.super
	}
	return c
}

// Origin returns the node holding c's own methods: c itself, or its origin
// include-class when modules have been prepended.
func (c *RClass) Origin() *RClass {
	if c.flags&FlagClassPrepended == 0 {
		return c
	}
	for o := c.super; o != nil; o = o.super {
		if o.flags&FlagClassOrigin != 0 {
			return o
		}
	}
	return c
}

// Name returns the class path, or "" for anonymous classes.
func (c *RClass) Name() string {
	if c.kind == VTypeIClass && c.module != nil {
		return c.module.Name()
	}
	return c.name
}

// IsSubclassOf reports whether other appears in c's resolution chain.
func (c *RClass) IsSubclassOf(other *RClass) bool {
	for cur := c; cur != nil; cur = cur.super {
		if cur == other {
			return true
		}
		if cur.kind == VTypeIClass && cur.module == other {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Class allocation
// ---------------------------------------------------------------------------

func (vm *VM) allocClass(kind VType, meta, super *RClass) *RClass {
	c := &RClass{
		RBasic: RBasic{class: meta, iv: NewIVTable()},
		kind:   kind,
		super:  super,
		mt:     NewMethodTable(),
	}
	if super != nil {
		c.instanceType = super.instanceType
		c.noAlloc = super.noAlloc
	}
	return c
}

// NewClass creates an anonymous class under super with its metaclass.
func (vm *VM) NewClass(super *RClass) (*RClass, error) {
	if super != nil {
		if err := vm.checkInheritable(super); err != nil {
			return nil, err
		}
	} else {
		super = vm.ObjectClass
	}
	c := vm.allocClass(VTypeClass, vm.ClassClass, super)
	vm.prepareSingletonClass(c)
	return c, nil
}

// NewModule creates an anonymous module.
func (vm *VM) NewModule() *RClass {
	m := vm.allocClass(VTypeModule, vm.ModuleClass, nil)
	return m
}

func (vm *VM) checkInheritable(super *RClass) error {
	if super.kind == VTypeSClass {
		return vm.Raisef(vm.TypeErrorClass, "can't make subclass of singleton class")
	}
	if super.kind != VTypeClass {
		return vm.Raisef(vm.TypeErrorClass, "superclass must be a Class (%s given)", vm.InspectString(FromObject(super)))
	}
	if super == vm.ClassClass {
		return vm.Raisef(vm.TypeErrorClass, "can't make subclass of Class")
	}
	return nil
}

// ---------------------------------------------------------------------------
// Classification of values
// ---------------------------------------------------------------------------

// ClassOf returns the class pointer of v, which may be a singleton class.
func (vm *VM) ClassOf(v Value) *RClass {
	switch v.tag {
	case TagNil:
		return vm.NilClass
	case TagFalse:
		return vm.FalseClass
	case TagTrue:
		return vm.TrueClass
	case TagInteger:
		return vm.IntegerClass
	case TagFloat:
		return vm.FloatClass
	case TagSymbol:
		return vm.SymbolClass
	}
	return v.obj.Basic().class
}

// RealClassOf returns the ordinary class of v, skipping singletons.
func (vm *VM) RealClassOf(v Value) *RClass {
	return vm.ClassOf(v).Real()
}

// KindOf reports whether v is an instance of c or of a class that has c in
// its ancestors.
func (vm *VM) KindOf(v Value, c *RClass) bool {
	return vm.ClassOf(v).IsSubclassOf(c)
}

// ClassName returns a printable name for any class node.
func (vm *VM) ClassName(c *RClass) string {
	if c == nil {
		return "nil"
	}
	switch c.kind {
	case VTypeSClass:
		if c.attached != nil {
			return "#<Class:" + vm.InspectString(FromObject(c.attached)) + ">"
		}
		return "#<Class:?>"
	case VTypeIClass:
		return vm.ClassName(c.module)
	}
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("#<%s:0x%06x>", vm.ClassOf(FromObject(c)).Real().name, vm.ObjectID(FromObject(c)))
}

// ---------------------------------------------------------------------------
// Method resolution
// ---------------------------------------------------------------------------

type methodCacheKey struct {
	class *RClass
	mid   Symbol
}

type methodCacheEntry struct {
	m     Method
	owner *RClass
	found bool
}

// TryFindMethod walks c's resolution chain and returns the first table hit
// and the node it was found in. An undef sentinel counts as a hit; absence
// is reported with found == false.
func (vm *VM) TryFindMethod(c *RClass, mid Symbol) (m Method, owner *RClass, found bool) {
	key := methodCacheKey{c, mid}
	if e, ok := vm.mcache[key]; ok {
		return e.m, e.owner, e.found
	}
	for cur := c; cur != nil; cur = cur.super {
		if mm, ok := cur.mt.Get(mid); ok {
			m, owner, found = mm, cur, true
			break
		}
	}
	vm.mcache[key] = methodCacheEntry{m: m, owner: owner, found: found}
	return m, owner, found
}

// FindMethod is TryFindMethod with undef sentinels treated as absent.
func (vm *VM) FindMethod(c *RClass, mid Symbol) (Method, *RClass, bool) {
	m, owner, found := vm.TryFindMethod(c, mid)
	if !found || m.IsUndef() {
		return Method{}, nil, false
	}
	return m, owner, true
}

// RespondTo reports whether v has a callable method mid.
func (vm *VM) RespondTo(v Value, mid Symbol) bool {
	_, _, ok := vm.FindMethod(vm.ClassOf(v), mid)
	return ok
}

func (vm *VM) clearMethodCache() {
	clear(vm.mcache)
}

// Ancestors lists the modules and classes in c's resolution order, with
// include-classes reported as their modules and origins as their classes.
func (vm *VM) Ancestors(c *RClass) []*RClass {
	var out []*RClass
	for cur := c; cur != nil; cur = cur.super {
		switch {
		case cur.flags&FlagClassPrepended != 0:
			continue
		case cur.kind == VTypeIClass:
			out = append(out, cur.module)
		case cur.kind == VTypeSClass && cur != c:
			continue
		default:
			out = append(out, cur)
		}
	}
	return out
}
