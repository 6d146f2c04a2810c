package vm

import (
	"fmt"
	"io"
	"math"
	"os"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options tunes the execution context of a VM.
type Options struct {
	StackSize      int       // initial register stack size
	CallInfoSize   int       // initial CallInfo stack size
	MaxCallDepth   int       // frames allowed before SystemStackError; 0 is unlimited
	BacktraceLimit int       // frames recorded per exception; 0 is unlimited
	Stdout         io.Writer // destination of puts, print and p; os.Stdout when nil
	Profiler       *Profiler // counts method calls when set
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		StackSize:      128,
		CallInfoSize:   32,
		MaxCallDepth:   4096,
		BacktraceLimit: 64,
	}
}

// Option adjusts Options.
type Option func(*Options)

// WithOptions replaces all options.
func WithOptions(o Options) Option {
	return func(dst *Options) { *dst = o }
}

// WithStdout redirects puts, print and p.
func WithStdout(w io.Writer) Option {
	return func(o *Options) { o.Stdout = w }
}

// WithMaxCallDepth sets the frame limit.
func WithMaxCallDepth(n int) Option {
	return func(o *Options) { o.MaxCallDepth = n }
}

// WithProfiler counts every method call in p.
func WithProfiler(p *Profiler) Option {
	return func(o *Options) { o.Profiler = p }
}

// ---------------------------------------------------------------------------
// VM: The garnet virtual machine
// ---------------------------------------------------------------------------

// VM is a single garnet interpreter instance. A VM is not safe for
// concurrent use; it owns exactly one execution context.
type VM struct {
	Symbols *SymbolTable

	ctx      *Context
	opts     Options
	globals  map[Symbol]Value
	specials map[Symbol]Value
	exc      Value // pending exception or break seen by EXCEPT
	mcache   map[methodCacheKey]methodCacheEntry
	nextID   uint64
	topSelf  Value

	// Core classes
	BasicObjectClass *RClass
	ObjectClass      *RClass
	ModuleClass      *RClass
	ClassClass       *RClass
	KernelModule     *RClass
	ComparableModule *RClass
	NilClass         *RClass
	TrueClass        *RClass
	FalseClass       *RClass
	NumericClass     *RClass
	IntegerClass     *RClass
	FloatClass       *RClass
	SymbolClass      *RClass
	StringClass      *RClass
	ArrayClass       *RClass
	HashClass        *RClass
	RangeClass       *RClass
	ProcClass        *RClass
	FiberClass       *RClass
	MarshalModule    *RClass

	// Exception hierarchy
	ExceptionClass           *RClass
	StandardErrorClass       *RClass
	RuntimeErrorClass        *RClass
	ScriptErrorClass         *RClass
	NotImplementedErrorClass *RClass
	ArgumentErrorClass       *RClass
	LocalJumpErrorClass      *RClass
	RangeErrorClass          *RClass
	FloatDomainErrorClass    *RClass
	TypeErrorClass           *RClass
	NameErrorClass           *RClass
	NoMethodErrorClass       *RClass
	FrozenErrorClass         *RClass
	ZeroDivisionErrorClass   *RClass
	KeyErrorClass            *RClass
	IndexErrorClass          *RClass
	StopIterationClass       *RClass
	SystemStackErrorClass    *RClass
	FiberErrorClass          *RClass

	// Proc#call body
	callIrep *Irep

	// containers currently being inspected by Array#inspect and Hash#inspect
	inspecting map[HeapObject]bool

	// container pairs currently being hashed or compared
	recursing map[recursionKey]struct{}
}

// NewVM creates and bootstraps a new VM.
func NewVM(opts ...Option) *VM {
	o := DefaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	vm := &VM{
		Symbols:  NewSymbolTable(),
		opts:     o,
		globals:  make(map[Symbol]Value),
		specials: make(map[Symbol]Value),
		mcache:   make(map[methodCacheKey]methodCacheEntry),

		inspecting: make(map[HeapObject]bool),
	}
	if vm.opts.Stdout == nil {
		vm.opts.Stdout = os.Stdout
	}
	vm.ctx = newContext(o.StackSize, o.CallInfoSize, o.MaxCallDepth)
	vm.bootstrap()
	log.Debugf("vm ready: %d symbols, max depth %d", vm.Symbols.Len(), o.MaxCallDepth)
	return vm
}

// Options returns the options the VM was created with.
func (vm *VM) Options() Options { return vm.opts }

// Context returns the VM's execution context.
func (vm *VM) Context() *Context { return vm.ctx }

// TopSelf returns the top-level self object ("main").
func (vm *VM) TopSelf() Value { return vm.topSelf }

// Intern is shorthand for vm.Symbols.Intern.
func (vm *VM) Intern(name string) Symbol { return vm.Symbols.Intern(name) }

// ---------------------------------------------------------------------------
// Bootstrap: Create core classes
// ---------------------------------------------------------------------------

func (vm *VM) bootstrap() {
	// Phase 1: BasicObject, Object, Module and Class refer to each other.
	vm.BasicObjectClass = vm.allocClass(VTypeClass, nil, nil)
	vm.ObjectClass = vm.allocClass(VTypeClass, nil, vm.BasicObjectClass)
	vm.ModuleClass = vm.allocClass(VTypeClass, nil, vm.ObjectClass)
	vm.ClassClass = vm.allocClass(VTypeClass, nil, vm.ModuleClass)
	for _, c := range []*RClass{vm.BasicObjectClass, vm.ObjectClass, vm.ModuleClass, vm.ClassClass} {
		c.class = vm.ClassClass
	}
	vm.ModuleClass.instanceType = VTypeModule
	vm.ClassClass.instanceType = VTypeClass
	for _, c := range []*RClass{vm.BasicObjectClass, vm.ObjectClass, vm.ModuleClass, vm.ClassClass} {
		vm.prepareSingletonClass(c)
	}
	vm.nameBootClass(vm.BasicObjectClass, SymBasicObject)
	vm.nameBootClass(vm.ObjectClass, SymObject)
	vm.nameBootClass(vm.ModuleClass, SymModule)
	vm.nameBootClass(vm.ClassClass, SymClass)

	// Phase 2: Kernel and Comparable
	vm.KernelModule = vm.bootModule(SymKernel)
	vm.ComparableModule = vm.bootModule(SymComparable)
	if err := vm.IncludeModule(vm.ObjectClass, vm.KernelModule); err != nil {
		panic("garnet: " + err.Error())
	}

	// Phase 3: Value classes
	vm.NilClass = vm.bootClass("NilClass", vm.ObjectClass)
	vm.TrueClass = vm.bootClass("TrueClass", vm.ObjectClass)
	vm.FalseClass = vm.bootClass("FalseClass", vm.ObjectClass)
	vm.NumericClass = vm.bootClass("Numeric", vm.ObjectClass)
	vm.IntegerClass = vm.bootClass("Integer", vm.NumericClass)
	vm.FloatClass = vm.bootClass("Float", vm.NumericClass)
	vm.SymbolClass = vm.bootClass("Symbol", vm.ObjectClass)
	for _, c := range []*RClass{vm.NilClass, vm.TrueClass, vm.FalseClass, vm.NumericClass, vm.IntegerClass, vm.FloatClass, vm.SymbolClass} {
		c.noAlloc = true
	}
	if err := vm.IncludeModule(vm.NumericClass, vm.ComparableModule); err != nil {
		panic("garnet: " + err.Error())
	}

	// Phase 4: Collections and procs
	vm.StringClass = vm.bootClass("String", vm.ObjectClass)
	vm.StringClass.instanceType = VTypeString
	vm.ArrayClass = vm.bootClass("Array", vm.ObjectClass)
	vm.ArrayClass.instanceType = VTypeArray
	vm.HashClass = vm.bootClass("Hash", vm.ObjectClass)
	vm.HashClass.instanceType = VTypeHash
	vm.RangeClass = vm.bootClass("Range", vm.ObjectClass)
	vm.RangeClass.instanceType = VTypeRange
	vm.ProcClass = vm.bootClass("Proc", vm.ObjectClass)
	vm.ProcClass.instanceType = VTypeProc
	vm.FiberClass = vm.bootClass("Fiber", vm.ObjectClass)
	vm.MarshalModule = vm.bootModule(vm.Intern("Marshal"))
	if err := vm.IncludeModule(vm.StringClass, vm.ComparableModule); err != nil {
		panic("garnet: " + err.Error())
	}

	// Phase 5: Exception hierarchy
	vm.bootstrapExceptionClasses()

	// Phase 6: Top-level self
	main := &RObject{RBasic: RBasic{class: vm.ObjectClass}}
	vm.topSelf = FromObject(main)

	// Phase 7: Register natives on core classes
	vm.registerKernelPrimitives()
	vm.registerModulePrimitives()
	vm.registerComparablePrimitives()
	vm.registerNilBoolPrimitives()
	vm.registerIntegerPrimitives()
	vm.registerFloatPrimitives()
	vm.registerSymbolPrimitives()
	vm.registerStringPrimitives()
	vm.registerArrayPrimitives()
	vm.registerHashPrimitives()
	vm.registerRangePrimitives()
	vm.registerProcPrimitives()
	vm.registerFiberPrimitives()
	vm.registerExceptionPrimitives()
	vm.registerMarshalPrimitives()

	vm.DefineSingletonNative(vm.topSelf, "to_s", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString("main"), nil
	})
	vm.DefineSingletonNative(vm.topSelf, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString("main"), nil
	})
}

func (vm *VM) nameBootClass(c *RClass, name Symbol) {
	c.name = vm.Symbols.Name(name)
	vm.ObjectClass.iv.Set(name, FromObject(c))
}

func (vm *VM) bootClass(name string, super *RClass) *RClass {
	c, err := vm.DefineClass(name, super)
	if err != nil {
		panic("garnet: " + err.Error())
	}
	return c
}

func (vm *VM) bootModule(name Symbol) *RClass {
	m, err := vm.DefineModuleUnder(vm.ObjectClass, name)
	if err != nil {
		panic("garnet: " + err.Error())
	}
	return m
}

func (vm *VM) bootstrapExceptionClasses() {
	vm.ExceptionClass = vm.bootClass("Exception", vm.ObjectClass)
	vm.ExceptionClass.instanceType = VTypeException
	vm.ScriptErrorClass = vm.bootClass("ScriptError", vm.ExceptionClass)
	vm.NotImplementedErrorClass = vm.bootClass("NotImplementedError", vm.ScriptErrorClass)
	vm.StandardErrorClass = vm.bootClass("StandardError", vm.ExceptionClass)
	vm.RuntimeErrorClass = vm.bootClass("RuntimeError", vm.StandardErrorClass)
	vm.ArgumentErrorClass = vm.bootClass("ArgumentError", vm.StandardErrorClass)
	vm.LocalJumpErrorClass = vm.bootClass("LocalJumpError", vm.StandardErrorClass)
	vm.RangeErrorClass = vm.bootClass("RangeError", vm.StandardErrorClass)
	vm.FloatDomainErrorClass = vm.bootClass("FloatDomainError", vm.RangeErrorClass)
	vm.TypeErrorClass = vm.bootClass("TypeError", vm.StandardErrorClass)
	vm.NameErrorClass = vm.bootClass("NameError", vm.StandardErrorClass)
	vm.NoMethodErrorClass = vm.bootClass("NoMethodError", vm.NameErrorClass)
	vm.FrozenErrorClass = vm.bootClass("FrozenError", vm.RuntimeErrorClass)
	vm.ZeroDivisionErrorClass = vm.bootClass("ZeroDivisionError", vm.StandardErrorClass)
	vm.IndexErrorClass = vm.bootClass("IndexError", vm.StandardErrorClass)
	vm.KeyErrorClass = vm.bootClass("KeyError", vm.IndexErrorClass)
	vm.StopIterationClass = vm.bootClass("StopIteration", vm.IndexErrorClass)
	vm.SystemStackErrorClass = vm.bootClass("SystemStackError", vm.ExceptionClass)
	vm.FiberErrorClass = vm.bootClass("FiberError", vm.StandardErrorClass)
}

// ---------------------------------------------------------------------------
// Object identity
// ---------------------------------------------------------------------------

// ObjectID returns a stable identifier for v. Heap objects are numbered on
// first request; immediates derive theirs from their payload.
func (vm *VM) ObjectID(v Value) uint64 {
	switch v.tag {
	case TagNil:
		return 8
	case TagFalse:
		return 0
	case TagTrue:
		return 20
	case TagInteger:
		return uint64(v.Int())<<1 | 1
	case TagFloat:
		return math.Float64bits(v.Float64())<<2 | 2
	case TagSymbol:
		return uint64(v.Symbol())<<8 | 0x0c
	}
	b := v.obj.Basic()
	if b.id == 0 {
		vm.nextID++
		b.id = vm.nextID << 3
	}
	return b.id
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// GlobalGet reads a global variable; unset globals are nil.
func (vm *VM) GlobalGet(name Symbol) Value {
	return vm.globals[name]
}

// GlobalSet writes a global variable.
func (vm *VM) GlobalSet(name Symbol, v Value) {
	vm.globals[name] = v
}

// ---------------------------------------------------------------------------
// Execution entry points
// ---------------------------------------------------------------------------

// Exec runs irep as a top-level program with self set to main.
func (vm *VM) Exec(irep *Irep) (Value, error) {
	c := vm.ctx
	proc := vm.newProc(irep, nil, vm.ObjectClass)
	proc.Flags |= ProcScope
	off := c.nextStackOff()
	ci, ok := c.PushCallStack()
	if !ok {
		return Nil, vm.stackTooDeep()
	}
	ci.StackOff = off
	ci.NRegs = int(irep.NumRegs)
	ci.Proc = proc
	ci.TargetClass = vm.ObjectClass
	ci.CallerType = CallerVMExecuted
	c.ExtendStack(off + ci.NRegs + 1)
	c.ClearStack(off, ci.NRegs+1)
	c.stack[off] = vm.topSelf
	log.Debugf("exec irep: %d bytes, %d regs at depth %d", len(irep.ISeq), irep.NumRegs, c.Depth())
	v, err := vm.run(c.Depth() - 1)
	err = vm.finishCall(err)
	if exc, ok := err.(*RException); ok && c.Depth() == 0 {
		log.Infof("uncaught %s: %s", exc.ClassName(), exc.MessageString())
	}
	return v, err
}

// finishCall turns a break escaping to Go into LocalJumpError.
func (vm *VM) finishCall(err error) error {
	if err == nil {
		return nil
	}
	if brk, ok := err.(*RBreak); ok {
		if vm.ctx.Depth() == 0 || brk.Target >= vm.ctx.Depth() {
			return vm.Raisef(vm.LocalJumpErrorClass, "unexpected %s", brk.Tag)
		}
	}
	return err
}

// Send calls mid on recv with positional arguments.
func (vm *VM) Send(recv Value, mid Symbol, args ...Value) (Value, error) {
	return vm.SendWithBlock(recv, mid, args, nil, Nil)
}

// SendWithBlock calls mid on recv with positional arguments, an optional
// keyword hash and a block (nil or a Proc).
func (vm *VM) SendWithBlock(recv Value, mid Symbol, args []Value, kwargs *RHash, block Value) (Value, error) {
	m, owner, ok := vm.FindMethod(vm.ClassOf(recv), mid)
	if !ok {
		mm, mowner, found := vm.FindMethod(vm.ClassOf(recv), SymMethodMissing)
		if !found || mm.IsDefault() {
			return Nil, vm.noMethodError(recv, mid, args)
		}
		packed := append([]Value{FromSymbol(mid)}, args...)
		v, err := vm.invokeMethod(recv, mm, mowner, SymMethodMissing, packed, kwargs, block, CallerMethodCalled)
		return v, vm.finishCall(err)
	}
	v, err := vm.invokeMethod(recv, m, owner, mid, args, kwargs, block, CallerMethodCalled)
	return v, vm.finishCall(err)
}

// Yield calls a block with arguments. A nil block raises LocalJumpError.
func (vm *VM) Yield(block Value, args ...Value) (Value, error) {
	p := block.AsProc()
	if p == nil {
		return Nil, vm.Raisef(vm.LocalJumpErrorClass, "no block given (yield)")
	}
	return vm.CallProc(p, args, Nil)
}

// CallProc invokes p with its captured self.
func (vm *VM) CallProc(p *RProc, args []Value, block Value) (Value, error) {
	return vm.callProcAs(p, p.Self(), args, nil, block, nil)
}

// callProcWithTarget invokes p with self rebound and definitions landing in
// target, as instance_exec and class_eval do.
func (vm *VM) callProcWithTarget(p *RProc, self Value, args []Value, block Value, target *RClass) (Value, error) {
	return vm.callProcAs(p, self, args, nil, block, target)
}

// callProcAs invokes p with an explicit self. A nil target keeps the
// proc's own target class.
func (vm *VM) callProcAs(p *RProc, self Value, args []Value, kw *RHash, block Value, target *RClass) (Value, error) {
	mid := SymNone
	if p.Env != nil {
		mid = p.Env.Mid
	}
	if p.IsNative() {
		return vm.callNative(p.Func, p, self, mid, args, kw, block, CallerMethodCalled)
	}
	c := vm.ctx
	off := c.nextStackOff()
	ci, ok := c.PushCallStack()
	if !ok {
		return Nil, vm.stackTooDeep()
	}
	ci.StackOff = off
	ci.Proc = p
	ci.Mid = mid
	ci.TargetClass = p.TargetClass()
	if target != nil {
		ci.TargetClass = target
	}
	ci.CallerType = CallerMethodCalled
	vm.layoutArgs(ci, self, args, kw, block)
	v, err := vm.run(c.Depth() - 1)
	err = vm.finishCall(err)
	if exc, ok := err.(*RException); ok && c.Depth() == 0 {
		log.Infof("uncaught %s: %s", exc.ClassName(), exc.MessageString())
	}
	return v, err
}

// invokeMethod calls a resolved method from Go.
func (vm *VM) invokeMethod(recv Value, m Method, owner *RClass, mid Symbol, args []Value, kw *RHash, block Value, ct CallerType) (Value, error) {
	if p := vm.opts.Profiler; p != nil {
		p.Record(owner, mid, m.IsNative())
	}
	if m.Func != nil || (m.Proc != nil && m.Proc.IsNative()) {
		fn := m.Func
		if fn == nil {
			fn = m.Proc.Func
		}
		if kw != nil && kw.Len() == 0 {
			kw = nil
		}
		if m.Func != nil {
			if err := vm.checkArgcN(len(args)+kwCount(kw), m.Min, m.Max); err != nil {
				return Nil, err
			}
		}
		return vm.callNative(fn, m.Proc, recv, mid, args, kw, block, ct)
	}
	c := vm.ctx
	off := c.nextStackOff()
	ci, ok := c.PushCallStack()
	if !ok {
		return Nil, vm.stackTooDeep()
	}
	ci.StackOff = off
	ci.Proc = m.Proc
	ci.Mid = mid
	ci.TargetClass = owner
	ci.CallerType = ct
	vm.layoutArgs(ci, recv, args, kw, block)
	return vm.run(c.Depth() - 1)
}

// layoutArgs writes self, arguments, keywords and block into a freshly
// pushed interpreted frame.
func (vm *VM) layoutArgs(ci *CallInfo, self Value, args []Value, kw *RHash, block Value) {
	c := vm.ctx
	ci.NRegs = int(ci.Proc.Irep.NumRegs)
	need := len(args) + 3
	if need > ci.NRegs {
		ci.NRegs = need
	}
	c.ExtendStack(ci.StackOff + ci.NRegs + 1)
	c.ClearStack(ci.StackOff, ci.NRegs+1)
	c.stack[ci.StackOff] = self
	if len(args) >= packedArgs {
		ci.N = packedArgs
		c.stack[ci.StackOff+1] = vm.NewArray(args...)
	} else {
		ci.N = uint8(len(args))
		copy(c.stack[ci.StackOff+1:], args)
	}
	if kw != nil && kw.Len() > 0 {
		ci.NK = packedArgs
		c.stack[ci.StackOff+ci.KeywordIndex()] = FromObject(kw)
	}
	if p := block.AsProc(); p != nil {
		ci.Block = p
		c.stack[ci.StackOff+ci.BlockIndex()] = block
	}
}

// callNative runs a Go function inside its own frame so backtraces and
// break targets see it. A keyword hash is appended to args and also kept in
// the frame so PassedKeywords can tell it apart from a positional Hash.
func (vm *VM) callNative(fn NativeFunc, proc *RProc, self Value, mid Symbol, args []Value, kw *RHash, block Value, ct CallerType) (Value, error) {
	c := vm.ctx
	off := c.nextStackOff()
	ci, ok := c.PushCallStack()
	if !ok {
		return Nil, vm.stackTooDeep()
	}
	ci.StackOff = off
	ci.NRegs = 3
	ci.Mid = mid
	ci.Proc = proc
	ci.CallerType = ct
	ci.Block = block.AsProc()
	c.ExtendStack(off + ci.NRegs)
	c.stack[off] = self
	c.stack[off+1] = Nil
	c.stack[off+2] = block
	if kw != nil {
		ci.NK = packedArgs
		c.stack[off+1] = FromObject(kw)
		args = append(args[:len(args):len(args)], FromObject(kw))
	}
	idx := c.Depth() - 1
	v, err := fn(vm, self, args, block)
	c.PopCallStack()
	if err != nil {
		if brk, ok := err.(*RBreak); ok && brk.Target == idx && brk.Tag == BreakTagBreak {
			return brk.Val, nil
		}
		return Nil, err
	}
	return v, nil
}

// PassedKeywords returns the keyword hash given to the running native
// method, or nil when it was called without keywords.
func (vm *VM) PassedKeywords() *RHash {
	ci := vm.ctx.CI()
	if ci == nil || ci.NK != packedArgs || !ci.IsNative() {
		return nil
	}
	return vm.ctx.stack[ci.StackOff+1].AsHash()
}

func kwCount(kw *RHash) int {
	if kw == nil {
		return 0
	}
	return 1
}

func (vm *VM) stackTooDeep() error {
	return vm.Raisef(vm.SystemStackErrorClass, "stack level too deep")
}

func (vm *VM) noMethodError(recv Value, mid Symbol, args []Value) error {
	var desc string
	switch recv.tag {
	case TagNil:
		desc = "nil"
	case TagTrue:
		desc = "true"
	case TagFalse:
		desc = "false"
	default:
		if c := recv.AsClass(); c != nil {
			if c.kind == VTypeModule {
				desc = "module " + vm.ClassName(c)
			} else {
				desc = "class " + vm.ClassName(c)
			}
		} else {
			desc = "an instance of " + vm.ClassName(vm.RealClassOf(recv))
		}
	}
	exc := vm.NewException(vm.NoMethodErrorClass, fmt.Sprintf("undefined method '%s' for %s", vm.Symbols.Name(mid), desc))
	IvarSet(exc, vm.Intern("@name"), FromSymbol(mid))
	IvarSet(exc, vm.Intern("@args"), vm.NewArray(args...))
	IvarSet(exc, vm.Intern("@receiver"), recv)
	exc.Backtrace = vm.captureBacktrace()
	return exc
}
