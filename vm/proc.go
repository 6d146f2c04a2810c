package vm

// ---------------------------------------------------------------------------
// RProc: closures and method bodies
// ---------------------------------------------------------------------------

// ProcFlags qualify how a proc binds arguments and handles return/break.
type ProcFlags uint8

const (
	// ProcStrict marks lambdas and methods: exact arity, return is local.
	ProcStrict ProcFlags = 1 << iota
	// ProcScope marks a scope boundary (method body, class body, top level).
	ProcScope
	// ProcOrphan marks a block whose break target can never be live.
	ProcOrphan
)

// NativeFunc is the signature of natively implemented methods and procs.
// A keyword hash, when passed, is the last element of args.
type NativeFunc func(vm *VM, self Value, args []Value, block Value) (Value, error)

// RProc is either an interpreted closure over an Irep or a native function.
type RProc struct {
	RBasic
	Irep  *Irep
	Func  NativeFunc
	Env   *REnv   // captured environment, nil for methods
	Class *RClass // target class when Env is nil
	Upper *RProc  // lexically enclosing proc
	Flags ProcFlags
}

func (p *RProc) VType() VType { return VTypeProc }

func (p *RProc) IsStrict() bool { return p.Flags&ProcStrict != 0 }
func (p *RProc) IsScope() bool  { return p.Flags&ProcScope != 0 }
func (p *RProc) IsNative() bool { return p.Func != nil }

// TargetClass returns the class definitions inside this proc land in.
func (p *RProc) TargetClass() *RClass {
	if p.Env != nil {
		return p.Env.TargetClass
	}
	return p.Class
}

// Self returns the self captured by a closure, or Nil.
func (p *RProc) Self() Value {
	if p.Env != nil && p.Env.Len() > 0 {
		return p.Env.Get(0)
	}
	return Nil
}

// Arity returns the Ruby arity of the proc: required count, or
// -(required+1) when optional or rest parameters exist.
func (p *RProc) Arity() int {
	if p.Irep == nil {
		return -1
	}
	iseq := p.Irep.ISeq
	if len(iseq) < 4 || Opcode(iseq[0]) != OpEnter {
		return 0
	}
	a := uint32(iseq[1])<<16 | uint32(iseq[2])<<8 | uint32(iseq[3])
	spec := DecodeAspec(a)
	req := spec.Req + spec.Post
	if spec.Rest || spec.Opt > 0 {
		return -(req + 1)
	}
	return req
}

// ---------------------------------------------------------------------------
// REnv: captured closure environments
// ---------------------------------------------------------------------------

// REnv is the environment a closure captures from its defining frame. While
// the frame is live the environment reads and writes the context's register
// stack directly; when the frame returns it is detached into a private copy.
type REnv struct {
	RBasic
	ctx         *Context
	base        int
	n           int
	stack       []Value
	onStack     bool
	CIIndex     int
	Mid         Symbol
	TargetClass *RClass
}

func (e *REnv) VType() VType { return VTypeEnv }

// Len returns the number of captured slots.
func (e *REnv) Len() int { return e.n }

// OnStack reports whether the defining frame is still live.
func (e *REnv) OnStack() bool { return e.onStack }

// Get reads slot i.
func (e *REnv) Get(i int) Value {
	if i < 0 || i >= e.n {
		return Nil
	}
	if e.onStack {
		return e.ctx.stack[e.base+i]
	}
	return e.stack[i]
}

// Set writes slot i.
func (e *REnv) Set(i int, v Value) {
	if i < 0 || i >= e.n {
		return
	}
	if e.onStack {
		e.ctx.stack[e.base+i] = v
		return
	}
	e.stack[i] = v
}

// Slice copies slots [from, from+n).
func (e *REnv) Slice(from, n int) []Value {
	out := make([]Value, n)
	for i := range out {
		out[i] = e.Get(from + i)
	}
	return out
}

// detach copies the captured registers out of the context stack.
func (e *REnv) detach() {
	if !e.onStack {
		return
	}
	e.stack = make([]Value, e.n)
	copy(e.stack, e.ctx.stack[e.base:e.base+e.n])
	e.onStack = false
	e.ctx = nil
	e.CIIndex = -1
}

// ---------------------------------------------------------------------------
// Proc construction
// ---------------------------------------------------------------------------

// NewNativeProc wraps fn as a lambda.
func (vm *VM) NewNativeProc(fn NativeFunc) *RProc {
	return &RProc{
		RBasic: RBasic{class: vm.ProcClass},
		Func:   fn,
		Flags:  ProcStrict,
	}
}

// newProc creates a method or class-body proc without a captured
// environment.
func (vm *VM) newProc(irep *Irep, upper *RProc, target *RClass) *RProc {
	return &RProc{
		RBasic: RBasic{class: vm.ProcClass},
		Irep:   irep,
		Upper:  upper,
		Class:  target,
	}
}

// newClosure creates a proc capturing the current frame's environment.
func (vm *VM) newClosure(irep *Irep) *RProc {
	ci := vm.ctx.CI()
	return &RProc{
		RBasic: RBasic{class: vm.ProcClass},
		Irep:   irep,
		Upper:  ci.Proc,
		Env:    vm.ctx.envFor(ci),
	}
}
