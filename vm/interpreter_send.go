package vm

// ---------------------------------------------------------------------------
// Method dispatch from the interpreter loop
// ---------------------------------------------------------------------------

// prepareSend normalises the argument window starting at R[a]: keyword
// pairs are packed into a Hash, an empty keyword Hash is dropped, and the
// block slot is cleared or converted to a Proc.
func (vm *VM) prepareSend(ci *CallInfo, a, n, nk int, withBlock bool) (int, int, Value, error) {
	c := vm.ctx
	base := ci.StackOff + a
	argSlots := n
	if n == packedArgs {
		argSlots = 1
	}
	kidx := base + 1 + argSlots
	c.ExtendStack(kidx + 2*nk + 2)
	if nk > 0 && nk < packedArgs {
		h := vm.NewHash(nk)
		for i := 0; i < nk; i++ {
			if err := vm.HashSet(h, c.stack[kidx+2*i], c.stack[kidx+2*i+1]); err != nil {
				return 0, 0, Nil, err
			}
		}
		blk := c.stack[kidx+2*nk]
		c.stack[kidx] = FromObject(h)
		c.stack[kidx+1] = blk
		nk = packedArgs
	}
	if nk == packedArgs {
		kw := c.stack[kidx]
		h := kw.AsHash()
		if h == nil && !kw.IsNil() {
			return 0, 0, Nil, vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into Hash", vm.ClassName(vm.RealClassOf(kw)))
		}
		if h == nil || h.Len() == 0 {
			c.stack[kidx] = c.stack[kidx+1]
			nk = 0
		}
	}
	bidx := kidx
	if nk == packedArgs {
		bidx++
	}
	if !withBlock {
		c.stack[bidx] = Nil
		return n, nk, Nil, nil
	}
	blk := c.stack[bidx]
	if blk.IsNil() || blk.IsProc() {
		return n, nk, blk, nil
	}
	conv, err := vm.Send(blk, SymToProc)
	if err != nil {
		return 0, 0, Nil, err
	}
	if !conv.IsProc() {
		return 0, 0, Nil, vm.Raisef(vm.TypeErrorClass, "wrong argument type %s (expected Proc)", vm.ClassName(vm.RealClassOf(blk)))
	}
	c.stack[bidx] = conv
	return n, nk, conv, nil
}

// windowArgs returns the positional arguments of the window at base.
func (vm *VM) windowArgs(base, n int) []Value {
	c := vm.ctx
	if n == packedArgs {
		if arr := c.stack[base+1].AsArray(); arr != nil {
			return append([]Value(nil), arr.Values()...)
		}
		return nil
	}
	out := make([]Value, n)
	copy(out, c.stack[base+1:base+1+n])
	return out
}

// sendInternal is the shared dispatch tail of SEND, SSEND, operator
// fallbacks and index fallbacks. Interpreted callees get a new frame at
// R[a] and execution continues in the same loop.
func (vm *VM) sendInternal(ci *CallInfo, a int, mid Symbol, n, nk int, withBlock bool) error {
	n, nk, block, err := vm.prepareSend(ci, a, n, nk, withBlock)
	if err != nil {
		return err
	}
	c := vm.ctx
	base := ci.StackOff + a
	recv := c.stack[base]
	cls := vm.ClassOf(recv)
	m, owner, ok := vm.FindMethod(cls, mid)
	if !ok {
		mm, mowner, found := vm.FindMethod(cls, SymMethodMissing)
		if !found || mm.IsDefault() {
			return vm.noMethodError(recv, mid, vm.windowArgs(base, n))
		}
		n, nk = vm.packMethodMissing(base, mid, n, nk)
		m, owner, mid = mm, mowner, SymMethodMissing
	}
	return vm.callMethod(ci, a, recv, m, owner, mid, n, nk, block)
}

// packMethodMissing rewrites the window as method_missing(mid, *args).
func (vm *VM) packMethodMissing(base int, mid Symbol, n, nk int) (int, int) {
	c := vm.ctx
	args := vm.windowArgs(base, n)
	argSlots := n
	if n == packedArgs {
		argSlots = 1
	}
	tail := 1
	if nk == packedArgs {
		tail = 2
	}
	rest := make([]Value, tail)
	copy(rest, c.stack[base+1+argSlots:base+1+argSlots+tail])
	c.ExtendStack(base + 2 + tail)
	c.stack[base+1] = vm.NewArray(append([]Value{FromSymbol(mid)}, args...)...)
	copy(c.stack[base+2:], rest)
	return packedArgs, nk
}

// callMethod invokes m for the window at R[a]. Natives run to completion
// and store their result in R[a]; interpreted methods push a frame.
func (vm *VM) callMethod(ci *CallInfo, a int, recv Value, m Method, owner *RClass, mid Symbol, n, nk int, block Value) error {
	c := vm.ctx
	base := ci.StackOff + a
	if p := vm.opts.Profiler; p != nil {
		p.Record(owner, mid, m.IsNative())
	}
	if m.IsNative() {
		args := vm.windowArgs(base, n)
		var kw *RHash
		if nk == packedArgs {
			argSlots := len(args)
			if n == packedArgs {
				argSlots = 1
			}
			kw = c.stack[base+1+argSlots].AsHash()
		}
		if m.Func != nil {
			if err := vm.checkArgcN(len(args)+kwCount(kw), m.Min, m.Max); err != nil {
				return err
			}
		}
		fn := m.Func
		if fn == nil {
			fn = m.Proc.Func
		}
		v, err := vm.callNative(fn, m.Proc, recv, mid, args, kw, block, CallerInVMLoop)
		if err != nil {
			return err
		}
		c.stack[base] = v
		return nil
	}
	callee, ok := c.PushCallStack()
	if !ok {
		return vm.stackTooDeep()
	}
	callee.StackOff = base
	callee.N = uint8(n)
	callee.NK = uint8(nk)
	callee.Mid = mid
	callee.Proc = m.Proc
	callee.TargetClass = owner
	callee.Block = block.AsProc()
	callee.CallerType = CallerInVMLoop
	vm.sizeFrame(callee)
	return nil
}

// sizeFrame makes room for the callee's registers and clears everything
// above its block argument.
func (vm *VM) sizeFrame(ci *CallInfo) {
	c := vm.ctx
	bidx := ci.BlockIndex()
	ci.NRegs = int(ci.Proc.Irep.NumRegs)
	if ci.NRegs < bidx+1 {
		ci.NRegs = bidx + 1
	}
	c.ExtendStack(ci.StackOff + ci.NRegs + 1)
	c.ClearStack(ci.StackOff+bidx+1, ci.NRegs-bidx)
}

// ---------------------------------------------------------------------------
// CALL, SUPER, ARGARY and BLKPUSH
// ---------------------------------------------------------------------------

// opCall turns the running Proc#call frame into a frame of the proc held
// in R[0], keeping the arguments in place.
func (vm *VM) opCall(ci *CallInfo) error {
	c := vm.ctx
	p := c.stack[ci.StackOff].AsProc()
	if p == nil {
		return vm.Raisef(vm.TypeErrorClass, "not a proc")
	}
	if p.IsNative() {
		args := c.GetRestArg(ci)
		if kw := c.GetKeywordArgs(ci); kw != nil {
			args = append(args, FromObject(kw))
		}
		v, err := p.Func(vm, p.Self(), args, c.GetBlockArg(ci))
		if err != nil {
			return err
		}
		return &RBreak{Tag: BreakTagReturn, Target: c.depth - 1, Val: v}
	}
	ci.Proc = p
	ci.Env = nil
	ci.PC = 0
	ci.TargetClass = p.TargetClass()
	if p.Env != nil {
		ci.Mid = p.Env.Mid
	}
	c.stack[ci.StackOff] = p.Self()
	vm.sizeFrame(ci)
	return nil
}

// opSuper calls the next definition of the current method above the class
// it was found in.
func (vm *VM) opSuper(ci *CallInfo, a, n, nk int) error {
	c := vm.ctx
	mid := ci.Mid
	owner := ci.TargetClass
	if mid == SymNone || owner == nil {
		return vm.Raisef(vm.NoMethodErrorClass, "super called outside of method")
	}
	recv := c.stack[ci.StackOff]
	mod := owner
	if mod.kind == VTypeIClass {
		mod = mod.module
	}
	if !vm.KindOf(recv, mod) {
		return vm.Raisef(vm.TypeErrorClass, "self has wrong type to call super in this context")
	}
	c.stack[ci.StackOff+a] = recv
	n, nk, block, err := vm.prepareSend(ci, a, n, nk, true)
	if err != nil {
		return err
	}
	base := ci.StackOff + a
	m, found, ok := vm.FindMethod(owner.super, mid)
	if !ok {
		mm, mowner, hasMM := vm.FindMethod(vm.ClassOf(recv), SymMethodMissing)
		if !hasMM || mm.IsDefault() {
			return vm.Raisef(vm.NoMethodErrorClass, "super: no superclass method '%s' for %s",
				vm.Symbols.Name(mid), vm.InspectString(recv))
		}
		n, nk = vm.packMethodMissing(base, mid, n, nk)
		m, found, mid = mm, mowner, SymMethodMissing
	}
	return vm.callMethod(ci, a, recv, m, found, mid, n, nk, block)
}

// argSource returns a reader over the argument registers of the current
// frame (lv 0) or of an enclosing frame's environment.
func (vm *VM) argSource(ci *CallInfo, lv int) (func(i int) Value, *REnv, bool) {
	c := vm.ctx
	if lv == 0 {
		base := ci.StackOff
		return func(i int) Value { return c.stack[base+i] }, nil, true
	}
	e := vm.upvarEnv(ci.Proc, lv-1)
	if e == nil {
		return nil, nil, false
	}
	return e.Get, e, true
}

// opArgAry rebuilds the current method's arguments for a zsuper call:
// R[a] = positional array, then keywords and block.
func (vm *VM) opArgAry(ci *CallInfo, a int, b uint32) error {
	c := vm.ctx
	s := DecodeArgSpec16(b)
	if ci.Mid == SymNone || ci.TargetClass == nil {
		return vm.Raisef(vm.NoMethodErrorClass, "super: no superclass method")
	}
	get, env, ok := vm.argSource(ci, s.Level)
	r := b2i(s.Rest)
	if !ok || (env != nil && env.Len() <= s.Req+r+s.Post+1) {
		return vm.Raisef(vm.NoMethodErrorClass, "super: no superclass method")
	}
	vals := make([]Value, 0, s.Req+s.Post)
	for i := 0; i < s.Req; i++ {
		vals = append(vals, get(1+i))
	}
	if s.Rest {
		if rest := get(1 + s.Req).AsArray(); rest != nil {
			vals = append(vals, rest.Values()...)
		}
	}
	for i := 0; i < s.Post; i++ {
		vals = append(vals, get(1+s.Req+r+i))
	}
	c.ExtendStack(ci.StackOff + a + 3)
	c.stack[ci.StackOff+a] = vm.NewArray(vals...)
	tail := 1 + s.Req + r + s.Post
	if s.KDict {
		c.stack[ci.StackOff+a+1] = get(tail)
		c.stack[ci.StackOff+a+2] = get(tail + 1)
	} else {
		c.stack[ci.StackOff+a+1] = get(tail)
	}
	return nil
}

// opBlkPush loads the block argument of the current method for yield.
func (vm *VM) opBlkPush(ci *CallInfo, a int, b uint32) error {
	c := vm.ctx
	s := DecodeArgSpec16(b)
	r := b2i(s.Rest)
	get, env, ok := vm.argSource(ci, s.Level)
	if !ok || (env != nil && ((!env.OnStack() && env.Mid == SymNone) || env.Len() <= s.Req+r+s.Post+1)) {
		return vm.Raisef(vm.LocalJumpErrorClass, "no block given (yield)")
	}
	blk := get(1 + s.Req + r + s.Post + b2i(s.KDict))
	if blk.IsNil() {
		return vm.Raisef(vm.LocalJumpErrorClass, "no block given (yield)")
	}
	c.stack[ci.StackOff+a] = blk
	return nil
}
