package vm

import (
	"errors"
	"math"
)

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// run executes frames until the frame at index entry returns. Interpreted
// calls made by instructions are handled in this same loop; only native
// methods and host-level calls recurse.
func (vm *VM) run(entry int) (Value, error) {
	c := vm.ctx
	for {
		ci := c.cis[c.depth-1]
		irep := ci.Proc.Irep
		if ci.PC >= len(irep.ISeq) {
			if v, done, err := vm.completeReturn(entry, Nil); done {
				return v, err
			}
			continue
		}
		ins := decodeAt(irep.ISeq, ci.PC)
		ci.PC = ins.Next
		base := ci.StackOff
		a, b := int(ins.A), int(ins.B)

		var err error
		switch ins.Op {
		case OpNop:

		case OpDebug:
			log.Debugf("OP_DEBUG %d %d %d at pc %d depth %d", a, b, ins.C, ins.Pos, c.Depth())

		case OpMove:
			c.stack[base+a] = c.stack[base+b]
		case OpLoadL:
			v := irep.Pool[b]
			if s := v.AsString(); s != nil {
				v = vm.StrDup(s)
			}
			c.stack[base+a] = v
		case OpLoadI:
			c.stack[base+a] = FromInt(int64(b))
		case OpLoadINeg:
			c.stack[base+a] = FromInt(-int64(b))
		case OpLoadIM1, OpLoadI0, OpLoadI1, OpLoadI2, OpLoadI3, OpLoadI4, OpLoadI5, OpLoadI6, OpLoadI7:
			c.stack[base+a] = FromInt(int64(ins.Op) - int64(OpLoadI0))
		case OpLoadI16:
			c.stack[base+a] = FromInt(int64(int16(ins.B)))
		case OpLoadI32:
			c.stack[base+a] = FromInt(int64(int32(ins.B<<16 | ins.C)))
		case OpLoadSym:
			c.stack[base+a] = FromSymbol(irep.Syms[b])
		case OpLoadNil:
			c.stack[base+a] = Nil
		case OpLoadSelf:
			c.stack[base+a] = c.stack[base]
		case OpLoadT:
			c.stack[base+a] = True
		case OpLoadF:
			c.stack[base+a] = False

		// ---- variables ----

		case OpGetGV:
			c.stack[base+a] = vm.globals[irep.Syms[b]]
		case OpSetGV:
			vm.globals[irep.Syms[b]] = c.stack[base+a]
		case OpGetSV:
			c.stack[base+a] = vm.specials[irep.Syms[b]]
		case OpSetSV:
			vm.specials[irep.Syms[b]] = c.stack[base+a]
		case OpGetIV:
			c.stack[base+a] = IvarGet(c.stack[base], irep.Syms[b])
		case OpSetIV:
			err = vm.ivarSet(c.stack[base], irep.Syms[b], c.stack[base+a])
		case OpGetCV:
			var v Value
			v, err = vm.ClassVarGet(vm.cvarScope(ci.Proc), irep.Syms[b])
			if err == nil {
				c.stack[base+a] = v
			}
		case OpSetCV:
			err = vm.ClassVarSet(vm.cvarScope(ci.Proc), irep.Syms[b], c.stack[base+a])
		case OpGetConst:
			var v Value
			v, err = vm.lexicalConstGet(ci.Proc, irep.Syms[b])
			if err == nil {
				c.stack[base+a] = v
			}
		case OpSetConst:
			target := vm.targetClass(ci)
			if target == nil {
				target = vm.ObjectClass
			}
			err = vm.ConstSet(target, irep.Syms[b], c.stack[base+a])
		case OpGetMCnst:
			var v Value
			v, err = vm.scopedConstGet(c.stack[base+a], irep.Syms[b])
			if err == nil {
				c.stack[base+a] = v
			}
		case OpSetMCnst:
			var mod *RClass
			mod, err = vm.checkClassOrModule(c.stack[base+a+1])
			if err == nil {
				err = vm.ConstSet(mod, irep.Syms[b], c.stack[base+a])
			}
		case OpGetUpVar:
			v := Nil
			if e := vm.upvarEnv(ci.Proc, int(ins.C)); e != nil {
				v = e.Get(b)
			}
			c.stack[base+a] = v
		case OpSetUpVar:
			if e := vm.upvarEnv(ci.Proc, int(ins.C)); e != nil {
				e.Set(b, c.stack[base+a])
			}

		case OpGetIdx:
			recv, idx := c.stack[base+a], c.stack[base+a+1]
			if arr := recv.AsArray(); arr != nil && arr.class == vm.ArrayClass && idx.IsInteger() {
				c.stack[base+a] = arr.At(int(idx.Int()))
				break
			}
			if h := recv.AsHash(); h != nil && h.class == vm.HashClass {
				var v Value
				v, err = vm.HashGet(h, idx)
				if err == nil {
					c.stack[base+a] = v
				}
				break
			}
			err = vm.sendInternal(ci, a, SymAref, 1, 0, false)
		case OpSetIdx:
			recv, idx := c.stack[base+a], c.stack[base+a+1]
			if arr := recv.AsArray(); arr != nil && arr.class == vm.ArrayClass && idx.IsInteger() {
				if err = vm.AryModify(arr); err == nil {
					if !arr.Set(int(idx.Int()), c.stack[base+a+2]) {
						err = vm.Raisef(vm.IndexErrorClass, "index %d too small for array; minimum: -%d", idx.Int(), arr.Len())
					} else {
						c.stack[base+a] = c.stack[base+a+2]
					}
				}
				break
			}
			err = vm.sendInternal(ci, a, SymAset, 2, 0, false)

		// ---- control transfer ----

		case OpJmp:
			ci.PC = ins.Next + int(int16(ins.A))
		case OpJmpIf:
			if c.stack[base+a].IsTruthy() {
				ci.PC = ins.Next + int(int16(ins.B))
			}
		case OpJmpNot:
			if c.stack[base+a].IsFalsy() {
				ci.PC = ins.Next + int(int16(ins.B))
			}
		case OpJmpNil:
			if c.stack[base+a].IsNil() {
				ci.PC = ins.Next + int(int16(ins.B))
			}
		case OpJmpUW:
			target := ins.Next + int(int16(ins.A))
			if h, ok := irep.findHandler(ci.PC, filterEnsure); ok && (uint32(target) < h.Begin || uint32(target) >= h.End) {
				err = &RBreak{Tag: BreakTagJump, Target: c.depth - 1, Val: FromInt(int64(target))}
				break
			}
			vm.exc = Nil
			ci.PC = target

		// ---- exceptions and non-local exits ----

		case OpExcept:
			c.stack[base+a] = vm.exc
			vm.exc = Nil
		case OpRescue:
			err = vm.opRescue(ci, a, b)
		case OpRaiseIf:
			v := c.stack[base+a]
			switch o := v.obj.(type) {
			case *RException:
				err = o
			case *RBreak:
				err = o
			}

		// ---- dispatch ----

		case OpSSend, OpSSendB:
			c.stack[base+a] = c.stack[base]
			err = vm.sendInternal(ci, a, irep.Syms[b], int(ins.C&0xf), int(ins.C>>4), ins.Op == OpSSendB)
		case OpSend, OpSendB:
			err = vm.sendInternal(ci, a, irep.Syms[b], int(ins.C&0xf), int(ins.C>>4), ins.Op == OpSendB)
		case OpCall:
			err = vm.opCall(ci)
		case OpSuper:
			err = vm.opSuper(ci, a, b&0xf, b>>4)
		case OpArgAry:
			err = vm.opArgAry(ci, a, ins.B)
		case OpEnter:
			err = vm.opEnter(ci, ins.A)
		case OpKeyP:
			kd := vm.kdict(ci)
			found := false
			if kd != nil {
				found, err = kd.HasKey(FromSymbol(irep.Syms[b]))
			}
			c.stack[base+a] = FromBool(found)
		case OpKeyEnd:
			if kd := vm.kdict(ci); kd != nil && kd.Len() > 0 {
				err = vm.Raisef(vm.ArgumentErrorClass, "unknown keyword: %s", vm.InspectString(kd.Keys()[0]))
			}
		case OpKArg:
			key := FromSymbol(irep.Syms[b])
			kd := vm.kdict(ci)
			var v Value
			var ok bool
			if kd != nil {
				v, ok, err = kd.Delete(key)
			}
			if err == nil && !ok {
				err = vm.Raisef(vm.ArgumentErrorClass, "missing keyword: %s", vm.InspectString(key))
			}
			if err == nil {
				c.stack[base+a] = v
			}

		case OpReturn:
			if v, done, rerr := vm.unwindBreak(entry, &RBreak{Tag: BreakTagReturn, Target: c.depth - 1, Val: c.stack[base+a]}); done {
				return v, rerr
			}
			continue
		case OpReturnBlk:
			var brk *RBreak
			brk, err = vm.returnTarget(ci, c.stack[base+a])
			if err == nil {
				err = brk
			}
		case OpBreak:
			var brk *RBreak
			brk, err = vm.breakTarget(ci, c.stack[base+a])
			if err == nil {
				err = brk
			}
		case OpBlkPush:
			err = vm.opBlkPush(ci, a, ins.B)

		// ---- arithmetic ----

		case OpAdd, OpSub, OpMul, OpDiv:
			err = vm.opArith(ci, ins.Op, a)
		case OpAddI, OpSubI:
			err = vm.opArithI(ci, ins.Op, a, int64(b))
		case OpEQ, OpLT, OpLE, OpGT, OpGE:
			err = vm.opCompare(ci, ins.Op, a)

		// ---- literals and collections ----

		case OpArray:
			c.stack[base+a] = vm.NewArray(c.stack[base+a : base+a+b]...)
		case OpArray2:
			c.stack[base+a] = vm.NewArray(c.stack[base+b : base+b+int(ins.C)]...)
		case OpAryCat:
			err = vm.opAryCat(ci, a)
		case OpAryPush:
			if arr := c.stack[base+a].AsArray(); arr != nil {
				if err = vm.AryModify(arr); err == nil {
					arr.Push(c.stack[base+a+1 : base+a+1+b]...)
				}
			} else {
				err = vm.Raisef(vm.TypeErrorClass, "not an array")
			}
		case OpAryDup:
			v := c.stack[base+a]
			if arr := v.AsArray(); arr != nil {
				c.stack[base+a] = vm.AryDup(arr)
			} else {
				var arr *RArray
				arr, err = vm.Splat(v)
				if err == nil {
					c.stack[base+a] = vm.AryDup(arr)
				}
			}
		case OpARef:
			v := c.stack[base+b]
			if arr := v.AsArray(); arr != nil {
				c.stack[base+a] = arr.At(int(ins.C))
			} else if ins.C == 0 {
				c.stack[base+a] = v
			} else {
				c.stack[base+a] = Nil
			}
		case OpASet:
			if arr := c.stack[base+b].AsArray(); arr != nil {
				if err = vm.AryModify(arr); err == nil {
					arr.Set(int(ins.C), c.stack[base+a])
				}
			}
		case OpAPost:
			err = vm.opAPost(ci, a, b, int(ins.C))
		case OpIntern:
			s := c.stack[base+a].AsString()
			if s == nil {
				err = vm.Raisef(vm.TypeErrorClass, "%s is not a string", vm.InspectString(c.stack[base+a]))
				break
			}
			c.stack[base+a] = FromSymbol(vm.Symbols.InternBytes(s.Bytes()))
		case OpSymbol:
			s := irep.Pool[b].AsString()
			if s == nil {
				err = vm.Raisef(vm.TypeErrorClass, "bad symbol literal")
				break
			}
			c.stack[base+a] = FromSymbol(vm.Symbols.InternBytes(s.Bytes()))
		case OpString:
			s := irep.Pool[b].AsString()
			if s == nil {
				err = vm.Raisef(vm.TypeErrorClass, "bad string literal")
				break
			}
			c.stack[base+a] = vm.StrDup(s)
		case OpStrCat:
			err = vm.opStrCat(ci, a)
		case OpHash:
			h := vm.NewHash(b)
			for i := 0; i < b && err == nil; i++ {
				err = vm.HashSet(h, c.stack[base+a+2*i], c.stack[base+a+2*i+1])
			}
			c.stack[base+a] = FromObject(h)
		case OpHashAdd:
			h := c.stack[base+a].AsHash()
			if h == nil {
				err = vm.Raisef(vm.TypeErrorClass, "not a hash")
				break
			}
			for i := 0; i < b && err == nil; i++ {
				err = vm.HashSet(h, c.stack[base+a+1+2*i], c.stack[base+a+2+2*i])
			}
		case OpHashCat:
			err = vm.opHashCat(ci, a)

		// ---- closures and methods ----

		case OpLambda:
			p := vm.newClosure(irep.Reps[b])
			p.Flags |= ProcStrict
			c.stack[base+a] = FromObject(p)
		case OpBlock:
			c.stack[base+a] = FromObject(vm.newClosure(irep.Reps[b]))
		case OpMethod:
			p := vm.newProc(irep.Reps[b], ci.Proc, nil)
			p.Flags |= ProcStrict | ProcScope
			c.stack[base+a] = FromObject(p)
		case OpRangeInc, OpRangeExc:
			var v Value
			v, err = vm.NewRange(c.stack[base+a], c.stack[base+a+1], ins.Op == OpRangeExc)
			if err == nil {
				c.stack[base+a] = v
			}

		// ---- classes ----

		case OpOClass:
			c.stack[base+a] = FromObject(vm.ObjectClass)
		case OpClass:
			outer := c.stack[base+a]
			if outer.IsNil() {
				outer = FromObject(vm.lexicalTarget(ci))
			}
			var k *RClass
			k, err = vm.defineClassValue(outer, c.stack[base+a+1], irep.Syms[b])
			if err == nil {
				c.stack[base+a] = FromObject(k)
			}
		case OpModule:
			outer := c.stack[base+a]
			if outer.IsNil() {
				outer = FromObject(vm.lexicalTarget(ci))
			}
			var m *RClass
			m, err = vm.defineModuleValue(outer, irep.Syms[b])
			if err == nil {
				c.stack[base+a] = FromObject(m)
			}
		case OpExec:
			err = vm.opExec(ci, a, irep.Reps[b])
		case OpDef:
			target := c.stack[base+a].AsClass()
			p := c.stack[base+a+1].AsProc()
			mid := irep.Syms[b]
			if target == nil || p == nil {
				err = vm.Raisef(vm.TypeErrorClass, "no class to define method '%s'", vm.Symbols.Name(mid))
				break
			}
			if err = vm.DefineMethod(target, mid, Method{Proc: p}); err == nil {
				c.stack[base+a] = FromSymbol(mid)
				err = vm.MethodAddedHook(target, mid)
			}
		case OpAlias:
			target := vm.lexicalTarget(ci)
			err = vm.AliasMethod(target, irep.Syms[a], irep.Syms[b])
			if err == nil {
				err = vm.MethodAddedHook(target, irep.Syms[a])
			}
		case OpUndef:
			target := vm.lexicalTarget(ci)
			err = vm.UndefMethod(target, irep.Syms[a])
		case OpSClass:
			var sc *RClass
			sc, err = vm.SingletonClassOf(c.stack[base+a])
			if err == nil {
				c.stack[base+a] = FromObject(sc)
			}
		case OpTClass:
			target := vm.targetClass(ci)
			if target == nil {
				err = vm.Raisef(vm.TypeErrorClass, "no target class or module")
				break
			}
			c.stack[base+a] = FromObject(target)

		case OpErr:
			msg := "unexpected jump"
			if s := irep.Pool[a].AsString(); s != nil {
				msg = s.String()
			}
			err = vm.Raisef(vm.LocalJumpErrorClass, "%s", msg)

		case OpStop:
			if v, done, rerr := vm.unwindBreak(entry, &RBreak{Tag: BreakTagStop, Target: entry, Val: c.stack[base+int(irep.NumLocals)]}); done {
				return v, rerr
			}
			continue

		default:
			err = vm.Raisef(vm.ScriptErrorClass, "unknown instruction %s at %04d", ins.Op, ins.Pos)
		}

		if err != nil {
			if v, done, rerr := vm.handleError(entry, err); done {
				return v, rerr
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Unwinding
// ---------------------------------------------------------------------------

// handleError routes an error raised by the current instruction. It
// reports done when control leaves this run loop.
func (vm *VM) handleError(entry int, err error) (Value, bool, error) {
	var brk *RBreak
	if errors.As(err, &brk) {
		return vm.unwindBreak(entry, brk)
	}
	return vm.unwindException(entry, vm.toException(err))
}

// unwindException searches for a rescue or ensure handler covering the
// current position, popping frames until one is found or the entry frame
// is left.
func (vm *VM) unwindException(entry int, exc *RException) (Value, bool, error) {
	c := vm.ctx
	for {
		ci := c.cis[c.depth-1]
		if h, ok := ci.Proc.Irep.findHandler(ci.PC, filterAll); ok {
			vm.exc = FromObject(exc)
			ci.PC = int(h.Target)
			return Nil, false, nil
		}
		popped := c.PopCallStack()
		if popped.CallerType != CallerInVMLoop || c.depth <= entry {
			return Nil, true, exc
		}
	}
}

// unwindBreak carries a break, return, jump or stop toward its target
// frame, detouring through every ensure handler on the way.
func (vm *VM) unwindBreak(entry int, brk *RBreak) (Value, bool, error) {
	c := vm.ctx
	for {
		idx := c.depth - 1
		ci := c.cis[idx]
		if brk.Tag == BreakTagJump && brk.Target == idx {
			target := int(brk.Val.Int())
			if h, ok := ci.Proc.Irep.findHandler(ci.PC, filterEnsure); ok && (uint32(target) < h.Begin || uint32(target) >= h.End) {
				vm.exc = FromObject(brk)
				ci.PC = int(h.Target)
				return Nil, false, nil
			}
			vm.exc = Nil
			ci.PC = target
			return Nil, false, nil
		}
		if h, ok := ci.Proc.Irep.findHandler(ci.PC, filterEnsure); ok {
			vm.exc = FromObject(brk)
			ci.PC = int(h.Target)
			return Nil, false, nil
		}
		if idx == brk.Target {
			return vm.completeReturn(entry, brk.Val)
		}
		popped := c.PopCallStack()
		if popped.CallerType != CallerInVMLoop || c.depth <= entry {
			return Nil, true, brk
		}
	}
}

// completeReturn pops the current frame and delivers v to its caller.
func (vm *VM) completeReturn(entry int, v Value) (Value, bool, error) {
	c := vm.ctx
	vm.exc = Nil
	popped := c.PopCallStack()
	if popped.CallerType != CallerInVMLoop || c.depth <= entry {
		return v, true, nil
	}
	c.stack[popped.StackOff] = v
	return Nil, false, nil
}

// returnTarget resolves RETURN_BLK: a lambda or method returns locally; a
// block returns from the method that lexically encloses it.
func (vm *VM) returnTarget(ci *CallInfo, v Value) (*RBreak, error) {
	c := vm.ctx
	proc := ci.Proc
	if proc.IsStrict() || proc.Env == nil {
		return &RBreak{Tag: BreakTagReturn, Target: c.depth - 1, Val: v}, nil
	}
	p := proc
	env := p.Env
	for {
		up := p.Upper
		if up == nil || up.IsStrict() || up.IsScope() || up.Env == nil {
			break
		}
		p = up
		env = p.Env
	}
	if !env.OnStack() || env.CIIndex < 0 || env.CIIndex >= c.depth {
		return nil, vm.Raisef(vm.LocalJumpErrorClass, "unexpected return")
	}
	return &RBreak{Tag: BreakTagReturn, Target: env.CIIndex, Val: v}, nil
}

// breakTarget resolves BREAK: the call that received the block returns v.
func (vm *VM) breakTarget(ci *CallInfo, v Value) (*RBreak, error) {
	c := vm.ctx
	proc := ci.Proc
	if proc.IsStrict() {
		return &RBreak{Tag: BreakTagReturn, Target: c.depth - 1, Val: v}, nil
	}
	env := proc.Env
	if proc.Flags&ProcOrphan != 0 || env == nil || !env.OnStack() || env.CIIndex < 0 {
		return nil, vm.Raisef(vm.LocalJumpErrorClass, "break from proc-closure")
	}
	target := env.CIIndex + 1
	if target >= c.depth || c.cis[target].Block != proc {
		return nil, vm.Raisef(vm.LocalJumpErrorClass, "break from proc-closure")
	}
	return &RBreak{Tag: BreakTagBreak, Target: target, Val: v}, nil
}

func (vm *VM) opRescue(ci *CallInfo, a, b int) error {
	c := vm.ctx
	exc := c.stack[ci.StackOff+a]
	class := c.stack[ci.StackOff+b]
	k := class.AsClass()
	if k == nil || (k.kind != VTypeClass && k.kind != VTypeModule) {
		return vm.Raisef(vm.TypeErrorClass, "class or module required for rescue clause")
	}
	c.stack[ci.StackOff+b] = FromBool(vm.KindOf(exc, k))
	return nil
}

// ---------------------------------------------------------------------------
// Frame helpers
// ---------------------------------------------------------------------------

// targetClass returns the class definitions in ci land in, with
// include-classes mapped back to their modules.
func (vm *VM) targetClass(ci *CallInfo) *RClass {
	t := ci.TargetClass
	if t != nil && t.kind == VTypeIClass {
		t = t.module
	}
	return t
}

// lexicalTarget is targetClass defaulting to Object.
func (vm *VM) lexicalTarget(ci *CallInfo) *RClass {
	if t := vm.targetClass(ci); t != nil {
		return t
	}
	return vm.ObjectClass
}

// upvarEnv walks depth levels up the lexical proc chain.
func (vm *VM) upvarEnv(proc *RProc, depth int) *REnv {
	p := proc
	for ; depth > 0 && p != nil; depth-- {
		p = p.Upper
	}
	if p == nil {
		return nil
	}
	return p.Env
}

// kdict returns the keyword hash bound by ENTER, or nil.
func (vm *VM) kdict(ci *CallInfo) *RHash {
	idx := ci.KeywordIndex()
	if idx < 0 {
		return nil
	}
	return vm.ctx.stack[ci.StackOff+idx].AsHash()
}

func (vm *VM) ivarSet(self Value, name Symbol, v Value) error {
	o := self.Object()
	if o == nil {
		return vm.Raisef(vm.FrozenErrorClass, "can't modify frozen %s", vm.ClassName(vm.ClassOf(self)))
	}
	if o.Basic().Frozen() {
		return vm.frozenError(self)
	}
	IvarSet(o, name, v)
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic fast paths
// ---------------------------------------------------------------------------

var arithSyms = map[Opcode]Symbol{
	OpAdd: SymAdd, OpSub: SymSub, OpMul: SymMul, OpDiv: SymDiv,
	OpAddI: SymAdd, OpSubI: SymSub,
	OpEQ: SymEq, OpLT: SymLt, OpLE: SymLe, OpGT: SymGt, OpGE: SymGe,
}

// opArith computes R[a] op R[a+1] inline for numbers and otherwise sends
// the operator method.
func (vm *VM) opArith(ci *CallInfo, op Opcode, a int) error {
	c := vm.ctx
	x, y := c.stack[ci.StackOff+a], c.stack[ci.StackOff+a+1]
	if x.IsInteger() && y.IsInteger() {
		if v, ok, err := vm.intArith(op, x.Int(), y.Int()); ok || err != nil {
			if err == nil {
				c.stack[ci.StackOff+a] = v
			}
			return err
		}
	} else if x.IsNumeric() && y.IsNumeric() {
		f, _ := x.ToFloat64()
		g, _ := y.ToFloat64()
		c.stack[ci.StackOff+a] = FromFloat64(floatArith(op, f, g))
		return nil
	}
	return vm.sendInternal(ci, a, arithSyms[op], 1, 0, false)
}

func (vm *VM) opArithI(ci *CallInfo, op Opcode, a int, n int64) error {
	c := vm.ctx
	x := c.stack[ci.StackOff+a]
	bop := OpAdd
	if op == OpSubI {
		bop = OpSub
	}
	switch {
	case x.IsInteger():
		if v, ok, _ := vm.intArith(bop, x.Int(), n); ok {
			c.stack[ci.StackOff+a] = v
			return nil
		}
	case x.IsFloat():
		c.stack[ci.StackOff+a] = FromFloat64(floatArith(bop, x.Float64(), float64(n)))
		return nil
	}
	c.stack[ci.StackOff+a+1] = FromInt(n)
	return vm.sendInternal(ci, a, arithSyms[op], 1, 0, false)
}

// intArith reports ok=false on overflow so the caller falls back to a send.
func (vm *VM) intArith(op Opcode, x, y int64) (Value, bool, error) {
	switch op {
	case OpAdd:
		z := x + y
		if (z > x) != (y > 0) {
			return Nil, false, nil
		}
		return FromInt(z), true, nil
	case OpSub:
		z := x - y
		if (z < x) != (y > 0) {
			return Nil, false, nil
		}
		return FromInt(z), true, nil
	case OpMul:
		if x == 0 || y == 0 {
			return FromInt(0), true, nil
		}
		z := x * y
		if z/y != x || (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
			return Nil, false, nil
		}
		return FromInt(z), true, nil
	case OpDiv:
		q, err := vm.intDiv(x, y)
		if err != nil {
			return Nil, false, err
		}
		return FromInt(q), true, nil
	}
	return Nil, false, nil
}

// intDiv is floored division.
func (vm *VM) intDiv(x, y int64) (int64, error) {
	if y == 0 {
		return 0, vm.Raisef(vm.ZeroDivisionErrorClass, "divided by 0")
	}
	if x == math.MinInt64 && y == -1 {
		return 0, vm.Raisef(vm.RangeErrorClass, "integer overflow in division")
	}
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q, nil
}

func floatArith(op Opcode, f, g float64) float64 {
	switch op {
	case OpAdd:
		return f + g
	case OpSub:
		return f - g
	case OpMul:
		return f * g
	}
	return f / g
}

// opCompare implements EQ, LT, LE, GT and GE.
func (vm *VM) opCompare(ci *CallInfo, op Opcode, a int) error {
	c := vm.ctx
	x, y := c.stack[ci.StackOff+a], c.stack[ci.StackOff+a+1]
	if op == OpEQ && Identical(x, y) && !x.IsFloat() {
		c.stack[ci.StackOff+a] = True
		return nil
	}
	if x.IsNumeric() && y.IsNumeric() {
		var r bool
		if x.IsInteger() && y.IsInteger() {
			r = compareOp(op, cmpInt(x.Int(), y.Int()), false)
		} else {
			f, _ := x.ToFloat64()
			g, _ := y.ToFloat64()
			r = compareOp(op, cmpFloat(f, g), math.IsNaN(f) || math.IsNaN(g))
		}
		c.stack[ci.StackOff+a] = FromBool(r)
		return nil
	}
	if op == OpEQ && x.IsSymbol() && y.IsSymbol() {
		c.stack[ci.StackOff+a] = FromBool(x.Symbol() == y.Symbol())
		return nil
	}
	return vm.sendInternal(ci, a, arithSyms[op], 1, 0, false)
}

func cmpInt(x, y int64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func compareOp(op Opcode, cmp int, nan bool) bool {
	if nan {
		return false
	}
	switch op {
	case OpEQ:
		return cmp == 0
	case OpLT:
		return cmp < 0
	case OpLE:
		return cmp <= 0
	case OpGT:
		return cmp > 0
	}
	return cmp >= 0
}

// ---------------------------------------------------------------------------
// Collection helpers
// ---------------------------------------------------------------------------

func (vm *VM) opAryCat(ci *CallInfo, a int) error {
	c := vm.ctx
	dst := c.stack[ci.StackOff+a].AsArray()
	if dst == nil {
		return vm.Raisef(vm.TypeErrorClass, "not an array")
	}
	src, err := vm.Splat(c.stack[ci.StackOff+a+1])
	if err != nil {
		return err
	}
	if err := vm.AryModify(dst); err != nil {
		return err
	}
	dst.Concat(src)
	return nil
}

// opAPost splits R[a] into pre elements (already consumed), a rest array and
// c post elements.
func (vm *VM) opAPost(ci *CallInfo, a, pre, post int) error {
	c := vm.ctx
	v := c.stack[ci.StackOff+a]
	arr, err := vm.Splat(v)
	if err != nil {
		return err
	}
	vals := arr.Values()
	n := len(vals)
	if n > pre+post {
		rest := vals[pre : n-post]
		c.stack[ci.StackOff+a] = vm.NewArray(rest...)
		for i := 0; i < post; i++ {
			c.stack[ci.StackOff+a+1+i] = vals[n-post+i]
		}
		return nil
	}
	c.stack[ci.StackOff+a] = vm.NewArray()
	for i := 0; i < post; i++ {
		if pre+i < n {
			c.stack[ci.StackOff+a+1+i] = vals[pre+i]
		} else {
			c.stack[ci.StackOff+a+1+i] = Nil
		}
	}
	return nil
}

func (vm *VM) opStrCat(ci *CallInfo, a int) error {
	c := vm.ctx
	dst := c.stack[ci.StackOff+a].AsString()
	if dst == nil {
		return vm.Raisef(vm.TypeErrorClass, "not a string")
	}
	s, err := vm.ToS(c.stack[ci.StackOff+a+1])
	if err != nil {
		return err
	}
	return vm.StrCat(dst, []byte(s))
}

func (vm *VM) opHashCat(ci *CallInfo, a int) error {
	c := vm.ctx
	dst := c.stack[ci.StackOff+a].AsHash()
	src := c.stack[ci.StackOff+a+1]
	if dst == nil {
		return vm.Raisef(vm.TypeErrorClass, "not a hash")
	}
	if src.IsNil() {
		return nil
	}
	h := src.AsHash()
	if h == nil {
		return vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into Hash", vm.ClassName(vm.RealClassOf(src)))
	}
	var err error
	h.Each(func(k, v Value) bool {
		err = vm.HashSet(dst, k, v)
		return err == nil
	})
	return err
}

// opExec runs a class or module body with self and target set to R[a].
func (vm *VM) opExec(ci *CallInfo, a int, body *Irep) error {
	c := vm.ctx
	recv := c.stack[ci.StackOff+a]
	k := recv.AsClass()
	if k == nil {
		return vm.Raisef(vm.TypeErrorClass, "%s is not a class/module", vm.InspectString(recv))
	}
	p := vm.newProc(body, ci.Proc, k)
	p.Flags |= ProcScope
	callee, ok := c.PushCallStack()
	if !ok {
		return vm.stackTooDeep()
	}
	callee.StackOff = ci.StackOff + a
	callee.NRegs = int(body.NumRegs)
	callee.Proc = p
	callee.TargetClass = k
	callee.CallerType = CallerInVMLoop
	c.ExtendStack(callee.StackOff + callee.NRegs + 1)
	c.ClearStack(callee.StackOff+1, callee.NRegs)
	return nil
}
