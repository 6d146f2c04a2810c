package vm

// ---------------------------------------------------------------------------
// ENTER: argument binding
// ---------------------------------------------------------------------------

// opEnter binds the arguments of the current frame to the parameter layout
// described by the aspec word: required, optional, rest, post, keywords
// and block. On return R[1..len] hold the parameters, the keyword hash (if
// any) follows, then the block. ci.PC is advanced past the jump table
// entries of optional parameters that were supplied.
func (vm *VM) opEnter(ci *CallInfo, word uint32) error {
	c := vm.ctx
	spec := DecodeAspec(word)
	m1, o, m2 := spec.Req, spec.Opt, spec.Post
	r := b2i(spec.Rest)
	kd := spec.KDict || spec.Key > 0
	length := m1 + o + r + m2
	nlocals := int(ci.Proc.Irep.NumLocals)
	base := ci.StackOff

	if o == 0 && r == 0 && m2 == 0 && !kd && ci.NK == 0 && int(ci.N) == m1 && ci.N != packedArgs {
		bidx := 1 + m1
		if nlocals > bidx+1 {
			c.ClearStack(base+bidx+1, nlocals-bidx-1)
		}
		return nil
	}

	c.ExtendStack(base + length + 3 + nlocals)
	regs := c.stack[base:]
	blk := regs[ci.BlockIndex()]
	argc := int(ci.N)

	var kdict *RHash
	if ci.NK == packedArgs {
		kdict = regs[ci.KeywordIndex()].AsHash()
	}
	if !kd {
		if kdict != nil && kdict.Len() > 0 {
			switch {
			case argc < 14:
				regs[argc+1] = FromObject(kdict)
				argc++
				ci.N++
			case argc == 14:
				vals := append([]Value(nil), regs[1:argc+1]...)
				regs[1] = vm.NewArray(append(vals, FromObject(kdict))...)
				argc = packedArgs
				ci.N = packedArgs
			default:
				packed := regs[1].AsArray()
				vals := append([]Value(nil), packed.Values()...)
				regs[1] = vm.NewArray(append(vals, FromObject(kdict))...)
			}
		}
		kdict = nil
		ci.NK = 0
	} else if spec.Key > 0 && kdict != nil {
		kdict = kdict.Dup(vm.HashClass)
	}

	// argv aliases the registers unless arguments arrive packed or are
	// auto-splatted from a single Array.
	argv := regs[1:]
	inRegs := true
	if argc == packedArgs {
		packed := regs[1].AsArray()
		if packed == nil {
			return vm.Raisef(vm.TypeErrorClass, "packed arguments must be an Array")
		}
		argv = append([]Value(nil), packed.Values()...)
		argc = len(argv)
		inRegs = false
	}

	if ci.Proc.IsStrict() {
		if argc < m1+m2 || (r == 0 && argc > length) {
			return vm.argumentCountError(argc, m1+m2, o, r > 0)
		}
	} else if length > 1 && argc == 1 && argv[0].IsArray() {
		argv = append([]Value(nil), argv[0].AsArray().Values()...)
		argc = len(argv)
		inRegs = false
	}

	if argc < length {
		mlen := m2
		if argc < m1+m2 {
			mlen = 0
			if m1 < argc {
				mlen = argc - m1
			}
		}
		if !inRegs {
			copy(regs[1:], argv[:argc-mlen])
		}
		if argc < m1 {
			clear(regs[argc+1 : m1+1])
		}
		if mlen > 0 {
			copy(regs[length-m2+1:], argv[argc-mlen:argc])
		}
		if mlen < m2 {
			clear(regs[length-m2+mlen+1 : length+1])
		}
		if r > 0 {
			regs[m1+o+1] = vm.NewArray()
		}
		if o > 0 && argc > m1+m2 {
			ci.PC += (argc - m1 - m2) * 3
		}
	} else {
		rnum := 0
		if !inRegs {
			copy(regs[1:], argv[:m1+o])
		}
		if r > 0 {
			rnum = argc - m1 - o - m2
			rest := make([]Value, rnum)
			copy(rest, argv[m1+o:m1+o+rnum])
			if m2 > 0 && argc-m2 > m1 {
				post := make([]Value, m2)
				copy(post, argv[m1+o+rnum:m1+o+rnum+m2])
				copy(regs[m1+o+r+1:], post)
			}
			regs[m1+o+1] = vm.NewArray(rest...)
		} else if m2 > 0 && argc-m2 > m1 {
			copy(regs[m1+o+1:], argv[m1+o:m1+o+m2])
		}
		ci.PC += o * 3
	}

	kwPos := length + b2i(kd)
	blkPos := kwPos + 1
	regs[blkPos] = blk
	if kd {
		if kdict == nil {
			kdict = vm.NewHash(0)
		}
		regs[kwPos] = FromObject(kdict)
		ci.NK = packedArgs
	}
	ci.N = uint8(length)
	ci.Block = blk.AsProc()
	if ci.NRegs < blkPos+1 {
		ci.NRegs = blkPos + 1
	}

	if nlocals-blkPos-1 > 0 {
		clear(regs[blkPos+1 : nlocals])
	}
	return nil
}
