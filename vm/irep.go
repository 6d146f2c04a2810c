package vm

import (
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Irep: an immutable compiled code unit
// ---------------------------------------------------------------------------

// CatchType distinguishes rescue handlers from ensure handlers.
type CatchType uint8

const (
	CatchRescue CatchType = iota
	CatchEnsure
)

func (t CatchType) String() string {
	if t == CatchEnsure {
		return "ensure"
	}
	return "rescue"
}

// catchFilter selects which handlers an unwind considers.
type catchFilter uint8

const (
	filterRescue catchFilter = 1 << iota
	filterEnsure
	filterAll = filterRescue | filterEnsure
)

func (f catchFilter) matches(t CatchType) bool {
	if t == CatchEnsure {
		return f&filterEnsure != 0
	}
	return f&filterRescue != 0
}

// CatchHandler covers the instruction range (Begin, End] measured by the
// position after the faulting instruction, and transfers control to Target.
type CatchHandler struct {
	Type   CatchType
	Begin  uint32
	End    uint32
	Target uint32
}

// covers reports whether pc (the offset after the current instruction)
// falls inside the handler's range.
func (h CatchHandler) covers(pc int) bool {
	return uint32(pc) > h.Begin && uint32(pc) <= h.End
}

// Irep holds one compiled method, block or class body. It is immutable
// once built and may be shared by many procs.
type Irep struct {
	NumLocals  uint16 // self + arguments + locals
	NumRegs    uint16 // total registers including temporaries
	ISeq       []byte
	Pool       []Value // literal strings, floats and large integers
	Syms       []Symbol
	Reps       []*Irep
	Handlers   []CatchHandler
	LocalNames []Symbol
	Filename   string
}

// findHandler returns the innermost handler of the filtered types covering
// pc, searching in reverse declaration order.
func (irep *Irep) findHandler(pc int, filter catchFilter) (CatchHandler, bool) {
	for i := len(irep.Handlers) - 1; i >= 0; i-- {
		h := irep.Handlers[i]
		if filter.matches(h.Type) && h.covers(pc) {
			return h, true
		}
	}
	return CatchHandler{}, false
}

// ---------------------------------------------------------------------------
// IrepBuilder: assembling instruction sequences
// ---------------------------------------------------------------------------

// IrepBuilder assembles an Irep instruction by instruction. Register and
// pool operands wider than one byte are encoded with EXT prefixes.
type IrepBuilder struct {
	irep   *Irep
	st     *SymbolTable
	labels []*Label
	symIdx map[Symbol]int
	errs   []error
}

// Label marks a jump target whose position may not be known yet.
type Label struct {
	resolved bool
	position int
	refs     []int // offsets of 16-bit operands awaiting this label
}

// NewIrepBuilder starts an irep with nlocals local slots (including self)
// and nregs registers in total.
func NewIrepBuilder(st *SymbolTable, nlocals, nregs int) *IrepBuilder {
	if nregs < nlocals {
		nregs = nlocals
	}
	return &IrepBuilder{
		irep:   &Irep{NumLocals: uint16(nlocals), NumRegs: uint16(nregs)},
		st:     st,
		symIdx: make(map[Symbol]int),
	}
}

// Pos returns the current instruction offset.
func (b *IrepBuilder) Pos() int { return len(b.irep.ISeq) }

// SetFilename records the source name used in backtraces.
func (b *IrepBuilder) SetFilename(name string) *IrepBuilder {
	b.irep.Filename = name
	return b
}

// SetLocalNames records local variable names for disassembly.
func (b *IrepBuilder) SetLocalNames(names ...string) *IrepBuilder {
	for _, n := range names {
		b.irep.LocalNames = append(b.irep.LocalNames, b.st.Intern(n))
	}
	return b
}

// Sym returns the index of name in the symbol list, adding it if needed.
func (b *IrepBuilder) Sym(name string) int {
	id := b.st.Intern(name)
	if i, ok := b.symIdx[id]; ok {
		return i
	}
	i := len(b.irep.Syms)
	b.irep.Syms = append(b.irep.Syms, id)
	b.symIdx[id] = i
	return i
}

// Lit appends a literal to the pool and returns its index.
func (b *IrepBuilder) Lit(v Value) int {
	b.irep.Pool = append(b.irep.Pool, v)
	return len(b.irep.Pool) - 1
}

// Child appends a nested irep and returns its index.
func (b *IrepBuilder) Child(child *Irep) int {
	b.irep.Reps = append(b.irep.Reps, child)
	return len(b.irep.Reps) - 1
}

// Handler appends a catch handler covering (begin, end] of the sequence.
func (b *IrepBuilder) Handler(t CatchType, begin, end, target int) {
	b.irep.Handlers = append(b.irep.Handlers, CatchHandler{
		Type: t, Begin: uint32(begin), End: uint32(end), Target: uint32(target),
	})
}

// Build validates and returns the irep.
func (b *IrepBuilder) Build() (*Irep, error) {
	for _, l := range b.labels {
		if !l.resolved && len(l.refs) > 0 {
			return nil, fmt.Errorf("irep: unresolved label with %d references", len(l.refs))
		}
	}
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	return b.irep, nil
}

// MustBuild is Build for statically known code.
func (b *IrepBuilder) MustBuild() *Irep {
	irep, err := b.Build()
	if err != nil {
		panic(err)
	}
	return irep
}

func (b *IrepBuilder) emitByte(v byte) {
	b.irep.ISeq = append(b.irep.ISeq, v)
}

func (b *IrepBuilder) emitS(v uint32) {
	b.irep.ISeq = append(b.irep.ISeq, byte(v>>8), byte(v))
}

// Emit appends op with its operands, adding an EXT prefix when a or b do
// not fit in a byte. Operand count must match the opcode's shape.
func (b *IrepBuilder) Emit(op Opcode, operands ...int) *IrepBuilder {
	shape := op.Info().Shape
	want := [...]int{ShapeZ: 0, ShapeB: 1, ShapeBB: 2, ShapeBBB: 3, ShapeBS: 2, ShapeBSS: 3, ShapeS: 1, ShapeW: 1}[shape]
	if len(operands) != want {
		b.errs = append(b.errs, fmt.Errorf("irep: %s takes %d operands, got %d", op, want, len(operands)))
		return b
	}
	wideA := len(operands) > 0 && operands[0] > math.MaxUint8 && shape != ShapeS && shape != ShapeW
	wideB := len(operands) > 1 && operands[1] > math.MaxUint8 && (shape == ShapeBB || shape == ShapeBBB)
	switch {
	case wideA && wideB:
		b.emitByte(byte(OpExt3))
	case wideA:
		b.emitByte(byte(OpExt1))
	case wideB:
		b.emitByte(byte(OpExt2))
	}
	b.emitByte(byte(op))
	emitA := func(v int) {
		if wideA {
			b.emitS(uint32(v))
		} else {
			b.emitByte(byte(v))
		}
	}
	switch shape {
	case ShapeB:
		emitA(operands[0])
	case ShapeBB:
		emitA(operands[0])
		if wideB {
			b.emitS(uint32(operands[1]))
		} else {
			b.emitByte(byte(operands[1]))
		}
	case ShapeBBB:
		emitA(operands[0])
		if wideB {
			b.emitS(uint32(operands[1]))
		} else {
			b.emitByte(byte(operands[1]))
		}
		b.emitByte(byte(operands[2]))
	case ShapeBS:
		emitA(operands[0])
		b.emitS(uint32(operands[1]))
	case ShapeBSS:
		emitA(operands[0])
		b.emitS(uint32(operands[1]))
		b.emitS(uint32(operands[2]))
	case ShapeS:
		b.emitS(uint32(operands[0]))
	case ShapeW:
		v := uint32(operands[0])
		b.irep.ISeq = append(b.irep.ISeq, byte(v>>16), byte(v>>8), byte(v))
	}
	return b
}

// ---------------------------------------------------------------------------
// Convenience emitters
// ---------------------------------------------------------------------------

// LoadInt loads an integer using the smallest suitable encoding.
func (b *IrepBuilder) LoadInt(a int, n int64) *IrepBuilder {
	switch {
	case n == -1:
		return b.Emit(OpLoadIM1, a)
	case n >= 0 && n <= 7:
		return b.Emit(OpLoadI0+Opcode(n), a)
	case n > 7 && n <= math.MaxUint8:
		return b.Emit(OpLoadI, a, int(n))
	case n < 0 && n >= -math.MaxUint8:
		return b.Emit(OpLoadINeg, a, int(-n))
	case n >= math.MinInt16 && n <= math.MaxInt16:
		return b.Emit(OpLoadI16, a, int(uint16(int16(n))))
	case n >= math.MinInt32 && n <= math.MaxInt32:
		u := uint32(int32(n))
		return b.Emit(OpLoadI32, a, int(u>>16), int(u&0xffff))
	}
	return b.Emit(OpLoadL, a, b.Lit(FromInt(n)))
}

// LoadSym loads a symbol literal.
func (b *IrepBuilder) LoadSym(a int, name string) *IrepBuilder {
	return b.Emit(OpLoadSym, a, b.Sym(name))
}

// LoadString loads a fresh copy of a string literal.
func (b *IrepBuilder) LoadString(a int, s string) *IrepBuilder {
	return b.Emit(OpString, a, b.Lit(StringLiteral([]byte(s))))
}

// StringLiteral returns a pool entry for a string literal. OP_STRING
// copies it into a String instance at run time.
func StringLiteral(b []byte) Value {
	return FromObject(newRString(nil, b))
}

// LoadFloat loads a float literal.
func (b *IrepBuilder) LoadFloat(a int, f float64) *IrepBuilder {
	return b.Emit(OpLoadL, a, b.Lit(FromFloat64(f)))
}

// Send emits SEND (or SENDB when withBlock) of name with argc positional
// arguments and nk keyword pairs.
func (b *IrepBuilder) Send(a int, name string, argc, nk int, withBlock bool) *IrepBuilder {
	op := OpSend
	if withBlock {
		op = OpSendB
	}
	return b.Emit(op, a, b.Sym(name), argc|nk<<4)
}

// SSend emits a self send.
func (b *IrepBuilder) SSend(a int, name string, argc, nk int, withBlock bool) *IrepBuilder {
	op := OpSSend
	if withBlock {
		op = OpSSendB
	}
	return b.Emit(op, a, b.Sym(name), argc|nk<<4)
}

// Enter emits the argument binding instruction.
func (b *IrepBuilder) Enter(spec Aspec) *IrepBuilder {
	return b.Emit(OpEnter, int(spec.Encode()))
}

// ---------------------------------------------------------------------------
// Labels and jumps
// ---------------------------------------------------------------------------

// NewLabel creates an unresolved label.
func (b *IrepBuilder) NewLabel() *Label {
	l := &Label{}
	b.labels = append(b.labels, l)
	return l
}

// Mark resolves l to the current position and patches pending jumps.
func (b *IrepBuilder) Mark(l *Label) *IrepBuilder {
	l.resolved = true
	l.position = b.Pos()
	for _, ref := range l.refs {
		b.patch(ref, l.position)
	}
	l.refs = nil
	return b
}

// patch writes the offset from the end of the operand at ref to target.
func (b *IrepBuilder) patch(ref, target int) {
	off := target - (ref + 2)
	if off < math.MinInt16 || off > math.MaxInt16 {
		b.errs = append(b.errs, fmt.Errorf("irep: jump offset %d out of range", off))
		return
	}
	u := uint16(int16(off))
	b.irep.ISeq[ref] = byte(u >> 8)
	b.irep.ISeq[ref+1] = byte(u)
}

// Jump emits JMP or JMPUW to l.
func (b *IrepBuilder) Jump(op Opcode, l *Label) *IrepBuilder {
	b.emitByte(byte(op))
	b.jumpOperand(l)
	return b
}

// JumpIf emits JMPIF, JMPNOT or JMPNIL on register a to l.
func (b *IrepBuilder) JumpIf(op Opcode, a int, l *Label) *IrepBuilder {
	if a > math.MaxUint8 {
		b.emitByte(byte(OpExt1))
		b.emitByte(byte(op))
		b.emitS(uint32(a))
	} else {
		b.emitByte(byte(op))
		b.emitByte(byte(a))
	}
	b.jumpOperand(l)
	return b
}

func (b *IrepBuilder) jumpOperand(l *Label) {
	ref := b.Pos()
	b.emitS(0)
	if l.resolved {
		b.patch(ref, l.position)
		return
	}
	l.refs = append(l.refs, ref)
}

// JumpTable emits one 3-byte JMP per label, the layout ENTER skips into
// when optional arguments are supplied.
func (b *IrepBuilder) JumpTable(labels ...*Label) *IrepBuilder {
	for _, l := range labels {
		b.Jump(OpJmp, l)
	}
	return b
}
