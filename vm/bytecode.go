package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single register-machine instruction. Operands are
// register indexes (R[x]), pool indexes (Pool[x]), symbol indexes (Syms[x])
// or child irep indexes (Irep[x]) of the executing irep.
type Opcode byte

const (
	OpNop      Opcode = iota // no operation
	OpMove                   // R[a] = R[b]
	OpLoadL                  // R[a] = Pool[b]
	OpLoadI                  // R[a] = b
	OpLoadINeg               // R[a] = -b
	OpLoadIM1                // R[a] = -1
	OpLoadI0                 // R[a] = 0
	OpLoadI1                 // R[a] = 1
	OpLoadI2                 // R[a] = 2
	OpLoadI3                 // R[a] = 3
	OpLoadI4                 // R[a] = 4
	OpLoadI5                 // R[a] = 5
	OpLoadI6                 // R[a] = 6
	OpLoadI7                 // R[a] = 7
	OpLoadI16                // R[a] = int16(b)
	OpLoadI32                // R[a] = int32(b<<16 + c)
	OpLoadSym                // R[a] = Syms[b]
	OpLoadNil                // R[a] = nil
	OpLoadSelf               // R[a] = self
	OpLoadT                  // R[a] = true
	OpLoadF                  // R[a] = false
	OpGetGV                  // R[a] = $Syms[b]
	OpSetGV                  // $Syms[b] = R[a]
	OpGetSV                  // R[a] = special Syms[b]
	OpSetSV                  // special Syms[b] = R[a]
	OpGetIV                  // R[a] = @Syms[b]
	OpSetIV                  // @Syms[b] = R[a]
	OpGetCV                  // R[a] = @@Syms[b]
	OpSetCV                  // @@Syms[b] = R[a]
	OpGetConst               // R[a] = constget(Syms[b])
	OpSetConst               // constset(Syms[b], R[a])
	OpGetMCnst               // R[a] = R[a]::Syms[b]
	OpSetMCnst               // R[a+1]::Syms[b] = R[a]
	OpGetUpVar               // R[a] = uvget(b, c)
	OpSetUpVar               // uvset(b, c, R[a])
	OpGetIdx                 // R[a] = R[a][R[a+1]]
	OpSetIdx                 // R[a][R[a+1]] = R[a+2]
	OpJmp                    // pc += a
	OpJmpIf                  // if R[a] then pc += b
	OpJmpNot                 // unless R[a] then pc += b
	OpJmpNil                 // if R[a] == nil then pc += b
	OpJmpUW                  // unwind ensure blocks, then pc += a
	OpExcept                 // R[a] = pending exception
	OpRescue                 // R[b] = R[a].kind_of?(R[b])
	OpRaiseIf                // raise or resume R[a] if set
	OpSSend                  // R[a] = self.send(Syms[b], R[a+1]..., k: R[..]) c = n|k<<4
	OpSSendB                 // R[a] = self.send(Syms[b], R[a+1]..., &R[..])
	OpSend                   // R[a] = R[a].send(Syms[b], R[a+1]...) c = n|k<<4
	OpSendB                  // R[a] = R[a].send(Syms[b], R[a+1]..., &R[..])
	OpCall                   // self.call(*, **, &) replacing the frame
	OpSuper                  // R[a] = super(R[a+1]...) b = n|k<<4
	OpArgAry                 // R[a] = argument array (b = m1:6 r:1 m2:5 d:1 lv:4)
	OpEnter                  // bind arguments per aspec a
	OpKeyP                   // R[a] = kdict.key?(Syms[b])
	OpKeyEnd                 // raise unless kdict.empty?
	OpKArg                   // R[a] = kdict.delete(Syms[b])
	OpReturn                 // return R[a]
	OpReturnBlk              // return R[a] from the enclosing method
	OpBreak                  // break R[a]
	OpBlkPush                // R[a] = block (b = m1:6 r:1 m2:5 d:1 lv:4)
	OpAdd                    // R[a] = R[a] + R[a+1]
	OpAddI                   // R[a] = R[a] + b
	OpSub                    // R[a] = R[a] - R[a+1]
	OpSubI                   // R[a] = R[a] - b
	OpMul                    // R[a] = R[a] * R[a+1]
	OpDiv                    // R[a] = R[a] / R[a+1]
	OpEQ                     // R[a] = R[a] == R[a+1]
	OpLT                     // R[a] = R[a] < R[a+1]
	OpLE                     // R[a] = R[a] <= R[a+1]
	OpGT                     // R[a] = R[a] > R[a+1]
	OpGE                     // R[a] = R[a] >= R[a+1]
	OpArray                  // R[a] = [R[a], ..., R[a+b-1]]
	OpArray2                 // R[a] = [R[b], ..., R[b+c-1]]
	OpAryCat                 // R[a] = R[a] + *R[a+1]
	OpAryPush                // R[a].push(R[a+1], ..., R[a+b])
	OpAryDup                 // R[a] = R[a].dup
	OpARef                   // R[a] = R[b][c]
	OpASet                   // R[b][c] = R[a]
	OpAPost                  // *R[a], R[a+1]..R[a+c] = R[a][b..]
	OpIntern                 // R[a] = R[a].to_sym
	OpSymbol                 // R[a] = Pool[b].to_sym
	OpString                 // R[a] = Pool[b].dup
	OpStrCat                 // R[a] << R[a+1].to_s
	OpHash                   // R[a] = {R[a] => R[a+1], ...} (b pairs)
	OpHashAdd                // R[a].merge!(R[a+1] => R[a+2], ...) (b pairs)
	OpHashCat                // R[a].merge!(R[a+1])
	OpLambda                 // R[a] = lambda(Irep[b])
	OpBlock                  // R[a] = block(Irep[b])
	OpMethod                 // R[a] = method body(Irep[b])
	OpRangeInc               // R[a] = R[a]..R[a+1]
	OpRangeExc               // R[a] = R[a]...R[a+1]
	OpOClass                 // R[a] = Object
	OpClass                  // R[a] = class R[a]::Syms[b] < R[a+1]
	OpModule                 // R[a] = module R[a]::Syms[b]
	OpExec                   // R[a] = run Irep[b] with self = R[a]
	OpDef                    // R[a].define_method(Syms[b], R[a+1]); R[a] = :Syms[b]
	OpAlias                  // alias_method(target, Syms[a], Syms[b])
	OpUndef                  // undef_method(target, Syms[a])
	OpSClass                 // R[a] = R[a].singleton_class
	OpTClass                 // R[a] = target class
	OpDebug                  // debug hook a, b, c
	OpErr                    // raise LocalJumpError, Pool[a]
	OpExt1                   // next instruction: 16-bit a
	OpExt2                   // next instruction: 16-bit b
	OpExt3                   // next instruction: 16-bit a and b
	OpStop                   // stop the VM

	numOpcodes
)

// OperandShape describes how an instruction's operands are encoded.
// B is one byte, S two bytes big-endian, W three bytes big-endian.
type OperandShape uint8

const (
	ShapeZ OperandShape = iota
	ShapeB
	ShapeBB
	ShapeBBB
	ShapeBS
	ShapeBSS
	ShapeS
	ShapeW
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name  string       // disassembler mnemonic
	Shape OperandShape // operand encoding
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = [numOpcodes]OpcodeInfo{
	OpNop:       {"NOP", ShapeZ},
	OpMove:      {"MOVE", ShapeBB},
	OpLoadL:     {"LOADL", ShapeBB},
	OpLoadI:     {"LOADI", ShapeBB},
	OpLoadINeg:  {"LOADINEG", ShapeBB},
	OpLoadIM1:   {"LOADI__1", ShapeB},
	OpLoadI0:    {"LOADI_0", ShapeB},
	OpLoadI1:    {"LOADI_1", ShapeB},
	OpLoadI2:    {"LOADI_2", ShapeB},
	OpLoadI3:    {"LOADI_3", ShapeB},
	OpLoadI4:    {"LOADI_4", ShapeB},
	OpLoadI5:    {"LOADI_5", ShapeB},
	OpLoadI6:    {"LOADI_6", ShapeB},
	OpLoadI7:    {"LOADI_7", ShapeB},
	OpLoadI16:   {"LOADI16", ShapeBS},
	OpLoadI32:   {"LOADI32", ShapeBSS},
	OpLoadSym:   {"LOADSYM", ShapeBB},
	OpLoadNil:   {"LOADNIL", ShapeB},
	OpLoadSelf:  {"LOADSELF", ShapeB},
	OpLoadT:     {"LOADT", ShapeB},
	OpLoadF:     {"LOADF", ShapeB},
	OpGetGV:     {"GETGV", ShapeBB},
	OpSetGV:     {"SETGV", ShapeBB},
	OpGetSV:     {"GETSV", ShapeBB},
	OpSetSV:     {"SETSV", ShapeBB},
	OpGetIV:     {"GETIV", ShapeBB},
	OpSetIV:     {"SETIV", ShapeBB},
	OpGetCV:     {"GETCV", ShapeBB},
	OpSetCV:     {"SETCV", ShapeBB},
	OpGetConst:  {"GETCONST", ShapeBB},
	OpSetConst:  {"SETCONST", ShapeBB},
	OpGetMCnst:  {"GETMCNST", ShapeBB},
	OpSetMCnst:  {"SETMCNST", ShapeBB},
	OpGetUpVar:  {"GETUPVAR", ShapeBBB},
	OpSetUpVar:  {"SETUPVAR", ShapeBBB},
	OpGetIdx:    {"GETIDX", ShapeB},
	OpSetIdx:    {"SETIDX", ShapeB},
	OpJmp:       {"JMP", ShapeS},
	OpJmpIf:     {"JMPIF", ShapeBS},
	OpJmpNot:    {"JMPNOT", ShapeBS},
	OpJmpNil:    {"JMPNIL", ShapeBS},
	OpJmpUW:     {"JMPUW", ShapeS},
	OpExcept:    {"EXCEPT", ShapeB},
	OpRescue:    {"RESCUE", ShapeBB},
	OpRaiseIf:   {"RAISEIF", ShapeB},
	OpSSend:     {"SSEND", ShapeBBB},
	OpSSendB:    {"SSENDB", ShapeBBB},
	OpSend:      {"SEND", ShapeBBB},
	OpSendB:     {"SENDB", ShapeBBB},
	OpCall:      {"CALL", ShapeZ},
	OpSuper:     {"SUPER", ShapeBB},
	OpArgAry:    {"ARGARY", ShapeBS},
	OpEnter:     {"ENTER", ShapeW},
	OpKeyP:      {"KEY_P", ShapeBB},
	OpKeyEnd:    {"KEYEND", ShapeZ},
	OpKArg:      {"KARG", ShapeBB},
	OpReturn:    {"RETURN", ShapeB},
	OpReturnBlk: {"RETURN_BLK", ShapeB},
	OpBreak:     {"BREAK", ShapeB},
	OpBlkPush:   {"BLKPUSH", ShapeBS},
	OpAdd:       {"ADD", ShapeB},
	OpAddI:      {"ADDI", ShapeBB},
	OpSub:       {"SUB", ShapeB},
	OpSubI:      {"SUBI", ShapeBB},
	OpMul:       {"MUL", ShapeB},
	OpDiv:       {"DIV", ShapeB},
	OpEQ:        {"EQ", ShapeB},
	OpLT:        {"LT", ShapeB},
	OpLE:        {"LE", ShapeB},
	OpGT:        {"GT", ShapeB},
	OpGE:        {"GE", ShapeB},
	OpArray:     {"ARRAY", ShapeBB},
	OpArray2:    {"ARRAY2", ShapeBBB},
	OpAryCat:    {"ARYCAT", ShapeB},
	OpAryPush:   {"ARYPUSH", ShapeBB},
	OpAryDup:    {"ARYDUP", ShapeB},
	OpARef:      {"AREF", ShapeBBB},
	OpASet:      {"ASET", ShapeBBB},
	OpAPost:     {"APOST", ShapeBBB},
	OpIntern:    {"INTERN", ShapeB},
	OpSymbol:    {"SYMBOL", ShapeBB},
	OpString:    {"STRING", ShapeBB},
	OpStrCat:    {"STRCAT", ShapeB},
	OpHash:      {"HASH", ShapeBB},
	OpHashAdd:   {"HASHADD", ShapeBB},
	OpHashCat:   {"HASHCAT", ShapeB},
	OpLambda:    {"LAMBDA", ShapeBB},
	OpBlock:     {"BLOCK", ShapeBB},
	OpMethod:    {"METHOD", ShapeBB},
	OpRangeInc:  {"RANGE_INC", ShapeB},
	OpRangeExc:  {"RANGE_EXC", ShapeB},
	OpOClass:    {"OCLASS", ShapeB},
	OpClass:     {"CLASS", ShapeBB},
	OpModule:    {"MODULE", ShapeBB},
	OpExec:      {"EXEC", ShapeBB},
	OpDef:       {"DEF", ShapeBB},
	OpAlias:     {"ALIAS", ShapeBB},
	OpUndef:     {"UNDEF", ShapeB},
	OpSClass:    {"SCLASS", ShapeB},
	OpTClass:    {"TCLASS", ShapeB},
	OpDebug:     {"DEBUG", ShapeBBB},
	OpErr:       {"ERR", ShapeB},
	OpExt1:      {"EXT1", ShapeZ},
	OpExt2:      {"EXT2", ShapeZ},
	OpExt3:      {"EXT3", ShapeZ},
	OpStop:      {"STOP", ShapeZ},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if op < numOpcodes {
		return opcodeTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op)), Shape: ShapeZ}
}

// Name returns the mnemonic for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

// Instruction is a decoded instruction.
type Instruction struct {
	Op      Opcode
	A, B, C uint32
	Pos     int // offset of the opcode byte (or its EXT prefix)
	Next    int // offset of the following instruction
}

// decodeAt decodes the instruction at pc, folding any EXT prefix into it.
func decodeAt(iseq []byte, pc int) Instruction {
	ins := Instruction{Pos: pc}
	ext := 0
	for {
		op := Opcode(iseq[pc])
		pc++
		switch op {
		case OpExt1:
			ext = 1
			continue
		case OpExt2:
			ext = 2
			continue
		case OpExt3:
			ext = 3
			continue
		}
		ins.Op = op
		break
	}
	readA := func() uint32 {
		if ext&1 != 0 {
			v := uint32(iseq[pc])<<8 | uint32(iseq[pc+1])
			pc += 2
			return v
		}
		v := uint32(iseq[pc])
		pc++
		return v
	}
	readB := func() uint32 {
		if ext&2 != 0 {
			v := uint32(iseq[pc])<<8 | uint32(iseq[pc+1])
			pc += 2
			return v
		}
		v := uint32(iseq[pc])
		pc++
		return v
	}
	readS := func() uint32 {
		v := uint32(iseq[pc])<<8 | uint32(iseq[pc+1])
		pc += 2
		return v
	}
	switch ins.Op.Info().Shape {
	case ShapeB:
		ins.A = readA()
	case ShapeBB:
		ins.A = readA()
		ins.B = readB()
	case ShapeBBB:
		ins.A = readA()
		ins.B = readB()
		ins.C = uint32(iseq[pc])
		pc++
	case ShapeBS:
		ins.A = readA()
		ins.B = readS()
	case ShapeBSS:
		ins.A = readA()
		ins.B = readS()
		ins.C = readS()
	case ShapeS:
		ins.A = readS()
	case ShapeW:
		ins.A = uint32(iseq[pc])<<16 | uint32(iseq[pc+1])<<8 | uint32(iseq[pc+2])
		pc += 3
	}
	ins.Next = pc
	return ins
}

// ---------------------------------------------------------------------------
// Argument specifications
// ---------------------------------------------------------------------------

// Aspec is the decoded ENTER argument specification.
type Aspec struct {
	Req   int  // leading required
	Opt   int  // optional
	Rest  bool // *rest
	Post  int  // trailing required
	Key   int  // keyword parameters
	KDict bool // **kwrest
	Block bool // &block
}

// DecodeAspec unpacks the 23-bit ENTER operand (m1:5 o:5 r:1 m2:5 k:5 d:1 b:1).
func DecodeAspec(a uint32) Aspec {
	return Aspec{
		Req:   int((a >> 18) & 0x1f),
		Opt:   int((a >> 13) & 0x1f),
		Rest:  (a>>12)&1 != 0,
		Post:  int((a >> 7) & 0x1f),
		Key:   int((a >> 2) & 0x1f),
		KDict: (a>>1)&1 != 0,
		Block: a&1 != 0,
	}
}

// Encode packs the specification into an ENTER operand.
func (s Aspec) Encode() uint32 {
	a := uint32(s.Req&0x1f)<<18 | uint32(s.Opt&0x1f)<<13 | uint32(s.Post&0x1f)<<7 | uint32(s.Key&0x1f)<<2
	if s.Rest {
		a |= 1 << 12
	}
	if s.KDict {
		a |= 1 << 1
	}
	if s.Block {
		a |= 1
	}
	return a
}

// ArgSpec16 is the BLKPUSH/ARGARY operand (m1:6 r:1 m2:5 d:1 lv:4).
type ArgSpec16 struct {
	Req   int
	Rest  bool
	Post  int
	KDict bool
	Level int
}

// DecodeArgSpec16 unpacks a BLKPUSH/ARGARY operand.
func DecodeArgSpec16(b uint32) ArgSpec16 {
	return ArgSpec16{
		Req:   int((b >> 11) & 0x3f),
		Rest:  (b>>10)&1 != 0,
		Post:  int((b >> 5) & 0x1f),
		KDict: (b>>4)&1 != 0,
		Level: int(b & 0xf),
	}
}

// Encode packs the operand.
func (s ArgSpec16) Encode() uint32 {
	b := uint32(s.Req&0x3f)<<11 | uint32(s.Post&0x1f)<<5 | uint32(s.Level&0xf)
	if s.Rest {
		b |= 1 << 10
	}
	if s.KDict {
		b |= 1 << 4
	}
	return b
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders one decoded instruction.
func DisassembleInstruction(irep *Irep, st *SymbolTable, ins Instruction) string {
	info := ins.Op.Info()
	sym := func(i uint32) string {
		if int(i) < len(irep.Syms) && st != nil {
			return ":" + st.Name(irep.Syms[i])
		}
		return fmt.Sprintf("sym#%d", i)
	}
	prefix := fmt.Sprintf("%04d  %-10s", ins.Pos, info.Name)
	switch ins.Op {
	case OpLoadSym, OpGetGV, OpGetSV, OpGetIV, OpGetCV, OpGetConst, OpGetMCnst, OpKeyP, OpKArg:
		return fmt.Sprintf("%s R%d\t%s", prefix, ins.A, sym(ins.B))
	case OpSetGV, OpSetSV, OpSetIV, OpSetCV, OpSetConst, OpSetMCnst:
		return fmt.Sprintf("%s %s\tR%d", prefix, sym(ins.B), ins.A)
	case OpSend, OpSendB, OpSSend, OpSSendB:
		return fmt.Sprintf("%s R%d\t%s\tn=%d k=%d", prefix, ins.A, sym(ins.B), ins.C&0xf, ins.C>>4)
	case OpSuper:
		return fmt.Sprintf("%s R%d\tn=%d k=%d", prefix, ins.A, ins.B&0xf, ins.B>>4)
	case OpJmp, OpJmpUW:
		return fmt.Sprintf("%s %04d", prefix, ins.Next+int(int16(ins.A)))
	case OpJmpIf, OpJmpNot, OpJmpNil:
		return fmt.Sprintf("%s R%d\t%04d", prefix, ins.A, ins.Next+int(int16(ins.B)))
	case OpLoadL, OpString, OpSymbol:
		return fmt.Sprintf("%s R%d\tL[%d]", prefix, ins.A, ins.B)
	case OpLoadI16:
		return fmt.Sprintf("%s R%d\t%d", prefix, ins.A, int16(ins.B))
	case OpLoadI32:
		return fmt.Sprintf("%s R%d\t%d", prefix, ins.A, int32(ins.B<<16|ins.C))
	case OpLoadINeg:
		return fmt.Sprintf("%s R%d\t-%d", prefix, ins.A, ins.B)
	case OpLambda, OpBlock, OpMethod, OpExec:
		return fmt.Sprintf("%s R%d\tI[%d]", prefix, ins.A, ins.B)
	case OpClass, OpModule, OpDef:
		return fmt.Sprintf("%s R%d\t%s", prefix, ins.A, sym(ins.B))
	case OpAlias:
		return fmt.Sprintf("%s %s\t%s", prefix, sym(ins.A), sym(ins.B))
	case OpUndef:
		return fmt.Sprintf("%s %s", prefix, sym(ins.A))
	case OpEnter:
		s := DecodeAspec(ins.A)
		return fmt.Sprintf("%s %d:%d:%d:%d:%d:%d:%d", prefix, s.Req, s.Opt, b2i(s.Rest), s.Post, s.Key, b2i(s.KDict), b2i(s.Block))
	case OpArgAry, OpBlkPush:
		s := DecodeArgSpec16(ins.B)
		return fmt.Sprintf("%s R%d\t%d:%d:%d:%d (%d)", prefix, ins.A, s.Req, b2i(s.Rest), s.Post, b2i(s.KDict), s.Level)
	case OpErr:
		return fmt.Sprintf("%s L[%d]", prefix, ins.A)
	}
	switch info.Shape {
	case ShapeZ:
		return strings.TrimRight(prefix, " ")
	case ShapeB:
		return fmt.Sprintf("%s R%d", prefix, ins.A)
	case ShapeBB:
		return fmt.Sprintf("%s R%d\tR%d", prefix, ins.A, ins.B)
	case ShapeBBB:
		return fmt.Sprintf("%s R%d\t%d\t%d", prefix, ins.A, ins.B, ins.C)
	}
	return fmt.Sprintf("%s %d %d %d", prefix, ins.A, ins.B, ins.C)
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Disassemble renders irep and its children.
func Disassemble(irep *Irep, st *SymbolTable) string {
	var sb strings.Builder
	disassembleInto(&sb, irep, st, 0)
	return sb.String()
}

func disassembleInto(sb *strings.Builder, irep *Irep, st *SymbolTable, depth int) {
	fmt.Fprintf(sb, "irep %d nlocals=%d nregs=%d ilen=%d pool=%d syms=%d reps=%d\n",
		depth, irep.NumLocals, irep.NumRegs, len(irep.ISeq), len(irep.Pool), len(irep.Syms), len(irep.Reps))
	if len(irep.LocalNames) > 0 && st != nil {
		sb.WriteString("local variable names:\n")
		for i, n := range irep.LocalNames {
			fmt.Fprintf(sb, "  R%d:%s\n", i+1, st.Name(n))
		}
	}
	for _, h := range irep.Handlers {
		fmt.Fprintf(sb, "catch type: %-8s begin: %04d end: %04d target: %04d\n", h.Type, h.Begin, h.End, h.Target)
	}
	for pc := 0; pc < len(irep.ISeq); {
		ins := decodeAt(irep.ISeq, pc)
		sb.WriteString(DisassembleInstruction(irep, st, ins))
		sb.WriteByte('\n')
		pc = ins.Next
	}
	for _, child := range irep.Reps {
		sb.WriteByte('\n')
		disassembleInto(sb, child, st, depth+1)
	}
}
