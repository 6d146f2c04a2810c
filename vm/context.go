package vm

// ---------------------------------------------------------------------------
// CallInfo: one activation record
// ---------------------------------------------------------------------------

// CallerType records how a frame was entered, which decides where an unwind
// stops and hands control back to Go.
type CallerType uint8

const (
	// CallerInVMLoop frames were pushed by an instruction and return into the
	// same run loop.
	CallerInVMLoop CallerType = iota
	// CallerVMExecuted frames were entered through Exec.
	CallerVMExecuted
	// CallerMethodCalled frames were entered through a host-level Send.
	CallerMethodCalled
)

func (t CallerType) String() string {
	switch t {
	case CallerVMExecuted:
		return "vm-executed"
	case CallerMethodCalled:
		return "method-called"
	}
	return "in-vm-loop"
}

// packedArgs is the N/NK value meaning "passed as a single Array/Hash".
const packedArgs = 15

// CallInfo describes one frame. Register i of the frame lives at
// stack[StackOff+i]; R[0] is self.
type CallInfo struct {
	StackOff    int
	NRegs       int
	N           uint8 // positional argument count, or packedArgs
	NK          uint8 // keyword pair count, or packedArgs
	Mid         Symbol
	Proc        *RProc // nil for native methods without a proc
	PC          int    // offset of the next instruction
	TargetClass *RClass
	Env         *REnv
	Block       *RProc // block passed to this call
	CallerType  CallerType
}

// IsNative reports whether the frame runs Go code.
func (ci *CallInfo) IsNative() bool {
	return ci.Proc == nil || ci.Proc.IsNative()
}

// argSlots returns the registers used by positional arguments.
func (ci *CallInfo) argSlots() int {
	if ci.N == packedArgs {
		return 1
	}
	return int(ci.N)
}

// kwSlots returns the registers used by keyword arguments.
func (ci *CallInfo) kwSlots() int {
	if ci.NK == packedArgs {
		return 1
	}
	return int(ci.NK) * 2
}

// BlockIndex is the register holding the block argument.
func (ci *CallInfo) BlockIndex() int {
	return 1 + ci.argSlots() + ci.kwSlots()
}

// KeywordIndex is the register holding the keyword hash, or -1.
func (ci *CallInfo) KeywordIndex() int {
	if ci.NK == 0 {
		return -1
	}
	return 1 + ci.argSlots()
}

func (ci *CallInfo) reset() {
	*ci = CallInfo{}
}

// ---------------------------------------------------------------------------
// Context: register stack plus call-info stack
// ---------------------------------------------------------------------------

// Context is the single execution context of a VM. It owns one growable
// register stack and the CallInfo stack above it. Frames address registers
// by index so growth never invalidates a frame.
type Context struct {
	stack    []Value
	cis      []*CallInfo
	depth    int
	maxDepth int
}

func newContext(stackSize, ciSize, maxDepth int) *Context {
	if stackSize < 16 {
		stackSize = 16
	}
	if ciSize < 4 {
		ciSize = 4
	}
	c := &Context{
		stack:    make([]Value, stackSize),
		cis:      make([]*CallInfo, ciSize),
		maxDepth: maxDepth,
	}
	for i := range c.cis {
		c.cis[i] = &CallInfo{}
	}
	return c
}

// Depth returns the number of live frames.
func (c *Context) Depth() int { return c.depth }

// CI returns the innermost frame, or nil when the stack is empty.
func (c *Context) CI() *CallInfo {
	if c.depth == 0 {
		return nil
	}
	return c.cis[c.depth-1]
}

// CallInfoAt returns frame i counting from the outermost.
func (c *Context) CallInfoAt(i int) *CallInfo {
	if i < 0 || i >= c.depth {
		return nil
	}
	return c.cis[i]
}

// Register reads register i of frame ci.
func (c *Context) Register(ci *CallInfo, i int) Value {
	return c.stack[ci.StackOff+i]
}

// SetRegister writes register i of frame ci.
func (c *Context) SetRegister(ci *CallInfo, i int, v Value) {
	c.stack[ci.StackOff+i] = v
}

// nextStackOff is where a frame pushed from Go places its registers.
func (c *Context) nextStackOff() int {
	ci := c.CI()
	if ci == nil {
		return 0
	}
	return ci.StackOff + ci.NRegs
}

// PushCallStack pushes a cleared CallInfo. It reports false when the
// maximum depth would be exceeded.
func (c *Context) PushCallStack() (*CallInfo, bool) {
	if c.maxDepth > 0 && c.depth >= c.maxDepth {
		return nil, false
	}
	if c.depth == len(c.cis) {
		grown := make([]*CallInfo, len(c.cis)*2)
		copy(grown, c.cis)
		for i := len(c.cis); i < len(grown); i++ {
			grown[i] = &CallInfo{}
		}
		c.cis = grown
	}
	ci := c.cis[c.depth]
	ci.reset()
	c.depth++
	return ci, true
}

// PopCallStack removes the innermost frame, detaching its environment so
// escaped closures keep their values. The returned CallInfo is valid until
// the next push.
func (c *Context) PopCallStack() *CallInfo {
	if c.depth == 0 {
		return nil
	}
	c.depth--
	ci := c.cis[c.depth]
	if ci.Env != nil {
		ci.Env.detach()
	}
	return ci
}

// ExtendStack grows the register stack so that index room-1 is valid.
func (c *Context) ExtendStack(room int) {
	if room <= len(c.stack) {
		return
	}
	size := len(c.stack) * 2
	for size < room {
		size *= 2
	}
	grown := make([]Value, size)
	copy(grown, c.stack)
	c.stack = grown
}

// ClearStack sets count registers starting at offset to nil.
func (c *Context) ClearStack(offset, count int) {
	if count <= 0 {
		return
	}
	clear(c.stack[offset : offset+count])
}

// envFor returns the environment of ci, creating it on first capture.
func (c *Context) envFor(ci *CallInfo) *REnv {
	if ci.Env != nil {
		return ci.Env
	}
	n := 1
	if ci.Proc != nil && ci.Proc.Irep != nil {
		n = int(ci.Proc.Irep.NumLocals)
	}
	idx := -1
	for i := c.depth - 1; i >= 0; i-- {
		if c.cis[i] == ci {
			idx = i
			break
		}
	}
	ci.Env = &REnv{
		ctx:         c,
		base:        ci.StackOff,
		n:           n,
		onStack:     true,
		CIIndex:     idx,
		Mid:         ci.Mid,
		TargetClass: ci.TargetClass,
	}
	return ci.Env
}

// ---------------------------------------------------------------------------
// Argument layout of the current frame
// ---------------------------------------------------------------------------

// GetRestArg returns the positional arguments of ci, unpacking a packed
// argument array.
func (c *Context) GetRestArg(ci *CallInfo) []Value {
	if ci.N == packedArgs {
		if a := c.Register(ci, 1).AsArray(); a != nil {
			return append([]Value(nil), a.Values()...)
		}
		return nil
	}
	out := make([]Value, ci.N)
	copy(out, c.stack[ci.StackOff+1:ci.StackOff+1+int(ci.N)])
	return out
}

// GetKeywordArgs returns the packed keyword hash of ci, or nil.
func (c *Context) GetKeywordArgs(ci *CallInfo) *RHash {
	if ci.NK != packedArgs {
		return nil
	}
	return c.Register(ci, ci.KeywordIndex()).AsHash()
}

// GetBlockArg returns the block register of ci.
func (c *Context) GetBlockArg(ci *CallInfo) Value {
	return c.Register(ci, ci.BlockIndex())
}
