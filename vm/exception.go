package vm

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// RException: language-level exceptions
// ---------------------------------------------------------------------------

// RException is an exception object. It implements error so raised
// exceptions travel through native code as ordinary Go errors.
type RException struct {
	RBasic
	Message   Value
	Backtrace []string
}

func (e *RException) VType() VType { return VTypeException }

// ClassName returns the name of the exception's class.
func (e *RException) ClassName() string {
	c := e.class.Real()
	if c == nil {
		return "Exception"
	}
	return c.Name()
}

// MessageString returns the message text, defaulting to the class name.
func (e *RException) MessageString() string {
	if s := e.Message.AsString(); s != nil {
		return s.String()
	}
	return e.ClassName()
}

// Error implements error.
func (e *RException) Error() string {
	return fmt.Sprintf("%s (%s)", e.MessageString(), e.ClassName())
}

// ---------------------------------------------------------------------------
// RBreak: internal non-local control transfer
// ---------------------------------------------------------------------------

// BreakTag says which control transfer an RBreak carries.
type BreakTag uint8

const (
	// BreakTagBreak leaves the call that received a block.
	BreakTagBreak BreakTag = iota
	// BreakTagReturn returns from a method or lambda frame.
	BreakTagReturn
	// BreakTagJump jumps within a frame across an ensure boundary.
	BreakTagJump
	// BreakTagStop terminates top-level execution.
	BreakTagStop
)

var breakTagNames = [...]string{
	BreakTagBreak:  "break",
	BreakTagReturn: "return",
	BreakTagJump:   "jump",
	BreakTagStop:   "stop",
}

func (t BreakTag) String() string {
	if int(t) < len(breakTagNames) {
		return breakTagNames[t]
	}
	return "unknown"
}

// RBreak carries a pending break, return, jump or stop while ensure blocks
// run. Target is the CallInfo index of the frame that completes the
// transfer. RBreak is never visible to user code.
type RBreak struct {
	RBasic
	Tag    BreakTag
	Target int
	Val    Value
}

func (b *RBreak) VType() VType { return VTypeBreak }

// Error implements error so a break can propagate through native frames.
func (b *RBreak) Error() string {
	return fmt.Sprintf("pending %s to frame %d", b.Tag, b.Target)
}

// ---------------------------------------------------------------------------
// Raising
// ---------------------------------------------------------------------------

// NewException creates an exception of class with the given message.
func (vm *VM) NewException(class *RClass, msg string) *RException {
	return &RException{
		RBasic:  RBasic{class: class},
		Message: vm.NewString(msg),
	}
}

// Raisef builds an exception with a formatted message and records the
// current backtrace. The result is returned as an error.
func (vm *VM) Raisef(class *RClass, format string, args ...any) error {
	exc := vm.NewException(class, fmt.Sprintf(format, args...))
	exc.Backtrace = vm.captureBacktrace()
	return exc
}

// nameError builds a NameError (or subclass) carrying the offending name.
func (vm *VM) nameError(class *RClass, name Symbol, format string, args ...any) error {
	exc := vm.NewException(class, fmt.Sprintf(format, args...))
	IvarSet(exc, vm.Symbols.Intern("@name"), FromSymbol(name))
	exc.Backtrace = vm.captureBacktrace()
	return exc
}

func (vm *VM) frozenError(v Value) error {
	return vm.Raisef(vm.FrozenErrorClass, "can't modify frozen %s", vm.ClassName(vm.ClassOf(v)))
}

func (vm *VM) argumentCountError(given, req, opt int, rest bool) error {
	switch {
	case rest:
		return vm.Raisef(vm.ArgumentErrorClass, "wrong number of arguments (given %d, expected %d+)", given, req)
	case opt > 0:
		return vm.Raisef(vm.ArgumentErrorClass, "wrong number of arguments (given %d, expected %d..%d)", given, req, req+opt)
	}
	return vm.Raisef(vm.ArgumentErrorClass, "wrong number of arguments (given %d, expected %d)", given, req)
}

// checkArgc raises ArgumentError unless min <= len(args) <= max. A negative
// max means unbounded.
func (vm *VM) checkArgc(args []Value, min, max int) error {
	return vm.checkArgcN(len(args), min, max)
}

func (vm *VM) checkArgcN(n, min, max int) error {
	if n < min || (max >= 0 && n > max) {
		if max < 0 {
			return vm.argumentCountError(n, min, 0, true)
		}
		return vm.argumentCountError(n, min, max-min, false)
	}
	return nil
}

// toException converts any error reaching the interpreter into an
// exception. Foreign Go errors become RuntimeError.
func (vm *VM) toException(err error) *RException {
	var exc *RException
	if errors.As(err, &exc) {
		return exc
	}
	e := vm.NewException(vm.RuntimeErrorClass, err.Error())
	e.Backtrace = vm.captureBacktrace()
	return e
}

// ExceptionNew instantiates an exception class the way raise does: through
// new, so user-defined initialize methods run.
func (vm *VM) ExceptionNew(class *RClass, msg Value) (*RException, error) {
	var args []Value
	if !msg.IsNil() {
		args = []Value{msg}
	}
	v, err := vm.SendWithBlock(FromObject(class), SymNew, args, nil, Nil)
	if err != nil {
		return nil, err
	}
	exc := v.AsException()
	if exc == nil {
		return nil, vm.Raisef(vm.TypeErrorClass, "exception class/object expected")
	}
	return exc, nil
}

// ---------------------------------------------------------------------------
// Backtraces
// ---------------------------------------------------------------------------

// captureBacktrace snapshots the call stack, innermost frame first.
func (vm *VM) captureBacktrace() []string {
	c := vm.ctx
	limit := vm.opts.BacktraceLimit
	var bt []string
	for i := c.Depth() - 1; i >= 0; i-- {
		if limit > 0 && len(bt) >= limit {
			break
		}
		ci := c.cis[i]
		var b strings.Builder
		file := "(garnet)"
		if ci.Proc != nil && ci.Proc.Irep != nil && ci.Proc.Irep.Filename != "" {
			file = ci.Proc.Irep.Filename
		}
		b.WriteString(file)
		if ci.Proc == nil || ci.Proc.IsNative() {
			b.WriteString(":in native")
		} else {
			fmt.Fprintf(&b, ":%d", ci.PC)
		}
		switch {
		case ci.Mid != SymNone:
			fmt.Fprintf(&b, ":in '%s'", vm.Symbols.Name(ci.Mid))
		case i == 0:
			b.WriteString(":in '<main>'")
		default:
			b.WriteString(":in 'block'")
		}
		bt = append(bt, b.String())
	}
	return bt
}
