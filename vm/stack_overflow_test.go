package vm

import (
	"testing"
)

// def down; down; end
func defineDown(t *testing.T, vm *VM) {
	t.Helper()
	b := NewIrepBuilder(vm.Symbols, 1, 2)
	b.SSend(1, "down", 0, 0, false)
	b.Emit(OpReturn, 1)
	defineIrepMethod(t, vm, vm.ObjectClass, "down", b.MustBuild())
}

func TestUnboundedRecursionRaisesSystemStackError(t *testing.T) {
	vm := newTestVM(t, WithMaxCallDepth(50))
	defineDown(t, vm)

	_, err := vm.Send(vm.TopSelf(), vm.Intern("down"))
	exc := expectRaise(t, vm, err, vm.SystemStackErrorClass)
	if exc.MessageString() != "stack level too deep" {
		t.Errorf("message = %q", exc.MessageString())
	}
	if d := vm.Context().Depth(); d != 0 {
		t.Errorf("Depth() after overflow = %d, want 0", d)
	}
}

// def down; [1].each { down }; end
func TestRecursionThroughNativeFrames(t *testing.T) {
	vm := newTestVM(t, WithMaxCallDepth(60))
	st := vm.Symbols

	blk := NewIrepBuilder(st, 1, 2)
	blk.SSend(1, "down", 0, 0, false)
	blk.Emit(OpReturn, 1)

	b := NewIrepBuilder(st, 1, 3)
	b.LoadInt(1, 1)
	b.Emit(OpArray, 1, 1)
	b.Emit(OpBlock, 2, b.Child(blk.MustBuild()))
	b.Send(1, "each", 0, 0, true)
	b.Emit(OpReturn, 1)
	defineIrepMethod(t, vm, vm.ObjectClass, "down", b.MustBuild())

	_, err := vm.Send(vm.TopSelf(), vm.Intern("down"))
	expectRaise(t, vm, err, vm.SystemStackErrorClass)
	if d := vm.Context().Depth(); d != 0 {
		t.Errorf("Depth() after overflow = %d, want 0", d)
	}
}

func TestStackOverflowIsRescuable(t *testing.T) {
	vm := newTestVM(t, WithMaxCallDepth(50))
	defineDown(t, vm)

	// begin; down; rescue SystemStackError => e; e.message; end
	b := NewIrepBuilder(vm.Symbols, 1, 3)
	b.SSend(1, "down", 0, 0, false)
	end := b.Pos()
	b.Emit(OpReturn, 1)
	rescue := b.Pos()
	b.Emit(OpExcept, 1)
	b.Send(1, "message", 0, 0, false)
	b.Emit(OpReturn, 1)
	b.Handler(CatchRescue, 0, end, rescue)

	v := mustExec(t, vm, b.MustBuild())
	if s := v.AsString(); s == nil || s.String() != "stack level too deep" {
		t.Errorf("rescued message = %s", vm.InspectString(v))
	}

	// Deep but bounded recursion still works afterwards.
	ok := NewIrepBuilder(vm.Symbols, 1, 2).LoadInt(1, 1).Emit(OpReturn, 1).MustBuild()
	if v := mustExec(t, vm, ok); v.Int() != 1 {
		t.Errorf("Exec after overflow = %s, want 1", vm.InspectString(v))
	}
}
