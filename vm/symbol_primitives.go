package vm

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Symbol primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerSymbolPrimitives() {
	c := vm.SymbolClass

	toS := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(vm.Symbols.Name(self.Symbol())), nil
	}
	vm.DefineNative(c, "to_s", 0, 0, toS)
	vm.DefineNative(c, "id2name", 0, 0, toS)
	vm.DefineNative(c, "name", 0, 0, toS)
	vm.DefineNative(c, "to_sym", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	vm.DefineNative(c, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(vm.inspectSymbol(self.Symbol())), nil
	})
	vm.DefineNative(c, "length", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(int64(utf8.RuneCountInString(vm.Symbols.Name(self.Symbol())))), nil
	})
	vm.DefineNative(c, "<=>", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if !args[0].IsSymbol() {
			return Nil, nil
		}
		a, b := vm.Symbols.Name(self.Symbol()), vm.Symbols.Name(args[0].Symbol())
		return FromInt(int64(strings.Compare(a, b))), nil
	})
	vm.DefineNative(c, "to_proc", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		mid := self.Symbol()
		p := vm.NewNativeProc(func(vm *VM, _ Value, args []Value, block Value) (Value, error) {
			if len(args) == 0 {
				return Nil, vm.Raisef(vm.ArgumentErrorClass, "no receiver given")
			}
			return vm.SendWithBlock(args[0], mid, args[1:], nil, block)
		})
		p.Flags &^= ProcStrict
		return FromObject(p), nil
	})
}
