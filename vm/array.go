package vm

// ---------------------------------------------------------------------------
// RArray: mutable value vector with copy-on-write sharing
// ---------------------------------------------------------------------------

// valueBuffer is a Value buffer that may be shared by several arrays.
type valueBuffer struct {
	data []Value
	refs int
}

// RArray is a mutable vector of values. Duplicates and subsequence views
// share the underlying buffer until one side is written.
type RArray struct {
	RBasic
	buf *valueBuffer
	off int
	len int
}

func (a *RArray) VType() VType { return VTypeArray }

func newRArray(class *RClass, vals []Value) *RArray {
	return &RArray{
		RBasic: RBasic{class: class},
		buf:    &valueBuffer{data: vals, refs: 1},
		len:    len(vals),
	}
}

// Values returns a read-only view of the elements. The slice must not be
// modified or retained across writes to a.
func (a *RArray) Values() []Value {
	return a.buf.data[a.off : a.off+a.len]
}

// Len returns the number of elements.
func (a *RArray) Len() int { return a.len }

// Shared reports whether the buffer is referenced by another array.
func (a *RArray) Shared() bool { return a.buf.refs > 1 }

// At returns the element at i, supporting negative indexes. Out of range
// returns Nil.
func (a *RArray) At(i int) Value {
	if i < 0 {
		i += a.len
	}
	if i < 0 || i >= a.len {
		return Nil
	}
	return a.buf.data[a.off+i]
}

func (a *RArray) share(class *RClass, off, n int) *RArray {
	a.buf.refs++
	return &RArray{
		RBasic: RBasic{class: class},
		buf:    a.buf,
		off:    a.off + off,
		len:    n,
	}
}

// Dup returns a copy sharing the buffer.
func (a *RArray) Dup(class *RClass) *RArray {
	return a.share(class, 0, a.len)
}

// Slice returns elements [start, start+n) as a view sharing the buffer.
func (a *RArray) Slice(class *RClass, start, n int) *RArray {
	if start > a.len {
		start = a.len
	}
	if start+n > a.len {
		n = a.len - start
	}
	return a.share(class, start, n)
}

// modify establishes exclusive ownership of the buffer.
func (a *RArray) modify() {
	if a.buf.refs > 1 {
		a.buf.refs--
		data := make([]Value, a.len, a.len+4)
		copy(data, a.Values())
		a.buf = &valueBuffer{data: data, refs: 1}
		a.off = 0
		return
	}
	if a.off != 0 || a.off+a.len != len(a.buf.data) {
		data := make([]Value, a.len)
		copy(data, a.Values())
		a.buf.data = data
		a.off = 0
	}
}

// Push appends values.
func (a *RArray) Push(vals ...Value) {
	a.modify()
	a.buf.data = append(a.buf.data, vals...)
	a.len = len(a.buf.data)
}

// Pop removes and returns the last element.
func (a *RArray) Pop() Value {
	if a.len == 0 {
		return Nil
	}
	a.modify()
	v := a.buf.data[a.len-1]
	a.buf.data = a.buf.data[:a.len-1]
	a.len--
	return v
}

// Shift removes and returns the first element. The remaining elements stay
// in place as a view.
func (a *RArray) Shift() Value {
	if a.len == 0 {
		return Nil
	}
	if a.buf.refs > 1 {
		a.modify()
	}
	v := a.buf.data[a.off]
	a.off++
	a.len--
	return v
}

// Unshift prepends values.
func (a *RArray) Unshift(vals ...Value) {
	data := make([]Value, 0, a.len+len(vals)+4)
	data = append(data, vals...)
	data = append(data, a.Values()...)
	a.replace(data)
}

// Set stores v at index i, growing with Nil as needed. Negative indexes
// count from the end and must be in range.
func (a *RArray) Set(i int, v Value) bool {
	if i < 0 {
		i += a.len
		if i < 0 {
			return false
		}
	}
	a.modify()
	for a.len <= i {
		a.buf.data = append(a.buf.data, Nil)
		a.len++
	}
	a.buf.data[i] = v
	return true
}

// Concat appends all elements of other.
func (a *RArray) Concat(other *RArray) {
	vals := other.Values()
	tmp := make([]Value, len(vals))
	copy(tmp, vals)
	a.Push(tmp...)
}

// Replace overwrites the contents of a with vals.
func (a *RArray) Replace(vals []Value) {
	data := make([]Value, len(vals))
	copy(data, vals)
	a.replace(data)
}

func (a *RArray) replace(data []Value) {
	if a.buf.refs > 1 {
		a.buf.refs--
		a.buf = &valueBuffer{refs: 1}
	}
	a.buf.data = data
	a.off = 0
	a.len = len(data)
}

// Clear removes all elements.
func (a *RArray) Clear() {
	a.replace(nil)
}

// ---------------------------------------------------------------------------
// VM helpers
// ---------------------------------------------------------------------------

// NewArray creates an Array value holding a copy of vals.
func (vm *VM) NewArray(vals ...Value) Value {
	data := make([]Value, len(vals))
	copy(data, vals)
	return FromObject(newRArray(vm.ArrayClass, data))
}

// NewArrayCapa creates an empty Array with room for n elements.
func (vm *VM) NewArrayCapa(n int) *RArray {
	return newRArray(vm.ArrayClass, make([]Value, 0, n))
}

// AryDup duplicates an array, sharing its buffer.
func (vm *VM) AryDup(a *RArray) Value {
	return FromObject(a.Dup(vm.ArrayClass))
}

// AryPlus returns a new array holding a followed by b.
func (vm *VM) AryPlus(a, b *RArray) Value {
	data := make([]Value, 0, a.len+b.len)
	data = append(data, a.Values()...)
	data = append(data, b.Values()...)
	return FromObject(newRArray(vm.ArrayClass, data))
}

// AryModify checks a is writable.
func (vm *VM) AryModify(a *RArray) error {
	if a.Frozen() {
		return vm.frozenError(FromObject(a))
	}
	return nil
}

// Splat converts v into an array for argument splatting: arrays pass
// through, nil becomes empty, and other values are converted with to_a
// when they respond to it.
func (vm *VM) Splat(v Value) (*RArray, error) {
	if a := v.AsArray(); a != nil {
		return a, nil
	}
	if v.IsNil() {
		return vm.NewArrayCapa(0), nil
	}
	if vm.RespondTo(v, SymToA) {
		r, err := vm.Send(v, SymToA)
		if err != nil {
			return nil, err
		}
		if a := r.AsArray(); a != nil {
			return a, nil
		}
		if !r.IsNil() {
			return nil, vm.Raisef(vm.TypeErrorClass, "can't convert %s to Array (%s#to_a gives %s)",
				vm.ClassName(vm.ClassOf(v)), vm.ClassName(vm.ClassOf(v)), vm.ClassName(vm.ClassOf(r)))
		}
	}
	return newRArray(vm.ArrayClass, []Value{v}), nil
}
