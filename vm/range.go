package vm

// RRange is an immutable begin..end or begin...end range.
type RRange struct {
	RBasic
	Begin     Value
	End       Value
	Exclusive bool
}

func (r *RRange) VType() VType { return VTypeRange }

// NewRange creates a frozen Range value.
func (vm *VM) NewRange(begin, end Value, exclusive bool) (Value, error) {
	if begin.IsNumeric() != end.IsNumeric() && !begin.IsNil() && !end.IsNil() {
		return Nil, vm.Raisef(vm.ArgumentErrorClass, "bad value for range")
	}
	r := &RRange{
		RBasic:    RBasic{class: vm.RangeClass, flags: FlagFrozen},
		Begin:     begin,
		End:       end,
		Exclusive: exclusive,
	}
	return FromObject(r), nil
}

// intBounds returns the integer bounds of r as a half-open interval.
func (r *RRange) intBounds() (lo, hi int64, ok bool) {
	if !r.Begin.IsInteger() || !r.End.IsInteger() {
		return 0, 0, false
	}
	lo, hi = r.Begin.Int(), r.End.Int()
	if !r.Exclusive {
		hi++
	}
	return lo, hi, true
}

// Cover reports whether an integer or float lies within r.
func (r *RRange) Cover(v Value) bool {
	x, ok := v.ToFloat64()
	if !ok {
		return false
	}
	if !r.Begin.IsNil() {
		b, ok := r.Begin.ToFloat64()
		if !ok || x < b {
			return false
		}
	}
	if !r.End.IsNil() {
		e, ok := r.End.ToFloat64()
		if !ok {
			return false
		}
		if r.Exclusive {
			return x < e
		}
		return x <= e
	}
	return true
}
