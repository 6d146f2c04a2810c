package vm

import (
	"bytes"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// String primitives
// ---------------------------------------------------------------------------

func (vm *VM) registerStringPrimitives() {
	c := vm.StringClass

	vm.DefineNative(c, "initialize", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if len(args) == 0 {
			return Nil, nil
		}
		src, err := vm.stringArg(args[0])
		if err != nil {
			return Nil, err
		}
		s := self.AsString()
		if s.Frozen() {
			return Nil, vm.frozenError(self)
		}
		s.SetBytes(src.Bytes())
		return Nil, nil
	})
	vm.DefineNative(c, "initialize_copy", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})

	// Concatenation
	vm.DefineNative(c, "+", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsString()
		if o == nil {
			return Nil, vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into String", vm.typeName(args[0]))
		}
		return vm.StrPlus(self.AsString(), o), nil
	})
	concat := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		s := self.AsString()
		for _, a := range args {
			var b []byte
			switch {
			case a.IsInteger():
				b = utf8.AppendRune(nil, rune(a.Int()))
			case a.AsString() != nil:
				b = append([]byte(nil), a.AsString().Bytes()...)
			default:
				return Nil, vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into String", vm.typeName(a))
			}
			if err := vm.StrCat(s, b); err != nil {
				return Nil, err
			}
		}
		return self, nil
	}
	vm.DefineNative(c, "<<", 1, 1, concat)
	vm.DefineNative(c, "concat", 0, -1, concat)
	vm.DefineNative(c, "*", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		n, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		if n < 0 {
			return Nil, vm.Raisef(vm.ArgumentErrorClass, "negative argument")
		}
		return vm.NewStringBytes(bytes.Repeat(self.AsString().Bytes(), int(n))), nil
	})
	vm.DefineNative(c, "replace", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		src, err := vm.stringArg(args[0])
		if err != nil {
			return Nil, err
		}
		s := self.AsString()
		if s.Frozen() {
			return Nil, vm.frozenError(self)
		}
		s.SetBytes(src.Bytes())
		return self, nil
	})

	// Comparison
	vm.DefineNative(c, "==", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsString()
		return FromBool(o != nil && self.AsString().Equal(o)), nil
	})
	vm.DefineNative(c, "eql?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsString()
		return FromBool(o != nil && self.AsString().Equal(o)), nil
	})
	vm.DefineNative(c, "<=>", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o := args[0].AsString()
		if o == nil {
			return Nil, nil
		}
		return FromInt(int64(self.AsString().Compare(o))), nil
	})
	vm.DefineNative(c, "hash", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		h, err := vm.HashKey(self)
		if err != nil {
			return Nil, err
		}
		return FromInt(int64(h >> 2)), nil
	})

	// Size and access
	length := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(int64(utf8.RuneCount(self.AsString().Bytes()))), nil
	}
	vm.DefineNative(c, "size", 0, 0, length)
	vm.DefineNative(c, "length", 0, 0, length)
	vm.DefineNative(c, "bytesize", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromInt(int64(self.AsString().Len())), nil
	})
	vm.DefineNative(c, "empty?", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromBool(self.AsString().Len() == 0), nil
	})
	vm.DefineNative(c, "[]", 1, 2, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.strAref(self.AsString(), args)
	})
	vm.DefineNative(c, "chars", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		var out []Value
		for _, r := range self.AsString().String() {
			out = append(out, vm.NewString(string(r)))
		}
		return vm.NewArray(out...), nil
	})
	vm.DefineNative(c, "bytes", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		var out []Value
		for _, b := range self.AsString().Bytes() {
			out = append(out, FromInt(int64(b)))
		}
		return vm.NewArray(out...), nil
	})

	// Conversion
	vm.DefineNative(c, "to_s", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		if vm.RealClassOf(self) == vm.StringClass {
			return self, nil
		}
		return vm.StrDup(self.AsString()), nil
	})
	vm.DefineNative(c, "to_str", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return self, nil
	})
	toSym := func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromSymbol(vm.Symbols.InternBytes(self.AsString().Bytes())), nil
	}
	vm.DefineNative(c, "to_sym", 0, 0, toSym)
	vm.DefineNative(c, "intern", 0, 0, toSym)
	vm.DefineNative(c, "inspect", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return vm.NewString(QuoteString(self.AsString().Bytes())), nil
	})
	vm.DefineNative(c, "to_i", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		base := int64(10)
		if len(args) > 0 {
			b, err := vm.intArg(args[0])
			if err != nil {
				return Nil, err
			}
			if b < 2 || b > 36 {
				return Nil, vm.Raisef(vm.ArgumentErrorClass, "invalid radix %d", b)
			}
			base = b
		}
		return FromInt(parseLeadingInt(self.AsString().String(), int(base))), nil
	})
	vm.DefineNative(c, "to_f", 0, 0, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		return FromFloat64(parseLeadingFloat(self.AsString().String())), nil
	})

	// Transformation
	mapper := func(fn func(string) string) NativeFunc {
		return func(vm *VM, self Value, args []Value, block Value) (Value, error) {
			return vm.NewString(fn(self.AsString().String())), nil
		}
	}
	vm.DefineNative(c, "upcase", 0, 0, mapper(strings.ToUpper))
	vm.DefineNative(c, "downcase", 0, 0, mapper(strings.ToLower))
	vm.DefineNative(c, "strip", 0, 0, mapper(strings.TrimSpace))
	vm.DefineNative(c, "capitalize", 0, 0, mapper(func(s string) string {
		r, n := utf8.DecodeRuneInString(s)
		if n == 0 {
			return s
		}
		return strings.ToUpper(string(r)) + strings.ToLower(s[n:])
	}))
	vm.DefineNative(c, "reverse", 0, 0, mapper(func(s string) string {
		rs := []rune(s)
		for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
			rs[i], rs[j] = rs[j], rs[i]
		}
		return string(rs)
	}))

	// Searching
	vm.DefineNative(c, "include?", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		o, err := vm.stringArg(args[0])
		if err != nil {
			return Nil, err
		}
		return FromBool(bytes.Contains(self.AsString().Bytes(), o.Bytes())), nil
	})
	vm.DefineNative(c, "start_with?", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, a := range args {
			o, err := vm.stringArg(a)
			if err != nil {
				return Nil, err
			}
			if bytes.HasPrefix(self.AsString().Bytes(), o.Bytes()) {
				return True, nil
			}
		}
		return False, nil
	})
	vm.DefineNative(c, "end_with?", 0, -1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		for _, a := range args {
			o, err := vm.stringArg(a)
			if err != nil {
				return Nil, err
			}
			if bytes.HasSuffix(self.AsString().Bytes(), o.Bytes()) {
				return True, nil
			}
		}
		return False, nil
	})
	vm.DefineNative(c, "split", 0, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		s := self.AsString().String()
		var parts []string
		if len(args) == 0 || args[0].IsNil() {
			parts = strings.Fields(s)
		} else {
			sep, err := vm.stringArg(args[0])
			if err != nil {
				return Nil, err
			}
			if sep.Len() == 0 {
				for _, r := range s {
					parts = append(parts, string(r))
				}
			} else if sep.String() == " " {
				parts = strings.Fields(s)
			} else {
				parts = strings.Split(s, sep.String())
				for len(parts) > 0 && parts[len(parts)-1] == "" {
					parts = parts[:len(parts)-1]
				}
			}
		}
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = vm.NewString(p)
		}
		return vm.NewArray(out...), nil
	})
}

func (vm *VM) stringArg(v Value) (*RString, error) {
	if s := v.AsString(); s != nil {
		return s, nil
	}
	return nil, vm.Raisef(vm.TypeErrorClass, "no implicit conversion of %s into String", vm.typeName(v))
}

// strAref implements String#[] with an index, a start and length, or a
// Range. Indices count characters.
func (vm *VM) strAref(s *RString, args []Value) (Value, error) {
	runes := []rune(s.String())
	n := int64(len(runes))
	slice := func(start, length int64) Value {
		if start < 0 {
			start += n
		}
		if start < 0 || start > n || length < 0 {
			return Nil
		}
		if start+length > n {
			length = n - start
		}
		return vm.NewString(string(runes[start : start+length]))
	}
	if len(args) == 2 {
		start, err := vm.intArg(args[0])
		if err != nil {
			return Nil, err
		}
		length, err := vm.intArg(args[1])
		if err != nil {
			return Nil, err
		}
		return slice(start, length), nil
	}
	if r := args[0].AsRange(); r != nil {
		start, length, ok, err := vm.rangeBounds(r, n)
		if err != nil || !ok {
			return Nil, err
		}
		return slice(start, length), nil
	}
	if sub := args[0].AsString(); sub != nil {
		if bytes.Contains(s.Bytes(), sub.Bytes()) {
			return vm.StrDup(sub), nil
		}
		return Nil, nil
	}
	i, err := vm.intArg(args[0])
	if err != nil {
		return Nil, err
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return Nil, nil
	}
	return vm.NewString(string(runes[i])), nil
}

// parseLeadingInt parses the longest integer prefix, ignoring leading
// whitespace and underscores between digits; garbage yields 0.
func parseLeadingInt(s string, base int) int64 {
	s = strings.TrimLeft(s, " \t\n\r\f\v")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}
	var digits strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '_' && digits.Len() > 0 {
			continue
		}
		if digitValue(ch) >= base {
			break
		}
		digits.WriteByte(ch)
	}
	n, err := strconv.ParseInt(digits.String(), base, 64)
	if err != nil {
		return 0
	}
	if neg {
		return -n
	}
	return n
}

func digitValue(ch byte) int {
	switch {
	case ch >= '0' && ch <= '9':
		return int(ch - '0')
	case ch >= 'a' && ch <= 'z':
		return int(ch-'a') + 10
	case ch >= 'A' && ch <= 'Z':
		return int(ch-'A') + 10
	}
	return 99
}

// parseLeadingFloat parses the longest float prefix; garbage yields 0.
func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && strings.IndexByte("+-0123456789.eE_", s[end]) >= 0 {
		end++
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(strings.ReplaceAll(s[:end], "_", ""), 64); err == nil {
			return f
		}
		end--
	}
	return 0
}
