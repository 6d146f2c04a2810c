package vm

import (
	"math"
)

// Value represents a garnet value.
//
// Immediates (nil, booleans, integers, floats, symbols) are stored inline in
// the payload and never allocate. Heap objects are held by reference in obj.
//
// Encoding scheme:
//   - Nil, False, True: tag only
//   - Integer: tag + int64 payload
//   - Float: tag + IEEE 754 bits
//   - Symbol: tag + symbol ID
//   - Object: tag + HeapObject reference
//
// The heap reference is a real Go pointer so the collector can trace it; a
// packed uint64 cannot carry one.
type Value struct {
	tag  ValueTag
	bits uint64
	obj  HeapObject
}

// ValueTag discriminates the active variant of a Value.
type ValueTag uint8

const (
	TagNil ValueTag = iota
	TagFalse
	TagTrue
	TagInteger
	TagFloat
	TagSymbol
	TagObject
)

// Pre-defined special values
var (
	Nil   = Value{tag: TagNil}
	True  = Value{tag: TagTrue}
	False = Value{tag: TagFalse}
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Tag returns the variant tag of v.
func (v Value) Tag() ValueTag { return v.tag }

func (v Value) IsNil() bool     { return v.tag == TagNil }
func (v Value) IsTrue() bool    { return v.tag == TagTrue }
func (v Value) IsFalse() bool   { return v.tag == TagFalse }
func (v Value) IsBool() bool    { return v.tag == TagTrue || v.tag == TagFalse }
func (v Value) IsInteger() bool { return v.tag == TagInteger }
func (v Value) IsFloat() bool   { return v.tag == TagFloat }
func (v Value) IsSymbol() bool  { return v.tag == TagSymbol }
func (v Value) IsObject() bool  { return v.tag == TagObject }

// IsNumeric returns true for integers and floats.
func (v Value) IsNumeric() bool { return v.tag == TagInteger || v.tag == TagFloat }

// IsImmediate returns true if v does not reference a heap object.
func (v Value) IsImmediate() bool { return v.tag != TagObject }

// IsTruthy returns true unless v is nil or false.
func (v Value) IsTruthy() bool { return v.tag != TagNil && v.tag != TagFalse }

// IsFalsy returns true if v is nil or false.
func (v Value) IsFalsy() bool { return !v.IsTruthy() }

// ---------------------------------------------------------------------------
// Constructors and accessors
// ---------------------------------------------------------------------------

// FromInt creates an integer value.
func FromInt(n int64) Value {
	return Value{tag: TagInteger, bits: uint64(n)}
}

// Int returns the integer payload. Panics if v is not an integer.
func (v Value) Int() int64 {
	if v.tag != TagInteger {
		panic("Value.Int: not an integer")
	}
	return int64(v.bits)
}

// FromFloat64 creates a float value.
func FromFloat64(f float64) Value {
	return Value{tag: TagFloat, bits: math.Float64bits(f)}
}

// Float64 returns the float payload. Panics if v is not a float.
func (v Value) Float64() float64 {
	if v.tag != TagFloat {
		panic("Value.Float64: not a float")
	}
	return math.Float64frombits(v.bits)
}

// ToFloat64 converts an integer or float to float64.
func (v Value) ToFloat64() (float64, bool) {
	switch v.tag {
	case TagInteger:
		return float64(int64(v.bits)), true
	case TagFloat:
		return math.Float64frombits(v.bits), true
	}
	return 0, false
}

// FromSymbol creates a symbol value.
func FromSymbol(id Symbol) Value {
	return Value{tag: TagSymbol, bits: uint64(id)}
}

// Symbol returns the symbol ID. Panics if v is not a symbol.
func (v Value) Symbol() Symbol {
	if v.tag != TagSymbol {
		panic("Value.Symbol: not a symbol")
	}
	return Symbol(v.bits)
}

// FromBool converts a Go bool to True or False.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromObject wraps a heap object. A nil object yields Nil.
func FromObject(o HeapObject) Value {
	if o == nil {
		return Nil
	}
	return Value{tag: TagObject, obj: o}
}

// Object returns the heap object, or nil for immediates.
func (v Value) Object() HeapObject {
	return v.obj
}

// Identical reports whether a and b are the same value: bitwise for
// immediates, reference identity for heap objects.
func Identical(a, b Value) bool {
	if a.tag != b.tag {
		return false
	}
	if a.tag == TagObject {
		return a.obj == b.obj
	}
	return a.bits == b.bits
}

// ---------------------------------------------------------------------------
// Typed views
// ---------------------------------------------------------------------------

// AsString returns the RString held by v, or nil.
func (v Value) AsString() *RString {
	s, _ := v.obj.(*RString)
	return s
}

// AsArray returns the RArray held by v, or nil.
func (v Value) AsArray() *RArray {
	a, _ := v.obj.(*RArray)
	return a
}

// AsHash returns the RHash held by v, or nil.
func (v Value) AsHash() *RHash {
	h, _ := v.obj.(*RHash)
	return h
}

// AsRange returns the RRange held by v, or nil.
func (v Value) AsRange() *RRange {
	r, _ := v.obj.(*RRange)
	return r
}

// AsProc returns the RProc held by v, or nil.
func (v Value) AsProc() *RProc {
	p, _ := v.obj.(*RProc)
	return p
}

// AsClass returns the RClass held by v, or nil.
func (v Value) AsClass() *RClass {
	c, _ := v.obj.(*RClass)
	return c
}

// AsException returns the RException held by v, or nil.
func (v Value) AsException() *RException {
	e, _ := v.obj.(*RException)
	return e
}

// AsBreak returns the RBreak held by v, or nil.
func (v Value) AsBreak() *RBreak {
	b, _ := v.obj.(*RBreak)
	return b
}

// IsString returns true if v holds a String.
func (v Value) IsString() bool { return v.AsString() != nil }

// IsArray returns true if v holds an Array.
func (v Value) IsArray() bool { return v.AsArray() != nil }

// IsHash returns true if v holds a Hash.
func (v Value) IsHash() bool { return v.AsHash() != nil }

// IsProc returns true if v holds a Proc.
func (v Value) IsProc() bool { return v.AsProc() != nil }

// IsClass returns true if v holds a Class, Module or singleton class.
func (v Value) IsClass() bool { return v.AsClass() != nil }
