package vm

import (
	"bytes"
)

// ---------------------------------------------------------------------------
// RString: mutable byte string with copy-on-write sharing
// ---------------------------------------------------------------------------

// byteBuffer is a byte buffer that may be shared by several strings.
// refs counts the holders; a holder with refs > 1 must copy before writing.
type byteBuffer struct {
	data []byte
	refs int
}

// RString is a mutable byte string. Duplicates and substrings share the
// underlying buffer until one side is written.
type RString struct {
	RBasic
	buf *byteBuffer
	off int
	len int
}

func (s *RString) VType() VType { return VTypeString }

func newRString(class *RClass, b []byte) *RString {
	return &RString{
		RBasic: RBasic{class: class},
		buf:    &byteBuffer{data: b, refs: 1},
		len:    len(b),
	}
}

// Bytes returns a read-only view of the contents. The slice must not be
// modified or retained across writes to s.
func (s *RString) Bytes() []byte {
	return s.buf.data[s.off : s.off+s.len]
}

// String returns the contents as a Go string.
func (s *RString) String() string {
	return string(s.Bytes())
}

// Len returns the logical length in bytes.
func (s *RString) Len() int { return s.len }

// Shared reports whether the buffer is referenced by another string.
func (s *RString) Shared() bool { return s.buf.refs > 1 }

// share makes a new string over the same buffer range.
func (s *RString) share(class *RClass, off, n int) *RString {
	s.buf.refs++
	return &RString{
		RBasic: RBasic{class: class},
		buf:    s.buf,
		off:    s.off + off,
		len:    n,
	}
}

// Dup returns a copy sharing the buffer.
func (s *RString) Dup(class *RClass) *RString {
	return s.share(class, 0, s.len)
}

// Substr returns a copy of bytes [start, start+n) sharing the buffer.
func (s *RString) Substr(class *RClass, start, n int) *RString {
	return s.share(class, start, n)
}

// modify establishes exclusive ownership of the buffer.
func (s *RString) modify() {
	if s.buf.refs > 1 {
		s.buf.refs--
		data := make([]byte, s.len, s.len+8)
		copy(data, s.Bytes())
		s.buf = &byteBuffer{data: data, refs: 1}
		s.off = 0
		return
	}
	if s.off != 0 || s.off+s.len != len(s.buf.data) {
		data := make([]byte, s.len)
		copy(data, s.Bytes())
		s.buf.data = data
		s.off = 0
	}
}

// Append appends b to s.
func (s *RString) Append(b []byte) {
	s.modify()
	s.buf.data = append(s.buf.data, b...)
	s.len = len(s.buf.data)
}

// SetBytes replaces the contents of s.
func (s *RString) SetBytes(b []byte) {
	s.modify()
	s.buf.data = append(s.buf.data[:0], b...)
	s.len = len(s.buf.data)
}

// SetByte writes one byte at index i.
func (s *RString) SetByte(i int, c byte) {
	s.modify()
	s.buf.data[i] = c
}

// Equal compares contents.
func (s *RString) Equal(o *RString) bool {
	return bytes.Equal(s.Bytes(), o.Bytes())
}

// Compare orders two strings bytewise.
func (s *RString) Compare(o *RString) int {
	return bytes.Compare(s.Bytes(), o.Bytes())
}

// ---------------------------------------------------------------------------
// VM helpers
// ---------------------------------------------------------------------------

// NewString creates a String value.
func (vm *VM) NewString(s string) Value {
	return FromObject(newRString(vm.StringClass, []byte(s)))
}

// NewStringBytes creates a String value that copies b.
func (vm *VM) NewStringBytes(b []byte) Value {
	data := make([]byte, len(b))
	copy(data, b)
	return FromObject(newRString(vm.StringClass, data))
}

// StrDup duplicates a string, sharing its buffer.
func (vm *VM) StrDup(s *RString) Value {
	return FromObject(s.Dup(vm.StringClass))
}

// StrCat appends other to s after checking s is not frozen.
func (vm *VM) StrCat(s *RString, other []byte) error {
	if s.Frozen() {
		return vm.frozenError(FromObject(s))
	}
	s.Append(other)
	return nil
}

// StrPlus returns a new string holding a followed by b.
func (vm *VM) StrPlus(a, b *RString) Value {
	data := make([]byte, 0, a.len+b.len)
	data = append(data, a.Bytes()...)
	data = append(data, b.Bytes()...)
	return FromObject(newRString(vm.StringClass, data))
}
