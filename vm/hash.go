package vm

import (
	"encoding/binary"
	"math"

	farm "github.com/dgryski/go-farm"
)

// ---------------------------------------------------------------------------
// RHash: insertion-ordered Value -> Value table
// ---------------------------------------------------------------------------

// KeyComparer hashes and compares hash keys. Equality of non-primitive keys
// may run user-level eql? and hash methods, so the comparer is the VM.
type KeyComparer interface {
	HashKey(v Value) (uint64, error)
	KeyEql(a, b Value) (bool, error)
}

type hashEntry struct {
	key     Value
	val     Value
	deleted bool
}

// RHash is an insertion-ordered hash table. Deleted entries are tombstoned
// and compacted once they dominate the entry list.
type RHash struct {
	RBasic
	cmp     KeyComparer
	entries []hashEntry
	index   map[uint64][]int
	live    int
	Default Value
}

func (h *RHash) VType() VType { return VTypeHash }

func newRHash(class *RClass, cmp KeyComparer, capa int) *RHash {
	return &RHash{
		RBasic:  RBasic{class: class},
		cmp:     cmp,
		entries: make([]hashEntry, 0, capa),
		index:   make(map[uint64][]int, capa),
		Default: Nil,
	}
}

// Len returns the number of live entries.
func (h *RHash) Len() int { return h.live }

func (h *RHash) find(key Value) (hv uint64, pos int, err error) {
	hv, err = h.cmp.HashKey(key)
	if err != nil {
		return 0, -1, err
	}
	for _, i := range h.index[hv] {
		e := &h.entries[i]
		if e.deleted {
			continue
		}
		eq, err := h.cmp.KeyEql(e.key, key)
		if err != nil {
			return hv, -1, err
		}
		if eq {
			return hv, i, nil
		}
	}
	return hv, -1, nil
}

// Get looks up key.
func (h *RHash) Get(key Value) (Value, bool, error) {
	_, pos, err := h.find(key)
	if err != nil || pos < 0 {
		return Nil, false, err
	}
	return h.entries[pos].val, true, nil
}

// HasKey reports whether key is present.
func (h *RHash) HasKey(key Value) (bool, error) {
	_, pos, err := h.find(key)
	return pos >= 0, err
}

// Set stores val under key, keeping the original insertion position when
// the key already exists.
func (h *RHash) Set(key, val Value) error {
	hv, pos, err := h.find(key)
	if err != nil {
		return err
	}
	if pos >= 0 {
		h.entries[pos].val = val
		return nil
	}
	h.entries = append(h.entries, hashEntry{key: key, val: val})
	h.index[hv] = append(h.index[hv], len(h.entries)-1)
	h.live++
	return nil
}

// Delete removes key and returns its value.
func (h *RHash) Delete(key Value) (Value, bool, error) {
	hv, pos, err := h.find(key)
	if err != nil || pos < 0 {
		return Nil, false, err
	}
	e := &h.entries[pos]
	v := e.val
	e.deleted = true
	e.key, e.val = Nil, Nil
	h.live--
	idx := h.index[hv]
	for j, i := range idx {
		if i == pos {
			h.index[hv] = append(idx[:j], idx[j+1:]...)
			break
		}
	}
	if len(h.index[hv]) == 0 {
		delete(h.index, hv)
	}
	if len(h.entries) > 16 && h.live < len(h.entries)/2 {
		if err := h.compact(); err != nil {
			return v, true, err
		}
	}
	return v, true, nil
}

func (h *RHash) compact() error {
	old := h.entries
	h.entries = make([]hashEntry, 0, h.live)
	h.index = make(map[uint64][]int, h.live)
	for _, e := range old {
		if e.deleted {
			continue
		}
		hv, err := h.cmp.HashKey(e.key)
		if err != nil {
			return err
		}
		h.entries = append(h.entries, hashEntry{key: e.key, val: e.val})
		h.index[hv] = append(h.index[hv], len(h.entries)-1)
	}
	return nil
}

// Clear removes all entries.
func (h *RHash) Clear() {
	h.entries = h.entries[:0]
	h.index = make(map[uint64][]int)
	h.live = 0
}

// Each calls fn for each live entry in insertion order, stopping early when
// fn returns false. The entry list is snapshotted first so fn may mutate h.
func (h *RHash) Each(fn func(k, v Value) bool) {
	snap := make([]hashEntry, len(h.entries))
	copy(snap, h.entries)
	for _, e := range snap {
		if e.deleted {
			continue
		}
		if !fn(e.key, e.val) {
			return
		}
	}
}

// Keys returns the live keys in insertion order.
func (h *RHash) Keys() []Value {
	out := make([]Value, 0, h.live)
	for _, e := range h.entries {
		if !e.deleted {
			out = append(out, e.key)
		}
	}
	return out
}

// Vals returns the live values in insertion order.
func (h *RHash) Vals() []Value {
	out := make([]Value, 0, h.live)
	for _, e := range h.entries {
		if !e.deleted {
			out = append(out, e.val)
		}
	}
	return out
}

// Dup returns a shallow copy of h with the same comparer.
func (h *RHash) Dup(class *RClass) *RHash {
	d := newRHash(class, h.cmp, h.live)
	d.Default = h.Default
	for _, e := range h.entries {
		if e.deleted {
			continue
		}
		d.entries = append(d.entries, hashEntry{key: e.key, val: e.val})
	}
	d.live = len(d.entries)
	// Positions differ from h once tombstones are dropped.
	d.index = make(map[uint64][]int, d.live)
	for i, e := range d.entries {
		hv, err := h.cmp.HashKey(e.key)
		if err != nil {
			continue
		}
		d.index[hv] = append(d.index[hv], i)
	}
	return d
}

// ---------------------------------------------------------------------------
// Key hashing and equality
// ---------------------------------------------------------------------------

func hashImmediate(tag ValueTag, bits uint64) uint64 {
	var buf [9]byte
	buf[0] = byte(tag)
	binary.LittleEndian.PutUint64(buf[1:], bits)
	return farm.Hash64(buf[:])
}

// HashKey computes the hash of v used for Hash keys. Strings hash by
// content, arrays by their elements, and other objects through a
// user-defined hash method when one exists, else by identity.
func (vm *VM) HashKey(v Value) (uint64, error) {
	switch v.tag {
	case TagNil, TagFalse, TagTrue:
		return hashImmediate(v.tag, 0), nil
	case TagInteger, TagSymbol:
		return hashImmediate(v.tag, v.bits), nil
	case TagFloat:
		f := v.Float64()
		if f == 0 {
			f = 0
		}
		return hashImmediate(v.tag, math.Float64bits(f)), nil
	}
	switch o := v.obj.(type) {
	case *RString:
		return farm.Hash64WithSeed(o.Bytes(), uint64(TagObject)), nil
	case *RArray:
		release, ok := vm.enterRecursion(SymHash, o, nil)
		if !ok {
			return farm.Hash64WithSeed(nil, uint64(VTypeArray)), nil
		}
		defer release()
		vals := o.Values()
		buf := make([]byte, 8*len(vals))
		for i, e := range vals {
			h, err := vm.HashKey(e)
			if err != nil {
				return 0, err
			}
			binary.LittleEndian.PutUint64(buf[8*i:], h)
		}
		return farm.Hash64WithSeed(buf, uint64(VTypeArray)), nil
	}
	if m, _, ok := vm.FindMethod(vm.ClassOf(v), SymHash); ok && !m.IsDefault() {
		r, err := vm.Send(v, SymHash)
		if err != nil {
			return 0, err
		}
		if r.IsInteger() {
			return hashImmediate(TagInteger, r.bits), nil
		}
	}
	return hashImmediate(TagObject, vm.ObjectID(v)), nil
}

// KeyEql implements eql? for Hash keys.
func (vm *VM) KeyEql(a, b Value) (bool, error) {
	if a.tag != b.tag {
		return false, nil
	}
	switch a.tag {
	case TagNil, TagFalse, TagTrue:
		return true, nil
	case TagInteger, TagSymbol:
		return a.bits == b.bits, nil
	case TagFloat:
		return a.Float64() == b.Float64(), nil
	}
	if a.obj == b.obj {
		return true, nil
	}
	switch x := a.obj.(type) {
	case *RString:
		if y := b.AsString(); y != nil {
			return x.Equal(y), nil
		}
		return false, nil
	case *RArray:
		y := b.AsArray()
		if y == nil || x.Len() != y.Len() {
			return false, nil
		}
		release, ok := vm.enterRecursion(SymEqlP, x, y)
		if !ok {
			return true, nil
		}
		defer release()
		xs, ys := x.Values(), y.Values()
		for i := range xs {
			eq, err := vm.KeyEql(xs[i], ys[i])
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}
	if m, _, ok := vm.FindMethod(vm.ClassOf(a), SymEqlP); ok && !m.IsDefault() {
		r, err := vm.Send(a, SymEqlP, b)
		if err != nil {
			return false, err
		}
		return r.IsTruthy(), nil
	}
	return false, nil
}

type recursionKey struct {
	op   Symbol
	a, b HeapObject
}

// enterRecursion marks op on the pair (a, b) as in progress. It reports
// false when the same pair is already in progress further up, in which case
// the caller treats the repeat as a fixed point. Otherwise release must be
// called when op finishes.
func (vm *VM) enterRecursion(op Symbol, a, b HeapObject) (release func(), ok bool) {
	k := recursionKey{op: op, a: a, b: b}
	if _, busy := vm.recursing[k]; busy {
		return nil, false
	}
	if vm.recursing == nil {
		vm.recursing = make(map[recursionKey]struct{})
	}
	vm.recursing[k] = struct{}{}
	return func() { delete(vm.recursing, k) }, true
}

// ---------------------------------------------------------------------------
// VM helpers
// ---------------------------------------------------------------------------

// NewHash creates an empty Hash.
func (vm *VM) NewHash(capa int) *RHash {
	return newRHash(vm.HashClass, vm, capa)
}

// HashSet stores a key after checking the hash is writable. Unfrozen String
// keys are copied and frozen so later mutation cannot corrupt the table.
func (vm *VM) HashSet(h *RHash, key, val Value) error {
	if h.Frozen() {
		return vm.frozenError(FromObject(h))
	}
	if s := key.AsString(); s != nil && !s.Frozen() {
		d := s.Dup(vm.StringClass)
		d.Freeze()
		key = FromObject(d)
	}
	return h.Set(key, val)
}

// HashGet returns the value for key, or the hash's default.
func (vm *VM) HashGet(h *RHash, key Value) (Value, error) {
	v, ok, err := h.Get(key)
	if err != nil {
		return Nil, err
	}
	if !ok {
		return h.Default, nil
	}
	return v, nil
}
