package vm

// ---------------------------------------------------------------------------
// HeapObject: common header for all heap-allocated values
// ---------------------------------------------------------------------------

// VType identifies the concrete layout of a heap object.
type VType uint8

const (
	VTypeObject VType = iota
	VTypeString
	VTypeArray
	VTypeHash
	VTypeRange
	VTypeProc
	VTypeEnv
	VTypeClass
	VTypeModule
	VTypeSClass
	VTypeIClass
	VTypeException
	VTypeBreak
)

var vtypeNames = [...]string{
	VTypeObject:    "object",
	VTypeString:    "string",
	VTypeArray:     "array",
	VTypeHash:      "hash",
	VTypeRange:     "range",
	VTypeProc:      "proc",
	VTypeEnv:       "env",
	VTypeClass:     "class",
	VTypeModule:    "module",
	VTypeSClass:    "sclass",
	VTypeIClass:    "iclass",
	VTypeException: "exception",
	VTypeBreak:     "break",
}

func (t VType) String() string {
	if int(t) < len(vtypeNames) {
		return vtypeNames[t]
	}
	return "unknown"
}

// ObjectFlags is the per-object flag bitset.
type ObjectFlags uint16

const (
	FlagFrozen ObjectFlags = 1 << iota
	FlagNoIvars

	// Class flags
	FlagClassOrigin
	FlagClassPrepended
	FlagClassInherited
)

// HeapObject is implemented by every heap-allocated value.
type HeapObject interface {
	Basic() *RBasic
	VType() VType
}

// RBasic is the header embedded in every heap object.
type RBasic struct {
	class *RClass
	flags ObjectFlags
	iv    *IVTable
	id    uint64
}

// Basic returns the header itself.
func (b *RBasic) Basic() *RBasic { return b }

// Class returns the object's class pointer, which may be a singleton class.
func (b *RBasic) Class() *RClass { return b.class }

// Frozen reports whether the object is frozen.
func (b *RBasic) Frozen() bool { return b.flags&FlagFrozen != 0 }

// Freeze marks the object frozen.
func (b *RBasic) Freeze() { b.flags |= FlagFrozen }

// HasFlag reports whether all bits of f are set.
func (b *RBasic) HasFlag(f ObjectFlags) bool { return b.flags&f == f }

// SetFlag sets the bits of f.
func (b *RBasic) SetFlag(f ObjectFlags) { b.flags |= f }

// ---------------------------------------------------------------------------
// IVTable: instance variable storage
// ---------------------------------------------------------------------------

// IVTable is an insertion-ordered symbol -> value table. Classes use it for
// instance variables, class variables and constants alike; include-classes
// share the table of the module they represent.
type IVTable struct {
	keys []Symbol
	vals []Value
	idx  map[Symbol]int
}

// NewIVTable creates an empty table.
func NewIVTable() *IVTable {
	return &IVTable{}
}

// Get returns the value stored under key.
func (t *IVTable) Get(key Symbol) (Value, bool) {
	if t == nil {
		return Nil, false
	}
	if t.idx != nil {
		if i, ok := t.idx[key]; ok {
			return t.vals[i], true
		}
		return Nil, false
	}
	for i, k := range t.keys {
		if k == key {
			return t.vals[i], true
		}
	}
	return Nil, false
}

// Has reports whether key is present.
func (t *IVTable) Has(key Symbol) bool {
	_, ok := t.Get(key)
	return ok
}

// Set stores val under key.
func (t *IVTable) Set(key Symbol, val Value) {
	if t.idx != nil {
		if i, ok := t.idx[key]; ok {
			t.vals[i] = val
			return
		}
	} else {
		for i, k := range t.keys {
			if k == key {
				t.vals[i] = val
				return
			}
		}
	}
	t.keys = append(t.keys, key)
	t.vals = append(t.vals, val)
	if t.idx != nil {
		t.idx[key] = len(t.keys) - 1
	} else if len(t.keys) > 8 {
		t.idx = make(map[Symbol]int, len(t.keys)*2)
		for i, k := range t.keys {
			t.idx[k] = i
		}
	}
}

// Delete removes key and returns its previous value.
func (t *IVTable) Delete(key Symbol) (Value, bool) {
	if t == nil {
		return Nil, false
	}
	for i, k := range t.keys {
		if k == key {
			v := t.vals[i]
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			t.vals = append(t.vals[:i], t.vals[i+1:]...)
			if t.idx != nil {
				delete(t.idx, key)
				for j := i; j < len(t.keys); j++ {
					t.idx[t.keys[j]] = j
				}
			}
			return v, true
		}
	}
	return Nil, false
}

// Len returns the number of entries.
func (t *IVTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.keys)
}

// Keys returns the keys in insertion order.
func (t *IVTable) Keys() []Symbol {
	if t == nil {
		return nil
	}
	out := make([]Symbol, len(t.keys))
	copy(out, t.keys)
	return out
}

// ---------------------------------------------------------------------------
// RObject: plain instances
// ---------------------------------------------------------------------------

// RObject is an instance of a user-defined or plain class.
type RObject struct {
	RBasic
}

func (o *RObject) VType() VType { return VTypeObject }

// ---------------------------------------------------------------------------
// Instance variable access
// ---------------------------------------------------------------------------

// IvarGet returns an instance variable of v, or nil if unset or v is an
// immediate.
func IvarGet(v Value, name Symbol) Value {
	o := v.Object()
	if o == nil {
		return Nil
	}
	val, _ := o.Basic().iv.Get(name)
	return val
}

// IvarDefined reports whether v has the instance variable set.
func IvarDefined(v Value, name Symbol) bool {
	o := v.Object()
	if o == nil {
		return false
	}
	return o.Basic().iv.Has(name)
}

// IvarSet stores an instance variable. Callers check frozenness first.
func IvarSet(o HeapObject, name Symbol, val Value) {
	b := o.Basic()
	if b.iv == nil {
		b.iv = NewIVTable()
	}
	b.iv.Set(name, val)
}

// IvarNames returns the instance variable names of v in definition order.
func IvarNames(v Value) []Symbol {
	o := v.Object()
	if o == nil {
		return nil
	}
	return o.Basic().iv.Keys()
}
