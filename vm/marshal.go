package vm

import (
	"strings"

	"github.com/shamaton/msgpack/v2"
)

// ---------------------------------------------------------------------------
// Marshal: msgpack serialization of value graphs
// ---------------------------------------------------------------------------

// MarshalFormatVersion is stored in every dump and checked on load.
const MarshalFormatVersion = 1

type marshalKind uint8

const (
	marshalNil marshalKind = iota
	marshalTrue
	marshalFalse
	marshalInt
	marshalFloat
	marshalSymbol
	marshalString
	marshalArray
	marshalHash
	marshalRange
	marshalObject
	marshalClass
	marshalModule
	marshalException
)

// marshalNode is the serialized form of one value. Containers keep their
// children in Items; hashes and ivar tables alternate keys and values.
type marshalNode struct {
	Kind   marshalKind
	Int    int64
	Float  float64
	Str    []byte
	Class  string
	Items  []marshalNode
	Ivars  []marshalNode
	Frozen bool
}

type marshalDump struct {
	Version int
	Root    marshalNode
}

func (vm *VM) registerMarshalPrimitives() {
	m := FromObject(vm.MarshalModule)
	vm.DefineSingletonNative(m, "dump", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		b, err := vm.MarshalDump(args[0])
		if err != nil {
			return Nil, err
		}
		return vm.NewStringBytes(b), nil
	})
	vm.DefineSingletonNative(m, "load", 1, 1, func(vm *VM, self Value, args []Value, block Value) (Value, error) {
		s, err := vm.stringArg(args[0])
		if err != nil {
			return Nil, err
		}
		return vm.MarshalLoad(s.Bytes())
	})
}

// MarshalDump serializes v. Procs, singleton-bearing objects and cyclic
// graphs cannot be dumped and raise TypeError or ArgumentError.
func (vm *VM) MarshalDump(v Value) ([]byte, error) {
	d := &marshalDumper{vm: vm, active: make(map[HeapObject]bool)}
	root, err := d.dump(v)
	if err != nil {
		return nil, err
	}
	b, err := msgpack.Marshal(marshalDump{Version: MarshalFormatVersion, Root: root})
	if err != nil {
		return nil, vm.Raisef(vm.TypeErrorClass, "marshal: %s", err)
	}
	return b, nil
}

// MarshalLoad reconstructs a value serialized by MarshalDump. Classes are
// resolved by their constant path in the loading VM.
func (vm *VM) MarshalLoad(b []byte) (Value, error) {
	var d marshalDump
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return Nil, vm.Raisef(vm.TypeErrorClass, "marshal data malformed: %s", err)
	}
	if d.Version != MarshalFormatVersion {
		return Nil, vm.Raisef(vm.TypeErrorClass, "incompatible marshal file format (can't be read): version %d", d.Version)
	}
	return vm.marshalLoad(d.Root)
}

type marshalDumper struct {
	vm     *VM
	active map[HeapObject]bool
}

func (d *marshalDumper) dump(v Value) (marshalNode, error) {
	vm := d.vm
	switch v.tag {
	case TagNil:
		return marshalNode{Kind: marshalNil}, nil
	case TagTrue:
		return marshalNode{Kind: marshalTrue}, nil
	case TagFalse:
		return marshalNode{Kind: marshalFalse}, nil
	case TagInteger:
		return marshalNode{Kind: marshalInt, Int: v.Int()}, nil
	case TagFloat:
		return marshalNode{Kind: marshalFloat, Float: v.Float64()}, nil
	case TagSymbol:
		return marshalNode{Kind: marshalSymbol, Str: []byte(vm.Symbols.Name(v.Symbol()))}, nil
	}

	obj := v.Object()
	if d.active[obj] {
		return marshalNode{}, vm.Raisef(vm.ArgumentErrorClass, "marshal: cyclic reference to %s", vm.ClassName(vm.RealClassOf(v)))
	}
	d.active[obj] = true
	defer delete(d.active, obj)

	if c := vm.ClassOf(v); c.kind == VTypeSClass && obj.Basic().class == c && c.mt.Len() > 0 {
		return marshalNode{}, vm.Raisef(vm.TypeErrorClass, "singleton can't be dumped")
	}
	rc := vm.RealClassOf(v)
	className := rc.Name()
	n := marshalNode{Frozen: obj.Basic().Frozen()}

	switch o := obj.(type) {
	case *RString:
		n.Kind, n.Str = marshalString, append([]byte(nil), o.Bytes()...)
	case *RArray:
		n.Kind = marshalArray
		for _, e := range o.Values() {
			c, err := d.dump(e)
			if err != nil {
				return n, err
			}
			n.Items = append(n.Items, c)
		}
	case *RHash:
		if o.Default.IsProc() {
			return n, vm.Raisef(vm.TypeErrorClass, "can't dump hash with default proc")
		}
		n.Kind = marshalHash
		var err error
		o.Each(func(k, val Value) bool {
			var kn, vn marshalNode
			if kn, err = d.dump(k); err != nil {
				return false
			}
			if vn, err = d.dump(val); err != nil {
				return false
			}
			n.Items = append(n.Items, kn, vn)
			return true
		})
		if err != nil {
			return n, err
		}
		if !o.Default.IsNil() {
			def, err := d.dump(o.Default)
			if err != nil {
				return n, err
			}
			n.Ivars = []marshalNode{def}
		}
	case *RRange:
		n.Kind = marshalRange
		b, err := d.dump(o.Begin)
		if err != nil {
			return n, err
		}
		e, err := d.dump(o.End)
		if err != nil {
			return n, err
		}
		n.Items = []marshalNode{b, e}
		if o.Exclusive {
			n.Int = 1
		}
	case *RClass:
		if o.Name() == "" {
			return n, vm.Raisef(vm.TypeErrorClass, "can't dump anonymous class %s", vm.InspectString(v))
		}
		n.Kind, n.Class = marshalClass, o.Name()
		if o.kind == VTypeModule {
			n.Kind = marshalModule
		}
		return n, nil
	case *RException:
		n.Kind = marshalException
		msg, err := d.dump(o.Message)
		if err != nil {
			return n, err
		}
		n.Items = []marshalNode{msg}
	case *RObject:
		n.Kind = marshalObject
	default:
		return n, vm.Raisef(vm.TypeErrorClass, "no _dump_data is defined for class %s", vm.ClassName(rc))
	}

	if className == "" {
		return n, vm.Raisef(vm.TypeErrorClass, "can't dump anonymous class %s", vm.InspectString(FromObject(rc)))
	}
	n.Class = className
	if n.Kind != marshalHash {
		for _, name := range IvarNames(v) {
			if name == SymExceptionIvar {
				continue
			}
			val, err := d.dump(IvarGet(v, name))
			if err != nil {
				return n, err
			}
			n.Ivars = append(n.Ivars, marshalNode{Kind: marshalSymbol, Str: []byte(vm.Symbols.Name(name))}, val)
		}
	}
	return n, nil
}

func (vm *VM) marshalLoad(n marshalNode) (Value, error) {
	switch n.Kind {
	case marshalNil:
		return Nil, nil
	case marshalTrue:
		return True, nil
	case marshalFalse:
		return False, nil
	case marshalInt:
		return FromInt(n.Int), nil
	case marshalFloat:
		return FromFloat64(n.Float), nil
	case marshalSymbol:
		return FromSymbol(vm.Symbols.InternBytes(n.Str)), nil
	case marshalClass, marshalModule:
		c, err := vm.PathToClass(n.Class)
		if err != nil {
			return Nil, err
		}
		return FromObject(c), nil
	}

	class, err := vm.PathToClass(n.Class)
	if err != nil {
		return Nil, err
	}
	var v Value
	switch n.Kind {
	case marshalString:
		v = FromObject(newRString(class, n.Str))
	case marshalArray:
		vals := make([]Value, len(n.Items))
		for i, item := range n.Items {
			if vals[i], err = vm.marshalLoad(item); err != nil {
				return Nil, err
			}
		}
		v = FromObject(newRArray(class, vals))
	case marshalHash:
		h := newRHash(class, vm, len(n.Items)/2)
		for i := 0; i+1 < len(n.Items); i += 2 {
			k, err := vm.marshalLoad(n.Items[i])
			if err != nil {
				return Nil, err
			}
			val, err := vm.marshalLoad(n.Items[i+1])
			if err != nil {
				return Nil, err
			}
			if err := h.Set(k, val); err != nil {
				return Nil, err
			}
		}
		if len(n.Ivars) == 1 {
			if h.Default, err = vm.marshalLoad(n.Ivars[0]); err != nil {
				return Nil, err
			}
		}
		v = FromObject(h)
	case marshalRange:
		if len(n.Items) != 2 {
			return Nil, vm.Raisef(vm.TypeErrorClass, "marshal data malformed: range")
		}
		b, err := vm.marshalLoad(n.Items[0])
		if err != nil {
			return Nil, err
		}
		e, err := vm.marshalLoad(n.Items[1])
		if err != nil {
			return Nil, err
		}
		r := &RRange{RBasic: RBasic{class: class}, Begin: b, End: e, Exclusive: n.Int == 1}
		v = FromObject(r)
	case marshalException:
		exc := &RException{RBasic: RBasic{class: class}}
		if len(n.Items) == 1 {
			if exc.Message, err = vm.marshalLoad(n.Items[0]); err != nil {
				return Nil, err
			}
		}
		v = FromObject(exc)
	case marshalObject:
		if class.instanceType != VTypeObject {
			return Nil, vm.Raisef(vm.TypeErrorClass, "dump format error (class %s is not a plain object class)", n.Class)
		}
		v = FromObject(&RObject{RBasic: RBasic{class: class}})
	default:
		return Nil, vm.Raisef(vm.TypeErrorClass, "marshal data malformed: kind %d", n.Kind)
	}

	if n.Kind != marshalHash {
		for i := 0; i+1 < len(n.Ivars); i += 2 {
			val, err := vm.marshalLoad(n.Ivars[i+1])
			if err != nil {
				return Nil, err
			}
			IvarSet(v.Object(), vm.Symbols.InternBytes(n.Ivars[i].Str), val)
		}
	}
	if n.Frozen {
		v.Object().Basic().Freeze()
	}
	return v, nil
}

// PathToClass resolves a constant path such as "A::B" to a class or
// module.
func (vm *VM) PathToClass(path string) (*RClass, error) {
	cur := FromObject(vm.ObjectClass)
	for _, part := range strings.Split(path, "::") {
		v, err := vm.scopedConstGet(cur, vm.Intern(part))
		if err != nil {
			return nil, vm.Raisef(vm.ArgumentErrorClass, "undefined class/module %s", path)
		}
		cur = v
	}
	c := cur.AsClass()
	if c == nil {
		return nil, vm.Raisef(vm.TypeErrorClass, "%s does not refer to class/module", path)
	}
	return c, nil
}
