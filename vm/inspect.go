package vm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Printable forms
// ---------------------------------------------------------------------------

// InspectString renders v without calling back into user code. It is used
// in error messages and anywhere a send could itself fail.
func (vm *VM) InspectString(v Value) string {
	var b strings.Builder
	vm.inspectInto(&b, v, nil)
	return b.String()
}

func (vm *VM) inspectInto(b *strings.Builder, v Value, seen map[HeapObject]bool) {
	switch v.tag {
	case TagNil:
		b.WriteString("nil")
		return
	case TagTrue:
		b.WriteString("true")
		return
	case TagFalse:
		b.WriteString("false")
		return
	case TagInteger:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
		return
	case TagFloat:
		b.WriteString(FormatFloat(v.Float64()))
		return
	case TagSymbol:
		b.WriteString(vm.inspectSymbol(v.Symbol()))
		return
	}
	switch o := v.obj.(type) {
	case *RString:
		b.WriteString(QuoteString(o.Bytes()))
	case *RArray:
		if seen[o] {
			b.WriteString("[...]")
			return
		}
		seen = markSeen(seen, o)
		b.WriteByte('[')
		for i, e := range o.Values() {
			if i > 0 {
				b.WriteString(", ")
			}
			vm.inspectInto(b, e, seen)
		}
		b.WriteByte(']')
	case *RHash:
		if seen[o] {
			b.WriteString("{...}")
			return
		}
		seen = markSeen(seen, o)
		b.WriteByte('{')
		first := true
		o.Each(func(k, val Value) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			vm.inspectInto(b, k, seen)
			b.WriteString("=>")
			vm.inspectInto(b, val, seen)
			return true
		})
		b.WriteByte('}')
	case *RRange:
		vm.inspectInto(b, o.Begin, seen)
		if o.Exclusive {
			b.WriteString("...")
		} else {
			b.WriteString("..")
		}
		vm.inspectInto(b, o.End, seen)
	case *RClass:
		b.WriteString(vm.ClassName(o))
	case *RProc:
		fmt.Fprintf(b, "#<Proc:0x%06x", vm.ObjectID(v))
		if o.IsStrict() {
			b.WriteString(" (lambda)")
		}
		b.WriteByte('>')
	case *RException:
		msg := o.MessageString()
		if msg == "" {
			b.WriteString(o.ClassName())
		} else {
			fmt.Fprintf(b, "%s (%s)", msg, o.ClassName())
		}
	default:
		vm.inspectObject(b, v, seen)
	}
}

func markSeen(seen map[HeapObject]bool, o HeapObject) map[HeapObject]bool {
	if seen == nil {
		seen = make(map[HeapObject]bool)
	}
	seen[o] = true
	return seen
}

// inspectObject prints #<Class ivars...> for plain objects.
func (vm *VM) inspectObject(b *strings.Builder, v Value, seen map[HeapObject]bool) {
	o := v.obj
	cname := vm.ClassName(vm.RealClassOf(v))
	names := IvarNames(v)
	if len(names) == 0 || seen[o] {
		fmt.Fprintf(b, "#<%s>", cname)
		return
	}
	seen = markSeen(seen, o)
	fmt.Fprintf(b, "#<%s", cname)
	for i, n := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(b, " %s=", vm.Symbols.Name(n))
		vm.inspectInto(b, IvarGet(v, n), seen)
	}
	b.WriteByte('>')
}

// Inspect calls v.inspect and returns the resulting String value.
func (vm *VM) Inspect(v Value) (string, error) {
	if m, _, ok := vm.FindMethod(vm.ClassOf(v), SymInspect); !ok || m.IsDefault() {
		return vm.InspectString(v), nil
	}
	r, err := vm.Send(v, SymInspect)
	if err != nil {
		return "", err
	}
	if s := r.AsString(); s != nil {
		return s.String(), nil
	}
	return vm.InspectString(r), nil
}

// ToS converts v to text the way string interpolation does: Strings pass
// through, everything else goes through to_s.
func (vm *VM) ToS(v Value) (string, error) {
	if s := v.AsString(); s != nil {
		return s.String(), nil
	}
	if m, _, ok := vm.FindMethod(vm.ClassOf(v), SymToS); !ok || m.IsDefault() {
		return vm.defaultToS(v), nil
	}
	r, err := vm.Send(v, SymToS)
	if err != nil {
		return "", err
	}
	if s := r.AsString(); s != nil {
		return s.String(), nil
	}
	return vm.anyToS(v), nil
}

// defaultToS is the built-in to_s of every core type.
func (vm *VM) defaultToS(v Value) string {
	switch v.tag {
	case TagNil:
		return ""
	case TagSymbol:
		return vm.Symbols.Name(v.Symbol())
	case TagObject:
		switch o := v.obj.(type) {
		case *RString:
			return o.String()
		case *RException:
			return o.MessageString()
		case *RArray, *RHash, *RRange, *RClass, *RProc:
			return vm.InspectString(v)
		}
		return vm.anyToS(v)
	}
	return vm.InspectString(v)
}

func (vm *VM) anyToS(v Value) string {
	return fmt.Sprintf("#<%s>", vm.ClassName(vm.RealClassOf(v)))
}

// ---------------------------------------------------------------------------
// Literal formatting
// ---------------------------------------------------------------------------

// FormatFloat prints a float the way Float#to_s does: always with a
// fractional part or exponent.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		if !strings.Contains(mant, ".") {
			mant += ".0"
		}
		return mant + "e" + exp
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// QuoteString renders b as a double-quoted literal.
func QuoteString(b []byte) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		case 0x1b:
			sb.WriteString(`\e`)
		case '#':
			if i+1 < len(b) && (b[i+1] == '{' || b[i+1] == '$' || b[i+1] == '@') {
				sb.WriteByte('\\')
			}
			sb.WriteByte(c)
		default:
			if c < 0x20 || c == 0x7f {
				fmt.Fprintf(&sb, `\x%02X`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

var operatorSymbols = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "**": true,
	"==": true, "!=": true, "!": true, "<": true, "<=": true, ">": true, ">=": true,
	"<=>": true, "===": true, "=~": true, "-@": true, "+@": true, "<<": true, ">>": true,
	"[]": true, "[]=": true, "&": true, "|": true, "^": true, "~": true,
}

func (vm *VM) inspectSymbol(s Symbol) string {
	name := vm.Symbols.Name(s)
	if symbolIsPlain(name) {
		return ":" + name
	}
	return ":" + QuoteString([]byte(name))
}

func symbolIsPlain(name string) bool {
	if name == "" {
		return false
	}
	if operatorSymbols[name] {
		return true
	}
	s := name
	switch {
	case strings.HasPrefix(s, "@@"):
		s = s[2:]
	case strings.HasPrefix(s, "@"), strings.HasPrefix(s, "$"):
		s = s[1:]
	}
	if s == "" {
		return false
	}
	if last := s[len(s)-1]; last == '?' || last == '!' || last == '=' {
		if len(s) != len(name) {
			return false
		}
		s = s[:len(s)-1]
	}
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c == '_' || c >= 0x80 || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
