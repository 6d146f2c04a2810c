package vm

import (
	"fmt"
	"strings"
)

// Inspector provides a structured debugging view of garnet values. Unlike
// Inspect it never calls user methods, so it is safe on any value.
type Inspector struct {
	vm *VM
}

// InspectionResult contains structured information about an inspected value.
type InspectionResult struct {
	Type      string              // value tag or heap object type: integer, symbol, object, array, ...
	Value     string              // one-line rendering
	ClassName string              // class of the value
	Frozen    bool                // set for frozen heap objects
	InstVars  []InstVarInfo       // instance variables in definition order
	Size      int                 // element count for arrays, hashes and strings
	Elements  []*InspectionResult // preview of elements; hashes alternate keys and values
}

// InstVarInfo contains information about a single instance variable.
type InstVarInfo struct {
	Name  string
	Value *InspectionResult
}

// MaxElementPreview is the maximum number of collection elements to preview.
const MaxElementPreview = 10

// DefaultMaxDepth is the default recursion depth for inspection.
const DefaultMaxDepth = 3

// NewInspector creates a new Inspector attached to the given VM.
func NewInspector(vm *VM) *Inspector {
	return &Inspector{vm: vm}
}

// Inspect inspects a value with the default maximum depth.
func (i *Inspector) Inspect(v Value) *InspectionResult {
	return i.InspectDepth(v, DefaultMaxDepth)
}

// InspectDepth inspects a value with a specified maximum recursion depth.
// When depth reaches 0, nested objects are shown as summaries only.
func (i *Inspector) InspectDepth(v Value, depth int) *InspectionResult {
	result := &InspectionResult{
		Value:     i.vm.InspectString(v),
		ClassName: i.vm.ClassName(i.vm.RealClassOf(v)),
	}
	switch v.tag {
	case TagNil:
		result.Type = "nil"
	case TagTrue, TagFalse:
		result.Type = "bool"
	case TagInteger:
		result.Type = "integer"
	case TagFloat:
		result.Type = "float"
	case TagSymbol:
		result.Type = "symbol"
	case TagObject:
		i.inspectObject(result, v, depth)
	}
	return result
}

func (i *Inspector) inspectObject(result *InspectionResult, v Value, depth int) {
	obj := v.Object()
	result.Type = obj.VType().String()
	result.Frozen = obj.Basic().Frozen()

	switch o := obj.(type) {
	case *RString:
		result.Size = o.Len()
	case *RArray:
		result.Size = o.Len()
		if depth > 0 {
			for idx := 0; idx < min(o.Len(), MaxElementPreview); idx++ {
				result.Elements = append(result.Elements, i.InspectDepth(o.At(idx), depth-1))
			}
		}
	case *RHash:
		result.Size = o.Len()
		if depth > 0 {
			n := 0
			o.Each(func(k, val Value) bool {
				result.Elements = append(result.Elements, i.InspectDepth(k, depth-1), i.InspectDepth(val, depth-1))
				n++
				return n < MaxElementPreview
			})
		}
	case *RClass:
		if sc := o.super.Real(); o.kind == VTypeClass && sc != nil {
			result.InstVars = append(result.InstVars, InstVarInfo{
				Name:  "superclass",
				Value: i.InspectDepth(FromObject(sc), 0),
			})
		}
		return
	}

	if depth <= 0 {
		return
	}
	for _, name := range IvarNames(v) {
		if name == SymExceptionIvar {
			continue
		}
		result.InstVars = append(result.InstVars, InstVarInfo{
			Name:  i.vm.Symbols.Name(name),
			Value: i.InspectDepth(IvarGet(v, name), depth-1),
		})
	}
}

// String returns a pretty-printed representation of the inspection result.
func (r *InspectionResult) String() string {
	return r.stringWithIndent(0)
}

// stringWithIndent creates a string representation with the given
// indentation level, showing one level of children as one-liners.
func (r *InspectionResult) stringWithIndent(indent int) string {
	var sb strings.Builder
	prefix := strings.Repeat("  ", indent)

	sb.WriteString(prefix)
	sb.WriteString(r.Value)
	if r.ClassName != "" {
		fmt.Fprintf(&sb, " (%s)", r.ClassName)
	}
	if r.Frozen {
		sb.WriteString(" frozen")
	}
	sb.WriteString("\n")

	for _, iv := range r.InstVars {
		sb.WriteString(prefix)
		sb.WriteString("    ")
		sb.WriteString(iv.Name)
		sb.WriteString(": ")
		if iv.Value != nil {
			sb.WriteString(iv.Value.Value)
		} else {
			sb.WriteString("<nil>")
		}
		sb.WriteString("\n")
	}
	r.writeElements(&sb, prefix, func(elem *InspectionResult) {
		sb.WriteString(elem.Value)
		sb.WriteString("\n")
	})
	return sb.String()
}

// PrettyPrint returns a detailed multi-line representation with full nesting.
func (r *InspectionResult) PrettyPrint() string {
	return r.prettyPrintWithIndent(0)
}

func (r *InspectionResult) prettyPrintWithIndent(indent int) string {
	var sb strings.Builder
	prefix := strings.Repeat("  ", indent)

	sb.WriteString(prefix)
	sb.WriteString(r.Type)
	sb.WriteString(": ")
	sb.WriteString(r.Value)
	sb.WriteString("\n")

	if r.ClassName != "" {
		sb.WriteString(prefix)
		sb.WriteString("  class: ")
		sb.WriteString(r.ClassName)
		sb.WriteString("\n")
	}
	if r.Frozen {
		sb.WriteString(prefix)
		sb.WriteString("  frozen\n")
	}
	if len(r.InstVars) > 0 {
		sb.WriteString(prefix)
		sb.WriteString("  instance variables:\n")
		for _, iv := range r.InstVars {
			sb.WriteString(prefix)
			sb.WriteString("    ")
			sb.WriteString(iv.Name)
			sb.WriteString(":\n")
			if iv.Value != nil {
				sb.WriteString(iv.Value.prettyPrintWithIndent(indent + 3))
			}
		}
	}
	r.writeElements(&sb, prefix, func(elem *InspectionResult) {
		sb.WriteString("\n")
		sb.WriteString(elem.prettyPrintWithIndent(indent + 3))
	})
	return sb.String()
}

func (r *InspectionResult) writeElements(sb *strings.Builder, prefix string, each func(*InspectionResult)) {
	if len(r.Elements) == 0 {
		return
	}
	pairs := r.Type == VTypeHash.String()
	shown := len(r.Elements)
	if pairs {
		shown /= 2
	}
	sb.WriteString(prefix)
	fmt.Fprintf(sb, "  elements (showing %d of %d):\n", shown, r.Size)
	for idx, elem := range r.Elements {
		sb.WriteString(prefix)
		switch {
		case !pairs:
			fmt.Fprintf(sb, "    [%d]: ", idx)
		case idx%2 == 0:
			sb.WriteString("    key: ")
		default:
			sb.WriteString("    value: ")
		}
		each(elem)
	}
}
