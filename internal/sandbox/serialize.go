package sandbox

import (
	"math"
	"slices"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"

	"analyst-sandbox/internal/runtime"
)

// maxResultDepth bounds nesting in serialized values; deeper or cyclic
// values are dropped.
const maxResultDepth = 32

// Markup is table HTML produced from a frame or series. It marshals as a
// plain JSON string; the distinct type lets renderers tell it apart from
// string values a script computed.
type Markup string

// namespace is the global scope of one execution.
type namespace struct {
	vm      *goja.Runtime
	initial map[string]bool
}

func newNamespace(vm *goja.Runtime) *namespace {
	ns := &namespace{vm: vm, initial: make(map[string]bool)}
	for _, k := range vm.GlobalObject().Keys() {
		ns.initial[k] = true
	}
	return ns
}

// reserve marks names bound before the script ran.
func (ns *namespace) reserve(names ...string) {
	for _, n := range names {
		ns.initial[n] = true
	}
}

// introduced returns the names the script added to the global scope,
// sorted: new global-object properties plus top-level let/const/var
// declarations. Bound names and names starting with "_" are excluded.
func (ns *namespace) introduced(prog *ast.Program) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n == "" || seen[n] || ns.initial[n] || strings.HasPrefix(n, "_") {
			return
		}
		seen[n] = true
		names = append(names, n)
	}
	for _, k := range ns.vm.GlobalObject().Keys() {
		add(k)
	}
	if prog != nil {
		for _, n := range declaredNames(prog) {
			add(n)
		}
	}
	slices.Sort(names)
	return names
}

// declaredNames lists identifiers bound by top-level declarations.
// Destructuring patterns are not expanded.
func declaredNames(prog *ast.Program) []string {
	var names []string
	collect := func(list []*ast.Binding) {
		for _, b := range list {
			if id, ok := b.Target.(*ast.Identifier); ok {
				names = append(names, string(id.Name))
			}
		}
	}
	for _, st := range prog.Body {
		switch s := st.(type) {
		case *ast.VariableStatement:
			collect(s.List)
		case *ast.LexicalDeclaration:
			collect(s.List)
		}
	}
	return names
}

// results serializes every introduced name whose value has a display form.
func (ns *namespace) results(prog *ast.Program) map[string]any {
	out := make(map[string]any)
	for _, name := range ns.introduced(prog) {
		if v, ok := ns.lookup(name); ok {
			if s, ok := Serialize(v); ok {
				out[name] = s
			}
		}
	}
	return out
}

func (ns *namespace) lookup(name string) (v goja.Value, ok bool) {
	defer func() {
		if recover() != nil {
			v, ok = nil, false
		}
	}()
	v = ns.vm.Get(name)
	return v, v != nil
}

// Serialize converts a script value to its display form. Frames and series
// become HTML tables; numeric arrays become []float64; numbers, strings,
// booleans and arrays or objects made only of those pass through. Anything
// else reports false.
func Serialize(v goja.Value) (any, bool) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	if _, ok := v.(*goja.Symbol); ok {
		return nil, false
	}
	if obj, ok := v.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Function", "Date", "RegExp", "Error", "Promise", "Map", "Set", "WeakMap", "WeakSet":
			return nil, false
		}
	}
	switch x := v.Export().(type) {
	case *runtime.Frame:
		return Markup(x.HTML()), true
	case *runtime.Series:
		return Markup(x.HTML()), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, false
		}
		return x, true
	case []float64:
		return numbers(x), true
	default:
		if obj, ok := v.(*goja.Object); ok && holdsSymbol(obj, make(map[*goja.Object]bool)) {
			return nil, false
		}
		return plain(x, 0)
	}
}

// holdsSymbol reports whether a Symbol appears anywhere among obj's own
// enumerable values. Export would flatten it into its description.
func holdsSymbol(obj *goja.Object, seen map[*goja.Object]bool) bool {
	if seen[obj] {
		return false
	}
	seen[obj] = true
	for _, k := range obj.Keys() {
		switch el := obj.Get(k).(type) {
		case *goja.Symbol:
			return true
		case *goja.Object:
			if holdsSymbol(el, seen) {
				return true
			}
		}
	}
	return false
}

// numbers copies xs, turning a non-finite entry into a gap.
func numbers(xs []float64) any {
	finite := true
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			finite = false
			break
		}
	}
	if finite {
		return slices.Clone(xs)
	}
	out := make([]any, len(xs))
	for i, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		out[i] = x
	}
	return out
}

// plain accepts exported values made only of JSON-compatible parts. Nested
// null and non-finite numbers become nil.
func plain(v any, depth int) (any, bool) {
	if depth > maxResultDepth {
		return nil, false
	}
	switch x := v.(type) {
	case nil:
		return nil, depth > 0
	case bool, string, int, int32, int64:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, depth > 0
		}
		return x, true
	case []float64:
		return numbers(x), true
	case []string:
		return slices.Clone(x), true
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			p, ok := plain(el, depth+1)
			if !ok {
				return nil, false
			}
			out[i] = p
		}
		return out, true
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			p, ok := plain(el, depth+1)
			if !ok {
				return nil, false
			}
			out[k] = p
		}
		return out, true
	}
	return nil, false
}
