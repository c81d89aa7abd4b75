package runtime

import (
	"math"
	"strconv"

	"github.com/dop251/goja"
)

func isNullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

// floats reads a number, an array-like or a series as float64s. Missing or
// non-numeric elements become NaN.
func (e *Env) floats(v goja.Value) []float64 {
	if isNullish(v) {
		e.throw("expected an array of numbers, got %v", v)
	}
	switch x := v.Export().(type) {
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out
	case *Series:
		return x.s.Float()
	case float64:
		return []float64{x}
	case int64:
		return []float64{float64(x)}
	}

	elems := e.elements(v)
	out := make([]float64, len(elems))
	for i, el := range elems {
		if isNullish(el) {
			out[i] = math.NaN()
			continue
		}
		out[i] = el.ToFloat()
	}
	return out
}

// elements reads any array-like value.
func (e *Env) elements(v goja.Value) []goja.Value {
	if isNullish(v) {
		e.throw("expected an array, got %v", v)
	}
	if s, ok := v.Export().(*Series); ok {
		return s.values(e)
	}
	obj := v.ToObject(e.VM)
	lv := obj.Get("length")
	if isNullish(lv) {
		e.throw("expected an array, got %s", v.String())
	}
	n := int(lv.ToInteger())
	if n < 0 {
		n = 0
	}
	out := make([]goja.Value, n)
	for i := range n {
		out[i] = obj.Get(strconv.Itoa(i))
	}
	return out
}

// strs reads an array-like value as strings.
func (e *Env) strs(v goja.Value) []string {
	if s, ok := v.Export().(*Series); ok {
		return s.s.Records()
	}
	elems := e.elements(v)
	out := make([]string, len(elems))
	for i, el := range elems {
		if isNullish(el) {
			out[i] = ""
			continue
		}
		out[i] = el.String()
	}
	return out
}

// option returns obj[key] when obj is an object, nil otherwise.
func (e *Env) option(obj goja.Value, key string) goja.Value {
	if isNullish(obj) {
		return nil
	}
	o, ok := obj.(*goja.Object)
	if !ok {
		return nil
	}
	v := o.Get(key)
	if isNullish(v) {
		return nil
	}
	return v
}

func (e *Env) optionString(obj goja.Value, key, def string) string {
	if v := e.option(obj, key); v != nil {
		return v.String()
	}
	return def
}

func intArg(call goja.FunctionCall, i, def int) int {
	v := call.Argument(i)
	if isNullish(v) {
		return def
	}
	return int(v.ToInteger())
}

func floatArg(call goja.FunctionCall, i int, def float64) float64 {
	v := call.Argument(i)
	if isNullish(v) {
		return def
	}
	return v.ToFloat()
}

func stringArg(call goja.FunctionCall, i int, def string) string {
	v := call.Argument(i)
	if isNullish(v) {
		return def
	}
	return v.String()
}

func boolArg(call goja.FunctionCall, i int, def bool) bool {
	v := call.Argument(i)
	if isNullish(v) {
		return def
	}
	return v.ToBoolean()
}

// isArrayLike reports whether v looks like an array rather than a scalar.
func isArrayLike(v goja.Value) bool {
	if isNullish(v) {
		return false
	}
	switch v.Export().(type) {
	case []float64, []any, *Series:
		return true
	}
	o, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	return !isNullish(o.Get("length")) && o.ClassName() != "Function" && o.ClassName() != "String"
}

// floatsValue wraps xs as a script-visible numeric array.
func (e *Env) floatsValue(xs []float64) goja.Value {
	return e.VM.ToValue(xs)
}

// numberValue converts a float to a script number. NaN stays NaN.
func (e *Env) numberValue(f float64) goja.Value {
	return e.VM.ToValue(f)
}

func (e *Env) stringsValue(ss []string) goja.Value {
	items := make([]any, len(ss))
	for i, s := range ss {
		items[i] = s
	}
	return e.VM.NewArray(items...)
}

func dropNaN(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}
