package runtime

import (
	"math"
	"slices"

	"github.com/dop251/goja"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// numericModule is the numeric-array library, bound as np.
type numericModule struct{}

func (numericModule) Name() string  { return "numeric" }
func (numericModule) Alias() string { return "np" }

func (numericModule) Load(e *Env) (goja.Value, error) {
	reduce := func(name string, f func([]float64) float64) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			if len(xs) == 0 {
				e.throw("np.%s: empty array", name)
			}
			return e.numberValue(f(xs))
		}
	}
	elementwise := func(f func(float64) float64) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			arg := call.Argument(0)
			if !isArrayLike(arg) {
				return e.numberValue(f(arg.ToFloat()))
			}
			xs := e.floats(arg)
			for i, x := range xs {
				xs[i] = f(x)
			}
			return e.floatsValue(xs)
		}
	}

	obj := e.object(map[string]any{
		"array": func(call goja.FunctionCall) goja.Value {
			return e.floatsValue(e.floats(call.Argument(0)))
		},
		"arange": func(call goja.FunctionCall) goja.Value {
			start, stop, step := 0.0, 0.0, 1.0
			switch n := len(call.Arguments); {
			case n == 0:
				e.throw("np.arange: stop is required")
			case n == 1:
				stop = floatArg(call, 0, 0)
			default:
				start, stop = floatArg(call, 0, 0), floatArg(call, 1, 0)
				step = floatArg(call, 2, 1)
			}
			return e.floatsValue(arange(e, start, stop, step))
		},
		"linspace": func(call goja.FunctionCall) goja.Value {
			lo, hi := floatArg(call, 0, 0), floatArg(call, 1, 1)
			n := intArg(call, 2, 50)
			switch {
			case n < 0:
				e.throw("np.linspace: number of samples must be non-negative, got %d", n)
			case n == 0:
				return e.floatsValue([]float64{})
			case n == 1:
				return e.floatsValue([]float64{lo})
			}
			return e.floatsValue(floats.Span(make([]float64, n), lo, hi))
		},
		"zeros": func(call goja.FunctionCall) goja.Value {
			return e.floatsValue(make([]float64, sizeArg(e, call)))
		},
		"ones": func(call goja.FunctionCall) goja.Value {
			xs := make([]float64, sizeArg(e, call))
			for i := range xs {
				xs[i] = 1
			}
			return e.floatsValue(xs)
		},
		"sum":    func(call goja.FunctionCall) goja.Value { return e.numberValue(floats.Sum(e.floats(call.Argument(0)))) },
		"mean":   reduce("mean", func(xs []float64) float64 { return stat.Mean(xs, nil) }),
		"median": reduce("median", median),
		"std":    reduce("std", func(xs []float64) float64 { return stat.PopStdDev(xs, nil) }),
		"var":    reduce("var", func(xs []float64) float64 { return stat.PopVariance(xs, nil) }),
		"min":    reduce("min", floats.Min),
		"max":    reduce("max", floats.Max),
		"cumsum": func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			return e.floatsValue(floats.CumSum(make([]float64, len(xs)), xs))
		},
		"round": func(call goja.FunctionCall) goja.Value {
			decimals := intArg(call, 1, 0)
			f := func(x float64) float64 { return roundTo(x, decimals) }
			return elementwise(f)(call)
		},
		"abs":  elementwise(math.Abs),
		"sqrt": elementwise(math.Sqrt),
		"log":  elementwise(math.Log),
		"exp":  elementwise(math.Exp),
		"percentile": func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			if len(xs) == 0 {
				e.throw("np.percentile: empty array")
			}
			q := call.Argument(1)
			if isArrayLike(q) {
				qs := e.floats(q)
				out := make([]float64, len(qs))
				for i, p := range qs {
					out[i] = percentile(xs, p/100)
				}
				return e.floatsValue(out)
			}
			return e.numberValue(percentile(xs, q.ToFloat()/100))
		},
		"corrcoef": func(call goja.FunctionCall) goja.Value {
			x, y := e.floats(call.Argument(0)), e.floats(call.Argument(1))
			if len(x) != len(y) {
				e.throw("np.corrcoef: arrays differ in length (%d vs %d)", len(x), len(y))
			}
			r := stat.Correlation(x, y, nil)
			return e.VM.NewArray(e.floatsValue([]float64{1, r}), e.floatsValue([]float64{r, 1}))
		},
		"unique": func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			slices.Sort(xs)
			return e.floatsValue(slices.Compact(xs))
		},
		"argmax": reduce("argmax", func(xs []float64) float64 { return float64(floats.MaxIdx(xs)) }),
		"argmin": reduce("argmin", func(xs []float64) float64 { return float64(floats.MinIdx(xs)) }),
	})
	_ = obj.Set("nan", math.NaN())
	_ = obj.Set("pi", math.Pi)
	_ = obj.Set("e", math.E)
	return obj, nil
}

func sizeArg(e *Env, call goja.FunctionCall) int {
	n := intArg(call, 0, 0)
	if n < 0 {
		e.throw("negative dimensions are not allowed")
	}
	return n
}

func arange(e *Env, start, stop, step float64) []float64 {
	if step == 0 {
		e.throw("np.arange: step must not be zero")
	}
	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// median averages the two middle values for even-length input.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// percentile uses linear interpolation between closest ranks, q in [0, 1].
func percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 || q < 0 || q > 1 || math.IsNaN(q) {
		return math.NaN()
	}
	s := slices.Clone(xs)
	slices.Sort(s)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return s[lo]
	}
	frac := pos - float64(lo)
	return s[lo] + (s[hi]-s[lo])*frac
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(x*p) / p
}
