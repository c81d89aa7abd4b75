package runtime

import (
	"math"
	"slices"
	"strconv"

	"github.com/dop251/goja"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Series is the script view of one column. Aggregations skip missing
// values.
type Series struct {
	env     *Env
	s       series.Series
	obj     *goja.Object
	methods map[string]func(goja.FunctionCall) goja.Value
}

func (e *Env) newSeries(s series.Series) *Series {
	return &Series{env: e, s: s}
}

// Value returns the script object for s.
func (s *Series) Value() goja.Value {
	if s.obj == nil {
		s.obj = s.env.VM.NewDynamicObject(s)
	}
	return s.obj
}

// Data returns the underlying column.
func (s *Series) Data() series.Series { return s.s }

func (s *Series) String() string { return s.s.String() }

// HTML renders s as a one-column table.
func (s *Series) HTML() string { return SeriesHTML(s.s) }

func (s *Series) Get(key string) goja.Value {
	switch key {
	case "name":
		return s.env.VM.ToValue(s.s.Name)
	case "length":
		return s.env.VM.ToValue(s.s.Len())
	case "dtype":
		return s.env.VM.ToValue(typeName(s.s.Type()))
	}
	if i, err := strconv.Atoi(key); err == nil {
		if i < 0 || i >= s.s.Len() {
			return nil
		}
		return s.env.VM.ToValue(cellValue(s.s.Elem(i)))
	}
	if fn, ok := s.method(key); ok {
		return s.env.VM.ToValue(fn)
	}
	return nil
}

func (s *Series) Set(string, goja.Value) bool { return false }

func (s *Series) Has(key string) bool {
	switch key {
	case "name", "length", "dtype":
		return true
	}
	if i, err := strconv.Atoi(key); err == nil {
		return i >= 0 && i < s.s.Len()
	}
	_, ok := s.method(key)
	return ok
}

func (s *Series) Delete(string) bool { return false }

func (s *Series) Keys() []string {
	keys := make([]string, s.s.Len())
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}
	return keys
}

func (s *Series) values(e *Env) []goja.Value {
	out := make([]goja.Value, s.s.Len())
	for i := range out {
		out[i] = e.VM.ToValue(cellValue(s.s.Elem(i)))
	}
	return out
}

func (s *Series) numeric() bool {
	return s.s.Type() == series.Int || s.s.Type() == series.Float
}

func (s *Series) numbers() []float64 {
	return dropNaN(s.s.Float())
}

func (s *Series) method(name string) (func(goja.FunctionCall) goja.Value, bool) {
	if s.methods == nil {
		s.methods = s.buildMethods()
	}
	fn, ok := s.methods[name]
	return fn, ok
}

func (s *Series) buildMethods() map[string]func(goja.FunctionCall) goja.Value {
	e := s.env
	agg := func(f func([]float64) float64) func(goja.FunctionCall) goja.Value {
		return func(goja.FunctionCall) goja.Value {
			xs := s.numbers()
			if len(xs) == 0 {
				return e.numberValue(math.NaN())
			}
			return e.numberValue(f(xs))
		}
	}

	return map[string]func(goja.FunctionCall) goja.Value{
		"sum": func(goja.FunctionCall) goja.Value {
			return e.numberValue(floats.Sum(s.numbers()))
		},
		"mean":   agg(func(xs []float64) float64 { return stat.Mean(xs, nil) }),
		"median": agg(median),
		"std":    agg(func(xs []float64) float64 { return stat.StdDev(xs, nil) }),
		"var":    agg(func(xs []float64) float64 { return stat.Variance(xs, nil) }),
		"min":    agg(floats.Min),
		"max":    agg(floats.Max),
		"count": func(goja.FunctionCall) goja.Value {
			n := 0
			for i := range s.s.Len() {
				if !isMissing(s.s.Elem(i)) {
					n++
				}
			}
			return e.VM.ToValue(n)
		},
		"cumsum": func(goja.FunctionCall) goja.Value {
			xs := s.s.Float()
			return e.newSeries(series.New(floats.CumSum(make([]float64, len(xs)), xs), series.Float, s.s.Name)).Value()
		},
		"unique": func(goja.FunctionCall) goja.Value {
			vals, _ := s.distinct()
			items := make([]any, len(vals))
			for i, v := range vals {
				items[i] = v
			}
			return e.VM.NewArray(items...)
		},
		"valueCounts": func(goja.FunctionCall) goja.Value {
			return e.NewFrame(NewMemTable(s.valueCounts())).Value()
		},
		"describe": func(goja.FunctionCall) goja.Value {
			return s.describe()
		},
		"values": func(goja.FunctionCall) goja.Value {
			return e.seriesArray(s.s)
		},
		"toArray": func(goja.FunctionCall) goja.Value {
			return e.seriesArray(s.s)
		},
		"map": func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				e.throw("series.map: argument must be a function")
			}
			vals := s.values(e)
			out := make([]goja.Value, len(vals))
			for i, v := range vals {
				r, err := fn(goja.Undefined(), v, e.VM.ToValue(i))
				if err != nil {
					panic(err)
				}
				out[i] = r
			}
			return e.newSeries(seriesFromValues(s.s.Name, out)).Value()
		},
		"head": func(call goja.FunctionCall) goja.Value {
			return e.newSeries(s.s.Subset(headIndexes(s.s.Len(), intArg(call, 0, 5)))).Value()
		},
		"tail": func(call goja.FunctionCall) goja.Value {
			return e.newSeries(s.s.Subset(tailIndexes(s.s.Len(), intArg(call, 0, 5)))).Value()
		},
		"round": func(call goja.FunctionCall) goja.Value {
			d := intArg(call, 0, 0)
			xs := s.s.Float()
			for i, x := range xs {
				xs[i] = roundTo(x, d)
			}
			return e.newSeries(series.New(xs, series.Float, s.s.Name)).Value()
		},
		"toString": func(goja.FunctionCall) goja.Value {
			return e.VM.ToValue(s.String())
		},
	}
}

// seriesArray returns the column as a script array: a numeric array for
// number columns, plain values otherwise.
func (e *Env) seriesArray(s series.Series) goja.Value {
	if s.Type() == series.Float || s.Type() == series.Int {
		return e.floatsValue(s.Float())
	}
	items := make([]any, s.Len())
	for i := range items {
		items[i] = cellValue(s.Elem(i))
	}
	return e.VM.NewArray(items...)
}

// distinct returns non-missing values in first-seen order with their counts.
func (s *Series) distinct() ([]any, []int) {
	var (
		vals   []any
		counts []int
		index  = make(map[string]int)
	)
	for i := range s.s.Len() {
		el := s.s.Elem(i)
		if isMissing(el) {
			continue
		}
		key := el.String()
		if j, ok := index[key]; ok {
			counts[j]++
			continue
		}
		index[key] = len(vals)
		vals = append(vals, cellValue(el))
		counts = append(counts, 1)
	}
	return vals, counts
}

func (s *Series) valueCounts() dataframe.DataFrame {
	vals, counts := s.distinct()
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return counts[b] - counts[a] })

	name := s.s.Name
	if name == "" {
		name = "value"
	}
	keys := make([]any, len(order))
	ns := make([]int, len(order))
	for i, j := range order {
		keys[i] = vals[j]
		ns[i] = counts[j]
	}
	return dataframe.New(
		series.New(keys, s.s.Type(), name),
		series.New(ns, series.Int, "count"),
	)
}

func (s *Series) describe() goja.Value {
	e := s.env
	obj := e.VM.NewObject()
	if s.s.Type() == series.Float || s.s.Type() == series.Int {
		xs := s.numbers()
		_ = obj.Set("count", len(xs))
		if len(xs) == 0 {
			return obj
		}
		_ = obj.Set("mean", stat.Mean(xs, nil))
		_ = obj.Set("std", stat.StdDev(xs, nil))
		_ = obj.Set("min", floats.Min(xs))
		_ = obj.Set("25%", percentile(xs, 0.25))
		_ = obj.Set("50%", percentile(xs, 0.5))
		_ = obj.Set("75%", percentile(xs, 0.75))
		_ = obj.Set("max", floats.Max(xs))
		return obj
	}

	vals, counts := s.distinct()
	total := 0
	for _, c := range counts {
		total += c
	}
	_ = obj.Set("count", total)
	_ = obj.Set("unique", len(vals))
	if len(vals) > 0 {
		top := 0
		for i, c := range counts {
			if c > counts[top] {
				top = i
			}
		}
		_ = obj.Set("top", vals[top])
		_ = obj.Set("freq", counts[top])
	}
	return obj
}

func headIndexes(n, k int) []int {
	k = max(0, min(k, n))
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func tailIndexes(n, k int) []int {
	k = max(0, min(k, n))
	idx := make([]int, k)
	for i := range idx {
		idx[i] = n - k + i
	}
	return idx
}
