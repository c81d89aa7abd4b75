package runtime

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dop251/goja"
	"gonum.org/v1/gonum/stat"
)

// mathModule re-exports the engine's Math object.
type mathModule struct{}

func (mathModule) Name() string  { return "math" }
func (mathModule) Alias() string { return "" }

func (mathModule) Load(e *Env) (goja.Value, error) {
	return e.VM.Get("Math"), nil
}

// statisticsModule provides descriptive statistics over number arrays.
// stdev and variance are sample statistics; pstdev and pvariance are
// population statistics.
type statisticsModule struct{}

func (statisticsModule) Name() string  { return "statistics" }
func (statisticsModule) Alias() string { return "" }

func (statisticsModule) Load(e *Env) (goja.Value, error) {
	unary := func(name string, min int, f func([]float64) float64) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			if len(xs) < min {
				e.throw("statistics.%s requires at least %d data points", name, min)
			}
			return e.numberValue(f(xs))
		}
	}
	pair := func(name string, f func(x, y []float64) float64) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			x, y := e.floats(call.Argument(0)), e.floats(call.Argument(1))
			if len(x) != len(y) {
				e.throw("statistics.%s requires inputs of equal length", name)
			}
			if len(x) < 2 {
				e.throw("statistics.%s requires at least 2 data points", name)
			}
			return e.numberValue(f(x, y))
		}
	}

	return e.object(map[string]any{
		"mean":   unary("mean", 1, func(xs []float64) float64 { return stat.Mean(xs, nil) }),
		"fmean":  unary("fmean", 1, func(xs []float64) float64 { return stat.Mean(xs, nil) }),
		"median": unary("median", 1, median),
		"mode": unary("mode", 1, func(xs []float64) float64 {
			v, _ := stat.Mode(xs, nil)
			return v
		}),
		"stdev":     unary("stdev", 2, func(xs []float64) float64 { return stat.StdDev(xs, nil) }),
		"variance":  unary("variance", 2, func(xs []float64) float64 { return stat.Variance(xs, nil) }),
		"pstdev":    unary("pstdev", 1, func(xs []float64) float64 { return stat.PopStdDev(xs, nil) }),
		"pvariance": unary("pvariance", 1, func(xs []float64) float64 { return stat.PopVariance(xs, nil) }),
		"quantile": func(call goja.FunctionCall) goja.Value {
			xs := e.floats(call.Argument(0))
			p := floatArg(call, 1, 0.5)
			if len(xs) == 0 {
				e.throw("statistics.quantile requires at least 1 data point")
			}
			if p < 0 || p > 1 {
				e.throw("statistics.quantile: p must be in [0, 1], got %v", p)
			}
			return e.numberValue(percentile(xs, p))
		},
		"correlation": pair("correlation", func(x, y []float64) float64 { return stat.Correlation(x, y, nil) }),
		"covariance":  pair("covariance", func(x, y []float64) float64 { return stat.Covariance(x, y, nil) }),
	}), nil
}

// datetimeModule parses, formats and inspects dates. now() reads the
// execution clock, not the host clock.
type datetimeModule struct{}

func (datetimeModule) Name() string  { return "datetime" }
func (datetimeModule) Alias() string { return "" }

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01",
}

func (datetimeModule) Load(e *Env) (goja.Value, error) {
	part := func(f func(time.Time) int) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			return e.VM.ToValue(f(e.timeOf(call.Argument(0))))
		}
	}

	return e.object(map[string]any{
		"now": func(goja.FunctionCall) goja.Value {
			return e.dateValue(e.Now())
		},
		"parse": func(call goja.FunctionCall) goja.Value {
			s := stringArg(call, 0, "")
			if layout := stringArg(call, 1, ""); layout != "" {
				t, err := time.Parse(goLayout(layout), s)
				if err != nil {
					e.throw("datetime.parse: %v", err)
				}
				return e.dateValue(t)
			}
			t, ok := parseDate(s)
			if !ok {
				e.throw("datetime.parse: unrecognised date %q", s)
			}
			return e.dateValue(t)
		},
		"format": func(call goja.FunctionCall) goja.Value {
			t := e.timeOf(call.Argument(0))
			return e.VM.ToValue(t.Format(goLayout(stringArg(call, 1, "YYYY-MM-DD"))))
		},
		"year":    part(func(t time.Time) int { return t.Year() }),
		"month":   part(func(t time.Time) int { return int(t.Month()) }),
		"day":     part(func(t time.Time) int { return t.Day() }),
		"weekday": part(func(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }),
		"addDays": func(call goja.FunctionCall) goja.Value {
			return e.dateValue(e.timeOf(call.Argument(0)).AddDate(0, 0, intArg(call, 1, 0)))
		},
		"diffDays": func(call goja.FunctionCall) goja.Value {
			d := e.timeOf(call.Argument(0)).Sub(e.timeOf(call.Argument(1)))
			return e.numberValue(d.Hours() / 24)
		},
	}), nil
}

// goLayout translates YYYY-MM-DD HH:mm:ss style patterns.
func goLayout(pattern string) string {
	return strings.NewReplacer(
		"YYYY", "2006",
		"MM", "01",
		"DD", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	).Replace(pattern)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// timeOf accepts a Date, a string or epoch milliseconds.
func (e *Env) timeOf(v goja.Value) time.Time {
	if isNullish(v) {
		e.throw("expected a date, got %v", v)
	}
	switch x := v.Export().(type) {
	case time.Time:
		return x.UTC()
	case string:
		t, ok := parseDate(x)
		if !ok {
			e.throw("unrecognised date %q", x)
		}
		return t
	case int64:
		return time.UnixMilli(x).UTC()
	case float64:
		if math.IsNaN(x) {
			e.throw("invalid date")
		}
		return time.UnixMilli(int64(x)).UTC()
	}
	e.throw("expected a date, got %s", v.String())
	return time.Time{}
}

func (e *Env) dateValue(t time.Time) goja.Value {
	d, err := e.VM.New(e.VM.Get("Date"), e.VM.ToValue(t.UnixMilli()))
	if err != nil {
		panic(err)
	}
	return d
}

// collectionsModule provides counting, grouping and zipping helpers.
type collectionsModule struct{}

func (collectionsModule) Name() string  { return "collections" }
func (collectionsModule) Alias() string { return "" }

func (collectionsModule) Load(e *Env) (goja.Value, error) {
	return e.object(map[string]any{
		"counter": func(call goja.FunctionCall) goja.Value {
			keys, counts := e.count(call.Argument(0))
			obj := e.VM.NewObject()
			for i, k := range keys {
				_ = obj.Set(k, counts[i])
			}
			return obj
		},
		"mostCommon": func(call goja.FunctionCall) goja.Value {
			keys, counts := e.count(call.Argument(0))
			order := make([]int, len(keys))
			for i := range order {
				order[i] = i
			}
			slices.SortStableFunc(order, func(a, b int) int { return counts[b] - counts[a] })
			if n := intArg(call, 1, len(order)); n >= 0 && n < len(order) {
				order = order[:n]
			}
			out := make([]any, len(order))
			for i, j := range order {
				out[i] = e.VM.NewArray(keys[j], counts[j])
			}
			return e.VM.NewArray(out...)
		},
		"groupBy": func(call goja.FunctionCall) goja.Value {
			items := e.elements(call.Argument(0))
			keyFn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				e.throw("collections.groupBy: key must be a function")
			}
			obj := e.VM.NewObject()
			var order []string
			groups := map[string][]any{}
			for i, it := range items {
				k, err := keyFn(goja.Undefined(), it, e.VM.ToValue(i))
				if err != nil {
					panic(err)
				}
				key := k.String()
				if _, ok := groups[key]; !ok {
					order = append(order, key)
				}
				groups[key] = append(groups[key], it)
			}
			for _, k := range order {
				_ = obj.Set(k, e.VM.NewArray(groups[k]...))
			}
			return obj
		},
		"chunk": func(call goja.FunctionCall) goja.Value {
			items := e.elements(call.Argument(0))
			size := intArg(call, 1, 1)
			if size < 1 {
				e.throw("collections.chunk: size must be >= 1")
			}
			var out []any
			for start := 0; start < len(items); start += size {
				end := min(start+size, len(items))
				chunk := make([]any, 0, end-start)
				for _, it := range items[start:end] {
					chunk = append(chunk, it)
				}
				out = append(out, e.VM.NewArray(chunk...))
			}
			return e.VM.NewArray(out...)
		},
		"zip": func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) == 0 {
				return e.VM.NewArray()
			}
			cols := make([][]goja.Value, len(call.Arguments))
			n := -1
			for i, a := range call.Arguments {
				cols[i] = e.elements(a)
				if n < 0 || len(cols[i]) < n {
					n = len(cols[i])
				}
			}
			out := make([]any, n)
			for r := range n {
				tuple := make([]any, len(cols))
				for c := range cols {
					tuple[c] = cols[c][r]
				}
				out[r] = e.VM.NewArray(tuple...)
			}
			return e.VM.NewArray(out...)
		},
	}), nil
}

// count tallies values by their string form in first-seen order.
func (e *Env) count(v goja.Value) ([]string, []int) {
	var (
		keys   []string
		counts []int
		index  = map[string]int{}
	)
	for _, it := range e.elements(v) {
		k := "null"
		if !isNullish(it) {
			k = it.String()
		}
		if i, ok := index[k]; ok {
			counts[i]++
			continue
		}
		index[k] = len(keys)
		keys = append(keys, k)
		counts = append(counts, 1)
	}
	return keys, counts
}
