package runtime

import (
	"math"
	"strings"

	"github.com/dop251/goja"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// dataframeModule is the tabular library, bound as pd.
type dataframeModule struct{}

func (dataframeModule) Name() string  { return "dataframe" }
func (dataframeModule) Alias() string { return "pd" }

func (dataframeModule) Load(e *Env) (goja.Value, error) {
	return e.object(map[string]any{
		"DataFrame": func(call goja.FunctionCall) goja.Value {
			return e.NewFrame(NewMemTable(e.frameFrom(call.Argument(0)))).Value()
		},
		"Series": func(call goja.FunctionCall) goja.Value {
			name := stringArg(call, 1, "")
			return e.newSeries(seriesFromValues(name, e.elements(call.Argument(0)))).Value()
		},
		"concat": func(call goja.FunctionCall) goja.Value {
			parts := e.elements(call.Argument(0))
			if len(parts) == 0 {
				e.throw("pd.concat: no frames to concatenate")
			}
			out := e.frameOf(parts[0])
			for _, p := range parts[1:] {
				out = out.RBind(e.frameOf(p))
				if out.Err != nil {
					e.throw("pd.concat: %v", out.Err)
				}
			}
			return e.NewFrame(NewMemTable(out)).Value()
		},
		"readCSV": func(call goja.FunctionCall) goja.Value {
			df := dataframe.ReadCSV(strings.NewReader(stringArg(call, 0, "")))
			if df.Err != nil {
				e.throw("pd.readCSV: %v", df.Err)
			}
			return e.NewFrame(NewMemTable(df)).Value()
		},
		"toNumeric": func(call goja.FunctionCall) goja.Value {
			arg := call.Argument(0)
			var s series.Series
			if sr, ok := arg.Export().(*Series); ok {
				s = sr.s
			} else {
				s = seriesFromValues("", e.elements(arg))
			}
			return e.newSeries(toNumeric(s)).Value()
		},
		"isna": func(call goja.FunctionCall) goja.Value {
			v := call.Argument(0)
			if isNullish(v) {
				return e.VM.ToValue(true)
			}
			f, ok := v.Export().(float64)
			return e.VM.ToValue(ok && math.IsNaN(f))
		},
	}), nil
}

// frameOf reads a frame argument.
func (e *Env) frameOf(v goja.Value) dataframe.DataFrame {
	if fr, ok := v.Export().(*Frame); ok {
		return fr.DataFrame()
	}
	e.throw("expected a DataFrame, got %s", v.String())
	return dataframe.DataFrame{}
}

// frameFrom builds a frame from an array of row objects or an object of
// column arrays. Column order follows first appearance.
func (e *Env) frameFrom(v goja.Value) dataframe.DataFrame {
	if isNullish(v) {
		return dataframe.New()
	}
	if fr, ok := v.Export().(*Frame); ok {
		return fr.DataFrame().Copy()
	}

	var (
		names []string
		cells = map[string][]goja.Value{}
	)
	if isArrayLike(v) {
		rows := e.elements(v)
		for _, r := range rows {
			obj, ok := r.(*goja.Object)
			if !ok {
				e.throw("pd.DataFrame: rows must be objects")
			}
			for _, k := range obj.Keys() {
				if _, seen := cells[k]; !seen {
					names = append(names, k)
					cells[k] = nil
				}
			}
		}
		for _, n := range names {
			col := make([]goja.Value, len(rows))
			for i, r := range rows {
				col[i] = r.(*goja.Object).Get(n)
			}
			cells[n] = col
		}
	} else {
		obj, ok := v.(*goja.Object)
		if !ok {
			e.throw("pd.DataFrame: expected rows or columns, got %s", v.String())
		}
		for _, k := range obj.Keys() {
			names = append(names, k)
			cells[k] = e.elements(obj.Get(k))
		}
	}

	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = seriesFromValues(n, cells[n])
		if i > 0 && cols[i].Len() != cols[0].Len() {
			e.throw("pd.DataFrame: column %q has %d values, expected %d", n, cols[i].Len(), cols[0].Len())
		}
	}
	df := dataframe.New(cols...)
	if df.Err != nil {
		e.throw("pd.DataFrame: %v", df.Err)
	}
	return df
}
