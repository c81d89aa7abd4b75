package runtime

import (
	"math"
	"slices"

	"github.com/dop251/goja"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Frame is the script view of a Table. Columns are reachable as
// properties (df.x, df["x"]); assigning a property sets a column.
type Frame struct {
	env     *Env
	table   Table
	obj     *goja.Object
	methods map[string]func(goja.FunctionCall) goja.Value
}

// NewFrame wraps t for scripts.
func (e *Env) NewFrame(t Table) *Frame {
	return &Frame{env: e, table: t}
}

// Value returns the script object for f.
func (f *Frame) Value() goja.Value {
	if f.obj == nil {
		f.obj = f.env.VM.NewDynamicObject(f)
	}
	return f.obj
}

// DataFrame returns the current contents of the frame.
func (f *Frame) DataFrame() dataframe.DataFrame { return f.table.Frame() }

func (f *Frame) String() string { return f.table.Frame().String() }

// HTML renders the frame as table markup.
func (f *Frame) HTML() string { return FrameHTML(f.table.Frame()) }

var frameProps = []string{"columns", "shape", "length", "dtypes"}

func (f *Frame) Get(key string) goja.Value {
	vm := f.env.VM
	df := f.table.Frame()
	switch key {
	case "columns":
		return f.env.stringsValue(df.Names())
	case "shape":
		return vm.NewArray(df.Nrow(), df.Ncol())
	case "length":
		return vm.ToValue(df.Nrow())
	case "dtypes":
		obj := vm.NewObject()
		for i, t := range df.Types() {
			_ = obj.Set(df.Names()[i], typeName(t))
		}
		return obj
	}
	if fn, ok := f.method(key); ok {
		return vm.ToValue(fn)
	}
	if slices.Contains(df.Names(), key) {
		return f.env.newSeries(df.Col(key)).Value()
	}
	return nil
}

func (f *Frame) Set(key string, val goja.Value) bool {
	if slices.Contains(frameProps, key) {
		return false
	}
	if _, ok := f.method(key); ok {
		return false
	}
	f.setColumn(key, val)
	return true
}

func (f *Frame) Has(key string) bool {
	if slices.Contains(frameProps, key) {
		return true
	}
	if _, ok := f.method(key); ok {
		return true
	}
	return slices.Contains(f.table.Frame().Names(), key)
}

func (f *Frame) Delete(key string) bool {
	df := f.table.Frame()
	if !slices.Contains(df.Names(), key) {
		return true
	}
	f.replace(df.Drop(key))
	return true
}

func (f *Frame) Keys() []string {
	return f.table.Frame().Names()
}

func (f *Frame) method(name string) (func(goja.FunctionCall) goja.Value, bool) {
	if f.methods == nil {
		f.methods = f.buildMethods()
	}
	fn, ok := f.methods[name]
	return fn, ok
}

func (f *Frame) derived(df dataframe.DataFrame) goja.Value {
	if df.Err != nil {
		f.env.throw("%v", df.Err)
	}
	return f.env.NewFrame(NewMemTable(df)).Value()
}

func (f *Frame) replace(df dataframe.DataFrame) {
	if df.Err != nil {
		f.env.throw("%v", df.Err)
	}
	f.table.SetFrame(df)
}

func (f *Frame) column(name string) series.Series {
	df := f.table.Frame()
	if !slices.Contains(df.Names(), name) {
		f.env.throw("no column named %q (columns: %v)", name, df.Names())
	}
	return df.Col(name)
}

func (f *Frame) buildMethods() map[string]func(goja.FunctionCall) goja.Value {
	e := f.env
	self := func() goja.Value { return f.Value() }

	return map[string]func(goja.FunctionCall) goja.Value{
		"head": func(call goja.FunctionCall) goja.Value {
			return f.derived(f.rows(headIndexes(f.table.Frame().Nrow(), intArg(call, 0, 5))))
		},
		"tail": func(call goja.FunctionCall) goja.Value {
			return f.derived(f.rows(tailIndexes(f.table.Frame().Nrow(), intArg(call, 0, 5))))
		},
		"col": func(call goja.FunctionCall) goja.Value {
			return e.newSeries(f.column(stringArg(call, 0, ""))).Value()
		},
		"select": func(call goja.FunctionCall) goja.Value {
			var names []string
			if len(call.Arguments) == 1 && isArrayLike(call.Argument(0)) {
				names = e.strs(call.Argument(0))
			} else {
				for _, a := range call.Arguments {
					names = append(names, a.String())
				}
			}
			for _, n := range names {
				f.column(n)
			}
			return f.derived(f.table.Frame().Select(names))
		},
		"filter": func(call goja.FunctionCall) goja.Value {
			name := stringArg(call, 0, "")
			op := stringArg(call, 1, "==")
			return f.derived(f.filter(name, op, call.Argument(2)))
		},
		"sortBy": func(call goja.FunctionCall) goja.Value {
			name := stringArg(call, 0, "")
			f.column(name)
			order := dataframe.Sort(name)
			if boolArg(call, 1, false) {
				order = dataframe.RevSort(name)
			}
			return f.derived(f.table.Frame().Arrange(order))
		},
		"groupBy": func(call goja.FunctionCall) goja.Value {
			key := stringArg(call, 0, "")
			value := stringArg(call, 1, "")
			agg := stringArg(call, 2, "sum")
			return f.derived(f.groupBy(key, value, agg))
		},
		"describe": func(goja.FunctionCall) goja.Value {
			return f.derived(f.table.Frame().Describe())
		},
		"records": func(goja.FunctionCall) goja.Value {
			return f.records()
		},
		"copy": func(goja.FunctionCall) goja.Value {
			return f.derived(f.table.Frame().Copy())
		},
		"drop": func(call goja.FunctionCall) goja.Value {
			name := stringArg(call, 0, "")
			f.column(name)
			return f.derived(f.table.Frame().Drop(name))
		},
		"setColumn": func(call goja.FunctionCall) goja.Value {
			f.setColumn(stringArg(call, 0, ""), call.Argument(1))
			return self()
		},
		"toNumeric": func(call goja.FunctionCall) goja.Value {
			col := f.column(stringArg(call, 0, ""))
			f.replace(f.table.Frame().Mutate(toNumeric(col)))
			return self()
		},
		"dropna": func(call goja.FunctionCall) goja.Value {
			f.dropna(call.Argument(0))
			return self()
		},
		"rename": func(call goja.FunctionCall) goja.Value {
			f.rename(call)
			return self()
		},
		"toString": func(goja.FunctionCall) goja.Value {
			return e.VM.ToValue(f.String())
		},
	}
}

func (f *Frame) rows(idx []int) dataframe.DataFrame {
	df := f.table.Frame()
	if len(idx) == 0 {
		return emptyLike(df)
	}
	return df.Subset(idx)
}

func (f *Frame) setColumn(name string, val goja.Value) {
	if name == "" {
		f.env.throw("setColumn: column name is required")
	}
	df := f.table.Frame()
	n := df.Nrow()

	var col series.Series
	switch {
	case isNullish(val):
		f.env.throw("setColumn: values are required for column %q", name)
	case isSeries(val):
		col = val.Export().(*Series).s.Copy()
		col.Name = name
	case isArrayLike(val):
		col = seriesFromValues(name, f.env.elements(val))
	default:
		col = seriesFromValues(name, broadcast(val, n))
	}

	if df.Ncol() == 0 {
		f.replace(dataframe.New(col))
		return
	}
	if col.Len() != n {
		f.env.throw("setColumn: column %q has %d values, frame has %d rows", name, col.Len(), n)
	}
	f.replace(df.Mutate(col))
}

func isSeries(v goja.Value) bool {
	_, ok := v.Export().(*Series)
	return ok
}

func (f *Frame) filter(name, op string, val goja.Value) dataframe.DataFrame {
	col := f.column(name)
	cmp := series.Comparator(op)
	switch cmp {
	case series.Eq, series.Neq, series.Greater, series.GreaterEq, series.Less, series.LessEq, series.In:
	default:
		f.env.throw("filter: unsupported operator %q", op)
	}

	numeric := col.Type() == series.Int || col.Type() == series.Float
	if numeric && cmp != series.In {
		if isNullish(val) {
			f.env.throw("filter: comparison value is required")
		}
		target := val.ToFloat()
		var keep []int
		for i, x := range col.Float() {
			if compareFloat(x, cmp, target) {
				keep = append(keep, i)
			}
		}
		return f.rows(keep)
	}

	var comparando any
	switch {
	case cmp == series.In && numeric:
		comparando = f.env.floats(val)
	case cmp == series.In:
		comparando = f.env.strs(val)
	case isNullish(val):
		f.env.throw("filter: comparison value is required")
	case col.Type() == series.Bool:
		comparando = val.ToBoolean()
	default:
		comparando = val.String()
	}

	mask := col.Compare(cmp, comparando)
	if mask.Err != nil {
		f.env.throw("filter: %v", mask.Err)
	}
	bs, err := mask.Bool()
	if err != nil {
		f.env.throw("filter: %v", err)
	}
	var keep []int
	for i, b := range bs {
		if b {
			keep = append(keep, i)
		}
	}
	return f.rows(keep)
}

// compareFloat never matches a missing value.
func compareFloat(x float64, cmp series.Comparator, y float64) bool {
	if math.IsNaN(x) {
		return false
	}
	switch cmp {
	case series.Eq:
		return x == y
	case series.Neq:
		return x != y
	case series.Greater:
		return x > y
	case series.GreaterEq:
		return x >= y
	case series.Less:
		return x < y
	case series.LessEq:
		return x <= y
	}
	return false
}

var aggregations = map[string]func([]float64) float64{
	"sum":    floats.Sum,
	"mean":   func(xs []float64) float64 { return stat.Mean(xs, nil) },
	"median": median,
	"std":    func(xs []float64) float64 { return stat.StdDev(xs, nil) },
	"min":    nanIfEmpty(floats.Min),
	"max":    nanIfEmpty(floats.Max),
	"count":  func(xs []float64) float64 { return float64(len(xs)) },
}

func nanIfEmpty(f func([]float64) float64) func([]float64) float64 {
	return func(xs []float64) float64 {
		if len(xs) == 0 {
			return math.NaN()
		}
		return f(xs)
	}
}

// groupBy aggregates value per distinct key, keys in ascending order. With
// no value column it counts rows per key.
func (f *Frame) groupBy(key, value, agg string) dataframe.DataFrame {
	keys := f.column(key)
	if value == "" {
		value, agg = "count", "count"
	}
	fn, ok := aggregations[agg]
	if !ok {
		f.env.throw("groupBy: unknown aggregation %q", agg)
	}

	var vals []float64
	if agg == "count" && value == "count" {
		vals = make([]float64, keys.Len())
	} else {
		vals = f.column(value).Float()
	}

	type group struct {
		key  series.Element
		vals []float64
	}
	var groups []*group
	index := make(map[string]*group)
	for i := range keys.Len() {
		el := keys.Elem(i)
		if isMissing(el) {
			continue
		}
		g, ok := index[el.String()]
		if !ok {
			g = &group{key: el}
			index[el.String()] = g
			groups = append(groups, g)
		}
		if !math.IsNaN(vals[i]) {
			g.vals = append(g.vals, vals[i])
		}
	}

	numericKey := keys.Type() == series.Int || keys.Type() == series.Float
	slices.SortStableFunc(groups, func(a, b *group) int {
		if numericKey {
			x, y := a.key.Float(), b.key.Float()
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
		return compareStrings(a.key.String(), b.key.String())
	})

	keyVals := make([]any, len(groups))
	out := make([]float64, len(groups))
	for i, g := range groups {
		keyVals[i] = cellValue(g.key)
		out[i] = fn(g.vals)
	}

	outCol := series.New(out, series.Float, value)
	if agg == "count" {
		counts := make([]int, len(out))
		for i, c := range out {
			counts[i] = int(c)
		}
		outCol = series.New(counts, series.Int, value)
	}
	return dataframe.New(series.New(keyVals, keys.Type(), key), outCol)
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (f *Frame) records() goja.Value {
	vm := f.env.VM
	df := f.table.Frame()
	names := df.Names()
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = df.Col(n)
	}
	rows := make([]any, df.Nrow())
	for r := range rows {
		obj := vm.NewObject()
		for i, n := range names {
			_ = obj.Set(n, cellValue(cols[i].Elem(r)))
		}
		rows[r] = obj
	}
	return vm.NewArray(rows...)
}

// dropna removes rows with a missing value in any column, or in the given
// subset of columns.
func (f *Frame) dropna(subset goja.Value) {
	df := f.table.Frame()
	names := df.Names()
	if !isNullish(subset) {
		if isArrayLike(subset) {
			names = f.env.strs(subset)
		} else {
			names = []string{subset.String()}
		}
	}
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = f.column(n)
	}

	var keep []int
	for r := range df.Nrow() {
		ok := true
		for _, c := range cols {
			if isMissing(c.Elem(r)) {
				ok = false
				break
			}
		}
		if ok {
			keep = append(keep, r)
		}
	}
	switch len(keep) {
	case df.Nrow():
		return
	case 0:
		f.replace(emptyLike(df))
	default:
		f.replace(df.Subset(keep))
	}
}

// rename accepts (old, new) or a {old: new} mapping.
func (f *Frame) rename(call goja.FunctionCall) {
	pairs := map[string]string{}
	if arg, ok := call.Argument(0).(*goja.Object); ok && len(call.Arguments) == 1 {
		for _, k := range arg.Keys() {
			pairs[k] = arg.Get(k).String()
		}
	} else {
		pairs[stringArg(call, 0, "")] = stringArg(call, 1, "")
	}

	df := f.table.Frame()
	for old, name := range pairs {
		f.column(old)
		if name == "" {
			f.env.throw("rename: new name for %q is empty", old)
		}
		df = df.Rename(name, old)
		if df.Err != nil {
			f.env.throw("rename: %v", df.Err)
		}
	}
	f.replace(df)
}
