package runtime

import (
	"fmt"
	"math"
	"strconv"

	"github.com/dop251/goja"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Table is the storage behind a frame. Mutating frame methods replace the
// stored frame through SetFrame, which is how script edits reach the
// dataset holder.
type Table interface {
	Frame() dataframe.DataFrame
	SetFrame(dataframe.DataFrame)
}

// MemTable is a Table that lives only inside one execution.
type MemTable struct {
	df dataframe.DataFrame
}

// NewMemTable wraps df.
func NewMemTable(df dataframe.DataFrame) *MemTable {
	return &MemTable{df: df}
}

func (t *MemTable) Frame() dataframe.DataFrame     { return t.df }
func (t *MemTable) SetFrame(df dataframe.DataFrame) { t.df = df }

// seriesFromValues infers a column type from script values: integers stay
// Int, numbers with gaps become Float, all booleans become Bool and
// anything else is String. null and undefined become missing values.
func seriesFromValues(name string, vals []goja.Value) series.Series {
	kind := series.Int
	seen := false
	hasNull := false
	for _, v := range vals {
		if isNullish(v) {
			hasNull = true
			continue
		}
		var k series.Type
		switch x := v.Export().(type) {
		case int64:
			k = series.Int
		case float64:
			k = series.Float
			if !math.IsNaN(x) && !math.IsInf(x, 0) && x == math.Trunc(x) && math.Abs(x) < 1<<53 {
				k = series.Int
			}
		case bool:
			k = series.Bool
		default:
			k = series.String
		}
		if !seen {
			kind, seen = k, true
			continue
		}
		kind = widen(kind, k)
	}
	if !seen {
		kind = series.Float
	}
	if hasNull && kind == series.Int {
		kind = series.Float
	}

	items := make([]any, len(vals))
	for i, v := range vals {
		if isNullish(v) {
			items[i] = nil
			continue
		}
		switch kind {
		case series.Float:
			items[i] = v.ToFloat()
		case series.Int:
			items[i] = int(v.ToInteger())
		case series.Bool:
			items[i] = v.ToBoolean()
		default:
			items[i] = v.String()
		}
	}
	return series.New(items, kind, name)
}

func widen(a, b series.Type) series.Type {
	switch {
	case a == b:
		return a
	case (a == series.Int && b == series.Float) || (a == series.Float && b == series.Int):
		return series.Float
	default:
		return series.String
	}
}

// broadcast repeats a scalar n times.
func broadcast(v goja.Value, n int) []goja.Value {
	out := make([]goja.Value, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// cellValue converts one series element to a plain Go value.
func cellValue(el series.Element) any {
	if el.IsNA() {
		return nil
	}
	switch el.Type() {
	case series.Int:
		v, err := el.Int()
		if err != nil {
			return nil
		}
		return v
	case series.Float:
		f := el.Float()
		if math.IsNaN(f) {
			return nil
		}
		return f
	case series.Bool:
		b, err := el.Bool()
		if err != nil {
			return nil
		}
		return b
	default:
		return el.String()
	}
}

// toNumeric converts s to Float, leaving unparsable cells missing.
func toNumeric(s series.Series) series.Series {
	if s.Type() == series.Float {
		return s.Copy()
	}
	recs := s.Records()
	out := make([]float64, len(recs))
	for i, r := range recs {
		if s.Elem(i).IsNA() {
			out[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(r, 64)
		if err != nil {
			f = math.NaN()
		}
		out[i] = f
	}
	return series.New(out, series.Float, s.Name)
}

func isMissing(el series.Element) bool {
	if el.IsNA() {
		return true
	}
	return el.Type() == series.Float && math.IsNaN(el.Float())
}

// emptyLike returns a zero-row frame with df's columns and types.
func emptyLike(df dataframe.DataFrame) dataframe.DataFrame {
	names := df.Names()
	types := df.Types()
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = series.New([]string{}, types[i], n)
	}
	return dataframe.New(cols...)
}

func typeName(t series.Type) string {
	switch t {
	case series.Int:
		return "int"
	case series.Float:
		return "float"
	case series.Bool:
		return "bool"
	case series.String:
		return "string"
	default:
		return fmt.Sprint(t)
	}
}
