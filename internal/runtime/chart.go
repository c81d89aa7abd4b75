package runtime

import (
	"fmt"

	"github.com/dop251/goja"
)

// chartModule is the figure-returning chart library, bound as px. Every
// constructor takes a frame and an options object ({x, y, title, ...}) and
// returns a figure with show() and update().
type chartModule struct{}

func (chartModule) Name() string  { return "chart" }
func (chartModule) Alias() string { return "px" }

func (chartModule) Load(e *Env) (goja.Value, error) {
	xy := func(kind LayerKind) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			frame, opts := e.chartArgs(call)
			ys := e.chartValues(frame, opts, "y")
			xs, cats := indexAxis(len(ys)), []string(nil)
			if x := e.option(opts, "x"); x != nil {
				xs, cats = e.axis(e.chartColumn(frame, x))
			}
			if len(xs) != len(ys) {
				e.throw("x and y must have the same length (%d vs %d)", len(xs), len(ys))
			}
			xs, ys, cats = dropMissingPoints(xs, ys, cats)
			fig := e.chartFigure(opts, "y")
			fig.Layers = []Layer{{Kind: kind, Label: e.label(opts, "y"), X: xs, Y: ys, Categories: cats}}
			return e.figureObject(fig)
		}
	}

	return e.object(map[string]any{
		"line":    xy(LineLayer),
		"scatter": xy(ScatterLayer),
		"bar": func(call goja.FunctionCall) goja.Value {
			frame, opts := e.chartArgs(call)
			x := e.option(opts, "x")
			if x == nil {
				e.throw("px.bar: x is required")
			}
			cats := e.strs(e.chartColumn(frame, x))
			ys := e.chartValues(frame, opts, "y")
			if len(cats) != len(ys) {
				e.throw("px.bar: %d labels but %d values", len(cats), len(ys))
			}
			fig := e.chartFigure(opts, "y")
			fig.Layers = []Layer{{Kind: BarLayer, Label: e.label(opts, "y"), Y: ys, Categories: cats}}
			return e.figureObject(fig)
		},
		"histogram": func(call goja.FunctionCall) goja.Value {
			frame, opts := e.chartArgs(call)
			xs := dropNaN(e.chartValues(frame, opts, "x"))
			bins := 10
			if b := e.option(opts, "bins"); b != nil {
				bins = int(b.ToInteger())
			}
			fig := e.chartFigure(opts, "x")
			fig.YLabel = "count"
			fig.Layers = []Layer{{Kind: HistLayer, Y: xs, Bins: bins}}
			return e.figureObject(fig)
		},
	}), nil
}

// chartArgs accepts (frame, opts) or (opts) where opts carries arrays.
func (e *Env) chartArgs(call goja.FunctionCall) (*Frame, goja.Value) {
	first := call.Argument(0)
	if fr, ok := first.Export().(*Frame); ok {
		return fr, call.Argument(1)
	}
	return nil, first
}

// chartColumn resolves a column name against frame, or passes arrays through.
func (e *Env) chartColumn(frame *Frame, col goja.Value) goja.Value {
	if isArrayLike(col) {
		return col
	}
	if frame == nil {
		e.throw("column %q given without a frame", col.String())
	}
	return e.newSeries(frame.column(col.String())).Value()
}

func (e *Env) chartValues(frame *Frame, opts goja.Value, key string) []float64 {
	col := e.option(opts, key)
	if col == nil {
		e.throw("%s is required", key)
	}
	return e.floats(e.chartColumn(frame, col))
}

func (e *Env) label(opts goja.Value, key string) string {
	if v := e.option(opts, key); v != nil && !isArrayLike(v) {
		return v.String()
	}
	return ""
}

func (e *Env) chartFigure(opts goja.Value, valueKey string) *Figure {
	return &Figure{
		Title:  e.optionString(opts, "title", ""),
		XLabel: e.label(opts, "x"),
		YLabel: e.label(opts, valueKey),
	}
}

// figureObject exposes fig to scripts. show() renders it into the sink and
// may be called more than once.
func (e *Env) figureObject(fig *Figure) goja.Value {
	obj := e.VM.NewObject()
	_ = obj.Set("show", func(goja.FunctionCall) goja.Value {
		e.render(fig)
		return goja.Undefined()
	})
	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		opts := call.Argument(0)
		fig.Title = e.optionString(opts, "title", fig.Title)
		fig.XLabel = e.optionString(opts, "xlabel", fig.XLabel)
		fig.YLabel = e.optionString(opts, "ylabel", fig.YLabel)
		if v := e.option(opts, "legend"); v != nil {
			fig.Legend = v.ToBoolean()
		}
		return obj
	})
	_ = obj.Set("toString", func(goja.FunctionCall) goja.Value {
		return e.VM.ToValue(fmt.Sprintf("Figure(%q, %d layers)", fig.Title, len(fig.Layers)))
	})
	return obj
}
