package runtime

import (
	"bytes"
	"fmt"
	"math"

	"github.com/dop251/goja"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// LayerKind selects how a layer is drawn.
type LayerKind int

const (
	LineLayer LayerKind = iota
	ScatterLayer
	BarLayer
	HistLayer
)

// Layer is one data series on a figure.
type Layer struct {
	Kind       LayerKind
	Label      string
	X, Y       []float64
	Categories []string
	Bins       int
}

// Figure is an in-memory chart. Nothing is drawn until Render.
type Figure struct {
	Title  string
	XLabel string
	YLabel string
	Legend bool
	Layers []Layer
}

// Render draws the figure as PNG.
func (f *Figure) Render(w, h vg.Length) ([]byte, error) {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = f.XLabel
	p.Y.Label.Text = f.YLabel

	var nominal []string
	bars := 0
	for _, l := range f.Layers {
		if l.Kind == BarLayer {
			bars++
		}
	}
	barWidth := vg.Points(20)
	if bars > 1 {
		barWidth = vg.Points(40 / float64(bars))
	}
	barIndex := 0

	for i, l := range f.Layers {
		c := plotutil.Color(i)
		var thumb plot.Thumbnailer
		switch l.Kind {
		case LineLayer, ScatterLayer:
			pts := make(plotter.XYs, len(l.Y))
			for j := range l.Y {
				pts[j].X, pts[j].Y = l.X[j], l.Y[j]
			}
			if l.Kind == LineLayer {
				line, err := plotter.NewLine(pts)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", i, err)
				}
				line.Color = c
				p.Add(line)
				thumb = line
			} else {
				sc, err := plotter.NewScatter(pts)
				if err != nil {
					return nil, fmt.Errorf("scatter %d: %w", i, err)
				}
				sc.GlyphStyle.Color = c
				p.Add(sc)
				thumb = sc
			}
			if len(l.Categories) > 0 {
				nominal = l.Categories
			}
		case BarLayer:
			bc, err := plotter.NewBarChart(plotter.Values(l.Y), barWidth)
			if err != nil {
				return nil, fmt.Errorf("bar %d: %w", i, err)
			}
			bc.Color = c
			bc.LineStyle.Width = vg.Length(0)
			bc.Offset = barWidth * vg.Length(float64(barIndex)-float64(bars-1)/2)
			barIndex++
			p.Add(bc)
			thumb = bc
			nominal = l.Categories
		case HistLayer:
			if len(l.Y) == 0 {
				continue
			}
			bins := l.Bins
			if bins <= 0 {
				bins = 10
			}
			hist, err := plotter.NewHist(plotter.Values(l.Y), bins)
			if err != nil {
				return nil, fmt.Errorf("hist %d: %w", i, err)
			}
			hist.FillColor = c
			p.Add(hist)
			thumb = hist
		}
		if f.Legend && l.Label != "" && thumb != nil {
			p.Legend.Add(l.Label, thumb)
		}
	}
	if len(nominal) > 0 {
		p.NominalX(nominal...)
	}

	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, fmt.Errorf("creating png canvas: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// plotModule is the pyplot-style library, bound as plt. It keeps one
// current figure per execution; show() renders it into the sink.
type plotModule struct{}

func (plotModule) Name() string  { return "plot" }
func (plotModule) Alias() string { return "plt" }

func (plotModule) Load(e *Env) (goja.Value, error) {
	setText := func(set func(*Figure, string)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			set(e.currentFigure(), stringArg(call, 0, ""))
			return goja.Undefined()
		}
	}

	return e.object(map[string]any{
		"figure": func(goja.FunctionCall) goja.Value {
			e.current = &Figure{}
			return goja.Undefined()
		},
		"plot": func(call goja.FunctionCall) goja.Value {
			e.addXY(LineLayer, call)
			return goja.Undefined()
		},
		"scatter": func(call goja.FunctionCall) goja.Value {
			e.addXY(ScatterLayer, call)
			return goja.Undefined()
		},
		"bar": func(call goja.FunctionCall) goja.Value {
			cats := e.strs(call.Argument(0))
			heights := e.floats(call.Argument(1))
			if len(cats) != len(heights) {
				e.throw("plt.bar: %d labels but %d heights", len(cats), len(heights))
			}
			fig := e.currentFigure()
			fig.Layers = append(fig.Layers, Layer{
				Kind:       BarLayer,
				Label:      stringArg(call, 2, ""),
				Y:          heights,
				Categories: cats,
			})
			return goja.Undefined()
		},
		"hist": func(call goja.FunctionCall) goja.Value {
			fig := e.currentFigure()
			fig.Layers = append(fig.Layers, Layer{
				Kind: HistLayer,
				Y:    dropNaN(e.floats(call.Argument(0))),
				Bins: intArg(call, 1, 10),
			})
			return goja.Undefined()
		},
		"title":  setText(func(f *Figure, s string) { f.Title = s }),
		"xlabel": setText(func(f *Figure, s string) { f.XLabel = s }),
		"ylabel": setText(func(f *Figure, s string) { f.YLabel = s }),
		"legend": func(goja.FunctionCall) goja.Value {
			e.currentFigure().Legend = true
			return goja.Undefined()
		},
		"show": func(goja.FunctionCall) goja.Value {
			e.render(e.currentFigure())
			e.current = nil
			return goja.Undefined()
		},
		"close": func(goja.FunctionCall) goja.Value {
			e.current = nil
			return goja.Undefined()
		},
	}), nil
}

// currentFigure returns the current figure, creating one if needed.
func (e *Env) currentFigure() *Figure {
	if e.current == nil {
		e.current = &Figure{}
	}
	return e.current
}

// addXY handles plot(y), plot(y, label), plot(x, y) and plot(x, y, label).
func (e *Env) addXY(kind LayerKind, call goja.FunctionCall) {
	var (
		xs, ys []float64
		cats   []string
		label  string
	)
	second := call.Argument(1)
	if isArrayLike(second) {
		ys = e.floats(second)
		xs, cats = e.axis(call.Argument(0))
		label = stringArg(call, 2, "")
	} else {
		ys = e.floats(call.Argument(0))
		xs = indexAxis(len(ys))
		label = stringArg(call, 1, "")
	}
	if len(xs) != len(ys) {
		e.throw("x and y must have the same length (%d vs %d)", len(xs), len(ys))
	}
	xs, ys, cats = dropMissingPoints(xs, ys, cats)
	fig := e.currentFigure()
	fig.Layers = append(fig.Layers, Layer{Kind: kind, Label: label, X: xs, Y: ys, Categories: cats})
}

// axis reads x values. Non-numeric values are plotted at their index and
// returned as category labels.
func (e *Env) axis(v goja.Value) ([]float64, []string) {
	if s, ok := v.Export().(*Series); ok && !s.numeric() {
		recs := s.s.Records()
		return indexAxis(len(recs)), recs
	}
	if !isArrayLike(v) {
		e.throw("expected an array for x, got %s", v.String())
	}
	elems := e.elements(v)
	numeric := true
	for _, el := range elems {
		if isNullish(el) {
			continue
		}
		switch el.Export().(type) {
		case int64, float64:
		default:
			numeric = false
		}
	}
	if numeric {
		return e.floats(v), nil
	}
	return indexAxis(len(elems)), e.strs(v)
}

func indexAxis(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

// dropMissingPoints removes pairs where either coordinate is NaN.
func dropMissingPoints(xs, ys []float64, cats []string) ([]float64, []float64, []string) {
	var ox, oy []float64
	var oc []string
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		ox = append(ox, xs[i])
		oy = append(oy, ys[i])
		if cats != nil {
			oc = append(oc, cats[i])
		}
	}
	return ox, oy, oc
}
