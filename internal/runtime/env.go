package runtime

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"gonum.org/v1/plot/vg"
)

// DefaultEpoch is the fixed wall clock scripts observe, so that output does
// not depend on when a script ran.
var DefaultEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options configures an Env.
type Options struct {
	FigureWidth  float64 // inches
	FigureHeight float64 // inches
	Clock        func() time.Time
}

// Env is the per-execution state shared by all modules: the VM, the render
// sink and the pyplot-style current figure.
type Env struct {
	VM   *goja.Runtime
	Sink *Sink

	registry *Registry
	opts     Options
	loaded   map[string]goja.Value
	current  *Figure
}

// NewEnv creates the library state for one execution on vm.
func NewEnv(vm *goja.Runtime, registry *Registry, sink *Sink, opts Options) *Env {
	if opts.FigureWidth <= 0 {
		opts.FigureWidth = 6
	}
	if opts.FigureHeight <= 0 {
		opts.FigureHeight = 4
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return DefaultEpoch }
	}
	if sink == nil {
		sink = NewSink()
	}
	vm.SetTimeSource(opts.Clock)
	return &Env{
		VM:       vm,
		Sink:     sink,
		registry: registry,
		opts:     opts,
		loaded:   make(map[string]goja.Value),
	}
}

// Bind installs require() and every module alias as globals. It returns the
// names it bound.
func (e *Env) Bind() ([]string, error) {
	var bound []string
	for _, name := range e.registry.Names() {
		m, _ := e.registry.Get(name)
		alias := m.Alias()
		if alias == "" {
			continue
		}
		v, err := e.Require(name)
		if err != nil {
			return nil, err
		}
		if err := e.VM.Set(alias, v); err != nil {
			return nil, fmt.Errorf("binding %s: %w", alias, err)
		}
		bound = append(bound, alias)
	}

	if err := e.VM.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0)
		if isNullish(name) {
			e.throw("require: module name is required")
		}
		v, err := e.Require(name.String())
		if err != nil {
			panic(e.VM.NewGoError(err))
		}
		return v
	}); err != nil {
		return nil, fmt.Errorf("binding require: %w", err)
	}
	bound = append(bound, "require")
	return bound, nil
}

// Require loads a module once per execution. Repeated calls, and the global
// alias, share the same object.
func (e *Env) Require(name string) (goja.Value, error) {
	m, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	key := m.Name()
	if v, ok := e.loaded[key]; ok {
		return v, nil
	}
	v, err := m.Load(e)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	e.loaded[key] = v
	return v, nil
}

// BindTable exposes t to scripts under name as a frame.
func (e *Env) BindTable(name string, t Table) error {
	return e.VM.Set(name, e.NewFrame(t).Value())
}

// Now returns the script-visible clock.
func (e *Env) Now() time.Time {
	return e.opts.Clock()
}

func (e *Env) figureSize() (vg.Length, vg.Length) {
	return vg.Length(e.opts.FigureWidth) * vg.Inch, vg.Length(e.opts.FigureHeight) * vg.Inch
}

// render draws fig and appends it to the sink.
func (e *Env) render(fig *Figure) {
	w, h := e.figureSize()
	png, err := fig.Render(w, h)
	if err != nil {
		e.throw("rendering figure: %v", err)
	}
	e.Sink.Add(png)
}

// throw raises a JavaScript TypeError from inside a host function.
func (e *Env) throw(format string, args ...any) {
	panic(e.VM.NewTypeError("%s", fmt.Sprintf(format, args...)))
}

func (e *Env) object(fns map[string]any) *goja.Object {
	obj := e.VM.NewObject()
	for name, fn := range fns {
		_ = obj.Set(name, fn)
	}
	return obj
}
