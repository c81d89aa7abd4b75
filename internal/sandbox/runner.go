// Package sandbox runs validated scripts in a fresh JavaScript VM per
// execution and captures what they print, draw and compute.
package sandbox

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/runtime"
)

// Kind classifies how an execution ended.
type Kind string

const (
	KindOK            Kind = "ok"
	KindFault         Kind = "fault"
	KindStderr        Kind = "stderr"
	KindLimitExceeded Kind = "limit_exceeded"
	KindCancelled     Kind = "cancelled"
)

// Outcome is the result of one execution. It is never mutated after
// Execute returns.
type Outcome struct {
	ID            string         `json:"id"`
	Success       bool           `json:"success"`
	Kind          Kind           `json:"kind"`
	Output        string         `json:"output"`
	Error         string         `json:"error,omitempty"`
	Figures       []string       `json:"figures"`
	Results       map[string]any `json:"results"`
	Duration      time.Duration  `json:"duration"`
	LimitExceeded bool           `json:"limit_exceeded,omitempty"`
	CodeHash      string         `json:"code_hash"`
}

// Options configures a Runner.
type Options struct {
	Limits        Limits
	MaxConcurrent int
	DatasetName   string // Global the dataset is bound to; "df" when empty
	FigureWidth   float64
	FigureHeight  float64
	Seed          uint64           // Math.random seed, identical for every execution
	Clock         func() time.Time // Script-visible clock; fixed epoch when nil
	Registry      *runtime.Registry
}

// Runner executes scripts. It is safe for concurrent use: every execution
// gets its own VM, output buffers and figure sink.
type Runner struct {
	opts   Options
	sem    chan struct{} // Concurrency limiter
	active atomic.Int64  // Active execution count
	mu     sync.Mutex    // Protects shutdown state
	closed bool
}

// NewRunner creates a runner, filling unset options with defaults.
func NewRunner(opts Options) *Runner {
	opts.Limits = opts.Limits.orDefaults(DefaultLimits())
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 16
	}
	if opts.DatasetName == "" {
		opts.DatasetName = "df"
	}
	if opts.Registry == nil {
		opts.Registry = runtime.NewRegistry()
	}
	return &Runner{
		opts: opts,
		sem:  make(chan struct{}, opts.MaxConcurrent),
	}
}

// Registry returns the module registry scripts can require from.
func (r *Runner) Registry() *runtime.Registry {
	return r.opts.Registry
}

// Limits returns the default per-execution limits.
func (r *Runner) Limits() Limits {
	return r.opts.Limits
}

// Execute runs code with the runner's default limits.
func (r *Runner) Execute(ctx context.Context, code string, table runtime.Table) *Outcome {
	return r.ExecuteWithLimits(ctx, code, table, r.opts.Limits)
}

// ExecuteWithLimits runs code against table, which is bound under the
// dataset name when non-nil. It never returns nil and never panics: script
// faults, timeouts and cancellation are all reported on the Outcome.
func (r *Runner) ExecuteWithLimits(ctx context.Context, code string, table runtime.Table, limits Limits) *Outcome {
	execID := uuid.New().String()
	codeHash := fmt.Sprintf("%x", sha256.Sum256([]byte(code)))

	logger := log.With().
		Str("exec_id", execID).
		Str("code_hash", codeHash[:16]).
		Logger()

	logger.Debug().Int("code_bytes", len(code)).Msg("execution requested")

	out := &Outcome{ID: execID, CodeHash: codeHash, Figures: []string{}, Results: map[string]any{}}

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return out.cancelled(errors.New("runner is closed"))
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return out.cancelled(ctx.Err())
	}

	r.active.Add(1)
	defer r.active.Add(-1)

	limits = limits.orDefaults(r.opts.Limits)
	execCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	start := time.Now()
	r.run(execCtx, ctx, code, table, limits, out)
	out.Duration = time.Since(start)

	ev := logger.Info()
	if !out.Success {
		ev = logger.Warn().Str("kind", string(out.Kind))
	}
	ev.Bool("success", out.Success).
		Int("figures", len(out.Figures)).
		Int("results", len(out.Results)).
		Dur("duration", out.Duration).
		Msg("execution completed")

	return out
}

func (r *Runner) run(execCtx, parent context.Context, code string, table runtime.Table, limits Limits, out *Outcome) {
	vm := goja.New()
	vm.SetMaxCallStackSize(limits.MaxCallStack)
	seeded := rand.New(rand.NewPCG(r.opts.Seed, r.opts.Seed))
	vm.SetRandSource(seeded.Float64)

	sink := runtime.NewSink()
	std := newStreams(vm, limits.MaxOutputBytes)

	// Partial output and figures survive every failure path.
	defer func() {
		out.Output = std.stdout.String()
		out.Figures = sink.Figures()
	}()

	if err := disableDynamicCode(vm); err != nil {
		out.fault(fmt.Sprintf("preparing sandbox: %v", err))
		return
	}
	env := runtime.NewEnv(vm, r.opts.Registry, sink, runtime.Options{
		FigureWidth:  r.opts.FigureWidth,
		FigureHeight: r.opts.FigureHeight,
		Clock:        r.opts.Clock,
	})
	libs, err := env.Bind()
	if err != nil {
		out.fault(fmt.Sprintf("binding libraries: %v", err))
		return
	}
	console, err := std.bind()
	if err != nil {
		out.fault(fmt.Sprintf("binding console: %v", err))
		return
	}
	if table != nil {
		if err := env.BindTable(r.opts.DatasetName, table); err != nil {
			out.fault(fmt.Sprintf("binding dataset: %v", err))
			return
		}
	}
	ns := newNamespace(vm)
	ns.reserve(libs...)
	ns.reserve(console...)
	ns.reserve(r.opts.DatasetName)

	prog, err := parseScript(code)
	if err != nil {
		out.fault(fmt.Sprintf("SyntaxError: %v", err))
		return
	}
	compiled, err := goja.CompileAST(prog, false)
	if err != nil {
		out.fault(fmt.Sprintf("SyntaxError: %v", err))
		return
	}

	stop := context.AfterFunc(execCtx, func() {
		vm.Interrupt(execCtx.Err())
	})
	err = runProgram(vm, compiled)
	stop()
	if err != nil {
		var interrupted *goja.InterruptedError
		switch {
		case errors.As(err, &interrupted) && errors.Is(execCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil:
			out.limitExceeded(fmt.Sprintf("%v: execution exceeded %s", ErrLimitExceeded, limits.Timeout))
		case errors.As(err, &interrupted):
			out.cancelled(parent.Err())
		default:
			out.fault(faultText(err))
		}
		return
	}

	if std.stderr.Len() > 0 {
		out.Kind = KindStderr
		out.Error = std.stderr.String()
		return
	}

	out.Success = true
	out.Kind = KindOK
	out.Results = ns.results(prog)
}

// runProgram runs p and turns any panic that escapes the engine into an
// error.
func runProgram(vm *goja.Runtime, p *goja.Program) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			switch x := rec.(type) {
			case *goja.InterruptedError:
				err = x
			case *goja.Exception:
				err = x
			case *goja.StackOverflowError:
				err = x
			case error:
				err = fmt.Errorf("internal error: %w", x)
			default:
				err = fmt.Errorf("internal error: %v", x)
			}
		}
	}()
	_, err = vm.RunProgram(p)
	return err
}

// faultText returns the diagnostic for a script fault, with the JS stack
// trace when there is one.
func faultText(err error) string {
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return "RangeError: Maximum call stack size exceeded\n" + overflow.Error()
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return ex.String()
	}
	return err.Error()
}

// functionKinds evaluate to one function of each kind whose prototype
// carries a code-compiling constructor.
var functionKinds = []string{
	"(function () {})",
	"(function* () {})",
	"(async function () {})",
	"(async function* () {})",
}

// disableDynamicCode removes eval and makes every function constructor
// throw, including when reached through a prototype's constructor property.
func disableDynamicCode(vm *goja.Runtime) error {
	if err := vm.GlobalObject().Delete("eval"); err != nil {
		return err
	}
	blocked := vm.ToValue(func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("Function constructor is disabled"))
	})
	for _, src := range functionKinds {
		fn, err := vm.RunString(src)
		if err != nil {
			return fmt.Errorf("evaluating %s: %w", src, err)
		}
		proto := fn.ToObject(vm).Prototype()
		if proto == nil {
			return fmt.Errorf("%s has no prototype", src)
		}
		if err := proto.DefineDataProperty("constructor", blocked, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return err
		}
	}
	return vm.GlobalObject().DefineDataProperty("Function", blocked, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
}

func (o *Outcome) fault(msg string) *Outcome {
	o.Success = false
	o.Kind = KindFault
	o.Error = msg
	return o
}

func (o *Outcome) limitExceeded(msg string) *Outcome {
	o.Success = false
	o.Kind = KindLimitExceeded
	o.LimitExceeded = true
	o.Error = msg
	return o
}

func (o *Outcome) cancelled(cause error) *Outcome {
	o.Success = false
	o.Kind = KindCancelled
	o.Error = fmt.Sprintf("%v: %v", ErrCancelled, cause)
	return o
}

// ActiveCount returns the number of currently running executions.
func (r *Runner) ActiveCount() int64 {
	return r.active.Load()
}

// Close stops the runner from accepting new executions.
func (r *Runner) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func parseScript(code string) (*ast.Program, error) {
	return parser.ParseFile(nil, "script.js", code, 0, parser.WithDisableSourceMaps)
}
