package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-sandbox/internal/runtime"
)

func newTable() *runtime.MemTable {
	return runtime.NewMemTable(dataframe.New(
		series.New([]string{"a", "b", "c"}, series.String, "label"),
		series.New([]int{10, 20, 30}, series.Int, "x"),
	))
}

func execute(t *testing.T, code string) *Outcome {
	t.Helper()
	out := NewRunner(Options{}).Execute(context.Background(), code, newTable())
	require.NotNil(t, out)
	return out
}

func TestExecute_PrintColumnSum(t *testing.T) {
	out := execute(t, `print(df.x.sum())`)
	assert.True(t, out.Success, out.Error)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, "60\n", out.Output)
	assert.Empty(t, out.Figures)
	assert.Empty(t, out.Error)
}

func TestExecute_PartialOutputOnFault(t *testing.T) {
	out := execute(t, `
		print("before");
		plt.plot([1, 2, 3]);
		plt.show();
		throw new Error("boom");
		print("after");`)
	assert.False(t, out.Success)
	assert.Equal(t, KindFault, out.Kind)
	assert.Equal(t, "before\n", out.Output)
	assert.Contains(t, out.Error, "boom")
	assert.Len(t, out.Figures, 1, "figures drawn before the fault are kept")
	assert.Empty(t, out.Results)
}

func TestExecute_HostErrorIsFault(t *testing.T) {
	out := execute(t, `print("x"); df.col("missing")`)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, `no column named "missing"`)
	assert.Equal(t, "x\n", out.Output)
}

func TestExecute_TwoCharts(t *testing.T) {
	out := execute(t, `
		plt.bar(df.label, df.x);
		plt.show();
		px.line(df, {x: "label", y: "x"}).show();`)
	require.True(t, out.Success, out.Error)
	require.Len(t, out.Figures, 2)
	for _, f := range out.Figures {
		assert.True(t, strings.HasPrefix(f, "data:image/png;base64,"))
		_, ok := runtime.DecodeDataURI(f)
		assert.True(t, ok)
	}
}

func TestExecute_Deterministic(t *testing.T) {
	code := `
		const r = Math.random();
		const when = new Date().toISOString();
		const total = df.x.mean();
		print(r, when, total);`
	r := NewRunner(Options{Seed: 7})
	a := r.Execute(context.Background(), code, newTable())
	b := r.Execute(context.Background(), code, newTable())
	require.True(t, a.Success, a.Error)
	assert.Equal(t, a.Output, b.Output)
	assert.Equal(t, a.Results, b.Results)
	assert.Contains(t, a.Output, "2024-01-01T00:00:00.000Z")
}

func TestExecute_StderrIsFailure(t *testing.T) {
	out := execute(t, `print("ok"); console.warn("careful"); var kept = 1;`)
	assert.False(t, out.Success)
	assert.Equal(t, KindStderr, out.Kind)
	assert.Equal(t, "careful\n", out.Error)
	assert.Equal(t, "ok\n", out.Output)
	assert.Empty(t, out.Results)
}

func TestExecute_Timeout(t *testing.T) {
	r := NewRunner(Options{Limits: Limits{Timeout: 100 * time.Millisecond}})
	start := time.Now()
	out := r.Execute(context.Background(), `print("spin"); while (true) {}`, nil)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, out.Success)
	assert.True(t, out.LimitExceeded)
	assert.Equal(t, KindLimitExceeded, out.Kind)
	assert.Contains(t, out.Error, "resource limit exceeded")
	assert.Equal(t, "spin\n", out.Output)
	assert.True(t, IsLimitExceeded(Classify(out)))
}

func TestExecute_TimeoutInsideCallback(t *testing.T) {
	r := NewRunner(Options{Limits: Limits{Timeout: 100 * time.Millisecond}})
	out := r.Execute(context.Background(), `df.x.map(v => { while (true) {} })`, newTable())
	assert.True(t, out.LimitExceeded, out.Error)
}

func TestExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := NewRunner(Options{}).Execute(ctx, `print(1)`, nil)
	assert.False(t, out.Success)
	assert.Equal(t, KindCancelled, out.Kind)
	assert.ErrorIs(t, Classify(out), ErrCancelled)
}

func TestExecute_ClosedRunner(t *testing.T) {
	r := NewRunner(Options{})
	require.NoError(t, r.Close())
	out := r.Execute(context.Background(), `print(1)`, nil)
	assert.Equal(t, KindCancelled, out.Kind)
}

func TestExecute_DynamicCodeDisabled(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"eval", `eval("1 + 1")`},
		{"Function", `Function("return 1")()`},
		{"constructor", `(function () {}).constructor("return 1")()`},
		{"generator constructor", `Object.getPrototypeOf(function* () {})["constr" + "uctor"]("yield 1")().next()`},
		{"async constructor", `Object.getPrototypeOf(async function () {})["constr" + "uctor"]("return 1")()`},
		{"async generator constructor", `Object.getPrototypeOf(async function* () {})["constr" + "uctor"]("yield 1")()`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := execute(t, tt.code)
			assert.False(t, out.Success)
			assert.Equal(t, KindFault, out.Kind)
		})
	}

	out := execute(t, `print(typeof eval)`)
	assert.Equal(t, "undefined\n", out.Output)
}

func TestExecute_StackOverflow(t *testing.T) {
	out := execute(t, `function f(n) { return f(n + 1) + 1; } f(0);`)
	assert.False(t, out.Success)
	assert.Equal(t, KindFault, out.Kind)
	assert.True(t, strings.HasPrefix(out.Error, "RangeError: Maximum call stack size exceeded"), out.Error)
	assert.Contains(t, out.Error, "at f")
}

func TestExecute_SyntaxError(t *testing.T) {
	out := execute(t, `let = ;`)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "SyntaxError")
}

func TestExecute_NoDataset(t *testing.T) {
	out := NewRunner(Options{}).Execute(context.Background(), `print(df.length)`, nil)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "ReferenceError")
}

func TestExecute_CustomDatasetName(t *testing.T) {
	r := NewRunner(Options{DatasetName: "sales"})
	out := r.Execute(context.Background(), `print(sales.length)`, newTable())
	assert.True(t, out.Success, out.Error)
	assert.Equal(t, "3\n", out.Output)
}

func TestExecute_MutationVisibleToNextScript(t *testing.T) {
	r := NewRunner(Options{})
	table := newTable()

	first := r.Execute(context.Background(), `df.setColumn("double", df.x.values().map(v => v * 2))`, table)
	require.True(t, first.Success, first.Error)

	second := r.Execute(context.Background(), `print(df.double.sum())`, table)
	require.True(t, second.Success, second.Error)
	assert.Equal(t, "120\n", second.Output)
	assert.Contains(t, table.Frame().Names(), "double")
}

func TestExecute_Require(t *testing.T) {
	out := execute(t, `
		const st = require("statistics");
		print(st.median([3, 1, 2]), require("numeric") === np);`)
	assert.True(t, out.Success, out.Error)
	assert.Equal(t, "2 true\n", out.Output)
}

func TestExecute_OutputTruncated(t *testing.T) {
	r := NewRunner(Options{Limits: Limits{MaxOutputBytes: 1024}})
	out := r.Execute(context.Background(), `for (let i = 0; i < 1000; i++) print("0123456789");`, nil)
	assert.True(t, out.Success, out.Error)
	assert.True(t, strings.HasSuffix(out.Output, truncationMarker))
	assert.Len(t, out.Output, 1024+len(truncationMarker))
}

func TestExecute_PrintFormatting(t *testing.T) {
	out := execute(t, `
		print([1, 2, 3]);
		print({a: 1});
		print("s", 1.5, true, null, undefined);`)
	require.True(t, out.Success, out.Error)
	assert.Equal(t, "[1,2,3]\n{\"a\":1}\ns 1.5 true null undefined\n", out.Output)
}

func TestExecute_Concurrent(t *testing.T) {
	r := NewRunner(Options{MaxConcurrent: 4})

	var wg sync.WaitGroup
	outs := make([]*Outcome, 8)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := fmt.Sprintf(`for (let k = 0; k < %d; k++) { plt.plot([1, 2]); plt.show(); } print(%d);`, i%3+1, i)
			outs[i] = r.Execute(context.Background(), code, nil)
		}()
	}
	wg.Wait()

	for i, out := range outs {
		require.True(t, out.Success, out.Error)
		assert.Equal(t, fmt.Sprintf("%d\n", i), out.Output)
		assert.Len(t, out.Figures, i%3+1, "figures must not leak between executions")
	}
	assert.Zero(t, r.ActiveCount())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(&Outcome{Success: true}))
	assert.ErrorIs(t, Classify(&Outcome{Kind: KindFault}), ErrExecutionFault)
	assert.ErrorIs(t, Classify(&Outcome{Kind: KindStderr}), ErrSilentStderr)
	assert.True(t, IsFault(Classify(&Outcome{Kind: KindStderr})))

	var execErr *ExecutionError
	require.ErrorAs(t, Classify(&Outcome{ID: "abc", Kind: KindLimitExceeded}), &execErr)
	assert.Equal(t, "execution abc: execute: resource limit exceeded", execErr.Error())
}
