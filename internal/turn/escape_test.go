package turn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-sandbox/internal/sandbox"
)

// Every attempt must end either rejected before execution or failed inside
// the VM. Nothing may succeed.
func TestEscapeAttempts(t *testing.T) {
	p := newProcessor(Options{
		Executor: sandbox.NewRunner(sandbox.Options{Limits: sandbox.Limits{Timeout: 200 * time.Millisecond}}),
	})

	tests := []struct {
		name     string
		code     string
		rejected bool
	}{
		{"require fs", `const fs = require("fs"); print(fs)`, true},
		{"require child_process", `require("child_process")`, true},
		{"process exit", `process.exit(1)`, true},
		{"eval", `eval("1 + 1")`, true},
		{"function constructor", `const f = new Function("return 1"); f()`, true},
		{"prototype constructor", `[].map.constructor("return this")()`, true},
		{"global object", `globalThis.print("x")`, true},
		{"os call", `os.system("id")`, true},
		{"generator constructor", `var G = Object.getPrototypeOf(function* () {})["constr" + "uctor"]; G("yield 1")().next()`, false},
		{"async function constructor", `var A = Object.getPrototypeOf(async function () {})["constr" + "uctor"]; A("return 1")()`, false},
		{"aliased require", `var r = require; r("fs")`, true},
		{"metadata fetch", `fetch("http://169.254.169.254/latest/meta-data/")`, false},
		{"xml request", `new XMLHttpRequest()`, false},
		{"busy loop", `while (true) {}`, false},
		{"memory bomb", `const a = []; while (true) { a.push("A".repeat(16)) }`, false},
		{"deep recursion", `function f(n) { return f(n + 1) + 1 } f(0)`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res := p.Process(context.Background(), fence(tt.code), nil)
			require.Len(t, res.Scripts, 1)
			sr := res.Scripts[0]

			if tt.rejected {
				assert.False(t, sr.Verdict.Safe, "expected rejection")
				assert.False(t, sr.Executed(), "rejected scripts must not run")
				return
			}
			require.True(t, sr.Executed(), sr.Verdict.Reason)
			assert.False(t, sr.Succeeded(), "escape attempt succeeded: %s", sr.Outcome.Output)
		})
	}
}

func TestEscapeAttempts_BenignStillRuns(t *testing.T) {
	res := newProcessor(Options{}).Process(context.Background(), fence(`print("hello world")`), nil)
	require.Len(t, res.Scripts, 1)
	require.True(t, res.Scripts[0].Succeeded())
	assert.Equal(t, "hello world\n", res.Scripts[0].Outcome.Output)
}

func TestTimeoutEnforcement(t *testing.T) {
	p := newProcessor(Options{
		Executor: sandbox.NewRunner(sandbox.Options{Limits: sandbox.Limits{Timeout: 100 * time.Millisecond}}),
	})

	start := time.Now()
	res := p.Process(context.Background(), fence(`while (true) {}`)+fence(`print("next")`), nil)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, res.Scripts, 2)
	assert.Equal(t, sandbox.KindLimitExceeded, res.Scripts[0].Outcome.Kind)
	assert.True(t, res.Scripts[1].Succeeded(), "a timed out script must not stop the turn")
}

func TestResourceIsolation(t *testing.T) {
	p := newProcessor(Options{})
	ctx := context.Background()

	first := p.Process(ctx, fence(`var leaked = 41`), nil)
	second := p.Process(ctx, fence(`print(typeof leaked)`), nil)

	require.True(t, first.Scripts[0].Succeeded())
	require.True(t, second.Scripts[0].Succeeded())
	assert.Equal(t, "undefined\n", second.Scripts[0].Outcome.Output)
	assert.NotEqual(t, first.Scripts[0].Outcome.ID, second.Scripts[0].Outcome.ID)
}
