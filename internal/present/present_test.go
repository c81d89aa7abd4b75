package present

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analyst-sandbox/internal/extract"
	"analyst-sandbox/internal/sandbox"
	"analyst-sandbox/internal/turn"
	"analyst-sandbox/internal/validator"
)

const pngURI = "data:image/png;base64,iVBORw0KGgo="

func sampleResult() *turn.Result {
	return &turn.Result{
		ID:      "turn-1",
		HasCode: true,
		Scripts: []turn.ScriptResult{
			{
				Index:     0,
				Candidate: extract.Candidate{Text: `const total = 60; const by = df.head(1);`},
				Verdict:   validator.Verdict{Safe: true},
				Outcome: &sandbox.Outcome{
					ID:       "exec-1",
					Success:  true,
					Kind:     sandbox.KindOK,
					Output:   "60\n",
					Figures:  []string{pngURI},
					Duration: 12 * time.Millisecond,
					Results: map[string]any{
						"total": int64(60),
						"by":    sandbox.Markup(`<table border="1" class="dataframe"><tr><td>a</td></tr></table>`),
					},
				},
			},
			{
				Index:     1,
				Candidate: extract.Candidate{Text: `require("fs")`},
				Verdict:   validator.Verdict{Safe: false, Rule: validator.RuleImport, Reason: `module "fs" is not allowed`},
			},
			{
				Index:     2,
				Candidate: extract.Candidate{Text: `print("a"); throw new Error("boom")`},
				Verdict:   validator.Verdict{Safe: true},
				Outcome: &sandbox.Outcome{
					ID:      "exec-3",
					Kind:    sandbox.KindFault,
					Output:  "a\n",
					Error:   "Error: boom\n\tat script.js:1:18(7)",
					Figures: []string{},
					Results: map[string]any{},
				},
			},
		},
	}
}

func TestBuildPayload(t *testing.T) {
	p := BuildPayload(sampleResult())
	assert.True(t, p.HasCode)
	assert.Equal(t, "turn-1", p.TurnID)
	require.Len(t, p.ExecutionResults, 3)

	ok := p.ExecutionResults[0]
	assert.True(t, ok.Success)
	assert.Equal(t, "60\n", ok.Output)
	assert.Empty(t, ok.Error)
	assert.Equal(t, []string{pngURI}, ok.Figures)
	assert.EqualValues(t, 12, ok.DurationMS)

	unsafe := p.ExecutionResults[1]
	assert.False(t, unsafe.Success)
	assert.Equal(t, `require("fs")`, unsafe.Code)
	assert.Equal(t, `unsafe script: module "fs" is not allowed`, unsafe.Error)
	assert.Empty(t, unsafe.Output)
	assert.Empty(t, unsafe.Results)
	assert.Empty(t, unsafe.Figures)

	failed := p.ExecutionResults[2]
	assert.False(t, failed.Success)
	assert.Equal(t, "a\n", failed.Output)
	assert.Contains(t, failed.Error, "boom")
}

func TestBuildPayload_NoCode(t *testing.T) {
	p := BuildPayload(&turn.Result{ID: "t"})
	assert.False(t, p.HasCode)
	assert.NotNil(t, p.ExecutionResults)
	assert.Empty(t, p.ExecutionResults)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"turn_id":"t","has_code":false,"execution_results":[]}`, string(b))
}

func TestBuildPayload_JSONFieldNames(t *testing.T) {
	b, err := json.Marshal(BuildPayload(sampleResult()))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	results := raw["execution_results"].([]any)
	first := results[0].(map[string]any)
	for _, k := range []string{"code", "success", "output", "results", "figures"} {
		assert.Contains(t, first, k)
	}
	assert.NotContains(t, first, "error", "error is omitted on success")
	assert.Equal(t, "<table border=\"1\" class=\"dataframe\"><tr><td>a</td></tr></table>",
		first["results"].(map[string]any)["by"])
}

func TestRenderHTML_NoCode(t *testing.T) {
	html, err := RenderHTML(BuildPayload(&turn.Result{ID: "t"}))
	require.NoError(t, err)
	assert.Empty(t, html)
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(BuildPayload(sampleResult()))
	require.NoError(t, err)

	first := strings.Index(html, "Script 1")
	second := strings.Index(html, "Script 2")
	third := strings.Index(html, "Script 3")
	require.True(t, first >= 0 && first < second && second < third, "scripts render in order")

	assert.Contains(t, html, `<table border="1" class="dataframe">`, "table results are embedded")
	assert.Contains(t, html, "<code>total: 60</code>")
	assert.Contains(t, html, `<img class="figure" src="`+pngURI+`"`)
	assert.Contains(t, html, "Executed successfully")
	assert.Contains(t, html, "Execution failed")
	assert.Contains(t, html, `require(&#34;fs&#34;)`, "code is escaped")
}

func TestRenderHTML_EscapesScriptStrings(t *testing.T) {
	p := Payload{HasCode: true, ExecutionResults: []ExecutionResult{{
		Code:    "x",
		Success: true,
		Output:  "<b>hi</b>",
		Results: map[string]any{"s": `<table><script>alert(1)</script>`},
		Figures: []string{"javascript:alert(1)"},
	}}}
	html, err := RenderHTML(p)
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>hi</b>")
	assert.NotContains(t, html, "javascript:alert")
}

func TestRenderText(t *testing.T) {
	text := RenderText(BuildPayload(sampleResult()))
	assert.Contains(t, text, "=== script 1 [ok] exec-1 12ms")
	assert.Contains(t, text, "--- by: <table>")
	assert.Contains(t, text, "--- total: 60")
	assert.Contains(t, text, "--- figure 1")
	assert.Contains(t, text, "=== script 2 [FAILED]")
	assert.Contains(t, text, "unsafe script:")

	assert.Equal(t, "no code found\n", RenderText(Payload{}))
}

func TestEndToEnd(t *testing.T) {
	p := turn.NewProcessor(turn.Options{Executor: sandbox.NewRunner(sandbox.Options{})})
	response := "Here is the analysis:\n```javascript\nconst xs = np.array([1, 2, 3]);\nprint(np.sum(xs));\n```\n"
	payload := BuildPayload(p.Process(context.Background(), response, nil))

	require.Len(t, payload.ExecutionResults, 1)
	r := payload.ExecutionResults[0]
	require.True(t, r.Success, r.Error)
	assert.Equal(t, "6\n", r.Output)
	assert.Equal(t, []float64{1, 2, 3}, r.Results["xs"])
}
