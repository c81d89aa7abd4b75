package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_TaggedBlocks(t *testing.T) {
	response := "Here is the total:\n\n```javascript\nprint(df.x.sum())\n```\n\nAnd a chart:\n\n```js\nplt.plot([1, 2, 3])\nplt.show()\n```\n"

	got := New(nil).Extract(response)

	require.Len(t, got, 2)
	assert.Equal(t, "print(df.x.sum())", got[0].Text)
	assert.Equal(t, "javascript", got[0].Language)
	assert.Equal(t, "plt.plot([1, 2, 3])\nplt.show()", got[1].Text)
	assert.Equal(t, "js", got[1].Language)
}

func TestExtract_SpanMatchesText(t *testing.T) {
	response := "intro\n```javascript\n\n  const a = 1\nprint(a)\n\n```\noutro"

	got := New(nil).Extract(response)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, c.Text, response[c.Span.Start:c.Span.End])
}

func TestExtract_SpanCoversIndentedBlock(t *testing.T) {
	response := "Steps:\n\n1. Check it:\n\n   ```js\n   if (x) {\n       y()\n   }\n   ```\n"

	got := New(nil).Extract(response)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "if (x) {\n    y()\n}", c.Text)
	raw := response[c.Span.Start:c.Span.End]
	assert.True(t, strings.HasPrefix(raw, "if (x) {"), raw)
	assert.True(t, strings.HasSuffix(raw, "}"), raw)
	assert.GreaterOrEqual(t, len(raw), len(c.Text))
}

func TestExtract_TaggedWinsOverUntagged(t *testing.T) {
	response := "```\nprint('untagged')\n```\n\n```javascript\nprint('tagged')\n```\n"

	got := New(nil).Extract(response)

	require.Len(t, got, 1)
	assert.Equal(t, "print('tagged')", got[0].Text)
}

func TestExtract_FallbackToUntagged(t *testing.T) {
	response := "```\nprint(1)\n```\ntext\n```\nprint(2)\n```\n"

	got := New(nil).Extract(response)

	require.Len(t, got, 2)
	assert.Equal(t, "print(1)", got[0].Text)
	assert.Equal(t, "print(2)", got[1].Text)
	assert.Empty(t, got[0].Language)
}

func TestExtract_OtherLanguagesIgnored(t *testing.T) {
	response := "```python\nprint(1)\n```\n\n```sql\nSELECT 1\n```\n"

	assert.Empty(t, New(nil).Extract(response))
}

func TestExtract_NoBlocks(t *testing.T) {
	tests := []string{
		"",
		"   \n\t",
		"The average is 4.2 and nothing needs to run.",
		"inline `print(1)` code is not a block",
	}
	for _, response := range tests {
		assert.Empty(t, New(nil).Extract(response), "response %q", response)
	}
}

func TestExtract_EmptyBlockSkipped(t *testing.T) {
	response := "```javascript\n\n```\n```javascript\nprint(1)\n```\n"

	got := New(nil).Extract(response)

	require.Len(t, got, 1)
	assert.Equal(t, "print(1)", got[0].Text)
}

func TestExtract_NBlocks(t *testing.T) {
	var sb strings.Builder
	const n = 7
	for i := range n {
		sb.WriteString("Step:\n\n```javascript\n")
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteString("\n```\n\n")
	}

	got := New(nil).Extract(sb.String())

	require.Len(t, got, n)
	for i, c := range got {
		assert.Equal(t, strings.Repeat("x", i+1), c.Text)
	}
}

func TestExtract_CustomLanguages(t *testing.T) {
	response := "```ecmascript\nprint(1)\n```\n```javascript\nprint(2)\n```\n"

	got := New([]string{"ECMAScript"}).Extract(response)

	require.Len(t, got, 1)
	assert.Equal(t, "print(1)", got[0].Text)
}

func TestCandidates_Restartable(t *testing.T) {
	seq := New(nil).Candidates("```js\na()\n```\n```js\nb()\n```\n")

	var first, second []string
	for c := range seq {
		first = append(first, c.Text)
	}
	for c := range seq {
		second = append(second, c.Text)
	}

	assert.Equal(t, []string{"a()", "b()"}, first)
	assert.Equal(t, first, second)
}

func TestCandidates_EarlyBreak(t *testing.T) {
	seq := New(nil).Candidates("```js\na()\n```\n```js\nb()\n```\n")

	var seen []string
	for c := range seq {
		seen = append(seen, c.Text)
		break
	}

	assert.Equal(t, []string{"a()"}, seen)
}

func TestExtract_UnclosedFence(t *testing.T) {
	got := New(nil).Extract("```javascript\nprint(1)\n")

	require.Len(t, got, 1)
	assert.Equal(t, "print(1)", got[0].Text)
}
