package present

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"slices"
	"strings"

	"analyst-sandbox/internal/sandbox"
)

var page = template.Must(template.New("turn").Funcs(template.FuncMap{
	"inc":     func(i int) int { return i + 1 },
	"results": namedResults,
	"figure":  figureURL,
}).Parse(`<div class="analysis">
{{- range $i, $r := .ExecutionResults}}
<section class="execution {{if $r.Success}}success{{else}}failure{{end}}">
<h3>Script {{inc $i}}</h3>
<pre><code class="language-javascript">{{$r.Code}}</code></pre>
<p class="status">{{if $r.Success}}&#10003; Executed successfully{{else}}&#10007; Execution failed{{end}}</p>
{{- if $r.Output}}
<pre class="output">{{$r.Output}}</pre>
{{- end}}
{{- if $r.Error}}
<pre class="error">{{$r.Error}}</pre>
{{- end}}
{{- range results $r.Results}}
<div class="result" data-name="{{.Name}}">{{if .Table}}<h4>{{.Name}}</h4>{{.Table}}{{else}}<code>{{.Name}}: {{.Value}}</code>{{end}}</div>
{{- end}}
{{- range $r.Figures}}
<img class="figure" src="{{figure .}}" alt="figure">
{{- end}}
</section>
{{- end}}
</div>
`))

// namedResult is one result prepared for rendering.
type namedResult struct {
	Name  string
	Table template.HTML
	Value string
}

// namedResults returns results sorted by name. Only Markup values are
// embedded as HTML; everything else is printed as text.
func namedResults(results map[string]any) []namedResult {
	names := make([]string, 0, len(results))
	for n := range results {
		names = append(names, n)
	}
	slices.Sort(names)

	out := make([]namedResult, len(names))
	for i, n := range names {
		out[i].Name = n
		switch v := results[n].(type) {
		case sandbox.Markup:
			out[i].Table = template.HTML(v) // #nosec G203 -- cell text is escaped when the table is built
		default:
			out[i].Value = valueText(v)
		}
	}
	return out
}

func valueText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return "null"
	case float64, int64, bool:
		return fmt.Sprint(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// figureURL lets PNG data URIs through the URL sanitizer and blanks
// anything else.
func figureURL(s string) template.URL {
	if !strings.HasPrefix(s, "data:image/png;base64,") {
		return ""
	}
	return template.URL(s) // #nosec G203 -- prefix checked above
}

// RenderHTML renders p as an HTML fragment, one section per script in
// order. A payload without code renders as the empty string.
func RenderHTML(p Payload) (string, error) {
	if !p.HasCode {
		return "", nil
	}
	var buf bytes.Buffer
	if err := page.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("rendering turn: %w", err)
	}
	return buf.String(), nil
}

// RenderText renders p for a terminal. Figures are listed by size only.
func RenderText(p Payload) string {
	if !p.HasCode {
		return "no code found\n"
	}
	var sb strings.Builder
	for i, r := range p.ExecutionResults {
		status := "ok"
		if !r.Success {
			status = "FAILED"
		}
		fmt.Fprintf(&sb, "=== script %d [%s]", i+1, status)
		if r.ID != "" {
			fmt.Fprintf(&sb, " %s %dms", r.ID, r.DurationMS)
		}
		sb.WriteString("\n")
		writeBlock(&sb, r.Code)
		if r.Output != "" {
			sb.WriteString("--- output\n")
			writeBlock(&sb, r.Output)
		}
		if r.Error != "" {
			sb.WriteString("--- error\n")
			writeBlock(&sb, r.Error)
		}
		for _, nr := range namedResults(r.Results) {
			if nr.Table != "" {
				fmt.Fprintf(&sb, "--- %s: <table>\n", nr.Name)
				continue
			}
			fmt.Fprintf(&sb, "--- %s: %s\n", nr.Name, nr.Value)
		}
		for j, f := range r.Figures {
			fmt.Fprintf(&sb, "--- figure %d (%d bytes)\n", j+1, len(f))
		}
	}
	return sb.String()
}

func writeBlock(sb *strings.Builder, s string) {
	sb.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		sb.WriteString("\n")
	}
}
