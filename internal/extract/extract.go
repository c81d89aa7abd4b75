// Package extract pulls runnable script candidates out of an assistant's
// Markdown response.
package extract

import (
	"bytes"
	"iter"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// DefaultLanguages are the fenced-block tags recognised as scripts.
var DefaultLanguages = []string{"javascript", "js"}

// Span is the byte range of a candidate's trimmed text inside the response.
// For a top-level block response[Start:End] equals Text. A fence nested in a
// list item or block quote has its container indentation stripped from Text,
// so there the span covers the raw lines and can be longer than Text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Candidate is one fenced code block that may be executed.
type Candidate struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Span     Span   `json:"span"`
}

// Extractor finds script candidates in response text.
type Extractor struct {
	parser    parser.Parser
	languages map[string]struct{}
}

// New creates an Extractor that prefers blocks tagged with one of languages.
// Nil or empty languages falls back to DefaultLanguages.
func New(languages []string) *Extractor {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	set := make(map[string]struct{}, len(languages))
	for _, l := range languages {
		set[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return &Extractor{
		parser:    goldmark.New().Parser(),
		languages: set,
	}
}

// Candidates yields the scripts in response in document order.
//
// Blocks tagged with a recognised language win. Only when the response has
// none of those are untagged blocks considered. Blocks tagged with any other
// language never qualify. The sequence may be ranged over more than once.
func (e *Extractor) Candidates(response string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		if strings.TrimSpace(response) == "" {
			return
		}
		source := []byte(response)
		tagged, untagged := e.collect(source)
		pick := tagged
		if len(pick) == 0 {
			pick = untagged
		}
		for _, block := range pick {
			c, ok := candidateFrom(block, source)
			if !ok {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// Extract is Candidates collected into a slice.
func (e *Extractor) Extract(response string) []Candidate {
	var out []Candidate
	for c := range e.Candidates(response) {
		out = append(out, c)
	}
	return out
}

func (e *Extractor) collect(source []byte) (tagged, untagged []*ast.FencedCodeBlock) {
	doc := e.parser.Parse(text.NewReader(source))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		lang := strings.ToLower(string(block.Language(source)))
		switch {
		case lang == "":
			untagged = append(untagged, block)
		case e.accepts(lang):
			tagged = append(tagged, block)
		}
		return ast.WalkSkipChildren, nil
	})
	return tagged, untagged
}

func (e *Extractor) accepts(lang string) bool {
	_, ok := e.languages[lang]
	return ok
}

func candidateFrom(block *ast.FencedCodeBlock, source []byte) (Candidate, bool) {
	lines := block.Lines()
	if lines.Len() == 0 {
		return Candidate{}, false
	}

	var buf bytes.Buffer
	for i := range lines.Len() {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	body := strings.TrimSpace(buf.String())
	if body == "" {
		return Candidate{}, false
	}

	start := lines.At(0).Start
	stop := lines.At(lines.Len() - 1).Stop
	raw := source[start:stop]
	lead := len(raw) - len(bytes.TrimLeft(raw, " \t\r\n"))
	trail := len(raw) - len(bytes.TrimRight(raw, " \t\r\n"))

	return Candidate{
		Text:     body,
		Language: string(block.Language(source)),
		Span:     Span{Start: start + lead, End: stop - trail},
	}, true
}
