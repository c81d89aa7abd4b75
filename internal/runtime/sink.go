package runtime

import (
	"encoding/base64"
	"strings"
	"sync"
)

// DataURIPrefix is prepended to every rendered figure.
const DataURIPrefix = "data:image/png;base64,"

// Sink collects rendered figures for one execution. Each execution owns its
// own sink, so concurrent executions never see each other's charts.
type Sink struct {
	mu      sync.Mutex
	figures []string
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Add appends a PNG image as a data URI.
func (s *Sink) Add(png []byte) {
	uri := DataURI(png)
	s.mu.Lock()
	s.figures = append(s.figures, uri)
	s.mu.Unlock()
}

// Figures returns the collected data URIs in render order.
func (s *Sink) Figures() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.figures))
	copy(out, s.figures)
	return out
}

// Len returns the number of figures rendered so far.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.figures)
}

// DataURI wraps PNG bytes as data:image/png;base64,<payload>.
func DataURI(png []byte) string {
	var sb strings.Builder
	sb.Grow(len(DataURIPrefix) + base64.StdEncoding.EncodedLen(len(png)))
	sb.WriteString(DataURIPrefix)
	sb.WriteString(base64.StdEncoding.EncodeToString(png))
	return sb.String()
}

// DecodeDataURI returns the PNG bytes inside a figure data URI.
func DecodeDataURI(uri string) ([]byte, bool) {
	payload, ok := strings.CutPrefix(uri, DataURIPrefix)
	if !ok {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	return b, true
}
