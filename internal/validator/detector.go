package validator

import (
	"regexp"
	"strings"
)

// Detector scans raw script text for forbidden tokens. It is a coarse
// substring filter: it over-rejects (pos.x trips "os.") and under-rejects
// (anything spelled indirectly), and the syntax-tree check runs after it.
type Detector struct {
	patterns []DetectionPattern
}

// DetectionPattern groups forbidden literals under one name.
type DetectionPattern struct {
	Name        string
	Description string
	Tokens      []string
	Severity    Severity
	regex       *regexp.Regexp
}

// Severity levels for detected tokens.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detection is one forbidden token found in a script.
type Detection struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Token    string `json:"token"`
	Line     int    `json:"line,omitempty"`
}

// NewDetector creates a detector with the default patterns plus any extra
// literal tokens, which are reported under the "custom" pattern.
func NewDetector(extra ...string) *Detector {
	patterns := defaultPatterns()
	var custom []string
	for _, tok := range extra {
		if tok = strings.TrimSpace(tok); tok != "" {
			custom = append(custom, tok)
		}
	}
	if len(custom) > 0 {
		patterns = append(patterns, DetectionPattern{
			Name:        "custom",
			Description: "Operator-configured forbidden token",
			Tokens:      custom,
			Severity:    SeverityHigh,
		})
	}
	for i := range patterns {
		patterns[i].regex = compileTokens(patterns[i].Tokens)
	}
	return &Detector{patterns: patterns}
}

// Analyze returns every forbidden token in code, in line order.
func (d *Detector) Analyze(code string) []Detection {
	var detections []Detection

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		for _, p := range d.patterns {
			for _, tok := range p.regex.FindAllString(line, -1) {
				detections = append(detections, Detection{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Token:    tok,
					Line:     i + 1,
				})
			}
		}
	}

	return detections
}

// First returns the earliest forbidden token in code, if any.
func (d *Detector) First(code string) (Detection, bool) {
	dets := d.Analyze(code)
	if len(dets) == 0 {
		return Detection{}, false
	}
	return dets[0], true
}

func compileTokens(tokens []string) *regexp.Regexp {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "dynamic_eval",
			Description: "Dynamic code evaluation",
			Tokens:      []string{"eval"},
			Severity:    SeverityCritical,
		},
		{
			Name:        "function_constructor",
			Description: "Compiling code through the Function constructor",
			Tokens:      []string{"Function("},
			Severity:    SeverityCritical,
		},
		{
			Name:        "dynamic_import",
			Description: "Dynamic module import",
			Tokens:      []string{"import("},
			Severity:    SeverityCritical,
		},
		{
			Name:        "prototype_escape",
			Description: "Reaching constructors through the prototype chain",
			Tokens:      []string{"constructor", "__proto__"},
			Severity:    SeverityHigh,
		},
		{
			Name:        "file_access",
			Description: "Opening, reading or writing files",
			Tokens:      []string{"open(", "readFile", "writeFile"},
			Severity:    SeverityHigh,
		},
		{
			Name:        "process_access",
			Description: "Process or subprocess access",
			Tokens:      []string{"child_process", "process.", "spawn", "execSync", "subprocess"},
			Severity:    SeverityCritical,
		},
		{
			Name:        "os_module",
			Description: "Operating system or file system module reference",
			Tokens:      []string{"os.", "fs.", "shutil"},
			Severity:    SeverityHigh,
		},
		{
			Name:        "global_object",
			Description: "Direct access to the global object",
			Tokens:      []string{"globalThis"},
			Severity:    SeverityHigh,
		},
	}
}
