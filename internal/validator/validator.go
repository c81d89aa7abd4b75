// Package validator decides whether an extracted script may run.
//
// A script passes only if it clears both stages: a lexical denylist over the
// raw text, then a walk of its parsed syntax tree that checks require()
// targets, direct calls and call receivers.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// Rule names the check that produced an unsafe verdict.
type Rule string

const (
	RuleEmpty    Rule = "empty"
	RuleSize     Rule = "size"
	RuleDenylist Rule = "denylist"
	RuleSyntax   Rule = "syntax"
	RuleImport   Rule = "import"
	RuleCall     Rule = "call"
	RuleReceiver Rule = "receiver"
	RuleInternal Rule = "internal"
)

// Verdict is the outcome of validating one script.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
	Rule   Rule   `json:"rule,omitempty"`
}

// DefaultMaxScriptBytes bounds the size of a script the validator will parse.
const DefaultMaxScriptBytes = 256 * 1024

// DefaultModules are the top-level module names a script may require().
var DefaultModules = []string{
	"numeric", "dataframe", "plot", "chart",
	"math", "statistics", "datetime", "collections",
	"learn", "cluster",
}

// Names that may not be called directly, or constructed with new.
var bannedCalls = []string{"eval", "Function", "importScripts", "compile"}

// Receivers whose methods may not be called.
var bannedReceivers = []string{"os", "process", "child_process", "fs", "shutil", "subprocess", "sys"}

// Options configures a Validator.
type Options struct {
	MaxScriptBytes      int
	ExtraDenied         []string
	ExtraAllowedModules []string
}

// Validator checks scripts. It holds no per-call state and is safe for
// concurrent use.
type Validator struct {
	detector *Detector
	modules  map[string]struct{}
	maxBytes int
}

// New creates a Validator.
func New(opts Options) *Validator {
	if opts.MaxScriptBytes <= 0 {
		opts.MaxScriptBytes = DefaultMaxScriptBytes
	}
	modules := make(map[string]struct{}, len(DefaultModules)+len(opts.ExtraAllowedModules))
	for _, m := range DefaultModules {
		modules[m] = struct{}{}
	}
	for _, m := range opts.ExtraAllowedModules {
		if m = strings.TrimSpace(m); m != "" {
			modules[m] = struct{}{}
		}
	}
	return &Validator{
		detector: NewDetector(opts.ExtraDenied...),
		modules:  modules,
		maxBytes: opts.MaxScriptBytes,
	}
}

// Modules returns the allowed module names, sorted.
func (v *Validator) Modules() []string {
	out := make([]string, 0, len(v.modules))
	for m := range v.modules {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Scan reports every denylisted token in code.
func (v *Validator) Scan(code string) []Detection {
	return v.detector.Analyze(code)
}

// Validate returns a verdict for code. It never panics.
func (v *Validator) Validate(code string) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			verdict = unsafe(RuleInternal, fmt.Sprintf("validator failure: %v", r))
		}
	}()

	if strings.TrimSpace(code) == "" {
		return unsafe(RuleEmpty, "empty script")
	}
	if len(code) > v.maxBytes {
		return unsafe(RuleSize, fmt.Sprintf("script is %d bytes, limit is %d", len(code), v.maxBytes))
	}

	if det, found := v.detector.First(code); found {
		return unsafe(RuleDenylist, fmt.Sprintf("forbidden token %q on line %d (%s)", det.Token, det.Line, det.Pattern))
	}

	prog, err := parser.ParseFile(nil, "script.js", code, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return unsafe(RuleSyntax, "syntax error: "+err.Error())
	}

	verdict = Verdict{Safe: true}
	calls := make(map[*ast.Identifier]bool)
	walk(prog, func(n ast.Node) bool {
		if bad, ok := v.check(n, calls); ok {
			verdict = bad
			return false
		}
		return true
	})
	return verdict
}

// check inspects one node. calls collects the require identifiers seen as
// direct callees; parents are visited first, so a require identifier not
// in calls is a reference that escapes the import check.
func (v *Validator) check(n ast.Node, calls map[*ast.Identifier]bool) (Verdict, bool) {
	switch n := n.(type) {
	case *ast.CallExpression:
		if id, ok := n.Callee.(*ast.Identifier); ok && id.Name == "require" {
			calls[id] = true
		}
		return v.checkCall(n.Callee, n.ArgumentList)
	case *ast.Identifier:
		if n.Name == "require" && !calls[n] {
			return unsafe(RuleCall, "require may only be called directly"), true
		}
	case *ast.DotExpression:
		if n.Identifier.Name == "require" {
			return unsafe(RuleCall, "require may only be called directly"), true
		}
	case *ast.BracketExpression:
		if lit, ok := n.Member.(*ast.StringLiteral); ok && lit.Value == "require" {
			return unsafe(RuleCall, "require may only be called directly"), true
		}
	case *ast.NewExpression:
		if name, ok := identName(n.Callee); ok && slices.Contains(bannedCalls, name) {
			return unsafe(RuleCall, fmt.Sprintf("constructing %s is not allowed", name)), true
		}
	}
	return Verdict{}, false
}

func (v *Validator) checkCall(callee ast.Expression, args []ast.Expression) (Verdict, bool) {
	if name, ok := identName(callee); ok {
		if name == "require" {
			return v.checkRequire(args)
		}
		if slices.Contains(bannedCalls, name) {
			return unsafe(RuleCall, fmt.Sprintf("call to %s is not allowed", name)), true
		}
		return Verdict{}, false
	}

	var recv ast.Expression
	switch c := callee.(type) {
	case *ast.DotExpression:
		recv = c.Left
	case *ast.BracketExpression:
		recv = c.Left
	default:
		return Verdict{}, false
	}
	if name, ok := identName(recv); ok && slices.Contains(bannedReceivers, name) {
		return unsafe(RuleReceiver, fmt.Sprintf("calls on %s are not allowed", name)), true
	}
	return Verdict{}, false
}

func (v *Validator) checkRequire(args []ast.Expression) (Verdict, bool) {
	if len(args) != 1 {
		return unsafe(RuleCall, "require() takes exactly one string literal"), true
	}
	lit, ok := args[0].(*ast.StringLiteral)
	if !ok {
		return unsafe(RuleCall, "require() argument must be a string literal"), true
	}
	name := string(lit.Value)
	top, _, _ := strings.Cut(name, "/")
	if _, allowed := v.modules[top]; !allowed {
		return unsafe(RuleImport, fmt.Sprintf("module %q is not allowed", name)), true
	}
	return Verdict{}, false
}

func identName(e ast.Expression) (string, bool) {
	id, ok := e.(*ast.Identifier)
	if !ok || id == nil {
		return "", false
	}
	return string(id.Name), true
}

func unsafe(rule Rule, reason string) Verdict {
	return Verdict{Safe: false, Reason: reason, Rule: rule}
}
