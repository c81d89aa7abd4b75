package sandbox

import (
	"bytes"
	"strings"

	"github.com/dop251/goja"

	"analyst-sandbox/internal/runtime"
)

const truncationMarker = "\n... [output truncated]"

// cappedBuffer keeps at most max bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.max - c.buf.Len(); room < len(p) {
		c.truncated = true
		if room > 0 {
			c.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + truncationMarker
	}
	return c.buf.String()
}

func (c *cappedBuffer) Len() int {
	return c.buf.Len()
}

// streams are the stdout and stderr of one execution.
type streams struct {
	vm     *goja.Runtime
	stdout *cappedBuffer
	stderr *cappedBuffer
}

func newStreams(vm *goja.Runtime, max int) *streams {
	return &streams{vm: vm, stdout: newCappedBuffer(max), stderr: newCappedBuffer(max)}
}

// bind installs print and console. print and console.log/info/debug go to
// stdout; console.warn/error go to stderr.
func (s *streams) bind() ([]string, error) {
	if err := s.vm.Set("print", s.writer(s.stdout)); err != nil {
		return nil, err
	}
	console := s.vm.NewObject()
	for name, buf := range map[string]*cappedBuffer{
		"log":   s.stdout,
		"info":  s.stdout,
		"debug": s.stdout,
		"warn":  s.stderr,
		"error": s.stderr,
	} {
		if err := console.Set(name, s.writer(buf)); err != nil {
			return nil, err
		}
	}
	if err := s.vm.Set("console", console); err != nil {
		return nil, err
	}
	return []string{"print", "console"}, nil
}

func (s *streams) writer(buf *cappedBuffer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = s.format(a)
		}
		buf.Write([]byte(strings.Join(parts, " ") + "\n"))
		return goja.Undefined()
	}
}

// format renders a value the way a REPL would: strings raw, frames and
// series as text tables, other objects as JSON.
func (s *streams) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		if v == nil {
			return "undefined"
		}
		return v.String()
	}
	switch x := v.Export().(type) {
	case string:
		return x
	case *runtime.Frame:
		return x.String()
	case *runtime.Series:
		return x.String()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	switch obj.ClassName() {
	case "Function", "Error", "Date", "RegExp":
		return v.String()
	}
	if str, ok := s.json(v); ok {
		return str
	}
	return v.String()
}

func (s *streams) json(v goja.Value) (out string, ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	stringify, isFn := goja.AssertFunction(s.vm.Get("JSON").ToObject(s.vm).Get("stringify"))
	if !isFn {
		return "", false
	}
	r, err := stringify(goja.Undefined(), v)
	if err != nil || goja.IsUndefined(r) {
		return "", false
	}
	return r.String(), true
}
