package validator

import (
	"reflect"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
)

var fileType = reflect.TypeOf((*file.File)(nil))

type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// walk calls visit for every node reachable from root, parents before
// children. It stops as soon as visit returns false.
//
// goja's ast package has no visitor, so the walk follows exported fields by
// reflection. Position info (*file.File) is not descended into.
func walk(root ast.Node, visit func(ast.Node) bool) {
	seen := make(map[visitKey]struct{})

	var rec func(v reflect.Value) bool
	rec = func(v reflect.Value) bool {
		switch v.Kind() {
		case reflect.Interface:
			if v.IsNil() {
				return true
			}
			return rec(v.Elem())
		case reflect.Pointer:
			if v.IsNil() || v.Type() == fileType {
				return true
			}
			key := visitKey{ptr: v.Pointer(), typ: v.Type()}
			if _, ok := seen[key]; ok {
				return true
			}
			seen[key] = struct{}{}
			if n, ok := v.Interface().(ast.Node); ok && !visit(n) {
				return false
			}
			return rec(v.Elem())
		case reflect.Struct:
			t := v.Type()
			for i := range v.NumField() {
				if !t.Field(i).IsExported() {
					continue
				}
				if !rec(v.Field(i)) {
					return false
				}
			}
		case reflect.Slice:
			for i := range v.Len() {
				if !rec(v.Index(i)) {
					return false
				}
			}
		}
		return true
	}

	rec(reflect.ValueOf(root))
}
